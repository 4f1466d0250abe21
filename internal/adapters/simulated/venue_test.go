package simulated

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/crowdbot/internal/domain"
)

func testOrder(ref string, sizeUSD float64) domain.Order {
	return domain.Order{
		ClientRef:  ref,
		MarketID:   "btc-updown-15m-1700000100",
		Side:       domain.SideYes,
		SizeUSD:    sizeUSD,
		LimitPrice: 0.75,
		Deadline:   time.Now().Add(15 * time.Minute),
	}
}

func TestSubmitOrderFillsAtLimitPrice(t *testing.T) {
	v := New(nil, 100)
	ctx := context.Background()

	res, err := v.SubmitOrder(ctx, testOrder("ref-1", 2.50))
	require.NoError(t, err)

	assert.Equal(t, 2.50, res.FilledUSD)
	assert.Equal(t, 0.75, res.AvgPrice)
	assert.Equal(t, "MATCHED", res.Status)

	balance, err := v.GetBalance(ctx)
	require.NoError(t, err)
	assert.Equal(t, 97.50, balance)
}

func TestSubmitOrderIdempotentByClientRef(t *testing.T) {
	v := New(nil, 100)
	ctx := context.Background()

	first, err := v.SubmitOrder(ctx, testOrder("ref-1", 2.50))
	require.NoError(t, err)

	second, err := v.SubmitOrder(ctx, testOrder("ref-1", 2.50))
	require.NoError(t, err)

	// Mismo ClientRef: mismo resultado, sin segundo fill.
	assert.Equal(t, first, second)
	balance, _ := v.GetBalance(ctx)
	assert.Equal(t, 97.50, balance)
}

func TestSubmitOrderScriptedErrors(t *testing.T) {
	v := New(nil, 100)
	ctx := context.Background()

	scripted := domain.NewTransientVenueError("submit_order", errors.New("http 503"))
	v.ScriptSubmitErrors(scripted, nil)

	_, err := v.SubmitOrder(ctx, testOrder("ref-1", 2.50))
	require.Error(t, err)
	assert.True(t, domain.IsTransient(err))

	res, err := v.SubmitOrder(ctx, testOrder("ref-1", 2.50))
	require.NoError(t, err)
	assert.Equal(t, 2.50, res.FilledUSD)
}

func TestSubmitOrderPartialFill(t *testing.T) {
	v := New(nil, 100)
	v.SetFillRatio(0.8)

	res, err := v.SubmitOrder(context.Background(), testOrder("ref-1", 2.50))
	require.NoError(t, err)
	assert.Equal(t, 2.00, res.FilledUSD)
}

func TestGetSnapshotScripted(t *testing.T) {
	v := New(nil, 100)
	ctx := context.Background()

	_, err := v.GetSnapshot(ctx, "missing")
	require.Error(t, err)
	assert.False(t, domain.IsTransient(err))

	now := time.Now()
	v.SetSnapshot(domain.MarketSnapshot{
		MarketID:  "btc-updown-15m-1700000100",
		YesPrice:  0.52,
		NoPrice:   0.47,
		Volume:    15000,
		Timestamp: now,
		ExpiresAt: now.Add(15 * time.Minute),
	})

	snap, err := v.GetSnapshot(ctx, "btc-updown-15m-1700000100")
	require.NoError(t, err)
	assert.Equal(t, 0.52, snap.YesPrice)
}

func TestGetOrderStatus(t *testing.T) {
	v := New(nil, 100)
	ctx := context.Background()

	status, err := v.GetOrderStatus(ctx, "unknown")
	require.NoError(t, err)
	assert.Equal(t, "UNKNOWN", status.Status)

	_, err = v.SubmitOrder(ctx, testOrder("ref-1", 2.50))
	require.NoError(t, err)

	status, err = v.GetOrderStatus(ctx, "ref-1")
	require.NoError(t, err)
	assert.Equal(t, "MATCHED", status.Status)
	assert.Equal(t, 2.50, status.FilledUSD)
}
