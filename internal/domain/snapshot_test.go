package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func validSnapshot() MarketSnapshot {
	now := time.Now()
	return MarketSnapshot{
		MarketID:  "btc-updown-15m-1700000100",
		Question:  "Bitcoin Up or Down?",
		YesPrice:  0.52,
		NoPrice:   0.47,
		Volume:    15000,
		Timestamp: now,
		ExpiresAt: now.Add(15 * time.Minute),
	}
}

func TestSnapshotVig(t *testing.T) {
	snap := validSnapshot()
	assert.InDelta(t, 0.99, snap.PriceSum(), 1e-9)
	// |0.99 - 1| = 0.01
	assert.InDelta(t, 0.01, snap.Vig(), 1e-9)

	snap.NoPrice = 0.53
	// |1.05 - 1| = 0.05
	assert.InDelta(t, 0.05, snap.Vig(), 1e-9)
}

func TestTimeToExpiry(t *testing.T) {
	snap := validSnapshot()
	assert.Equal(t, 15*time.Minute, snap.TimeToExpiry())

	// Mercado ya expirado respecto al snapshot.
	snap.Timestamp = snap.ExpiresAt.Add(time.Minute)
	assert.Equal(t, -time.Minute, snap.TimeToExpiry())
}

func TestSnapshotValid(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*MarketSnapshot)
		want   bool
	}{
		{"valid", func(*MarketSnapshot) {}, true},
		{"yes price zero", func(s *MarketSnapshot) { s.YesPrice = 0 }, false},
		{"no price one", func(s *MarketSnapshot) { s.NoPrice = 1 }, false},
		{"negative volume", func(s *MarketSnapshot) { s.Volume = -1 }, false},
		{"missing market id", func(s *MarketSnapshot) { s.MarketID = "" }, false},
		{"zero timestamp", func(s *MarketSnapshot) { s.Timestamp = time.Time{} }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap := validSnapshot()
			tt.mutate(&snap)
			assert.Equal(t, tt.want, snap.Valid())
		})
	}
}

func TestPriceFor(t *testing.T) {
	snap := validSnapshot()
	assert.Equal(t, 0.52, snap.PriceFor(SideYes))
	assert.Equal(t, 0.47, snap.PriceFor(SideNo))
}

func TestRealizedPnL(t *testing.T) {
	pos := Position{EntryPrice: 0.50, SizeUSD: 2.50, Shares: 5}

	// Gana: las shares liquidan a 1.0.
	assert.InDelta(t, 2.50, pos.RealizedPnL(1.0), 1e-9)
	// Pierde: liquidan a 0.
	assert.InDelta(t, -2.50, pos.RealizedPnL(0.0), 1e-9)
}

func TestHoldDuration(t *testing.T) {
	opened := time.Date(2026, 8, 23, 14, 0, 0, 0, time.UTC)
	pos := Position{OpenedAt: opened}

	now := opened.Add(10 * time.Minute)
	assert.Equal(t, 10*time.Minute, pos.HoldDuration(now))

	// Cerrada: el tiempo de hold queda congelado en el cierre.
	closedAt := opened.Add(15 * time.Minute)
	pos.ClosedAt = &closedAt
	assert.Equal(t, 15*time.Minute, pos.HoldDuration(now.Add(time.Hour)))
}

func TestSettlePrice(t *testing.T) {
	assert.Equal(t, 1.0, SettlePrice(SideYes, SideYes))
	assert.Equal(t, 0.0, SettlePrice(SideYes, SideNo))
	assert.Equal(t, 1.0, SettlePrice(SideNo, SideNo))
	assert.Equal(t, 0.0, SettlePrice(SideNo, SideYes))
}

func TestCumulativeExposure(t *testing.T) {
	snap := LedgerSnapshot{OpenExposureUSD: 2.50, DailyRealizedUSD: 5.00}
	assert.Equal(t, 7.50, snap.CumulativeExposure())

	assert.Equal(t, 2.50, snap.ExposureHeadroom(10))
	assert.Equal(t, 0.0, snap.ExposureHeadroom(5))
}
