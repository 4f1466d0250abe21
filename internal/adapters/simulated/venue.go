package simulated

// Package simulated is the DRY_RUN venue: market data can come from a real
// source, but orders fill in memory and no capital leaves the machine.

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/alejandrodnm/crowdbot/internal/domain"
	"github.com/alejandrodnm/crowdbot/internal/ports"
)

// Venue implements ports.VenueClient with simulated execution. Snapshots are
// delegated to the data source when one is set (paper trading on live data);
// otherwise they come from scripted snapshots (tests).
type Venue struct {
	data ports.VenueClient // nil → scripted snapshots only

	mu         sync.Mutex
	balance    float64
	fillRatio  float64
	snapshots  map[string]domain.MarketSnapshot
	orders     map[string]ports.OrderStatus // by client ref
	submitErrs []error                      // scripted per-call submit errors
	orderSeq   int
}

// New creates a simulated venue with the given starting balance. data may be
// nil; fills are complete by default.
func New(data ports.VenueClient, balance float64) *Venue {
	return &Venue{
		data:      data,
		balance:   balance,
		fillRatio: 1.0,
		snapshots: make(map[string]domain.MarketSnapshot),
		orders:    make(map[string]ports.OrderStatus),
	}
}

// SetSnapshot scripts the snapshot returned for a market.
func (v *Venue) SetSnapshot(snap domain.MarketSnapshot) {
	v.mu.Lock()
	v.snapshots[snap.MarketID] = snap
	v.mu.Unlock()
}

// SetBalance scripts the available balance.
func (v *Venue) SetBalance(balance float64) {
	v.mu.Lock()
	v.balance = balance
	v.mu.Unlock()
}

// SetFillRatio scripts partial fills: every submit fills ratio × size.
func (v *Venue) SetFillRatio(ratio float64) {
	v.mu.Lock()
	v.fillRatio = ratio
	v.mu.Unlock()
}

// ScriptSubmitErrors queues errors returned by the next SubmitOrder calls,
// in order. A nil entry means that call succeeds.
func (v *Venue) ScriptSubmitErrors(errs ...error) {
	v.mu.Lock()
	v.submitErrs = append(v.submitErrs, errs...)
	v.mu.Unlock()
}

func (v *Venue) GetSnapshot(ctx context.Context, marketID string) (domain.MarketSnapshot, error) {
	if v.data != nil {
		return v.data.GetSnapshot(ctx, marketID)
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	snap, ok := v.snapshots[marketID]
	if !ok {
		return domain.MarketSnapshot{}, domain.NewPermanentVenueError("get_snapshot",
			fmt.Errorf("no scripted snapshot for %q", marketID))
	}
	return snap, nil
}

func (v *Venue) GetBalance(context.Context) (float64, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.balance, nil
}

// SubmitOrder fills immediately at the limit price. Resubmitting a known
// ClientRef replays the original result instead of filling again.
func (v *Venue) SubmitOrder(_ context.Context, order domain.Order) (ports.SubmitResult, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if prev, ok := v.orders[order.ClientRef]; ok {
		return ports.SubmitResult{
			VenueOrderID: prev.VenueOrderID,
			FilledUSD:    prev.FilledUSD,
			AvgPrice:     prev.AvgPrice,
			Status:       prev.Status,
		}, nil
	}

	if len(v.submitErrs) > 0 {
		err := v.submitErrs[0]
		v.submitErrs = v.submitErrs[1:]
		if err != nil {
			return ports.SubmitResult{}, err
		}
	}

	filled := order.SizeUSD * v.fillRatio
	if filled > v.balance {
		filled = v.balance
	}
	v.balance -= filled
	v.orderSeq++

	status := ports.OrderStatus{
		VenueOrderID: fmt.Sprintf("sim-%d", v.orderSeq),
		FilledUSD:    filled,
		AvgPrice:     order.LimitPrice,
		Status:       "MATCHED",
	}
	v.orders[order.ClientRef] = status

	slog.Info("simulated: order filled",
		"market", order.MarketID,
		"side", string(order.Side),
		"filled_usd", filled,
		"price", order.LimitPrice,
	)
	return ports.SubmitResult{
		VenueOrderID: status.VenueOrderID,
		FilledUSD:    status.FilledUSD,
		AvgPrice:     status.AvgPrice,
		Status:       status.Status,
	}, nil
}

func (v *Venue) GetOrderStatus(_ context.Context, clientRef string) (ports.OrderStatus, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	status, ok := v.orders[clientRef]
	if !ok {
		return ports.OrderStatus{Status: "UNKNOWN"}, nil
	}
	return status, nil
}
