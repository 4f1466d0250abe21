package domain

import "time"

// Position is an entered stake in one market. At most one open Position per
// market at a time — the ledger rejects pyramiding into the same market.
type Position struct {
	ID         string
	MarketID   string
	Side       Side
	SizeUSD    float64 // entered notional (actual filled size, not requested)
	EntryPrice float64
	Shares     float64 // SizeUSD / EntryPrice
	OpenedAt   time.Time
	Open       bool
	ClosedAt   *time.Time
	ExitPrice  float64
	PnL        float64 // realized, set on close
}

// RealizedPnL computes the profit of closing this position at exitPrice.
// Binary market: shares resolve to the exit price per share.
func (p Position) RealizedPnL(exitPrice float64) float64 {
	return (exitPrice - p.EntryPrice) * p.Shares
}

// SettlePrice returns the terminal per-share value of the position's side
// given the winning side of a resolved binary market.
func SettlePrice(positionSide, winner Side) float64 {
	if positionSide == winner {
		return 1.0
	}
	return 0.0
}

// HoldDuration returns how long the position has been (or was) open.
func (p Position) HoldDuration(now time.Time) time.Duration {
	if p.ClosedAt != nil {
		return p.ClosedAt.Sub(p.OpenedAt)
	}
	return now.Sub(p.OpenedAt)
}
