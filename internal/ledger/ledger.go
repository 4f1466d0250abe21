package ledger

import (
	"fmt"
	"sync"
	"time"

	"github.com/alejandrodnm/crowdbot/internal/domain"
	"github.com/alejandrodnm/crowdbot/internal/ports"
)

// Ledger owns every mutable exposure counter. It is the single writer: all
// reads and writes go through one mutex, so an admission check and its
// corresponding reservation are atomic with respect to concurrent market
// workers (no two orders can pass a headroom check only one should pass).
//
// The ledger is an in-memory cache: open positions are rebuildable from the
// trade store on restart via Rebuild.
type Ledger struct {
	mu      sync.Mutex
	open    map[string]domain.Position // marketID → open position
	pending map[string]float64         // marketID → reserved USD, order in flight

	dailyTrades      int
	dailyTradedUSD   float64
	dailyRealizedUSD float64
	dailyLossUSD     float64
	lossStreak       int
	day              time.Time // UTC date the daily counters belong to

	clock ports.Clock
}

// New creates an empty ledger. The clock drives the daily rollover boundary.
func New(clock ports.Clock) *Ledger {
	if clock == nil {
		clock = ports.RealClock{}
	}
	return &Ledger{
		open:    make(map[string]domain.Position),
		pending: make(map[string]float64),
		day:     utcDay(clock.Now()),
		clock:   clock,
	}
}

// Rebuild restores open-position state from persisted history. Daily counters
// are not restored: they belong to the calendar day, and a restart mid-day
// starting from zero only makes the limits more conservative, never less.
func (l *Ledger) Rebuild(positions []domain.Position) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, p := range positions {
		if p.Open {
			l.open[p.MarketID] = p
		}
	}
}

// Admit runs the gate function against a consistent snapshot and, if it
// approves, reserves the admitted size before releasing the lock. Reserved
// size counts as exposure and as an open slot until RecordOpen or Release.
func (l *Ledger) Admit(marketID string, gate func(domain.LedgerSnapshot) domain.Verdict) domain.Verdict {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.maybeRollLocked()

	verdict := gate(l.snapshotLocked())
	if verdict.Approved {
		l.pending[marketID] = verdict.SizeUSD
	}
	return verdict
}

// Release drops the reservation for a market whose order ended with zero fill.
func (l *Ledger) Release(marketID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.pending, marketID)
}

// RecordOpen converts a reservation into an open position at its actual
// filled size. Exactly one open position per market: opening into a market
// that already has one returns ErrPositionExists.
func (l *Ledger) RecordOpen(pos domain.Position) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.maybeRollLocked()

	delete(l.pending, pos.MarketID)
	if _, exists := l.open[pos.MarketID]; exists {
		return fmt.Errorf("ledger.RecordOpen: %s: %w", pos.MarketID, domain.ErrPositionExists)
	}

	l.open[pos.MarketID] = pos
	l.dailyTrades++
	l.dailyTradedUSD += pos.SizeUSD
	return nil
}

// RecordClose closes the market's open position at exitPrice, realizes its
// pnl, and updates the loss counters. The loss streak increments on every
// pnl < 0 close and resets on any pnl ≥ 0 close.
func (l *Ledger) RecordClose(marketID string, exitPrice float64) (domain.Position, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.maybeRollLocked()

	pos, exists := l.open[marketID]
	if !exists {
		return domain.Position{}, fmt.Errorf("ledger.RecordClose: %s: %w", marketID, domain.ErrPositionNotFound)
	}
	delete(l.open, marketID)

	pnl := pos.RealizedPnL(exitPrice)
	now := l.clock.Now().UTC()
	pos.Open = false
	pos.ClosedAt = &now
	pos.ExitPrice = exitPrice
	pos.PnL = pnl

	l.dailyRealizedUSD += pos.SizeUSD
	if pnl < 0 {
		l.dailyLossUSD += -pnl
		l.lossStreak++
	} else {
		l.lossStreak = 0
	}
	return pos, nil
}

// Snapshot returns a read-only copy of the ledger state. Pending reservations
// count toward open slots and exposure so concurrent admissions see them.
func (l *Ledger) Snapshot() domain.LedgerSnapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.maybeRollLocked()
	return l.snapshotLocked()
}

// HasOpen reports whether the market has an open position or an in-flight
// reservation.
func (l *Ledger) HasOpen(marketID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.open[marketID]; ok {
		return true
	}
	_, ok := l.pending[marketID]
	return ok
}

// OpenPositions returns a copy of the currently open positions.
func (l *Ledger) OpenPositions() []domain.Position {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]domain.Position, 0, len(l.open))
	for _, p := range l.open {
		out = append(out, p)
	}
	return out
}

// RollDaily resets the daily counters at the UTC calendar boundary. Open
// positions and reservations survive the boundary untouched.
func (l *Ledger) RollDaily() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rollLocked(utcDay(l.clock.Now()))
}

func (l *Ledger) snapshotLocked() domain.LedgerSnapshot {
	openExposure := 0.0
	for _, p := range l.open {
		openExposure += p.SizeUSD
	}
	for _, size := range l.pending {
		openExposure += size
	}
	return domain.LedgerSnapshot{
		OpenPositions:    len(l.open) + len(l.pending),
		OpenExposureUSD:  openExposure,
		DailyTrades:      l.dailyTrades,
		DailyTradedUSD:   l.dailyTradedUSD,
		DailyRealizedUSD: l.dailyRealizedUSD,
		DailyLossUSD:     l.dailyLossUSD,
		LossStreak:       l.lossStreak,
		Day:              l.day,
	}
}

// maybeRollLocked rolls the daily counters if the clock crossed into a new
// UTC day since the last mutation.
func (l *Ledger) maybeRollLocked() {
	today := utcDay(l.clock.Now())
	if !today.Equal(l.day) {
		l.rollLocked(today)
	}
}

func (l *Ledger) rollLocked(day time.Time) {
	l.dailyTrades = 0
	l.dailyTradedUSD = 0
	l.dailyRealizedUSD = 0
	l.dailyLossUSD = 0
	l.lossStreak = 0
	l.day = day
}

func utcDay(t time.Time) time.Time {
	return t.UTC().Truncate(24 * time.Hour)
}
