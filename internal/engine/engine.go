package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alejandrodnm/crowdbot/config"
	"github.com/alejandrodnm/crowdbot/internal/domain"
	"github.com/alejandrodnm/crowdbot/internal/executor"
	"github.com/alejandrodnm/crowdbot/internal/ledger"
	"github.com/alejandrodnm/crowdbot/internal/monitor"
	"github.com/alejandrodnm/crowdbot/internal/ports"
	"github.com/alejandrodnm/crowdbot/internal/risk"
	"github.com/alejandrodnm/crowdbot/internal/signal"
)

// Engine orchestrates the trading cycle: settle expired positions, discover
// the current markets, and run snapshot → signal → risk → execution for each
// one. One in-flight decision per market at a time.
type Engine struct {
	cfg        config.BotConfig
	venue      ports.VenueClient
	discoverer ports.MarketDiscoverer
	store      ports.TradeStore
	signals    *signal.Engine
	gate       *risk.Gate
	book       *ledger.Ledger
	exec       *executor.Manager
	monitor    *monitor.Service
	notifier   ports.Notifier
	clock      ports.Clock

	mu           sync.Mutex
	inFlight     map[string]bool
	lastDay      time.Time
	balanceFails int // consecutive insufficient-balance outcomes

	// halted stops new submissions after a fatal persistence failure or a
	// run of insufficient-balance outcomes (cfg.BalanceFailLimit).
	// Settlement of already-open positions keeps running.
	halted atomic.Bool
}

// Deps carries the wired components for New.
type Deps struct {
	Venue      ports.VenueClient
	Discoverer ports.MarketDiscoverer
	Store      ports.TradeStore
	Signals    *signal.Engine
	Gate       *risk.Gate
	Book       *ledger.Ledger
	Exec       *executor.Manager
	Monitor    *monitor.Service
	Notifier   ports.Notifier
	Clock      ports.Clock
}

// New wires the cycle engine. Clock may be nil for the real clock.
func New(cfg config.BotConfig, deps Deps) *Engine {
	clock := deps.Clock
	if clock == nil {
		clock = ports.RealClock{}
	}
	if cfg.BalanceFailLimit <= 0 {
		cfg.BalanceFailLimit = 3
	}
	return &Engine{
		cfg:        cfg,
		venue:      deps.Venue,
		discoverer: deps.Discoverer,
		store:      deps.Store,
		signals:    deps.Signals,
		gate:       deps.Gate,
		book:       deps.Book,
		exec:       deps.Exec,
		monitor:    deps.Monitor,
		notifier:   deps.Notifier,
		clock:      clock,
		inFlight:   make(map[string]bool),
		lastDay:    clock.Now().UTC().Truncate(24 * time.Hour),
	}
}

// Run executes cycles on the scan interval until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	interval := time.Duration(e.cfg.ScanIntervalSeconds) * time.Second
	slog.Info("engine: starting",
		"scan_interval", interval,
		"series", e.cfg.SeriesSlug,
		"dry_run", e.cfg.DryRun,
	)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	e.RunCycle(ctx)
	for {
		select {
		case <-ctx.Done():
			slog.Info("engine: stopping", "reason", ctx.Err())
			return ctx.Err()
		case <-ticker.C:
			e.RunCycle(ctx)
		}
	}
}

// RunCycle executes one full pass: rollover, settlement, discovery, and one
// pipeline run per discovered market.
func (e *Engine) RunCycle(ctx context.Context) {
	e.rollDaily()
	e.settleExpired(ctx)

	markets, err := e.discoverer.CurrentMarkets(ctx)
	if err != nil {
		slog.Error("engine: market discovery failed", "error", err)
		return
	}

	var wg sync.WaitGroup
	for _, marketID := range markets {
		if !e.claim(marketID) {
			continue
		}
		wg.Add(1)
		go func(marketID string) {
			defer wg.Done()
			defer e.release(marketID)
			e.runMarket(ctx, marketID)
		}(marketID)
	}
	wg.Wait()
}

// Halted reports whether new submissions are stopped.
func (e *Engine) Halted() bool { return e.halted.Load() }

// claim marks the market as having an in-flight decision. Returns false when
// the market is already being worked or already holds a position.
func (e *Engine) claim(marketID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.inFlight[marketID] || e.book.HasOpen(marketID) {
		return false
	}
	e.inFlight[marketID] = true
	return true
}

func (e *Engine) release(marketID string) {
	e.mu.Lock()
	delete(e.inFlight, marketID)
	e.mu.Unlock()
}

// runMarket runs the decision pipeline for one market.
func (e *Engine) runMarket(ctx context.Context, marketID string) {
	snap, err := e.venue.GetSnapshot(ctx, marketID)
	if err != nil {
		slog.Error("engine: snapshot fetch failed", "market", marketID, "error", err)
		return
	}

	// The snapshot behind every decision gets persisted, traded or not.
	if err := e.store.AppendSnapshot(ctx, snap); err != nil {
		slog.Error("engine: snapshot persist failed", "market", marketID, "error", err)
	}

	decision := e.signals.Evaluate(snap)

	report := domain.CycleReport{
		MarketID:  marketID,
		Question:  snap.Question,
		Timestamp: e.clock.Now().UTC(),
		YesPrice:  snap.YesPrice,
		NoPrice:   snap.NoPrice,
		Vig:       snap.Vig(),
		Volume:    snap.Volume,
		Decision:  decision,
	}

	switch {
	case decision.IsSkip():
		slog.Debug("engine: skip", "market", marketID, "reason", string(decision.Reason))

	case e.halted.Load():
		slog.Warn("engine: submissions halted, dropping approved decision", "market", marketID)

	default:
		verdict := e.book.Admit(marketID, func(ls domain.LedgerSnapshot) domain.Verdict {
			return e.gate.Admit(decision, ls)
		})
		report.Verdict = &verdict

		if !verdict.Approved {
			e.monitor.RecordRejection(ctx, marketID, verdict.Reason)
			break
		}
		e.monitor.RecordApproval()

		order := executor.NewOrder(decision, verdict, snap.ExpiresAt, e.clock.Now().UTC())
		outcome, err := e.exec.Execute(ctx, order, snap.Question)
		report.Outcome = &outcome
		if err != nil {
			// A fill exists that storage could not record. Stop submitting.
			e.halted.Store(true)
			slog.Error("engine: halting new submissions", "market", marketID, "error", err)
		}
		e.trackBalance(ctx, marketID, outcome)
	}

	ls := e.book.Snapshot()
	report.OpenCount = ls.OpenPositions
	report.Exposure = ls.CumulativeExposure()
	report.DailyPnL = -ls.DailyLossUSD
	report.LossStreak = ls.LossStreak

	if err := e.notifier.CycleReport(ctx, report); err != nil {
		slog.Error("engine: cycle report delivery failed", "market", marketID, "error", err)
	}
}

// trackBalance counts consecutive insufficient-balance outcomes and halts new
// submissions when the streak reaches the limit. Any other outcome resets it.
func (e *Engine) trackBalance(ctx context.Context, marketID string, outcome domain.TradeOutcome) {
	e.mu.Lock()
	if outcome.FailReason == domain.FailInsufficientBalance {
		e.balanceFails++
	} else {
		e.balanceFails = 0
	}
	streak := e.balanceFails
	e.mu.Unlock()

	if streak < e.cfg.BalanceFailLimit || e.halted.Load() {
		return
	}
	e.halted.Store(true)
	slog.Error("engine: halting new submissions, balance exhausted",
		"market", marketID,
		"consecutive_failures", streak,
	)
	if err := e.notifier.Alert(ctx, domain.AlertEvent{
		Severity:  domain.SeverityCritical,
		Kind:      domain.AlertVenueFailure,
		Timestamp: e.clock.Now().UTC(),
		MarketID:  marketID,
		Message:   fmt.Sprintf("%d consecutive orders failed on insufficient balance", streak),
		Context: map[string]string{
			"consecutive": fmt.Sprintf("%d", streak),
		},
	}); err != nil {
		slog.Error("engine: alert delivery failed", "error", err)
	}
}

// settleExpired closes positions whose market has resolved. Winner side is
// read off the resolved snapshot: the winning side's price converges to 1.
func (e *Engine) settleExpired(ctx context.Context) {
	for _, pos := range e.book.OpenPositions() {
		snap, err := e.venue.GetSnapshot(ctx, pos.MarketID)
		if err != nil {
			slog.Error("engine: settlement snapshot failed", "market", pos.MarketID, "error", err)
			continue
		}
		if snap.TimeToExpiry() > 0 {
			continue
		}

		winner := domain.SideNo
		if snap.YesPrice >= 0.5 {
			winner = domain.SideYes
		}
		exit := domain.SettlePrice(pos.Side, winner)

		closed, err := e.book.RecordClose(pos.MarketID, exit)
		if err != nil {
			slog.Error("engine: ledger close failed", "market", pos.MarketID, "error", err)
			continue
		}
		if err := e.store.CloseTrade(ctx, pos.MarketID, exit, closed.PnL); err != nil {
			slog.Error("engine: trade close persist failed", "market", pos.MarketID, "error", err)
		}
		e.monitor.RecordClose(ctx, closed, e.book.Snapshot())

		slog.Info("engine: position settled",
			"market", pos.MarketID,
			"side", string(pos.Side),
			"winner", string(winner),
			"pnl_usd", closed.PnL,
			"held", closed.HoldDuration(e.clock.Now()),
		)
	}
}

// rollDaily resets daily state when the UTC day changes.
func (e *Engine) rollDaily() {
	today := e.clock.Now().UTC().Truncate(24 * time.Hour)
	e.mu.Lock()
	changed := !today.Equal(e.lastDay)
	if changed {
		e.lastDay = today
	}
	e.mu.Unlock()

	if changed {
		e.book.RollDaily()
		e.monitor.RollDaily()
		slog.Info("engine: daily rollover", "day", today.Format("2006-01-02"))
	}
}
