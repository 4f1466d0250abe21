package executor

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/alejandrodnm/crowdbot/config"
	"github.com/alejandrodnm/crowdbot/internal/domain"
	"github.com/alejandrodnm/crowdbot/internal/ledger"
	"github.com/alejandrodnm/crowdbot/internal/ports"
)

// Manager drives an approved order through the venue to a terminal outcome:
// filled, partial or failed. It owns the retry policy (transient errors only,
// exponential backoff with jitter), the deadline guard, and the commit of a
// fill into the trade store and the exposure ledger.
type Manager struct {
	cfg      config.ExecutorConfig
	venue    ports.VenueClient
	store    ports.TradeStore
	book     *ledger.Ledger
	notifier ports.Notifier
	clock    ports.Clock
	dryRun   bool
}

// New wires a Manager. clock may be nil for the real clock.
func New(cfg config.ExecutorConfig, venue ports.VenueClient, store ports.TradeStore, book *ledger.Ledger, notifier ports.Notifier, clock ports.Clock, dryRun bool) *Manager {
	if clock == nil {
		clock = ports.RealClock{}
	}
	return &Manager{
		cfg:      cfg,
		venue:    venue,
		store:    store,
		book:     book,
		notifier: notifier,
		clock:    clock,
		dryRun:   dryRun,
	}
}

// NewOrder builds the venue order for an approved decision. The ClientRef is
// assigned once here and reused across every retry of this order.
func NewOrder(decision domain.Decision, verdict domain.Verdict, deadline, now time.Time) domain.Order {
	return domain.Order{
		ClientRef:  uuid.NewString(),
		MarketID:   decision.MarketID,
		Side:       decision.Side,
		SizeUSD:    verdict.SizeUSD,
		LimitPrice: decision.EntryPrice,
		Deadline:   deadline,
		CreatedAt:  now,
	}
}

// Execute runs the order state machine. The returned error is non-nil only
// when a real fill could not be persisted — the caller must stop submitting
// new orders on it. Every other failure is reported inside the TradeOutcome.
//
// The caller must hold a ledger reservation for order.MarketID; Execute
// either converts it into an open position or releases it.
func (m *Manager) Execute(ctx context.Context, order domain.Order, question string) (domain.TradeOutcome, error) {
	balance, err := m.venue.GetBalance(ctx)
	if err != nil {
		m.book.Release(order.MarketID)
		return domain.TradeOutcome{
			Status:     domain.OutcomeFailed,
			FailReason: domain.FailVenueRejected,
			Err:        fmt.Errorf("executor.Execute: get balance: %w", err),
		}, nil
	}
	if balance < order.SizeUSD {
		slog.Warn("executor: insufficient balance",
			"market", order.MarketID,
			"balance_usd", balance,
			"size_usd", order.SizeUSD,
		)
		m.book.Release(order.MarketID)
		return domain.TradeOutcome{
			Status:     domain.OutcomeFailed,
			FailReason: domain.FailInsufficientBalance,
		}, nil
	}

	var (
		submitted bool // the order may have reached the venue on a prior attempt
		lastErr   error
		attempts  int
	)

	for attempt := 1; attempt <= m.cfg.MaxAttempts; attempt++ {
		attempts = attempt

		if err := ctx.Err(); err != nil {
			m.book.Release(order.MarketID)
			return domain.TradeOutcome{
				Status:     domain.OutcomeFailed,
				Attempts:   attempts,
				FailReason: domain.FailDeadlineExceeded,
				Err:        err,
			}, nil
		}
		// A failed attempt may still have executed on the venue. Verify the
		// ClientRef before resubmitting so a retry never duplicates a fill,
		// and before the deadline guard so a real fill is never dropped.
		if submitted {
			status, statusErr := m.venue.GetOrderStatus(ctx, order.ClientRef)
			if statusErr == nil && status.FilledUSD > 0 {
				slog.Info("executor: prior attempt already filled",
					"market", order.MarketID,
					"client_ref", order.ClientRef,
					"filled_usd", status.FilledUSD,
				)
				return m.settle(ctx, order, question, status.FilledUSD, status.AvgPrice, status.VenueOrderID, attempts)
			}
		}

		if !m.clock.Now().Before(order.Deadline) {
			slog.Warn("executor: deadline exceeded before attempt",
				"market", order.MarketID,
				"attempt", attempt,
				"deadline", order.Deadline,
			)
			m.book.Release(order.MarketID)
			return domain.TradeOutcome{
				Status:     domain.OutcomeFailed,
				Attempts:   attempts,
				FailReason: domain.FailDeadlineExceeded,
			}, nil
		}

		res, err := m.venue.SubmitOrder(ctx, order)
		if err == nil {
			return m.settle(ctx, order, question, res.FilledUSD, res.AvgPrice, res.VenueOrderID, attempts)
		}

		submitted = true
		lastErr = err
		if !domain.IsTransient(err) {
			slog.Error("executor: permanent venue error",
				"market", order.MarketID,
				"attempt", attempt,
				"error", err,
			)
			m.book.Release(order.MarketID)
			return domain.TradeOutcome{
				Status:     domain.OutcomeFailed,
				Attempts:   attempts,
				FailReason: domain.FailVenueRejected,
				Err:        err,
			}, nil
		}

		if attempt < m.cfg.MaxAttempts {
			delay := m.backoff(attempt)
			slog.Warn("executor: transient venue error, retrying",
				"market", order.MarketID,
				"attempt", attempt,
				"delay", delay,
				"error", err,
			)
			m.clock.Sleep(ctx, delay)
		}
	}

	// The final attempt may have executed on the venue before its error
	// surfaced. Verify once more so a confirmed fill is never dropped.
	if status, statusErr := m.venue.GetOrderStatus(ctx, order.ClientRef); statusErr == nil && status.FilledUSD > 0 {
		slog.Info("executor: fill confirmed after retries exhausted",
			"market", order.MarketID,
			"client_ref", order.ClientRef,
			"filled_usd", status.FilledUSD,
		)
		return m.settle(ctx, order, question, status.FilledUSD, status.AvgPrice, status.VenueOrderID, attempts)
	}

	slog.Error("executor: retries exhausted",
		"market", order.MarketID,
		"attempts", attempts,
		"error", lastErr,
	)
	m.book.Release(order.MarketID)
	return domain.TradeOutcome{
		Status:     domain.OutcomeFailed,
		Attempts:   attempts,
		FailReason: domain.FailRetriesExhausted,
		Err:        lastErr,
	}, nil
}

// settle classifies a venue fill, persists the trade, and opens the position
// in the ledger. Zero fills release the reservation and fail the order.
func (m *Manager) settle(ctx context.Context, order domain.Order, question string, filledUSD, avgPrice float64, venueOrderID string, attempts int) (domain.TradeOutcome, error) {
	if filledUSD <= 0 {
		m.book.Release(order.MarketID)
		return domain.TradeOutcome{
			Status:       domain.OutcomeFailed,
			Attempts:     attempts,
			VenueOrderID: venueOrderID,
			FailReason:   domain.FailVenueRejected,
		}, nil
	}
	if avgPrice <= 0 {
		avgPrice = order.LimitPrice
	}

	outcome := domain.TradeOutcome{
		Status:       domain.OutcomeFilled,
		FilledUSD:    filledUSD,
		AvgPrice:     avgPrice,
		Attempts:     attempts,
		VenueOrderID: venueOrderID,
	}

	ratio := outcome.FillRatio(order.SizeUSD)
	if ratio < m.cfg.PartialFillThreshold {
		outcome.Status = domain.OutcomePartial
		m.notifier.Alert(ctx, domain.AlertEvent{
			Severity:  domain.SeverityWarning,
			Kind:      domain.AlertPartialFill,
			Timestamp: m.clock.Now().UTC(),
			MarketID:  order.MarketID,
			Message:   fmt.Sprintf("partial fill: %.2f of %.2f USD (%.0f%%)", filledUSD, order.SizeUSD, ratio*100),
			Context: map[string]string{
				"requested_usd": fmt.Sprintf("%.2f", order.SizeUSD),
				"filled_usd":    fmt.Sprintf("%.2f", filledUSD),
				"venue_order":   venueOrderID,
			},
		})
	}

	now := m.clock.Now().UTC()
	rec := domain.TradeRecord{
		Timestamp:    now,
		MarketID:     order.MarketID,
		Question:     question,
		Side:         order.Side,
		RequestedUSD: order.SizeUSD,
		FilledUSD:    filledUSD,
		Price:        avgPrice,
		Status:       outcome.Status,
		DryRun:       m.dryRun,
		VenueOrderID: venueOrderID,
	}
	if err := m.appendWithRetry(ctx, rec); err != nil {
		// The fill is real and the venue holds the position. Escalate and make
		// the caller halt new submissions; never drop the row silently.
		m.notifier.Alert(ctx, domain.AlertEvent{
			Severity:  domain.SeverityCritical,
			Kind:      domain.AlertPersistenceFatal,
			Timestamp: now,
			MarketID:  order.MarketID,
			Message:   "filled trade could not be persisted",
			Context: map[string]string{
				"filled_usd":  fmt.Sprintf("%.2f", filledUSD),
				"venue_order": venueOrderID,
				"error":       err.Error(),
			},
		})
		return outcome, fmt.Errorf("executor.settle: %s: %w", order.MarketID, err)
	}

	pos := domain.Position{
		ID:         uuid.NewString(),
		MarketID:   order.MarketID,
		Side:       order.Side,
		SizeUSD:    filledUSD,
		EntryPrice: avgPrice,
		Shares:     filledUSD / avgPrice,
		OpenedAt:   now,
		Open:       true,
	}
	if err := m.book.RecordOpen(pos); err != nil {
		return outcome, fmt.Errorf("executor.settle: %s: %w", order.MarketID, err)
	}

	slog.Info("executor: order filled",
		"market", order.MarketID,
		"side", string(order.Side),
		"filled_usd", filledUSD,
		"avg_price", avgPrice,
		"status", string(outcome.Status),
		"attempts", attempts,
		"dry_run", m.dryRun,
	)
	return outcome, nil
}

// appendWithRetry retries the durable append a few times before giving up.
// Storage errors here are not venue errors: the position already exists.
func (m *Manager) appendWithRetry(ctx context.Context, rec domain.TradeRecord) error {
	var lastErr error
	for attempt := 1; attempt <= persistAttempts; attempt++ {
		id, err := m.store.AppendTrade(ctx, rec)
		if err == nil {
			slog.Debug("executor: trade persisted", "trade_id", id, "market", rec.MarketID)
			return nil
		}
		lastErr = err
		m.clock.Sleep(ctx, persistRetryDelay)
	}
	return fmt.Errorf("append trade: %w: %v", domain.ErrPersistence, lastErr)
}

const (
	persistAttempts   = 3
	persistRetryDelay = 200 * time.Millisecond
)

// backoff doubles the base delay per attempt up to the cap, with jitter on
// the upper half so concurrent market workers stay staggered.
func (m *Manager) backoff(attempt int) time.Duration {
	d := m.cfg.BackoffBase()
	for i := 1; i < attempt; i++ {
		d *= 2
	}
	if maxDelay := m.cfg.BackoffCap(); d > maxDelay {
		d = maxDelay
	}
	half := d / 2
	return half + time.Duration(rand.Int63n(int64(half)+1))
}
