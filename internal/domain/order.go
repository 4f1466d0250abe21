package domain

import "time"

// OrderState is the lifecycle of an order through the execution state machine.
type OrderState string

const (
	OrderPending   OrderState = "PENDING"
	OrderSubmitted OrderState = "SUBMITTED"
	OrderFilled    OrderState = "FILLED"
	OrderPartial   OrderState = "PARTIAL"
	OrderFailed    OrderState = "FAILED"
)

// Order is the venue-facing request built from an approved Decision.
// ClientRef is assigned locally before the first submission attempt and reused
// across retries so the venue can deduplicate resubmissions.
type Order struct {
	ClientRef  string // uuid, idempotency key
	MarketID   string
	Side       Side
	SizeUSD    float64
	LimitPrice float64
	Deadline   time.Time // market expiry; no attempt may start past this
	CreatedAt  time.Time
}

// OutcomeStatus classifies the terminal result of executing an order.
type OutcomeStatus string

const (
	OutcomeFilled  OutcomeStatus = "FILLED"
	OutcomePartial OutcomeStatus = "PARTIAL"
	OutcomeFailed  OutcomeStatus = "FAILED"
)

// TradeOutcome is the terminal result of ExecutionManager.Execute.
type TradeOutcome struct {
	Status       OutcomeStatus
	FilledUSD    float64 // notional actually filled
	AvgPrice     float64
	Attempts     int
	VenueOrderID string
	Err          error      // set when Status is OutcomeFailed
	FailReason   SkipReason // machine-readable failure class (insufficient_balance, deadline_exceeded, ...)
}

// FillRatio returns filled/requested notional, 0 when nothing was requested.
func (o TradeOutcome) FillRatio(requestedUSD float64) float64 {
	if requestedUSD <= 0 {
		return 0
	}
	return o.FilledUSD / requestedUSD
}

// Failure reasons used by the executor beyond the risk/signal skip reasons.
const (
	FailInsufficientBalance SkipReason = "insufficient_balance"
	FailDeadlineExceeded    SkipReason = "deadline_exceeded"
	FailVenueRejected       SkipReason = "venue_rejected"
	FailRetriesExhausted    SkipReason = "retries_exhausted"
)
