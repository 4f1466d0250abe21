package domain

import "time"

// CycleReport is the structured per-cycle record exposed to the notification
// boundary: what the snapshot looked like, what was decided, and what happened.
type CycleReport struct {
	MarketID   string
	Question   string
	Timestamp  time.Time
	YesPrice   float64
	NoPrice    float64
	Vig        float64
	Volume     float64
	Decision   Decision
	Verdict    *Verdict      // nil when the decision was a skip
	Outcome    *TradeOutcome // nil when no order was executed
	OpenCount  int
	Exposure   float64
	DailyPnL   float64
	LossStreak int
}

// Traded reports whether this cycle produced a non-zero fill.
func (r CycleReport) Traded() bool {
	return r.Outcome != nil && r.Outcome.FilledUSD > 0
}
