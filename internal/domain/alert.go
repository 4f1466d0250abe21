package domain

import "time"

// AlertSeverity ranks operator attention level.
type AlertSeverity string

const (
	SeverityInfo     AlertSeverity = "INFO"
	SeverityWarning  AlertSeverity = "WARNING"
	SeverityCritical AlertSeverity = "CRITICAL"
)

// AlertKind classifies what triggered the alert.
type AlertKind string

const (
	AlertLossLimit        AlertKind = "loss_limit"
	AlertLossStreak       AlertKind = "loss_streak"
	AlertPartialFill      AlertKind = "partial_fill"
	AlertAnomaly          AlertKind = "anomaly"
	AlertPersistenceFatal AlertKind = "persistence_fatal"
	AlertVenueFailure     AlertKind = "venue_failure"
)

// AlertEvent is emitted by the monitor or the executor and consumed by the
// notification boundary. Context carries free-form key detail for the operator.
type AlertEvent struct {
	Severity  AlertSeverity
	Kind      AlertKind
	Timestamp time.Time
	MarketID  string
	Message   string
	Context   map[string]string
}
