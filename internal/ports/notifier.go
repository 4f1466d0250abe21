package ports

import (
	"context"

	"github.com/alejandrodnm/crowdbot/internal/domain"
)

// Notifier delivers alerts and cycle summaries to the operator boundary
// (console, Telegram). Implementations must not block the trading cycle on
// delivery failures — log and move on.
type Notifier interface {
	// Alert delivers an AlertEvent.
	Alert(ctx context.Context, event domain.AlertEvent) error

	// CycleReport delivers the per-cycle decision/outcome record.
	CycleReport(ctx context.Context, report domain.CycleReport) error
}
