package ports

import (
	"context"

	"github.com/alejandrodnm/crowdbot/internal/domain"
)

// TradeStore is the durable record of trades and the snapshots that produced
// them. Appends must be durable before returning — a crash right after an
// order fill must not lose the trade row while the position is live at the
// venue. Implementations must tolerate concurrent appends from market workers.
type TradeStore interface {
	// AppendTrade persists a trade record and returns its row ID.
	AppendTrade(ctx context.Context, rec domain.TradeRecord) (int64, error)

	// CloseTrade sets the realized pnl and exit on the trade row for marketID's
	// open trade.
	CloseTrade(ctx context.Context, marketID string, exitPrice, pnl float64) error

	// AppendSnapshot persists the market snapshot used in a decision.
	AppendSnapshot(ctx context.Context, snap domain.MarketSnapshot) error

	// OpenPositions returns positions recorded as open, for the ledger rebuild
	// on restart.
	OpenPositions(ctx context.Context) ([]domain.Position, error)

	// Stats aggregates the trailing `days` of trade history.
	Stats(ctx context.Context, days int) (domain.TradeStats, error)

	Close() error
}
