package ports

import (
	"context"

	"github.com/alejandrodnm/crowdbot/internal/domain"
)

// OrderStatus is the venue's view of a submitted order, queried by client ref.
type OrderStatus struct {
	VenueOrderID string
	FilledUSD    float64
	AvgPrice     float64
	Status       string // "LIVE" | "MATCHED" | "CANCELLED" | "UNKNOWN"
}

// SubmitResult is the venue's acknowledgment of an order submission.
type SubmitResult struct {
	VenueOrderID string
	FilledUSD    float64 // immediately matched notional
	AvgPrice     float64
	Status       string
}

// VenueClient is the narrow capability surface the pipeline needs from the
// market venue. Exactly two implementations exist: polymarket.Client
// (production) and simulated.Venue (DRY_RUN). All errors carry the
// transient/permanent classification from domain.VenueError.
type VenueClient interface {
	// GetSnapshot fetches the current state of the given market.
	GetSnapshot(ctx context.Context, marketID string) (domain.MarketSnapshot, error)

	// GetBalance returns the available collateral balance in USDC.
	GetBalance(ctx context.Context) (float64, error)

	// SubmitOrder submits the order identified by order.ClientRef. Resubmitting
	// the same ClientRef must not double-execute on the venue side.
	SubmitOrder(ctx context.Context, order domain.Order) (SubmitResult, error)

	// GetOrderStatus returns the fill state for a previously submitted ClientRef.
	// Used to verify whether a retry would duplicate a confirmed fill.
	GetOrderStatus(ctx context.Context, clientRef string) (OrderStatus, error)
}

// MarketDiscoverer finds the market IDs to trade this cycle. For the 15-minute
// BTC series this resolves the current slot slug.
type MarketDiscoverer interface {
	CurrentMarkets(ctx context.Context) ([]string, error)
}
