package polymarket

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/alejandrodnm/crowdbot/internal/domain"
)

const (
	gammaMarketsPath = "/markets"

	// Los slots de 15 minutos van alineados a los cuartos de hora EST.
	// EST es UTC-5 (offset de horas enteras), así que las fronteras de 15m
	// coinciden con las de UTC y basta floorear el unix.
	slotSeconds = 15 * 60
)

// Discoverer resuelve el slug del slot activo de la serie de 15 minutos.
// Implementa ports.MarketDiscoverer.
type Discoverer struct {
	client  *Client
	series  string // ej. "btc-updown-15m"
	timeNow func() time.Time

	mu       sync.Mutex
	lastSlot int64
}

// NewDiscoverer crea un Discoverer sobre el Client dado.
func NewDiscoverer(client *Client, series string) *Discoverer {
	return &Discoverer{client: client, series: series, timeNow: time.Now}
}

// CurrentMarkets devuelve el slug del slot activo si Gamma ya lo lista.
// Un slot recién abierto puede tardar en aparecer: se devuelve vacío y el
// siguiente scan lo reintenta.
func (d *Discoverer) CurrentMarkets(ctx context.Context) ([]string, error) {
	slot := currentSlotUnix(d.timeNow())
	slug := fmt.Sprintf("%s-%d", d.series, slot)

	d.mu.Lock()
	if d.lastSlot != slot {
		if d.lastSlot != 0 {
			slog.Info("discoverer: new 15m slot", "slug", slug)
		}
		d.lastSlot = slot
	}
	d.mu.Unlock()

	gm, found, err := d.client.fetchGammaMarket(ctx, slug)
	if err != nil {
		return nil, fmt.Errorf("polymarket.CurrentMarkets: %w", err)
	}
	if !found {
		slog.Debug("discoverer: slot not listed yet", "slug", slug)
		return nil, nil
	}
	if gm.Closed {
		return nil, nil
	}
	return []string{slug}, nil
}

// currentSlotUnix floorea el instante actual a la frontera de 15 minutos.
func currentSlotUnix(now time.Time) int64 {
	return now.Unix() / slotSeconds * slotSeconds
}

// GetSnapshot obtiene el estado actual del mercado identificado por su slug
// y cachea los token IDs del CLOB para SubmitOrder.
func (c *Client) GetSnapshot(ctx context.Context, marketID string) (domain.MarketSnapshot, error) {
	gm, found, err := c.fetchGammaMarket(ctx, marketID)
	if err != nil {
		return domain.MarketSnapshot{}, fmt.Errorf("polymarket.GetSnapshot: %w", err)
	}
	if !found {
		return domain.MarketSnapshot{}, domain.NewPermanentVenueError("get_snapshot",
			fmt.Errorf("market %q not listed", marketID))
	}

	snap, tokens, err := toSnapshot(gm, time.Now())
	if err != nil {
		return domain.MarketSnapshot{}, err
	}

	c.mu.Lock()
	c.tokens[marketID] = tokens
	c.mu.Unlock()

	return snap, nil
}

// fetchGammaMarket busca un mercado por slug en Gamma.
func (c *Client) fetchGammaMarket(ctx context.Context, slug string) (gammaMarket, bool, error) {
	u := fmt.Sprintf("%s%s?slug=%s", c.gammaBase, gammaMarketsPath, url.QueryEscape(slug))

	var resp gammaMarketsResponse
	if err := c.get(ctx, c.gammaLimiter, u, &resp); err != nil {
		return gammaMarket{}, false, err
	}
	if len(resp) == 0 {
		return gammaMarket{}, false, nil
	}
	return resp[0], true, nil
}

// tokensFor devuelve los token IDs cacheados para un mercado.
func (c *Client) tokensFor(marketID string) (marketTokens, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.tokens[marketID]
	return t, ok
}
