package signal

import (
	"log/slog"

	"github.com/alejandrodnm/crowdbot/config"
	"github.com/alejandrodnm/crowdbot/internal/domain"
)

// Engine convierte un MarketSnapshot en una Decision siguiendo al lado con
// mayor peso de crowd. Es puro y determinista: mismo snapshot + misma config
// producen siempre la misma Decision.
type Engine struct {
	cfg config.SignalConfig
}

// New crea un SignalEngine con la configuración dada.
func New(cfg config.SignalConfig) *Engine {
	return &Engine{cfg: cfg}
}

// Evaluate aplica, en orden: validación del snapshot, filtro de volumen,
// tolerancia de vig adaptativa por tier, y la banda de entrada de precios.
// Si todo pasa, propone el lado más fuerte con flat sizing (MaxBetUSD).
func (e *Engine) Evaluate(snap domain.MarketSnapshot) domain.Decision {
	if !snap.Valid() {
		return skip(snap.MarketID, domain.SkipInvalidSnapshot, 0)
	}

	if snap.Volume < e.cfg.MinVolume {
		slog.Debug("signal: volume below minimum",
			"market", snap.MarketID,
			"volume", snap.Volume,
			"min_volume", e.cfg.MinVolume,
		)
		return skip(snap.MarketID, domain.SkipInsufficientVolume, 0)
	}

	tolerance := e.vigToleranceFor(snap.Volume)
	if snap.Vig() > tolerance {
		slog.Debug("signal: vig above tier tolerance",
			"market", snap.MarketID,
			"vig", snap.Vig(),
			"tolerance", tolerance,
			"volume", snap.Volume,
		)
		return skip(snap.MarketID, domain.SkipVigTooHigh, tolerance)
	}

	side, price, ok := e.strongestSide(snap)
	if !ok {
		return skip(snap.MarketID, domain.SkipNoEdge, tolerance)
	}

	return domain.Decision{
		MarketID:     snap.MarketID,
		Side:         side,
		SizeUSD:      e.cfg.MaxBetUSD,
		EntryPrice:   price,
		VigTolerance: tolerance,
	}
}

// vigToleranceFor devuelve la tolerancia del tier más alto cuyo min_volume
// no supere el volumen dado. Los tiers van ordenados ascendentes por volumen
// (config.Validate lo garantiza), así que la tolerancia solo puede estrechar.
func (e *Engine) vigToleranceFor(volume float64) float64 {
	tolerance := e.cfg.VigTiers[0].MaxVig
	for _, tier := range e.cfg.VigTiers {
		if volume >= tier.MinVolume {
			tolerance = tier.MaxVig
		}
	}
	return tolerance
}

// strongestSide elige el lado con precio más alto dentro de la banda de
// entrada [MinThreshold, MaxThreshold]. En empate exacto gana PreferredSide.
func (e *Engine) strongestSide(snap domain.MarketSnapshot) (domain.Side, float64, bool) {
	type candidate struct {
		side  domain.Side
		price float64
	}

	var candidates []candidate
	if e.inBand(snap.YesPrice) {
		candidates = append(candidates, candidate{domain.SideYes, snap.YesPrice})
	}
	if e.inBand(snap.NoPrice) {
		candidates = append(candidates, candidate{domain.SideNo, snap.NoPrice})
	}

	switch len(candidates) {
	case 0:
		return "", 0, false
	case 1:
		return candidates[0].side, candidates[0].price, true
	}

	if candidates[0].price > candidates[1].price {
		return candidates[0].side, candidates[0].price, true
	}
	if candidates[1].price > candidates[0].price {
		return candidates[1].side, candidates[1].price, true
	}
	// Empate: el lado preferido por config.
	preferred := domain.Side(e.cfg.PreferredSide)
	return preferred, snap.PriceFor(preferred), true
}

func (e *Engine) inBand(price float64) bool {
	return price >= e.cfg.MinThreshold && price <= e.cfg.MaxThreshold
}

func skip(marketID string, reason domain.SkipReason, tolerance float64) domain.Decision {
	return domain.Decision{MarketID: marketID, Reason: reason, VigTolerance: tolerance}
}
