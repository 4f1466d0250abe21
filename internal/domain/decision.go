package domain

// Side es uno de los dos lados de un mercado binario.
type Side string

const (
	SideYes Side = "YES"
	SideNo  Side = "NO"
)

// SkipReason explica por qué el SignalEngine o el RiskGate descartaron un ciclo.
type SkipReason string

const (
	SkipNone               SkipReason = ""
	SkipInvalidSnapshot    SkipReason = "invalid_snapshot"
	SkipInsufficientVolume SkipReason = "insufficient_volume"
	SkipVigTooHigh         SkipReason = "vig_too_high"
	SkipNoEdge             SkipReason = "no_edge"

	// Razones de rechazo del RiskGate.
	RejectMaxPositions     SkipReason = "max_positions"
	RejectMaxDailyTrades   SkipReason = "max_daily_trades"
	RejectExposureLimit    SkipReason = "exposure_limit"
	RejectLossLimit        SkipReason = "loss_limit_breached"
	RejectLossStreak       SkipReason = "loss_streak_breached"
	RejectPositionTooLarge SkipReason = "position_too_large"
)

// Decision es el resultado inmutable de evaluar un snapshot: o bien una
// propuesta de compra (lado + tamaño), o bien un skip con su razón.
// Se consume exactamente una vez por el RiskGate.
type Decision struct {
	MarketID     string
	Side         Side
	SizeUSD      float64    // tamaño propuesto en USDC (flat sizing)
	EntryPrice   float64    // precio del lado elegido al decidir
	VigTolerance float64    // tolerancia de vig aplicada (según tier de volumen)
	Reason       SkipReason // distinta de SkipNone cuando es un skip
}

// IsSkip devuelve true si la decisión descartó el ciclo.
func (d Decision) IsSkip() bool {
	return d.Reason != SkipNone
}

// Verdict es la respuesta del RiskGate a una Decision.
type Verdict struct {
	Approved  bool
	SizeUSD   float64    // tamaño admitido (puede ser menor al propuesto, nunca mayor)
	Downsized bool       // true si se recortó al headroom de exposure disponible
	Reason    SkipReason // razón de rechazo cuando Approved es false
}
