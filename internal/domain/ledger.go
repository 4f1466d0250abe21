package domain

import "time"

// LedgerSnapshot es una copia de solo lectura del estado del ExposureLedger,
// tomada atómicamente para que el RiskGate evalúe límites sin carreras
// check-then-act contra mutaciones concurrentes.
type LedgerSnapshot struct {
	OpenPositions    int
	OpenExposureUSD  float64 // suma de tamaños de posiciones abiertas
	DailyTrades      int
	DailyTradedUSD   float64 // tamaño bruto operado hoy (todas las entradas)
	DailyRealizedUSD float64 // tamaño de posiciones ya cerradas hoy
	DailyLossUSD     float64 // pérdida realizada hoy (valor positivo)
	LossStreak       int
	Day              time.Time // día UTC al que pertenecen los contadores diarios
}

// CumulativeExposure devuelve el exposure acumulado: notional abierto más
// el tamaño ya realizado hoy. Es la magnitud acotada por max_exposure.
func (ls LedgerSnapshot) CumulativeExposure() float64 {
	return ls.OpenExposureUSD + ls.DailyRealizedUSD
}

// ExposureHeadroom devuelve el margen disponible hasta el límite de exposure.
// Nunca negativo.
func (ls LedgerSnapshot) ExposureHeadroom(maxExposureUSD float64) float64 {
	h := maxExposureUSD - ls.CumulativeExposure()
	if h < 0 {
		return 0
	}
	return h
}
