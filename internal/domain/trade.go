package domain

import "time"

// TradeRecord es la fila durable e inmutable que captura Decision + resultado
// de ejecución. Una por orden con fill distinto de cero (o fallo registrable).
type TradeRecord struct {
	ID           int64
	Timestamp    time.Time
	MarketID     string
	Question     string
	Side         Side
	RequestedUSD float64
	FilledUSD    float64
	Price        float64
	Status       OutcomeStatus
	DryRun       bool
	VenueOrderID string
	PnL          *float64 // nil mientras la posición sigue abierta
}

// TradeStats es el agregado de la función de estadísticas por días.
type TradeStats struct {
	Days          int
	TradeCount    int
	Wins          int
	Losses        int
	WinRate       float64 // sobre trades cerrados
	TotalPnL      float64
	TotalVolume   float64 // suma de filled USD
	MaxLossStreak int
}
