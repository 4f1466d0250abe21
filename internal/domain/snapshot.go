package domain

import "time"

// MarketSnapshot es el estado observado de un mercado binario en el momento
// de la decisión: precios de ambos lados, volumen agregado y expiry del slot.
type MarketSnapshot struct {
	MarketID  string
	Question  string
	YesPrice  float64 // precio del lado YES (Up), en (0,1)
	NoPrice   float64 // precio del lado NO (Down), en (0,1)
	Volume    float64 // volumen total operado en USDC
	Timestamp time.Time
	ExpiresAt time.Time // fin del slot de 15 minutos
}

// Vig devuelve la desviación de la suma de precios respecto a 1.0.
// Un vig alto indica premium del book (baja liquidez o mispricing).
func (s MarketSnapshot) Vig() float64 {
	v := s.PriceSum() - 1.0
	if v < 0 {
		return -v
	}
	return v
}

// PriceSum devuelve la suma cruda de ambos precios (el "vig sum" del original).
func (s MarketSnapshot) PriceSum() float64 {
	return s.YesPrice + s.NoPrice
}

// TimeToExpiry devuelve el tiempo restante del slot respecto al timestamp
// del snapshot. Negativo si el mercado ya expiró.
func (s MarketSnapshot) TimeToExpiry() time.Duration {
	return s.ExpiresAt.Sub(s.Timestamp)
}

// Valid comprueba que el snapshot está bien formado: precios en (0,1),
// volumen no negativo y timestamps presentes.
func (s MarketSnapshot) Valid() bool {
	if s.MarketID == "" {
		return false
	}
	if s.YesPrice <= 0 || s.YesPrice >= 1 || s.NoPrice <= 0 || s.NoPrice >= 1 {
		return false
	}
	if s.Volume < 0 {
		return false
	}
	return !s.Timestamp.IsZero() && !s.ExpiresAt.IsZero()
}

// PriceFor devuelve el precio del lado dado.
func (s MarketSnapshot) PriceFor(side Side) float64 {
	if side == SideYes {
		return s.YesPrice
	}
	return s.NoPrice
}
