package polymarket

import "encoding/json"

// DTOs raw de las APIs de Polymarket. Solo se usan dentro de este paquete;
// la conversión a domain entities vive en mapping.go.

// --- Gamma API ---

// gammaMarketsResponse es la respuesta de GET /markets de Gamma.
type gammaMarketsResponse []gammaMarket

// gammaMarket es la metadata de un mercado. Gamma devuelve varios campos
// numéricos como strings JSON (json.Number) y las listas de precios y tokens
// como JSON doblemente codificado.
type gammaMarket struct {
	ConditionID   string      `json:"conditionId"`
	Question      string      `json:"question"`
	Slug          string      `json:"slug"`
	EndDate       string      `json:"endDate"`
	EndDateISO    string      `json:"endDateIso"`
	Volume        json.Number `json:"volume"`
	OutcomePrices string      `json:"outcomePrices"` // ej. "[\"0.52\", \"0.48\"]"
	ClobTokenIDs  string      `json:"clobTokenIds"`  // misma codificación
	Active        bool        `json:"active"`
	Closed        bool        `json:"closed"`
}

// marketTokens son los token IDs del CLOB para un mercado, cacheados por slug
// para que SubmitOrder no tenga que volver a Gamma.
type marketTokens struct {
	ConditionID string
	YesTokenID  string
	NoTokenID   string
}

// --- CLOB API ---

// clobOrderRequest es el body de POST /order. client_id es la clave de
// idempotencia: reenviar el mismo client_id no ejecuta dos veces.
type clobOrderRequest struct {
	ClientID  string `json:"client_id"`
	TokenID   string `json:"token_id"`
	Price     string `json:"price"`
	Size      string `json:"size"` // shares
	Side      string `json:"side"`
	OrderType string `json:"orderType"`
	Owner     string `json:"owner"`
}

type clobOrderResponse struct {
	ErrorMsg     string `json:"errorMsg"`
	OrderID      string `json:"orderID"`
	TakingAmount string `json:"takingAmount"` // shares matched, micro-unidades
	MakingAmount string `json:"makingAmount"` // USDC gastado, micro-unidades
	Status       string `json:"status"`
	Success      bool   `json:"success"`
}

type clobOrderStatusResponse struct {
	ID           string `json:"id"`
	Status       string `json:"status"`
	Price        string `json:"price"`
	OriginalSize string `json:"original_size"`
	SizeMatched  string `json:"size_matched"`
}

type clobBalanceResponse struct {
	Balance string `json:"balance"` // micro-USDC
}
