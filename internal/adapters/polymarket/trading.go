package polymarket

// trading.go — ejecución real contra el CLOB con credenciales L2.
// Las órdenes entran como FOK (taker): en un slot de 15 minutos no hay
// tiempo para esperar un fill pasivo.

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/alejandrodnm/crowdbot/internal/domain"
	"github.com/alejandrodnm/crowdbot/internal/ports"
)

// GetBalance devuelve el colateral USDC disponible en el CLOB.
func (c *Client) GetBalance(ctx context.Context) (float64, error) {
	path := "/balance-allowance?asset_type=COLLATERAL"

	var resp clobBalanceResponse
	if err := c.doL2(ctx, "get_balance", http.MethodGet, path, nil, &resp); err != nil {
		return 0, fmt.Errorf("polymarket.GetBalance: %w", err)
	}
	return parseMicroUSDC(resp.Balance), nil
}

// SubmitOrder envía la orden al CLOB. El client_id es order.ClientRef: el
// CLOB deduplica por esa clave, así que reenviar tras un error ambiguo no
// ejecuta dos veces.
func (c *Client) SubmitOrder(ctx context.Context, order domain.Order) (ports.SubmitResult, error) {
	tokens, ok := c.tokensFor(order.MarketID)
	if !ok || tokens.YesTokenID == "" {
		// El snapshot siempre precede a la orden; sin tokens cacheados el
		// mercado nunca pasó por GetSnapshot.
		return ports.SubmitResult{}, domain.NewPermanentVenueError("submit_order",
			fmt.Errorf("no token IDs for market %q", order.MarketID))
	}

	tokenID := tokens.YesTokenID
	if order.Side == domain.SideNo {
		tokenID = tokens.NoTokenID
	}

	shares := order.SizeUSD / order.LimitPrice
	body := clobOrderRequest{
		ClientID:  order.ClientRef,
		TokenID:   tokenID,
		Price:     fmt.Sprintf("%.3f", order.LimitPrice),
		Size:      fmt.Sprintf("%.2f", shares),
		Side:      "BUY",
		OrderType: "FOK",
		Owner:     c.creds.APIKey,
	}

	var resp clobOrderResponse
	if err := c.doL2(ctx, "submit_order", http.MethodPost, "/order", body, &resp); err != nil {
		return ports.SubmitResult{}, fmt.Errorf("polymarket.SubmitOrder: %w", err)
	}
	if !resp.Success || resp.ErrorMsg != "" {
		return ports.SubmitResult{}, domain.NewPermanentVenueError("submit_order",
			fmt.Errorf("clob rejected: %s", resp.ErrorMsg))
	}

	filledUSD := parseMicroUSDC(resp.MakingAmount)
	filledShares := parseMicroUSDC(resp.TakingAmount)
	avgPrice := order.LimitPrice
	if filledShares > 0 {
		avgPrice = filledUSD / filledShares
	}

	return ports.SubmitResult{
		VenueOrderID: resp.OrderID,
		FilledUSD:    filledUSD,
		AvgPrice:     avgPrice,
		Status:       strings.ToUpper(resp.Status),
	}, nil
}

// GetOrderStatus consulta el estado de una orden por su client_id.
func (c *Client) GetOrderStatus(ctx context.Context, clientRef string) (ports.OrderStatus, error) {
	path := "/order?client_id=" + url.QueryEscape(clientRef)

	var resp clobOrderStatusResponse
	if err := c.doL2(ctx, "get_order_status", http.MethodGet, path, nil, &resp); err != nil {
		return ports.OrderStatus{}, fmt.Errorf("polymarket.GetOrderStatus: %w", err)
	}

	// size_matched viene como decimal ("2.5"), no en micro-unidades.
	price := parseFloat(resp.Price)
	matchedShares := parseFloat(resp.SizeMatched)

	status := strings.ToUpper(resp.Status)
	switch {
	case strings.Contains(status, "MATCHED"):
		status = "MATCHED"
	case strings.Contains(status, "CANCEL"), strings.Contains(status, "INVALID"):
		status = "CANCELLED"
	case status == "":
		status = "UNKNOWN"
	}

	return ports.OrderStatus{
		VenueOrderID: resp.ID,
		FilledUSD:    matchedShares * price,
		AvgPrice:     price,
		Status:       status,
	}, nil
}
