package polymarket

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/alejandrodnm/crowdbot/internal/domain"
)

// toSnapshot convierte un gammaMarket en MarketSnapshot + tokens del CLOB.
// El MarketID del snapshot es el slug: es el identificador natural de la
// serie de slots de 15 minutos.
func toSnapshot(gm gammaMarket, now time.Time) (domain.MarketSnapshot, marketTokens, error) {
	prices, err := parseStringList(gm.OutcomePrices)
	if err != nil {
		return domain.MarketSnapshot{}, marketTokens{},
			fmt.Errorf("polymarket.toSnapshot: outcome prices %q: %w", gm.OutcomePrices, err)
	}
	if len(prices) < 2 {
		return domain.MarketSnapshot{}, marketTokens{},
			fmt.Errorf("polymarket.toSnapshot: %d outcome prices, need 2: %w", len(prices), domain.ErrValidation)
	}

	yes, err := strconv.ParseFloat(prices[0], 64)
	if err != nil {
		return domain.MarketSnapshot{}, marketTokens{},
			fmt.Errorf("polymarket.toSnapshot: yes price %q: %w", prices[0], err)
	}
	no, err := strconv.ParseFloat(prices[1], 64)
	if err != nil {
		return domain.MarketSnapshot{}, marketTokens{},
			fmt.Errorf("polymarket.toSnapshot: no price %q: %w", prices[1], err)
	}

	volume, _ := gm.Volume.Float64()

	tokens := marketTokens{ConditionID: gm.ConditionID}
	if ids, err := parseStringList(gm.ClobTokenIDs); err == nil && len(ids) >= 2 {
		tokens.YesTokenID = ids[0]
		tokens.NoTokenID = ids[1]
	}

	snap := domain.MarketSnapshot{
		MarketID:  gm.Slug,
		Question:  gm.Question,
		YesPrice:  yes,
		NoPrice:   no,
		Volume:    volume,
		Timestamp: now.UTC(),
		ExpiresAt: parseEndDate(gm),
	}
	return snap, tokens, nil
}

// parseStringList decodifica las listas doblemente codificadas de Gamma,
// ej. "[\"0.52\", \"0.48\"]".
func parseStringList(raw string) ([]string, error) {
	var out []string
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, err
	}
	return out, nil
}

// parseEndDate resuelve la expiración del slot: primero los campos de fecha
// de Gamma, y como fallback el unix del slug + 15 minutos.
func parseEndDate(gm gammaMarket) time.Time {
	for _, raw := range []string{gm.EndDate, gm.EndDateISO} {
		if raw == "" {
			continue
		}
		for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
			if t, err := time.Parse(layout, raw); err == nil {
				return t.UTC()
			}
		}
	}
	if slot, ok := slotFromSlug(gm.Slug); ok {
		return time.Unix(slot+slotSeconds, 0).UTC()
	}
	return time.Time{}
}

// slotFromSlug extrae el unix del inicio del slot del sufijo del slug.
func slotFromSlug(slug string) (int64, bool) {
	idx := strings.LastIndex(slug, "-")
	if idx < 0 {
		return 0, false
	}
	slot, err := strconv.ParseInt(slug[idx+1:], 10, 64)
	if err != nil {
		return 0, false
	}
	return slot, true
}

// parseMicroUSDC convierte micro-unidades string (ej. "2500000") a float.
func parseMicroUSDC(s string) float64 {
	if s == "" {
		return 0
	}
	n := new(big.Int)
	if _, ok := n.SetString(s, 10); !ok {
		return 0
	}
	f, _ := new(big.Float).SetInt(n).Float64()
	return f / 1_000_000
}

func parseFloat(s string) float64 {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}
