package polymarket

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/alejandrodnm/crowdbot/internal/domain"
)

const (
	defaultCLOBBase  = "https://clob.polymarket.com"
	defaultGammaBase = "https://gamma-api.polymarket.com"

	// Rate limits al 60% de los límites documentados de la API.
	// Gamma /markets: 300/10s → 180/10s → 18/s
	gammaRatePerSec = 18
	// CLOB general: 9000/10s → 5400/10s → 540/s
	clobRatePerSec = 540

	maxGetRetries = 3
	baseRetryWait = 500 * time.Millisecond
)

// Credentials son las credenciales L2 del CLOB (API key pre-derivada).
// Se cargan desde el entorno, nunca desde YAML.
type Credentials struct {
	Address    string
	APIKey     string
	Secret     string
	Passphrase string
}

// Configured devuelve true si hay credenciales completas para operar.
func (c Credentials) Configured() bool {
	return c.Address != "" && c.APIKey != "" && c.Secret != "" && c.Passphrase != ""
}

// Client es el HTTP client de Polymarket con rate limiting por API.
// Implementa ports.VenueClient y ports.MarketDiscoverer.
//
// Los GET (datos de mercado) reintentan internamente: son idempotentes y
// baratos. POST /order hace UN solo intento y clasifica el error — el retry
// de órdenes lo gobierna el executor, que verifica el ClientRef antes de
// reenviar.
type Client struct {
	http         *http.Client
	clobBase     string
	gammaBase    string
	clobLimiter  *rate.Limiter
	gammaLimiter *rate.Limiter
	creds        Credentials
	timeNow      func() time.Time

	mu     sync.Mutex
	tokens map[string]marketTokens // slug → token IDs, poblado por GetSnapshot
}

// NewClient crea un Client. Base URLs vacíos usan producción.
func NewClient(clobBase, gammaBase string, creds Credentials, timeout time.Duration) *Client {
	if clobBase == "" {
		clobBase = defaultCLOBBase
	}
	if gammaBase == "" {
		gammaBase = defaultGammaBase
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		http:         &http.Client{Timeout: timeout},
		clobBase:     clobBase,
		gammaBase:    gammaBase,
		clobLimiter:  rate.NewLimiter(clobRatePerSec, 50),
		gammaLimiter: rate.NewLimiter(gammaRatePerSec, 10),
		creds:        creds,
		timeNow:      time.Now,
		tokens:       make(map[string]marketTokens),
	}
}

// get hace un GET con rate limiting y retries con backoff y jitter.
func (c *Client) get(ctx context.Context, limiter *rate.Limiter, url string, out any) error {
	var lastErr error
	for attempt := 0; attempt <= maxGetRetries; attempt++ {
		if err := limiter.Wait(ctx); err != nil {
			return domain.NewTransientVenueError("get", fmt.Errorf("rate limiter: %w", err))
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return domain.NewPermanentVenueError("get", err)
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			lastErr = err
			c.sleep(ctx, attempt)
			continue
		}

		switch {
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			body, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			lastErr = fmt.Errorf("status %d: %s", resp.StatusCode, body)
			slog.Warn("polymarket: retryable status", "status", resp.StatusCode, "attempt", attempt+1)
			c.sleep(ctx, attempt)
			continue

		case resp.StatusCode >= 400:
			body, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			return domain.NewPermanentVenueError("get",
				fmt.Errorf("status %d: %s", resp.StatusCode, body))
		}

		err = json.NewDecoder(resp.Body).Decode(out)
		resp.Body.Close()
		if err != nil {
			return domain.NewPermanentVenueError("get", fmt.Errorf("decode: %w", err))
		}
		return nil
	}
	return domain.NewTransientVenueError("get",
		fmt.Errorf("exhausted %d retries: %w", maxGetRetries, lastErr))
}

// doL2 ejecuta una llamada autenticada al CLOB. Un solo intento: los headers
// HMAC llevan timestamp y el caller decide si reintenta.
func (c *Client) doL2(ctx context.Context, op, method, path string, reqBody, out any) error {
	var bodyStr string
	if reqBody != nil {
		b, err := json.Marshal(reqBody)
		if err != nil {
			return domain.NewPermanentVenueError(op, fmt.Errorf("marshal: %w", err))
		}
		bodyStr = string(b)
	}

	if err := c.clobLimiter.Wait(ctx); err != nil {
		return domain.NewTransientVenueError(op, fmt.Errorf("rate limiter: %w", err))
	}

	headers, err := c.l2Headers(method, path, bodyStr)
	if err != nil {
		return domain.NewPermanentVenueError(op, err)
	}

	var bodyReader io.Reader
	if bodyStr != "" {
		bodyReader = bytes.NewReader([]byte(bodyStr))
	}
	req, err := http.NewRequestWithContext(ctx, method, c.clobBase+path, bodyReader)
	if err != nil {
		return domain.NewPermanentVenueError(op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return domain.NewTransientVenueError(op, err)
	}
	respBody, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return domain.NewTransientVenueError(op,
			fmt.Errorf("status %d: %s", resp.StatusCode, respBody))
	case resp.StatusCode >= 400:
		return domain.NewPermanentVenueError(op,
			fmt.Errorf("status %d: %s", resp.StatusCode, respBody))
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return domain.NewPermanentVenueError(op, fmt.Errorf("decode: %w", err))
		}
	}
	return nil
}

// l2Headers firma la request con HMAC-SHA256 sobre timestamp+method+path+body.
func (c *Client) l2Headers(method, path, body string) (map[string]string, error) {
	if !c.creds.Configured() {
		return nil, fmt.Errorf("missing CLOB API credentials")
	}

	ts := strconv.FormatInt(c.timeNow().Unix(), 10)
	msg := ts + strings.ToUpper(method) + path + body

	secret, err := base64.URLEncoding.DecodeString(c.creds.Secret)
	if err != nil {
		return nil, fmt.Errorf("decode secret: %w", err)
	}

	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(msg))
	sig := base64.URLEncoding.EncodeToString(mac.Sum(nil))

	return map[string]string{
		"POLY_ADDRESS":    c.creds.Address,
		"POLY_SIGNATURE":  sig,
		"POLY_TIMESTAMP":  ts,
		"POLY_API_KEY":    c.creds.APIKey,
		"POLY_PASSPHRASE": c.creds.Passphrase,
	}, nil
}

// sleep espera con backoff exponencial y jitter, respetando el contexto.
func (c *Client) sleep(ctx context.Context, attempt int) {
	wait := baseRetryWait << attempt
	wait += time.Duration(rand.Int63n(int64(baseRetryWait)))
	select {
	case <-time.After(wait):
	case <-ctx.Done():
	}
}
