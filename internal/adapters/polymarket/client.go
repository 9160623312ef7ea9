package polymarket

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultCLOBBase  = "https://clob.polymarket.com"
	defaultGammaBase = "https://gamma-api.polymarket.com"

	// Rate limits al 60% de los límites reales documentados.
	// Gamma /markets: 300/10s → 180/10s → 18/s
	gammaRatePerSec = 18
	// CLOB general (time, auth, balance, orders): 9000/10s → 5400/10s → 540/s
	generalRatePerSec = 540

	maxRetries    = 3
	baseRetryWait = 500 * time.Millisecond
)

// Client es el HTTP client compartido de Polymarket con rate limiting.
// Los retries viven aquí solo para los GETs públicos (/time, /neg-risk,
// Gamma): las llamadas firmadas del pipeline de autenticación son
// single-shot y los reintentos los gobierna quien llama.
type Client struct {
	http         *http.Client
	clobBase     string
	gammaBase    string
	clobLimiter  *rate.Limiter
	gammaLimiter *rate.Limiter
}

// NewClient crea un Client con los base URLs dados.
// Si clobBase o gammaBase están vacíos, usa los URLs de producción.
func NewClient(clobBase, gammaBase string) *Client {
	if clobBase == "" {
		clobBase = defaultCLOBBase
	}
	if gammaBase == "" {
		gammaBase = defaultGammaBase
	}
	return &Client{
		http:         &http.Client{Timeout: 10 * time.Second},
		clobBase:     clobBase,
		gammaBase:    gammaBase,
		clobLimiter:  rate.NewLimiter(generalRatePerSec, 50),
		gammaLimiter: rate.NewLimiter(gammaRatePerSec, 10),
	}
}

// getJSON hace un GET público con rate limiting y retries: 429 y 5xx se
// reintentan con backoff, el resto de 4xx corta en seco. El request se
// reconstruye en cada intento.
func (c *Client) getJSON(ctx context.Context, limiter *rate.Limiter, url string, out any) error {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err := limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			if attempt == maxRetries {
				return fmt.Errorf("request failed after %d retries: %w", maxRetries, err)
			}
			lastErr = err
			c.sleep(ctx, attempt, 0)
			continue
		}

		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			// El server puede mandar Retry-After; se respeta si supera
			// nuestro backoff.
			hint := retryAfterHint(resp)
			resp.Body.Close()
			slog.Warn("rate limited by API", "attempt", attempt+1, "retry_after", hint)
			lastErr = fmt.Errorf("rate limited after %d attempts", attempt+1)
			c.sleep(ctx, attempt, hint)
			continue

		case resp.StatusCode >= 500:
			resp.Body.Close()
			if attempt == maxRetries {
				return fmt.Errorf("server error %d after %d retries", resp.StatusCode, maxRetries)
			}
			lastErr = fmt.Errorf("server error %d", resp.StatusCode)
			c.sleep(ctx, attempt, 0)
			continue

		case resp.StatusCode >= 400:
			body, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			return fmt.Errorf("client error %d: %s", resp.StatusCode, string(body))
		}

		err = json.NewDecoder(resp.Body).Decode(out)
		resp.Body.Close()
		if err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		return nil
	}
	return lastErr
}

// retryAfterHint lee el header Retry-After (segundos) de un 429, si viene.
func retryAfterHint(resp *http.Response) time.Duration {
	v := resp.Header.Get("Retry-After")
	if v == "" {
		return 0
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

// sleep espera el máximo entre el hint del server y el backoff exponencial,
// respetando el contexto.
func (c *Client) sleep(ctx context.Context, attempt int, hint time.Duration) {
	wait := baseRetryWait * time.Duration(1<<attempt)
	if hint > wait {
		wait = hint
	}
	select {
	case <-time.After(wait):
	case <-ctx.Done():
	}
}
