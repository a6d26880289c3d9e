package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/alejandrodnm/lotbot/internal/domain"
	"golang.org/x/time/rate"
)

const (
	// El servicio de scraping comparte máquina con el navegador headless:
	// no se le piden más de 5 req/s.
	httpRatePerSec = 5

	maxRetries    = 3
	baseRetryWait = 500 * time.Millisecond
)

// Endpoints del servicio colaborador, relativos a la base URL.
const (
	SnapshotsPath       = "/snapshots"
	FinalPricesPath     = "/final-prices"
	ClassificationsPath = "/classifications"
	ValuationsPath      = "/valuations"
	AckPath             = "/ack"
)

// HTTP implementa ports.Feed contra un servicio que expone los mismos arrays
// JSON que el directorio de drop. El id de ciclo viaja como ?cycle=; el servicio
// reentrega lo que haya dado a un ciclo hasta recibir POST /ack?cycle= de ese ciclo.
type HTTP struct {
	http    *http.Client
	base    string
	limiter *rate.Limiter
}

// NewHTTP crea el feed HTTP con rate limiting y retries.
func NewHTTP(base string) *HTTP {
	return &HTTP{
		http:    &http.Client{Timeout: 10 * time.Second},
		base:    strings.TrimRight(base, "/"),
		limiter: rate.NewLimiter(httpRatePerSec, 2),
	}
}

// Pull pide los cuatro recursos. Un 404 se trata como "nada pendiente".
func (h *HTTP) Pull(ctx context.Context, cycleID string) (domain.FeedBatch, error) {
	var b domain.FeedBatch
	if err := h.get(ctx, SnapshotsPath, cycleID, &b.Snapshots); err != nil {
		return b, fmt.Errorf("feed.HTTP.Pull: snapshots: %w", err)
	}
	if err := h.get(ctx, FinalPricesPath, cycleID, &b.FinalPrices); err != nil {
		return b, fmt.Errorf("feed.HTTP.Pull: final prices: %w", err)
	}
	if err := h.get(ctx, ClassificationsPath, cycleID, &b.Classifications); err != nil {
		return b, fmt.Errorf("feed.HTTP.Pull: classifications: %w", err)
	}
	if err := h.get(ctx, ValuationsPath, cycleID, &b.Valuations); err != nil {
		return b, fmt.Errorf("feed.HTTP.Pull: valuations: %w", err)
	}
	return b, nil
}

// Ack confirma al servicio que lo entregado a cycleID quedó persistido.
func (h *HTTP) Ack(ctx context.Context, cycleID string) error {
	if err := h.do(ctx, http.MethodPost, AckPath, cycleID, nil); err != nil {
		return fmt.Errorf("feed.HTTP.Ack: %w", err)
	}
	return nil
}

func (h *HTTP) get(ctx context.Context, path, cycleID string, out any) error {
	return h.do(ctx, http.MethodGet, path, cycleID, out)
}

// do hace el request con rate limiting y retries. Con out nil descarta el body.
func (h *HTTP) do(ctx context.Context, method, path, cycleID string, out any) error {
	u := h.base + path + "?cycle=" + url.QueryEscape(cycleID)

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err := h.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, method, u, nil)
		if err != nil {
			return err
		}
		req.Header.Set("Accept", "application/json")

		resp, err := h.http.Do(req)
		if err != nil {
			if attempt == maxRetries {
				return fmt.Errorf("request failed after %d retries: %w", maxRetries, err)
			}
			sleep(ctx, attempt)
			continue
		}

		switch {
		case resp.StatusCode == http.StatusNotFound:
			resp.Body.Close()
			return nil
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			resp.Body.Close()
			slog.Warn("feed service unavailable, retrying", "path", path, "status", resp.StatusCode, "attempt", attempt+1)
			if attempt == maxRetries {
				return fmt.Errorf("status %d after %d retries", resp.StatusCode, maxRetries)
			}
			sleep(ctx, attempt)
			continue
		case resp.StatusCode >= 400:
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			resp.Body.Close()
			return fmt.Errorf("client error %d: %s", resp.StatusCode, string(body))
		}

		if out == nil {
			_, _ = io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			return nil
		}
		err = json.NewDecoder(resp.Body).Decode(out)
		resp.Body.Close()
		if err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		return nil
	}
	return fmt.Errorf("exhausted %d retries", maxRetries)
}

// sleep espera con backoff exponencial, respetando el contexto.
func sleep(ctx context.Context, attempt int) {
	wait := time.Duration(math.Pow(2, float64(attempt))) * baseRetryWait
	select {
	case <-time.After(wait):
	case <-ctx.Done():
	}
}
