// Package probe performs readiness checks against running services.
package probe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// ErrNoEndpoint is returned when a service has no probe endpoint configured.
var ErrNoEndpoint = errors.New("no probe endpoint configured for service")

// Prober checks whether a service is currently healthy. A nil error means
// one probe success.
type Prober interface {
	Probe(ctx context.Context, service string) error
}

// =============================================================================
// HTTP Prober
// =============================================================================

// HTTPProber probes services over HTTP: a GET against the service's
// configured endpoint, healthy on any 2xx response. The backend exposes
// GET /version for exactly this purpose.
type HTTPProber struct {
	endpoints map[string]string
	client    *http.Client
	logger    *slog.Logger
}

// NewHTTPProber creates a prober for the given service endpoint map.
func NewHTTPProber(endpoints map[string]string, timeout time.Duration, logger *slog.Logger) *HTTPProber {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	copied := make(map[string]string, len(endpoints))
	for k, v := range endpoints {
		copied[k] = v
	}

	return &HTTPProber{
		endpoints: copied,
		client:    &http.Client{Timeout: timeout},
		logger:    logger.With("component", "prober"),
	}
}

// Probe performs one health check for the named service.
func (p *HTTPProber) Probe(ctx context.Context, service string) error {
	url, ok := p.endpoints[service]
	if !ok || url == "" {
		return fmt.Errorf("service %s: %w", service, ErrNoEndpoint)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build probe request for %s: %w", service, err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		p.logger.Debug("probe failed", "service", service, "url", url, "error", err)
		return fmt.Errorf("probe %s: %w", service, err)
	}
	defer func() {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		p.logger.Debug("probe unhealthy", "service", service, "url", url, "status", resp.StatusCode)
		return fmt.Errorf("probe %s: unexpected status %d", service, resp.StatusCode)
	}

	return nil
}
