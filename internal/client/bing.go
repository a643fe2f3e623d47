// Package client provides the upstream HTTP client for the Bing Maps imagery metadata API.
package client

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"bing-proxy-go/internal/config"
	"bing-proxy-go/internal/metrics"
	"bing-proxy-go/internal/model"
)

// errorBodyLimit caps how much of a non-2xx upstream body is drained before closing.
const errorBodyLimit = 4096

// Fetcher opens the single upstream connection for a request.
// Implementations must return a response whose Body the caller closes.
type Fetcher interface {
	Fetch(ctx context.Context, target string) (*model.UpstreamResponse, error)
}

// UpstreamStatusError is returned when Bing Maps answers with a non-2xx status.
type UpstreamStatusError struct {
	StatusCode int
}

func (e *UpstreamStatusError) Error() string {
	return fmt.Sprintf("upstream returned status %d", e.StatusCode)
}

// BingClient sends GET requests to the Bing Maps API.
type BingClient struct {
	httpClient *http.Client
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// NewBingClient creates a BingClient with connection pooling.
// The metrics parameter is optional; pass nil to disable upstream metrics recording.
func NewBingClient(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) *BingClient {
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        cfg.Upstream.IdleConnections,
		MaxIdleConnsPerHost: cfg.Upstream.IdleConnections,
		IdleConnTimeout:     90 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
	}

	return &BingClient{
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   time.Duration(cfg.Upstream.TimeoutSeconds) * time.Second,
		},
		logger:  logger.With("component", "bing_client"),
		metrics: m,
	}
}

// Fetch performs one GET against target. No retry is attempted.
// The provided context controls the lifetime of the upstream request.
func (c *BingClient) Fetch(ctx context.Context, target string) (*model.UpstreamResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("build upstream request: %w", err)
	}

	c.logger.Debug("upstream request", "path", req.URL.Path)

	start := time.Now()
	resp, err := c.httpClient.Do(req) //nolint:bodyclose // body ownership transfers to caller via UpstreamResponse
	duration := time.Since(start).Seconds()

	if err != nil {
		c.observe("transport_error", duration, 0)
		return nil, fmt.Errorf("upstream request: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.observe("status_error", duration, resp.StatusCode)
		// Drain a little so the connection can be reused.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, errorBodyLimit))
		_ = resp.Body.Close()
		return nil, &UpstreamStatusError{StatusCode: resp.StatusCode}
	}

	c.observe("ok", duration, resp.StatusCode)

	return &model.UpstreamResponse{
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        resp.Body,
	}, nil
}

func (c *BingClient) observe(outcome string, duration float64, status int) {
	if c.metrics == nil {
		return
	}
	c.metrics.UpstreamDuration.WithLabelValues(outcome).Observe(duration)
	if status != 0 {
		c.metrics.UpstreamResponses.WithLabelValues(strconv.Itoa(status)).Inc()
	}
}
