package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"regexp"

	"github.com/labstack/echo/v4"

	"bing-proxy-go/internal/client"
	"bing-proxy-go/internal/metrics"
	"bing-proxy-go/internal/service"
)

// copyBufferSize is the fixed chunk size used to stream upstream bodies.
const copyBufferSize = 8192

// keyPattern matches the key query parameter in URLs embedded in error messages.
var keyPattern = regexp.MustCompile(`(?i)([?&]key=)[^&\s"]+`)

// ImageryHandler serves GET /bing by streaming Bing Maps imagery metadata.
type ImageryHandler struct {
	service *service.ImageryService
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewImageryHandler creates an ImageryHandler. m may be nil.
func NewImageryHandler(svc *service.ImageryService, logger *slog.Logger, m *metrics.Metrics) *ImageryHandler {
	return &ImageryHandler{
		service: svc,
		logger:  logger.With("component", "imagery_handler"),
		metrics: m,
	}
}

// Handle fetches imagery metadata for the request's culture, mapType and
// output parameters and copies the upstream content type and body verbatim.
func (h *ImageryHandler) Handle(c echo.Context) error {
	req := c.Request()
	params := service.ResolveParams(req.URL.Query())

	resp, err := h.service.Fetch(req.Context(), params)
	if err != nil {
		return h.mapError(c, err)
	}
	defer func() { _ = resp.Body.Close() }()

	// Passed through unchecked, even when empty.
	c.Response().Header().Set(echo.HeaderContentType, resp.ContentType)

	status := resp.StatusCode
	if status == 0 {
		status = http.StatusOK
	}
	c.Response().WriteHeader(status)

	// Once the status is out a failed copy cannot be turned into an error
	// response; the client gets a truncated body and we report the error.
	n, err := copyBody(c.Response(), resp.Body)
	if err != nil {
		h.recordBytes("truncated", n)
		h.logger.Error("streaming response body",
			"err", sanitizeError(err),
			"path", req.URL.Path,
			"bytes_written", n,
		)
		return fmt.Errorf("stream upstream body: %w", err)
	}
	h.recordBytes("complete", n)

	return nil
}

// copyBody streams src to dst in copyBufferSize chunks until EOF.
// src is wrapped so io.CopyBuffer cannot bypass the buffer via WriterTo.
func copyBody(dst io.Writer, src io.Reader) (int64, error) {
	buf := make([]byte, copyBufferSize)
	return io.CopyBuffer(dst, struct{ io.Reader }{src}, buf)
}

func (h *ImageryHandler) recordBytes(outcome string, n int64) {
	if h.metrics == nil {
		return
	}
	h.metrics.UpstreamBytes.WithLabelValues(outcome).Add(float64(n))
}

func (h *ImageryHandler) mapError(c echo.Context, err error) error {
	h.logger.Error("proxy error",
		"err", sanitizeError(err),
		"path", c.Request().URL.Path,
	)

	if errors.Is(err, service.ErrMalformedTarget) {
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error": "upstream url is malformed",
		})
	}

	var statusErr *client.UpstreamStatusError
	if errors.As(err, &statusErr) {
		return c.JSON(http.StatusBadGateway, map[string]string{
			"error": fmt.Sprintf("upstream returned status %d", statusErr.StatusCode),
		})
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return c.JSON(http.StatusGatewayTimeout, map[string]string{
			"error": "upstream request timed out",
		})
	}

	if errors.Is(err, context.Canceled) {
		return c.JSON(http.StatusBadGateway, map[string]string{
			"error": "client disconnected",
		})
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return c.JSON(http.StatusBadGateway, map[string]string{
			"error": "upstream host unreachable",
		})
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return c.JSON(http.StatusBadGateway, map[string]string{
			"error": "upstream connection failed",
		})
	}

	return c.JSON(http.StatusBadGateway, map[string]string{
		"error": "upstream request failed",
	})
}

// sanitizeError redacts the Bing Maps key from error messages that may contain upstream URLs.
func sanitizeError(err error) string {
	return keyPattern.ReplaceAllString(err.Error(), "${1}[REDACTED]")
}
