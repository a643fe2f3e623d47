package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"bing-proxy-go/internal/config"
	"bing-proxy-go/internal/service"
)

// Version is a string type for dependency injection of the build version.
type Version string

// HealthHandler serves health and status endpoints.
type HealthHandler struct {
	cfg     *config.Config
	version Version
}

// NewHealthHandler creates a HealthHandler.
func NewHealthHandler(cfg *config.Config, v Version) *HealthHandler {
	return &HealthHandler{cfg: cfg, version: v}
}

// StatusResponse describes how /bing requests are forwarded.
type StatusResponse struct {
	Status         string `json:"status"`
	Version        string `json:"version"`
	UpstreamURL    string `json:"upstream_url"`
	KeyConfigured  bool   `json:"key_configured"`
	DefaultCulture string `json:"default_culture"`
	DefaultMapType string `json:"default_map_type"`
	DefaultOutput  string `json:"default_output"`
}

// Healthz returns a simple OK response for liveness probes.
func (h *HealthHandler) Healthz(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// Status reports the upstream and the parameter defaults applied to /bing.
// Only the presence of the key is reported.
func (h *HealthHandler) Status(c echo.Context) error {
	return c.JSON(http.StatusOK, StatusResponse{
		Status:         "ok",
		Version:        string(h.version),
		UpstreamURL:    h.cfg.Bing.URL,
		KeyConfigured:  h.cfg.Bing.Key != "",
		DefaultCulture: service.DefaultCulture,
		DefaultMapType: service.DefaultMapType,
		DefaultOutput:  service.DefaultOutput,
	})
}
