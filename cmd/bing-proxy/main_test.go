package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"go.uber.org/fx"

	"bing-proxy-go/internal/config"
	"bing-proxy-go/internal/metrics"
)

func TestAppOptions_GraphIsComplete(t *testing.T) {
	cli := &config.CLI{URL: "http://bing.com/", Key: "bingMapsKey"}

	var e *echo.Echo
	app := fx.New(appOptions(cli), fx.NopLogger, fx.Populate(&e))
	if err := app.Err(); err != nil {
		t.Fatalf("fx.New() error = %v", err)
	}

	// Routes are registered at construction; no listener is needed.
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", http.NoBody))
	if rec.Code != http.StatusOK {
		t.Errorf("GET /healthz status = %d, want %d", rec.Code, http.StatusOK)
	}
}

func TestAppOptions_MissingKeyNeverStarts(t *testing.T) {
	cli := &config.CLI{URL: "http://bing.com/", Port: 1}
	app := fx.New(appOptions(cli), fx.NopLogger)
	if app.Err() == nil {
		t.Fatal("expected construction error for missing key")
	}
	if err := app.Start(context.Background()); err == nil {
		_ = app.Stop(context.Background())
		t.Fatal("Start() succeeded without a Bing Maps key")
	}
}

func TestNewEcho_RateLimit(t *testing.T) {
	tests := []struct {
		name    string
		limit   config.RateLimitConfig
		want429 bool
	}{
		{"enabled", config.RateLimitConfig{Enabled: true, RequestsPerSecond: 1}, true},
		{"disabled", config.RateLimitConfig{Enabled: false, RequestsPerSecond: 1}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &config.Config{Server: config.ServerConfig{RateLimit: tt.limit}}
			logger := slog.New(slog.NewTextHandler(io.Discard, nil))

			e := newEcho(cfg, logger, metrics.New())
			e.GET("/bing", func(c echo.Context) error {
				return c.String(http.StatusOK, "ok")
			})

			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/bing", http.NoBody))
			if rec.Code != http.StatusOK {
				t.Fatalf("first request: status = %d, want %d", rec.Code, http.StatusOK)
			}

			// A burst of one at 1 rps leaves no tokens for immediate retries.
			got429 := false
			for i := 0; i < 10; i++ {
				rec = httptest.NewRecorder()
				e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/bing", http.NoBody))
				if rec.Code == http.StatusTooManyRequests {
					got429 = true
					break
				}
			}
			if got429 != tt.want429 {
				t.Errorf("got 429 = %v, want %v", got429, tt.want429)
			}
		})
	}
}

func TestNewLogHandler(t *testing.T) {
	tests := []struct {
		format string
		want   string
	}{
		{"text", "msg=hello"},
		{"TEXT", "msg=hello"},
		{"json", `"msg":"hello"`},
		{"", `"msg":"hello"`},
	}

	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			var buf bytes.Buffer
			slog.New(newLogHandler(&buf, tt.format, slog.LevelInfo)).Info("hello")
			if !strings.Contains(buf.String(), tt.want) {
				t.Errorf("output = %q, want %q", buf.String(), tt.want)
			}
		})
	}
}

func TestNewLogHandler_Level(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(newLogHandler(&buf, "text", slog.LevelWarn))
	logger.Info("dropped")
	logger.Warn("kept")

	if strings.Contains(buf.String(), "dropped") {
		t.Errorf("info record should be filtered at warn level: %q", buf.String())
	}
	if !strings.Contains(buf.String(), "kept") {
		t.Errorf("warn record missing: %q", buf.String())
	}
}
