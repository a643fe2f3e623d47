package client

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"bing-proxy-go/internal/config"
	"bing-proxy-go/internal/metrics"
)

func newTestClient(m *metrics.Metrics) *BingClient {
	cfg := &config.Config{
		Upstream: config.UpstreamConfig{
			TimeoutSeconds:  10,
			IdleConnections: 10,
		},
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewBingClient(cfg, logger, m)
}

func TestBingClient_Fetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("method = %q, want GET", r.Method)
		}
		if r.URL.Path != "/Aerial" {
			t.Errorf("path = %q, want /Aerial", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		_, _ = w.Write([]byte(`{"statusCode":200}`))
	}))
	defer srv.Close()

	m := metrics.New()
	c := newTestClient(m)

	resp, err := c.Fetch(context.Background(), srv.URL+"/Aerial?key=k")
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("StatusCode = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	if resp.ContentType != "application/json; charset=utf-8" {
		t.Errorf("ContentType = %q", resp.ContentType)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(body) != `{"statusCode":200}` {
		t.Errorf("body = %q, want %q", string(body), `{"statusCode":200}`)
	}

	families, err := m.Registry.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	found := false
	for _, f := range families {
		if f.GetName() == "bing_proxy_upstream_responses_total" {
			found = true
		}
	}
	if !found {
		t.Error("expected bing_proxy_upstream_responses_total to be recorded")
	}
}

func TestBingClient_Fetch_NonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"errorDetails":["Access was denied."]}`))
	}))
	defer srv.Close()

	c := newTestClient(nil)

	_, err := c.Fetch(context.Background(), srv.URL+"/Aerial")
	var se *UpstreamStatusError
	if !errors.As(err, &se) {
		t.Fatalf("Fetch() error = %v, want *UpstreamStatusError", err)
	}
	if se.StatusCode != http.StatusUnauthorized {
		t.Errorf("StatusCode = %d, want %d", se.StatusCode, http.StatusUnauthorized)
	}
}

func TestBingClient_Fetch_Unreachable(t *testing.T) {
	c := newTestClient(nil)

	_, err := c.Fetch(context.Background(), "http://127.0.0.1:1/Aerial")
	if err == nil {
		t.Fatal("Fetch() expected error for unreachable host, got nil")
	}
}

func TestBingClient_Fetch_CanceledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	defer srv.Close()

	c := newTestClient(nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Fetch(ctx, srv.URL+"/slow")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Fetch() error = %v, want context.Canceled", err)
	}
}

func TestNewBingClient_ZeroTimeout(t *testing.T) {
	cfg := &config.Config{Upstream: config.UpstreamConfig{IdleConnections: 1}}
	c := NewBingClient(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)), nil)
	if c.httpClient.Timeout != 0 {
		t.Errorf("Timeout = %v, want 0 when timeout_seconds is unset", c.httpClient.Timeout)
	}
}
