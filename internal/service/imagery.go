// Package service builds Bing Maps imagery metadata requests and forwards them upstream.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"bing-proxy-go/internal/client"
	"bing-proxy-go/internal/config"
	"bing-proxy-go/internal/model"
)

var (
	// ErrConfiguration is returned at construction when the base URL or key is missing.
	ErrConfiguration = errors.New("imagery service misconfigured")
	// ErrMalformedTarget is returned when the computed upstream URL is not a valid absolute URL.
	ErrMalformedTarget = errors.New("malformed upstream url")
)

// Request parameter names.
const (
	ParamCulture = "culture"
	ParamMapType = "mapType"
	ParamOutput  = "output"
)

// Defaults applied when a parameter is absent or empty.
const (
	DefaultCulture = "en-US"
	DefaultMapType = "Aerial"
	DefaultOutput  = "json"
)

// ImageryService turns request parameters into one upstream fetch.
// It holds no per-request state and is safe for concurrent use.
type ImageryService struct {
	fetcher client.Fetcher
	logger  *slog.Logger
	baseURL string
	key     string
}

// NewImageryService creates an ImageryService. It fails if either required
// Bing value is empty so the server never starts serving without them.
func NewImageryService(f client.Fetcher, cfg *config.Config, logger *slog.Logger) (*ImageryService, error) {
	if cfg.Bing.URL == "" {
		return nil, fmt.Errorf("%w: base url is empty", ErrConfiguration)
	}
	if cfg.Bing.Key == "" {
		return nil, fmt.Errorf("%w: key is empty", ErrConfiguration)
	}

	baseURL := cfg.Bing.URL
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}

	return &ImageryService{
		fetcher: f,
		logger:  logger.With("component", "imagery_service"),
		baseURL: baseURL,
		key:     cfg.Bing.Key,
	}, nil
}

// ResolveParams reads the optional parameters, substituting defaults for absent or empty values.
func ResolveParams(query url.Values) model.ImageryParams {
	return model.ImageryParams{
		Culture: paramOrDefault(query, ParamCulture, DefaultCulture),
		MapType: paramOrDefault(query, ParamMapType, DefaultMapType),
		Output:  paramOrDefault(query, ParamOutput, DefaultOutput),
	}
}

func paramOrDefault(query url.Values, name, def string) string {
	if v := query.Get(name); v != "" {
		return v
	}
	return def
}

// BuildURL returns <base>/<mapType>?key=..&include=ImageryProviders&culture=..&output=..
// The parameter order is fixed. The key is written exactly as configured;
// request values are escaped, which leaves plain values such as "nl-BE" or
// "Road" unchanged.
func (s *ImageryService) BuildURL(p model.ImageryParams) (string, error) {
	var b strings.Builder
	b.WriteString(s.baseURL)
	b.WriteString(url.PathEscape(p.MapType))
	b.WriteString("?key=")
	b.WriteString(s.key)
	b.WriteString("&include=ImageryProviders")
	b.WriteString("&culture=")
	b.WriteString(url.QueryEscape(p.Culture))
	b.WriteString("&output=")
	b.WriteString(url.QueryEscape(p.Output))
	target := b.String()

	u, err := url.Parse(target)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrMalformedTarget, err)
	}
	if !u.IsAbs() || u.Host == "" {
		return "", fmt.Errorf("%w: %q has no scheme or host", ErrMalformedTarget, s.baseURL)
	}
	return target, nil
}

// Fetch builds the upstream URL for p and opens exactly one connection to it.
// The upstream is not contacted when the URL is malformed.
// The caller is responsible for closing the response body.
func (s *ImageryService) Fetch(ctx context.Context, p model.ImageryParams) (*model.UpstreamResponse, error) {
	target, err := s.BuildURL(p)
	if err != nil {
		return nil, err
	}

	s.logger.Debug("fetching imagery metadata",
		"map_type", p.MapType,
		"culture", p.Culture,
		"output", p.Output,
	)

	resp, err := s.fetcher.Fetch(ctx, target)
	if err != nil {
		return nil, fmt.Errorf("forward to upstream: %w", err)
	}
	return resp, nil
}
