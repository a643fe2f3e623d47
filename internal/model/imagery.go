// Package model defines shared types for the proxy.
package model

import "io"

// ImageryParams are the per-request overrides forwarded to Bing Maps.
type ImageryParams struct {
	Culture string
	MapType string
	Output  string
}

// UpstreamResponse is the upstream reply to be streamed back once.
// ContentType is passed through as-is, including an empty value.
type UpstreamResponse struct {
	StatusCode  int
	ContentType string
	Body        io.ReadCloser
}
