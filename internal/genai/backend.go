// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package genai wraps the hosted generation API behind a small backend
// interface and layers two recovery mechanisms over it: bounded
// exponential-backoff retry for transport failures and schema relaxation
// for malformed structured responses.
package genai

import "context"

// Request carries one generation call. When Schema is non-nil the backend
// constrains the model to emit a structure matching it; otherwise the raw
// completion text is returned.
type Request struct {
	System      string
	Prompt      string
	Schema      any
	SchemaName  string
	MaxTokens   int
	Temperature float64
}

// Backend abstracts the generation API so tests can supply a mock. Each
// implementation handles a single request and returns the raw response
// text (JSON for structured requests).
type Backend interface {
	Complete(ctx context.Context, req Request) (string, error)
}
