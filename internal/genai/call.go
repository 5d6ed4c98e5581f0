// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package genai

import (
	"context"

	"github.com/pdiddy/storyboard-engine/pkg/types"
)

// CallStructured issues req through the retry executor and decodes the
// response against T with schema relaxation. Only transport failures are
// retried; a malformed response body is handled locally by Decode and
// never re-sent to the provider. The error is non-nil only when transport
// retries are exhausted.
func CallStructured[T any](ctx context.Context, b Backend, cfg types.AIConfig, req Request, defaults T) (T, DecodeOutcome, error) {
	if req.Temperature == 0 {
		req.Temperature = cfg.Temperature
	}

	raw, err := CallWithRetry(ctx, cfg.MaxRetries, cfg.BaseDelay, func(ctx context.Context) (string, error) {
		if cfg.Timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
			defer cancel()
		}
		return b.Complete(ctx, req)
	})
	if err != nil {
		return defaults, DecodeDefaults, err
	}

	v, outcome := Decode(raw, defaults)
	return v, outcome, nil
}
