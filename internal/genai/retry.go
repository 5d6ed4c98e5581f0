// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package genai

import (
	"context"
	"log"
	"math"
	"time"
)

const (
	// DefaultMaxAttempts is the attempt count used when a caller passes 0.
	DefaultMaxAttempts = 3

	// DefaultBaseDelay is the starting backoff used when a caller passes 0.
	DefaultBaseDelay = time.Second
)

// CallWithRetry executes op up to maxAttempts times, waiting baseDelay
// before the first retry and doubling it each retry after, with no
// jitter. The last
// error is propagated unchanged after the final attempt. Each failed
// attempt is logged with its attempt number. The executor retries any
// failure uniformly; callers that can detect non-retryable errors locally
// should not route them through here.
func CallWithRetry[T any](ctx context.Context, maxAttempts int, baseDelay time.Duration, op func(context.Context) (T, error)) (T, error) {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	if baseDelay <= 0 {
		baseDelay = DefaultBaseDelay
	}

	var zero T
	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			backoff := time.Duration(math.Pow(2, float64(attempt-2))) * baseDelay
			select {
			case <-ctx.Done():
				return zero, ctx.Err()
			case <-time.After(backoff):
			}
		}

		v, err := op(ctx)
		if err == nil {
			return v, nil
		}
		lastErr = err
		log.Printf("genai: attempt %d/%d failed: %v", attempt, maxAttempts, err)
	}

	return zero, lastErr
}
