package crawl

import (
	"context"
	"log/slog"
	"time"

	"github.com/fwojciec/harvest"
)

// DefaultRetryDelays returns the backoff delays for listing fetch retries: 2s, 4s.
func DefaultRetryDelays() []time.Duration {
	return []time.Duration{2 * time.Second, 4 * time.Second}
}

// WithRetry calls fn up to len(delays)+1 times, waiting delays[i] after the
// i-th failure. It returns the last error if every attempt fails.
// ENOTFOUND and EINVALID errors are returned without retrying.
func WithRetry[T any](ctx context.Context, logger *slog.Logger, what string, delays []time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	maxAttempts := len(delays) + 1 // 1 initial + N retries

	var zero T
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		v, err := fn(ctx)
		if err == nil {
			return v, nil
		}
		lastErr = err

		if permanent(err) {
			break
		}
		// Don't retry after the last attempt
		if attempt >= maxAttempts-1 {
			break
		}

		// Check context before sleeping
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}

		if logger != nil {
			logger.Warn("retry", "what", what, "attempt", attempt+2, "err", err)
		}

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(delays[attempt]):
		}
	}

	return zero, lastErr
}

func permanent(err error) bool {
	switch harvest.ErrorCode(err) {
	case harvest.ENOTFOUND, harvest.EINVALID:
		return true
	}
	return false
}
