package stream

import (
	"context"
	"log/slog"
	"time"

	"github.com/fwojciec/harvest"
)

// Compile-time interface verification.
var _ harvest.Deliverer = (*RetryDeliverer)(nil)

// DefaultRetryDelays returns the backoff delays for delivery retries: 2s, 4s.
func DefaultRetryDelays() []time.Duration {
	return []time.Duration{2 * time.Second, 4 * time.Second}
}

// RetryDeliverer retries deliveries that fail with an EUNAVAILABLE error,
// such as HTTP 502, 503 or 504 responses. Other errors and rejected items
// are returned as-is on the first attempt.
type RetryDeliverer struct {
	next   harvest.Deliverer
	delays []time.Duration
	logger *slog.Logger
}

// NewRetryDeliverer wraps next with retries. It makes len(delays)+1
// attempts at most. A nil delays slice uses DefaultRetryDelays.
func NewRetryDeliverer(next harvest.Deliverer, delays []time.Duration, logger *slog.Logger) *RetryDeliverer {
	if delays == nil {
		delays = DefaultRetryDelays()
	}
	return &RetryDeliverer{next: next, delays: delays, logger: logger}
}

// Deliver calls the wrapped deliverer, retrying unavailable errors.
func (d *RetryDeliverer) Deliver(ctx context.Context, item *harvest.Item) (harvest.Outcome, error) {
	maxAttempts := len(d.delays) + 1

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		out, err := d.next.Deliver(ctx, item)
		if err == nil {
			return out, nil
		}
		lastErr = err

		// Client errors and the last attempt are final.
		if harvest.ErrorCode(err) != harvest.EUNAVAILABLE || attempt >= maxAttempts-1 {
			break
		}

		if d.logger != nil {
			d.logger.Debug("delivery retry", "id", item.ID, "attempt", attempt+2, "err", err)
		}

		select {
		case <-ctx.Done():
			return harvest.Outcome{}, ctx.Err()
		case <-time.After(d.delays[attempt]):
		}
	}

	return harvest.Outcome{}, lastErr
}
