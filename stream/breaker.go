package stream

import (
	"context"
	"errors"
	"time"

	"github.com/fwojciec/harvest"
	"github.com/sony/gobreaker"
)

// Compile-time interface verification.
var _ harvest.Deliverer = (*BreakerDeliverer)(nil)

// BreakerDeliverer stops calling the destination after consecutive broken
// deliveries, failing items fast until the breaker half-opens again.
// Rejected items (Success false without an error) do not count as failures.
type BreakerDeliverer struct {
	next harvest.Deliverer
	cb   *gobreaker.CircuitBreaker
}

// NewBreakerDeliverer wraps next with a circuit breaker that opens after
// maxFailures consecutive errors and stays open for openFor.
func NewBreakerDeliverer(next harvest.Deliverer, name string, maxFailures uint32, openFor time.Duration) *BreakerDeliverer {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     openFor,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
	})
	return &BreakerDeliverer{next: next, cb: cb}
}

// Deliver calls the wrapped deliverer unless the breaker is open.
func (d *BreakerDeliverer) Deliver(ctx context.Context, item *harvest.Item) (harvest.Outcome, error) {
	res, err := d.cb.Execute(func() (interface{}, error) {
		out, err := d.next.Deliver(ctx, item)
		if err != nil {
			return nil, err
		}
		return out, nil
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return harvest.Outcome{}, harvest.Errorf(harvest.EUNAVAILABLE, "circuit %s open", d.cb.Name())
	}
	if err != nil {
		return harvest.Outcome{}, err
	}
	out, _ := res.(harvest.Outcome)
	return out, nil
}

// State returns the breaker state name: "closed", "half-open" or "open".
func (d *BreakerDeliverer) State() string {
	return d.cb.State().String()
}
