package crawl

import (
	"context"
	"strings"
	"sync"

	"github.com/fwojciec/harvest"
	"golang.org/x/time/rate"
)

var _ harvest.DomainLimiter = (*DomainLimiter)(nil)

// DomainLimiter paces requests per site with one token bucket per host.
// Hosts are compared case-insensitively and without a "www." prefix, so
// www.cars.example.com and cars.example.com share a bucket.
type DomainLimiter struct {
	rps   float64
	burst int

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// LimiterOption configures a DomainLimiter.
type LimiterOption func(*DomainLimiter)

// WithBurst lets a host take n requests back to back before pacing starts.
// Defaults to 1.
func WithBurst(n int) LimiterOption {
	return func(d *DomainLimiter) {
		d.burst = n
	}
}

// NewDomainLimiter returns a DomainLimiter allowing rps requests per second
// per site. A non-positive rps disables pacing.
func NewDomainLimiter(rps float64, opts ...LimiterOption) *DomainLimiter {
	d := &DomainLimiter{
		rps:      rps,
		burst:    1,
		limiters: make(map[string]*rate.Limiter),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.burst < 1 {
		d.burst = 1
	}
	return d
}

// Wait blocks until host may be requested again, or ctx ends.
func (d *DomainLimiter) Wait(ctx context.Context, host string) error {
	if d.rps <= 0 {
		return ctx.Err()
	}
	return d.limiter(siteKey(host)).Wait(ctx)
}

func (d *DomainLimiter) limiter(key string) *rate.Limiter {
	d.mu.Lock()
	defer d.mu.Unlock()
	l, ok := d.limiters[key]
	if !ok {
		l = rate.NewLimiter(rate.Limit(d.rps), d.burst)
		d.limiters[key] = l
	}
	return l
}

func siteKey(host string) string {
	return strings.TrimPrefix(strings.ToLower(host), "www.")
}
