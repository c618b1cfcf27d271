// Package rod fetches JavaScript-rendered listing and detail pages with
// a Chrome browser driven by go-rod.
package rod

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/fwojciec/harvest"
	"github.com/go-rod/rod/lib/proto"
)

// Ensure Fetcher implements harvest.Fetcher at compile time.
var _ harvest.Fetcher = (*Fetcher)(nil)

// DefaultFetchTimeout bounds a single page load.
const DefaultFetchTimeout = 30 * time.Second

// Fetcher retrieves rendered HTML using a managed Chrome browser.
// Fetcher is safe for concurrent use by multiple goroutines.
type Fetcher struct {
	manager     *BrowserManager
	timeout     time.Duration
	waitIdle    time.Duration
	managerOpts []ManagerOption
	closed      atomic.Bool
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithFetchTimeout sets the per-page timeout.
// Defaults to DefaultFetchTimeout if not specified.
func WithFetchTimeout(d time.Duration) Option {
	return func(f *Fetcher) {
		f.timeout = d
	}
}

// WithBrowserOptions passes options to the underlying BrowserManager,
// e.g. WithHeadless(false) to watch a run or WithLogger to report recycles.
func WithBrowserOptions(opts ...ManagerOption) Option {
	return func(f *Fetcher) {
		f.managerOpts = append(f.managerOpts, opts...)
	}
}

// WithIdleWait makes Fetch wait until the page has made no network
// requests for d after load. Listings that render rows from XHR need it.
func WithIdleWait(d time.Duration) Option {
	return func(f *Fetcher) {
		f.waitIdle = d
	}
}

// NewFetcher launches a browser and returns a Fetcher using it.
// Close must be called when the Fetcher is no longer needed.
//
// Returns an error if Chrome/Chromium cannot be found or launched.
func NewFetcher(opts ...Option) (*Fetcher, error) {
	f := &Fetcher{timeout: DefaultFetchTimeout}
	for _, opt := range opts {
		opt(f)
	}

	manager, err := NewBrowserManager(f.managerOpts...)
	if err != nil {
		return nil, err
	}
	f.manager = manager
	return f, nil
}

// Fetch navigates to url and returns the rendered HTML.
func (f *Fetcher) Fetch(ctx context.Context, url string) (string, error) {
	if f.closed.Load() {
		return "", harvest.Errorf(harvest.EINVALID, "fetcher closed")
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	lease, err := f.manager.Acquire()
	if err != nil {
		return "", err
	}
	rendered := false
	defer func() { lease.Release(rendered) }()

	page, err := lease.Browser().Page(proto.TargetCreateTarget{})
	if err != nil {
		return "", fmt.Errorf("open page: %w", err)
	}
	defer page.Close()
	page = page.Context(ctx)

	if err := page.Navigate(url); err != nil {
		return "", f.fetchErr(ctx, url, err)
	}
	if err := page.WaitLoad(); err != nil {
		return "", f.fetchErr(ctx, url, err)
	}
	if f.waitIdle > 0 {
		page.WaitRequestIdle(f.waitIdle, nil, nil, nil)()
	}

	html, err := page.HTML()
	if err != nil {
		return "", f.fetchErr(ctx, url, err)
	}
	rendered = true
	return html, nil
}

// fetchErr prefers the context error so callers can tell a timeout or
// cancellation apart from a browser failure.
func (f *Fetcher) fetchErr(ctx context.Context, url string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("fetch %s: %w", url, ctxErr)
	}
	return fmt.Errorf("fetch %s: %w", url, err)
}

// LauncherPID returns the process ID of the browser launcher.
func (f *Fetcher) LauncherPID() int {
	return f.manager.LauncherPID()
}

// Recycles returns how many times the browser has been replaced.
func (f *Fetcher) Recycles() int {
	return f.manager.Recycles()
}

// Close releases browser resources. Close is safe to call multiple times.
func (f *Fetcher) Close() error {
	if !f.closed.CompareAndSwap(false, true) {
		return nil
	}
	return f.manager.Close()
}
