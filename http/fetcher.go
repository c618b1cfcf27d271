// Package http holds the HTTP adapters of harvest: a static page fetcher,
// the ingest API deliverer, a remote command source, and the operator
// control API.
package http

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/fwojciec/harvest"
	"golang.org/x/net/html/charset"
)

// DefaultFetchTimeout is the default timeout for page requests.
const DefaultFetchTimeout = 10 * time.Second

// DefaultMaxPageSize caps how much of a page body is read.
const DefaultMaxPageSize = 8 << 20

// DefaultUserAgent is sent with page requests unless overridden.
const DefaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0 Safari/537.36"

// Ensure Fetcher implements harvest.Fetcher at compile time.
var _ harvest.Fetcher = (*Fetcher)(nil)

// Fetcher retrieves HTML with plain HTTP requests. Unlike rod.Fetcher it
// does not execute JavaScript, so it suits server-rendered listings only.
type Fetcher struct {
	client    *http.Client
	timeout   time.Duration
	userAgent string
	maxSize   int64
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithTimeout sets the timeout for HTTP requests.
// Defaults to DefaultFetchTimeout (10s) if not specified.
func WithTimeout(d time.Duration) Option {
	return func(f *Fetcher) {
		f.timeout = d
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(f *Fetcher) {
		f.userAgent = ua
	}
}

// WithMaxPageSize sets the largest page body read, in bytes. Longer
// bodies are rejected with an EINVALID error.
// Defaults to DefaultMaxPageSize if not specified.
func WithMaxPageSize(n int64) Option {
	return func(f *Fetcher) {
		f.maxSize = n
	}
}

// NewFetcher creates a new HTTP-based Fetcher.
func NewFetcher(opts ...Option) *Fetcher {
	f := &Fetcher{
		timeout:   DefaultFetchTimeout,
		userAgent: DefaultUserAgent,
		maxSize:   DefaultMaxPageSize,
	}
	for _, opt := range opts {
		opt(f)
	}

	f.client = &http.Client{
		Timeout: f.timeout,
	}

	return f
}

// Fetch retrieves the page at url and returns its HTML decoded to UTF-8.
// Server errors (5xx, 429) return an EUNAVAILABLE error and 404 returns
// ENOTFOUND.
func (f *Fetcher) Fetch(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if err := statusError(resp.StatusCode, url); err != nil {
		return "", err
	}

	body, err := charset.NewReader(resp.Body, resp.Header.Get("Content-Type"))
	if err != nil {
		return "", fmt.Errorf("decode %s: %w", url, err)
	}
	data, err := io.ReadAll(io.LimitReader(body, f.maxSize+1))
	if err != nil {
		return "", err
	}
	if int64(len(data)) > f.maxSize {
		return "", harvest.Errorf(harvest.EINVALID, "page %s exceeds %d bytes", url, f.maxSize)
	}

	return string(data), nil
}

// Close is a no-op.
func (f *Fetcher) Close() error {
	return nil
}

// statusError maps a non-2xx status to an application error.
func statusError(code int, url string) error {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusNotFound:
		return harvest.Errorf(harvest.ENOTFOUND, "HTTP %d for %s", code, url)
	case code == http.StatusTooManyRequests || code >= 500:
		return harvest.Errorf(harvest.EUNAVAILABLE, "HTTP %d for %s", code, url)
	default:
		return fmt.Errorf("HTTP %d for %s", code, url)
	}
}
