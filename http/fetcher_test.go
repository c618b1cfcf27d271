package http_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/fwojciec/harvest"
	harvesthttp "github.com/fwojciec/harvest/http"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetcher_Fetch(t *testing.T) {
	t.Parallel()

	t.Run("returns HTML body from server", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/html")
			_, _ = w.Write([]byte("<html><body>Hello World</body></html>"))
		}))
		defer server.Close()

		fetcher := harvesthttp.NewFetcher()
		defer fetcher.Close()

		html, err := fetcher.Fetch(context.Background(), server.URL)
		require.NoError(t, err)
		assert.Equal(t, "<html><body>Hello World</body></html>", html)
	})

	t.Run("sends browser-like headers", func(t *testing.T) {
		t.Parallel()

		var ua, accept string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ua = r.Header.Get("User-Agent")
			accept = r.Header.Get("Accept")
			_, _ = w.Write([]byte("ok"))
		}))
		defer server.Close()

		fetcher := harvesthttp.NewFetcher(harvesthttp.WithUserAgent("harvest-test"))

		_, err := fetcher.Fetch(context.Background(), server.URL)
		require.NoError(t, err)
		assert.Equal(t, "harvest-test", ua)
		assert.Contains(t, accept, "text/html")
	})

	t.Run("decodes declared charset to UTF-8", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/html; charset=iso-8859-1")
			_, _ = w.Write([]byte("<p>caf\xe9</p>"))
		}))
		defer server.Close()

		html, err := harvesthttp.NewFetcher().Fetch(context.Background(), server.URL)
		require.NoError(t, err)
		assert.Equal(t, "<p>café</p>", html)
	})

	t.Run("rejects pages over the size cap", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/html")
			_, _ = w.Write([]byte("<html><body>" + strings.Repeat("x", 64) + "</body></html>"))
		}))
		defer server.Close()

		_, err := harvesthttp.NewFetcher(harvesthttp.WithMaxPageSize(32)).Fetch(context.Background(), server.URL)

		assert.Equal(t, harvest.EINVALID, harvest.ErrorCode(err))
	})

	t.Run("respects custom timeout option", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			time.Sleep(100 * time.Millisecond)
			_, _ = w.Write([]byte("response"))
		}))
		defer server.Close()

		// Use a very short timeout that will expire before server responds
		fetcher := harvesthttp.NewFetcher(harvesthttp.WithTimeout(10 * time.Millisecond))
		defer fetcher.Close()

		_, err := fetcher.Fetch(context.Background(), server.URL)
		require.Error(t, err)
	})

	t.Run("respects context cancellation", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("response"))
		}))
		defer server.Close()

		ctx, cancel := context.WithCancel(context.Background())
		cancel() // Cancel immediately

		_, err := harvesthttp.NewFetcher().Fetch(ctx, server.URL)
		require.Error(t, err)
	})

	t.Run("maps status codes to error codes", func(t *testing.T) {
		t.Parallel()

		cases := map[int]string{
			http.StatusNotFound:           harvest.ENOTFOUND,
			http.StatusServiceUnavailable: harvest.EUNAVAILABLE,
			http.StatusTooManyRequests:    harvest.EUNAVAILABLE,
			http.StatusForbidden:          harvest.EINTERNAL,
		}
		for status, code := range cases {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(status)
			}))

			_, err := harvesthttp.NewFetcher().Fetch(context.Background(), server.URL)
			server.Close()

			require.Error(t, err)
			assert.Equal(t, code, harvest.ErrorCode(err), "status %d", status)
		}
	})
}
