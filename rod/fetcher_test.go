//go:build integration

package rod_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/fwojciec/harvest"
	"github.com/fwojciec/harvest/goquery"
	"github.com/fwojciec/harvest/rod"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetcher_Fetch_ContextCancellation(t *testing.T) {
	t.Parallel()

	fetcher, err := rod.NewFetcher()
	require.NoError(t, err)
	defer fetcher.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = fetcher.Fetch(ctx, "http://127.0.0.1:1/")

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFetcher_Fetch_RendersListingRows(t *testing.T) {
	t.Parallel()

	// Rows are only present after the script runs.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<!DOCTYPE html>
<html><body>
<ul id="list">Loading...</ul>
<script>
const list = document.getElementById('list');
list.innerHTML = '';
for (const id of ['101', '102']) {
  const li = document.createElement('li');
  li.className = 'car';
  li.dataset.id = id;
  li.innerHTML = '<a href="/car/' + id + '">Car ' + id + '</a>';
  list.appendChild(li);
}
</script>
</body></html>`))
	}))
	defer srv.Close()

	fetcher, err := rod.NewFetcher()
	require.NoError(t, err)
	defer fetcher.Close()

	html, err := fetcher.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.NotContains(t, html, "Loading...")

	profile, err := goquery.ParseProfile([]byte(`
name: js-cars
item: li.car
id: {attr: data-id}
url: {selector: a, attr: href}
text: [{selector: a}]
`))
	require.NoError(t, err)

	page, err := goquery.ParsePage(html, srv.URL, profile)
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "101", page.Items[0].ID)
	assert.Equal(t, srv.URL+"/car/101", page.Items[0].URL)
}

func TestFetcher_Fetch_TimeoutTriggersOnSlowPage(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
		_, _ = w.Write([]byte(`<html><body>delayed</body></html>`))
	}))
	defer srv.Close()

	fetcher, err := rod.NewFetcher(rod.WithFetchTimeout(100 * time.Millisecond))
	require.NoError(t, err)
	defer fetcher.Close()

	_, err = fetcher.Fetch(context.Background(), srv.URL)

	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestFetcher_Close_Idempotent(t *testing.T) {
	t.Parallel()

	fetcher, err := rod.NewFetcher()
	require.NoError(t, err)

	require.NoError(t, fetcher.Close())
	require.NoError(t, fetcher.Close())
}

func TestFetcher_Fetch_AfterClose_ReturnsError(t *testing.T) {
	t.Parallel()

	fetcher, err := rod.NewFetcher()
	require.NoError(t, err)
	require.NoError(t, fetcher.Close())

	_, err = fetcher.Fetch(context.Background(), "http://example.com")

	assert.Equal(t, harvest.EINVALID, harvest.ErrorCode(err))
	assert.Contains(t, harvest.ErrorMessage(err), "closed")
}

func TestFetcher_Fetch_RecyclesBrowser(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><body><ul><li class="car">Car</li></ul></body></html>`))
	}))
	defer srv.Close()

	fetcher, err := rod.NewFetcher(rod.WithBrowserOptions(rod.WithMaxPages(2)))
	require.NoError(t, err)
	defer fetcher.Close()

	for range 3 {
		html, err := fetcher.Fetch(context.Background(), srv.URL)
		require.NoError(t, err)
		assert.Contains(t, html, `class="car"`)
	}

	assert.Equal(t, 1, fetcher.Recycles())
}
