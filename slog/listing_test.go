package slog_test

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/fwojciec/harvest"
	"github.com/fwojciec/harvest/mock"
	harvestslog "github.com/fwojciec/harvest/slog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoggingListing_FetchPage(t *testing.T) {
	t.Parallel()

	t.Run("logs item count at info", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		inner := &mock.Listing{
			FetchPageFn: func(ctx context.Context, page int) (*harvest.ListingPage, error) {
				return &harvest.ListingPage{Items: []*harvest.Item{{ID: "1"}, {ID: "2"}}, Total: 40}, nil
			},
		}

		page, err := harvestslog.NewLoggingListing(inner, debugLogger(&buf)).FetchPage(context.Background(), 2)

		require.NoError(t, err)
		assert.Len(t, page.Items, 2)
		output := buf.String()
		assert.Contains(t, output, "level=INFO")
		assert.Contains(t, output, "page=2")
		assert.Contains(t, output, "items=2")
		assert.Contains(t, output, "total=40")
	})

	t.Run("logs failures as warnings", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		inner := &mock.Listing{
			FetchPageFn: func(ctx context.Context, page int) (*harvest.ListingPage, error) {
				return nil, errors.New("blocked")
			},
		}

		_, err := harvestslog.NewLoggingListing(inner, debugLogger(&buf)).FetchPage(context.Background(), 1)

		require.Error(t, err)
		assert.Contains(t, buf.String(), "level=WARN")
		assert.Contains(t, buf.String(), "err=blocked")
	})
}

func TestLoggingDetailFetcher_FetchDetail(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	inner := &mock.DetailFetcher{
		FetchDetailFn: func(ctx context.Context, item *harvest.Item) (*harvest.Detail, error) {
			return &harvest.Detail{Text: "four", Photos: []string{"a", "b"}}, nil
		},
	}

	_, err := harvestslog.NewLoggingDetailFetcher(inner, debugLogger(&buf)).
		FetchDetail(context.Background(), &harvest.Item{ID: "101", URL: "https://cars.example.com/car/101"})

	require.NoError(t, err)
	output := buf.String()
	assert.Contains(t, output, "id=101")
	assert.Contains(t, output, "chars=4")
	assert.Contains(t, output, "photos=2")
}
