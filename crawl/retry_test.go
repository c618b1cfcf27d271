package crawl_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fwojciec/harvest"
	"github.com/fwojciec/harvest/crawl"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithRetry(t *testing.T) {
	t.Parallel()

	delays := []time.Duration{time.Millisecond, time.Millisecond}

	t.Run("returns first success", func(t *testing.T) {
		t.Parallel()

		calls := 0
		v, err := crawl.WithRetry(context.Background(), nil, "page 1", delays, func(ctx context.Context) (int, error) {
			calls++
			if calls < 3 {
				return 0, errors.New("timeout")
			}
			return 42, nil
		})

		require.NoError(t, err)
		assert.Equal(t, 42, v)
		assert.Equal(t, 3, calls)
	})

	t.Run("returns last error after all attempts", func(t *testing.T) {
		t.Parallel()

		calls := 0
		_, err := crawl.WithRetry(context.Background(), nil, "page 1", delays, func(ctx context.Context) (string, error) {
			calls++
			return "", errors.New("timeout")
		})

		require.EqualError(t, err, "timeout")
		assert.Equal(t, 3, calls)
	})

	t.Run("does not retry not found", func(t *testing.T) {
		t.Parallel()

		calls := 0
		_, err := crawl.WithRetry(context.Background(), nil, "page 9", delays, func(ctx context.Context) (string, error) {
			calls++
			return "", harvest.Errorf(harvest.ENOTFOUND, "HTTP 404")
		})

		assert.Equal(t, harvest.ENOTFOUND, harvest.ErrorCode(err))
		assert.Equal(t, 1, calls)
	})

	t.Run("stops waiting when context ends", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		calls := 0
		_, err := crawl.WithRetry(ctx, nil, "page 1", []time.Duration{time.Hour}, func(ctx context.Context) (string, error) {
			calls++
			cancel()
			return "", errors.New("timeout")
		})

		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, calls)
	})
}
