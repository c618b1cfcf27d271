//go:build integration

package rod_test

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/fwojciec/harvest"
	"github.com/fwojciec/harvest/rod"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBrowserManager_Acquire(t *testing.T) {
	t.Parallel()

	t.Run("recycles after max rendered pages", func(t *testing.T) {
		t.Parallel()

		var logs bytes.Buffer
		manager, err := rod.NewBrowserManager(
			rod.WithMaxPages(2),
			rod.WithLogger(slog.New(slog.NewTextHandler(&logs, nil))),
		)
		require.NoError(t, err)
		defer manager.Close()

		first, err := manager.Acquire()
		require.NoError(t, err)
		firstBrowser := first.Browser()
		first.Release(true)

		second, err := manager.Acquire()
		require.NoError(t, err)
		assert.Same(t, firstBrowser, second.Browser())
		second.Release(true)

		third, err := manager.Acquire()
		require.NoError(t, err)
		defer third.Release(true)

		assert.NotSame(t, firstBrowser, third.Browser())
		assert.Equal(t, 1, manager.Recycles())
		assert.Contains(t, logs.String(), "browser recycled")
	})

	t.Run("failed renders do not count toward recycling", func(t *testing.T) {
		t.Parallel()

		manager, err := rod.NewBrowserManager(rod.WithMaxPages(1))
		require.NoError(t, err)
		defer manager.Close()

		for range 3 {
			lease, err := manager.Acquire()
			require.NoError(t, err)
			lease.Release(false)
		}

		assert.Zero(t, manager.Recycles())
	})

	t.Run("keeps a leased browser alive across a recycle", func(t *testing.T) {
		t.Parallel()

		manager, err := rod.NewBrowserManager(rod.WithMaxPages(1))
		require.NoError(t, err)
		defer manager.Close()

		held, err := manager.Acquire()
		require.NoError(t, err)
		done, err := manager.Acquire()
		require.NoError(t, err)
		done.Release(true)

		next, err := manager.Acquire()
		require.NoError(t, err)
		defer next.Release(false)
		require.Equal(t, 1, manager.Recycles())

		_, err = held.Browser().Pages()
		require.NoError(t, err)
		held.Release(true)
	})

	t.Run("fails once closed", func(t *testing.T) {
		t.Parallel()

		manager, err := rod.NewBrowserManager()
		require.NoError(t, err)
		require.NoError(t, manager.Close())

		_, err = manager.Acquire()

		assert.Equal(t, harvest.EINVALID, harvest.ErrorCode(err))
	})
}

func TestBrowserManager_Close(t *testing.T) {
	t.Parallel()

	manager, err := rod.NewBrowserManager(rod.WithHeadless(true))
	require.NoError(t, err)

	require.NoError(t, manager.Close())
	require.NoError(t, manager.Close())
	assert.Zero(t, manager.LauncherPID())
}
