//go:build integration && !windows

package rod_test

import (
	"syscall"
	"testing"
	"time"

	"github.com/fwojciec/harvest/rod"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// alive reports whether pid exists; signal 0 only checks for the process.
func alive(pid int) bool {
	return syscall.Kill(pid, syscall.Signal(0)) == nil
}

func TestBrowserManager_Processes(t *testing.T) {
	t.Parallel()

	t.Run("close kills the launcher", func(t *testing.T) {
		t.Parallel()

		fetcher, err := rod.NewFetcher()
		require.NoError(t, err)
		pid := fetcher.LauncherPID()
		require.NotZero(t, pid)
		require.True(t, alive(pid))

		require.NoError(t, fetcher.Close())

		assert.Eventually(t, func() bool { return !alive(pid) }, 2*time.Second, 50*time.Millisecond)
	})

	t.Run("recycle kills an idle browser", func(t *testing.T) {
		t.Parallel()

		manager, err := rod.NewBrowserManager(rod.WithMaxPages(1))
		require.NoError(t, err)
		defer manager.Close()

		oldPID := manager.LauncherPID()
		first, err := manager.Acquire()
		require.NoError(t, err)
		first.Release(true)

		next, err := manager.Acquire()
		require.NoError(t, err)
		defer next.Release(false)
		require.NotEqual(t, oldPID, manager.LauncherPID())

		assert.Eventually(t, func() bool { return !alive(oldPID) }, 2*time.Second, 50*time.Millisecond)
	})
}
