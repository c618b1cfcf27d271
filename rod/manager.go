package rod

import (
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/fwojciec/harvest"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
)

// DefaultMaxPages is the number of pages one Chrome process renders before
// it is replaced.
const DefaultMaxPages = 75

// instance is one launched Chrome process.
type instance struct {
	browser  *rod.Browser
	launcher *launcher.Launcher
	pages    int
	leases   int
	retired  bool
}

func (i *instance) close() error {
	err := i.browser.Close()
	i.launcher.Kill()
	return err
}

// BrowserManager owns the Chrome process pages are rendered with.
//
// Chrome memory grows over a long run even when every page is closed, so
// after maxPages rendered pages the manager launches a replacement. A
// replaced process is killed only once its last lease is released: detail
// pages rendered concurrently are never cut off by a recycle.
//
// BrowserManager is safe for concurrent use.
type BrowserManager struct {
	maxPages int
	headless bool
	logger   *slog.Logger

	mu       sync.Mutex
	current  *instance
	recycles int
	closed   bool
}

// ManagerOption configures a BrowserManager.
type ManagerOption func(*BrowserManager)

// WithMaxPages sets how many pages a browser renders before it is recycled.
// Defaults to DefaultMaxPages if not specified.
func WithMaxPages(n int) ManagerOption {
	return func(bm *BrowserManager) {
		bm.maxPages = n
	}
}

// WithHeadless sets whether Chrome runs without a window. Defaults to true.
func WithHeadless(headless bool) ManagerOption {
	return func(bm *BrowserManager) {
		bm.headless = headless
	}
}

// WithLogger sets the logger for browser launches and recycles.
func WithLogger(logger *slog.Logger) ManagerOption {
	return func(bm *BrowserManager) {
		bm.logger = logger
	}
}

// NewBrowserManager launches Chrome. Close must be called when done.
func NewBrowserManager(opts ...ManagerOption) (*BrowserManager, error) {
	bm := &BrowserManager{
		maxPages: DefaultMaxPages,
		headless: true,
	}
	for _, opt := range opts {
		opt(bm)
	}
	if bm.maxPages <= 0 {
		bm.maxPages = DefaultMaxPages
	}
	if bm.logger == nil {
		bm.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	inst, err := launch(bm.headless)
	if err != nil {
		return nil, err
	}
	bm.current = inst
	bm.logger.Debug("browser launched", "pid", inst.launcher.PID(), "headless", bm.headless)
	return bm, nil
}

// Lease is a browser handed out for rendering one page.
type Lease struct {
	bm   *BrowserManager
	inst *instance
	once sync.Once
}

// Browser returns the leased browser.
func (l *Lease) Browser() *rod.Browser {
	return l.inst.browser
}

// Release returns the lease. rendered counts the page toward recycling.
// Calls after the first are ignored.
func (l *Lease) Release(rendered bool) {
	l.once.Do(func() {
		l.bm.release(l.inst, rendered)
	})
}

// Acquire leases the current browser, first replacing it if it has
// rendered maxPages pages. It returns an EINVALID error once closed.
func (bm *BrowserManager) Acquire() (*Lease, error) {
	bm.mu.Lock()
	defer bm.mu.Unlock()

	if bm.closed {
		return nil, harvest.Errorf(harvest.EINVALID, "browser closed")
	}
	if bm.current.pages >= bm.maxPages {
		bm.recycle()
	}
	bm.current.leases++
	return &Lease{bm: bm, inst: bm.current}, nil
}

func (bm *BrowserManager) release(inst *instance, rendered bool) {
	bm.mu.Lock()
	inst.leases--
	if rendered {
		inst.pages++
	}
	drained := inst.retired && inst.leases == 0
	bm.mu.Unlock()

	if drained {
		_ = inst.close()
	}
}

// recycle swaps in a fresh browser. If the launch fails the current
// browser is kept for another maxPages pages. Must be called with mu held.
func (bm *BrowserManager) recycle() {
	old := bm.current
	next, err := launch(bm.headless)
	if err != nil {
		bm.logger.Warn("browser recycle failed, keeping current browser", "pages", old.pages, "err", err)
		old.pages = 0
		return
	}

	bm.current = next
	bm.recycles++
	bm.logger.Info("browser recycled", "pages", old.pages, "recycles", bm.recycles, "pid", next.launcher.PID())

	old.retired = true
	if old.leases == 0 {
		_ = old.close()
	}
}

// Recycles returns how many times the browser has been replaced.
func (bm *BrowserManager) Recycles() int {
	bm.mu.Lock()
	defer bm.mu.Unlock()
	return bm.recycles
}

// LauncherPID returns the process ID of the current browser launcher, or 0
// once closed.
func (bm *BrowserManager) LauncherPID() int {
	bm.mu.Lock()
	defer bm.mu.Unlock()
	if bm.closed {
		return 0
	}
	return bm.current.launcher.PID()
}

// Close kills the current browser, including pages still being rendered.
// Close is safe to call multiple times.
func (bm *BrowserManager) Close() error {
	bm.mu.Lock()
	defer bm.mu.Unlock()
	if bm.closed {
		return nil
	}
	bm.closed = true
	return bm.current.close()
}

// launch starts Chrome with flags that keep background tabs rendering at
// full speed.
func launch(headless bool) (*instance, error) {
	l := launcher.New().
		Set("disable-background-timer-throttling").
		Set("disable-backgrounding-occluded-windows").
		Set("disable-renderer-backgrounding").
		Set("disable-dev-shm-usage").
		Set("disable-hang-monitor").
		Leakless(true).
		Headless(headless)

	u, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	browser := rod.New().ControlURL(u)
	if err := browser.Connect(); err != nil {
		l.Kill()
		return nil, fmt.Errorf("connect to browser: %w", err)
	}
	return &instance{browser: browser, launcher: l}, nil
}
