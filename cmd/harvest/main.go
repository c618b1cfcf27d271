package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/fwojciec/harvest"
	"github.com/fwojciec/harvest/goquery"
	harvesthttp "github.com/fwojciec/harvest/http"
	"github.com/fwojciec/harvest/rod"
	"github.com/fwojciec/harvest/sqlite"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	m := NewMain()

	err := m.Run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// Main represents the program.
type Main struct {
	// Database path. Set before calling Run().
	DBPath string

	// SQLite database holding run history and the delivery ledger.
	DB *sqlite.DB

	// Services for end-to-end testing.
	RunService harvest.RunService
	Ledger     harvest.DeliveryLedger

	// NewFetcher overrides how page fetchers are built. Tests use it to
	// avoid launching a browser.
	NewFetcher func(browser, headless bool, logger *slog.Logger) (harvest.Fetcher, error)
}

// NewMain returns a new instance of Main with defaults.
func NewMain() *Main {
	return &Main{
		DBPath:     defaultDBPath(),
		NewFetcher: newFetcher,
	}
}

// Close gracefully stops the program.
func (m *Main) Close() error {
	if m.DB != nil {
		return m.DB.Close()
	}
	return nil
}

// Run executes the CLI with the given arguments.
func (m *Main) Run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	deps := &Dependencies{
		Ctx:        ctx,
		Stdout:     stdout,
		Stderr:     stderr,
		Profiles:   goquery.DefaultRegistry(),
		NewFetcher: m.NewFetcher,
	}

	cli := &CLI{}
	parser, err := kong.New(cli,
		kong.Name("harvest"),
		kong.Description("Collect items from paged listings and stream them to an ingest API."),
		kong.Writers(stdout, stderr),
		kong.Exit(func(int) {}), // Don't exit on help
		kong.Bind(deps),
	)
	if err != nil {
		return fmt.Errorf("failed to create parser: %w", err)
	}

	if len(args) == 0 {
		_, _ = parser.Parse([]string{"--help"})
		return fmt.Errorf("no command specified. Run 'harvest --help' to see available commands")
	}

	cmd := args[0]
	if cmd == "help" || cmd == "--help" || cmd == "-h" {
		_, _ = parser.Parse([]string{"--help"})
		return nil
	}

	kongCtx, err := parser.Parse(args)
	if err != nil {
		return err
	}

	// Only run and runs touch the database.
	if cmd == "run" || cmd == "runs" {
		m.DB = sqlite.NewDB(m.DBPath)
		if err := m.DB.Open(); err != nil {
			fmt.Fprintf(stderr, "Hint: Set HARVEST_DB to use a different database path\n")
			return fmt.Errorf("failed to open database at %q: %w", m.DBPath, err)
		}
		defer m.Close()

		m.RunService = sqlite.NewRunService(m.DB)
		m.Ledger = sqlite.NewLedger(m.DB)
		deps.DB = m.DB
		deps.Runs = m.RunService
		deps.Ledger = m.Ledger
	}

	if cmd == "run" && cli.Run.Profiles != "" {
		if err := deps.Profiles.LoadDir(cli.Run.Profiles); err != nil {
			return fmt.Errorf("failed to load profiles from %q: %w", cli.Run.Profiles, err)
		}
	}

	return kongCtx.Run(deps)
}

// newFetcher returns a static HTTP fetcher, or a headless browser fetcher
// when browser is set.
func newFetcher(browser, headless bool, logger *slog.Logger) (harvest.Fetcher, error) {
	if !browser {
		return harvesthttp.NewFetcher(), nil
	}
	f, err := rod.NewFetcher(rod.WithBrowserOptions(
		rod.WithHeadless(headless),
		rod.WithLogger(logger),
	))
	if err != nil {
		return nil, fmt.Errorf("failed to start browser: %w (Chrome or Chromium must be installed)", err)
	}
	return f, nil
}

func defaultDBPath() string {
	if path := os.Getenv("HARVEST_DB"); path != "" {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "harvest.db"
	}
	dir := filepath.Join(home, ".harvest")
	_ = os.MkdirAll(dir, 0755)
	return filepath.Join(dir, "harvest.db")
}
