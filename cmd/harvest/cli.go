package main

import (
	"context"
	"io"
	"log/slog"

	"github.com/fwojciec/harvest"
	"github.com/fwojciec/harvest/goquery"
	"github.com/fwojciec/harvest/sqlite"
)

// Dependencies holds all services and configuration for command execution.
type Dependencies struct {
	Ctx      context.Context
	Stdout   io.Writer
	Stderr   io.Writer
	DB       *sqlite.DB
	Runs     harvest.RunService
	Ledger   harvest.DeliveryLedger
	Profiles *goquery.Registry

	// NewFetcher builds the page fetcher for a run. browser selects a
	// browser-rendering fetcher, which reports recycles to logger.
	NewFetcher func(browser, headless bool, logger *slog.Logger) (harvest.Fetcher, error)
}

// CLI defines the command-line interface structure for Kong.
type CLI struct {
	Run    RunCmd    `cmd:"" help:"Collect a listing and deliver its items"`
	Runs   RunsCmd   `cmd:"" help:"Show run history"`
	Backup BackupCmd `cmd:"" help:"Inspect or clear local item backups"`
	Probe  ProbeCmd  `cmd:"" help:"Check whether a listing needs a browser to render"`
}

// RunCmd is the "run" subcommand.
type RunCmd struct {
	Source     string `arg:"" help:"Source name items are delivered under"`
	ListingURL string `arg:"" name:"listing-url" help:"URL of the first listing page"`

	Pages       int  `short:"p" default:"3" help:"Listing pages to collect"`
	Limit       int  `short:"l" default:"0" help:"Stop after this many items (0 = no limit)"`
	SkipDetails bool `help:"Deliver listing data without fetching detail pages"`
	Browser     bool `help:"Render pages in a browser"`
	Headless    bool `default:"true" negatable:"" help:"Run the browser headless"`
	Continuous  bool `help:"Stay up and start a run on every POST /run"`

	Dev        bool   `help:"Deliver to the local development ingest API"`
	IngestURL  string `name:"ingest-url" env:"HARVEST_INGEST_URL" help:"Ingest API endpoint"`
	APIKey     string `name:"api-key" env:"HARVEST_API_KEY" help:"Ingest API key"`
	DevURL     string `name:"dev-url" default:"http://localhost:8000/api/ingest" help:"Ingest API endpoint used with --dev"`
	DevAPIKey  string `name:"dev-api-key" env:"HARVEST_DEV_API_KEY" help:"Ingest API key used with --dev"`
	Currency   string `default:"USD" help:"Currency code sent with every item"`
	Profile    string `default:"auto" help:"Listing profile name or YAML file (auto = detect)"`
	Profiles   string `help:"Directory of extra YAML listing profiles"`
	Extractor  string `default:"trafilatura" enum:"trafilatura,readability" help:"Detail content extractor"`
	Results    string `default:"results" help:"Directory for local JSON backups"`
	NoStorage  bool   `help:"Do not back up items locally"`
	Listen     string `help:"Serve the control API on this address (e.g. :8080)"`
	CommandURL string `name:"commands-url" help:"URL polled for pause/resume/stop commands"`

	Concurrency int     `short:"c" default:"4" help:"Concurrent detail fetches"`
	QueueSize   int     `default:"100" help:"Items buffered before collection waits on delivery"`
	Breaker     uint32  `default:"5" help:"Consecutive delivery failures that open the circuit (0 = off)"`
	AbortPolicy string  `default:"wait" enum:"wait,cancel" help:"On stop, let the delivery in flight finish (wait) or cancel it"`
	Rate        float64 `default:"2" help:"Requests per second per host (0 = unlimited)"`
	Verbose     bool    `short:"v" help:"Log debug output"`
}

// RunsCmd is the "runs" subcommand.
type RunsCmd struct {
	Source string `help:"Only show runs of this source"`
	Limit  int    `short:"n" default:"20" help:"Maximum runs to show"`
}

// BackupCmd is the "backup" subcommand group.
type BackupCmd struct {
	Stats BackupStatsCmd `cmd:"" help:"Show backup size for a source"`
	Clear BackupClearCmd `cmd:"" help:"Delete all backups of a source"`
}

// BackupStatsCmd is the "backup stats" subcommand.
type BackupStatsCmd struct {
	Source  string `arg:"" help:"Source name"`
	Results string `default:"results" help:"Backup directory"`
}

// BackupClearCmd is the "backup clear" subcommand.
type BackupClearCmd struct {
	Source  string `arg:"" help:"Source name"`
	Results string `default:"results" help:"Backup directory"`
	Force   bool   `help:"Confirm deletion"`
}

// ProbeCmd is the "probe" subcommand.
type ProbeCmd struct {
	URL      string `arg:"" help:"URL of the first listing page"`
	Profile  string `default:"auto" help:"Listing profile name or YAML file (auto = detect)"`
	Headless bool   `default:"true" negatable:"" help:"Run the browser headless"`
}
