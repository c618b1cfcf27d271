package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/fwojciec/harvest"
	"github.com/fwojciec/harvest/control"
	"github.com/fwojciec/harvest/crawl"
	"github.com/fwojciec/harvest/fs"
	"github.com/fwojciec/harvest/goquery"
	"github.com/fwojciec/harvest/htmltomarkdown"
	harvesthttp "github.com/fwojciec/harvest/http"
	"github.com/fwojciec/harvest/prometheus"
	"github.com/fwojciec/harvest/readability"
	harvestslog "github.com/fwojciec/harvest/slog"
	"github.com/fwojciec/harvest/stream"
	"github.com/fwojciec/harvest/trafilatura"
)

// breakerOpenFor is how long an open delivery circuit rejects items.
const breakerOpenFor = 30 * time.Second

// Run executes the run command.
func (c *RunCmd) Run(deps *Dependencies) error {
	ingestURL, apiKey := c.endpoint()
	if ingestURL == "" {
		err := harvest.Errorf(harvest.EINVALID, "ingest URL required: set --ingest-url or HARVEST_INGEST_URL, or use --dev")
		fmt.Fprintf(deps.Stderr, "error: %s\n", harvest.ErrorMessage(err))
		return err
	}

	logger := newLogger(deps.Stderr, c.Verbose)

	raw, err := deps.NewFetcher(c.Browser, c.Headless, logger)
	if err != nil {
		fmt.Fprintf(deps.Stderr, "error: %s\n", harvest.ErrorMessage(err))
		return err
	}
	defer raw.Close()
	fetcher := harvestslog.NewLoggingFetcher(raw, logger)

	profile, err := resolveProfile(deps.Ctx, deps.Profiles, fetcher, c.Profile, c.ListingURL)
	if err != nil {
		fmt.Fprintf(deps.Stderr, "error: %s\n", harvest.ErrorMessage(err))
		return err
	}
	logger.Info("using profile", "profile", profile.Name)

	listing, err := goquery.NewListing(fetcher, c.ListingURL, profile)
	if err != nil {
		fmt.Fprintf(deps.Stderr, "error: %s\n", harvest.ErrorMessage(err))
		return err
	}

	metrics := prometheus.NewMetrics(c.Source)

	s := &session{
		cmd:       c,
		deps:      deps,
		logger:    logger,
		listing:   harvestslog.NewLoggingListing(listing, logger),
		host:      listing.Host(),
		deliverer: c.deliverer(ingestURL, apiKey, metrics, logger),
		limiter:   crawl.NewDomainLimiter(c.Rate),
		metrics:   metrics,
		requests:  make(chan harvest.RunParams, 1),
	}
	s.details = harvestslog.NewLoggingDetailFetcher(&goquery.DetailFetcher{
		Fetcher:   fetcher,
		Profile:   profile,
		Extractor: c.extractor(),
		Converter: htmltomarkdown.NewConverter(),
	}, logger)
	if !c.NoStorage {
		s.store = fs.NewItemStore(c.Results, c.Source)
	}
	if c.CommandURL != "" {
		s.commands = harvestslog.NewLoggingCommandSource(harvesthttp.NewCommandSource(c.CommandURL, apiKey), logger)
	}

	ctx, cancel := context.WithCancel(deps.Ctx)
	defer cancel()

	s.setPlane(ctx, s.newPlane())
	defer s.stopWatch()

	if c.Listen != "" {
		shutdown, err := s.listen(c.Listen)
		if err != nil {
			fmt.Fprintf(deps.Stderr, "error: %s\n", err)
			return err
		}
		defer shutdown()
	}

	if c.Continuous {
		return s.serve(ctx)
	}
	return s.run(ctx, c.params())
}

// endpoint returns the ingest URL and API key to deliver with.
func (c *RunCmd) endpoint() (url, apiKey string) {
	if c.Dev {
		return c.DevURL, c.DevAPIKey
	}
	return c.IngestURL, c.APIKey
}

func (c *RunCmd) params() harvest.RunParams {
	return harvest.RunParams{Pages: c.Pages, Limit: c.Limit, SkipDetails: c.SkipDetails}
}

func (c *RunCmd) abortPolicy() stream.AbortPolicy {
	if c.AbortPolicy == "cancel" {
		return stream.AbortCancelInFlight
	}
	return stream.AbortWaitInFlight
}

func (c *RunCmd) extractor() harvest.Extractor {
	if c.Extractor == "readability" {
		return readability.NewExtractor()
	}
	return trafilatura.NewExtractor()
}

// deliverer builds the delivery chain: HTTP ingest, retried on transient
// failures, behind a circuit breaker, measured and logged.
func (c *RunCmd) deliverer(url, apiKey string, metrics *prometheus.Metrics, logger *slog.Logger) harvest.Deliverer {
	var d harvest.Deliverer = harvesthttp.NewDeliverer(url, c.Source,
		harvesthttp.WithAPIKey(apiKey),
		harvesthttp.WithCurrency(c.Currency),
	)
	d = stream.NewRetryDeliverer(d, stream.DefaultRetryDelays(), logger)
	if c.Breaker > 0 {
		d = stream.NewBreakerDeliverer(d, c.Source, c.Breaker, breakerOpenFor)
	}
	d = metrics.Deliverer(d)
	return harvestslog.NewLoggingDeliverer(d, logger)
}

// resolveProfile returns the named profile, or detects one from the first
// listing page when name is "auto" or empty.
func resolveProfile(ctx context.Context, profiles *goquery.Registry, fetcher harvest.Fetcher, name, listingURL string) (*goquery.Profile, error) {
	if name != "" && name != "auto" {
		return profiles.Resolve(name)
	}
	html, err := fetcher.Fetch(ctx, listingURL)
	if err != nil {
		return nil, fmt.Errorf("fetch listing for profile detection: %w", err)
	}
	return profiles.Detect(html), nil
}

// session holds what every run of one process shares: the listing and
// the delivery chain. Each run gets its own control plane; the control API
// always talks to the current one.
type session struct {
	cmd    *RunCmd
	deps   *Dependencies
	logger *slog.Logger

	listing   harvest.Listing
	host      string
	details   harvest.DetailFetcher
	store     harvest.ItemStore
	deliverer harvest.Deliverer
	limiter   harvest.DomainLimiter
	commands  harvest.CommandSource
	metrics   *prometheus.Metrics

	// requests carries at most one pending POST /run.
	requests chan harvest.RunParams

	mu      sync.Mutex
	plane   *control.Plane
	unwatch context.CancelFunc
	stats   harvest.Stats
}

// Compile-time interface verification.
var _ harvesthttp.ControlPlane = (*session)(nil)

func (s *session) newPlane() *control.Plane {
	opts := []control.Option{
		control.WithLogger(s.logger),
		control.WithStatusHook(s.metrics.SetStatus),
	}
	if s.commands != nil {
		opts = append(opts, control.WithCommandSource(s.commands))
	}
	p := control.NewPlane(opts...)
	s.metrics.SetStatus(p.Status())
	return p
}

// setPlane makes p the current plane and moves command polling to it.
func (s *session) setPlane(ctx context.Context, p *control.Plane) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.unwatch != nil {
		s.unwatch()
		s.unwatch = nil
	}
	s.plane = p
	if s.commands != nil {
		wctx, cancel := context.WithCancel(ctx)
		s.unwatch = cancel
		go func() { _ = p.Watch(wctx) }()
	}
}

func (s *session) stopWatch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.unwatch != nil {
		s.unwatch()
		s.unwatch = nil
	}
}

func (s *session) currentPlane() *control.Plane {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.plane
}

// Signal returns the signal of the current plane.
func (s *session) Signal() harvest.Signal { return s.currentPlane().Signal() }

// Status returns the status of the current plane.
func (s *session) Status() harvest.Status { return s.currentPlane().Status() }

// SetSignal sets the signal of the current plane.
func (s *session) SetSignal(sig harvest.Signal) error { return s.currentPlane().SetSignal(sig) }

// run performs one collection run and records it in the run history.
// A stopped or interrupted run is not an error.
func (s *session) run(ctx context.Context, params harvest.RunParams) error {
	deps := s.deps
	source := s.cmd.Source

	rec := &harvest.Run{Source: source}
	if err := deps.Runs.CreateRun(ctx, rec); err != nil {
		fmt.Fprintf(deps.Stderr, "error: %s\n", harvest.ErrorMessage(err))
		return err
	}

	uploader := stream.NewUploader(s.deliverer,
		stream.WithQueueSize(s.cmd.QueueSize),
		stream.WithLogger(s.logger),
		stream.WithProgress(s.progress),
		stream.WithRecorder(deps.Ledger.Recorder(source, rec.ID)),
		stream.WithAbortPolicy(s.cmd.abortPolicy()),
	)
	ids, err := deps.Ledger.DeliveredIDs(ctx, source)
	if err != nil {
		fmt.Fprintf(deps.Stderr, "error: %s\n", harvest.ErrorMessage(err))
		_ = deps.Runs.FinishRun(context.WithoutCancel(ctx), rec.ID, harvest.RunFailed, harvest.Stats{}, err)
		return err
	}
	uploader.AddExistingIDs(ids)
	s.metrics.ObserveQueue(uploader.Len)
	s.setStats(harvest.Stats{})

	collector := &crawl.Collector{
		Listing:     s.listing,
		Sink:        uploader,
		Store:       s.store,
		Controller:  s.currentPlane(),
		Limiter:     s.limiter,
		Host:        s.host,
		Concurrency: s.cmd.Concurrency,
		BatchSize:   crawl.DefaultBatchSize,
		RetryDelays: crawl.DefaultRetryDelays(),
		PageDelay:   crawl.DefaultPageDelay,
		Logger:      s.logger,
	}
	if !params.SkipDetails {
		collector.Details = s.details
	}

	res, err := collector.Collect(ctx, params)
	s.setStats(res.Stats)
	s.metrics.ObserveQueue(nil)

	status := runStatus(err)
	var runErr error
	if status == harvest.RunFailed {
		runErr = err
	}
	if ferr := deps.Runs.FinishRun(context.WithoutCancel(ctx), rec.ID, status, res.Stats, runErr); ferr != nil {
		s.logger.Error("record run", "run", rec.ID, "err", ferr)
	}

	printSummary(deps.Stdout, rec.ID, status, res)
	if runErr != nil {
		fmt.Fprintf(deps.Stderr, "error: %s\n", harvest.ErrorMessage(runErr))
		return runErr
	}
	return nil
}

// serve runs collections on request until ctx ends or a stop is received.
// Every run after the first gets a fresh plane. A failed run is reported
// and the process keeps serving.
func (s *session) serve(ctx context.Context) error {
	s.logger.Info("waiting for run requests")
	ticker := time.NewTicker(control.DefaultPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case params := <-s.requests:
			if err := s.run(ctx, params); err != nil {
				s.logger.Error("run failed", "err", err)
			}
			if s.Signal() != harvest.SignalStop {
				s.setPlane(ctx, s.newPlane())
			}
		case <-ticker.C:
		}
		if s.Signal() == harvest.SignalStop {
			s.logger.Info("stop received, shutting down")
			return nil
		}
	}
}

// request queues a run asked for over the control API. It matches
// harvest/http.RunFunc.
func (s *session) request(params harvest.RunParams) error {
	switch {
	case s.Signal() == harvest.SignalStop:
		return harvest.Errorf(harvest.ECONFLICT, "shutting down")
	case s.Signal() == harvest.SignalPause:
		return harvest.Errorf(harvest.ECONFLICT, "paused: resume before starting a run")
	case s.Status() == harvest.StatusBusy:
		return harvest.Errorf(harvest.ECONFLICT, "a run is already in progress")
	}

	if params.Pages <= 0 {
		params.Pages = s.cmd.Pages
	}
	if params.Limit <= 0 {
		params.Limit = s.cmd.Limit
	}
	params.SkipDetails = params.SkipDetails || s.cmd.SkipDetails

	select {
	case s.requests <- params:
		return nil
	default:
		return harvest.Errorf(harvest.ECONFLICT, "a run is already queued")
	}
}

// listen serves the control API on addr and returns a function shutting
// it down.
func (s *session) listen(addr string) (func(), error) {
	h := harvesthttp.NewHandler(s, s.logger).
		WithStats(s.currentStats).
		WithMetrics(s.metrics.Handler())
	if s.cmd.Continuous {
		h.WithRun(s.request)
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}
	srv := &http.Server{
		Handler:           h.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("control API", "err", err)
		}
	}()
	s.logger.Info("control API listening", "addr", ln.Addr().String())

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}, nil
}

func (s *session) progress(stats harvest.Stats) {
	s.metrics.PageDone(stats)
	s.setStats(stats)
}

func (s *session) setStats(stats harvest.Stats) {
	s.mu.Lock()
	s.stats = stats
	s.mu.Unlock()
}

func (s *session) currentStats() harvest.Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// runStatus maps the error returned by a collection to a run status.
func runStatus(err error) string {
	switch {
	case err == nil:
		return harvest.RunCompleted
	case harvest.IsStopped(err), errors.Is(err, context.Canceled):
		return harvest.RunStopped
	default:
		return harvest.RunFailed
	}
}

func printSummary(w io.Writer, runID, status string, res *crawl.Result) {
	st := res.Stats
	fmt.Fprintf(w, "Run %s %s in %s\n", runID, status, res.Duration.Round(time.Millisecond))
	fmt.Fprintf(w, "  listing pages: %d  pages: %d  items: %d  delivered: %d  failed: %d  skipped: %d  discarded: %d\n",
		res.Visited, st.Pages, st.Items, st.Success, st.Failed, st.Skipped, st.Discarded)
	fmt.Fprintf(w, "  units delivered: %d  units failed: %d\n", st.UnitsDelivered, st.UnitsFailed)
	if res.Errors > 0 {
		fmt.Fprintf(w, "  detail errors: %d\n", res.Errors)
	}
}

func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}
