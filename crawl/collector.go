// Package crawl drives a collection run: it walks a paged listing, fetches
// item details, and hands finished items to an ItemSink for delivery while
// honoring pause and stop requests between steps.
package crawl

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"net/url"
	"slices"
	"time"

	"github.com/fwojciec/harvest"
	"github.com/fwojciec/harvest/bloom"
	"github.com/fwojciec/harvest/control"
	"golang.org/x/sync/errgroup"
)

// Collection defaults.
const (
	DefaultPages       = 3
	DefaultBatchSize   = 20
	DefaultConcurrency = 4
	DefaultPageDelay   = 300 * time.Millisecond

	// seenExpectedIDs sizes the per-run ID filter.
	seenExpectedIDs = 10000
	// seenFalsePositiveRate is the filter's false positive rate before the exact check.
	seenFalsePositiveRate = 0.01
)

// Collector produces items from a listing and streams them to Sink.
type Collector struct {
	Listing harvest.Listing
	Sink    harvest.ItemSink

	// Details is optional. When nil, or when RunParams.SkipDetails is set,
	// items are delivered with listing data only.
	Details harvest.DetailFetcher

	// Store is an optional local backup of every item handed to Sink.
	Store harvest.ItemStore

	// Controller is consulted between pages and batches. When nil the run
	// cannot be paused or stopped from outside.
	Controller harvest.Controller

	// Limiter paces listing and detail requests per host.
	Limiter harvest.DomainLimiter
	// Host is the limiter key for listing page requests.
	Host string

	Concurrency int
	BatchSize   int
	RetryDelays []time.Duration
	PageDelay   time.Duration
	Logger      *slog.Logger
}

// Result holds the outcome of a collection run.
type Result struct {
	// Visited counts listing pages walked, including an empty last page.
	Visited int
	// Fetched counts items handed to the sink.
	Fetched int
	// Errors counts items dropped because their detail fetch failed.
	Errors   int
	Stats    harvest.Stats
	Stopped  bool
	Duration time.Duration
}

// Collect runs one collection pass over params.Pages listing pages.
//
// The sink is always finished before Collect returns. If the run is
// stopped, queued items are discarded first and the stop error is returned
// along with the result.
func (c *Collector) Collect(ctx context.Context, params harvest.RunParams) (*Result, error) {
	start := time.Now()
	logger := c.logger()

	if c.Controller != nil {
		c.Controller.SetBusy()
		defer c.Controller.SetIdle()
	}

	pages := params.Pages
	if pages <= 0 {
		pages = DefaultPages
	}
	logger.Info("collection started", "pages", pages, "limit", params.Limit, "skipDetails", params.SkipDetails)

	var res Result
	err := c.collect(ctx, pages, params, &res)

	switch {
	case harvest.IsStopped(err):
		logger.Info("interrupted, aborting")
		c.Sink.Abort()
		res.Stopped = true
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		c.Sink.Abort()
	}

	res.Stats = c.Sink.Finish()
	res.Duration = time.Since(start)
	logger.Info("collection done",
		"visited", res.Visited,
		"fetched", res.Fetched,
		"uploaded", res.Stats.Success,
		"failed", res.Stats.Failed,
		"errors", res.Errors,
		"duration", res.Duration.Round(time.Second),
	)
	return &res, err
}

func (c *Collector) collect(ctx context.Context, pages int, params harvest.RunParams, res *Result) error {
	runner := control.NewRunner(c.checker())
	defer func() { res.Visited = runner.ItemsProcessed() }()
	seen := bloom.NewFilter(seenExpectedIDs, seenFalsePositiveRate)

	for page, err := range control.Iterate(ctx, runner, pageNumbers(pages)) {
		if err != nil {
			return err
		}
		if page > 1 {
			if err := control.Sleep(ctx, c.checker(), c.PageDelay); err != nil {
				return err
			}
		}

		lp, err := c.fetchPage(ctx, page)
		if err != nil {
			return fmt.Errorf("fetch page %d: %w", page, err)
		}
		if lp == nil || len(lp.Items) == 0 {
			c.logger().Info("no more items", "page", page)
			return nil
		}
		c.logger().Info("page fetched", "page", page, "of", pages, "items", len(lp.Items), "total", lp.Total)

		fresh := c.selectFresh(lp.Items, page, seen, params.Limit)
		limitReached := params.Limit > 0 && seen.Len() >= params.Limit

		if err := c.deliverPage(ctx, runner, page, fresh, params.SkipDetails, res); err != nil {
			return err
		}
		if limitReached {
			c.logger().Info("item limit reached", "limit", params.Limit)
			return nil
		}
	}
	return nil
}

// selectFresh stamps page and position on listing items and keeps those with
// an ID not seen before, up to limit distinct IDs over the run.
func (c *Collector) selectFresh(items []*harvest.Item, page int, seen *bloom.Filter, limit int) []*harvest.Item {
	var fresh []*harvest.Item
	for i, item := range items {
		if limit > 0 && seen.Len() >= limit {
			break
		}
		if item == nil || item.Validate() != nil {
			continue
		}
		if !seen.Add(item.ID) {
			continue
		}
		item.Page = page
		item.Position = i
		fresh = append(fresh, item)
	}
	return fresh
}

// deliverPage hands fresh items to deliverChunk in batches, with an
// interrupt check before and after each batch.
func (c *Collector) deliverPage(ctx context.Context, runner *control.Runner, page int, fresh []*harvest.Item, skipDetails bool, res *Result) error {
	batchSize := c.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	for chunk := range slices.Chunk(fresh, batchSize) {
		err := runner.Run(ctx, func(ctx context.Context) error {
			return c.deliverChunk(ctx, page, chunk, skipDetails, res)
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// deliverChunk enriches one batch, backs it up and enqueues it.
func (c *Collector) deliverChunk(ctx context.Context, page int, chunk []*harvest.Item, skipDetails bool, res *Result) error {
	batch := chunk
	if !skipDetails && c.Details != nil {
		var failed int
		batch, failed = c.fetchDetails(ctx, chunk)
		res.Errors += failed
	}
	c.backup(ctx, batch)

	if len(batch) == 0 {
		return nil
	}
	if err := c.Sink.EnqueueBatch(ctx, batch, page); err != nil {
		return err
	}
	res.Fetched += len(batch)
	return nil
}

// detailResult holds the outcome of one detail fetch.
type detailResult struct {
	item *harvest.Item
	err  error
}

// fetchDetails fetches details for items concurrently and returns the merged
// items in input order. Items whose detail fetch fails are dropped and
// counted in the second result.
func (c *Collector) fetchDetails(ctx context.Context, items []*harvest.Item) ([]*harvest.Item, int) {
	concurrency := c.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}

	results := make([]detailResult, len(items))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, item := range items {
		g.Go(func() error {
			results[i] = c.fetchDetail(gctx, item)
			return nil
		})
	}
	_ = g.Wait()

	merged := make([]*harvest.Item, 0, len(items))
	var failed int
	for _, r := range results {
		if r.err != nil {
			failed++
			c.logger().Warn("detail failed", "id", r.item.ID, "err", r.err)
			continue
		}
		merged = append(merged, r.item)
	}
	return merged, failed
}

func (c *Collector) fetchDetail(ctx context.Context, item *harvest.Item) detailResult {
	if err := c.wait(ctx, hostOf(item.URL)); err != nil {
		return detailResult{item: item, err: err}
	}
	detail, err := c.Details.FetchDetail(ctx, item)
	if err != nil {
		return detailResult{item: item, err: err}
	}
	merged := item.Merge(detail)
	c.logger().Debug("item ready", "id", merged.ID, "photos", len(merged.Photos))
	return detailResult{item: merged}
}

func (c *Collector) fetchPage(ctx context.Context, page int) (*harvest.ListingPage, error) {
	delays := c.RetryDelays
	if delays == nil {
		delays = DefaultRetryDelays()
	}
	return WithRetry(ctx, c.logger(), fmt.Sprintf("page %d", page), delays, func(ctx context.Context) (*harvest.ListingPage, error) {
		if err := c.wait(ctx, c.Host); err != nil {
			return nil, err
		}
		return c.Listing.FetchPage(ctx, page)
	})
}

// backup saves items to the local store. Failures are logged only.
func (c *Collector) backup(ctx context.Context, items []*harvest.Item) {
	if c.Store == nil {
		return
	}
	for _, item := range items {
		if err := c.Store.Save(ctx, item); err != nil {
			c.logger().Warn("backup failed", "id", item.ID, "err", err)
		}
	}
}

func (c *Collector) wait(ctx context.Context, host string) error {
	if c.Limiter == nil || host == "" {
		return nil
	}
	return c.Limiter.Wait(ctx, host)
}

func (c *Collector) checker() harvest.InterruptChecker {
	if c.Controller == nil {
		return noInterrupt{}
	}
	return c.Controller
}

func (c *Collector) logger() *slog.Logger {
	if c.Logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return c.Logger
}

// noInterrupt never pauses or stops.
type noInterrupt struct{}

func (noInterrupt) CheckInterrupt(context.Context) error { return nil }

func pageNumbers(n int) iter.Seq[int] {
	return func(yield func(int) bool) {
		for p := 1; p <= n; p++ {
			if !yield(p) {
				return
			}
		}
	}
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Host
}
