package slog

import (
	"context"
	"log/slog"
	"time"

	"github.com/fwojciec/harvest"
)

var (
	_ harvest.Listing       = (*LoggingListing)(nil)
	_ harvest.DetailFetcher = (*LoggingDetailFetcher)(nil)
)

// LoggingListing wraps a Listing with logging of every page read.
type LoggingListing struct {
	next   harvest.Listing
	logger *slog.Logger
}

// NewLoggingListing creates a new LoggingListing.
func NewLoggingListing(next harvest.Listing, logger *slog.Logger) *LoggingListing {
	return &LoggingListing{next: next, logger: logger}
}

// FetchPage logs the page number and item count.
func (l *LoggingListing) FetchPage(ctx context.Context, page int) (lp *harvest.ListingPage, err error) {
	defer func(begin time.Time) {
		attrs := []any{"page", page, "duration", time.Since(begin)}
		if lp != nil {
			attrs = append(attrs, "items", len(lp.Items), "total", lp.Total)
		}
		if err != nil {
			l.logger.Warn("listing page", append(attrs, "err", err)...)
			return
		}
		l.logger.Info("listing page", attrs...)
	}(time.Now())
	return l.next.FetchPage(ctx, page)
}

// LoggingDetailFetcher wraps a DetailFetcher with debug logging.
type LoggingDetailFetcher struct {
	next   harvest.DetailFetcher
	logger *slog.Logger
}

// NewLoggingDetailFetcher creates a new LoggingDetailFetcher.
func NewLoggingDetailFetcher(next harvest.DetailFetcher, logger *slog.Logger) *LoggingDetailFetcher {
	return &LoggingDetailFetcher{next: next, logger: logger}
}

// FetchDetail logs the item and how much the detail page contributed.
func (d *LoggingDetailFetcher) FetchDetail(ctx context.Context, item *harvest.Item) (detail *harvest.Detail, err error) {
	defer func(begin time.Time) {
		var chars, photos int
		if detail != nil {
			chars, photos = len(detail.Text), len(detail.Photos)
		}
		d.logger.Debug("detail",
			"id", item.ID,
			"url", item.URL,
			"chars", chars,
			"photos", photos,
			"duration", time.Since(begin),
			"err", err,
		)
	}(time.Now())
	return d.next.FetchDetail(ctx, item)
}
