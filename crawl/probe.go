package crawl

import (
	"context"

	"github.com/fwojciec/harvest"
)

// ListingDiffers reports whether the browser-rendered first page lists
// meaningfully more items than the static one: static found none while
// rendered found some, or rendered found more than 1.5 times as many.
func ListingDiffers(static, rendered *harvest.ListingPage) bool {
	staticN, renderedN := len(static.Items), len(rendered.Items)
	if staticN == 0 {
		return renderedN > 0
	}
	return float64(renderedN) > float64(staticN)*1.5
}

// Probe reads the first listing page both ways and returns the listing
// to use for the run, and whether it is the browser one.
//
// A failing static read selects the browser; a failing browser read
// selects static. Probe returns an error only when both fail.
func Probe(ctx context.Context, static, browser harvest.Listing) (harvest.Listing, bool, error) {
	staticPage, staticErr := static.FetchPage(ctx, 1)
	if staticErr != nil {
		if ctx.Err() != nil {
			return nil, false, ctx.Err()
		}
		if _, err := browser.FetchPage(ctx, 1); err != nil {
			return nil, false, staticErr
		}
		return browser, true, nil
	}

	renderedPage, err := browser.FetchPage(ctx, 1)
	if err != nil {
		return static, false, nil
	}

	if ListingDiffers(staticPage, renderedPage) {
		return browser, true, nil
	}
	return static, false, nil
}
