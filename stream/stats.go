package stream

import "github.com/fwojciec/harvest"

// aggregator folds outcomes into lifetime stats. It is owned by the worker
// goroutine and must not be read concurrently while the worker runs.
type aggregator struct {
	stats harvest.Stats

	// Per-page counters, reset by endPage.
	pageSuccess int
	pageFailed  int
	pageSkipped int
}

func (a *aggregator) fold(o harvest.Outcome) {
	a.stats.Items++
	if o.Success {
		a.stats.Success++
		a.pageSuccess++
	} else {
		a.stats.Failed++
		a.pageFailed++
	}
	a.stats.UnitsDelivered += o.Delivered
	a.stats.UnitsFailed += o.Failed
}

func (a *aggregator) skip() {
	a.stats.Skipped++
	a.pageSkipped++
}

// pageSummary holds the counters of one finished page.
type pageSummary struct {
	success int
	failed  int
	skipped int
}

func (a *aggregator) endPage() pageSummary {
	a.stats.Pages++
	s := pageSummary{success: a.pageSuccess, failed: a.pageFailed, skipped: a.pageSkipped}
	a.pageSuccess, a.pageFailed, a.pageSkipped = 0, 0, 0
	return s
}

func (a *aggregator) snapshot() harvest.Stats {
	return a.stats
}
