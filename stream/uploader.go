// Package stream delivers scraped items in the background while the
// producer keeps parsing. Items flow through a bounded queue to a single
// worker goroutine that calls a harvest.Deliverer and folds each outcome
// into run statistics, strictly in enqueue order.
package stream

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/fwojciec/harvest"
)

// DefaultQueueSize is the default number of items buffered before
// EnqueueBatch blocks the producer.
const DefaultQueueSize = 100

// AbortPolicy decides what happens to a delivery in flight when Abort is called.
type AbortPolicy int

const (
	// AbortWaitInFlight lets the in-flight delivery run to completion.
	AbortWaitInFlight AbortPolicy = iota
	// AbortCancelInFlight cancels the context passed to the in-flight delivery.
	AbortCancelInFlight
)

// Compile-time interface verification.
var _ harvest.ItemSink = (*Uploader)(nil)

// Uploader queues items for delivery by a background worker.
//
// One goroutine produces (EnqueueBatch, Finish, Abort) while the worker
// consumes. Abort may also be called from another goroutine, e.g. a signal
// handler.
type Uploader struct {
	deliverer harvest.Deliverer
	logger    *slog.Logger
	recorder  harvest.DeliveryRecorder
	progress  harvest.ProgressFunc
	policy    AbortPolicy
	queueSize int

	queue *queue

	// ctx is passed to every delivery. It is canceled when the uploader
	// finishes, or on abort under AbortCancelInFlight.
	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	existing map[string]struct{}

	startOnce  sync.Once
	abortOnce  sync.Once
	finishOnce sync.Once
	done       chan struct{}

	// agg is written only by the worker; read after done is closed.
	agg   aggregator
	final harvest.Stats
}

// Option configures an Uploader.
type Option func(*Uploader)

// WithQueueSize sets the queue capacity in items.
// Defaults to DefaultQueueSize if not specified.
func WithQueueSize(n int) Option {
	return func(u *Uploader) {
		u.queueSize = n
	}
}

// WithLogger sets the logger for session and page progress messages.
func WithLogger(logger *slog.Logger) Option {
	return func(u *Uploader) {
		u.logger = logger
	}
}

// WithProgress sets a callback invoked by the worker each time a page
// (one EnqueueBatch call) has been fully processed.
func WithProgress(fn harvest.ProgressFunc) Option {
	return func(u *Uploader) {
		u.progress = fn
	}
}

// WithRecorder sets a recorder notified after every delivery attempt.
func WithRecorder(r harvest.DeliveryRecorder) Option {
	return func(u *Uploader) {
		u.recorder = r
	}
}

// WithAbortPolicy sets how Abort treats a delivery in flight.
// Defaults to AbortWaitInFlight.
func WithAbortPolicy(p AbortPolicy) Option {
	return func(u *Uploader) {
		u.policy = p
	}
}

// NewUploader creates an Uploader delivering items with d.
// The worker starts with the first non-empty batch.
func NewUploader(d harvest.Deliverer, opts ...Option) *Uploader {
	u := &Uploader{
		deliverer: d,
		queueSize: DefaultQueueSize,
		existing:  make(map[string]struct{}),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(u)
	}
	if u.logger == nil {
		u.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	u.queue = newQueue(u.queueSize)
	u.ctx, u.cancel = context.WithCancel(context.Background())
	return u
}

// AddExistingIDs marks IDs as already delivered. Queued items with these
// IDs are skipped without calling the deliverer.
func (u *Uploader) AddExistingIDs(ids []string) {
	u.mu.Lock()
	for _, id := range ids {
		u.existing[id] = struct{}{}
	}
	u.mu.Unlock()
	u.logger.Info("existing IDs added", "count", len(ids))
}

// EnqueueBatch queues the items of one page, preserving their order.
// It blocks while the queue is full. It returns an ECLOSED error if Finish
// or Abort has begun, or ctx.Err() if ctx ends while blocked.
func (u *Uploader) EnqueueBatch(ctx context.Context, items []*harvest.Item, page int) error {
	if u.queue.isClosed() {
		return harvest.Errorf(harvest.ECLOSED, "delivery queue closed")
	}
	if len(items) == 0 {
		return nil
	}

	u.startOnce.Do(func() {
		u.logger.Info("upload started")
		go u.work()
	})

	u.logger.Debug("page queued", "page", page, "items", len(items))
	for i, item := range items {
		e := entry{item: item, page: page, last: i == len(items)-1}
		if err := u.queue.put(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

// Finish stops accepting items, waits until every queued item has been
// delivered and the worker has exited, and returns the final stats.
// After Abort it waits only for the worker to exit. Calling Finish again
// returns the same stats.
func (u *Uploader) Finish() harvest.Stats {
	u.finishOnce.Do(func() {
		u.queue.close()
		// A worker that never started will never close done.
		u.startOnce.Do(func() { close(u.done) })
		<-u.done
		u.cancel()

		u.final = u.agg.snapshot()
		u.final.Discarded = u.queue.discardedCount()
		u.logger.Info("upload complete",
			"items", u.final.Items,
			"success", u.final.Success,
			"failed", u.final.Failed,
			"skipped", u.final.Skipped,
			"discarded", u.final.Discarded,
			"unitsDelivered", u.final.UnitsDelivered,
			"unitsFailed", u.final.UnitsFailed,
		)
	})
	return u.final
}

// Abort discards queued items and tells the worker to exit after the
// delivery in flight, if any. It returns without waiting.
func (u *Uploader) Abort() {
	u.abortOnce.Do(func() {
		n := u.queue.abort()
		if u.policy == AbortCancelInFlight {
			u.cancel()
		}
		u.logger.Info("upload aborted", "discarded", n)
	})
}

// FinishForce aborts pending deliveries and returns the final stats.
func (u *Uploader) FinishForce() harvest.Stats {
	u.Abort()
	return u.Finish()
}

// Done returns a channel closed once the worker has exited.
// If no item was ever enqueued, it closes when Finish is called.
func (u *Uploader) Done() <-chan struct{} {
	return u.done
}

// Len returns the number of items waiting in the queue.
func (u *Uploader) Len() int {
	return u.queue.len()
}

// work is the worker loop. It exits when the queue is aborted, or closed
// and drained.
func (u *Uploader) work() {
	defer close(u.done)
	for {
		e, ok := u.queue.take()
		if !ok {
			return
		}
		u.process(e)
	}
}

func (u *Uploader) process(e entry) {
	id := e.item.ID
	if u.isExisting(id) {
		u.agg.skip()
		u.logger.Debug("item skipped", "id", id, "page", e.page)
	} else {
		outcome := u.deliver(e.item)
		u.agg.fold(outcome)
		if outcome.Success {
			u.markExisting(id)
		} else {
			u.logger.Warn("delivery failed", "id", id, "page", e.page, "err", outcome.Err)
		}
		if u.recorder != nil {
			// An acknowledged delivery must reach the ledger even after Abort
			// canceled u.ctx.
			if err := u.recorder.RecordDelivery(context.WithoutCancel(u.ctx), e.item, outcome); err != nil {
				u.logger.Error("record delivery", "id", id, "err", err)
			}
		}
	}

	if e.last {
		s := u.agg.endPage()
		u.logger.Info("page done",
			"page", e.page,
			"uploaded", s.success,
			"failed", s.failed,
			"skipped", s.skipped,
		)
		if u.progress != nil {
			u.progress(u.agg.snapshot())
		}
	}
}

// deliver calls the deliverer, converting errors and panics into a failed
// outcome so one bad item never stops the worker.
func (u *Uploader) deliver(item *harvest.Item) (outcome harvest.Outcome) {
	defer func() {
		if r := recover(); r != nil {
			outcome = harvest.Outcome{Err: fmt.Sprintf("panic: %v", r)}
		}
	}()

	out, err := u.deliverer.Deliver(u.ctx, item)
	if err != nil {
		return harvest.Outcome{Delivered: out.Delivered, Failed: out.Failed, Err: err.Error()}
	}
	if !out.Success && out.Err == "" {
		out.Err = "delivery failed"
	}
	return out
}

func (u *Uploader) isExisting(id string) bool {
	if id == "" {
		return false
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	_, ok := u.existing[id]
	return ok
}

func (u *Uploader) markExisting(id string) {
	if id == "" {
		return
	}
	u.mu.Lock()
	u.existing[id] = struct{}{}
	u.mu.Unlock()
}
