package harvest

import "context"

// Outcome is the result of one delivery attempt.
type Outcome struct {
	Success bool `json:"success"`
	// Delivered counts units (e.g. photos) accepted by the receiver.
	Delivered int `json:"delivered"`
	// Failed counts units the receiver rejected.
	Failed int `json:"failed"`
	// Err describes the failure. Always set when Success is false.
	Err string `json:"error,omitempty"`
}

// Deliverer sends a single item to its destination.
// Expected failures (rejected item, validation error) are reported through
// an Outcome with Success false. A non-nil error means the attempt itself
// broke; the engine turns it into a failed Outcome carrying the error text.
type Deliverer interface {
	Deliver(ctx context.Context, item *Item) (Outcome, error)
}

// DeliverFunc adapts an ordinary function to the Deliverer interface.
type DeliverFunc func(ctx context.Context, item *Item) (Outcome, error)

// Deliver calls f(ctx, item).
func (f DeliverFunc) Deliver(ctx context.Context, item *Item) (Outcome, error) {
	return f(ctx, item)
}

// Stats accumulates delivery outcomes over the lifetime of a run.
type Stats struct {
	// Pages counts batches fully processed by the worker.
	Pages int `json:"pages"`
	// Items counts items handed to the deliverer.
	Items int `json:"items"`

	Success int `json:"success"`
	Failed  int `json:"failed"`

	// Skipped counts items dropped because their ID was already delivered.
	Skipped int `json:"skipped"`
	// Discarded counts queued items dropped by an abort without an attempt.
	Discarded int `json:"discarded"`

	UnitsDelivered int `json:"unitsDelivered"`
	UnitsFailed    int `json:"unitsFailed"`
}

// Finalized returns the number of items whose delivery completed.
func (s Stats) Finalized() int {
	return s.Success + s.Failed
}

// ProgressFunc receives a stats snapshot each time a page finishes delivery.
type ProgressFunc func(Stats)

// DeliveryRecorder observes completed deliveries in the order they happen.
type DeliveryRecorder interface {
	RecordDelivery(ctx context.Context, item *Item, outcome Outcome) error
}

// ItemSink accepts batches of items for delivery.
type ItemSink interface {
	// EnqueueBatch queues items from one page. Returns ECLOSED after
	// Finish or Abort has begun.
	EnqueueBatch(ctx context.Context, items []*Item, page int) error

	// Finish waits for queued items to be delivered and returns the final stats.
	Finish() Stats

	// Abort discards queued items without waiting for them.
	Abort()
}
