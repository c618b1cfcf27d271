package mock

import (
	"context"

	"github.com/fwojciec/harvest"
)

var _ harvest.Deliverer = (*Deliverer)(nil)

// Deliverer is a mock implementation of harvest.Deliverer.
type Deliverer struct {
	DeliverFn func(ctx context.Context, item *harvest.Item) (harvest.Outcome, error)
}

func (d *Deliverer) Deliver(ctx context.Context, item *harvest.Item) (harvest.Outcome, error) {
	return d.DeliverFn(ctx, item)
}

var _ harvest.DeliveryRecorder = (*DeliveryRecorder)(nil)

// DeliveryRecorder is a mock implementation of harvest.DeliveryRecorder.
type DeliveryRecorder struct {
	RecordDeliveryFn func(ctx context.Context, item *harvest.Item, outcome harvest.Outcome) error
}

func (r *DeliveryRecorder) RecordDelivery(ctx context.Context, item *harvest.Item, outcome harvest.Outcome) error {
	return r.RecordDeliveryFn(ctx, item, outcome)
}

var _ harvest.ItemSink = (*ItemSink)(nil)

// ItemSink is a mock implementation of harvest.ItemSink.
type ItemSink struct {
	EnqueueBatchFn func(ctx context.Context, items []*harvest.Item, page int) error
	FinishFn       func() harvest.Stats
	AbortFn        func()
}

func (s *ItemSink) EnqueueBatch(ctx context.Context, items []*harvest.Item, page int) error {
	return s.EnqueueBatchFn(ctx, items, page)
}

func (s *ItemSink) Finish() harvest.Stats {
	return s.FinishFn()
}

func (s *ItemSink) Abort() {
	s.AbortFn()
}
