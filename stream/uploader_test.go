package stream_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fwojciec/harvest"
	"github.com/fwojciec/harvest/mock"
	"github.com/fwojciec/harvest/stream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func items(ids ...string) []*harvest.Item {
	out := make([]*harvest.Item, 0, len(ids))
	for _, id := range ids {
		out = append(out, &harvest.Item{ID: id})
	}
	return out
}

// succeed returns a deliverer that accepts every item with one unit.
func succeed() *mock.Deliverer {
	return &mock.Deliverer{
		DeliverFn: func(_ context.Context, _ *harvest.Item) (harvest.Outcome, error) {
			return harvest.Outcome{Success: true, Delivered: 1}, nil
		},
	}
}

// gate blocks deliveries of one item until released.
type gate struct {
	id       string
	started  chan struct{}
	release  chan struct{}
	startOne sync.Once
}

func newGate(id string) *gate {
	return &gate{id: id, started: make(chan struct{}), release: make(chan struct{})}
}

func (g *gate) deliverer() *mock.Deliverer {
	return &mock.Deliverer{
		DeliverFn: func(_ context.Context, item *harvest.Item) (harvest.Outcome, error) {
			if item.ID == g.id {
				g.startOne.Do(func() { close(g.started) })
				<-g.release
			}
			return harvest.Outcome{Success: true, Delivered: 1}, nil
		},
	}
}

func TestUploader_Implements(t *testing.T) {
	t.Parallel()
	var _ harvest.ItemSink = stream.NewUploader(succeed())
}

func TestUploader_Finish(t *testing.T) {
	t.Parallel()

	t.Run("folds outcomes into stats", func(t *testing.T) {
		t.Parallel()

		outcomes := map[string]harvest.Outcome{
			"i1": {Success: true, Delivered: 2},
			"i2": {Success: false, Failed: 1, Err: "timeout"},
			"i3": {Success: true, Delivered: 1},
		}
		d := &mock.Deliverer{
			DeliverFn: func(_ context.Context, item *harvest.Item) (harvest.Outcome, error) {
				return outcomes[item.ID], nil
			},
		}
		u := stream.NewUploader(d)

		require.NoError(t, u.EnqueueBatch(context.Background(), items("i1", "i2", "i3"), 1))
		stats := u.Finish()

		assert.Equal(t, 3, stats.Items)
		assert.Equal(t, 2, stats.Success)
		assert.Equal(t, 1, stats.Failed)
		assert.Equal(t, 3, stats.UnitsDelivered)
		assert.Equal(t, 1, stats.UnitsFailed)
		assert.Equal(t, 1, stats.Pages)
		assert.Equal(t, 3, stats.Finalized())
	})

	t.Run("returns zero stats when nothing was enqueued", func(t *testing.T) {
		t.Parallel()

		u := stream.NewUploader(succeed())

		stats := u.Finish()

		assert.Equal(t, harvest.Stats{}, stats)
		select {
		case <-u.Done():
		default:
			t.Fatal("done should be closed after Finish")
		}
	})

	t.Run("empty batch does not start the worker", func(t *testing.T) {
		t.Parallel()

		var calls atomic.Int32
		d := &mock.Deliverer{
			DeliverFn: func(_ context.Context, _ *harvest.Item) (harvest.Outcome, error) {
				calls.Add(1)
				return harvest.Outcome{Success: true}, nil
			},
		}
		u := stream.NewUploader(d)

		require.NoError(t, u.EnqueueBatch(context.Background(), nil, 1))
		stats := u.Finish()

		assert.Equal(t, int32(0), calls.Load())
		assert.Equal(t, 0, stats.Pages)
	})

	t.Run("is idempotent", func(t *testing.T) {
		t.Parallel()

		u := stream.NewUploader(succeed())
		require.NoError(t, u.EnqueueBatch(context.Background(), items("a", "b"), 1))

		first := u.Finish()
		second := u.Finish()

		assert.Equal(t, first, second)
		assert.Equal(t, 2, second.Success)
	})

	t.Run("waits for every queued item", func(t *testing.T) {
		t.Parallel()

		d := &mock.Deliverer{
			DeliverFn: func(_ context.Context, _ *harvest.Item) (harvest.Outcome, error) {
				time.Sleep(5 * time.Millisecond)
				return harvest.Outcome{Success: true}, nil
			},
		}
		u := stream.NewUploader(d)

		require.NoError(t, u.EnqueueBatch(context.Background(), items("a", "b", "c"), 1))
		require.NoError(t, u.EnqueueBatch(context.Background(), items("d", "e"), 2))
		stats := u.Finish()

		assert.Equal(t, 5, stats.Success)
		assert.Equal(t, 2, stats.Pages)
		assert.Equal(t, 0, u.Len())
	})
}

func TestUploader_Order(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	var got []string
	recorder := &mock.DeliveryRecorder{
		RecordDeliveryFn: func(_ context.Context, item *harvest.Item, _ harvest.Outcome) error {
			mu.Lock()
			got = append(got, item.ID)
			mu.Unlock()
			return nil
		},
	}
	u := stream.NewUploader(succeed(), stream.WithRecorder(recorder), stream.WithQueueSize(2))

	require.NoError(t, u.EnqueueBatch(context.Background(), items("a", "b", "c"), 1))
	require.NoError(t, u.EnqueueBatch(context.Background(), items("d", "e"), 2))
	u.Finish()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, got)
}

func TestUploader_Failures(t *testing.T) {
	t.Parallel()

	t.Run("deliverer error becomes failed outcome", func(t *testing.T) {
		t.Parallel()

		var recorded harvest.Outcome
		recorder := &mock.DeliveryRecorder{
			RecordDeliveryFn: func(_ context.Context, _ *harvest.Item, outcome harvest.Outcome) error {
				recorded = outcome
				return nil
			},
		}
		d := &mock.Deliverer{
			DeliverFn: func(_ context.Context, _ *harvest.Item) (harvest.Outcome, error) {
				return harvest.Outcome{}, errors.New("connection refused")
			},
		}
		u := stream.NewUploader(d, stream.WithRecorder(recorder))

		require.NoError(t, u.EnqueueBatch(context.Background(), items("a"), 1))
		stats := u.Finish()

		assert.Equal(t, 1, stats.Failed)
		assert.False(t, recorded.Success)
		assert.Equal(t, "connection refused", recorded.Err)
	})

	t.Run("panic does not stop the worker", func(t *testing.T) {
		t.Parallel()

		d := &mock.Deliverer{
			DeliverFn: func(_ context.Context, item *harvest.Item) (harvest.Outcome, error) {
				if item.ID == "bad" {
					panic("boom")
				}
				return harvest.Outcome{Success: true}, nil
			},
		}
		u := stream.NewUploader(d)

		require.NoError(t, u.EnqueueBatch(context.Background(), items("a", "bad", "b"), 1))
		stats := u.Finish()

		assert.Equal(t, 2, stats.Success)
		assert.Equal(t, 1, stats.Failed)
	})

	t.Run("rejection without message gets a default error", func(t *testing.T) {
		t.Parallel()

		var recorded harvest.Outcome
		recorder := &mock.DeliveryRecorder{
			RecordDeliveryFn: func(_ context.Context, _ *harvest.Item, outcome harvest.Outcome) error {
				recorded = outcome
				return nil
			},
		}
		d := &mock.Deliverer{
			DeliverFn: func(_ context.Context, _ *harvest.Item) (harvest.Outcome, error) {
				return harvest.Outcome{Success: false}, nil
			},
		}
		u := stream.NewUploader(d, stream.WithRecorder(recorder))

		require.NoError(t, u.EnqueueBatch(context.Background(), items("a"), 1))
		u.Finish()

		assert.NotEmpty(t, recorded.Err)
	})

	t.Run("recorder error is not fatal", func(t *testing.T) {
		t.Parallel()

		recorder := &mock.DeliveryRecorder{
			RecordDeliveryFn: func(_ context.Context, _ *harvest.Item, _ harvest.Outcome) error {
				return errors.New("disk full")
			},
		}
		u := stream.NewUploader(succeed(), stream.WithRecorder(recorder))

		require.NoError(t, u.EnqueueBatch(context.Background(), items("a", "b"), 1))
		stats := u.Finish()

		assert.Equal(t, 2, stats.Success)
	})
}

func TestUploader_ExistingIDs(t *testing.T) {
	t.Parallel()

	t.Run("skips known IDs without delivering", func(t *testing.T) {
		t.Parallel()

		var mu sync.Mutex
		var delivered []string
		d := &mock.Deliverer{
			DeliverFn: func(_ context.Context, item *harvest.Item) (harvest.Outcome, error) {
				mu.Lock()
				delivered = append(delivered, item.ID)
				mu.Unlock()
				return harvest.Outcome{Success: true}, nil
			},
		}
		u := stream.NewUploader(d)
		u.AddExistingIDs([]string{"a"})

		require.NoError(t, u.EnqueueBatch(context.Background(), items("a", "b"), 1))
		stats := u.Finish()

		assert.Equal(t, []string{"b"}, delivered)
		assert.Equal(t, 1, stats.Skipped)
		assert.Equal(t, 1, stats.Success)
		assert.Equal(t, 1, stats.Items)
	})

	t.Run("skips duplicates delivered earlier in the run", func(t *testing.T) {
		t.Parallel()

		u := stream.NewUploader(succeed())

		require.NoError(t, u.EnqueueBatch(context.Background(), items("a", "b"), 1))
		require.NoError(t, u.EnqueueBatch(context.Background(), items("b", "c"), 2))
		stats := u.Finish()

		assert.Equal(t, 3, stats.Success)
		assert.Equal(t, 1, stats.Skipped)
	})

	t.Run("failed items are retried when seen again", func(t *testing.T) {
		t.Parallel()

		var calls atomic.Int32
		d := &mock.Deliverer{
			DeliverFn: func(_ context.Context, _ *harvest.Item) (harvest.Outcome, error) {
				if calls.Add(1) == 1 {
					return harvest.Outcome{Err: "busy"}, nil
				}
				return harvest.Outcome{Success: true}, nil
			},
		}
		u := stream.NewUploader(d)

		require.NoError(t, u.EnqueueBatch(context.Background(), items("a"), 1))
		require.NoError(t, u.EnqueueBatch(context.Background(), items("a"), 2))
		stats := u.Finish()

		assert.Equal(t, int32(2), calls.Load())
		assert.Equal(t, 1, stats.Failed)
		assert.Equal(t, 1, stats.Success)
	})
}

func TestUploader_Progress(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	var snapshots []harvest.Stats
	u := stream.NewUploader(succeed(), stream.WithProgress(func(s harvest.Stats) {
		mu.Lock()
		snapshots = append(snapshots, s)
		mu.Unlock()
	}))

	require.NoError(t, u.EnqueueBatch(context.Background(), items("a", "b"), 1))
	require.NoError(t, u.EnqueueBatch(context.Background(), items("c"), 2))
	u.Finish()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, snapshots, 2)
	assert.Equal(t, 1, snapshots[0].Pages)
	assert.Equal(t, 2, snapshots[0].Success)
	assert.Equal(t, 2, snapshots[1].Pages)
	assert.Equal(t, 3, snapshots[1].Success)
}

func TestUploader_Backpressure(t *testing.T) {
	t.Parallel()

	t.Run("blocks producer while queue is full", func(t *testing.T) {
		t.Parallel()

		g := newGate("a")
		u := stream.NewUploader(g.deliverer(), stream.WithQueueSize(1))

		enqueued := make(chan error, 1)
		go func() {
			enqueued <- u.EnqueueBatch(context.Background(), items("a", "b", "c"), 1)
		}()

		<-g.started
		assert.Eventually(t, func() bool { return u.Len() == 1 }, time.Second, time.Millisecond)

		select {
		case <-enqueued:
			t.Fatal("EnqueueBatch should block while the queue is full")
		case <-time.After(20 * time.Millisecond):
		}

		close(g.release)
		require.NoError(t, <-enqueued)

		stats := u.Finish()
		assert.Equal(t, 3, stats.Success)
	})

	t.Run("returns context error when canceled while blocked", func(t *testing.T) {
		t.Parallel()

		g := newGate("a")
		u := stream.NewUploader(g.deliverer(), stream.WithQueueSize(1))

		ctx, cancel := context.WithCancel(context.Background())
		enqueued := make(chan error, 1)
		go func() {
			enqueued <- u.EnqueueBatch(ctx, items("a", "b", "c"), 1)
		}()

		<-g.started
		assert.Eventually(t, func() bool { return u.Len() == 1 }, time.Second, time.Millisecond)
		cancel()

		err := <-enqueued
		require.ErrorIs(t, err, context.Canceled)

		close(g.release)
		stats := u.Finish()
		assert.Equal(t, 2, stats.Success)
	})

	t.Run("abort unblocks a waiting producer", func(t *testing.T) {
		t.Parallel()

		g := newGate("a")
		u := stream.NewUploader(g.deliverer(), stream.WithQueueSize(1))

		enqueued := make(chan error, 1)
		go func() {
			enqueued <- u.EnqueueBatch(context.Background(), items("a", "b", "c"), 1)
		}()

		<-g.started
		assert.Eventually(t, func() bool { return u.Len() == 1 }, time.Second, time.Millisecond)
		u.Abort()

		err := <-enqueued
		assert.Equal(t, harvest.ECLOSED, harvest.ErrorCode(err))

		close(g.release)
		stats := u.Finish()
		assert.Equal(t, 1, stats.Success)
		assert.Equal(t, 1, stats.Discarded)
	})
}

func TestUploader_Abort(t *testing.T) {
	t.Parallel()

	t.Run("discards queued items and keeps the in-flight result", func(t *testing.T) {
		t.Parallel()

		g := newGate("i1")
		u := stream.NewUploader(g.deliverer())

		require.NoError(t, u.EnqueueBatch(context.Background(), items("i1", "i2", "i3"), 1))
		<-g.started

		u.Abort()
		close(g.release)
		stats := u.Finish()

		assert.Equal(t, 1, stats.Success)
		assert.Equal(t, 2, stats.Discarded)
		assert.Equal(t, 1, stats.Items)
	})

	t.Run("cancel policy cancels the in-flight delivery", func(t *testing.T) {
		t.Parallel()

		started := make(chan struct{})
		d := &mock.Deliverer{
			DeliverFn: func(ctx context.Context, _ *harvest.Item) (harvest.Outcome, error) {
				close(started)
				<-ctx.Done()
				return harvest.Outcome{}, ctx.Err()
			},
		}
		u := stream.NewUploader(d, stream.WithAbortPolicy(stream.AbortCancelInFlight))

		require.NoError(t, u.EnqueueBatch(context.Background(), items("a", "b"), 1))
		<-started

		u.Abort()
		stats := u.Finish()

		assert.Equal(t, 1, stats.Failed)
		assert.Equal(t, 1, stats.Discarded)
	})

	t.Run("cancel policy still records a delivery acknowledged after abort", func(t *testing.T) {
		t.Parallel()

		g := newGate("a")
		var recordErr error
		var recorded []string
		rec := &mock.DeliveryRecorder{
			RecordDeliveryFn: func(ctx context.Context, item *harvest.Item, outcome harvest.Outcome) error {
				recordErr = ctx.Err()
				if outcome.Success {
					recorded = append(recorded, item.ID)
				}
				return nil
			},
		}
		u := stream.NewUploader(g.deliverer(),
			stream.WithAbortPolicy(stream.AbortCancelInFlight),
			stream.WithRecorder(rec),
		)

		require.NoError(t, u.EnqueueBatch(context.Background(), items("a", "b"), 1))
		<-g.started

		u.Abort()
		close(g.release)
		stats := u.Finish()

		assert.Equal(t, 1, stats.Success)
		require.NoError(t, recordErr)
		assert.Equal(t, []string{"a"}, recorded)
	})

	t.Run("is safe to call twice", func(t *testing.T) {
		t.Parallel()

		u := stream.NewUploader(succeed())
		u.Abort()
		u.Abort()

		stats := u.Finish()
		assert.Equal(t, harvest.Stats{}, stats)
	})

	t.Run("force finish aborts and returns stats", func(t *testing.T) {
		t.Parallel()

		g := newGate("a")
		u := stream.NewUploader(g.deliverer())

		require.NoError(t, u.EnqueueBatch(context.Background(), items("a", "b"), 1))
		<-g.started

		done := make(chan harvest.Stats, 1)
		go func() { done <- u.FinishForce() }()
		assert.Eventually(t, func() bool { return u.Len() == 0 }, time.Second, time.Millisecond)
		close(g.release)

		stats := <-done
		assert.Equal(t, 1, stats.Success)
		assert.Equal(t, 1, stats.Discarded)
	})
}

func TestUploader_Closed(t *testing.T) {
	t.Parallel()

	t.Run("rejects batches after finish", func(t *testing.T) {
		t.Parallel()

		u := stream.NewUploader(succeed())
		u.Finish()

		err := u.EnqueueBatch(context.Background(), items("a"), 1)
		assert.Equal(t, harvest.ECLOSED, harvest.ErrorCode(err))

		err = u.EnqueueBatch(context.Background(), nil, 2)
		assert.Equal(t, harvest.ECLOSED, harvest.ErrorCode(err))
	})

	t.Run("rejects batches after abort", func(t *testing.T) {
		t.Parallel()

		u := stream.NewUploader(succeed())
		u.Abort()

		err := u.EnqueueBatch(context.Background(), items("a"), 1)
		assert.Equal(t, harvest.ECLOSED, harvest.ErrorCode(err))
		u.Finish()
	})
}
