package stream

import (
	"context"
	"sync"

	"github.com/fwojciec/harvest"
)

// entry is one queued item with its page and enqueue sequence number.
type entry struct {
	item *harvest.Item
	page int
	seq  uint64
	// last marks the final item of a batch.
	last bool
}

// queue is a bounded FIFO shared by one producer and one worker.
// All state is guarded by mu; cond signals both "item available" and
// "space available".
type queue struct {
	mu        sync.Mutex
	cond      *sync.Cond
	entries   []entry
	capacity  int
	seq       uint64
	closed    bool
	aborted   bool
	discarded int
}

func newQueue(capacity int) *queue {
	if capacity <= 0 {
		capacity = DefaultQueueSize
	}
	q := &queue{capacity: capacity}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// put appends e, blocking while the queue is full. It returns an ECLOSED
// error once the queue is closed or aborted, and ctx.Err() if the context
// ends while waiting for space.
func (q *queue) put(ctx context.Context, e entry) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.entries) >= q.capacity && !q.closed && !q.aborted {
		// Wake the waiter below when ctx ends. Taking the lock first
		// prevents the broadcast from slipping in between the ctx check
		// and cond.Wait.
		stop := context.AfterFunc(ctx, func() {
			q.mu.Lock()
			q.cond.Broadcast()
			q.mu.Unlock()
		})
		defer stop()
	}

	for len(q.entries) >= q.capacity && !q.closed && !q.aborted {
		if err := ctx.Err(); err != nil {
			return err
		}
		q.cond.Wait()
	}
	if q.closed || q.aborted {
		return harvest.Errorf(harvest.ECLOSED, "delivery queue closed")
	}

	q.seq++
	e.seq = q.seq
	q.entries = append(q.entries, e)
	q.cond.Broadcast()
	return nil
}

// take removes the head entry, blocking while the queue is empty and open.
// The bool result is false once the queue is aborted, or closed and drained.
func (q *queue) take() (entry, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.entries) == 0 && !q.closed && !q.aborted {
		q.cond.Wait()
	}
	if q.aborted || len(q.entries) == 0 {
		return entry{}, false
	}

	e := q.entries[0]
	q.entries[0] = entry{}
	q.entries = q.entries[1:]
	q.cond.Broadcast()
	return e, true
}

// close rejects further puts. Queued entries remain available to take.
func (q *queue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.cond.Broadcast()
}

// abort rejects further puts and drops queued entries.
// It returns the number of entries dropped by this call.
func (q *queue) abort() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := len(q.entries)
	q.aborted = true
	q.discarded += n
	q.entries = nil
	q.cond.Broadcast()
	return n
}

// isClosed reports whether puts are rejected.
func (q *queue) isClosed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed || q.aborted
}

// len returns the number of queued entries.
func (q *queue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// discardedCount returns the number of entries dropped by abort.
func (q *queue) discardedCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.discarded
}
