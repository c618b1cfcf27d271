package control

import (
	"context"
	"iter"
	"sync/atomic"

	"github.com/fwojciec/harvest"
)

// Runner wraps work with interrupt checks and counts processed items.
type Runner struct {
	checker   harvest.InterruptChecker
	processed atomic.Int64
}

// NewRunner returns a Runner consulting checker at every checkpoint.
func NewRunner(checker harvest.InterruptChecker) *Runner {
	return &Runner{checker: checker}
}

// Checkpoint blocks while paused and returns an ESTOPPED error once stopped.
func (r *Runner) Checkpoint(ctx context.Context) error {
	return r.checker.CheckInterrupt(ctx)
}

// Run calls fn between two checkpoints. An interrupt observed after fn
// returns is reported even if fn succeeded.
func (r *Runner) Run(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := r.Checkpoint(ctx); err != nil {
		return err
	}
	if err := fn(ctx); err != nil {
		return err
	}
	return r.Checkpoint(ctx)
}

// ItemsProcessed returns the number of elements yielded by Iterate.
func (r *Runner) ItemsProcessed() int {
	return int(r.processed.Load())
}

// Iterate wraps seq so that an interrupt check runs before every element.
//
// On stop, the returned sequence yields the zero value with the stop error
// once and ends. The sequence is single-use: ranging over it again yields
// an EINVALID error.
func Iterate[T any](ctx context.Context, r *Runner, seq iter.Seq[T]) iter.Seq2[T, error] {
	var used atomic.Bool
	return func(yield func(T, error) bool) {
		var zero T
		if !used.CompareAndSwap(false, true) {
			yield(zero, harvest.Errorf(harvest.EINVALID, "sequence already consumed"))
			return
		}
		for v := range seq {
			if err := r.Checkpoint(ctx); err != nil {
				yield(zero, err)
				return
			}
			r.processed.Add(1)
			if !yield(v, nil) {
				return
			}
		}
	}
}
