package control

import (
	"context"
	"time"

	"github.com/fwojciec/harvest"
)

// SleepSlice is the longest stretch Sleep waits without checking interrupts.
const SleepSlice = 500 * time.Millisecond

// Sleep waits for d in SleepSlice steps, checking for interrupts before
// each step. It returns early with the interrupt error or ctx.Err().
// A nil checker only honors ctx.
func Sleep(ctx context.Context, checker harvest.InterruptChecker, d time.Duration) error {
	for d > 0 {
		if checker != nil {
			if err := checker.CheckInterrupt(ctx); err != nil {
				return err
			}
		}
		step := min(d, SleepSlice)
		timer := time.NewTimer(step)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		d -= step
	}
	return nil
}
