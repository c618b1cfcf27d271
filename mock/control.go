package mock

import (
	"context"

	"github.com/fwojciec/harvest"
)

var _ harvest.CommandSource = (*CommandSource)(nil)

// CommandSource is a mock implementation of harvest.CommandSource.
type CommandSource struct {
	PollFn func(ctx context.Context) (harvest.Signal, error)
}

func (s *CommandSource) Poll(ctx context.Context) (harvest.Signal, error) {
	return s.PollFn(ctx)
}

var _ harvest.Controller = (*Controller)(nil)

// Controller is a mock implementation of harvest.Controller.
type Controller struct {
	CheckInterruptFn func(ctx context.Context) error
	SetBusyFn        func()
	SetIdleFn        func()
}

func (c *Controller) CheckInterrupt(ctx context.Context) error {
	return c.CheckInterruptFn(ctx)
}

func (c *Controller) SetBusy() {
	c.SetBusyFn()
}

func (c *Controller) SetIdle() {
	c.SetIdleFn()
}
