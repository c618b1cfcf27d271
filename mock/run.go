package mock

import (
	"context"

	"github.com/fwojciec/harvest"
)

var _ harvest.RunService = (*RunService)(nil)

// RunService is a mock implementation of harvest.RunService.
type RunService struct {
	CreateRunFn func(ctx context.Context, run *harvest.Run) error
	FinishRunFn func(ctx context.Context, id string, status string, stats harvest.Stats, runErr error) error
	FindRunsFn  func(ctx context.Context, filter harvest.RunFilter) ([]*harvest.Run, error)
}

func (s *RunService) CreateRun(ctx context.Context, run *harvest.Run) error {
	return s.CreateRunFn(ctx, run)
}

func (s *RunService) FinishRun(ctx context.Context, id string, status string, stats harvest.Stats, runErr error) error {
	return s.FinishRunFn(ctx, id, status, stats, runErr)
}

func (s *RunService) FindRuns(ctx context.Context, filter harvest.RunFilter) ([]*harvest.Run, error) {
	return s.FindRunsFn(ctx, filter)
}

var _ harvest.DeliveryLedger = (*DeliveryLedger)(nil)

// DeliveryLedger is a mock implementation of harvest.DeliveryLedger.
type DeliveryLedger struct {
	DeliveredIDsFn func(ctx context.Context, source string) ([]string, error)
	RecorderFn     func(source, runID string) harvest.DeliveryRecorder
}

func (l *DeliveryLedger) DeliveredIDs(ctx context.Context, source string) ([]string, error) {
	return l.DeliveredIDsFn(ctx, source)
}

func (l *DeliveryLedger) Recorder(source, runID string) harvest.DeliveryRecorder {
	return l.RecorderFn(source, runID)
}
