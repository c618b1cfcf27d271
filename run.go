package harvest

import (
	"context"
	"time"
)

// Run status values.
const (
	RunRunning   = "running"
	RunCompleted = "completed"
	RunStopped   = "stopped"
	RunFailed    = "failed"
)

// Run records one collection run of a source.
type Run struct {
	ID         string    `json:"id"`
	Source     string    `json:"source"`
	Status     string    `json:"status"`
	Stats      Stats     `json:"stats"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`
}

// Validate returns an error if the run contains invalid fields.
func (r *Run) Validate() error {
	if r.Source == "" {
		return Errorf(EINVALID, "run source required")
	}
	return nil
}

// RunParams configures a single collection run.
type RunParams struct {
	Pages       int  `json:"pages"`
	Limit       int  `json:"limit"`
	SkipDetails bool `json:"skipDetails"`
}

// RunService represents a service for recording runs.
type RunService interface {
	// CreateRun records the start of a run and assigns its ID.
	CreateRun(ctx context.Context, run *Run) error

	// FinishRun stores the final status and stats of a run.
	// Returns ENOTFOUND if the run does not exist.
	FinishRun(ctx context.Context, id string, status string, stats Stats, runErr error) error

	// FindRuns retrieves runs matching the filter, newest first.
	FindRuns(ctx context.Context, filter RunFilter) ([]*Run, error)
}

// RunFilter represents a filter for FindRuns.
type RunFilter struct {
	Source *string `json:"source"`
	Limit  int     `json:"limit"`
}

// DeliveryLedger remembers which items a source has already delivered.
type DeliveryLedger interface {
	// DeliveredIDs returns the IDs successfully delivered for a source.
	DeliveredIDs(ctx context.Context, source string) ([]string, error)

	// Recorder returns a DeliveryRecorder that stores deliveries of the
	// given run under its source.
	Recorder(source, runID string) DeliveryRecorder
}
