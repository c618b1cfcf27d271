package harvest

import (
	"context"
	"strings"
)

// Signal is the latest control request from outside the run.
type Signal string

// Signal values.
const (
	SignalNone  Signal = "none"
	SignalPause Signal = "pause"
	SignalStop  Signal = "stop"
)

// ParseSignal converts a command name into a Signal.
// "resume" and "run" are accepted as aliases for SignalNone.
func ParseSignal(s string) (Signal, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "none", "resume", "run":
		return SignalNone, nil
	case "pause":
		return SignalPause, nil
	case "stop":
		return SignalStop, nil
	default:
		return "", Errorf(EINVALID, "unknown signal %q", s)
	}
}

// Status is the externally visible state of the process.
type Status string

// Status values.
const (
	StatusIdle Status = "idle"
	StatusBusy Status = "busy"
)

// CommandSource is polled for the latest control request.
// An empty Signal means no new command.
type CommandSource interface {
	Poll(ctx context.Context) (Signal, error)
}

// InterruptChecker is consulted at safe points between items.
type InterruptChecker interface {
	// CheckInterrupt returns nil when the run may continue. It blocks while
	// the run is paused and returns an ESTOPPED error once it is stopped.
	CheckInterrupt(ctx context.Context) error
}

// Controller is an InterruptChecker that also reports run status.
type Controller interface {
	InterruptChecker
	SetBusy()
	SetIdle()
}
