package slog

import (
	"context"
	"log/slog"
	"time"

	"github.com/fwojciec/harvest"
)

var (
	_ harvest.Deliverer     = (*LoggingDeliverer)(nil)
	_ harvest.CommandSource = (*LoggingCommandSource)(nil)
)

// LoggingDeliverer wraps a Deliverer with per-item logging.
type LoggingDeliverer struct {
	next   harvest.Deliverer
	logger *slog.Logger
}

// NewLoggingDeliverer creates a new LoggingDeliverer.
func NewLoggingDeliverer(next harvest.Deliverer, logger *slog.Logger) *LoggingDeliverer {
	return &LoggingDeliverer{next: next, logger: logger}
}

// Deliver logs the outcome of one delivery.
func (d *LoggingDeliverer) Deliver(ctx context.Context, item *harvest.Item) (out harvest.Outcome, err error) {
	defer func(begin time.Time) {
		d.logger.Debug("deliver",
			"id", item.ID,
			"success", out.Success,
			"delivered", out.Delivered,
			"failed", out.Failed,
			"duration", time.Since(begin),
			"err", err,
		)
	}(time.Now())
	return d.next.Deliver(ctx, item)
}

// LoggingCommandSource wraps a CommandSource, logging received commands
// and poll errors. Empty polls are not logged.
type LoggingCommandSource struct {
	next   harvest.CommandSource
	logger *slog.Logger
}

// NewLoggingCommandSource creates a new LoggingCommandSource.
func NewLoggingCommandSource(next harvest.CommandSource, logger *slog.Logger) *LoggingCommandSource {
	return &LoggingCommandSource{next: next, logger: logger}
}

// Poll delegates to the wrapped source.
func (s *LoggingCommandSource) Poll(ctx context.Context) (harvest.Signal, error) {
	sig, err := s.next.Poll(ctx)
	switch {
	case err != nil:
		s.logger.Debug("command poll", "err", err)
	case sig != "":
		s.logger.Info("command received", "signal", sig)
	}
	return sig, err
}
