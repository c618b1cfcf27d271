// Package control implements the interrupt and status control plane that
// lets an operator pause or stop a running collection at safe points.
package control

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/fwojciec/harvest"
)

// DefaultPollInterval is how often a paused plane re-polls its command source.
const DefaultPollInterval = 500 * time.Millisecond

// Compile-time interface verification.
var _ harvest.Controller = (*Plane)(nil)

// Plane holds the current interrupt signal and run status.
//
// Signal is last-write-wins except that stop is terminal: once stopped,
// a Plane never resumes. Use a new Plane for a new run.
//
// The command source is edge-triggered: a polled signal is applied only
// when it differs from the previous one polled, so a source that keeps
// reporting the same value does not undo a local SetSignal.
type Plane struct {
	source   harvest.CommandSource
	interval time.Duration
	logger   *slog.Logger
	onStatus func(harvest.Status)

	mu     sync.Mutex
	signal harvest.Signal
	status harvest.Status
	// remote is the last signal read from the command source.
	remote harvest.Signal
	// changed is closed and replaced on every signal change.
	changed chan struct{}
}

// Option configures a Plane.
type Option func(*Plane)

// WithCommandSource sets the source polled while paused and by Watch.
func WithCommandSource(s harvest.CommandSource) Option {
	return func(p *Plane) {
		p.source = s
	}
}

// WithPollInterval sets how often the command source is polled.
// Defaults to DefaultPollInterval if not specified.
func WithPollInterval(d time.Duration) Option {
	return func(p *Plane) {
		p.interval = d
	}
}

// WithLogger sets the logger for signal and status changes.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Plane) {
		p.logger = logger
	}
}

// WithStatusHook sets a function called after every status change.
func WithStatusHook(fn func(harvest.Status)) Option {
	return func(p *Plane) {
		p.onStatus = fn
	}
}

// NewPlane creates a Plane with no signal and idle status.
func NewPlane(opts ...Option) *Plane {
	p := &Plane{
		interval: DefaultPollInterval,
		signal:   harvest.SignalNone,
		status:   harvest.StatusIdle,
		remote:   harvest.SignalNone,
		changed:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.interval <= 0 {
		p.interval = DefaultPollInterval
	}
	if p.logger == nil {
		p.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return p
}

// SetSignal records sig as the latest request and wakes paused callers.
// It returns an ECONFLICT error if the plane is already stopped and sig is
// not stop, and an EINVALID error for unknown signals.
func (p *Plane) SetSignal(sig harvest.Signal) error {
	switch sig {
	case harvest.SignalNone, harvest.SignalPause, harvest.SignalStop:
	default:
		return harvest.Errorf(harvest.EINVALID, "unknown signal %q", sig)
	}

	p.mu.Lock()
	prev := p.signal
	if prev == harvest.SignalStop && sig != harvest.SignalStop {
		p.mu.Unlock()
		return harvest.Errorf(harvest.ECONFLICT, "run already stopped")
	}
	p.signal = sig
	close(p.changed)
	p.changed = make(chan struct{})
	p.mu.Unlock()

	if prev != sig {
		p.logger.Info("signal changed", "from", prev, "to", sig)
	}
	return nil
}

// Signal returns the current signal.
func (p *Plane) Signal() harvest.Signal {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.signal
}

// Status returns the current run status.
func (p *Plane) Status() harvest.Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

// SetBusy marks the process as actively working.
func (p *Plane) SetBusy() {
	p.setStatus(harvest.StatusBusy)
}

// SetIdle marks the process as waiting for work.
func (p *Plane) SetIdle() {
	p.setStatus(harvest.StatusIdle)
}

func (p *Plane) setStatus(s harvest.Status) {
	p.mu.Lock()
	p.status = s
	p.mu.Unlock()
	p.logger.Debug("status changed", "status", s)
	if p.onStatus != nil {
		p.onStatus(s)
	}
}

// CheckInterrupt returns nil when the run may continue.
//
// While paused it blocks, polling the command source every poll interval
// and waking early on SetSignal, until the signal is cleared or set to
// stop. Once stopped it returns an ESTOPPED error. If ctx ends while
// paused, it returns ctx.Err().
func (p *Plane) CheckInterrupt(ctx context.Context) error {
	paused := false
	for {
		p.mu.Lock()
		sig, changed := p.signal, p.changed
		p.mu.Unlock()

		switch sig {
		case harvest.SignalStop:
			return stopped()
		case harvest.SignalPause:
		default:
			if paused {
				p.logger.Info("resumed")
			}
			return nil
		}

		if !paused {
			paused = true
			p.logger.Info("paused")
		}

		timer := time.NewTimer(p.interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-changed:
			timer.Stop()
		case <-timer.C:
			p.poll(ctx)
		}
	}
}

// Watch polls the command source every poll interval until ctx ends or
// the plane is stopped. It returns nil once stopped.
func (p *Plane) Watch(ctx context.Context) error {
	if p.source == nil {
		<-ctx.Done()
		return ctx.Err()
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		p.poll(ctx)
		if p.Signal() == harvest.SignalStop {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// poll applies the latest command from the source if it changed since the
// previous poll. Poll failures keep the current signal.
func (p *Plane) poll(ctx context.Context) {
	if p.source == nil {
		return
	}
	sig, err := p.source.Poll(ctx)
	if err != nil {
		if ctx.Err() == nil {
			p.logger.Warn("poll commands", "err", err)
		}
		return
	}
	if sig == "" {
		return
	}
	p.mu.Lock()
	prev := p.remote
	p.remote = sig
	p.mu.Unlock()
	if sig == prev {
		return
	}
	if err := p.SetSignal(sig); err != nil && harvest.ErrorCode(err) != harvest.ECONFLICT {
		p.logger.Warn("apply command", "signal", sig, "err", err)
	}
}

func stopped() error {
	return harvest.Errorf(harvest.ESTOPPED, "run stopped")
}
