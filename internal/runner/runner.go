// Package runner drives a simulator automatically, one trading day per
// tick, and publishes a snapshot after every step.
package runner

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"gpwsim/internal/errors"
	"gpwsim/internal/logging"
	"gpwsim/internal/models"
	"gpwsim/internal/stream"
	"gpwsim/internal/trading"
)

// Runner serializes all access to one Simulator. Manual operations go
// through Do so they never interleave with an automatic step.
type Runner struct {
	mu       sync.Mutex
	sim      *trading.Simulator
	hub      *stream.Hub
	interval time.Duration
	logger   zerolog.Logger

	pending  []models.ClosureEvent
	closures []models.ClosureEvent

	pauseMu  sync.Mutex
	resumeCh chan struct{}
}

// Option configures a Runner.
type Option func(*Runner)

// WithInterval sets the wall-clock delay before each automatic step.
func WithInterval(d time.Duration) Option {
	return func(r *Runner) { r.interval = d }
}

// WithHub publishes a snapshot to hub after every step.
func WithHub(hub *stream.Hub) Option {
	return func(r *Runner) { r.hub = hub }
}

// WithLogger sets the runner logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(r *Runner) { r.logger = logger }
}

// New creates a runner around sim.
func New(sim *trading.Simulator, opts ...Option) *Runner {
	r := &Runner{
		sim:    sim,
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	sim.OnClose(func(ev models.ClosureEvent) {
		r.pending = append(r.pending, ev)
		r.closures = append(r.closures, ev)
		logging.LogClosure(r.logger, ev)
	})
	return r
}

// Do runs fn with exclusive access to the simulator.
func (r *Runner) Do(fn func(sim *trading.Simulator) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return fn(r.sim)
}

// Step advances one day and publishes the resulting snapshot. It reports
// whether the simulator moved.
func (r *Runner) Step() (models.Snapshot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.sim.Advance() {
		return r.sim.Snapshot(), false
	}

	snap := r.sim.Snapshot()
	snap.Closures = r.pending
	r.pending = nil

	if history := r.sim.Portfolio().History(); len(history) > 0 {
		logging.LogStep(r.logger, history[len(history)-1], len(snap.Positions))
	}
	if r.hub != nil {
		r.hub.Publish(snap)
	}
	return snap, true
}

// Run steps until the simulator stops moving, maxSteps steps were taken
// (0 means no limit), or ctx is cancelled. It returns the number of steps.
func (r *Runner) Run(ctx context.Context, maxSteps int) (int, error) {
	var state trading.State
	r.Do(func(sim *trading.Simulator) error {
		state = sim.State()
		return nil
	})
	if state == trading.StateNotStarted {
		return 0, errors.ErrNotStarted
	}

	r.logger.Info().
		Dur("interval", r.interval).
		Int("max_steps", maxSteps).
		Msg("Auto-advance started")

	steps := 0
	for maxSteps <= 0 || steps < maxSteps {
		if err := r.waitIfPaused(ctx); err != nil {
			return steps, err
		}
		if err := r.wait(ctx); err != nil {
			return steps, err
		}
		// A Pause during the interval holds this step too.
		if err := r.waitIfPaused(ctx); err != nil {
			return steps, err
		}
		if _, moved := r.Step(); !moved {
			break
		}
		steps++
	}

	r.logger.Info().Int("steps", steps).Msg("Auto-advance finished")
	return steps, nil
}

func (r *Runner) wait(ctx context.Context) error {
	if r.interval <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(r.interval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Pause holds Run before its next step until Resume is called.
func (r *Runner) Pause() {
	r.pauseMu.Lock()
	defer r.pauseMu.Unlock()
	if r.resumeCh == nil {
		r.resumeCh = make(chan struct{})
	}
}

// Resume releases a paused Run.
func (r *Runner) Resume() {
	r.pauseMu.Lock()
	defer r.pauseMu.Unlock()
	if r.resumeCh != nil {
		close(r.resumeCh)
		r.resumeCh = nil
	}
}

// Paused reports whether the runner is paused.
func (r *Runner) Paused() bool {
	r.pauseMu.Lock()
	defer r.pauseMu.Unlock()
	return r.resumeCh != nil
}

func (r *Runner) waitIfPaused(ctx context.Context) error {
	r.pauseMu.Lock()
	ch := r.resumeCh
	r.pauseMu.Unlock()
	if ch == nil {
		return nil
	}
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Snapshot returns the current simulator snapshot.
func (r *Runner) Snapshot() models.Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sim.Snapshot()
}

// Closures returns every automatic closure seen so far.
func (r *Runner) Closures() []models.ClosureEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.ClosureEvent, len(r.closures))
	copy(out, r.closures)
	return out
}
