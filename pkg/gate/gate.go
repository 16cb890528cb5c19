// Package gate implements the operator confirmation state machine that sits
// in front of every motion checkpoint.
//
// A Gate holds two autonomy levels. Single-step autonomy skips ordinary
// checkpoints; full autonomy additionally skips the checkpoint guarding
// physical execution. An operator (or any anomaly detector) can revoke both
// at once with RequestStop, which takes effect at the next checkpoint.
package gate

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/teslashibe/go-motionexec/internal/log"
)

// DefaultPollInterval bounds how long a waiter goes without re-checking state.
const DefaultPollInterval = 250 * time.Millisecond

// Config holds the initial gate mode.
type Config struct {
	SingleStepAutonomous bool          `yaml:"autonomous" toml:"autonomous" json:"autonomous"`
	FullAutonomous       bool          `yaml:"full_autonomous" toml:"full_autonomous" json:"full_autonomous"`
	PollInterval         time.Duration `yaml:"poll_interval" toml:"poll_interval" json:"poll_interval"`
}

// Status is a snapshot of the gate state.
type Status struct {
	SingleStepAutonomous bool   `json:"autonomous"`
	FullAutonomous       bool   `json:"full_autonomous"`
	StopRequested        bool   `json:"stop_requested"`
	Waiting              bool   `json:"waiting"`
	NextStepReady        bool   `json:"next_step_ready"`
	Checkpoint           string `json:"checkpoint,omitempty"`
}

// Gate is safe for concurrent use. One goroutine typically blocks in
// WaitForStep/WaitForFullStep while operator handlers flip flags.
type Gate struct {
	logger       *slog.Logger
	pollInterval time.Duration

	mu         sync.Mutex
	single     bool
	full       bool
	stop       bool
	waiting    bool
	ready      bool
	checkpoint string
	changed    chan struct{}
	observers  []func(Status)
}

// New creates a gate in the given mode. Full autonomy implies single-step
// autonomy. A nil logger uses the package default.
func New(cfg Config, logger *slog.Logger) *Gate {
	if logger == nil {
		logger = log.WithComponent("gate")
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}

	g := &Gate{
		logger:       logger,
		pollInterval: cfg.PollInterval,
		single:       cfg.SingleStepAutonomous || cfg.FullAutonomous,
		full:         cfg.FullAutonomous,
		changed:      make(chan struct{}),
	}

	if g.single {
		logger.Info("in autonomous mode - will only stop at full-step checkpoints")
	}
	if g.full {
		logger.Info("in full autonomous mode - will ignore checkpoints")
	}
	return g
}

// OnChange registers fn to be called with a fresh snapshot after every
// state change. fn runs on the goroutine that made the change and must not
// block.
func (g *Gate) OnChange(fn func(Status)) {
	g.mu.Lock()
	g.observers = append(g.observers, fn)
	g.mu.Unlock()
}

// RequestReady releases a pending wait. When no wait is pending the request
// is remembered and consumed by the next wait. It also clears a stop request.
func (g *Gate) RequestReady() bool {
	g.update(func() {
		g.stop = false
		g.ready = true
	})
	g.logger.Debug("ready for next step")
	return true
}

// SetSingleStepAutonomous sets single-step autonomy and clears a stop request.
func (g *Gate) SetSingleStepAutonomous(v bool) {
	g.update(func() {
		g.single = v
		g.stop = false
	})
}

// SetFullAutonomous sets full autonomy. Single-step autonomy follows the same
// value. A stop request is cleared.
func (g *Gate) SetFullAutonomous(v bool) {
	g.update(func() {
		g.full = v
		g.single = v
		g.stop = false
	})
}

// RequestStop with v=true revokes both autonomy levels, drops a latched
// ready and records the stop; with v=false it only clears the stop flag.
func (g *Gate) RequestStop(v bool) {
	g.update(func() {
		g.stop = v
		if v {
			g.revokeLocked()
		}
	})
	if v {
		g.logger.Warn("stop requested, autonomy revoked")
	}
}

// RevokeAutonomy clears both autonomy levels and any latched ready, so the
// next checkpoint waits for a fresh operator confirmation. The stop flag is
// left alone.
func (g *Gate) RevokeAutonomy() {
	g.update(g.revokeLocked)
	g.logger.Warn("autonomy revoked")
}

func (g *Gate) revokeLocked() {
	g.single = false
	g.full = false
	g.ready = false
}

// SingleStepAutonomous reports whether ordinary checkpoints are skipped.
func (g *Gate) SingleStepAutonomous() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.single
}

// FullAutonomous reports whether all checkpoints are skipped.
func (g *Gate) FullAutonomous() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.full
}

// StopRequested reports whether a stop is pending.
func (g *Gate) StopRequested() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.stop
}

// Status returns a snapshot of the gate.
func (g *Gate) Status() Status {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.snapshotLocked()
}

// WaitForStep blocks at an ordinary checkpoint unless single-step autonomy
// is on. It returns false only when ctx ends before the step is released.
func (g *Gate) WaitForStep(ctx context.Context, checkpoint string) bool {
	return g.wait(ctx, checkpoint, false)
}

// WaitForFullStep blocks at the physical-execution checkpoint unless full
// autonomy is on. It returns false only when ctx ends before the step is
// released.
func (g *Gate) WaitForFullStep(ctx context.Context, checkpoint string) bool {
	return g.wait(ctx, checkpoint, true)
}

func (g *Gate) autonomousLocked(full bool) bool {
	if full {
		return g.full
	}
	return g.single
}

func (g *Gate) wait(ctx context.Context, checkpoint string, full bool) bool {
	g.mu.Lock()
	if g.autonomousLocked(full) {
		g.mu.Unlock()
		return true
	}

	g.waiting = true
	g.checkpoint = checkpoint
	observers, snap := g.changedLocked()
	g.mu.Unlock()
	notify(observers, snap)

	g.logger.Info("waiting for operator", "checkpoint", checkpoint, "full_step", full)

	ticker := time.NewTicker(g.pollInterval)
	defer ticker.Stop()

	g.mu.Lock()
	for !g.ready && !g.autonomousLocked(full) {
		changed := g.changed
		g.mu.Unlock()

		select {
		case <-ctx.Done():
			g.mu.Lock()
			g.waiting = false
			g.checkpoint = ""
			observers, snap := g.changedLocked()
			g.mu.Unlock()
			notify(observers, snap)
			g.logger.Warn("wait abandoned", "checkpoint", checkpoint, "error", ctx.Err())
			return false
		case <-changed:
		case <-ticker.C:
		}

		g.mu.Lock()
	}

	g.ready = false
	g.waiting = false
	g.checkpoint = ""
	observers, snap = g.changedLocked()
	g.mu.Unlock()
	notify(observers, snap)

	g.logger.Info("step released", "checkpoint", checkpoint)
	return true
}

// update applies fn under the lock, then wakes waiters and observers.
func (g *Gate) update(fn func()) {
	g.mu.Lock()
	fn()
	observers, snap := g.changedLocked()
	g.mu.Unlock()
	notify(observers, snap)
}

// changedLocked wakes every waiter and returns what observers should see.
func (g *Gate) changedLocked() ([]func(Status), Status) {
	close(g.changed)
	g.changed = make(chan struct{})
	return g.observers, g.snapshotLocked()
}

func (g *Gate) snapshotLocked() Status {
	return Status{
		SingleStepAutonomous: g.single,
		FullAutonomous:       g.full,
		StopRequested:        g.stop,
		Waiting:              g.waiting,
		NextStepReady:        g.ready,
		Checkpoint:           g.checkpoint,
	}
}

func notify(observers []func(Status), s Status) {
	for _, fn := range observers {
		fn(s)
	}
}
