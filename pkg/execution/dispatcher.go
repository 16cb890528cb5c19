// Package execution dispatches planned motions to the robot.
//
// A Dispatcher takes a joint trajectory through archiving, visualization,
// timing validation and the operator checkpoint before handing it to a
// Backend. Two backends exist: ManagedBackend delegates to an external
// execution service; DirectBackend publishes fire-and-forget.
package execution

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/teslashibe/go-motionexec/internal/log"
	"github.com/teslashibe/go-motionexec/pkg/gate"
	"github.com/teslashibe/go-motionexec/pkg/trajectory"
)

// ExecuteCheckpoint labels the full-step wait in front of every send.
const ExecuteCheckpoint = "execute trajectory"

// Config holds the dispatch options fixed at construction.
type Config struct {
	PersistToFile          bool                      `yaml:"save_traj_to_file" toml:"save_traj_to_file"`
	PersistPath            string                    `yaml:"save_traj_to_file_path" toml:"save_traj_to_file_path"`
	VisualizeLine          bool                      `yaml:"visualize_trajectory_line" toml:"visualize_trajectory_line"`
	VisualizePath          bool                      `yaml:"visualize_trajectory_path" toml:"visualize_trajectory_path"`
	ValidateWaypointTiming bool                      `yaml:"check_for_waypoint_jumps" toml:"check_for_waypoint_jumps"`
	FrameID                string                    `yaml:"frame_id" toml:"frame_id"`
	Thresholds             trajectory.JumpThresholds `yaml:"-" toml:"-"`
}

// DefaultConfig returns the dispatch defaults.
func DefaultConfig() Config {
	return Config{
		PersistPath:            "~/trajectories",
		ValidateWaypointTiming: true,
		FrameID:                trajectory.DefaultFrame,
		Thresholds:             trajectory.DefaultJumpThresholds(),
	}
}

// Visualizer draws trajectories for operators. Failures are advisory.
type Visualizer interface {
	DeleteAllMarkers(ctx context.Context) error
	PublishTrajectoryLine(ctx context.Context, t *trajectory.JointTrajectory, group string) error
	PublishTrajectoryPath(ctx context.Context, t *trajectory.JointTrajectory, group string) error
}

// Outcome describes one SendTrajectory call.
type Outcome struct {
	Group       string
	Mode        Mode
	Points      int
	Duration    time.Duration
	Fingerprint string
	ArchivePath string
	Jumps       []trajectory.Jump
	LockedOut   bool
	Waited      bool
	StartedAt   time.Time
	FinishedAt  time.Time
	Err         error
}

// Journal records dispatch outcomes.
type Journal interface {
	Record(ctx context.Context, o Outcome) error
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithPosePublisher sets the publisher used by SendPose. Dispatchers over a
// DirectBackend default to the backend's publisher.
func WithPosePublisher(p Publisher) Option {
	return func(d *Dispatcher) { d.poses = p }
}

// WithVisualizer sets the marker collaborator.
func WithVisualizer(v Visualizer) Option {
	return func(d *Dispatcher) { d.viz = v }
}

// WithJournal records every dispatch outcome.
func WithJournal(j Journal) Option {
	return func(d *Dispatcher) { d.journal = j }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) { d.logger = l }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) { d.now = now }
}

// Dispatcher sends motion commands through a Gate to a Backend.
// Calls must be serialized by the caller.
type Dispatcher struct {
	cfg     Config
	gate    *gate.Gate
	backend Backend
	archive *trajectory.Archive

	poses   Publisher
	viz     Visualizer
	journal Journal
	logger  *slog.Logger
	now     func() time.Time
}

// New creates a dispatcher.
func New(cfg Config, g *gate.Gate, backend Backend, opts ...Option) (*Dispatcher, error) {
	if g == nil {
		return nil, errors.New("execution: gate required")
	}
	if backend == nil {
		return nil, errors.New("execution: backend required")
	}
	if cfg.FrameID == "" {
		cfg.FrameID = trajectory.DefaultFrame
	}
	if cfg.Thresholds == (trajectory.JumpThresholds{}) {
		cfg.Thresholds = trajectory.DefaultJumpThresholds()
	}
	if cfg.Thresholds.Warn > cfg.Thresholds.Error {
		return nil, fmt.Errorf("execution: warn threshold %v above error threshold %v", cfg.Thresholds.Warn, cfg.Thresholds.Error)
	}
	if cfg.PersistToFile && cfg.PersistPath == "" {
		return nil, errors.New("execution: save_traj_to_file_path required when saving trajectories")
	}

	d := &Dispatcher{
		cfg:     cfg,
		gate:    g,
		backend: backend,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.logger == nil {
		d.logger = log.WithComponent("execution")
	}
	if d.poses == nil {
		if db, ok := backend.(*DirectBackend); ok {
			d.poses = db.Publisher()
		}
	}
	if cfg.PersistToFile {
		d.archive = trajectory.NewArchive(cfg.PersistPath)
	}

	d.logger.Info("execution dispatcher ready", "mode", backend.Mode(), "frame", cfg.FrameID)
	return d, nil
}

// Mode returns the backend mode.
func (d *Dispatcher) Mode() Mode {
	return d.backend.Mode()
}

// Gate returns the gate the dispatcher waits on.
func (d *Dispatcher) Gate() *gate.Gate {
	return d.gate
}

// SendPose stamps pose with the current time and the dispatcher frame and
// publishes it. Poses are streaming commands and skip the gate.
func (d *Dispatcher) SendPose(ctx context.Context, pose trajectory.Pose) error {
	if d.poses == nil {
		return wrapBackend(d.backend.Mode(), fmt.Errorf("%w: no pose publisher", ErrNotSupported))
	}
	msg := trajectory.PoseStamped{
		FrameID: d.cfg.FrameID,
		Stamp:   d.now(),
		Pose:    pose,
	}
	if err := d.poses.PublishPose(ctx, msg); err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}
	return nil
}

// SendTrajectory archives, visualizes and validates t, waits for the execute
// checkpoint and submits it. With wait set it also blocks until the backend
// reports completion.
func (d *Dispatcher) SendTrajectory(ctx context.Context, t *trajectory.JointTrajectory, group trajectory.Group, wait bool) error {
	if t.Empty() {
		d.logger.Error("no points to execute, aborting trajectory execution", "group", group.Name)
		return ErrEmptyTrajectory
	}

	out := Outcome{
		Group:     group.Name,
		Mode:      d.backend.Mode(),
		Points:    t.Len(),
		Duration:  t.Duration(),
		Waited:    wait,
		StartedAt: d.now(),
	}
	d.logger.Debug("executing trajectory", "group", group.Name, "points", t.Len(), "duration", t.Duration())

	if d.archive != nil {
		path, err := d.archive.Save(t, group.Name)
		if err != nil {
			d.logger.Error("trajectory not saved", "path", path, "error", fmt.Errorf("%w: %w", ErrPersistenceFailed, err))
		} else {
			out.ArchivePath = path
			d.logger.Info("saved trajectory", "path", path)
		}
	}

	d.visualize(ctx, t, group)

	if d.cfg.ValidateWaypointTiming {
		out.Jumps = trajectory.CheckWaypointJumps(t, d.cfg.Thresholds)
		out.LockedOut = d.reportJumps(out.Jumps)
	}

	err := d.execute(ctx, t, wait)
	out.Err = err
	out.FinishedAt = d.now()
	d.record(ctx, t, out)
	return err
}

// Stop halts motion through the backend.
func (d *Dispatcher) Stop(ctx context.Context) error {
	return d.backend.Stop(ctx)
}

func (d *Dispatcher) execute(ctx context.Context, t *trajectory.JointTrajectory, wait bool) error {
	if !d.gate.WaitForFullStep(ctx, ExecuteCheckpoint) {
		return ErrCancelled
	}

	if err := d.backend.Submit(ctx, t); err != nil {
		d.logger.Error("failed to send trajectory", "error", err)
		return err
	}
	if !wait {
		d.logger.Debug("not waiting for execution to finish")
		return nil
	}
	return d.backend.AwaitCompletion(ctx, t)
}

func (d *Dispatcher) visualize(ctx context.Context, t *trajectory.JointTrajectory, group trajectory.Group) {
	if d.viz == nil || (!d.cfg.VisualizeLine && !d.cfg.VisualizePath) {
		return
	}
	if group.EndEffector {
		d.logger.Debug("not visualizing end effector trajectory", "group", group.Name)
		return
	}

	if d.cfg.VisualizeLine {
		if t.Len() > 1 {
			if err := d.viz.DeleteAllMarkers(ctx); err != nil {
				d.logger.Warn("failed to clear markers", "error", err)
			}
			if err := d.viz.PublishTrajectoryLine(ctx, t, group.Name); err != nil {
				d.logger.Warn("failed to visualize trajectory line", "error", err)
			}
		} else {
			d.logger.Warn("not visualizing line because trajectory only has one point", "group", group.Name)
		}
	}
	if d.cfg.VisualizePath {
		if err := d.viz.PublishTrajectoryPath(ctx, t, group.Name); err != nil {
			d.logger.Warn("failed to visualize trajectory path", "error", err)
		}
	}
}

// reportJumps logs every anomaly and revokes autonomy on an error-severity
// one. It reports whether autonomy was revoked.
func (d *Dispatcher) reportJumps(jumps []trajectory.Jump) bool {
	for _, j := range jumps {
		attrs := []any{
			"point", j.Index,
			"first_time", j.From.Seconds(),
			"next_time", j.To.Seconds(),
			"diff_time", j.Delta.Seconds(),
		}
		if j.Severity == trajectory.SeverityError {
			d.logger.Error("max time step between points exceeded, likely wrap around or IK discontinuity", attrs...)
		} else {
			d.logger.Warn("warn time step between points exceeded, likely wrap around or IK discontinuity", attrs...)
		}
	}
	if !trajectory.HasError(jumps) {
		return false
	}
	d.gate.RevokeAutonomy()
	return true
}

func (d *Dispatcher) record(ctx context.Context, t *trajectory.JointTrajectory, out Outcome) {
	if d.journal == nil {
		return
	}
	out.Fingerprint = trajectory.Fingerprint(t)
	if err := d.journal.Record(context.WithoutCancel(ctx), out); err != nil {
		d.logger.Warn("failed to record execution", "error", err)
	}
}
