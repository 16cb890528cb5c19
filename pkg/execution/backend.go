package execution

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/teslashibe/go-motionexec/internal/log"
	"github.com/teslashibe/go-motionexec/pkg/trajectory"
)

// Mode identifies how trajectories reach the robot.
type Mode string

const (
	// ModeManaged delegates playback and completion tracking to an
	// external execution service.
	ModeManaged Mode = "execution_manager"

	// ModeDirect publishes commands fire-and-forget onto a channel.
	ModeDirect Mode = "joint_publisher"
)

// ParseMode parses a command_mode value.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeManaged:
		return ModeManaged, nil
	case ModeDirect:
		return ModeDirect, nil
	default:
		return "", fmt.Errorf("execution: unknown command mode %q", s)
	}
}

// Backend sends trajectories to the robot.
type Backend interface {
	Mode() Mode
	// Submit hands the trajectory over and returns without waiting for motion.
	Submit(ctx context.Context, t *trajectory.JointTrajectory) error
	// AwaitCompletion blocks until the submitted trajectory has finished.
	AwaitCompletion(ctx context.Context, t *trajectory.JointTrajectory) error
	// Stop halts motion.
	Stop(ctx context.Context) error
}

// =============================================================================
// Managed execution
// =============================================================================

// Status is a terminal outcome reported by a managed execution service.
type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusPreempted Status = "preempted"
	StatusTimedOut  Status = "timed_out"
	StatusFailed    Status = "failed"
	StatusAborted   Status = "aborted"
)

//go:generate mockgen -destination=mocks/mock_managed.go -package=mocks github.com/teslashibe/go-motionexec/pkg/execution ManagedClient

// ManagedClient is the API of an external trajectory-execution service.
type ManagedClient interface {
	// Reset clears any state left by earlier executions.
	Reset(ctx context.Context) error
	// Submit pushes a trajectory and starts execution. accepted is false
	// when the service refuses it.
	Submit(ctx context.Context, t *trajectory.JointTrajectory) (accepted bool, err error)
	// AwaitCompletion blocks until the last submission reaches a terminal status.
	AwaitCompletion(ctx context.Context) (Status, error)
}

// Canceler is implemented by managed clients that can preempt a running
// execution.
type Canceler interface {
	Cancel(ctx context.Context) error
}

// ManagedBackend runs trajectories through a ManagedClient.
type ManagedBackend struct {
	client ManagedClient
	logger *slog.Logger
}

// NewManagedBackend creates a backend over client. A nil logger uses the
// package default.
func NewManagedBackend(client ManagedClient, logger *slog.Logger) *ManagedBackend {
	if logger == nil {
		logger = log.WithComponent("execution.managed")
	}
	return &ManagedBackend{client: client, logger: logger}
}

// Mode implements Backend.
func (b *ManagedBackend) Mode() Mode { return ModeManaged }

// Submit resets the service and pushes t.
func (b *ManagedBackend) Submit(ctx context.Context, t *trajectory.JointTrajectory) error {
	if err := b.client.Reset(ctx); err != nil {
		return wrapBackend(ModeManaged, fmt.Errorf("%w: reset: %w", ErrBackendFailed, err))
	}

	accepted, err := b.client.Submit(ctx, t)
	if err != nil {
		return wrapBackend(ModeManaged, fmt.Errorf("%w: submit: %w", ErrBackendFailed, err))
	}
	if !accepted {
		b.logger.Error("failed to execute trajectory")
		return wrapBackend(ModeManaged, ErrBackendRejected)
	}
	return nil
}

// AwaitCompletion waits for the service and maps its terminal status.
func (b *ManagedBackend) AwaitCompletion(ctx context.Context, _ *trajectory.JointTrajectory) error {
	b.logger.Debug("waiting for executing trajectory to finish")

	status, err := b.client.AwaitCompletion(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return wrapBackend(ModeManaged, fmt.Errorf("%w: %w", ErrCancelled, err))
		}
		return wrapBackend(ModeManaged, fmt.Errorf("%w: %w", ErrBackendFailed, err))
	}

	switch status {
	case StatusSucceeded:
		b.logger.Debug("trajectory execution succeeded")
		return nil
	case StatusPreempted:
		b.logger.Info("trajectory execution preempted")
		return wrapBackend(ModeManaged, ErrPreempted)
	case StatusTimedOut:
		b.logger.Error("trajectory execution timed out")
		return wrapBackend(ModeManaged, ErrTimedOut)
	default:
		b.logger.Error("trajectory execution control failed", "status", status)
		return wrapBackend(ModeManaged, fmt.Errorf("%w: status %s", ErrBackendFailed, status))
	}
}

// Stop preempts the running execution when the client supports it.
func (b *ManagedBackend) Stop(ctx context.Context) error {
	c, ok := b.client.(Canceler)
	if !ok {
		b.logger.Error("execution manager stopping not implemented")
		return wrapBackend(ModeManaged, ErrNotSupported)
	}
	if err := c.Cancel(ctx); err != nil {
		return wrapBackend(ModeManaged, fmt.Errorf("%w: cancel: %w", ErrBackendFailed, err))
	}
	return nil
}

// =============================================================================
// Direct publishing
// =============================================================================

// Publisher emits commands onto the robot's command channels. There is no
// acknowledgment.
type Publisher interface {
	PublishTrajectory(ctx context.Context, t *trajectory.JointTrajectory) error
	PublishPose(ctx context.Context, p trajectory.PoseStamped) error
}

// DirectBackend publishes trajectories and estimates completion from their
// duration.
type DirectBackend struct {
	pub    Publisher
	logger *slog.Logger
	sleep  func(ctx context.Context, d time.Duration) error
}

// NewDirectBackend creates a backend over pub. A nil logger uses the
// package default.
func NewDirectBackend(pub Publisher, logger *slog.Logger) *DirectBackend {
	if logger == nil {
		logger = log.WithComponent("execution.direct")
	}
	return &DirectBackend{pub: pub, logger: logger, sleep: sleepContext}
}

// Mode implements Backend.
func (b *DirectBackend) Mode() Mode { return ModeDirect }

// Publisher returns the underlying publisher.
func (b *DirectBackend) Publisher() Publisher { return b.pub }

// Submit publishes t once.
func (b *DirectBackend) Submit(ctx context.Context, t *trajectory.JointTrajectory) error {
	if err := b.pub.PublishTrajectory(ctx, t); err != nil {
		return wrapBackend(ModeDirect, fmt.Errorf("%w: %w", ErrPublishFailed, err))
	}
	return nil
}

// AwaitCompletion sleeps for the trajectory's duration. The robot may still
// be moving when it returns.
func (b *DirectBackend) AwaitCompletion(ctx context.Context, t *trajectory.JointTrajectory) error {
	d := t.Duration()
	b.logger.Info("sleeping while trajectory executes", "duration", d)
	if err := b.sleep(ctx, d); err != nil {
		return wrapBackend(ModeDirect, fmt.Errorf("%w: %w", ErrCancelled, err))
	}
	return nil
}

// Stop publishes an empty trajectory, which controllers treat as a halt.
func (b *DirectBackend) Stop(ctx context.Context) error {
	b.logger.Debug("received stop motion command")
	if err := b.pub.PublishTrajectory(ctx, &trajectory.JointTrajectory{}); err != nil {
		return wrapBackend(ModeDirect, fmt.Errorf("%w: %w", ErrPublishFailed, err))
	}
	return nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
