package execution

import (
	"context"
	"sync"

	"github.com/teslashibe/go-motionexec/pkg/trajectory"
)

// MockPublisher implements Publisher for testing.
// All methods can be customized via function fields.
type MockPublisher struct {
	// PublishTrajectoryFunc is called when PublishTrajectory is invoked.
	// If nil, returns nil.
	PublishTrajectoryFunc func(ctx context.Context, t *trajectory.JointTrajectory) error

	// PublishPoseFunc is called when PublishPose is invoked.
	// If nil, returns nil.
	PublishPoseFunc func(ctx context.Context, p trajectory.PoseStamped) error

	// Tracking
	mu           sync.Mutex
	trajectories []*trajectory.JointTrajectory
	poses        []trajectory.PoseStamped
}

// PublishTrajectory implements Publisher.
func (m *MockPublisher) PublishTrajectory(ctx context.Context, t *trajectory.JointTrajectory) error {
	m.mu.Lock()
	m.trajectories = append(m.trajectories, t)
	m.mu.Unlock()

	if m.PublishTrajectoryFunc != nil {
		return m.PublishTrajectoryFunc(ctx, t)
	}
	return nil
}

// PublishPose implements Publisher.
func (m *MockPublisher) PublishPose(ctx context.Context, p trajectory.PoseStamped) error {
	m.mu.Lock()
	m.poses = append(m.poses, p)
	m.mu.Unlock()

	if m.PublishPoseFunc != nil {
		return m.PublishPoseFunc(ctx, p)
	}
	return nil
}

// Trajectories returns every published trajectory.
func (m *MockPublisher) Trajectories() []*trajectory.JointTrajectory {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*trajectory.JointTrajectory(nil), m.trajectories...)
}

// Poses returns every published pose.
func (m *MockPublisher) Poses() []trajectory.PoseStamped {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]trajectory.PoseStamped(nil), m.poses...)
}

// MockVisualizer implements Visualizer for testing and records calls by name.
type MockVisualizer struct {
	// Err is returned from every call when set.
	Err error

	mu    sync.Mutex
	calls []string
}

// DeleteAllMarkers implements Visualizer.
func (m *MockVisualizer) DeleteAllMarkers(ctx context.Context) error {
	return m.record("DeleteAllMarkers")
}

// PublishTrajectoryLine implements Visualizer.
func (m *MockVisualizer) PublishTrajectoryLine(ctx context.Context, t *trajectory.JointTrajectory, group string) error {
	return m.record("PublishTrajectoryLine")
}

// PublishTrajectoryPath implements Visualizer.
func (m *MockVisualizer) PublishTrajectoryPath(ctx context.Context, t *trajectory.JointTrajectory, group string) error {
	return m.record("PublishTrajectoryPath")
}

// Calls returns the method names invoked, in order.
func (m *MockVisualizer) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

func (m *MockVisualizer) record(method string) error {
	m.mu.Lock()
	m.calls = append(m.calls, method)
	m.mu.Unlock()
	return m.Err
}

// MockJournal implements Journal for testing.
type MockJournal struct {
	mu       sync.Mutex
	outcomes []Outcome
}

// Record implements Journal.
func (m *MockJournal) Record(ctx context.Context, o Outcome) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes = append(m.outcomes, o)
	return nil
}

// Outcomes returns every recorded outcome.
func (m *MockJournal) Outcomes() []Outcome {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Outcome(nil), m.outcomes...)
}
