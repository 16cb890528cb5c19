// Package trajectory defines the motion commands handled by the execution
// service: timed joint trajectories and stamped cartesian poses.
package trajectory

import (
	"fmt"
	"math"
	"time"
)

// DefaultFrame is the reference frame used for cartesian commands.
const DefaultFrame = "world"

// MaxTimeFromStart is the latest waypoint time Validate accepts.
const MaxTimeFromStart = 24 * time.Hour

// FromSeconds converts seconds to a Duration, saturating at the bounds of
// the int64 range. NaN converts to -1ns.
func FromSeconds(s float64) time.Duration {
	if math.IsNaN(s) {
		return -1
	}
	ns := math.Round(s * float64(time.Second))
	switch {
	case ns >= math.MaxInt64:
		return math.MaxInt64
	case ns <= math.MinInt64:
		return math.MinInt64
	}
	return time.Duration(ns)
}

// Point is one timed joint-configuration sample (a waypoint).
// Velocities and Accelerations are optional and may be empty.
type Point struct {
	Positions     []float64
	Velocities    []float64
	Accelerations []float64
	TimeFromStart time.Duration
}

// JointTrajectory is an ordered sequence of waypoints for a set of joints.
type JointTrajectory struct {
	JointNames []string
	Points     []Point
}

// Len returns the number of waypoints.
func (t *JointTrajectory) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Points)
}

// Empty reports whether the trajectory has no waypoints.
func (t *JointTrajectory) Empty() bool {
	return t.Len() == 0
}

// Duration returns the time-from-start of the final waypoint.
func (t *JointTrajectory) Duration() time.Duration {
	if t.Empty() {
		return 0
	}
	return t.Points[len(t.Points)-1].TimeFromStart
}

// Validate checks that every waypoint carries one value per joint and a
// time-from-start in [0, MaxTimeFromStart]. Empty velocity and acceleration
// arrays are allowed.
func (t *JointTrajectory) Validate() error {
	n := len(t.JointNames)
	for i, p := range t.Points {
		if p.TimeFromStart < 0 || p.TimeFromStart > MaxTimeFromStart {
			return fmt.Errorf("trajectory: point %d time_from_start %s out of range [0, %s]", i, p.TimeFromStart, MaxTimeFromStart)
		}
		if len(p.Positions) != n {
			return fmt.Errorf("trajectory: point %d has %d positions for %d joints", i, len(p.Positions), n)
		}
		if len(p.Velocities) != 0 && len(p.Velocities) != n {
			return fmt.Errorf("trajectory: point %d has %d velocities for %d joints", i, len(p.Velocities), n)
		}
		if len(p.Accelerations) != 0 && len(p.Accelerations) != n {
			return fmt.Errorf("trajectory: point %d has %d accelerations for %d joints", i, len(p.Accelerations), n)
		}
	}
	return nil
}

// ClearDynamics drops velocities and accelerations from every waypoint,
// leaving a position-only trajectory.
func (t *JointTrajectory) ClearDynamics() {
	for i := range t.Points {
		t.Points[i].Velocities = nil
		t.Points[i].Accelerations = nil
	}
}

// Group describes the planning group a trajectory was computed for.
type Group struct {
	Name string
	// EndEffector groups have no meaningful cartesian path to draw.
	EndEffector bool
}

// Pose is a rigid-body pose. Orientation is a quaternion (x, y, z, w).
type Pose struct {
	Position    [3]float64
	Orientation [4]float64
}

// Identity returns the pose at the origin with no rotation.
func Identity() Pose {
	return Pose{Orientation: [4]float64{0, 0, 0, 1}}
}

// PoseStamped is a pose expressed in a named frame at a point in time.
type PoseStamped struct {
	FrameID string
	Stamp   time.Time
	Pose    Pose
}
