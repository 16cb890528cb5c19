package protocol

import (
	"fmt"
	"time"

	"github.com/teslashibe/go-motionexec/pkg/trajectory"
)

// =============================================================================
// Conversions between domain types and wire types
// =============================================================================

// FromTrajectory converts a joint trajectory to its wire form
func FromTrajectory(t *trajectory.JointTrajectory) TrajectoryData {
	d := TrajectoryData{
		JointNames: []string{},
		Points:     []PointData{},
	}
	if t == nil {
		return d
	}
	if t.JointNames != nil {
		d.JointNames = t.JointNames
	}
	for _, p := range t.Points {
		d.Points = append(d.Points, PointData{
			Positions:     p.Positions,
			Velocities:    p.Velocities,
			Accelerations: p.Accelerations,
			TimeFromStart: p.TimeFromStart.Seconds(),
		})
	}
	return d
}

// Trajectory converts wire data back to a joint trajectory
func (d TrajectoryData) Trajectory() *trajectory.JointTrajectory {
	t := &trajectory.JointTrajectory{JointNames: d.JointNames}
	for _, p := range d.Points {
		t.Points = append(t.Points, trajectory.Point{
			Positions:     p.Positions,
			Velocities:    p.Velocities,
			Accelerations: p.Accelerations,
			TimeFromStart: trajectory.FromSeconds(p.TimeFromStart),
		})
	}
	return t
}

// FromPose converts a stamped pose to its wire form
func FromPose(p trajectory.PoseStamped) PoseData {
	return PoseData{
		FrameID:     p.FrameID,
		Stamp:       p.Stamp.UnixNano(),
		Position:    p.Pose.Position,
		Orientation: p.Pose.Orientation,
	}
}

// PoseStamped converts wire data back to a stamped pose
func (d PoseData) PoseStamped() trajectory.PoseStamped {
	return trajectory.PoseStamped{
		FrameID: d.FrameID,
		Stamp:   time.Unix(0, d.Stamp),
		Pose: trajectory.Pose{
			Position:    d.Position,
			Orientation: d.Orientation,
		},
	}
}

// =============================================================================
// Helper functions for creating messages
// =============================================================================

// NewTrajectoryMessage creates a trajectory command on the given topic
func NewTrajectoryMessage(topic string, t *trajectory.JointTrajectory) (*Message, error) {
	msg, err := NewMessage(TypeTrajectory, FromTrajectory(t))
	if err != nil {
		return nil, err
	}
	return msg.WithTopic(topic), nil
}

// NewPoseMessage creates a cartesian command on the given topic
func NewPoseMessage(topic string, p trajectory.PoseStamped) (*Message, error) {
	msg, err := NewMessage(TypePose, FromPose(p))
	if err != nil {
		return nil, err
	}
	return msg.WithTopic(topic), nil
}

// NewMarkerMessage creates a visualization request
func NewMarkerMessage(action MarkerAction, group string, t *trajectory.JointTrajectory) (*Message, error) {
	data := MarkerData{Action: action, Group: group}
	if t != nil {
		td := FromTrajectory(t)
		data.Trajectory = &td
	}
	return NewMessage(TypeMarkers, data)
}

// NewStateMessage creates a bridge state report
func NewStateMessage(connected bool, state, errMsg string) (*Message, error) {
	return NewMessage(TypeState, StateData{
		Connected: connected,
		State:     state,
		Error:     errMsg,
	})
}

// NewPingMessage creates a ping message
func NewPingMessage() (*Message, error) {
	return NewMessage(TypePing, nil)
}

// NewPongMessage creates a pong response
func NewPongMessage(pingTS, pongTS int64) (*Message, error) {
	return NewMessage(TypePong, PongData{
		PingTS:    pingTS,
		PongTS:    pongTS,
		LatencyMs: pongTS - pingTS,
	})
}

// =============================================================================
// Helper functions for parsing message data
// =============================================================================

// GetTrajectoryData extracts trajectory data from a message
func (m *Message) GetTrajectoryData() (*TrajectoryData, error) {
	if m.Type != TypeTrajectory {
		return nil, fmt.Errorf("message type is %s, not %s", m.Type, TypeTrajectory)
	}
	var data TrajectoryData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetPoseData extracts pose data from a message
func (m *Message) GetPoseData() (*PoseData, error) {
	if m.Type != TypePose {
		return nil, fmt.Errorf("message type is %s, not %s", m.Type, TypePose)
	}
	var data PoseData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetStateData extracts bridge state from a message
func (m *Message) GetStateData() (*StateData, error) {
	if m.Type != TypeState {
		return nil, fmt.Errorf("message type is %s, not %s", m.Type, TypeState)
	}
	var data StateData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetMarkerData extracts a visualization request from a message
func (m *Message) GetMarkerData() (*MarkerData, error) {
	if m.Type != TypeMarkers {
		return nil, fmt.Errorf("message type is %s, not %s", m.Type, TypeMarkers)
	}
	var data MarkerData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}
