// Package protocol defines the JSON message envelope used on every motion
// command channel: trajectories and poses going to controller bridges,
// marker and gate updates going to dashboards.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// MessageType identifies the type of a message
type MessageType string

const (
	// Service → controller bridge
	TypeTrajectory MessageType = "trajectory" // Joint trajectory command
	TypePose       MessageType = "pose"       // Cartesian pose command

	// Controller bridge → service
	TypeState MessageType = "state" // Bridge state report

	// Service → dashboard
	TypeMarkers    MessageType = "markers"     // Visualization request
	TypeGateStatus MessageType = "gate_status" // Step gate snapshot

	// Bidirectional
	TypePing MessageType = "ping" // Health check
	TypePong MessageType = "pong" // Health check response
)

// Message is the base wrapper for all messages
type Message struct {
	ID        string          `json:"id,omitempty"`
	Type      MessageType     `json:"type"`
	Topic     string          `json:"topic,omitempty"`
	Timestamp int64           `json:"ts,omitempty"` // Unix milliseconds
	Data      json.RawMessage `json:"data,omitempty"`
}

// NewMessage creates a new message with a fresh ID and the current timestamp
func NewMessage(msgType MessageType, data interface{}) (*Message, error) {
	var rawData json.RawMessage
	if data != nil {
		var err error
		rawData, err = json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal message data: %w", err)
		}
	}

	return &Message{
		ID:        uuid.NewString(),
		Type:      msgType,
		Timestamp: time.Now().UnixMilli(),
		Data:      rawData,
	}, nil
}

// WithTopic sets the channel name and returns the message
func (m *Message) WithTopic(topic string) *Message {
	m.Topic = topic
	return m
}

// ParseData unmarshals the message data into the provided struct
func (m *Message) ParseData(v interface{}) error {
	if m.Data == nil {
		return nil
	}
	return json.Unmarshal(m.Data, v)
}

// Bytes returns the JSON-encoded message
func (m *Message) Bytes() ([]byte, error) {
	return json.Marshal(m)
}

// ParseMessage parses a JSON message from bytes
func ParseMessage(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}
	if msg.Type == "" {
		return nil, fmt.Errorf("failed to parse message: missing type")
	}
	return &msg, nil
}

// =============================================================================
// Command Message Types
// =============================================================================

// TrajectoryData is a joint trajectory on the wire.
// An empty Points list is a halt request.
type TrajectoryData struct {
	JointNames []string    `json:"joint_names"`
	Points     []PointData `json:"points"`
}

// PointData is one waypoint on the wire
type PointData struct {
	Positions     []float64 `json:"positions"`
	Velocities    []float64 `json:"velocities,omitempty"`
	Accelerations []float64 `json:"accelerations,omitempty"`
	TimeFromStart float64   `json:"time_from_start"` // Seconds
}

// PoseData is a stamped cartesian pose on the wire
type PoseData struct {
	FrameID     string     `json:"frame_id"`
	Stamp       int64      `json:"stamp"`       // Unix nanoseconds
	Position    [3]float64 `json:"position"`    // x, y, z
	Orientation [4]float64 `json:"orientation"` // quaternion x, y, z, w
}

// StateData is reported by a controller bridge
type StateData struct {
	Connected bool   `json:"connected"`
	State     string `json:"state"` // "idle", "executing", "error"
	Error     string `json:"error,omitempty"`
}

// =============================================================================
// Dashboard Message Types
// =============================================================================

// MarkerAction selects what a markers message asks the dashboard to do
type MarkerAction string

const (
	MarkerDeleteAll MarkerAction = "delete_all"
	MarkerLine      MarkerAction = "line"
	MarkerPath      MarkerAction = "path"
)

// MarkerData asks dashboards to draw or clear a trajectory
type MarkerData struct {
	Action     MarkerAction    `json:"action"`
	Group      string          `json:"group,omitempty"`
	Trajectory *TrajectoryData `json:"trajectory,omitempty"`
}

// =============================================================================
// Bidirectional Message Types
// =============================================================================

// PongData contains pong response
type PongData struct {
	PingTS    int64 `json:"ping_ts"`
	PongTS    int64 `json:"pong_ts"`
	LatencyMs int64 `json:"latency_ms"`
}
