// Package cloud provides the WebSocket hub that controller bridges connect to.
// Commands published through the hub go to every connected bridge; each
// message carries the topic the bridge should forward it on.
package cloud

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/teslashibe/go-motionexec/internal/log"
	"github.com/teslashibe/go-motionexec/pkg/protocol"
	"github.com/teslashibe/go-motionexec/pkg/trajectory"
)

// Default command topics.
const (
	DefaultJointTrajectoryTopic  = "/robot/position_trajectory_controller/command"
	DefaultCartesianCommandTopic = "/robot/cartesian_command"
)

// ErrNoControllers is returned when a command is published with no bridge connected.
var ErrNoControllers = errors.New("cloud: no controller bridges connected")

// Config selects the topics commands are published on.
type Config struct {
	JointTrajectoryTopic  string `yaml:"joint_trajectory_topic" toml:"joint_trajectory_topic"`
	CartesianCommandTopic string `yaml:"cartesian_command_topic" toml:"cartesian_command_topic"`
}

// DefaultConfig returns the default topics.
func DefaultConfig() Config {
	return Config{
		JointTrajectoryTopic:  DefaultJointTrajectoryTopic,
		CartesianCommandTopic: DefaultCartesianCommandTopic,
	}
}

// ControllerConnection represents a connected controller bridge
type ControllerConnection struct {
	ID        string
	Conn      *websocket.Conn
	Connected time.Time

	mu       sync.Mutex
	lastSeen time.Time
	state    *protocol.StateData
}

// Send sends a message to the bridge
func (c *ControllerConnection) Send(msg *protocol.Message) error {
	data, err := msg.Bytes()
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Conn.WriteMessage(websocket.TextMessage, data)
}

// Hub manages WebSocket connections from controller bridges and implements
// execution.Publisher over them.
type Hub struct {
	cfg    Config
	logger *slog.Logger

	mu          sync.RWMutex
	controllers map[string]*ControllerConnection
	onState     func(controllerID string, state *protocol.StateData)

	// Stats
	messagesReceived atomic.Uint64
	messagesSent     atomic.Uint64
	trajectoriesSent atomic.Uint64
	posesSent        atomic.Uint64
}

// NewHub creates a new controller hub. A nil logger uses the package default.
func NewHub(cfg Config, logger *slog.Logger) *Hub {
	def := DefaultConfig()
	if cfg.JointTrajectoryTopic == "" {
		cfg.JointTrajectoryTopic = def.JointTrajectoryTopic
	}
	if cfg.CartesianCommandTopic == "" {
		cfg.CartesianCommandTopic = def.CartesianCommandTopic
	}
	if logger == nil {
		logger = log.WithComponent("cloud")
	}
	return &Hub{
		cfg:         cfg,
		logger:      logger,
		controllers: make(map[string]*ControllerConnection),
	}
}

// OnState sets the callback for bridge state reports
func (h *Hub) OnState(callback func(controllerID string, state *protocol.StateData)) {
	h.mu.Lock()
	h.onState = callback
	h.mu.Unlock()
}

// RegisterRoutes registers WebSocket routes on a Fiber app
func (h *Hub) RegisterRoutes(app *fiber.App) {
	// WebSocket upgrade middleware
	app.Use("/ws/controller", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("allowed", true)
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws/controller", websocket.New(h.handleController))
	app.Get("/ws/controller/:id", websocket.New(h.handleController))
}

// handleController handles a bridge WebSocket connection
func (h *Hub) handleController(c *websocket.Conn) {
	id := c.Params("id")
	if id == "" {
		id = uuid.NewString()
	}

	now := time.Now()
	conn := &ControllerConnection{
		ID:        id,
		Conn:      c,
		Connected: now,
		lastSeen:  now,
	}

	h.mu.Lock()
	h.controllers[id] = conn
	count := len(h.controllers)
	h.mu.Unlock()

	h.logger.Info("controller bridge connected", "id", id, "total", count)

	defer func() {
		h.mu.Lock()
		if h.controllers[id] == conn {
			delete(h.controllers, id)
		}
		count := len(h.controllers)
		h.mu.Unlock()

		h.logger.Info("controller bridge disconnected", "id", id, "total", count)
	}()

	// Read loop
	for {
		_, data, err := c.ReadMessage()
		if err != nil {
			h.logger.Debug("controller bridge read error", "id", id, "error", err)
			return
		}

		conn.mu.Lock()
		conn.lastSeen = time.Now()
		conn.mu.Unlock()

		h.messagesReceived.Add(1)
		h.handleMessage(conn, data)
	}
}

// handleMessage processes an incoming message from a bridge
func (h *Hub) handleMessage(conn *ControllerConnection, data []byte) {
	msg, err := protocol.ParseMessage(data)
	if err != nil {
		h.logger.Warn("parse error", "id", conn.ID, "error", err)
		return
	}

	switch msg.Type {
	case protocol.TypeState:
		state, err := msg.GetStateData()
		if err != nil {
			h.logger.Warn("bad state report", "id", conn.ID, "error", err)
			return
		}
		conn.mu.Lock()
		conn.state = state
		conn.mu.Unlock()

		h.mu.RLock()
		cb := h.onState
		h.mu.RUnlock()
		if cb != nil {
			cb(conn.ID, state)
		}

	case protocol.TypePing:
		if err := h.sendPong(conn, msg.Timestamp); err != nil {
			h.logger.Debug("pong failed", "id", conn.ID, "error", err)
		}
	}
}

// PublishTrajectory sends t on the joint trajectory topic to every bridge.
// An empty trajectory is a halt request.
func (h *Hub) PublishTrajectory(ctx context.Context, t *trajectory.JointTrajectory) error {
	msg, err := protocol.NewTrajectoryMessage(h.cfg.JointTrajectoryTopic, t)
	if err != nil {
		return err
	}
	if err := h.publish(ctx, msg); err != nil {
		return err
	}
	h.trajectoriesSent.Add(1)
	return nil
}

// PublishPose sends p on the cartesian command topic to every bridge.
func (h *Hub) PublishPose(ctx context.Context, p trajectory.PoseStamped) error {
	msg, err := protocol.NewPoseMessage(h.cfg.CartesianCommandTopic, p)
	if err != nil {
		return err
	}
	if err := h.publish(ctx, msg); err != nil {
		return err
	}
	h.posesSent.Add(1)
	return nil
}

// publish succeeds when at least one bridge received the message.
func (h *Hub) publish(ctx context.Context, msg *protocol.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	controllers := h.GetControllers()
	if len(controllers) == 0 {
		return ErrNoControllers
	}

	var errs []error
	for _, c := range controllers {
		if err := c.Send(msg); err != nil {
			h.logger.Warn("send failed", "id", c.ID, "topic", msg.Topic, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", c.ID, err))
			continue
		}
		h.messagesSent.Add(1)
	}
	if len(errs) == len(controllers) {
		return errors.Join(errs...)
	}
	return nil
}

// sendPong sends a pong response to a bridge
func (h *Hub) sendPong(conn *ControllerConnection, pingTS int64) error {
	msg, err := protocol.NewPongMessage(pingTS, time.Now().UnixMilli())
	if err != nil {
		return err
	}
	h.messagesSent.Add(1)
	return conn.Send(msg)
}

// GetController returns a bridge connection by ID
func (h *Hub) GetController(id string) *ControllerConnection {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.controllers[id]
}

// GetControllers returns all connected bridges
func (h *Hub) GetControllers() []*ControllerConnection {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]*ControllerConnection, 0, len(h.controllers))
	for _, c := range h.controllers {
		out = append(out, c)
	}
	return out
}

// ControllerCount returns the number of connected bridges
func (h *Hub) ControllerCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.controllers)
}

// Stats contains hub statistics
type Stats struct {
	ControllerCount  int    `json:"controller_count"`
	MessagesReceived uint64 `json:"messages_received"`
	MessagesSent     uint64 `json:"messages_sent"`
	TrajectoriesSent uint64 `json:"trajectories_sent"`
	PosesSent        uint64 `json:"poses_sent"`
}

// GetStats returns hub statistics
func (h *Hub) GetStats() Stats {
	return Stats{
		ControllerCount:  h.ControllerCount(),
		MessagesReceived: h.messagesReceived.Load(),
		MessagesSent:     h.messagesSent.Load(),
		TrajectoriesSent: h.trajectoriesSent.Load(),
		PosesSent:        h.posesSent.Load(),
	}
}

// ControllerInfo contains info about a connected bridge
type ControllerInfo struct {
	ID        string    `json:"id"`
	Connected time.Time `json:"connected"`
	LastSeen  time.Time `json:"last_seen"`
	State     string    `json:"state,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// GetControllerInfos returns info about all connected bridges
func (h *Hub) GetControllerInfos() []ControllerInfo {
	controllers := h.GetControllers()

	infos := make([]ControllerInfo, 0, len(controllers))
	for _, c := range controllers {
		c.mu.Lock()
		info := ControllerInfo{
			ID:        c.ID,
			Connected: c.Connected,
			LastSeen:  c.lastSeen,
		}
		if c.state != nil {
			info.State = c.state.State
			info.Error = c.state.Error
		}
		c.mu.Unlock()
		infos = append(infos, info)
	}
	return infos
}

// RegisterAPIRoutes registers API routes for bridge monitoring
func (h *Hub) RegisterAPIRoutes(api fiber.Router) {
	bridges := api.Group("/bridges")

	// List connected bridges
	bridges.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"bridges": h.GetControllerInfos(),
			"count":   h.ControllerCount(),
			"topics": fiber.Map{
				"joint_trajectory":  h.cfg.JointTrajectoryTopic,
				"cartesian_command": h.cfg.CartesianCommandTopic,
			},
		})
	})

	// Get hub stats
	bridges.Get("/stats", func(c *fiber.Ctx) error {
		return c.JSON(h.GetStats())
	})
}
