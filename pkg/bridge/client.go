// Package bridge publishes motion commands to a controller bridge over a
// WebSocket the service dials out to. It is the dial-mode counterpart of
// the cloud hub, for deployments where the bridge listens.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/teslashibe/go-motionexec/internal/log"
	"github.com/teslashibe/go-motionexec/pkg/protocol"
	"github.com/teslashibe/go-motionexec/pkg/trajectory"
)

const (
	// DefaultHandshakeTimeout bounds the WebSocket handshake.
	DefaultHandshakeTimeout = 10 * time.Second

	writeWait    = 5 * time.Second
	pingInterval = 30 * time.Second
)

// ErrClosed is returned after Close.
var ErrClosed = errors.New("bridge: client closed")

// Config configures the client.
type Config struct {
	URL                   string `yaml:"url" toml:"url"`
	JointTrajectoryTopic  string `yaml:"-" toml:"-"`
	CartesianCommandTopic string `yaml:"-" toml:"-"`
}

// Client implements execution.Publisher over a dialed WebSocket.
// It connects lazily and redials once when a write fails.
type Client struct {
	cfg    Config
	dialer websocket.Dialer
	logger *slog.Logger

	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool
	state  *protocol.StateData

	// OnState is called for every state report from the bridge.
	OnState func(state *protocol.StateData)
}

// New creates a client. A nil logger uses the package default.
func New(cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.URL == "" {
		return nil, errors.New("bridge: url required")
	}
	if cfg.JointTrajectoryTopic == "" || cfg.CartesianCommandTopic == "" {
		return nil, errors.New("bridge: command topics required")
	}
	if logger == nil {
		logger = log.WithComponent("bridge")
	}
	return &Client{
		cfg:    cfg,
		dialer: websocket.Dialer{HandshakeTimeout: DefaultHandshakeTimeout},
		logger: logger,
	}, nil
}

// Connect dials the bridge if not already connected.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := c.connectLocked(ctx)
	return err
}

func (c *Client) connectLocked(ctx context.Context) (*websocket.Conn, error) {
	if c.closed {
		return nil, ErrClosed
	}
	if c.conn != nil {
		return c.conn, nil
	}

	conn, _, err := c.dialer.DialContext(ctx, c.cfg.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("bridge: dial %s: %w", c.cfg.URL, err)
	}
	c.conn = conn
	c.logger.Info("connected to controller bridge", "url", c.cfg.URL)

	done := make(chan struct{})
	go c.readLoop(conn, done)
	go c.keepAlive(conn, done)
	return conn, nil
}

// PublishTrajectory sends t on the joint trajectory topic.
func (c *Client) PublishTrajectory(ctx context.Context, t *trajectory.JointTrajectory) error {
	msg, err := protocol.NewTrajectoryMessage(c.cfg.JointTrajectoryTopic, t)
	if err != nil {
		return err
	}
	return c.send(ctx, msg)
}

// PublishPose sends p on the cartesian command topic.
func (c *Client) PublishPose(ctx context.Context, p trajectory.PoseStamped) error {
	msg, err := protocol.NewPoseMessage(c.cfg.CartesianCommandTopic, p)
	if err != nil {
		return err
	}
	return c.send(ctx, msg)
}

// State returns the last state reported by the bridge, or nil.
func (c *Client) State() *protocol.StateData {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Close closes the connection. Further publishes fail with ErrClosed.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	if c.conn == nil {
		return nil
	}
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
	err := c.conn.Close()
	c.conn = nil
	return err
}

func (c *Client) send(ctx context.Context, msg *protocol.Message) error {
	data, err := msg.Bytes()
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for attempt := 0; attempt < 2; attempt++ {
		conn, err := c.connectLocked(ctx)
		if err != nil {
			return err
		}
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err = conn.WriteMessage(websocket.TextMessage, data); err == nil {
			return nil
		}
		c.logger.Warn("write failed, redialing", "topic", msg.Topic, "error", err)
		_ = conn.Close()
		c.conn = nil
		if attempt == 1 {
			return fmt.Errorf("bridge: write: %w", err)
		}
	}
	return nil
}

func (c *Client) readLoop(conn *websocket.Conn, done chan struct{}) {
	defer close(done)
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			if c.conn == conn {
				c.conn = nil
			}
			c.mu.Unlock()
			c.logger.Debug("bridge connection closed", "error", err)
			return
		}

		msg, err := protocol.ParseMessage(data)
		if err != nil {
			c.logger.Warn("parse error", "error", err)
			continue
		}
		switch msg.Type {
		case protocol.TypeState:
			state, err := msg.GetStateData()
			if err != nil {
				continue
			}
			c.mu.Lock()
			c.state = state
			cb := c.OnState
			c.mu.Unlock()
			if cb != nil {
				cb(state)
			}
		case protocol.TypePong:
			var pong protocol.PongData
			if err := msg.ParseData(&pong); err == nil {
				c.logger.Debug("pong", "latency_ms", pong.LatencyMs)
			}
		}
	}
}

// keepAlive sends protocol pings until the connection closes.
func (c *Client) keepAlive(conn *websocket.Conn, done chan struct{}) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			msg, err := protocol.NewPingMessage()
			if err != nil {
				continue
			}
			data, _ := msg.Bytes()
			c.mu.Lock()
			if c.conn != conn {
				c.mu.Unlock()
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			err = conn.WriteMessage(websocket.TextMessage, data)
			c.mu.Unlock()
			if err != nil {
				return
			}
		}
	}
}
