// Package managed is a client for an external trajectory-execution service.
// The service owns playback and completion tracking; this package submits
// trajectories and polls for their terminal status.
package managed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/teslashibe/go-motionexec/internal/httpc"
	"github.com/teslashibe/go-motionexec/internal/log"
	"github.com/teslashibe/go-motionexec/pkg/execution"
	"github.com/teslashibe/go-motionexec/pkg/protocol"
	"github.com/teslashibe/go-motionexec/pkg/trajectory"
)

// Default polling settings.
const (
	DefaultPollInterval = 100 * time.Millisecond
	DefaultTimeout      = 10 * time.Second
)

// ErrNoExecution is returned when waiting or cancelling before any submission.
var ErrNoExecution = errors.New("managed: no execution submitted")

// Config configures the client.
type Config struct {
	URL          string        `yaml:"url" toml:"url"`
	PollInterval time.Duration `yaml:"poll_interval" toml:"poll_interval"`
	Timeout      time.Duration `yaml:"timeout" toml:"timeout"`
}

// DefaultConfig returns a config for a service on localhost.
func DefaultConfig() Config {
	return Config{
		URL:          "http://localhost:8090",
		PollInterval: DefaultPollInterval,
		Timeout:      DefaultTimeout,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.URL == "" {
		return errors.New("managed: url required")
	}
	u, err := url.Parse(c.URL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("managed: invalid url %q", c.URL)
	}
	return nil
}

// ExecuteRequest is the body of a submission.
type ExecuteRequest struct {
	RequestID  string                  `json:"request_id"`
	Trajectory protocol.TrajectoryData `json:"trajectory"`
}

// ExecuteResponse is the service's answer to a submission.
type ExecuteResponse struct {
	Accepted    bool   `json:"accepted"`
	ExecutionID string `json:"execution_id"`
	Message     string `json:"message,omitempty"`
}

// StatusResponse reports the state of one execution. Status is "pending"
// or "running" until it reaches a terminal value.
type StatusResponse struct {
	Status string `json:"status"`
}

type cancelRequest struct {
	ExecutionID string `json:"execution_id"`
}

// Client implements execution.ManagedClient and execution.Canceler.
type Client struct {
	baseURL string
	http    *http.Client
	poll    time.Duration
	logger  *slog.Logger

	mu     sync.Mutex
	lastID string
}

// New creates a client. A nil logger uses the package default.
func New(cfg Config, logger *slog.Logger) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if logger == nil {
		logger = log.WithComponent("managed")
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.URL, "/"),
		http:    httpc.NewClient(cfg.Timeout),
		poll:    cfg.PollInterval,
		logger:  logger,
	}, nil
}

// Reset clears finished and queued executions on the service.
func (c *Client) Reset(ctx context.Context) error {
	if err := httpc.PostJSON(ctx, c.http, c.baseURL+"/api/execution/clear", nil, nil); err != nil {
		return fmt.Errorf("managed: clear: %w", err)
	}
	c.mu.Lock()
	c.lastID = ""
	c.mu.Unlock()
	return nil
}

// Submit pushes t and starts execution.
func (c *Client) Submit(ctx context.Context, t *trajectory.JointTrajectory) (bool, error) {
	req := ExecuteRequest{
		RequestID:  uuid.NewString(),
		Trajectory: protocol.FromTrajectory(t),
	}

	var resp ExecuteResponse
	if err := httpc.PostJSON(ctx, c.http, c.baseURL+"/api/execution/execute", req, &resp); err != nil {
		return false, fmt.Errorf("managed: execute: %w", err)
	}
	if !resp.Accepted {
		c.logger.Warn("execution refused", "request_id", req.RequestID, "message", resp.Message)
		return false, nil
	}
	if resp.ExecutionID == "" {
		return false, errors.New("managed: execute: accepted without execution_id")
	}

	c.mu.Lock()
	c.lastID = resp.ExecutionID
	c.mu.Unlock()

	c.logger.Debug("execution started", "request_id", req.RequestID, "execution_id", resp.ExecutionID)
	return true, nil
}

// AwaitCompletion polls the last submission until it reaches a terminal status.
func (c *Client) AwaitCompletion(ctx context.Context) (execution.Status, error) {
	id := c.currentID()
	if id == "" {
		return "", ErrNoExecution
	}

	ticker := time.NewTicker(c.poll)
	defer ticker.Stop()

	statusURL := c.baseURL + "/api/execution/" + url.PathEscape(id)
	for {
		var resp StatusResponse
		if err := httpc.GetJSON(ctx, c.http, statusURL, &resp); err != nil {
			return "", fmt.Errorf("managed: status: %w", err)
		}
		if status, done := terminal(resp.Status); done {
			return status, nil
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-ticker.C:
		}
	}
}

// Cancel preempts the last submission.
func (c *Client) Cancel(ctx context.Context) error {
	id := c.currentID()
	if id == "" {
		return ErrNoExecution
	}
	if err := httpc.PostJSON(ctx, c.http, c.baseURL+"/api/execution/cancel", cancelRequest{ExecutionID: id}, nil); err != nil {
		return fmt.Errorf("managed: cancel: %w", err)
	}
	c.logger.Info("execution cancelled", "execution_id", id)
	return nil
}

func (c *Client) currentID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastID
}

func terminal(s string) (execution.Status, bool) {
	switch execution.Status(strings.ToLower(s)) {
	case execution.StatusSucceeded:
		return execution.StatusSucceeded, true
	case execution.StatusPreempted:
		return execution.StatusPreempted, true
	case execution.StatusTimedOut:
		return execution.StatusTimedOut, true
	case execution.StatusFailed:
		return execution.StatusFailed, true
	case execution.StatusAborted:
		return execution.StatusAborted, true
	default:
		return "", false
	}
}
