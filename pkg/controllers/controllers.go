// Package controllers checks that the robot's trajectory controllers are
// loaded and running before motion is dispatched.
package controllers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/teslashibe/go-motionexec/internal/httpc"
	"github.com/teslashibe/go-motionexec/internal/log"
)

// StateRunning is the state a controller must be in to accept commands.
const StateRunning = "running"

// DefaultControlType selects <type>_trajectory_controller.
const DefaultControlType = "position"

// Controller is one entry of the controller manager's list.
type Controller struct {
	Name  string `json:"name"`
	State string `json:"state"`
	Type  string `json:"type,omitempty"`
}

// Failure names the check that failed.
type Failure string

const (
	FailureNone           Failure = ""
	FailureUnreachable    Failure = "unreachable"
	FailureMainMissing    Failure = "main_missing"
	FailureMainNotRunning Failure = "main_not_running"
	FailureEEMissing      Failure = "ee_missing"
	FailureEENotRunning   Failure = "ee_not_running"
)

// Report is the result of a controller check.
type Report struct {
	Hardware    string       `json:"hardware"`
	OK          bool         `json:"ok"`
	Failed      Failure      `json:"failed,omitempty"`
	Message     string       `json:"message,omitempty"`
	Controllers []Controller `json:"controllers"`
}

// Config configures the checker.
type Config struct {
	URL         string        `yaml:"url" toml:"url"`
	ControlType string        `yaml:"control_type" toml:"control_type"`
	Timeout     time.Duration `yaml:"timeout" toml:"timeout"`
}

// Lister returns the controllers known to the controller manager.
type Lister interface {
	ListControllers(ctx context.Context) ([]Controller, error)
}

// HTTPLister queries GET {url}/controllers.
type HTTPLister struct {
	url    string
	client *http.Client
}

// NewHTTPLister creates a lister for the controller manager at url.
func NewHTTPLister(url string, timeout time.Duration) (*HTTPLister, error) {
	if url == "" {
		return nil, errors.New("controllers: url required")
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPLister{
		url:    strings.TrimRight(url, "/"),
		client: httpc.NewClient(timeout),
	}, nil
}

// ListControllers implements Lister.
func (l *HTTPLister) ListControllers(ctx context.Context) ([]Controller, error) {
	var out []Controller
	if err := httpc.GetJSON(ctx, l.client, l.url+"/controllers", &out); err != nil {
		return nil, fmt.Errorf("controllers: list: %w", err)
	}
	return out, nil
}

// Checker verifies controller state.
type Checker struct {
	lister      Lister
	controlType string
	logger      *slog.Logger
}

// NewChecker creates a checker over lister. An empty control type uses
// DefaultControlType; a nil logger uses the package default.
func NewChecker(lister Lister, controlType string, logger *slog.Logger) *Checker {
	if controlType == "" {
		controlType = DefaultControlType
	}
	if logger == nil {
		logger = log.WithComponent("controllers")
	}
	return &Checker{lister: lister, controlType: controlType, logger: logger}
}

// MainController returns the name of the primary trajectory controller.
func (c *Checker) MainController() string {
	return c.controlType + "_trajectory_controller"
}

// EEController returns the name of the end-effector trajectory controller.
func (c *Checker) EEController() string {
	return "ee_" + c.MainController()
}

// Check verifies that the main trajectory controller, and with hasEE the
// end-effector controller, are present and running. A listed controller
// that is not running fails the check even when it was not required.
func (c *Checker) Check(ctx context.Context, hardware string, hasEE bool) Report {
	r := Report{Hardware: hardware}

	list, err := c.lister.ListControllers(ctx)
	if err != nil {
		c.logger.Error("unable to check if controllers are loaded", "hardware", hardware, "error", err)
		return r.fail(FailureUnreachable, err.Error())
	}
	r.Controllers = list

	var foundMain, foundEE bool
	for _, ctrl := range list {
		switch ctrl.Name {
		case c.MainController():
			foundMain = true
			if ctrl.State != StateRunning {
				c.logger.Warn("controller is in manual mode", "hardware", hardware, "controller", ctrl.Name, "state", ctrl.State)
				return r.fail(FailureMainNotRunning, fmt.Sprintf("%s is %s", ctrl.Name, ctrl.State))
			}
		case c.EEController():
			foundEE = true
			if ctrl.State != StateRunning {
				c.logger.Warn("controller is in manual mode", "hardware", hardware, "controller", ctrl.Name, "state", ctrl.State)
				return r.fail(FailureEENotRunning, fmt.Sprintf("%s is %s", ctrl.Name, ctrl.State))
			}
		}
	}

	if hasEE && !foundEE {
		c.logger.Error("no end effector controller found", "hardware", hardware, "controllers", names(list))
		return r.fail(FailureEEMissing, c.EEController()+" not loaded")
	}
	if !foundMain {
		c.logger.Error("no main controller found", "hardware", hardware, "controllers", names(list))
		return r.fail(FailureMainMissing, c.MainController()+" not loaded")
	}

	r.OK = true
	return r
}

func (r Report) fail(f Failure, msg string) Report {
	r.OK = false
	r.Failed = f
	r.Message = msg
	return r
}

func names(list []Controller) []string {
	out := make([]string, len(list))
	for i, c := range list {
		out[i] = c.Name
	}
	return out
}
