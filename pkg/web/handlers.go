package web

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-motionexec/pkg/execution"
	"github.com/teslashibe/go-motionexec/pkg/hub"
	"github.com/teslashibe/go-motionexec/pkg/journal"
	"github.com/teslashibe/go-motionexec/pkg/protocol"
	"github.com/teslashibe/go-motionexec/pkg/trajectory"
)

// ToggleRequest is the body of the gate flag endpoints
type ToggleRequest struct {
	Enabled *bool `json:"enabled"`
}

// TrajectoryRequest is the body of POST /api/trajectories
type TrajectoryRequest struct {
	Group       string                  `json:"group"`
	EndEffector bool                    `json:"end_effector"`
	Wait        bool                    `json:"wait"`
	Trajectory  protocol.TrajectoryData `json:"trajectory"`
}

// DispatchResponse reports the outcome of a dispatch
type DispatchResponse struct {
	Status   string  `json:"status"`
	Mode     string  `json:"mode"`
	Points   int     `json:"points"`
	Duration float64 `json:"duration"` // Seconds
	Error    string  `json:"error,omitempty"`
}

// PoseRequest is the body of POST /api/pose
type PoseRequest struct {
	Position    [3]float64 `json:"position"`
	Orientation [4]float64 `json:"orientation"` // x, y, z, w; zero means identity
}

// statusFor maps dispatch errors to HTTP status codes
func statusFor(err error) int {
	switch {
	case err == nil:
		return fiber.StatusOK
	case errors.Is(err, execution.ErrEmptyTrajectory):
		return fiber.StatusBadRequest
	case errors.Is(err, execution.ErrCancelled), errors.Is(err, execution.ErrPreempted):
		return fiber.StatusConflict
	case errors.Is(err, execution.ErrBackendRejected):
		return fiber.StatusUnprocessableEntity
	case errors.Is(err, execution.ErrTimedOut):
		return fiber.StatusGatewayTimeout
	case errors.Is(err, execution.ErrNotSupported):
		return fiber.StatusNotImplemented
	case errors.Is(err, execution.ErrPublishFailed), errors.Is(err, execution.ErrBackendFailed):
		return fiber.StatusBadGateway
	default:
		return fiber.StatusInternalServerError
	}
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status": "ok",
		"mode":   s.dispatcher.Mode(),
	})
}

// handleGateStatus returns the gate snapshot
func (s *Server) handleGateStatus(c *fiber.Ctx) error {
	return c.JSON(s.gate.Status())
}

// handleGateReady releases the pending (or next) checkpoint
func (s *Server) handleGateReady(c *fiber.Ctx) error {
	s.gate.RequestReady()
	return c.JSON(s.gate.Status())
}

func (s *Server) handleGateAutonomous(c *fiber.Ctx) error {
	v, err := parseToggle(c, nil)
	if err != nil {
		return err
	}
	s.gate.SetSingleStepAutonomous(v)
	return c.JSON(s.gate.Status())
}

func (s *Server) handleGateFullAutonomous(c *fiber.Ctx) error {
	v, err := parseToggle(c, nil)
	if err != nil {
		return err
	}
	s.gate.SetFullAutonomous(v)
	return c.JSON(s.gate.Status())
}

// handleGateStop requests a stop; an empty body means enabled
func (s *Server) handleGateStop(c *fiber.Ctx) error {
	def := true
	v, err := parseToggle(c, &def)
	if err != nil {
		return err
	}
	s.gate.RequestStop(v)
	return c.JSON(s.gate.Status())
}

func parseToggle(c *fiber.Ctx, def *bool) (bool, error) {
	var req ToggleRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return false, fiber.NewError(fiber.StatusBadRequest, "invalid body: "+err.Error())
		}
	}
	if req.Enabled == nil {
		if def == nil {
			return false, fiber.NewError(fiber.StatusBadRequest, `"enabled" is required`)
		}
		return *def, nil
	}
	return *req.Enabled, nil
}

// handleSendTrajectory dispatches a trajectory. It blocks while the gate
// waits for the operator.
func (s *Server) handleSendTrajectory(c *fiber.Ctx) error {
	var req TrajectoryRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid body: "+err.Error())
	}
	if req.Group == "" {
		return fiber.NewError(fiber.StatusBadRequest, `"group" is required`)
	}
	if err := trajectory.CheckGroupName(req.Group); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	t := req.Trajectory.Trajectory()
	if err := t.Validate(); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	group := trajectory.Group{Name: req.Group, EndEffector: req.EndEffector}

	s.dispatchMu.Lock()
	err := s.dispatcher.SendTrajectory(s.ctx, t, group, req.Wait)
	s.dispatchMu.Unlock()

	resp := DispatchResponse{
		Status:   journal.StatusOf(err),
		Mode:     string(s.dispatcher.Mode()),
		Points:   t.Len(),
		Duration: t.Duration().Seconds(),
	}
	if err != nil {
		resp.Error = err.Error()
		s.logger.Warn("dispatch failed", "group", req.Group, "error", err)
	}
	return c.Status(statusFor(err)).JSON(resp)
}

// handleSendPose publishes a cartesian pose, bypassing the gate
func (s *Server) handleSendPose(c *fiber.Ctx) error {
	var req PoseRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid body: "+err.Error())
	}
	pose := trajectory.Pose{Position: req.Position, Orientation: req.Orientation}
	if pose.Orientation == ([4]float64{}) {
		pose.Orientation = trajectory.Identity().Orientation
	}

	if err := s.dispatcher.SendPose(s.ctx, pose); err != nil {
		return c.Status(statusFor(err)).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{"status": "sent"})
}

// handleStop halts motion. It does not wait for a running dispatch.
func (s *Server) handleStop(c *fiber.Ctx) error {
	if err := s.dispatcher.Stop(s.ctx); err != nil {
		return c.Status(statusFor(err)).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{"status": "stopped"})
}

func (s *Server) handleListExecutions(c *fiber.Ctx) error {
	if s.journal == nil {
		return fiber.NewError(fiber.StatusNotImplemented, "journal disabled")
	}
	entries, err := s.journal.List(c.UserContext(), c.QueryInt("limit", journal.DefaultLimit))
	if err != nil {
		return err
	}
	if entries == nil {
		entries = []journal.Entry{}
	}
	return c.JSON(fiber.Map{"executions": entries, "count": len(entries)})
}

func (s *Server) handleGetExecution(c *fiber.Ctx) error {
	if s.journal == nil {
		return fiber.NewError(fiber.StatusNotImplemented, "journal disabled")
	}
	e, err := s.journal.Get(c.UserContext(), c.Params("id"))
	if errors.Is(err, journal.ErrNotFound) {
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	}
	if err != nil {
		return err
	}
	return c.JSON(e)
}

// handleCheckControllers reports controller state; 503 when the check fails
func (s *Server) handleCheckControllers(c *fiber.Ctx) error {
	if s.checker == nil {
		return fiber.NewError(fiber.StatusNotImplemented, "controller checks not configured")
	}
	r := s.checker.Check(c.UserContext(), c.Query("hardware", "arm"), c.QueryBool("ee", false))
	if !r.OK {
		return c.Status(fiber.StatusServiceUnavailable).JSON(r)
	}
	return c.JSON(r)
}

func (s *Server) handleMarkers(c *fiber.Ctx) error {
	current := []protocol.MarkerData{}
	if s.markers != nil {
		current = append(current, s.markers.Current()...)
	}
	return c.JSON(current)
}

// handleGateWS streams gate status, starting with the current snapshot
func (s *Server) handleGateWS(c *websocket.Conn) {
	client := hub.NewClient(s.statusHub, c)
	if msg, err := protocol.NewMessage(protocol.TypeGateStatus, s.gate.Status()); err == nil {
		if data, err := msg.Bytes(); err == nil {
			client.Send(data)
		}
	}
	client.Run()
}

// handleMarkersWS streams marker requests, replaying what is drawn
func (s *Server) handleMarkersWS(c *websocket.Conn) {
	client := hub.NewClient(s.markerHub, c)
	if s.markers != nil {
		for _, m := range s.markers.Current() {
			msg, err := protocol.NewMessage(protocol.TypeMarkers, m)
			if err != nil {
				continue
			}
			if data, err := msg.Bytes(); err == nil {
				client.Send(data)
			}
		}
	}
	client.Run()
}
