// Package markers publishes trajectory visualization requests to dashboards.
package markers

import (
	"context"
	"log/slog"
	"sync"

	"github.com/teslashibe/go-motionexec/internal/log"
	"github.com/teslashibe/go-motionexec/pkg/protocol"
	"github.com/teslashibe/go-motionexec/pkg/trajectory"
)

// Broadcaster sends an envelope to every dashboard client.
type Broadcaster interface {
	BroadcastMessage(msg *protocol.Message) error
}

// Visualizer implements execution.Visualizer by broadcasting markers
// messages. It keeps the markers drawn since the last clear so late
// clients can catch up.
type Visualizer struct {
	out    Broadcaster
	logger *slog.Logger

	mu      sync.Mutex
	current []protocol.MarkerData
}

// New creates a visualizer. A nil logger uses the package default.
func New(out Broadcaster, logger *slog.Logger) *Visualizer {
	if logger == nil {
		logger = log.WithComponent("markers")
	}
	return &Visualizer{out: out, logger: logger}
}

// DeleteAllMarkers clears every drawn marker.
func (v *Visualizer) DeleteAllMarkers(ctx context.Context) error {
	v.mu.Lock()
	v.current = nil
	v.mu.Unlock()
	return v.send(protocol.MarkerDeleteAll, "", nil)
}

// PublishTrajectoryLine draws t as a line.
func (v *Visualizer) PublishTrajectoryLine(ctx context.Context, t *trajectory.JointTrajectory, group string) error {
	return v.send(protocol.MarkerLine, group, t)
}

// PublishTrajectoryPath animates t along its path.
func (v *Visualizer) PublishTrajectoryPath(ctx context.Context, t *trajectory.JointTrajectory, group string) error {
	return v.send(protocol.MarkerPath, group, t)
}

// Current returns the markers drawn since the last clear.
func (v *Visualizer) Current() []protocol.MarkerData {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]protocol.MarkerData(nil), v.current...)
}

func (v *Visualizer) send(action protocol.MarkerAction, group string, t *trajectory.JointTrajectory) error {
	msg, err := protocol.NewMarkerMessage(action, group, t)
	if err != nil {
		return err
	}

	if action != protocol.MarkerDeleteAll {
		data, err := msg.GetMarkerData()
		if err != nil {
			return err
		}
		v.mu.Lock()
		v.current = append(v.current, *data)
		v.mu.Unlock()
	}

	v.logger.Debug("publishing markers", "action", action, "group", group, "points", t.Len())
	return v.out.BroadcastMessage(msg)
}
