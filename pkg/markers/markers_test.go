package markers

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-motionexec/pkg/execution"
	"github.com/teslashibe/go-motionexec/pkg/protocol"
	"github.com/teslashibe/go-motionexec/pkg/trajectory"
)

var _ execution.Visualizer = (*Visualizer)(nil)

type recorder struct {
	mu   sync.Mutex
	msgs []*protocol.Message
	err  error
}

func (r *recorder) BroadcastMessage(msg *protocol.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
	return r.err
}

func sample() *trajectory.JointTrajectory {
	return &trajectory.JointTrajectory{
		JointNames: []string{"j1"},
		Points: []trajectory.Point{
			{Positions: []float64{0}},
			{Positions: []float64{1}, TimeFromStart: time.Second},
		},
	}
}

func TestVisualizer(t *testing.T) {
	rec := &recorder{}
	v := New(rec, nil)
	ctx := context.Background()

	require.NoError(t, v.PublishTrajectoryLine(ctx, sample(), "arm"))
	require.NoError(t, v.PublishTrajectoryPath(ctx, sample(), "arm"))

	current := v.Current()
	require.Len(t, current, 2)
	assert.Equal(t, protocol.MarkerLine, current[0].Action)
	assert.Equal(t, protocol.MarkerPath, current[1].Action)
	assert.Equal(t, "arm", current[1].Group)
	require.NotNil(t, current[1].Trajectory)
	assert.Len(t, current[1].Trajectory.Points, 2)

	require.NoError(t, v.DeleteAllMarkers(ctx))
	assert.Empty(t, v.Current())

	require.Len(t, rec.msgs, 3)
	data, err := rec.msgs[2].GetMarkerData()
	require.NoError(t, err)
	assert.Equal(t, protocol.MarkerDeleteAll, data.Action)
	assert.Nil(t, data.Trajectory)
}

func TestVisualizer_BroadcastError(t *testing.T) {
	rec := &recorder{err: errors.New("queue full")}
	v := New(rec, nil)

	assert.Error(t, v.PublishTrajectoryLine(context.Background(), sample(), "arm"))
}
