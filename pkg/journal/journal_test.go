package journal

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-motionexec/internal/storage"
	"github.com/teslashibe/go-motionexec/pkg/execution"
	"github.com/teslashibe/go-motionexec/pkg/gate"
	"github.com/teslashibe/go-motionexec/pkg/trajectory"
)

var _ execution.Journal = (*Journal)(nil)

func openJournal(t *testing.T) *Journal {
	t.Helper()
	db, err := storage.OpenSQLite(context.Background(), storage.MemoryPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return New(db, nil)
}

func TestStatusOf(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, StatusSucceeded},
		{execution.ErrCancelled, StatusCancelled},
		{&execution.BackendError{Backend: execution.ModeManaged, Err: execution.ErrBackendRejected}, StatusRejected},
		{fmt.Errorf("wrapped: %w", execution.ErrPreempted), StatusPreempted},
		{execution.ErrTimedOut, StatusTimedOut},
		{execution.ErrPublishFailed, StatusPublishFailed},
		{errors.New("boom"), StatusFailed},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, StatusOf(tt.err), "%v", tt.err)
	}
}

func TestRecordAndList(t *testing.T) {
	j := openJournal(t)
	ctx := context.Background()
	base := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		o := execution.Outcome{
			Group:       "arm",
			Mode:        execution.ModeDirect,
			Points:      3 + i,
			Duration:    time.Duration(i+1) * 1500 * time.Millisecond,
			Fingerprint: "fp",
			StartedAt:   base.Add(time.Duration(i) * time.Minute),
			FinishedAt:  base.Add(time.Duration(i)*time.Minute + time.Second),
		}
		if i == 2 {
			o.Err = execution.ErrCancelled
			o.LockedOut = true
			o.Jumps = []trajectory.Jump{{Index: 1, Severity: trajectory.SeverityError}}
			o.ArchivePath = "/tmp/arm_moveit_trajectory_2.csv"
		}
		require.NoError(t, j.Record(ctx, o))
	}

	entries, err := j.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	newest := entries[0]
	assert.Equal(t, 5, newest.Points)
	assert.Equal(t, StatusCancelled, newest.Status)
	assert.Equal(t, execution.ErrCancelled.Error(), newest.Error)
	assert.True(t, newest.LockedOut)
	assert.Equal(t, 1, newest.Jumps)
	assert.Equal(t, "/tmp/arm_moveit_trajectory_2.csv", newest.ArchivePath)
	assert.Equal(t, 4500*time.Millisecond, newest.Duration)
	assert.True(t, newest.StartedAt.Equal(base.Add(2*time.Minute)))

	assert.Equal(t, StatusSucceeded, entries[2].Status)
	assert.Empty(t, entries[2].Error)

	got, err := j.Get(ctx, newest.ID)
	require.NoError(t, err)
	assert.Equal(t, newest, got)

	n, err := j.CountByFingerprint(ctx, "fp")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	limited, err := j.List(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestGetNotFound(t *testing.T) {
	j := openJournal(t)
	_, err := j.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDispatcherRecordsToJournal(t *testing.T) {
	j := openJournal(t)
	pub := &execution.MockPublisher{}
	g := gate.New(gate.Config{FullAutonomous: true}, nil)

	d, err := execution.New(execution.Config{}, g, execution.NewDirectBackend(pub, nil), execution.WithJournal(j))
	require.NoError(t, err)

	traj := &trajectory.JointTrajectory{
		JointNames: []string{"j1"},
		Points: []trajectory.Point{
			{Positions: []float64{0}},
			{Positions: []float64{1}, TimeFromStart: 500 * time.Millisecond},
		},
	}
	require.NoError(t, d.SendTrajectory(context.Background(), traj, trajectory.Group{Name: "arm"}, false))

	entries, err := j.List(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, trajectory.Fingerprint(traj), entries[0].Fingerprint)
	assert.Equal(t, string(execution.ModeDirect), entries[0].Mode)
	assert.Equal(t, StatusSucceeded, entries[0].Status)
}
