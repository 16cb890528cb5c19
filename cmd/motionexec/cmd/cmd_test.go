package cmd

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-motionexec/pkg/trajectory"
	"github.com/teslashibe/go-motionexec/pkg/web"
)

func writeTrajectory(t *testing.T, times ...time.Duration) string {
	t.Helper()
	traj := &trajectory.JointTrajectory{JointNames: []string{"shoulder", "elbow"}}
	for i, ts := range times {
		traj.Points = append(traj.Points, trajectory.Point{
			Positions:     []float64{float64(i) * 0.1, -float64(i) * 0.1},
			TimeFromStart: ts,
		})
	}

	path := filepath.Join(t.TempDir(), "arm_moveit_trajectory_0.csv")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, trajectory.WriteCSV(f, traj))
	require.NoError(t, f.Close())
	return path
}

func TestParseOnOff(t *testing.T) {
	tests := []struct {
		in      string
		want    bool
		wantErr bool
	}{
		{"on", true, false},
		{"off", false, false},
		{"true", true, false},
		{"0", false, false},
		{"sideways", false, true},
	}
	for _, tt := range tests {
		got, err := parseOnOff(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestCheckJumps(t *testing.T) {
	ok := writeTrajectory(t, 0, time.Second, 4*time.Second)
	rootCmd.SetArgs([]string{"check-jumps", ok})
	assert.NoError(t, rootCmd.Execute())

	bad := writeTrajectory(t, 0, time.Second, 6*time.Second)
	rootCmd.SetArgs([]string{"check-jumps", bad})
	assert.ErrorIs(t, rootCmd.Execute(), errCheckFailed)
}

func TestSend(t *testing.T) {
	var got web.TrajectoryRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/trajectories" {
			http.NotFound(w, r)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		_ = json.NewEncoder(w).Encode(web.DispatchResponse{
			Status:   "succeeded",
			Mode:     "joint_publisher",
			Points:   len(got.Trajectory.Points),
			Duration: 2,
		})
	}))
	defer srv.Close()

	path := writeTrajectory(t, 0, time.Second, 2*time.Second)
	rootCmd.SetArgs([]string{"--server", srv.URL, "send", path, "--group", "left_arm", "--wait"})
	require.NoError(t, rootCmd.Execute())

	assert.Equal(t, "left_arm", got.Group)
	assert.True(t, got.Wait)
	assert.False(t, got.EndEffector)
	assert.Equal(t, []string{"shoulder", "elbow"}, got.Trajectory.JointNames)
	require.Len(t, got.Trajectory.Points, 3)
	assert.InDelta(t, 2.0, got.Trajectory.Points[2].TimeFromStart, 1e-9)
}

func TestCheckControllersViaService(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"hardware":"arm","ok":false,"failed":"main_not_running","message":"position_trajectory_controller is stopped","controllers":[]}`))
	}))
	defer srv.Close()

	serverURL = srv.URL
	checkManagerURL = ""
	r, err := checkControllers(t.Context())
	require.NoError(t, err)
	assert.False(t, r.OK)
	assert.Equal(t, "main_not_running", string(r.Failed))
}
