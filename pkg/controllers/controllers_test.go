package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticLister struct {
	list []Controller
	err  error
}

func (s staticLister) ListControllers(ctx context.Context) ([]Controller, error) {
	return s.list, s.err
}

func TestCheck(t *testing.T) {
	running := func(name string) Controller { return Controller{Name: name, State: StateRunning} }
	stopped := func(name string) Controller { return Controller{Name: name, State: "stopped"} }

	tests := []struct {
		name   string
		list   []Controller
		err    error
		hasEE  bool
		ok     bool
		failed Failure
	}{
		{
			name: "main running",
			list: []Controller{running("joint_state_controller"), running("position_trajectory_controller")},
			ok:   true,
		},
		{
			name:  "main and ee running",
			list:  []Controller{running("position_trajectory_controller"), running("ee_position_trajectory_controller")},
			hasEE: true,
			ok:    true,
		},
		{
			name:   "main stopped",
			list:   []Controller{stopped("position_trajectory_controller")},
			failed: FailureMainNotRunning,
		},
		{
			name:   "ee stopped but not required",
			list:   []Controller{running("position_trajectory_controller"), stopped("ee_position_trajectory_controller")},
			failed: FailureEENotRunning,
		},
		{
			name:   "ee missing",
			list:   []Controller{running("position_trajectory_controller")},
			hasEE:  true,
			failed: FailureEEMissing,
		},
		{
			name:   "main missing",
			list:   []Controller{running("ee_position_trajectory_controller")},
			hasEE:  true,
			failed: FailureMainMissing,
		},
		{
			name:   "empty list",
			failed: FailureMainMissing,
		},
		{
			name:   "unreachable",
			err:    errors.New("connection refused"),
			failed: FailureUnreachable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewChecker(staticLister{list: tt.list, err: tt.err}, "", nil)
			r := c.Check(context.Background(), "right_arm", tt.hasEE)

			assert.Equal(t, tt.ok, r.OK)
			assert.Equal(t, tt.failed, r.Failed)
			assert.Equal(t, "right_arm", r.Hardware)
			if !tt.ok {
				assert.NotEmpty(t, r.Message)
			}
		})
	}
}

func TestControllerNames(t *testing.T) {
	c := NewChecker(staticLister{}, "velocity", nil)
	assert.Equal(t, "velocity_trajectory_controller", c.MainController())
	assert.Equal(t, "ee_velocity_trajectory_controller", c.EEController())
}

func TestHTTPLister(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/controllers" {
			http.NotFound(w, r)
			return
		}
		_ = json.NewEncoder(w).Encode([]Controller{
			{Name: "position_trajectory_controller", State: "running", Type: "JointTrajectoryController"},
		})
	}))
	defer srv.Close()

	l, err := NewHTTPLister(srv.URL+"/", 0)
	require.NoError(t, err)

	list, err := l.ListControllers(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "JointTrajectoryController", list[0].Type)

	r := NewChecker(l, "", nil).Check(context.Background(), "arm", false)
	assert.True(t, r.OK)
}

func TestHTTPLister_Errors(t *testing.T) {
	_, err := NewHTTPLister("", 0)
	assert.Error(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "manager down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	l, err := NewHTTPLister(srv.URL, 0)
	require.NoError(t, err)
	r := NewChecker(l, "", nil).Check(context.Background(), "arm", false)
	assert.False(t, r.OK)
	assert.Equal(t, FailureUnreachable, r.Failed)
	assert.Contains(t, r.Message, "503")
}
