package cloud

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gorilla/websocket"

	"github.com/teslashibe/go-motionexec/pkg/execution"
	"github.com/teslashibe/go-motionexec/pkg/protocol"
	"github.com/teslashibe/go-motionexec/pkg/trajectory"
)

// Compile-time check that Hub can drive a DirectBackend.
var _ execution.Publisher = (*Hub)(nil)

func startHub(t *testing.T, hub *Hub, addr string) {
	t.Helper()
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})
	hub.RegisterRoutes(app)

	go app.Listen(addr)
	t.Cleanup(func() { _ = app.Shutdown() })
	time.Sleep(100 * time.Millisecond)
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("WebSocket dial error: %v", err)
	}
	t.Cleanup(func() { ws.Close() })

	// Wait for connection to be registered
	time.Sleep(50 * time.Millisecond)
	return ws
}

func readMessage(t *testing.T, ws *websocket.Conn) *protocol.Message {
	t.Helper()
	_ = ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := ws.ReadMessage()
	if err != nil {
		t.Fatalf("Read error: %v", err)
	}
	msg, err := protocol.ParseMessage(data)
	if err != nil {
		t.Fatalf("ParseMessage error: %v", err)
	}
	return msg
}

func TestNewHub(t *testing.T) {
	hub := NewHub(Config{}, nil)

	if hub.ControllerCount() != 0 {
		t.Error("ControllerCount should be 0 initially")
	}
	if hub.cfg != DefaultConfig() {
		t.Errorf("empty config should fall back to defaults, got %+v", hub.cfg)
	}

	custom := NewHub(Config{JointTrajectoryTopic: "/arm/command"}, nil)
	if custom.cfg.JointTrajectoryTopic != "/arm/command" {
		t.Errorf("JointTrajectoryTopic = %s, want /arm/command", custom.cfg.JointTrajectoryTopic)
	}
	if custom.cfg.CartesianCommandTopic != DefaultCartesianCommandTopic {
		t.Errorf("CartesianCommandTopic = %s, want default", custom.cfg.CartesianCommandTopic)
	}
}

func TestPublishWithoutControllers(t *testing.T) {
	hub := NewHub(Config{}, nil)

	err := hub.PublishTrajectory(context.Background(), &trajectory.JointTrajectory{})
	if !errors.Is(err, ErrNoControllers) {
		t.Errorf("PublishTrajectory error = %v, want ErrNoControllers", err)
	}
	err = hub.PublishPose(context.Background(), trajectory.PoseStamped{})
	if !errors.Is(err, ErrNoControllers) {
		t.Errorf("PublishPose error = %v, want ErrNoControllers", err)
	}
}

func TestControllerConnection(t *testing.T) {
	hub := NewHub(Config{}, nil)
	startHub(t, hub, ":18180")

	ws := dial(t, "ws://localhost:18180/ws/controller/arm-bridge")

	if hub.ControllerCount() != 1 {
		t.Errorf("ControllerCount = %d, want 1", hub.ControllerCount())
	}
	if hub.GetController("arm-bridge") == nil {
		t.Error("GetController should return the connected bridge")
	}

	// Close and verify disconnect
	ws.Close()
	time.Sleep(100 * time.Millisecond)

	if hub.ControllerCount() != 0 {
		t.Errorf("ControllerCount = %d, want 0 after disconnect", hub.ControllerCount())
	}
}

func TestGeneratedControllerID(t *testing.T) {
	hub := NewHub(Config{}, nil)
	startHub(t, hub, ":18181")

	dial(t, "ws://localhost:18181/ws/controller")

	infos := hub.GetControllerInfos()
	if len(infos) != 1 {
		t.Fatalf("GetControllerInfos len = %d, want 1", len(infos))
	}
	if len(infos[0].ID) != 36 {
		t.Errorf("generated ID = %q, want a UUID", infos[0].ID)
	}
}

func TestPublishTrajectory(t *testing.T) {
	hub := NewHub(Config{JointTrajectoryTopic: "/arm/command"}, nil)
	startHub(t, hub, ":18182")
	ws := dial(t, "ws://localhost:18182/ws/controller/arm")

	traj := &trajectory.JointTrajectory{
		JointNames: []string{"j1"},
		Points: []trajectory.Point{
			{Positions: []float64{0}},
			{Positions: []float64{0.5}, TimeFromStart: 2 * time.Second},
		},
	}
	if err := hub.PublishTrajectory(context.Background(), traj); err != nil {
		t.Fatalf("PublishTrajectory error: %v", err)
	}

	msg := readMessage(t, ws)
	if msg.Type != protocol.TypeTrajectory {
		t.Errorf("Type = %s, want trajectory", msg.Type)
	}
	if msg.Topic != "/arm/command" {
		t.Errorf("Topic = %s, want /arm/command", msg.Topic)
	}
	data, err := msg.GetTrajectoryData()
	if err != nil {
		t.Fatalf("GetTrajectoryData error: %v", err)
	}
	if len(data.Points) != 2 || data.Points[1].TimeFromStart != 2 {
		t.Errorf("unexpected trajectory data: %+v", data)
	}

	if got := hub.GetStats().TrajectoriesSent; got != 1 {
		t.Errorf("TrajectoriesSent = %d, want 1", got)
	}
}

func TestDirectBackendStopOverHub(t *testing.T) {
	hub := NewHub(Config{}, nil)
	startHub(t, hub, ":18183")
	ws := dial(t, "ws://localhost:18183/ws/controller/arm")

	backend := execution.NewDirectBackend(hub, nil)
	if err := backend.Stop(context.Background()); err != nil {
		t.Fatalf("Stop error: %v", err)
	}

	msg := readMessage(t, ws)
	data, err := msg.GetTrajectoryData()
	if err != nil {
		t.Fatalf("GetTrajectoryData error: %v", err)
	}
	if len(data.Points) != 0 {
		t.Errorf("halt should carry no points, got %d", len(data.Points))
	}
}

func TestPublishPose(t *testing.T) {
	hub := NewHub(Config{}, nil)
	startHub(t, hub, ":18184")
	ws := dial(t, "ws://localhost:18184/ws/controller/arm")

	pose := trajectory.PoseStamped{FrameID: "world", Stamp: time.Now(), Pose: trajectory.Identity()}
	if err := hub.PublishPose(context.Background(), pose); err != nil {
		t.Fatalf("PublishPose error: %v", err)
	}

	msg := readMessage(t, ws)
	if msg.Type != protocol.TypePose || msg.Topic != DefaultCartesianCommandTopic {
		t.Errorf("got %s on %s, want pose on %s", msg.Type, msg.Topic, DefaultCartesianCommandTopic)
	}
}

func TestStateCallback(t *testing.T) {
	hub := NewHub(Config{}, nil)
	startHub(t, hub, ":18185")

	var received atomic.Bool
	var receivedID atomic.Value
	hub.OnState(func(id string, state *protocol.StateData) {
		receivedID.Store(id)
		received.Store(true)
	})

	ws := dial(t, "ws://localhost:18185/ws/controller/state-test")

	msg, _ := protocol.NewStateMessage(true, "executing", "")
	data, _ := msg.Bytes()
	ws.WriteMessage(websocket.TextMessage, data)

	time.Sleep(100 * time.Millisecond)

	if !received.Load() {
		t.Fatal("State callback should have been called")
	}
	if id, _ := receivedID.Load().(string); id != "state-test" {
		t.Errorf("Controller ID = %s, want state-test", id)
	}

	infos := hub.GetControllerInfos()
	if len(infos) != 1 || infos[0].State != "executing" {
		t.Errorf("GetControllerInfos = %+v, want state executing", infos)
	}
}

func TestPingPong(t *testing.T) {
	hub := NewHub(Config{}, nil)
	startHub(t, hub, ":18186")
	ws := dial(t, "ws://localhost:18186/ws/controller/ping-test")

	msg, _ := protocol.NewPingMessage()
	data, _ := msg.Bytes()
	ws.WriteMessage(websocket.TextMessage, data)

	resp := readMessage(t, ws)
	if resp.Type != protocol.TypePong {
		t.Errorf("Type = %s, want pong", resp.Type)
	}
}

func TestAPIListBridges(t *testing.T) {
	hub := NewHub(Config{}, nil)
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})
	hub.RegisterRoutes(app)
	hub.RegisterAPIRoutes(app.Group("/api"))

	req := httptest.NewRequest("GET", "/api/bridges/", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("Request error: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Errorf("Status = %d, want 200", resp.StatusCode)
	}

	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), DefaultJointTrajectoryTopic) {
		t.Error("Response should list the joint trajectory topic")
	}

	req = httptest.NewRequest("GET", "/api/bridges/stats", nil)
	resp, err = app.Test(req)
	if err != nil {
		t.Fatalf("Request error: %v", err)
	}
	var stats Stats
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if stats.ControllerCount != 0 {
		t.Errorf("ControllerCount = %d, want 0", stats.ControllerCount)
	}
}

func TestUpgradeRequired(t *testing.T) {
	hub := NewHub(Config{}, nil)
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})
	hub.RegisterRoutes(app)

	resp, err := app.Test(httptest.NewRequest("GET", "/ws/controller/x", nil))
	if err != nil {
		t.Fatalf("Request error: %v", err)
	}
	if resp.StatusCode != fiber.StatusUpgradeRequired {
		t.Errorf("Status = %d, want 426", resp.StatusCode)
	}
}
