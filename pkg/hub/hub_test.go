package hub

import (
	"context"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	fws "github.com/gofiber/websocket/v2"
	"github.com/gorilla/websocket"

	"github.com/teslashibe/go-motionexec/pkg/protocol"
)

func startHub(t *testing.T, addr string) *Hub {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	h := New("test", nil)
	go h.Run(ctx)

	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Get("/ws", fws.New(func(c *fws.Conn) {
		client := NewClient(h, c)
		client.Send([]byte(`{"hello":true}`))
		client.Run()
	}))
	go app.Listen(addr)
	t.Cleanup(func() { _ = app.Shutdown() })
	time.Sleep(100 * time.Millisecond)
	return h
}

func TestNew(t *testing.T) {
	h := New("status", nil)
	if h.ClientCount() != 0 {
		t.Error("ClientCount should be 0 initially")
	}
	if h.IsRunning() {
		t.Error("hub should not be running before Run")
	}
}

func TestRunStopsWithContext(t *testing.T) {
	h := New("status", nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	if !h.IsRunning() {
		t.Error("hub should be running")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if h.IsRunning() {
		t.Error("hub should not be running after cancel")
	}
}

func TestBroadcastDropsWhenFull(t *testing.T) {
	h := New("status", nil)

	// Not running, so nothing drains the queue.
	for i := 0; i < cap(h.broadcast); i++ {
		if !h.Broadcast([]byte("x")) {
			t.Fatalf("Broadcast %d dropped early", i)
		}
	}
	if h.Broadcast([]byte("x")) {
		t.Error("Broadcast should drop when the queue is full")
	}
	if h.Dropped() != 1 {
		t.Errorf("Dropped = %d, want 1", h.Dropped())
	}
}

func TestBroadcastToClients(t *testing.T) {
	h := startHub(t, ":18190")

	ws, _, err := websocket.DefaultDialer.Dial("ws://localhost:18190/ws", nil)
	if err != nil {
		t.Fatalf("WebSocket dial error: %v", err)
	}
	defer ws.Close()
	_ = ws.SetReadDeadline(time.Now().Add(2 * time.Second))

	// Greeting sent to this client only
	_, data, err := ws.ReadMessage()
	if err != nil {
		t.Fatalf("Read error: %v", err)
	}
	if string(data) != `{"hello":true}` {
		t.Errorf("greeting = %s", data)
	}

	if h.ClientCount() != 1 {
		t.Errorf("ClientCount = %d, want 1", h.ClientCount())
	}

	msg, _ := protocol.NewMarkerMessage(protocol.MarkerDeleteAll, "", nil)
	if err := h.BroadcastMessage(msg); err != nil {
		t.Fatalf("BroadcastMessage error: %v", err)
	}

	_, data, err = ws.ReadMessage()
	if err != nil {
		t.Fatalf("Read error: %v", err)
	}
	got, err := protocol.ParseMessage(data)
	if err != nil {
		t.Fatalf("ParseMessage error: %v", err)
	}
	if got.Type != protocol.TypeMarkers {
		t.Errorf("Type = %s, want markers", got.Type)
	}

	ws.Close()
	time.Sleep(100 * time.Millisecond)
	if h.ClientCount() != 0 {
		t.Errorf("ClientCount = %d, want 0 after disconnect", h.ClientCount())
	}
}
