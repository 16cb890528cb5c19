package gate

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPoll = 20 * time.Millisecond

func newTestGate(cfg Config) *Gate {
	if cfg.PollInterval == 0 {
		cfg.PollInterval = testPoll
	}
	return New(cfg, nil)
}

// waitAsync runs a wait in the background and returns its result channel.
func waitAsync(ctx context.Context, g *Gate, full bool) <-chan bool {
	done := make(chan bool, 1)
	go func() {
		if full {
			done <- g.WaitForFullStep(ctx, "execute trajectory")
		} else {
			done <- g.WaitForStep(ctx, "plan")
		}
	}()
	return done
}

func waitUntilWaiting(t *testing.T, g *Gate) {
	t.Helper()
	require.Eventually(t, func() bool { return g.Status().Waiting }, time.Second, time.Millisecond)
}

func TestNew_FullImpliesSingle(t *testing.T) {
	g := newTestGate(Config{FullAutonomous: true})
	assert.True(t, g.SingleStepAutonomous())
	assert.True(t, g.FullAutonomous())
	assert.Equal(t, DefaultPollInterval, New(Config{}, nil).pollInterval)
}

func TestWaitForStep_AutonomousReturnsImmediately(t *testing.T) {
	g := newTestGate(Config{SingleStepAutonomous: true})

	// A cancelled context would make a real wait fail; autonomy must skip it.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.True(t, g.WaitForStep(ctx, "plan"))
	assert.False(t, g.Status().Waiting)
}

func TestWaitForFullStep_FullAutonomousNeverBlocks(t *testing.T) {
	g := newTestGate(Config{FullAutonomous: true})

	select {
	case ok := <-waitAsync(context.Background(), g, true):
		assert.True(t, ok)
	case <-time.After(time.Second):
		t.Fatal("WaitForFullStep blocked in full autonomous mode")
	}
}

func TestWaitForFullStep_SingleStepDoesNotSkip(t *testing.T) {
	g := newTestGate(Config{SingleStepAutonomous: true})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := waitAsync(ctx, g, true)
	waitUntilWaiting(t, g)
	assert.Equal(t, "execute trajectory", g.Status().Checkpoint)

	g.RequestReady()
	select {
	case ok := <-done:
		assert.True(t, ok)
	case <-time.After(time.Second):
		t.Fatal("full-step wait was not released")
	}
}

func TestRequestReady_WakesPendingWait(t *testing.T) {
	g := newTestGate(Config{})
	done := waitAsync(context.Background(), g, false)
	waitUntilWaiting(t, g)

	start := time.Now()
	assert.True(t, g.RequestReady())

	select {
	case ok := <-done:
		assert.True(t, ok)
	case <-time.After(time.Second):
		t.Fatal("wait was not released")
	}
	assert.Less(t, time.Since(start), testPoll+50*time.Millisecond)

	s := g.Status()
	assert.False(t, s.Waiting)
	assert.False(t, s.NextStepReady)
	assert.Empty(t, s.Checkpoint)
}

func TestRequestReady_BeforeWaitIsConsumed(t *testing.T) {
	g := newTestGate(Config{})
	g.RequestReady()
	assert.True(t, g.Status().NextStepReady)

	select {
	case ok := <-waitAsync(context.Background(), g, false):
		assert.True(t, ok)
	case <-time.After(time.Second):
		t.Fatal("latched ready did not release the wait")
	}

	s := g.Status()
	assert.False(t, s.Waiting)
	assert.False(t, s.NextStepReady)
}

func TestWait_ReleasedByAutonomy(t *testing.T) {
	g := newTestGate(Config{})
	done := waitAsync(context.Background(), g, true)
	waitUntilWaiting(t, g)

	g.SetFullAutonomous(true)
	select {
	case ok := <-done:
		assert.True(t, ok)
	case <-time.After(time.Second):
		t.Fatal("enabling full autonomy did not release the wait")
	}
}

func TestWait_CancelledReturnsFalse(t *testing.T) {
	g := newTestGate(Config{})
	ctx, cancel := context.WithCancel(context.Background())

	done := waitAsync(ctx, g, false)
	waitUntilWaiting(t, g)
	cancel()

	select {
	case ok := <-done:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("cancelled wait did not return")
	}
	assert.False(t, g.Status().Waiting)
}

func TestRequestStop(t *testing.T) {
	g := newTestGate(Config{FullAutonomous: true})

	g.RequestStop(true)
	assert.True(t, g.StopRequested())
	assert.False(t, g.SingleStepAutonomous())
	assert.False(t, g.FullAutonomous())

	g.SetSingleStepAutonomous(true)
	assert.False(t, g.StopRequested(), "flag-setting calls clear stop")
	assert.True(t, g.SingleStepAutonomous())
	assert.False(t, g.FullAutonomous())
}

func TestLatchedReadyDropped(t *testing.T) {
	tests := []struct {
		name   string
		revoke func(g *Gate)
	}{
		{name: "stop", revoke: func(g *Gate) { g.RequestStop(true) }},
		{name: "revoke autonomy", revoke: func(g *Gate) { g.RevokeAutonomy() }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := newTestGate(Config{FullAutonomous: true})
			g.RequestReady()
			tt.revoke(g)

			assert.False(t, g.Status().NextStepReady)
			assert.False(t, g.FullAutonomous())
			assert.False(t, g.SingleStepAutonomous())

			ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
			defer cancel()
			assert.False(t, g.WaitForFullStep(ctx, "execute trajectory"), "wait released without a fresh ready")
		})
	}
}

func TestRevokeAutonomy_KeepsStopFlag(t *testing.T) {
	g := newTestGate(Config{})
	g.RequestStop(true)
	g.RevokeAutonomy()
	assert.True(t, g.StopRequested())

	g.RequestStop(false)
	g.RevokeAutonomy()
	assert.False(t, g.StopRequested())
}

func TestRequestStop_FalseOnlyClearsFlag(t *testing.T) {
	g := newTestGate(Config{SingleStepAutonomous: true})
	g.RequestStop(false)
	assert.False(t, g.StopRequested())
	assert.True(t, g.SingleStepAutonomous())

	g.RequestStop(true)
	g.RequestReady()
	assert.False(t, g.StopRequested(), "ready clears stop")
}

func TestSetFullAutonomous_SetsBoth(t *testing.T) {
	g := newTestGate(Config{})
	g.SetFullAutonomous(true)
	assert.True(t, g.SingleStepAutonomous())
	assert.True(t, g.FullAutonomous())

	g.SetFullAutonomous(false)
	assert.False(t, g.SingleStepAutonomous())
	assert.False(t, g.FullAutonomous())
}

func TestOnChange(t *testing.T) {
	g := newTestGate(Config{})

	var mu sync.Mutex
	var seen []Status
	g.OnChange(func(s Status) {
		mu.Lock()
		seen = append(seen, s)
		mu.Unlock()
	})

	g.SetSingleStepAutonomous(true)
	g.RequestStop(true)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, seen, 2)
	assert.True(t, seen[0].SingleStepAutonomous)
	assert.True(t, seen[1].StopRequested)
	assert.False(t, seen[1].SingleStepAutonomous)
}

func TestGate_ConcurrentAccess(t *testing.T) {
	g := newTestGate(Config{})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var released atomic.Int32
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 20; i++ {
			if g.WaitForStep(ctx, "loop") {
				released.Add(1)
			}
		}
	}()

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(v bool) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				g.SetSingleStepAutonomous(v)
				_ = g.Status()
				g.RequestReady()
			}
		}(i%2 == 0)
	}

	go func() {
		for ctx.Err() == nil {
			g.RequestReady()
			time.Sleep(time.Millisecond)
		}
	}()

	wg.Wait()
	assert.Equal(t, int32(20), released.Load())
}
