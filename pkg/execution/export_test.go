package execution

import (
	"context"
	"time"
)

// SetSleep replaces the completion sleep of a DirectBackend.
func (b *DirectBackend) SetSleep(fn func(ctx context.Context, d time.Duration) error) {
	b.sleep = fn
}

var SleepContext = sleepContext
