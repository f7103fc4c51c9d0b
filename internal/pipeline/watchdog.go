package pipeline

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dispatchd/dispatchd/internal/dispatch"
)

// watchdogState tracks the moment of last observed activity on a
// generation, so the inactivity monitor can tell a stalled backend apart
// from caller cancellation when it finds genCtx already done.
type watchdogState struct {
	lastProgress atomic.Int64 // unix nanos
	expired      atomic.Bool
}

func (w *watchdogState) touch() {
	w.lastProgress.Store(time.Now().UnixNano())
}

// withInactivityWatchdog derives a child context that is cancelled either
// when parent is, or when BackendTimeout elapses with no call to touch() on
// the returned *watchdogState (spec §5: "if a worker holds a claim without
// emitting progress for this duration, the Dispatcher declares it failed").
// The caller must invoke the returned cancel func on every exit path.
func (p *Pipeline) withInactivityWatchdog(parent context.Context, access *dispatch.WorkerAccess) (context.Context, context.CancelFunc, *watchdogState) {
	cancelCtx, cancel := context.WithCancel(parent)
	state := &watchdogState{}
	state.touch()
	ctx := context.WithValue(cancelCtx, watchdogStateKey{}, state)

	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(p.cfg.BackendTimeout / 4)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				last := time.Unix(0, state.lastProgress.Load())
				if time.Since(last) >= p.cfg.BackendTimeout {
					state.expired.Store(true)
					cancel()
					return
				}
			}
		}
	}()

	var stopOnce sync.Once
	stop := func() {
		stopOnce.Do(func() {
			close(done)
			cancel()
		})
	}
	return ctx, stop, state
}

func (p *Pipeline) watchdogExpired(ctx context.Context) bool {
	state, ok := ctx.Value(watchdogStateKey{}).(*watchdogState)
	if !ok {
		return false
	}
	return state.expired.Load()
}

type watchdogStateKey struct{}
