package service

import (
	"context"
	"sync"
	"time"

	"github.com/kjstillabower/weather-watchlist-service/internal/models"
)

// lookupCall is one provider lookup that concurrent callers for the same key share.
type lookupCall struct {
	done   chan struct{}
	result models.Snapshot
	err    error
}

// lookupCoalescer collapses concurrent provider lookups for the same city into one call.
type lookupCoalescer struct {
	mu       sync.Mutex
	inFlight map[string]*lookupCall
	timeout  time.Duration
}

func newLookupCoalescer(timeout time.Duration) *lookupCoalescer {
	return &lookupCoalescer{
		inFlight: make(map[string]*lookupCall),
		timeout:  timeout,
	}
}

// Do runs fn for key unless a call for key is already running, in which case it
// waits for that call's result. shared reports whether the result came from
// another caller's call. Waiting is bounded by ctx and the coalescer timeout;
// fn itself keeps running for the remaining waiters.
func (lc *lookupCoalescer) Do(ctx context.Context, key string, fn func() (models.Snapshot, error)) (snap models.Snapshot, shared bool, err error) {
	lc.mu.Lock()
	call, exists := lc.inFlight[key]
	if !exists {
		call = &lookupCall{done: make(chan struct{})}
		lc.inFlight[key] = call
		go lc.run(key, call, fn)
	}
	lc.mu.Unlock()

	waitCtx := ctx
	if lc.timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, lc.timeout)
		defer cancel()
	}

	select {
	case <-call.done:
		return call.result, exists, call.err
	case <-waitCtx.Done():
		return models.Snapshot{}, exists, waitCtx.Err()
	}
}

func (lc *lookupCoalescer) run(key string, call *lookupCall, fn func() (models.Snapshot, error)) {
	defer func() {
		lc.mu.Lock()
		delete(lc.inFlight, key)
		lc.mu.Unlock()
		close(call.done)
	}()
	call.result, call.err = fn()
}
