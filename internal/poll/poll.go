// Package poll provides a cancellable fixed-interval retry loop shared by
// the onboarding waiters. A Task polls a completion check until it holds,
// a retry bound is exhausted, or a wall-clock ceiling elapses. Loops never
// propagate errors to callers; the check itself decides what counts as done.
package poll

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Task describes one polling loop.
type Task struct {
	// Check reports whether the awaited condition now holds. It must not
	// panic; transient backend errors should simply return false.
	Check func(ctx context.Context) bool

	// InitialDelay is slept before the first check.
	InitialDelay time.Duration

	// Interval separates consecutive checks.
	Interval time.Duration

	// MaxAttempts bounds the number of checks. Zero means no attempt bound.
	MaxAttempts int

	// Ceiling bounds the total wall-clock time from loop start. Zero means
	// no ceiling.
	Ceiling time.Duration
}

// Handle controls a detached polling loop started with Start.
type Handle struct {
	cancelOnce sync.Once
	cancel     chan struct{}
	done       chan struct{}
	completed  atomic.Bool
}

// Cancel stops the loop. After Cancel returns no further check runs and the
// completion callback will not fire. Safe to call more than once.
func (h *Handle) Cancel() {
	h.cancelOnce.Do(func() { close(h.cancel) })
}

// Done is closed when the loop has exited, for whatever reason.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Completed reports whether the check succeeded before the loop exited.
func (h *Handle) Completed() bool {
	return h.completed.Load()
}

// Start runs the task detached from the caller. onDone fires at most once,
// from the polling goroutine, and only when the check succeeded before any
// cancellation. Exhausting MaxAttempts or the ceiling ends the loop silently.
func Start(ctx context.Context, t Task, onDone func()) *Handle {
	h := &Handle{
		cancel: make(chan struct{}),
		done:   make(chan struct{}),
	}

	go func() {
		defer close(h.done)
		if run(ctx, t, h.cancel) {
			select {
			case <-h.cancel:
				return
			case <-ctx.Done():
				return
			default:
			}
			h.completed.Store(true)
			if onDone != nil {
				onDone()
			}
		}
	}()

	return h
}

// Wait blocks until the check holds, the ceiling or attempt bound is hit, or
// ctx is cancelled. It reports whether the check actually succeeded; a false
// return is a timeout or cancellation, never an error.
func Wait(ctx context.Context, t Task) bool {
	return run(ctx, t, nil)
}

func run(ctx context.Context, t Task, cancel <-chan struct{}) bool {
	var deadline time.Time
	if t.Ceiling > 0 {
		deadline = time.Now().Add(t.Ceiling)
	}

	if !sleep(ctx, t.InitialDelay, cancel) {
		return false
	}

	attempts := 0
	for {
		if cancelled(ctx, cancel) {
			return false
		}
		if t.Check(ctx) {
			return true
		}
		attempts++
		if t.MaxAttempts > 0 && attempts >= t.MaxAttempts {
			return false
		}
		if !deadline.IsZero() && !time.Now().Add(t.Interval).Before(deadline) {
			return false
		}
		if !sleep(ctx, t.Interval, cancel) {
			return false
		}
	}
}

func sleep(ctx context.Context, d time.Duration, cancel <-chan struct{}) bool {
	if d <= 0 {
		return !cancelled(ctx, cancel)
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	case <-cancel:
		return false
	}
}

func cancelled(ctx context.Context, cancel <-chan struct{}) bool {
	if ctx.Err() != nil {
		return true
	}
	select {
	case <-cancel:
		return true
	default:
		return false
	}
}
