// Package keylock provides per-key mutual exclusion with bounded waits.
//
// Each key gets its own weighted semaphore of size one, created on first use and
// dropped once no goroutine holds or waits for it, so the table only grows with
// the number of keys under contention.
package keylock

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// ErrTimeout is returned when a lock could not be acquired within the wait bound
var ErrTimeout = errors.New("keylock: timed out waiting for lock")

type entry struct {
	sem  *semaphore.Weighted
	refs int
}

// Locker hands out exclusive locks per key
type Locker struct {
	mu      sync.Mutex
	entries map[string]*entry
}

// New creates an empty Locker
func New() *Locker {
	return &Locker{entries: make(map[string]*entry)}
}

// Acquire blocks until the lock for key is held, ctx is done, or timeout elapses.
// A non-positive timeout waits for ctx only. The returned release func must be
// called exactly once.
func (l *Locker) Acquire(ctx context.Context, key string, timeout time.Duration) (func(), error) {
	e := l.ref(key)

	waitCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	if err := e.sem.Acquire(waitCtx, 1); err != nil {
		l.unref(key)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, ErrTimeout
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			e.sem.Release(1)
			l.unref(key)
		})
	}, nil
}

// Len returns the number of keys currently held or waited on
func (l *Locker) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

func (l *Locker) ref(key string) *entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[key]
	if !ok {
		e = &entry{sem: semaphore.NewWeighted(1)}
		l.entries[key] = e
	}
	e.refs++
	return e
}

func (l *Locker) unref(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e := l.entries[key]
	e.refs--
	if e.refs == 0 {
		delete(l.entries, key)
	}
}
