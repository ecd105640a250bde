package core

// limiter.go guards the import pipeline, which assumes exactly one
// import against the store at a time. The reconciler caches are not shared
// between runs, but two concurrent runs could both miss a slug and race on
// the unique constraint.

import (
	"context"
	"sync"
	"time"
)

// ImportLimiter hands out a fixed number of import slots using a semaphore.
type ImportLimiter struct {
	semaphore chan struct{}

	mu      sync.RWMutex
	active  int
	started time.Time
}

// NewImportLimiter returns a limiter with capacity slots. The import
// pipeline uses capacity 1.
func NewImportLimiter(capacity int) *ImportLimiter {
	if capacity <= 0 {
		capacity = 1
	}
	return &ImportLimiter{semaphore: make(chan struct{}, capacity)}
}

// TryAcquire takes a slot without blocking. It returns ErrImportInProgress
// when all slots are taken. The caller must Release a successful acquire.
func (l *ImportLimiter) TryAcquire() error {
	select {
	case l.semaphore <- struct{}{}:
		l.mu.Lock()
		l.active++
		l.started = time.Now()
		l.mu.Unlock()
		return nil
	default:
		return ErrImportInProgress
	}
}

// Release frees a slot. Must be called exactly once per successful acquire.
func (l *ImportLimiter) Release() {
	l.mu.Lock()
	l.active--
	l.mu.Unlock()
	<-l.semaphore
}

// ActiveCount returns the number of running imports.
func (l *ImportLimiter) ActiveCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.active
}

// WaitForDrain blocks until no import is running or ctx is done.
// Used for graceful shutdown.
func (l *ImportLimiter) WaitForDrain(ctx context.Context) error {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		if l.ActiveCount() == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// ImportLimiterStatus is a snapshot of limiter state.
type ImportLimiterStatus struct {
	Active    int       `json:"active"`
	Capacity  int       `json:"capacity"`
	StartedAt time.Time `json:"started_at,omitempty"`
}

// Status returns the current limiter state for monitoring.
func (l *ImportLimiter) Status() ImportLimiterStatus {
	l.mu.RLock()
	defer l.mu.RUnlock()
	st := ImportLimiterStatus{Active: l.active, Capacity: cap(l.semaphore)}
	if l.active > 0 {
		st.StartedAt = l.started
	}
	return st
}
