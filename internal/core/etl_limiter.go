package core

// etl_limiter.go bounds the number of ingestion jobs running at once.
//
// Workers block in Acquire until a slot frees up or their context ends; there
// is no wait deadline because queued jobs have already been accepted and must
// eventually run. The number of held slots is reported as activeEtlProcesses.

import (
	"context"
	"sync"
	"time"
)

// DefaultMaxEtlProcesses is the default limit for parallel ingestion jobs.
const DefaultMaxEtlProcesses = 5

// EtlLimiter is a semaphore over ingestion jobs.
type EtlLimiter struct {
	semaphore chan struct{}

	mu     sync.RWMutex
	active int
}

// NewEtlLimiter creates a limiter that allows at most maxConcurrent running jobs.
func NewEtlLimiter(maxConcurrent int) *EtlLimiter {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxEtlProcesses
	}
	return &EtlLimiter{
		semaphore: make(chan struct{}, maxConcurrent),
	}
}

// Acquire blocks until a slot is free or ctx is done.
// The caller MUST call Release() when the job completes (use defer).
func (l *EtlLimiter) Acquire(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	select {
	case l.semaphore <- struct{}{}:
		l.mu.Lock()
		l.active++
		l.mu.Unlock()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release releases a previously acquired slot.
// Must be called exactly once for each successful Acquire.
func (l *EtlLimiter) Release() {
	l.mu.Lock()
	l.active--
	l.mu.Unlock()

	<-l.semaphore
}

// ActiveCount returns the number of running ingestion jobs.
func (l *EtlLimiter) ActiveCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.active
}

// MaxConcurrent returns the configured slot count.
func (l *EtlLimiter) MaxConcurrent() int {
	return cap(l.semaphore)
}

// Available returns the number of free slots.
func (l *EtlLimiter) Available() int {
	return cap(l.semaphore) - len(l.semaphore)
}

// WaitForDrain blocks until all running jobs complete or ctx is cancelled.
func (l *EtlLimiter) WaitForDrain(ctx context.Context) error {
	if l.ActiveCount() == 0 {
		return nil
	}

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if l.ActiveCount() == 0 {
				return nil
			}
		}
	}
}

// EtlLimiterStatus is a snapshot of the limiter's state.
type EtlLimiterStatus struct {
	Active        int `json:"active"`
	Available     int `json:"available"`
	MaxConcurrent int `json:"max_concurrent"`
}

// Status returns the current limiter state for monitoring.
func (l *EtlLimiter) Status() EtlLimiterStatus {
	l.mu.RLock()
	active := l.active
	l.mu.RUnlock()

	return EtlLimiterStatus{
		Active:        active,
		Available:     l.Available(),
		MaxConcurrent: cap(l.semaphore),
	}
}
