package editor

// limiter.go bounds how many files are decoded at once.
//
// Slots are a buffered channel. A load waits up to maxWait for a slot and
// then fails with ErrTooManyUploads. WaitForDrain lets shutdown hold off
// until in-flight loads finish.

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrTooManyUploads is returned when no intake slot frees up in time.
var ErrTooManyUploads = errors.New("too many uploads in progress, please try again later")

// DefaultMaxConcurrentIntake is the slot count used for non-positive limits.
const DefaultMaxConcurrentIntake = 4

// DefaultIntakeWait is how long a load waits for a slot by default.
const DefaultIntakeWait = 10 * time.Second

// IntakeLimiter is a counting semaphore for file decodes.
type IntakeLimiter struct {
	slots   chan struct{}
	maxWait time.Duration

	mu     sync.Mutex
	active int
}

// NewIntakeLimiter allows at most maxConcurrent decodes at a time.
func NewIntakeLimiter(maxConcurrent int, maxWait time.Duration) *IntakeLimiter {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrentIntake
	}
	if maxWait <= 0 {
		maxWait = DefaultIntakeWait
	}
	return &IntakeLimiter{
		slots:   make(chan struct{}, maxConcurrent),
		maxWait: maxWait,
	}
}

// Acquire takes a slot, waiting up to the limiter's maxWait. The caller must
// Release a slot it acquired.
func (l *IntakeLimiter) Acquire(ctx context.Context) error {
	timer := time.NewTimer(l.maxWait)
	defer timer.Stop()

	select {
	case l.slots <- struct{}{}:
		l.mu.Lock()
		l.active++
		l.mu.Unlock()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return ErrTooManyUploads
	}
}

// Release returns a slot taken by Acquire.
func (l *IntakeLimiter) Release() {
	l.mu.Lock()
	l.active--
	l.mu.Unlock()
	<-l.slots
}

// Active returns the number of decodes in progress.
func (l *IntakeLimiter) Active() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.active
}

// WaitForDrain blocks until no decode is in progress or ctx ends.
func (l *IntakeLimiter) WaitForDrain(ctx context.Context) error {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for l.Active() > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}

// IntakeStatus is a point-in-time view of the limiter.
type IntakeStatus struct {
	Active        int `json:"active"`
	Available     int `json:"available"`
	MaxConcurrent int `json:"max_concurrent"`
}

// Status reports current slot usage.
func (l *IntakeLimiter) Status() IntakeStatus {
	active := l.Active()
	return IntakeStatus{
		Active:        active,
		Available:     cap(l.slots) - len(l.slots),
		MaxConcurrent: cap(l.slots),
	}
}
