// Package testutil holds test doubles shared across packages.
package testutil

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// StepClock is a mock clock whose Sleep advances time immediately instead of
// blocking until another goroutine moves it forward.
type StepClock struct {
	*clock.Mock

	mu    sync.Mutex
	slept time.Duration
	naps  int
}

// NewStepClock returns a StepClock set to start.
func NewStepClock(start time.Time) *StepClock {
	mock := clock.NewMock()
	mock.Set(start)
	return &StepClock{Mock: mock}
}

// Sleep advances the clock by d.
func (c *StepClock) Sleep(d time.Duration) {
	c.mu.Lock()
	c.slept += d
	c.naps++
	c.mu.Unlock()
	c.Add(d)
}

// Slept returns the total duration passed to Sleep.
func (c *StepClock) Slept() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.slept
}

// Naps returns the number of Sleep calls.
func (c *StepClock) Naps() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.naps
}

// RecordingSystem records restart requests.
type RecordingSystem struct {
	mu      sync.Mutex
	reasons []string
}

// Restart records reason.
func (s *RecordingSystem) Restart(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reasons = append(s.reasons, reason)
}

// Restarts returns the recorded reasons.
func (s *RecordingSystem) Restarts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.reasons...)
}
