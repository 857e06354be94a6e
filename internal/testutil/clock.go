// Package testutil holds deterministic stand-ins for the clock and id
// generator, plus payload fixtures shared by package tests.
package testutil

import (
	"sync"
	"time"
)

// Epoch is the first instant a StepClock reports.
var Epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// StepClock is a clock that advances by a fixed step on every reading, so
// revision timestamps are reproducible across runs.
//
// Thread-safety: all methods are safe for concurrent use.
type StepClock struct {
	mu   sync.Mutex
	next time.Time
	step time.Duration
}

// NewStepClock starts at Epoch and advances one second per reading.
func NewStepClock() *StepClock {
	return &StepClock{next: Epoch, step: time.Second}
}

// Now returns the current reading and advances the clock.
func (c *StepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.next
	c.next = c.next.Add(c.step)
	return t
}

// Reset rewinds the clock to Epoch.
func (c *StepClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.next = Epoch
}
