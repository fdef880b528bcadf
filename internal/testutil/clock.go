package testutil

import (
	"sync"
	"time"
)

// Epoch is the wall time of tick 0.
var Epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

// DeterministicClock hands out strictly increasing ticks one second apart,
// starting after Epoch, so every row a scenario writes gets a distinct and
// reproducible timestamp. Safe for concurrent use.
type DeterministicClock struct {
	mu   sync.Mutex
	tick int64
}

// NewDeterministicClock returns a clock whose first tick is 1.
func NewDeterministicClock() *DeterministicClock {
	return &DeterministicClock{}
}

// Next advances the clock and returns the new tick.
func (c *DeterministicClock) Next() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tick++
	return c.tick
}

// Now is Next as a time: Epoch plus the new tick in seconds. It has the
// signature of time.Now.
func (c *DeterministicClock) Now() time.Time {
	return Epoch.Add(time.Duration(c.Next()) * time.Second)
}
