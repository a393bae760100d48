package frame

import (
	"sync"
	"time"

	"github.com/cjeanneret/camstream/internal/clock"
)

// Frame is one encoded snapshot image. Its contents are never inspected.
// A Frame handed to Cache.Write must not be modified afterwards.
type Frame []byte

// Cache holds the most recent Frame. It starts empty and each Write
// replaces the previous value; no history is kept.
//
// The mutex is held only for the slot assignment, never across I/O.
// Writers always install a new slice, so a Frame returned by Read stays
// valid and complete after the lock is released.
type Cache struct {
	mu        sync.Mutex
	current   Frame
	updatedAt time.Time
	clock     clock.Clock
}

// NewCache creates an empty cache stamped by the wall clock.
func NewCache() *Cache {
	return NewCacheWithClock(clock.Real{})
}

// NewCacheWithClock creates an empty cache whose write times come from clk.
// Anything computing a frame's age must read the same clock.
func NewCacheWithClock(clk clock.Clock) *Cache {
	return &Cache{clock: clk}
}

// Write replaces the current Frame. Empty frames are ignored.
func (c *Cache) Write(f Frame) {
	if len(f) == 0 {
		return
	}
	ts := c.clock.Now()
	c.mu.Lock()
	c.current = f
	c.updatedAt = ts
	c.mu.Unlock()
}

// Read returns the current Frame, or false before the first Write.
func (c *Cache) Read() (Frame, bool) {
	c.mu.Lock()
	f := c.current
	c.mu.Unlock()
	return f, f != nil
}

// Snapshot returns the current Frame along with the time it was written.
func (c *Cache) Snapshot() (Frame, time.Time, bool) {
	c.mu.Lock()
	f, ts := c.current, c.updatedAt
	c.mu.Unlock()
	return f, ts, f != nil
}
