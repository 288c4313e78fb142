package component

import (
	"sync"
	"time"
)

// Clock is the change notification counter: a strictly monotonic
// microsecond timestamp bumped on every externally visible mutation.
// Long-poll and event-stream consumers compare it against the value they
// last saw to decide whether to refetch.
type Clock struct {
	mu   sync.Mutex
	last int64
}

// Bump advances the clock and returns the new value. When two mutations
// land in the same microsecond the counter still moves forward, so equal
// reads always mean "nothing changed".
func (c *Clock) Bump() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now().UnixMicro()
	if now <= c.last {
		now = c.last + 1
	}
	c.last = now
	return now
}

// Value returns the current clock value without advancing it.
func (c *Clock) Value() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last
}

// EventSink receives change events for fan-out to connected consoles.
// The websocket hub implements this; a nil sink is allowed.
type EventSink interface {
	Broadcast(channel string, payload any)
}
