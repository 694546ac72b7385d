package notify

import (
	"context"
	"sync"
)

// defaultPendingCap bounds the interactive queue; the oldest entry is
// dropped when a new one arrives at capacity.
const defaultPendingCap = 50

// CLIChannel queues notifications for the interactive session, which
// drains them at the start of the user's next turn. Inactive outside a
// session so the router falls through to the file log.
type CLIChannel struct {
	mu      sync.Mutex
	active  bool
	pending []Notification
	cap     int
}

// NewCLIChannel creates an inactive queue. capacity <= 0 uses the
// default.
func NewCLIChannel(capacity int) *CLIChannel {
	if capacity <= 0 {
		capacity = defaultPendingCap
	}
	return &CLIChannel{cap: capacity}
}

func (c *CLIChannel) Name() string     { return "cli" }
func (c *CLIChannel) IsExternal() bool { return false }

func (c *CLIChannel) IsActive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// SetActive marks the interactive session as present or gone.
func (c *CLIChannel) SetActive(active bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.active = active
}

func (c *CLIChannel) Deliver(ctx context.Context, n Notification) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.pending) >= c.cap {
		c.pending = c.pending[1:]
	}
	c.pending = append(c.pending, n)
	return nil
}

// Drain returns the queued notifications in arrival order and clears
// the queue.
func (c *CLIChannel) Drain() []Notification {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.pending
	c.pending = nil
	return out
}

// Pending reports the queue depth.
func (c *CLIChannel) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}
