package notify

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Center holds the notifications received during this process's lifetime.
// Nothing is persisted: the list dies with the process, and read marks are
// user actions on the in-memory items.
type Center struct {
	mu     sync.RWMutex
	items  []*Notification
	logger *slog.Logger
}

// NewCenter creates an empty notification center.
func NewCenter(logger *slog.Logger) *Center {
	return &Center{logger: logger}
}

// Add stores an incoming notification, assigning its id and timestamp.
// Newest first.
func (c *Center) Add(n Notification) Notification {
	n.ID = uuid.NewString()
	n.Read = false
	n.Timestamp = time.Now()

	c.mu.Lock()
	c.items = append([]*Notification{&n}, c.items...)
	c.mu.Unlock()

	c.logger.Info("notification received", "title", n.Title, "type", n.Type)
	return n
}

// List returns a snapshot of all notifications, newest first.
func (c *Center) List() []Notification {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Notification, len(c.items))
	for i, n := range c.items {
		out[i] = *n
	}
	return out
}

// MarkRead marks one notification read; reports whether it was found.
func (c *Center) MarkRead(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, n := range c.items {
		if n.ID == id {
			n.Read = true
			return true
		}
	}
	return false
}

// Unread returns the number of unread notifications.
func (c *Center) Unread() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	count := 0
	for _, n := range c.items {
		if !n.Read {
			count++
		}
	}
	return count
}

// Clear discards all notifications.
func (c *Center) Clear() {
	c.mu.Lock()
	c.items = nil
	c.mu.Unlock()
}
