package domain

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Connection is one live bidirectional event channel. A user may own several
// at once (multiple tabs or devices).
type Connection struct {
	ID          string
	UserID      string
	DisplayName string
	JoinedAt    time.Time

	mu     sync.RWMutex
	rooms  map[string]struct{}
	alive  bool
	events chan Event
}

// NewConnection allocates a connection with a buffered outbound event queue.
func NewConnection(userID, displayName string) *Connection {
	return &Connection{
		ID:          uuid.New().String(),
		UserID:      userID,
		DisplayName: displayName,
		JoinedAt:    time.Now().UTC(),
		rooms:       make(map[string]struct{}),
		alive:       true,
		events:      make(chan Event, 32),
	}
}

// Events exposes the outbound queue for the transport pump.
func (c *Connection) Events() <-chan Event {
	return c.events
}

// Enqueue offers an event to the outbound queue. It reports false when the
// connection is closed or its queue is full; callers treat that as an
// already-disconnected member, never as a fatal broadcast failure.
func (c *Connection) Enqueue(event Event) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.alive {
		return false
	}
	select {
	case c.events <- event:
		return true
	default:
		return false
	}
}

// Close marks the connection dead and closes its queue. Safe to call more
// than once.
func (c *Connection) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.alive {
		return
	}
	c.alive = false
	close(c.events)
}

// Alive reports whether the connection still accepts events.
func (c *Connection) Alive() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.alive
}

// AddRoom records membership of the given meeting room.
func (c *Connection) AddRoom(meetingID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rooms[meetingID] = struct{}{}
}

// RemoveRoom drops membership of the given meeting room.
func (c *Connection) RemoveRoom(meetingID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.rooms, meetingID)
}

// InRoom reports whether the connection is currently joined to meetingID.
func (c *Connection) InRoom(meetingID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.rooms[meetingID]
	return ok
}

// Rooms returns a snapshot of the joined room ids.
func (c *Connection) Rooms() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	ids := make([]string, 0, len(c.rooms))
	for id := range c.rooms {
		ids = append(ids, id)
	}
	return ids
}

// SetDisplayName updates the name announced in presence events.
func (c *Connection) SetDisplayName(name string) {
	if name == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.DisplayName = name
}

// Name returns the current display name.
func (c *Connection) Name() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.DisplayName
}
