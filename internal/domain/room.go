package domain

import "sync"

// Room indexes the connections currently subscribed to one meeting's chat
// stream. It never outlives its members: the manager drops empty rooms.
type Room struct {
	MeetingID string

	Mutex   sync.RWMutex
	Members map[string]*Connection

	// Closed marks a room the manager has already dropped from its index.
	// Guarded by Mutex; a joiner that observes it must fetch a fresh room
	// instead of adding itself to the orphan.
	Closed bool
}

// NewRoom creates an empty room for a meeting.
func NewRoom(meetingID string) *Room {
	return &Room{
		MeetingID: meetingID,
		Members:   make(map[string]*Connection),
	}
}

// Snapshot returns the current members as a slice, taken under read lock so a
// broadcast never iterates a map mid-mutation.
func (r *Room) Snapshot(excludeConnID string) []*Connection {
	r.Mutex.RLock()
	defer r.Mutex.RUnlock()

	members := make([]*Connection, 0, len(r.Members))
	for id, conn := range r.Members {
		if id == excludeConnID {
			continue
		}
		members = append(members, conn)
	}
	return members
}

// Size returns the current member count.
func (r *Room) Size() int {
	r.Mutex.RLock()
	defer r.Mutex.RUnlock()
	return len(r.Members)
}
