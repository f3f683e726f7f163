package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/immxrtalbeast/meetchat/internal/domain"
	"github.com/immxrtalbeast/meetchat/internal/repository"
	"github.com/immxrtalbeast/meetchat/lib/logger/sl"
)

var ErrInvalidRoom = errors.New("invalid room")

// RoomService maps meeting ids to the set of connections joined to that
// meeting's chat room. Rooms are created lazily on first join and dropped
// when membership hits zero.
type RoomService struct {
	meetings repository.MeetingRepository
	log      *slog.Logger

	mu    sync.RWMutex
	rooms map[string]*domain.Room
}

func NewRoomService(meetings repository.MeetingRepository, log *slog.Logger) *RoomService {
	if log == nil {
		log = slog.Default()
	}
	return &RoomService{
		meetings: meetings,
		log:      log,
		rooms:    make(map[string]*domain.Room),
	}
}

// Join adds the connection to the meeting's room and announces it to the
// other members. Joining a room twice is a no-op. The room member set and
// the connection's joined-room set are mutated under the room lock so the
// two views stay mutual inverses.
func (s *RoomService) Join(ctx context.Context, conn *domain.Connection, meetingID, userName string) error {
	const op = "service.room.join"
	log := s.log.With(
		slog.String("op", op),
		slog.String("meeting_id", meetingID),
		slog.String("conn_id", conn.ID),
	)

	exists, err := s.meetings.Exists(ctx, meetingID)
	if err != nil {
		log.Error("meeting lookup failed", sl.Err(err))
		return err
	}
	if !exists {
		return ErrInvalidRoom
	}

	conn.SetDisplayName(userName)

	room := s.roomFor(meetingID)

	room.Mutex.Lock()
	for room.Closed {
		// Lost the race with the reaper: the last member left and dropIfEmpty
		// removed this room between our index fetch and taking its lock.
		// Joining the orphan would leave the connection marked in-room while
		// invisible to Members and Broadcast.
		room.Mutex.Unlock()
		room = s.roomFor(meetingID)
		room.Mutex.Lock()
	}
	if _, already := room.Members[conn.ID]; already {
		room.Mutex.Unlock()
		return nil
	}
	room.Members[conn.ID] = conn
	conn.AddRoom(meetingID)
	room.Mutex.Unlock()

	log.Info("user joined room",
		slog.String("user_id", conn.UserID),
		slog.Int("members", room.Size()),
	)

	s.deliver(room, domain.NewEvent(domain.EventUserJoined, domain.PresencePayload{
		MeetingID: meetingID,
		UserID:    conn.UserID,
		UserName:  conn.Name(),
	}), conn.ID)

	return nil
}

// Leave removes the connection from the room and announces the departure to
// the remaining members. Leaving a room the connection never joined is a
// no-op, not an error.
func (s *RoomService) Leave(ctx context.Context, conn *domain.Connection, meetingID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.RLock()
	room, ok := s.rooms[meetingID]
	s.mu.RUnlock()
	if !ok {
		conn.RemoveRoom(meetingID)
		return nil
	}

	room.Mutex.Lock()
	_, member := room.Members[conn.ID]
	if member {
		delete(room.Members, conn.ID)
	}
	conn.RemoveRoom(meetingID)
	empty := len(room.Members) == 0
	room.Mutex.Unlock()

	if !member {
		return nil
	}

	s.log.Info("user left room",
		slog.String("meeting_id", meetingID),
		slog.String("conn_id", conn.ID),
		slog.String("user_id", conn.UserID),
	)

	s.deliver(room, domain.NewEvent(domain.EventUserLeft, domain.PresencePayload{
		MeetingID: meetingID,
		UserID:    conn.UserID,
		UserName:  conn.Name(),
	}), conn.ID)

	if empty {
		s.dropIfEmpty(meetingID)
	}
	return nil
}

// LeaveAll runs the leave path for every room the connection is joined to.
// Used by both the explicit-disconnect and idle-timeout cleanup.
func (s *RoomService) LeaveAll(ctx context.Context, conn *domain.Connection) {
	for _, meetingID := range conn.Rooms() {
		_ = s.Leave(ctx, conn, meetingID)
	}
}

// Broadcast fans event out to every current member of the room, excluding
// excludeConnID when non-empty. Unknown rooms are a no-op.
func (s *RoomService) Broadcast(meetingID string, event domain.Event, excludeConnID string) {
	s.mu.RLock()
	room, ok := s.rooms[meetingID]
	s.mu.RUnlock()
	if !ok {
		return
	}
	s.deliver(room, event, excludeConnID)
}

// Members returns a snapshot of the room's member connections.
func (s *RoomService) Members(meetingID string) []*domain.Connection {
	s.mu.RLock()
	room, ok := s.rooms[meetingID]
	s.mu.RUnlock()
	if !ok {
		return nil
	}
	return room.Snapshot("")
}

func (s *RoomService) roomFor(meetingID string) *domain.Room {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, ok := s.rooms[meetingID]
	if !ok {
		room = domain.NewRoom(meetingID)
		s.rooms[meetingID] = room
	}
	return room
}

// dropIfEmpty removes the room from the index when its membership is still
// zero, marking it closed under its own lock so a concurrent joiner holding a
// stale pointer retries against the replacement instead.
func (s *RoomService) dropIfEmpty(meetingID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, ok := s.rooms[meetingID]
	if !ok {
		return
	}

	room.Mutex.Lock()
	if len(room.Members) == 0 {
		room.Closed = true
		delete(s.rooms, meetingID)
		s.log.Debug("room removed", slog.String("meeting_id", meetingID))
	}
	room.Mutex.Unlock()
}

// deliver sends to a member snapshot taken under read lock. A full or closed
// queue means the member is effectively gone; the fault stays isolated to
// that recipient.
func (s *RoomService) deliver(room *domain.Room, event domain.Event, excludeConnID string) {
	for _, member := range room.Snapshot(excludeConnID) {
		if !member.Enqueue(event) {
			s.log.Debug("dropping event for unreachable member",
				slog.String("conn_id", member.ID),
				slog.String("event", event.Name),
			)
		}
	}
}
