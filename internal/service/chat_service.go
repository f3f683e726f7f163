package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/immxrtalbeast/meetchat/internal/domain"
	"github.com/immxrtalbeast/meetchat/internal/repository"
	"github.com/immxrtalbeast/meetchat/lib/logger/sl"
)

var ErrNotInRoom = errors.New("not in room")

const maxChatMessageLength = 4000

// ChatService is the message relay: it validates membership, assigns ordering
// metadata, persists via the message store, and broadcasts to the room.
type ChatService struct {
	store          repository.MessageStore
	rooms          *RoomService
	log            *slog.Logger
	perSenderLimit int
	historyLimit   int

	mu     sync.Mutex
	lastTS map[string]time.Time
}

func NewChatService(store repository.MessageStore, rooms *RoomService, perSenderLimit, historyLimit int, log *slog.Logger) *ChatService {
	if log == nil {
		log = slog.Default()
	}
	if perSenderLimit <= 0 {
		perSenderLimit = DefaultPerSenderLimit
	}
	if historyLimit <= 0 {
		historyLimit = 50
	}
	return &ChatService{
		store:          store,
		rooms:          rooms,
		log:            log,
		perSenderLimit: perSenderLimit,
		historyLimit:   historyLimit,
		lastTS:         make(map[string]time.Time),
	}
}

// Send relays one chat message. The sender must currently be a member of the
// meeting's room; otherwise nothing is persisted and nothing is broadcast.
// The echo goes to all members including the sender, so the sender's UI can
// reconcile its optimistic local copy against the authoritative one.
func (s *ChatService) Send(ctx context.Context, conn *domain.Connection, meetingID, text string) (*domain.ChatMessage, error) {
	const op = "service.chat.send"
	log := s.log.With(
		slog.String("op", op),
		slog.String("meeting_id", meetingID),
		slog.String("conn_id", conn.ID),
	)

	if !conn.InRoom(meetingID) {
		return nil, ErrNotInRoom
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return nil, errors.New("message text cannot be empty")
	}
	if utf8.RuneCountInString(text) > maxChatMessageLength {
		return nil, errors.New("message text is too long")
	}

	msg := domain.NewChatMessage(meetingID, conn, text)
	msg.Timestamp = s.nextTimestamp(meetingID, msg.Timestamp)

	if err := s.store.Append(ctx, msg); err != nil {
		log.Error("failed to persist message", sl.Err(err))
		return nil, err
	}

	s.rooms.Broadcast(meetingID, domain.NewEvent(domain.EventChatMessage, msg.Payload()), "")

	log.Info("message relayed",
		slog.String("message_id", msg.ID),
		slog.String("user_id", msg.UserID),
	)
	return msg, nil
}

// History returns the windowed view of the meeting's persisted history:
// at most perSenderLimit messages per sender, merged ascending by timestamp,
// capped at the global history limit. Same algorithm for the join snapshot
// and the on-demand refetch.
func (s *ChatService) History(ctx context.Context, meetingID string, perSenderLimit int) ([]*domain.ChatMessage, error) {
	if perSenderLimit <= 0 {
		perSenderLimit = s.perSenderLimit
	}

	messages, err := s.store.ListByMeeting(ctx, meetingID, 0)
	if err != nil {
		return nil, err
	}

	windowed := WindowBySender(messages, perSenderLimit)
	if len(windowed) > s.historyLimit {
		windowed = windowed[len(windowed)-s.historyLimit:]
	}
	return windowed, nil
}

// nextTimestamp keeps per-room timestamps monotonically non-decreasing even
// when the wall clock steps backwards between two sends.
func (s *ChatService) nextTimestamp(meetingID string, now time.Time) time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	last := s.lastTS[meetingID]
	if !now.After(last) {
		now = last.Add(time.Microsecond)
	}
	s.lastTS[meetingID] = now
	return now
}
