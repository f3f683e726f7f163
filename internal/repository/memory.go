package repository

import (
	"context"
	"sync"

	"github.com/immxrtalbeast/meetchat/internal/domain"
)

type InMemoryMessageStore struct {
	mu       sync.RWMutex
	messages map[string][]*domain.ChatMessage
}

func NewInMemoryMessageStore() *InMemoryMessageStore {
	return &InMemoryMessageStore{
		messages: make(map[string][]*domain.ChatMessage),
	}
}

func (s *InMemoryMessageStore) Append(ctx context.Context, msg *domain.ChatMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *msg
	s.messages[msg.MeetingID] = append(s.messages[msg.MeetingID], &copied)
	return nil
}

func (s *InMemoryMessageStore) ListByMeeting(ctx context.Context, meetingID string, limit int) ([]*domain.ChatMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	stored := s.messages[meetingID]
	if limit > 0 && len(stored) > limit {
		stored = stored[len(stored)-limit:]
	}

	out := make([]*domain.ChatMessage, 0, len(stored))
	for _, msg := range stored {
		copied := *msg
		out = append(out, &copied)
	}
	return out, nil
}

func (s *InMemoryMessageStore) Count(meetingID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages[meetingID])
}

type InMemoryMeetingRepository struct {
	mu       sync.RWMutex
	meetings map[string]struct{}
}

func NewInMemoryMeetingRepository(ids ...string) *InMemoryMeetingRepository {
	r := &InMemoryMeetingRepository{meetings: make(map[string]struct{})}
	for _, id := range ids {
		r.meetings[id] = struct{}{}
	}
	return r
}

func (r *InMemoryMeetingRepository) Add(meetingID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.meetings[meetingID] = struct{}{}
}

func (r *InMemoryMeetingRepository) Exists(ctx context.Context, meetingID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.meetings[meetingID]
	return ok, nil
}

type InMemoryUserRepository struct {
	mu    sync.RWMutex
	users map[string]*domain.User
}

func NewInMemoryUserRepository() *InMemoryUserRepository {
	return &InMemoryUserRepository{users: make(map[string]*domain.User)}
}

func (r *InMemoryUserRepository) Put(user *domain.User) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[user.ID] = user
}

func (r *InMemoryUserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	user, ok := r.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	copied := *user
	return &copied, nil
}
