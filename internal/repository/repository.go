package repository

import (
	"context"

	"github.com/immxrtalbeast/meetchat/internal/domain"
)

// MessageStore is the durable, append-only home of chat messages. Reads
// return messages for one meeting ordered by timestamp ascending, capped at
// limit (0 means no cap).
type MessageStore interface {
	Append(ctx context.Context, msg *domain.ChatMessage) error
	ListByMeeting(ctx context.Context, meetingID string, limit int) ([]*domain.ChatMessage, error)
}

// MeetingRepository answers existence checks before a join is allowed.
type MeetingRepository interface {
	Exists(ctx context.Context, meetingID string) (bool, error)
}

// UserRepository resolves registered user profiles. Guests never appear here.
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*domain.User, error)
}
