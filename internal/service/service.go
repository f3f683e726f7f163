package service

import (
	"context"

	"github.com/immxrtalbeast/meetchat/internal/domain"
)

// RoomInteractor is the room-manager surface the transport layer drives.
type RoomInteractor interface {
	Join(ctx context.Context, conn *domain.Connection, meetingID, userName string) error
	Leave(ctx context.Context, conn *domain.Connection, meetingID string) error
	LeaveAll(ctx context.Context, conn *domain.Connection)
	Broadcast(meetingID string, event domain.Event, excludeConnID string)
}

// ChatInteractor is the message-relay surface.
type ChatInteractor interface {
	Send(ctx context.Context, conn *domain.Connection, meetingID, text string) (*domain.ChatMessage, error)
	History(ctx context.Context, meetingID string, perSenderLimit int) ([]*domain.ChatMessage, error)
}

// Notifier delivers user-addressed events independent of room membership.
type Notifier interface {
	NotifyUser(userID string, n *domain.Notification) int
}
