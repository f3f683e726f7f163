package domain

import (
	"time"

	"github.com/google/uuid"
)

type NotificationKind string

const (
	NotificationInvitation NotificationKind = "invitation"
	NotificationUpdate     NotificationKind = "update"
)

// Notification is transient and addressed to exactly one user. Read state
// belongs to the receiving client; nothing is persisted server-side.
type Notification struct {
	ID        string
	Kind      NotificationKind
	MeetingID string
	TargetID  string
	Title     string
	Message   string
	Details   map[string]any
	Status    string
	CreatedAt time.Time
	Read      bool
}

// NewNotification constructs a notification addressed to targetID.
func NewNotification(kind NotificationKind, meetingID, targetID, title, message string) *Notification {
	return &Notification{
		ID:        uuid.New().String(),
		Kind:      kind,
		MeetingID: meetingID,
		TargetID:  targetID,
		Title:     title,
		Message:   message,
		CreatedAt: time.Now().UTC(),
	}
}

// Event converts the notification to its wire envelope.
func (n *Notification) Event() Event {
	name := EventMeetingUpdate
	if n.Kind == NotificationInvitation {
		name = EventMeetingInvitation
	}
	return NewEvent(name, NotificationPayload{
		MeetingID:      n.MeetingID,
		UserID:         n.TargetID,
		Title:          n.Title,
		Message:        n.Message,
		Timestamp:      n.CreatedAt.UTC().Format(time.RFC3339Nano),
		MeetingDetails: n.Details,
		Status:         n.Status,
	})
}
