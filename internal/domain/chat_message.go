package domain

import (
	"time"

	"github.com/google/uuid"
)

// ChatMessage is immutable once created: the relay assigns id and timestamp,
// persists it, and broadcasts it unchanged.
type ChatMessage struct {
	ID        string    `json:"id"`
	MeetingID string    `json:"meeting_id"`
	UserID    string    `json:"user_id"`
	UserName  string    `json:"user_name"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// NewChatMessage constructs a message with a server-assigned identifier.
func NewChatMessage(meetingID string, conn *Connection, content string) *ChatMessage {
	msg := &ChatMessage{
		ID:        uuid.New().String(),
		MeetingID: meetingID,
		Content:   content,
		Timestamp: time.Now().UTC(),
	}
	if conn != nil {
		msg.UserID = conn.UserID
		msg.UserName = conn.Name()
	}
	return msg
}

// Payload converts the message to its wire form.
func (m *ChatMessage) Payload() ChatMessagePayload {
	return ChatMessagePayload{
		ID:        m.ID,
		MeetingID: m.MeetingID,
		UserID:    m.UserID,
		UserName:  m.UserName,
		Content:   m.Content,
		Timestamp: m.Timestamp.UTC().Format(time.RFC3339Nano),
	}
}

// MessageFromPayload parses the wire form back into a ChatMessage.
func MessageFromPayload(p ChatMessagePayload) (*ChatMessage, error) {
	ts, err := time.Parse(time.RFC3339Nano, p.Timestamp)
	if err != nil {
		ts, err = time.Parse(time.RFC3339, p.Timestamp)
		if err != nil {
			return nil, err
		}
	}
	return &ChatMessage{
		ID:        p.ID,
		MeetingID: p.MeetingID,
		UserID:    p.UserID,
		UserName:  p.UserName,
		Content:   p.Content,
		Timestamp: ts.UTC(),
	}, nil
}
