package domain

import "encoding/json"

// Event names carried over the chat channel.
const (
	EventJoinRoom          = "join_room"
	EventLeaveRoom         = "leave_room"
	EventChatMessage       = "chat_message"
	EventChatHistory       = "chat_history"
	EventUserJoined        = "user_joined"
	EventUserLeft          = "user_left"
	EventMeetingInvitation = "meeting_invitation"
	EventMeetingUpdate     = "meeting_update"
	EventError             = "error"
)

// Event is the wire envelope for everything exchanged over the chat channel,
// in both directions.
type Event struct {
	Name string          `json:"event"`
	Data json.RawMessage `json:"data,omitempty"`
}

// NewEvent marshals payload into an envelope. Payload types are plain structs,
// so marshalling cannot fail at runtime; errors here mean a programming bug.
func NewEvent(name string, payload any) Event {
	data, err := json.Marshal(payload)
	if err != nil {
		panic("domain: unmarshalable event payload: " + err.Error())
	}
	return Event{Name: name, Data: data}
}

// JoinRoomPayload is sent by clients for join_room and leave_room.
type JoinRoomPayload struct {
	MeetingID string `json:"meeting_id"`
	UserID    string `json:"user_id,omitempty"`
	UserName  string `json:"user_name,omitempty"`
}

// ChatSendPayload is the client's chat_message request.
type ChatSendPayload struct {
	MeetingID   string `json:"meeting_id"`
	MessageText string `json:"message_text"`
	UserID      string `json:"user_id,omitempty"`
	UserName    string `json:"user_name,omitempty"`
}

// ChatMessagePayload is the broadcast echo of a persisted message.
type ChatMessagePayload struct {
	ID        string `json:"id"`
	MeetingID string `json:"meeting_id"`
	UserID    string `json:"user_id"`
	UserName  string `json:"user_name"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
}

// ChatHistoryPayload carries the windowed history snapshot on room join.
type ChatHistoryPayload struct {
	MeetingID string               `json:"meeting_id"`
	Messages  []ChatMessagePayload `json:"messages"`
}

// PresencePayload announces user_joined / user_left to the rest of a room.
type PresencePayload struct {
	MeetingID string `json:"meeting_id"`
	UserID    string `json:"user_id"`
	UserName  string `json:"user_name"`
}

// NotificationPayload is the user-addressed meeting_invitation / meeting_update
// body.
type NotificationPayload struct {
	MeetingID      string         `json:"meeting_id"`
	UserID         string         `json:"user_id,omitempty"`
	Title          string         `json:"title"`
	Message        string         `json:"message"`
	Timestamp      string         `json:"timestamp"`
	MeetingDetails map[string]any `json:"meeting_details,omitempty"`
	Status         string         `json:"status,omitempty"`
}

// ErrorPayload is returned synchronously to the initiating client only.
type ErrorPayload struct {
	Error string `json:"error"`
}
