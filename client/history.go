package client

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/immxrtalbeast/meetchat/internal/domain"
	"github.com/immxrtalbeast/meetchat/internal/service"
)

// localIDPrefix marks identifiers synthesized for optimistic pre-send
// placeholders; everything else is an authoritative server id.
const localIDPrefix = "local-"

// placeholderTolerance is how far apart the client's optimistic timestamp
// and the server-assigned one may drift while still describing the same
// message.
const placeholderTolerance = 30 * time.Second

// NewLocalID synthesizes a placeholder message id.
func NewLocalID() string {
	return localIDPrefix + uuid.New().String()
}

// IsLocalID reports whether id was synthesized client-side.
func IsLocalID(id string) bool {
	return strings.HasPrefix(id, localIDPrefix)
}

// DedupKey is the two-tier duplicate-suppression key: the authoritative
// message identifier when present, otherwise the composite
// (sender, timestamp, content) used while the id is locally synthesized.
func DedupKey(msg *domain.ChatMessage) string {
	if msg.ID != "" && !IsLocalID(msg.ID) {
		return msg.ID
	}
	return compositeKey(msg)
}

func compositeKey(msg *domain.ChatMessage) string {
	return msg.UserID + "\x00" + msg.Timestamp.UTC().Format(time.RFC3339Nano) + "\x00" + msg.Content
}

// reconciles reports whether authoritative is the server echo of the
// optimistic placeholder: same sender and content, timestamps within
// tolerance of each other.
func reconciles(placeholder, authoritative *domain.ChatMessage) bool {
	if placeholder.UserID != authoritative.UserID || placeholder.Content != authoritative.Content {
		return false
	}
	delta := authoritative.Timestamp.Sub(placeholder.Timestamp)
	if delta < 0 {
		delta = -delta
	}
	return delta <= placeholderTolerance
}

// History is the client's per-meeting rendered message view. Delivery is
// at-least-once, so every insert goes through the two-tier dedup; windowing
// uses the same algorithm the server applies.
type History struct {
	mu       sync.Mutex
	meetings map[string]map[string]*domain.ChatMessage
}

func NewHistory() *History {
	return &History{meetings: make(map[string]map[string]*domain.ChatMessage)}
}

// Add inserts one message. Redelivery of a message already present (same
// dedup key) is a no-op; an authoritative echo replaces its optimistic
// placeholder. Reports whether the view changed.
func (h *History) Add(msg *domain.ChatMessage) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	msgs, ok := h.meetings[msg.MeetingID]
	if !ok {
		msgs = make(map[string]*domain.ChatMessage)
		h.meetings[msg.MeetingID] = msgs
	}

	key := DedupKey(msg)
	if _, dup := msgs[key]; dup {
		return false
	}

	if !IsLocalID(msg.ID) {
		for existingKey, existing := range msgs {
			if existing.ID == msg.ID {
				return false
			}
			if IsLocalID(existing.ID) && reconciles(existing, msg) {
				delete(msgs, existingKey)
				break
			}
		}
	}

	msgs[key] = msg
	return true
}

// Merge folds a history snapshot into the view.
func (h *History) Merge(msgs []*domain.ChatMessage) {
	for _, msg := range msgs {
		h.Add(msg)
	}
}

// Messages returns the meeting's rendered view, re-windowed with the same
// per-sender bound the server uses and ordered ascending by timestamp.
func (h *History) Messages(meetingID string, perSenderLimit int) []*domain.ChatMessage {
	h.mu.Lock()
	msgs := make([]*domain.ChatMessage, 0, len(h.meetings[meetingID]))
	for _, msg := range h.meetings[meetingID] {
		msgs = append(msgs, msg)
	}
	h.mu.Unlock()

	return service.WindowBySender(msgs, perSenderLimit)
}

// Forget drops the view for one meeting.
func (h *History) Forget(meetingID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.meetings, meetingID)
}
