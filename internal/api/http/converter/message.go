package converter

import "github.com/immxrtalbeast/meetchat/internal/domain"

// MessagesToAPI converts messages to their wire payloads, preserving order.
func MessagesToAPI(messages []*domain.ChatMessage) []domain.ChatMessagePayload {
	out := make([]domain.ChatMessagePayload, 0, len(messages))
	for _, msg := range messages {
		out = append(out, msg.Payload())
	}
	return out
}
