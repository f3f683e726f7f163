package service

import (
	"sort"

	"github.com/immxrtalbeast/meetchat/internal/domain"
)

// DefaultPerSenderLimit bounds how many messages per sender a windowed
// history view keeps.
const DefaultPerSenderLimit = 5

// WindowBySender computes the bounded history view: group messages by sender,
// keep only the perSender most recent per sender, then merge the survivors in
// ascending timestamp order. Ties break by timestamp, then by message id, so
// the output is deterministic. This is a display bound only; the store keeps
// everything.
//
// Every history call site (room-join snapshot, on-demand refetch, client-side
// re-window) goes through this one function.
func WindowBySender(messages []*domain.ChatMessage, perSender int) []*domain.ChatMessage {
	if perSender <= 0 {
		perSender = DefaultPerSenderLimit
	}

	bySender := make(map[string][]*domain.ChatMessage)
	for _, msg := range messages {
		bySender[msg.UserID] = append(bySender[msg.UserID], msg)
	}

	windowed := make([]*domain.ChatMessage, 0, len(messages))
	for _, senderMsgs := range bySender {
		sortMessages(senderMsgs)
		if len(senderMsgs) > perSender {
			senderMsgs = senderMsgs[len(senderMsgs)-perSender:]
		}
		windowed = append(windowed, senderMsgs...)
	}

	sortMessages(windowed)
	return windowed
}

func sortMessages(msgs []*domain.ChatMessage) {
	sort.SliceStable(msgs, func(i, j int) bool {
		if !msgs[i].Timestamp.Equal(msgs[j].Timestamp) {
			return msgs[i].Timestamp.Before(msgs[j].Timestamp)
		}
		return msgs[i].ID < msgs[j].ID
	})
}
