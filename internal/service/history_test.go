package service

import (
	"fmt"
	"testing"
	"time"

	"github.com/immxrtalbeast/meetchat/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeMessage(id, userID string, ts time.Time) *domain.ChatMessage {
	return &domain.ChatMessage{
		ID:        id,
		MeetingID: "m1",
		UserID:    userID,
		UserName:  "user " + userID,
		Content:   "message " + id,
		Timestamp: ts,
	}
}

func TestWindowBySender_PerSenderBound(t *testing.T) {
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	// Sender A: 8 messages, sender B: 2 messages, interleaved.
	var msgs []*domain.ChatMessage
	for i := 0; i < 8; i++ {
		msgs = append(msgs, makeMessage(fmt.Sprintf("a%d", i), "A", base.Add(time.Duration(i*2)*time.Minute)))
	}
	for i := 0; i < 2; i++ {
		msgs = append(msgs, makeMessage(fmt.Sprintf("b%d", i), "B", base.Add(time.Duration(i*2+1)*time.Minute)))
	}

	got := WindowBySender(msgs, 5)

	require.Len(t, got, 7)

	// The 5 most recent A messages survive, all B messages survive.
	ids := make([]string, 0, len(got))
	for _, msg := range got {
		ids = append(ids, msg.ID)
	}
	assert.ElementsMatch(t, []string{"a3", "a4", "a5", "a6", "a7", "b0", "b1"}, ids)

	// Merged ascending by timestamp.
	for i := 1; i < len(got); i++ {
		assert.False(t, got[i].Timestamp.Before(got[i-1].Timestamp),
			"message %s out of order", got[i].ID)
	}
}

func TestWindowBySender_Idempotent(t *testing.T) {
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	var msgs []*domain.ChatMessage
	for i := 0; i < 10; i++ {
		sender := "A"
		if i%3 == 0 {
			sender = "B"
		}
		msgs = append(msgs, makeMessage(fmt.Sprintf("m%d", i), sender, base.Add(time.Duration(i)*time.Second)))
	}

	first := WindowBySender(msgs, 5)
	second := WindowBySender(msgs, 5)

	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].ID, second[i].ID)
	}
}

func TestWindowBySender_GrowingLimitNeverDrops(t *testing.T) {
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	var msgs []*domain.ChatMessage
	for i := 0; i < 9; i++ {
		msgs = append(msgs, makeMessage(fmt.Sprintf("a%d", i), "A", base.Add(time.Duration(i)*time.Second)))
	}
	for i := 0; i < 4; i++ {
		msgs = append(msgs, makeMessage(fmt.Sprintf("b%d", i), "B", base.Add(time.Duration(i)*time.Second)))
	}

	for k := 1; k < 10; k++ {
		smaller := WindowBySender(msgs, k)
		larger := WindowBySender(msgs, k+1)

		largerIDs := make(map[string]bool, len(larger))
		for _, msg := range larger {
			largerIDs[msg.ID] = true
		}
		for _, msg := range smaller {
			assert.True(t, largerIDs[msg.ID],
				"limit %d kept %s but limit %d dropped it", k, msg.ID, k+1)
		}
	}
}

func TestWindowBySender_TimestampTiesBreakByID(t *testing.T) {
	ts := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	msgs := []*domain.ChatMessage{
		makeMessage("id-c", "A", ts),
		makeMessage("id-a", "A", ts),
		makeMessage("id-b", "A", ts),
	}

	got := WindowBySender(msgs, 2)

	require.Len(t, got, 2)
	assert.Equal(t, "id-b", got[0].ID)
	assert.Equal(t, "id-c", got[1].ID)
}

func TestWindowBySender_DefaultsLimit(t *testing.T) {
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	var msgs []*domain.ChatMessage
	for i := 0; i < 8; i++ {
		msgs = append(msgs, makeMessage(fmt.Sprintf("a%d", i), "A", base.Add(time.Duration(i)*time.Second)))
	}

	got := WindowBySender(msgs, 0)
	assert.Len(t, got, DefaultPerSenderLimit)
}
