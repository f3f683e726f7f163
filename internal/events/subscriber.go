// Package events consumes the meeting service's Redis pub/sub feed and turns
// its lifecycle events into chat-side notifications.
package events

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/immxrtalbeast/meetchat/internal/domain"
	"github.com/immxrtalbeast/meetchat/internal/service"
	"github.com/immxrtalbeast/meetchat/lib/logger/sl"
	"github.com/redis/go-redis/v9"
)

const meetingEventsChannel = "meeting_events"

// MeetingEvent is the payload published by the meeting service. Identifiers
// arrive as numbers or strings depending on the publisher; json.Number covers
// both.
type MeetingEvent struct {
	EventType      string         `json:"event_type"`
	MeetingID      json.Number    `json:"meeting_id"`
	Title          string         `json:"title"`
	Message        string         `json:"message"`
	Timestamp      string         `json:"timestamp"`
	Meeting        map[string]any `json:"meeting"`
	InvitedUserID  json.Number    `json:"invited_user_id"`
	ParticipantIDs []json.Number  `json:"participant_ids"`
	UserID         json.Number    `json:"user_id"`
	NewStatus      string         `json:"new_status"`
}

// Subscriber listens on the meeting_events channel and fans events out
// through the notification router and room manager.
type Subscriber struct {
	client *redis.Client
	notify service.Notifier
	rooms  service.RoomInteractor
	log    *slog.Logger
}

func NewSubscriber(client *redis.Client, notify service.Notifier, rooms service.RoomInteractor, log *slog.Logger) *Subscriber {
	if log == nil {
		log = slog.Default()
	}
	return &Subscriber{client: client, notify: notify, rooms: rooms, log: log}
}

// Run blocks consuming meeting events until ctx is cancelled.
func (s *Subscriber) Run(ctx context.Context) error {
	pubsub := s.client.Subscribe(ctx, meetingEventsChannel)
	defer pubsub.Close()

	s.log.Info("meeting events subscriber started", slog.String("channel", meetingEventsChannel))

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			s.handle(msg.Payload)
		}
	}
}

func (s *Subscriber) handle(payload string) {
	var event MeetingEvent
	if err := json.Unmarshal([]byte(payload), &event); err != nil {
		s.log.Warn("undecodable meeting event", sl.Err(err))
		return
	}

	meetingID := event.MeetingID.String()
	if meetingID == "" {
		s.log.Warn("meeting event without meeting_id", slog.String("event_type", event.EventType))
		return
	}

	log := s.log.With(
		slog.String("event_type", event.EventType),
		slog.String("meeting_id", meetingID),
	)

	switch event.EventType {
	case "meeting_created":
		// Nothing to broadcast yet: the room has no members.

	case "meeting_updated":
		s.broadcastUpdate(meetingID, event, orDefault(event.Title, "Meeting Updated"),
			"The meeting details have been updated", "")

	case "meeting_deleted":
		s.broadcastUpdate(meetingID, event, orDefault(event.Title, "Meeting Deleted"),
			"This meeting has been canceled", "deleted")

		// Participants outside the room still learn about the cancellation.
		for _, participant := range event.ParticipantIDs {
			n := domain.NewNotification(domain.NotificationUpdate, meetingID, participant.String(),
				orDefault(event.Title, "Meeting Deleted"),
				"A meeting you were invited to has been canceled")
			n.Status = "deleted"
			n.Details = event.Meeting
			s.notify.NotifyUser(participant.String(), n)
		}

	case "participant_added":
		invited := event.InvitedUserID.String()
		if invited == "" {
			log.Warn("participant_added without invited_user_id")
			return
		}
		n := domain.NewNotification(domain.NotificationInvitation, meetingID, invited,
			orDefault(event.Title, "Meeting Invitation"),
			"You've been invited to a meeting: "+orDefault(event.Title, "New Meeting"))
		n.Details = event.Meeting
		s.notify.NotifyUser(invited, n)

	case "participant_status_updated":
		if event.NewStatus == "" || event.UserID.String() == "" {
			return
		}
		s.broadcastUpdate(meetingID, event, "Participant Status Updated",
			"A participant has "+event.NewStatus+" the meeting", event.NewStatus)

	default:
		log.Warn("unknown meeting event type")
	}
}

func (s *Subscriber) broadcastUpdate(meetingID string, event MeetingEvent, title, message, status string) {
	n := domain.NewNotification(domain.NotificationUpdate, meetingID, "", title, message)
	n.Details = event.Meeting
	n.Status = status
	s.rooms.Broadcast(meetingID, n.Event(), "")
}

func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
