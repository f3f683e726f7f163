package service

import (
	"log/slog"

	"github.com/immxrtalbeast/meetchat/internal/domain"
	"github.com/immxrtalbeast/meetchat/internal/registry"
)

// NotifyService routes user-addressed events (invitations, meeting updates)
// to every live connection of the target user, independent of room
// membership. Users with zero live connections simply miss the notification;
// there is no offline queue.
type NotifyService struct {
	registry *registry.Registry
	log      *slog.Logger
}

func NewNotifyService(reg *registry.Registry, log *slog.Logger) *NotifyService {
	if log == nil {
		log = slog.Default()
	}
	return &NotifyService{registry: reg, log: log}
}

// NotifyUser delivers n to all of the target's connections and returns how
// many accepted it.
func (s *NotifyService) NotifyUser(userID string, n *domain.Notification) int {
	const op = "service.notify.user"

	conns := s.registry.Lookup(userID)
	if len(conns) == 0 {
		s.log.Debug("notification dropped, user offline",
			slog.String("op", op),
			slog.String("user_id", userID),
			slog.String("kind", string(n.Kind)),
		)
		return 0
	}

	event := n.Event()
	delivered := 0
	for _, conn := range conns {
		if conn.Enqueue(event) {
			delivered++
		}
	}

	s.log.Info("notification delivered",
		slog.String("op", op),
		slog.String("user_id", userID),
		slog.String("kind", string(n.Kind)),
		slog.String("meeting_id", n.MeetingID),
		slog.Int("connections", delivered),
	)
	return delivered
}
