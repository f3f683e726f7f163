package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// GuestIDPrefix marks session-scoped identities issued without registration.
// Registered users carry their numeric account id as a decimal string.
const GuestIDPrefix = "guest_"

// User is a registered participant profile resolved from the identity store.
type User struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// NewGuestID issues a fresh session-scoped guest identifier.
func NewGuestID() string {
	return GuestIDPrefix + strings.ReplaceAll(uuid.New().String(), "-", "")[:12]
}

// IsGuestID reports whether id belongs to an unregistered session user.
func IsGuestID(id string) bool {
	return strings.HasPrefix(id, GuestIDPrefix)
}
