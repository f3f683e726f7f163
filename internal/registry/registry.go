// Package registry tracks every live event-channel connection and its
// authenticated identity. It is the process-scoped replacement for the
// user->socket maps the rest of the service fans out through.
package registry

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/immxrtalbeast/meetchat/internal/auth"
	"github.com/immxrtalbeast/meetchat/internal/domain"
	"github.com/immxrtalbeast/meetchat/internal/repository"
	"github.com/immxrtalbeast/meetchat/lib/logger/sl"
)

var ErrUnauthenticated = errors.New("unauthenticated")

// Credential is what a client presents during the channel handshake: a bearer
// token for registered users, or a guest session request with a display name.
type Credential struct {
	Token     string
	GuestName string
}

type Registry struct {
	verifier *auth.TokenVerifier
	users    repository.UserRepository
	log      *slog.Logger

	mu     sync.RWMutex
	conns  map[string]*domain.Connection
	byUser map[string]map[string]*domain.Connection
}

// New builds a registry. users may be nil; it is only consulted to resolve
// display names for tokens that carry no name claim.
func New(verifier *auth.TokenVerifier, users repository.UserRepository, log *slog.Logger) *Registry {
	if log == nil {
		log = slog.Default()
	}
	return &Registry{
		verifier: verifier,
		users:    users,
		log:      log,
		conns:    make(map[string]*domain.Connection),
		byUser:   make(map[string]map[string]*domain.Connection),
	}
}

// Admit verifies the credential and registers a new connection. The
// connection is fully constructed before it becomes visible to Lookup.
func (r *Registry) Admit(ctx context.Context, cred Credential) (*domain.Connection, error) {
	const op = "registry.admit"

	var userID, name string
	switch {
	case cred.Token != "":
		claims, err := r.verifier.Verify(cred.Token)
		if err != nil {
			r.log.Info("handshake rejected", slog.String("op", op), sl.Err(err))
			return nil, ErrUnauthenticated
		}
		userID = claims.UserID
		name = claims.Name
		if cred.GuestName != "" {
			name = cred.GuestName
		}
		if name == "" {
			name = r.resolveName(ctx, userID)
		}
	case cred.GuestName != "":
		userID = domain.NewGuestID()
		name = cred.GuestName
	default:
		return nil, ErrUnauthenticated
	}

	conn := domain.NewConnection(userID, name)

	r.mu.Lock()
	r.conns[conn.ID] = conn
	userConns, ok := r.byUser[userID]
	if !ok {
		userConns = make(map[string]*domain.Connection)
		r.byUser[userID] = userConns
	}
	userConns[conn.ID] = conn
	r.mu.Unlock()

	r.log.Info("connection admitted",
		slog.String("op", op),
		slog.String("conn_id", conn.ID),
		slog.String("user_id", userID),
	)
	return conn, nil
}

// resolveName looks the user's profile name up in the identity store. A
// missing store or profile degrades to an empty name; clients may still set
// one through their first chat payload.
func (r *Registry) resolveName(ctx context.Context, userID string) string {
	if r.users == nil {
		return ""
	}
	user, err := r.users.GetByID(ctx, userID)
	if err != nil {
		if !errors.Is(err, repository.ErrUserNotFound) {
			r.log.Warn("user profile lookup failed", slog.String("user_id", userID), sl.Err(err))
		}
		return ""
	}
	return user.Name
}

// Remove unregisters a connection and closes its event queue. Idempotent: a
// timeout detector and an explicit disconnect may both call it.
func (r *Registry) Remove(connID string) {
	r.mu.Lock()
	conn, ok := r.conns[connID]
	if ok {
		delete(r.conns, connID)
		if userConns, exists := r.byUser[conn.UserID]; exists {
			delete(userConns, connID)
			if len(userConns) == 0 {
				delete(r.byUser, conn.UserID)
			}
		}
	}
	r.mu.Unlock()

	if !ok {
		return
	}

	conn.Close()
	r.log.Info("connection removed", slog.String("conn_id", connID), slog.String("user_id", conn.UserID))
}

// Get returns a live connection by id.
func (r *Registry) Get(connID string) (*domain.Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.conns[connID]
	return conn, ok
}

// Lookup returns a consistent snapshot of every live connection owned by
// userID at the instant of the call.
func (r *Registry) Lookup(userID string) []*domain.Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	userConns, ok := r.byUser[userID]
	if !ok {
		return nil
	}
	conns := make([]*domain.Connection, 0, len(userConns))
	for _, conn := range userConns {
		conns = append(conns, conn)
	}
	return conns
}

// Len reports the number of live connections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}
