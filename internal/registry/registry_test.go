package registry

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/immxrtalbeast/meetchat/internal/auth"
	"github.com/immxrtalbeast/meetchat/internal/domain"
	"github.com/immxrtalbeast/meetchat/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry() (*Registry, *auth.TokenVerifier) {
	verifier := auth.NewTokenVerifier("test-secret")
	return New(verifier, nil, nil), verifier
}

func TestRegistry_AdmitWithToken(t *testing.T) {
	reg, verifier := newTestRegistry()

	token, err := verifier.Issue("42", "Alice", time.Minute)
	require.NoError(t, err)

	conn, err := reg.Admit(context.Background(), Credential{Token: token})
	require.NoError(t, err)

	assert.Equal(t, "42", conn.UserID)
	assert.Equal(t, "Alice", conn.Name())
	assert.True(t, conn.Alive())
}

func TestRegistry_AdmitGuest(t *testing.T) {
	reg, _ := newTestRegistry()

	conn, err := reg.Admit(context.Background(), Credential{GuestName: "Visitor"})
	require.NoError(t, err)

	assert.True(t, domain.IsGuestID(conn.UserID))
	assert.Equal(t, "Visitor", conn.Name())
}

func TestRegistry_AdmitResolvesNameFromIdentityStore(t *testing.T) {
	verifier := auth.NewTokenVerifier("test-secret")
	users := repository.NewInMemoryUserRepository()
	users.Put(&domain.User{ID: "42", Name: "Alice Profile"})
	reg := New(verifier, users, nil)

	// The auth service may mint tokens with only the subject claim.
	anonymous, err := verifier.Issue("42", "", time.Minute)
	require.NoError(t, err)

	conn, err := reg.Admit(context.Background(), Credential{Token: anonymous})
	require.NoError(t, err)
	assert.Equal(t, "Alice Profile", conn.Name())

	// A name claim on the token wins over the stored profile.
	named, err := verifier.Issue("42", "Alice", time.Minute)
	require.NoError(t, err)

	conn, err = reg.Admit(context.Background(), Credential{Token: named})
	require.NoError(t, err)
	assert.Equal(t, "Alice", conn.Name())

	// An unknown profile degrades to an empty name, not a rejection.
	unknown, err := verifier.Issue("77", "", time.Minute)
	require.NoError(t, err)

	conn, err = reg.Admit(context.Background(), Credential{Token: unknown})
	require.NoError(t, err)
	assert.Empty(t, conn.Name())
}

func TestRegistry_AdmitRejections(t *testing.T) {
	reg, verifier := newTestRegistry()

	expired, err := verifier.Issue("42", "Alice", -time.Minute)
	require.NoError(t, err)

	tests := []struct {
		name string
		cred Credential
	}{
		{name: "no credential", cred: Credential{}},
		{name: "garbage token", cred: Credential{Token: "not-a-token"}},
		{name: "expired token", cred: Credential{Token: expired}},
		{name: "wrong secret", cred: Credential{Token: issueWith(t, "other-secret", "42")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := reg.Admit(context.Background(), tt.cred)
			require.ErrorIs(t, err, ErrUnauthenticated)
		})
	}
	assert.Zero(t, reg.Len())
}

func issueWith(t *testing.T, secret, userID string) string {
	t.Helper()
	token, err := auth.NewTokenVerifier(secret).Issue(userID, "", time.Minute)
	require.NoError(t, err)
	return token
}

func TestRegistry_LookupReturnsAllUserConnections(t *testing.T) {
	reg, verifier := newTestRegistry()
	token, err := verifier.Issue("42", "Alice", time.Minute)
	require.NoError(t, err)

	first, err := reg.Admit(context.Background(), Credential{Token: token})
	require.NoError(t, err)
	second, err := reg.Admit(context.Background(), Credential{Token: token})
	require.NoError(t, err)
	_, err = reg.Admit(context.Background(), Credential{GuestName: "Someone Else"})
	require.NoError(t, err)

	conns := reg.Lookup("42")
	require.Len(t, conns, 2)
	ids := []string{conns[0].ID, conns[1].ID}
	assert.ElementsMatch(t, []string{first.ID, second.ID}, ids)

	assert.Empty(t, reg.Lookup("no-such-user"))
}

func TestRegistry_RemoveIsIdempotent(t *testing.T) {
	reg, verifier := newTestRegistry()
	token, err := verifier.Issue("42", "Alice", time.Minute)
	require.NoError(t, err)

	conn, err := reg.Admit(context.Background(), Credential{Token: token})
	require.NoError(t, err)

	// Timeout detector and explicit disconnect may both fire.
	reg.Remove(conn.ID)
	reg.Remove(conn.ID)

	assert.False(t, conn.Alive())
	assert.Empty(t, reg.Lookup("42"))
	assert.Zero(t, reg.Len())

	_, ok := reg.Get(conn.ID)
	assert.False(t, ok)
}

func TestRegistry_ConcurrentAdmitRemove(t *testing.T) {
	reg, verifier := newTestRegistry()
	token, err := verifier.Issue("42", "Alice", time.Minute)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 25; j++ {
				conn, err := reg.Admit(context.Background(), Credential{Token: token})
				if err != nil {
					continue
				}
				// Lookup must never observe a half-registered connection.
				for _, c := range reg.Lookup("42") {
					_ = c.ID
				}
				reg.Remove(conn.ID)
			}
		}()
	}
	wg.Wait()

	assert.Zero(t, reg.Len())
	assert.Empty(t, reg.Lookup("42"))
}
