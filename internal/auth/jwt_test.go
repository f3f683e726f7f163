package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenVerifier_RoundTrip(t *testing.T) {
	verifier := NewTokenVerifier("test-secret")

	token, err := verifier.Issue("42", "Alice", time.Minute)
	require.NoError(t, err)

	claims, err := verifier.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "42", claims.UserID)
	assert.Equal(t, "Alice", claims.Name)
}

func TestTokenVerifier_SubjectFallback(t *testing.T) {
	verifier := NewTokenVerifier("test-secret")

	// Tokens minted by the auth service may carry only the subject claim.
	token, err := verifier.Issue("42", "", time.Minute)
	require.NoError(t, err)

	claims, err := verifier.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "42", claims.UserID)
}

func TestTokenVerifier_Rejections(t *testing.T) {
	verifier := NewTokenVerifier("test-secret")

	expired, err := verifier.Issue("42", "Alice", -time.Minute)
	require.NoError(t, err)

	foreign, err := NewTokenVerifier("other-secret").Issue("42", "Alice", time.Minute)
	require.NoError(t, err)

	tests := []struct {
		name    string
		token   string
		wantErr error
	}{
		{name: "expired", token: expired, wantErr: ErrExpiredToken},
		{name: "wrong secret", token: foreign, wantErr: ErrInvalidToken},
		{name: "garbage", token: "definitely.not.jwt", wantErr: ErrInvalidToken},
		{name: "empty", token: "", wantErr: ErrInvalidToken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := verifier.Verify(tt.token)
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}
