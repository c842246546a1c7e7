// ABOUTME: Tests for JWT generation and verification.
// ABOUTME: Covers round trips, expiry, wrong secrets, and bearer header extraction.

package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWTRoundTrip(t *testing.T) {
	v := NewJWTVerifier([]byte("test-secret"))

	token, err := v.Generate("user-001", time.Hour)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	userID, err := v.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "user-001", userID)
}

func TestJWTExpired(t *testing.T) {
	v := NewJWTVerifier([]byte("test-secret"))

	token, err := v.Generate("user-001", -time.Minute)
	require.NoError(t, err)

	_, err = v.Verify(token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestJWTWrongSecret(t *testing.T) {
	v1 := NewJWTVerifier([]byte("secret-one"))
	v2 := NewJWTVerifier([]byte("secret-two"))

	token, err := v1.Generate("user-001", time.Hour)
	require.NoError(t, err)

	_, err = v2.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestJWTGarbageToken(t *testing.T) {
	v := NewJWTVerifier([]byte("test-secret"))

	_, err := v.Verify("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestExtractBearerToken(t *testing.T) {
	tests := []struct {
		name    string
		header  string
		token   string
		errMsg  string
	}{
		{"valid", "Bearer abc123", "abc123", ""},
		{"missing", "", "", "missing authorization header"},
		{"wrong scheme", "Basic abc123", "", "invalid authorization header format"},
		{"empty token", "Bearer ", "", "invalid authorization header format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, errMsg := ExtractBearerToken(tt.header)
			assert.Equal(t, tt.token, token)
			assert.Equal(t, tt.errMsg, errMsg)
		})
	}
}

func TestExpiresAt(t *testing.T) {
	v := NewJWTVerifier([]byte("secret"))
	token, err := v.Generate("user-1", time.Hour)
	require.NoError(t, err)

	exp := ExpiresAt(token)
	require.False(t, exp.IsZero())
	assert.WithinDuration(t, time.Now().Add(time.Hour), exp, 5*time.Second)

	assert.True(t, ExpiresAt("not-a-jwt").IsZero())
}
