package remote

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tillsync/internal/core/apperror"
)

func signToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-key"))
	require.NoError(t, err)
	return token
}

func TestCheckExpiry(t *testing.T) {
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		token   string
		wantErr bool
	}{
		{"empty token", "", false},
		{"opaque token passes through", "not-a-jwt", false},
		{"valid jwt without exp", signToken(t, jwt.MapClaims{"sub": "user-1"}), false},
		{"jwt expiring later", signToken(t, jwt.MapClaims{"exp": now.Add(time.Hour).Unix()}), false},
		{"expired jwt", signToken(t, jwt.MapClaims{"exp": now.Add(-time.Hour).Unix()}), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckExpiry(tt.token, now)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, apperror.IsAuth(err), "expired session must classify as auth error")
				assert.False(t, apperror.IsRetryable(err), "expired session must never be retried")
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
