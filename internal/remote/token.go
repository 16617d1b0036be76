package remote

import (
	"context"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"tillsync/internal/core/apperror"
)

// TokenSource supplies the bearer token attached to every remote call.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a TokenSource backed by a fixed token string.
type StaticToken string

// Token returns the static token.
func (s StaticToken) Token(_ context.Context) (string, error) {
	return string(s), nil
}

// CheckExpiry inspects the token's exp claim without verifying the
// signature (verification is the server's job) and returns an auth error if
// the session has already expired. Failing here saves a round trip that
// would come back 401 anyway, and an expired session must prompt
// reauthentication rather than be retried.
func CheckExpiry(token string, now time.Time) error {
	if token == "" {
		return nil // anonymous callers get the server's verdict
	}

	parser := jwt.NewParser()
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		// Opaque (non-JWT) tokens pass through untouched.
		return nil
	}

	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return nil
	}
	if now.After(exp.Time) {
		return apperror.NewUnauthorized("session expired").
			WithDetail("expired_at", exp.Time.UTC().Format(time.RFC3339))
	}
	return nil
}
