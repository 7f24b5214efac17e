package security

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrInvalidToken is returned when a token is not a parseable JWT.
	ErrInvalidToken = errors.New("invalid token")
)

// SessionClaims is the subset of the identity backend's token claims the client reads.
// The client never holds the signing key, so claims are informational only.
type SessionClaims struct {
	jwt.RegisteredClaims
	Email string `json:"email,omitempty"`
}

// ParseClaims decodes token without verifying its signature.
func ParseClaims(token string) (*SessionClaims, error) {
	claims := &SessionClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// TokenExpiry returns the exp claim of token. ok is false for opaque tokens or
// tokens without an exp claim; such tokens are treated as non-expiring.
func TokenExpiry(token string) (exp time.Time, ok bool) {
	claims, err := ParseClaims(token)
	if err != nil || claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}

// TokenExpired reports whether token carries an exp claim at or before now.
func TokenExpired(token string, now time.Time) bool {
	exp, ok := TokenExpiry(token)
	return ok && !now.Before(exp)
}
