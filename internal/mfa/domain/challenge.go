package domain

import (
	"errors"
	"strings"
	"time"
)

// Purpose is what a one-time code authorizes.
type Purpose string

const (
	PurposeLogin         Purpose = "login"
	PurposeActivation    Purpose = "activation"
	PurposePasswordReset Purpose = "password_reset"
)

// DefaultTTL is the client-side validity window of a code.
const DefaultTTL = 300 * time.Second

// ErrUnknownPurpose is returned for purposes outside login, activation, password_reset.
var ErrUnknownPurpose = errors.New("unknown challenge purpose")

// ParsePurpose validates s.
func ParsePurpose(s string) (Purpose, error) {
	p := Purpose(strings.ToLower(strings.TrimSpace(s)))
	switch p {
	case PurposeLogin, PurposeActivation, PurposePasswordReset:
		return p, nil
	default:
		return "", ErrUnknownPurpose
	}
}

// Valid reports whether p is a known purpose.
func (p Purpose) Valid() bool {
	_, err := ParsePurpose(string(p))
	return err == nil
}

// Challenge is the client-side timing state of an issued code. The code value
// itself is only known to the identity backend.
type Challenge struct {
	Email    string
	Purpose  Purpose
	IssuedAt time.Time
	TTL      time.Duration
}

// ExpiresAt is IssuedAt + TTL.
func (c Challenge) ExpiresAt() time.Time {
	return c.IssuedAt.Add(c.TTL)
}

// Remaining is the time left at now, never negative.
func (c Challenge) Remaining(now time.Time) time.Duration {
	d := c.ExpiresAt().Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// Expired reports whether the countdown has reached zero at now.
func (c Challenge) Expired(now time.Time) bool {
	return !now.Before(c.ExpiresAt())
}
