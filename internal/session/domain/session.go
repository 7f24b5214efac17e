package domain

import (
	"time"

	identitydomain "storefront/client/internal/identity/domain"
)

// Session is an established, persisted login.
type Session struct {
	Token         string
	Profile       identitydomain.Profile
	EstablishedAt time.Time
}

// Status is the authentication state of the client.
type Status string

const (
	StatusUnauthenticated  Status = "unauthenticated"
	StatusPendingChallenge Status = "pending_challenge"
	StatusAuthenticated    Status = "authenticated"
)

// Reason records why the client last became unauthenticated.
type Reason string

const (
	ReasonNone        Reason = ""
	ReasonLogout      Reason = "logout"
	ReasonExpired     Reason = "expired"
	ReasonDeactivated Reason = "deactivated"
	ReasonCorrupted   Reason = "corrupted"
	ReasonCancelled   Reason = "cancelled"
	ReasonChallenge   Reason = "challenge_expired"
)

// AuthState is the observable snapshot published to subscribers. Profile is a
// copy; mutating it has no effect on the session.
type AuthState struct {
	Status             Status
	Profile            *identitydomain.Profile
	PendingEmail       string
	ChallengeExpiresAt time.Time
	Generation         uint64
	Reason             Reason
}

// Authenticated reports whether a session is established.
func (s AuthState) Authenticated() bool {
	return s.Status == StatusAuthenticated
}

// UserID returns the authenticated user's id or "".
func (s AuthState) UserID() string {
	if s.Profile == nil {
		return ""
	}
	return s.Profile.ID
}
