package domain

import (
	"time"

	"github.com/google/uuid"
)

// EventType names a session lifecycle event.
type EventType string

const (
	EventLogin            EventType = "login"
	EventLogout           EventType = "logout"
	EventExpired          EventType = "expired"
	EventDeactivated      EventType = "deactivated"
	EventMerge            EventType = "merge"
	EventMergePushFailed  EventType = "merge_push_failed"
	EventStorageCorrupted EventType = "storage_corrupted"
)

// SessionEvent is a best-effort lifecycle record. It never carries credentials;
// tokens appear only as a fingerprint.
type SessionEvent struct {
	ID               string            `json:"id"`
	Type             EventType         `json:"type"`
	UserID           string            `json:"user_id,omitempty"`
	TokenFingerprint string            `json:"token_fingerprint,omitempty"`
	Source           string            `json:"source,omitempty"`
	Metadata         map[string]string `json:"metadata,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
}

// NewSessionEvent returns an event with a fresh id stamped at now.
func NewSessionEvent(typ EventType, userID string, now time.Time) *SessionEvent {
	return &SessionEvent{
		ID:        uuid.NewString(),
		Type:      typ,
		UserID:    userID,
		Source:    "storefront-client",
		CreatedAt: now.UTC(),
	}
}

// With adds a metadata pair and returns e.
func (e *SessionEvent) With(key, value string) *SessionEvent {
	if e.Metadata == nil {
		e.Metadata = make(map[string]string)
	}
	e.Metadata[key] = value
	return e
}
