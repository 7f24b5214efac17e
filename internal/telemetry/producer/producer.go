// Package producer publishes session events to a message broker.
package producer

import (
	"context"

	"storefront/client/internal/telemetry/domain"
)

// Producer publishes session events. Callers use it best-effort: log and ignore errors.
type Producer interface {
	// Emit sends a single event. Implementations may block briefly.
	Emit(ctx context.Context, event *domain.SessionEvent) error
	// Close releases resources. Safe to call if already closed.
	Close() error
}
