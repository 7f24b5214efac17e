package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"storefront/client/internal/telemetry/domain"
)

// emitTimeout is the max time allowed for a single async emit.
const emitTimeout = 5 * time.Second

// Async emits in the background so the caller is never blocked. Wait drains
// in-flight emits before providers are shut down.
type Async struct {
	emitter EventEmitter
	log     *slog.Logger
	wg      sync.WaitGroup
}

// NewAsync wraps emitter. A nil emitter makes Emit a no-op.
func NewAsync(emitter EventEmitter, log *slog.Logger) *Async {
	if log == nil {
		log = slog.Default()
	}
	return &Async{emitter: emitter, log: log}
}

// Emit starts the emit in a goroutine and returns nil. The goroutine uses its own
// timeout so caller cancellation does not abort it.
func (a *Async) Emit(_ context.Context, event *domain.SessionEvent) error {
	if a == nil || a.emitter == nil || event == nil {
		return nil
	}
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), emitTimeout)
		defer cancel()
		if err := a.emitter.Emit(ctx, event); err != nil {
			a.log.Warn("telemetry: async emit failed", "event_type", event.Type, "error", err)
		}
	}()
	return nil
}

// Wait blocks until in-flight emits finish or ctx is done.
func (a *Async) Wait(ctx context.Context) error {
	if a == nil {
		return nil
	}
	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
