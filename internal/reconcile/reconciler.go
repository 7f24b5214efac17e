package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	cartdomain "storefront/client/internal/cart/domain"
	"storefront/client/internal/logger"
	"storefront/client/internal/telemetry"
	telemetrydomain "storefront/client/internal/telemetry/domain"
	wishlistdomain "storefront/client/internal/wishlist/domain"
)

// CartStore is the minimal device-cart store needed by the Reconciler.
type CartStore interface {
	LoadGuest(ctx context.Context) ([]cartdomain.Entry, error)
	ClearGuest(ctx context.Context) error
	SaveUser(ctx context.Context, userID string, entries []cartdomain.Entry) error
}

// CartBackend is the minimal cart backend needed by the Reconciler.
type CartBackend interface {
	Fetch(ctx context.Context, userID string) ([]cartdomain.Entry, error)
	Push(ctx context.Context, userID string, entries []cartdomain.Entry) error
}

// WishlistStore is the minimal wishlist store needed by the Reconciler.
type WishlistStore interface {
	LoadGuest(ctx context.Context) ([]wishlistdomain.Entry, error)
	LoadUser(ctx context.Context, userID string) ([]wishlistdomain.Entry, error)
	SaveUser(ctx context.Context, userID string, entries []wishlistdomain.Entry) error
}

// DirtyMarker records an undelivered cart push.
type DirtyMarker interface {
	MarkDirty()
}

// Reconciler merges guest collections into a user's at login.
type Reconciler struct {
	cart     CartStore
	backend  CartBackend
	wishlist WishlistStore
	dirty    DirtyMarker
	events   telemetry.EventEmitter
	metrics  *telemetry.Metrics
	log      *slog.Logger
	nowF     func() time.Time
}

// NewReconciler returns a Reconciler. events, metrics and log may be nil.
func NewReconciler(cart CartStore, backend CartBackend, wishlist WishlistStore, dirty DirtyMarker, events telemetry.EventEmitter, metrics *telemetry.Metrics, log *slog.Logger) *Reconciler {
	return &Reconciler{
		cart:     cart,
		backend:  backend,
		wishlist: wishlist,
		dirty:    dirty,
		events:   events,
		metrics:  metrics,
		log:      logger.Component(log, "reconcile"),
		nowF:     time.Now,
	}
}

// Merge folds the guest cart into the user's backend cart and the guest
// wishlist into the user's local wishlist. Empty guest collections are left
// alone and cause no writes. Merged cart entries move to the user's scope: the
// result is stored as the user's device cart and the guest cart is removed. If
// the backend cart cannot be fetched the guest cart stays put and is merged on
// the next cart access. A failed cart push is logged and leaves the cart dirty;
// it is not returned. The guest wishlist is kept, since merging it again adds
// nothing.
func (r *Reconciler) Merge(ctx context.Context, userID string) error {
	if userID == "" {
		return errors.New("reconcile: user id is required")
	}
	return errors.Join(r.mergeCart(ctx, userID), r.mergeWishlist(ctx, userID))
}

func (r *Reconciler) mergeCart(ctx context.Context, userID string) error {
	guest, err := r.cart.LoadGuest(ctx)
	if err != nil {
		return fmt.Errorf("reconcile cart: %w", err)
	}
	if len(guest) == 0 {
		return nil
	}
	user, err := r.backend.Fetch(ctx, userID)
	if err != nil {
		return fmt.Errorf("reconcile cart: %w", err)
	}

	merged := MergeCart(guest, user)
	if err := r.cart.SaveUser(ctx, userID, merged); err != nil {
		return fmt.Errorf("reconcile cart: %w", err)
	}
	r.metrics.Merge(ctx, "cart")
	r.log.InfoContext(ctx, "guest cart merged", "user_id", userID, "guest", len(guest), "user", len(user), "merged", len(merged))

	if err := r.backend.Push(ctx, userID, merged); err != nil {
		r.log.WarnContext(ctx, "merged cart push failed, marked dirty", "user_id", userID, "error", err)
		if r.dirty != nil {
			r.dirty.MarkDirty()
		}
		r.metrics.PushFailure(ctx)
		r.emit(ctx, telemetrydomain.NewSessionEvent(telemetrydomain.EventMergePushFailed, userID, r.nowF()).
			With("entries", fmt.Sprint(len(merged))))
	}
	if err := r.cart.ClearGuest(ctx); err != nil {
		return fmt.Errorf("reconcile cart: %w", err)
	}
	return nil
}

func (r *Reconciler) mergeWishlist(ctx context.Context, userID string) error {
	guest, err := r.wishlist.LoadGuest(ctx)
	if err != nil {
		return fmt.Errorf("reconcile wishlist: %w", err)
	}
	if len(guest) == 0 {
		return nil
	}
	user, err := r.wishlist.LoadUser(ctx, userID)
	if err != nil {
		r.log.WarnContext(ctx, "user wishlist unreadable, replacing", "user_id", userID, "error", err)
		user = nil
	}
	merged := MergeWishlist(guest, user)
	if err := r.wishlist.SaveUser(ctx, userID, merged); err != nil {
		return fmt.Errorf("reconcile wishlist: %w", err)
	}
	r.metrics.Merge(ctx, "wishlist")
	r.log.InfoContext(ctx, "guest wishlist merged", "user_id", userID, "guest", len(guest), "merged", len(merged))
	return nil
}

func (r *Reconciler) emit(ctx context.Context, ev *telemetrydomain.SessionEvent) {
	if r.events == nil {
		return
	}
	if err := r.events.Emit(ctx, ev); err != nil {
		r.log.WarnContext(ctx, "emit merge event failed", "error", err)
	}
}
