// Package repository stores carts: the guest cart under the cart key, the
// device copy of a signed-in user's cart under cart-user-<id>, and the user's
// server-side cart on the cart backend.
package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"storefront/client/internal/apperr"
	"storefront/client/internal/cart/domain"
	"storefront/client/internal/storage"
)

// Local keeps device carts in a storage.Store.
type Local struct {
	store storage.Store
}

// NewLocal returns the local cart repository.
func NewLocal(store storage.Store) *Local {
	return &Local{store: store}
}

// LoadGuest returns the guest cart; nil when none is stored.
func (l *Local) LoadGuest(ctx context.Context) ([]domain.Entry, error) {
	entries, _, err := l.load(ctx, storage.KeyCart)
	return entries, err
}

// SaveGuest replaces the guest cart.
func (l *Local) SaveGuest(ctx context.Context, entries []domain.Entry) error {
	return l.save(ctx, storage.KeyCart, entries)
}

// ClearGuest removes the guest cart once its entries belong to a user.
func (l *Local) ClearGuest(ctx context.Context) error {
	if err := l.store.Delete(ctx, storage.KeyCart); err != nil {
		return fmt.Errorf("cart: clear guest: %w", err)
	}
	return nil
}

// LoadUser returns the device copy of userID's cart. ok is false when there is
// no copy yet and the backend cart has to be fetched.
func (l *Local) LoadUser(ctx context.Context, userID string) (entries []domain.Entry, ok bool, err error) {
	return l.load(ctx, storage.UserCartKey(userID))
}

// SaveUser replaces the device copy of userID's cart.
func (l *Local) SaveUser(ctx context.Context, userID string, entries []domain.Entry) error {
	return l.save(ctx, storage.UserCartKey(userID), entries)
}

func (l *Local) load(ctx context.Context, key string) ([]domain.Entry, bool, error) {
	raw, ok, err := l.store.Get(ctx, key)
	if err != nil || !ok {
		return nil, false, err
	}
	var entries []domain.Entry
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		return nil, false, fmt.Errorf("%w: %s: %v", apperr.ErrStorageCorruption, key, err)
	}
	return entries, true, nil
}

func (l *Local) save(ctx context.Context, key string, entries []domain.Entry) error {
	if entries == nil {
		entries = []domain.Entry{}
	}
	raw, err := json.Marshal(entries)
	if err != nil {
		return err
	}
	if err := l.store.Set(ctx, key, string(raw)); err != nil {
		return fmt.Errorf("cart: save %s: %w", key, err)
	}
	return nil
}
