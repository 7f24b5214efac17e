// Package repository stores wishlists: the guest list under the wishlist key and
// each user's list under wishlist-user-<id>.
package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"storefront/client/internal/apperr"
	"storefront/client/internal/storage"
	"storefront/client/internal/wishlist/domain"
)

// Local keeps wishlists in a storage.Store.
type Local struct {
	store storage.Store
}

// NewLocal returns the wishlist repository.
func NewLocal(store storage.Store) *Local {
	return &Local{store: store}
}

// LoadGuest returns the guest wishlist.
func (l *Local) LoadGuest(ctx context.Context) ([]domain.Entry, error) {
	return l.load(ctx, storage.KeyWishlist)
}

// LoadUser returns the wishlist of userID.
func (l *Local) LoadUser(ctx context.Context, userID string) ([]domain.Entry, error) {
	return l.load(ctx, storage.UserWishlistKey(userID))
}

// SaveGuest replaces the guest wishlist.
func (l *Local) SaveGuest(ctx context.Context, entries []domain.Entry) error {
	return l.save(ctx, storage.KeyWishlist, entries)
}

// SaveUser replaces the wishlist of userID.
func (l *Local) SaveUser(ctx context.Context, userID string, entries []domain.Entry) error {
	return l.save(ctx, storage.UserWishlistKey(userID), entries)
}

func (l *Local) load(ctx context.Context, key string) ([]domain.Entry, error) {
	raw, ok, err := l.store.Get(ctx, key)
	if err != nil || !ok {
		return nil, err
	}
	var entries []domain.Entry
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", apperr.ErrStorageCorruption, key, err)
	}
	return entries, nil
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
		return fmt.Errorf("wishlist: save %s: %w", key, err)
	}
	return nil
}
