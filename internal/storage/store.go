// Package storage is the durable string key/value store backing session, cart and
// wishlist state. Keys are the client's storage keys (token, user, cart,
// cart-user-<id>, wishlist, wishlist-user-<id>); values are JSON or raw token strings.
package storage

import (
	"context"
	"fmt"

	"storefront/client/internal/apperr"
	"storefront/client/internal/config"
	"storefront/client/internal/security"
)

// Storage keys shared by the session, cart and wishlist components.
const (
	KeyToken    = "token"
	KeyUser     = "user"
	KeyCart     = "cart"
	KeyWishlist = "wishlist"
)

// UserWishlistKey is the per-user wishlist key.
func UserWishlistKey(userID string) string {
	return "wishlist-user-" + userID
}

// UserCartKey is the device copy of a signed-in user's cart.
func UserCartKey(userID string) string {
	return "cart-user-" + userID
}

// Store is a string key/value store. Get reports ok=false for a missing key.
// Delete ignores keys that are not present.
type Store interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, keys ...string) error
}

// Open builds the Store selected by cfg, wrapped in a Sealed store when a seal key
// is configured. The returned close func releases backend resources.
func Open(cfg *config.Config) (Store, func() error, error) {
	var (
		st      Store
		closeFn = func() error { return nil }
	)
	switch cfg.StorageBackend {
	case config.StorageMemory:
		st = NewMemory()
	case config.StorageRedis:
		r := NewRedis(cfg.RedisAddr, cfg.RedisKeyPrefix)
		st, closeFn = r, r.Close
	case config.StorageFile, "":
		st = NewFile(cfg.StoragePath)
	default:
		return nil, nil, fmt.Errorf("storage: unknown backend %q", cfg.StorageBackend)
	}

	key, err := cfg.SealKey()
	if err != nil {
		_ = closeFn()
		return nil, nil, err
	}
	if key != nil {
		sealer, err := security.NewSealer(key)
		if err != nil {
			_ = closeFn()
			return nil, nil, err
		}
		st = NewSealed(st, sealer)
	}
	return st, closeFn, nil
}

// corrupt wraps a decode failure for key as apperr.ErrStorageCorruption.
func corrupt(key string, err error) error {
	return fmt.Errorf("%w: %s: %v", apperr.ErrStorageCorruption, key, err)
}
