package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"storefront/client/internal/apperr"
	identitydomain "storefront/client/internal/identity/domain"
	"storefront/client/internal/session/domain"
	"storefront/client/internal/storage"
)

// Repository persists the session under the token and user keys.
type Repository interface {
	// Load returns nil, nil when no session is stored. Incomplete or
	// undecodable state is reported as apperr.ErrStorageCorruption.
	Load(ctx context.Context) (*domain.Session, error)
	Save(ctx context.Context, s *domain.Session) error
	SaveProfile(ctx context.Context, p identitydomain.Profile) error
	// Clear removes the token, the profile and the user-scoped cart copy and
	// wishlist of userID.
	Clear(ctx context.Context, userID string) error
}

// StoreRepository implements Repository on a storage.Store.
type StoreRepository struct {
	store storage.Store
}

// NewStoreRepository returns a Repository backed by store.
func NewStoreRepository(store storage.Store) *StoreRepository {
	return &StoreRepository{store: store}
}

func (r *StoreRepository) Load(ctx context.Context) (*domain.Session, error) {
	token, hasToken, err := r.store.Get(ctx, storage.KeyToken)
	if err != nil {
		return nil, err
	}
	rawUser, hasUser, err := r.store.Get(ctx, storage.KeyUser)
	if err != nil {
		return nil, err
	}
	switch {
	case !hasToken && !hasUser:
		return nil, nil
	case !hasToken || !hasUser || token == "":
		return nil, fmt.Errorf("%w: token and user must both be present", apperr.ErrStorageCorruption)
	}

	profile, err := identitydomain.ParseStoredProfile(json.RawMessage(rawUser))
	if err != nil {
		return nil, fmt.Errorf("%w: user: %v", apperr.ErrStorageCorruption, err)
	}
	if !profile.Valid() {
		return nil, fmt.Errorf("%w: user has no id", apperr.ErrStorageCorruption)
	}
	return &domain.Session{Token: token, Profile: profile}, nil
}

func (r *StoreRepository) Save(ctx context.Context, s *domain.Session) error {
	if s == nil || s.Token == "" || !s.Profile.Valid() {
		return errors.New("session: refusing to persist an incomplete session")
	}
	if err := r.store.Set(ctx, storage.KeyToken, s.Token); err != nil {
		return fmt.Errorf("session: save token: %w", err)
	}
	return r.SaveProfile(ctx, s.Profile)
}

func (r *StoreRepository) SaveProfile(ctx context.Context, p identitydomain.Profile) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return err
	}
	if err := r.store.Set(ctx, storage.KeyUser, string(raw)); err != nil {
		return fmt.Errorf("session: save user: %w", err)
	}
	return nil
}

func (r *StoreRepository) Clear(ctx context.Context, userID string) error {
	keys := []string{storage.KeyToken, storage.KeyUser}
	if userID != "" {
		keys = append(keys, storage.UserCartKey(userID), storage.UserWishlistKey(userID))
	}
	return r.store.Delete(ctx, keys...)
}
