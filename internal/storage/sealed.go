package storage

import (
	"context"

	"storefront/client/internal/security"
)

// Sealed encrypts values before they reach the inner Store. A value that fails to
// open is reported as apperr.ErrStorageCorruption.
type Sealed struct {
	inner  Store
	sealer *security.Sealer
}

// NewSealed wraps inner with sealer.
func NewSealed(inner Store, sealer *security.Sealer) *Sealed {
	return &Sealed{inner: inner, sealer: sealer}
}

func (s *Sealed) Get(ctx context.Context, key string) (string, bool, error) {
	v, ok, err := s.inner.Get(ctx, key)
	if err != nil || !ok {
		return "", ok, err
	}
	pt, err := s.sealer.Open(v)
	if err != nil {
		return "", false, corrupt(key, err)
	}
	return pt, true, nil
}

func (s *Sealed) Set(ctx context.Context, key, value string) error {
	ct, err := s.sealer.Seal(value)
	if err != nil {
		return err
	}
	return s.inner.Set(ctx, key, ct)
}

func (s *Sealed) Delete(ctx context.Context, keys ...string) error {
	return s.inner.Delete(ctx, keys...)
}
