package repository

import (
	"context"

	"storefront/client/internal/mfa/domain"
)

// Repository holds at most one challenge per (email, purpose). Put replaces.
type Repository interface {
	Put(ctx context.Context, c domain.Challenge)
	Get(ctx context.Context, email string, purpose domain.Purpose) (domain.Challenge, bool)
	Delete(ctx context.Context, email string, purpose domain.Purpose)
}
