package repository

import (
	"context"
	"encoding/json"

	"storefront/client/internal/identity/domain"
)

// LoginResult is a successful login: the bearer token and the (possibly partial) user.
type LoginResult struct {
	Token string
	User  domain.Profile
}

// Repository is the identity backend consumed by the auth components.
type Repository interface {
	Login(ctx context.Context, email, password string) (*LoginResult, error)
	SendOTP(ctx context.Context, email, purpose string) error
	// VerifyOTP returns the backend's data payload on success.
	VerifyOTP(ctx context.Context, email, otp, purpose string) (json.RawMessage, error)
	Me(ctx context.Context, userID, token string) (*domain.Profile, error)
	AccountStatus(ctx context.Context, email string) (*domain.AccountStatus, error)
}
