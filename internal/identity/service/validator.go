package service

import (
	"context"
	"fmt"
	"log/slog"

	"storefront/client/internal/apperr"
	"storefront/client/internal/identity/domain"
	"storefront/client/internal/identity/repository"
	"storefront/client/internal/logger"
)

// Authenticator is the minimal identity backend needed by the validator.
type Authenticator interface {
	Login(ctx context.Context, email, password string) (*repository.LoginResult, error)
}

// Validator checks an email/password pair against the identity backend without
// establishing a session. The token the backend returns is discarded.
type Validator struct {
	auth Authenticator
	log  *slog.Logger
}

// NewValidator returns a Validator. A nil logger uses slog's default.
func NewValidator(auth Authenticator, log *slog.Logger) *Validator {
	return &Validator{auth: auth, log: logger.Component(log, "validator")}
}

// Validate returns nil when the credentials are accepted and the account is
// active. Failures wrap apperr.ErrInvalidCredentials, ErrAccountInactive,
// ErrAccountNotFound, ErrNetwork or ErrProtocol. Empty input fails without a
// network call.
func (v *Validator) Validate(ctx context.Context, email, password string) error {
	cred := domain.NewCredential(email, password)
	defer cred.Zero()
	if cred.Empty() {
		return fmt.Errorf("validate: %w", apperr.ErrInvalidCredentials)
	}

	res, err := v.auth.Login(ctx, cred.Email, cred.Password)
	if err != nil {
		v.log.InfoContext(ctx, "credential check failed", "code", apperr.CodeOf(err))
		return fmt.Errorf("validate: %w", err)
	}
	if res.User.Active != nil && !*res.User.Active {
		return fmt.Errorf("validate: %w", apperr.ErrAccountInactive)
	}
	return nil
}
