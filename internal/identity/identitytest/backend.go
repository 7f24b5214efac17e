// Package identitytest provides an in-memory identity backend for tests.
package identitytest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"storefront/client/internal/apperr"
	"storefront/client/internal/identity/domain"
	"storefront/client/internal/identity/repository"
)

// Account is a registered test account.
type Account struct {
	ID       string
	Email    string
	Password string
	FullName string
	Name     string
	Active   bool
}

// Backend implements repository.Repository in memory. The accepted OTP is Code
// for every challenge. Err, when set, is returned by every call.
type Backend struct {
	mu       sync.Mutex
	accounts map[string]*Account
	calls    map[string]int
	sent     []string

	Code  string
	Err   error
	MeErr error
}

var _ repository.Repository = (*Backend)(nil)

// New returns a Backend holding accounts.
func New(accounts ...Account) *Backend {
	b := &Backend{accounts: make(map[string]*Account), calls: make(map[string]int), Code: "123456"}
	for _, a := range accounts {
		b.accounts[domain.NormalizeEmail(a.Email)] = &a
	}
	return b
}

// SetActive flips an account's active flag.
func (b *Backend) SetActive(email string, active bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if a, ok := b.accounts[email]; ok {
		a.Active = active
	}
}

// Calls returns how many times op was invoked.
func (b *Backend) Calls(op string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[op]
}

// Sent returns the "email/purpose" pairs passed to SendOTP.
func (b *Backend) Sent() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.sent...)
}

func (b *Backend) enter(op string) error {
	b.calls[op]++
	return b.Err
}

func (b *Backend) Login(_ context.Context, email, password string) (*repository.LoginResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.enter("login"); err != nil {
		return nil, err
	}
	a, ok := b.accounts[email]
	if !ok {
		return nil, apperr.ErrAccountNotFound
	}
	if a.Password != password {
		return nil, apperr.ErrInvalidCredentials
	}
	if !a.Active {
		return nil, apperr.ErrAccountInactive
	}
	return &repository.LoginResult{
		Token: "token-" + a.ID,
		User:  domain.Profile{ID: a.ID, Email: a.Email, Name: domain.DisplayName("", a.Name, a.Email)},
	}, nil
}

func (b *Backend) SendOTP(_ context.Context, email, purpose string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.enter("send-otp"); err != nil {
		return err
	}
	b.sent = append(b.sent, email+"/"+purpose)
	return nil
}

func (b *Backend) VerifyOTP(_ context.Context, email, otp, purpose string) (json.RawMessage, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.enter("verify-otp"); err != nil {
		return nil, err
	}
	if otp != b.Code {
		return nil, apperr.ErrInvalidChallenge
	}
	if purpose == "activation" {
		if a, ok := b.accounts[email]; ok {
			a.Active = true
		}
	}
	return json.RawMessage(`{"verified":true}`), nil
}

func (b *Backend) Me(_ context.Context, userID, token string) (*domain.Profile, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.enter("me"); err != nil {
		return nil, err
	}
	if b.MeErr != nil {
		return nil, b.MeErr
	}
	for _, a := range b.accounts {
		if a.ID == userID {
			if token != "token-"+a.ID {
				return nil, fmt.Errorf("me: %w", apperr.ErrInvalidCredentials)
			}
			active := a.Active
			return &domain.Profile{
				ID:       a.ID,
				Email:    a.Email,
				FullName: a.FullName,
				Name:     domain.DisplayName(a.FullName, a.Name, a.Email),
				Active:   &active,
			}, nil
		}
	}
	return nil, apperr.ErrAccountNotFound
}

func (b *Backend) AccountStatus(_ context.Context, email string) (*domain.AccountStatus, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.enter("check-account-status"); err != nil {
		return nil, err
	}
	a, ok := b.accounts[email]
	if !ok {
		return &domain.AccountStatus{}, nil
	}
	return &domain.AccountStatus{Exists: true, Active: a.Active}, nil
}
