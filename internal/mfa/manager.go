// Package mfa issues and verifies one-time codes against the identity backend and
// tracks each code's validity window on the client.
package mfa

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"storefront/client/internal/apperr"
	identitydomain "storefront/client/internal/identity/domain"
	"storefront/client/internal/logger"
	"storefront/client/internal/mfa/domain"
	"storefront/client/internal/mfa/repository"
)

// Backend is the minimal identity backend needed by the challenge manager.
type Backend interface {
	AccountStatus(ctx context.Context, email string) (*identitydomain.AccountStatus, error)
	SendOTP(ctx context.Context, email, purpose string) error
	VerifyOTP(ctx context.Context, email, otp, purpose string) (json.RawMessage, error)
}

type throttleKey struct {
	email   string
	purpose domain.Purpose
}

// Manager issues and verifies challenges. At most one challenge per (email,
// purpose) is tracked; issuing again restarts its window.
type Manager struct {
	backend  Backend
	store    repository.Repository
	ttl      time.Duration
	interval time.Duration
	log      *slog.Logger
	nowF     func() time.Time

	mu       sync.Mutex
	limiters map[throttleKey]*rate.Limiter
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock replaces time.Now.
func WithClock(nowF func() time.Time) Option {
	return func(m *Manager) { m.nowF = nowF }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.log = logger.Component(l, "mfa") }
}

// NewManager returns a Manager. ttl <= 0 uses domain.DefaultTTL; resendInterval
// is the minimum spacing between sends per (email, purpose), 0 disables it.
func NewManager(backend Backend, store repository.Repository, ttl, resendInterval time.Duration, opts ...Option) *Manager {
	if ttl <= 0 {
		ttl = domain.DefaultTTL
	}
	m := &Manager{
		backend:  backend,
		store:    store,
		ttl:      ttl,
		interval: resendInterval,
		log:      logger.Component(nil, "mfa"),
		nowF:     time.Now,
		limiters: make(map[throttleKey]*rate.Limiter),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Issue checks the account is eligible for purpose, asks the backend to send a
// code and starts a new window. Returns when the window closes.
func (m *Manager) Issue(ctx context.Context, email string, purpose domain.Purpose) (time.Time, error) {
	email = identitydomain.NormalizeEmail(email)
	if email == "" {
		return time.Time{}, fmt.Errorf("issue: %w", apperr.ErrInvalidCredentials)
	}
	if !purpose.Valid() {
		return time.Time{}, fmt.Errorf("issue: %w", domain.ErrUnknownPurpose)
	}

	reservedAt := m.nowF()
	res, err := m.reserve(email, purpose, reservedAt)
	if err != nil {
		return time.Time{}, err
	}
	sent := false
	defer func() {
		if !sent && res != nil {
			res.CancelAt(reservedAt)
		}
	}()

	if err := m.checkEligible(ctx, email, purpose); err != nil {
		return time.Time{}, err
	}
	if err := m.backend.SendOTP(ctx, email, string(purpose)); err != nil {
		return time.Time{}, fmt.Errorf("issue: %w", err)
	}
	sent = true

	c := domain.Challenge{Email: email, Purpose: purpose, IssuedAt: m.nowF(), TTL: m.ttl}
	m.store.Put(ctx, c)
	m.log.InfoContext(ctx, "challenge issued", "purpose", purpose, "expires_at", c.ExpiresAt())
	return c.ExpiresAt(), nil
}

// Resend is Issue for a challenge the user asked to have sent again.
func (m *Manager) Resend(ctx context.Context, email string, purpose domain.Purpose) (time.Time, error) {
	return m.Issue(ctx, email, purpose)
}

// Verify submits code for the active challenge. With no active challenge, or
// once its window has closed, it fails with apperr.ErrChallengeExpired without
// contacting the backend. A rejected code is apperr.ErrInvalidChallenge. Success
// consumes the challenge and returns the backend payload.
func (m *Manager) Verify(ctx context.Context, email, code string, purpose domain.Purpose) (json.RawMessage, error) {
	email = identitydomain.NormalizeEmail(email)
	c, ok := m.store.Get(ctx, email, purpose)
	if !ok {
		return nil, fmt.Errorf("verify: %w", apperr.ErrChallengeExpired)
	}
	if c.Expired(m.nowF()) {
		m.store.Delete(ctx, email, purpose)
		return nil, fmt.Errorf("verify: %w", apperr.ErrChallengeExpired)
	}
	normalized, ok := NormalizeCode(code)
	if !ok {
		return nil, fmt.Errorf("verify: %w: empty code", apperr.ErrInvalidChallenge)
	}

	data, err := m.backend.VerifyOTP(ctx, email, normalized, string(purpose))
	if err != nil {
		if errors.Is(err, apperr.ErrChallengeExpired) {
			m.store.Delete(ctx, email, purpose)
		}
		m.log.InfoContext(ctx, "challenge rejected", "purpose", purpose, "code", apperr.CodeOf(err))
		return nil, fmt.Errorf("verify: %w", err)
	}
	m.store.Delete(ctx, email, purpose)
	return data, nil
}

// Remaining is the time left on the active challenge, 0 if none.
func (m *Manager) Remaining(email string, purpose domain.Purpose) time.Duration {
	c, ok := m.store.Get(context.Background(), identitydomain.NormalizeEmail(email), purpose)
	if !ok {
		return 0
	}
	return c.Remaining(m.nowF())
}

// Cancel drops the active challenge, if any.
func (m *Manager) Cancel(email string, purpose domain.Purpose) {
	m.store.Delete(context.Background(), identitydomain.NormalizeEmail(email), purpose)
}

func (m *Manager) checkEligible(ctx context.Context, email string, purpose domain.Purpose) error {
	st, err := m.backend.AccountStatus(ctx, email)
	if err != nil {
		return fmt.Errorf("issue: %w", err)
	}
	if !st.Exists {
		return fmt.Errorf("issue: %w", apperr.ErrAccountNotFound)
	}
	switch purpose {
	case domain.PurposeLogin:
		if !st.Active {
			return fmt.Errorf("issue: %w", apperr.ErrAccountInactive)
		}
	case domain.PurposeActivation:
		if st.Active {
			return fmt.Errorf("issue: %w", apperr.ErrAccountAlreadyActive)
		}
	}
	return nil
}

// reserve takes a send slot for (email, purpose). A nil reservation means the
// throttle is off.
func (m *Manager) reserve(email string, purpose domain.Purpose, now time.Time) (*rate.Reservation, error) {
	if m.interval <= 0 {
		return nil, nil
	}
	m.mu.Lock()
	k := throttleKey{email, purpose}
	lim, ok := m.limiters[k]
	if !ok {
		lim = rate.NewLimiter(rate.Every(m.interval), 1)
		m.limiters[k] = lim
	}
	m.mu.Unlock()

	res := lim.ReserveN(now, 1)
	if wait := res.DelayFrom(now); wait > 0 {
		res.CancelAt(now)
		return nil, fmt.Errorf("issue: %w: retry in %s", apperr.ErrResendTooSoon, wait.Round(time.Second))
	}
	return res, nil
}
