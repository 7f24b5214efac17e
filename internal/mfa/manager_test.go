package mfa

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"storefront/client/internal/apperr"
	"storefront/client/internal/identity/identitytest"
	"storefront/client/internal/mfa/domain"
	"storefront/client/internal/mfa/repository"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func newTestManager(t *testing.T, interval time.Duration) (*Manager, *identitytest.Backend, *fakeClock) {
	t.Helper()
	backend := identitytest.New(
		identitytest.Account{ID: "u1", Email: "a@b.com", Password: "Secret1!", Active: true},
		identitytest.Account{ID: "u2", Email: "new@b.com", Password: "Secret1!"},
	)
	clock := &fakeClock{now: t0}
	m := NewManager(backend, repository.NewMemoryStore(), domain.DefaultTTL, interval, WithClock(clock.Now))
	return m, backend, clock
}

func TestIssue_ReturnsLocalExpiry(t *testing.T) {
	m, backend, _ := newTestManager(t, 0)

	exp, err := m.Issue(context.Background(), "A@B.com", domain.PurposeLogin)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if !exp.Equal(t0.Add(300 * time.Second)) {
		t.Errorf("expiry = %v, want t0+300s", exp)
	}
	if got := backend.Sent(); len(got) != 1 || got[0] != "a@b.com/login" {
		t.Errorf("sent = %v, want [a@b.com/login]", got)
	}
	if got := m.Remaining("a@b.com", domain.PurposeLogin); got != 300*time.Second {
		t.Errorf("Remaining = %v, want 300s", got)
	}
}

func TestIssue_Eligibility(t *testing.T) {
	cases := []struct {
		name    string
		email   string
		purpose domain.Purpose
		want    error
	}{
		{"login inactive", "new@b.com", domain.PurposeLogin, apperr.ErrAccountInactive},
		{"login unknown", "who@b.com", domain.PurposeLogin, apperr.ErrAccountNotFound},
		{"activation active", "a@b.com", domain.PurposeActivation, apperr.ErrAccountAlreadyActive},
		{"activation inactive", "new@b.com", domain.PurposeActivation, nil},
		{"reset active", "a@b.com", domain.PurposePasswordReset, nil},
		{"reset unknown", "who@b.com", domain.PurposePasswordReset, apperr.ErrAccountNotFound},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			m, backend, _ := newTestManager(t, 0)
			_, err := m.Issue(context.Background(), c.email, c.purpose)
			if c.want == nil {
				if err != nil {
					t.Fatalf("Issue: %v", err)
				}
				return
			}
			if !errors.Is(err, c.want) {
				t.Errorf("Issue err = %v, want %v", err, c.want)
			}
			if n := backend.Calls("send-otp"); n != 0 {
				t.Errorf("send-otp calls = %d, want 0", n)
			}
		})
	}
}

func TestVerify_ExpiredWithoutNetwork(t *testing.T) {
	m, backend, clock := newTestManager(t, 0)
	ctx := context.Background()
	if _, err := m.Issue(ctx, "a@b.com", domain.PurposeLogin); err != nil {
		t.Fatalf("Issue: %v", err)
	}

	clock.Set(t0.Add(301 * time.Second))
	_, err := m.Verify(ctx, "a@b.com", "123456", domain.PurposeLogin)
	if !errors.Is(err, apperr.ErrChallengeExpired) {
		t.Fatalf("Verify err = %v, want ErrChallengeExpired", err)
	}
	if n := backend.Calls("verify-otp"); n != 0 {
		t.Errorf("verify-otp calls = %d, want 0", n)
	}
	if got := m.Remaining("a@b.com", domain.PurposeLogin); got != 0 {
		t.Errorf("Remaining = %v, want 0", got)
	}
}

func TestVerify_NoChallengeIsExpired(t *testing.T) {
	m, backend, _ := newTestManager(t, 0)
	_, err := m.Verify(context.Background(), "a@b.com", "123456", domain.PurposeLogin)
	if !errors.Is(err, apperr.ErrChallengeExpired) {
		t.Errorf("Verify err = %v, want ErrChallengeExpired", err)
	}
	if backend.Calls("verify-otp") != 0 {
		t.Error("verify without a challenge should not reach the backend")
	}
}

func TestResend_ResetsWindow(t *testing.T) {
	m, _, clock := newTestManager(t, 30*time.Second)
	ctx := context.Background()
	if _, err := m.Issue(ctx, "a@b.com", domain.PurposeLogin); err != nil {
		t.Fatalf("Issue: %v", err)
	}

	clock.Set(t0.Add(200 * time.Second))
	exp, err := m.Resend(ctx, "a@b.com", domain.PurposeLogin)
	if err != nil {
		t.Fatalf("Resend: %v", err)
	}
	if !exp.Equal(t0.Add(500 * time.Second)) {
		t.Errorf("expiry after resend = %v, want t0+500s", exp)
	}

	clock.Set(t0.Add(250 * time.Second))
	if _, err := m.Verify(ctx, "a@b.com", "123456", domain.PurposeLogin); err != nil {
		t.Fatalf("Verify at t0+250s: %v", err)
	}
	if _, err := m.Verify(ctx, "a@b.com", "123456", domain.PurposeLogin); !errors.Is(err, apperr.ErrChallengeExpired) {
		t.Errorf("second Verify = %v, want ErrChallengeExpired (consumed)", err)
	}
}

func TestResend_WindowOutlivesOriginal(t *testing.T) {
	m, _, clock := newTestManager(t, 0)
	ctx := context.Background()
	_, _ = m.Issue(ctx, "a@b.com", domain.PurposeLogin)

	clock.Set(t0.Add(200 * time.Second))
	_, _ = m.Resend(ctx, "a@b.com", domain.PurposeLogin)

	clock.Set(t0.Add(350 * time.Second))
	if _, err := m.Verify(ctx, "a@b.com", "123456", domain.PurposeLogin); err != nil {
		t.Errorf("Verify at t0+350s after resend: %v", err)
	}
}

func TestVerify_InvalidCode(t *testing.T) {
	m, backend, _ := newTestManager(t, 0)
	ctx := context.Background()
	_, _ = m.Issue(ctx, "a@b.com", domain.PurposeLogin)

	if _, err := m.Verify(ctx, "a@b.com", " - ", domain.PurposeLogin); !errors.Is(err, apperr.ErrInvalidChallenge) {
		t.Errorf("empty code: want ErrInvalidChallenge, got %v", err)
	}
	if backend.Calls("verify-otp") != 0 {
		t.Error("empty code should not reach the backend")
	}

	if _, err := m.Verify(ctx, "a@b.com", "12ab", domain.PurposeLogin); !errors.Is(err, apperr.ErrInvalidChallenge) {
		t.Errorf("short code: want ErrInvalidChallenge, got %v", err)
	}
	if n := backend.Calls("verify-otp"); n != 1 {
		t.Errorf("verify-otp calls = %d, want 1: the backend judges every non-empty code", n)
	}

	if _, err := m.Verify(ctx, "a@b.com", "000000", domain.PurposeLogin); !errors.Is(err, apperr.ErrInvalidChallenge) {
		t.Errorf("wrong code: want ErrInvalidChallenge, got %v", err)
	}
	if _, err := m.Verify(ctx, "a@b.com", "123 456", domain.PurposeLogin); err != nil {
		t.Errorf("challenge should survive a wrong code: %v", err)
	}
}

func TestVerify_CodeFormatIsBackendDefined(t *testing.T) {
	m, backend, _ := newTestManager(t, 0)
	backend.Code = "AB12CD34"
	ctx := context.Background()
	_, _ = m.Issue(ctx, "a@b.com", domain.PurposeLogin)

	if _, err := m.Verify(ctx, "a@b.com", "AB12-CD34", domain.PurposeLogin); err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if rem := m.Remaining("a@b.com", domain.PurposeLogin); rem != 0 {
		t.Errorf("Remaining = %v, want 0 after a consumed challenge", rem)
	}
}

func TestIssue_Throttle(t *testing.T) {
	m, backend, clock := newTestManager(t, 30*time.Second)
	ctx := context.Background()
	if _, err := m.Issue(ctx, "a@b.com", domain.PurposeLogin); err != nil {
		t.Fatalf("Issue: %v", err)
	}

	clock.Set(t0.Add(10 * time.Second))
	if _, err := m.Resend(ctx, "a@b.com", domain.PurposeLogin); !errors.Is(err, apperr.ErrResendTooSoon) {
		t.Fatalf("Resend at +10s = %v, want ErrResendTooSoon", err)
	}
	if n := backend.Calls("send-otp"); n != 1 {
		t.Errorf("send-otp calls = %d, want 1", n)
	}
	if _, err := m.Issue(ctx, "a@b.com", domain.PurposePasswordReset); err != nil {
		t.Errorf("other purposes are throttled separately: %v", err)
	}

	clock.Set(t0.Add(31 * time.Second))
	if _, err := m.Resend(ctx, "a@b.com", domain.PurposeLogin); err != nil {
		t.Errorf("Resend at +31s: %v", err)
	}
}

func TestIssue_FailedSendDoesNotConsumeThrottle(t *testing.T) {
	m, backend, _ := newTestManager(t, 30*time.Second)
	ctx := context.Background()

	backend.Err = apperr.ErrNetwork
	if _, err := m.Issue(ctx, "a@b.com", domain.PurposeLogin); !errors.Is(err, apperr.ErrNetwork) {
		t.Fatalf("Issue = %v, want ErrNetwork", err)
	}
	backend.Err = nil
	if _, err := m.Issue(ctx, "a@b.com", domain.PurposeLogin); err != nil {
		t.Errorf("retry after a network failure should not be throttled: %v", err)
	}
}

func TestCancel(t *testing.T) {
	m, _, _ := newTestManager(t, 0)
	ctx := context.Background()
	_, _ = m.Issue(ctx, "a@b.com", domain.PurposeLogin)
	m.Cancel("a@b.com", domain.PurposeLogin)

	if _, err := m.Verify(ctx, "a@b.com", "123456", domain.PurposeLogin); !errors.Is(err, apperr.ErrChallengeExpired) {
		t.Errorf("Verify after Cancel = %v, want ErrChallengeExpired", err)
	}
}
