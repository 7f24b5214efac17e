// Package service owns the authenticated session: the OTP-gated login flow,
// persistence, profile refresh and teardown.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"storefront/client/internal/apperr"
	identitydomain "storefront/client/internal/identity/domain"
	identityrepo "storefront/client/internal/identity/repository"
	"storefront/client/internal/logger"
	mfadomain "storefront/client/internal/mfa/domain"
	"storefront/client/internal/security"
	"storefront/client/internal/session/domain"
	"storefront/client/internal/session/repository"
	"storefront/client/internal/telemetry"
	telemetrydomain "storefront/client/internal/telemetry/domain"
)

// ErrAlreadyAuthenticated is returned by BeginLogin while a session is established.
var ErrAlreadyAuthenticated = errors.New("already signed in")

// Validator is the minimal credential check needed by the session manager.
type Validator interface {
	Validate(ctx context.Context, email, password string) error
}

// Challenger is the minimal challenge manager needed by the session manager.
type Challenger interface {
	Issue(ctx context.Context, email string, purpose mfadomain.Purpose) (time.Time, error)
	Verify(ctx context.Context, email, code string, purpose mfadomain.Purpose) (json.RawMessage, error)
	Cancel(email string, purpose mfadomain.Purpose)
}

// IdentityBackend is the minimal identity backend needed by the session manager.
type IdentityBackend interface {
	Login(ctx context.Context, email, password string) (*identityrepo.LoginResult, error)
	Me(ctx context.Context, userID, token string) (*identitydomain.Profile, error)
}

// Merger folds guest-scoped data into the user's collections.
type Merger interface {
	Merge(ctx context.Context, userID string) error
}

// Manager is the session state machine: Unauthenticated, PendingChallenge,
// Authenticated. Its mutex is never held across backend or storage calls; every
// path that completes a call re-checks the generation it started with and drops
// its result if a teardown happened in between.
type Manager struct {
	validator  Validator
	challenges Challenger
	backend    IdentityBackend
	repo       repository.Repository
	merger     Merger
	events     telemetry.EventEmitter
	metrics    *telemetry.Metrics
	log        *slog.Logger
	nowF       func() time.Time

	refresh singleflight.Group
	bg      sync.WaitGroup

	// saveMu orders session writes against teardown's clear.
	saveMu sync.Mutex

	mu           sync.Mutex
	status       domain.Status
	session      *domain.Session
	pending      identitydomain.Credential
	challengeExp time.Time
	generation   uint64
	merged       bool
	reason       domain.Reason
	subs         map[int]func(domain.AuthState)
	nextSub      int
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock replaces time.Now.
func WithClock(nowF func() time.Time) Option {
	return func(m *Manager) { m.nowF = nowF }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.log = logger.Component(l, "session") }
}

// WithEvents sets the lifecycle event sink.
func WithEvents(e telemetry.EventEmitter) Option {
	return func(m *Manager) { m.events = e }
}

// WithMetrics sets the lifecycle counters.
func WithMetrics(mt *telemetry.Metrics) Option {
	return func(m *Manager) { m.metrics = mt }
}

// NewManager returns a Manager in the Unauthenticated state.
func NewManager(validator Validator, challenges Challenger, backend IdentityBackend, repo repository.Repository, merger Merger, opts ...Option) *Manager {
	m := &Manager{
		validator:  validator,
		challenges: challenges,
		backend:    backend,
		repo:       repo,
		merger:     merger,
		log:        logger.Component(nil, "session"),
		nowF:       time.Now,
		status:     domain.StatusUnauthenticated,
		subs:       make(map[int]func(domain.AuthState)),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// BeginLogin validates the credentials and issues a login challenge. On success
// the manager is PendingChallenge and holds the credential in memory until the
// login completes or is abandoned.
func (m *Manager) BeginLogin(ctx context.Context, email, password string) (time.Time, error) {
	cred := identitydomain.NewCredential(email, password)

	m.mu.Lock()
	if m.status == domain.StatusAuthenticated {
		m.mu.Unlock()
		return time.Time{}, ErrAlreadyAuthenticated
	}
	gen := m.generation
	prev := m.pending.Email
	m.mu.Unlock()

	if err := m.validator.Validate(ctx, cred.Email, cred.Password); err != nil {
		m.metrics.Login(ctx, string(apperr.CodeOf(err)))
		return time.Time{}, err
	}
	exp, err := m.challenges.Issue(ctx, cred.Email, mfadomain.PurposeLogin)
	if err != nil {
		m.metrics.Login(ctx, string(apperr.CodeOf(err)))
		return time.Time{}, err
	}

	m.mu.Lock()
	if m.generation != gen || m.status == domain.StatusAuthenticated {
		m.mu.Unlock()
		m.challenges.Cancel(cred.Email, mfadomain.PurposeLogin)
		return time.Time{}, apperr.ErrStaleSession
	}
	m.pending.Zero()
	m.pending = cred
	m.challengeExp = exp
	m.status = domain.StatusPendingChallenge
	m.reason = domain.ReasonNone
	m.mu.Unlock()

	if prev != "" && prev != cred.Email {
		m.challenges.Cancel(prev, mfadomain.PurposeLogin)
	}
	m.publish()
	return exp, nil
}

// ResendChallenge issues a fresh login code for the pending login.
func (m *Manager) ResendChallenge(ctx context.Context) (time.Time, error) {
	m.mu.Lock()
	if m.status != domain.StatusPendingChallenge {
		m.mu.Unlock()
		return time.Time{}, apperr.ErrNotPending
	}
	email, gen := m.pending.Email, m.generation
	m.mu.Unlock()

	exp, err := m.challenges.Issue(ctx, email, mfadomain.PurposeLogin)
	if err != nil {
		return time.Time{}, err
	}

	m.mu.Lock()
	if m.generation != gen || m.status != domain.StatusPendingChallenge {
		m.mu.Unlock()
		return time.Time{}, apperr.ErrStaleSession
	}
	m.challengeExp = exp
	m.mu.Unlock()
	m.publish()
	return exp, nil
}

// CompleteLogin verifies code and, on success, re-presents the held credential
// to establish the session. An expired challenge ends the pending login; a
// rejected code leaves it pending so the user can try again.
func (m *Manager) CompleteLogin(ctx context.Context, code string) (*domain.Session, error) {
	m.mu.Lock()
	if m.status != domain.StatusPendingChallenge {
		m.mu.Unlock()
		return nil, apperr.ErrNotPending
	}
	cred, gen := m.pending, m.generation
	m.mu.Unlock()

	if _, err := m.challenges.Verify(ctx, cred.Email, code, mfadomain.PurposeLogin); err != nil {
		if errors.Is(err, apperr.ErrChallengeExpired) {
			m.abandonPending(gen, domain.ReasonChallenge)
		}
		m.metrics.Login(ctx, string(apperr.CodeOf(err)))
		return nil, err
	}

	s, err := m.Establish(ctx, cred.Email, cred.Password)
	if err != nil && !errors.Is(err, apperr.ErrStaleSession) {
		m.abandonPending(gen, domain.ReasonNone)
	}
	return s, err
}

// CancelLogin abandons a pending login.
func (m *Manager) CancelLogin() {
	m.mu.Lock()
	gen := m.generation
	m.mu.Unlock()
	m.abandonPending(gen, domain.ReasonCancelled)
}

func (m *Manager) abandonPending(gen uint64, reason domain.Reason) {
	m.mu.Lock()
	if m.generation != gen || m.status != domain.StatusPendingChallenge {
		m.mu.Unlock()
		return
	}
	email := m.pending.Email
	m.pending.Zero()
	m.challengeExp = time.Time{}
	m.status = domain.StatusUnauthenticated
	m.reason = reason
	m.mu.Unlock()

	m.challenges.Cancel(email, mfadomain.PurposeLogin)
	m.publish()
}

// Establish logs in, completes the profile, persists the session and runs the
// guest merge once before returning. A failed profile fetch falls back to the
// user object from the login response. Merge failures are logged, not returned.
func (m *Manager) Establish(ctx context.Context, email, password string) (*domain.Session, error) {
	cred := identitydomain.NewCredential(email, password)
	defer cred.Zero()

	m.mu.Lock()
	gen := m.generation
	m.mu.Unlock()

	res, err := m.backend.Login(ctx, cred.Email, cred.Password)
	if err != nil {
		m.metrics.Login(ctx, string(apperr.CodeOf(err)))
		return nil, fmt.Errorf("establish: %w", err)
	}
	profile := res.User
	if me, err := m.backend.Me(ctx, res.User.ID, res.Token); err != nil {
		m.log.WarnContext(ctx, "profile completion failed, using login user", "user_id", res.User.ID, "error", err)
	} else {
		profile = completeProfile(res.User, me)
	}
	s := &domain.Session{Token: res.Token, Profile: profile, EstablishedAt: m.nowF()}

	if err := m.persist(gen, func() error { return m.repo.Save(ctx, s) }); err != nil {
		if errors.Is(err, apperr.ErrStaleSession) {
			return nil, err
		}
		return nil, fmt.Errorf("establish: %w", err)
	}

	m.mu.Lock()
	if m.generation != gen {
		m.mu.Unlock()
		return nil, apperr.ErrStaleSession
	}
	m.pending.Zero()
	m.challengeExp = time.Time{}
	m.session = s
	m.status = domain.StatusAuthenticated
	m.reason = domain.ReasonNone
	runMerge := !m.merged
	m.merged = true
	m.mu.Unlock()

	m.log.InfoContext(ctx, "session established", "user_id", profile.ID, "token", security.Fingerprint(s.Token))
	m.metrics.Login(ctx, "")
	m.emit(ctx, telemetrydomain.EventLogin, profile.ID, s.Token)

	if runMerge && m.merger != nil {
		ev := telemetrydomain.NewSessionEvent(telemetrydomain.EventMerge, profile.ID, m.nowF())
		if err := m.merger.Merge(ctx, profile.ID); err != nil {
			m.log.WarnContext(ctx, "guest merge failed", "user_id", profile.ID, "error", err)
			ev.With("result", "failed")
		} else {
			ev.With("result", "ok")
		}
		m.send(ctx, ev)
	}

	m.publish()
	return cloneSession(s), nil
}

// LoadFromStorage restores a persisted session. Incomplete or undecodable state
// and tokens whose exp has passed are purged and reported as no session. A
// restored session gets a background profile refresh.
func (m *Manager) LoadFromStorage(ctx context.Context) (*domain.Session, bool) {
	s, err := m.repo.Load(ctx)
	switch {
	case errors.Is(err, apperr.ErrStorageCorruption):
		m.log.WarnContext(ctx, "purging unreadable session", "error", err)
		m.purge(ctx, "", domain.ReasonCorrupted)
		return nil, false
	case err != nil:
		m.log.ErrorContext(ctx, "load session failed", "error", err)
		return nil, false
	case s == nil:
		return nil, false
	}
	if security.TokenExpired(s.Token, m.nowF()) {
		m.log.InfoContext(ctx, "purging expired session", "user_id", s.Profile.ID, "token", security.Fingerprint(s.Token))
		m.purge(ctx, s.Profile.ID, domain.ReasonExpired)
		return nil, false
	}

	m.mu.Lock()
	if m.status == domain.StatusAuthenticated {
		m.mu.Unlock()
		return m.Session()
	}
	m.session = s
	m.status = domain.StatusAuthenticated
	m.reason = domain.ReasonNone
	m.merged = true
	m.mu.Unlock()
	m.publish()

	m.bg.Add(1)
	go func() {
		defer m.bg.Done()
		if err := m.RefreshProfile(context.WithoutCancel(ctx)); err != nil {
			m.log.Warn("background profile refresh failed", "error", err)
		}
	}()
	return cloneSession(s), true
}

func (m *Manager) purge(ctx context.Context, userID string, reason domain.Reason) {
	m.saveMu.Lock()
	err := m.repo.Clear(ctx, userID)
	m.saveMu.Unlock()
	if err != nil {
		m.log.ErrorContext(ctx, "purge session failed", "error", err)
	}
	typ := telemetrydomain.EventStorageCorrupted
	if reason == domain.ReasonExpired {
		typ = telemetrydomain.EventExpired
	}
	m.emit(ctx, typ, userID, "")
	m.mu.Lock()
	if m.status != domain.StatusAuthenticated {
		m.reason = reason
	}
	m.mu.Unlock()
}

// RefreshProfile re-fetches the profile. Concurrent callers share one request;
// the result is applied only if the session is unchanged.
func (m *Manager) RefreshProfile(ctx context.Context) error {
	m.mu.Lock()
	if m.session == nil {
		m.mu.Unlock()
		return apperr.ErrNoSession
	}
	gen, token, base := m.generation, m.session.Token, m.session.Profile.Clone()
	m.mu.Unlock()

	v, err, _ := m.refresh.Do(strconv.FormatUint(gen, 10), func() (any, error) {
		return m.backend.Me(ctx, base.ID, token)
	})
	if err != nil {
		return fmt.Errorf("refresh profile: %w", err)
	}
	profile := completeProfile(base, v.(*identitydomain.Profile))

	m.mu.Lock()
	if m.generation != gen || m.session == nil {
		m.mu.Unlock()
		return apperr.ErrStaleSession
	}
	m.session.Profile = profile
	m.mu.Unlock()

	if err := m.persist(gen, func() error { return m.repo.SaveProfile(ctx, profile) }); err != nil {
		return fmt.Errorf("refresh profile: %w", err)
	}
	m.publish()
	return nil
}

// UpdateProfile merges patch into the current profile and persists it
// immediately. The backend is not contacted.
func (m *Manager) UpdateProfile(ctx context.Context, patch identitydomain.ProfilePatch) error {
	m.mu.Lock()
	if m.session == nil {
		m.mu.Unlock()
		return apperr.ErrNoSession
	}
	profile := m.session.Profile.Apply(patch)
	m.session.Profile = profile
	gen := m.generation
	m.mu.Unlock()

	if err := m.persist(gen, func() error { return m.repo.SaveProfile(ctx, profile) }); err != nil {
		return fmt.Errorf("update profile: %w", err)
	}
	m.publish()
	return nil
}

// ApplyServerProfile replaces the profile with an authoritative copy from the
// settings flow. If that copy shows the account deactivated, the caller follows
// up with AccountDeactivated.
func (m *Manager) ApplyServerProfile(ctx context.Context, p identitydomain.Profile) error {
	m.mu.Lock()
	if m.session == nil {
		m.mu.Unlock()
		return apperr.ErrNoSession
	}
	if p.ID != "" && p.ID != m.session.Profile.ID {
		m.mu.Unlock()
		return fmt.Errorf("apply profile: %w: profile belongs to another user", apperr.ErrStaleSession)
	}
	profile := completeProfile(m.session.Profile, &p)
	m.session.Profile = profile
	gen := m.generation
	m.mu.Unlock()

	if err := m.persist(gen, func() error { return m.repo.SaveProfile(ctx, profile) }); err != nil {
		return fmt.Errorf("apply profile: %w", err)
	}
	m.publish()
	return nil
}

// Teardown ends the session (logout): it clears the token, the profile and the
// departing user's device cart and wishlist, then calls onComplete exactly once.
// Safe without a session.
func (m *Manager) Teardown(ctx context.Context, onComplete func()) {
	m.teardown(ctx, domain.ReasonLogout, onComplete)
}

// Expire is Teardown triggered by inactivity.
func (m *Manager) Expire(ctx context.Context, onComplete func()) {
	m.metrics.Expiry(ctx)
	m.teardown(ctx, domain.ReasonExpired, onComplete)
}

// AccountDeactivated consumes the external deactivation signal: the session is
// torn down and the published reason lets the host offer reactivation.
func (m *Manager) AccountDeactivated(ctx context.Context, onComplete func()) {
	m.teardown(ctx, domain.ReasonDeactivated, onComplete)
}

func (m *Manager) teardown(ctx context.Context, reason domain.Reason, onComplete func()) {
	m.mu.Lock()
	var userID, token string
	if m.session != nil {
		userID, token = m.session.Profile.ID, m.session.Token
	}
	pendingEmail := m.pending.Email
	m.pending.Zero()
	m.challengeExp = time.Time{}
	m.session = nil
	m.generation++
	m.merged = false
	m.status = domain.StatusUnauthenticated
	m.reason = reason
	m.mu.Unlock()

	if pendingEmail != "" {
		m.challenges.Cancel(pendingEmail, mfadomain.PurposeLogin)
	}
	m.saveMu.Lock()
	err := m.repo.Clear(ctx, userID)
	m.saveMu.Unlock()
	if err != nil {
		m.log.ErrorContext(ctx, "clear session storage failed", "user_id", userID, "error", err)
	}
	if userID != "" {
		m.log.InfoContext(ctx, "session ended", "user_id", userID, "reason", reason, "token", security.Fingerprint(token))
		m.metrics.Logout(ctx, string(reason))
		m.emit(ctx, eventFor(reason), userID, token)
	}
	m.publish()
	if onComplete != nil {
		onComplete()
	}
}

// State returns a snapshot of the authentication state.
func (m *Manager) State() domain.AuthState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stateLocked()
}

// Session returns a copy of the current session.
func (m *Manager) Session() (*domain.Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return nil, false
	}
	return cloneSession(m.session), true
}

// Subscribe registers fn for state changes and returns its unsubscribe func.
// fn runs on the goroutine that changed the state and must not block.
func (m *Manager) Subscribe(fn func(domain.AuthState)) (unsubscribe func()) {
	m.mu.Lock()
	id := m.nextSub
	m.nextSub++
	m.subs[id] = fn
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.subs, id)
			m.mu.Unlock()
		})
	}
}

// Wait blocks until background work started by LoadFromStorage is done.
func (m *Manager) Wait() {
	m.bg.Wait()
}

// persist runs write unless a teardown has happened since gen. A teardown
// that starts during write clears after it.
func (m *Manager) persist(gen uint64, write func() error) error {
	m.saveMu.Lock()
	defer m.saveMu.Unlock()
	if m.stale(gen) {
		return apperr.ErrStaleSession
	}
	return write()
}

func (m *Manager) stale(gen uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.generation != gen
}

func (m *Manager) stateLocked() domain.AuthState {
	st := domain.AuthState{
		Status:       m.status,
		PendingEmail: m.pending.Email,
		Generation:   m.generation,
		Reason:       m.reason,
	}
	if m.status == domain.StatusPendingChallenge {
		st.ChallengeExpiresAt = m.challengeExp
	}
	if m.session != nil {
		p := m.session.Profile.Clone()
		st.Profile = &p
	}
	return st
}

func (m *Manager) publish() {
	m.mu.Lock()
	st := m.stateLocked()
	subs := make([]func(domain.AuthState), 0, len(m.subs))
	for _, fn := range m.subs {
		subs = append(subs, fn)
	}
	m.mu.Unlock()
	for _, fn := range subs {
		fn(st)
	}
}

func (m *Manager) emit(ctx context.Context, typ telemetrydomain.EventType, userID, token string) {
	ev := telemetrydomain.NewSessionEvent(typ, userID, m.nowF())
	ev.TokenFingerprint = security.Fingerprint(token)
	m.send(ctx, ev)
}

func (m *Manager) send(ctx context.Context, ev *telemetrydomain.SessionEvent) {
	if m.events == nil {
		return
	}
	if err := m.events.Emit(ctx, ev); err != nil {
		m.log.WarnContext(ctx, "emit session event failed", "event_type", ev.Type, "error", err)
	}
}

func eventFor(reason domain.Reason) telemetrydomain.EventType {
	switch reason {
	case domain.ReasonExpired:
		return telemetrydomain.EventExpired
	case domain.ReasonDeactivated:
		return telemetrydomain.EventDeactivated
	default:
		return telemetrydomain.EventLogout
	}
}

// completeProfile overlays a fetched profile on base, keeping base's id and
// filling fields the fetch left empty. The display name is re-resolved.
func completeProfile(base identitydomain.Profile, fetched *identitydomain.Profile) identitydomain.Profile {
	out := fetched.Clone()
	out.ID = base.ID
	if out.Email == "" {
		out.Email = base.Email
	}
	if out.FullName == "" {
		out.FullName = base.FullName
	}
	if out.Phone == "" {
		out.Phone = base.Phone
	}
	if out.Address == "" {
		out.Address = base.Address
	}
	if out.Role == "" {
		out.Role = base.Role
	}
	if out.Active == nil && base.Active != nil {
		v := *base.Active
		out.Active = &v
	}
	if out.Preferences == nil && base.Preferences != nil {
		out.Preferences = base.Clone().Preferences
	}
	name := out.Name
	if name == out.Email {
		name = ""
	}
	if name == "" {
		name = base.Name
	}
	out.Name = identitydomain.DisplayName(out.FullName, name, out.Email)
	return out
}

func cloneSession(s *domain.Session) *domain.Session {
	if s == nil {
		return nil
	}
	out := *s
	out.Profile = s.Profile.Clone()
	return &out
}
