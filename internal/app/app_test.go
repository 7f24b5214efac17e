package app

import (
	"context"
	"io"
	"reflect"
	"sync"
	"testing"
	"time"

	"storefront/client/internal/apperr"
	cartdomain "storefront/client/internal/cart/domain"
	"storefront/client/internal/config"
	"storefront/client/internal/identity/identitytest"
	"storefront/client/internal/inactivity"
	"storefront/client/internal/session/domain"
	"storefront/client/internal/storage"
)

type memoryCartBackend struct {
	mu       sync.Mutex
	carts    map[string][]cartdomain.Entry
	fetchErr error
}

func (b *memoryCartBackend) Fetch(_ context.Context, userID string) ([]cartdomain.Entry, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.fetchErr != nil {
		return nil, b.fetchErr
	}
	return cartdomain.Clone(b.carts[userID]), nil
}

func (b *memoryCartBackend) Cart(userID string) []cartdomain.Entry {
	b.mu.Lock()
	defer b.mu.Unlock()
	return cartdomain.Clone(b.carts[userID])
}

func (b *memoryCartBackend) FailFetch(err error) {
	b.mu.Lock()
	b.fetchErr = err
	b.mu.Unlock()
}

func (b *memoryCartBackend) Push(_ context.Context, userID string, entries []cartdomain.Entry) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.carts[userID] = cartdomain.Clone(entries)
	return nil
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	app     *App
	backend *identitytest.Backend
	carts   *memoryCartBackend
	store   *storage.Memory
	clock   *testClock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		backend: identitytest.New(identitytest.Account{ID: "u1", Email: "a@b.com", Password: "Secret1!", FullName: "Ada Byron", Active: true}),
		carts:   &memoryCartBackend{carts: map[string][]cartdomain.Entry{"u1": {{ProductID: "A", Quantity: 1}}}},
		store:   storage.NewMemory(),
		clock:   &testClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)},
	}
	cfg := &config.Config{
		IdentityAPIURL:      "http://identity.invalid",
		CartAPIURL:          "http://cart.invalid",
		StorageBackend:      config.StorageMemory,
		LogLevel:            "error",
		OTPResendInterval:   "0s",
		InactivityWarnAfter: "10m",
		InactivityCountdown: "60s",
	}
	a, err := New(context.Background(), cfg, io.Discard, Deps{
		Identity:       f.backend,
		Cart:           f.carts,
		Store:          f.store,
		MonitorOptions: []inactivity.Option{inactivity.WithClock(f.clock.Now)},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = a.Close(ctx)
	})
	f.app = a
	return f
}

func (f *fixture) login(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	if _, err := f.app.Session.BeginLogin(ctx, "a@b.com", "Secret1!"); err != nil {
		t.Fatalf("BeginLogin: %v", err)
	}
	if _, err := f.app.Session.CompleteLogin(ctx, "123456"); err != nil {
		t.Fatalf("CompleteLogin: %v", err)
	}
}

func TestApp_LoginMergesAndStartsMonitor(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.app.Cart.Add(ctx, "A", 2); err != nil {
		t.Fatalf("guest Add: %v", err)
	}
	if st := f.app.Monitor.State(); st != inactivity.StateIdle {
		t.Fatalf("monitor = %q before login, want idle", st)
	}

	f.login(t)

	if st := f.app.Monitor.State(); st != inactivity.StateActive {
		t.Errorf("monitor = %q after login, want active", st)
	}
	got := f.carts.carts["u1"]
	if len(got) != 1 || got[0].Quantity != 3 {
		t.Errorf("backend cart = %v, want A x3", got)
	}

	if _, err := f.app.Cart.Add(ctx, "B", 1); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if got := f.carts.carts["u1"]; len(got) != 2 {
		t.Errorf("signed-in mutation should push the full cart, got %v", got)
	}
}

func TestApp_EmptyGuestLoginKeepsBackendCart(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.login(t)

	if _, err := f.app.Cart.Add(ctx, "C", 1); err != nil {
		t.Fatalf("Add: %v", err)
	}
	want := []cartdomain.Entry{{ProductID: "A", Quantity: 1}, {ProductID: "C", Quantity: 1}}
	if got := f.carts.Cart("u1"); !reflect.DeepEqual(got, want) {
		t.Errorf("backend cart = %v, want %v", got, want)
	}
}

func TestApp_MergeRetriedAfterFetchFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.app.Cart.Add(ctx, "A", 2); err != nil {
		t.Fatalf("guest Add: %v", err)
	}
	f.carts.FailFetch(apperr.ErrNetwork)

	f.login(t)
	if got := f.carts.Cart("u1"); len(got) != 1 || got[0].Quantity != 1 {
		t.Fatalf("backend cart = %v, want untouched A x1", got)
	}

	f.carts.FailFetch(nil)
	if _, err := f.app.Cart.Add(ctx, "B", 1); err != nil {
		t.Fatalf("Add: %v", err)
	}
	want := []cartdomain.Entry{{ProductID: "A", Quantity: 3}, {ProductID: "B", Quantity: 1}}
	if got := f.carts.Cart("u1"); !reflect.DeepEqual(got, want) {
		t.Errorf("backend cart = %v, want %v", got, want)
	}
	if _, ok, _ := f.store.Get(ctx, storage.KeyCart); ok {
		t.Error("guest cart should have moved to the user")
	}
}

func TestApp_RepeatedLoginsMergeGuestCartOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.app.Cart.Add(ctx, "A", 2); err != nil {
		t.Fatalf("guest Add: %v", err)
	}

	want := []cartdomain.Entry{{ProductID: "A", Quantity: 3}}
	for i := 1; i <= 3; i++ {
		f.login(t)
		if got := f.carts.Cart("u1"); !reflect.DeepEqual(got, want) {
			t.Fatalf("login %d: backend cart = %v, want %v", i, got, want)
		}
		items, err := f.app.Cart.Items(ctx)
		if err != nil {
			t.Fatalf("login %d: Items: %v", i, err)
		}
		if !reflect.DeepEqual(items, want) {
			t.Errorf("login %d: Items = %v, want %v", i, items, want)
		}
		f.app.Logout(ctx, nil)
		if guest, _ := f.app.Cart.Items(ctx); len(guest) != 0 {
			t.Errorf("login %d: guest cart after logout = %v, want empty", i, guest)
		}
	}
}

func TestApp_LogoutStopsMonitor(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.login(t)

	done := 0
	f.app.Logout(ctx, func() { done++ })

	if done != 1 {
		t.Errorf("onComplete calls = %d, want 1", done)
	}
	if st := f.app.Monitor.State(); st != inactivity.StateIdle {
		t.Errorf("monitor = %q, want idle", st)
	}
	if _, ok, _ := f.store.Get(ctx, storage.KeyToken); ok {
		t.Error("token should be cleared")
	}
}

func TestApp_InactivityExpiresSession(t *testing.T) {
	f := newFixture(t)
	f.login(t)

	f.clock.Advance(10 * time.Minute)
	if st := f.app.Monitor.Tick(); st != inactivity.StateWarning {
		t.Fatalf("monitor = %q, want warning", st)
	}
	f.clock.Advance(60 * time.Second)
	f.app.Monitor.Tick()

	st := f.app.Session.State()
	if st.Authenticated() || st.Reason != domain.ReasonExpired {
		t.Errorf("session = %+v, want unauthenticated/expired", st)
	}
	if ms := f.app.Monitor.State(); ms != inactivity.StateIdle {
		t.Errorf("monitor = %q, want idle after teardown", ms)
	}
}

func TestApp_RestoredSessionStartsMonitor(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_ = f.store.Set(ctx, storage.KeyToken, "token-u1")
	_ = f.store.Set(ctx, storage.KeyUser, `{"id":"u1","email":"a@b.com"}`)

	if _, ok := f.app.Session.LoadFromStorage(ctx); !ok {
		t.Fatal("LoadFromStorage should restore the session")
	}
	if st := f.app.Monitor.State(); st != inactivity.StateActive {
		t.Errorf("monitor = %q, want active", st)
	}
}

func TestProducers(t *testing.T) {
	if got := producers(&config.Config{}); len(got) != 0 {
		t.Errorf("producers without brokers = %d, want 0", len(got))
	}
	cfg := &config.Config{KafkaBrokers: "localhost:9092", SessionEventsTopic: "events"}
	got := producers(cfg)
	if len(got) != 1 {
		t.Fatalf("producers = %d, want 1", len(got))
	}
	if err := got[0].Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}
