package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"sync"
	"testing"

	"storefront/client/internal/apperr"
	cartdomain "storefront/client/internal/cart/domain"
	cartrepo "storefront/client/internal/cart/repository"
	"storefront/client/internal/storage"
	telemetrydomain "storefront/client/internal/telemetry/domain"
	wishlistrepo "storefront/client/internal/wishlist/repository"
)

type fakeBackend struct {
	mu       sync.Mutex
	carts    map[string][]cartdomain.Entry
	fetches  int
	pushes   int
	pushErr  error
	fetchErr error
}

func (f *fakeBackend) Fetch(_ context.Context, userID string) ([]cartdomain.Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches++
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return cartdomain.Clone(f.carts[userID]), nil
}

func (f *fakeBackend) Push(_ context.Context, userID string, entries []cartdomain.Entry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pushes++
	if f.pushErr != nil {
		return f.pushErr
	}
	f.carts[userID] = cartdomain.Clone(entries)
	return nil
}

type dirtyFlag struct{ dirty bool }

func (d *dirtyFlag) MarkDirty() { d.dirty = true }

type eventLog struct {
	mu     sync.Mutex
	events []*telemetrydomain.SessionEvent
}

func (e *eventLog) Emit(_ context.Context, ev *telemetrydomain.SessionEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, ev)
	return nil
}

func newTestReconciler(t *testing.T) (*Reconciler, *storage.Memory, *fakeBackend, *dirtyFlag, *eventLog) {
	t.Helper()
	store := storage.NewMemory()
	backend := &fakeBackend{carts: map[string][]cartdomain.Entry{}}
	dirty := &dirtyFlag{}
	events := &eventLog{}
	r := NewReconciler(cartrepo.NewLocal(store), backend, wishlistrepo.NewLocal(store), dirty, events, nil, nil)
	return r, store, backend, dirty, events
}

func TestMerge_CartAndWishlist(t *testing.T) {
	r, store, backend, dirty, _ := newTestReconciler(t)
	ctx := context.Background()
	_ = store.Set(ctx, storage.KeyCart, `[{"productId":"A","quantity":2}]`)
	_ = store.Set(ctx, storage.KeyWishlist, `[{"productId":"W1","product":{"name":"mug"}}]`)
	_ = store.Set(ctx, storage.UserWishlistKey("u1"), `[{"productId":"W0"}]`)
	backend.carts["u1"] = []cartdomain.Entry{{ProductID: "A", Quantity: 1}, {ProductID: "B", Quantity: 3}}

	if err := r.Merge(ctx, "u1"); err != nil {
		t.Fatalf("Merge: %v", err)
	}

	want := []cartdomain.Entry{{ProductID: "A", Quantity: 3}, {ProductID: "B", Quantity: 3}}
	if got := backend.carts["u1"]; !reflect.DeepEqual(got, want) {
		t.Errorf("pushed cart = %v, want %v", got, want)
	}
	local, ok, _ := cartrepo.NewLocal(store).LoadUser(ctx, "u1")
	if !ok || !reflect.DeepEqual(local, want) {
		t.Errorf("user device cart = %v, want %v", local, want)
	}
	if _, ok, _ := store.Get(ctx, storage.KeyCart); ok {
		t.Error("merged guest cart should leave guest scope")
	}
	wl, _ := wishlistrepo.NewLocal(store).LoadUser(ctx, "u1")
	if len(wl) != 2 || wl[0].ProductID != "W0" || wl[1].ProductID != "W1" {
		t.Errorf("user wishlist = %v, want [W0 W1]", wl)
	}
	if guest, ok, _ := store.Get(ctx, storage.KeyWishlist); !ok || guest == "" {
		t.Error("guest wishlist must not be deleted")
	}
	if dirty.dirty {
		t.Error("cart should not be dirty after a successful push")
	}
}

func TestMerge_EmptyGuestWritesNothing(t *testing.T) {
	r, store, backend, _, _ := newTestReconciler(t)
	ctx := context.Background()

	if err := r.Merge(ctx, "u1"); err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if backend.fetches != 0 || backend.pushes != 0 {
		t.Errorf("backend calls = %d fetch, %d push, want none", backend.fetches, backend.pushes)
	}
	if keys := store.Keys(); len(keys) != 0 {
		t.Errorf("keys = %v, want no writes", keys)
	}
}

func TestMerge_PushFailureMarksDirty(t *testing.T) {
	r, store, backend, dirty, events := newTestReconciler(t)
	ctx := context.Background()
	_ = store.Set(ctx, storage.KeyCart, `[{"productId":"A","quantity":1}]`)
	backend.pushErr = apperr.ErrNetwork

	if err := r.Merge(ctx, "u1"); err != nil {
		t.Fatalf("push failure should not fail the merge: %v", err)
	}
	if !dirty.dirty {
		t.Error("cart should be marked dirty")
	}
	if len(events.events) != 1 || events.events[0].Type != telemetrydomain.EventMergePushFailed {
		t.Errorf("events = %v, want one merge_push_failed", events.events)
	}
	local, ok, _ := cartrepo.NewLocal(store).LoadUser(ctx, "u1")
	if !ok || len(local) != 1 || local[0].ProductID != "A" {
		t.Errorf("user device cart = %v, want merged result kept", local)
	}
}

func TestMerge_FetchFailureKeepsGuestCart(t *testing.T) {
	r, store, backend, _, _ := newTestReconciler(t)
	ctx := context.Background()
	_ = store.Set(ctx, storage.KeyCart, `[{"productId":"A","quantity":1}]`)
	_ = store.Set(ctx, storage.KeyWishlist, `[{"productId":"W1"}]`)
	backend.fetchErr = apperr.ErrNetwork

	err := r.Merge(ctx, "u1")
	if !errors.Is(err, apperr.ErrNetwork) {
		t.Fatalf("err = %v, want ErrNetwork", err)
	}
	if backend.pushes != 0 {
		t.Errorf("pushes = %d, want 0", backend.pushes)
	}
	if guest, _ := cartrepo.NewLocal(store).LoadGuest(ctx); len(guest) != 1 {
		t.Errorf("guest cart = %v, want it kept for a later merge", guest)
	}
	if _, ok, _ := cartrepo.NewLocal(store).LoadUser(ctx, "u1"); ok {
		t.Error("no user device cart should exist without the backend cart")
	}
	wl, _ := wishlistrepo.NewLocal(store).LoadUser(ctx, "u1")
	if len(wl) != 1 {
		t.Errorf("wishlist should merge despite the cart failure, got %v", wl)
	}
}

func TestMerge_SecondLoginDoesNotRemergeUserCart(t *testing.T) {
	r, store, backend, _, _ := newTestReconciler(t)
	ctx := context.Background()
	_ = store.Set(ctx, storage.KeyCart, `[{"productId":"A","quantity":2}]`)
	backend.carts["u1"] = []cartdomain.Entry{{ProductID: "A", Quantity: 1}}

	if err := r.Merge(ctx, "u1"); err != nil {
		t.Fatalf("first Merge: %v", err)
	}
	// logout clears the user's device cart
	_ = store.Delete(ctx, storage.UserCartKey("u1"))
	if err := r.Merge(ctx, "u1"); err != nil {
		t.Fatalf("second Merge: %v", err)
	}

	want := []cartdomain.Entry{{ProductID: "A", Quantity: 3}}
	if got := backend.carts["u1"]; !reflect.DeepEqual(got, want) {
		t.Errorf("backend cart = %v, want %v", got, want)
	}
	if backend.pushes != 1 {
		t.Errorf("pushes = %d, want 1", backend.pushes)
	}
}

func TestMerge_CorruptGuestCart(t *testing.T) {
	r, store, _, _, _ := newTestReconciler(t)
	ctx := context.Background()
	_ = store.Set(ctx, storage.KeyCart, `{not json`)

	if err := r.Merge(ctx, "u1"); !errors.Is(err, apperr.ErrStorageCorruption) {
		t.Errorf("err = %v, want ErrStorageCorruption", err)
	}
}

func TestMerge_WishlistProductSnapshotSurvives(t *testing.T) {
	r, store, _, _, _ := newTestReconciler(t)
	ctx := context.Background()
	_ = store.Set(ctx, storage.KeyWishlist, `[{"productId":"W1","product":{"price":12.5}}]`)

	if err := r.Merge(ctx, "u1"); err != nil {
		t.Fatalf("Merge: %v", err)
	}
	raw, _, _ := store.Get(ctx, storage.UserWishlistKey("u1"))
	var got []map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &got); err != nil {
		t.Fatalf("stored wishlist: %v", err)
	}
	if string(got[0]["product"]) != `{"price":12.5}` {
		t.Errorf("product = %s, want snapshot preserved", got[0]["product"])
	}
}

func TestMerge_RequiresUserID(t *testing.T) {
	r, _, _, _, _ := newTestReconciler(t)
	if err := r.Merge(context.Background(), ""); err == nil {
		t.Error("Merge without a user id should fail")
	}
}
