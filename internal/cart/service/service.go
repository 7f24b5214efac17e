// Package service applies cart mutations. Signed out, the guest cart is edited
// locally. Signed in, the device copy of the user's cart is edited and the whole
// cart is mirrored to the cart backend.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"storefront/client/internal/cart/domain"
	"storefront/client/internal/logger"
	"storefront/client/internal/reconcile"
)

// LocalStore is the minimal device-cart store needed by Service.
type LocalStore interface {
	LoadGuest(ctx context.Context) ([]domain.Entry, error)
	SaveGuest(ctx context.Context, entries []domain.Entry) error
	ClearGuest(ctx context.Context) error
	LoadUser(ctx context.Context, userID string) ([]domain.Entry, bool, error)
	SaveUser(ctx context.Context, userID string, entries []domain.Entry) error
}

// RemoteStore is the minimal cart backend needed by Service.
type RemoteStore interface {
	Fetch(ctx context.Context, userID string) ([]domain.Entry, error)
	Push(ctx context.Context, userID string, entries []domain.Entry) error
}

// Service mutates the cart. A signed-in user without a device copy of their
// cart (login with an empty guest cart, or a login whose merge could not reach
// the backend) gets one built from the backend cart with any leftover guest
// entries merged in, before the first change is applied. A failed push leaves
// the cart dirty and the next mutation retries it.
type Service struct {
	local  LocalStore
	remote RemoteStore
	userID func() string
	log    *slog.Logger

	opMu sync.Mutex

	mu    sync.Mutex
	dirty bool
}

// NewService returns a cart Service. userID returns "" while signed out.
func NewService(local LocalStore, remote RemoteStore, userID func() string, log *slog.Logger) *Service {
	return &Service{local: local, remote: remote, userID: userID, log: logger.Component(log, "cart")}
}

// Items returns the current cart: the guest cart while signed out, the user's
// cart otherwise.
func (s *Service) Items(ctx context.Context) ([]domain.Entry, error) {
	userID := s.currentUser()
	if userID == "" {
		return s.local.LoadGuest(ctx)
	}
	s.opMu.Lock()
	defer s.opMu.Unlock()
	return s.userCart(ctx, userID)
}

// Add adds qty units of productID, creating the entry if needed.
func (s *Service) Add(ctx context.Context, productID string, qty int) ([]domain.Entry, error) {
	if err := (domain.Entry{ProductID: productID, Quantity: qty}).Validate(); err != nil {
		return nil, err
	}
	return s.mutate(ctx, func(entries []domain.Entry) []domain.Entry {
		if i := domain.Index(entries, productID); i >= 0 {
			entries[i].Quantity += qty
			return entries
		}
		return append(entries, domain.Entry{ProductID: productID, Quantity: qty})
	})
}

// SetQuantity sets the quantity of productID. A quantity below one removes it.
func (s *Service) SetQuantity(ctx context.Context, productID string, qty int) ([]domain.Entry, error) {
	if qty < 1 {
		return s.Remove(ctx, productID)
	}
	return s.mutate(ctx, func(entries []domain.Entry) []domain.Entry {
		if i := domain.Index(entries, productID); i >= 0 {
			entries[i].Quantity = qty
			return entries
		}
		return append(entries, domain.Entry{ProductID: productID, Quantity: qty})
	})
}

// Remove drops productID from the cart.
func (s *Service) Remove(ctx context.Context, productID string) ([]domain.Entry, error) {
	return s.mutate(ctx, func(entries []domain.Entry) []domain.Entry {
		if i := domain.Index(entries, productID); i >= 0 {
			return append(entries[:i], entries[i+1:]...)
		}
		return entries
	})
}

// MarkDirty records that the backend cart is behind the device copy.
func (s *Service) MarkDirty() {
	s.setDirty(true)
}

// Dirty reports whether a push is outstanding.
func (s *Service) Dirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dirty
}

func (s *Service) setDirty(v bool) {
	s.mu.Lock()
	s.dirty = v
	s.mu.Unlock()
}

func (s *Service) currentUser() string {
	if s.userID == nil {
		return ""
	}
	return s.userID()
}

func (s *Service) mutate(ctx context.Context, apply func([]domain.Entry) []domain.Entry) ([]domain.Entry, error) {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	userID := s.currentUser()
	if userID == "" {
		entries, err := s.local.LoadGuest(ctx)
		if err != nil {
			return nil, fmt.Errorf("cart: %w", err)
		}
		entries = apply(domain.Clone(entries))
		if err := s.local.SaveGuest(ctx, entries); err != nil {
			return nil, err
		}
		return entries, nil
	}

	entries, err := s.userCart(ctx, userID)
	if err != nil {
		return nil, err
	}
	entries = apply(domain.Clone(entries))
	if err := s.local.SaveUser(ctx, userID, entries); err != nil {
		return nil, err
	}
	if err := s.remote.Push(ctx, userID, entries); err != nil {
		s.MarkDirty()
		s.log.WarnContext(ctx, "cart push failed, will retry on next change", "user_id", userID, "error", err)
		return entries, nil
	}
	s.mu.Lock()
	if s.dirty {
		s.log.InfoContext(ctx, "pending cart push delivered", "user_id", userID)
	}
	s.dirty = false
	s.mu.Unlock()
	return entries, nil
}

// userCart returns the device copy of the user's cart, building it from the
// backend when there is none. Guest entries still on the device are merged in
// and leave guest scope. Callers hold opMu.
func (s *Service) userCart(ctx context.Context, userID string) ([]domain.Entry, error) {
	entries, ok, err := s.local.LoadUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("cart: %w", err)
	}
	if ok {
		return entries, nil
	}

	server, err := s.remote.Fetch(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("cart: fetch user cart: %w", err)
	}
	guest, err := s.local.LoadGuest(ctx)
	if err != nil {
		return nil, fmt.Errorf("cart: %w", err)
	}
	entries = reconcile.MergeCart(guest, server)
	if err := s.local.SaveUser(ctx, userID, entries); err != nil {
		return nil, err
	}
	if len(guest) == 0 {
		s.setDirty(false)
		return entries, nil
	}
	if err := s.local.ClearGuest(ctx); err != nil {
		s.log.WarnContext(ctx, "guest cart left in place after merge", "user_id", userID, "error", err)
	}
	s.MarkDirty()
	s.log.InfoContext(ctx, "leftover guest cart merged", "user_id", userID, "guest", len(guest), "merged", len(entries))
	return entries, nil
}
