package repository

import (
	"context"
	"sync"

	"storefront/client/internal/mfa/domain"
)

type key struct {
	email   string
	purpose domain.Purpose
}

// MemoryStore is the process-local challenge Repository. Challenges are timing
// state only and do not survive a restart.
type MemoryStore struct {
	mu sync.RWMutex
	m  map[key]domain.Challenge
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{m: make(map[key]domain.Challenge)}
}

// Put stores c, replacing any challenge for the same email and purpose.
func (s *MemoryStore) Put(_ context.Context, c domain.Challenge) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[key{c.Email, c.Purpose}] = c
}

// Get returns the challenge for email and purpose, expired or not.
func (s *MemoryStore) Get(_ context.Context, email string, purpose domain.Purpose) (domain.Challenge, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.m[key{email, purpose}]
	return c, ok
}

// Delete drops the challenge for email and purpose.
func (s *MemoryStore) Delete(_ context.Context, email string, purpose domain.Purpose) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, key{email, purpose})
}
