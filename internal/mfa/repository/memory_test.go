package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"storefront/client/internal/mfa/domain"
)

func TestMemoryStore_PutReplaces(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	t0 := time.Now().UTC()

	store.Put(ctx, domain.Challenge{Email: "a@b.com", Purpose: domain.PurposeLogin, IssuedAt: t0, TTL: domain.DefaultTTL})
	store.Put(ctx, domain.Challenge{Email: "a@b.com", Purpose: domain.PurposeLogin, IssuedAt: t0.Add(time.Minute), TTL: domain.DefaultTTL})

	c, ok := store.Get(ctx, "a@b.com", domain.PurposeLogin)
	if !ok {
		t.Fatal("Get should return the challenge after Put")
	}
	if !c.IssuedAt.Equal(t0.Add(time.Minute)) {
		t.Errorf("IssuedAt = %v, want the later issue", c.IssuedAt)
	}
}

func TestMemoryStore_KeyedByPurpose(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	store.Put(ctx, domain.Challenge{Email: "a@b.com", Purpose: domain.PurposeLogin})
	if _, ok := store.Get(ctx, "a@b.com", domain.PurposeActivation); ok {
		t.Error("activation challenge should be absent")
	}
	store.Delete(ctx, "a@b.com", domain.PurposeLogin)
	if _, ok := store.Get(ctx, "a@b.com", domain.PurposeLogin); ok {
		t.Error("challenge should be gone after Delete")
	}
}

func TestMemoryStore_ConcurrentAccess(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			store.Put(ctx, domain.Challenge{Email: "a@b.com", Purpose: domain.PurposeLogin})
			store.Get(ctx, "a@b.com", domain.PurposeLogin)
		}()
	}
	wg.Wait()
}
