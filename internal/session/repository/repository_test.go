package repository

import (
	"context"
	"errors"
	"testing"

	"storefront/client/internal/apperr"
	identitydomain "storefront/client/internal/identity/domain"
	"storefront/client/internal/session/domain"
	"storefront/client/internal/storage"
)

func TestStoreRepository_SaveLoad(t *testing.T) {
	ctx := context.Background()
	st := storage.NewMemory()
	repo := NewStoreRepository(st)

	s, err := repo.Load(ctx)
	if err != nil || s != nil {
		t.Fatalf("Load empty = %v, %v; want nil, nil", s, err)
	}

	in := &domain.Session{Token: "tok", Profile: identitydomain.Profile{ID: "u1", Email: "a@b.com", Name: "Ann"}}
	if err := repo.Save(ctx, in); err != nil {
		t.Fatalf("Save: %v", err)
	}
	out, err := repo.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if out.Token != "tok" || out.Profile.ID != "u1" || out.Profile.Name != "Ann" {
		t.Errorf("Load = %+v", out)
	}
}

func TestStoreRepository_LoadCorruption(t *testing.T) {
	cases := map[string]map[string]string{
		"profile without id": {storage.KeyToken: "tok", storage.KeyUser: `{"email":"a@b.com"}`},
		"bad json":           {storage.KeyToken: "tok", storage.KeyUser: `{"id":`},
		"token only":         {storage.KeyToken: "tok"},
		"user only":          {storage.KeyUser: `{"id":"u1"}`},
	}
	for name, kv := range cases {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			st := storage.NewMemory()
			for k, v := range kv {
				_ = st.Set(ctx, k, v)
			}
			_, err := NewStoreRepository(st).Load(ctx)
			if !errors.Is(err, apperr.ErrStorageCorruption) {
				t.Errorf("Load = %v, want ErrStorageCorruption", err)
			}
		})
	}
}

func TestStoreRepository_Clear(t *testing.T) {
	ctx := context.Background()
	st := storage.NewMemory()
	for k, v := range map[string]string{
		storage.KeyToken:              "tok",
		storage.KeyUser:               `{"id":"u1"}`,
		storage.UserWishlistKey("u1"): "[]",
		storage.UserWishlistKey("u2"): "[]",
		storage.UserCartKey("u1"):     "[]",
		storage.KeyCart:               "[]",
		"cookie-preferences":          `{"analytics":false}`,
	} {
		_ = st.Set(ctx, k, v)
	}

	if err := NewStoreRepository(st).Clear(ctx, "u1"); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	for _, k := range []string{storage.KeyToken, storage.KeyUser, storage.UserWishlistKey("u1"), storage.UserCartKey("u1")} {
		if _, ok, _ := st.Get(ctx, k); ok {
			t.Errorf("%s should be removed", k)
		}
	}
	for _, k := range []string{storage.UserWishlistKey("u2"), storage.KeyCart, "cookie-preferences"} {
		if _, ok, _ := st.Get(ctx, k); !ok {
			t.Errorf("%s should be kept", k)
		}
	}
}
