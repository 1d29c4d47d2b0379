package snapshot

import (
	"context"
	"errors"
	"testing"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if _, err := store.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := store.Set(ctx, "k1", []byte("v1")); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	got, err := store.Get(ctx, "k1")
	if err != nil || string(got) != "v1" {
		t.Fatalf("expected v1, got %q (err=%v)", got, err)
	}

	if err := store.Delete(ctx, "k1"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if _, err := store.Get(ctx, "k1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestMemoryStoreGetReturnsCopy(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if err := store.Set(ctx, "k1", []byte("abc")); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	got, err := store.Get(ctx, "k1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	got[0] = 'x'

	again, err := store.Get(ctx, "k1")
	if err != nil || string(again) != "abc" {
		t.Fatalf("expected stored value unchanged, got %q (err=%v)", again, err)
	}
}

func TestMemoryStoreKeysFiltersByPrefix(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	for _, key := range []string{"cart:held:a", "cart:held:b", "cart:snapshot"} {
		if err := store.Set(ctx, key, []byte("x")); err != nil {
			t.Fatalf("set %s failed: %v", key, err)
		}
	}

	keys, err := store.Keys(ctx, "cart:held:")
	if err != nil {
		t.Fatalf("keys failed: %v", err)
	}
	if len(keys) != 2 {
		t.Fatalf("expected 2 held keys, got %d: %v", len(keys), keys)
	}
}
