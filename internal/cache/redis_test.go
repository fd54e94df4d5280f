package cache

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func setupRedisStore(t *testing.T) *RedisStore {
	t.Helper()
	mr := miniredis.RunT(t)
	store, err := NewRedisStore(context.Background(), &redis.Options{Addr: mr.Addr()})
	if err != nil {
		t.Fatalf("NewRedisStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestRedisStore_SetGet(t *testing.T) {
	store := setupRedisStore(t)
	ctx := context.Background()

	if _, ok, err := store.Get(ctx, "tickets", "abc"); err != nil || ok {
		t.Fatalf("Get before Set: ok=%v err=%v, want miss", ok, err)
	}

	payload := []byte(`{"output":{"title":"Refined"}}`)
	if err := store.Set(ctx, "tickets", "abc", payload); err != nil {
		t.Fatalf("Set: %v", err)
	}

	got, ok, err := store.Get(ctx, "tickets", "abc")
	if err != nil || !ok {
		t.Fatalf("Get after Set: ok=%v err=%v", ok, err)
	}
	if string(got) != string(payload) {
		t.Errorf("Get returned %s, want %s", got, payload)
	}
}

func TestRedisStore_StageIsolation(t *testing.T) {
	store := setupRedisStore(t)
	ctx := context.Background()

	if err := store.Set(ctx, "tickets", "k", []byte(`{}`)); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if _, ok, _ := store.Get(ctx, "epic", "k"); ok {
		t.Error("same key in a different stage should be a miss")
	}
}

func TestRedisStore_LastWriterWins(t *testing.T) {
	store := setupRedisStore(t)
	ctx := context.Background()

	if err := store.Set(ctx, "epic", "k", []byte(`{"v":1}`)); err != nil {
		t.Fatalf("first Set: %v", err)
	}
	if err := store.Set(ctx, "epic", "k", []byte(`{"v":2}`)); err != nil {
		t.Fatalf("second Set: %v", err)
	}
	got, ok, _ := store.Get(ctx, "epic", "k")
	if !ok || string(got) != `{"v":2}` {
		t.Errorf("Get = %q ok=%v, want second write", got, ok)
	}
}
