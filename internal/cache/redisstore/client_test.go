package redisstore

import (
	"context"
	"strconv"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
)

// creates new client connected to miniredis for testing
func newMini(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	t.Cleanup(cancel)

	rc, err := New(ctx, mr.Addr())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = rc.Close() })
	return rc, mr
}

func TestSetGetDel_HappyPath(t *testing.T) {
	rc, _ := newMini(t)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := rc.Set(ctx, "k1", []byte("v1"), 5*time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, ok, err := rc.Get(ctx, "k1")
	if err != nil || !ok || string(got) != "v1" {
		t.Fatalf("Get got=%q ok=%v err=%v", got, ok, err)
	}

	if _, ok, err := rc.Get(ctx, "missing"); err != nil || ok {
		t.Fatalf("Get missing ok=%v err=%v", ok, err)
	}

	if err := rc.Del(ctx, "k1"); err != nil {
		t.Fatalf("Del: %v", err)
	}
	if _, ok, _ := rc.Get(ctx, "k1"); ok {
		t.Fatalf("k1 still present after Del")
	}
	if err := rc.Del(ctx); err != nil {
		t.Fatalf("Del without keys: %v", err)
	}
}

func TestTTLExpiry(t *testing.T) {
	rc, mr := newMini(t)
	ctx := context.Background()

	if err := rc.Set(ctx, "ttl-key", []byte("v"), 2*time.Second); err != nil {
		t.Fatalf("Set: %v", err)
	}
	mr.FastForward(3 * time.Second)

	if _, ok, err := rc.Get(ctx, "ttl-key"); err != nil || ok {
		t.Fatalf("expected ttl-key to be gone, ok=%v err=%v", ok, err)
	}
}

func TestDeleteByPrefix(t *testing.T) {
	rc, mr := newMini(t)
	ctx := context.Background()

	for i, k := range []string{"tg:tile:a-1-1-1", "tg:tile:a-1-1-2", "tg:tile:b-1-1-1", "other"} {
		if err := rc.Set(ctx, k, []byte{byte(i)}, time.Minute); err != nil {
			t.Fatalf("Set %s: %v", k, err)
		}
	}
	for i := 0; i < 1200; i++ {
		_ = mr.Set("tg:tile:bulk-"+strconv.Itoa(i), "x")
	}

	n, err := rc.DeleteByPrefix(ctx, "tg:tile:a-")
	if err != nil || n != 2 {
		t.Fatalf("DeleteByPrefix n=%d err=%v want 2", n, err)
	}
	if !mr.Exists("tg:tile:b-1-1-1") || !mr.Exists("other") {
		t.Fatalf("unrelated keys were removed")
	}

	n, err = rc.DeleteByPrefix(ctx, "tg:")
	if err != nil || n != 1201 {
		t.Fatalf("DeleteByPrefix n=%d err=%v want 1201", n, err)
	}
	if !mr.Exists("other") {
		t.Fatalf("key outside prefix removed")
	}
}

func TestContextDeadline_IsRespected(t *testing.T) {
	rc, _ := newMini(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := rc.Set(ctx, "k", []byte("v"), time.Second); err == nil {
		t.Fatalf("expected error on Set with canceled context")
	}
	if _, _, err := rc.Get(ctx, "k"); err == nil {
		t.Fatalf("expected error on Get with canceled context")
	}
	if err := rc.Del(ctx, "k"); err == nil {
		t.Fatalf("expected error on Del with canceled context")
	}
}

func TestNew_RequiresAddress(t *testing.T) {
	if _, err := New(context.Background(), ""); err == nil {
		t.Fatalf("expected error for empty address")
	}
}

func TestPing(t *testing.T) {
	rc, _ := newMini(t)

	if err := rc.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := rc.Ping(ctx); err == nil {
		t.Fatal("expected error on cancelled context")
	}
}
