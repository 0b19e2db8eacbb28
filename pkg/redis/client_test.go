package redis

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

type fakeStore struct {
	counts  map[string]int64
	expired map[string]time.Duration
	deleted []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{counts: map[string]int64{}, expired: map[string]time.Duration{}}
}

func (f *fakeStore) Ping(ctx context.Context) *redis.StatusCmd {
	return redis.NewStatusResult("PONG", nil)
}

func (f *fakeStore) Set(ctx context.Context, key string, value any, ttl time.Duration) *redis.StatusCmd {
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeStore) Get(ctx context.Context, key string) *redis.StringCmd {
	return redis.NewStringResult("", redis.Nil)
}

func (f *fakeStore) SetNX(ctx context.Context, key string, value any, ttl time.Duration) *redis.BoolCmd {
	return redis.NewBoolResult(true, nil)
}

func (f *fakeStore) Incr(ctx context.Context, key string) *redis.IntCmd {
	f.counts[key]++
	return redis.NewIntResult(f.counts[key], nil)
}

func (f *fakeStore) Decr(ctx context.Context, key string) *redis.IntCmd {
	f.counts[key]--
	return redis.NewIntResult(f.counts[key], nil)
}

func (f *fakeStore) Expire(ctx context.Context, key string, ttl time.Duration) *redis.BoolCmd {
	f.expired[key] = ttl
	return redis.NewBoolResult(true, nil)
}

func (f *fakeStore) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	f.deleted = append(f.deleted, keys...)
	for _, key := range keys {
		delete(f.counts, key)
	}
	return redis.NewIntResult(int64(len(keys)), nil)
}

func TestAcquireSlotRespectsCap(t *testing.T) {
	store := newFakeStore()
	client := &Client{store: store}
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		ok, err := client.AcquireSlot(ctx, "tenant-a", 2, time.Minute)
		if err != nil {
			t.Fatalf("AcquireSlot: %v", err)
		}
		if !ok {
			t.Fatalf("expected slot %d to be granted", i+1)
		}
	}

	ok, err := client.AcquireSlot(ctx, "tenant-a", 2, time.Minute)
	if err != nil {
		t.Fatalf("AcquireSlot over cap: %v", err)
	}
	if ok {
		t.Fatal("expected acquire over cap to be refused")
	}
	if store.counts[client.SlotKey("tenant-a")] != 2 {
		t.Fatalf("refused acquire should roll back the increment, got %d", store.counts[client.SlotKey("tenant-a")])
	}
}

func TestReleaseSlotFloorsAtZero(t *testing.T) {
	store := newFakeStore()
	client := &Client{store: store}
	ctx := context.Background()

	if err := client.ReleaseSlot(ctx, "tenant-b"); err != nil {
		t.Fatalf("ReleaseSlot: %v", err)
	}
	if len(store.deleted) == 0 {
		t.Fatal("expected underflowing release to delete the key")
	}
}

func TestFixedWindowAllow(t *testing.T) {
	store := newFakeStore()
	client := &Client{store: store}
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		allowed, _, err := client.FixedWindowAllow(ctx, "submit", 3, time.Minute)
		if err != nil {
			t.Fatalf("FixedWindowAllow: %v", err)
		}
		if !allowed {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}
	allowed, count, err := client.FixedWindowAllow(ctx, "submit", 3, time.Minute)
	if err != nil {
		t.Fatalf("FixedWindowAllow: %v", err)
	}
	if allowed {
		t.Fatalf("request over limit should be refused (count=%d)", count)
	}
}

func TestBuildKeyNamespacing(t *testing.T) {
	client := &Client{}
	if got := client.IdempotencyKey("submit", "abc"); got != "vx:idempotency:submit:abc" {
		t.Fatalf("unexpected idempotency key %q", got)
	}
	if got := client.SlotKey("tenant-c"); got != "vx:slots:tenant-c" {
		t.Fatalf("unexpected slot key %q", got)
	}
}
