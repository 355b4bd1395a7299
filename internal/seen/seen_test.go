package seen_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/chatlens/sentiment-worker/internal/seen"
)

func TestMemoryStoreMarksAndEvicts(t *testing.T) {
	ctx := context.Background()
	s := seen.NewMemoryStore(2)

	s.Mark(ctx, "a")
	s.Mark(ctx, "b")
	if !s.Seen(ctx, "a") || !s.Seen(ctx, "b") {
		t.Fatal("marked keys should be seen")
	}

	s.Mark(ctx, "c") // evicts "a", the oldest entry
	if s.Seen(ctx, "a") {
		t.Fatal("oldest key should have been evicted")
	}
	if !s.Seen(ctx, "b") || !s.Seen(ctx, "c") {
		t.Fatal("newer keys should survive eviction")
	}
}

func TestMemoryStoreIgnoresEmptyAndRepeatedKeys(t *testing.T) {
	ctx := context.Background()
	s := seen.NewMemoryStore(2)

	s.Mark(ctx, "")
	if s.Seen(ctx, "") {
		t.Fatal("empty key must never be seen")
	}

	s.Mark(ctx, "a")
	s.Mark(ctx, "a")
	s.Mark(ctx, "b")
	if !s.Seen(ctx, "a") {
		t.Fatal("re-marking must not evict the key itself")
	}
}

type fakeRedis struct {
	keys      map[string]struct{}
	failing   bool
	setCalls  int
	lastTTL   time.Duration
	existsErr error
	lastCtx   context.Context
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{keys: make(map[string]struct{})}
}

func (f *fakeRedis) SetNX(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	f.lastCtx = ctx
	f.setCalls++
	f.lastTTL = ttl
	if f.failing {
		return false, errors.New("connection refused")
	}
	if _, ok := f.keys[key]; ok {
		return false, nil
	}
	f.keys[key] = struct{}{}
	return true, nil
}

func (f *fakeRedis) Exists(ctx context.Context, key string) (bool, error) {
	f.lastCtx = ctx
	if f.existsErr != nil {
		return false, f.existsErr
	}
	_, ok := f.keys[key]
	return ok, nil
}

type ctxKey struct{}

func TestRedisStoreRoundTrip(t *testing.T) {
	ctx := context.WithValue(context.Background(), ctxKey{}, "marker")
	client := newFakeRedis()
	s := seen.NewRedisStore(client, "sentiment:seen:", 24*time.Hour)

	if s.Seen(ctx, "topic/0/1") {
		t.Fatal("fresh key should not be seen")
	}
	s.Mark(ctx, "topic/0/1")
	if !s.Seen(ctx, "topic/0/1") {
		t.Fatal("marked key should be seen")
	}
	if _, ok := client.keys["sentiment:seen:topic/0/1"]; !ok {
		t.Fatalf("prefix not applied, stored keys: %v", client.keys)
	}
	if client.lastTTL != 24*time.Hour {
		t.Fatalf("expected 24h ttl, got %v", client.lastTTL)
	}
	if client.lastCtx.Value(ctxKey{}) != "marker" {
		t.Fatal("caller context must reach the redis client")
	}
}

func TestRedisStoreDegradesOnError(t *testing.T) {
	ctx := context.Background()
	client := newFakeRedis()
	client.existsErr = errors.New("timeout")
	s := seen.NewRedisStore(client, "p:", time.Hour)

	// A redis failure reads as "not seen" so processing continues.
	if s.Seen(ctx, "topic/0/1") {
		t.Fatal("exists error must degrade to not seen")
	}

	client.failing = true
	s.Mark(ctx, "topic/0/1") // must not panic
	if client.setCalls != 1 {
		t.Fatalf("expected 1 set attempt, got %d", client.setCalls)
	}
}

func TestFromConfig(t *testing.T) {
	cases := []struct {
		storeType string
		wantErr   bool
		wantType  string
	}{
		{"memory", false, "*seen.MemoryStore"},
		{"", false, "seen.NoopStore"},
		{"noop", false, "seen.NoopStore"},
		{"carrier-pigeon", true, ""},
	}
	for _, tc := range cases {
		store, err := seen.FromConfig(tc.storeType, "", 10, time.Hour)
		if tc.wantErr {
			if err == nil {
				t.Errorf("%q: expected error", tc.storeType)
			}
			continue
		}
		if err != nil {
			t.Errorf("%q: unexpected error %v", tc.storeType, err)
			continue
		}
		if got := fmt.Sprintf("%T", store); got != tc.wantType {
			t.Errorf("%q: got store %s, want %s", tc.storeType, got, tc.wantType)
		}
	}
}
