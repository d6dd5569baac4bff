package cache

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func newOfflineRedisStore(t *testing.T, opts ...RedisOption) *RedisStore {
	t.Helper()
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
	t.Cleanup(func() { _ = client.Close() })
	store, err := NewRedisStore(client, opts...)
	if err != nil {
		t.Fatalf("new redis store: %v", err)
	}
	t.Cleanup(store.Close)
	return store
}

func TestRedisStoreEncodingRoundTrip(t *testing.T) {
	payload := bytes.Repeat([]byte(`{"name":"Lyra","score":1}`), 20)

	for _, compress := range []bool{false, true} {
		store := newOfflineRedisStore(t, WithRedisCompression(compress))
		encoded := store.encode(payload)
		if compress && len(encoded) >= len(payload) {
			t.Fatalf("expected compression to shrink repetitive payload")
		}
		decoded, err := store.decode(encoded)
		if err != nil {
			t.Fatalf("decode (compress=%v): %v", compress, err)
		}
		if !bytes.Equal(decoded, payload) {
			t.Fatalf("round trip mismatch (compress=%v)", compress)
		}
	}
}

func TestRedisStoreReadsCompressedAfterToggle(t *testing.T) {
	writer := newOfflineRedisStore(t, WithRedisCompression(true))
	reader := newOfflineRedisStore(t)

	decoded, err := reader.decode(writer.encode([]byte("elvish")))
	if err != nil || string(decoded) != "elvish" {
		t.Fatalf("expected uncompressed store to read zstd payload, got %q err=%v", decoded, err)
	}
	if _, err := reader.decode([]byte{0x7f, 'x'}); err == nil {
		t.Fatalf("expected unknown encoding error")
	}
}

func TestRedisPrefixOption(t *testing.T) {
	store := newOfflineRedisStore(t, WithRedisPrefix("namegen"))
	if store.prefix != "namegen:" {
		t.Fatalf("expected trailing colon, got %q", store.prefix)
	}
}

func TestEscapeGlob(t *testing.T) {
	got := escapeGlob(`names:el*vish?[x]\`)
	want := `names:el\*vish\?\[x\]\\`
	if got != want {
		t.Fatalf("escapeGlob = %q, want %q", got, want)
	}
}

func TestRedisStoreUnreachableFailsWithinTimeout(t *testing.T) {
	store := newOfflineRedisStore(t, WithRedisTimeout(100*time.Millisecond))
	ctx := context.Background()

	start := time.Now()
	if _, ok, err := store.Get(ctx, "names:elvish:count=1"); ok || !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected unavailable miss, got ok=%v err=%v", ok, err)
	}
	if err := store.Set(ctx, "names:elvish:count=1", []byte(`[]`), time.Minute); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected unavailable set error, got %v", err)
	}
	if err := store.Ping(ctx); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected unavailable ping error, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("expected calls bounded by the store timeout, took %s", elapsed)
	}
}

func TestTierFallsThroughUnreachableRedis(t *testing.T) {
	memory := NewMemoryStore(10)
	redisStore := newOfflineRedisStore(t, WithRedisTimeout(100*time.Millisecond))
	tier := NewTier[[]sample]([]Store{memory, redisStore})
	ctx := context.Background()

	start := time.Now()
	tier.Set(ctx, "names:elvish:count=1", []sample{{Name: "Lyra"}}, time.Minute)
	got, ok := tier.Get(ctx, "names:elvish:count=1")
	if !ok || len(got) != 1 || got[0].Name != "Lyra" {
		t.Fatalf("expected memory hit despite redis outage, got %v ok=%v", got, ok)
	}
	if _, ok := tier.Get(ctx, "names:human:count=1"); ok {
		t.Fatalf("expected miss for unknown key")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("expected redis outage to degrade quickly, took %s", elapsed)
	}
}
