package engine

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestCacheKey(t *testing.T) {
	t.Run("deterministic", func(t *testing.T) {
		k1 := CacheKey("transcript", "dQw4w9WgXcQ", "en")
		k2 := CacheKey("transcript", "dQw4w9WgXcQ", "en")
		if k1 != k2 {
			t.Errorf("CacheKey not deterministic: %q != %q", k1, k2)
		}
	})

	t.Run("different inputs differ", func(t *testing.T) {
		k1 := CacheKey("transcript", "dQw4w9WgXcQ", "en")
		k2 := CacheKey("transcript", "dQw4w9WgXcQ", "de")
		if k1 == k2 {
			t.Errorf("different inputs produced same key: %q", k1)
		}
	})

	t.Run("has prefix", func(t *testing.T) {
		k := CacheKey("test")
		if k[:3] != "gt:" {
			t.Errorf("expected gt: prefix, got %q", k[:3])
		}
	})
}

func TestCacheDisabled(t *testing.T) {
	InitCache("", 0, 100, time.Minute)
	if CacheEnabled() {
		t.Fatal("expected cache to be disabled for ttl=0")
	}

	ctx := context.Background()
	key := CacheKey("test", "disabled")
	CacheStoreJSON(ctx, key, []string{"a"})
	if _, ok := CacheLoadJSON[[]string](ctx, key); ok {
		t.Error("expected miss when cache is disabled")
	}
}

func TestCacheLoadStoreJSON(t *testing.T) {
	InitCache("", time.Minute, 100, 5*time.Minute)
	t.Cleanup(func() { InitCache("", 0, 0, 0) })

	ctx := context.Background()
	key := CacheKey("test", "round-trip")

	if _, ok := CacheLoadJSON[Transcript](ctx, key); ok {
		t.Error("expected cache miss on empty cache")
	}

	CacheStoreJSON(ctx, key, Transcript{
		VideoID:      "abc",
		LanguageCode: "en",
		Segments:     []TranscriptSegment{{Text: "hello", Start: 0, Duration: 1.5}},
	})

	got, ok := CacheLoadJSON[Transcript](ctx, key)
	if !ok {
		t.Fatal("expected cache hit after set")
	}
	if got.LanguageCode != "en" || len(got.Segments) != 1 || got.Segments[0].Text != "hello" {
		t.Errorf("unexpected cached value: %+v", got)
	}
}

func TestCacheExpiration(t *testing.T) {
	InitCache("", time.Millisecond, 100, 5*time.Minute)
	t.Cleanup(func() { InitCache("", 0, 0, 0) })

	ctx := context.Background()
	key := CacheKey("test", "expiry")

	CacheStoreJSON(ctx, key, "temp")
	time.Sleep(5 * time.Millisecond)

	if _, ok := CacheLoadJSON[string](ctx, key); ok {
		t.Error("expected cache miss after TTL expiry")
	}
}

func TestCacheEviction(t *testing.T) {
	InitCache("", time.Minute, 3, 5*time.Minute)
	t.Cleanup(func() { InitCache("", 0, 0, 0) })
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		key := CacheKey("evict", fmt.Sprintf("item-%d", i))
		CacheStoreJSON(ctx, key, fmt.Sprintf("v%d", i))
	}

	count := 0
	transcriptCache.Load().l1.Range(func(_, _ any) bool {
		count++
		return true
	})
	if count > 3 {
		t.Errorf("expected at most 3 entries after eviction, got %d", count)
	}
}

func TestCacheStats(t *testing.T) {
	InitCache("", time.Minute, 100, 5*time.Minute)
	t.Cleanup(func() { InitCache("", 0, 0, 0) })
	cacheHits.Store(0)
	cacheMisses.Store(0)

	ctx := context.Background()
	key := CacheKey("stats", "test")

	CacheLoadJSON[string](ctx, key)
	_, misses := CacheStats()
	if misses != 1 {
		t.Errorf("misses = %d, want 1", misses)
	}

	CacheStoreJSON(ctx, key, "x")
	CacheLoadJSON[string](ctx, key)

	hits, misses := CacheStats()
	if hits != 1 {
		t.Errorf("hits = %d, want 1", hits)
	}
	if misses != 1 {
		t.Errorf("misses = %d, want 1", misses)
	}
}

func TestCloseCacheDuringLookups(t *testing.T) {
	InitCache("", time.Minute, 100, time.Minute)
	t.Cleanup(func() { InitCache("", 0, 0, 0) })

	ctx := context.Background()
	key := CacheKey("test", "close")
	CacheStoreJSON(ctx, key, "value")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				CacheLoadJSON[string](ctx, key)
				CacheStoreJSON(ctx, key, "value")
			}
		}()
	}
	CloseCache()
	wg.Wait()

	if CacheEnabled() {
		t.Fatal("expected cache to be disabled after CloseCache")
	}
	if _, ok := CacheLoadJSON[string](ctx, key); ok {
		t.Error("expected miss after CloseCache")
	}
	CloseCache() // idempotent
}
