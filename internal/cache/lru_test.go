package cache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

func TestLRUCacheBasics(t *testing.T) {
	c := NewLRUCache(10)
	ctx := context.Background()

	t.Run("SetAndGet", func(t *testing.T) {
		if err := c.Set(ctx, "history:ES91", []byte(`[{"id":"tx-1"}]`), time.Minute); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
		got, err := c.Get(ctx, "history:ES91")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if string(got) != `[{"id":"tx-1"}]` {
			t.Errorf("got %q", got)
		}
	})

	t.Run("MissReturnsNilNil", func(t *testing.T) {
		got, err := c.Get(ctx, "absent")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if got != nil {
			t.Errorf("expected nil on miss, got %q", got)
		}
	})

	t.Run("Overwrite", func(t *testing.T) {
		c.Set(ctx, "k", []byte("v1"), time.Minute)
		c.Set(ctx, "k", []byte("v2"), time.Minute)
		got, _ := c.Get(ctx, "k")
		if string(got) != "v2" {
			t.Errorf("expected v2, got %q", got)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		c.Set(ctx, "gone", []byte("x"), time.Minute)
		if err := c.Delete(ctx, "gone"); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
		if got, _ := c.Get(ctx, "gone"); got != nil {
			t.Error("expected miss after delete")
		}
		// Deleting an absent key is fine.
		if err := c.Delete(ctx, "gone"); err != nil {
			t.Errorf("Delete of absent key failed: %v", err)
		}
	})

	t.Run("Ping", func(t *testing.T) {
		if err := c.Ping(ctx); err != nil {
			t.Errorf("Ping failed: %v", err)
		}
	})
}

func TestLRUCacheTTLExpiry(t *testing.T) {
	c := NewLRUCache(10)
	ctx := context.Background()

	c.Set(ctx, "short", []byte("v"), 20*time.Millisecond)

	if got, _ := c.Get(ctx, "short"); got == nil {
		t.Fatal("entry should be live before TTL")
	}

	time.Sleep(40 * time.Millisecond)

	if got, _ := c.Get(ctx, "short"); got != nil {
		t.Error("entry should have expired")
	}

	// Expired entries are reaped on read.
	if size, _ := c.Stats(); size != 0 {
		t.Errorf("expected empty cache after expiry, got size %d", size)
	}
}

func TestLRUCacheEviction(t *testing.T) {
	c := NewLRUCache(3)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		c.Set(ctx, fmt.Sprintf("k%d", i), []byte("v"), time.Minute)
	}

	// Touch k0 so k1 becomes the oldest.
	if got, _ := c.Get(ctx, "k0"); got == nil {
		t.Fatal("k0 should be present")
	}

	c.Set(ctx, "k3", []byte("v"), time.Minute)

	if got, _ := c.Get(ctx, "k1"); got != nil {
		t.Error("k1 should have been evicted")
	}
	if got, _ := c.Get(ctx, "k0"); got == nil {
		t.Error("recently used k0 should survive eviction")
	}
	if size, capacity := c.Stats(); size != 3 || capacity != 3 {
		t.Errorf("expected size 3 / cap 3, got %d / %d", size, capacity)
	}
}

func TestCacheFactory(t *testing.T) {
	t.Run("Memory", func(t *testing.T) {
		c, err := New(domain.CacheConfig{Type: "memory", LocalMaxSize: 10})
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		defer c.Close()
		if _, ok := c.(*LRUCache); !ok {
			t.Errorf("expected *LRUCache, got %T", c)
		}
	})

	t.Run("UnsupportedType", func(t *testing.T) {
		if _, err := New(domain.CacheConfig{Type: "memcached"}); err == nil {
			t.Error("expected error for unsupported cache type")
		}
	})
}
