package cache

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	backend "github.com/redis/go-redis/v9"
)

func TestNullCache(t *testing.T) {
	ctx := context.Background()
	c := NewNullCache()
	defer c.Close()

	// Get always returns miss
	data, hit, err := c.Get(ctx, "key")
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if hit {
		t.Error("NullCache.Get should always return miss")
	}
	if data != nil {
		t.Error("NullCache.Get should return nil data")
	}

	if err := c.Set(ctx, "key", []byte("value"), time.Hour); err != nil {
		t.Errorf("Set error: %v", err)
	}

	// Still a miss after Set
	_, hit, _ = c.Get(ctx, "key")
	if hit {
		t.Error("NullCache should not store data")
	}

	if err := c.Delete(ctx, "key"); err != nil {
		t.Errorf("Delete error: %v", err)
	}
}

// runCacheContract exercises behaviour every backend must share.
func runCacheContract(t *testing.T, c Cache) {
	t.Helper()
	ctx := context.Background()

	t.Run("miss", func(t *testing.T) {
		_, hit, err := c.Get(ctx, "missing")
		if err != nil || hit {
			t.Errorf("Get(missing) = hit %v, err %v; want miss", hit, err)
		}
	})

	t.Run("roundtrip", func(t *testing.T) {
		payload := []byte(`{"title":"Home","contentLink":{"id":5}}`)
		if err := c.Set(ctx, "content:abc:5", payload, time.Hour); err != nil {
			t.Fatalf("Set error: %v", err)
		}
		got, hit, err := c.Get(ctx, "content:abc:5")
		if err != nil || !hit {
			t.Fatalf("Get = hit %v, err %v; want hit", hit, err)
		}
		if !bytes.Equal(got, payload) {
			t.Errorf("Get = %s, want %s", got, payload)
		}
	})

	t.Run("overwrite", func(t *testing.T) {
		_ = c.Set(ctx, "k", []byte("one"), 0)
		_ = c.Set(ctx, "k", []byte("two"), 0)
		got, _, _ := c.Get(ctx, "k")
		if string(got) != "two" {
			t.Errorf("Get = %q, want %q", got, "two")
		}
	})

	t.Run("delete", func(t *testing.T) {
		_ = c.Set(ctx, "gone", []byte("x"), 0)
		if err := c.Delete(ctx, "gone"); err != nil {
			t.Fatalf("Delete error: %v", err)
		}
		if _, hit, _ := c.Get(ctx, "gone"); hit {
			t.Error("Get after Delete should miss")
		}
		if err := c.Delete(ctx, "never-existed"); err != nil {
			t.Errorf("Delete(missing) error: %v", err)
		}
	})
}

func TestFileCache(t *testing.T) {
	c, err := NewFileCache(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileCache error: %v", err)
	}
	defer c.Close()

	runCacheContract(t, c)
}

func TestFileCacheExpiration(t *testing.T) {
	ctx := context.Background()
	c, _ := NewFileCache(t.TempDir())
	defer c.Close()

	if err := c.Set(ctx, "key", []byte("value"), 10*time.Millisecond); err != nil {
		t.Fatalf("Set() failed: %v", err)
	}
	if _, hit, _ := c.Get(ctx, "key"); !hit {
		t.Fatal("Get() should hit before expiry")
	}

	time.Sleep(20 * time.Millisecond)

	if _, hit, err := c.Get(ctx, "key"); hit || err != nil {
		t.Errorf("Get() after expiry = hit %v, err %v; want miss", hit, err)
	}
	if _, err := os.Stat(c.path("key")); !os.IsNotExist(err) {
		t.Error("expired entry should be removed")
	}
}

func TestFileCacheCorruptEntryIsMiss(t *testing.T) {
	ctx := context.Background()
	c, _ := NewFileCache(t.TempDir())
	defer c.Close()

	path := c.path("key")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("not zstd"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, hit, err := c.Get(ctx, "key"); hit || err != nil {
		t.Errorf("Get() on corrupt entry = hit %v, err %v; want miss", hit, err)
	}
}

func TestFileCacheCompresses(t *testing.T) {
	ctx := context.Background()
	c, _ := NewFileCache(t.TempDir())
	defer c.Close()

	payload := []byte(strings.Repeat(`{"contentLink":{"id":1},"title":"repeated"}`, 200))
	if err := c.Set(ctx, "big", payload, 0); err != nil {
		t.Fatal(err)
	}
	info, err := os.Stat(c.path("big"))
	if err != nil {
		t.Fatal(err)
	}
	if info.Size() >= int64(len(payload)) {
		t.Errorf("stored size %d, want < %d", info.Size(), len(payload))
	}
}

func TestFileCachePathStability(t *testing.T) {
	c, _ := NewFileCache(t.TempDir())
	defer c.Close()

	if c.path("test") != c.path("test") {
		t.Error("path should be deterministic")
	}
	if c.path("test") == c.path("other") {
		t.Error("different keys should produce different paths")
	}
}

func TestRedisCache(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}
	defer mr.Close()

	c := NewRedisCacheFromClient(backend.NewClient(&backend.Options{Addr: mr.Addr()}))
	defer c.Close()

	runCacheContract(t, c)
}

func TestRedisCachePrefixAndTTL(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}
	defer mr.Close()

	ctx := context.Background()
	c := NewRedisCache(mr.Addr(), "", 0, WithPrefix("site:"))
	defer c.Close()

	if err := c.Set(ctx, "content:x:1", []byte("v"), time.Second); err != nil {
		t.Fatal(err)
	}
	if !mr.Exists("site:content:x:1") {
		t.Error("expected key with custom prefix to exist")
	}

	mr.FastForward(2 * time.Second)

	if _, hit, err := c.Get(ctx, "content:x:1"); hit || err != nil {
		t.Errorf("Get() after TTL = hit %v, err %v; want miss", hit, err)
	}
}

func TestHash(t *testing.T) {
	h1 := Hash([]byte("hello"))
	if h1 != Hash([]byte("hello")) {
		t.Error("Hash should be deterministic")
	}
	if h1 == Hash([]byte("world")) {
		t.Error("Different inputs should produce different hashes")
	}
	if len(h1) != 64 {
		t.Errorf("Hash length should be 64, got %d", len(h1))
	}
}

func TestHashValueMapOrder(t *testing.T) {
	a := map[string]any{"site_url": "https://x", "endpoints": []string{"a", "b"}}
	b := map[string]any{"endpoints": []string{"a", "b"}, "site_url": "https://x"}

	ha, err := HashValue(a)
	if err != nil {
		t.Fatal(err)
	}
	hb, _ := HashValue(b)
	if ha != hb {
		t.Error("HashValue should not depend on map insertion order")
	}

	if _, err := HashValue(make(chan int)); err == nil {
		t.Error("HashValue should fail on unmarshalable input")
	}
}

func TestDefaultKeyer(t *testing.T) {
	k := NewDefaultKeyer()

	if got := k.ContentKey("cfg", 42); got != "content:cfg:42" {
		t.Errorf("ContentKey = %s", got)
	}

	e1 := k.EndpointKey("cfg", "HomePage", "/api/episerver/v2.0/content/5")
	e2 := k.EndpointKey("cfg", "HomePage", "/api/episerver/v2.0/content/6")
	e3 := k.EndpointKey("other", "HomePage", "/api/episerver/v2.0/content/5")
	if e1 == e2 || e1 == e3 {
		t.Error("EndpointKey should depend on every component")
	}
	if !strings.HasPrefix(e1, "endpoint:") {
		t.Errorf("EndpointKey should be prefixed: %s", e1)
	}
}

func TestScopedKeyer(t *testing.T) {
	scoped := NewScopedKeyer(NewDefaultKeyer(), "staging:")

	if got := scoped.ContentKey("cfg", 1); got != "staging:content:cfg:1" {
		t.Errorf("ScopedKeyer ContentKey unexpected: %s", got)
	}
	if got := scoped.EndpointKey("cfg", "A", "/x"); !strings.HasPrefix(got, "staging:endpoint:") {
		t.Errorf("ScopedKeyer EndpointKey should be prefixed: %s", got)
	}
}

func TestScopedKeyerNilInner(t *testing.T) {
	// Should use DefaultKeyer when inner is nil
	scoped := NewScopedKeyer(nil, "prefix:")
	if got := scoped.ContentKey("s", 9); got != "prefix:content:s:9" {
		t.Errorf("Unexpected key with nil inner: %s", got)
	}
}
