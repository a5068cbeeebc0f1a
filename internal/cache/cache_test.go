package cache

import (
	"context"
	"testing"
	"time"

	"github.com/agentic-finance/kestrel/internal/domain"
)

func TestLRUSetGet(t *testing.T) {
	c := NewLRUCache(10)
	defer c.Close()
	ctx := context.Background()

	if err := c.Set(ctx, "key1", []byte("value1"), time.Minute); err != nil {
		t.Fatalf("set failed: %v", err)
	}

	val, err := c.Get(ctx, "key1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if string(val) != "value1" {
		t.Errorf("expected value1, got %s", val)
	}
}

func TestLRUMissReturnsNil(t *testing.T) {
	c := NewLRUCache(10)
	defer c.Close()

	val, err := c.Get(context.Background(), "missing")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if val != nil {
		t.Errorf("expected nil on miss, got %s", val)
	}
}

func TestLRUExpiration(t *testing.T) {
	c := NewLRUCache(10)
	defer c.Close()
	ctx := context.Background()

	if err := c.Set(ctx, "short", []byte("v"), 10*time.Millisecond); err != nil {
		t.Fatalf("set failed: %v", err)
	}

	time.Sleep(20 * time.Millisecond)

	val, err := c.Get(ctx, "short")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if val != nil {
		t.Error("expired entry must not be returned")
	}
}

func TestLRUEviction(t *testing.T) {
	c := NewLRUCache(2)
	defer c.Close()
	ctx := context.Background()

	c.Set(ctx, "a", []byte("1"), time.Minute)
	c.Set(ctx, "b", []byte("2"), time.Minute)

	// Touch "a" so "b" becomes the eviction candidate.
	c.Get(ctx, "a")
	c.Set(ctx, "c", []byte("3"), time.Minute)

	if val, _ := c.Get(ctx, "b"); val != nil {
		t.Error("least recently used entry must be evicted")
	}
	if val, _ := c.Get(ctx, "a"); val == nil {
		t.Error("recently used entry must survive eviction")
	}

	size, capacity := c.Stats()
	if size != 2 || capacity != 2 {
		t.Errorf("expected size 2 capacity 2, got %d/%d", size, capacity)
	}
}

func TestLRUDelete(t *testing.T) {
	c := NewLRUCache(10)
	defer c.Close()
	ctx := context.Background()

	c.Set(ctx, "key1", []byte("v"), time.Minute)
	if err := c.Delete(ctx, "key1"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if val, _ := c.Get(ctx, "key1"); val != nil {
		t.Error("deleted entry must not be returned")
	}
}

func TestProfileRoundTrip(t *testing.T) {
	c := NewLRUCache(10)
	defer c.Close()
	ctx := context.Background()

	profile := &domain.RecipientProfile{
		Recipient:     "api-vendor",
		TxCount:       4,
		TotalAmount:   200,
		AverageAmount: 50,
		PurposeCounts: map[string]int{"api-credits": 4},
		Cadence:       domain.CadenceRegular,
		Risk:          domain.RiskVector{Concentration: 0.4},
		UpdatedAt:     time.Now().UTC(),
	}

	if err := c.SetProfile(ctx, "api-vendor", profile, time.Minute); err != nil {
		t.Fatalf("set profile failed: %v", err)
	}

	got, err := c.GetProfile(ctx, "api-vendor")
	if err != nil {
		t.Fatalf("get profile failed: %v", err)
	}
	if got == nil {
		t.Fatal("expected cached profile")
	}
	if got.TxCount != 4 || got.Cadence != domain.CadenceRegular || got.Risk.Concentration != 0.4 {
		t.Errorf("round trip mismatch: %+v", got)
	}

	miss, err := c.GetProfile(ctx, "never-seen")
	if err != nil {
		t.Fatalf("get profile failed: %v", err)
	}
	if miss != nil {
		t.Error("profile miss must return nil, nil")
	}
}

func TestNewFactorySelectsType(t *testing.T) {
	c, err := New(domain.CacheConfig{Type: "memory", LocalMaxSize: 100})
	if err != nil {
		t.Fatalf("factory failed: %v", err)
	}
	defer c.Close()

	if _, ok := c.(*LRUCache); !ok {
		t.Errorf("expected LRU cache for memory type, got %T", c)
	}

	if _, err := New(domain.CacheConfig{Type: "memcached"}); err == nil {
		t.Error("expected error for unsupported cache type")
	}
}
