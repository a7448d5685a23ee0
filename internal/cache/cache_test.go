package cache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/cediguard/cediguard/internal/domain"
)

func TestLRUCacheBasics(t *testing.T) {
	c := NewLRUCache(100)
	defer c.Close()

	ctx := context.Background()
	tenantID := "tenant-001"

	t.Run("SetAndGet", func(t *testing.T) {
		if err := c.Set(ctx, tenantID, "key1", []byte("value1"), time.Minute); err != nil {
			t.Fatalf("Set failed: %v", err)
		}

		val, err := c.Get(ctx, tenantID, "key1")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if string(val) != "value1" {
			t.Errorf("got %q, want value1", val)
		}
	})

	t.Run("MissReturnsNil", func(t *testing.T) {
		val, err := c.Get(ctx, tenantID, "missing")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if val != nil {
			t.Errorf("expected nil for missing key, got %q", val)
		}
	})

	t.Run("TenantIsolation", func(t *testing.T) {
		val, err := c.Get(ctx, "other-tenant", "key1")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if val != nil {
			t.Error("value leaked across tenants")
		}
	})

	t.Run("Delete", func(t *testing.T) {
		c.Set(ctx, tenantID, "doomed", []byte("x"), time.Minute)
		if err := c.Delete(ctx, tenantID, "doomed"); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
		val, _ := c.Get(ctx, tenantID, "doomed")
		if val != nil {
			t.Error("value survived delete")
		}
	})

	t.Run("EmptyTenantRejected", func(t *testing.T) {
		if _, err := c.Get(ctx, "", "key1"); err == nil {
			t.Error("expected error for empty tenantID")
		}
		if err := c.Set(ctx, "", "key1", []byte("v"), time.Minute); err == nil {
			t.Error("expected error for empty tenantID")
		}
	})
}

func TestLRUCacheExpiry(t *testing.T) {
	c := NewLRUCache(100)
	defer c.Close()

	ctx := context.Background()

	c.Set(ctx, "t", "fleeting", []byte("v"), 10*time.Millisecond)
	time.Sleep(30 * time.Millisecond)

	val, err := c.Get(ctx, "t", "fleeting")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if val != nil {
		t.Error("expired entry still readable")
	}
}

func TestLRUCacheEviction(t *testing.T) {
	c := NewLRUCache(3)
	defer c.Close()

	ctx := context.Background()

	for i := 0; i < 5; i++ {
		c.Set(ctx, "t", fmt.Sprintf("key%d", i), []byte("v"), time.Minute)
	}

	size, capacity := c.Stats()
	if size != 3 {
		t.Errorf("size = %d, want 3", size)
	}
	if capacity != 3 {
		t.Errorf("capacity = %d, want 3", capacity)
	}

	// Oldest entries are evicted first.
	val, _ := c.Get(ctx, "t", "key0")
	if val != nil {
		t.Error("key0 should have been evicted")
	}
	val, _ = c.Get(ctx, "t", "key4")
	if val == nil {
		t.Error("key4 should still be cached")
	}
}

func TestLRUIncrementCounter(t *testing.T) {
	c := NewLRUCache(100)
	defer c.Close()

	ctx := context.Background()
	tenantID := "tenant-001"

	for want := int64(1); want <= 3; want++ {
		got, err := c.IncrementCounter(ctx, tenantID, "rl:acc-001", time.Minute)
		if err != nil {
			t.Fatalf("IncrementCounter failed: %v", err)
		}
		if got != want {
			t.Errorf("count = %d, want %d", got, want)
		}
	}

	// Separate key gets its own counter.
	got, _ := c.IncrementCounter(ctx, tenantID, "rl:acc-002", time.Minute)
	if got != 1 {
		t.Errorf("new key count = %d, want 1", got)
	}

	// Expired window restarts at 1.
	c.IncrementCounter(ctx, tenantID, "rl:short", 10*time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	got, _ = c.IncrementCounter(ctx, tenantID, "rl:short", 10*time.Millisecond)
	if got != 1 {
		t.Errorf("count after window expiry = %d, want 1", got)
	}
}

func TestContextRoundTrip(t *testing.T) {
	c := NewLRUCache(100)
	defer c.Close()

	ctx := context.Background()
	tenantID := "tenant-001"
	avg := 125.50

	rc := &domain.RiskContext{
		UserAverageAmount: &avg,
		DailySpent:        800,
		DailyLimit:        2000,
		CountLastHour:     2,
		BlockedMerchants:  map[string]bool{"AgentMart": true},
	}

	if err := c.SetContext(ctx, tenantID, "acc-001", rc, time.Minute); err != nil {
		t.Fatalf("SetContext failed: %v", err)
	}

	got, err := c.GetContext(ctx, tenantID, "acc-001")
	if err != nil {
		t.Fatalf("GetContext failed: %v", err)
	}
	if got == nil {
		t.Fatal("expected cached context")
	}
	if got.UserAverageAmount == nil || *got.UserAverageAmount != 125.50 {
		t.Errorf("average lost in round trip: %v", got.UserAverageAmount)
	}
	if !got.BlockedMerchants["AgentMart"] {
		t.Errorf("merchant map lost in round trip: %v", got.BlockedMerchants)
	}

	missing, err := c.GetContext(ctx, tenantID, "acc-unknown")
	if err != nil {
		t.Fatalf("GetContext failed: %v", err)
	}
	if missing != nil {
		t.Error("expected nil for uncached account")
	}
}

func TestNewSelectsImplementation(t *testing.T) {
	c, err := New(domain.CacheConfig{Type: "memory", LocalMaxSize: 10})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer c.Close()

	if _, ok := c.(*LRUCache); !ok {
		t.Errorf("expected *LRUCache, got %T", c)
	}

	if _, err := New(domain.CacheConfig{Type: "carrier-pigeon"}); err == nil {
		t.Error("expected error for unsupported cache type")
	}
}
