package dedup

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestMemoryClaimerOncePerTTL(t *testing.T) {
	c := NewMemoryClaimer()
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	ctx := context.Background()

	ok, _ := c.Claim(ctx, "u1:CYCLE_REMINDER:2025-03-01", time.Hour)
	if !ok {
		t.Fatal("want first claim to succeed")
	}
	ok, _ = c.Claim(ctx, "u1:CYCLE_REMINDER:2025-03-01", time.Hour)
	if ok {
		t.Fatal("want second claim to fail")
	}
	ok, _ = c.Claim(ctx, "u2:CYCLE_REMINDER:2025-03-01", time.Hour)
	if !ok {
		t.Fatal("want a different key to succeed")
	}

	now = now.Add(time.Hour)
	ok, _ = c.Claim(ctx, "u1:CYCLE_REMINDER:2025-03-01", time.Hour)
	if !ok {
		t.Fatal("want claim to succeed after ttl")
	}
}

func TestMemoryClaimerRelease(t *testing.T) {
	c := NewMemoryClaimer()
	ctx := context.Background()
	key := "reminder:u1:DAILY_LOG_REMINDER:2025-03-01"

	if ok, _ := c.Claim(ctx, key, time.Hour); !ok {
		t.Fatal("want first claim to succeed")
	}
	if err := c.Release(ctx, key); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok, _ := c.Claim(ctx, key, time.Hour); !ok {
		t.Fatal("want claim to succeed again after release")
	}
	if err := c.Release(ctx, "never-claimed"); err != nil {
		t.Fatalf("want releasing an unknown key to be a no-op, got %v", err)
	}
}

func TestMemoryClaimerConcurrent(t *testing.T) {
	c := NewMemoryClaimer()
	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := c.Claim(context.Background(), "same", time.Minute); ok {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	if got := wins.Load(); got != 1 {
		t.Fatalf("want 1 winner, got %d", got)
	}
}
