package metrics

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type countingSource struct {
	calls int
	agg   Aggregate
}

func (c *countingSource) Aggregate(ctx context.Context, campaignID, period string) (Aggregate, error) {
	c.calls++
	return c.agg, nil
}

func (c *countingSource) Latest(ctx context.Context, campaignID string) (Aggregate, error) {
	c.calls++
	return c.agg, nil
}

func TestCacheReadThrough(t *testing.T) {
	ctx := context.Background()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	defer mr.Close()

	src := &countingSource{agg: Aggregate{Spend: 600, Revenue: 900, ROAS: 1.5}}
	cache := NewCache(src, redis.NewClient(&redis.Options{Addr: mr.Addr()}), time.Minute)

	first, err := cache.Aggregate(ctx, "c1", "daily")
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}
	if first.Spend != 600 {
		t.Fatalf("expected spend 600, got %v", first.Spend)
	}
	if src.calls != 1 {
		t.Fatalf("expected 1 source call, got %d", src.calls)
	}

	second, err := cache.Aggregate(ctx, "c1", "daily")
	if err != nil {
		t.Fatalf("cached aggregate: %v", err)
	}
	if second != first {
		t.Fatalf("cached value mismatch: %+v vs %+v", second, first)
	}
	if src.calls != 1 {
		t.Fatalf("expected cache hit, source called %d times", src.calls)
	}

	// A different campaign misses the cache.
	if _, err := cache.Aggregate(ctx, "c2", "daily"); err != nil {
		t.Fatalf("aggregate c2: %v", err)
	}
	if src.calls != 2 {
		t.Fatalf("expected 2 source calls, got %d", src.calls)
	}
}

func TestWindowDefaultsToDaily(t *testing.T) {
	if Window("weekly") != 7*24*time.Hour {
		t.Fatalf("weekly window wrong")
	}
	if Window("monthly") != 30*24*time.Hour {
		t.Fatalf("monthly window wrong")
	}
	if Window("") != 24*time.Hour || Window("bogus") != 24*time.Hour {
		t.Fatalf("default window should be daily")
	}
}
