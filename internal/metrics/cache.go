package metrics

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache is a read-through Redis cache in front of another Source. Trigger
// evaluation hits the same aggregates many times per engine cycle; a short
// TTL keeps one cycle from re-querying Postgres per automation. Cache errors
// are ignored and fall through to the underlying source.
type Cache struct {
	next   Source
	client *redis.Client
	ttl    time.Duration
}

// NewCache wraps a Source with a Redis read-through layer.
func NewCache(next Source, client *redis.Client, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &Cache{next: next, client: client, ttl: ttl}
}

func (c *Cache) Aggregate(ctx context.Context, campaignID, period string) (Aggregate, error) {
	key := fmt.Sprintf("metrics:agg:%s:%s", campaignID, period)
	return c.lookup(ctx, key, func() (Aggregate, error) {
		return c.next.Aggregate(ctx, campaignID, period)
	})
}

func (c *Cache) Latest(ctx context.Context, campaignID string) (Aggregate, error) {
	key := fmt.Sprintf("metrics:latest:%s", campaignID)
	return c.lookup(ctx, key, func() (Aggregate, error) {
		return c.next.Latest(ctx, campaignID)
	})
}

func (c *Cache) lookup(ctx context.Context, key string, load func() (Aggregate, error)) (Aggregate, error) {
	if raw, err := c.client.Get(ctx, key).Bytes(); err == nil {
		var agg Aggregate
		if json.Unmarshal(raw, &agg) == nil {
			return agg, nil
		}
	}

	agg, err := load()
	if err != nil {
		return Aggregate{}, err
	}
	if raw, err := json.Marshal(agg); err == nil {
		_ = c.client.Set(ctx, key, raw, c.ttl).Err()
	}
	return agg, nil
}
