package plan

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"gympro/internal/logger"
)

const (
	cacheKeyAll    = "plans:all"
	cacheKeyPrefix = "plans:id:"
)

// CachedCatalog wraps a Catalog with a redis read-through cache. The
// catalog is seeded by migration and read on every availability check, so
// a short TTL is enough to keep the database out of the hot path.
type CachedCatalog struct {
	inner Catalog
	redis *redis.Client
	ttl   time.Duration
}

func NewCachedCatalog(inner Catalog, client *redis.Client, ttl time.Duration) *CachedCatalog {
	return &CachedCatalog{
		inner: inner,
		redis: client,
		ttl:   ttl,
	}
}

func (c *CachedCatalog) ListPlans(ctx context.Context) ([]Plan, error) {
	data, err := c.redis.Get(ctx, cacheKeyAll).Bytes()
	if err == nil {
		var plans []Plan
		if err := json.Unmarshal(data, &plans); err == nil {
			return plans, nil
		}
		logger.Warnf("Bad plan cache payload for %s, refetching", cacheKeyAll)
	}

	plans, err := c.inner.ListPlans(ctx)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(plans); err == nil {
		if err := c.redis.Set(ctx, cacheKeyAll, data, c.ttl).Err(); err != nil {
			logger.Warnf("Failed to cache plan list: %v", err)
		}
	}

	return plans, nil
}

func (c *CachedCatalog) GetByPlanID(ctx context.Context, planID string) (*Plan, error) {
	key := cacheKeyPrefix + planID
	data, err := c.redis.Get(ctx, key).Bytes()
	if err == nil {
		p := &Plan{}
		if err := json.Unmarshal(data, p); err == nil {
			return p, nil
		}
		logger.Warnf("Bad plan cache payload for %s, refetching", key)
	}

	p, err := c.inner.GetByPlanID(ctx, planID)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(p); err == nil {
		if err := c.redis.Set(ctx, key, data, c.ttl).Err(); err != nil {
			logger.Warnf("Failed to cache plan %s: %v", planID, err)
		}
	}

	return p, nil
}
