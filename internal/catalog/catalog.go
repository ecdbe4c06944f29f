package catalog

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"github.com/bilgisen/shiurim/internal/cache"
	"github.com/bilgisen/shiurim/internal/logger"
	"github.com/bilgisen/shiurim/internal/models"
	"github.com/bilgisen/shiurim/internal/store"
)

const listKey = "catalog:shiurim"

// Catalog serves the public listing, caching the full list between writes.
type Catalog struct {
	store store.Store
	cache cache.Cache
	ttl   time.Duration
	log   zerolog.Logger
}

// New returns a Catalog. A nil cache disables caching.
func New(st store.Store, c cache.Cache, ttl time.Duration) *Catalog {
	return &Catalog{store: st, cache: c, ttl: ttl, log: logger.With("catalog")}
}

// All returns every shiur, newest first.
func (c *Catalog) All(ctx context.Context) ([]models.Shiur, error) {
	if c.cache != nil && c.ttl > 0 {
		if raw, ok, err := c.cache.Get(ctx, listKey); err == nil && ok {
			var list []models.Shiur
			if json.Unmarshal([]byte(raw), &list) == nil {
				return list, nil
			}
		} else if err != nil {
			c.log.Warn().Err(err).Msg("Catalog cache read failed")
		}
	}

	list, err := store.NewestFirst(ctx, c.store)
	if err != nil {
		return nil, err
	}

	if c.cache != nil && c.ttl > 0 {
		if data, err := json.Marshal(list); err == nil {
			if err := c.cache.Set(ctx, listKey, string(data), c.ttl); err != nil {
				c.log.Warn().Err(err).Msg("Catalog cache write failed")
			}
		}
	}
	return list, nil
}

// Search returns the shiurim matching f, newest first.
func (c *Catalog) Search(ctx context.Context, f Filter) ([]models.Shiur, error) {
	list, err := c.All(ctx)
	if err != nil {
		return nil, err
	}
	return f.Apply(list), nil
}

// Topics returns the topic index.
func (c *Catalog) Topics(ctx context.Context) ([]string, error) {
	list, err := c.All(ctx)
	if err != nil {
		return nil, err
	}
	return Topics(list), nil
}

// Invalidate drops cached listings after a write.
func (c *Catalog) Invalidate(ctx context.Context) {
	if c.cache == nil {
		return
	}
	if err := c.cache.Clear(ctx, "catalog:*"); err != nil {
		c.log.Warn().Err(err).Msg("Catalog cache invalidation failed")
	}
}
