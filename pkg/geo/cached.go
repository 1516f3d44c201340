package geo

import (
	"context"
	"errors"
	"time"

	"github.com/Sternrassler/validator-atlas/pkg/cache"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// CacheNamespace is the cache key namespace of geolocation entries.
const CacheNamespace = "geo"

// DefaultCacheTTL keeps a resolved address for a week.
const DefaultCacheTTL = 7 * 24 * time.Hour

// Store is the subset of *cache.Manager used by CachedLocator.
type Store interface {
	Load(ctx context.Context, key cache.Key, out any) error
	Save(ctx context.Context, key cache.Key, value any, ttl time.Duration) error
}

// CachedLocator serves lookups from a cache and falls back to the wrapped
// locator on a miss. Only successful lookups are stored. Cache failures are
// logged and never fail a lookup.
type CachedLocator struct {
	next   Locator
	store  Store
	ttl    time.Duration
	logger zerolog.Logger
}

// NewCachedLocator wraps next with store. A non-positive ttl means
// DefaultCacheTTL.
func NewCachedLocator(next Locator, store Store, ttl time.Duration) *CachedLocator {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &CachedLocator{
		next:   next,
		store:  store,
		ttl:    ttl,
		logger: log.With().Str("component", "geo-cache").Logger(),
	}
}

// Locate implements Locator.
func (c *CachedLocator) Locate(ctx context.Context, ip string) (Location, error) {
	key := cache.Key{Namespace: CacheNamespace, ID: ip}

	var location Location
	err := c.store.Load(ctx, key, &location)
	switch {
	case err == nil:
		c.logger.Debug().Str("ip", ip).Msg("Cache hit")
		lookupsTotal.WithLabelValues("cache", "ok").Inc()
		return location, nil
	case errors.Is(err, cache.ErrCacheMiss):
		c.logger.Debug().Str("ip", ip).Msg("Cache miss")
	case errors.Is(err, cache.ErrInvalidEntry):
		c.logger.Warn().Err(err).Str("ip", ip).Msg("Ignoring corrupt cache entry")
	default:
		c.logger.Warn().Err(err).Str("ip", ip).Msg("Cache read failed")
	}

	location, err = c.next.Locate(ctx, ip)
	if err != nil {
		return Location{}, err
	}

	if err := c.store.Save(ctx, key, location, c.ttl); err != nil {
		c.logger.Warn().Err(err).Str("ip", ip).Msg("Cache write failed")
	}

	return location, nil
}
