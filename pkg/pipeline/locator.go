package pipeline

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/Sternrassler/validator-atlas/pkg/cache"
	"github.com/Sternrassler/validator-atlas/pkg/client"
	"github.com/Sternrassler/validator-atlas/pkg/config"
	"github.com/Sternrassler/validator-atlas/pkg/geo"
	"github.com/Sternrassler/validator-atlas/pkg/ratelimit"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// redisPingTimeout bounds the startup check of the geolocation cache.
const redisPingTimeout = 3 * time.Second

// Locator is a geolocation capability plus the resources it holds.
type Locator struct {
	geo.Locator
	redis *redis.Client
	cache *cache.Manager
}

// Close logs the cache hit rate and releases the cache connection, if any.
func (l *Locator) Close() error {
	if l.redis == nil {
		return nil
	}
	stats := l.cache.Stats()
	log.Info().Str("component", "geo").
		Int64("hits", stats.Hits).
		Int64("misses", stats.Misses).
		Float64("hit_rate", stats.HitRate()).
		Msg("Geolocation cache summary")
	return l.redis.Close()
}

// Cached reports whether lookups go through the Redis cache.
func (l *Locator) Cached() bool {
	return l.redis != nil
}

// NewLocator builds the ipinfo locator from cfg, rate-limited when
// cfg.Geo.RateLimit is set and cached in Redis when cfg.Redis.URL is set.
// An unreachable Redis disables the cache with a warning.
func NewLocator(ctx context.Context, cfg *config.Config, clock ratelimit.Clock, httpClient *http.Client) (*Locator, error) {
	logger := log.With().Str("component", "geo").Logger()

	clientCfg := clientConfig(cfg, "ipinfo", httpClient)
	if cfg.Geo.RateLimit != nil {
		limiter, err := ratelimit.NewLimiter("ipinfo", *cfg.Geo.RateLimit, clock, logger)
		if err != nil {
			return nil, fmt.Errorf("geo rate limit: %w", err)
		}
		clientCfg.Limiter = limiter
	}

	c, err := client.New(clientCfg)
	if err != nil {
		return nil, fmt.Errorf("geo client: %w", err)
	}

	if cfg.Geo.Token == "" {
		logger.Warn().Msgf("%s not set, geolocation lookups will default to 0,0", config.EnvIPInfoToken)
	}

	locator := &Locator{Locator: geo.NewIPInfo(c, cfg.Geo.BaseURL, cfg.Geo.Token)}
	if cfg.Redis.URL == "" {
		return locator, nil
	}

	opts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		logger.Warn().Err(err).Str("addr", opts.Addr).Msg("Redis unavailable, geolocation cache disabled")
		rdb.Close()
		return locator, nil
	}

	logger.Info().Str("addr", opts.Addr).Dur("ttl", cfg.Geo.CacheTTL).Msg("Geolocation cache enabled")
	locator.cache = cache.NewManager(rdb)
	locator.Locator = geo.NewCachedLocator(locator.Locator, locator.cache, cfg.Geo.CacheTTL)
	locator.redis = rdb
	return locator, nil
}

func clientConfig(cfg *config.Config, name string, httpClient *http.Client) client.Config {
	c := client.DefaultConfig(name)
	c.UserAgent = cfg.HTTP.UserAgent
	c.Timeout = cfg.HTTP.Timeout
	c.Retry = cfg.HTTP.Retry
	c.HTTPClient = httpClient
	return c
}
