// Package cache provides a Redis-backed lookup cache for enrichment data.
//
// Enrichment calls such as IP geolocation are slow, rate-limited and stable
// over days, so their results are cached across runs. Entries carry an
// explicit expiry and Redis removes them when it passes.
//
// # Basic Usage
//
//	redisClient := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	manager := cache.NewManager(redisClient)
//
//	key := cache.Key{Namespace: "geo", ID: "203.0.113.7"}
//
//	var loc geo.Location
//	err := manager.Load(ctx, key, &loc)
//	if errors.Is(err, cache.ErrCacheMiss) {
//		// look the value up, then store it
//		_ = manager.Save(ctx, key, loc, 7*24*time.Hour)
//	}
//
// Manager.Stats reports the hits and misses of one manager, which the
// pipeline logs as a hit rate when it shuts down.
//
// # Metrics
//
//   - atlas_cache_hits_total{namespace}
//   - atlas_cache_misses_total{namespace}
//   - atlas_cache_size_bytes{namespace}
//   - atlas_cache_errors_total{operation}
package cache
