package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	// ErrCacheMiss is returned when a key is absent or its entry has expired.
	ErrCacheMiss = errors.New("cache miss")

	// ErrInvalidEntry is returned when a stored entry cannot be decoded.
	ErrInvalidEntry = errors.New("invalid cache entry")
)

// Stats counts lookups served by one Manager.
type Stats struct {
	Hits   int64
	Misses int64
}

// HitRate is the share of lookups answered from the cache, 0 when nothing
// was looked up.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// Manager stores enrichment results in Redis.
type Manager struct {
	redis  *redis.Client
	logger zerolog.Logger

	hits   atomic.Int64
	misses atomic.Int64
}

// NewManager panics on a nil client.
func NewManager(redisClient *redis.Client) *Manager {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	return &Manager{
		redis:  redisClient,
		logger: log.With().Str("component", "cache").Logger(),
	}
}

// Ping checks the Redis connection.
func (m *Manager) Ping(ctx context.Context) error {
	return m.redis.Ping(ctx).Err()
}

// Stats returns the hit and miss counts since the manager was created.
func (m *Manager) Stats() Stats {
	return Stats{Hits: m.hits.Load(), Misses: m.misses.Load()}
}

// Load decodes the value cached under key into out. A corrupt entry is
// removed and reported as ErrInvalidEntry so the next Save replaces it.
func (m *Manager) Load(ctx context.Context, key Key, out any) error {
	entry, err := m.Get(ctx, key)
	if err == nil {
		err = entry.Decode(out)
	}
	if errors.Is(err, ErrInvalidEntry) {
		m.logger.Warn().Err(err).Str("key", key.String()).Msg("Dropping corrupt entry")
		_ = m.Delete(ctx, key)
	}
	return err
}

// Save caches value under key for ttl.
func (m *Manager) Save(ctx context.Context, key Key, value any, ttl time.Duration) error {
	entry, err := NewEntry(value, ttl)
	if err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		return err
	}
	return m.Set(ctx, key, entry)
}

// Get returns the raw entry under key, or ErrCacheMiss when it is absent or
// expired.
func (m *Manager) Get(ctx context.Context, key Key) (*Entry, error) {
	data, err := m.redis.Get(ctx, key.String()).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		m.miss(key)
		return nil, ErrCacheMiss
	case err != nil:
		CacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		CacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}

	if entry.IsExpired() {
		_ = m.Delete(ctx, key)
		m.miss(key)
		return nil, ErrCacheMiss
	}

	m.hits.Add(1)
	CacheHits.WithLabelValues(key.Namespace).Inc()
	return &entry, nil
}

func (m *Manager) miss(key Key) {
	m.misses.Add(1)
	CacheMisses.WithLabelValues(key.Namespace).Inc()
}

// Set writes entry with a Redis expiry matching entry.Expires. Entries that
// have already expired are dropped silently.
func (m *Manager) Set(ctx context.Context, key Key, entry *Entry) error {
	if entry == nil {
		return errors.New("cache entry cannot be nil")
	}

	ttl := entry.TTL()
	if ttl <= 0 {
		return nil
	}

	data, err := json.Marshal(entry)
	if err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("marshal cache entry: %w", err)
	}

	if err := m.redis.Set(ctx, key.String(), data, ttl).Err(); err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("redis set %s: %w", key, err)
	}

	CacheSize.WithLabelValues(key.Namespace).Add(float64(len(data)))
	return nil
}

// Delete removes key.
func (m *Manager) Delete(ctx context.Context, key Key) error {
	if err := m.redis.Del(ctx, key.String()).Err(); err != nil {
		CacheErrors.WithLabelValues("delete").Inc()
		return fmt.Errorf("redis del %s: %w", key, err)
	}
	return nil
}
