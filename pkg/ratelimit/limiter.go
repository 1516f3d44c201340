package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for rate limit admissions.
var (
	admissionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "atlas_rate_limit_admissions_total",
		Help: "Total requests admitted by the rate limiter",
	}, []string{"limiter"})

	waitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "atlas_rate_limit_waits_total",
		Help: "Total number of times a caller was suspended because the quota was reached",
	}, []string{"limiter"})

	waitSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "atlas_rate_limit_wait_seconds",
		Help:    "Time callers spent suspended by the rate limiter",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
	}, []string{"limiter"})

	windowCount = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "atlas_rate_limit_window_requests",
		Help: "Requests admitted in the current rate window",
	}, []string{"limiter"})
)

// Limiter bounds the request rate to one external API.
//
// A Limiter is safe for concurrent use. Waiters are serialized: a caller that
// hits the quota holds the limiter while it sleeps, so the next caller sees
// the fresh window.
type Limiter struct {
	name   string
	cfg    Config
	clock  Clock
	logger zerolog.Logger

	mu     sync.Mutex
	window Window
	opened bool
}

// NewLimiter creates a limiter named after the API it guards.
func NewLimiter(name string, cfg Config, clock Clock, logger zerolog.Logger) (*Limiter, error) {
	if cfg.Quota <= 0 {
		return nil, fmt.Errorf("rate limit quota must be > 0 (got %d)", cfg.Quota)
	}
	if cfg.Window <= 0 {
		return nil, fmt.Errorf("rate limit window must be > 0 (got %s)", cfg.Window)
	}
	if clock == nil {
		clock = SystemClock{}
	}

	return &Limiter{
		name:   name,
		cfg:    cfg,
		clock:  clock,
		logger: logger.With().Str("limiter", name).Logger(),
	}, nil
}

// Admit must be called before every outbound request. It returns immediately
// while the current window has quota left. Once the quota is used up inside
// the window it sleeps for the rest of the window and opens a new one.
//
// The only error is ctx cancellation during the wait.
func (l *Limiter) Admit(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	if !l.opened {
		l.window.Reset(now)
		l.opened = true
	}

	if l.window.Exhausted(l.cfg.Quota) {
		if wait := l.window.Remaining(now, l.cfg.Window); wait > 0 {
			l.logger.Info().
				Int("requests", l.window.Count).
				Dur("sleep", wait).
				Msg("Rate limit reached, sleeping")

			waitsTotal.WithLabelValues(l.name).Inc()
			waitSeconds.WithLabelValues(l.name).Observe(wait.Seconds())

			if err := l.clock.Sleep(ctx, wait); err != nil {
				return fmt.Errorf("rate limit wait: %w", err)
			}
			now = l.clock.Now()
		}
		l.window.Reset(now)
	} else if l.window.Expired(now, l.cfg.Window) {
		l.window.Reset(now)
	}

	l.window.Count++
	admissionsTotal.WithLabelValues(l.name).Inc()
	windowCount.WithLabelValues(l.name).Set(float64(l.window.Count))

	return nil
}

// State returns a copy of the current window.
func (l *Limiter) State() Window {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.window
}

// Config returns the limiter quota.
func (l *Limiter) Config() Config {
	return l.cfg
}

// FakeClock is a manually driven Clock. Sleep advances the clock instead of
// blocking.
type FakeClock struct {
	mu    sync.Mutex
	now   time.Time
	slept []time.Duration
}

// NewFakeClock returns a FakeClock starting at start.
func NewFakeClock(start time.Time) *FakeClock {
	return &FakeClock{now: start}
}

// Now returns the fake time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Sleep records d and advances the clock by it.
func (c *FakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.slept = append(c.slept, d)
	c.now = c.now.Add(d)
	return nil
}

// Advance moves the clock forward by d.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Slept returns every duration passed to Sleep.
func (c *FakeClock) Slept() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]time.Duration, len(c.slept))
	copy(out, c.slept)
	return out
}
