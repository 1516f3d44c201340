// Package ratelimit implements a fixed-quota request window that callers
// consult inline before every outbound API request.
package ratelimit

import (
	"time"
)

// Defaults match the public Solana Beach API allowance.
const (
	DefaultQuota  = 100
	DefaultWindow = 10 * time.Second
)

// Config holds the quota for one API.
type Config struct {
	// Quota is the number of requests admitted per window.
	Quota int `yaml:"quota"`

	// Window is the length of one rate window.
	Window time.Duration `yaml:"window"`
}

// DefaultConfig returns 100 requests per 10 seconds.
func DefaultConfig() Config {
	return Config{
		Quota:  DefaultQuota,
		Window: DefaultWindow,
	}
}

// Window is the mutable request window of a Limiter.
type Window struct {
	// Count is the number of requests admitted since Start.
	Count int `json:"request_count"`

	// Start is when the current window opened.
	Start time.Time `json:"window_start"`
}

// Elapsed returns how long the window has been open at now.
func (w *Window) Elapsed(now time.Time) time.Duration {
	return now.Sub(w.Start)
}

// Exhausted returns true if the window has admitted quota requests.
func (w *Window) Exhausted(quota int) bool {
	return w.Count >= quota
}

// Expired returns true if the window is older than length at now.
func (w *Window) Expired(now time.Time, length time.Duration) bool {
	return w.Elapsed(now) >= length
}

// Remaining returns the time left in the window at now, or 0 if it has expired.
func (w *Window) Remaining(now time.Time, length time.Duration) time.Duration {
	left := length - w.Elapsed(now)
	if left < 0 {
		return 0
	}
	return left
}

// Reset opens a fresh window at now.
func (w *Window) Reset(now time.Time) {
	w.Count = 0
	w.Start = now
}
