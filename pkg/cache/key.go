package cache

import (
	"strings"
)

// KeyPrefix starts every cache key.
const KeyPrefix = "atlas"

// Key identifies one cached lookup.
type Key struct {
	// Namespace groups keys of one lookup kind (e.g. "geo")
	Namespace string

	// ID is the looked-up identifier (e.g. an IP address)
	ID string
}

// String generates a deterministic cache key string.
// Format: atlas:namespace:id
//
// Example:
//
//	atlas:geo:203.0.113.7
func (k Key) String() string {
	parts := []string{KeyPrefix}

	if ns := strings.Trim(k.Namespace, ": "); ns != "" {
		parts = append(parts, strings.ToLower(ns))
	}
	parts = append(parts, strings.TrimSpace(k.ID))

	return strings.Join(parts, ":")
}
