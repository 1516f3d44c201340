// Package geo resolves validator IP addresses to coordinates.
package geo

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var lookupsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "atlas_geo_lookups_total",
	Help: "Geolocation lookups by source and outcome",
}, []string{"source", "outcome"})

var (
	// ErrNoLocation means the lookup answered without a usable "loc" field.
	ErrNoLocation = errors.New("no location in response")

	// ErrMissingToken means the locator has no API credential configured.
	ErrMissingToken = errors.New("geolocation token not configured")
)

// Location is a latitude/longitude pair. The zero value is the default used
// when a lookup fails.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// IsZero reports whether l is the (0,0) default.
func (l Location) IsZero() bool {
	return l.Latitude == 0 && l.Longitude == 0
}

// Locator resolves an IP address to a location.
type Locator interface {
	Locate(ctx context.Context, ip string) (Location, error)
}

// LocatorFunc adapts a function to the Locator interface.
type LocatorFunc func(ctx context.Context, ip string) (Location, error)

// Locate calls f.
func (f LocatorFunc) Locate(ctx context.Context, ip string) (Location, error) {
	return f(ctx, ip)
}

// ParseLoc parses a "lat,long" pair.
func ParseLoc(loc string) (Location, error) {
	parts := strings.Split(loc, ",")
	if len(parts) != 2 {
		return Location{}, fmt.Errorf("%w: malformed loc %q", ErrNoLocation, loc)
	}

	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return Location{}, fmt.Errorf("%w: latitude %q: %v", ErrNoLocation, parts[0], err)
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return Location{}, fmt.Errorf("%w: longitude %q: %v", ErrNoLocation, parts[1], err)
	}

	return Location{Latitude: lat, Longitude: lon}, nil
}
