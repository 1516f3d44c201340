package geo

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/Sternrassler/validator-atlas/pkg/record"
)

// DefaultIPInfoURL is the public ipinfo endpoint.
const DefaultIPInfoURL = "https://ipinfo.io"

// JSONGetter fetches and decodes a JSON document. *client.Client implements it.
type JSONGetter interface {
	GetJSON(ctx context.Context, rawURL string, out any) error
}

// IPInfo looks addresses up with GET {base}/{ip}?token={token} and reads the
// "loc" field of the response.
type IPInfo struct {
	getter  JSONGetter
	baseURL string
	token   string
}

// NewIPInfo creates an ipinfo-style locator. An empty baseURL means
// DefaultIPInfoURL.
func NewIPInfo(getter JSONGetter, baseURL, token string) *IPInfo {
	if baseURL == "" {
		baseURL = DefaultIPInfoURL
	}
	return &IPInfo{
		getter:  getter,
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
	}
}

// Locate implements Locator.
func (l *IPInfo) Locate(ctx context.Context, ip string) (Location, error) {
	ip = strings.TrimSpace(ip)
	if ip == "" {
		return Location{}, fmt.Errorf("%w: empty ip", ErrNoLocation)
	}
	if l.token == "" {
		lookupsTotal.WithLabelValues("ipinfo", "no_token").Inc()
		return Location{}, ErrMissingToken
	}

	target := fmt.Sprintf("%s/%s?token=%s", l.baseURL, url.PathEscape(ip), url.QueryEscape(l.token))

	var body any
	if err := l.getter.GetJSON(ctx, target, &body); err != nil {
		lookupsTotal.WithLabelValues("ipinfo", "error").Inc()
		return Location{}, fmt.Errorf("lookup %s: %w", ip, err)
	}

	loc := record.LookupString(body, "loc")
	if loc == "" {
		lookupsTotal.WithLabelValues("ipinfo", "no_location").Inc()
		return Location{}, fmt.Errorf("lookup %s: %w", ip, ErrNoLocation)
	}

	location, err := ParseLoc(loc)
	if err != nil {
		lookupsTotal.WithLabelValues("ipinfo", "no_location").Inc()
		return Location{}, fmt.Errorf("lookup %s: %w", ip, err)
	}

	lookupsTotal.WithLabelValues("ipinfo", "ok").Inc()
	return location, nil
}
