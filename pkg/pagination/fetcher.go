package pagination

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for pagination.
var (
	pagesFetchedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "atlas_pages_fetched_total",
		Help: "Total listing pages fetched and saved",
	}, []string{"listing"})

	paginationStopsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "atlas_pagination_stops_total",
		Help: "Pagination terminations by reason",
	}, []string{"listing", "reason"})
)

// DefaultMaxPages bounds a single pagination walk.
const DefaultMaxPages = 10000

// ErrPageCap is recorded when pagination stops because MaxPages was reached.
var ErrPageCap = errors.New("page cap reached")

// Getter fetches a URL and returns its body. *client.Client implements it.
type Getter interface {
	Get(ctx context.Context, url string) ([]byte, error)
}

// Config holds fetcher configuration.
type Config struct {
	// Name labels logs and metrics.
	Name string

	// BaseURL resolves relative next links.
	BaseURL string

	// MaxPages stops pagination after this many pages.
	MaxPages int
}

// StopReason says why pagination ended.
type StopReason string

const (
	// StopComplete means the last page had no next link.
	StopComplete StopReason = "complete"

	// StopError means a page failed or was malformed; earlier pages are kept.
	StopError StopReason = "error"

	// StopPageCap means MaxPages was reached with a next link still present.
	StopPageCap StopReason = "page_cap"
)

// Result describes one pagination walk.
type Result struct {
	// Pages is the number of pages fetched and saved, including a final
	// page that could not be parsed.
	Pages int

	// Paths are the saved artifacts in page order.
	Paths []string

	// Requests is the number of page requests issued, including a failed one.
	Requests int

	Reason StopReason

	// Err is the failure that ended pagination early, if any.
	Err error

	Duration time.Duration
}

// Complete returns true if the listing was walked to its last page.
func (r *Result) Complete() bool {
	return r.Reason == StopComplete
}

// Fetcher walks a link-following listing one page at a time.
type Fetcher struct {
	getter Getter
	store  *PageStore
	config Config
	logger zerolog.Logger
}

// NewFetcher creates a new link-following fetcher.
func NewFetcher(getter Getter, store *PageStore, config Config) *Fetcher {
	if config.MaxPages <= 0 {
		config.MaxPages = DefaultMaxPages
	}
	if config.Name == "" {
		config.Name = "listing"
	}

	return &Fetcher{
		getter: getter,
		store:  store,
		config: config,
		logger: log.With().Str("component", "pagination").Str("listing", config.Name).Logger(),
	}
}

// FetchAll walks the listing from startURL, saving each page before following
// its next link. Failures end the walk and are reported in Result.Err; the
// returned error is reserved for local failures that leave no usable pages
// (the artifact directory cannot be prepared).
func (f *Fetcher) FetchAll(ctx context.Context, startURL string) (*Result, error) {
	start := time.Now()
	result := &Result{}

	if err := f.store.Clear(); err != nil {
		return nil, fmt.Errorf("clear previous pages: %w", err)
	}

	nextURL := startURL
	for page := 1; nextURL != ""; page++ {
		if page > f.config.MaxPages {
			result.Reason = StopPageCap
			result.Err = fmt.Errorf("%w: %d pages, next %s", ErrPageCap, f.config.MaxPages, nextURL)
			f.logger.Warn().
				Int("max_pages", f.config.MaxPages).
				Msg("Page cap reached, stopping pagination")
			break
		}

		f.logger.Info().Int("page", page).Msg("Fetching page")
		result.Requests++

		body, err := f.getter.Get(ctx, nextURL)
		if err != nil {
			result.Reason = StopError
			result.Err = fmt.Errorf("fetch page %d: %w", page, err)
			f.logger.Error().Err(err).Int("page", page).Msg("Page fetch failed, stopping pagination")
			break
		}

		path, err := f.store.Save(page, body)
		if err != nil {
			result.Reason = StopError
			result.Err = fmt.Errorf("save page %d: %w", page, err)
			f.logger.Error().Err(err).Int("page", page).Msg("Could not save page, stopping pagination")
			break
		}

		result.Pages++
		result.Paths = append(result.Paths, path)
		pagesFetchedTotal.WithLabelValues(f.config.Name).Inc()
		f.logger.Info().Int("page", page).Str("path", path).Msg("Saved page")

		// The raw body is kept even when it cannot be parsed.
		next, err := ParseNextLink(body)
		if err != nil {
			result.Reason = StopError
			result.Err = fmt.Errorf("parse page %d: %w", page, err)
			f.logger.Error().Err(err).Int("page", page).Str("path", path).Msg("Malformed page, stopping pagination")
			break
		}

		if next == "" {
			result.Reason = StopComplete
			f.logger.Info().Msg("No more pages to fetch")
			break
		}
		nextURL = ResolveLink(f.config.BaseURL, next)
	}

	result.Duration = time.Since(start)
	paginationStopsTotal.WithLabelValues(f.config.Name, string(result.Reason)).Inc()

	f.logger.Info().
		Int("pages", result.Pages).
		Int("requests", result.Requests).
		Str("reason", string(result.Reason)).
		Dur("duration", result.Duration).
		Msg("Pagination finished")

	return result, nil
}

// ResolveLink turns a next link into a request URL. Absolute links are used
// as-is; relative links are appended to base.
func ResolveLink(base, link string) string {
	if strings.HasPrefix(link, "http://") || strings.HasPrefix(link, "https://") {
		return link
	}
	base = strings.TrimRight(base, "/")
	if !strings.HasPrefix(link, "/") {
		link = "/" + link
	}
	return base + link
}
