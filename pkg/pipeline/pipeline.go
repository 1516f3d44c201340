// Package pipeline runs the stages of one chain in order: paginate the
// listing, merge the pages, enrich each item into the checkpoint store and
// normalize the result into the canonical CSV.
package pipeline

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"github.com/Sternrassler/validator-atlas/pkg/chain"
	"github.com/Sternrassler/validator-atlas/pkg/checkpoint"
	"github.com/Sternrassler/validator-atlas/pkg/client"
	"github.com/Sternrassler/validator-atlas/pkg/config"
	"github.com/Sternrassler/validator-atlas/pkg/enrich"
	"github.com/Sternrassler/validator-atlas/pkg/geo"
	"github.com/Sternrassler/validator-atlas/pkg/normalize"
	"github.com/Sternrassler/validator-atlas/pkg/pagination"
	"github.com/Sternrassler/validator-atlas/pkg/ratelimit"
	"github.com/Sternrassler/validator-atlas/pkg/record"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Deps are the collaborators a Pipeline does not build itself.
type Deps struct {
	// Locator resolves IPs for chains with geolocation. Required for those
	// chains.
	Locator geo.Locator

	// Clock drives the rate limiters. Nil means the system clock.
	Clock ratelimit.Clock

	// HTTPClient overrides the transport of the chain clients.
	HTTPClient *http.Client

	// RunID tags error log lines.
	RunID string
}

// Pipeline processes one chain.
type Pipeline struct {
	profile chain.Profile
	cfg     *config.Config
	deps    Deps

	listing *client.Client
	detail  *client.Client

	logger zerolog.Logger
}

// New builds the clients of one chain. The chain's rate limiter is shared by
// its listing and detail clients.
func New(cfg *config.Config, profile chain.Profile, deps Deps) (*Pipeline, error) {
	if err := profile.Validate(); err != nil {
		return nil, err
	}
	if profile.IPField != "" && deps.Locator == nil {
		return nil, fmt.Errorf("%s: geolocation requires a locator", profile.Name)
	}

	logger := log.With().Str("component", "pipeline").Str("chain", profile.Name).Logger()

	var limiter *ratelimit.Limiter
	if profile.RateLimit != nil {
		l, err := ratelimit.NewLimiter(profile.Name, *profile.RateLimit, deps.Clock, logger)
		if err != nil {
			return nil, fmt.Errorf("%s rate limit: %w", profile.Name, err)
		}
		limiter = l
	}

	headers := map[string]string{}
	if cred := profile.Credential; cred != nil {
		if v := cfg.Secret(cred.Env); v != "" {
			headers[cred.Header] = v
		} else {
			logger.Warn().Msgf("%s not set, authenticated requests may fail", cred.Env)
		}
	}

	newClient := func(role string) (*client.Client, error) {
		c := clientConfig(cfg, profile.Name+"-"+role, deps.HTTPClient)
		c.Limiter = limiter
		c.Headers = headers
		return client.New(c)
	}

	listing, err := newClient("listing")
	if err != nil {
		return nil, err
	}

	p := &Pipeline{
		profile: profile,
		cfg:     cfg,
		deps:    deps,
		listing: listing,
		logger:  logger,
	}

	if profile.Detail != nil {
		if p.detail, err = newClient("detail"); err != nil {
			return nil, err
		}
	}

	return p, nil
}

// Profile returns the chain profile.
func (p *Pipeline) Profile() chain.Profile {
	return p.profile
}

func (p *Pipeline) path(name string) string {
	return filepath.Join(p.cfg.OutputDir, name)
}

func (p *Pipeline) pageStore() *pagination.PageStore {
	return pagination.NewPageStore(p.path(p.profile.PagesDir()), p.profile.Listing.PagePrefix)
}

// CheckpointPath returns where the checkpoint store lives.
func (p *Pipeline) CheckpointPath() string { return p.path(p.profile.CheckpointFile()) }

// ErrorLogPath returns where the error log lives.
func (p *Pipeline) ErrorLogPath() string { return p.path(p.profile.ErrorLogFile()) }

// ListingPath returns where the merged listing is saved.
func (p *Pipeline) ListingPath() string { return p.path(p.profile.ListingFile()) }

// CSVPath returns where the canonical table is written.
func (p *Pipeline) CSVPath() string { return p.path(p.profile.CSVFile()) }

// Fetch walks the listing and saves its pages.
func (p *Pipeline) Fetch(ctx context.Context) (*pagination.Result, error) {
	fetcher := pagination.NewFetcher(p.listing, p.pageStore(), pagination.Config{
		Name:     p.profile.Name,
		BaseURL:  p.profile.Listing.BaseURL,
		MaxPages: p.cfg.MaxPages,
	})
	return fetcher.FetchAll(ctx, p.profile.Listing.StartURL())
}

// Merge consolidates the saved pages and writes the merged listing.
func (p *Pipeline) Merge() (*pagination.Listing, error) {
	listing, err := pagination.Merge(p.pageStore(), p.profile.Listing.ItemsKey)
	if err != nil {
		return nil, err
	}
	if err := pagination.WriteListing(p.ListingPath(), listing); err != nil {
		return nil, err
	}
	return listing, nil
}

// Enrich runs the detail enricher over items into w.
func (p *Pipeline) Enrich(ctx context.Context, items []record.Item, w *checkpoint.Writer, resume *checkpoint.Index) (*enrich.Report, error) {
	ecfg := enrich.Config{
		Name:        p.profile.Name,
		IDField:     p.profile.IDField,
		IPField:     p.profile.IPField,
		Locator:     p.deps.Locator,
		GeoPolicy:   p.profile.GeoPolicy,
		CountFields: p.profile.CountFields,
		Concurrency: p.cfg.Concurrency,
	}

	if d := p.profile.Detail; d != nil {
		ecfg.DetailPolicy = d.Policy
		ecfg.Merge = d.Merge
		ecfg.Detail = func(ctx context.Context, id string) (map[string]any, error) {
			var out map[string]any
			if err := p.detail.GetJSON(ctx, d.URL(id), &out); err != nil {
				return nil, err
			}
			if out == nil {
				return nil, fmt.Errorf("empty detail for %s", id)
			}
			return out, nil
		}
	}

	if resume != nil {
		ecfg.Skip = resume.Has
	}

	enricher, err := enrich.New(ecfg)
	if err != nil {
		return nil, err
	}
	return enricher.Run(ctx, items, w)
}

// Normalize maps the checkpoint store, or for chains without enrichment the
// given listing items, onto the canonical table and writes the CSV. onSkip
// may be nil.
func (p *Pipeline) Normalize(items []record.Item, onSkip func(string) error) (*normalize.Result, error) {
	n, err := normalize.New(p.profile.Name, p.profile.Mapping, onSkip)
	if err != nil {
		return nil, err
	}

	var result *normalize.Result
	if p.profile.Enriches() {
		result, err = n.Checkpoint(p.CheckpointPath())
		if err != nil {
			return nil, err
		}
	} else {
		result = n.Items(items)
	}

	if err := normalize.WriteCSV(p.CSVPath(), p.profile.Mapping.IDColumn, result.Records); err != nil {
		return nil, err
	}
	p.logger.Info().Str("path", p.CSVPath()).Int("rows", len(result.Records)).Msg("Saved output")
	return result, nil
}

// Run executes every stage. Item-level and pagination failures are logged
// and reported; only local setup failures return an error.
func (p *Pipeline) Run(ctx context.Context) (*Report, error) {
	start := time.Now()
	report := &Report{
		Chain:        p.profile.Name,
		RunID:        p.deps.RunID,
		CSVPath:      p.CSVPath(),
		ErrorLogPath: p.ErrorLogPath(),
	}

	var resume *checkpoint.Index
	if p.cfg.Resume {
		idx, err := checkpoint.LoadIndex(p.CheckpointPath())
		if err != nil {
			return nil, fmt.Errorf("load resume index: %w", err)
		}
		resume = idx
	}

	w, err := checkpoint.Open(p.CheckpointPath(), p.ErrorLogPath(), checkpoint.Options{
		Truncate: !p.cfg.Resume,
		RunID:    p.deps.RunID,
	})
	if err != nil {
		return nil, err
	}
	defer w.Close()

	p.logger.Info().Bool("resume", p.cfg.Resume).Msg("Fetching listing")
	fetched, err := p.Fetch(ctx)
	if err != nil {
		return nil, err
	}
	report.Pagination = fetched
	if fetched.Err != nil {
		_ = w.LogError(fmt.Sprintf("Error fetching %s listing: %v", p.profile.Name, fetched.Err))
	}

	listing, err := p.Merge()
	if err != nil {
		return nil, err
	}
	report.Listed = listing.Count()

	if p.profile.Enriches() {
		er, err := p.Enrich(ctx, listing.Items, w, resume)
		report.Enrich = er
		if err != nil {
			p.logger.Error().Err(err).Msg("Enrichment stopped early")
		}
	}

	normalized, err := p.Normalize(listing.Items, w.LogError)
	if err != nil {
		return nil, err
	}
	report.Rows = len(normalized.Records)
	report.NormalizeSkipped = normalized.Skipped

	report.ErrorLogBytes = checkpoint.ErrorLogSize(p.ErrorLogPath())
	report.Duration = time.Since(start)

	p.logger.Info().EmbedObject(report).Msg("All data has been processed and saved")
	if report.ErrorLogBytes > 0 {
		p.logger.Warn().Str("error_log", p.ErrorLogPath()).Msg("Errors were recorded during the run")
	}

	return report, ctx.Err()
}
