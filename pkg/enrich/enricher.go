package enrich

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Sternrassler/validator-atlas/pkg/geo"
	"github.com/Sternrassler/validator-atlas/pkg/record"
	"github.com/alitto/pond/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	outcomesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "atlas_enrich_items_total",
		Help: "Enriched items by stage and outcome",
	}, []string{"stage", "outcome"})

	itemDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "atlas_enrich_item_duration_seconds",
		Help:    "Time to enrich and checkpoint one item",
		Buckets: prometheus.DefBuckets,
	}, []string{"stage"})
)

// Coordinate fields written onto every record that went through geolocation.
const (
	LatitudeKey  = "latitude"
	LongitudeKey = "longitude"
)

// ErrMissingIdentifier marks a listing item without a usable identifier.
var ErrMissingIdentifier = errors.New("missing identifier")

// DetailFunc fetches the detail object of one item.
type DetailFunc func(ctx context.Context, id string) (map[string]any, error)

// MergeFunc builds the record from a listing item and its detail object.
// detail is nil when no detail stage is configured or when a failed detail
// lookup was degraded.
type MergeFunc func(item, detail map[string]any) (map[string]any, error)

// Sink receives enriched records and item-level diagnostics.
// *checkpoint.Writer implements it.
type Sink interface {
	Append(rec record.Enriched) error
	LogError(msg string) error
}

// Config describes one enrichment stage.
type Config struct {
	// Name labels logs and metrics.
	Name string

	// IDField is the dotted path of the item identifier.
	IDField string

	// IPField is the dotted path of the IP to geolocate. Empty disables
	// geolocation.
	IPField   string
	Locator   geo.Locator
	GeoPolicy Policy

	// Detail fetches the per-item detail object. Nil disables the detail
	// lookup.
	Detail       DetailFunc
	DetailPolicy Policy

	// Merge builds the record. Nil overlays the detail fields on the item.
	Merge MergeFunc

	// CountFields are collapsed from lists to their length; non-list values
	// become 0.
	CountFields []string

	// Concurrency above 1 enriches items on a worker pool. Records are then
	// appended in completion order.
	Concurrency int

	// Skip reports identifiers that are already checkpointed.
	Skip func(id string) bool
}

// Enricher runs one enrichment stage.
type Enricher struct {
	config Config
	logger zerolog.Logger
}

// New validates config and creates an enricher.
func New(config Config) (*Enricher, error) {
	if config.IDField == "" {
		return nil, fmt.Errorf("id field is required")
	}
	if config.IPField != "" && config.Locator == nil {
		return nil, fmt.Errorf("ip field %q set without a locator", config.IPField)
	}
	if config.Name == "" {
		config.Name = "enrich"
	}
	if config.GeoPolicy == "" {
		config.GeoPolicy = DegradeToDefault
	}
	if config.DetailPolicy == "" {
		config.DetailPolicy = SkipAndLog
	}
	if config.Merge == nil {
		config.Merge = OverlayDetail
	}
	if config.Concurrency < 1 {
		config.Concurrency = 1
	}

	return &Enricher{
		config: config,
		logger: log.With().Str("component", "enricher").Str("stage", config.Name).Logger(),
	}, nil
}

// Run enriches every item and hands the records to sink. Item-level
// failures never abort the run; they are reported through sink and the
// returned Report. Run returns early only when ctx is cancelled.
func (e *Enricher) Run(ctx context.Context, items []record.Item, sink Sink) (*Report, error) {
	start := time.Now()
	report := &Report{Total: int64(len(items))}

	e.logger.Info().
		Int("items", len(items)).
		Int("concurrency", e.config.Concurrency).
		Msg("Starting enrichment")

	var runErr error
	if e.config.Concurrency == 1 {
		for i, item := range items {
			if err := ctx.Err(); err != nil {
				runErr = err
				break
			}
			e.process(ctx, i, item, report, sink)
		}
	} else {
		runErr = e.runPool(ctx, items, report, sink)
	}

	report.Duration = time.Since(start)
	e.logger.Info().EmbedObject(report).Msg("Enrichment finished")

	if runErr != nil {
		return report, fmt.Errorf("enrichment interrupted: %w", runErr)
	}
	return report, nil
}

func (e *Enricher) runPool(ctx context.Context, items []record.Item, report *Report, sink Sink) error {
	pool := pond.NewPool(e.config.Concurrency)
	defer pool.StopAndWait()

	group := pool.NewGroupContext(ctx)
	groupCtx := group.Context()

	for i, item := range items {
		i, item := i, item
		group.Submit(func() {
			if groupCtx.Err() != nil {
				return
			}
			e.process(groupCtx, i, item, report, sink)
		})
	}

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, pond.ErrGroupStopped) {
		e.logger.Warn().Err(err).Msg("Worker pool reported an error")
	}
	return ctx.Err()
}

// process enriches one item and records its outcome.
func (e *Enricher) process(ctx context.Context, idx int, item record.Item, report *Report, sink Sink) {
	start := time.Now()
	defer func() {
		itemDuration.WithLabelValues(e.config.Name).Observe(time.Since(start).Seconds())
	}()

	position := idx + 1
	fields, ok := item.(map[string]any)
	if !ok {
		e.skip(report, sink, "invalid", fmt.Sprintf("Item at index %d is not an object. Skipping.", position))
		return
	}

	id := record.LookupString(fields, e.config.IDField)
	if id == "" {
		e.skip(report, sink, "missing_id", fmt.Sprintf("Item at index %d has no %s. Skipping: %v", position, e.config.IDField, ErrMissingIdentifier))
		return
	}

	if e.config.Skip != nil && e.config.Skip(id) {
		report.add(&report.Resumed)
		outcomesTotal.WithLabelValues(e.config.Name, "resumed").Inc()
		e.logger.Debug().Str("id", id).Msg("Already checkpointed, skipping")
		return
	}

	e.logger.Info().
		Int("item", position).
		Int64("total", report.Total).
		Str("id", id).
		Msg("Enriching item")

	var detail map[string]any
	if e.config.Detail != nil {
		d, err := e.config.Detail(ctx, id)
		if err != nil {
			if e.config.DetailPolicy == SkipAndLog {
				e.skip(report, sink, "detail_failed", fmt.Sprintf("Error fetching details for %s: %v", id, err))
				return
			}
			report.add(&report.DetailDegraded)
			e.logger.Warn().Err(err).Str("id", id).Msg("Detail lookup failed, using defaults")
		} else {
			detail = d
		}
	}

	fieldsCopy := record.Clone(fields)
	rec, err := e.config.Merge(fieldsCopy, detail)
	if err != nil {
		e.skip(report, sink, "merge_failed", fmt.Sprintf("Error processing %s: %v", id, err))
		return
	}
	if rec == nil {
		rec = map[string]any{}
	}

	CollapseCounts(rec, e.config.CountFields)

	if e.config.IPField != "" {
		location, err := e.locate(ctx, fields)
		if err != nil {
			if e.config.GeoPolicy == SkipAndLog {
				e.skip(report, sink, "geo_failed", fmt.Sprintf("Error locating %s: %v", id, err))
				return
			}
			report.add(&report.GeoDegraded)
			e.logger.Warn().Err(err).Str("id", id).Msg("Geolocation failed, using 0,0")
		}
		rec[LatitudeKey] = location.Latitude
		rec[LongitudeKey] = location.Longitude
	}

	rec[record.SourceIDKey] = id

	if err := sink.Append(record.Enriched(rec)); err != nil {
		report.add(&report.WriteFailed)
		outcomesTotal.WithLabelValues(e.config.Name, "write_failed").Inc()
		e.logger.Error().Err(err).Str("id", id).Msg("Checkpoint append failed")
		_ = sink.LogError(fmt.Sprintf("Error appending %s: %v", id, err))
		return
	}

	report.add(&report.Appended)
	outcomesTotal.WithLabelValues(e.config.Name, "appended").Inc()
}

// locate geolocates the item's IP. An empty IP resolves to (0,0) without a
// lookup. On failure the zero location is returned alongside the error.
func (e *Enricher) locate(ctx context.Context, fields map[string]any) (geo.Location, error) {
	ip := record.LookupString(fields, e.config.IPField)
	if ip == "" {
		return geo.Location{}, nil
	}

	location, err := e.config.Locator.Locate(ctx, ip)
	if err != nil {
		return geo.Location{}, err
	}
	return location, nil
}

func (e *Enricher) skip(report *Report, sink Sink, outcome, msg string) {
	report.add(&report.Skipped)
	outcomesTotal.WithLabelValues(e.config.Name, outcome).Inc()
	if err := sink.LogError(msg); err != nil {
		e.logger.Error().Err(err).Msg(msg)
	}
}
