// Package metrics exposes the Prometheus metrics of the pipeline.
// All metrics are defined in their respective packages via promauto to
// keep packages independent; this package serves them.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the default Prometheus registry used by the pipeline.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Handler returns the /metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Metrics Documentation
//
// Rate Limit Metrics (pkg/ratelimit):
//   - atlas_rate_limit_admissions_total{limiter} (Counter): Admitted requests
//   - atlas_rate_limit_waits_total{limiter} (Counter): Admissions that had to sleep
//   - atlas_rate_limit_wait_seconds{limiter} (Histogram): Sleep duration
//   - atlas_rate_limit_window_requests{limiter} (Gauge): Requests in the current window
//
// Request Metrics (pkg/client):
//   - atlas_http_requests_total{client, status} (Counter)
//   - atlas_http_request_duration_seconds{client} (Histogram)
//   - atlas_http_errors_total{client, class} (Counter)
//   - atlas_http_retries_total{error_class} (Counter)
//   - atlas_http_retry_backoff_seconds{error_class} (Histogram)
//   - atlas_http_retry_exhausted_total{error_class} (Counter)
//
// Pagination Metrics (pkg/pagination):
//   - atlas_pages_fetched_total{listing} (Counter)
//   - atlas_pagination_stops_total{listing, reason} (Counter): complete, error, page_cap
//   - atlas_items_merged_total{listing} (Counter)
//
// Enrichment Metrics (pkg/enrich, pkg/geo, pkg/cache):
//   - atlas_enrich_items_total{stage, outcome} (Counter)
//   - atlas_enrich_item_duration_seconds{stage} (Histogram)
//   - atlas_geo_lookups_total{source, outcome} (Counter)
//   - atlas_cache_hits_total{namespace} / atlas_cache_misses_total{namespace} (Counter)
//   - atlas_cache_size_bytes{namespace} (Gauge)
//   - atlas_cache_errors_total{operation} (Counter)
//
// Output Metrics (pkg/checkpoint, pkg/normalize):
//   - atlas_checkpoint_records_total{store} (Counter)
//   - atlas_checkpoint_error_lines_total{store} (Counter)
//   - atlas_checkpoint_write_failures_total{store, target} (Counter)
//   - atlas_normalized_rows_total{chain} / atlas_normalize_skips_total{chain} (Counter)
//
// Example Prometheus Queries:
//
//   # Geolocation cache hit rate
//   sum(rate(atlas_cache_hits_total{namespace="geo"}[5m])) /
//   (sum(rate(atlas_cache_hits_total{namespace="geo"}[5m])) + sum(rate(atlas_cache_misses_total{namespace="geo"}[5m])))
//
//   # Share of items skipped during enrichment
//   sum(atlas_enrich_items_total{outcome!="appended"}) / sum(atlas_enrich_items_total)
//
//   # P95 request latency per upstream
//   histogram_quantile(0.95, sum by (client, le) (rate(atlas_http_request_duration_seconds_bucket[5m])))
