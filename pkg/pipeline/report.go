package pipeline

import (
	"time"

	"github.com/Sternrassler/validator-atlas/pkg/enrich"
	"github.com/Sternrassler/validator-atlas/pkg/pagination"
	"github.com/rs/zerolog"
)

// Report summarizes one chain run.
type Report struct {
	Chain string
	RunID string

	Pagination *pagination.Result
	Listed     int

	// Enrich is nil for chains normalized straight from the listing.
	Enrich *enrich.Report

	Rows             int
	NormalizeSkipped int

	CSVPath       string
	ErrorLogPath  string
	ErrorLogBytes int64

	Duration time.Duration
}

// Partial reports whether any data was lost along the way.
func (r *Report) Partial() bool {
	if r.ErrorLogBytes > 0 || r.NormalizeSkipped > 0 {
		return true
	}
	return r.Pagination != nil && !r.Pagination.Complete()
}

// MarshalZerologObject implements zerolog.LogObjectMarshaler.
func (r *Report) MarshalZerologObject(e *zerolog.Event) {
	e.Str("chain", r.Chain)
	if r.Pagination != nil {
		e.Int("pages", r.Pagination.Pages).Str("pagination", string(r.Pagination.Reason))
	}
	e.Int("listed", r.Listed)
	if r.Enrich != nil {
		e.Object("enrich", r.Enrich)
	}
	e.Int("rows", r.Rows).
		Int("normalize_skipped", r.NormalizeSkipped).
		Str("csv", r.CSVPath).
		Int64("error_log_bytes", r.ErrorLogBytes).
		Dur("duration", r.Duration)
}
