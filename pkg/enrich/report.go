package enrich

import (
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// Report counts the outcomes of one enrichment run. Every input item ends in
// exactly one of Appended, Resumed, Skipped or WriteFailed.
type Report struct {
	Total       int64
	Appended    int64
	Resumed     int64
	Skipped     int64
	WriteFailed int64

	// GeoDegraded and DetailDegraded count items kept with default values.
	// They are included in Appended.
	GeoDegraded    int64
	DetailDegraded int64

	Duration time.Duration
}

func (r *Report) add(field *int64) {
	atomic.AddInt64(field, 1)
}

// MarshalZerologObject implements zerolog.LogObjectMarshaler.
func (r *Report) MarshalZerologObject(e *zerolog.Event) {
	e.Int64("total", atomic.LoadInt64(&r.Total)).
		Int64("appended", atomic.LoadInt64(&r.Appended)).
		Int64("resumed", atomic.LoadInt64(&r.Resumed)).
		Int64("skipped", atomic.LoadInt64(&r.Skipped)).
		Int64("write_failed", atomic.LoadInt64(&r.WriteFailed)).
		Int64("geo_degraded", atomic.LoadInt64(&r.GeoDegraded)).
		Int64("detail_degraded", atomic.LoadInt64(&r.DetailDegraded)).
		Dur("duration", r.Duration)
}
