package feed

import (
	"time"

	"github.com/titisda/trading-algorithum/internal/obs"
	"github.com/titisda/trading-algorithum/internal/schema"
)

// windowFilter re-clips an upstream sequence to the caller's window.
// Producers apply a looser any-overlap test against their own query
// bounds and may admit records spilling past the requested window; this
// stage is the authoritative backstop.
type windowFilter struct {
	src     Source
	start   time.Time
	end     time.Time
	metrics *obs.Metrics
}

// NewWindowFilter passes records whose end time lies in (start, end].
// Tick records bypass the upper-bound check since their end carries no
// periodic meaning beyond the tick's own instant. Bounds are
// exchange-local wall-clock times.
func NewWindowFilter(src Source, start, end time.Time, metrics *obs.Metrics) Source {
	return &windowFilter{src: src, start: start, end: end, metrics: metrics}
}

// Next implements Source.
func (f *windowFilter) Next() (schema.Record, error) {
	for {
		rec, err := f.src.Next()
		if err != nil {
			return schema.Record{}, err
		}
		if !rec.End.After(f.start) {
			f.metrics.IncRecordsDropped()
			continue
		}
		if rec.Kind != schema.KindTick && rec.End.After(f.end) {
			f.metrics.IncRecordsDropped()
			continue
		}
		return rec, nil
	}
}

// Close implements Source.
func (f *windowFilter) Close() error {
	return f.src.Close()
}
