// Package source provides record producers for the feed pipeline: an
// in-memory slice, a deterministic synthetic generator, and a Postgres
// bar store. Bar-log file replay lives in the barlog package.
package source

import (
	"errors"
	"io"
	"sync/atomic"
	"time"

	"github.com/titisda/trading-algorithum/internal/schema"
)

// ErrSourceClosed is returned by Next after Close.
var ErrSourceClosed = errors.New("source closed")

// Memory yields an in-memory, time-ordered record slice. Like every
// producer it applies the loose any-overlap window test against its own
// bounds; the pipeline's window filter re-clips exactly.
type Memory struct {
	recs       []schema.Record
	start, end time.Time
	idx        int

	failAfter int
	failErr   error

	closed     uint32
	closeCalls uint32
}

// NewMemory creates a producer over records. The caller must supply them
// in non-decreasing time order; the producer does not re-sort.
func NewMemory(recs []schema.Record) *Memory {
	return &Memory{recs: recs, failAfter: -1}
}

// WithWindow applies the producer-side overlap window in exchange-local
// time. The zero window disables clipping.
func (m *Memory) WithWindow(start, end time.Time) *Memory {
	m.start = start
	m.end = end
	return m
}

// FailAfter makes the producer fail with err once n records were
// emitted. Used to exercise upstream read failures.
func (m *Memory) FailAfter(n int, err error) *Memory {
	m.failAfter = n
	m.failErr = err
	return m
}

// Next implements the record source contract.
func (m *Memory) Next() (schema.Record, error) {
	if atomic.LoadUint32(&m.closed) != 0 {
		return schema.Record{}, ErrSourceClosed
	}
	for {
		if m.failAfter == 0 {
			return schema.Record{}, m.failErr
		}
		if m.idx >= len(m.recs) {
			return schema.Record{}, io.EOF
		}
		rec := m.recs[m.idx]
		m.idx++
		if !m.overlaps(rec) {
			continue
		}
		if m.failAfter > 0 {
			m.failAfter--
		}
		return rec, nil
	}
}

func (m *Memory) overlaps(rec schema.Record) bool {
	if m.start.IsZero() && m.end.IsZero() {
		return true
	}
	return rec.End.After(m.start) && !rec.Start.After(m.end)
}

// Close implements the record source contract.
func (m *Memory) Close() error {
	atomic.StoreUint32(&m.closed, 1)
	atomic.AddUint32(&m.closeCalls, 1)
	return nil
}

// CloseCalls reports how many times Close ran. Tests use it to assert
// the exactly-once release contract.
func (m *Memory) CloseCalls() int {
	return int(atomic.LoadUint32(&m.closeCalls))
}
