// Package obs collects lightweight in-process counters for the data feed.
package obs

import (
	"sync/atomic"
	"time"
)

// Metrics counts pipeline activity. All methods are safe on a nil
// receiver so wiring metrics stays optional.
type Metrics struct {
	recordsRead        uint64
	recordsSynthesized uint64
	recordsDropped     uint64
	slicesEmitted      uint64
	subscriptionErrors uint64

	sliceLatency LatencyStats
}

// LatencyStats aggregates duration samples in nanoseconds.
type LatencyStats struct {
	count uint64
	sum   uint64
	min   uint64
	max   uint64
}

// LatencySnapshot is a point-in-time view of latency stats.
type LatencySnapshot struct {
	Count uint64
	Min   time.Duration
	Max   time.Duration
	Avg   time.Duration
}

// Snapshot captures the current metrics values.
type Snapshot struct {
	RecordsRead        uint64
	RecordsSynthesized uint64
	RecordsDropped     uint64
	SlicesEmitted      uint64
	SubscriptionErrors uint64
	SliceLatency       LatencySnapshot
}

// NewMetrics allocates a metrics container.
func NewMetrics() *Metrics {
	return &Metrics{}
}

// IncRecordsRead counts a record pulled from an upstream producer.
func (m *Metrics) IncRecordsRead() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.recordsRead, 1)
}

// IncRecordsSynthesized counts a fill-forward record.
func (m *Metrics) IncRecordsSynthesized() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.recordsSynthesized, 1)
}

// IncRecordsDropped counts a record clipped by the window filter.
func (m *Metrics) IncRecordsDropped() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.recordsDropped, 1)
}

// IncSlicesEmitted counts an emitted slice.
func (m *Metrics) IncSlicesEmitted() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.slicesEmitted, 1)
}

// IncSubscriptionErrors counts a subscription exhausted with an error.
func (m *Metrics) IncSubscriptionErrors() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.subscriptionErrors, 1)
}

// ObserveSliceBuild measures the time spent assembling one slice.
func (m *Metrics) ObserveSliceBuild(d time.Duration) {
	if m == nil {
		return
	}
	m.sliceLatency.Observe(d)
}

// Snapshot returns a copy of the current metrics values.
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	return Snapshot{
		RecordsRead:        atomic.LoadUint64(&m.recordsRead),
		RecordsSynthesized: atomic.LoadUint64(&m.recordsSynthesized),
		RecordsDropped:     atomic.LoadUint64(&m.recordsDropped),
		SlicesEmitted:      atomic.LoadUint64(&m.slicesEmitted),
		SubscriptionErrors: atomic.LoadUint64(&m.subscriptionErrors),
		SliceLatency:       m.sliceLatency.Snapshot(),
	}
}

// Observe records a duration sample.
func (l *LatencyStats) Observe(d time.Duration) {
	if d < 0 {
		return
	}
	nanos := uint64(d)
	atomic.AddUint64(&l.count, 1)
	atomic.AddUint64(&l.sum, nanos)

	for {
		min := atomic.LoadUint64(&l.min)
		if min != 0 && nanos >= min {
			break
		}
		if atomic.CompareAndSwapUint64(&l.min, min, nanos) {
			break
		}
	}

	for {
		max := atomic.LoadUint64(&l.max)
		if nanos <= max {
			break
		}
		if atomic.CompareAndSwapUint64(&l.max, max, nanos) {
			break
		}
	}
}

// Snapshot returns the aggregated latency stats.
func (l *LatencyStats) Snapshot() LatencySnapshot {
	count := atomic.LoadUint64(&l.count)
	if count == 0 {
		return LatencySnapshot{}
	}
	sum := atomic.LoadUint64(&l.sum)
	min := atomic.LoadUint64(&l.min)
	max := atomic.LoadUint64(&l.max)
	return LatencySnapshot{
		Count: count,
		Min:   time.Duration(min),
		Max:   time.Duration(max),
		Avg:   time.Duration(sum / count),
	}
}
