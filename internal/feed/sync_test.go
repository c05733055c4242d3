package feed

import (
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/titisda/trading-algorithum/internal/bus"
	"github.com/titisda/trading-algorithum/internal/obs"
	"github.com/titisda/trading-algorithum/internal/schema"
	"github.com/titisda/trading-algorithum/internal/source"
)

func newSub(t *testing.T, cfg Config, producer Source, errs *bus.Queue, metrics *obs.Metrics) *Subscription {
	t.Helper()
	sub, err := NewSubscription(cfg, producer, nil, errs, metrics)
	require.NoError(t, err)
	return sub
}

func drainSlices(t *testing.T, y *Synchronizer) []Slice {
	t.Helper()
	var out []Slice
	for {
		s, err := y.Next()
		if err == io.EOF {
			return out
		}
		require.NoError(t, err)
		out = append(out, s)
	}
}

func TestSynchronizerMergesByTime(t *testing.T) {
	start := time.Date(2024, 6, 3, 9, 30, 0, 0, time.UTC)
	end := start.Add(time.Hour)

	// Security 1 trades every minute, security 2 every two minutes.
	var fast, slow []schema.Record
	for i := 0; i < 4; i++ {
		fast = append(fast, tradeBar(1, start.Add(time.Duration(i)*time.Minute), time.Minute, schema.Price(100+i)))
	}
	for i := 0; i < 2; i++ {
		slow = append(slow, tradeBar(2, start.Add(time.Duration(2*i)*time.Minute), 2*time.Minute, schema.Price(200+i)))
	}

	metrics := obs.NewMetrics()
	y := NewSynchronizer(metrics,
		newSub(t, minuteConfig(utcSecurity(1, "AAPL"), start, end), source.NewMemory(fast), nil, metrics),
		newSub(t, minuteConfig(utcSecurity(2, "MSFT"), start, end), source.NewMemory(slow), nil, metrics),
	)
	defer y.Close()

	slices := drainSlices(t, y)
	require.Len(t, slices, 4)

	// Minute boundaries where both securities land carry both records.
	assert.Equal(t, []schema.SecurityID{1}, slices[0].Securities())
	assert.Equal(t, []schema.SecurityID{1, 2}, slices[1].Securities())
	assert.Equal(t, []schema.SecurityID{1}, slices[2].Securities())
	assert.Equal(t, []schema.SecurityID{1, 2}, slices[3].Securities())

	for i, s := range slices {
		assert.Equal(t, start.Add(time.Duration(i+1)*time.Minute), s.Time)
	}
	assert.Equal(t, uint64(4), metrics.Snapshot().SlicesEmitted)
}

func TestSynchronizerFrontiersStrictlyIncrease(t *testing.T) {
	start := time.Date(2024, 6, 3, 9, 30, 0, 0, time.UTC)
	end := start.Add(time.Hour)

	var a, b []schema.Record
	for i := 0; i < 5; i++ {
		a = append(a, tradeBar(1, start.Add(time.Duration(i)*time.Minute), time.Minute, 100))
		b = append(b, tradeBar(2, start.Add(time.Duration(i)*time.Minute), time.Minute, 200))
	}
	y := NewSynchronizer(nil,
		newSub(t, minuteConfig(utcSecurity(1, "AAPL"), start, end), source.NewMemory(a), nil, nil),
		newSub(t, minuteConfig(utcSecurity(2, "MSFT"), start, end), source.NewMemory(b), nil, nil),
	)
	defer y.Close()

	slices := drainSlices(t, y)
	require.NotEmpty(t, slices)
	for i := 1; i < len(slices); i++ {
		assert.True(t, slices[i].Time.After(slices[i-1].Time),
			"slice %d time %s not after %s", i, slices[i].Time, slices[i-1].Time)
	}
}

func TestSynchronizerCoalescesTicksAtSameInstant(t *testing.T) {
	start := time.Date(2024, 6, 3, 9, 30, 0, 0, time.UTC)
	end := start.Add(time.Hour)
	at := start.Add(time.Second)

	ticks := []schema.Record{
		tick(1, at, 100),
		tick(1, at, 101),
		tick(1, at, 102),
		tick(1, at.Add(time.Second), 103),
	}
	cfg := Config{
		Security:   utcSecurity(1, "AAPL"),
		Resolution: schema.ResolutionTick,
		Kind:       schema.KindTick,
		StartUTC:   start,
		EndUTC:     end,
	}
	y := NewSynchronizer(nil, newSub(t, cfg, source.NewMemory(ticks), nil, nil))
	defer y.Close()

	slices := drainSlices(t, y)
	require.Len(t, slices, 2)
	assert.Equal(t, 3, slices[0].Count())
	assert.Equal(t, 1, slices[1].Count())

	prices := make([]schema.Price, 0, 3)
	for _, rec := range slices[0].Records(1) {
		prices = append(prices, rec.Tick.Price)
	}
	assert.Equal(t, []schema.Price{100, 101, 102}, prices)
}

func TestSynchronizerIsolatesFailedSubscription(t *testing.T) {
	start := time.Date(2024, 6, 3, 9, 30, 0, 0, time.UTC)
	end := start.Add(time.Hour)

	var healthy []schema.Record
	for i := 0; i < 4; i++ {
		healthy = append(healthy, tradeBar(1, start.Add(time.Duration(i)*time.Minute), time.Minute, 100))
	}
	failing := source.NewMemory([]schema.Record{
		tradeBar(2, start, time.Minute, 200),
		tradeBar(2, start.Add(time.Minute), time.Minute, 201),
	}).FailAfter(1, errors.New("connection reset"))

	errs := bus.NewQueue(8)
	y := NewSynchronizer(nil,
		newSub(t, minuteConfig(utcSecurity(1, "AAPL"), start, end), source.NewMemory(healthy), errs, nil),
		newSub(t, minuteConfig(utcSecurity(2, "MSFT"), start, end), failing, errs, nil),
	)
	defer y.Close()

	slices := drainSlices(t, y)
	require.Len(t, slices, 4)

	// The first frontier carries both; afterwards only the healthy one.
	assert.Equal(t, []schema.SecurityID{1, 2}, slices[0].Securities())
	for _, s := range slices[1:] {
		assert.Equal(t, []schema.SecurityID{1}, s.Securities())
	}

	// Exactly one failure event, attributed to the failed security.
	events := errs.Drain()
	require.Len(t, events, 1)
	assert.Equal(t, bus.LevelError, events[0].Level)
	assert.Equal(t, schema.SecurityID(2), events[0].SecurityID)
}

func TestSynchronizerRegistrationOrder(t *testing.T) {
	start := time.Date(2024, 6, 3, 9, 30, 0, 0, time.UTC)
	end := start.Add(time.Hour)
	rec := func(id schema.SecurityID) []schema.Record {
		return []schema.Record{tradeBar(id, start, time.Minute, 100)}
	}

	y := NewSynchronizer(nil,
		newSub(t, minuteConfig(utcSecurity(3, "NVDA"), start, end), source.NewMemory(rec(3)), nil, nil),
		newSub(t, minuteConfig(utcSecurity(1, "AAPL"), start, end), source.NewMemory(rec(1)), nil, nil),
		newSub(t, minuteConfig(utcSecurity(2, "MSFT"), start, end), source.NewMemory(rec(2)), nil, nil),
	)
	defer y.Close()

	slices := drainSlices(t, y)
	require.Len(t, slices, 1)
	assert.Equal(t, []schema.SecurityID{3, 1, 2}, slices[0].Securities())
}

func TestSynchronizerEmpty(t *testing.T) {
	y := NewSynchronizer(nil)
	_, err := y.Next()
	assert.Equal(t, io.EOF, err)
	assert.NoError(t, y.Close())
}

func TestSynchronizerCloseReleasesOnce(t *testing.T) {
	start := time.Date(2024, 6, 3, 9, 30, 0, 0, time.UTC)
	end := start.Add(time.Hour)
	p1 := source.NewMemory([]schema.Record{tradeBar(1, start, time.Minute, 100)})
	p2 := source.NewMemory([]schema.Record{tradeBar(2, start, time.Minute, 200)})

	y := NewSynchronizer(nil,
		newSub(t, minuteConfig(utcSecurity(1, "AAPL"), start, end), p1, nil, nil),
		newSub(t, minuteConfig(utcSecurity(2, "MSFT"), start, end), p2, nil, nil),
	)

	require.NoError(t, y.Close())
	require.NoError(t, y.Close())
	assert.Equal(t, 1, p1.CloseCalls())
	assert.Equal(t, 1, p2.CloseCalls())
}
