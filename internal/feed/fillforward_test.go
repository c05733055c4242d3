package feed

import (
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/titisda/trading-algorithum/internal/obs"
	"github.com/titisda/trading-algorithum/internal/schema"
	"github.com/titisda/trading-algorithum/internal/session"
	"github.com/titisda/trading-algorithum/internal/source"
)

func TestFillForwardGap(t *testing.T) {
	base := time.Date(2024, 6, 3, 9, 30, 0, 0, time.UTC)
	metrics := obs.NewMetrics()
	recs := []schema.Record{
		tradeBar(1, base, time.Minute, 100),
		tradeBar(1, base.Add(3*time.Minute), time.Minute, 103),
	}
	src, err := NewFillForward(source.NewMemory(recs), schema.ResolutionMinute, nil, false, base.Add(4*time.Minute), metrics)
	require.NoError(t, err)

	got := drain(t, src)
	require.Len(t, got, 4)

	assert.False(t, got[0].FillForward)
	assert.Equal(t, schema.Price(100), got[0].Trade.Close)

	// Gap minutes carry the prior bar's values at shifted periods.
	for i, start := range []time.Time{base.Add(time.Minute), base.Add(2 * time.Minute)} {
		synth := got[1+i]
		assert.True(t, synth.FillForward)
		assert.Equal(t, start, synth.Start)
		assert.Equal(t, start.Add(time.Minute), synth.End)
		assert.Equal(t, schema.Price(100), synth.Trade.Close)
	}

	assert.False(t, got[3].FillForward)
	assert.Equal(t, schema.Price(103), got[3].Trade.Close)
	assert.Equal(t, uint64(2), metrics.Snapshot().RecordsSynthesized)
}

func TestFillForwardTailToWindowEnd(t *testing.T) {
	base := time.Date(2024, 6, 3, 9, 30, 0, 0, time.UTC)
	recs := []schema.Record{tradeBar(1, base, time.Minute, 100)}
	src, err := NewFillForward(source.NewMemory(recs), schema.ResolutionMinute, nil, false, base.Add(4*time.Minute), nil)
	require.NoError(t, err)

	got := drain(t, src)
	require.Len(t, got, 4)
	for i := 1; i < 4; i++ {
		assert.True(t, got[i].FillForward)
		assert.Equal(t, base.Add(time.Duration(i)*time.Minute), got[i].Start)
	}
	// The last synthetic period ends exactly at the window end.
	assert.Equal(t, base.Add(4*time.Minute), got[3].End)
}

func TestFillForwardSkipsClosedSession(t *testing.T) {
	// Last regular-session minute Monday, first minute Tuesday. Nothing
	// is synthesized overnight.
	monday := time.Date(2024, 6, 3, 15, 58, 0, 0, time.UTC)
	tuesday := time.Date(2024, 6, 4, 9, 30, 0, 0, time.UTC)
	recs := []schema.Record{
		tradeBar(1, monday, time.Minute, 100),
		tradeBar(1, tuesday, time.Minute, 105),
	}
	src, err := NewFillForward(source.NewMemory(recs), schema.ResolutionMinute, session.Equity(), false, tuesday.Add(time.Hour), nil)
	require.NoError(t, err)

	rec, err := src.Next()
	require.NoError(t, err)
	assert.Equal(t, monday, rec.Start)

	rec, err = src.Next()
	require.NoError(t, err)
	assert.True(t, rec.FillForward)
	assert.Equal(t, monday.Add(time.Minute), rec.Start) // 15:59, the session's last minute

	rec, err = src.Next()
	require.NoError(t, err)
	assert.False(t, rec.FillForward)
	assert.Equal(t, tuesday, rec.Start)
}

func TestFillForwardExtendedHours(t *testing.T) {
	// With extended hours on, synthesis continues into the post-market.
	start := time.Date(2024, 6, 3, 15, 59, 0, 0, time.UTC)
	recs := []schema.Record{tradeBar(1, start, time.Minute, 100)}
	src, err := NewFillForward(source.NewMemory(recs), schema.ResolutionMinute, session.Equity(), true, start.Add(3*time.Minute), nil)
	require.NoError(t, err)

	got := drain(t, src)
	require.Len(t, got, 3)
	assert.Equal(t, time.Date(2024, 6, 3, 16, 0, 0, 0, time.UTC), got[1].Start)
	assert.True(t, got[1].FillForward)
	assert.True(t, got[2].FillForward)
}

func TestFillForwardQuoteStaleSide(t *testing.T) {
	base := time.Date(2024, 6, 3, 9, 30, 0, 0, time.UTC)
	full := schema.Record{
		SecurityID: 1,
		Kind:       schema.KindQuoteBar,
		Start:      base,
		End:        base.Add(time.Minute),
		Quote: schema.QuoteFields{
			Bid:     schema.Bar{Open: 99, High: 99, Low: 99, Close: 99},
			BidSize: 10,
			Ask:     schema.Bar{Open: 101, High: 101, Low: 101, Close: 101},
			AskSize: 12,
		},
	}
	bidOnly := schema.Record{
		SecurityID: 1,
		Kind:       schema.KindQuoteBar,
		Start:      base.Add(time.Minute),
		End:        base.Add(2 * time.Minute),
		Quote: schema.QuoteFields{
			Bid:     schema.Bar{Open: 98, High: 98, Low: 98, Close: 98},
			BidSize: 20,
		},
	}
	src, err := NewFillForward(source.NewMemory([]schema.Record{full, bidOnly}), schema.ResolutionMinute, nil, false, base.Add(2*time.Minute), nil)
	require.NoError(t, err)

	_, err = src.Next()
	require.NoError(t, err)

	rec, err := src.Next()
	require.NoError(t, err)
	assert.False(t, rec.FillForward)
	assert.Equal(t, schema.Price(98), rec.Quote.Bid.Close)
	// The stale ask side carries forward from the previous bar.
	assert.Equal(t, schema.Price(101), rec.Quote.Ask.Close)
	assert.Equal(t, schema.Quantity(12), rec.Quote.AskSize)
}

func TestFillForwardStopsAfterDelisting(t *testing.T) {
	base := time.Date(2024, 6, 3, 9, 30, 0, 0, time.UTC)
	delist := schema.Record{
		SecurityID: 1,
		Kind:       schema.KindAuxiliary,
		Start:      base.Add(time.Minute),
		End:        base.Add(time.Minute),
		Aux:        schema.AuxFields{Kind: schema.AuxDelisting, ReferencePrice: 100},
	}
	recs := []schema.Record{tradeBar(1, base, time.Minute, 100), delist}
	src, err := NewFillForward(source.NewMemory(recs), schema.ResolutionMinute, nil, false, base.Add(time.Hour), nil)
	require.NoError(t, err)

	got := drain(t, src)
	require.Len(t, got, 2)
	assert.Equal(t, schema.KindTradeBar, got[0].Kind)
	assert.Equal(t, schema.KindAuxiliary, got[1].Kind)
}

func TestFillForwardDeterministicReplay(t *testing.T) {
	base := time.Date(2024, 6, 3, 9, 30, 0, 0, time.UTC)
	recs := []schema.Record{
		tradeBar(1, base, time.Minute, 100),
		tradeBar(1, base.Add(4*time.Minute), time.Minute, 104),
		tradeBar(1, base.Add(5*time.Minute), time.Minute, 105),
	}
	run := func() []schema.Record {
		src, err := NewFillForward(source.NewMemory(recs), schema.ResolutionMinute, nil, false, base.Add(8*time.Minute), nil)
		require.NoError(t, err)
		return drain(t, src)
	}
	assert.Equal(t, run(), run())
}

func TestFillForwardRejectsTick(t *testing.T) {
	_, err := NewFillForward(source.NewMemory(nil), schema.ResolutionTick, nil, false, time.Now(), nil)
	assert.ErrorIs(t, err, ErrTickFillForward)
}

func TestFillForwardEmptySource(t *testing.T) {
	src, err := NewFillForward(source.NewMemory(nil), schema.ResolutionMinute, nil, false, time.Now(), nil)
	require.NoError(t, err)
	_, err = src.Next()
	assert.Equal(t, io.EOF, err)
}
