package feed

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/titisda/trading-algorithum/internal/bus"
	"github.com/titisda/trading-algorithum/internal/obs"
	"github.com/titisda/trading-algorithum/internal/schema"
	"github.com/titisda/trading-algorithum/internal/source"
)

func utcSecurity(id schema.SecurityID, ticker string) schema.Security {
	return schema.Security{
		ID:            id,
		Ticker:        ticker,
		ExchangeTZ:    "UTC",
		DataTZ:        "UTC",
		PriceScale:    2,
		QuantityScale: 0,
	}
}

func minuteConfig(sec schema.Security, start, end time.Time) Config {
	return Config{
		Security:   sec,
		Resolution: schema.ResolutionMinute,
		Kind:       schema.KindTradeBar,
		StartUTC:   start,
		EndUTC:     end,
	}
}

func TestConfigValidate(t *testing.T) {
	start := time.Date(2024, 6, 3, 9, 30, 0, 0, time.UTC)
	sec := utcSecurity(1, "AAPL")

	t.Run("empty ticker", func(t *testing.T) {
		cfg := minuteConfig(schema.Security{}, start, start.Add(time.Hour))
		assert.Error(t, cfg.Validate())
	})

	t.Run("inverted window", func(t *testing.T) {
		cfg := minuteConfig(sec, start, start.Add(-time.Hour))
		assert.ErrorIs(t, cfg.Validate(), ErrInvertedWindow)
	})

	t.Run("tick kind needs tick resolution", func(t *testing.T) {
		cfg := minuteConfig(sec, start, start.Add(time.Hour))
		cfg.Kind = schema.KindTick
		assert.ErrorIs(t, cfg.Validate(), ErrKindResolutionMismatch)
	})

	t.Run("bar kind needs periodic resolution", func(t *testing.T) {
		cfg := minuteConfig(sec, start, start.Add(time.Hour))
		cfg.Resolution = schema.ResolutionTick
		assert.ErrorIs(t, cfg.Validate(), ErrKindResolutionMismatch)
	})

	t.Run("tick fill forward rejected", func(t *testing.T) {
		cfg := Config{
			Security:    sec,
			Resolution:  schema.ResolutionTick,
			Kind:        schema.KindTick,
			FillForward: true,
			StartUTC:    start,
			EndUTC:      start.Add(time.Hour),
		}
		assert.ErrorIs(t, cfg.Validate(), ErrTickFillForward)
	})

	t.Run("ok", func(t *testing.T) {
		cfg := minuteConfig(sec, start, start.Add(time.Hour))
		assert.NoError(t, cfg.Validate())
	})
}

func TestNewSubscriptionUnknownTimeZone(t *testing.T) {
	start := time.Date(2024, 6, 3, 9, 30, 0, 0, time.UTC)
	sec := utcSecurity(1, "AAPL")
	sec.ExchangeTZ = "Mars/Olympus"
	cfg := minuteConfig(sec, start, start.Add(time.Hour))

	_, err := NewSubscription(cfg, source.NewMemory(nil), nil, nil, nil)
	assert.Error(t, err)
}

func TestNewSubscriptionNilProducer(t *testing.T) {
	start := time.Date(2024, 6, 3, 9, 30, 0, 0, time.UTC)
	cfg := minuteConfig(utcSecurity(1, "AAPL"), start, start.Add(time.Hour))

	_, err := NewSubscription(cfg, nil, nil, nil, nil)
	assert.ErrorIs(t, err, ErrNilProducer)
}

func TestSubscriptionAdvance(t *testing.T) {
	start := time.Date(2024, 6, 3, 9, 30, 0, 0, time.UTC)
	cfg := minuteConfig(utcSecurity(1, "AAPL"), start, start.Add(time.Hour))
	recs := []schema.Record{
		tradeBar(1, start, time.Minute, 100),
		tradeBar(1, start.Add(time.Minute), time.Minute, 101),
	}
	sub, err := NewSubscription(cfg, source.NewMemory(recs), nil, nil, obs.NewMetrics())
	require.NoError(t, err)
	defer sub.Close()

	require.Equal(t, AdvanceOk, sub.Advance())
	rec, ok := sub.Current()
	require.True(t, ok)
	assert.Equal(t, schema.Price(100), rec.Trade.Close)
	assert.Equal(t, start.Add(time.Minute), sub.UTCTime())

	require.Equal(t, AdvanceOk, sub.Advance())
	assert.Equal(t, start.Add(2*time.Minute), sub.UTCTime())

	assert.Equal(t, AdvanceExhausted, sub.Advance())
	assert.True(t, sub.Exhausted())
	assert.NoError(t, sub.Err())
	_, ok = sub.Current()
	assert.False(t, ok)

	// Further advances stay exhausted.
	assert.Equal(t, AdvanceExhausted, sub.Advance())
}

func TestSubscriptionUpstreamFailure(t *testing.T) {
	start := time.Date(2024, 6, 3, 9, 30, 0, 0, time.UTC)
	cfg := minuteConfig(utcSecurity(1, "AAPL"), start, start.Add(time.Hour))
	boom := errors.New("disk gone")
	producer := source.NewMemory([]schema.Record{
		tradeBar(1, start, time.Minute, 100),
		tradeBar(1, start.Add(time.Minute), time.Minute, 101),
	}).FailAfter(1, boom)

	errs := bus.NewQueue(8)
	metrics := obs.NewMetrics()
	sub, err := NewSubscription(cfg, producer, nil, errs, metrics)
	require.NoError(t, err)
	defer sub.Close()

	require.Equal(t, AdvanceOk, sub.Advance())
	assert.Equal(t, AdvanceFailed, sub.Advance())
	assert.ErrorIs(t, sub.Err(), boom)
	assert.Equal(t, uint64(1), metrics.Snapshot().SubscriptionErrors)

	events := errs.Drain()
	require.Len(t, events, 1)
	assert.Equal(t, bus.LevelError, events[0].Level)
	assert.Equal(t, schema.SecurityID(1), events[0].SecurityID)
}

func TestSubscriptionClockRegression(t *testing.T) {
	start := time.Date(2024, 6, 3, 9, 30, 0, 0, time.UTC)
	cfg := minuteConfig(utcSecurity(1, "AAPL"), start, start.Add(time.Hour))
	recs := []schema.Record{
		tradeBar(1, start.Add(5*time.Minute), time.Minute, 100),
		tradeBar(1, start.Add(2*time.Minute), time.Minute, 99), // regresses
	}

	errs := bus.NewQueue(8)
	sub, err := NewSubscription(cfg, source.NewMemory(recs), nil, errs, nil)
	require.NoError(t, err)
	defer sub.Close()

	require.Equal(t, AdvanceOk, sub.Advance())
	assert.Equal(t, AdvanceFailed, sub.Advance())
	assert.ErrorIs(t, sub.Err(), ErrClockInconsistency)

	events := errs.Drain()
	require.Len(t, events, 1)
	assert.Equal(t, bus.LevelFatal, events[0].Level)
}

func TestSubscriptionAdjustedNormalization(t *testing.T) {
	start := time.Date(2024, 6, 3, 9, 30, 0, 0, time.UTC)
	sec := utcSecurity(1, "AAPL")
	cfg := minuteConfig(sec, start, start.Add(time.Hour))
	cfg.Normalization = NormalizationAdjusted
	cfg.PriceFactor = 50 // 0.50 at scale 2

	recs := []schema.Record{tradeBar(1, start, time.Minute, 1000)}
	sub, err := NewSubscription(cfg, source.NewMemory(recs), nil, nil, nil)
	require.NoError(t, err)
	defer sub.Close()

	require.Equal(t, AdvanceOk, sub.Advance())
	rec, ok := sub.Current()
	require.True(t, ok)
	assert.Equal(t, schema.Price(500), rec.Trade.Close)
}

func TestSubscriptionLocalToUTCOrderingKey(t *testing.T) {
	// New York bars: the ordering key is the record end converted to UTC.
	startUTC := time.Date(2024, 6, 3, 13, 30, 0, 0, time.UTC) // 09:30 local
	sec := utcSecurity(1, "AAPL")
	sec.ExchangeTZ = "America/New_York"
	cfg := minuteConfig(sec, startUTC, startUTC.Add(time.Hour))

	local := time.Date(2024, 6, 3, 9, 30, 0, 0, time.UTC) // local wall clock
	recs := []schema.Record{tradeBar(1, local, time.Minute, 100)}
	sub, err := NewSubscription(cfg, source.NewMemory(recs), nil, nil, nil)
	require.NoError(t, err)
	defer sub.Close()

	require.Equal(t, AdvanceOk, sub.Advance())
	assert.Equal(t, startUTC.Add(time.Minute), sub.UTCTime())
}

func TestSubscriptionCloseOnce(t *testing.T) {
	start := time.Date(2024, 6, 3, 9, 30, 0, 0, time.UTC)
	cfg := minuteConfig(utcSecurity(1, "AAPL"), start, start.Add(time.Hour))
	producer := source.NewMemory(nil)
	sub, err := NewSubscription(cfg, producer, nil, nil, nil)
	require.NoError(t, err)

	require.NoError(t, sub.Close())
	require.NoError(t, sub.Close())
	assert.Equal(t, 1, producer.CloseCalls())
}
