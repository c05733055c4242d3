package feed

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/yanun0323/errors"

	"github.com/titisda/trading-algorithum/internal/bus"
	"github.com/titisda/trading-algorithum/internal/obs"
	"github.com/titisda/trading-algorithum/internal/schema"
	"github.com/titisda/trading-algorithum/internal/session"
	"github.com/titisda/trading-algorithum/internal/tz"
)

// NormalizationMode selects how raw prices are adjusted before emission.
type NormalizationMode uint8

const (
	NormalizationRaw NormalizationMode = iota
	NormalizationAdjusted
)

func (m NormalizationMode) String() string {
	switch m {
	case NormalizationRaw:
		return "raw"
	case NormalizationAdjusted:
		return "adjusted"
	default:
		return "unknown"
	}
}

// ParseNormalizationMode maps a config string to a NormalizationMode.
// The empty string means raw.
func ParseNormalizationMode(s string) (NormalizationMode, error) {
	switch s {
	case "", "raw":
		return NormalizationRaw, nil
	case "adjusted":
		return NormalizationAdjusted, nil
	default:
		return NormalizationRaw, fmt.Errorf("unknown normalization mode: %q", s)
	}
}

// Config is the immutable per-request subscription descriptor. It is
// created once per query and never mutated after construction.
type Config struct {
	Security      schema.Security
	Resolution    schema.Resolution
	Kind          schema.RecordKind
	FillForward   bool
	ExtendedHours bool
	Normalization NormalizationMode
	// PriceFactor is the adjustment factor applied under adjusted
	// normalization, scaled like a price. Zero means no adjustment.
	PriceFactor schema.Price
	StartUTC    time.Time
	EndUTC      time.Time
}

// Validate fails fast on configuration errors so they never enter the
// pipeline.
func (c Config) Validate() error {
	if c.Security.Ticker == "" {
		return fmt.Errorf("subscription security is empty")
	}
	if c.Security.ExchangeTZ == "" {
		return fmt.Errorf("subscription exchange time zone is empty: %s", c.Security.Ticker)
	}
	if c.EndUTC.Before(c.StartUTC) {
		return ErrInvertedWindow
	}
	switch c.Kind {
	case schema.KindTick:
		if c.Resolution != schema.ResolutionTick {
			return ErrKindResolutionMismatch
		}
	case schema.KindTradeBar, schema.KindQuoteBar:
		if !c.Resolution.IsPeriodic() {
			return ErrKindResolutionMismatch
		}
	case schema.KindAuxiliary:
		// Auxiliary events ride along at any resolution.
	default:
		return fmt.Errorf("subscription record kind is unknown")
	}
	if c.FillForward && c.Resolution == schema.ResolutionTick {
		return ErrTickFillForward
	}
	return nil
}

// AdvanceStatus is the outcome of one subscription step.
type AdvanceStatus uint8

const (
	// AdvanceOk means a new current record is available.
	AdvanceOk AdvanceStatus = iota
	// AdvanceExhausted means the stream ended normally.
	AdvanceExhausted
	// AdvanceFailed means the stream ended with an error that was
	// reported to the side channel.
	AdvanceFailed
)

// Subscription owns one security's pipeline: the terminal enumerator of
// the transform chain, the offset index bound to the exchange time zone,
// and the current cursor record. It is exclusively owned and advanced by
// a single synchronizer.
type Subscription struct {
	cfg     Config
	src     Source
	offsets *tz.OffsetIndex
	errs    *bus.Queue
	metrics *obs.Metrics

	current    schema.Record
	utcTime    time.Time
	hasCurrent bool
	prevUTC    time.Time
	status     AdvanceStatus
	err        error

	closeOnce sync.Once
	closeErr  error
}

// NewSubscription assembles window filter, optional fill-forward, and the
// offset index for one security over producer. The producer must yield
// records in the security's exchange-local time, ordered by time.
func NewSubscription(cfg Config, producer Source, hours session.Hours, errs *bus.Queue, metrics *obs.Metrics) (*Subscription, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if producer == nil {
		return nil, ErrNilProducer
	}

	loc, err := time.LoadLocation(cfg.Security.ExchangeTZ)
	if err != nil {
		return nil, errors.Wrap(err, "load exchange time zone").With("tz", cfg.Security.ExchangeTZ)
	}
	offsets, err := tz.NewOffsetIndex(loc, cfg.StartUTC, cfg.EndUTC)
	if err != nil {
		return nil, errors.Wrap(err, "build offset index")
	}

	startLocal := offsets.UTCToLocal(cfg.StartUTC)
	endLocal := offsets.UTCToLocal(cfg.EndUTC)

	src := NewWindowFilter(producer, startLocal, endLocal, metrics)
	if cfg.FillForward {
		src, err = NewFillForward(src, cfg.Resolution, hours, cfg.ExtendedHours, endLocal, metrics)
		if err != nil {
			return nil, err
		}
	}

	return &Subscription{
		cfg:     cfg,
		src:     src,
		offsets: offsets,
		errs:    errs,
		metrics: metrics,
	}, nil
}

// Advance pulls the next record and converts its local end time into the
// UTC ordering key. Upstream failures and clock regressions exhaust this
// subscription only; both are reported through the side channel.
func (s *Subscription) Advance() AdvanceStatus {
	if s.status != AdvanceOk {
		return s.status
	}

	rec, err := s.src.Next()
	switch {
	case err == io.EOF:
		s.exhaust(AdvanceExhausted, nil)
	case err != nil:
		s.metrics.IncSubscriptionErrors()
		if s.errs != nil {
			s.errs.Error(s.cfg.Security.ID, "upstream read failed", err)
		}
		s.exhaust(AdvanceFailed, err)
	default:
		s.metrics.IncRecordsRead()
		if s.cfg.Normalization == NormalizationAdjusted && s.cfg.PriceFactor > 0 && rec.Kind != schema.KindAuxiliary {
			rec = rec.Scale(s.cfg.PriceFactor, s.cfg.Security.PriceScale)
		}
		utc := s.offsets.LocalToUTC(rec.End)
		if !s.prevUTC.IsZero() && utc.Before(s.prevUTC) {
			err := errors.Wrap(ErrClockInconsistency, "advance subscription").
				With("security", s.cfg.Security.Ticker).
				With("prev", s.prevUTC).
				With("curr", utc)
			s.metrics.IncSubscriptionErrors()
			if s.errs != nil {
				s.errs.Fatal(s.cfg.Security.ID, "record time regressed", err)
			}
			s.exhaust(AdvanceFailed, err)
			return s.status
		}
		s.current = rec
		s.utcTime = utc
		s.hasCurrent = true
		s.prevUTC = utc
	}
	return s.status
}

func (s *Subscription) exhaust(status AdvanceStatus, err error) {
	s.status = status
	s.err = err
	s.hasCurrent = false
	s.current = schema.Record{}
}

// Current returns the latest record, or false before the first advance
// and after exhaustion.
func (s *Subscription) Current() (schema.Record, bool) {
	return s.current, s.hasCurrent
}

// UTCTime returns the current record's UTC ordering key.
func (s *Subscription) UTCTime() time.Time {
	return s.utcTime
}

// EndTimeUTC returns the subscription window's end.
func (s *Subscription) EndTimeUTC() time.Time {
	return s.cfg.EndUTC
}

// Exhausted reports whether no further records will be produced.
func (s *Subscription) Exhausted() bool {
	return s.status != AdvanceOk
}

// Err returns the terminal error for a failed subscription.
func (s *Subscription) Err() error {
	return s.err
}

// Config returns the subscription descriptor.
func (s *Subscription) Config() Config {
	return s.cfg
}

// Close releases the underlying producer. It is safe to call multiple
// times; the release happens exactly once.
func (s *Subscription) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.src.Close()
	})
	return s.closeErr
}
