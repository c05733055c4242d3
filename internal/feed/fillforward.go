package feed

import (
	"io"
	"time"

	"github.com/titisda/trading-algorithum/internal/obs"
	"github.com/titisda/trading-algorithum/internal/schema"
	"github.com/titisda/trading-algorithum/internal/session"
)

// fillForward synthesizes carried-forward records at the subscription
// cadence when the underlying feed has gaps. Synthetic records outside
// the tradable session are suppressed unless extended hours is enabled;
// the expected boundary jumps to the next session open instead.
type fillForward struct {
	src      *peekSource
	res      time.Duration
	hours    session.Hours
	extended bool
	end      time.Time // subscription end, exchange-local
	metrics  *obs.Metrics

	last      schema.Record
	haveLast  bool
	nextStart time.Time
	delisted  bool
	done      bool
}

// NewFillForward wraps src with gap synthesis at the given resolution.
// The resolution must be periodic; tick streams cannot be filled forward.
func NewFillForward(src Source, resolution schema.Resolution, hours session.Hours, extended bool, endLocal time.Time, metrics *obs.Metrics) (Source, error) {
	d := resolution.Duration()
	if d <= 0 {
		return nil, ErrTickFillForward
	}
	if hours == nil {
		hours = session.AlwaysOpen()
	}
	return &fillForward{
		src:      newPeekSource(src),
		res:      d,
		hours:    hours,
		extended: extended,
		end:      endLocal,
		metrics:  metrics,
	}, nil
}

// Next implements Source.
func (f *fillForward) Next() (schema.Record, error) {
	if f.done {
		return schema.Record{}, io.EOF
	}

	if !f.haveLast {
		rec, err := f.src.Next()
		if err != nil {
			if err == io.EOF {
				f.done = true
			}
			return schema.Record{}, err
		}
		if rec.Kind == schema.KindAuxiliary {
			f.observeAux(rec)
			return rec, nil
		}
		return f.adoptReal(rec), nil
	}

	rec, err := f.src.Peek()
	switch {
	case err == io.EOF:
		synth, ok := f.synthesizeBefore(time.Time{})
		if ok {
			return synth, nil
		}
		f.done = true
		return schema.Record{}, io.EOF
	case err != nil:
		return schema.Record{}, err
	}

	if rec.Kind == schema.KindAuxiliary {
		_, _ = f.src.Next()
		f.observeAux(rec)
		return rec, nil
	}

	if !rec.Start.After(f.nextStart) {
		_, _ = f.src.Next()
		return f.adoptReal(rec), nil
	}

	// The real record is late; fill the gap up to its start.
	if synth, ok := f.synthesizeBefore(rec.Start); ok {
		return synth, nil
	}
	_, _ = f.src.Next()
	return f.adoptReal(rec), nil
}

// adoptReal takes ownership of a real record as the new clone template
// and advances the expected boundary past it. A quote bar with a stale
// side keeps that side's last values while adopting the fresh side.
func (f *fillForward) adoptReal(rec schema.Record) schema.Record {
	if rec.Kind == schema.KindQuoteBar && f.haveLast && f.last.Kind == schema.KindQuoteBar {
		if rec.Quote.Bid.IsZero() && !f.last.Quote.Bid.IsZero() {
			rec.Quote.Bid = f.last.Quote.Bid
			rec.Quote.BidSize = f.last.Quote.BidSize
		}
		if rec.Quote.Ask.IsZero() && !f.last.Quote.Ask.IsZero() {
			rec.Quote.Ask = f.last.Quote.Ask
			rec.Quote.AskSize = f.last.Quote.AskSize
		}
	}
	f.last = rec
	f.haveLast = true
	f.nextStart = rec.Start.Add(f.res)
	return rec
}

func (f *fillForward) observeAux(rec schema.Record) {
	if rec.Aux.Kind == schema.AuxDelisting {
		f.delisted = true
	}
}

// synthesizeBefore emits the next synthetic record whose start precedes
// limit (no limit when zero). It jumps the expected boundary over closed
// sessions and stops past the subscription end or after a delisting.
func (f *fillForward) synthesizeBefore(limit time.Time) (schema.Record, bool) {
	for !f.delisted {
		if f.nextStart.Add(f.res).After(f.end) {
			return schema.Record{}, false
		}
		if !limit.IsZero() && !f.nextStart.Before(limit) {
			return schema.Record{}, false
		}
		if !f.hours.IsOpen(f.nextStart, f.extended) {
			open := f.hours.NextOpen(f.nextStart, f.extended)
			if open.IsZero() {
				return schema.Record{}, false
			}
			f.nextStart = open
			continue
		}
		synth := f.last.WithPeriod(f.nextStart, f.nextStart.Add(f.res))
		synth.FillForward = true
		f.nextStart = synth.End
		f.metrics.IncRecordsSynthesized()
		return synth, true
	}
	return schema.Record{}, false
}

// Close implements Source.
func (f *fillForward) Close() error {
	return f.src.Close()
}
