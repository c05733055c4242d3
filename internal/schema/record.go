package schema

import (
	"fmt"
	"time"
)

// RecordKind describes the meaning of the record payload.
// The set is closed; stages dispatch by switching on it.
type RecordKind uint16

const (
	KindUnknown RecordKind = iota
	KindTradeBar
	KindQuoteBar
	KindTick
	KindAuxiliary
)

func (k RecordKind) String() string {
	switch k {
	case KindTradeBar:
		return "tradebar"
	case KindQuoteBar:
		return "quotebar"
	case KindTick:
		return "tick"
	case KindAuxiliary:
		return "auxiliary"
	default:
		return fmt.Sprintf("unknown(%d)", uint16(k))
	}
}

// ParseRecordKind maps a config string to a RecordKind.
func ParseRecordKind(s string) (RecordKind, error) {
	switch s {
	case "tradebar":
		return KindTradeBar, nil
	case "quotebar":
		return KindQuoteBar, nil
	case "tick":
		return KindTick, nil
	case "auxiliary":
		return KindAuxiliary, nil
	default:
		return KindUnknown, fmt.Errorf("unknown record kind: %q", s)
	}
}

// Bar is one OHLC group. A zero bar means the side was not updated.
type Bar struct {
	Open  Price
	High  Price
	Low   Price
	Close Price
}

// IsZero reports whether the bar carries no update.
func (b Bar) IsZero() bool {
	return b == Bar{}
}

// TradeFields is the payload for KindTradeBar.
type TradeFields struct {
	Bar
	Volume Quantity
}

// QuoteFields is the payload for KindQuoteBar. Either side may be zero
// when the upstream update only touched one side of the book.
type QuoteFields struct {
	Bid     Bar
	BidSize Quantity
	Ask     Bar
	AskSize Quantity
}

// TickFields is the payload for KindTick.
type TickFields struct {
	Price    Price
	Size     Quantity
	BidPrice Price
	AskPrice Price
}

// AuxKind describes an auxiliary corporate event.
type AuxKind uint16

const (
	AuxUnknown AuxKind = iota
	AuxDividend
	AuxSplit
	AuxDelisting
)

// AuxFields is the payload for KindAuxiliary.
type AuxFields struct {
	Kind AuxKind
	// Distribution is the per-share dividend amount for AuxDividend.
	Distribution Price
	// Factor is the split factor for AuxSplit, scaled like a price.
	Factor Price
	// ReferencePrice is the last close before the event.
	ReferencePrice Price
}

// Record is one timestamped market observation for a security.
// Start and End are exchange-local wall-clock times; End is the exclusive
// upper bound of the period the record summarizes. Exactly one payload
// group is meaningful, selected by Kind.
type Record struct {
	SecurityID  SecurityID
	Kind        RecordKind
	Start       time.Time
	End         time.Time
	FillForward bool

	Trade TradeFields
	Quote QuoteFields
	Tick  TickFields
	Aux   AuxFields
}

// Validate checks the record time invariant.
func (r Record) Validate() error {
	if r.End.Before(r.Start) {
		return fmt.Errorf("record end %s before start %s", r.End, r.Start)
	}
	return nil
}

// WithPeriod returns a copy of the record re-timed to [start, end).
func (r Record) WithPeriod(start, end time.Time) Record {
	r.Start = start
	r.End = end
	return r
}

// Value returns the representative price of the record.
func (r Record) Value() Price {
	switch r.Kind {
	case KindTradeBar:
		return r.Trade.Close
	case KindQuoteBar:
		if r.Quote.Bid.IsZero() {
			return r.Quote.Ask.Close
		}
		if r.Quote.Ask.IsZero() {
			return r.Quote.Bid.Close
		}
		return (r.Quote.Bid.Close + r.Quote.Ask.Close) / 2
	case KindTick:
		return r.Tick.Price
	case KindAuxiliary:
		return r.Aux.ReferencePrice
	default:
		return 0
	}
}

// Scale multiplies every price field by factor/priceScaleUnit, where
// factor is a scaled price. Used by adjusted normalization.
func (r Record) Scale(factor Price, priceScale int) Record {
	unit := scaleUnit(priceScale)
	mul := func(p Price) Price {
		return Price(int64(p) * int64(factor) / unit)
	}
	mulBar := func(b Bar) Bar {
		return Bar{Open: mul(b.Open), High: mul(b.High), Low: mul(b.Low), Close: mul(b.Close)}
	}
	switch r.Kind {
	case KindTradeBar:
		r.Trade.Bar = mulBar(r.Trade.Bar)
	case KindQuoteBar:
		if !r.Quote.Bid.IsZero() {
			r.Quote.Bid = mulBar(r.Quote.Bid)
		}
		if !r.Quote.Ask.IsZero() {
			r.Quote.Ask = mulBar(r.Quote.Ask)
		}
	case KindTick:
		r.Tick.Price = mul(r.Tick.Price)
		r.Tick.BidPrice = mul(r.Tick.BidPrice)
		r.Tick.AskPrice = mul(r.Tick.AskPrice)
	}
	return r
}

func scaleUnit(scale int) int64 {
	unit := int64(1)
	for i := 0; i < scale; i++ {
		unit *= 10
	}
	return unit
}

// AppendSummary appends a one-line human readable form, used by tools.
func (r Record) AppendSummary(buf []byte, priceScale, quantityScale int) []byte {
	buf = append(buf, r.Kind.String()...)
	buf = append(buf, ' ')
	buf = r.Start.AppendFormat(buf, "2006-01-02T15:04:05")
	if r.FillForward {
		buf = append(buf, " ff"...)
	}
	switch r.Kind {
	case KindTradeBar:
		buf = append(buf, " c="...)
		buf = r.Trade.Close.AppendString(priceScale, buf)
		buf = append(buf, " v="...)
		buf = r.Trade.Volume.AppendString(quantityScale, buf)
	case KindQuoteBar:
		buf = append(buf, " b="...)
		buf = r.Quote.Bid.Close.AppendString(priceScale, buf)
		buf = append(buf, " a="...)
		buf = r.Quote.Ask.Close.AppendString(priceScale, buf)
	case KindTick:
		buf = append(buf, " p="...)
		buf = r.Tick.Price.AppendString(priceScale, buf)
		buf = append(buf, " s="...)
		buf = r.Tick.Size.AppendString(quantityScale, buf)
	case KindAuxiliary:
		buf = append(buf, " aux="...)
		buf = appendScaledInt(buf, int64(r.Aux.Kind), 0)
	}
	return buf
}
