package source

import (
	"fmt"
	"io"
	"time"

	"github.com/titisda/trading-algorithum/internal/schema"
)

// Generator produces a deterministic synthetic bar stream for one
// security: a triangle-wave walk around a base price at a fixed cadence.
// The same inputs always produce byte-identical records, which keeps
// replay tools and tests reproducible.
type Generator struct {
	securityID schema.SecurityID
	kind       schema.RecordKind
	res        time.Duration
	basePrice  schema.Price
	amplitude  schema.Price
	spread     schema.Price
	baseSize   schema.Quantity

	next  time.Time
	end   time.Time
	index int
}

// GeneratorConfig describes one synthetic stream.
type GeneratorConfig struct {
	SecurityID schema.SecurityID
	Kind       schema.RecordKind
	Resolution schema.Resolution
	Start      time.Time
	End        time.Time
	BasePrice  schema.Price
	Amplitude  schema.Price
	Spread     schema.Price
	BaseSize   schema.Quantity
}

// NewGenerator validates the config and creates a bar generator.
func NewGenerator(cfg GeneratorConfig) (*Generator, error) {
	if cfg.SecurityID == 0 {
		return nil, fmt.Errorf("generator security id is zero")
	}
	if cfg.Kind != schema.KindTradeBar && cfg.Kind != schema.KindQuoteBar {
		return nil, fmt.Errorf("generator supports bar kinds only, got %s", cfg.Kind)
	}
	res := cfg.Resolution.Duration()
	if res <= 0 {
		return nil, fmt.Errorf("generator resolution must be periodic, got %s", cfg.Resolution)
	}
	if cfg.End.Before(cfg.Start) {
		return nil, fmt.Errorf("generator end %s before start %s", cfg.End, cfg.Start)
	}
	if cfg.BasePrice <= 0 {
		return nil, fmt.Errorf("generator base price must be > 0")
	}
	if cfg.BaseSize <= 0 {
		cfg.BaseSize = 1
	}
	if cfg.Amplitude < 0 {
		cfg.Amplitude = 0
	}
	if cfg.Spread < 0 {
		cfg.Spread = 0
	}
	return &Generator{
		securityID: cfg.SecurityID,
		kind:       cfg.Kind,
		res:        res,
		basePrice:  cfg.BasePrice,
		amplitude:  cfg.Amplitude,
		spread:     cfg.Spread,
		baseSize:   cfg.BaseSize,
		next:       cfg.Start,
		end:        cfg.End,
	}, nil
}

// Next implements the record source contract.
func (g *Generator) Next() (schema.Record, error) {
	start := g.next
	if start.Add(g.res).After(g.end) {
		return schema.Record{}, io.EOF
	}
	g.next = start.Add(g.res)

	open := g.priceAt(g.index)
	close := g.priceAt(g.index + 1)
	g.index++

	high, low := open, close
	if close > open {
		high = close
		low = open
	}

	rec := schema.Record{
		SecurityID: g.securityID,
		Kind:       g.kind,
		Start:      start,
		End:        start.Add(g.res),
	}
	switch g.kind {
	case schema.KindTradeBar:
		rec.Trade = schema.TradeFields{
			Bar:    schema.Bar{Open: open, High: high, Low: low, Close: close},
			Volume: g.baseSize,
		}
	case schema.KindQuoteBar:
		bid := schema.Bar{Open: open - g.spread, High: high - g.spread, Low: low - g.spread, Close: close - g.spread}
		ask := schema.Bar{Open: open + g.spread, High: high + g.spread, Low: low + g.spread, Close: close + g.spread}
		rec.Quote = schema.QuoteFields{
			Bid:     bid,
			BidSize: g.baseSize,
			Ask:     ask,
			AskSize: g.baseSize,
		}
	}
	return rec, nil
}

// priceAt is a triangle wave: up for a stretch, down for a stretch.
func (g *Generator) priceAt(i int) schema.Price {
	if g.amplitude == 0 {
		return g.basePrice
	}
	period := int(2 * g.amplitude)
	phase := schema.Price(i % period)
	if phase < g.amplitude {
		return g.basePrice + phase
	}
	return g.basePrice + 2*g.amplitude - phase
}

// Close implements the record source contract.
func (g *Generator) Close() error {
	return nil
}
