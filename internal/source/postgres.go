package source

import (
	"io"
	"time"

	"gorm.io/gorm"

	"github.com/titisda/trading-algorithum/internal/schema"
)

const defaultPostgresBatch = 512

// BarRow is the bars table layout. Prices and sizes are stored as the
// same scaled integers the schema package uses, so decoding is a field
// copy rather than a float conversion.
type BarRow struct {
	ID         int64 `gorm:"primaryKey"`
	SecurityID uint32
	Kind       uint8
	StartNano  int64 `gorm:"index:idx_bars_window"`
	EndNano    int64

	Open   int64
	High   int64
	Low    int64
	Close  int64
	Volume int64

	BidOpen  int64
	BidHigh  int64
	BidLow   int64
	BidClose int64
	BidSize  int64
	AskOpen  int64
	AskHigh  int64
	AskLow   int64
	AskClose int64
	AskSize  int64
}

// TableName implements the gorm table naming contract.
func (BarRow) TableName() string {
	return "bars"
}

// Postgres streams bars for one security out of the bars table in
// (start_nano, id) order, fetching keyset-paginated batches so an
// arbitrarily long history never loads at once. The connection pool is
// owned by the caller; Close does not touch it.
type Postgres struct {
	db         *gorm.DB
	securityID schema.SecurityID
	startNano  int64
	endNano    int64
	batchSize  int

	pending  []BarRow
	lastNano int64
	lastID   int64
	drained  bool
}

// NewPostgres creates a bar producer over the loose window [start, end]
// in exchange-local time.
func NewPostgres(db *gorm.DB, securityID schema.SecurityID, start, end time.Time) *Postgres {
	return &Postgres{
		db:         db,
		securityID: securityID,
		startNano:  start.UnixNano(),
		endNano:    end.UnixNano(),
		batchSize:  defaultPostgresBatch,
		lastNano:   -1 << 62,
	}
}

// WithBatchSize overrides the page size. Values below 1 are ignored.
func (p *Postgres) WithBatchSize(n int) *Postgres {
	if n > 0 {
		p.batchSize = n
	}
	return p
}

// Next implements the record source contract.
func (p *Postgres) Next() (schema.Record, error) {
	if len(p.pending) == 0 {
		if p.drained {
			return schema.Record{}, io.EOF
		}
		if err := p.fetch(); err != nil {
			return schema.Record{}, err
		}
		if len(p.pending) == 0 {
			return schema.Record{}, io.EOF
		}
	}
	row := p.pending[0]
	p.pending = p.pending[1:]
	p.lastNano = row.StartNano
	p.lastID = row.ID
	return row.Record(), nil
}

func (p *Postgres) fetch() error {
	var rows []BarRow
	err := p.db.
		Where("security_id = ?", uint32(p.securityID)).
		Where("end_nano > ? AND start_nano <= ?", p.startNano, p.endNano).
		Where("(start_nano, id) > (?, ?)", p.lastNano, p.lastID).
		Order("start_nano, id").
		Limit(p.batchSize).
		Find(&rows).Error
	if err != nil {
		return err
	}
	p.pending = rows
	if len(rows) < p.batchSize {
		p.drained = true
	}
	return nil
}

// Close implements the record source contract. The pool stays open for
// other subscriptions reading from the same database.
func (p *Postgres) Close() error {
	return nil
}

// Record converts the row back into a pipeline record.
func (r BarRow) Record() schema.Record {
	rec := schema.Record{
		SecurityID: schema.SecurityID(r.SecurityID),
		Kind:       schema.RecordKind(r.Kind),
		Start:      time.Unix(0, r.StartNano).UTC(),
		End:        time.Unix(0, r.EndNano).UTC(),
	}
	switch rec.Kind {
	case schema.KindTradeBar:
		rec.Trade = schema.TradeFields{
			Bar: schema.Bar{
				Open:  schema.Price(r.Open),
				High:  schema.Price(r.High),
				Low:   schema.Price(r.Low),
				Close: schema.Price(r.Close),
			},
			Volume: schema.Quantity(r.Volume),
		}
	case schema.KindQuoteBar:
		rec.Quote = schema.QuoteFields{
			Bid: schema.Bar{
				Open:  schema.Price(r.BidOpen),
				High:  schema.Price(r.BidHigh),
				Low:   schema.Price(r.BidLow),
				Close: schema.Price(r.BidClose),
			},
			BidSize: schema.Quantity(r.BidSize),
			Ask: schema.Bar{
				Open:  schema.Price(r.AskOpen),
				High:  schema.Price(r.AskHigh),
				Low:   schema.Price(r.AskLow),
				Close: schema.Price(r.AskClose),
			},
			AskSize: schema.Quantity(r.AskSize),
		}
	}
	return rec
}

// Row converts a record into its table layout for bulk loads.
func Row(rec schema.Record) BarRow {
	row := BarRow{
		SecurityID: uint32(rec.SecurityID),
		Kind:       uint8(rec.Kind),
		StartNano:  rec.Start.UnixNano(),
		EndNano:    rec.End.UnixNano(),
	}
	switch rec.Kind {
	case schema.KindTradeBar:
		row.Open = int64(rec.Trade.Bar.Open)
		row.High = int64(rec.Trade.Bar.High)
		row.Low = int64(rec.Trade.Bar.Low)
		row.Close = int64(rec.Trade.Bar.Close)
		row.Volume = int64(rec.Trade.Volume)
	case schema.KindQuoteBar:
		row.BidOpen = int64(rec.Quote.Bid.Open)
		row.BidHigh = int64(rec.Quote.Bid.High)
		row.BidLow = int64(rec.Quote.Bid.Low)
		row.BidClose = int64(rec.Quote.Bid.Close)
		row.BidSize = int64(rec.Quote.BidSize)
		row.AskOpen = int64(rec.Quote.Ask.Open)
		row.AskHigh = int64(rec.Quote.Ask.High)
		row.AskLow = int64(rec.Quote.Ask.Low)
		row.AskClose = int64(rec.Quote.Ask.Close)
		row.AskSize = int64(rec.Quote.AskSize)
	}
	return row
}
