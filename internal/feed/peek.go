package feed

import (
	"github.com/gammazero/deque"

	"github.com/titisda/trading-algorithum/internal/schema"
)

// peekSource decorates a Source with bounded lookahead so the
// fill-forward stage can inspect the next real record without consuming
// it. The terminal error (including io.EOF) is sticky.
type peekSource struct {
	src Source
	buf deque.Deque[schema.Record]
	err error
}

func newPeekSource(src Source) *peekSource {
	return &peekSource{src: src}
}

// Peek returns the next record without consuming it.
func (p *peekSource) Peek() (schema.Record, error) {
	if p.buf.Len() > 0 {
		return p.buf.Front(), nil
	}
	if p.err != nil {
		return schema.Record{}, p.err
	}
	rec, err := p.src.Next()
	if err != nil {
		p.err = err
		return schema.Record{}, err
	}
	p.buf.PushBack(rec)
	return rec, nil
}

// Next implements Source.
func (p *peekSource) Next() (schema.Record, error) {
	if p.buf.Len() > 0 {
		return p.buf.PopFront(), nil
	}
	if p.err != nil {
		return schema.Record{}, p.err
	}
	rec, err := p.src.Next()
	if err != nil {
		p.err = err
		return schema.Record{}, err
	}
	return rec, nil
}

// Close implements Source.
func (p *peekSource) Close() error {
	return p.src.Close()
}
