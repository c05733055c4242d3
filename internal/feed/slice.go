package feed

import (
	"time"

	"github.com/titisda/trading-algorithum/internal/schema"
)

// Slice is an immutable cross-security snapshot at one synchronized
// frontier timestamp. Securities absent from the slice had no update at
// this frontier.
type Slice struct {
	// Time is the frontier timestamp in UTC.
	Time time.Time

	ids  []schema.SecurityID
	data map[schema.SecurityID][]schema.Record
}

// Securities returns contributing security IDs in subscription
// registration order. The order is stable for reproducibility, not
// correctness.
func (s Slice) Securities() []schema.SecurityID {
	return s.ids
}

// Records returns the records carried for a security at this frontier.
// A subscription can contribute more than one record when several ticks
// share the exact frontier instant.
func (s Slice) Records(id schema.SecurityID) []schema.Record {
	return s.data[id]
}

// Has reports whether the security contributed to this slice.
func (s Slice) Has(id schema.SecurityID) bool {
	_, ok := s.data[id]
	return ok
}

// Count returns the total number of records across all securities.
func (s Slice) Count() int {
	n := 0
	for _, recs := range s.data {
		n += len(recs)
	}
	return n
}

func (s *Slice) add(id schema.SecurityID, rec schema.Record) {
	if s.data == nil {
		s.data = make(map[schema.SecurityID][]schema.Record)
	}
	if _, ok := s.data[id]; !ok {
		s.ids = append(s.ids, id)
	}
	s.data[id] = append(s.data[id], rec)
}
