// Package feed implements the per-subscription transform pipeline and the
// synchronization stage that merges many per-security streams into one
// time-ordered slice sequence.
//
// Every stage is a pull-based lazy decorator over a Source: producing the
// next output pulls from the upstream in turn, and nothing beyond the
// current element plus bounded lookahead is buffered.
package feed

import (
	"errors"

	"github.com/titisda/trading-algorithum/internal/schema"
)

// Source is a pull-based lazy record sequence. Next returns io.EOF after
// the final record; any other error is terminal for the sequence.
// Implementations are single-consumer and not safe for concurrent use.
type Source interface {
	Next() (schema.Record, error)
	Close() error
}

// Configuration errors, raised at subscription construction and never
// inside the pipeline.
var (
	ErrInvertedWindow         = errors.New("feed: window start after end")
	ErrTickFillForward        = errors.New("feed: fill-forward is not valid for tick resolution")
	ErrKindResolutionMismatch = errors.New("feed: record kind incompatible with resolution")
	ErrNilProducer            = errors.New("feed: nil record producer")
)

// ErrClockInconsistency marks a record whose UTC time regressed relative
// to the previous record of the same subscription. It violates the merge
// ordering assumption and is fatal for that subscription only.
var ErrClockInconsistency = errors.New("feed: record time regressed")
