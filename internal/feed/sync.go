package feed

import (
	"errors"
	"io"
	"sync"
	"time"

	"github.com/titisda/trading-algorithum/internal/obs"
)

// Synchronizer merges independently advancing subscriptions into one
// ordered slice sequence. It owns the advance of every subscription; no
// other goroutine may touch them while a merge is running.
type Synchronizer struct {
	subs    []*Subscription
	metrics *obs.Metrics
	primed  bool

	closeOnce sync.Once
	closeErr  error
}

// NewSynchronizer registers the subscriptions to merge. Registration
// order fixes the within-slice iteration order.
func NewSynchronizer(metrics *obs.Metrics, subs ...*Subscription) *Synchronizer {
	return &Synchronizer{subs: subs, metrics: metrics}
}

// Next emits the slice at the next frontier. The frontier is the minimum
// current UTC time across live subscriptions; every subscription at that
// exact instant contributes all of its records carrying it, so duplicate
// instants coalesce into one slice and frontiers strictly increase.
// Next returns io.EOF once every subscription is exhausted. A
// subscription failing mid-run drops out of the merge without aborting
// it; its error has already been routed to the side channel.
func (y *Synchronizer) Next() (Slice, error) {
	started := time.Now()

	if !y.primed {
		for _, sub := range y.subs {
			sub.Advance()
		}
		y.primed = true
	}

	frontier, ok := y.frontier()
	if !ok {
		return Slice{}, io.EOF
	}

	slice := Slice{Time: frontier}
	for _, sub := range y.subs {
		rec, has := sub.Current()
		if !has || !sub.UTCTime().Equal(frontier) {
			continue
		}
		for {
			slice.add(sub.Config().Security.ID, rec)
			if sub.Advance() != AdvanceOk {
				break
			}
			rec, has = sub.Current()
			if !has || !sub.UTCTime().Equal(frontier) {
				break
			}
		}
	}

	y.metrics.IncSlicesEmitted()
	y.metrics.ObserveSliceBuild(time.Since(started))
	return slice, nil
}

func (y *Synchronizer) frontier() (time.Time, bool) {
	var frontier time.Time
	found := false
	for _, sub := range y.subs {
		if _, has := sub.Current(); !has {
			continue
		}
		t := sub.UTCTime()
		if !found || t.Before(frontier) {
			frontier = t
			found = true
		}
	}
	return frontier, found
}

// Close releases every subscription exactly once. Callers abandoning the
// sequence early must still call Close.
func (y *Synchronizer) Close() error {
	y.closeOnce.Do(func() {
		var errs []error
		for _, sub := range y.subs {
			if err := sub.Close(); err != nil {
				errs = append(errs, err)
			}
		}
		y.closeErr = errors.Join(errs...)
	})
	return y.closeErr
}
