// Package tz provides fast local/UTC conversion for one time zone over a
// bounded window. Offsets are precomputed once from the zone database and
// resolved per record by binary search, so the hot advance path never walks
// zone data.
package tz

import (
	"fmt"
	"sort"
	"time"
)

// windowPad widens the built window so records that spill slightly past the
// requested bounds still resolve.
const windowPad = 7 * 24 * time.Hour

type transition struct {
	utc    int64 // unix seconds at which this offset takes effect
	offset int64 // seconds east of UTC
}

// OffsetIndex holds the offset transitions of one time zone covering a
// query window. Transitions are strictly increasing in UTC instant.
//
// Local wall-clock times are carried as time.Time values in the UTC
// location whose fields equal the local wall clock. That convention keeps
// record timestamps comparable with plain Before/After and avoids touching
// the zone cache per record.
type OffsetIndex struct {
	name        string
	transitions []transition
}

// NewOffsetIndex precomputes the offset transitions of loc over
// [start, end] plus padding.
func NewOffsetIndex(loc *time.Location, start, end time.Time) (*OffsetIndex, error) {
	if loc == nil {
		return nil, fmt.Errorf("offset index: nil location")
	}
	if end.Before(start) {
		return nil, fmt.Errorf("offset index: window end %s before start %s", end, start)
	}

	from := start.Add(-windowPad)
	until := end.Add(windowPad)

	idx := &OffsetIndex{name: loc.String()}
	t := from
	for {
		local := t.In(loc)
		_, off := local.Zone()
		idx.transitions = append(idx.transitions, transition{
			utc:    t.Unix(),
			offset: int64(off),
		})
		_, zoneEnd := local.ZoneBounds()
		if zoneEnd.IsZero() || !zoneEnd.Before(until) {
			break
		}
		t = zoneEnd
	}
	return idx, nil
}

// OffsetAt returns the UTC offset in effect at the given UTC instant.
// Instants outside the built window clamp to the nearest transition.
func (x *OffsetIndex) OffsetAt(utc time.Time) time.Duration {
	return time.Duration(x.offsetAtUnix(utc.Unix())) * time.Second
}

func (x *OffsetIndex) offsetAtUnix(u int64) int64 {
	i := sort.Search(len(x.transitions), func(i int) bool {
		return x.transitions[i].utc > u
	})
	if i == 0 {
		return x.transitions[0].offset
	}
	return x.transitions[i-1].offset
}

// UTCToLocal converts a UTC instant to the zone's wall clock.
func (x *OffsetIndex) UTCToLocal(utc time.Time) time.Time {
	off := x.offsetAtUnix(utc.Unix())
	return utc.UTC().Add(time.Duration(off) * time.Second)
}

// LocalToUTC converts a wall-clock time in the zone to the UTC instant.
// An ambiguous wall time (repeated during a backward transition) resolves
// to the earlier offset; a nonexistent wall time (skipped during a forward
// transition) shifts by the pre-transition offset.
func (x *OffsetIndex) LocalToUTC(local time.Time) time.Time {
	l := local.Unix()
	n := len(x.transitions)
	// Interval i covers local wall seconds
	// [transitions[i].utc+offset, transitions[i+1].utc+offset).
	i := sort.Search(n, func(i int) bool {
		if i+1 >= n {
			return true
		}
		return x.transitions[i+1].utc+x.transitions[i].offset > l
	})
	if i >= n {
		i = n - 1
	}
	return time.Unix(l-x.transitions[i].offset, int64(local.Nanosecond())).UTC()
}

// TransitionCount returns the number of precomputed transitions.
func (x *OffsetIndex) TransitionCount() int {
	return len(x.transitions)
}

// Name returns the zone name the index was built from.
func (x *OffsetIndex) Name() string {
	return x.name
}
