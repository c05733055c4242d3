// Package session answers whether a security's market is tradable at a
// local instant. The fill-forward stage is its only consumer inside the
// data pipeline.
package session

import (
	"sort"
	"time"
)

// Hours is the tradable-session oracle. All times are exchange-local.
type Hours interface {
	// IsOpen reports whether the market trades at the instant. When
	// extended is true the extended-hours windows count as open.
	IsOpen(local time.Time, extended bool) bool
	// NextOpen returns the first open instant strictly after local.
	// The zero time means no open session was found within the scan
	// horizon.
	NextOpen(local time.Time, extended bool) time.Time
}

// nextOpenHorizonDays bounds the NextOpen scan so a fully closed
// calendar cannot loop forever.
const nextOpenHorizonDays = 370

// Window is one tradable span as offsets from local midnight.
// Open is inclusive, Close exclusive.
type Window struct {
	Open  time.Duration
	Close time.Duration
}

// Day holds the windows of one weekday.
type Day struct {
	Regular  []Window
	Extended []Window
}

// MarketHours is a weekday-template calendar with full-day holidays.
type MarketHours struct {
	days     [7]Day
	holidays map[string]struct{}
}

// NewMarketHours builds a calendar from per-weekday windows.
func NewMarketHours(days map[time.Weekday]Day) *MarketHours {
	h := &MarketHours{holidays: make(map[string]struct{})}
	for wd, day := range days {
		h.days[int(wd)] = day
	}
	return h
}

// AlwaysOpen is a calendar with no closed periods, e.g. crypto venues.
func AlwaysOpen() *MarketHours {
	full := Day{Regular: []Window{{Open: 0, Close: 24 * time.Hour}}}
	return NewMarketHours(map[time.Weekday]Day{
		time.Sunday:    full,
		time.Monday:    full,
		time.Tuesday:   full,
		time.Wednesday: full,
		time.Thursday:  full,
		time.Friday:    full,
		time.Saturday:  full,
	})
}

// Equity is the US equity template: 09:30-16:00 regular, 04:00-09:30
// pre-market and 16:00-20:00 post-market, Monday through Friday.
func Equity() *MarketHours {
	day := Day{
		Regular: []Window{{Open: 9*time.Hour + 30*time.Minute, Close: 16 * time.Hour}},
		Extended: []Window{
			{Open: 4 * time.Hour, Close: 9*time.Hour + 30*time.Minute},
			{Open: 16 * time.Hour, Close: 20 * time.Hour},
		},
	}
	return NewMarketHours(map[time.Weekday]Day{
		time.Monday:    day,
		time.Tuesday:   day,
		time.Wednesday: day,
		time.Thursday:  day,
		time.Friday:    day,
	})
}

// AddHoliday marks a local date as fully closed.
func (h *MarketHours) AddHoliday(year int, month time.Month, day int) {
	h.holidays[dateKey(year, month, day)] = struct{}{}
}

// IsOpen implements Hours.
func (h *MarketHours) IsOpen(local time.Time, extended bool) bool {
	if h.isHoliday(local) {
		return false
	}
	tod := timeOfDay(local)
	for _, w := range h.windows(local.Weekday(), extended) {
		if tod >= w.Open && tod < w.Close {
			return true
		}
	}
	return false
}

// NextOpen implements Hours.
func (h *MarketHours) NextOpen(local time.Time, extended bool) time.Time {
	midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, local.Location())
	for offset := 0; offset < nextOpenHorizonDays; offset++ {
		day := midnight.AddDate(0, 0, offset)
		if h.isHoliday(day) {
			continue
		}
		for _, w := range h.windows(day.Weekday(), extended) {
			open := day.Add(w.Open)
			if open.After(local) {
				return open
			}
		}
	}
	return time.Time{}
}

func (h *MarketHours) windows(wd time.Weekday, extended bool) []Window {
	day := h.days[int(wd)]
	if !extended || len(day.Extended) == 0 {
		return day.Regular
	}
	merged := make([]Window, 0, len(day.Regular)+len(day.Extended))
	merged = append(merged, day.Regular...)
	merged = append(merged, day.Extended...)
	sort.Slice(merged, func(i, j int) bool { return merged[i].Open < merged[j].Open })
	return merged
}

func (h *MarketHours) isHoliday(local time.Time) bool {
	_, ok := h.holidays[dateKey(local.Year(), local.Month(), local.Day())]
	return ok
}

func timeOfDay(t time.Time) time.Duration {
	return time.Duration(t.Hour())*time.Hour +
		time.Duration(t.Minute())*time.Minute +
		time.Duration(t.Second())*time.Second +
		time.Duration(t.Nanosecond())
}

func dateKey(year int, month time.Month, day int) string {
	var buf [10]byte
	b := buf[:0]
	b = appendPadded(b, year, 4)
	b = append(b, '-')
	b = appendPadded(b, int(month), 2)
	b = append(b, '-')
	b = appendPadded(b, day, 2)
	return string(b)
}

func appendPadded(buf []byte, v, width int) []byte {
	var digits [8]byte
	i := len(digits)
	for v > 0 {
		i--
		digits[i] = byte('0' + v%10)
		v /= 10
	}
	for len(digits)-i < width {
		i--
		digits[i] = '0'
	}
	return append(buf, digits[i:]...)
}
