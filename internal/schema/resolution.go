package schema

import (
	"fmt"
	"time"
)

// Resolution is the fixed period length of a periodic record.
// Tick has no fixed period.
type Resolution uint16

const (
	ResolutionUnknown Resolution = iota
	ResolutionTick
	ResolutionSecond
	ResolutionMinute
	ResolutionHour
	ResolutionDaily
)

// Duration returns the period length. Tick and unknown return zero.
func (r Resolution) Duration() time.Duration {
	switch r {
	case ResolutionSecond:
		return time.Second
	case ResolutionMinute:
		return time.Minute
	case ResolutionHour:
		return time.Hour
	case ResolutionDaily:
		return 24 * time.Hour
	default:
		return 0
	}
}

// IsPeriodic reports whether records at this resolution cover a fixed period.
func (r Resolution) IsPeriodic() bool {
	return r.Duration() > 0
}

func (r Resolution) String() string {
	switch r {
	case ResolutionTick:
		return "tick"
	case ResolutionSecond:
		return "second"
	case ResolutionMinute:
		return "minute"
	case ResolutionHour:
		return "hour"
	case ResolutionDaily:
		return "daily"
	default:
		return fmt.Sprintf("unknown(%d)", uint16(r))
	}
}

// ParseResolution maps a config string to a Resolution.
func ParseResolution(s string) (Resolution, error) {
	switch s {
	case "tick":
		return ResolutionTick, nil
	case "second":
		return ResolutionSecond, nil
	case "minute":
		return ResolutionMinute, nil
	case "hour":
		return ResolutionHour, nil
	case "daily":
		return ResolutionDaily, nil
	default:
		return ResolutionUnknown, fmt.Errorf("unknown resolution: %q", s)
	}
}
