package aggregate

import (
	"fmt"
	"time"

	"github.com/hydrograph-lab/timegrid/internal/period"
)

// ClosedInterval states which boundaries of a time-of-day window include an
// observation landing exactly on them.
type ClosedInterval string

const (
	ClosedBoth  ClosedInterval = "both"
	ClosedLeft  ClosedInterval = "left"
	ClosedRight ClosedInterval = "right"
	ClosedNone  ClosedInterval = "none"
)

// TimeWindow restricts which time-of-day observations participate in an
// aggregation. Computing mean daily albedo from 30-minute values might
// restrict to 10:30-14:00, for instance. Only meaningful for daily or longer
// output periods over sub-daily data; midnight-wrapping windows are not
// supported.
type TimeWindow struct {
	start  time.Duration // offset from midnight
	end    time.Duration
	closed ClosedInterval
}

// NewTimeWindow builds a time-of-day window from midnight offsets. start must
// be strictly before end and both must fit in one day.
func NewTimeWindow(start, end time.Duration, closed ClosedInterval) (TimeWindow, error) {
	if start < 0 || end > 24*time.Hour {
		return TimeWindow{}, fmt.Errorf("time window %s-%s outside one day", start, end)
	}
	if start >= end {
		return TimeWindow{}, fmt.Errorf("time window start %s must be strictly before end %s", start, end)
	}
	switch closed {
	case ClosedBoth, ClosedLeft, ClosedRight, ClosedNone:
	case "":
		closed = ClosedBoth
	default:
		return TimeWindow{}, fmt.Errorf("unknown closed-interval mode %q", closed)
	}
	return TimeWindow{start: start, end: end, closed: closed}, nil
}

// Contains reports whether the wall-clock time of t falls inside the window.
func (w TimeWindow) Contains(t time.Time) bool {
	day := time.Duration(t.Hour())*time.Hour +
		time.Duration(t.Minute())*time.Minute +
		time.Duration(t.Second())*time.Second +
		time.Duration(t.Nanosecond())
	switch w.closed {
	case ClosedLeft:
		return day >= w.start && day < w.end
	case ClosedRight:
		return day > w.start && day <= w.end
	case ClosedNone:
		return day > w.start && day < w.end
	default:
		return day >= w.start && day <= w.end
	}
}

// ExpectedPerDay counts the observations one day contributes inside the
// window for a given input resolution. Closed boundaries adjust the count:
// both ends closed adds the extra boundary observation, both open removes
// one.
func (w TimeWindow) ExpectedPerDay(resolution period.Period) (int64, error) {
	d, ok := resolution.Duration()
	if !ok {
		return 0, fmt.Errorf("time window needs a fixed-duration input resolution, got %s", resolution)
	}
	if d >= 24*time.Hour {
		return 0, fmt.Errorf("time window needs a sub-daily input resolution, got %s", resolution)
	}
	span := w.end - w.start
	count := int64(span / d)
	switch w.closed {
	case ClosedBoth:
		count++
	case ClosedNone:
		if count > 0 {
			count--
		}
	}
	return count, nil
}

func (w TimeWindow) String() string {
	return fmt.Sprintf("%s-%s (%s)", w.start, w.end, w.closed)
}
