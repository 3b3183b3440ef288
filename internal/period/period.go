// Package period splits the Gregorian timeline into repeating calendar-aware
// intervals. Each interval is identified by an integer ordinal. The two
// primitive operations, Ordinal (instant to interval) and Start (interval to
// instant), underpin bucket snapping, alignment checks and windowed
// aggregation.
//
// A Period has one of two step families. Month-step periods (months,
// quarters, years) follow true calendar lengths, so a February bucket is 28
// or 29 days long. Microsecond-step periods (microseconds up to days) have a
// fixed duration. Either kind can carry an offset that shifts the grid away
// from its natural boundary, e.g. a "water year" that starts at
// 09:00 on 1 October:
//
//	wy, _ := period.OfYears(1).WithMonthOffset(9).WithHourOffset(9)
//
// Periods are immutable values; all derivation methods return a new Period.
package period

import (
	"errors"
	"fmt"
	"time"
)

// Error taxonomy. Parse and construction failures are programmer mistakes and
// are surfaced immediately, never recovered silently.
var (
	// ErrParse reports a malformed duration or offset string.
	ErrParse = errors.New("invalid period")

	// ErrAmbiguousGrid reports an offset of at least one full period cycle,
	// which would make the grid ambiguous.
	ErrAmbiguousGrid = errors.New("ambiguous grid: offset must be smaller than one period cycle")
)

type step int

const (
	stepMicroseconds step = iota + 1
	stepMonths
)

// Period is a repeating interval on the timeline. The zero value is not a
// valid Period; use the Of* factories or Parse.
type Period struct {
	step step

	// multiplier counts months for month-step periods and microseconds for
	// microsecond-step periods. Always > 0 for a valid Period.
	multiplier int64

	// Offsets shift the grid away from the natural boundary of the step
	// (midnight for microsecond steps, 00:00 on day 1 for month steps).
	// monthOffset is only meaningful for month-step periods.
	monthOffset int64
	microOffset int64
}

// Factories for the fixed set of base units. Multipliers must be positive.

// OfYears returns an n-year Period anchored at midnight on January 1st.
func OfYears(n int) (Period, error) { return OfMonths(n * 12) }

// OfMonths returns an n-month Period anchored at midnight on the 1st.
func OfMonths(n int) (Period, error) {
	if n <= 0 {
		return Period{}, fmt.Errorf("%w: month multiplier must be positive, got %d", ErrParse, n)
	}
	return Period{step: stepMonths, multiplier: int64(n)}, nil
}

// OfDays returns an n-day Period anchored at midnight.
func OfDays(n int) (Period, error) { return ofMicros(int64(n) * microsPerDay) }

// OfHours returns an n-hour Period.
func OfHours(n int) (Period, error) { return ofMicros(int64(n) * microsPerHour) }

// OfMinutes returns an n-minute Period.
func OfMinutes(n int) (Period, error) { return ofMicros(int64(n) * microsPerMinute) }

// OfSeconds returns an n-second Period.
func OfSeconds(n int) (Period, error) { return ofMicros(int64(n) * microsPerSecond) }

// OfMicroseconds returns an n-microsecond Period. OfMicroseconds(1) is the
// degenerate grid in which every instant is its own bucket; it is the
// deliberate "accept anything" default used when no period is declared.
func OfMicroseconds(n int64) (Period, error) { return ofMicros(n) }

func ofMicros(n int64) (Period, error) {
	if n <= 0 {
		return Period{}, fmt.Errorf("%w: multiplier must be positive, got %d", ErrParse, n)
	}
	return Period{step: stepMicroseconds, multiplier: n}, nil
}

// MustParse is Parse for statically known specs; it panics on error.
func MustParse(spec string) Period {
	p, err := Parse(spec)
	if err != nil {
		panic(err)
	}
	return p
}

// WithMonthOffset returns a Period whose grid is shifted by the given number
// of months. Only month-step periods can take a month offset. The total
// offset must remain smaller than one full cycle.
func (p Period) WithMonthOffset(months int) (Period, error) {
	if p.step != stepMonths {
		return Period{}, fmt.Errorf("%w: month offset on a fixed-duration period", ErrParse)
	}
	return p.withOffsets(p.monthOffset+int64(months), p.microOffset)
}

// WithDayOffset returns a Period whose grid is shifted by the given number of
// days.
func (p Period) WithDayOffset(days int) (Period, error) {
	return p.withOffsets(p.monthOffset, p.microOffset+int64(days)*microsPerDay)
}

// WithHourOffset returns a Period whose grid is shifted by the given number
// of hours.
func (p Period) WithHourOffset(hours int) (Period, error) {
	return p.withOffsets(p.monthOffset, p.microOffset+int64(hours)*microsPerHour)
}

// WithMinuteOffset returns a Period whose grid is shifted by the given number
// of minutes.
func (p Period) WithMinuteOffset(minutes int) (Period, error) {
	return p.withOffsets(p.monthOffset, p.microOffset+int64(minutes)*microsPerMinute)
}

// WithSecondOffset returns a Period whose grid is shifted by the given number
// of seconds.
func (p Period) WithSecondOffset(seconds int) (Period, error) {
	return p.withOffsets(p.monthOffset, p.microOffset+int64(seconds)*microsPerSecond)
}

// withOffsets validates the combined offset against the period cycle. An
// offset equal to or larger than one cycle is rejected rather than silently
// normalized: equal resolution with a different offset is a different grid,
// and a wrapped offset almost always indicates a caller mistake.
func (p Period) withOffsets(monthOffset, microOffset int64) (Period, error) {
	if monthOffset < 0 || microOffset < 0 {
		return Period{}, fmt.Errorf("%w: offsets must be non-negative", ErrParse)
	}
	switch p.step {
	case stepMonths:
		if monthOffset >= p.multiplier {
			return Period{}, fmt.Errorf("%w: %d month offset on %s", ErrAmbiguousGrid, monthOffset, p)
		}
		// 28 days is the shortest month, so any sub-month shift below that
		// bound is unambiguous for every cycle.
		if microOffset >= 28*microsPerDay {
			return Period{}, fmt.Errorf("%w: sub-month offset must stay below 28 days", ErrAmbiguousGrid)
		}
	case stepMicroseconds:
		if monthOffset != 0 {
			return Period{}, fmt.Errorf("%w: month offset on a fixed-duration period", ErrParse)
		}
		if microOffset >= p.multiplier {
			return Period{}, fmt.Errorf("%w: offset %dus on %s", ErrAmbiguousGrid, microOffset, p)
		}
	default:
		return Period{}, fmt.Errorf("%w: zero Period", ErrParse)
	}
	out := p
	out.monthOffset = monthOffset
	out.microOffset = microOffset
	return out, nil
}

// IsZero reports whether p is the invalid zero value.
func (p Period) IsZero() bool { return p.step == 0 }

// HasOffset reports whether the grid is shifted away from its natural
// boundary.
func (p Period) HasOffset() bool { return p.monthOffset != 0 || p.microOffset != 0 }

// Base returns the equivalent Period with no offset.
func (p Period) Base() Period {
	out := p
	out.monthOffset = 0
	out.microOffset = 0
	return out
}

// IsCalendarVariable reports whether buckets of this Period have varying
// true lengths (month, quarter and year based grids). Callers computing
// expected sample counts must walk the calendar for such periods instead of
// dividing durations.
func (p Period) IsCalendarVariable() bool { return p.step == stepMonths }

// Duration returns the fixed bucket length, or false for calendar-variable
// periods which have no single duration.
func (p Period) Duration() (time.Duration, bool) {
	if p.step != stepMicroseconds {
		return 0, false
	}
	return time.Duration(p.multiplier) * time.Microsecond, true
}

// Ordinal returns the monotonically increasing integer identifying the grid
// cell containing t. Two instants map to the same ordinal iff they fall in
// the same bucket. Ordinals are only meaningful to the same Period value.
func (p Period) Ordinal(t time.Time) int64 {
	t = p.retreat(t)
	switch p.step {
	case stepMonths:
		ym := int64(t.Year())*12 + int64(t.Month()) - 1
		return floorDiv(ym, p.multiplier)
	default:
		return floorDiv(gregorianMicros(t), p.multiplier)
	}
}

// Start returns the instant at which the grid cell with the given ordinal
// begins.
func (p Period) Start(ordinal int64) time.Time {
	var t time.Time
	switch p.step {
	case stepMonths:
		ym := ordinal * p.multiplier
		year, month0 := floorDivMod(ym, 12)
		t = time.Date(int(year), time.Month(month0+1), 1, 0, 0, 0, 0, time.UTC)
	default:
		t = timeFromGregorianMicros(ordinal * p.multiplier)
	}
	return p.advance(t)
}

// BucketStart returns the start of the grid cell containing t.
func (p Period) BucketStart(t time.Time) time.Time { return p.Start(p.Ordinal(t)) }

// BucketEnd returns the exclusive end of the grid cell containing t, which is
// also the start of the successor cell.
func (p Period) BucketEnd(t time.Time) time.Time { return p.Start(p.Ordinal(t) + 1) }

// Successor returns the start of the grid cell after the one containing t.
func (p Period) Successor(t time.Time) time.Time { return p.Start(p.Ordinal(t) + 1) }

// Predecessor returns the start of the grid cell before the one containing t.
func (p Period) Predecessor(t time.Time) time.Time { return p.Start(p.Ordinal(t) - 1) }

// IsAligned reports whether t lies exactly on the start of a grid cell.
// Locations are ignored: alignment is a wall-clock property.
func (p Period) IsAligned(t time.Time) bool {
	return gregorianMicros(t) == gregorianMicros(p.BucketStart(t))
}

// retreat shifts an instant backwards by the configured offsets, taking it
// from the shifted grid onto the natural one. The month shift and the
// sub-month shift do not commute, so retreat undoes advance by applying the
// parts in the reverse order.
func (p Period) retreat(t time.Time) time.Time {
	if p.microOffset != 0 {
		t = t.Add(-time.Duration(p.microOffset) * time.Microsecond)
	}
	if p.monthOffset != 0 {
		t = Gregorian.ShiftMonths(t, -int(p.monthOffset))
	}
	return t
}

// advance shifts a natural-grid instant forwards onto the offset grid.
func (p Period) advance(t time.Time) time.Time {
	if p.monthOffset != 0 {
		t = Gregorian.ShiftMonths(t, int(p.monthOffset))
	}
	if p.microOffset != 0 {
		t = t.Add(time.Duration(p.microOffset) * time.Microsecond)
	}
	return t
}

// IsEpochAgnostic reports whether the grid is independent of the epoch used
// for the arithmetic: the multiplier must evenly tile its natural parent unit
// (a second for sub-second periods, a day for sub-day periods, a year for
// month periods). P7D is the classic counter-example: seven-day buckets
// depend entirely on where counting started.
func (p Period) IsEpochAgnostic() bool {
	switch p.step {
	case stepMonths:
		return p.multiplier <= 12 && 12%p.multiplier == 0
	default:
		if p.multiplier <= microsPerSecond {
			return microsPerSecond%p.multiplier == 0
		}
		if p.multiplier%microsPerSecond != 0 {
			return false
		}
		secs := p.multiplier / microsPerSecond
		return secs <= secondsPerDay && secondsPerDay%secs == 0
	}
}

// IsSubperiodOf reports whether every boundary of outer lies on p's grid, so
// that outer buckets are exact unions of p buckets.
func (p Period) IsSubperiodOf(outer Period) bool {
	switch {
	case p.step == stepMonths && outer.step == stepMonths:
		return outer.multiplier%p.multiplier == 0 &&
			(outer.monthOffset-p.monthOffset)%p.multiplier == 0 &&
			outer.microOffset == p.microOffset
	case p.step == stepMicroseconds && outer.step == stepMicroseconds:
		return outer.multiplier%p.multiplier == 0 &&
			(outer.microOffset-p.microOffset)%p.multiplier == 0 &&
			outer.monthOffset == 0
	case p.step == stepMicroseconds && outer.step == stepMonths:
		// Month boundaries sit at midnight plus the outer sub-month offset.
		// They land on p's grid when p tiles the day and the offsets agree
		// modulo p's cycle.
		if !p.IsEpochAgnostic() {
			return false
		}
		diff := outer.microOffset - p.microOffset
		return floorDiv(diff, p.multiplier)*p.multiplier == diff
	default:
		// A calendar-variable grid is never a subperiod of a fixed one.
		return false
	}
}

// Count returns how many p buckets tile one outer bucket when that number is
// the same for every bucket, or 0 when it varies (calendar-variable outer
// with fixed-duration p).
func (p Period) Count(outer Period) int64 {
	switch {
	case p.step == stepMonths && outer.step == stepMonths:
		if outer.multiplier%p.multiplier == 0 {
			return outer.multiplier / p.multiplier
		}
	case p.step == stepMicroseconds && outer.step == stepMicroseconds:
		if outer.multiplier%p.multiplier == 0 {
			return outer.multiplier / p.multiplier
		}
	}
	return 0
}

// Equal reports whether two Periods describe the same grid: same step family,
// multiplier and offsets. Equal resolution with a different offset is a
// different grid and is deliberately not equal.
func (p Period) Equal(other Period) bool { return p == other }
