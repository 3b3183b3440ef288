// Package aggregate transforms a fine-grained series into a coarser one
// defined by an output period, keeping provenance about completeness. Every
// input row is assigned to an output bucket by ordinal; a pluggable reducer
// summarizes each bucket's members; expected-versus-actual counts feed a
// missing-data policy deciding each window's validity.
package aggregate

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hydrograph-lab/timegrid/internal/period"
	"github.com/hydrograph-lab/timegrid/internal/series"
	"github.com/hydrograph-lab/timegrid/internal/timecheck"
)

// ErrNonIntegralRatio reports an input resolution that does not divide the
// output period evenly, a sign of a period/series mismatch rather than a
// data-quality issue.
var ErrNonIntegralRatio = errors.New("input resolution does not evenly divide output period")

// IncompleteWindowError is returned under strict completeness when a window
// fails its missing criteria. Outside strict mode the same condition is
// recorded as Valid=false on the window, not an error.
type IncompleteWindowError struct {
	Window   WindowResult
	Criteria MissingCriteria
}

func (e *IncompleteWindowError) Error() string {
	return fmt.Sprintf("window starting %s has %d of %d members, failing %s",
		e.Window.Start.Format(time.RFC3339), e.Window.MemberCount, e.Window.ExpectedCount, e.Criteria)
}

// WindowResult is one output bucket of an aggregation.
type WindowResult struct {
	Ordinal       int64
	Start         time.Time
	End           time.Time
	Anchor        time.Time
	MemberCount   int64
	ExpectedCount int64
	Value         series.Value
	// At is the input timestamp of the extremum, set by min/max only. Ties
	// resolve to the first occurrence in window order.
	At    *time.Time
	Valid bool
}

// Result is a full aggregation pass over one column.
type Result struct {
	Column  string
	Reducer string
	Period  period.Period
	Windows []WindowResult
}

// Options configures one aggregation pass. Resolution is mandatory; it is
// the grid the input series was validated against and anchors all expected
// counts.
type Options struct {
	// Resolution is the input series' declared period.
	Resolution period.Period
	// Anchor picks the emitted timestamp per window: bucket start, bucket
	// end, or the midpoint. Defaults to AnchorStart.
	Anchor timecheck.Anchor
	// Criteria is the completeness policy. Zero value accepts every
	// non-empty window.
	Criteria MissingCriteria
	// Strict turns a failed criteria check into an IncompleteWindowError
	// instead of Valid=false.
	Strict bool
	// Window optionally restricts members to a time-of-day range.
	Window *TimeWindow
}

// Aggregate buckets the named column of s into outputPeriod windows and
// summarizes each with the reducer. Windows between the first and last
// populated ordinal are emitted contiguously; empty ones carry a null value
// and Valid=false.
func Aggregate(s *series.Series, column string, outputPeriod period.Period, r Reducer, opts Options) (*Result, error) {
	if opts.Resolution.IsZero() {
		return nil, errors.New("input resolution is required")
	}
	if opts.Anchor == "" {
		opts.Anchor = timecheck.AnchorStart
	}
	if !opts.Resolution.IsSubperiodOf(outputPeriod) {
		return nil, fmt.Errorf("%w: %s into %s", ErrNonIntegralRatio, opts.Resolution, outputPeriod)
	}
	if opts.Window != nil {
		if err := validateTimeWindow(outputPeriod, opts.Resolution); err != nil {
			return nil, err
		}
	}
	values, err := s.Column(column)
	if err != nil {
		return nil, err
	}

	type bucket struct {
		times  []time.Time
		values []float64
	}
	buckets := map[int64]*bucket{}
	var minOrd, maxOrd int64
	seen := false
	for i := 0; i < s.Len(); i++ {
		t := s.Time(i)
		if opts.Window != nil && !opts.Window.Contains(t) {
			continue
		}
		ord := outputPeriod.Ordinal(t)
		if !seen || ord < minOrd {
			minOrd = ord
		}
		if !seen || ord > maxOrd {
			maxOrd = ord
		}
		seen = true
		b := buckets[ord]
		if b == nil {
			b = &bucket{}
			buckets[ord] = b
		}
		if v := values[i]; !v.Null && !v.IsNaN() {
			b.times = append(b.times, t)
			b.values = append(b.values, v.Float)
		}
	}

	res := &Result{Column: column, Reducer: r.Name(), Period: outputPeriod}
	if !seen {
		return res, nil
	}

	for ord := minOrd; ord <= maxOrd; ord++ {
		start := outputPeriod.Start(ord)
		end := outputPeriod.Start(ord + 1)
		expected, err := expectedCount(outputPeriod, opts.Resolution, start, end, opts.Window)
		if err != nil {
			return nil, err
		}

		w := WindowResult{
			Ordinal:       ord,
			Start:         start,
			End:           end,
			Anchor:        anchorInstant(start, end, opts.Anchor),
			ExpectedCount: expected,
			Value:         series.Null,
		}
		if b := buckets[ord]; b != nil {
			w.MemberCount = int64(len(b.values))
			sum := r.Summarize(Window{Times: b.times, Values: b.values, ExpectedCount: expected})
			if !sum.Null {
				w.Value = series.Of(sum.Value)
			}
			w.At = sum.At
		}
		w.Valid = opts.Criteria.Valid(w.MemberCount, w.ExpectedCount)
		if opts.Strict && !w.Valid {
			return nil, &IncompleteWindowError{Window: w, Criteria: opts.Criteria}
		}
		res.Windows = append(res.Windows, w)
	}

	slog.Debug("Aggregated column",
		"column", column,
		"reducer", r.Name(),
		"period", outputPeriod.String(),
		"windows", len(res.Windows),
	)
	return res, nil
}

// anchorInstant maps a window to its emitted timestamp.
func anchorInstant(start, end time.Time, anchor timecheck.Anchor) time.Time {
	switch anchor {
	case timecheck.AnchorEnd:
		return end
	case timecheck.AnchorPoint:
		return start.Add(end.Sub(start) / 2)
	default:
		return start
	}
}

// expectedCount computes how many observations a complete window would hold.
// Fixed ratios come from exact integer division; calendar-variable output
// periods walk the true span of each specific window, so February differs
// from January and leap years count their extra day.
func expectedCount(out, res period.Period, start, end time.Time, tw *TimeWindow) (int64, error) {
	if tw != nil {
		perDay, err := tw.ExpectedPerDay(res)
		if err != nil {
			return 0, err
		}
		span := end.Sub(start)
		if span%(24*time.Hour) != 0 {
			return 0, fmt.Errorf("time window on a sub-daily output period %s", out)
		}
		return int64(span/(24*time.Hour)) * perDay, nil
	}
	if n := res.Count(out); n > 0 {
		return n, nil
	}
	d, ok := res.Duration()
	if !ok {
		return 0, fmt.Errorf("%w: calendar-variable resolution %s into %s", ErrNonIntegralRatio, res, out)
	}
	span := end.Sub(start)
	if span%d != 0 {
		return 0, fmt.Errorf("%w: %s into window %s to %s", ErrNonIntegralRatio, res,
			start.Format(time.RFC3339), end.Format(time.RFC3339))
	}
	return int64(span / d), nil
}

// validateTimeWindow enforces the supported shape: daily or longer output
// over sub-daily input.
func validateTimeWindow(out, res period.Period) error {
	if d, ok := out.Duration(); ok && d < 24*time.Hour {
		return fmt.Errorf("time window is only supported for daily or longer output periods, got %s", out)
	}
	if d, ok := res.Duration(); !ok || d >= 24*time.Hour {
		return fmt.Errorf("time window requires a sub-daily input resolution, got %s", res)
	}
	return nil
}
