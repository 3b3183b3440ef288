// Package infill identifies gaps in a gridded series and fills the bounded
// ones by interpolation. The package owns gap geometry only: which rows are
// missing, how long each run is, and which runs the policy allows to be
// filled. The numeric fill itself is delegated to gonum's interp predictors
// through the Method registry.
package infill

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hydrograph-lab/timegrid/internal/flags"
	"github.com/hydrograph-lab/timegrid/internal/period"
	"github.com/hydrograph-lab/timegrid/internal/series"
)

// ErrTooFewObservations reports a column with fewer valid points than the
// chosen method can fit.
var ErrTooFewObservations = errors.New("too few valid observations to fit infill method")

// Pad returns the series with every missing grid row between its first and
// last timestamp inserted, value columns null on the new rows. The input
// must be sorted and aligned to p. The second return is the number of rows
// added.
func Pad(s *series.Series, p period.Period) (*series.Series, int, error) {
	if s.Len() == 0 {
		return s, 0, nil
	}
	if !s.IsSorted() {
		return nil, 0, errors.New("series must be sorted before padding")
	}

	first := p.Ordinal(s.Time(0))
	last := p.Ordinal(s.Time(s.Len() - 1))
	total := last - first + 1
	if total == int64(s.Len()) {
		// Dense already; alignment still has to hold.
		for i := 0; i < s.Len(); i++ {
			if !s.Time(i).Equal(p.BucketStart(s.Time(i))) {
				return nil, 0, fmt.Errorf("timestamp %s not aligned to %s", s.Time(i).Format(time.RFC3339), p)
			}
		}
		return s, 0, nil
	}

	times := make([]time.Time, 0, total)
	rowFor := make(map[int64]int, s.Len())
	for i := 0; i < s.Len(); i++ {
		t := s.Time(i)
		if !t.Equal(p.BucketStart(t)) {
			return nil, 0, fmt.Errorf("timestamp %s not aligned to %s", t.Format(time.RFC3339), p)
		}
		rowFor[p.Ordinal(t)] = i
	}
	for ord := first; ord <= last; ord++ {
		times = append(times, p.Start(ord))
	}

	out := series.New(times)
	for _, name := range s.Columns() {
		col, err := s.Column(name)
		if err != nil {
			return nil, 0, err
		}
		padded := make([]series.Value, len(times))
		for j := range padded {
			if i, ok := rowFor[first+int64(j)]; ok {
				padded[j] = col[i]
			} else {
				padded[j] = series.Null
			}
		}
		out, err = out.WithColumn(name, padded)
		if err != nil {
			return nil, 0, err
		}
	}
	added := int(total) - s.Len()
	slog.Debug("Padded series to grid", "period", p.String(), "added", added)
	return out, added, nil
}

// Run is one consecutive stretch of missing rows.
type Run struct {
	Start  int
	Length int
}

// Gaps returns the null runs of a value column in row order. NaN payloads
// count as missing.
func Gaps(values []series.Value) []Run {
	var runs []Run
	i := 0
	for i < len(values) {
		if !values[i].Null && !values[i].IsNaN() {
			i++
			continue
		}
		start := i
		for i < len(values) && (values[i].Null || values[i].IsNaN()) {
			i++
		}
		runs = append(runs, Run{Start: start, Length: i - start})
	}
	return runs
}

// Interval bounds which timestamps may be infilled. A nil boundary is open.
type Interval struct {
	Start *time.Time
	End   *time.Time
}

// Contains reports whether t lies inside the interval, boundaries included.
func (iv Interval) Contains(t time.Time) bool {
	if iv.Start != nil && t.Before(*iv.Start) {
		return false
	}
	if iv.End != nil && t.After(*iv.End) {
		return false
	}
	return true
}

// Options bound which gaps a pass may fill.
type Options struct {
	// MaxGapSize caps the length of a fillable run; longer runs stay null.
	// Zero means no cap.
	MaxGapSize int
	// Interval restricts filling to timestamps inside it.
	Interval *Interval
}

// Result is the outcome of one infill pass.
type Result struct {
	Series *series.Series
	// Filled holds row indices (in the padded series) that received an
	// interpolated value.
	Filled []int
	// Padded is the number of grid rows inserted before filling.
	Padded int
}

// Apply pads the named column's series to the p grid and fills the gaps the
// policy allows, by interpolation over the valid observations. Leading and
// trailing gaps are never filled; interpolation does not extrapolate.
func Apply(s *series.Series, column string, p period.Period, m Method, opts Options) (*Result, error) {
	if !s.HasColumn(column) {
		return nil, fmt.Errorf("%w: %q", series.ErrColumnNotFound, column)
	}
	padded, added, err := Pad(s, p)
	if err != nil {
		return nil, err
	}
	values, err := padded.Column(column)
	if err != nil {
		return nil, err
	}

	candidates := map[int]bool{}
	for _, run := range Gaps(values) {
		if opts.MaxGapSize > 0 && run.Length > opts.MaxGapSize {
			continue
		}
		for i := run.Start; i < run.Start+run.Length; i++ {
			if opts.Interval == nil || opts.Interval.Contains(padded.Time(i)) {
				candidates[i] = true
			}
		}
	}
	if len(candidates) == 0 {
		return &Result{Series: padded, Padded: added}, nil
	}

	var xs, ys []float64
	for i, v := range values {
		if !v.Null && !v.IsNaN() {
			xs = append(xs, float64(padded.Time(i).UnixMicro()))
			ys = append(ys, v.Float)
		}
	}
	if len(xs) < m.MinPoints() {
		return nil, fmt.Errorf("%w: %s needs %d, have %d", ErrTooFewObservations, m.Name(), m.MinPoints(), len(xs))
	}
	predictor := m.newPredictor()
	if err := predictor.Fit(xs, ys); err != nil {
		return nil, fmt.Errorf("fitting %s interpolator: %w", m.Name(), err)
	}

	filled := make([]series.Value, len(values))
	copy(filled, values)
	res := &Result{Padded: added}
	for i := range values {
		if !candidates[i] {
			continue
		}
		x := float64(padded.Time(i).UnixMicro())
		if x < xs[0] || x > xs[len(xs)-1] {
			continue
		}
		filled[i] = series.Of(predictor.Predict(x))
		res.Filled = append(res.Filled, i)
	}

	out, err := padded.WithColumn(column, filled)
	if err != nil {
		return nil, err
	}
	res.Series = out
	slog.Info("Infilled column",
		"column", column,
		"method", m.Name(),
		"filled", len(res.Filled),
		"padded", added,
	)
	return res, nil
}

// MarkInfilled sets the named flag on the rows an infill pass filled. The
// mask slice must match the padded series length.
func MarkInfilled(col flags.Column, masks []flags.Mask, flagName string, filled []int) ([]flags.Mask, error) {
	set := make(map[int]bool, len(filled))
	for _, i := range filled {
		set[i] = true
	}
	return col.AddFlag(masks, flagName, func(i int) bool { return set[i] })
}
