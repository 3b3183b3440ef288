// Package series holds the minimal in-memory column model the temporal core
// operates on. The real columnar table engine is an external collaborator;
// this package only carries what the validators and the aggregation engine
// need: an ordered timestamp column plus named nullable value columns.
package series

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"
)

// ErrColumnNotFound reports a reference to a column the series does not have.
var ErrColumnNotFound = errors.New("column not found")

// Value is a nullable measurement. A null Value is excluded from summary
// computations rather than propagated through them.
type Value struct {
	Float float64
	Null  bool
}

// Null is the missing-value marker.
var Null = Value{Null: true}

// Of wraps a concrete measurement.
func Of(f float64) Value { return Value{Float: f} }

// IsNaN treats NaN payloads as missing too; sensor feeds occasionally encode
// gaps that way.
func (v Value) IsNaN() bool { return !v.Null && math.IsNaN(v.Float) }

// Series is an immutable ordered sequence of instants with zero or more
// value columns of the same length. Operations return new Series values and
// never mutate the receiver, which makes concurrent reads safe without
// synchronization.
type Series struct {
	times   []time.Time
	columns map[string][]Value
	order   []string // column names in registration order
}

// New builds a Series from a timestamp column. The slice is copied.
func New(times []time.Time) *Series {
	s := &Series{
		times:   append([]time.Time(nil), times...),
		columns: map[string][]Value{},
	}
	return s
}

// WithColumn returns a copy of the series with the named value column added
// or replaced. The values slice must match the timestamp column length.
func (s *Series) WithColumn(name string, values []Value) (*Series, error) {
	if len(values) != len(s.times) {
		return nil, fmt.Errorf("column %q has %d values for %d timestamps", name, len(values), len(s.times))
	}
	out := s.clone()
	if _, exists := out.columns[name]; !exists {
		out.order = append(out.order, name)
	}
	out.columns[name] = append([]Value(nil), values...)
	return out, nil
}

// Len returns the number of rows.
func (s *Series) Len() int { return len(s.times) }

// Time returns the timestamp of row i.
func (s *Series) Time(i int) time.Time { return s.times[i] }

// Times returns a copy of the timestamp column.
func (s *Series) Times() []time.Time { return append([]time.Time(nil), s.times...) }

// Columns returns the value column names in registration order.
func (s *Series) Columns() []string { return append([]string(nil), s.order...) }

// Column returns a copy of the named value column.
func (s *Series) Column(name string) ([]Value, error) {
	col, ok := s.columns[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrColumnNotFound, name)
	}
	return append([]Value(nil), col...), nil
}

// HasColumn reports whether the named value column exists.
func (s *Series) HasColumn(name string) bool {
	_, ok := s.columns[name]
	return ok
}

// Value returns the value of column name at row i.
func (s *Series) Value(name string, i int) (Value, error) {
	col, ok := s.columns[name]
	if !ok {
		return Value{}, fmt.Errorf("%w: %q", ErrColumnNotFound, name)
	}
	return col[i], nil
}

// IsSorted reports whether timestamps are non-decreasing.
func (s *Series) IsSorted() bool {
	return sort.SliceIsSorted(s.times, func(i, j int) bool { return s.times[i].Before(s.times[j]) })
}

// Sorted returns a copy of the series with rows ordered by timestamp. Equal
// timestamps keep their original relative order, which the keep-first /
// keep-last duplicate policies depend on.
func (s *Series) Sorted() *Series {
	idx := make([]int, len(s.times))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return s.times[idx[a]].Before(s.times[idx[b]]) })
	return s.Select(idx)
}

// Select returns a new series containing the given rows, in the given order.
func (s *Series) Select(rows []int) *Series {
	out := &Series{
		times:   make([]time.Time, len(rows)),
		columns: make(map[string][]Value, len(s.columns)),
		order:   append([]string(nil), s.order...),
	}
	for name := range s.columns {
		out.columns[name] = make([]Value, len(rows))
	}
	for j, i := range rows {
		out.times[j] = s.times[i]
		for name, col := range s.columns {
			out.columns[name][j] = col[i]
		}
	}
	return out
}

func (s *Series) clone() *Series {
	out := &Series{
		times:   append([]time.Time(nil), s.times...),
		columns: make(map[string][]Value, len(s.columns)),
		order:   append([]string(nil), s.order...),
	}
	for name, col := range s.columns {
		out.columns[name] = append([]Value(nil), col...)
	}
	return out
}
