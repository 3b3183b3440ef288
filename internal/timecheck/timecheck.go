// Package timecheck certifies that a timestamp series conforms to a declared
// Period along two independent axes: resolution (every timestamp sits exactly
// on the grid) and periodicity (no grid bucket holds more than one
// timestamp). The two are reported separately because their remediation
// differs: misaligned rows are dropped or rejected, while periodicity
// violations go through a de-duplication policy.
package timecheck

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hydrograph-lab/timegrid/internal/period"
	"github.com/hydrograph-lab/timegrid/internal/series"
)

// Anchor states which instant of its resolution cell a timestamp stands for.
type Anchor string

const (
	// AnchorStart: a value at time x covers [x, x+r).
	AnchorStart Anchor = "start"
	// AnchorEnd: a value at time x covers (x-r, x].
	AnchorEnd Anchor = "end"
	// AnchorPoint: a value at time x is an instantaneous observation.
	AnchorPoint Anchor = "point"
)

// ParseAnchor converts a configuration string to an Anchor.
func ParseAnchor(s string) (Anchor, error) {
	switch Anchor(s) {
	case AnchorStart, AnchorEnd, AnchorPoint:
		return Anchor(s), nil
	}
	return "", fmt.Errorf("unknown time anchor %q", s)
}

// ErrUnsupportedPeriod reports a period whose grid depends on the arithmetic
// epoch (e.g. P7D); such grids are not accepted for validation because two
// parties can disagree about where the buckets lie.
var ErrUnsupportedPeriod = errors.New("non-epoch-agnostic period not supported")

// Truncate snaps an instant to the anchor point of its grid cell. For start
// and point anchors that is the bucket start; for an end anchor it is the
// bucket end, with instants exactly on a boundary belonging to the cell they
// terminate.
func Truncate(t time.Time, p period.Period, anchor Anchor) time.Time {
	if anchor == AnchorEnd {
		return p.BucketEnd(t.Add(-time.Microsecond))
	}
	return p.BucketStart(t)
}

// ResolutionReport lists the rows whose timestamps do not sit exactly on the
// declared grid.
type ResolutionReport struct {
	Period     period.Period
	Anchor     Anchor
	Total      int
	Violations []int // row indices, ascending
}

// OK reports whether every timestamp conformed.
func (r ResolutionReport) OK() bool { return len(r.Violations) == 0 }

// ResolutionError is the raised form of a failed resolution check.
type ResolutionError struct{ Report ResolutionReport }

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("%d of %d timestamps not aligned to %s", len(e.Report.Violations), e.Report.Total, e.Report.Period)
}

// PeriodicityGroup is one over-populated grid cell.
type PeriodicityGroup struct {
	Ordinal int64
	Rows    []int
}

// PeriodicityReport lists grid cells containing more than one timestamp.
type PeriodicityReport struct {
	Period     period.Period
	Anchor     Anchor
	Total      int
	Violations []PeriodicityGroup
}

// OK reports whether every grid cell held at most one timestamp.
func (r PeriodicityReport) OK() bool { return len(r.Violations) == 0 }

// PeriodicityError is the raised form of a failed periodicity check.
type PeriodicityError struct{ Report PeriodicityReport }

func (e *PeriodicityError) Error() string {
	return fmt.Sprintf("%d grid cells of %s hold more than one timestamp", len(e.Report.Violations), e.Report.Period)
}

// CheckResolution verifies that every timestamp equals its own truncation to
// the period grid. A 1-microsecond period accepts any timestamp by
// construction.
func CheckResolution(s *series.Series, p period.Period, anchor Anchor) ResolutionReport {
	report := ResolutionReport{Period: p, Anchor: anchor, Total: s.Len()}
	for i := 0; i < s.Len(); i++ {
		t := s.Time(i)
		if !t.Equal(Truncate(t, p, anchor)) {
			report.Violations = append(report.Violations, i)
		}
	}
	return report
}

// CheckPeriodicity groups timestamps by grid ordinal and reports every
// ordinal with more than one member. Orthogonal to exact-duplicate detection:
// two distinct timestamps in one bucket violate periodicity without being
// duplicates.
func CheckPeriodicity(s *series.Series, p period.Period, anchor Anchor) PeriodicityReport {
	report := PeriodicityReport{Period: p, Anchor: anchor, Total: s.Len()}
	byOrdinal := make(map[int64][]int, s.Len())
	var order []int64
	for i := 0; i < s.Len(); i++ {
		t := s.Time(i)
		if anchor == AnchorEnd {
			t = t.Add(-time.Microsecond)
		}
		ord := p.Ordinal(t)
		if len(byOrdinal[ord]) == 0 {
			order = append(order, ord)
		}
		byOrdinal[ord] = append(byOrdinal[ord], i)
	}
	for _, ord := range order {
		if rows := byOrdinal[ord]; len(rows) > 1 {
			report.Violations = append(report.Violations, PeriodicityGroup{Ordinal: ord, Rows: rows})
		}
	}
	return report
}

// MisalignedPolicy selects the remediation for rows that fail the resolution
// check.
type MisalignedPolicy string

const (
	// MisalignedFail raises a ResolutionError.
	MisalignedFail MisalignedPolicy = "fail"
	// MisalignedResolve drops the non-conforming rows.
	MisalignedResolve MisalignedPolicy = "resolve"
)

// RemovedRowsReport records rows dropped by a resolve policy.
type RemovedRowsReport struct {
	Rows  []int
	Times []time.Time
}

// HandleMisaligned applies the misaligned-rows policy. Under the resolve
// policy the returned series has the offending rows removed; under the fail
// policy a ResolutionError is returned as soon as any row is off-grid.
func HandleMisaligned(s *series.Series, p period.Period, anchor Anchor, policy MisalignedPolicy) (*series.Series, RemovedRowsReport, error) {
	report := CheckResolution(s, p, anchor)
	if report.OK() {
		return s, RemovedRowsReport{}, nil
	}

	switch policy {
	case MisalignedResolve:
		removed := RemovedRowsReport{Rows: report.Violations}
		bad := make(map[int]bool, len(report.Violations))
		for _, i := range report.Violations {
			bad[i] = true
			removed.Times = append(removed.Times, s.Time(i))
		}
		keep := make([]int, 0, s.Len()-len(bad))
		for i := 0; i < s.Len(); i++ {
			if !bad[i] {
				keep = append(keep, i)
			}
		}
		slog.Info("Dropping rows misaligned to resolution",
			"period", p.String(),
			"dropped", len(removed.Rows),
			"total", report.Total,
		)
		return s.Select(keep), removed, nil
	case MisalignedFail:
		return nil, RemovedRowsReport{}, &ResolutionError{Report: report}
	default:
		return nil, RemovedRowsReport{}, fmt.Errorf("unknown misaligned-rows policy %q", policy)
	}
}
