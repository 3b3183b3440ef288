package timecheck

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/hydrograph-lab/timegrid/internal/series"
)

// DuplicatePolicy selects the remediation for rows sharing an identical
// timestamp.
type DuplicatePolicy string

const (
	// DuplicateFail raises a DuplicateError.
	DuplicateFail DuplicatePolicy = "fail"
	// DuplicateKeepFirst keeps the first row of each duplicate group.
	DuplicateKeepFirst DuplicatePolicy = "keep_first"
	// DuplicateKeepLast keeps the last row of each duplicate group.
	DuplicateKeepLast DuplicatePolicy = "keep_last"
	// DuplicateDrop removes every member of each duplicate group.
	DuplicateDrop DuplicatePolicy = "drop"
	// DuplicateMerge collapses each group to one row holding, per column,
	// the first non-null value in row order.
	DuplicateMerge DuplicatePolicy = "merge"
)

// ParseDuplicatePolicy converts a configuration string to a DuplicatePolicy.
func ParseDuplicatePolicy(s string) (DuplicatePolicy, error) {
	switch DuplicatePolicy(s) {
	case DuplicateFail, DuplicateKeepFirst, DuplicateKeepLast, DuplicateDrop, DuplicateMerge:
		return DuplicatePolicy(s), nil
	}
	return "", fmt.Errorf("unknown duplicate policy %q", s)
}

// DuplicateGroup is one set of rows sharing an exact timestamp.
type DuplicateGroup struct {
	Time time.Time
	Rows []int
}

// DuplicateReport lists every exact-timestamp collision found.
type DuplicateReport struct {
	Total  int
	Groups []DuplicateGroup
}

// OK reports whether the timestamps were pairwise distinct.
func (r DuplicateReport) OK() bool { return len(r.Groups) == 0 }

// DuplicateError is the raised form of a failed duplicate check.
type DuplicateError struct{ Report DuplicateReport }

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("%d duplicated timestamps in %d rows", len(e.Report.Groups), e.Report.Total)
}

// CheckDuplicates finds groups of rows with byte-equal instants. Group order
// follows first occurrence; detection is by instant, so equal moments in
// different zone representations collide.
func CheckDuplicates(s *series.Series) DuplicateReport {
	report := DuplicateReport{Total: s.Len()}
	byInstant := make(map[int64][]int, s.Len())
	var order []int64
	for i := 0; i < s.Len(); i++ {
		key := s.Time(i).UnixMicro()
		if len(byInstant[key]) == 0 {
			order = append(order, key)
		}
		byInstant[key] = append(byInstant[key], i)
	}
	for _, key := range order {
		if rows := byInstant[key]; len(rows) > 1 {
			report.Groups = append(report.Groups, DuplicateGroup{Time: s.Time(rows[0]), Rows: rows})
		}
	}
	return report
}

// HandleDuplicates applies the duplicate policy and returns the resolved
// series together with the report of what was found. The input is returned
// unchanged when no timestamps collide.
func HandleDuplicates(s *series.Series, policy DuplicatePolicy) (*series.Series, DuplicateReport, error) {
	report := CheckDuplicates(s)
	if report.OK() {
		return s, report, nil
	}
	if policy == DuplicateFail {
		return nil, report, &DuplicateError{Report: report}
	}

	groupOf := make(map[int]DuplicateGroup, len(report.Groups))
	for _, g := range report.Groups {
		for _, i := range g.Rows {
			groupOf[i] = g
		}
	}

	var keep []int
	switch policy {
	case DuplicateKeepFirst:
		for i := 0; i < s.Len(); i++ {
			g, dup := groupOf[i]
			if !dup || g.Rows[0] == i {
				keep = append(keep, i)
			}
		}
	case DuplicateKeepLast:
		for i := 0; i < s.Len(); i++ {
			g, dup := groupOf[i]
			if !dup || g.Rows[len(g.Rows)-1] == i {
				keep = append(keep, i)
			}
		}
	case DuplicateDrop:
		for i := 0; i < s.Len(); i++ {
			if _, dup := groupOf[i]; !dup {
				keep = append(keep, i)
			}
		}
	case DuplicateMerge:
		return mergeDuplicates(s, report, groupOf), report, nil
	default:
		return nil, report, fmt.Errorf("unknown duplicate policy %q", policy)
	}

	slog.Info("Resolved duplicated timestamps",
		"policy", string(policy),
		"groups", len(report.Groups),
		"kept", len(keep),
		"total", s.Len(),
	)
	return s.Select(keep), report, nil
}

// mergeDuplicates collapses each duplicate group onto its first row, filling
// each column with the first non-null value in row order.
func mergeDuplicates(s *series.Series, report DuplicateReport, groupOf map[int]DuplicateGroup) *series.Series {
	var keep []int
	for i := 0; i < s.Len(); i++ {
		g, dup := groupOf[i]
		if !dup || g.Rows[0] == i {
			keep = append(keep, i)
		}
	}

	names := s.Columns()
	cols := make(map[string][]series.Value, len(names))
	for _, name := range names {
		col, err := s.Column(name)
		if err != nil {
			continue
		}
		cols[name] = col
	}

	times := make([]time.Time, len(keep))
	merged := make(map[string][]series.Value, len(names))
	for _, name := range names {
		merged[name] = make([]series.Value, len(keep))
	}
	for out, i := range keep {
		times[out] = s.Time(i)
		rows := []int{i}
		if g, dup := groupOf[i]; dup {
			rows = g.Rows
		}
		for _, name := range names {
			v := series.Null
			for _, r := range rows {
				if cand := cols[name][r]; !cand.Null {
					v = cand
					break
				}
			}
			merged[name][out] = v
		}
	}

	slog.Info("Merged duplicated timestamps",
		"groups", len(report.Groups),
		"kept", len(keep),
		"total", s.Len(),
	)
	out := series.New(times)
	for _, name := range names {
		out, _ = out.WithColumn(name, merged[name])
	}
	return out
}
