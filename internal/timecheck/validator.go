package timecheck

import (
	"fmt"

	"github.com/hydrograph-lab/timegrid/internal/period"
	"github.com/hydrograph-lab/timegrid/internal/series"
)

// Validator bundles the temporal contract of one series: the resolution grid
// its timestamps must sit on, the periodicity grid that may hold at most one
// of them, and the policies applied when either is violated.
type Validator struct {
	resolution   period.Period
	periodicity  period.Period
	anchor       Anchor
	onDuplicate  DuplicatePolicy
	onMisaligned MisalignedPolicy
}

// Option configures a Validator.
type Option func(*Validator)

// WithPeriodicity sets the grid that may hold at most one timestamp. It must
// contain the resolution grid as a subperiod. Defaults to the resolution.
func WithPeriodicity(p period.Period) Option {
	return func(v *Validator) { v.periodicity = p }
}

// WithAnchor sets the time anchor. Defaults to AnchorStart.
func WithAnchor(a Anchor) Option {
	return func(v *Validator) { v.anchor = a }
}

// WithDuplicatePolicy sets the remediation for colliding timestamps.
// Defaults to DuplicateFail.
func WithDuplicatePolicy(p DuplicatePolicy) Option {
	return func(v *Validator) { v.onDuplicate = p }
}

// WithMisalignedPolicy sets the remediation for off-grid timestamps.
// Defaults to MisalignedFail.
func WithMisalignedPolicy(p MisalignedPolicy) Option {
	return func(v *Validator) { v.onMisaligned = p }
}

// NewValidator builds a validator for the given resolution. The zero-config
// default, period.OfMicroseconds(1), accepts any timestamp set.
func NewValidator(resolution period.Period, opts ...Option) (*Validator, error) {
	v := &Validator{
		resolution:   resolution,
		periodicity:  resolution,
		anchor:       AnchorStart,
		onDuplicate:  DuplicateFail,
		onMisaligned: MisalignedFail,
	}
	for _, opt := range opts {
		opt(v)
	}
	if !v.resolution.IsEpochAgnostic() {
		return nil, fmt.Errorf("%w: resolution %s", ErrUnsupportedPeriod, v.resolution)
	}
	if !v.periodicity.IsEpochAgnostic() {
		return nil, fmt.Errorf("%w: periodicity %s", ErrUnsupportedPeriod, v.periodicity)
	}
	if !v.resolution.IsSubperiodOf(v.periodicity) {
		return nil, fmt.Errorf("resolution %s is not a subperiod of periodicity %s", v.resolution, v.periodicity)
	}
	return v, nil
}

// Resolution returns the grid timestamps must land on.
func (v *Validator) Resolution() period.Period { return v.resolution }

// Periodicity returns the grid that may hold at most one timestamp.
func (v *Validator) Periodicity() period.Period { return v.periodicity }

// Anchor returns the configured time anchor.
func (v *Validator) Anchor() Anchor { return v.anchor }

// Result carries everything a Normalize pass found and changed.
type Result struct {
	Series      *series.Series
	Resolution  ResolutionReport
	Periodicity PeriodicityReport
	Duplicates  DuplicateReport
	Removed     RemovedRowsReport
}

// Check runs the resolution and periodicity checks without modifying the
// series and returns the first violation as an error, if any.
func (v *Validator) Check(s *series.Series) (Result, error) {
	res := Result{
		Series:      s,
		Resolution:  CheckResolution(s, v.resolution, v.anchor),
		Periodicity: CheckPeriodicity(s, v.periodicity, v.anchor),
		Duplicates:  CheckDuplicates(s),
	}
	if !res.Resolution.OK() {
		return res, &ResolutionError{Report: res.Resolution}
	}
	if !res.Periodicity.OK() {
		return res, &PeriodicityError{Report: res.Periodicity}
	}
	return res, nil
}

// Normalize brings a series into conformance: rows are sorted by timestamp,
// exact duplicates are resolved under the duplicate policy, off-grid rows
// under the misaligned policy, and the result is verified against the
// periodicity grid. Policies set to fail turn the corresponding finding into
// an error instead.
func (v *Validator) Normalize(s *series.Series) (Result, error) {
	var res Result
	if !s.IsSorted() {
		s = s.Sorted()
	}

	s, dupReport, err := HandleDuplicates(s, v.onDuplicate)
	res.Duplicates = dupReport
	if err != nil {
		return res, fmt.Errorf("duplicate timestamps: %w", err)
	}

	s, removed, err := HandleMisaligned(s, v.resolution, v.anchor, v.onMisaligned)
	res.Removed = removed
	if err != nil {
		return res, fmt.Errorf("resolution check: %w", err)
	}
	res.Resolution = ResolutionReport{Period: v.resolution, Anchor: v.anchor, Total: s.Len()}

	res.Periodicity = CheckPeriodicity(s, v.periodicity, v.anchor)
	if !res.Periodicity.OK() {
		return res, fmt.Errorf("periodicity check: %w", &PeriodicityError{Report: res.Periodicity})
	}

	res.Series = s
	return res, nil
}
