// Package v1 defines the wire types of the HTTP API and the handlers serving
// them. The payloads are deliberately dumb: timestamps plus named nullable
// value columns, the same shape the core packages operate on.
package v1

import (
	"fmt"
	"sort"
	"time"

	"github.com/hydrograph-lab/timegrid/internal/series"
)

// SeriesPayload is a series as it travels over the wire. Null measurements
// are JSON nulls.
type SeriesPayload struct {
	Timestamps []time.Time           `json:"timestamps"`
	Columns    map[string][]*float64 `json:"columns,omitempty"`
}

// Validate checks structural integrity before any temporal logic runs.
func (p *SeriesPayload) Validate() error {
	if len(p.Timestamps) == 0 {
		return fmt.Errorf("timestamps are required")
	}
	for name, col := range p.Columns {
		if len(col) != len(p.Timestamps) {
			return fmt.Errorf("column %q has %d values for %d timestamps", name, len(col), len(p.Timestamps))
		}
	}
	return nil
}

// ToSeries materializes the payload.
func (p *SeriesPayload) ToSeries() (*series.Series, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	// Map iteration order would leak into the column registration order, so
	// responses that default to "all columns" stay deterministic only if the
	// names are sorted first.
	names := make([]string, 0, len(p.Columns))
	for name := range p.Columns {
		names = append(names, name)
	}
	sort.Strings(names)

	s := series.New(p.Timestamps)
	for _, name := range names {
		col := p.Columns[name]
		values := make([]series.Value, len(col))
		for i, v := range col {
			if v == nil {
				values[i] = series.Null
			} else {
				values[i] = series.Of(*v)
			}
		}
		var err error
		s, err = s.WithColumn(name, values)
		if err != nil {
			return nil, err
		}
	}
	return s, nil
}

// FromSeries converts a series back to its wire shape.
func FromSeries(s *series.Series) (*SeriesPayload, error) {
	p := &SeriesPayload{Timestamps: s.Times()}
	if names := s.Columns(); len(names) > 0 {
		p.Columns = make(map[string][]*float64, len(names))
		for _, name := range names {
			col, err := s.Column(name)
			if err != nil {
				return nil, err
			}
			out := make([]*float64, len(col))
			for i, v := range col {
				if !v.Null {
					f := v.Float
					out[i] = &f
				}
			}
			p.Columns[name] = out
		}
	}
	return p, nil
}

// ContractSpec is the temporal contract a request declares for its series.
// Empty fields fall back to the server's configured defaults.
type ContractSpec struct {
	Resolution   string `json:"resolution,omitempty"`
	Periodicity  string `json:"periodicity,omitempty"`
	Anchor       string `json:"anchor,omitempty"`
	OnDuplicate  string `json:"on_duplicate,omitempty"`
	OnMisaligned string `json:"on_misaligned,omitempty"`
}

// ValidateRequest is the body of POST /v1/series/validate.
type ValidateRequest struct {
	Series   SeriesPayload `json:"series"`
	Contract ContractSpec  `json:"contract"`
}

// ReportPayload summarizes what validation found and changed.
type ReportPayload struct {
	Rows               int         `json:"rows"`
	ResolutionOK       bool        `json:"resolution_ok"`
	PeriodicityOK      bool        `json:"periodicity_ok"`
	DuplicateGroups    int         `json:"duplicate_groups"`
	RemovedRows        []time.Time `json:"removed_rows,omitempty"`
}

// ValidateResponse is the body returned by POST /v1/series/validate.
type ValidateResponse struct {
	Report ReportPayload  `json:"report"`
	Series *SeriesPayload `json:"series"`
}

// ReducerSpec selects a reducer by name with its parameters.
type ReducerSpec struct {
	Name       string  `json:"name"`
	Percentile int     `json:"percentile,omitempty"`
	Threshold  float64 `json:"threshold,omitempty"`
}

// CriteriaSpec is the textual (policy, threshold) pair of a missing-data
// completeness policy.
type CriteriaSpec struct {
	Policy    string  `json:"policy"`
	Threshold float64 `json:"threshold"`
}

// AggregateRequest is the body of POST /v1/series/aggregate.
type AggregateRequest struct {
	Series   SeriesPayload `json:"series"`
	Contract ContractSpec  `json:"contract"`
	Columns  []string      `json:"columns"`
	Period   string        `json:"period"`
	Reducer  ReducerSpec   `json:"reducer"`
	Anchor   string        `json:"anchor,omitempty"`
	Criteria *CriteriaSpec `json:"criteria,omitempty"`
	Strict   bool          `json:"strict,omitempty"`
	// SeriesID, when set, persists the result under this id.
	SeriesID string `json:"series_id,omitempty"`
}

// InfillRequest is the body of POST /v1/series/infill.
type InfillRequest struct {
	Series   SeriesPayload `json:"series"`
	Contract ContractSpec  `json:"contract"`
	Columns  []string      `json:"columns"`
	Method   string        `json:"method"`
	// MaxGapSize caps the length of null runs that get filled. Zero means
	// no cap.
	MaxGapSize int        `json:"max_gap_size,omitempty"`
	From       *time.Time `json:"from,omitempty"`
	To         *time.Time `json:"to,omitempty"`
	// FlagSystem names a configured flag system; when set, each column's
	// response carries a mask column with the flag set on filled rows.
	FlagSystem string `json:"flag_system,omitempty"`
	// Flag is the flag name to set, "infilled" when omitted.
	Flag string `json:"flag,omitempty"`
}

// ColumnInfill reports what was filled in one column.
type ColumnInfill struct {
	Column string `json:"column"`
	Filled int    `json:"filled"`
	// Flags is the mask column, present when the request named a flag
	// system. One mask per row of the padded series.
	Flags []uint64 `json:"flags,omitempty"`
}

// InfillResponse is the body returned by POST /v1/series/infill.
type InfillResponse struct {
	Series  *SeriesPayload `json:"series"`
	Padded  int            `json:"padded"`
	Columns []ColumnInfill `json:"columns"`
}

// WindowPayload is one aggregated window on the wire.
type WindowPayload struct {
	Start         time.Time  `json:"start"`
	End           time.Time  `json:"end"`
	Anchor        time.Time  `json:"anchor"`
	MemberCount   int64      `json:"member_count"`
	ExpectedCount int64      `json:"expected_count"`
	Value         *float64   `json:"value"`
	OccurredAt    *time.Time `json:"occurred_at,omitempty"`
	Valid         bool       `json:"is_valid"`
}

// ColumnResult is one column's aggregation outcome.
type ColumnResult struct {
	Column  string          `json:"column"`
	Reducer string          `json:"reducer"`
	Windows []WindowPayload `json:"windows"`
}

// AggregateResponse is the body returned by POST /v1/series/aggregate.
type AggregateResponse struct {
	Period  string         `json:"period"`
	Results []ColumnResult `json:"results"`
}

// ResultQuery selects a stored result range on GET /v1/results/:series_id.
type ResultQuery struct {
	Column  string    `form:"column" binding:"required"`
	Period  string    `form:"period" binding:"required"`
	Reducer string    `form:"reducer" binding:"required"`
	From    time.Time `form:"from" binding:"required" time_format:"2006-01-02T15:04:05Z07:00"`
	To      time.Time `form:"to" binding:"required" time_format:"2006-01-02T15:04:05Z07:00"`
}

// ResultsResponse is the body returned by GET /v1/results/:series_id.
type ResultsResponse struct {
	SeriesID string          `json:"series_id"`
	Column   string          `json:"column"`
	Period   string          `json:"period"`
	Reducer  string          `json:"reducer"`
	Windows  []WindowPayload `json:"windows"`
}

// DeleteResultsResponse is the body returned by DELETE /v1/results/:series_id.
type DeleteResultsResponse struct {
	SeriesID string `json:"series_id"`
	Deleted  int64  `json:"deleted"`
}

// ErrorResponse is the error response body.
type ErrorResponse struct {
	Error   string      `json:"error"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}
