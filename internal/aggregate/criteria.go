package aggregate

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// CriteriaKind names a missing-data completeness policy.
type CriteriaKind string

const (
	// CriteriaNone accepts every window.
	CriteriaNone CriteriaKind = ""
	// CriteriaAvailable requires at least n members.
	CriteriaAvailable CriteriaKind = "available"
	// CriteriaPercent requires member/expected coverage of at least p percent.
	CriteriaPercent CriteriaKind = "percent"
	// CriteriaMissing tolerates at most n absent members.
	CriteriaMissing CriteriaKind = "missing"
)

// MissingCriteria is one completeness policy with its threshold. The zero
// value accepts every window.
type MissingCriteria struct {
	Kind CriteriaKind
	// count threshold for available/missing
	N int64
	// percent threshold for percent, kept in decimal so boundary cases like
	// 74.999... never flip on float rounding
	P decimal.Decimal
}

// Available requires at least n members per window.
func Available(n int64) MissingCriteria {
	return MissingCriteria{Kind: CriteriaAvailable, N: n}
}

// Percent requires at least p percent of the expected members per window.
func Percent(p float64) MissingCriteria {
	return MissingCriteria{Kind: CriteriaPercent, P: decimal.NewFromFloat(p)}
}

// Missing tolerates at most n absent members per window.
func Missing(n int64) MissingCriteria {
	return MissingCriteria{Kind: CriteriaMissing, N: n}
}

// ParseCriteria builds a MissingCriteria from its textual (policy, threshold)
// form.
func ParseCriteria(name string, threshold float64) (MissingCriteria, error) {
	switch CriteriaKind(name) {
	case CriteriaNone:
		return MissingCriteria{}, nil
	case CriteriaAvailable:
		return Available(int64(threshold)), nil
	case CriteriaPercent:
		return Percent(threshold), nil
	case CriteriaMissing:
		return Missing(int64(threshold)), nil
	}
	return MissingCriteria{}, fmt.Errorf("unknown missing criteria %q", name)
}

// Valid applies the policy to one window's counts. An empty window is never
// valid, whatever the threshold.
func (c MissingCriteria) Valid(members, expected int64) bool {
	if members == 0 {
		return false
	}
	switch c.Kind {
	case CriteriaAvailable:
		return members >= c.N
	case CriteriaPercent:
		// members/expected*100 >= p, compared as members*100 >= p*expected
		// so no division is involved.
		lhs := decimal.NewFromInt(members * 100)
		rhs := c.P.Mul(decimal.NewFromInt(expected))
		return lhs.Cmp(rhs) >= 0
	case CriteriaMissing:
		return expected-members <= c.N
	default:
		return true
	}
}

func (c MissingCriteria) String() string {
	switch c.Kind {
	case CriteriaAvailable, CriteriaMissing:
		return fmt.Sprintf("%s(%d)", c.Kind, c.N)
	case CriteriaPercent:
		return fmt.Sprintf("percent(%s)", c.P)
	default:
		return "none"
	}
}
