package aggregate

import (
	"fmt"
	"math"
	"time"

	"github.com/montanaflynn/stats"
)

// Window is the material a reducer summarizes: the non-null members of one
// output bucket, in timestamp order, plus the count the bucket would hold if
// complete. Null members are stripped before the reducer sees the window.
type Window struct {
	Times         []time.Time
	Values        []float64
	ExpectedCount int64
}

// Summary is a reducer's verdict on one window. At is set only by reducers
// with a time-of-occurrence side channel (min, max).
type Summary struct {
	Value float64
	Null  bool
	At    *time.Time
}

// Reducer summarizes the member values of one output bucket. Implementations
// receive only non-null members and must return a null Summary for an empty
// window.
type Reducer interface {
	Name() string
	Summarize(w Window) Summary
}

func nullSummary() Summary { return Summary{Null: true} }

type sumReducer struct{}

func (sumReducer) Name() string { return "sum" }

func (sumReducer) Summarize(w Window) Summary {
	if len(w.Values) == 0 {
		return nullSummary()
	}
	v, err := stats.Sum(w.Values)
	if err != nil {
		return nullSummary()
	}
	return Summary{Value: v}
}

// Sum totals the member values.
func Sum() Reducer { return sumReducer{} }

type meanReducer struct{}

func (meanReducer) Name() string { return "mean" }

func (meanReducer) Summarize(w Window) Summary {
	if len(w.Values) == 0 {
		return nullSummary()
	}
	v, err := stats.Mean(w.Values)
	if err != nil {
		return nullSummary()
	}
	return Summary{Value: v}
}

// Mean averages the member values.
func Mean() Reducer { return meanReducer{} }

type meanSumReducer struct{}

func (meanSumReducer) Name() string { return "mean_sum" }

// mean_sum estimates the complete-window total from the members present:
// mean multiplied by the expected count. Useful for totalizing quantities
// (rainfall) over windows with a few missing observations.
func (meanSumReducer) Summarize(w Window) Summary {
	if len(w.Values) == 0 {
		return nullSummary()
	}
	v, err := stats.Mean(w.Values)
	if err != nil {
		return nullSummary()
	}
	return Summary{Value: v * float64(w.ExpectedCount)}
}

// MeanSum estimates the window total as mean times expected count.
func MeanSum() Reducer { return meanSumReducer{} }

type extremumReducer struct {
	name string
	// better reports whether a improves on b.
	better func(a, b float64) bool
}

func (r extremumReducer) Name() string { return r.name }

// Summarize records the timestamp of the extremum alongside its value. Ties
// resolve to the first occurrence in window order.
func (r extremumReducer) Summarize(w Window) Summary {
	if len(w.Values) == 0 {
		return nullSummary()
	}
	best := 0
	for i := 1; i < len(w.Values); i++ {
		if r.better(w.Values[i], w.Values[best]) {
			best = i
		}
	}
	at := w.Times[best]
	return Summary{Value: w.Values[best], At: &at}
}

// Min finds the smallest member value and when it occurred.
func Min() Reducer {
	return extremumReducer{name: "min", better: func(a, b float64) bool { return a < b }}
}

// Max finds the largest member value and when it occurred.
func Max() Reducer {
	return extremumReducer{name: "max", better: func(a, b float64) bool { return a > b }}
}

type countReducer struct{}

func (countReducer) Name() string { return "count" }

func (countReducer) Summarize(w Window) Summary {
	return Summary{Value: float64(len(w.Values))}
}

// Count reports the number of non-null members.
func Count() Reducer { return countReducer{} }

type percentileReducer struct{ p int }

func (r percentileReducer) Name() string { return fmt.Sprintf("percentile_%d", r.p) }

func (r percentileReducer) Summarize(w Window) Summary {
	if len(w.Values) == 0 {
		return nullSummary()
	}
	v, err := stats.Percentile(w.Values, float64(r.p))
	if err != nil {
		return nullSummary()
	}
	return Summary{Value: v}
}

// Percentile finds the p-th percentile of the member values. p must be an
// integer in [1, 100].
func Percentile(p int) (Reducer, error) {
	if p < 1 || p > 100 {
		return nil, fmt.Errorf("percentile must be an integer from 1 to 100, got %d", p)
	}
	return percentileReducer{p: p}, nil
}

type stdevReducer struct{}

func (stdevReducer) Name() string { return "stdev" }

// Sample standard deviation, matching the usual hydrological convention.
func (stdevReducer) Summarize(w Window) Summary {
	if len(w.Values) < 2 {
		return nullSummary()
	}
	v, err := stats.StandardDeviationSample(w.Values)
	if err != nil {
		return nullSummary()
	}
	return Summary{Value: v}
}

// StDev computes the sample standard deviation of the member values.
func StDev() Reducer { return stdevReducer{} }

type angularMeanReducer struct{}

func (angularMeanReducer) Name() string { return "angular_mean" }

// Summarize averages directional data (wind direction in degrees) on the
// unit circle: atan2 of the summed sines and cosines, mapped back to
// [0, 360) and rounded to one decimal place.
func (angularMeanReducer) Summarize(w Window) Summary {
	if len(w.Values) == 0 {
		return nullSummary()
	}
	var sinSum, cosSum float64
	for _, deg := range w.Values {
		rad := deg * math.Pi / 180
		sinSum += math.Sin(rad)
		cosSum += math.Cos(rad)
	}
	deg := math.Atan2(sinSum, cosSum) * 180 / math.Pi
	deg = math.Round(deg*10) / 10
	deg = math.Mod(deg, 360)
	if deg < 0 {
		deg += 360
	}
	return Summary{Value: deg}
}

// AngularMean averages angle-valued members (degrees) on the unit circle.
func AngularMean() Reducer { return angularMeanReducer{} }

type conditionalCountReducer struct {
	name string
	pred func(float64) bool
}

func (r conditionalCountReducer) Name() string { return r.name }

func (r conditionalCountReducer) Summarize(w Window) Summary {
	n := 0
	for _, v := range w.Values {
		if r.pred(v) {
			n++
		}
	}
	return Summary{Value: float64(n)}
}

// ConditionalCount counts members satisfying the predicate. The name labels
// the condition in results.
func ConditionalCount(name string, pred func(float64) bool) Reducer {
	return conditionalCountReducer{name: name, pred: pred}
}

// PeaksOverThreshold counts members strictly above the threshold.
func PeaksOverThreshold(threshold float64) Reducer {
	return conditionalCountReducer{
		name: fmt.Sprintf("pot_%g", threshold),
		pred: func(v float64) bool { return v > threshold },
	}
}

// Spec selects a reducer by name with its parameters, for callers that
// configure aggregations from text (config files, API requests). The method
// set is closed: unknown names are an error, never a dynamic lookup.
type Spec struct {
	Name       string  `json:"name"`
	Percentile int     `json:"percentile,omitempty"`
	Threshold  float64 `json:"threshold,omitempty"`
}

// New resolves a Spec to its Reducer.
func New(spec Spec) (Reducer, error) {
	switch spec.Name {
	case "sum":
		return Sum(), nil
	case "mean":
		return Mean(), nil
	case "mean_sum":
		return MeanSum(), nil
	case "min":
		return Min(), nil
	case "max":
		return Max(), nil
	case "count":
		return Count(), nil
	case "percentile":
		return Percentile(spec.Percentile)
	case "stdev":
		return StDev(), nil
	case "angular_mean":
		return AngularMean(), nil
	case "pot":
		return PeaksOverThreshold(spec.Threshold), nil
	default:
		return nil, fmt.Errorf("unknown aggregation %q", spec.Name)
	}
}
