package aggregate

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hydrograph-lab/timegrid/internal/period"
	"github.com/hydrograph-lab/timegrid/internal/series"
	"github.com/hydrograph-lab/timegrid/internal/timecheck"
)

func at(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t
}

// quarterHourDay builds one day of 15-minute rows with value = row index.
func quarterHourDay(t *testing.T, day time.Time, rows int) *series.Series {
	t.Helper()
	times := make([]time.Time, rows)
	values := make([]series.Value, rows)
	for i := range times {
		times[i] = day.Add(time.Duration(i) * 15 * time.Minute)
		values[i] = series.Of(float64(i))
	}
	s := series.New(times)
	s, err := s.WithColumn("flow", values)
	require.NoError(t, err)
	return s
}

func TestAggregateDailySum(t *testing.T) {
	s := quarterHourDay(t, at("2024-01-01T00:00:00Z"), 96)

	res, err := Aggregate(s, "flow", period.MustParse("P1D"), Sum(), Options{
		Resolution: period.MustParse("PT15M"),
	})
	require.NoError(t, err)
	require.Len(t, res.Windows, 1)

	w := res.Windows[0]
	require.Equal(t, int64(96), w.MemberCount)
	require.Equal(t, int64(96), w.ExpectedCount)
	require.False(t, w.Value.Null)
	require.Equal(t, float64(4560), w.Value.Float)
	require.True(t, w.Valid)
	require.True(t, w.Anchor.Equal(at("2024-01-01T00:00:00Z")))
}

func TestAggregateMemberCountInvariant(t *testing.T) {
	// Three partial days; total members must equal the input length.
	base := at("2024-03-01T00:00:00Z")
	var times []time.Time
	var values []series.Value
	for d := 0; d < 3; d++ {
		for i := 0; i < 10+d; i++ {
			times = append(times, base.AddDate(0, 0, d).Add(time.Duration(i)*15*time.Minute))
			values = append(values, series.Of(1))
		}
	}
	s := series.New(times)
	s, err := s.WithColumn("flow", values)
	require.NoError(t, err)

	res, err := Aggregate(s, "flow", period.MustParse("P1D"), Count(), Options{
		Resolution: period.MustParse("PT15M"),
	})
	require.NoError(t, err)

	var total int64
	for _, w := range res.Windows {
		total += w.MemberCount
	}
	require.Equal(t, int64(s.Len()), total)
}

func TestAggregateExtremumTimestamp(t *testing.T) {
	times := []time.Time{
		at("2024-01-01T00:00:00Z"),
		at("2024-01-01T06:00:00Z"),
		at("2024-01-01T12:00:00Z"),
		at("2024-01-01T18:00:00Z"),
	}
	s := series.New(times)
	s, err := s.WithColumn("flow", []series.Value{
		series.Of(3), series.Of(9), series.Of(9), series.Of(1),
	})
	require.NoError(t, err)

	opts := Options{Resolution: period.MustParse("PT6H")}
	day := period.MustParse("P1D")

	maxRes, err := Aggregate(s, "flow", day, Max(), opts)
	require.NoError(t, err)
	require.NotNil(t, maxRes.Windows[0].At)
	// Tied maximum resolves to the first occurrence.
	require.True(t, maxRes.Windows[0].At.Equal(times[1]))

	minRes, err := Aggregate(s, "flow", day, Min(), opts)
	require.NoError(t, err)
	require.Equal(t, float64(1), minRes.Windows[0].Value.Float)
	require.True(t, minRes.Windows[0].At.Equal(times[3]))
}

func TestAggregateCalendarVariableExpectedCount(t *testing.T) {
	// One daily value per day across Jan and Feb of a leap year.
	start := at("2024-01-01T00:00:00Z")
	var times []time.Time
	var values []series.Value
	for d := 0; d < 31+29; d++ {
		times = append(times, start.AddDate(0, 0, d))
		values = append(values, series.Of(1))
	}
	s := series.New(times)
	s, err := s.WithColumn("stage", values)
	require.NoError(t, err)

	res, err := Aggregate(s, "stage", period.MustParse("P1M"), Count(), Options{
		Resolution: period.MustParse("P1D"),
	})
	require.NoError(t, err)
	require.Len(t, res.Windows, 2)
	require.Equal(t, int64(31), res.Windows[0].ExpectedCount)
	require.Equal(t, int64(29), res.Windows[1].ExpectedCount)
	require.Equal(t, int64(31), res.Windows[0].MemberCount)
	require.Equal(t, int64(29), res.Windows[1].MemberCount)
}

func TestAggregateEmptyWindow(t *testing.T) {
	// Data on day 1 and day 3; day 2 must come out null and invalid.
	s := series.New([]time.Time{at("2024-01-01T00:00:00Z"), at("2024-01-03T00:00:00Z")})
	s, err := s.WithColumn("flow", []series.Value{series.Of(1), series.Of(2)})
	require.NoError(t, err)

	res, err := Aggregate(s, "flow", period.MustParse("P1D"), Sum(), Options{
		Resolution: period.MustParse("P1D"),
	})
	require.NoError(t, err)
	require.Len(t, res.Windows, 3)

	gap := res.Windows[1]
	require.Equal(t, int64(0), gap.MemberCount)
	require.True(t, gap.Value.Null)
	require.False(t, gap.Valid)
}

func TestAggregateNullsExcluded(t *testing.T) {
	s := series.New([]time.Time{
		at("2024-01-01T00:00:00Z"),
		at("2024-01-01T06:00:00Z"),
		at("2024-01-01T12:00:00Z"),
	})
	s, err := s.WithColumn("flow", []series.Value{series.Of(4), series.Null, series.Of(6)})
	require.NoError(t, err)

	res, err := Aggregate(s, "flow", period.MustParse("P1D"), Mean(), Options{
		Resolution: period.MustParse("PT6H"),
	})
	require.NoError(t, err)

	w := res.Windows[0]
	require.Equal(t, int64(2), w.MemberCount)
	require.Equal(t, int64(4), w.ExpectedCount)
	require.Equal(t, float64(5), w.Value.Float)
}

func TestAggregateNonIntegralResolution(t *testing.T) {
	s := series.New([]time.Time{at("2024-01-01T00:00:00Z")})
	s, err := s.WithColumn("flow", []series.Value{series.Of(1)})
	require.NoError(t, err)

	_, err = Aggregate(s, "flow", period.MustParse("P1D"), Sum(), Options{
		Resolution: period.MustParse("PT7M"),
	})
	require.ErrorIs(t, err, ErrNonIntegralRatio)
}

func TestAggregateMissingColumn(t *testing.T) {
	s := series.New([]time.Time{at("2024-01-01T00:00:00Z")})
	_, err := Aggregate(s, "flow", period.MustParse("P1D"), Sum(), Options{
		Resolution: period.MustParse("P1D"),
	})
	require.ErrorIs(t, err, series.ErrColumnNotFound)
}

func TestAggregateAnchors(t *testing.T) {
	s := quarterHourDay(t, at("2024-01-01T00:00:00Z"), 96)
	day := period.MustParse("P1D")
	opts := Options{Resolution: period.MustParse("PT15M")}

	tests := []struct {
		name   string
		anchor timecheck.Anchor
		want   string
	}{
		{"start", timecheck.AnchorStart, "2024-01-01T00:00:00Z"},
		{"end", timecheck.AnchorEnd, "2024-01-02T00:00:00Z"},
		{"point is the midpoint", timecheck.AnchorPoint, "2024-01-01T12:00:00Z"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := opts
			o.Anchor = tt.anchor
			res, err := Aggregate(s, "flow", day, Sum(), o)
			require.NoError(t, err)
			require.True(t, res.Windows[0].Anchor.Equal(at(tt.want)))
		})
	}
}

func TestAggregateStrictCompleteness(t *testing.T) {
	s := quarterHourDay(t, at("2024-01-01T00:00:00Z"), 90) // 6 rows short

	_, err := Aggregate(s, "flow", period.MustParse("P1D"), Sum(), Options{
		Resolution: period.MustParse("PT15M"),
		Criteria:   Available(96),
		Strict:     true,
	})
	var incomplete *IncompleteWindowError
	require.ErrorAs(t, err, &incomplete)
	require.Equal(t, int64(90), incomplete.Window.MemberCount)

	// Same data without strict mode: the window is kept, marked invalid.
	res, err := Aggregate(s, "flow", period.MustParse("P1D"), Sum(), Options{
		Resolution: period.MustParse("PT15M"),
		Criteria:   Available(96),
	})
	require.NoError(t, err)
	require.False(t, res.Windows[0].Valid)
	require.False(t, res.Windows[0].Value.Null)
}

func TestAggregateTimeWindow(t *testing.T) {
	// Hourly data for two days, restricted to 10:00-14:00 inclusive.
	base := at("2024-01-01T00:00:00Z")
	var times []time.Time
	var values []series.Value
	for i := 0; i < 48; i++ {
		times = append(times, base.Add(time.Duration(i)*time.Hour))
		values = append(values, series.Of(float64(i%24)))
	}
	s := series.New(times)
	s, err := s.WithColumn("albedo", values)
	require.NoError(t, err)

	tw, err := NewTimeWindow(10*time.Hour, 14*time.Hour, ClosedBoth)
	require.NoError(t, err)

	res, err := Aggregate(s, "albedo", period.MustParse("P1D"), Mean(), Options{
		Resolution: period.MustParse("PT1H"),
		Window:     &tw,
	})
	require.NoError(t, err)
	require.Len(t, res.Windows, 2)
	for _, w := range res.Windows {
		require.Equal(t, int64(5), w.ExpectedCount)
		require.Equal(t, int64(5), w.MemberCount)
		require.Equal(t, float64(12), w.Value.Float) // mean of 10..14
	}
}

func TestAggregateTimeWindowValidation(t *testing.T) {
	s := quarterHourDay(t, at("2024-01-01T00:00:00Z"), 4)
	tw, err := NewTimeWindow(10*time.Hour, 14*time.Hour, ClosedBoth)
	require.NoError(t, err)

	// Sub-daily output period.
	_, err = Aggregate(s, "flow", period.MustParse("PT1H"), Mean(), Options{
		Resolution: period.MustParse("PT15M"),
		Window:     &tw,
	})
	require.ErrorContains(t, err, "daily or longer")

	// Daily input resolution.
	daily := series.New([]time.Time{at("2024-01-01T00:00:00Z")})
	daily, err = daily.WithColumn("flow", []series.Value{series.Of(1)})
	require.NoError(t, err)
	_, err = Aggregate(daily, "flow", period.MustParse("P1M"), Mean(), Options{
		Resolution: period.MustParse("P1D"),
		Window:     &tw,
	})
	require.ErrorContains(t, err, "sub-daily input")
}

func TestAggregateMany(t *testing.T) {
	s := quarterHourDay(t, at("2024-01-01T00:00:00Z"), 96)
	rain := make([]series.Value, 96)
	for i := range rain {
		rain[i] = series.Of(0.5)
	}
	s, err := s.WithColumn("rain", rain)
	require.NoError(t, err)

	results, err := AggregateMany(context.Background(), s, []string{"flow", "rain"},
		period.MustParse("P1D"), Sum(), Options{Resolution: period.MustParse("PT15M")})
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.Equal(t, float64(4560), results["flow"].Windows[0].Value.Float)
	require.Equal(t, float64(48), results["rain"].Windows[0].Value.Float)
}

func TestAggregateManyPropagatesFailure(t *testing.T) {
	s := quarterHourDay(t, at("2024-01-01T00:00:00Z"), 4)
	_, err := AggregateMany(context.Background(), s, []string{"flow", "missing"},
		period.MustParse("P1D"), Sum(), Options{Resolution: period.MustParse("PT15M")})
	require.ErrorIs(t, err, series.ErrColumnNotFound)
}
