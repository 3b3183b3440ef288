package infill

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hydrograph-lab/timegrid/internal/flags"
	"github.com/hydrograph-lab/timegrid/internal/period"
	"github.com/hydrograph-lab/timegrid/internal/series"
)

func at(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t
}

func hourly(t *testing.T, start string, values []series.Value) *series.Series {
	t.Helper()
	base := at(start)
	times := make([]time.Time, len(values))
	for i := range values {
		times[i] = base.Add(time.Duration(i) * time.Hour)
	}
	s := series.New(times)
	s, err := s.WithColumn("flow", values)
	require.NoError(t, err)
	return s
}

func TestPad(t *testing.T) {
	hour := period.MustParse("PT1H")
	s := series.New([]time.Time{
		at("2024-01-01T00:00:00Z"),
		at("2024-01-01T03:00:00Z"),
	})
	s, err := s.WithColumn("flow", []series.Value{series.Of(1), series.Of(4)})
	require.NoError(t, err)

	padded, added, err := Pad(s, hour)
	require.NoError(t, err)
	require.Equal(t, 2, added)
	require.Equal(t, 4, padded.Len())
	require.True(t, padded.Time(1).Equal(at("2024-01-01T01:00:00Z")))

	flow, err := padded.Column("flow")
	require.NoError(t, err)
	require.True(t, flow[1].Null)
	require.True(t, flow[2].Null)
	require.Equal(t, float64(4), flow[3].Float)
}

func TestPadRejectsMisaligned(t *testing.T) {
	hour := period.MustParse("PT1H")
	s := series.New([]time.Time{
		at("2024-01-01T00:00:00Z"),
		at("2024-01-01T01:30:00Z"),
	})
	_, _, err := Pad(s, hour)
	require.ErrorContains(t, err, "not aligned")
}

func TestGaps(t *testing.T) {
	values := []series.Value{
		series.Null,
		series.Of(1),
		series.Null, series.Null,
		series.Of(2),
		series.Null,
	}
	runs := Gaps(values)
	require.Equal(t, []Run{{Start: 0, Length: 1}, {Start: 2, Length: 2}, {Start: 5, Length: 1}}, runs)
	require.Empty(t, Gaps([]series.Value{series.Of(1)}))
}

func TestApplyLinear(t *testing.T) {
	s := hourly(t, "2024-01-01T00:00:00Z", []series.Value{
		series.Of(1), series.Null, series.Of(3), series.Null, series.Of(5),
	})

	res, err := Apply(s, "flow", period.MustParse("PT1H"), Linear(), Options{})
	require.NoError(t, err)
	require.Equal(t, []int{1, 3}, res.Filled)

	flow, err := res.Series.Column("flow")
	require.NoError(t, err)
	for i, want := range []float64{1, 2, 3, 4, 5} {
		require.False(t, flow[i].Null)
		require.InDelta(t, want, flow[i].Float, 1e-9)
	}
}

func TestApplyPadsBeforeFilling(t *testing.T) {
	// A missing grid row, not a null row: padding creates it, filling
	// completes it.
	hour := period.MustParse("PT1H")
	s := series.New([]time.Time{
		at("2024-01-01T00:00:00Z"),
		at("2024-01-01T02:00:00Z"),
	})
	s, err := s.WithColumn("flow", []series.Value{series.Of(2), series.Of(6)})
	require.NoError(t, err)

	res, err := Apply(s, "flow", hour, Linear(), Options{})
	require.NoError(t, err)
	require.Equal(t, 1, res.Padded)
	require.Equal(t, []int{1}, res.Filled)

	flow, err := res.Series.Column("flow")
	require.NoError(t, err)
	require.InDelta(t, 4, flow[1].Float, 1e-9)
}

func TestApplyMaxGapSize(t *testing.T) {
	s := hourly(t, "2024-01-01T00:00:00Z", []series.Value{
		series.Of(1), series.Null, series.Of(3), series.Null, series.Null, series.Of(6),
	})

	res, err := Apply(s, "flow", period.MustParse("PT1H"), Linear(), Options{MaxGapSize: 1})
	require.NoError(t, err)
	require.Equal(t, []int{1}, res.Filled)

	flow, err := res.Series.Column("flow")
	require.NoError(t, err)
	require.False(t, flow[1].Null)
	require.True(t, flow[3].Null)
	require.True(t, flow[4].Null)
}

func TestApplyNeverExtrapolates(t *testing.T) {
	s := hourly(t, "2024-01-01T00:00:00Z", []series.Value{
		series.Null, series.Of(2), series.Null, series.Of(4), series.Null,
	})

	res, err := Apply(s, "flow", period.MustParse("PT1H"), Linear(), Options{})
	require.NoError(t, err)
	require.Equal(t, []int{2}, res.Filled)

	flow, err := res.Series.Column("flow")
	require.NoError(t, err)
	require.True(t, flow[0].Null)
	require.True(t, flow[4].Null)
}

func TestApplyObservationInterval(t *testing.T) {
	s := hourly(t, "2024-01-01T00:00:00Z", []series.Value{
		series.Of(1), series.Null, series.Of(3), series.Null, series.Of(5),
	})
	from := at("2024-01-01T02:00:00Z")
	res, err := Apply(s, "flow", period.MustParse("PT1H"), Linear(), Options{
		Interval: &Interval{Start: &from},
	})
	require.NoError(t, err)
	require.Equal(t, []int{3}, res.Filled)

	flow, err := res.Series.Column("flow")
	require.NoError(t, err)
	require.True(t, flow[1].Null)
	require.False(t, flow[3].Null)
}

func TestApplyTooFewObservations(t *testing.T) {
	s := hourly(t, "2024-01-01T00:00:00Z", []series.Value{
		series.Of(1), series.Null, series.Of(3), series.Null, series.Of(5),
	})
	_, err := Apply(s, "flow", period.MustParse("PT1H"), Akima(), Options{})
	require.ErrorIs(t, err, ErrTooFewObservations)
}

func TestApplyNothingToFill(t *testing.T) {
	s := hourly(t, "2024-01-01T00:00:00Z", []series.Value{series.Of(1), series.Of(2)})
	res, err := Apply(s, "flow", period.MustParse("PT1H"), Linear(), Options{})
	require.NoError(t, err)
	require.Empty(t, res.Filled)
	require.Same(t, s, res.Series)
}

func TestByName(t *testing.T) {
	for _, name := range []string{"linear", "akima", "pchip"} {
		m, err := ByName(name)
		require.NoError(t, err)
		require.Equal(t, name, m.Name())
	}
	_, err := ByName("bspline")
	require.Error(t, err)
}

func TestMarkInfilled(t *testing.T) {
	reg := flags.NewRegistry("quality")
	_, err := reg.Register("infilled")
	require.NoError(t, err)
	col := flags.Column{Name: "flow_quality", Base: "flow", System: reg}

	masks := make([]flags.Mask, 5)
	masks, err = MarkInfilled(col, masks, "infilled", []int{1, 3})
	require.NoError(t, err)

	set, err := reg.IsSet(masks[1], "infilled")
	require.NoError(t, err)
	require.True(t, set)
	set, err = reg.IsSet(masks[0], "infilled")
	require.NoError(t, err)
	require.False(t, set)
}
