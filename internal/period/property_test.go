package period

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// genInstant produces instants across several decades, straddling leap years
// and century boundaries.
func genInstant() gopter.Gen {
	return gen.Int64Range(
		time.Date(1900, 1, 1, 0, 0, 0, 0, time.UTC).Unix(),
		time.Date(2100, 1, 1, 0, 0, 0, 0, time.UTC).Unix(),
	).Map(func(sec int64) time.Time {
		return time.Unix(sec, 0).UTC()
	})
}

func genPeriod() gopter.Gen {
	return gen.OneConstOf(
		MustParse("PT1S"), MustParse("PT15M"), MustParse("PT1H"), MustParse("P1D"),
		MustParse("P1D+T9H"), MustParse("P1M"), MustParse("P3M"), MustParse("P1Y"),
		MustParse("P1Y+9MT9H"),
	)
}

func TestProperty_BucketBoundsContainInstant(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("bucket_start <= t < bucket_end", prop.ForAll(
		func(p Period, ts time.Time) bool {
			start, end := p.BucketStart(ts), p.BucketEnd(ts)
			return !start.After(ts) && ts.Before(end)
		},
		genPeriod(), genInstant(),
	))

	properties.Property("bucket_start is idempotent", prop.ForAll(
		func(p Period, ts time.Time) bool {
			start := p.BucketStart(ts)
			return p.BucketStart(start).Equal(start)
		},
		genPeriod(), genInstant(),
	))

	properties.Property("bucket_end equals successor start", prop.ForAll(
		func(p Period, ts time.Time) bool {
			return p.BucketEnd(ts).Equal(p.Successor(ts))
		},
		genPeriod(), genInstant(),
	))

	properties.TestingRun(t)
}

func TestProperty_OrdinalIsMonotonic(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("ordinal constant within a bucket, increasing across", prop.ForAll(
		func(p Period, ts time.Time) bool {
			ord := p.Ordinal(ts)
			start := p.BucketStart(ts)
			end := p.BucketEnd(ts)
			lastInside := end.Add(-time.Microsecond)
			return p.Ordinal(start) == ord &&
				p.Ordinal(lastInside) == ord &&
				p.Ordinal(end) == ord+1 &&
				p.Ordinal(p.Predecessor(ts)) == ord-1
		},
		genPeriod(), genInstant(),
	))

	properties.TestingRun(t)
}

func TestProperty_ParseRoundTrip(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("Parse is a left inverse of String", prop.ForAll(
		func(p Period) bool {
			again, err := Parse(p.String())
			return err == nil && again.Equal(p)
		},
		genPeriod(),
	))

	properties.TestingRun(t)
}
