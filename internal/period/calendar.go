package period

import "time"

// Calendar is the minimal date arithmetic the period math needs. It is an
// interface so the grid arithmetic can be tested independently of any
// particular calendar implementation.
type Calendar interface {
	// DaysInMonth returns the number of days in the given month.
	DaysInMonth(year int, month time.Month) int

	// IsLeapYear reports whether the given year is a leap year.
	IsLeapYear(year int) bool

	// ShiftMonths moves a wall-clock time by the given number of months
	// (positive or negative), clamping the day-of-month to the length of
	// the target month.
	ShiftMonths(t time.Time, months int) time.Time
}

// Gregorian is the proleptic Gregorian calendar used by all Periods.
var Gregorian Calendar = gregorian{}

type gregorian struct{}

func (gregorian) IsLeapYear(year int) bool {
	return year%4 == 0 && (year%100 != 0 || year%400 == 0)
}

func (g gregorian) DaysInMonth(year int, month time.Month) int {
	switch month {
	case time.January, time.March, time.May, time.July, time.August, time.October, time.December:
		return 31
	case time.February:
		if g.IsLeapYear(year) {
			return 29
		}
		return 28
	default:
		return 30
	}
}

func (g gregorian) ShiftMonths(t time.Time, months int) time.Time {
	if months == 0 {
		return t
	}
	ym := t.Year()*12 + int(t.Month()) - 1 + months
	year, month0 := floorDivMod(int64(ym), 12)
	year64, month := int(year), time.Month(month0+1)

	day := t.Day()
	// Days 1-28 exist in every month, so no clamping is needed.
	if day > 28 {
		if max := g.DaysInMonth(year64, month); day > max {
			day = max
		}
	}
	h, min, sec := t.Clock()
	return time.Date(year64, month, day, h, min, sec, t.Nanosecond(), t.Location())
}

// microsPerSecond et al. are the fixed-duration conversion constants.
const (
	microsPerSecond int64 = 1_000_000
	microsPerMinute       = 60 * microsPerSecond
	microsPerHour         = 60 * microsPerMinute
	microsPerDay          = 24 * microsPerHour
	secondsPerDay   int64 = 86_400
)

// rataDie returns the day number of a civil date in the proleptic Gregorian
// calendar, with 0001-01-01 being day 1 (the same day-numbering convention as
// Python's datetime.toordinal, which the upstream data formats follow).
func rataDie(year int, month time.Month, day int) int64 {
	y := int64(year)
	m := int64(month)
	if m <= 2 {
		y--
		m += 12
	}
	era := floorDiv(y, 400)
	yoe := y - era*400                               // [0, 399]
	doy := (153*(m-3)+2)/5 + int64(day) - 1          // [0, 365]
	doe := yoe*365 + yoe/4 - yoe/100 + doy           // [0, 146096]
	return era*146097 + doe - 305                    // shift so 0001-01-01 == 1
}

// civilFromRataDie is the inverse of rataDie.
func civilFromRataDie(n int64) (year int, month time.Month, day int) {
	n += 305
	era := floorDiv(n, 146097)
	doe := n - era*146097                                  // [0, 146096]
	yoe := (doe - doe/1460 + doe/36524 - doe/146096) / 365 // [0, 399]
	y := yoe + era*400
	doy := doe - (365*yoe + yoe/4 - yoe/100) // [0, 365]
	mp := (5*doy + 2) / 153                  // [0, 11]
	d := doy - (153*mp+2)/5 + 1              // [1, 31]
	m := mp + 3
	if m > 12 {
		m -= 12
		y++
	}
	return int(y), time.Month(m), int(d)
}

// gregorianMicros returns the number of microseconds between the supplied
// wall-clock time and the day epoch (midnight at the start of the day before
// 0001-01-01). The location of t is ignored: only wall-clock fields count, so
// the grid is the same regardless of how the caller zones its instants.
func gregorianMicros(t time.Time) int64 {
	y, m, d := t.Date()
	h, min, sec := t.Clock()
	secs := rataDie(y, m, d)*secondsPerDay + int64(h*3600+min*60+sec)
	return secs*microsPerSecond + int64(t.Nanosecond())/1000
}

// timeFromGregorianMicros is the inverse of gregorianMicros, producing a UTC
// wall-clock time.
func timeFromGregorianMicros(us int64) time.Time {
	secs, micros := floorDivMod(us, microsPerSecond)
	days, secOfDay := floorDivMod(secs, secondsPerDay)
	y, m, d := civilFromRataDie(days)
	h := int(secOfDay / 3600)
	min := int(secOfDay % 3600 / 60)
	sec := int(secOfDay % 60)
	return time.Date(y, m, d, h, min, sec, int(micros)*1000, time.UTC)
}

// floorDiv divides rounding towards negative infinity.
func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

// floorDivMod returns the floored quotient and the always-non-negative
// remainder.
func floorDivMod(a, b int64) (int64, int64) {
	q := floorDiv(a, b)
	return q, a - q*b
}
