package period

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// fieldsPattern matches the body of an ISO 8601 duration (everything after
// the leading "P"), capturing each unit into a prefixed named group.
func fieldsPattern(prefix string) string {
	return fmt.Sprintf(
		`(?:(?P<%[1]s_years>\d+)[Yy])?`+
			`(?:(?P<%[1]s_months>\d+)[Mm])?`+
			`(?:(?P<%[1]s_days>\d+)[Dd])?`+
			`(?:[Tt]?`+
			`(?:(?P<%[1]s_hours>\d+)[Hh])?`+
			`(?:(?P<%[1]s_minutes>\d+)[Mm])?`+
			`(?:(?P<%[1]s_seconds>\d+)(?:\.(?P<%[1]s_micros>\d{1,6}))?[Ss])?`+
			`)?`,
		prefix)
}

var (
	reDuration = regexp.MustCompile(`^[Pp]` + fieldsPattern("period") + `$`)

	// The "+" sigil introduces a non-standard offset clause: P1Y+9MT9H is a
	// yearly grid shifted 9 months and 9 hours from the natural year
	// boundary.
	reDurationOffset = regexp.MustCompile(`^[Pp]` + fieldsPattern("period") + `\+` + fieldsPattern("offset") + `$`)
)

// fields holds the raw unit counts read from one duration clause.
type fields struct {
	years, months, days, hours, minutes, seconds, micros int64
}

func (f fields) totalMonths() int64 { return f.years*12 + f.months }

func (f fields) totalMicros() int64 {
	return (f.days*secondsPerDay+f.hours*3600+f.minutes*60+f.seconds)*microsPerSecond + f.micros
}

func (f fields) empty() bool { return f.totalMonths() == 0 && f.totalMicros() == 0 }

// matchFields extracts one clause's fields from a regexp match by group
// prefix.
func matchFields(re *regexp.Regexp, match []string, prefix string) (fields, error) {
	var f fields
	for i, name := range re.SubexpNames() {
		rest, ok := strings.CutPrefix(name, prefix+"_")
		if !ok || match[i] == "" {
			continue
		}
		n, err := strconv.ParseInt(match[i], 10, 64)
		if err != nil {
			return fields{}, fmt.Errorf("%w: %q", ErrParse, match[i])
		}
		switch rest {
		case "years":
			f.years = n
		case "months":
			f.months = n
		case "days":
			f.days = n
		case "hours":
			f.hours = n
		case "minutes":
			f.minutes = n
		case "seconds":
			f.seconds = n
		case "micros":
			// Fractional seconds: right-pad to 6 digits.
			s := match[i] + strings.Repeat("0", 6-len(match[i]))
			f.micros, _ = strconv.ParseInt(s, 10, 64)
		}
	}
	return f, nil
}

// Parse returns the Period described by an ISO 8601 duration string such as
// "P1D", "PT15M" or "P1Y", optionally extended with a "+" offset clause such
// as "P1Y+9MT9H". A duration clause must be either purely month-based
// (years/months) or purely fixed-duration (days and below); mixing the two in
// one clause is ambiguous and rejected.
func Parse(spec string) (Period, error) {
	if m := reDuration.FindStringSubmatch(spec); m != nil {
		f, err := matchFields(reDuration, m, "period")
		if err != nil {
			return Period{}, err
		}
		return periodFromFields(spec, f)
	}
	if m := reDurationOffset.FindStringSubmatch(spec); m != nil {
		f, err := matchFields(reDurationOffset, m, "period")
		if err != nil {
			return Period{}, err
		}
		off, err := matchFields(reDurationOffset, m, "offset")
		if err != nil {
			return Period{}, err
		}
		p, err := periodFromFields(spec, f)
		if err != nil {
			return Period{}, err
		}
		if off.empty() {
			return Period{}, fmt.Errorf("%w: empty offset clause in %q", ErrParse, spec)
		}
		if off.totalMonths() != 0 && p.step != stepMonths {
			return Period{}, fmt.Errorf("%w: month offset on fixed-duration period %q", ErrParse, spec)
		}
		return p.withOffsets(off.totalMonths(), off.totalMicros())
	}
	return Period{}, fmt.Errorf("%w: %q", ErrParse, spec)
}

func periodFromFields(spec string, f fields) (Period, error) {
	months, micros := f.totalMonths(), f.totalMicros()
	switch {
	case months > 0 && micros > 0:
		return Period{}, fmt.Errorf("%w: %q mixes month and sub-month units", ErrParse, spec)
	case months > 0:
		return Period{step: stepMonths, multiplier: months}, nil
	case micros > 0:
		return Period{step: stepMicroseconds, multiplier: micros}, nil
	default:
		return Period{}, fmt.Errorf("%w: %q has no duration", ErrParse, spec)
	}
}

// String renders the canonical extended ISO 8601 form. Parse is a left
// inverse of String for every valid Period.
func (p Period) String() string {
	if p.IsZero() {
		return "P?"
	}
	var b strings.Builder
	b.WriteByte('P')
	switch p.step {
	case stepMonths:
		appendMonthElems(&b, p.multiplier)
	default:
		appendMicroElems(&b, p.multiplier)
	}
	if p.HasOffset() {
		b.WriteByte('+')
		if p.monthOffset > 0 {
			appendMonthElems(&b, p.monthOffset)
		}
		if p.microOffset > 0 {
			appendMicroElems(&b, p.microOffset)
		}
	}
	return b.String()
}

func appendMonthElems(b *strings.Builder, months int64) {
	years, rem := months/12, months%12
	if years > 0 {
		fmt.Fprintf(b, "%dY", years)
	}
	if rem > 0 {
		fmt.Fprintf(b, "%dM", rem)
	}
}

func appendMicroElems(b *strings.Builder, micros int64) {
	seconds, us := micros/microsPerSecond, micros%microsPerSecond
	days, secOfDay := seconds/secondsPerDay, seconds%secondsPerDay
	if days > 0 {
		fmt.Fprintf(b, "%dD", days)
	}
	if secOfDay == 0 && us == 0 {
		return
	}
	b.WriteByte('T')
	hours, secOfHour := secOfDay/3600, secOfDay%3600
	if hours > 0 {
		fmt.Fprintf(b, "%dH", hours)
	}
	minutes, sec := secOfHour/60, secOfHour%60
	if minutes > 0 {
		fmt.Fprintf(b, "%dM", minutes)
	}
	if sec > 0 || us > 0 {
		if us == 0 {
			fmt.Fprintf(b, "%dS", sec)
		} else {
			fmt.Fprintf(b, "%sS", strings.TrimRight(fmt.Sprintf("%d.%06d", sec, us), "0"))
		}
	}
}
