/*
time.go - Calendar math for day-granular date ranges

PURPOSE:
  Every SIRW rule is expressed in workdays (Mon-Fri) over inclusive calendar
  date ranges. TimePoint pins a date to midnight UTC so that comparisons and
  day arithmetic never drift with the caller's time zone.

WORKDAY RULE:
  A workday is any Monday through Friday. Public holidays are NOT excluded:
  a trip over a national holiday still consumes that day of SIRW allowance.

  WorkdaysBetween(Mon 2025-01-06, Fri 2025-01-10) = 5
  WorkdaysBetween(Sat 2025-01-11, Sun 2025-01-12) = 0
  WorkdaysBetween(end, start) with end < start   = 0

SEE ALSO:
  - period.go: Inclusive ranges, intersection and gap distance
  - sirw/overlap.go: Day-set union over nearby trips
*/
package generic

import (
	"fmt"
	"time"
)

// DateLayout is the wire format for all dates (ISO-8601 calendar date).
const DateLayout = "2006-01-02"

const secondsPerDay = 24 * 60 * 60

// =============================================================================
// TIME POINT - A calendar date at midnight UTC
// =============================================================================

type TimePoint struct {
	Time time.Time
}

func NewTimePoint(year int, month time.Month, day int) TimePoint {
	return TimePoint{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// FromTime truncates t to its calendar date, keeping the date as seen in t's location.
func FromTime(t time.Time) TimePoint {
	return NewTimePoint(t.Year(), t.Month(), t.Day())
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (TimePoint, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return TimePoint{}, fmt.Errorf("invalid date %q: expected YYYY-MM-DD", s)
	}
	return FromTime(t), nil
}

func Today() TimePoint {
	return FromTime(time.Now())
}

// Comparison
func (tp TimePoint) Before(other TimePoint) bool        { return tp.Time.Before(other.Time) }
func (tp TimePoint) Equal(other TimePoint) bool         { return tp.Time.Equal(other.Time) }
func (tp TimePoint) After(other TimePoint) bool         { return tp.Time.After(other.Time) }
func (tp TimePoint) BeforeOrEqual(other TimePoint) bool { return !tp.After(other) }
func (tp TimePoint) AfterOrEqual(other TimePoint) bool  { return !tp.Before(other) }

// Arithmetic
func (tp TimePoint) AddDays(n int) TimePoint { return TimePoint{Time: tp.Time.AddDate(0, 0, n)} }

// Properties
func (tp TimePoint) Year() int             { return tp.Time.Year() }
func (tp TimePoint) Weekday() time.Weekday { return tp.Time.Weekday() }
func (tp TimePoint) IsWeekend() bool       { wd := tp.Weekday(); return wd == time.Saturday || wd == time.Sunday }
func (tp TimePoint) IsWorkday() bool       { return !tp.IsWeekend() }
func (tp TimePoint) IsZero() bool          { return tp.Time.IsZero() }

func (tp TimePoint) String() string {
	return tp.Time.Format(DateLayout)
}

// DaysBetween returns the signed number of calendar days from a to b.
// Dates are normalized to midnight UTC so the division is exact. Unix
// seconds are used instead of Time.Sub, whose Duration saturates at ~292 years.
func DaysBetween(a, b TimePoint) int {
	return int((b.Time.Unix() - a.Time.Unix()) / secondsPerDay)
}

// =============================================================================
// WORKDAYS
// =============================================================================

// WorkdaysBetween counts Mon-Fri dates in the inclusive range [start, end].
// Returns 0 when end is before start.
func WorkdaysBetween(start, end TimePoint) int {
	if end.Before(start) {
		return 0
	}

	total := DaysBetween(start, end) + 1
	full := total / 7
	count := full * 5

	// Remaining partial week starting on the same weekday as start.
	wd := start.Weekday()
	for i := 0; i < total%7; i++ {
		if wd != time.Saturday && wd != time.Sunday {
			count++
		}
		wd = (wd + 1) % 7
	}
	return count
}
