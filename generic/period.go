package generic

import "sort"

// =============================================================================
// PERIOD - Inclusive calendar date range
// =============================================================================

// Period is an inclusive range of calendar dates [Start, End].
// A trip from Monday to Friday is Period{Mon, Fri} and covers 5 days.
type Period struct {
	Start TimePoint
	End   TimePoint
}

// NewPeriod builds a period and rejects ranges that end before they start.
func NewPeriod(start, end TimePoint) (Period, error) {
	p := Period{Start: start, End: end}
	if err := p.Validate(); err != nil {
		return Period{}, err
	}
	return p, nil
}

// Validate returns ErrInvalidPeriod if End is before Start.
func (p Period) Validate() error {
	if p.End.Before(p.Start) {
		return ErrInvalidPeriod
	}
	return nil
}

// Intersects reports whether the two inclusive ranges share at least one day.
func (p Period) Intersects(other Period) bool {
	return p.Start.BeforeOrEqual(other.End) && other.Start.BeforeOrEqual(p.End)
}

// GapDays is the calendar-day distance between the closest endpoints of two
// ranges, or 0 when they intersect. Friday to the following Monday is 3.
func (p Period) GapDays(other Period) int {
	if p.Intersects(other) {
		return 0
	}
	if other.End.Before(p.Start) {
		return DaysBetween(other.End, p.Start)
	}
	return DaysBetween(p.End, other.Start)
}

// Workdays counts Mon-Fri days in the period.
func (p Period) Workdays() int {
	return WorkdaysBetween(p.Start, p.End)
}

// Days returns all days in the period as a slice of TimePoints.
func (p Period) Days() []TimePoint {
	var days []TimePoint
	current := p.Start
	for current.BeforeOrEqual(p.End) {
		days = append(days, current)
		current = current.AddDays(1)
	}
	return days
}

// String returns a string representation of the period.
func (p Period) String() string {
	return "[" + p.Start.String() + ", " + p.End.String() + "]"
}

// =============================================================================
// UNION
// =============================================================================

// WorkdaysInUnion counts the distinct workdays covered by any of the periods.
// A day covered by two overlapping periods is counted once.
//
// Periods are merged after sorting by start, so the cost is proportional to
// the number of periods rather than the number of days.
func WorkdaysInUnion(periods ...Period) int {
	valid := make([]Period, 0, len(periods))
	for _, p := range periods {
		if p.Validate() == nil {
			valid = append(valid, p)
		}
	}
	if len(valid) == 0 {
		return 0
	}

	sort.Slice(valid, func(i, j int) bool { return valid[i].Start.Before(valid[j].Start) })

	total := 0
	current := valid[0]
	for _, p := range valid[1:] {
		// Adjacent ranges (end + 1 == start) merge as well; the count is the same
		// either way but merging keeps the loop short.
		if p.Start.BeforeOrEqual(current.End.AddDays(1)) {
			if p.End.After(current.End) {
				current.End = p.End
			}
			continue
		}
		total += current.Workdays()
		current = p
	}
	return total + current.Workdays()
}
