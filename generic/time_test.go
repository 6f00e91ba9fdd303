package generic_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/sirw-engine/generic"
)

func date(year int, month time.Month, day int) generic.TimePoint {
	return generic.NewTimePoint(year, month, day)
}

// =============================================================================
// WORKDAYS
// =============================================================================

func TestWorkdaysBetween(t *testing.T) {
	tests := []struct {
		name  string
		start generic.TimePoint
		end   generic.TimePoint
		want  int
	}{
		{"single monday", date(2025, time.January, 6), date(2025, time.January, 6), 1},
		{"monday to friday", date(2025, time.January, 6), date(2025, time.January, 10), 5},
		{"weekend only", date(2025, time.January, 11), date(2025, time.January, 12), 0},
		{"friday to monday", date(2025, time.January, 10), date(2025, time.January, 13), 2},
		{"two full weeks", date(2025, time.January, 6), date(2025, time.January, 19), 10},
		{"three weeks monday to friday", date(2025, time.January, 6), date(2025, time.January, 24), 15},
		{"end before start", date(2025, time.January, 10), date(2025, time.January, 6), 0},
		{"across year boundary", date(2024, time.December, 30), date(2025, time.January, 3), 5},
		{"leap day week", date(2024, time.February, 26), date(2024, time.March, 1), 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, generic.WorkdaysBetween(tt.start, tt.end))
		})
	}
}

func TestWorkdaysBetween_LongSpans(t *testing.T) {
	// GIVEN: a 400-year span, beyond what a time.Duration can hold
	start := date(2000, time.January, 3)
	end := date(2400, time.January, 3)

	// THEN: 146097 days is exactly 20871 weeks, plus the closing Monday
	assert.Equal(t, 146097, generic.DaysBetween(start, end))
	assert.Equal(t, -146097, generic.DaysBetween(end, start))
	assert.Equal(t, 104356, generic.WorkdaysBetween(start, end))
}

func TestWorkdaysBetween_MatchesDayByDayCount(t *testing.T) {
	// GIVEN: every range starting on each weekday with lengths up to 40 days
	start := date(2025, time.March, 3)
	for offset := 0; offset < 7; offset++ {
		from := start.AddDays(offset)
		for length := 0; length < 40; length++ {
			to := from.AddDays(length)

			// WHEN: counted by formula and by iterating days
			expected := 0
			for _, d := range (generic.Period{Start: from, End: to}).Days() {
				if d.IsWorkday() {
					expected++
				}
			}

			// THEN: both agree
			assert.Equal(t, expected, generic.WorkdaysBetween(from, to), "%s..%s", from, to)
		}
	}
}

func TestParseDate(t *testing.T) {
	d, err := generic.ParseDate("2025-07-14")
	require.NoError(t, err)
	assert.Equal(t, date(2025, time.July, 14), d)
	assert.Equal(t, "2025-07-14", d.String())

	_, err = generic.ParseDate("14/07/2025")
	assert.Error(t, err)
}

// =============================================================================
// PERIOD
// =============================================================================

func TestPeriod_GapDays(t *testing.T) {
	week1 := generic.Period{Start: date(2025, time.January, 6), End: date(2025, time.January, 10)}
	week2 := generic.Period{Start: date(2025, time.January, 13), End: date(2025, time.January, 17)}
	overlapping := generic.Period{Start: date(2025, time.January, 9), End: date(2025, time.January, 14)}
	farAway := generic.Period{Start: date(2025, time.February, 3), End: date(2025, time.February, 7)}

	assert.Equal(t, 3, week1.GapDays(week2), "friday to next monday")
	assert.Equal(t, 3, week2.GapDays(week1), "gap is symmetric")
	assert.Equal(t, 0, week1.GapDays(overlapping))
	assert.Equal(t, 24, week1.GapDays(farAway))
}

func TestPeriod_Validate(t *testing.T) {
	_, err := generic.NewPeriod(date(2025, time.January, 10), date(2025, time.January, 6))
	assert.ErrorIs(t, err, generic.ErrInvalidPeriod)

	p, err := generic.NewPeriod(date(2025, time.January, 6), date(2025, time.January, 6))
	require.NoError(t, err)
	assert.Equal(t, 1, p.Workdays())
}

func TestWorkdaysInUnion(t *testing.T) {
	week1 := generic.Period{Start: date(2025, time.January, 6), End: date(2025, time.January, 10)}
	week2 := generic.Period{Start: date(2025, time.January, 13), End: date(2025, time.January, 17)}
	wed := generic.Period{Start: date(2025, time.January, 8), End: date(2025, time.January, 8)}

	// GIVEN: two adjacent Mon-Fri weeks
	// THEN: ten distinct workdays
	assert.Equal(t, 10, generic.WorkdaysInUnion(week1, week2))

	// GIVEN: a range contained in another
	// THEN: the inner range adds nothing
	assert.Equal(t, 5, generic.WorkdaysInUnion(week1, wed))

	// GIVEN: the same range twice
	assert.Equal(t, 5, generic.WorkdaysInUnion(week1, week1))

	assert.Equal(t, 0, generic.WorkdaysInUnion())
}
