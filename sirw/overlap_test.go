package sirw_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/sirw-engine/generic"
	"github.com/warp/sirw-engine/sirw"
)

func TestCheckOverlap_AdjacentWeeksCombine(t *testing.T) {
	// GIVEN: an approved Mon-Fri week
	existing := trip(week1Start, week1End, sirw.StatusApproved)

	// WHEN: the next Mon-Fri week is checked (gap Fri -> Mon = 3 days)
	result, err := sirw.CheckOverlap(employeeID, week2Start, week2End, sirw.DefaultPolicy(), []sirw.Request{existing})
	require.NoError(t, err)

	// THEN: both weeks count once each
	assert.True(t, result.HasOverlap)
	require.Len(t, result.NearbyRequests, 1)
	assert.Equal(t, existing.ID, result.NearbyRequests[0].ID)
	assert.Equal(t, 10, result.CombinedDays)
	assert.Empty(t, result.Warning, "10 is within the 14-day limit")
}

func TestCheckOverlap_OverlappingDaysCountedOnce(t *testing.T) {
	// GIVEN: Mon-Wed approved, candidate Tue-Fri
	existing := trip(week1Start, date(2025, time.June, 4), sirw.StatusApproved)

	result, err := sirw.CheckOverlap(employeeID, date(2025, time.June, 3), week1End, sirw.DefaultPolicy(),
		[]sirw.Request{existing})
	require.NoError(t, err)

	assert.True(t, result.HasOverlap)
	assert.Equal(t, 5, result.CombinedDays)
}

func TestCheckOverlap_ProximityBoundary(t *testing.T) {
	policy := sirw.DefaultPolicy() // 7 days

	// Candidate Mon 2025-06-16 .. Fri 2025-06-20
	// 7 days before start: ends Mon 2025-06-09 -> included
	atBoundary := trip(date(2025, time.June, 9), date(2025, time.June, 9), sirw.StatusApproved)
	// 8 days before start: ends Sun 2025-06-08 -> excluded
	beyond := trip(date(2025, time.June, 6), date(2025, time.June, 8), sirw.StatusApproved)

	result, err := sirw.CheckOverlap(employeeID, week3Start, week3End, policy,
		[]sirw.Request{atBoundary, beyond})
	require.NoError(t, err)

	require.Len(t, result.NearbyRequests, 1)
	assert.Equal(t, atBoundary.ID, result.NearbyRequests[0].ID)
	assert.Equal(t, 6, result.CombinedDays)
}

func TestCheckOverlap_IgnoresRejectedAndCancelled(t *testing.T) {
	requests := []sirw.Request{
		trip(week1Start, week1End, sirw.StatusRejected),
		trip(week1Start, week1End, sirw.StatusCancelled),
	}

	result, err := sirw.CheckOverlap(employeeID, week2Start, week2End, sirw.DefaultPolicy(), requests)
	require.NoError(t, err)

	assert.False(t, result.HasOverlap)
	assert.Empty(t, result.NearbyRequests)
	assert.Equal(t, 5, result.CombinedDays, "candidate alone")
}

func TestCheckOverlap_WarningWhenCombinedExceedsLimit(t *testing.T) {
	// GIVEN: two approved weeks around the candidate week
	requests := []sirw.Request{
		trip(week3Start, week3End, sirw.StatusApproved),
		trip(week1Start, week1End, sirw.StatusPending),
	}

	result, err := sirw.CheckOverlap(employeeID, week2Start, week2End, sirw.DefaultPolicy(), requests)
	require.NoError(t, err)

	// THEN: 15 combined workdays, nearby sorted by start
	assert.Equal(t, 15, result.CombinedDays)
	require.Len(t, result.NearbyRequests, 2)
	assert.True(t, result.NearbyRequests[0].StartDate.Equal(week1Start))
	assert.Contains(t, result.Warning, "total 15 workdays")
	assert.Contains(t, result.Warning, "14-day consecutive limit")
}

func TestCheckOverlap_InvalidRange(t *testing.T) {
	_, err := sirw.CheckOverlap(employeeID, week1End, week1Start, sirw.DefaultPolicy(), nil)
	assert.ErrorIs(t, err, generic.ErrInvalidPeriod)
}
