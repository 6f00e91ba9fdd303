package sirw_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/sirw-engine/generic"
	"github.com/warp/sirw-engine/sirw"
)

func TestComputeBalance_PartitionsByStatus(t *testing.T) {
	// GIVEN: one week in each status
	requests := []sirw.Request{
		trip(week1Start, week1End, sirw.StatusApproved),
		trip(week2Start, week2End, sirw.StatusCompleted),
		trip(week3Start, week3End, sirw.StatusPending),
		trip(date(2025, time.July, 7), date(2025, time.July, 8), sirw.StatusEscalated),
		trip(date(2025, time.July, 14), date(2025, time.July, 18), sirw.StatusRejected),
		trip(date(2025, time.July, 21), date(2025, time.July, 25), sirw.StatusCancelled),
	}

	// WHEN
	b, err := sirw.NewBalanceTracker(sirw.DefaultPolicy()).ComputeBalance(employeeID, 2025, requests)
	require.NoError(t, err)

	// THEN: approved + completed used, pending + escalated pending, the rest ignored
	assert.Equal(t, 20, b.DaysAllowed)
	assert.Equal(t, 10, b.DaysUsed)
	assert.Equal(t, 7, b.PendingDays)
	assert.Equal(t, 10, b.DaysRemaining)
	assert.Len(t, b.Requests, 6)
}

func TestComputeBalance_RemainingNeverNegative(t *testing.T) {
	requests := []sirw.Request{
		trip(week1Start, week1End, sirw.StatusApproved),
		trip(week2Start, week2End, sirw.StatusApproved),
		trip(week3Start, week3End, sirw.StatusApproved),
		trip(date(2025, time.July, 7), date(2025, time.July, 11), sirw.StatusApproved),
		trip(date(2025, time.July, 14), date(2025, time.July, 18), sirw.StatusApproved),
	}

	b, err := sirw.NewBalanceTracker(sirw.DefaultPolicy()).ComputeBalance(employeeID, 2025, requests)
	require.NoError(t, err)

	assert.Equal(t, 25, b.DaysUsed, "overrun stays visible in DaysUsed")
	assert.Equal(t, 0, b.DaysRemaining)
}

func TestComputeBalance_YearBoundaryChargedToStartYear(t *testing.T) {
	// GIVEN: Mon 29 Dec 2025 .. Fri 2 Jan 2026
	requests := []sirw.Request{
		trip(date(2025, time.December, 29), date(2026, time.January, 2), sirw.StatusApproved),
	}
	bt := sirw.NewBalanceTracker(sirw.DefaultPolicy())

	b2025, err := bt.ComputeBalance(employeeID, 2025, requests)
	require.NoError(t, err)
	b2026, err := bt.ComputeBalance(employeeID, 2026, requests)
	require.NoError(t, err)

	// THEN: all five workdays count against 2025
	assert.Equal(t, 5, b2025.DaysUsed)
	assert.Equal(t, 0, b2026.DaysUsed)
	assert.Empty(t, b2026.Requests)
}

func TestComputeBalance_Idempotent(t *testing.T) {
	requests := []sirw.Request{
		trip(week1Start, week1End, sirw.StatusApproved),
		trip(week2Start, week2End, sirw.StatusPending),
	}
	bt := sirw.NewBalanceTracker(sirw.DefaultPolicy())

	first, err := bt.ComputeBalance(employeeID, 2025, requests)
	require.NoError(t, err)
	second, err := bt.ComputeBalance(employeeID, 2025, requests)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestComputeBalance_ForeignRequestFailsClosed(t *testing.T) {
	foreign := trip(week1Start, week1End, sirw.StatusApproved)
	foreign.EmployeeID = "someone-else"

	_, err := sirw.NewBalanceTracker(sirw.DefaultPolicy()).
		ComputeBalance(employeeID, 2025, []sirw.Request{foreign})

	assert.ErrorIs(t, err, generic.ErrInconsistentHistory)
}

func TestComputeBalance_UsesConfiguredAllowance(t *testing.T) {
	policy := sirw.DefaultPolicy()
	policy.DaysAllowed = 30

	b, err := sirw.NewBalanceTracker(policy).ComputeBalance(employeeID, 2025,
		[]sirw.Request{trip(week1Start, week1End, sirw.StatusApproved)})
	require.NoError(t, err)

	assert.Equal(t, 30, b.DaysAllowed)
	assert.Equal(t, 25, b.DaysRemaining)
	assert.Equal(t, "16.7", b.UsagePercent().String())
}
