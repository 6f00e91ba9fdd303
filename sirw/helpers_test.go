package sirw_test

import (
	"fmt"
	"time"

	"github.com/warp/sirw-engine/generic"
	"github.com/warp/sirw-engine/sirw"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

const employeeID = "emp-1"

func date(year int, month time.Month, day int) generic.TimePoint {
	return generic.NewTimePoint(year, month, day)
}

var seq int

// trip builds a stored request for employeeID.
func trip(start, end generic.TimePoint, status sirw.Status) sirw.Request {
	seq++
	return sirw.Request{
		ID:                 fmt.Sprintf("req-%d", seq),
		EmployeeID:         employeeID,
		DestinationCountry: "Portugal",
		StartDate:          start,
		EndDate:            end,
		Status:             status,
		CreatedAt:          time.Date(2025, time.January, 1, 9, 0, seq, 0, time.UTC),
	}
}

// candidate builds an unsaved request for employeeID.
func candidate(country string, start, end generic.TimePoint) sirw.Request {
	return sirw.Request{
		ID:                 "candidate",
		EmployeeID:         employeeID,
		DestinationCountry: country,
		StartDate:          start,
		EndDate:            end,
		Status:             sirw.StatusPending,
	}
}

var attested = sirw.Attestations{HasRightToWork: true, RoleEligible: true}

func newWorkflow() *sirw.Workflow {
	return sirw.NewWorkflow(sirw.DefaultPolicy(), sirw.DefaultCountryPolicy())
}

// Mon 2025-06-02 .. Fri 2025-06-06 and following weeks.
var (
	week1Start = date(2025, time.June, 2)
	week1End   = date(2025, time.June, 6)
	week2Start = date(2025, time.June, 9)
	week2End   = date(2025, time.June, 13)
	week3Start = date(2025, time.June, 16)
	week3End   = date(2025, time.June, 20)
)
