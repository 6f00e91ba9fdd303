package sirw

import (
	"fmt"
	"sort"

	"github.com/warp/sirw-engine/generic"
)

// =============================================================================
// OVERLAP DETECTOR - Trips close enough to count as one stay
// =============================================================================

// Two back-to-back trips of 10 workdays each are effectively one 20-day stay.
// The detector finds every existing trip within ProximityDays calendar days of
// the candidate and counts the distinct workdays of the candidate plus those
// trips, so the consecutive limit cannot be sidestepped by splitting.
//
// Only trips directly near the candidate are included; a trip that is near a
// nearby trip but not near the candidate is not chained in.

// CheckOverlap inspects requests for trips near [start, end].
// Rejected and cancelled requests are ignored. The candidate itself must not
// be in requests.
func CheckOverlap(employeeID string, start, end generic.TimePoint, policy Policy, requests []Request) (OverlapResult, error) {
	candidate, err := generic.NewPeriod(start, end)
	if err != nil {
		return OverlapResult{}, err
	}
	if err := checkHistory(employeeID, requests); err != nil {
		return OverlapResult{}, err
	}

	nearby := []Request{}
	periods := []generic.Period{candidate}
	for _, r := range requests {
		if r.Status.Inactive() {
			continue
		}
		if candidate.GapDays(r.Period()) <= policy.ProximityDays {
			nearby = append(nearby, r)
			periods = append(periods, r.Period())
		}
	}

	sort.SliceStable(nearby, func(i, j int) bool {
		return nearby[i].StartDate.Before(nearby[j].StartDate)
	})

	result := OverlapResult{
		HasOverlap:     len(nearby) > 0,
		NearbyRequests: nearby,
		CombinedDays:   generic.WorkdaysInUnion(periods...),
	}
	if result.HasOverlap && result.CombinedDays > policy.ConsecutiveLimit {
		result.Warning = fmt.Sprintf(
			"Combined with nearby requests, this would total %d workdays. "+
				"Consider whether this effectively circumvents the %d-day consecutive limit.",
			result.CombinedDays, policy.ConsecutiveLimit)
	}
	return result, nil
}
