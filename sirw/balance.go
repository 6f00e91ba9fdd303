/*
balance.go - Annual SIRW balance

PURPOSE:
  Computes how many workdays an employee has used, has pending, and has left
  for a calendar year. The balance is NEVER stored: it is recomputed from the
  request set on every call, so it can never drift from the requests.

COUNTING RULES:
  approved, completed  -> DaysUsed
  pending, escalated   -> PendingDays
  rejected, cancelled  -> ignored

  A request is charged to the year of its START date, whole. A trip from
  Mon 29 Dec to Fri 2 Jan counts 5 workdays against the first year and 0
  against the second.

  DaysRemaining = max(0, DaysAllowed - DaysUsed). Pending days do not reduce
  it. Going over the allowance is reported by the evaluator as a flag, never
  hidden by the floor.

FAIL CLOSED:
  A request that belongs to another employee, or whose range is inverted,
  means the history cannot be trusted. ComputeBalance returns an error
  instead of a number.

SEE ALSO:
  - eligibility.go: exceeds_annual_limit uses DaysUsed
  - service.go: GET /api/sirw/balance
*/
package sirw

import (
	"fmt"
	"sort"

	"github.com/warp/sirw-engine/generic"
)

// BalanceTracker computes annual balances under a policy.
type BalanceTracker struct {
	Policy Policy
}

func NewBalanceTracker(policy Policy) *BalanceTracker {
	return &BalanceTracker{Policy: policy}
}

// ComputeBalance derives the balance for employeeID in year from requests.
// Calling it twice with the same input yields the same result.
func (bt *BalanceTracker) ComputeBalance(employeeID string, year int, requests []Request) (AnnualBalance, error) {
	if err := checkHistory(employeeID, requests); err != nil {
		return AnnualBalance{}, err
	}

	balance := AnnualBalance{
		EmployeeID:  employeeID,
		Year:        year,
		DaysAllowed: bt.Policy.DaysAllowed,
		Requests:    []Request{},
	}

	for _, r := range requests {
		if r.Year() != year {
			continue
		}
		balance.Requests = append(balance.Requests, r)

		switch {
		case r.Status.ConsumesBalance():
			balance.DaysUsed += r.Workdays()
		case r.Status.Awaiting():
			balance.PendingDays += r.Workdays()
		}
	}

	balance.DaysRemaining = max(0, balance.DaysAllowed-balance.DaysUsed)

	sort.SliceStable(balance.Requests, func(i, j int) bool {
		return balance.Requests[i].StartDate.Before(balance.Requests[j].StartDate)
	})
	return balance, nil
}

// checkHistory rejects a request set that cannot be the employee's own history.
func checkHistory(employeeID string, requests []Request) error {
	for _, r := range requests {
		if r.EmployeeID != employeeID {
			return fmt.Errorf("%w: request %s belongs to %s, not %s",
				generic.ErrInconsistentHistory, r.ID, r.EmployeeID, employeeID)
		}
		if err := r.Period().Validate(); err != nil {
			return fmt.Errorf("%w: request %s: %v", generic.ErrInconsistentHistory, r.ID, err)
		}
		if !r.Status.Valid() {
			return fmt.Errorf("%w: request %s has unknown status %q",
				generic.ErrInconsistentHistory, r.ID, r.Status)
		}
	}
	return nil
}
