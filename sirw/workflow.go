/*
workflow.go - Request lifecycle and automatic decisions

PURPOSE:
  Orchestrates the engine for one request: annual balance, overlap, rule
  pipeline, then stamps status, decision source, flags and messages onto
  the request. Also owns every later transition (human review, cancel,
  completion) so lifecycle rules live in one place.

LIFECYCLE:
                      +--> approved (auto) ----> completed
                      |        ^
  pending --Decide----+--> rejected (auto)
                      |        ^
                      +--> escalated --Review--> approved | rejected (human)
                                  |
  pending | escalated --Cancel--> cancelled

DECISION SOURCE:
  auto   - set by Decide on approve and reject
  unset  - while escalated
  human  - set by Review; Review never re-runs the rules

PURITY:
  The workflow performs no I/O. Callers load the history, call Decide and
  persist the returned request inside one store transaction.

SEE ALSO:
  - eligibility.go: The rule pipeline
  - service.go: Persistence and events around the workflow
*/
package sirw

import (
	"fmt"
	"strings"
	"time"

	"github.com/warp/sirw-engine/generic"
)

// Workflow bundles the engine components under one policy.
type Workflow struct {
	Policy    Policy
	Countries *CountryPolicy

	tracker   *BalanceTracker
	evaluator *Evaluator
}

func NewWorkflow(policy Policy, countries *CountryPolicy) *Workflow {
	return &Workflow{
		Policy:    policy,
		Countries: countries,
		tracker:   NewBalanceTracker(policy),
		evaluator: NewEvaluator(policy, countries),
	}
}

// Decision is the result of an automatic evaluation.
type Decision struct {
	Request    Request
	Evaluation Evaluation
	Balance    AnnualBalance // balance BEFORE this request
	Overlap    OverlapResult
	Message    string // employee-facing
}

// Outcome is the coarse result shown to the employee.
func (d Decision) Outcome() string {
	switch d.Request.Status {
	case StatusApproved:
		return "approved"
	case StatusRejected:
		return "rejected"
	default:
		return "pending"
	}
}

// DaysRemaining is the allowance left once this decision is applied.
func (d Decision) DaysRemaining() int {
	if d.Request.Status == StatusApproved {
		return max(0, d.Balance.DaysRemaining-d.Request.Workdays())
	}
	return d.Balance.DaysRemaining
}

// =============================================================================
// AUTOMATIC DECISION
// =============================================================================

// ValidateRequest reports field-level problems that make a request undecidable.
func ValidateRequest(req Request) error {
	verr := generic.NewValidationError()
	if strings.TrimSpace(req.EmployeeID) == "" {
		verr.Add("employee_id", "is required")
	}
	if strings.TrimSpace(req.DestinationCountry) == "" {
		verr.Add("destination_country", "is required")
	}
	if req.StartDate.IsZero() {
		verr.Add("start_date", "is required")
	}
	if req.EndDate.IsZero() {
		verr.Add("end_date", "is required")
	}
	if !req.StartDate.IsZero() && !req.EndDate.IsZero() && req.EndDate.Before(req.StartDate) {
		verr.Add("end_date", "must be on or after start_date")
	}
	return verr.OrNil()
}

// Decide evaluates req against the employee's history and returns the
// request with status, decision source, flags and notes applied.
// history may contain req itself; it is skipped.
func (w *Workflow) Decide(req Request, att Attestations, history []Request) (Decision, error) {
	if err := ValidateRequest(req); err != nil {
		return Decision{}, err
	}

	others := make([]Request, 0, len(history))
	for _, h := range history {
		if req.ID != "" && h.ID == req.ID {
			continue
		}
		others = append(others, h)
	}

	balance, err := w.tracker.ComputeBalance(req.EmployeeID, req.Year(), others)
	if err != nil {
		return Decision{}, err
	}
	overlap, err := CheckOverlap(req.EmployeeID, req.StartDate, req.EndDate, w.Policy, others)
	if err != nil {
		return Decision{}, err
	}

	eval := w.evaluator.Evaluate(EvaluationInput{
		Request:      req,
		Attestations: att,
		Balance:      balance,
		Overlap:      overlap,
	})

	req.HasRightToWork = att.HasRightToWork
	req.RoleEligible = att.RoleEligible
	req.Flags = eval.Flags
	req.Status = eval.Verdict.Status()
	req.DecisionSource = ""
	req.EscalationNote = ""

	d := Decision{Evaluation: eval, Balance: balance, Overlap: overlap}
	workdays := req.Workdays()

	switch eval.Verdict {
	case VerdictApprove:
		req.DecisionSource = DecisionAuto
		req.DecisionReason = fmt.Sprintf("All compliance checks passed. SIRW to %s for %d workdays is approved.",
			req.DestinationCountry, workdays)
		d.Message = fmt.Sprintf("Your SIRW request to %s for %d workdays has been approved.",
			req.DestinationCountry, workdays)

	case VerdictReject:
		req.DecisionSource = DecisionAuto
		req.DecisionReason = eval.Reason()
		d.Message = eval.Reason()

	case VerdictEscalate:
		req.DecisionReason = fmt.Sprintf("Request requires Global Mobility review: %s Exception reason: %s",
			strings.Join(eval.Reasons, " "), strings.TrimSpace(req.ExceptionReason))
		req.EscalationNote = fmt.Sprintf("Days used this year: %d. Request duration: %d workdays. "+
			"Combined with nearby requests: %d workdays.", balance.DaysUsed, workdays, overlap.CombinedDays)
		d.Message = "Your request has been submitted for review by Global Mobility. " + eval.Reason()
	}

	d.Request = req
	return d, nil
}

// =============================================================================
// LATER TRANSITIONS
// =============================================================================

// Review applies a reviewer's decision. The rules are not re-run: the
// reviewer's call is final and the flags raised at submission are kept.
func (w *Workflow) Review(req Request, outcome Status, reviewer, note string, at time.Time) (Request, error) {
	if outcome != StatusApproved && outcome != StatusRejected {
		verr := generic.NewValidationError()
		verr.Add("decision", "must be approved or rejected")
		return Request{}, verr
	}
	if !req.Status.Awaiting() {
		return Request{}, &generic.TransitionError{RequestID: req.ID, From: string(req.Status), To: string(outcome)}
	}

	note = strings.TrimSpace(note)
	if note == "" {
		note = fmt.Sprintf("Request %s by Global Mobility.", outcome)
	}

	reviewedAt := at
	req.Status = outcome
	req.DecisionSource = DecisionHuman
	req.DecisionReason = note
	req.ReviewedBy = reviewer
	req.ReviewedAt = &reviewedAt
	req.UpdatedAt = at
	return req, nil
}

// Cancel withdraws a request that has not been decided yet.
// Approved and completed trips cannot be cancelled.
func (w *Workflow) Cancel(req Request, at time.Time) (Request, error) {
	if !req.Status.Awaiting() {
		return Request{}, &generic.TransitionError{RequestID: req.ID, From: string(req.Status), To: string(StatusCancelled)}
	}
	req.Status = StatusCancelled
	req.UpdatedAt = at
	return req, nil
}

// Complete marks an approved trip whose last day is before today as completed.
func (w *Workflow) Complete(req Request, today generic.TimePoint, at time.Time) (Request, error) {
	if req.Status != StatusApproved || !req.EndDate.Before(today) {
		return Request{}, &generic.TransitionError{RequestID: req.ID, From: string(req.Status), To: string(StatusCompleted)}
	}
	req.Status = StatusCompleted
	req.UpdatedAt = at
	return req, nil
}
