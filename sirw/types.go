// Package sirw implements the Short-Term International Remote Work decision
// engine: country classification, annual balance, proximity overlap,
// eligibility rules and the request lifecycle built on top of them.
package sirw

import (
	"fmt"
	"strings"
	"time"

	"github.com/warp/sirw-engine/generic"
)

// =============================================================================
// STATUS
// =============================================================================

type Status string

const (
	StatusPending   Status = "pending"
	StatusApproved  Status = "approved"
	StatusRejected  Status = "rejected"
	StatusEscalated Status = "escalated"
	StatusCancelled Status = "cancelled"
	StatusCompleted Status = "completed"
)

// AllStatuses lists every status in lifecycle order.
var AllStatuses = []Status{
	StatusPending, StatusApproved, StatusRejected,
	StatusEscalated, StatusCancelled, StatusCompleted,
}

func (s Status) Valid() bool {
	for _, known := range AllStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// ConsumesBalance reports whether a request in this status counts as days used.
func (s Status) ConsumesBalance() bool {
	return s == StatusApproved || s == StatusCompleted
}

// Awaiting reports whether a request in this status is still waiting for a decision.
func (s Status) Awaiting() bool {
	return s == StatusPending || s == StatusEscalated
}

// Inactive requests never count toward balance or proximity.
func (s Status) Inactive() bool {
	return s == StatusRejected || s == StatusCancelled
}

// DecisionSource records who made the final decision. Empty means undecided.
type DecisionSource string

const (
	DecisionAuto  DecisionSource = "auto"
	DecisionHuman DecisionSource = "human"
)

// =============================================================================
// POLICY FLAGS
// =============================================================================

type FlagKind string

const (
	FlagNoRightToWork           FlagKind = "no_right_to_work"
	FlagRoleIneligible          FlagKind = "role_ineligible"
	FlagSanctionedCountry       FlagKind = "sanctioned_country"
	FlagNoMaerskEntity          FlagKind = "no_maersk_entity"
	FlagExceedsAnnualLimit      FlagKind = "exceeds_annual_limit"
	FlagExceedsConsecutiveLimit FlagKind = "exceeds_consecutive_limit"
	FlagException               FlagKind = "exception"
)

// Hard flags can never be overridden by an exception request.
func (k FlagKind) Hard() bool {
	switch k {
	case FlagNoRightToWork, FlagRoleIneligible, FlagSanctionedCountry, FlagNoMaerskEntity:
		return true
	}
	return false
}

// Soft flags become an escalation when the employee asked for an exception.
func (k FlagKind) Soft() bool {
	return k == FlagExceedsAnnualLimit || k == FlagExceedsConsecutiveLimit
}

// Flag is a single policy flag. Only the exception kind carries Detail, the
// employee's free-text justification.
//
// Text form: "sanctioned_country", "exception:client workshop in Lisbon".
type Flag struct {
	Kind   FlagKind
	Detail string
}

func NewFlag(kind FlagKind) Flag { return Flag{Kind: kind} }

func ExceptionFlag(reason string) Flag {
	return Flag{Kind: FlagException, Detail: strings.TrimSpace(reason)}
}

func (f Flag) String() string {
	if f.Kind == FlagException {
		return string(FlagException) + ":" + f.Detail
	}
	return string(f.Kind)
}

// ParseFlag is the inverse of String.
func ParseFlag(s string) (Flag, error) {
	if rest, ok := strings.CutPrefix(s, string(FlagException)+":"); ok {
		return ExceptionFlag(rest), nil
	}
	kind := FlagKind(s)
	if kind.Hard() || kind.Soft() {
		return Flag{Kind: kind}, nil
	}
	return Flag{}, fmt.Errorf("unknown policy flag %q", s)
}

func (f Flag) MarshalText() ([]byte, error) { return []byte(f.String()), nil }

func (f *Flag) UnmarshalText(b []byte) error {
	parsed, err := ParseFlag(string(b))
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}

// Flags is an ordered set of policy flags. Adding a flag never removes another.
type Flags []Flag

// Add appends f unless an equal flag is already present.
func (fs Flags) Add(f Flag) Flags {
	for _, existing := range fs {
		if existing == f {
			return fs
		}
	}
	return append(fs, f)
}

func (fs Flags) Has(kind FlagKind) bool {
	for _, f := range fs {
		if f.Kind == kind {
			return true
		}
	}
	return false
}

func (fs Flags) HasSoft() bool {
	for _, f := range fs {
		if f.Kind.Soft() {
			return true
		}
	}
	return false
}

func (fs Flags) Strings() []string {
	out := make([]string, len(fs))
	for i, f := range fs {
		out[i] = f.String()
	}
	return out
}

// ParseFlags parses the text form of each flag.
func ParseFlags(values []string) (Flags, error) {
	fs := make(Flags, 0, len(values))
	for _, v := range values {
		f, err := ParseFlag(v)
		if err != nil {
			return nil, err
		}
		fs = fs.Add(f)
	}
	return fs, nil
}

// =============================================================================
// REQUEST
// =============================================================================

// Request is one SIRW trip. Dates are inclusive calendar dates.
// Workdays are derived on read and never stored.
type Request struct {
	ID                 string
	ReferenceNumber    string
	EmployeeID         string
	HomeCountry        string
	DestinationCountry string
	StartDate          generic.TimePoint
	EndDate            generic.TimePoint

	Status         Status
	DecisionSource DecisionSource
	Flags          Flags

	IsExceptionRequest bool
	ExceptionReason    string

	// Attestations as submitted, kept for the reviewer.
	HasRightToWork bool
	RoleEligible   bool

	DecisionReason string // audit note: first triggering reason
	EscalationNote string // reviewer context for escalated requests
	ReviewedBy     string
	ReviewedAt     *time.Time

	// AcknowledgedAt is set once the employee has seen the final decision.
	AcknowledgedAt *time.Time

	// Version increments on every update; stores reject stale writes.
	Version   int
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (r Request) Period() generic.Period {
	return generic.Period{Start: r.StartDate, End: r.EndDate}
}

// AwaitingAcknowledgement reports whether the employee still has to see
// an approval or rejection.
func (r Request) AwaitingAcknowledgement() bool {
	return (r.Status == StatusApproved || r.Status == StatusRejected) && r.AcknowledgedAt == nil
}

func (r Request) Workdays() int {
	return generic.WorkdaysBetween(r.StartDate, r.EndDate)
}

// Year is the year the request is charged to: the year of its start date.
func (r Request) Year() int {
	return r.StartDate.Year()
}

// Attestations are the employee's self-declarations at submission time.
type Attestations struct {
	HasRightToWork bool
	RoleEligible   bool
}

// RequestComment is a note attached to a request by a reviewer or the
// employee. Comments are append-only.
type RequestComment struct {
	ID        string
	RequestID string
	AuthorID  string
	Body      string
	CreatedAt time.Time
}

// Employee is the minimal employee record the engine needs.
type Employee struct {
	ID          string
	Name        string
	Email       string
	HomeCountry string
	CreatedAt   time.Time
}

// =============================================================================
// DERIVED VIEWS
// =============================================================================

// AnnualBalance is always recomputed from the request set.
type AnnualBalance struct {
	EmployeeID    string
	Year          int
	DaysAllowed   int
	DaysUsed      int
	PendingDays   int
	DaysRemaining int
	Requests      []Request // requests charged to the year, any status
}

// OverlapResult describes requests within the proximity window of a candidate trip.
type OverlapResult struct {
	HasOverlap     bool
	NearbyRequests []Request
	CombinedDays   int
	Warning        string
}

// Verdict is the evaluator's outcome.
type Verdict string

const (
	VerdictApprove  Verdict = "approve"
	VerdictReject   Verdict = "reject"
	VerdictEscalate Verdict = "escalate"
)

// Status maps the verdict to the request status it produces.
func (v Verdict) Status() Status {
	switch v {
	case VerdictApprove:
		return StatusApproved
	case VerdictReject:
		return StatusRejected
	default:
		return StatusEscalated
	}
}
