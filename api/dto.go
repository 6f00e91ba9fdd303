/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  JSON structures of the HTTP contract. Field names are snake_case and
  dates are YYYY-MM-DD strings; the domain types never leak onto the wire.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

VALIDATION:
  Request types carry go-playground/validator tags. Handlers call
  Handler.decode, which reports failures per JSON field (see validation.go).

SEE ALSO:
  - handlers.go, admin.go: Use these types
  - factory/policy.go: PolicyJSON (admin policy body)
*/
package api

import (
	"time"

	"github.com/warp/sirw-engine/generic"
	"github.com/warp/sirw-engine/sirw"
)

// =============================================================================
// SIRW REQUESTS
// =============================================================================

// SubmitRequest is the body of POST /api/sirw/submit.
type SubmitRequest struct {
	DestinationCountry    string `json:"destination_country" validate:"required,max=100"`
	StartDate             string `json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate               string `json:"end_date" validate:"required,datetime=2006-01-02"`
	HasRightToWork        bool   `json:"has_right_to_work"`
	ConfirmedRoleEligible bool   `json:"confirmed_role_eligible"`
	IsExceptionRequest    bool   `json:"is_exception_request"`
	ExceptionReason       string `json:"exception_reason" validate:"max=2000"`
}

// SubmitResponse is what the employee sees right after submitting.
type SubmitResponse struct {
	ReferenceNumber  string     `json:"reference_number"`
	Status           string     `json:"status"`
	Outcome          string     `json:"outcome"` // approved | rejected | pending
	Message          string     `json:"message"`
	DaysUsedThisYear int        `json:"days_used_this_year"`
	DaysRemaining    int        `json:"days_remaining"`
	Flags            []string   `json:"flags"`
	Request          RequestDTO `json:"request"`
}

// RequestDTO represents a stored SIRW request.
type RequestDTO struct {
	ID                 string   `json:"id"`
	ReferenceNumber    string   `json:"reference_number"`
	EmployeeID         string   `json:"employee_id"`
	HomeCountry        string   `json:"home_country,omitempty"`
	DestinationCountry string   `json:"destination_country"`
	StartDate          string   `json:"start_date"`
	EndDate            string   `json:"end_date"`
	Workdays           int      `json:"workdays"`
	Status             string   `json:"status"`
	DecisionSource     string   `json:"decision_source,omitempty"`
	Flags              []string `json:"flags"`
	IsExceptionRequest bool     `json:"is_exception_request"`
	ExceptionReason    string   `json:"exception_reason,omitempty"`
	HasRightToWork     bool     `json:"has_right_to_work"`
	RoleEligible       bool     `json:"role_eligible"`
	DecisionReason     string   `json:"decision_reason,omitempty"`
	EscalationNote     string   `json:"escalation_note,omitempty"`
	ReviewedBy         string   `json:"reviewed_by,omitempty"`
	ReviewedAt         *string  `json:"reviewed_at,omitempty"`
	AcknowledgedAt     *string  `json:"acknowledged_at,omitempty"`
	Version            int      `json:"version"`
	CreatedAt          string   `json:"created_at"`
	UpdatedAt          string   `json:"updated_at"`
}

func toRequestDTO(r sirw.Request) RequestDTO {
	dto := RequestDTO{
		ID:                 r.ID,
		ReferenceNumber:    r.ReferenceNumber,
		EmployeeID:         r.EmployeeID,
		HomeCountry:        r.HomeCountry,
		DestinationCountry: r.DestinationCountry,
		StartDate:          r.StartDate.String(),
		EndDate:            r.EndDate.String(),
		Workdays:           r.Workdays(),
		Status:             string(r.Status),
		DecisionSource:     string(r.DecisionSource),
		Flags:              flagsOrEmpty(r.Flags),
		IsExceptionRequest: r.IsExceptionRequest,
		ExceptionReason:    r.ExceptionReason,
		HasRightToWork:     r.HasRightToWork,
		RoleEligible:       r.RoleEligible,
		DecisionReason:     r.DecisionReason,
		EscalationNote:     r.EscalationNote,
		ReviewedBy:         r.ReviewedBy,
		Version:            r.Version,
		CreatedAt:          r.CreatedAt.Format(time.RFC3339),
		UpdatedAt:          r.UpdatedAt.Format(time.RFC3339),
	}
	if r.ReviewedAt != nil {
		dto.ReviewedAt = strPtr(r.ReviewedAt.Format(time.RFC3339))
	}
	if r.AcknowledgedAt != nil {
		dto.AcknowledgedAt = strPtr(r.AcknowledgedAt.Format(time.RFC3339))
	}
	return dto
}

func toRequestDTOs(rs []sirw.Request) []RequestDTO {
	out := make([]RequestDTO, len(rs))
	for i, r := range rs {
		out[i] = toRequestDTO(r)
	}
	return out
}

func flagsOrEmpty(fs sirw.Flags) []string {
	if len(fs) == 0 {
		return []string{}
	}
	return fs.Strings()
}

// LatestDecisionResponse wraps the unseen decision; Decision is null when
// there is none.
type LatestDecisionResponse struct {
	Decision *RequestDTO `json:"decision"`
}

// AcknowledgeResponse confirms a decision was seen.
type AcknowledgeResponse struct {
	Status         string `json:"status"`
	AcknowledgedAt string `json:"acknowledged_at"`
}

// =============================================================================
// COMPLIANCE
// =============================================================================

// RuleDTO is one entry of the public rules catalogue.
type RuleDTO struct {
	Name        string   `json:"name"`
	Severity    string   `json:"severity"`
	Description string   `json:"description"`
	Flags       []string `json:"flags"`
}

func toRuleDTOs(rules []sirw.RuleInfo) []RuleDTO {
	out := make([]RuleDTO, len(rules))
	for i, r := range rules {
		flags := make([]string, len(r.Flags))
		for j, k := range r.Flags {
			flags[j] = string(k)
		}
		out[i] = RuleDTO{Name: r.Name, Severity: r.Severity, Description: r.Description, Flags: flags}
	}
	return out
}

// RuleResultDTO is one rule's outcome in an assessment.
type RuleResultDTO struct {
	Name     string `json:"name"`
	Severity string `json:"severity"`
	Result   string `json:"result"` // passed | failed | skipped
}

// AssessResponse is a dry-run decision. Nothing is stored.
type AssessResponse struct {
	Outcome          string          `json:"outcome"` // approved | rejected | escalated
	Message          string          `json:"message"`
	Reasons          []string        `json:"reasons"`
	EscalationNote   string          `json:"escalation_note"`
	Workdays         int             `json:"workdays"`
	DaysUsedThisYear int             `json:"days_used_this_year"`
	DaysRemaining    int             `json:"days_remaining"`
	Flags            []string        `json:"flags"`
	Rules            []RuleResultDTO `json:"rules"`
}

func toAssessResponse(d sirw.Decision) AssessResponse {
	results := d.Evaluation.RuleResults()
	rules := make([]RuleResultDTO, len(results))
	for i, r := range results {
		rules[i] = RuleResultDTO{Name: r.Rule.Name, Severity: r.Rule.Severity, Result: string(r.Outcome)}
	}
	reasons := d.Evaluation.Reasons
	if reasons == nil {
		reasons = []string{}
	}
	return AssessResponse{
		Outcome:          string(d.Request.Status),
		Message:          d.Message,
		Reasons:          reasons,
		EscalationNote:   d.Request.EscalationNote,
		Workdays:         d.Request.Workdays(),
		DaysUsedThisYear: d.Balance.DaysUsed,
		DaysRemaining:    d.DaysRemaining(),
		Flags:            flagsOrEmpty(d.Request.Flags),
		Rules:            rules,
	}
}

// =============================================================================
// BALANCE & OVERLAP
// =============================================================================

// BalanceDTO is the employee's allowance for one year.
type BalanceDTO struct {
	Year             int          `json:"year"`
	DaysAllowed      int          `json:"days_allowed"`
	DaysUsed         int          `json:"days_used"`
	DaysRemaining    int          `json:"days_remaining"`
	PendingDays      int          `json:"pending_days"`
	UsagePercent     string       `json:"usage_percent"`
	RequestsThisYear []RequestDTO `json:"requests_this_year"`
}

func toBalanceDTO(b sirw.AnnualBalance) BalanceDTO {
	return BalanceDTO{
		Year:             b.Year,
		DaysAllowed:      b.DaysAllowed,
		DaysUsed:         b.DaysUsed,
		DaysRemaining:    b.DaysRemaining,
		PendingDays:      b.PendingDays,
		UsagePercent:     b.UsagePercent().StringFixed(1),
		RequestsThisYear: toRequestDTOs(b.Requests),
	}
}

// CheckOverlapRequest is the body of POST /api/sirw/check-overlap.
type CheckOverlapRequest struct {
	StartDate string `json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate   string `json:"end_date" validate:"required,datetime=2006-01-02"`
}

// OverlapDTO previews how a trip combines with nearby ones.
type OverlapDTO struct {
	HasOverlap     bool         `json:"has_overlap"`
	NearbyRequests []RequestDTO `json:"nearby_requests"`
	CombinedDays   int          `json:"combined_days"`
	Warning        *string      `json:"warning"`
}

func toOverlapDTO(o sirw.OverlapResult) OverlapDTO {
	dto := OverlapDTO{
		HasOverlap:     o.HasOverlap,
		NearbyRequests: toRequestDTOs(o.NearbyRequests),
		CombinedDays:   o.CombinedDays,
	}
	if o.Warning != "" {
		dto.Warning = strPtr(o.Warning)
	}
	return dto
}

// =============================================================================
// COUNTRIES
// =============================================================================

type CountryDTO struct {
	Name   string `json:"name"`
	Code   string `json:"code"`
	Reason string `json:"reason"`
	Region string `json:"region"`
}

// BlockedCountriesResponse groups the reference list by block reason.
type BlockedCountriesResponse struct {
	Sanctioned []CountryDTO `json:"sanctioned"`
	NoEntity   []CountryDTO `json:"no_entity"`
}

// CountryCheckDTO answers "can I go to X?".
type CountryCheckDTO struct {
	Country   string      `json:"country"`
	Permitted bool        `json:"permitted"`
	Reason    string      `json:"reason,omitempty"`
	Message   string      `json:"message,omitempty"`
	Match     *CountryDTO `json:"match,omitempty"`
}

func toCountryDTOs(cs []sirw.BlockedCountry) []CountryDTO {
	out := make([]CountryDTO, len(cs))
	for i, c := range cs {
		out[i] = CountryDTO{Name: c.Name, Code: c.Code, Reason: string(c.Reason), Region: c.Region}
	}
	return out
}

// =============================================================================
// EMPLOYEES
// =============================================================================

// EmployeeDTO represents an employee in API responses.
type EmployeeDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Email       string `json:"email,omitempty"`
	HomeCountry string `json:"home_country"`
	CreatedAt   string `json:"created_at,omitempty"`
}

// CreateEmployeeRequest is the request to create an employee.
type CreateEmployeeRequest struct {
	ID          string `json:"id" validate:"omitempty,max=64"`
	Name        string `json:"name" validate:"required,max=200"`
	Email       string `json:"email" validate:"omitempty,email"`
	HomeCountry string `json:"home_country" validate:"required,max=100"`
}

func toEmployeeDTO(e sirw.Employee) EmployeeDTO {
	return EmployeeDTO{
		ID:          e.ID,
		Name:        e.Name,
		Email:       e.Email,
		HomeCountry: e.HomeCountry,
		CreatedAt:   e.CreatedAt.Format(time.RFC3339),
	}
}

// =============================================================================
// ADMIN
// =============================================================================

// DecideRequest is the reviewer's call on an escalated request.
type DecideRequest struct {
	Decision string `json:"decision" validate:"required,oneof=approved rejected"`
	Note     string `json:"note" validate:"max=2000"`
}

// CommentRequest is the body of POST /api/admin/requests/{id}/comments.
type CommentRequest struct {
	Body string `json:"body" validate:"required,max=4000"`
}

// CommentDTO is a note on a request.
type CommentDTO struct {
	ID        string `json:"id"`
	RequestID string `json:"request_id"`
	AuthorID  string `json:"author_id"`
	Body      string `json:"body"`
	CreatedAt string `json:"created_at"`
}

func toCommentDTO(c sirw.RequestComment) CommentDTO {
	return CommentDTO{
		ID:        c.ID,
		RequestID: c.RequestID,
		AuthorID:  c.AuthorID,
		Body:      c.Body,
		CreatedAt: c.CreatedAt.Format(time.RFC3339),
	}
}

func toCommentDTOs(cs []sirw.RequestComment) []CommentDTO {
	out := make([]CommentDTO, len(cs))
	for i, c := range cs {
		out[i] = toCommentDTO(c)
	}
	return out
}

// AuditEntryDTO is one line of a request's history.
type AuditEntryDTO struct {
	ID        string         `json:"id"`
	Timestamp string         `json:"timestamp"`
	ActorID   string         `json:"actor_id"`
	Action    string         `json:"action"`
	Payload   map[string]any `json:"payload,omitempty"`
}

func toAuditDTOs(es []generic.AuditEntry) []AuditEntryDTO {
	out := make([]AuditEntryDTO, len(es))
	for i, e := range es {
		out[i] = AuditEntryDTO{
			ID:        e.ID,
			Timestamp: e.Timestamp.Format(time.RFC3339),
			ActorID:   e.ActorID,
			Action:    string(e.Action),
			Payload:   e.Payload,
		}
	}
	return out
}

// AdminRequestResponse is a request with its audit trail and comments.
type AdminRequestResponse struct {
	Request  RequestDTO      `json:"request"`
	Audit    []AuditEntryDTO `json:"audit"`
	Comments []CommentDTO    `json:"comments"`
}

// DashboardResponse is the reviewer overview.
type DashboardResponse struct {
	Total           int                   `json:"total"`
	ByStatus        map[string]int        `json:"by_status"`
	AutoDecided     int                   `json:"auto_decided"`
	HumanDecided    int                   `json:"human_decided"`
	AwaitingReview  int                   `json:"awaiting_review"`
	ApprovalRate    string                `json:"approval_rate"`
	TopDestinations []DestinationCountDTO `json:"top_destinations"`
	Escalated       []RequestDTO          `json:"escalated"`
}

type DestinationCountDTO struct {
	Country string `json:"country"`
	Count   int    `json:"count"`
}

func toDashboard(s sirw.Stats, escalated []sirw.Request) DashboardResponse {
	resp := DashboardResponse{
		Total:           s.Total,
		ByStatus:        make(map[string]int, len(s.ByStatus)),
		AutoDecided:     s.AutoDecided,
		HumanDecided:    s.HumanDecided,
		AwaitingReview:  s.AwaitingReview,
		ApprovalRate:    s.ApprovalRate.StringFixed(2),
		TopDestinations: make([]DestinationCountDTO, len(s.TopDestinations)),
		Escalated:       toRequestDTOs(escalated),
	}
	for st, n := range s.ByStatus {
		resp.ByStatus[string(st)] = n
	}
	for i, d := range s.TopDestinations {
		resp.TopDestinations[i] = DestinationCountDTO{Country: d.Country, Count: d.Count}
	}
	return resp
}

// =============================================================================
// ERRORS
// =============================================================================

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error   string            `json:"error"`
	Details string            `json:"details,omitempty"`
	Fields  map[string]string `json:"fields,omitempty"`
}

func strPtr(s string) *string {
	return &s
}
