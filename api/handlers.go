/*
handlers.go - HTTP API handlers for SIRW requests

PURPOSE:
  Exposes the SIRW decision engine via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to sirw.Service.

ENDPOINTS:
  Employee self-service (X-Employee-ID header required):
    POST   /api/sirw/submit               Submit a request, get the decision
    GET    /api/sirw/balance[?year=]      Annual balance
    POST   /api/sirw/check-overlap        Preview nearby trips for a date range
    GET    /api/sirw/requests             Own requests, newest first
    GET    /api/sirw/requests/{id}        One own request
    POST   /api/sirw/requests/{id}/cancel Withdraw a pending/escalated request
    GET    /api/sirw/decisions/latest     Newest unacknowledged approval/rejection
    POST   /api/sirw/requests/{id}/acknowledge  Mark a decision as seen

  Compliance:
    GET    /api/compliance/rules          Rule catalogue (public)
    POST   /api/compliance/assess         Dry-run decision, nothing stored

  Countries:
    GET    /api/countries/blocked         Blocked list grouped by reason
    GET    /api/countries/{country}       Is this destination permitted?

  Employees:
    GET    /api/employees                 List employees
    POST   /api/employees                 Register employee
    GET    /api/employees/{id}            Get employee

  Admin endpoints live in admin.go.

REQUEST FLOW:
  1. Parse + validate body (validation.go)
  2. Call sirw.Service
  3. Serialize response (dto.go)
  4. Map errors to status codes (writeServiceError)

POLICY FAILURES:
  A rejected submission is a normal 200 response with status "rejected".
  Only invalid input and data problems produce error statuses.

SEE ALSO:
  - dto.go: Request/response data structures
  - admin.go: Global Mobility console
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/warp/sirw-engine/factory"
	"github.com/warp/sirw-engine/generic"
	"github.com/warp/sirw-engine/sirw"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Service       *sirw.Service
	PolicyFactory *factory.PolicyFactory
	Logger        *zap.Logger

	validate *validator.Validate
}

// NewHandler creates a new handler around the service.
func NewHandler(svc *sirw.Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		Service:       svc,
		PolicyFactory: factory.NewPolicyFactory(),
		Logger:        logger.Named("api"),
		validate:      newValidator(),
	}
}

// =============================================================================
// SIRW SELF-SERVICE
// =============================================================================

// SubmitRequest evaluates a new SIRW request.
// POST /api/sirw/submit
func (h *Handler) SubmitRequest(w http.ResponseWriter, r *http.Request) {
	sub, err := h.decodeSubmission(r)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	d, err := h.Service.Submit(r.Context(), sub)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, SubmitResponse{
		ReferenceNumber:  d.Request.ReferenceNumber,
		Status:           string(d.Request.Status),
		Outcome:          d.Outcome(),
		Message:          d.Message,
		DaysUsedThisYear: d.Balance.DaysUsed, // before this request
		DaysRemaining:    d.DaysRemaining(),
		Flags:            flagsOrEmpty(d.Request.Flags),
		Request:          toRequestDTO(d.Request),
	})
}

// decodeSubmission reads a SubmitRequest body on behalf of the caller.
func (h *Handler) decodeSubmission(r *http.Request) (sirw.Submission, error) {
	var req SubmitRequest
	if err := h.decode(r, &req); err != nil {
		return sirw.Submission{}, err
	}
	start, end, err := parseDates(req.StartDate, req.EndDate)
	if err != nil {
		return sirw.Submission{}, err
	}
	return sirw.Submission{
		EmployeeID:         employeeID(r.Context()),
		DestinationCountry: req.DestinationCountry,
		StartDate:          start,
		EndDate:            end,
		Attestations: sirw.Attestations{
			HasRightToWork: req.HasRightToWork,
			RoleEligible:   req.ConfirmedRoleEligible,
		},
		IsExceptionRequest: req.IsExceptionRequest,
		ExceptionReason:    req.ExceptionReason,
	}, nil
}

// GetBalance returns the caller's balance for ?year= (default: current year).
// GET /api/sirw/balance
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	year := generic.Today().Year()
	if s := r.URL.Query().Get("year"); s != "" {
		y, err := strconv.Atoi(s)
		if err != nil || y < 1900 || y > 9999 {
			writeError(w, http.StatusBadRequest, "Invalid year", err)
			return
		}
		year = y
	}

	b, err := h.Service.Balance(r.Context(), employeeID(r.Context()), year)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toBalanceDTO(b))
}

// CheckOverlap previews nearby trips for a date range.
// POST /api/sirw/check-overlap
func (h *Handler) CheckOverlap(w http.ResponseWriter, r *http.Request) {
	var req CheckOverlapRequest
	if err := h.decode(r, &req); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	start, end, err := parseDates(req.StartDate, req.EndDate)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	res, err := h.Service.CheckOverlap(r.Context(), employeeID(r.Context()), start, end)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOverlapDTO(res))
}

// ListMyRequests returns the caller's requests.
// GET /api/sirw/requests
func (h *Handler) ListMyRequests(w http.ResponseWriter, r *http.Request) {
	filter := sirw.RequestFilter{EmployeeID: employeeID(r.Context())}
	if s := r.URL.Query().Get("status"); s != "" {
		filter.Status = sirw.Status(s)
	}
	reqs, err := h.Service.ListRequests(r.Context(), filter)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toRequestDTOs(reqs))
}

// GetMyRequest returns one of the caller's requests.
// GET /api/sirw/requests/{id}
func (h *Handler) GetMyRequest(w http.ResponseWriter, r *http.Request) {
	req, err := h.Service.GetEmployeeRequest(r.Context(), employeeID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toRequestDTO(req))
}

// CancelRequest withdraws a request that is still awaiting a decision.
// POST /api/sirw/requests/{id}/cancel
func (h *Handler) CancelRequest(w http.ResponseWriter, r *http.Request) {
	req, err := h.Service.Cancel(r.Context(), employeeID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toRequestDTO(req))
}

// LatestDecision returns the caller's newest approval or rejection they
// have not acknowledged, or {"decision": null}.
// GET /api/sirw/decisions/latest
func (h *Handler) LatestDecision(w http.ResponseWriter, r *http.Request) {
	req, err := h.Service.LatestDecision(r.Context(), employeeID(r.Context()))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	var resp LatestDecisionResponse
	if req != nil {
		dto := toRequestDTO(*req)
		resp.Decision = &dto
	}
	writeJSON(w, http.StatusOK, resp)
}

// AcknowledgeDecision marks the decision as seen by its owner.
// POST /api/sirw/requests/{id}/acknowledge
func (h *Handler) AcknowledgeDecision(w http.ResponseWriter, r *http.Request) {
	req, err := h.Service.Acknowledge(r.Context(), employeeID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, AcknowledgeResponse{
		Status:         "acknowledged",
		AcknowledgedAt: req.AcknowledgedAt.Format(time.RFC3339),
	})
}

// =============================================================================
// COMPLIANCE
// =============================================================================

// ListRules publishes the rule pipeline.
// GET /api/compliance/rules
func (h *Handler) ListRules(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, toRuleDTOs(sirw.Rules()))
}

// Assess runs a submission through the full decision without storing it.
// POST /api/compliance/assess
func (h *Handler) Assess(w http.ResponseWriter, r *http.Request) {
	sub, err := h.decodeSubmission(r)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	d, err := h.Service.Assess(r.Context(), sub)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAssessResponse(d))
}

// =============================================================================
// COUNTRIES
// =============================================================================

// ListBlockedCountries returns the blocked list grouped by reason.
// GET /api/countries/blocked
func (h *Handler) ListBlockedCountries(w http.ResponseWriter, r *http.Request) {
	cp := h.Service.Countries
	writeJSON(w, http.StatusOK, BlockedCountriesResponse{
		Sanctioned: toCountryDTOs(cp.Blocked(sirw.BlockSanctions)),
		NoEntity:   toCountryDTOs(cp.Blocked(sirw.BlockNoEntity)),
	})
}

// CheckCountry classifies a single destination by name or ISO code.
// GET /api/countries/{country}
func (h *Handler) CheckCountry(w http.ResponseWriter, r *http.Request) {
	country := strings.TrimSpace(chi.URLParam(r, "country"))
	c := h.Service.Countries.Classify(country)

	resp := CountryCheckDTO{Country: country, Permitted: c.Permitted}
	if !c.Permitted {
		resp.Reason = string(c.Reason)
		resp.Message = c.Message()
		if c.Country != nil {
			resp.Match = &toCountryDTOs([]sirw.BlockedCountry{*c.Country})[0]
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// =============================================================================
// EMPLOYEES
// =============================================================================

// ListEmployees returns all employees.
func (h *Handler) ListEmployees(w http.ResponseWriter, r *http.Request) {
	employees, err := h.Service.ListEmployees(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	dtos := make([]EmployeeDTO, len(employees))
	for i, e := range employees {
		dtos[i] = toEmployeeDTO(e)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetEmployee returns a single employee.
func (h *Handler) GetEmployee(w http.ResponseWriter, r *http.Request) {
	emp, err := h.Service.GetEmployee(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toEmployeeDTO(emp))
}

// CreateEmployee registers an employee and their home country.
func (h *Handler) CreateEmployee(w http.ResponseWriter, r *http.Request) {
	var req CreateEmployeeRequest
	if err := h.decode(r, &req); err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	emp, err := h.Service.RegisterEmployee(r.Context(), sirw.Employee{
		ID:          req.ID,
		Name:        req.Name,
		Email:       req.Email,
		HomeCountry: req.HomeCountry,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toEmployeeDTO(emp))
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeServiceError maps domain errors to HTTP statuses.
//
//	400 validation          404 not found        403 not the owner
//	409 transition/conflict 503 history unavailable (retry)
//	500 anything else, including inconsistent history
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *generic.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "Validation failed", Fields: verr.Fields})
	case generic.IsClientError(err):
		writeError(w, http.StatusBadRequest, "Invalid request", err)
	case generic.IsNotFound(err):
		writeError(w, http.StatusNotFound, "Not found", err)
	case errors.Is(err, generic.ErrForbidden):
		writeError(w, http.StatusForbidden, "Request belongs to another employee", nil)
	case errors.Is(err, generic.ErrInvalidTransition):
		writeError(w, http.StatusConflict, "Request cannot change state", err)
	case errors.Is(err, generic.ErrConcurrentModification):
		writeError(w, http.StatusConflict, "Request was modified concurrently, retry", err)
	case errors.Is(err, generic.ErrIncompleteHistory):
		h.Logger.Warn("history unavailable", zap.String("path", r.URL.Path), zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "Request history unavailable, try again later", nil)
	default:
		h.Logger.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Internal error", nil)
	}
}
