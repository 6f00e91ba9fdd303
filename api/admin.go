package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/warp/sirw-engine/factory"
	"github.com/warp/sirw-engine/sirw"
)

// =============================================================================
// ADMIN CONSOLE - Global Mobility
// =============================================================================
//
//   GET  /api/admin/dashboard             Stats + escalated queue
//   GET  /api/admin/requests              ?status= &country= &decision_source=
//   GET  /api/admin/requests/{id}         Request with audit trail
//   POST /api/admin/requests/{id}/decide  {"decision":"approved|rejected","note":"..."}
//   GET  /api/admin/requests/{id}/comments  Notes on a request, oldest first
//   POST /api/admin/requests/{id}/comments  {"body":"..."}, author is the caller
//   GET  /api/admin/policy                Active policy version
//   PUT  /api/admin/policy                Store a new policy version
//
// The reviewer is the X-Employee-ID caller. Role checks belong to the
// gateway in front of this service.

// Dashboard returns aggregate stats and the escalated queue.
func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	stats, err := h.Service.Stats(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	escalated, err := h.Service.ListRequests(r.Context(), sirw.RequestFilter{Status: sirw.StatusEscalated})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toDashboard(stats, escalated))
}

// ListAllRequests lists requests across employees.
func (h *Handler) ListAllRequests(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := sirw.RequestFilter{
		EmployeeID:     q.Get("employee_id"),
		Status:         sirw.Status(q.Get("status")),
		Country:        strings.TrimSpace(q.Get("country")),
		DecisionSource: sirw.DecisionSource(q.Get("decision_source")),
	}
	if filter.Status != "" && !filter.Status.Valid() {
		writeError(w, http.StatusBadRequest, "Invalid status filter", nil)
		return
	}
	if filter.DecisionSource != "" && filter.DecisionSource != sirw.DecisionAuto && filter.DecisionSource != sirw.DecisionHuman {
		writeError(w, http.StatusBadRequest, "Invalid decision_source filter", nil)
		return
	}

	reqs, err := h.Service.ListRequests(r.Context(), filter)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toRequestDTOs(reqs))
}

// GetRequestDetail returns a request and its audit trail.
func (h *Handler) GetRequestDetail(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	req, err := h.Service.GetRequest(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	audit, err := h.Service.RequestAudit(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	comments, err := h.Service.ListComments(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, AdminRequestResponse{
		Request:  toRequestDTO(req),
		Audit:    toAuditDTOs(audit),
		Comments: toCommentDTOs(comments),
	})
}

// ListComments returns the notes on a request.
func (h *Handler) ListComments(w http.ResponseWriter, r *http.Request) {
	comments, err := h.Service.ListComments(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCommentDTOs(comments))
}

// AddComment attaches a note by the caller to a request.
func (h *Handler) AddComment(w http.ResponseWriter, r *http.Request) {
	var body CommentRequest
	if err := h.decode(r, &body); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	c, err := h.Service.AddComment(r.Context(), chi.URLParam(r, "id"), employeeID(r.Context()), body.Body)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toCommentDTO(c))
}

// DecideRequest records a reviewer decision.
func (h *Handler) DecideRequest(w http.ResponseWriter, r *http.Request) {
	var body DecideRequest
	if err := h.decode(r, &body); err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	req, err := h.Service.Review(r.Context(), chi.URLParam(r, "id"),
		sirw.Status(body.Decision), employeeID(r.Context()), body.Note)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toRequestDTO(req))
}

// GetPolicy returns the active policy version.
func (h *Handler) GetPolicy(w http.ResponseWriter, r *http.Request) {
	pv, err := h.Service.CurrentPolicyVersion(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.PolicyFactory.ToJSON(pv))
}

// UpdatePolicy stores a new policy version from a policy document.
// Decisions already made keep the policy they were made under.
func (h *Handler) UpdatePolicy(w http.ResponseWriter, r *http.Request) {
	var doc factory.PolicyJSON
	if err := h.decode(r, &doc); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	pv, err := h.PolicyFactory.FromJSON(doc)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	pv.ChangedBy = employeeID(r.Context())

	stored, err := h.Service.UpdatePolicy(r.Context(), pv)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.PolicyFactory.ToJSON(stored))
}
