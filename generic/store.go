/*
store.go - Audit trail shared by every persistence backend

PURPOSE:
  Every lifecycle change of a request (created, auto-decided, escalated,
  reviewed, cancelled, completed) and every policy change is written to an
  append-only audit log. The audit log is separate from the request rows:
  a request row shows the CURRENT state, the audit log shows HOW it got there.

APPEND-ONLY CONTRACT:
  - Append(): the only write operation
  - NO Update() or Delete() methods exist

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: audit_log table
  - store/memory/memory.go: slice, for tests

SEE ALSO:
  - sirw/store.go: Request persistence interface (embeds AuditLog)
  - sirw/service.go: Writes an entry for every transition
*/
package generic

import (
	"context"
	"time"
)

// =============================================================================
// AUDIT LOG - Tracks who did what when
// =============================================================================

// AuditEntry records who did what when.
type AuditEntry struct {
	ID         string
	Timestamp  time.Time
	ActorID    string // employee id, reviewer id, or "system"
	Action     AuditAction
	EmployeeID string
	RequestID  string
	Payload    map[string]any // action-specific data
}

type AuditAction string

const (
	AuditRequestSubmitted AuditAction = "request_submitted"
	AuditRequestApproved  AuditAction = "request_approved"
	AuditRequestRejected  AuditAction = "request_rejected"
	AuditRequestEscalated AuditAction = "request_escalated"
	AuditRequestReviewed  AuditAction = "request_reviewed"
	AuditRequestCancelled AuditAction = "request_cancelled"
	AuditRequestCompleted AuditAction = "request_completed"
	AuditPolicyChanged    AuditAction = "policy_changed"

	AuditDecisionAcknowledged AuditAction = "decision_acknowledged"
	AuditCommentAdded         AuditAction = "comment_added"
)

// SystemActor is the actor recorded for automatic decisions and scheduled jobs.
const SystemActor = "system"

// AuditLog stores audit entries. Append-only.
type AuditLog interface {
	AppendAudit(ctx context.Context, entry AuditEntry) error
	QueryAudit(ctx context.Context, filter AuditFilter) ([]AuditEntry, error)
}

// AuditFilter narrows QueryAudit results. Nil fields are ignored.
type AuditFilter struct {
	RequestID  *string
	EmployeeID *string
	ActorID    *string
	Actions    []AuditAction
	From       *time.Time
	To         *time.Time
}

// Matches reports whether the entry passes every set filter field.
func (f AuditFilter) Matches(e AuditEntry) bool {
	if f.RequestID != nil && e.RequestID != *f.RequestID {
		return false
	}
	if f.EmployeeID != nil && e.EmployeeID != *f.EmployeeID {
		return false
	}
	if f.ActorID != nil && e.ActorID != *f.ActorID {
		return false
	}
	if f.From != nil && e.Timestamp.Before(*f.From) {
		return false
	}
	if f.To != nil && e.Timestamp.After(*f.To) {
		return false
	}
	if len(f.Actions) > 0 {
		for _, a := range f.Actions {
			if a == e.Action {
				return true
			}
		}
		return false
	}
	return true
}
