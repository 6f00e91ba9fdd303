/*
service.go - Transactional shell around the decision workflow

PURPOSE:
  Loads what the workflow needs, runs it, and persists the result, all
  inside one store transaction. The workflow stays pure; everything that
  touches the store, the clock or the event publisher lives here.

SUBMISSION (one transaction):
  1. Load the employee (home country)
  2. Load the employee's FULL request history
     -> any failure aborts with ErrIncompleteHistory; nothing is written
  3. Workflow.Decide
  4. Issue reference number SIRW-<year>-<NNNN>
  5. Insert request + audit entries
  Then, after commit: publish a DecisionEvent for approve/reject.

  Assess runs steps 1-3 without a transaction and writes nothing.

SERIALIZATION:
  Two submissions for the same employee must not both read a balance that
  has room for only one of them. WithTx serializes transactions, and
  UpdateRequest rejects stale versions (ErrConcurrentModification).

SEE ALSO:
  - workflow.go: Pure decision logic
  - store.go: Store / TxStore contracts
  - api/handlers.go: HTTP surface
*/
package sirw

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/warp/sirw-engine/generic"
)

// ReferenceNumber formats the human-facing request reference.
func ReferenceNumber(year, seq int) string {
	return fmt.Sprintf("SIRW-%d-%04d", year, seq)
}

// Submission is a new request as entered by the employee.
type Submission struct {
	EmployeeID         string
	DestinationCountry string
	StartDate          generic.TimePoint
	EndDate            generic.TimePoint
	Attestations       Attestations
	IsExceptionRequest bool
	ExceptionReason    string
}

// =============================================================================
// SERVICE
// =============================================================================

type Service struct {
	Store     TxStore
	Countries *CountryPolicy
	Publisher DecisionPublisher // optional
	Logger    *zap.Logger
	Now       func() time.Time

	mu     sync.RWMutex
	policy Policy
}

func NewService(store TxStore, countries *CountryPolicy, policy Policy, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		Store:     store,
		Countries: countries,
		Logger:    logger.Named("sirw"),
		Now:       time.Now,
		policy:    policy,
	}
}

// Policy returns the policy currently applied to new decisions.
func (s *Service) Policy() Policy {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.policy
}

func (s *Service) workflow() *Workflow {
	return NewWorkflow(s.Policy(), s.Countries)
}

func (s *Service) now() time.Time {
	return s.Now().UTC()
}

// =============================================================================
// POLICY VERSIONS
// =============================================================================

// LoadPolicy replaces the in-memory policy with the latest stored version,
// if one exists. Returns whether a stored version was applied.
func (s *Service) LoadPolicy(ctx context.Context) (bool, error) {
	pv, err := s.Store.LatestPolicyVersion(ctx)
	if err != nil {
		return false, fmt.Errorf("load policy: %w", err)
	}
	if pv == nil {
		return false, nil
	}
	if err := pv.Policy.Validate(); err != nil {
		return false, fmt.Errorf("stored policy v%d: %w", pv.Version, err)
	}

	s.mu.Lock()
	s.policy = pv.Policy
	s.mu.Unlock()

	s.Logger.Info("policy loaded", zap.Int("version", pv.Version),
		zap.Int("days_allowed", pv.Policy.DaysAllowed),
		zap.Int("consecutive_limit", pv.Policy.ConsecutiveLimit),
		zap.Int("proximity_days", pv.Policy.ProximityDays))
	return true, nil
}

// CurrentPolicyVersion returns the latest stored version, or a synthetic
// version 0 describing the configured policy when none has been stored.
func (s *Service) CurrentPolicyVersion(ctx context.Context) (PolicyVersion, error) {
	pv, err := s.Store.LatestPolicyVersion(ctx)
	if err != nil {
		return PolicyVersion{}, err
	}
	if pv == nil {
		return PolicyVersion{Version: 0, Name: "configured defaults", Policy: s.Policy()}, nil
	}
	return *pv, nil
}

// UpdatePolicy stores a new policy version and applies it to later decisions.
// Decisions already made are not re-evaluated.
func (s *Service) UpdatePolicy(ctx context.Context, pv PolicyVersion) (PolicyVersion, error) {
	if err := pv.Policy.Validate(); err != nil {
		return PolicyVersion{}, err
	}

	err := s.Store.WithTx(ctx, func(tx Store) error {
		latest, err := tx.LatestPolicyVersion(ctx)
		if err != nil {
			return err
		}
		pv.Version = 1
		if latest != nil {
			pv.Version = latest.Version + 1
		}
		pv.CreatedAt = s.now()
		if err := tx.SavePolicyVersion(ctx, pv); err != nil {
			return err
		}
		return tx.AppendAudit(ctx, generic.AuditEntry{
			ID:        uuid.NewString(),
			Timestamp: pv.CreatedAt,
			ActorID:   pv.ChangedBy,
			Action:    generic.AuditPolicyChanged,
			Payload: map[string]any{
				"version":           pv.Version,
				"days_allowed":      pv.Policy.DaysAllowed,
				"consecutive_limit": pv.Policy.ConsecutiveLimit,
				"proximity_days":    pv.Policy.ProximityDays,
				"note":              pv.Note,
			},
		})
	})
	if err != nil {
		return PolicyVersion{}, fmt.Errorf("update policy: %w", err)
	}

	s.mu.Lock()
	s.policy = pv.Policy
	s.mu.Unlock()

	s.Logger.Info("policy updated", zap.Int("version", pv.Version), zap.String("changed_by", pv.ChangedBy))
	return pv, nil
}

// =============================================================================
// EMPLOYEES
// =============================================================================

func (s *Service) RegisterEmployee(ctx context.Context, e Employee) (Employee, error) {
	verr := generic.NewValidationError()
	if strings.TrimSpace(e.Name) == "" {
		verr.Add("name", "is required")
	}
	if strings.TrimSpace(e.HomeCountry) == "" {
		verr.Add("home_country", "is required")
	}
	if err := verr.OrNil(); err != nil {
		return Employee{}, err
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.now()
	}
	if err := s.Store.SaveEmployee(ctx, e); err != nil {
		return Employee{}, fmt.Errorf("save employee: %w", err)
	}
	return e, nil
}

func (s *Service) GetEmployee(ctx context.Context, id string) (Employee, error) {
	e, err := s.Store.GetEmployee(ctx, id)
	if err != nil {
		return Employee{}, fmt.Errorf("load employee: %w", err)
	}
	if e == nil {
		return Employee{}, fmt.Errorf("%w: %s", generic.ErrEmployeeNotFound, id)
	}
	return *e, nil
}

func (s *Service) ListEmployees(ctx context.Context) ([]Employee, error) {
	return s.Store.ListEmployees(ctx)
}

// =============================================================================
// SUBMIT
// =============================================================================

// Submit evaluates and records a new request.
// Policy failures come back as a Decision with a reject or escalate verdict;
// only invalid input and data problems return an error.
func (s *Service) Submit(ctx context.Context, sub Submission) (Decision, error) {
	now := s.now()
	req, err := newCandidate(sub, now)
	if err != nil {
		return Decision{}, err
	}

	wf := s.workflow()
	var decision Decision

	err = s.Store.WithTx(ctx, func(tx Store) error {
		var err error
		decision, err = decideWith(ctx, tx, wf, req, sub.Attestations)
		if err != nil {
			return err
		}

		count, err := tx.CountRequestsCreatedIn(ctx, now.Year())
		if err != nil {
			return fmt.Errorf("issue reference number: %w", err)
		}
		decision.Request.ReferenceNumber = ReferenceNumber(now.Year(), count+1)

		if err := tx.CreateRequest(ctx, decision.Request); err != nil {
			return fmt.Errorf("save request: %w", err)
		}
		decision.Request.Version = 1

		return s.auditDecision(ctx, tx, decision, sub.EmployeeID, now)
	})
	if err != nil {
		s.Logger.Warn("submission failed", zap.String("employee_id", sub.EmployeeID), zap.Error(err))
		return Decision{}, err
	}

	r := decision.Request
	s.Logger.Info("request decided",
		zap.String("reference", r.ReferenceNumber),
		zap.String("employee_id", r.EmployeeID),
		zap.String("status", string(r.Status)),
		zap.Int("workdays", r.Workdays()),
		zap.Strings("flags", r.Flags.Strings()))

	if r.Status != StatusEscalated {
		s.publish(ctx, r, now)
	}
	return decision, nil
}

// Assess runs the full decision for a submission against the employee's
// real history and writes nothing: no request, no audit entry, no event.
func (s *Service) Assess(ctx context.Context, sub Submission) (Decision, error) {
	req, err := newCandidate(sub, s.now())
	if err != nil {
		return Decision{}, err
	}
	d, err := decideWith(ctx, s.Store, s.workflow(), req, sub.Attestations)
	if err != nil {
		return Decision{}, err
	}
	s.Logger.Debug("request assessed",
		zap.String("employee_id", sub.EmployeeID),
		zap.String("status", string(d.Request.Status)),
		zap.Strings("flags", d.Request.Flags.Strings()))
	return d, nil
}

func newCandidate(sub Submission, now time.Time) (Request, error) {
	req := Request{
		ID:                 uuid.NewString(),
		EmployeeID:         sub.EmployeeID,
		DestinationCountry: strings.TrimSpace(sub.DestinationCountry),
		StartDate:          sub.StartDate,
		EndDate:            sub.EndDate,
		Status:             StatusPending,
		IsExceptionRequest: sub.IsExceptionRequest,
		ExceptionReason:    strings.TrimSpace(sub.ExceptionReason),
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := ValidateRequest(req); err != nil {
		return Request{}, err
	}
	return req, nil
}

// decideWith loads the employee and their full history from st, then
// runs the workflow.
func decideWith(ctx context.Context, st Store, wf *Workflow, req Request, att Attestations) (Decision, error) {
	emp, err := st.GetEmployee(ctx, req.EmployeeID)
	if err != nil {
		return Decision{}, fmt.Errorf("load employee: %w", err)
	}
	if emp == nil {
		return Decision{}, fmt.Errorf("%w: %s", generic.ErrEmployeeNotFound, req.EmployeeID)
	}
	req.HomeCountry = emp.HomeCountry

	history, err := st.ListRequests(ctx, RequestFilter{EmployeeID: req.EmployeeID})
	if err != nil {
		return Decision{}, fmt.Errorf("%w: %v", generic.ErrIncompleteHistory, err)
	}
	return wf.Decide(req, att, history)
}

func (s *Service) auditDecision(ctx context.Context, tx Store, d Decision, actor string, at time.Time) error {
	r := d.Request
	entries := []generic.AuditEntry{{
		ID:         uuid.NewString(),
		Timestamp:  at,
		ActorID:    actor,
		Action:     generic.AuditRequestSubmitted,
		EmployeeID: r.EmployeeID,
		RequestID:  r.ID,
		Payload: map[string]any{
			"reference_number":     r.ReferenceNumber,
			"destination_country":  r.DestinationCountry,
			"start_date":           r.StartDate.String(),
			"end_date":             r.EndDate.String(),
			"workdays":             r.Workdays(),
			"is_exception_request": r.IsExceptionRequest,
		},
	}}

	action := generic.AuditRequestEscalated
	switch r.Status {
	case StatusApproved:
		action = generic.AuditRequestApproved
	case StatusRejected:
		action = generic.AuditRequestRejected
	}
	entries = append(entries, generic.AuditEntry{
		ID:         uuid.NewString(),
		Timestamp:  at,
		ActorID:    generic.SystemActor,
		Action:     action,
		EmployeeID: r.EmployeeID,
		RequestID:  r.ID,
		Payload: map[string]any{
			"flags":         r.Flags.Strings(),
			"reason":        r.DecisionReason,
			"days_used":     d.Balance.DaysUsed,
			"combined_days": d.Overlap.CombinedDays,
		},
	})

	for _, e := range entries {
		if err := tx.AppendAudit(ctx, e); err != nil {
			return fmt.Errorf("audit: %w", err)
		}
	}
	return nil
}

func (s *Service) publish(ctx context.Context, r Request, at time.Time) {
	if s.Publisher == nil {
		return
	}
	if err := s.Publisher.PublishDecision(ctx, NewDecisionEvent(r, at)); err != nil {
		s.Logger.Error("decision event not published",
			zap.String("reference", r.ReferenceNumber), zap.Error(err))
	}
}

// =============================================================================
// READ MODELS
// =============================================================================

func (s *Service) history(ctx context.Context, employeeID string) ([]Request, error) {
	reqs, err := s.Store.ListRequests(ctx, RequestFilter{EmployeeID: employeeID})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", generic.ErrIncompleteHistory, err)
	}
	return reqs, nil
}

// Balance computes the employee's balance for year.
func (s *Service) Balance(ctx context.Context, employeeID string, year int) (AnnualBalance, error) {
	reqs, err := s.history(ctx, employeeID)
	if err != nil {
		return AnnualBalance{}, err
	}
	return NewBalanceTracker(s.Policy()).ComputeBalance(employeeID, year, reqs)
}

// CheckOverlap previews proximity for a trip the employee has not submitted yet.
func (s *Service) CheckOverlap(ctx context.Context, employeeID string, start, end generic.TimePoint) (OverlapResult, error) {
	if end.Before(start) {
		verr := generic.NewValidationError()
		verr.Add("end_date", "must be on or after start_date")
		return OverlapResult{}, verr
	}
	reqs, err := s.history(ctx, employeeID)
	if err != nil {
		return OverlapResult{}, err
	}
	return CheckOverlap(employeeID, start, end, s.Policy(), reqs)
}

// ListRequests returns requests matching filter, newest first.
func (s *Service) ListRequests(ctx context.Context, filter RequestFilter) ([]Request, error) {
	return s.Store.ListRequests(ctx, filter)
}

// GetRequest returns a request or ErrRequestNotFound.
func (s *Service) GetRequest(ctx context.Context, id string) (Request, error) {
	r, err := s.Store.GetRequest(ctx, id)
	if err != nil {
		return Request{}, fmt.Errorf("load request: %w", err)
	}
	if r == nil {
		return Request{}, fmt.Errorf("%w: %s", generic.ErrRequestNotFound, id)
	}
	return *r, nil
}

// GetEmployeeRequest returns a request only if it belongs to employeeID.
func (s *Service) GetEmployeeRequest(ctx context.Context, employeeID, id string) (Request, error) {
	r, err := s.GetRequest(ctx, id)
	if err != nil {
		return Request{}, err
	}
	if r.EmployeeID != employeeID {
		return Request{}, generic.ErrForbidden
	}
	return r, nil
}

// RequestAudit returns the audit trail of a request, oldest first.
func (s *Service) RequestAudit(ctx context.Context, requestID string) ([]generic.AuditEntry, error) {
	return s.Store.QueryAudit(ctx, generic.AuditFilter{RequestID: &requestID})
}

// Stats aggregates every request for the admin dashboard.
func (s *Service) Stats(ctx context.Context) (Stats, error) {
	reqs, err := s.Store.ListRequests(ctx, RequestFilter{})
	if err != nil {
		return Stats{}, err
	}
	return ComputeStats(reqs, 5), nil
}

// =============================================================================
// TRANSITIONS
// =============================================================================

// transition loads a request, applies fn and writes it back in one transaction.
func (s *Service) transition(ctx context.Context, id string, fn func(Request) (Request, generic.AuditEntry, error)) (Request, error) {
	return s.transitionThen(ctx, id, fn, nil)
}

// transitionThen is transition with a follow-up write in the same
// transaction, run after the request has been updated.
func (s *Service) transitionThen(ctx context.Context, id string,
	fn func(Request) (Request, generic.AuditEntry, error),
	then func(tx Store, updated Request) error,
) (Request, error) {
	var updated Request
	err := s.Store.WithTx(ctx, func(tx Store) error {
		current, err := tx.GetRequest(ctx, id)
		if err != nil {
			return fmt.Errorf("load request: %w", err)
		}
		if current == nil {
			return fmt.Errorf("%w: %s", generic.ErrRequestNotFound, id)
		}

		next, entry, err := fn(*current)
		if err != nil {
			return err
		}
		if err := tx.UpdateRequest(ctx, next); err != nil {
			return err
		}
		next.Version++

		entry.ID = uuid.NewString()
		entry.EmployeeID = next.EmployeeID
		entry.RequestID = next.ID
		if err := tx.AppendAudit(ctx, entry); err != nil {
			return fmt.Errorf("audit: %w", err)
		}
		if then != nil {
			if err := then(tx, next); err != nil {
				return err
			}
		}
		updated = next
		return nil
	})
	return updated, err
}

// Review records a reviewer's decision on an escalated or pending request.
// A non-empty note is also kept as a comment by the reviewer.
func (s *Service) Review(ctx context.Context, id string, outcome Status, reviewer, note string) (Request, error) {
	now := s.now()
	wf := s.workflow()
	note = strings.TrimSpace(note)
	var addNote func(Store, Request) error
	if note != "" {
		addNote = func(tx Store, r Request) error {
			return tx.AddComment(ctx, RequestComment{
				ID: uuid.NewString(), RequestID: r.ID, AuthorID: reviewer, Body: note, CreatedAt: now,
			})
		}
	}
	r, err := s.transitionThen(ctx, id, func(current Request) (Request, generic.AuditEntry, error) {
		next, err := wf.Review(current, outcome, reviewer, note, now)
		return next, generic.AuditEntry{
			Timestamp: now,
			ActorID:   reviewer,
			Action:    generic.AuditRequestReviewed,
			Payload: map[string]any{
				"from":   string(current.Status),
				"to":     string(outcome),
				"note":   next.DecisionReason,
				"source": string(DecisionHuman),
			},
		}, err
	}, addNote)
	if err != nil {
		return Request{}, err
	}

	s.Logger.Info("request reviewed", zap.String("reference", r.ReferenceNumber),
		zap.String("status", string(r.Status)), zap.String("reviewer", reviewer))
	s.publish(ctx, r, now)
	return r, nil
}

// Cancel withdraws an undecided request on behalf of its owner.
func (s *Service) Cancel(ctx context.Context, employeeID, id string) (Request, error) {
	now := s.now()
	wf := s.workflow()
	return s.transition(ctx, id, func(current Request) (Request, generic.AuditEntry, error) {
		if current.EmployeeID != employeeID {
			return Request{}, generic.AuditEntry{}, generic.ErrForbidden
		}
		next, err := wf.Cancel(current, now)
		return next, generic.AuditEntry{
			Timestamp: now,
			ActorID:   employeeID,
			Action:    generic.AuditRequestCancelled,
			Payload:   map[string]any{"from": string(current.Status)},
		}, err
	})
}

// =============================================================================
// ACKNOWLEDGEMENTS
// =============================================================================

// LatestDecision returns the employee's most recently updated approval or
// rejection they have not acknowledged yet, or nil.
func (s *Service) LatestDecision(ctx context.Context, employeeID string) (*Request, error) {
	reqs, err := s.Store.ListRequests(ctx, RequestFilter{EmployeeID: employeeID})
	if err != nil {
		return nil, err
	}
	var latest *Request
	for i := range reqs {
		r := &reqs[i]
		if !r.AwaitingAcknowledgement() {
			continue
		}
		if latest == nil || r.UpdatedAt.After(latest.UpdatedAt) {
			latest = r
		}
	}
	return latest, nil
}

// Acknowledge records that the owner has seen the decision. Acknowledging
// twice keeps the first timestamp. UpdatedAt is left alone.
func (s *Service) Acknowledge(ctx context.Context, employeeID, id string) (Request, error) {
	current, err := s.GetEmployeeRequest(ctx, employeeID, id)
	if err != nil {
		return Request{}, err
	}
	if current.AcknowledgedAt != nil {
		return current, nil
	}

	now := s.now()
	return s.transition(ctx, id, func(current Request) (Request, generic.AuditEntry, error) {
		if current.EmployeeID != employeeID {
			return Request{}, generic.AuditEntry{}, generic.ErrForbidden
		}
		if current.AcknowledgedAt == nil {
			current.AcknowledgedAt = &now
		}
		return current, generic.AuditEntry{
			Timestamp: now,
			ActorID:   employeeID,
			Action:    generic.AuditDecisionAcknowledged,
			Payload:   map[string]any{"status": string(current.Status)},
		}, nil
	})
}

// =============================================================================
// COMMENTS
// =============================================================================

// AddComment attaches a note to a request.
func (s *Service) AddComment(ctx context.Context, requestID, authorID, body string) (RequestComment, error) {
	c := RequestComment{
		ID:        uuid.NewString(),
		RequestID: requestID,
		AuthorID:  authorID,
		Body:      strings.TrimSpace(body),
		CreatedAt: s.now(),
	}
	verr := generic.NewValidationError()
	if c.Body == "" {
		verr.Add("body", "is required")
	}
	if strings.TrimSpace(authorID) == "" {
		verr.Add("author", "is required")
	}
	if err := verr.OrNil(); err != nil {
		return RequestComment{}, err
	}

	err := s.Store.WithTx(ctx, func(tx Store) error {
		r, err := tx.GetRequest(ctx, requestID)
		if err != nil {
			return fmt.Errorf("load request: %w", err)
		}
		if r == nil {
			return fmt.Errorf("%w: %s", generic.ErrRequestNotFound, requestID)
		}
		if err := tx.AddComment(ctx, c); err != nil {
			return fmt.Errorf("save comment: %w", err)
		}
		return tx.AppendAudit(ctx, generic.AuditEntry{
			ID:         uuid.NewString(),
			Timestamp:  c.CreatedAt,
			ActorID:    authorID,
			Action:     generic.AuditCommentAdded,
			EmployeeID: r.EmployeeID,
			RequestID:  r.ID,
			Payload:    map[string]any{"comment_id": c.ID},
		})
	})
	if err != nil {
		return RequestComment{}, err
	}
	return c, nil
}

// ListComments returns a request's comments, oldest first.
func (s *Service) ListComments(ctx context.Context, requestID string) ([]RequestComment, error) {
	if _, err := s.GetRequest(ctx, requestID); err != nil {
		return nil, err
	}
	return s.Store.ListComments(ctx, requestID)
}

// CompleteFinished marks every approved trip that ended before today as
// completed. Returns how many requests moved. Conflicting concurrent edits
// are skipped and picked up on the next run.
func (s *Service) CompleteFinished(ctx context.Context, today generic.TimePoint) (int, error) {
	approved, err := s.Store.ListRequests(ctx, RequestFilter{Status: StatusApproved})
	if err != nil {
		return 0, fmt.Errorf("list approved requests: %w", err)
	}

	wf := s.workflow()
	completed := 0
	for _, r := range approved {
		if !r.EndDate.Before(today) {
			continue
		}
		now := s.now()
		_, err := s.transition(ctx, r.ID, func(current Request) (Request, generic.AuditEntry, error) {
			next, err := wf.Complete(current, today, now)
			return next, generic.AuditEntry{
				Timestamp: now,
				ActorID:   generic.SystemActor,
				Action:    generic.AuditRequestCompleted,
			}, err
		})
		switch {
		case err == nil:
			completed++
		case errors.Is(err, generic.ErrConcurrentModification), errors.Is(err, generic.ErrInvalidTransition):
			s.Logger.Debug("completion skipped", zap.String("request_id", r.ID), zap.Error(err))
		default:
			return completed, err
		}
	}
	return completed, nil
}
