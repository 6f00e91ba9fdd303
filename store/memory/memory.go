// Package memory provides an in-memory sirw.TxStore for tests and demos.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/warp/sirw-engine/generic"
	"github.com/warp/sirw-engine/sirw"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Store guards a state with a mutex. WithTx holds the write lock for the
// whole callback, so transactions are serialized.
type Store struct {
	mu    sync.RWMutex
	state *state
}

var _ sirw.TxStore = (*Store)(nil)

func New() *Store {
	return &Store{state: newState()}
}

// WithTx executes fn within a transaction.
// Simulated with a snapshot + rollback on error.
func (m *Store) WithTx(_ context.Context, fn func(sirw.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.state.clone()
	if err := fn(m.state); err != nil {
		m.state = snapshot
		return err
	}
	return nil
}

func (m *Store) SaveEmployee(ctx context.Context, e sirw.Employee) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.SaveEmployee(ctx, e)
}

func (m *Store) GetEmployee(ctx context.Context, id string) (*sirw.Employee, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.GetEmployee(ctx, id)
}

func (m *Store) ListEmployees(ctx context.Context) ([]sirw.Employee, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.ListEmployees(ctx)
}

func (m *Store) CreateRequest(ctx context.Context, req sirw.Request) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.CreateRequest(ctx, req)
}

func (m *Store) UpdateRequest(ctx context.Context, req sirw.Request) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.UpdateRequest(ctx, req)
}

func (m *Store) GetRequest(ctx context.Context, id string) (*sirw.Request, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.GetRequest(ctx, id)
}

func (m *Store) ListRequests(ctx context.Context, filter sirw.RequestFilter) ([]sirw.Request, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.ListRequests(ctx, filter)
}

func (m *Store) AddComment(ctx context.Context, c sirw.RequestComment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.AddComment(ctx, c)
}

func (m *Store) ListComments(ctx context.Context, requestID string) ([]sirw.RequestComment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.ListComments(ctx, requestID)
}

func (m *Store) CountRequestsCreatedIn(ctx context.Context, year int) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.CountRequestsCreatedIn(ctx, year)
}

func (m *Store) SavePolicyVersion(ctx context.Context, pv sirw.PolicyVersion) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.SavePolicyVersion(ctx, pv)
}

func (m *Store) LatestPolicyVersion(ctx context.Context) (*sirw.PolicyVersion, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.LatestPolicyVersion(ctx)
}

func (m *Store) AppendAudit(ctx context.Context, e generic.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.AppendAudit(ctx, e)
}

func (m *Store) QueryAudit(ctx context.Context, f generic.AuditFilter) ([]generic.AuditEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.QueryAudit(ctx, f)
}

// =============================================================================
// STATE - Unlocked data, also the view handed to WithTx callbacks
// =============================================================================

type state struct {
	employees map[string]sirw.Employee
	requests  map[string]sirw.Request
	comments  []sirw.RequestComment
	policies  []sirw.PolicyVersion
	audit     []generic.AuditEntry
}

func newState() *state {
	return &state{
		employees: map[string]sirw.Employee{},
		requests:  map[string]sirw.Request{},
	}
}

func (s *state) clone() *state {
	c := newState()
	for k, v := range s.employees {
		c.employees[k] = v
	}
	for k, v := range s.requests {
		v.Flags = append(sirw.Flags(nil), v.Flags...)
		c.requests[k] = v
	}
	c.comments = append(c.comments, s.comments...)
	c.policies = append(c.policies, s.policies...)
	c.audit = append(c.audit, s.audit...)
	return c
}

func (s *state) SaveEmployee(_ context.Context, e sirw.Employee) error {
	s.employees[e.ID] = e
	return nil
}

func (s *state) GetEmployee(_ context.Context, id string) (*sirw.Employee, error) {
	e, ok := s.employees[id]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

func (s *state) ListEmployees(_ context.Context) ([]sirw.Employee, error) {
	out := make([]sirw.Employee, 0, len(s.employees))
	for _, e := range s.employees {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *state) CreateRequest(_ context.Context, req sirw.Request) error {
	if _, exists := s.requests[req.ID]; exists {
		return generic.ErrConcurrentModification
	}
	req.Version = 1
	req.Flags = append(sirw.Flags(nil), req.Flags...)
	s.requests[req.ID] = req
	return nil
}

func (s *state) UpdateRequest(_ context.Context, req sirw.Request) error {
	current, ok := s.requests[req.ID]
	if !ok {
		return generic.ErrRequestNotFound
	}
	if current.Version != req.Version {
		return generic.ErrConcurrentModification
	}
	req.Version++
	req.Flags = append(sirw.Flags(nil), req.Flags...)
	s.requests[req.ID] = req
	return nil
}

func (s *state) GetRequest(_ context.Context, id string) (*sirw.Request, error) {
	r, ok := s.requests[id]
	if !ok {
		return nil, nil
	}
	r.Flags = append(sirw.Flags(nil), r.Flags...)
	return &r, nil
}

func (s *state) ListRequests(_ context.Context, f sirw.RequestFilter) ([]sirw.Request, error) {
	out := []sirw.Request{}
	for _, r := range s.requests {
		if matches(f, r) {
			r.Flags = append(sirw.Flags(nil), r.Flags...)
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func matches(f sirw.RequestFilter, r sirw.Request) bool {
	if f.EmployeeID != "" && r.EmployeeID != f.EmployeeID {
		return false
	}
	if f.Status != "" && r.Status != f.Status {
		return false
	}
	if f.DecisionSource != "" && r.DecisionSource != f.DecisionSource {
		return false
	}
	if f.Country != "" && !strings.EqualFold(strings.TrimSpace(f.Country), r.DestinationCountry) {
		return false
	}
	if f.StartFrom != nil && r.StartDate.Before(*f.StartFrom) {
		return false
	}
	if f.StartTo != nil && r.StartDate.After(*f.StartTo) {
		return false
	}
	return true
}

func (s *state) AddComment(_ context.Context, c sirw.RequestComment) error {
	if _, ok := s.requests[c.RequestID]; !ok {
		return generic.ErrRequestNotFound
	}
	s.comments = append(s.comments, c)
	return nil
}

func (s *state) ListComments(_ context.Context, requestID string) ([]sirw.RequestComment, error) {
	out := []sirw.RequestComment{}
	for _, c := range s.comments {
		if c.RequestID == requestID {
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *state) CountRequestsCreatedIn(_ context.Context, year int) (int, error) {
	n := 0
	for _, r := range s.requests {
		if r.CreatedAt.Year() == year {
			n++
		}
	}
	return n, nil
}

func (s *state) SavePolicyVersion(_ context.Context, pv sirw.PolicyVersion) error {
	for _, existing := range s.policies {
		if existing.Version == pv.Version {
			return generic.ErrConcurrentModification
		}
	}
	s.policies = append(s.policies, pv)
	return nil
}

func (s *state) LatestPolicyVersion(_ context.Context) (*sirw.PolicyVersion, error) {
	var latest *sirw.PolicyVersion
	for i := range s.policies {
		if latest == nil || s.policies[i].Version > latest.Version {
			pv := s.policies[i]
			latest = &pv
		}
	}
	return latest, nil
}

func (s *state) AppendAudit(_ context.Context, e generic.AuditEntry) error {
	s.audit = append(s.audit, e)
	return nil
}

func (s *state) QueryAudit(_ context.Context, f generic.AuditFilter) ([]generic.AuditEntry, error) {
	out := []generic.AuditEntry{}
	for _, e := range s.audit {
		if f.Matches(e) {
			out = append(out, e)
		}
	}
	return out, nil
}
