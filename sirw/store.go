package sirw

import (
	"context"

	"github.com/warp/sirw-engine/generic"
)

// =============================================================================
// STORE - Persistence the service needs
// =============================================================================

// RequestFilter narrows ListRequests. Zero fields are ignored.
type RequestFilter struct {
	EmployeeID     string
	Status         Status
	Country        string // destination, case-insensitive
	DecisionSource DecisionSource
	StartFrom      *generic.TimePoint // start_date >= StartFrom
	StartTo        *generic.TimePoint // start_date <= StartTo
}

// Store persists employees, requests, policy versions and the audit trail.
//
// Get* methods return (nil, nil) when the row does not exist.
// UpdateRequest only succeeds when the stored version equals req.Version;
// otherwise it returns generic.ErrConcurrentModification. On success the
// stored version is req.Version+1.
type Store interface {
	generic.AuditLog

	SaveEmployee(ctx context.Context, e Employee) error
	GetEmployee(ctx context.Context, id string) (*Employee, error)
	ListEmployees(ctx context.Context) ([]Employee, error)

	CreateRequest(ctx context.Context, req Request) error
	UpdateRequest(ctx context.Context, req Request) error
	GetRequest(ctx context.Context, id string) (*Request, error)
	ListRequests(ctx context.Context, filter RequestFilter) ([]Request, error)

	// AddComment appends a comment; ListComments returns a request's
	// comments oldest first.
	AddComment(ctx context.Context, c RequestComment) error
	ListComments(ctx context.Context, requestID string) ([]RequestComment, error)

	// CountRequestsCreatedIn counts requests created in a calendar year;
	// used to issue sequential reference numbers.
	CountRequestsCreatedIn(ctx context.Context, year int) (int, error)

	SavePolicyVersion(ctx context.Context, pv PolicyVersion) error
	LatestPolicyVersion(ctx context.Context) (*PolicyVersion, error)
}

// TxStore wraps Store with transaction support.
// Reads and writes made through the Store passed to fn are atomic and
// serialized against other WithTx calls.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns error, transaction is rolled back.
	// If fn returns nil, transaction is committed.
	WithTx(ctx context.Context, fn func(Store) error) error
}
