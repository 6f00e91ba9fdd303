/*
Package sqlite provides a SQLite-backed implementation of sirw.TxStore.

PURPOSE:
  Persists employees, SIRW requests, policy versions and the audit trail.
  In production the same queries run on PostgreSQL with minor dialect
  changes (placeholders, upsert syntax).

KEY TABLES:
  employees:        Employee records (home country)
  requests:         One row per request, current state + optimistic version
  request_comments: Reviewer and employee notes per request
  policy_versions:  Every policy revision, highest version wins
  audit_log:        Append-only history of every transition

INDEXES:
  - idx_requests_employee_start: Full history of one employee (hot path,
    read on every submission, balance and overlap check)
  - idx_requests_status: Admin queue and completion scheduler
  - idx_audit_request: Audit trail per request

CONCURRENCY:
  WithTx holds a mutex for the whole transaction, so two submissions never
  read the same history concurrently. UpdateRequest checks the version
  column and fails with generic.ErrConcurrentModification on a stale write.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging):
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

USAGE:
  store, err := sqlite.New("./data/sirw.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

MIGRATION:
  Schema is versioned with golang-migrate (migrations/*.sql, embedded).
  New() migrates up automatically; `sirw-server migrate` runs it explicitly.

SEE ALSO:
  - sirw/store.go: Interface definitions
  - store/memory/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/warp/sirw-engine/generic"
	"github.com/warp/sirw-engine/sirw"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store implements sirw.TxStore using SQLite.
type Store struct {
	conn
	db *sql.DB
	mu sync.Mutex
}

var _ sirw.TxStore = (*Store)(nil)

// New opens the database at dbPath and migrates it to the latest schema.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := Open(dbPath)
	if err != nil {
		return nil, err
	}
	if err := Migrate(db, "up"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return NewWithDB(db), nil
}

// Open opens a SQLite handle without touching the schema.
func Open(dbPath string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}
	return db, nil
}

// NewWithDB wraps an existing handle. The schema must already exist.
func NewWithDB(db *sql.DB) *Store {
	return &Store{conn: conn{q: db}, db: db}
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the handle for migrations and health checks.
func (s *Store) DB() *sql.DB {
	return s.db
}

// =============================================================================
// TRANSACTIONAL STORE (sirw.TxStore interface)
// =============================================================================

// WithTx executes a function within a database transaction.
// Every read and write made through the passed store uses the transaction.
func (s *Store) WithTx(ctx context.Context, fn func(store sirw.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&conn{q: sqlTx}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

// conn runs every query against q, a pool or an open transaction.
type conn struct {
	q querier
}

// =============================================================================
// EMPLOYEES
// =============================================================================

func (c *conn) SaveEmployee(ctx context.Context, e sirw.Employee) error {
	_, err := c.q.ExecContext(ctx, `
		INSERT INTO employees (id, name, email, home_country, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			email = excluded.email,
			home_country = excluded.home_country
	`, e.ID, e.Name, nullString(e.Email), e.HomeCountry, formatTime(e.CreatedAt))
	return err
}

func (c *conn) GetEmployee(ctx context.Context, id string) (*sirw.Employee, error) {
	row := c.q.QueryRowContext(ctx,
		`SELECT id, name, email, home_country, created_at FROM employees WHERE id = ?`, id)
	e, err := scanEmployee(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (c *conn) ListEmployees(ctx context.Context) ([]sirw.Employee, error) {
	rows, err := c.q.QueryContext(ctx,
		`SELECT id, name, email, home_country, created_at FROM employees ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	employees := []sirw.Employee{}
	for rows.Next() {
		e, err := scanEmployee(rows)
		if err != nil {
			return nil, err
		}
		employees = append(employees, e)
	}
	return employees, rows.Err()
}

func scanEmployee(row scanner) (sirw.Employee, error) {
	var e sirw.Employee
	var email sql.NullString
	var createdAt string
	if err := row.Scan(&e.ID, &e.Name, &email, &e.HomeCountry, &createdAt); err != nil {
		return sirw.Employee{}, err
	}
	e.Email = email.String
	e.CreatedAt = parseTime(createdAt)
	return e, nil
}

// =============================================================================
// REQUESTS
// =============================================================================

const requestColumns = `
	id, reference_number, employee_id, home_country, destination_country,
	start_date, end_date, status, decision_source, flags_json,
	is_exception_request, exception_reason, has_right_to_work, role_eligible,
	decision_reason, escalation_note, reviewed_by, reviewed_at,
	acknowledged_at, version, created_at, updated_at`

func (c *conn) CreateRequest(ctx context.Context, r sirw.Request) error {
	flags, err := json.Marshal(flagStrings(r.Flags))
	if err != nil {
		return err
	}
	_, err = c.q.ExecContext(ctx, `
		INSERT INTO requests (`+requestColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?)
	`,
		r.ID, r.ReferenceNumber, r.EmployeeID, nullString(r.HomeCountry), r.DestinationCountry,
		r.StartDate.String(), r.EndDate.String(), string(r.Status), nullString(string(r.DecisionSource)),
		string(flags), r.IsExceptionRequest, nullString(r.ExceptionReason), r.HasRightToWork, r.RoleEligible,
		nullString(r.DecisionReason), nullString(r.EscalationNote), nullString(r.ReviewedBy),
		formatTimePtr(r.ReviewedAt), formatTimePtr(r.AcknowledgedAt),
		formatTime(r.CreatedAt), formatTime(r.UpdatedAt),
	)
	if isUniqueConstraintError(err) {
		return fmt.Errorf("%w: %v", generic.ErrConcurrentModification, err)
	}
	return err
}

// UpdateRequest writes the mutable columns if the stored version still
// equals r.Version, and bumps the version.
func (c *conn) UpdateRequest(ctx context.Context, r sirw.Request) error {
	flags, err := json.Marshal(flagStrings(r.Flags))
	if err != nil {
		return err
	}
	res, err := c.q.ExecContext(ctx, `
		UPDATE requests SET
			status = ?,
			decision_source = ?,
			flags_json = ?,
			decision_reason = ?,
			escalation_note = ?,
			reviewed_by = ?,
			reviewed_at = ?,
			acknowledged_at = ?,
			updated_at = ?,
			version = version + 1
		WHERE id = ? AND version = ?
	`,
		string(r.Status), nullString(string(r.DecisionSource)), string(flags),
		nullString(r.DecisionReason), nullString(r.EscalationNote), nullString(r.ReviewedBy),
		formatTimePtr(r.ReviewedAt), formatTimePtr(r.AcknowledgedAt), formatTime(r.UpdatedAt),
		r.ID, r.Version,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		var exists int
		err := c.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM requests WHERE id = ?`, r.ID).Scan(&exists)
		if err != nil {
			return err
		}
		if exists == 0 {
			return generic.ErrRequestNotFound
		}
		return generic.ErrConcurrentModification
	}
	return nil
}

func (c *conn) GetRequest(ctx context.Context, id string) (*sirw.Request, error) {
	row := c.q.QueryRowContext(ctx, `SELECT `+requestColumns+` FROM requests WHERE id = ?`, id)
	r, err := scanRequest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// ListRequests returns matching requests, newest first.
func (c *conn) ListRequests(ctx context.Context, f sirw.RequestFilter) ([]sirw.Request, error) {
	var where []string
	var args []any
	if f.EmployeeID != "" {
		where = append(where, "employee_id = ?")
		args = append(args, f.EmployeeID)
	}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(f.Status))
	}
	if f.DecisionSource != "" {
		where = append(where, "decision_source = ?")
		args = append(args, string(f.DecisionSource))
	}
	if f.Country != "" {
		where = append(where, "LOWER(destination_country) = LOWER(?)")
		args = append(args, strings.TrimSpace(f.Country))
	}
	if f.StartFrom != nil {
		where = append(where, "start_date >= ?")
		args = append(args, f.StartFrom.String())
	}
	if f.StartTo != nil {
		where = append(where, "start_date <= ?")
		args = append(args, f.StartTo.String())
	}

	query := `SELECT ` + requestColumns + ` FROM requests`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at DESC, id`

	rows, err := c.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	requests := []sirw.Request{}
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		requests = append(requests, r)
	}
	return requests, rows.Err()
}

func (c *conn) CountRequestsCreatedIn(ctx context.Context, year int) (int, error) {
	var n int
	err := c.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM requests WHERE substr(created_at, 1, 4) = ?`,
		fmt.Sprintf("%04d", year)).Scan(&n)
	return n, err
}

type scanner interface {
	Scan(dest ...any) error
}

// scanRequest fails on unparseable dates: a request with an unknown range
// must not silently drop out of a balance.
func scanRequest(row scanner) (sirw.Request, error) {
	var r sirw.Request
	var (
		homeCountry, decisionSource, exceptionReason sql.NullString
		decisionReason, escalationNote, reviewedBy   sql.NullString
		reviewedAt, acknowledgedAt                   sql.NullString
		startDate, endDate, status, flagsJSON        string
		createdAt, updatedAt                         string
	)
	if err := row.Scan(
		&r.ID, &r.ReferenceNumber, &r.EmployeeID, &homeCountry, &r.DestinationCountry,
		&startDate, &endDate, &status, &decisionSource, &flagsJSON,
		&r.IsExceptionRequest, &exceptionReason, &r.HasRightToWork, &r.RoleEligible,
		&decisionReason, &escalationNote, &reviewedBy, &reviewedAt,
		&acknowledgedAt, &r.Version, &createdAt, &updatedAt,
	); err != nil {
		return sirw.Request{}, err
	}

	var err error
	if r.StartDate, err = generic.ParseDate(startDate); err != nil {
		return sirw.Request{}, fmt.Errorf("request %s: %w", r.ID, err)
	}
	if r.EndDate, err = generic.ParseDate(endDate); err != nil {
		return sirw.Request{}, fmt.Errorf("request %s: %w", r.ID, err)
	}

	var flagValues []string
	if err := json.Unmarshal([]byte(flagsJSON), &flagValues); err != nil {
		return sirw.Request{}, fmt.Errorf("request %s flags: %w", r.ID, err)
	}
	if r.Flags, err = sirw.ParseFlags(flagValues); err != nil {
		return sirw.Request{}, fmt.Errorf("request %s flags: %w", r.ID, err)
	}

	r.HomeCountry = homeCountry.String
	r.Status = sirw.Status(status)
	r.DecisionSource = sirw.DecisionSource(decisionSource.String)
	r.ExceptionReason = exceptionReason.String
	r.DecisionReason = decisionReason.String
	r.EscalationNote = escalationNote.String
	r.ReviewedBy = reviewedBy.String
	if reviewedAt.Valid {
		t := parseTime(reviewedAt.String)
		r.ReviewedAt = &t
	}
	if acknowledgedAt.Valid {
		t := parseTime(acknowledgedAt.String)
		r.AcknowledgedAt = &t
	}
	r.CreatedAt = parseTime(createdAt)
	r.UpdatedAt = parseTime(updatedAt)
	return r, nil
}

// =============================================================================
// COMMENTS
// =============================================================================

func (c *conn) AddComment(ctx context.Context, rc sirw.RequestComment) error {
	_, err := c.q.ExecContext(ctx, `
		INSERT INTO request_comments (id, request_id, author_id, body, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, rc.ID, rc.RequestID, rc.AuthorID, rc.Body, formatTime(rc.CreatedAt))
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintForeignKey {
		return fmt.Errorf("%w: %s", generic.ErrRequestNotFound, rc.RequestID)
	}
	return err
}

func (c *conn) ListComments(ctx context.Context, requestID string) ([]sirw.RequestComment, error) {
	rows, err := c.q.QueryContext(ctx, `
		SELECT id, request_id, author_id, body, created_at
		FROM request_comments
		WHERE request_id = ?
		ORDER BY created_at, id
	`, requestID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	comments := []sirw.RequestComment{}
	for rows.Next() {
		var rc sirw.RequestComment
		var createdAt string
		if err := rows.Scan(&rc.ID, &rc.RequestID, &rc.AuthorID, &rc.Body, &createdAt); err != nil {
			return nil, err
		}
		rc.CreatedAt = parseTime(createdAt)
		comments = append(comments, rc)
	}
	return comments, rows.Err()
}

// =============================================================================
// POLICY VERSIONS
// =============================================================================

func (c *conn) SavePolicyVersion(ctx context.Context, pv sirw.PolicyVersion) error {
	_, err := c.q.ExecContext(ctx, `
		INSERT INTO policy_versions (version, name, days_allowed, consecutive_limit,
			proximity_days, changed_by, note, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, pv.Version, nullString(pv.Name), pv.Policy.DaysAllowed, pv.Policy.ConsecutiveLimit,
		pv.Policy.ProximityDays, nullString(pv.ChangedBy), nullString(pv.Note), formatTime(pv.CreatedAt))
	if isUniqueConstraintError(err) {
		return fmt.Errorf("%w: policy version %d already exists", generic.ErrConcurrentModification, pv.Version)
	}
	return err
}

func (c *conn) LatestPolicyVersion(ctx context.Context) (*sirw.PolicyVersion, error) {
	var pv sirw.PolicyVersion
	var name, changedBy, note sql.NullString
	var createdAt string
	err := c.q.QueryRowContext(ctx, `
		SELECT version, name, days_allowed, consecutive_limit, proximity_days,
			changed_by, note, created_at
		FROM policy_versions ORDER BY version DESC LIMIT 1
	`).Scan(&pv.Version, &name, &pv.Policy.DaysAllowed, &pv.Policy.ConsecutiveLimit,
		&pv.Policy.ProximityDays, &changedBy, &note, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	pv.Name = name.String
	pv.ChangedBy = changedBy.String
	pv.Note = note.String
	pv.CreatedAt = parseTime(createdAt)
	return &pv, nil
}

// =============================================================================
// AUDIT LOG (generic.AuditLog interface)
// =============================================================================

func (c *conn) AppendAudit(ctx context.Context, e generic.AuditEntry) error {
	var payload sql.NullString
	if len(e.Payload) > 0 {
		b, err := json.Marshal(e.Payload)
		if err != nil {
			return fmt.Errorf("encode audit payload: %w", err)
		}
		payload = sql.NullString{String: string(b), Valid: true}
	}
	_, err := c.q.ExecContext(ctx, `
		INSERT INTO audit_log (id, ts, actor_id, action, employee_id, request_id, payload_json)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, e.ID, formatTime(e.Timestamp), e.ActorID, string(e.Action),
		nullString(e.EmployeeID), nullString(e.RequestID), payload)
	return err
}

// QueryAudit returns matching entries, oldest first.
func (c *conn) QueryAudit(ctx context.Context, f generic.AuditFilter) ([]generic.AuditEntry, error) {
	var where []string
	var args []any
	if f.RequestID != nil {
		where = append(where, "request_id = ?")
		args = append(args, *f.RequestID)
	}
	if f.EmployeeID != nil {
		where = append(where, "employee_id = ?")
		args = append(args, *f.EmployeeID)
	}

	query := `SELECT id, ts, actor_id, action, employee_id, request_id, payload_json FROM audit_log`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY ts, rowid`

	rows, err := c.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []generic.AuditEntry{}
	for rows.Next() {
		var e generic.AuditEntry
		var ts, action string
		var employeeID, requestID, payload sql.NullString
		if err := rows.Scan(&e.ID, &ts, &e.ActorID, &action, &employeeID, &requestID, &payload); err != nil {
			return nil, err
		}
		e.Timestamp = parseTime(ts)
		e.Action = generic.AuditAction(action)
		e.EmployeeID = employeeID.String
		e.RequestID = requestID.String
		if payload.Valid {
			if err := json.Unmarshal([]byte(payload.String), &e.Payload); err != nil {
				return nil, fmt.Errorf("decode audit payload %s: %w", e.ID, err)
			}
		}
		// Remaining filter fields are applied in Go; the audit trail of a
		// single request is small.
		if f.Matches(e) {
			entries = append(entries, e)
		}
	}
	return entries, rows.Err()
}

// =============================================================================
// HELPERS
// =============================================================================

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// timeLayout is fixed-width so stored timestamps sort lexicographically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func formatTimePtr(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		t, _ = time.Parse(time.RFC3339Nano, s)
	}
	return t
}

func flagStrings(fs sirw.Flags) []string {
	if fs == nil {
		return []string{}
	}
	return fs.Strings()
}

// isUniqueConstraintError matches on the driver's extended result code.
// A duplicate primary key reports SQLITE_CONSTRAINT_PRIMARYKEY, not UNIQUE.
func isUniqueConstraintError(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
		sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}
