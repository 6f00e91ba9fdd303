package sqlite_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/sirw-engine/generic"
	"github.com/warp/sirw-engine/sirw"
	"github.com/warp/sirw-engine/store/sqlite"
)

func newStore(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	require.NoError(t, s.SaveEmployee(context.Background(), sirw.Employee{
		ID: "emp-1", Name: "Ada", Email: "ada@example.com", HomeCountry: "Denmark",
		CreatedAt: time.Date(2025, time.January, 2, 8, 0, 0, 0, time.UTC),
	}))
	return s
}

func request(id string, start, end generic.TimePoint, created time.Time) sirw.Request {
	return sirw.Request{
		ID:                 id,
		ReferenceNumber:    "SIRW-2025-" + id,
		EmployeeID:         "emp-1",
		HomeCountry:        "Denmark",
		DestinationCountry: "Portugal",
		StartDate:          start,
		EndDate:            end,
		Status:             sirw.StatusEscalated,
		Flags: sirw.Flags{
			sirw.NewFlag(sirw.FlagExceedsConsecutiveLimit),
			sirw.ExceptionFlag("client go-live: phase 2"),
		},
		IsExceptionRequest: true,
		ExceptionReason:    "client go-live: phase 2",
		HasRightToWork:     true,
		RoleEligible:       true,
		DecisionReason:     "needs review",
		EscalationNote:     "Days used this year: 0.",
		CreatedAt:          created,
		UpdatedAt:          created,
	}
}

// =============================================================================
// ROUND TRIPS
// =============================================================================

func TestRequests_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	created := time.Date(2025, time.May, 20, 9, 30, 0, 123456789, time.UTC)
	r := request("0001", generic.NewTimePoint(2025, time.June, 2), generic.NewTimePoint(2025, time.June, 20), created)

	require.NoError(t, s.CreateRequest(ctx, r))

	got, err := s.GetRequest(ctx, r.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 1, got.Version)
	assert.True(t, got.StartDate.Equal(r.StartDate))
	assert.True(t, got.EndDate.Equal(r.EndDate))
	assert.Equal(t, r.Flags, got.Flags)
	assert.Equal(t, "Denmark", got.HomeCountry)
	assert.True(t, got.CreatedAt.Equal(created))
	assert.Nil(t, got.ReviewedAt)
	assert.Empty(t, got.DecisionSource)

	missing, err := s.GetRequest(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestUpdateRequest_OptimisticVersion(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	r := request("0001", generic.NewTimePoint(2025, time.June, 2), generic.NewTimePoint(2025, time.June, 6), time.Now().UTC())
	require.NoError(t, s.CreateRequest(ctx, r))
	r.Version = 1

	// WHEN: a reviewer approves at version 1
	reviewed := time.Date(2025, time.May, 21, 10, 0, 0, 0, time.UTC)
	r.Status = sirw.StatusApproved
	r.DecisionSource = sirw.DecisionHuman
	r.ReviewedBy = "gm-1"
	r.ReviewedAt = &reviewed
	require.NoError(t, s.UpdateRequest(ctx, r))

	// THEN: the stored row moved to version 2
	got, err := s.GetRequest(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Version)
	assert.Equal(t, sirw.DecisionHuman, got.DecisionSource)
	require.NotNil(t, got.ReviewedAt)
	assert.True(t, got.ReviewedAt.Equal(reviewed))

	// AND: a second write based on version 1 is refused
	r.Status = sirw.StatusCancelled
	assert.ErrorIs(t, s.UpdateRequest(ctx, r), generic.ErrConcurrentModification)

	r.ID = "missing"
	assert.ErrorIs(t, s.UpdateRequest(ctx, r), generic.ErrRequestNotFound)
}

func TestUpdateRequest_Acknowledgement(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	created := time.Date(2025, time.May, 20, 9, 30, 0, 0, time.UTC)
	require.NoError(t, s.CreateRequest(ctx, request("0001", generic.NewTimePoint(2025, time.June, 2), generic.NewTimePoint(2025, time.June, 6), created)))

	got, err := s.GetRequest(ctx, "0001")
	require.NoError(t, err)
	assert.Nil(t, got.AcknowledgedAt)

	// WHEN: the decision is acknowledged
	seen := created.Add(time.Hour)
	got.AcknowledgedAt = &seen
	got.UpdatedAt = seen
	require.NoError(t, s.UpdateRequest(ctx, *got))

	// THEN
	after, err := s.GetRequest(ctx, "0001")
	require.NoError(t, err)
	require.NotNil(t, after.AcknowledgedAt)
	assert.True(t, after.AcknowledgedAt.Equal(seen))
	assert.Equal(t, 2, after.Version)
}

func TestComments(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	created := time.Date(2025, time.May, 20, 9, 30, 0, 0, time.UTC)
	require.NoError(t, s.CreateRequest(ctx, request("0001", generic.NewTimePoint(2025, time.June, 2), generic.NewTimePoint(2025, time.June, 6), created)))

	require.NoError(t, s.AddComment(ctx, sirw.RequestComment{
		ID: "c2", RequestID: "0001", AuthorID: "gm-1", Body: "Approved for the go-live.", CreatedAt: created.Add(2 * time.Hour),
	}))
	require.NoError(t, s.AddComment(ctx, sirw.RequestComment{
		ID: "c1", RequestID: "0001", AuthorID: "emp-1", Body: "Client asked for me on site.", CreatedAt: created.Add(time.Hour),
	}))

	comments, err := s.ListComments(ctx, "0001")
	require.NoError(t, err)
	require.Len(t, comments, 2)
	assert.Equal(t, "c1", comments[0].ID)
	assert.Equal(t, "gm-1", comments[1].AuthorID)
	assert.True(t, comments[1].CreatedAt.Equal(created.Add(2*time.Hour)))

	none, err := s.ListComments(ctx, "other")
	require.NoError(t, err)
	assert.Empty(t, none)

	// Comments must point at an existing request
	err = s.AddComment(ctx, sirw.RequestComment{ID: "c3", RequestID: "ghost", AuthorID: "gm-1", Body: "x", CreatedAt: created})
	assert.ErrorIs(t, err, generic.ErrRequestNotFound)
}

func TestCreateRequest_DuplicateID(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	r := request("0001", generic.NewTimePoint(2025, time.June, 2), generic.NewTimePoint(2025, time.June, 6), time.Now().UTC())

	require.NoError(t, s.CreateRequest(ctx, r))
	assert.ErrorIs(t, s.CreateRequest(ctx, r), generic.ErrConcurrentModification)

	// A second request reusing the reference number trips the UNIQUE index
	dup := r
	dup.ID = "0002"
	assert.ErrorIs(t, s.CreateRequest(ctx, dup), generic.ErrConcurrentModification)
}

func TestSavePolicyVersion_DuplicateVersion(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	pv := sirw.PolicyVersion{Version: 1, Policy: sirw.DefaultPolicy(), ChangedBy: "gm-1", CreatedAt: time.Now().UTC()}

	require.NoError(t, s.SavePolicyVersion(ctx, pv))
	err := s.SavePolicyVersion(ctx, pv)
	assert.ErrorIs(t, err, generic.ErrConcurrentModification)
	assert.ErrorContains(t, err, "policy version 1 already exists")
}

func TestListRequests_FiltersAndOrder(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	base := time.Date(2025, time.March, 1, 12, 0, 0, 0, time.UTC)

	a := request("a", generic.NewTimePoint(2025, time.June, 2), generic.NewTimePoint(2025, time.June, 6), base)
	a.Status = sirw.StatusApproved
	a.DecisionSource = sirw.DecisionAuto
	b := request("b", generic.NewTimePoint(2025, time.July, 7), generic.NewTimePoint(2025, time.July, 8), base.Add(time.Second))
	b.DestinationCountry = "Spain"
	c := request("c", generic.NewTimePoint(2026, time.January, 5), generic.NewTimePoint(2026, time.January, 9), base.Add(2*time.Second))
	c.Status = sirw.StatusRejected
	c.DecisionSource = sirw.DecisionAuto
	for _, r := range []sirw.Request{a, b, c} {
		require.NoError(t, s.CreateRequest(ctx, r))
	}

	all, err := s.ListRequests(ctx, sirw.RequestFilter{EmployeeID: "emp-1"})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"c", "b", "a"}, []string{all[0].ID, all[1].ID, all[2].ID}, "newest first")

	spain, err := s.ListRequests(ctx, sirw.RequestFilter{Country: "SPAIN"})
	require.NoError(t, err)
	require.Len(t, spain, 1)
	assert.Equal(t, "b", spain[0].ID)

	auto, err := s.ListRequests(ctx, sirw.RequestFilter{DecisionSource: sirw.DecisionAuto, Status: sirw.StatusRejected})
	require.NoError(t, err)
	require.Len(t, auto, 1)
	assert.Equal(t, "c", auto[0].ID)

	from := generic.NewTimePoint(2025, time.July, 1)
	to := generic.NewTimePoint(2025, time.December, 31)
	window, err := s.ListRequests(ctx, sirw.RequestFilter{StartFrom: &from, StartTo: &to})
	require.NoError(t, err)
	require.Len(t, window, 1)
	assert.Equal(t, "b", window[0].ID)

	n, err := s.CountRequestsCreatedIn(ctx, 2025)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

func TestWithTx_RollbackOnError(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	boom := errors.New("boom")

	err := s.WithTx(ctx, func(tx sirw.Store) error {
		r := request("0001", generic.NewTimePoint(2025, time.June, 2), generic.NewTimePoint(2025, time.June, 6), time.Now().UTC())
		require.NoError(t, tx.CreateRequest(ctx, r))

		// Reads inside the transaction see the write.
		got, err := tx.GetRequest(ctx, r.ID)
		require.NoError(t, err)
		require.NotNil(t, got)
		return boom
	})
	assert.ErrorIs(t, err, boom)

	got, err := s.GetRequest(ctx, "0001")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestPolicyVersionsAndAudit(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	latest, err := s.LatestPolicyVersion(ctx)
	require.NoError(t, err)
	assert.Nil(t, latest)

	for v := 1; v <= 2; v++ {
		require.NoError(t, s.SavePolicyVersion(ctx, sirw.PolicyVersion{
			Version:   v,
			Name:      "policy",
			Policy:    sirw.Policy{DaysAllowed: 20 + v, ConsecutiveLimit: 14, ProximityDays: 7},
			ChangedBy: "gm-1",
			CreatedAt: time.Now().UTC(),
		}))
	}
	latest, err = s.LatestPolicyVersion(ctx)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, 2, latest.Version)
	assert.Equal(t, 22, latest.Policy.DaysAllowed)

	reqID := "0001"
	at := time.Date(2025, time.May, 20, 9, 0, 0, 0, time.UTC)
	require.NoError(t, s.AppendAudit(ctx, generic.AuditEntry{
		ID: "a1", Timestamp: at, ActorID: "emp-1", Action: generic.AuditRequestSubmitted,
		EmployeeID: "emp-1", RequestID: reqID, Payload: map[string]any{"workdays": 5},
	}))
	require.NoError(t, s.AppendAudit(ctx, generic.AuditEntry{
		ID: "a2", Timestamp: at.Add(time.Second), ActorID: generic.SystemActor, Action: generic.AuditRequestApproved,
		EmployeeID: "emp-1", RequestID: reqID,
	}))

	entries, err := s.QueryAudit(ctx, generic.AuditFilter{RequestID: &reqID})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, generic.AuditRequestSubmitted, entries[0].Action)
	assert.EqualValues(t, 5, entries[0].Payload["workdays"])

	approved, err := s.QueryAudit(ctx, generic.AuditFilter{Actions: []generic.AuditAction{generic.AuditRequestApproved}})
	require.NoError(t, err)
	require.Len(t, approved, 1)
	assert.Equal(t, "a2", approved[0].ID)
}

func TestMigrationVersion(t *testing.T) {
	s := newStore(t)

	version, dirty, err := sqlite.MigrationVersion(s.DB())
	require.NoError(t, err)
	assert.Equal(t, uint(2), version)
	assert.False(t, dirty)
}

// =============================================================================
// DRIVER ERRORS (sqlmock)
// =============================================================================

func TestUpdateRequest_StaleVersionInsideTx(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE requests SET`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM requests WHERE id = \?`).
		WithArgs("r1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectRollback()

	s := sqlite.NewWithDB(db)
	err = s.WithTx(context.Background(), func(tx sirw.Store) error {
		return tx.UpdateRequest(context.Background(), sirw.Request{ID: "r1", Version: 3, Status: sirw.StatusCompleted})
	})

	assert.ErrorIs(t, err, generic.ErrConcurrentModification)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListRequests_DriverErrorPropagates(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`SELECT .* FROM requests`).WillReturnError(errors.New("database is locked"))

	_, err = sqlite.NewWithDB(db).ListRequests(context.Background(), sirw.RequestFilter{EmployeeID: "emp-1"})

	assert.ErrorContains(t, err, "database is locked")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateRequest_ConstraintCodes(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		conflict bool
	}{
		{"unique index", sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintUnique}, true},
		{"primary key", sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintPrimaryKey}, true},
		{"foreign key", sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintForeignKey}, false},
		{"message text only", errors.New("UNIQUE constraint failed: requests.id"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, err := sqlmock.New()
			require.NoError(t, err)
			defer db.Close()

			mock.ExpectExec(`INSERT INTO requests`).WillReturnError(tt.err)

			err = sqlite.NewWithDB(db).CreateRequest(context.Background(), sirw.Request{ID: "r1"})

			require.Error(t, err)
			assert.Equal(t, tt.conflict, errors.Is(err, generic.ErrConcurrentModification))
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestBeginFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin().WillReturnError(errors.New("disk full"))

	called := false
	err = sqlite.NewWithDB(db).WithTx(context.Background(), func(sirw.Store) error {
		called = true
		return nil
	})

	assert.ErrorContains(t, err, "begin transaction")
	assert.False(t, called)
}
