package memory_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/sirw-engine/generic"
	"github.com/warp/sirw-engine/sirw"
	"github.com/warp/sirw-engine/store/memory"
)

func newRequest(id string, created time.Time) sirw.Request {
	return sirw.Request{
		ID:                 id,
		EmployeeID:         "emp-1",
		DestinationCountry: "Portugal",
		StartDate:          generic.NewTimePoint(2025, time.June, 2),
		EndDate:            generic.NewTimePoint(2025, time.June, 6),
		Status:             sirw.StatusPending,
		Flags:              sirw.Flags{sirw.NewFlag(sirw.FlagExceedsAnnualLimit)},
		CreatedAt:          created,
	}
}

func TestWithTx_RollbackRestoresSnapshot(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	require.NoError(t, s.CreateRequest(ctx, newRequest("keep", time.Now())))

	// WHEN: a transaction writes then fails
	err := s.WithTx(ctx, func(tx sirw.Store) error {
		require.NoError(t, tx.CreateRequest(ctx, newRequest("drop", time.Now())))
		r, err := tx.GetRequest(ctx, "keep")
		require.NoError(t, err)
		r.Status = sirw.StatusCancelled
		require.NoError(t, tx.UpdateRequest(ctx, *r))
		return errors.New("abort")
	})
	require.Error(t, err)

	// THEN: nothing from the transaction is visible
	dropped, err := s.GetRequest(ctx, "drop")
	require.NoError(t, err)
	assert.Nil(t, dropped)

	kept, err := s.GetRequest(ctx, "keep")
	require.NoError(t, err)
	assert.Equal(t, sirw.StatusPending, kept.Status)
	assert.Equal(t, 1, kept.Version)
}

func TestUpdateRequest_Version(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	require.NoError(t, s.CreateRequest(ctx, newRequest("r1", time.Now())))

	r, err := s.GetRequest(ctx, "r1")
	require.NoError(t, err)
	r.Status = sirw.StatusApproved
	require.NoError(t, s.UpdateRequest(ctx, *r))

	assert.ErrorIs(t, s.UpdateRequest(ctx, *r), generic.ErrConcurrentModification)

	r.ID = "ghost"
	assert.ErrorIs(t, s.UpdateRequest(ctx, *r), generic.ErrRequestNotFound)
}

func TestListRequests_NewestFirstWithFilters(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	base := time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC)

	old := newRequest("old", base)
	recent := newRequest("recent", base.Add(time.Hour))
	recent.DestinationCountry = "Spain"
	other := newRequest("other", base.Add(2*time.Hour))
	other.EmployeeID = "emp-2"
	for _, r := range []sirw.Request{old, recent, other} {
		require.NoError(t, s.CreateRequest(ctx, r))
	}

	mine, err := s.ListRequests(ctx, sirw.RequestFilter{EmployeeID: "emp-1"})
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, "recent", mine[0].ID)

	spain, err := s.ListRequests(ctx, sirw.RequestFilter{Country: " spain "})
	require.NoError(t, err)
	require.Len(t, spain, 1)

	// Callers get copies.
	mine[0].Flags[0] = sirw.NewFlag(sirw.FlagRoleIneligible)
	again, err := s.GetRequest(ctx, "recent")
	require.NoError(t, err)
	assert.True(t, again.Flags.Has(sirw.FlagExceedsAnnualLimit))
}

func TestPolicyVersions(t *testing.T) {
	ctx := context.Background()
	s := memory.New()

	pv, err := s.LatestPolicyVersion(ctx)
	require.NoError(t, err)
	assert.Nil(t, pv)

	require.NoError(t, s.SavePolicyVersion(ctx, sirw.PolicyVersion{Version: 1, Policy: sirw.DefaultPolicy()}))
	require.NoError(t, s.SavePolicyVersion(ctx, sirw.PolicyVersion{Version: 2, Policy: sirw.Policy{DaysAllowed: 25, ConsecutiveLimit: 14, ProximityDays: 7}}))
	assert.ErrorIs(t, s.SavePolicyVersion(ctx, sirw.PolicyVersion{Version: 2}), generic.ErrConcurrentModification)

	pv, err = s.LatestPolicyVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, 25, pv.Policy.DaysAllowed)
}

func TestComments_OldestFirstAndRolledBack(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	base := time.Date(2025, time.March, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, s.CreateRequest(ctx, newRequest("r1", base)))

	// GIVEN: two comments stored out of order
	require.NoError(t, s.AddComment(ctx, sirw.RequestComment{ID: "c2", RequestID: "r1", AuthorID: "gm-1", Body: "second", CreatedAt: base.Add(time.Hour)}))
	require.NoError(t, s.AddComment(ctx, sirw.RequestComment{ID: "c1", RequestID: "r1", AuthorID: "emp-1", Body: "first", CreatedAt: base}))

	// AND: a third one inside a transaction that fails
	err := s.WithTx(ctx, func(tx sirw.Store) error {
		require.NoError(t, tx.AddComment(ctx, sirw.RequestComment{ID: "c3", RequestID: "r1", Body: "lost", CreatedAt: base}))
		return errors.New("abort")
	})
	require.Error(t, err)

	// THEN
	comments, err := s.ListComments(ctx, "r1")
	require.NoError(t, err)
	require.Len(t, comments, 2)
	assert.Equal(t, "first", comments[0].Body)
	assert.Equal(t, "second", comments[1].Body)

	assert.ErrorIs(t, s.AddComment(ctx, sirw.RequestComment{ID: "c4", RequestID: "ghost"}), generic.ErrRequestNotFound)
}
