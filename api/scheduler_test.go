package api

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/warp/sirw-engine/generic"
	"github.com/warp/sirw-engine/sirw"
	"github.com/warp/sirw-engine/store/memory"
)

func newSchedulerService(t *testing.T) *sirw.Service {
	t.Helper()
	svc := sirw.NewService(memory.New(), sirw.DefaultCountryPolicy(), sirw.DefaultPolicy(), zap.NewNop())
	svc.Now = func() time.Time { return apiNow }

	ctx := context.Background()
	_, err := svc.RegisterEmployee(ctx, sirw.Employee{ID: "emp-1", Name: "Ada", HomeCountry: "Denmark"})
	require.NoError(t, err)

	for _, trip := range [][2]generic.TimePoint{
		{generic.NewTimePoint(2025, time.June, 2), generic.NewTimePoint(2025, time.June, 6)},
		{generic.NewTimePoint(2025, time.July, 7), generic.NewTimePoint(2025, time.July, 11)},
	} {
		d, err := svc.Submit(ctx, sirw.Submission{
			EmployeeID:         "emp-1",
			DestinationCountry: "Spain",
			StartDate:          trip[0],
			EndDate:            trip[1],
			Attestations:       sirw.Attestations{HasRightToWork: true, RoleEligible: true},
		})
		require.NoError(t, err)
		require.Equal(t, sirw.StatusApproved, d.Request.Status)
	}
	return svc
}

func TestCompletionScheduler_RunOnce(t *testing.T) {
	// GIVEN: Two approved trips, only the first has ended by June 30
	svc := newSchedulerService(t)
	core, logs := observer.New(zap.InfoLevel)
	cs := NewCompletionScheduler(svc, zap.New(core))
	cs.Today = func() generic.TimePoint { return generic.NewTimePoint(2025, time.June, 30) }

	assert.Nil(t, cs.LastRun())

	// WHEN
	run := cs.RunOnce(context.Background())

	// THEN: One trip completes and still counts toward the balance
	require.NoError(t, run.Err)
	assert.Equal(t, 1, run.Completed)
	assert.Equal(t, 1, logs.FilterMessage("trips completed").Len())

	completed, err := svc.ListRequests(context.Background(), sirw.RequestFilter{Status: sirw.StatusCompleted})
	require.NoError(t, err)
	require.Len(t, completed, 1)
	assert.Equal(t, "2025-06-06", completed[0].EndDate.String())

	b, err := svc.Balance(context.Background(), "emp-1", 2025)
	require.NoError(t, err)
	assert.Equal(t, 10, b.DaysUsed)

	// A second pass has nothing left to do
	again := cs.RunOnce(context.Background())
	assert.Equal(t, 0, again.Completed)
	require.NotNil(t, cs.LastRun())
	assert.Equal(t, 0, cs.LastRun().Completed)
}

func TestCompletionScheduler_StartStop(t *testing.T) {
	svc := newSchedulerService(t)
	cs := NewCompletionScheduler(svc, zap.NewNop())
	cs.CheckInterval = time.Hour
	cs.Today = func() generic.TimePoint { return generic.NewTimePoint(2025, time.December, 31) }

	// Start runs a pass immediately
	cs.Start()
	require.Eventually(t, func() bool { return cs.LastRun() != nil }, time.Second, 10*time.Millisecond)
	cs.Stop()
	cs.Stop() // idempotent

	assert.Equal(t, 2, cs.LastRun().Completed)
}

func TestCompletionScheduler_Disabled(t *testing.T) {
	cs := NewCompletionScheduler(newSchedulerService(t), zap.NewNop())
	cs.Enabled = false

	cs.Start()
	cs.Stop()

	assert.Nil(t, cs.LastRun())
}
