package sirw_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/sirw-engine/sirw"
)

func TestComputeStats(t *testing.T) {
	// GIVEN: 2 approved (one human), 1 completed, 1 rejected, 1 escalated
	approvedAuto := trip(week1Start, week1End, sirw.StatusApproved)
	approvedAuto.DecisionSource = sirw.DecisionAuto
	approvedHuman := trip(week2Start, week2End, sirw.StatusApproved)
	approvedHuman.DecisionSource = sirw.DecisionHuman
	approvedHuman.DestinationCountry = "spain"
	completed := trip(week3Start, week3End, sirw.StatusCompleted)
	completed.DecisionSource = sirw.DecisionAuto
	completed.DestinationCountry = "Spain"
	rejected := trip(week1Start, week1End, sirw.StatusRejected)
	rejected.DecisionSource = sirw.DecisionAuto
	rejected.DestinationCountry = "Iran"
	escalated := trip(week2Start, week2End, sirw.StatusEscalated)
	escalated.DestinationCountry = "Spain"

	// WHEN
	s := sirw.ComputeStats([]sirw.Request{approvedAuto, approvedHuman, completed, rejected, escalated}, 2)

	// THEN
	assert.Equal(t, 5, s.Total)
	assert.Equal(t, 2, s.ByStatus[sirw.StatusApproved])
	assert.Equal(t, 0, s.ByStatus[sirw.StatusCancelled], "every status present")
	assert.Equal(t, 3, s.AutoDecided)
	assert.Equal(t, 1, s.HumanDecided)
	assert.Equal(t, 1, s.AwaitingReview)
	assert.Equal(t, "75", s.ApprovalRate.String(), "3 of 4 decided")

	require.Len(t, s.TopDestinations, 2)
	assert.Equal(t, 3, s.TopDestinations[0].Count, "country names grouped case-insensitively")
	assert.Equal(t, "Iran", s.TopDestinations[1].Country, "ties broken by name")
}

func TestComputeStats_ApprovalRateRounding(t *testing.T) {
	s := sirw.ComputeStats([]sirw.Request{
		trip(week1Start, week1End, sirw.StatusApproved),
		trip(week2Start, week2End, sirw.StatusApproved),
		trip(week3Start, week3End, sirw.StatusRejected),
	}, 0)

	assert.Equal(t, "66.67", s.ApprovalRate.String())
}

func TestComputeStats_Empty(t *testing.T) {
	s := sirw.ComputeStats(nil, 5)

	assert.Zero(t, s.Total)
	assert.True(t, s.ApprovalRate.IsZero())
	assert.Empty(t, s.TopDestinations)
}
