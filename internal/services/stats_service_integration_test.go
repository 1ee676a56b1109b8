//go:build integration

package services

import (
	"context"
	"testing"

	contextutils "feedbackapp/internal/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatsService_GetDepartmentStats_Integration(t *testing.T) {
	env := setupPeriodTestEnv(t)
	defer env.db.Close()
	ctx := context.Background()

	statsService := NewStatsServiceWithLogger(env.db, env.cfg, env.feedback, testLogger())

	alice, err := env.users.CreateUser(ctx, "stats_alice", "", "password123", "Engineering", false)
	require.NoError(t, err)
	bob, err := env.users.CreateUser(ctx, "stats_bob", "", "password123", "Marketing", false)
	require.NoError(t, err)

	sales := env.createOpenPeriod(t, "Sales")

	_, err = env.feedback.SubmitFeedback(ctx, alice, sales.ID, []AnswerSubmission{
		{QuestionID: "responsiveness", Rating: 5},
		{QuestionID: "collaboration", Rating: 3},
	}, "")
	require.NoError(t, err)
	_, err = env.feedback.SubmitFeedback(ctx, bob, sales.ID, []AnswerSubmission{
		{QuestionID: "responsiveness", Rating: 1},
	}, "")
	require.NoError(t, err)

	stats, err := statsService.GetDepartmentStats(ctx)
	require.NoError(t, err)
	require.Len(t, stats, len(env.cfg.Departments))

	// Output follows configured order; every department appears exactly once
	for i, d := range env.cfg.Departments {
		assert.Equal(t, d.Name, stats[i].Department)
	}

	salesIndex := -1
	for i := range stats {
		if stats[i].Department == "Sales" {
			salesIndex = i
		} else {
			assert.Equal(t, 0, stats[i].TotalFeedbacks)
		}
	}
	require.GreaterOrEqual(t, salesIndex, 0)
	assert.Equal(t, 2, stats[salesIndex].TotalFeedbacks)
	// Three ratings: 5, 3, 1
	assert.InDelta(t, 3.0, stats[salesIndex].AverageRating, 1e-9)
}

func TestStatsService_GetDepartmentDetail_Integration(t *testing.T) {
	env := setupPeriodTestEnv(t)
	defer env.db.Close()
	ctx := context.Background()

	statsService := NewStatsServiceWithLogger(env.db, env.cfg, env.feedback, testLogger())

	user, err := env.users.CreateUser(ctx, "detail_user", "", "password123", "Engineering", false)
	require.NoError(t, err)

	sales := env.createOpenPeriod(t, "Sales")
	_, err = env.feedback.SubmitFeedback(ctx, user, sales.ID, []AnswerSubmission{
		{QuestionID: "responsiveness", Rating: 4},
	}, "")
	require.NoError(t, err)

	entry, recent, err := statsService.GetDepartmentDetail(ctx, "sales")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, "Sales", entry.Department)
	assert.Equal(t, 1, entry.TotalFeedbacks)
	require.Len(t, recent, 1)
	assert.Equal(t, "Sales", recent[0].TargetDepartment)

	_, _, err = statsService.GetDepartmentDetail(ctx, "Astrology")
	require.Error(t, err)
	assert.True(t, contextutils.IsError(err, contextutils.ErrUnknownDepartment))
}

func TestStatsService_GetSummary_Integration(t *testing.T) {
	env := setupPeriodTestEnv(t)
	defer env.db.Close()
	ctx := context.Background()

	statsService := NewStatsServiceWithLogger(env.db, env.cfg, env.feedback, testLogger())

	empty, err := statsService.GetSummary(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, empty.TotalUsers)
	assert.Equal(t, 0, empty.TotalFeedbacks)
	assert.Equal(t, 0.0, empty.OverallAverageRating)

	user, err := env.users.CreateUser(ctx, "summary_user", "", "password123", "Engineering", false)
	require.NoError(t, err)

	sales := env.createOpenPeriod(t, "Sales")
	_, err = env.feedback.SubmitFeedback(ctx, user, sales.ID, []AnswerSubmission{
		{QuestionID: "responsiveness", Rating: 4},
		{QuestionID: "collaboration", Rating: 2},
	}, "")
	require.NoError(t, err)

	summary, err := statsService.GetSummary(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.TotalUsers)
	assert.Equal(t, 1, summary.TotalPeriods)
	assert.Equal(t, 1, summary.ActivePeriods)
	assert.Equal(t, 1, summary.TotalFeedbacks)
	assert.InDelta(t, 3.0, summary.OverallAverageRating, 1e-9)
}
