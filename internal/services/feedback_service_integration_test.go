//go:build integration

package services

import (
	"context"
	"testing"

	contextutils "feedbackapp/internal/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFeedbackService_SubmitFeedback_Integration(t *testing.T) {
	env := setupPeriodTestEnv(t)
	defer env.db.Close()
	ctx := context.Background()

	user, err := env.users.CreateUser(ctx, "fb_user", "fb@example.com", "password123", "Engineering", false)
	require.NoError(t, err)

	period := env.createOpenPeriod(t, "Sales")

	feedback, err := env.feedback.SubmitFeedback(ctx, user, period.ID, []AnswerSubmission{
		{QuestionID: "collaboration", Rating: 3, Comment: "Could be better"},
		{QuestionID: "responsiveness", Rating: 5},
	}, "Keep it up")
	require.NoError(t, err)
	require.NotNil(t, feedback)

	assert.Greater(t, feedback.ID, 0)
	assert.Equal(t, user.ID, feedback.UserID)
	assert.Equal(t, "fb_user", feedback.UserName)
	assert.Equal(t, "fb@example.com", feedback.UserEmail.String)
	assert.Equal(t, "Engineering", feedback.UserDepartment)
	assert.Equal(t, "Sales", feedback.TargetDepartment)
	assert.Equal(t, period.ID, feedback.PeriodID)
	assert.Equal(t, "Keep it up", feedback.AdditionalComment.String)

	// Answers come back in question position order regardless of input order
	require.Len(t, feedback.Answers, 2)
	assert.Equal(t, "responsiveness", feedback.Answers[0].QuestionID)
	assert.Equal(t, 5, feedback.Answers[0].Rating)
	assert.False(t, feedback.Answers[0].Comment.Valid)
	assert.Equal(t, "collaboration", feedback.Answers[1].QuestionID)
	assert.Equal(t, "Could be better", feedback.Answers[1].Comment.String)

	// The stored copy matches what was returned
	stored, err := env.feedback.GetFeedbackByID(ctx, feedback.ID)
	require.NoError(t, err)
	assert.Equal(t, feedback.ID, stored.ID)
	require.Len(t, stored.Answers, 2)
	assert.Equal(t, "responsiveness", stored.Answers[0].QuestionID)
}

func TestFeedbackService_SubmitFeedback_SubsetOfQuestions_Integration(t *testing.T) {
	env := setupPeriodTestEnv(t)
	defer env.db.Close()
	ctx := context.Background()

	user, err := env.users.CreateUser(ctx, "partial_user", "", "password123", "Engineering", false)
	require.NoError(t, err)

	period := env.createOpenPeriod(t, "Sales")

	feedback, err := env.feedback.SubmitFeedback(ctx, user, period.ID, []AnswerSubmission{
		{QuestionID: "collaboration", Rating: 2},
	}, "")
	require.NoError(t, err)

	require.Len(t, feedback.Answers, 1)
	assert.False(t, feedback.AdditionalComment.Valid)
}

func TestFeedbackService_SubmitFeedback_DoubleSubmitRejected_Integration(t *testing.T) {
	env := setupPeriodTestEnv(t)
	defer env.db.Close()
	ctx := context.Background()

	user, err := env.users.CreateUser(ctx, "eager_user", "", "password123", "Engineering", false)
	require.NoError(t, err)

	period := env.createOpenPeriod(t, "Sales")

	_, err = env.feedback.SubmitFeedback(ctx, user, period.ID, []AnswerSubmission{
		{QuestionID: "responsiveness", Rating: 4},
	}, "")
	require.NoError(t, err)

	_, err = env.feedback.SubmitFeedback(ctx, user, period.ID, []AnswerSubmission{
		{QuestionID: "responsiveness", Rating: 1},
	}, "")
	require.Error(t, err)
	assert.True(t, contextutils.IsError(err, contextutils.ErrAlreadySubmitted))

	// The first submission is untouched
	submitted, err := env.feedback.GetUserFeedback(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, submitted, 1)
	assert.Equal(t, 4, submitted[0].Answers[0].Rating)
}

func TestFeedbackService_HasUserSubmitted_Integration(t *testing.T) {
	env := setupPeriodTestEnv(t)
	defer env.db.Close()
	ctx := context.Background()

	user, err := env.users.CreateUser(ctx, "check_user", "", "password123", "Engineering", false)
	require.NoError(t, err)

	period := env.createOpenPeriod(t, "Sales")

	submitted, err := env.feedback.HasUserSubmitted(ctx, user.ID, period.ID)
	require.NoError(t, err)
	assert.False(t, submitted)

	_, err = env.feedback.SubmitFeedback(ctx, user, period.ID, []AnswerSubmission{
		{QuestionID: "responsiveness", Rating: 4},
	}, "")
	require.NoError(t, err)

	submitted, err = env.feedback.HasUserSubmitted(ctx, user.ID, period.ID)
	require.NoError(t, err)
	assert.True(t, submitted)
}

func TestFeedbackService_GetFeedbackByID_NotFound_Integration(t *testing.T) {
	env := setupPeriodTestEnv(t)
	defer env.db.Close()

	_, err := env.feedback.GetFeedbackByID(context.Background(), 999999)
	require.Error(t, err)
	assert.True(t, contextutils.IsError(err, contextutils.ErrRecordNotFound))
}

func TestFeedbackService_GetFeedbackPaginated_Integration(t *testing.T) {
	env := setupPeriodTestEnv(t)
	defer env.db.Close()
	ctx := context.Background()

	alice, err := env.users.CreateUser(ctx, "pag_alice", "", "password123", "Engineering", false)
	require.NoError(t, err)
	bob, err := env.users.CreateUser(ctx, "pag_bob", "", "password123", "Marketing", false)
	require.NoError(t, err)

	sales := env.createOpenPeriod(t, "Sales")
	marketing := env.createOpenPeriod(t, "Marketing")

	_, err = env.feedback.SubmitFeedback(ctx, alice, sales.ID, []AnswerSubmission{{QuestionID: "responsiveness", Rating: 4}}, "")
	require.NoError(t, err)
	_, err = env.feedback.SubmitFeedback(ctx, alice, marketing.ID, []AnswerSubmission{{QuestionID: "responsiveness", Rating: 2}}, "")
	require.NoError(t, err)
	_, err = env.feedback.SubmitFeedback(ctx, bob, sales.ID, []AnswerSubmission{{QuestionID: "responsiveness", Rating: 5}}, "")
	require.NoError(t, err)

	all, total, err := env.feedback.GetFeedbackPaginated(ctx, 1, 10, "", 0)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Len(t, all, 3)

	salesOnly, total, err := env.feedback.GetFeedbackPaginated(ctx, 1, 10, "Sales", 0)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Len(t, salesOnly, 2)

	byPeriod, total, err := env.feedback.GetFeedbackPaginated(ctx, 1, 10, "", marketing.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, byPeriod, 1)
	assert.Equal(t, "Marketing", byPeriod[0].TargetDepartment)

	firstPage, total, err := env.feedback.GetFeedbackPaginated(ctx, 1, 2, "", 0)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Len(t, firstPage, 2)
}

func TestFeedbackService_GetAllFeedbackWithAnswers_Integration(t *testing.T) {
	env := setupPeriodTestEnv(t)
	defer env.db.Close()
	ctx := context.Background()

	user, err := env.users.CreateUser(ctx, "snap_user", "", "password123", "Engineering", false)
	require.NoError(t, err)

	sales := env.createOpenPeriod(t, "Sales")
	marketing := env.createOpenPeriod(t, "Marketing")

	_, err = env.feedback.SubmitFeedback(ctx, user, sales.ID, []AnswerSubmission{{QuestionID: "responsiveness", Rating: 4}}, "")
	require.NoError(t, err)
	_, err = env.feedback.SubmitFeedback(ctx, user, marketing.ID, []AnswerSubmission{{QuestionID: "collaboration", Rating: 1}}, "")
	require.NoError(t, err)

	snapshot, err := env.feedback.GetAllFeedbackWithAnswers(ctx)
	require.NoError(t, err)
	require.Len(t, snapshot, 2)

	// Oldest first, every record carries its answers
	assert.Equal(t, "Sales", snapshot[0].TargetDepartment)
	require.Len(t, snapshot[0].Answers, 1)
	require.Len(t, snapshot[1].Answers, 1)
	assert.Equal(t, "collaboration", snapshot[1].Answers[0].QuestionID)
}

func TestFeedbackService_DeleteFeedback_Integration(t *testing.T) {
	env := setupPeriodTestEnv(t)
	defer env.db.Close()
	ctx := context.Background()

	user, err := env.users.CreateUser(ctx, "del_user", "", "password123", "Engineering", false)
	require.NoError(t, err)

	period := env.createOpenPeriod(t, "Sales")
	feedback, err := env.feedback.SubmitFeedback(ctx, user, period.ID, []AnswerSubmission{
		{QuestionID: "responsiveness", Rating: 4},
	}, "")
	require.NoError(t, err)

	require.NoError(t, env.feedback.DeleteFeedback(ctx, feedback.ID))

	_, err = env.feedback.GetFeedbackByID(ctx, feedback.ID)
	require.Error(t, err)
	assert.True(t, contextutils.IsError(err, contextutils.ErrRecordNotFound))

	// Answer rows are gone with the header
	var count int
	require.NoError(t, env.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM feedback_answers WHERE feedback_id = $1`, feedback.ID).Scan(&count))
	assert.Equal(t, 0, count)

	err = env.feedback.DeleteFeedback(ctx, feedback.ID)
	require.Error(t, err)
	assert.True(t, contextutils.IsError(err, contextutils.ErrRecordNotFound))
}
