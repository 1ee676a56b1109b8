//go:build integration

package services

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"feedbackapp/internal/config"
	"feedbackapp/internal/models"
	contextutils "feedbackapp/internal/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type periodTestEnv struct {
	db       *sql.DB
	cfg      *config.Config
	users    *UserService
	template *TemplateService
	periods  *PeriodService
	feedback *FeedbackService
}

func setupPeriodTestEnv(t *testing.T) *periodTestEnv {
	db := SharedTestDBSetup(t)
	cfg := testConfig()
	logger := testLogger()
	templateService := NewTemplateServiceWithLogger(db, cfg, logger)
	periodService := NewPeriodServiceWithLogger(db, cfg, templateService, logger)
	return &periodTestEnv{
		db:       db,
		cfg:      cfg,
		users:    NewUserServiceWithLogger(db, cfg, logger),
		template: templateService,
		periods:  periodService,
		feedback: NewFeedbackServiceWithLogger(db, cfg, periodService, logger),
	}
}

func (e *periodTestEnv) createOpenPeriod(t *testing.T, department string) *models.FeedbackPeriod {
	now := time.Now()
	period, err := e.periods.CreatePeriod(context.Background(), department,
		now.Add(-time.Hour), now.Add(14*24*time.Hour), defaultQuestions(), nil, true)
	require.NoError(t, err)
	return period
}

func TestPeriodService_CreatePeriod_Integration(t *testing.T) {
	env := setupPeriodTestEnv(t)
	defer env.db.Close()
	ctx := context.Background()

	now := time.Now()
	period, err := env.periods.CreatePeriod(ctx, "engineering", now, now.Add(7*24*time.Hour), defaultQuestions(), nil, true)
	require.NoError(t, err)

	assert.Greater(t, period.ID, 0)
	assert.Equal(t, "Engineering", period.Department)
	assert.True(t, period.Active)
	require.Len(t, period.Questions, 2)
	assert.WithinDuration(t, now, period.StartDate, 2*time.Second)
}

func TestPeriodService_CreatePeriod_FromTemplate_Integration(t *testing.T) {
	env := setupPeriodTestEnv(t)
	defer env.db.Close()
	ctx := context.Background()

	tmpl, err := env.template.CreateTemplate(ctx, "Sales", "Sales defaults", defaultQuestions())
	require.NoError(t, err)

	now := time.Now()
	period, err := env.periods.CreatePeriod(ctx, "Sales", now, now.Add(7*24*time.Hour), nil, &tmpl.ID, false)
	require.NoError(t, err)

	require.Len(t, period.Questions, 2)
	assert.Equal(t, tmpl.Questions, period.Questions)
	assert.False(t, period.Active)

	// Editing the template afterwards never touches the period's copy
	_, err = env.template.UpdateTemplate(ctx, tmpl.ID, "Sales", "Sales defaults", models.QuestionList{
		{ID: "only_one", Text: "Single question now", Type: "rating"},
	})
	require.NoError(t, err)

	reloaded, err := env.periods.GetPeriodByID(ctx, period.ID)
	require.NoError(t, err)
	assert.Len(t, reloaded.Questions, 2)
}

func TestPeriodService_CreatePeriod_ExplicitQuestionsWinOverTemplate_Integration(t *testing.T) {
	env := setupPeriodTestEnv(t)
	defer env.db.Close()
	ctx := context.Background()

	tmpl, err := env.template.CreateTemplate(ctx, "Sales", "Unused", defaultQuestions())
	require.NoError(t, err)

	explicit := models.QuestionList{{ID: "explicit", Text: "Explicit question", Type: "rating"}}
	now := time.Now()
	period, err := env.periods.CreatePeriod(ctx, "Sales", now, now.Add(24*time.Hour), explicit, &tmpl.ID, true)
	require.NoError(t, err)

	require.Len(t, period.Questions, 1)
	assert.Equal(t, "explicit", period.Questions[0].ID)
}

func TestPeriodService_CreatePeriod_Validation_Integration(t *testing.T) {
	env := setupPeriodTestEnv(t)
	defer env.db.Close()
	ctx := context.Background()
	now := time.Now()

	_, err := env.periods.CreatePeriod(ctx, "Astrology", now, now.Add(time.Hour), defaultQuestions(), nil, true)
	require.Error(t, err)
	assert.True(t, contextutils.IsError(err, contextutils.ErrUnknownDepartment))

	_, err = env.periods.CreatePeriod(ctx, "Engineering", now, now.Add(-time.Hour), defaultQuestions(), nil, true)
	require.Error(t, err)
	assert.True(t, contextutils.IsError(err, contextutils.ErrInvalidInput))

	_, err = env.periods.CreatePeriod(ctx, "Engineering", now, now, defaultQuestions(), nil, true)
	require.Error(t, err)
	assert.True(t, contextutils.IsError(err, contextutils.ErrInvalidInput))

	_, err = env.periods.CreatePeriod(ctx, "Engineering", now, now.Add(time.Hour), nil, nil, true)
	require.Error(t, err)
	assert.True(t, contextutils.IsError(err, contextutils.ErrValidationFailed))

	missingTemplate := 999999
	_, err = env.periods.CreatePeriod(ctx, "Engineering", now, now.Add(time.Hour), nil, &missingTemplate, true)
	require.Error(t, err)
	assert.True(t, contextutils.IsError(err, contextutils.ErrRecordNotFound))
}

func TestPeriodService_GetPeriodsPaginated_Integration(t *testing.T) {
	env := setupPeriodTestEnv(t)
	defer env.db.Close()
	ctx := context.Background()
	now := time.Now()

	_, err := env.periods.CreatePeriod(ctx, "Engineering", now, now.Add(24*time.Hour), defaultQuestions(), nil, true)
	require.NoError(t, err)
	_, err = env.periods.CreatePeriod(ctx, "Sales", now, now.Add(48*time.Hour), defaultQuestions(), nil, false)
	require.NoError(t, err)
	_, err = env.periods.CreatePeriod(ctx, "Engineering", now, now.Add(72*time.Hour), defaultQuestions(), nil, true)
	require.NoError(t, err)

	all, total, err := env.periods.GetPeriodsPaginated(ctx, 1, 10, "", "")
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, all, 3)
	// Latest end date first
	assert.True(t, all[0].EndDate.After(all[1].EndDate))

	engineering, total, err := env.periods.GetPeriodsPaginated(ctx, 1, 10, "Engineering", "")
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Len(t, engineering, 2)

	inactive, total, err := env.periods.GetPeriodsPaginated(ctx, 1, 10, "", "false")
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, inactive, 1)
	assert.Equal(t, "Sales", inactive[0].Department)
}

func TestPeriodService_GetActivePeriods_Integration(t *testing.T) {
	env := setupPeriodTestEnv(t)
	defer env.db.Close()
	ctx := context.Background()
	now := time.Now()

	// Active and open
	open, err := env.periods.CreatePeriod(ctx, "Engineering", now.Add(-time.Hour), now.Add(24*time.Hour), defaultQuestions(), nil, true)
	require.NoError(t, err)
	// Inactive
	_, err = env.periods.CreatePeriod(ctx, "Sales", now.Add(-time.Hour), now.Add(24*time.Hour), defaultQuestions(), nil, false)
	require.NoError(t, err)
	// Active but already over
	_, err = env.periods.CreatePeriod(ctx, "Marketing", now.Add(-48*time.Hour), now.Add(-time.Hour), defaultQuestions(), nil, true)
	require.NoError(t, err)

	active, err := env.periods.GetActivePeriods(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, open.ID, active[0].ID)
}

func TestPeriodService_GetAvailablePeriods_Integration(t *testing.T) {
	env := setupPeriodTestEnv(t)
	defer env.db.Close()
	ctx := context.Background()

	user, err := env.users.CreateUser(ctx, "avail_user", "", "password123", "Engineering", false)
	require.NoError(t, err)

	own := env.createOpenPeriod(t, "Engineering")
	sales := env.createOpenPeriod(t, "Sales")
	marketing := env.createOpenPeriod(t, "Marketing")
	_ = own

	available, err := env.periods.GetAvailablePeriods(ctx, user.ID, user.Department)
	require.NoError(t, err)
	require.Len(t, available, 2)

	// Submit for Sales; it drops out, Marketing stays
	_, err = env.feedback.SubmitFeedback(ctx, user, sales.ID, []AnswerSubmission{
		{QuestionID: "responsiveness", Rating: 4},
	}, "")
	require.NoError(t, err)

	available, err = env.periods.GetAvailablePeriods(ctx, user.ID, user.Department)
	require.NoError(t, err)
	require.Len(t, available, 1)
	assert.Equal(t, marketing.ID, available[0].ID)
}

func TestPeriodService_AvailabilityReturnsAfterPeriodDeactivated_Integration(t *testing.T) {
	env := setupPeriodTestEnv(t)
	defer env.db.Close()
	ctx := context.Background()

	user, err := env.users.CreateUser(ctx, "recurring_user", "", "password123", "Engineering", false)
	require.NoError(t, err)

	first := env.createOpenPeriod(t, "Sales")

	_, err = env.feedback.SubmitFeedback(ctx, user, first.ID, []AnswerSubmission{
		{QuestionID: "responsiveness", Rating: 3},
	}, "")
	require.NoError(t, err)

	available, err := env.periods.GetAvailablePeriods(ctx, user.ID, user.Department)
	require.NoError(t, err)
	assert.Empty(t, available)

	// Close the first window and open a new one: the old submission no
	// longer blocks Sales
	_, err = env.periods.SetPeriodActive(ctx, first.ID, false)
	require.NoError(t, err)

	second := env.createOpenPeriod(t, "Sales")

	available, err = env.periods.GetAvailablePeriods(ctx, user.ID, user.Department)
	require.NoError(t, err)
	require.Len(t, available, 1)
	assert.Equal(t, second.ID, available[0].ID)
}

func TestPeriodService_UpdatePeriod_Integration(t *testing.T) {
	env := setupPeriodTestEnv(t)
	defer env.db.Close()
	ctx := context.Background()

	period := env.createOpenPeriod(t, "Engineering")

	newStart := time.Now().Add(time.Hour)
	newEnd := newStart.Add(30 * 24 * time.Hour)
	newQuestions := models.QuestionList{{ID: "revised", Text: "Revised question", Type: "rating"}}

	updated, err := env.periods.UpdatePeriod(ctx, period.ID, "marketing", newStart, newEnd, newQuestions)
	require.NoError(t, err)

	assert.Equal(t, "Marketing", updated.Department)
	require.Len(t, updated.Questions, 1)
	assert.Equal(t, "revised", updated.Questions[0].ID)
	// The active flag is untouched by a full update
	assert.True(t, updated.Active)

	_, err = env.periods.UpdatePeriod(ctx, 999999, "Engineering", newStart, newEnd, newQuestions)
	require.Error(t, err)
	assert.True(t, contextutils.IsError(err, contextutils.ErrPeriodNotFound))
}

func TestPeriodService_SetPeriodActive_Integration(t *testing.T) {
	env := setupPeriodTestEnv(t)
	defer env.db.Close()
	ctx := context.Background()

	period := env.createOpenPeriod(t, "Engineering")

	deactivated, err := env.periods.SetPeriodActive(ctx, period.ID, false)
	require.NoError(t, err)
	assert.False(t, deactivated.Active)

	reactivated, err := env.periods.SetPeriodActive(ctx, period.ID, true)
	require.NoError(t, err)
	assert.True(t, reactivated.Active)

	_, err = env.periods.SetPeriodActive(ctx, 999999, true)
	require.Error(t, err)
	assert.True(t, contextutils.IsError(err, contextutils.ErrPeriodNotFound))
}

func TestPeriodService_DeletePeriod_Integration(t *testing.T) {
	env := setupPeriodTestEnv(t)
	defer env.db.Close()
	ctx := context.Background()

	period := env.createOpenPeriod(t, "Engineering")

	require.NoError(t, env.periods.DeletePeriod(ctx, period.ID))

	_, err := env.periods.GetPeriodByID(ctx, period.ID)
	require.Error(t, err)
	assert.True(t, contextutils.IsError(err, contextutils.ErrPeriodNotFound))

	err = env.periods.DeletePeriod(ctx, period.ID)
	require.Error(t, err)
	assert.True(t, contextutils.IsError(err, contextutils.ErrPeriodNotFound))
}

func TestPeriodService_DeletePeriod_WithFeedbackRefused_Integration(t *testing.T) {
	env := setupPeriodTestEnv(t)
	defer env.db.Close()
	ctx := context.Background()

	user, err := env.users.CreateUser(ctx, "blocking_user", "", "password123", "Engineering", false)
	require.NoError(t, err)

	period := env.createOpenPeriod(t, "Sales")
	_, err = env.feedback.SubmitFeedback(ctx, user, period.ID, []AnswerSubmission{
		{QuestionID: "responsiveness", Rating: 5},
	}, "")
	require.NoError(t, err)

	err = env.periods.DeletePeriod(ctx, period.ID)
	require.Error(t, err)
	assert.True(t, contextutils.IsError(err, contextutils.ErrConflict))

	// The period survives the refused delete
	_, err = env.periods.GetPeriodByID(ctx, period.ID)
	require.NoError(t, err)
}
