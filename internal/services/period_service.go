package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"feedbackapp/internal/config"
	"feedbackapp/internal/models"
	"feedbackapp/internal/observability"
	contextutils "feedbackapp/internal/utils"

	"github.com/lib/pq"
)

// PeriodServiceInterface defines the interface for feedback period operations
type PeriodServiceInterface interface {
	CreatePeriod(ctx context.Context, department string, startDate, endDate time.Time, questions models.QuestionList, templateID *int, active bool) (*models.FeedbackPeriod, error)
	GetPeriodByID(ctx context.Context, id int) (*models.FeedbackPeriod, error)
	GetPeriodsPaginated(ctx context.Context, page, pageSize int, department, active string) ([]models.FeedbackPeriod, int, error)
	GetActivePeriods(ctx context.Context) ([]models.FeedbackPeriod, error)
	GetAvailablePeriods(ctx context.Context, userID int, userDepartment string) ([]models.FeedbackPeriod, error)
	UpdatePeriod(ctx context.Context, id int, department string, startDate, endDate time.Time, questions models.QuestionList) (*models.FeedbackPeriod, error)
	SetPeriodActive(ctx context.Context, id int, active bool) (*models.FeedbackPeriod, error)
	DeletePeriod(ctx context.Context, id int) error
}

// PeriodService manages feedback collection windows. Periods copy their
// question list from a template at creation time, so the stored copy is
// authoritative for the period's whole life.
type PeriodService struct {
	db       *sql.DB
	cfg      *config.Config
	logger   *observability.Logger
	template TemplateServiceInterface
}

const periodSelectFields = `id, department, start_date, end_date, questions, active, created_at, updated_at`

// NewPeriodServiceWithLogger creates a new PeriodService instance
func NewPeriodServiceWithLogger(db *sql.DB, cfg *config.Config, templateService TemplateServiceInterface, logger *observability.Logger) *PeriodService {
	if db == nil {
		panic("PeriodService requires a non-nil database connection")
	}
	if cfg == nil {
		panic("PeriodService requires a non-nil config")
	}
	if templateService == nil {
		panic("PeriodService requires a non-nil template service")
	}
	return &PeriodService{
		db:       db,
		cfg:      cfg,
		logger:   logger,
		template: templateService,
	}
}

// scanPeriod scans one period row, tolerating unparseable stored questions
func (s *PeriodService) scanPeriod(ctx context.Context, scan func(dest ...interface{}) error) (result0 *models.FeedbackPeriod, err error) {
	var period models.FeedbackPeriod
	var rawQuestions []byte
	err = scan(&period.ID, &period.Department, &period.StartDate, &period.EndDate,
		&rawQuestions, &period.Active, &period.CreatedAt, &period.UpdatedAt)
	if err != nil {
		return nil, err
	}

	period.Questions, err = scanQuestions(rawQuestions)
	if err != nil {
		s.logger.Warn(ctx, "Stored period questions are unparseable, treating as empty", map[string]interface{}{
			"period_id": period.ID,
			"error":     err.Error(),
		})
	}
	return &period, nil
}

// CreatePeriod creates a feedback period. When templateID is set and no
// explicit questions are given, the template's questions are copied onto the
// period; later template edits never touch the copy.
func (s *PeriodService) CreatePeriod(ctx context.Context, department string, startDate, endDate time.Time, questions models.QuestionList, templateID *int, active bool) (result0 *models.FeedbackPeriod, err error) {
	ctx, span := observability.TracePeriodFunction(ctx, "create_period",
		observability.AttributeDepartment(department),
	)
	defer observability.FinishSpan(span, &err)

	canonical, ok := s.cfg.NormalizeDepartment(department)
	if !ok {
		return nil, contextutils.WrapErrorf(contextutils.ErrUnknownDepartment, "department %q is not configured", department)
	}
	if !endDate.After(startDate) {
		return nil, contextutils.WrapErrorf(contextutils.ErrInvalidInput, "end date must be after start date")
	}

	if len(questions) == 0 && templateID != nil {
		tmpl, err := s.template.GetTemplateByID(ctx, *templateID)
		if err != nil {
			return nil, contextutils.WrapErrorf(err, "failed to load template %d for period", *templateID)
		}
		questions = tmpl.Questions
	}
	if err := ValidateQuestionList(questions); err != nil {
		return nil, err
	}

	questionsJSON, err := questionsParam(questions)
	if err != nil {
		return nil, err
	}

	var id int
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO feedback_periods (department, start_date, end_date, questions, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
		RETURNING id
	`, canonical, startDate, endDate, questionsJSON, active).Scan(&id)
	if err != nil {
		s.logger.Error(ctx, "Failed to create period", err, map[string]interface{}{
			"department": canonical,
		})
		return nil, contextutils.WrapError(err, "failed to create period")
	}

	s.logger.Info(ctx, "Period created", map[string]interface{}{
		"period_id":  id,
		"department": canonical,
		"active":     active,
		"questions":  len(questions),
	})
	return s.GetPeriodByID(ctx, id)
}

// GetPeriodByID retrieves a period by ID, returning ErrPeriodNotFound when absent
func (s *PeriodService) GetPeriodByID(ctx context.Context, id int) (result0 *models.FeedbackPeriod, err error) {
	ctx, span := observability.TracePeriodFunction(ctx, "get_period_by_id",
		observability.AttributePeriodID(id),
	)
	defer observability.FinishSpan(span, &err)

	row := s.db.QueryRowContext(ctx,
		`SELECT `+periodSelectFields+` FROM feedback_periods WHERE id = $1`, id)
	period, err := s.scanPeriod(ctx, row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, contextutils.WrapErrorf(contextutils.ErrPeriodNotFound, "period %d not found", id)
		}
		return nil, contextutils.WrapError(err, "failed to get period")
	}
	return period, nil
}

// GetPeriodsPaginated retrieves a page of periods with optional filters.
// active accepts "true" or "false"; anything else means no filter.
func (s *PeriodService) GetPeriodsPaginated(ctx context.Context, page, pageSize int, department, active string) (result0 []models.FeedbackPeriod, result1 int, err error) {
	ctx, span := observability.TracePeriodFunction(ctx, "get_periods_paginated",
		observability.AttributePage(page),
		observability.AttributePageSize(pageSize),
		observability.AttributeDepartment(department),
	)
	defer observability.FinishSpan(span, &err)

	whereConditions := []string{}
	args := []interface{}{}
	argIndex := 1

	if department != "" {
		whereConditions = append(whereConditions, fmt.Sprintf("department = $%d", argIndex))
		args = append(args, department)
		argIndex++
	}
	switch active {
	case "true":
		whereConditions = append(whereConditions, "active = true")
	case "false":
		whereConditions = append(whereConditions, "active = false")
	}

	whereClause := ""
	if len(whereConditions) > 0 {
		whereClause = "WHERE " + strings.Join(whereConditions, " AND ")
	}

	var total int
	err = s.db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT COUNT(*) FROM feedback_periods %s", whereClause), args...).Scan(&total)
	if err != nil {
		return nil, 0, contextutils.WrapError(err, "failed to count periods")
	}

	offset := (page - 1) * pageSize
	args = append(args, pageSize, offset)
	query := fmt.Sprintf(`
		SELECT `+periodSelectFields+`
		FROM feedback_periods
		%s
		ORDER BY end_date DESC, id DESC
		LIMIT $%d OFFSET $%d
	`, whereClause, argIndex, argIndex+1)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		s.logger.Error(ctx, "Failed to get paginated periods", err, map[string]interface{}{
			"page":      page,
			"page_size": pageSize,
		})
		return nil, 0, contextutils.WrapError(err, "failed to get paginated periods")
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			s.logger.Error(ctx, "Failed to close rows", closeErr, map[string]interface{}{})
		}
	}()

	var periods []models.FeedbackPeriod
	for rows.Next() {
		period, err := s.scanPeriod(ctx, rows.Scan)
		if err != nil {
			return nil, 0, contextutils.WrapError(err, "failed to scan period row")
		}
		periods = append(periods, *period)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, contextutils.WrapError(err, "error iterating period rows")
	}

	return periods, total, nil
}

// GetActivePeriods retrieves all active periods whose window has not ended,
// ordered by end date ascending. The worker and the availability read both
// start from this set.
func (s *PeriodService) GetActivePeriods(ctx context.Context) (result0 []models.FeedbackPeriod, err error) {
	ctx, span := observability.TracePeriodFunction(ctx, "get_active_periods")
	defer observability.FinishSpan(span, &err)

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+periodSelectFields+`
		FROM feedback_periods
		WHERE active = true AND end_date > NOW()
		ORDER BY end_date ASC, id ASC
	`)
	if err != nil {
		s.logger.Error(ctx, "Failed to get active periods", err, map[string]interface{}{})
		return nil, contextutils.WrapError(err, "failed to get active periods")
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			s.logger.Error(ctx, "Failed to close rows", closeErr, map[string]interface{}{})
		}
	}()

	var periods []models.FeedbackPeriod
	for rows.Next() {
		period, err := s.scanPeriod(ctx, rows.Scan)
		if err != nil {
			return nil, contextutils.WrapError(err, "failed to scan period row")
		}
		periods = append(periods, *period)
	}
	if err := rows.Err(); err != nil {
		return nil, contextutils.WrapError(err, "error iterating period rows")
	}

	return periods, nil
}

// GetAvailablePeriods returns the active, unexpired periods the user may
// still submit to: not their own department, and not a department they have
// already covered through any currently active period.
func (s *PeriodService) GetAvailablePeriods(ctx context.Context, userID int, userDepartment string) (result0 []models.FeedbackPeriod, err error) {
	ctx, span := observability.TracePeriodFunction(ctx, "get_available_periods",
		observability.AttributeUserID(userID),
		observability.AttributeDepartment(userDepartment),
	)
	defer observability.FinishSpan(span, &err)

	periods, err := s.GetActivePeriods(ctx)
	if err != nil {
		return nil, err
	}

	submitted, err := s.getSubmittedDepartments(ctx, userID)
	if err != nil {
		return nil, err
	}

	return FilterAvailablePeriods(periods, userDepartment, submitted), nil
}

// getSubmittedDepartments collects the target departments the user has
// answered within the currently active, unexpired windows. Departments from
// expired or deactivated periods drop out, so recurring feedback across
// successive periods stays possible.
func (s *PeriodService) getSubmittedDepartments(ctx context.Context, userID int) (result0 map[string]bool, err error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT f.target_department
		FROM feedback f
		JOIN feedback_periods p ON p.id = f.period_id
		WHERE f.user_id = $1 AND p.active = true AND p.end_date > NOW()
	`, userID)
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to get submitted departments")
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			s.logger.Error(ctx, "Failed to close rows", closeErr, map[string]interface{}{})
		}
	}()

	submitted := make(map[string]bool)
	for rows.Next() {
		var department string
		if err := rows.Scan(&department); err != nil {
			return nil, contextutils.WrapError(err, "failed to scan submitted department")
		}
		submitted[department] = true
	}
	if err := rows.Err(); err != nil {
		return nil, contextutils.WrapError(err, "error iterating submitted departments")
	}

	return submitted, nil
}

// UpdatePeriod replaces all fields except the active flag, which has its own
// toggle. Full replace keeps edit semantics predictable.
func (s *PeriodService) UpdatePeriod(ctx context.Context, id int, department string, startDate, endDate time.Time, questions models.QuestionList) (result0 *models.FeedbackPeriod, err error) {
	ctx, span := observability.TracePeriodFunction(ctx, "update_period",
		observability.AttributePeriodID(id),
		observability.AttributeDepartment(department),
	)
	defer observability.FinishSpan(span, &err)

	canonical, ok := s.cfg.NormalizeDepartment(department)
	if !ok {
		return nil, contextutils.WrapErrorf(contextutils.ErrUnknownDepartment, "department %q is not configured", department)
	}
	if !endDate.After(startDate) {
		return nil, contextutils.WrapErrorf(contextutils.ErrInvalidInput, "end date must be after start date")
	}
	if err := ValidateQuestionList(questions); err != nil {
		return nil, err
	}

	questionsJSON, err := questionsParam(questions)
	if err != nil {
		return nil, err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE feedback_periods
		SET department = $2, start_date = $3, end_date = $4, questions = $5, updated_at = NOW()
		WHERE id = $1
	`, id, canonical, startDate, endDate, questionsJSON)
	if err != nil {
		s.logger.Error(ctx, "Failed to update period", err, map[string]interface{}{"period_id": id})
		return nil, contextutils.WrapError(err, "failed to update period")
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to get rows affected")
	}
	if rowsAffected == 0 {
		return nil, contextutils.WrapErrorf(contextutils.ErrPeriodNotFound, "period %d not found", id)
	}

	s.logger.Info(ctx, "Period updated", map[string]interface{}{
		"period_id":  id,
		"department": canonical,
	})
	return s.GetPeriodByID(ctx, id)
}

// SetPeriodActive toggles the active flag, the only partial update on periods
func (s *PeriodService) SetPeriodActive(ctx context.Context, id int, active bool) (result0 *models.FeedbackPeriod, err error) {
	ctx, span := observability.TracePeriodFunction(ctx, "set_period_active",
		observability.AttributePeriodID(id),
	)
	defer observability.FinishSpan(span, &err)

	result, err := s.db.ExecContext(ctx, `
		UPDATE feedback_periods SET active = $2, updated_at = NOW() WHERE id = $1
	`, id, active)
	if err != nil {
		s.logger.Error(ctx, "Failed to toggle period", err, map[string]interface{}{"period_id": id})
		return nil, contextutils.WrapError(err, "failed to toggle period")
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to get rows affected")
	}
	if rowsAffected == 0 {
		return nil, contextutils.WrapErrorf(contextutils.ErrPeriodNotFound, "period %d not found", id)
	}

	s.logger.Info(ctx, "Period active flag changed", map[string]interface{}{
		"period_id": id,
		"active":    active,
	})
	return s.GetPeriodByID(ctx, id)
}

// DeletePeriod removes a period. Periods with submitted feedback cannot be
// deleted; the feedback rows reference them and submissions are append-only.
func (s *PeriodService) DeletePeriod(ctx context.Context, id int) (err error) {
	ctx, span := observability.TracePeriodFunction(ctx, "delete_period",
		observability.AttributePeriodID(id),
	)
	defer observability.FinishSpan(span, &err)

	if _, err = s.db.ExecContext(ctx, `DELETE FROM sent_notifications WHERE period_id = $1`, id); err != nil {
		return contextutils.WrapError(err, "failed to delete period notifications")
	}

	result, err := s.db.ExecContext(ctx, `DELETE FROM feedback_periods WHERE id = $1`, id)
	if err != nil {
		if isForeignKeyError(err) {
			return contextutils.WrapErrorf(contextutils.ErrConflict, "period %d has submitted feedback and cannot be deleted", id)
		}
		s.logger.Error(ctx, "Failed to delete period", err, map[string]interface{}{"period_id": id})
		return contextutils.WrapError(err, "failed to delete period")
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return contextutils.WrapError(err, "failed to get rows affected")
	}
	if rowsAffected == 0 {
		return contextutils.WrapErrorf(contextutils.ErrPeriodNotFound, "period %d not found", id)
	}

	s.logger.Info(ctx, "Period deleted", map[string]interface{}{"period_id": id})
	return nil
}

// isForeignKeyError checks if the error is a foreign key constraint violation
func isForeignKeyError(err error) bool {
	if err == nil {
		return false
	}

	// PostgreSQL error code 23503 is for foreign key violations
	if pqErr, ok := err.(*pq.Error); ok {
		if pqErr.Code == "23503" {
			return true
		}
	}

	return false
}
