package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"feedbackapp/internal/config"
	"feedbackapp/internal/models"
	"feedbackapp/internal/observability"
	contextutils "feedbackapp/internal/utils"
)

// TemplateServiceInterface defines the interface for question template operations
type TemplateServiceInterface interface {
	CreateTemplate(ctx context.Context, department, name string, questions models.QuestionList) (*models.QuestionTemplate, error)
	GetTemplateByID(ctx context.Context, id int) (*models.QuestionTemplate, error)
	GetAllTemplates(ctx context.Context, department string) ([]models.QuestionTemplate, error)
	GetTemplatesPaginated(ctx context.Context, page, pageSize int, department string) ([]models.QuestionTemplate, int, error)
	UpdateTemplate(ctx context.Context, id int, department, name string, questions models.QuestionList) (*models.QuestionTemplate, error)
	DeleteTemplate(ctx context.Context, id int) error
}

// TemplateService manages reusable per-department question sets. Templates
// only seed new periods; editing a template never changes an existing period.
type TemplateService struct {
	db     *sql.DB
	cfg    *config.Config
	logger *observability.Logger
}

const templateSelectFields = `id, department, name, questions, created_at, updated_at`

// NewTemplateServiceWithLogger creates a new TemplateService instance
func NewTemplateServiceWithLogger(db *sql.DB, cfg *config.Config, logger *observability.Logger) *TemplateService {
	if db == nil {
		panic("TemplateService requires a non-nil database connection")
	}
	if cfg == nil {
		panic("TemplateService requires a non-nil config")
	}
	return &TemplateService{
		db:     db,
		cfg:    cfg,
		logger: logger,
	}
}

// scanTemplate scans one template row, tolerating unparseable stored questions
func (s *TemplateService) scanTemplate(ctx context.Context, scan func(dest ...interface{}) error) (result0 *models.QuestionTemplate, err error) {
	var tmpl models.QuestionTemplate
	var rawQuestions []byte
	err = scan(&tmpl.ID, &tmpl.Department, &tmpl.Name, &rawQuestions, &tmpl.CreatedAt, &tmpl.UpdatedAt)
	if err != nil {
		return nil, err
	}

	tmpl.Questions, err = scanQuestions(rawQuestions)
	if err != nil {
		s.logger.Warn(ctx, "Stored template questions are unparseable, treating as empty", map[string]interface{}{
			"template_id": tmpl.ID,
			"error":       err.Error(),
		})
	}
	return &tmpl, nil
}

// CreateTemplate creates a question template after validating the department
// against the configured list and the questions against the storage schema
func (s *TemplateService) CreateTemplate(ctx context.Context, department, name string, questions models.QuestionList) (result0 *models.QuestionTemplate, err error) {
	ctx, span := observability.TraceTemplateFunction(ctx, "create_template",
		observability.AttributeDepartment(department),
	)
	defer observability.FinishSpan(span, &err)

	canonical, ok := s.cfg.NormalizeDepartment(department)
	if !ok {
		return nil, contextutils.WrapErrorf(contextutils.ErrUnknownDepartment, "department %q is not configured", department)
	}
	if strings.TrimSpace(name) == "" {
		return nil, contextutils.WrapErrorf(contextutils.ErrMissingRequired, "template name is required")
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
		INSERT INTO question_templates (department, name, questions, created_at, updated_at)
		VALUES ($1, $2, $3, NOW(), NOW())
		RETURNING id
	`, canonical, name, questionsJSON).Scan(&id)
	if err != nil {
		s.logger.Error(ctx, "Failed to create template", err, map[string]interface{}{
			"department": canonical,
			"name":       name,
		})
		return nil, contextutils.WrapError(err, "failed to create template")
	}

	s.logger.Info(ctx, "Template created", map[string]interface{}{
		"template_id": id,
		"department":  canonical,
		"questions":   len(questions),
	})
	return s.GetTemplateByID(ctx, id)
}

// GetTemplateByID retrieves a template by ID, returning ErrRecordNotFound when absent
func (s *TemplateService) GetTemplateByID(ctx context.Context, id int) (result0 *models.QuestionTemplate, err error) {
	ctx, span := observability.TraceTemplateFunction(ctx, "get_template_by_id",
		observability.AttributeTemplateID(id),
	)
	defer observability.FinishSpan(span, &err)

	row := s.db.QueryRowContext(ctx,
		`SELECT `+templateSelectFields+` FROM question_templates WHERE id = $1`, id)
	tmpl, err := s.scanTemplate(ctx, row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, contextutils.WrapErrorf(contextutils.ErrRecordNotFound, "template %d not found", id)
		}
		return nil, contextutils.WrapError(err, "failed to get template")
	}
	return tmpl, nil
}

// GetAllTemplates retrieves all templates, optionally filtered by department
func (s *TemplateService) GetAllTemplates(ctx context.Context, department string) (result0 []models.QuestionTemplate, err error) {
	ctx, span := observability.TraceTemplateFunction(ctx, "get_all_templates",
		observability.AttributeDepartment(department),
	)
	defer observability.FinishSpan(span, &err)

	query := `SELECT ` + templateSelectFields + ` FROM question_templates`
	args := []interface{}{}
	if department != "" {
		query += ` WHERE department = $1`
		args = append(args, department)
	}
	query += ` ORDER BY department, name`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		s.logger.Error(ctx, "Failed to get templates", err, map[string]interface{}{})
		return nil, contextutils.WrapError(err, "failed to get templates")
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			s.logger.Error(ctx, "Failed to close rows", closeErr, map[string]interface{}{})
		}
	}()

	var templates []models.QuestionTemplate
	for rows.Next() {
		tmpl, err := s.scanTemplate(ctx, rows.Scan)
		if err != nil {
			return nil, contextutils.WrapError(err, "failed to scan template row")
		}
		templates = append(templates, *tmpl)
	}
	if err := rows.Err(); err != nil {
		return nil, contextutils.WrapError(err, "error iterating template rows")
	}

	return templates, nil
}

// GetTemplatesPaginated retrieves a page of templates with an optional department filter
func (s *TemplateService) GetTemplatesPaginated(ctx context.Context, page, pageSize int, department string) (result0 []models.QuestionTemplate, result1 int, err error) {
	ctx, span := observability.TraceTemplateFunction(ctx, "get_templates_paginated",
		observability.AttributePage(page),
		observability.AttributePageSize(pageSize),
		observability.AttributeDepartment(department),
	)
	defer observability.FinishSpan(span, &err)

	whereClause := ""
	args := []interface{}{}
	argIndex := 1
	if department != "" {
		whereClause = fmt.Sprintf("WHERE department = $%d", argIndex)
		args = append(args, department)
		argIndex++
	}

	var total int
	err = s.db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT COUNT(*) FROM question_templates %s", whereClause), args...).Scan(&total)
	if err != nil {
		return nil, 0, contextutils.WrapError(err, "failed to count templates")
	}

	offset := (page - 1) * pageSize
	args = append(args, pageSize, offset)
	query := fmt.Sprintf(`
		SELECT `+templateSelectFields+`
		FROM question_templates
		%s
		ORDER BY department, name
		LIMIT $%d OFFSET $%d
	`, whereClause, argIndex, argIndex+1)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		s.logger.Error(ctx, "Failed to get paginated templates", err, map[string]interface{}{
			"page":      page,
			"page_size": pageSize,
		})
		return nil, 0, contextutils.WrapError(err, "failed to get paginated templates")
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			s.logger.Error(ctx, "Failed to close rows", closeErr, map[string]interface{}{})
		}
	}()

	var templates []models.QuestionTemplate
	for rows.Next() {
		tmpl, err := s.scanTemplate(ctx, rows.Scan)
		if err != nil {
			return nil, 0, contextutils.WrapError(err, "failed to scan template row")
		}
		templates = append(templates, *tmpl)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, contextutils.WrapError(err, "error iterating template rows")
	}

	return templates, total, nil
}

// UpdateTemplate replaces all fields of a template. Edits are full replace,
// mirroring period edits.
func (s *TemplateService) UpdateTemplate(ctx context.Context, id int, department, name string, questions models.QuestionList) (result0 *models.QuestionTemplate, err error) {
	ctx, span := observability.TraceTemplateFunction(ctx, "update_template",
		observability.AttributeTemplateID(id),
		observability.AttributeDepartment(department),
	)
	defer observability.FinishSpan(span, &err)

	canonical, ok := s.cfg.NormalizeDepartment(department)
	if !ok {
		return nil, contextutils.WrapErrorf(contextutils.ErrUnknownDepartment, "department %q is not configured", department)
	}
	if strings.TrimSpace(name) == "" {
		return nil, contextutils.WrapErrorf(contextutils.ErrMissingRequired, "template name is required")
	}
	if err := ValidateQuestionList(questions); err != nil {
		return nil, err
	}

	questionsJSON, err := questionsParam(questions)
	if err != nil {
		return nil, err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE question_templates
		SET department = $2, name = $3, questions = $4, updated_at = NOW()
		WHERE id = $1
	`, id, canonical, name, questionsJSON)
	if err != nil {
		s.logger.Error(ctx, "Failed to update template", err, map[string]interface{}{"template_id": id})
		return nil, contextutils.WrapError(err, "failed to update template")
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to get rows affected")
	}
	if rowsAffected == 0 {
		return nil, contextutils.WrapErrorf(contextutils.ErrRecordNotFound, "template %d not found", id)
	}

	s.logger.Info(ctx, "Template updated", map[string]interface{}{
		"template_id": id,
		"department":  canonical,
	})
	return s.GetTemplateByID(ctx, id)
}

// DeleteTemplate removes a template. Periods created from it are unaffected
// because they carry their own copy of the questions.
func (s *TemplateService) DeleteTemplate(ctx context.Context, id int) (err error) {
	ctx, span := observability.TraceTemplateFunction(ctx, "delete_template",
		observability.AttributeTemplateID(id),
	)
	defer observability.FinishSpan(span, &err)

	result, err := s.db.ExecContext(ctx, `DELETE FROM question_templates WHERE id = $1`, id)
	if err != nil {
		s.logger.Error(ctx, "Failed to delete template", err, map[string]interface{}{"template_id": id})
		return contextutils.WrapError(err, "failed to delete template")
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return contextutils.WrapError(err, "failed to get rows affected")
	}
	if rowsAffected == 0 {
		return contextutils.WrapErrorf(contextutils.ErrRecordNotFound, "template %d not found", id)
	}

	s.logger.Info(ctx, "Template deleted", map[string]interface{}{"template_id": id})
	return nil
}
