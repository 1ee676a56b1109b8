package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"feedbackapp/internal/config"
	"feedbackapp/internal/models"
	"feedbackapp/internal/observability"
	contextutils "feedbackapp/internal/utils"
)

// AnswerSubmission is one rated question in an incoming submission
type AnswerSubmission struct {
	QuestionID string
	Rating     int
	Comment    string
}

// FeedbackServiceInterface defines the interface for feedback operations
type FeedbackServiceInterface interface {
	SubmitFeedback(ctx context.Context, user *models.User, periodID int, answers []AnswerSubmission, additionalComment string) (*models.Feedback, error)
	GetFeedbackByID(ctx context.Context, id int) (*models.Feedback, error)
	GetUserFeedback(ctx context.Context, userID int) ([]models.Feedback, error)
	GetFeedbackPaginated(ctx context.Context, page, pageSize int, targetDepartment string, periodID int) ([]models.Feedback, int, error)
	GetAllFeedbackWithAnswers(ctx context.Context) ([]models.Feedback, error)
	HasUserSubmitted(ctx context.Context, userID, periodID int) (bool, error)
	DeleteFeedback(ctx context.Context, id int) error
}

// FeedbackService handles feedback submissions. Submissions are append-only:
// the service inserts them and deletes them on admin request but never
// updates a stored row.
type FeedbackService struct {
	db     *sql.DB
	cfg    *config.Config
	logger *observability.Logger
	period PeriodServiceInterface

	// timeNow is the submission-window clock, overridable in tests
	timeNow func() time.Time
}

const feedbackSelectFields = `id, user_id, user_name, user_email, user_department, target_department, period_id, additional_comment, created_at`

// NewFeedbackServiceWithLogger creates a new FeedbackService instance
func NewFeedbackServiceWithLogger(db *sql.DB, cfg *config.Config, periodService PeriodServiceInterface, logger *observability.Logger) *FeedbackService {
	if db == nil {
		panic("FeedbackService requires a non-nil database connection")
	}
	if cfg == nil {
		panic("FeedbackService requires a non-nil config")
	}
	if periodService == nil {
		panic("FeedbackService requires a non-nil period service")
	}
	return &FeedbackService{
		db:      db,
		cfg:     cfg,
		logger:  logger,
		period:  periodService,
		timeNow: time.Now,
	}
}

// SubmitFeedback validates and stores one submission. The header and all
// answer rows are written in a single transaction; the unique constraint on
// (user_id, period_id) turns a concurrent double submit into ErrAlreadySubmitted.
func (s *FeedbackService) SubmitFeedback(ctx context.Context, user *models.User, periodID int, answers []AnswerSubmission, additionalComment string) (result0 *models.Feedback, err error) {
	ctx, span := observability.TraceFeedbackFunction(ctx, "submit_feedback",
		observability.AttributeUserID(user.ID),
		observability.AttributePeriodID(periodID),
	)
	defer observability.FinishSpan(span, &err)

	period, err := s.period.GetPeriodByID(ctx, periodID)
	if err != nil {
		return nil, err
	}

	now := s.timeNow()
	if !period.IsOpenAt(now) {
		return nil, contextutils.WrapErrorf(contextutils.ErrPeriodClosed, "period %d is not open for submissions", periodID)
	}
	if strings.EqualFold(period.Department, user.Department) {
		return nil, contextutils.ErrOwnDepartment
	}
	if len(answers) == 0 {
		return nil, contextutils.WrapErrorf(contextutils.ErrMissingRequired, "at least one answer is required")
	}

	// Question ids must come from the period's own copy of the questions
	type questionRef struct {
		text     string
		position int
	}
	questionsByID := make(map[string]questionRef, len(period.Questions))
	for i, q := range period.Questions {
		questionsByID[q.ID] = questionRef{text: q.Text, position: i}
	}

	answered := make(map[string]bool, len(answers))
	rows := make([]models.FeedbackAnswer, 0, len(answers))
	for _, answer := range answers {
		ref, ok := questionsByID[answer.QuestionID]
		if !ok {
			return nil, contextutils.WrapErrorf(contextutils.ErrQuestionMismatch, "question %q is not part of period %d", answer.QuestionID, periodID)
		}
		if answered[answer.QuestionID] {
			return nil, contextutils.WrapErrorf(contextutils.ErrInvalidInput, "question %q answered more than once", answer.QuestionID)
		}
		answered[answer.QuestionID] = true
		if answer.Rating < 1 || answer.Rating > 5 {
			return nil, contextutils.WrapErrorf(contextutils.ErrInvalidRating, "rating %d for question %q is outside 1-5", answer.Rating, answer.QuestionID)
		}
		rows = append(rows, models.FeedbackAnswer{
			QuestionID:   answer.QuestionID,
			QuestionText: ref.text,
			Rating:       answer.Rating,
			Comment:      toNullString(answer.Comment),
			Position:     ref.position,
		})
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && rbErr != sql.ErrTxDone {
				s.logger.Error(ctx, "Failed to rollback transaction", rbErr, map[string]interface{}{
					"user_id":   user.ID,
					"period_id": periodID,
				})
			}
		}
	}()

	feedback := &models.Feedback{
		UserID:            user.ID,
		UserName:          user.Username,
		UserEmail:         user.Email,
		UserDepartment:    user.Department,
		TargetDepartment:  period.Department,
		PeriodID:          periodID,
		AdditionalComment: toNullString(additionalComment),
	}

	err = tx.QueryRowContext(ctx, `
		INSERT INTO feedback (user_id, user_name, user_email, user_department, target_department, period_id, additional_comment, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		RETURNING id, created_at
	`, feedback.UserID, feedback.UserName, feedback.UserEmail, feedback.UserDepartment,
		feedback.TargetDepartment, feedback.PeriodID, feedback.AdditionalComment,
	).Scan(&feedback.ID, &feedback.CreatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return nil, contextutils.WrapErrorf(contextutils.ErrAlreadySubmitted, "user %d already submitted for period %d", user.ID, periodID)
		}
		s.logger.Error(ctx, "Failed to insert feedback header", err, map[string]interface{}{
			"user_id":   user.ID,
			"period_id": periodID,
		})
		return nil, contextutils.WrapError(err, "failed to insert feedback")
	}

	for i := range rows {
		rows[i].FeedbackID = feedback.ID
		err = tx.QueryRowContext(ctx, `
			INSERT INTO feedback_answers (feedback_id, question_id, question_text, rating, comment, position)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING id
		`, rows[i].FeedbackID, rows[i].QuestionID, rows[i].QuestionText,
			rows[i].Rating, rows[i].Comment, rows[i].Position,
		).Scan(&rows[i].ID)
		if err != nil {
			s.logger.Error(ctx, "Failed to insert feedback answer", err, map[string]interface{}{
				"feedback_id": feedback.ID,
				"question_id": rows[i].QuestionID,
			})
			return nil, contextutils.WrapError(err, "failed to insert feedback answer")
		}
	}

	if err = tx.Commit(); err != nil {
		return nil, contextutils.WrapError(err, "failed to commit feedback transaction")
	}

	feedback.Answers = rows
	s.logger.Info(ctx, "Feedback submitted", map[string]interface{}{
		"feedback_id":       feedback.ID,
		"user_id":           user.ID,
		"period_id":         periodID,
		"target_department": feedback.TargetDepartment,
		"answers":           len(rows),
	})
	return feedback, nil
}

// GetFeedbackByID retrieves one submission with its answers
func (s *FeedbackService) GetFeedbackByID(ctx context.Context, id int) (result0 *models.Feedback, err error) {
	ctx, span := observability.TraceFeedbackFunction(ctx, "get_feedback_by_id",
		observability.AttributeFeedbackID(id),
	)
	defer observability.FinishSpan(span, &err)

	row := s.db.QueryRowContext(ctx,
		`SELECT `+feedbackSelectFields+` FROM feedback WHERE id = $1`, id)
	feedback, err := scanFeedback(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, contextutils.WrapErrorf(contextutils.ErrRecordNotFound, "feedback %d not found", id)
		}
		return nil, contextutils.WrapError(err, "failed to get feedback")
	}

	feedbacks := []models.Feedback{*feedback}
	if err := s.loadAnswers(ctx, feedbacks); err != nil {
		return nil, err
	}
	return &feedbacks[0], nil
}

// GetUserFeedback retrieves the user's own submissions, newest first
func (s *FeedbackService) GetUserFeedback(ctx context.Context, userID int) (result0 []models.Feedback, err error) {
	ctx, span := observability.TraceFeedbackFunction(ctx, "get_user_feedback",
		observability.AttributeUserID(userID),
	)
	defer observability.FinishSpan(span, &err)

	return s.queryFeedback(ctx,
		`SELECT `+feedbackSelectFields+` FROM feedback WHERE user_id = $1 ORDER BY created_at DESC, id DESC`,
		userID)
}

// GetFeedbackPaginated retrieves a page of submissions with optional filters.
// periodID 0 means no period filter.
func (s *FeedbackService) GetFeedbackPaginated(ctx context.Context, page, pageSize int, targetDepartment string, periodID int) (result0 []models.Feedback, result1 int, err error) {
	ctx, span := observability.TraceFeedbackFunction(ctx, "get_feedback_paginated",
		observability.AttributePage(page),
		observability.AttributePageSize(pageSize),
		observability.AttributeDepartment(targetDepartment),
	)
	defer observability.FinishSpan(span, &err)

	whereConditions := []string{}
	args := []interface{}{}
	argIndex := 1

	if targetDepartment != "" {
		whereConditions = append(whereConditions, fmt.Sprintf("target_department = $%d", argIndex))
		args = append(args, targetDepartment)
		argIndex++
	}
	if periodID > 0 {
		whereConditions = append(whereConditions, fmt.Sprintf("period_id = $%d", argIndex))
		args = append(args, periodID)
		argIndex++
	}

	whereClause := ""
	if len(whereConditions) > 0 {
		whereClause = "WHERE " + strings.Join(whereConditions, " AND ")
	}

	var total int
	err = s.db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT COUNT(*) FROM feedback %s", whereClause), args...).Scan(&total)
	if err != nil {
		return nil, 0, contextutils.WrapError(err, "failed to count feedback")
	}

	offset := (page - 1) * pageSize
	args = append(args, pageSize, offset)
	query := fmt.Sprintf(`
		SELECT `+feedbackSelectFields+`
		FROM feedback
		%s
		ORDER BY created_at DESC, id DESC
		LIMIT $%d OFFSET $%d
	`, whereClause, argIndex, argIndex+1)

	feedbacks, err := s.queryFeedback(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	return feedbacks, total, nil
}

// GetAllFeedbackWithAnswers reads the full submission snapshot that the
// statistics aggregation runs over
func (s *FeedbackService) GetAllFeedbackWithAnswers(ctx context.Context) (result0 []models.Feedback, err error) {
	ctx, span := observability.TraceFeedbackFunction(ctx, "get_all_feedback_with_answers")
	defer observability.FinishSpan(span, &err)

	return s.queryFeedback(ctx,
		`SELECT `+feedbackSelectFields+` FROM feedback ORDER BY created_at ASC, id ASC`)
}

// HasUserSubmitted reports whether the user already has a submission for the period
func (s *FeedbackService) HasUserSubmitted(ctx context.Context, userID, periodID int) (result0 bool, err error) {
	ctx, span := observability.TraceFeedbackFunction(ctx, "has_user_submitted",
		observability.AttributeUserID(userID),
		observability.AttributePeriodID(periodID),
	)
	defer observability.FinishSpan(span, &err)

	var exists bool
	err = s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM feedback WHERE user_id = $1 AND period_id = $2)`,
		userID, periodID).Scan(&exists)
	if err != nil {
		return false, contextutils.WrapError(err, "failed to check existing submission")
	}
	return exists, nil
}

// DeleteFeedback removes one submission and its answers. Admin data hygiene
// only; the application itself never deletes feedback.
func (s *FeedbackService) DeleteFeedback(ctx context.Context, id int) (err error) {
	ctx, span := observability.TraceFeedbackFunction(ctx, "delete_feedback",
		observability.AttributeFeedbackID(id),
	)
	defer observability.FinishSpan(span, &err)

	// feedback_answers cascade on the FK
	result, err := s.db.ExecContext(ctx, `DELETE FROM feedback WHERE id = $1`, id)
	if err != nil {
		s.logger.Error(ctx, "Failed to delete feedback", err, map[string]interface{}{"feedback_id": id})
		return contextutils.WrapError(err, "failed to delete feedback")
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return contextutils.WrapError(err, "failed to get rows affected")
	}
	if rowsAffected == 0 {
		return contextutils.WrapErrorf(contextutils.ErrRecordNotFound, "feedback %d not found", id)
	}

	s.logger.Warn(ctx, "Feedback deleted", map[string]interface{}{"feedback_id": id})
	return nil
}

// queryFeedback runs a header query and attaches answers to every result
func (s *FeedbackService) queryFeedback(ctx context.Context, query string, args ...interface{}) (result0 []models.Feedback, err error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		s.logger.Error(ctx, "Failed to query feedback", err, map[string]interface{}{})
		return nil, contextutils.WrapError(err, "failed to query feedback")
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			s.logger.Error(ctx, "Failed to close rows", closeErr, map[string]interface{}{})
		}
	}()

	var feedbacks []models.Feedback
	for rows.Next() {
		feedback, err := scanFeedback(rows.Scan)
		if err != nil {
			return nil, contextutils.WrapError(err, "failed to scan feedback row")
		}
		feedbacks = append(feedbacks, *feedback)
	}
	if err := rows.Err(); err != nil {
		return nil, contextutils.WrapError(err, "error iterating feedback rows")
	}

	if err := s.loadAnswers(ctx, feedbacks); err != nil {
		return nil, err
	}
	return feedbacks, nil
}

// loadAnswers attaches answer rows to the given headers with a single query
// instead of one query per submission
func (s *FeedbackService) loadAnswers(ctx context.Context, feedbacks []models.Feedback) (err error) {
	if len(feedbacks) == 0 {
		return nil
	}

	placeholders := make([]string, len(feedbacks))
	args := make([]interface{}, len(feedbacks))
	index := make(map[int]int, len(feedbacks))
	for i := range feedbacks {
		placeholders[i] = "$" + strconv.Itoa(i+1)
		args[i] = feedbacks[i].ID
		index[feedbacks[i].ID] = i
		feedbacks[i].Answers = []models.FeedbackAnswer{}
	}

	query := fmt.Sprintf(`
		SELECT id, feedback_id, question_id, question_text, rating, comment, position
		FROM feedback_answers
		WHERE feedback_id IN (%s)
		ORDER BY feedback_id, position, id
	`, strings.Join(placeholders, ", "))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		s.logger.Error(ctx, "Failed to load feedback answers", err, map[string]interface{}{})
		return contextutils.WrapError(err, "failed to load feedback answers")
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			s.logger.Error(ctx, "Failed to close rows", closeErr, map[string]interface{}{})
		}
	}()

	for rows.Next() {
		var answer models.FeedbackAnswer
		err = rows.Scan(&answer.ID, &answer.FeedbackID, &answer.QuestionID,
			&answer.QuestionText, &answer.Rating, &answer.Comment, &answer.Position)
		if err != nil {
			return contextutils.WrapError(err, "failed to scan answer row")
		}
		if i, ok := index[answer.FeedbackID]; ok {
			feedbacks[i].Answers = append(feedbacks[i].Answers, answer)
		}
	}
	if err := rows.Err(); err != nil {
		return contextutils.WrapError(err, "error iterating answer rows")
	}

	return nil
}

// scanFeedback scans one feedback header row
func scanFeedback(scan func(dest ...interface{}) error) (result0 *models.Feedback, err error) {
	var feedback models.Feedback
	err = scan(&feedback.ID, &feedback.UserID, &feedback.UserName, &feedback.UserEmail,
		&feedback.UserDepartment, &feedback.TargetDepartment, &feedback.PeriodID,
		&feedback.AdditionalComment, &feedback.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &feedback, nil
}

// toNullString converts an optional input string to sql.NullString
func toNullString(s string) sql.NullString {
	if strings.TrimSpace(s) == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
