// Package services provides business logic services for the feedback application.
package services

import (
	"context"
	"database/sql"
	"time"

	"feedbackapp/internal/config"
	"feedbackapp/internal/models"
	"feedbackapp/internal/observability"
	contextutils "feedbackapp/internal/utils"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// TestEmailService implements the Mailer interface for testing purposes
// It doesn't actually send emails but logs the operations and records them in the database
type TestEmailService struct {
	cfg    *config.Config
	logger *observability.Logger
	db     *sql.DB
}

// NewTestEmailService creates a new TestEmailService instance
func NewTestEmailService(cfg *config.Config, logger *observability.Logger) *TestEmailService {
	return &TestEmailService{
		cfg:    cfg,
		logger: logger,
	}
}

// NewTestEmailServiceWithDB creates a new TestEmailService instance with database connection
func NewTestEmailServiceWithDB(cfg *config.Config, logger *observability.Logger, db *sql.DB) *TestEmailService {
	return &TestEmailService{
		cfg:    cfg,
		logger: logger,
		db:     db,
	}
}

// SendPeriodInvitation logs a period invitation instead of sending it
func (e *TestEmailService) SendPeriodInvitation(ctx context.Context, user *models.User, period *models.FeedbackPeriod) error {
	ctx, span := otel.Tracer("test-email-service").Start(ctx, "SendPeriodInvitation",
		trace.WithAttributes(
			attribute.Int("user.id", user.ID),
			attribute.Int("period.id", period.ID),
		),
	)
	defer span.End()

	if !user.Email.Valid || user.Email.String == "" {
		e.logger.Warn(ctx, "User has no email address, skipping period invitation", map[string]interface{}{
			"user_id": user.ID,
		})
		return nil
	}

	e.logger.Info(ctx, "TEST MODE: Would send period invitation email", map[string]interface{}{
		"user_id":    user.ID,
		"email":      user.Email.String,
		"period_id":  period.ID,
		"department": period.Department,
		"template":   "period_invitation",
		"test_mode":  true,
	})

	return nil
}

// SendPeriodReminder logs a period reminder instead of sending it
func (e *TestEmailService) SendPeriodReminder(ctx context.Context, user *models.User, period *models.FeedbackPeriod) error {
	ctx, span := otel.Tracer("test-email-service").Start(ctx, "SendPeriodReminder",
		trace.WithAttributes(
			attribute.Int("user.id", user.ID),
			attribute.Int("period.id", period.ID),
		),
	)
	defer span.End()

	if !user.Email.Valid || user.Email.String == "" {
		e.logger.Warn(ctx, "User has no email address, skipping period reminder", map[string]interface{}{
			"user_id": user.ID,
		})
		return nil
	}

	e.logger.Info(ctx, "TEST MODE: Would send period reminder email", map[string]interface{}{
		"user_id":    user.ID,
		"email":      user.Email.String,
		"period_id":  period.ID,
		"department": period.Department,
		"template":   "period_reminder",
		"test_mode":  true,
	})

	return nil
}

// SendEmail sends a generic email with the given parameters (test mode - just logs)
func (e *TestEmailService) SendEmail(ctx context.Context, to, subject, templateName string, data map[string]interface{}) error {
	ctx, span := otel.Tracer("test-email-service").Start(ctx, "SendEmail",
		trace.WithAttributes(
			attribute.String("email.to", to),
			attribute.String("email.subject", subject),
			attribute.String("email.template", templateName),
		),
	)
	defer span.End()

	// Log the email operation instead of sending
	e.logger.Info(ctx, "TEST MODE: Would send email", map[string]interface{}{
		"to":        to,
		"subject":   subject,
		"template":  templateName,
		"test_mode": true,
		"data_keys": getMapKeys(data),
	})

	return nil
}

// RecordSentNotification records a sent notification in the dedup ledger
func (e *TestEmailService) RecordSentNotification(ctx context.Context, userID, periodID int, kind models.NotificationKind) error {
	ctx, span := otel.Tracer("test-email-service").Start(ctx, "RecordSentNotification",
		trace.WithAttributes(
			attribute.Int("user.id", userID),
			attribute.Int("period.id", periodID),
			attribute.String("notification.kind", string(kind)),
		),
	)
	defer span.End()

	if e.db == nil {
		e.logger.Warn(ctx, "No database connection available for recording notification", map[string]interface{}{
			"user_id":   userID,
			"period_id": periodID,
		})
		return nil
	}

	query := `
		INSERT INTO sent_notifications (user_id, period_id, kind, sent_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, period_id, kind) DO NOTHING
	`

	_, err := e.db.ExecContext(ctx, query, userID, periodID, string(kind), time.Now())
	if err != nil {
		span.RecordError(err)
		e.logger.Error(ctx, "Failed to record sent notification", err, map[string]interface{}{
			"user_id":   userID,
			"period_id": periodID,
			"kind":      string(kind),
		})
		return contextutils.WrapError(err, "failed to record sent notification")
	}

	e.logger.Info(ctx, "Recorded sent notification", map[string]interface{}{
		"user_id":   userID,
		"period_id": periodID,
		"kind":      string(kind),
	})

	return nil
}

// GetNotifiedUserIDs returns the users already recorded for a period and kind
func (e *TestEmailService) GetNotifiedUserIDs(ctx context.Context, periodID int, kind models.NotificationKind) (map[int]bool, error) {
	ctx, span := otel.Tracer("test-email-service").Start(ctx, "GetNotifiedUserIDs",
		trace.WithAttributes(
			attribute.Int("period.id", periodID),
			attribute.String("notification.kind", string(kind)),
		),
	)
	defer span.End()

	notified := make(map[int]bool)
	if e.db == nil {
		// Without a database we cannot track sent notifications; act as if none was sent
		e.logger.Warn(ctx, "No database connection available for querying notification history", map[string]interface{}{
			"period_id": periodID,
		})
		return notified, nil
	}

	rows, err := e.db.QueryContext(ctx,
		`SELECT user_id FROM sent_notifications WHERE period_id = $1 AND kind = $2`,
		periodID, string(kind))
	if err != nil {
		span.RecordError(err)
		return nil, contextutils.WrapError(err, "failed to query sent notifications")
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			e.logger.Error(ctx, "Failed to close rows", closeErr, map[string]interface{}{})
		}
	}()

	for rows.Next() {
		var userID int
		if err := rows.Scan(&userID); err != nil {
			return nil, contextutils.WrapError(err, "failed to scan notification row")
		}
		notified[userID] = true
	}
	if err := rows.Err(); err != nil {
		return nil, contextutils.WrapError(err, "error iterating notification rows")
	}

	return notified, nil
}

// IsEnabled returns whether email functionality is enabled (always true for test service)
func (e *TestEmailService) IsEnabled() bool {
	return true
}

// getMapKeys returns the keys of a map as a slice of strings
func getMapKeys(data map[string]interface{}) []string {
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	return keys
}
