// Package services provides business logic services for the feedback application.
package services

import (
	"context"
	"database/sql"
	"fmt"
	"html/template"
	"strings"

	"feedbackapp/internal/config"
	"feedbackapp/internal/models"
	"feedbackapp/internal/observability"
	"feedbackapp/internal/services/mailer"
	contextutils "feedbackapp/internal/utils"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gopkg.in/mail.v2"
)

// EmailService implements the mailer.Mailer interface using gomail
type EmailService struct {
	cfg    *config.Config
	logger *observability.Logger
	dialer *mail.Dialer
	db     *sql.DB
}

// Ensure EmailService implements the Mailer interface
var _ mailer.Mailer = (*EmailService)(nil)

// NewEmailService creates a new EmailService instance
func NewEmailService(cfg *config.Config, logger *observability.Logger) *EmailService {
	var dialer *mail.Dialer
	if cfg.Email.Enabled && cfg.Email.SMTP.Host != "" {
		dialer = mail.NewDialer(
			cfg.Email.SMTP.Host,
			cfg.Email.SMTP.Port,
			cfg.Email.SMTP.Username,
			cfg.Email.SMTP.Password,
		)
	}

	return &EmailService{
		cfg:    cfg,
		logger: logger,
		dialer: dialer,
	}
}

// NewEmailServiceWithDB creates a new EmailService instance with database connection
func NewEmailServiceWithDB(cfg *config.Config, logger *observability.Logger, db *sql.DB) *EmailService {
	if db == nil {
		panic("EmailService requires a non-nil database connection")
	}

	var dialer *mail.Dialer
	if cfg.Email.Enabled && cfg.Email.SMTP.Host != "" {
		dialer = mail.NewDialer(
			cfg.Email.SMTP.Host,
			cfg.Email.SMTP.Port,
			cfg.Email.SMTP.Username,
			cfg.Email.SMTP.Password,
		)
	}

	return &EmailService{
		cfg:    cfg,
		logger: logger,
		dialer: dialer,
		db:     db,
	}
}

// SendPeriodInvitation invites a user to rate a department whose feedback
// period just opened
func (e *EmailService) SendPeriodInvitation(ctx context.Context, user *models.User, period *models.FeedbackPeriod) (err error) {
	ctx, span := otel.Tracer("email-service").Start(ctx, "SendPeriodInvitation",
		trace.WithAttributes(
			attribute.Int("user.id", user.ID),
			attribute.Int("period.id", period.ID),
			attribute.String("department", period.Department),
		),
	)
	defer observability.FinishSpan(span, &err)

	if !e.IsEnabled() {
		e.logger.Info(ctx, "Email disabled, skipping period invitation", map[string]interface{}{
			"user_id":   user.ID,
			"period_id": period.ID,
		})
		return nil
	}

	if !user.Email.Valid || user.Email.String == "" {
		e.logger.Warn(ctx, "User has no email address, skipping period invitation", map[string]interface{}{
			"user_id": user.ID,
		})
		return nil
	}

	data := map[string]interface{}{
		"Username":   user.Username,
		"Department": period.Department,
		"EndDate":    period.EndDate.Format("January 2, 2006"),
		"AppURL":     e.cfg.Server.AppBaseURL,
	}

	subject := fmt.Sprintf("Feedback period open: %s", period.Department)

	err = e.SendEmail(ctx, user.Email.String, subject, "period_invitation", data)
	if err != nil {
		return contextutils.WrapError(err, "failed to send period invitation")
	}

	e.logger.Info(ctx, "Period invitation sent", map[string]interface{}{
		"user_id":   user.ID,
		"period_id": period.ID,
		"email":     user.Email.String,
	})

	return nil
}

// SendPeriodReminder reminds a user who has not submitted yet that a period
// closes soon
func (e *EmailService) SendPeriodReminder(ctx context.Context, user *models.User, period *models.FeedbackPeriod) (err error) {
	ctx, span := otel.Tracer("email-service").Start(ctx, "SendPeriodReminder",
		trace.WithAttributes(
			attribute.Int("user.id", user.ID),
			attribute.Int("period.id", period.ID),
			attribute.String("department", period.Department),
		),
	)
	defer observability.FinishSpan(span, &err)

	if !e.IsEnabled() {
		e.logger.Info(ctx, "Email disabled, skipping period reminder", map[string]interface{}{
			"user_id":   user.ID,
			"period_id": period.ID,
		})
		return nil
	}

	if !user.Email.Valid || user.Email.String == "" {
		e.logger.Warn(ctx, "User has no email address, skipping period reminder", map[string]interface{}{
			"user_id": user.ID,
		})
		return nil
	}

	data := map[string]interface{}{
		"Username":   user.Username,
		"Department": period.Department,
		"EndDate":    period.EndDate.Format("January 2, 2006 15:04 MST"),
		"AppURL":     e.cfg.Server.AppBaseURL,
	}

	subject := fmt.Sprintf("Reminder: feedback for %s closes soon", period.Department)

	err = e.SendEmail(ctx, user.Email.String, subject, "period_reminder", data)
	if err != nil {
		return contextutils.WrapError(err, "failed to send period reminder")
	}

	e.logger.Info(ctx, "Period reminder sent", map[string]interface{}{
		"user_id":   user.ID,
		"period_id": period.ID,
		"email":     user.Email.String,
	})

	return nil
}

// SendEmail sends a generic email with the given parameters
func (e *EmailService) SendEmail(ctx context.Context, to, subject, templateName string, data map[string]interface{}) (err error) {
	ctx, span := otel.Tracer("email-service").Start(ctx, "SendEmail",
		trace.WithAttributes(
			attribute.String("email.to", to),
			attribute.String("email.subject", subject),
			attribute.String("email.template", templateName),
		),
	)
	defer observability.FinishSpan(span, &err)

	if !e.IsEnabled() {
		e.logger.Info(ctx, "Email disabled, skipping email send", map[string]interface{}{
			"to":       to,
			"template": templateName,
		})
		return nil
	}

	if e.dialer == nil {
		return contextutils.ErrorWithContextf("email service not properly configured")
	}

	// Create email message
	m := mail.NewMessage()
	m.SetHeader("From", fmt.Sprintf("%s <%s>", e.cfg.Email.SMTP.FromName, e.cfg.Email.SMTP.FromAddress))
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)

	// Generate email content from template
	content, err := e.generateEmailContent(templateName, data)
	if err != nil {
		return contextutils.WrapError(err, "failed to generate email content")
	}

	m.SetBody("text/html", content)

	// Send email
	if err = e.dialer.DialAndSend(m); err != nil {
		e.logger.Error(ctx, "Failed to send email", err, map[string]interface{}{
			"to":       to,
			"template": templateName,
			"subject":  subject,
		})
		return contextutils.WrapError(err, "failed to send email")
	}

	e.logger.Info(ctx, "Email sent successfully", map[string]interface{}{
		"to":       to,
		"template": templateName,
		"subject":  subject,
	})

	return nil
}

// RecordSentNotification records a delivered email in the dedup ledger. The
// unique constraint makes recording idempotent, so a retried run never
// produces duplicate rows.
func (e *EmailService) RecordSentNotification(ctx context.Context, userID, periodID int, kind models.NotificationKind) (err error) {
	ctx, span := otel.Tracer("email-service").Start(ctx, "RecordSentNotification",
		trace.WithAttributes(
			attribute.Int("user.id", userID),
			attribute.Int("period.id", periodID),
			attribute.String("notification.kind", string(kind)),
		),
	)
	defer observability.FinishSpan(span, &err)

	if e.db == nil {
		e.logger.Error(ctx, "Database connection is nil, cannot record notification", nil, map[string]interface{}{
			"user_id":   userID,
			"period_id": periodID,
		})
		return contextutils.ErrorWithContextf("EmailService database connection is nil")
	}

	query := `
		INSERT INTO sent_notifications (user_id, period_id, kind, sent_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (user_id, period_id, kind) DO NOTHING
	`

	_, err = e.db.ExecContext(ctx, query, userID, periodID, string(kind))
	if err != nil {
		e.logger.Error(ctx, "Failed to record sent notification", err, map[string]interface{}{
			"user_id":   userID,
			"period_id": periodID,
			"kind":      string(kind),
		})
		return contextutils.WrapError(err, "failed to record sent notification")
	}

	return nil
}

// GetNotifiedUserIDs returns the users already recorded in the dedup ledger
// for the given period and kind
func (e *EmailService) GetNotifiedUserIDs(ctx context.Context, periodID int, kind models.NotificationKind) (result0 map[int]bool, err error) {
	ctx, span := otel.Tracer("email-service").Start(ctx, "GetNotifiedUserIDs",
		trace.WithAttributes(
			attribute.Int("period.id", periodID),
			attribute.String("notification.kind", string(kind)),
		),
	)
	defer observability.FinishSpan(span, &err)

	if e.db == nil {
		return nil, contextutils.ErrorWithContextf("EmailService database connection is nil")
	}

	rows, err := e.db.QueryContext(ctx,
		`SELECT user_id FROM sent_notifications WHERE period_id = $1 AND kind = $2`,
		periodID, string(kind))
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to query sent notifications")
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			e.logger.Error(ctx, "Failed to close rows", closeErr, map[string]interface{}{})
		}
	}()

	notified := make(map[int]bool)
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

// IsEnabled returns whether email functionality is enabled
func (e *EmailService) IsEnabled() bool {
	return e.cfg.Email.Enabled && e.cfg.Email.SMTP.Host != ""
}

// generateEmailContent generates email content from templates
func (e *EmailService) generateEmailContent(templateName string, data map[string]interface{}) (string, error) {
	switch templateName {
	case "period_invitation":
		return e.generatePeriodInvitationTemplate(data)
	case "period_reminder":
		return e.generatePeriodReminderTemplate(data)
	case "test_email":
		return e.generateTestEmailTemplate(data)
	default:
		return "", contextutils.ErrorWithContextf("unknown template: %s", templateName)
	}
}

// generatePeriodInvitationTemplate generates the period invitation email
func (e *EmailService) generatePeriodInvitationTemplate(data map[string]interface{}) (string, error) {
	const templateStr = `
<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>Feedback Period Open</title>
    <style>
        body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; }
        .container { max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { background-color: #4CAF50; color: white; padding: 20px; text-align: center; border-radius: 5px 5px 0 0; }
        .content { background-color: #f9f9f9; padding: 20px; }
        .button { display: inline-block; background-color: #4CAF50; color: white; padding: 12px 24px; text-decoration: none; border-radius: 5px; margin: 20px 0; }
        .footer { background-color: #eee; padding: 15px; text-align: center; font-size: 12px; color: #666; border-radius: 0 0 5px 5px; }
    </style>
</head>
<body>
    <div class="container">
        <div class="header">
            <h1>Feedback Period Open</h1>
        </div>
        <div class="content">
            <h2>Hello {{.Username}}!</h2>
            <p>A new feedback period is open for the <strong>{{.Department}}</strong> department.</p>
            <p>Your input helps {{.Department}} improve how they work with the rest of the company. The period closes on <strong>{{.EndDate}}</strong>.</p>
            <div style="text-align: center;">
                <a href="{{.AppURL}}/feedback" class="button">Give Feedback</a>
            </div>
        </div>
        <div class="footer">
            <p>This email was sent by the Feedback App because a feedback period opened for a department other than your own.</p>
        </div>
    </div>
</body>
</html>`

	tmpl, err := template.New("period_invitation").Parse(templateStr)
	if err != nil {
		return "", contextutils.WrapError(err, "failed to parse template")
	}

	var buf strings.Builder
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", contextutils.WrapError(err, "failed to execute template")
	}

	return buf.String(), nil
}

// generatePeriodReminderTemplate generates the closing-soon reminder email
func (e *EmailService) generatePeriodReminderTemplate(data map[string]interface{}) (string, error) {
	const templateStr = `
<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>Feedback Period Closing Soon</title>
    <style>
        body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; }
        .container { max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { background-color: #FF9800; color: white; padding: 20px; text-align: center; border-radius: 5px 5px 0 0; }
        .content { background-color: #f9f9f9; padding: 20px; }
        .button { display: inline-block; background-color: #FF9800; color: white; padding: 12px 24px; text-decoration: none; border-radius: 5px; margin: 20px 0; }
        .footer { background-color: #eee; padding: 15px; text-align: center; font-size: 12px; color: #666; border-radius: 0 0 5px 5px; }
    </style>
</head>
<body>
    <div class="container">
        <div class="header">
            <h1>Last Chance for Feedback</h1>
        </div>
        <div class="content">
            <h2>Hello {{.Username}}!</h2>
            <p>You have not yet submitted feedback for the <strong>{{.Department}}</strong> department.</p>
            <p>The period closes on <strong>{{.EndDate}}</strong>. After that, submissions are no longer possible.</p>
            <div style="text-align: center;">
                <a href="{{.AppURL}}/feedback" class="button">Submit Feedback Now</a>
            </div>
        </div>
        <div class="footer">
            <p>This reminder was sent by the Feedback App because the period is about to close.</p>
        </div>
    </div>
</body>
</html>`

	tmpl, err := template.New("period_reminder").Parse(templateStr)
	if err != nil {
		return "", contextutils.WrapError(err, "failed to parse template")
	}

	var buf strings.Builder
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", contextutils.WrapError(err, "failed to execute template")
	}

	return buf.String(), nil
}

// generateTestEmailTemplate generates the test email template
func (e *EmailService) generateTestEmailTemplate(data map[string]interface{}) (string, error) {
	const templateStr = `
<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>Test Email</title>
    <style>
        body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; }
        .container { max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { background-color: #2196F3; color: white; padding: 20px; text-align: center; border-radius: 5px 5px 0 0; }
        .content { background-color: #f9f9f9; padding: 20px; }
        .footer { background-color: #eee; padding: 15px; text-align: center; font-size: 12px; color: #666; border-radius: 0 0 5px 5px; }
    </style>
</head>
<body>
    <div class="container">
        <div class="header">
            <h1>Test Email</h1>
        </div>
        <div class="content">
            <h2>Hello {{.Username}}!</h2>
            <p>This is a test email to verify that your email settings are working correctly.</p>
            <p><strong>Test Time:</strong> {{.TestTime}}</p>
            <p><strong>Message:</strong> {{.Message}}</p>
            <p>If you received this email, your email configuration is working properly!</p>
        </div>
        <div class="footer">
            <p>This is a test email from the Feedback App. No action is required.</p>
        </div>
    </div>
</body>
</html>
`

	tmpl, err := template.New("test_email").Parse(templateStr)
	if err != nil {
		return "", contextutils.WrapError(err, "failed to parse template")
	}

	var buf strings.Builder
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", contextutils.WrapError(err, "failed to execute template")
	}

	return buf.String(), nil
}
