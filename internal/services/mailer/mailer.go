// Package mailer defines the email delivery interface for the feedback application.
package mailer

import (
	"context"

	"feedbackapp/internal/models"
)

// Mailer defines the interface for email sending functionality
type Mailer interface {
	// SendPeriodInvitation invites a user to submit feedback for a newly opened period
	SendPeriodInvitation(ctx context.Context, user *models.User, period *models.FeedbackPeriod) error

	// SendPeriodReminder reminds a user shortly before a period closes
	SendPeriodReminder(ctx context.Context, user *models.User, period *models.FeedbackPeriod) error

	// SendEmail sends a generic email with the given parameters
	SendEmail(ctx context.Context, to, subject, templateName string, data map[string]interface{}) error

	// IsEnabled returns whether email functionality is enabled
	IsEnabled() bool

	// RecordSentNotification records a delivered email in the dedup ledger
	RecordSentNotification(ctx context.Context, userID, periodID int, kind models.NotificationKind) error

	// GetNotifiedUserIDs returns the users already recorded for a period and kind
	GetNotifiedUserIDs(ctx context.Context, periodID int, kind models.NotificationKind) (map[int]bool, error)
}
