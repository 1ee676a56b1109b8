//go:build integration

package services

import (
	"context"
	"testing"

	"feedbackapp/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmailService_NotificationLedger_Integration(t *testing.T) {
	env := setupPeriodTestEnv(t)
	t.Cleanup(func() {
		require.NoError(t, env.db.Close())
	})

	emailService := NewEmailServiceWithDB(env.cfg, testLogger(), env.db)
	ctx := context.Background()

	user, err := env.users.CreateUser(ctx, "ledger_user", "ledger@example.com", "password123", "Engineering", false)
	require.NoError(t, err)
	period := env.createOpenPeriod(t, "Sales")

	notified, err := emailService.GetNotifiedUserIDs(ctx, period.ID, models.NotificationKindInvitation)
	require.NoError(t, err)
	assert.Empty(t, notified, "expected no notification to be recorded initially")

	require.NoError(t, emailService.RecordSentNotification(ctx, user.ID, period.ID, models.NotificationKindInvitation))

	notified, err = emailService.GetNotifiedUserIDs(ctx, period.ID, models.NotificationKindInvitation)
	require.NoError(t, err)
	assert.True(t, notified[user.ID], "expected notification to be detected after recording")

	// Recording again is a no-op, not an error
	require.NoError(t, emailService.RecordSentNotification(ctx, user.ID, period.ID, models.NotificationKindInvitation))

	var count int
	err = env.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sent_notifications WHERE user_id = $1 AND period_id = $2`,
		user.ID, period.ID).Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	// The reminder ledger is independent of the invitation ledger
	notified, err = emailService.GetNotifiedUserIDs(ctx, period.ID, models.NotificationKindReminder)
	require.NoError(t, err)
	assert.Empty(t, notified, "expected the reminder kind to have its own history")
}
