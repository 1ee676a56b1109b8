//go:build integration

package services

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"feedbackapp/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDBForWorker(t *testing.T) *sql.DB {
	return SharedTestDBSetup(t)
}

func TestWorkerService_Settings_Integration(t *testing.T) {
	db := setupTestDBForWorker(t)
	defer db.Close()

	service := NewWorkerServiceWithLogger(db, testLogger())
	ctx := context.Background()

	_, err := service.GetSetting(ctx, "missing_key")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSettingNotFound)

	require.NoError(t, service.SetSetting(ctx, "check_interval", "60"))

	value, err := service.GetSetting(ctx, "check_interval")
	require.NoError(t, err)
	assert.Equal(t, "60", value)

	// Upsert replaces the previous value
	require.NoError(t, service.SetSetting(ctx, "check_interval", "120"))
	value, err = service.GetSetting(ctx, "check_interval")
	require.NoError(t, err)
	assert.Equal(t, "120", value)

	err = service.SetSetting(ctx, "  ", "anything")
	require.Error(t, err)
}

func TestWorkerService_GlobalPause_Integration(t *testing.T) {
	db := setupTestDBForWorker(t)
	defer db.Close()

	service := NewWorkerServiceWithLogger(db, testLogger())
	ctx := context.Background()

	paused, err := service.IsGlobalPaused(ctx)
	require.NoError(t, err)
	assert.False(t, paused)

	require.NoError(t, service.SetGlobalPause(ctx, true))
	paused, err = service.IsGlobalPaused(ctx)
	require.NoError(t, err)
	assert.True(t, paused)

	require.NoError(t, service.SetGlobalPause(ctx, false))
	paused, err = service.IsGlobalPaused(ctx)
	require.NoError(t, err)
	assert.False(t, paused)
}

func TestWorkerService_GlobalPause_InitializesMissingSetting_Integration(t *testing.T) {
	db := setupTestDBForWorker(t)
	defer db.Close()

	service := NewWorkerServiceWithLogger(db, testLogger())
	ctx := context.Background()

	_, err := db.ExecContext(ctx, `DELETE FROM worker_settings WHERE setting_key = 'global_pause'`)
	require.NoError(t, err)

	paused, err := service.IsGlobalPaused(ctx)
	require.NoError(t, err)
	assert.False(t, paused)

	// The read initialized the row
	value, err := service.GetSetting(ctx, "global_pause")
	require.NoError(t, err)
	assert.Equal(t, "false", value)
}

func TestWorkerService_StatusLifecycle_Integration(t *testing.T) {
	db := setupTestDBForWorker(t)
	defer db.Close()

	service := NewWorkerServiceWithLogger(db, testLogger())
	ctx := context.Background()

	now := time.Now()
	status := &models.WorkerStatus{
		IsRunning:              true,
		IsPaused:               false,
		CurrentActivity:        sql.NullString{String: "sending invitations", Valid: true},
		LastHeartbeat:          sql.NullTime{Time: now, Valid: true},
		LastRunStart:           sql.NullTime{Time: now.Add(-time.Minute), Valid: true},
		LastRunFinish:          sql.NullTime{Time: now, Valid: true},
		TotalNotificationsSent: 12,
		TotalRuns:              3,
	}

	require.NoError(t, service.UpdateWorkerStatus(ctx, "worker-1", status))

	stored, err := service.GetWorkerStatus(ctx, "worker-1")
	require.NoError(t, err)
	assert.Equal(t, "worker-1", stored.WorkerInstance)
	assert.True(t, stored.IsRunning)
	assert.Equal(t, "sending invitations", stored.CurrentActivity.String)
	assert.Equal(t, 12, stored.TotalNotificationsSent)
	assert.Equal(t, 3, stored.TotalRuns)

	// Second update for the same instance overwrites, not duplicates
	status.IsRunning = false
	status.TotalRuns = 4
	require.NoError(t, service.UpdateWorkerStatus(ctx, "worker-1", status))

	all, err := service.GetAllWorkerStatuses(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.False(t, all[0].IsRunning)
	assert.Equal(t, 4, all[0].TotalRuns)
}

func TestWorkerService_Heartbeat_Integration(t *testing.T) {
	db := setupTestDBForWorker(t)
	defer db.Close()

	service := NewWorkerServiceWithLogger(db, testLogger())
	ctx := context.Background()

	// Unknown instance is unhealthy, not an error
	healthy, err := service.IsWorkerHealthy(ctx, "ghost")
	require.NoError(t, err)
	assert.False(t, healthy)

	require.NoError(t, service.UpdateHeartbeat(ctx, "worker-hb"))

	healthy, err = service.IsWorkerHealthy(ctx, "worker-hb")
	require.NoError(t, err)
	assert.True(t, healthy)

	// Stale heartbeat means unhealthy
	_, err = db.ExecContext(ctx, `
		UPDATE worker_status SET last_heartbeat = NOW() - INTERVAL '10 minutes'
		WHERE worker_instance = 'worker-hb'
	`)
	require.NoError(t, err)

	healthy, err = service.IsWorkerHealthy(ctx, "worker-hb")
	require.NoError(t, err)
	assert.False(t, healthy)
}

func TestWorkerService_GetWorkerHealth_Integration(t *testing.T) {
	db := setupTestDBForWorker(t)
	defer db.Close()

	service := NewWorkerServiceWithLogger(db, testLogger())
	ctx := context.Background()

	require.NoError(t, service.UpdateHeartbeat(ctx, "worker-a"))
	require.NoError(t, service.UpdateHeartbeat(ctx, "worker-b"))
	_, err := db.ExecContext(ctx, `
		UPDATE worker_status SET last_heartbeat = NOW() - INTERVAL '1 hour'
		WHERE worker_instance = 'worker-b'
	`)
	require.NoError(t, err)

	health, err := service.GetWorkerHealth(ctx)
	require.NoError(t, err)

	assert.Equal(t, 2, health["total_count"])
	assert.Equal(t, 1, health["healthy_count"])
	assert.Equal(t, false, health["global_paused"])
}

func TestWorkerService_GetSentNotifications_Integration(t *testing.T) {
	env := setupPeriodTestEnv(t)
	defer env.db.Close()
	ctx := context.Background()

	service := NewWorkerServiceWithLogger(env.db, testLogger())
	emailService := NewEmailServiceWithDB(env.cfg, testLogger(), env.db)

	user, err := env.users.CreateUser(ctx, "notified_user", "n@example.com", "password123", "Engineering", false)
	require.NoError(t, err)
	period := env.createOpenPeriod(t, "Sales")

	require.NoError(t, emailService.RecordSentNotification(ctx, user.ID, period.ID, models.NotificationKindInvitation))
	require.NoError(t, emailService.RecordSentNotification(ctx, user.ID, period.ID, models.NotificationKindReminder))

	all, pagination, err := service.GetSentNotifications(ctx, 1, 10, "", 0)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, 2, pagination["total"])
	assert.Equal(t, "notified_user", all[0]["username"])
	assert.Equal(t, "Sales", all[0]["department"])

	invitations, _, err := service.GetSentNotifications(ctx, 1, 10, string(models.NotificationKindInvitation), 0)
	require.NoError(t, err)
	require.Len(t, invitations, 1)
	assert.Equal(t, string(models.NotificationKindInvitation), invitations[0]["kind"])

	byPeriod, _, err := service.GetSentNotifications(ctx, 1, 10, "", period.ID)
	require.NoError(t, err)
	assert.Len(t, byPeriod, 2)

	stats, err := service.GetNotificationStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats["total_sent"])
	assert.Equal(t, 1, stats["total_invitations"])
	assert.Equal(t, 1, stats["total_reminders"])
}
