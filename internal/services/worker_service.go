package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"feedbackapp/internal/models"
	"feedbackapp/internal/observability"
	contextutils "feedbackapp/internal/utils"

	"go.opentelemetry.io/otel/attribute"
)

// ErrSettingNotFound is returned when a setting is not found in the database
var ErrSettingNotFound = errors.New("setting not found")

// WorkerServiceInterface defines the interface for worker management operations
type WorkerServiceInterface interface {
	// Settings management
	GetSetting(ctx context.Context, key string) (string, error)
	SetSetting(ctx context.Context, key, value string) error
	IsGlobalPaused(ctx context.Context) (bool, error)
	SetGlobalPause(ctx context.Context, paused bool) error

	// Status management
	UpdateWorkerStatus(ctx context.Context, instance string, status *models.WorkerStatus) error
	GetWorkerStatus(ctx context.Context, instance string) (*models.WorkerStatus, error)
	GetAllWorkerStatuses(ctx context.Context) ([]models.WorkerStatus, error)
	UpdateHeartbeat(ctx context.Context, instance string) error
	IsWorkerHealthy(ctx context.Context, instance string) (bool, error)
	GetWorkerHealth(ctx context.Context) (map[string]interface{}, error)

	// Notification history
	GetNotificationStats(ctx context.Context) (map[string]interface{}, error)
	GetSentNotifications(ctx context.Context, page, pageSize int, kind string, periodID int) ([]map[string]interface{}, map[string]interface{}, error)
}

// WorkerService implements worker management operations
type WorkerService struct {
	db     *sql.DB
	logger *observability.Logger
}

// NewWorkerServiceWithLogger creates a new WorkerService instance with logger
func NewWorkerServiceWithLogger(db *sql.DB, logger *observability.Logger) *WorkerService {
	return &WorkerService{
		db:     db,
		logger: logger,
	}
}

// GetSetting retrieves a setting value by key
func (s *WorkerService) GetSetting(ctx context.Context, key string) (result0 string, err error) {
	ctx, span := observability.TraceWorkerFunction(ctx, "get_setting", attribute.String("setting.key", key))
	defer observability.FinishSpan(span, &err)

	// Validate key
	if len(key) == 0 || len(strings.TrimSpace(key)) == 0 {
		return "", contextutils.WrapErrorf(errors.New("invalid setting key"), "setting key cannot be empty")
	}

	var value string
	err = s.db.QueryRowContext(ctx, `
		SELECT setting_value FROM worker_settings WHERE setting_key = $1
	`, key).Scan(&value)
	if err != nil {
		if err == sql.ErrNoRows {
			s.logger.Debug(ctx, "Setting not found", map[string]interface{}{"setting_key": key})
			return "", contextutils.WrapErrorf(ErrSettingNotFound, "%s", key)
		}
		s.logger.Error(ctx, "Failed to get setting", err, map[string]interface{}{"setting_key": key})
		return "", contextutils.WrapErrorf(err, "failed to get setting %s", key)
	}

	return value, nil
}

// SetSetting updates or creates a setting
func (s *WorkerService) SetSetting(ctx context.Context, key, value string) (err error) {
	ctx, span := observability.TraceWorkerFunction(ctx, "set_setting", attribute.String("setting.key", key))
	defer observability.FinishSpan(span, &err)

	// Validate key
	if len(key) == 0 || len(strings.TrimSpace(key)) == 0 {
		return contextutils.WrapErrorf(errors.New("invalid setting key"), "setting key cannot be empty")
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO worker_settings (setting_key, setting_value, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (setting_key) DO UPDATE SET
			setting_value = EXCLUDED.setting_value,
			updated_at = EXCLUDED.updated_at
	`, key, value)
	if err != nil {
		s.logger.Error(ctx, "Failed to set setting", err, map[string]interface{}{"setting_key": key, "setting_value": value})
		return contextutils.WrapErrorf(err, "failed to set setting %s", key)
	}

	s.logger.Debug(ctx, "Setting updated", map[string]interface{}{"setting_key": key, "setting_value": value})
	return nil
}

// IsGlobalPaused checks if the notification worker is globally paused
func (s *WorkerService) IsGlobalPaused(ctx context.Context) (result0 bool, err error) {
	ctx, span := observability.TraceWorkerFunction(ctx, "is_global_paused")
	defer observability.FinishSpan(span, &err)

	var value string
	value, err = s.GetSetting(ctx, "global_pause")
	if err != nil {
		// If setting doesn't exist, default to false (not paused)
		if errors.Is(err, ErrSettingNotFound) {
			// Initialize the setting with default value
			if setErr := s.SetSetting(ctx, "global_pause", "false"); setErr != nil {
				s.logger.Error(ctx, "Failed to initialize global_pause setting", setErr, map[string]interface{}{})
				return false, contextutils.WrapError(setErr, "failed to initialize global_pause setting")
			}
			return false, nil
		}
		s.logger.Error(ctx, "Failed to check global pause status", err, map[string]interface{}{})
		return false, err
	}

	paused := value == "true"
	s.logger.Debug(ctx, "Global pause status checked", map[string]interface{}{"global_paused": paused})
	return paused, nil
}

// SetGlobalPause sets the global pause state
func (s *WorkerService) SetGlobalPause(ctx context.Context, paused bool) (err error) {
	ctx, span := observability.TraceWorkerFunction(ctx, "set_global_pause", attribute.Bool("paused", paused))
	defer observability.FinishSpan(span, &err)

	value := "false"
	if paused {
		value = "true"
	}

	err = s.SetSetting(ctx, "global_pause", value)
	if err != nil {
		return err
	}

	s.logger.Info(ctx, "Global pause state updated", map[string]interface{}{"global_paused": paused})
	return nil
}

// UpdateWorkerStatus updates the worker status in the database
func (s *WorkerService) UpdateWorkerStatus(ctx context.Context, instance string, status *models.WorkerStatus) (err error) {
	activity := ""
	if status.CurrentActivity.Valid {
		activity = status.CurrentActivity.String
	}

	ctx, span := observability.TraceWorkerFunction(ctx, "update_worker_status",
		attribute.String("worker.instance", instance),
		attribute.Bool("worker.is_running", status.IsRunning),
		attribute.Bool("worker.is_paused", status.IsPaused),
		attribute.String("worker.activity", activity),
	)
	defer observability.FinishSpan(span, &err)

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO worker_status (
			worker_instance, is_running, is_paused, current_activity,
			last_heartbeat, last_run_start, last_run_finish, last_run_error,
			total_notifications_sent, total_runs, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW())
		ON CONFLICT (worker_instance) DO UPDATE SET
			is_running = EXCLUDED.is_running,
			is_paused = EXCLUDED.is_paused,
			current_activity = EXCLUDED.current_activity,
			last_heartbeat = EXCLUDED.last_heartbeat,
			last_run_start = EXCLUDED.last_run_start,
			last_run_finish = EXCLUDED.last_run_finish,
			last_run_error = EXCLUDED.last_run_error,
			total_notifications_sent = EXCLUDED.total_notifications_sent,
			total_runs = EXCLUDED.total_runs,
			updated_at = EXCLUDED.updated_at
	`, instance, status.IsRunning, status.IsPaused, status.CurrentActivity,
		status.LastHeartbeat, status.LastRunStart, status.LastRunFinish,
		status.LastRunError, status.TotalNotificationsSent, status.TotalRuns)
	if err != nil {
		s.logger.Error(ctx, "Failed to update worker status", err, map[string]interface{}{
			"worker_instance": instance,
			"is_running":      status.IsRunning,
			"is_paused":       status.IsPaused,
			"activity":        activity,
		})
		err = contextutils.WrapErrorf(err, "failed to update worker status for instance %s", instance)
		return err
	}

	s.logger.Debug(ctx, "Worker status updated", map[string]interface{}{
		"worker_instance": instance,
		"is_running":      status.IsRunning,
		"is_paused":       status.IsPaused,
		"activity":        activity,
	})
	return nil
}

// GetWorkerStatus retrieves worker status by instance
func (s *WorkerService) GetWorkerStatus(ctx context.Context, instance string) (result0 *models.WorkerStatus, err error) {
	ctx, span := observability.TraceWorkerFunction(ctx, "get_worker_status", attribute.String("worker.instance", instance))
	defer observability.FinishSpan(span, &err)

	var status models.WorkerStatus
	err = s.db.QueryRowContext(ctx, `
		SELECT id, worker_instance, is_running, is_paused, current_activity,
			   last_heartbeat, last_run_start, last_run_finish, last_run_error,
			   total_notifications_sent, total_runs, created_at, updated_at
		FROM worker_status WHERE worker_instance = $1
	`, instance).Scan(
		&status.ID, &status.WorkerInstance, &status.IsRunning, &status.IsPaused,
		&status.CurrentActivity, &status.LastHeartbeat, &status.LastRunStart,
		&status.LastRunFinish, &status.LastRunError, &status.TotalNotificationsSent,
		&status.TotalRuns, &status.CreatedAt, &status.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			s.logger.Debug(ctx, "Worker status not found", map[string]interface{}{"worker_instance": instance})
			return nil, contextutils.WrapErrorf(err, "worker status not found for instance %s", instance)
		}
		s.logger.Error(ctx, "Failed to get worker status", err, map[string]interface{}{"worker_instance": instance})
		return nil, contextutils.WrapErrorf(err, "failed to get worker status for instance %s", instance)
	}

	return &status, nil
}

// GetAllWorkerStatuses retrieves all worker statuses
func (s *WorkerService) GetAllWorkerStatuses(ctx context.Context) (result0 []models.WorkerStatus, err error) {
	ctx, span := observability.TraceWorkerFunction(ctx, "get_all_worker_statuses")
	defer observability.FinishSpan(span, &err)

	var rows *sql.Rows
	rows, err = s.db.QueryContext(ctx, `
		SELECT id, worker_instance, is_running, is_paused, current_activity,
			   last_heartbeat, last_run_start, last_run_finish, last_run_error,
			   total_notifications_sent, total_runs, created_at, updated_at
		FROM worker_status ORDER BY worker_instance
	`)
	if err != nil {
		s.logger.Error(ctx, "Failed to get all worker statuses", err, map[string]interface{}{})
		return nil, contextutils.WrapError(err, "failed to get all worker statuses")
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			s.logger.Error(ctx, "Failed to close rows", closeErr, map[string]interface{}{})
		}
	}()

	var statuses []models.WorkerStatus
	for rows.Next() {
		var status models.WorkerStatus
		err = rows.Scan(
			&status.ID, &status.WorkerInstance, &status.IsRunning, &status.IsPaused,
			&status.CurrentActivity, &status.LastHeartbeat, &status.LastRunStart,
			&status.LastRunFinish, &status.LastRunError, &status.TotalNotificationsSent,
			&status.TotalRuns, &status.CreatedAt, &status.UpdatedAt,
		)
		if err != nil {
			s.logger.Error(ctx, "Failed to scan worker status row", err, map[string]interface{}{})
			return nil, contextutils.WrapError(err, "failed to scan worker status row")
		}
		statuses = append(statuses, status)
	}

	if err := rows.Err(); err != nil {
		s.logger.Error(ctx, "Error iterating worker status rows", err, map[string]interface{}{})
		return nil, contextutils.WrapError(err, "error iterating worker status rows")
	}

	s.logger.Debug(ctx, "Retrieved all worker statuses", map[string]interface{}{"count": len(statuses)})
	return statuses, nil
}

// UpdateHeartbeat updates the heartbeat for a worker instance
func (s *WorkerService) UpdateHeartbeat(ctx context.Context, instance string) (err error) {
	ctx, span := observability.TraceWorkerFunction(ctx, "update_heartbeat", attribute.String("worker.instance", instance))
	defer observability.FinishSpan(span, &err)

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO worker_status (worker_instance, last_heartbeat, updated_at)
		VALUES ($1, NOW(), NOW())
		ON CONFLICT (worker_instance) DO UPDATE SET
			last_heartbeat = EXCLUDED.last_heartbeat,
			updated_at = EXCLUDED.updated_at
	`, instance)
	if err != nil {
		s.logger.Error(ctx, "Failed to update heartbeat", err, map[string]interface{}{"worker_instance": instance})
		return contextutils.WrapErrorf(err, "failed to update heartbeat for instance %s", instance)
	}

	s.logger.Debug(ctx, "Heartbeat updated", map[string]interface{}{"worker_instance": instance})
	return nil
}

// IsWorkerHealthy checks if a worker instance is healthy based on recent heartbeat
func (s *WorkerService) IsWorkerHealthy(ctx context.Context, instance string) (result0 bool, err error) {
	ctx, span := observability.TraceWorkerFunction(ctx, "is_worker_healthy", attribute.String("worker.instance", instance))
	defer observability.FinishSpan(span, &err)

	var lastHeartbeat sql.NullTime
	err = s.db.QueryRowContext(ctx, `
		SELECT last_heartbeat FROM worker_status WHERE worker_instance = $1
	`, instance).Scan(&lastHeartbeat)
	if err != nil {
		if err == sql.ErrNoRows {
			s.logger.Debug(ctx, "Worker not found, considered unhealthy", map[string]interface{}{"worker_instance": instance})
			return false, nil
		}
		s.logger.Error(ctx, "Failed to check worker health", err, map[string]interface{}{"worker_instance": instance})
		return false, contextutils.WrapErrorf(err, "failed to check worker health for instance %s", instance)
	}

	if !lastHeartbeat.Valid {
		s.logger.Debug(ctx, "Worker has no heartbeat, considered unhealthy", map[string]interface{}{"worker_instance": instance})
		return false, nil
	}

	// Consider worker healthy if heartbeat is within the last 5 minutes
	healthy := time.Since(lastHeartbeat.Time) < 5*time.Minute
	s.logger.Debug(ctx, "Worker health checked", map[string]interface{}{
		"worker_instance": instance,
		"healthy":         healthy,
		"last_heartbeat":  lastHeartbeat.Time,
		"time_since":      time.Since(lastHeartbeat.Time).String(),
	})
	return healthy, nil
}

// GetWorkerHealth returns a map of worker health information
func (s *WorkerService) GetWorkerHealth(ctx context.Context) (result0 map[string]interface{}, err error) {
	ctx, span := observability.TraceWorkerFunction(ctx, "get_worker_health")
	defer observability.FinishSpan(span, &err)

	var statuses []models.WorkerStatus
	statuses, err = s.GetAllWorkerStatuses(ctx)
	if err != nil {
		return nil, err
	}

	var globalPaused bool
	globalPaused, err = s.IsGlobalPaused(ctx)
	if err != nil {
		s.logger.Error(ctx, "Failed to get global pause state", err, map[string]interface{}{})
		globalPaused = false // Default to false if we can't get the state
	}

	health := make(map[string]interface{})
	workerInstances := make([]map[string]interface{}, 0)
	healthyCount := 0
	totalCount := len(statuses)

	for _, status := range statuses {
		healthy, err := s.IsWorkerHealthy(ctx, status.WorkerInstance)
		if err != nil {
			s.logger.Error(ctx, "Failed to check health for worker", err, map[string]interface{}{"worker_instance": status.WorkerInstance})
			continue
		}

		if healthy {
			healthyCount++
		}

		// Convert sql.NullString to string for last_run_error
		var lastRunError string
		if status.LastRunError.Valid {
			lastRunError = status.LastRunError.String
		}

		workerInstance := map[string]interface{}{
			"worker_instance":          status.WorkerInstance,
			"healthy":                  healthy,
			"is_running":               status.IsRunning,
			"is_paused":                status.IsPaused,
			"last_heartbeat":           status.LastHeartbeat,
			"last_run_error":           lastRunError,
			"total_notifications_sent": status.TotalNotificationsSent,
			"total_runs":               status.TotalRuns,
		}
		workerInstances = append(workerInstances, workerInstance)
	}

	health["global_paused"] = globalPaused
	health["worker_instances"] = workerInstances
	health["total_count"] = totalCount
	health["healthy_count"] = healthyCount

	s.logger.Debug(ctx, "Worker health retrieved", map[string]interface{}{"worker_count": totalCount})
	return health, nil
}

// GetNotificationStats returns aggregate counts over the sent notification ledger
func (s *WorkerService) GetNotificationStats(ctx context.Context) (result0 map[string]interface{}, err error) {
	ctx, span := observability.TraceWorkerFunction(ctx, "get_notification_stats")
	defer observability.FinishSpan(span, &err)

	var totalSent int
	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM sent_notifications
	`).Scan(&totalSent)
	if err != nil {
		s.logger.Error(ctx, "Failed to get total notifications sent", err, map[string]interface{}{})
		return nil, contextutils.WrapError(err, "failed to get total notifications sent")
	}

	var totalInvitations, totalReminders int
	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FILTER (WHERE kind = $1),
		       COUNT(*) FILTER (WHERE kind = $2)
		FROM sent_notifications
	`, string(models.NotificationKindInvitation), string(models.NotificationKindReminder)).Scan(&totalInvitations, &totalReminders)
	if err != nil {
		s.logger.Error(ctx, "Failed to get notification counts by kind", err, map[string]interface{}{})
		return nil, contextutils.WrapError(err, "failed to get notification counts by kind")
	}

	var sentToday, sentThisWeek int
	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FILTER (WHERE sent_at >= CURRENT_DATE),
		       COUNT(*) FILTER (WHERE sent_at >= CURRENT_DATE - INTERVAL '7 days')
		FROM sent_notifications
	`).Scan(&sentToday, &sentThisWeek)
	if err != nil {
		s.logger.Error(ctx, "Failed to get recent notification counts", err, map[string]interface{}{})
		return nil, contextutils.WrapError(err, "failed to get recent notification counts")
	}

	stats := map[string]interface{}{
		"total_sent":        totalSent,
		"total_invitations": totalInvitations,
		"total_reminders":   totalReminders,
		"sent_today":        sentToday,
		"sent_this_week":    sentThisWeek,
	}

	s.logger.Debug(ctx, "Notification stats retrieved", map[string]interface{}{"total_sent": totalSent})
	return stats, nil
}

// GetSentNotifications returns paginated sent notifications with filtering
func (s *WorkerService) GetSentNotifications(ctx context.Context, page, pageSize int, kind string, periodID int) (result0 []map[string]interface{}, result1 map[string]interface{}, err error) {
	ctx, span := observability.TraceWorkerFunction(ctx, "get_sent_notifications",
		attribute.Int("page", page),
		attribute.Int("page_size", pageSize),
		attribute.String("kind", kind),
		attribute.Int("period_id", periodID),
	)
	defer observability.FinishSpan(span, &err)

	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}

	// Build WHERE clause
	whereConditions := []string{}
	args := []interface{}{}
	argIndex := 1

	if kind != "" {
		whereConditions = append(whereConditions, fmt.Sprintf("sn.kind = $%d", argIndex))
		args = append(args, kind)
		argIndex++
	}

	if periodID > 0 {
		whereConditions = append(whereConditions, fmt.Sprintf("sn.period_id = $%d", argIndex))
		args = append(args, periodID)
		argIndex++
	}

	whereClause := ""
	if len(whereConditions) > 0 {
		whereClause = "WHERE " + strings.Join(whereConditions, " AND ")
	}

	// Get total count
	var totalNotifications int
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM sent_notifications sn %s", whereClause)
	err = s.db.QueryRowContext(ctx, countQuery, args...).Scan(&totalNotifications)
	if err != nil {
		s.logger.Error(ctx, "Failed to get total sent notifications", err, map[string]interface{}{})
		return nil, nil, contextutils.WrapError(err, "failed to get total sent notifications")
	}

	offset := (page - 1) * pageSize
	totalPages := (totalNotifications + pageSize - 1) / pageSize

	args = append(args, pageSize, offset)
	query := fmt.Sprintf(`
		SELECT sn.id, sn.user_id, u.username, u.email, sn.period_id, p.department, sn.kind, sn.sent_at
		FROM sent_notifications sn
		LEFT JOIN users u ON sn.user_id = u.id
		LEFT JOIN feedback_periods p ON sn.period_id = p.id
		%s
		ORDER BY sn.sent_at DESC, sn.id DESC
		LIMIT $%d OFFSET $%d
	`, whereClause, argIndex, argIndex+1)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		s.logger.Error(ctx, "Failed to get sent notifications", err, map[string]interface{}{})
		return nil, nil, contextutils.WrapError(err, "failed to get sent notifications")
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			s.logger.Error(ctx, "Failed to close rows", closeErr, map[string]interface{}{})
		}
	}()

	notifications := make([]map[string]interface{}, 0)
	for rows.Next() {
		var id, userID, notifPeriodID int
		var username, email, department sql.NullString
		var notifKind string
		var sentAt time.Time

		if err := rows.Scan(&id, &userID, &username, &email, &notifPeriodID, &department, &notifKind, &sentAt); err != nil {
			s.logger.Error(ctx, "Failed to scan sent notification", err, map[string]interface{}{})
			return nil, nil, contextutils.WrapError(err, "failed to scan sent notification")
		}

		notification := map[string]interface{}{
			"id":        id,
			"user_id":   userID,
			"period_id": notifPeriodID,
			"kind":      notifKind,
			"sent_at":   sentAt.Format(time.RFC3339),
		}
		if username.Valid {
			notification["username"] = username.String
		} else {
			notification["username"] = ""
		}
		if email.Valid {
			notification["email"] = email.String
		} else {
			notification["email"] = ""
		}
		if department.Valid {
			notification["department"] = department.String
		} else {
			notification["department"] = ""
		}

		notifications = append(notifications, notification)
	}

	if err := rows.Err(); err != nil {
		s.logger.Error(ctx, "Error iterating sent notification rows", err, map[string]interface{}{})
		return nil, nil, contextutils.WrapError(err, "error iterating sent notification rows")
	}

	pagination := map[string]interface{}{
		"page":        page,
		"page_size":   pageSize,
		"total":       totalNotifications,
		"total_pages": totalPages,
	}

	return notifications, pagination, nil
}
