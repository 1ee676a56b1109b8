package services

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"feedbackapp/internal/observability"
)

// CleanupService handles database maintenance and cleanup tasks
type CleanupService struct {
	db     *sql.DB
	logger *observability.Logger
}

// NewCleanupServiceWithLogger creates a new cleanup service with logger
func NewCleanupServiceWithLogger(db *sql.DB, logger *observability.Logger) *CleanupService {
	return &CleanupService{
		db:     db,
		logger: logger,
	}
}

// CleanupOrphanedNotifications removes sent notification records whose user or
// period no longer exists. The ledger has no foreign keys so deletes elsewhere
// can leave rows behind.
func (c *CleanupService) CleanupOrphanedNotifications(ctx context.Context) (err error) {
	ctx, span := observability.TraceCleanupFunction(ctx, "cleanup_orphaned_notifications")
	defer func() {
		if err != nil {
			span.RecordError(err, trace.WithStackTrace(true))
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	// Check if database is available
	if c.db == nil {
		return errors.New("database connection not available")
	}

	var count int
	err = c.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM sent_notifications sn
		LEFT JOIN users u ON sn.user_id = u.id
		LEFT JOIN feedback_periods p ON sn.period_id = p.id
		WHERE u.id IS NULL OR p.id IS NULL
	`).Scan(&count)
	if err != nil {
		span.SetAttributes(attribute.String("error", err.Error()))
		return err
	}

	span.SetAttributes(attribute.Int("cleanup.orphaned_notifications_count", count))

	if count == 0 {
		c.logger.Info(ctx, "No orphaned notifications found to cleanup", map[string]interface{}{})
		span.SetAttributes(attribute.String("cleanup.result", "no_orphaned_notifications"))
		return nil
	}

	c.logger.Info(ctx, "Found orphaned notifications to cleanup", map[string]interface{}{"count": count})

	result, err := c.db.ExecContext(ctx, `
		DELETE FROM sent_notifications
		WHERE user_id NOT IN (SELECT id FROM users)
		   OR period_id NOT IN (SELECT id FROM feedback_periods)
	`)
	if err != nil {
		span.SetAttributes(attribute.String("error", err.Error()))
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		span.SetAttributes(attribute.String("error", err.Error()))
		return err
	}

	span.SetAttributes(
		attribute.Int64("cleanup.rows_affected", rowsAffected),
		attribute.String("cleanup.result", "success"),
	)

	c.logger.Info(ctx, "Successfully cleaned up orphaned notifications", map[string]interface{}{"rows_affected": rowsAffected})
	return nil
}

// CleanupStaleWorkerStatus removes status rows for worker instances that have
// not sent a heartbeat in over seven days. Redeploys with new instance names
// accumulate dead rows otherwise.
func (c *CleanupService) CleanupStaleWorkerStatus(ctx context.Context) (err error) {
	ctx, span := observability.TraceCleanupFunction(ctx, "cleanup_stale_worker_status")
	defer func() {
		if err != nil {
			span.RecordError(err, trace.WithStackTrace(true))
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	// Check if database is available
	if c.db == nil {
		return errors.New("database connection not available")
	}

	var count int
	err = c.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM worker_status
		WHERE last_heartbeat IS NULL OR last_heartbeat < NOW() - INTERVAL '7 days'
	`).Scan(&count)
	if err != nil {
		span.SetAttributes(attribute.String("error", err.Error()))
		return err
	}

	span.SetAttributes(attribute.Int("cleanup.stale_worker_status_count", count))

	if count == 0 {
		c.logger.Info(ctx, "No stale worker status rows found to cleanup", map[string]interface{}{})
		span.SetAttributes(attribute.String("cleanup.result", "no_stale_worker_status"))
		return nil
	}

	c.logger.Info(ctx, "Found stale worker status rows to cleanup", map[string]interface{}{"count": count})

	result, err := c.db.ExecContext(ctx, `
		DELETE FROM worker_status
		WHERE last_heartbeat IS NULL OR last_heartbeat < NOW() - INTERVAL '7 days'
	`)
	if err != nil {
		span.SetAttributes(attribute.String("error", err.Error()))
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		span.SetAttributes(attribute.String("error", err.Error()))
		return err
	}

	span.SetAttributes(
		attribute.Int64("cleanup.rows_affected", rowsAffected),
		attribute.String("cleanup.result", "success"),
	)

	c.logger.Info(ctx, "Successfully cleaned up stale worker status rows", map[string]interface{}{"rows_affected": rowsAffected})
	return nil
}

// RunFullCleanup performs all cleanup operations
func (c *CleanupService) RunFullCleanup(ctx context.Context) (err error) {
	ctx, span := observability.TraceCleanupFunction(ctx, "run_full_cleanup")
	defer func() {
		if err != nil {
			span.RecordError(err, trace.WithStackTrace(true))
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	span.SetAttributes(attribute.String("cleanup.start_time", time.Now().Format(time.RFC3339)))

	c.logger.Info(ctx, "Starting database cleanup", map[string]interface{}{"start_time": time.Now().Format(time.RFC3339)})

	if err = c.CleanupOrphanedNotifications(ctx); err != nil {
		c.logger.Error(ctx, "Failed to cleanup orphaned notifications", err, map[string]interface{}{})
		span.SetAttributes(attribute.String("error", err.Error()))
		return err
	}

	if err := c.CleanupStaleWorkerStatus(ctx); err != nil {
		c.logger.Error(ctx, "Failed to cleanup stale worker status rows", err, map[string]interface{}{})
		span.SetAttributes(attribute.String("error", err.Error()))
		return err
	}

	span.SetAttributes(
		attribute.String("cleanup.end_time", time.Now().Format(time.RFC3339)),
		attribute.String("cleanup.result", "success"),
	)

	c.logger.Info(ctx, "Database cleanup completed successfully", map[string]interface{}{"end_time": time.Now().Format(time.RFC3339)})
	return nil
}

// GetCleanupStats returns statistics about cleanup operations
func (c *CleanupService) GetCleanupStats(ctx context.Context) (result0 map[string]int, err error) {
	ctx, span := observability.TraceCleanupFunction(ctx, "get_cleanup_stats")
	defer func() {
		if err != nil {
			span.RecordError(err, trace.WithStackTrace(true))
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	// Check if database is available
	if c.db == nil {
		return nil, errors.New("database connection not available")
	}

	stats := make(map[string]int)

	var orphanedCount int
	err = c.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM sent_notifications sn
		LEFT JOIN users u ON sn.user_id = u.id
		LEFT JOIN feedback_periods p ON sn.period_id = p.id
		WHERE u.id IS NULL OR p.id IS NULL
	`).Scan(&orphanedCount)
	if err != nil {
		span.SetAttributes(attribute.String("error", err.Error()))
		return nil, err
	}
	stats["orphaned_notifications"] = orphanedCount

	var staleCount int
	err = c.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM worker_status
		WHERE last_heartbeat IS NULL OR last_heartbeat < NOW() - INTERVAL '7 days'
	`).Scan(&staleCount)
	if err != nil {
		span.SetAttributes(attribute.String("error", err.Error()))
		return nil, err
	}
	stats["stale_worker_status"] = staleCount

	span.SetAttributes(
		attribute.Int("cleanup.stats.orphaned_notifications", orphanedCount),
		attribute.Int("cleanup.stats.stale_worker_status", staleCount),
	)

	return stats, nil
}
