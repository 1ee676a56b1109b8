package handlers

import (
	"net/http"
	"strconv"
	"time"

	"feedbackapp/internal/api"
	"feedbackapp/internal/config"
	"feedbackapp/internal/models"
	"feedbackapp/internal/observability"
	"feedbackapp/internal/services"
	contextutils "feedbackapp/internal/utils"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
)

// ManualTriggerSettingKey is the worker_settings key the backend writes and the
// worker polls to start an out-of-schedule notification run.
const ManualTriggerSettingKey = config.WorkerManualTriggerKey

// WorkerAdminHandler exposes the notification worker control endpoints. The
// worker runs as a separate process, so every operation goes through the
// shared database: pause and trigger are settings the worker polls, status
// comes from the heartbeat rows the worker maintains.
type WorkerAdminHandler struct {
	workerService services.WorkerServiceInterface
	logger        *observability.Logger
}

// NewWorkerAdminHandlerWithLogger creates a new WorkerAdminHandler
func NewWorkerAdminHandlerWithLogger(workerService services.WorkerServiceInterface, logger *observability.Logger) *WorkerAdminHandler {
	if workerService == nil {
		panic("workerService cannot be nil")
	}
	if logger == nil {
		panic("logger cannot be nil")
	}
	return &WorkerAdminHandler{
		workerService: workerService,
		logger:        logger,
	}
}

// GetWorkerStatus handles GET /v1/admin/worker/status
func (h *WorkerAdminHandler) GetWorkerStatus(c *gin.Context) {
	_, span := observability.TraceHandlerFunction(c.Request.Context(), "get_worker_status")
	defer span.End()

	ctx := c.Request.Context()

	statuses, err := h.workerService.GetAllWorkerStatuses(ctx)
	if err != nil {
		h.logger.Error(ctx, "Failed to get worker statuses", err, map[string]interface{}{})
		HandleAppError(c, contextutils.WrapError(err, "failed to get worker statuses"))
		return
	}
	if statuses == nil {
		statuses = []models.WorkerStatus{}
	}

	globalPaused, err := h.workerService.IsGlobalPaused(ctx)
	if err != nil {
		h.logger.Warn(ctx, "Failed to get global pause state, defaulting to false", map[string]interface{}{"error": err.Error()})
		globalPaused = false
	}

	healthyCount := 0
	for _, status := range statuses {
		healthy, healthErr := h.workerService.IsWorkerHealthy(ctx, status.WorkerInstance)
		if healthErr != nil {
			h.logger.Warn(ctx, "Failed to check worker health", map[string]interface{}{
				"worker_instance": status.WorkerInstance,
				"error":           healthErr.Error(),
			})
			continue
		}
		if healthy {
			healthyCount++
		}
	}

	span.SetAttributes(
		attribute.Int("worker.total_count", len(statuses)),
		attribute.Int("worker.healthy_count", healthyCount),
		attribute.Bool("worker.global_paused", globalPaused),
	)

	c.JSON(http.StatusOK, gin.H{
		"workers":       statuses,
		"global_paused": globalPaused,
		"healthy_count": healthyCount,
		"total_count":   len(statuses),
	})
}

// PauseWorker handles POST /v1/admin/worker/pause
func (h *WorkerAdminHandler) PauseWorker(c *gin.Context) {
	_, span := observability.TraceHandlerFunction(c.Request.Context(), "pause_worker")
	defer span.End()

	ctx := c.Request.Context()

	if err := h.workerService.SetGlobalPause(ctx, true); err != nil {
		h.logger.Error(ctx, "Failed to pause worker", err, map[string]interface{}{})
		HandleAppError(c, contextutils.WrapError(err, "failed to pause worker"))
		return
	}

	h.logger.Info(ctx, "Notification worker paused by admin", map[string]interface{}{})
	c.JSON(http.StatusOK, api.SuccessResponse{
		Success: boolPtr(true),
		Message: stringPtr("Notification worker paused"),
	})
}

// ResumeWorker handles POST /v1/admin/worker/resume
func (h *WorkerAdminHandler) ResumeWorker(c *gin.Context) {
	_, span := observability.TraceHandlerFunction(c.Request.Context(), "resume_worker")
	defer span.End()

	ctx := c.Request.Context()

	if err := h.workerService.SetGlobalPause(ctx, false); err != nil {
		h.logger.Error(ctx, "Failed to resume worker", err, map[string]interface{}{})
		HandleAppError(c, contextutils.WrapError(err, "failed to resume worker"))
		return
	}

	h.logger.Info(ctx, "Notification worker resumed by admin", map[string]interface{}{})
	c.JSON(http.StatusOK, api.SuccessResponse{
		Success: boolPtr(true),
		Message: stringPtr("Notification worker resumed"),
	})
}

// TriggerWorkerRun handles POST /v1/admin/worker/trigger. The worker picks the
// timestamp up on its next settings poll, so the run starts within one check
// interval rather than immediately.
func (h *WorkerAdminHandler) TriggerWorkerRun(c *gin.Context) {
	_, span := observability.TraceHandlerFunction(c.Request.Context(), "trigger_worker_run")
	defer span.End()

	ctx := c.Request.Context()

	requestedAt := time.Now().UTC().Format(time.RFC3339Nano)
	if err := h.workerService.SetSetting(ctx, ManualTriggerSettingKey, requestedAt); err != nil {
		h.logger.Error(ctx, "Failed to request worker run", err, map[string]interface{}{})
		HandleAppError(c, contextutils.WrapError(err, "failed to request worker run"))
		return
	}

	h.logger.Info(ctx, "Manual worker run requested by admin", map[string]interface{}{"requested_at": requestedAt})
	c.JSON(http.StatusOK, api.SuccessResponse{
		Success: boolPtr(true),
		Message: stringPtr("Notification run requested"),
	})
}

// GetSentNotifications handles GET /v1/admin/worker/notifications
func (h *WorkerAdminHandler) GetSentNotifications(c *gin.Context) {
	_, span := observability.TraceHandlerFunction(c.Request.Context(), "get_sent_notifications")
	defer span.End()

	ctx := c.Request.Context()

	page, pageSize := ParsePagination(c, 1, 20, 100)
	filters := ParseFilters(c, "kind", "period_id")

	kind := filters["kind"]
	periodID := 0
	if raw, ok := filters["period_id"]; ok {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			HandleAppError(c, contextutils.ErrInvalidFormat)
			return
		}
		periodID = parsed
	}

	span.SetAttributes(
		attribute.Int("pagination.page", page),
		attribute.Int("pagination.page_size", pageSize),
		attribute.String("filter.kind", kind),
		attribute.Int("filter.period_id", periodID),
	)

	notifications, pagination, err := h.workerService.GetSentNotifications(ctx, page, pageSize, kind, periodID)
	if err != nil {
		h.logger.Error(ctx, "Failed to get sent notifications", err, map[string]interface{}{})
		HandleAppError(c, contextutils.WrapError(err, "failed to get sent notifications"))
		return
	}
	if notifications == nil {
		notifications = []map[string]interface{}{}
	}

	c.JSON(http.StatusOK, gin.H{
		"notifications": notifications,
		"pagination":    pagination,
	})
}
