package handlers

import (
	"net/http"

	"feedbackapp/internal/api"
	"feedbackapp/internal/observability"
	"feedbackapp/internal/services"
	contextutils "feedbackapp/internal/utils"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
)

// StatsHandler serves the admin statistics dashboard endpoints
type StatsHandler struct {
	statsService services.StatsServiceInterface
	logger       *observability.Logger
}

// NewStatsHandler creates a new StatsHandler instance
func NewStatsHandler(statsService services.StatsServiceInterface, logger *observability.Logger) *StatsHandler {
	return &StatsHandler{
		statsService: statsService,
		logger:       logger,
	}
}

// DepartmentStats handles GET /v1/admin/stats/departments - one aggregated
// entry per configured department, in configured order
func (h *StatsHandler) DepartmentStats(c *gin.Context) {
	_, span := observability.TraceHandlerFunction(c.Request.Context(), "department_stats")
	defer observability.FinishSpan(span, nil)

	stats, err := h.statsService.GetDepartmentStats(c.Request.Context())
	if err != nil {
		h.logger.Error(c.Request.Context(), "Error aggregating department stats", err, nil)
		HandleAppError(c, contextutils.WrapError(err, "failed to aggregate statistics"))
		return
	}

	span.SetAttributes(attribute.Int("stats.department_count", len(stats)))

	c.JSON(http.StatusOK, api.DepartmentStatsResponse{
		Departments: convertDepartmentStatsListToAPI(stats),
	})
}

// DepartmentDetail handles GET /v1/admin/stats/departments/:name - one
// department's aggregate plus its most recent submissions
func (h *StatsHandler) DepartmentDetail(c *gin.Context) {
	_, span := observability.TraceHandlerFunction(c.Request.Context(), "department_detail")
	defer observability.FinishSpan(span, nil)

	department := c.Param("name")
	span.SetAttributes(attribute.String("stats.department", department))

	stats, recent, err := h.statsService.GetDepartmentDetail(c.Request.Context(), department)
	if err != nil {
		h.logger.Warn(c.Request.Context(), "Error retrieving department detail", map[string]interface{}{
			"department": department,
			"error":      err.Error(),
		})
		HandleAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, api.DepartmentStatsDetail{
		Stats:          convertDepartmentStatsToAPI(stats),
		RecentFeedback: convertFeedbackListToAPI(recent),
	})
}

// Summary handles GET /v1/admin/stats/summary - whole-system totals for the
// dashboard header
func (h *StatsHandler) Summary(c *gin.Context) {
	_, span := observability.TraceHandlerFunction(c.Request.Context(), "stats_summary")
	defer observability.FinishSpan(span, nil)

	summary, err := h.statsService.GetSummary(c.Request.Context())
	if err != nil {
		h.logger.Error(c.Request.Context(), "Error computing summary stats", err, nil)
		HandleAppError(c, contextutils.WrapError(err, "failed to compute summary"))
		return
	}

	c.JSON(http.StatusOK, convertSummaryToAPI(summary))
}
