package handlers

import (
	"net/http"
	"strconv"

	"feedbackapp/internal/api"
	"feedbackapp/internal/observability"
	"feedbackapp/internal/services"
	contextutils "feedbackapp/internal/utils"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
)

// PeriodHandler handles the admin feedback period CRUD surface and the
// authenticated availability read path
type PeriodHandler struct {
	periodService services.PeriodServiceInterface
	userService   services.UserServiceInterface
	logger        *observability.Logger
}

// NewPeriodHandler creates a new PeriodHandler instance
func NewPeriodHandler(periodService services.PeriodServiceInterface, userService services.UserServiceInterface, logger *observability.Logger) *PeriodHandler {
	return &PeriodHandler{
		periodService: periodService,
		userService:   userService,
		logger:        logger,
	}
}

// ListPeriods handles GET /v1/admin/periods - paginated, filterable by
// department and active flag
func (h *PeriodHandler) ListPeriods(c *gin.Context) {
	_, span := observability.TraceHandlerFunction(c.Request.Context(), "list_periods")
	defer observability.FinishSpan(span, nil)

	page, pageSize := ParsePagination(c, 1, 20, 100)
	filters := ParseFilters(c, "department", "active")

	span.SetAttributes(
		attribute.Int("pagination.page", page),
		attribute.Int("pagination.page_size", pageSize),
	)

	periods, total, err := h.periodService.GetPeriodsPaginated(c.Request.Context(), page, pageSize, filters["department"], filters["active"])
	if err != nil {
		h.logger.Error(c.Request.Context(), "Error retrieving periods", err, map[string]interface{}{
			"page":      page,
			"page_size": pageSize,
		})
		HandleAppError(c, contextutils.WrapError(err, "failed to retrieve periods"))
		return
	}

	c.JSON(http.StatusOK, api.PeriodsResponse{
		Periods:    convertPeriodsToAPI(periods),
		Pagination: buildPagination(page, pageSize, total),
	})
}

// CreatePeriod handles POST /v1/admin/periods. Questions may be given inline
// or copied from a template via template_id; the service validates the window,
// the department, and the question list. Periods are created inactive unless
// the request says otherwise.
func (h *PeriodHandler) CreatePeriod(c *gin.Context) {
	_, span := observability.TraceHandlerFunction(c.Request.Context(), "create_period")
	defer observability.FinishSpan(span, nil)

	var req api.PeriodRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		HandleAppError(c, contextutils.NewAppErrorWithCause(
			contextutils.ErrorCodeInvalidInput,
			contextutils.SeverityWarn,
			"Invalid request data",
			"",
			err,
		))
		return
	}

	active := req.Active != nil && *req.Active

	span.SetAttributes(
		attribute.String("period.department", req.Department),
		attribute.Bool("period.active", active),
		attribute.Int("period.question_count", len(req.Questions)),
		attribute.Bool("period.from_template", req.TemplateID != nil),
	)

	period, err := h.periodService.CreatePeriod(
		c.Request.Context(),
		req.Department,
		req.StartDate,
		req.EndDate,
		convertQuestionsToModel(req.Questions),
		req.TemplateID,
		active,
	)
	if err != nil {
		h.logger.Error(c.Request.Context(), "Error creating period", err, map[string]interface{}{
			"department": req.Department,
		})
		HandleAppError(c, err)
		return
	}

	h.logger.Info(c.Request.Context(), "Period created", map[string]interface{}{
		"period_id":  period.ID,
		"department": period.Department,
		"active":     period.Active,
	})

	c.JSON(http.StatusOK, convertPeriodToAPI(period))
}

// GetPeriod handles GET /v1/admin/periods/:id
func (h *PeriodHandler) GetPeriod(c *gin.Context) {
	_, span := observability.TraceHandlerFunction(c.Request.Context(), "get_period")
	defer observability.FinishSpan(span, nil)

	periodID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		HandleAppError(c, contextutils.ErrInvalidFormat)
		return
	}

	span.SetAttributes(attribute.Int("period.id", periodID))

	period, err := h.periodService.GetPeriodByID(c.Request.Context(), periodID)
	if err != nil {
		h.logger.Error(c.Request.Context(), "Error retrieving period", err, map[string]interface{}{"period_id": periodID})
		HandleAppError(c, contextutils.WrapError(err, "failed to retrieve period"))
		return
	}
	if period == nil {
		HandleAppError(c, contextutils.ErrPeriodNotFound)
		return
	}

	c.JSON(http.StatusOK, convertPeriodToAPI(period))
}

// UpdatePeriod handles PUT /v1/admin/periods/:id - full replace of the
// department, window, and question list. The active flag is only changed
// through the PATCH endpoint.
func (h *PeriodHandler) UpdatePeriod(c *gin.Context) {
	_, span := observability.TraceHandlerFunction(c.Request.Context(), "update_period")
	defer observability.FinishSpan(span, nil)

	periodID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		HandleAppError(c, contextutils.ErrInvalidFormat)
		return
	}

	var req api.PeriodRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		HandleAppError(c, contextutils.NewAppErrorWithCause(
			contextutils.ErrorCodeInvalidInput,
			contextutils.SeverityWarn,
			"Invalid request data",
			"",
			err,
		))
		return
	}

	span.SetAttributes(
		attribute.Int("period.id", periodID),
		attribute.String("period.department", req.Department),
		attribute.Int("period.question_count", len(req.Questions)),
	)

	period, err := h.periodService.UpdatePeriod(
		c.Request.Context(),
		periodID,
		req.Department,
		req.StartDate,
		req.EndDate,
		convertQuestionsToModel(req.Questions),
	)
	if err != nil {
		h.logger.Error(c.Request.Context(), "Error updating period", err, map[string]interface{}{"period_id": periodID})
		HandleAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, convertPeriodToAPI(period))
}

// SetPeriodActive handles PATCH /v1/admin/periods/:id/active
func (h *PeriodHandler) SetPeriodActive(c *gin.Context) {
	_, span := observability.TraceHandlerFunction(c.Request.Context(), "set_period_active")
	defer observability.FinishSpan(span, nil)

	periodID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		HandleAppError(c, contextutils.ErrInvalidFormat)
		return
	}

	var req api.PeriodActiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		HandleAppError(c, contextutils.NewAppErrorWithCause(
			contextutils.ErrorCodeInvalidInput,
			contextutils.SeverityWarn,
			"Invalid request data",
			"",
			err,
		))
		return
	}

	span.SetAttributes(
		attribute.Int("period.id", periodID),
		attribute.Bool("period.active", req.Active),
	)

	period, err := h.periodService.SetPeriodActive(c.Request.Context(), periodID, req.Active)
	if err != nil {
		h.logger.Error(c.Request.Context(), "Error toggling period active flag", err, map[string]interface{}{"period_id": periodID})
		HandleAppError(c, err)
		return
	}

	h.logger.Info(c.Request.Context(), "Period active flag changed", map[string]interface{}{
		"period_id": period.ID,
		"active":    period.Active,
	})

	c.JSON(http.StatusOK, convertPeriodToAPI(period))
}

// DeletePeriod handles DELETE /v1/admin/periods/:id
func (h *PeriodHandler) DeletePeriod(c *gin.Context) {
	_, span := observability.TraceHandlerFunction(c.Request.Context(), "delete_period")
	defer observability.FinishSpan(span, nil)

	periodID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		HandleAppError(c, contextutils.ErrInvalidFormat)
		return
	}

	span.SetAttributes(attribute.Int("period.id", periodID))

	if err := h.periodService.DeletePeriod(c.Request.Context(), periodID); err != nil {
		h.logger.Error(c.Request.Context(), "Error deleting period", err, map[string]interface{}{"period_id": periodID})
		HandleAppError(c, err)
		return
	}

	h.logger.Info(c.Request.Context(), "Period deleted", map[string]interface{}{"period_id": periodID})

	c.JSON(http.StatusOK, api.SuccessResponse{
		Success: boolPtr(true),
		Message: stringPtr("Period deleted successfully"),
	})
}

// AvailablePeriods handles GET /v1/periods/available - active, unexpired
// periods the requesting user can still answer. The user's own department and
// departments already answered are excluded.
func (h *PeriodHandler) AvailablePeriods(c *gin.Context) {
	_, span := observability.TraceHandlerFunction(c.Request.Context(), "available_periods")
	defer observability.FinishSpan(span, nil)

	userID, err := GetCurrentUserID(c)
	if err != nil {
		HandleAppError(c, contextutils.ErrUnauthorized)
		return
	}

	span.SetAttributes(attribute.Int("user.id", userID))

	user, err := h.userService.GetUserByID(c.Request.Context(), userID)
	if err != nil {
		h.logger.Error(c.Request.Context(), "Error retrieving user", err, map[string]interface{}{"user_id": userID})
		HandleAppError(c, contextutils.WrapError(err, "failed to retrieve user"))
		return
	}
	if user == nil {
		HandleAppError(c, contextutils.ErrUnauthorized)
		return
	}

	periods, err := h.periodService.GetAvailablePeriods(c.Request.Context(), user.ID, user.Department)
	if err != nil {
		h.logger.Error(c.Request.Context(), "Error retrieving available periods", err, map[string]interface{}{"user_id": userID})
		HandleAppError(c, contextutils.WrapError(err, "failed to retrieve available periods"))
		return
	}

	span.SetAttributes(attribute.Int("period.available_count", len(periods)))

	c.JSON(http.StatusOK, api.AvailablePeriodsResponse{
		Periods: convertPeriodsToAPI(periods),
	})
}
