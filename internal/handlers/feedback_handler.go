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

// FeedbackHandler handles feedback submission, the user's own submission
// history, and the admin review surface
type FeedbackHandler struct {
	feedbackService services.FeedbackServiceInterface
	userService     services.UserServiceInterface
	logger          *observability.Logger
}

// NewFeedbackHandler creates a new FeedbackHandler instance
func NewFeedbackHandler(feedbackService services.FeedbackServiceInterface, userService services.UserServiceInterface, logger *observability.Logger) *FeedbackHandler {
	return &FeedbackHandler{
		feedbackService: feedbackService,
		userService:     userService,
		logger:          logger,
	}
}

// SubmitFeedback handles POST /v1/feedback. The service verifies the period
// window, the department rules, the question ids, and the rating bounds; a
// duplicate (user, period) submission comes back as a conflict.
func (h *FeedbackHandler) SubmitFeedback(c *gin.Context) {
	_, span := observability.TraceHandlerFunction(c.Request.Context(), "submit_feedback")
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

	var req api.FeedbackSubmission
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
		attribute.Int("feedback.period_id", req.PeriodID),
		attribute.Int("feedback.answer_count", len(req.Answers)),
	)

	additionalComment := ""
	if req.AdditionalComment != nil {
		additionalComment = *req.AdditionalComment
	}

	feedback, err := h.feedbackService.SubmitFeedback(
		c.Request.Context(),
		user,
		req.PeriodID,
		convertAnswerSubmissions(req.Answers),
		additionalComment,
	)
	if err != nil {
		h.logger.Warn(c.Request.Context(), "Feedback submission rejected", map[string]interface{}{
			"user_id":   userID,
			"period_id": req.PeriodID,
			"error":     err.Error(),
		})
		HandleAppError(c, err)
		return
	}

	span.SetAttributes(attribute.Int("feedback.id", feedback.ID))

	h.logger.Info(c.Request.Context(), "Feedback submitted", map[string]interface{}{
		"feedback_id":       feedback.ID,
		"user_id":           userID,
		"period_id":         req.PeriodID,
		"target_department": feedback.TargetDepartment,
	})

	c.JSON(http.StatusOK, convertFeedbackToAPI(feedback))
}

// MyFeedback handles GET /v1/feedback/mine - the requesting user's own
// submissions with answers, newest first
func (h *FeedbackHandler) MyFeedback(c *gin.Context) {
	_, span := observability.TraceHandlerFunction(c.Request.Context(), "my_feedback")
	defer observability.FinishSpan(span, nil)

	userID, err := GetCurrentUserID(c)
	if err != nil {
		HandleAppError(c, contextutils.ErrUnauthorized)
		return
	}

	span.SetAttributes(attribute.Int("user.id", userID))

	feedbacks, err := h.feedbackService.GetUserFeedback(c.Request.Context(), userID)
	if err != nil {
		h.logger.Error(c.Request.Context(), "Error retrieving user feedback", err, map[string]interface{}{"user_id": userID})
		HandleAppError(c, contextutils.WrapError(err, "failed to retrieve feedback"))
		return
	}

	span.SetAttributes(attribute.Int("feedback.count", len(feedbacks)))

	c.JSON(http.StatusOK, api.MyFeedbackResponse{
		Feedback: convertFeedbackListToAPI(feedbacks),
	})
}

// ListFeedback handles GET /v1/admin/feedback - paginated, filterable by
// target department and period
func (h *FeedbackHandler) ListFeedback(c *gin.Context) {
	_, span := observability.TraceHandlerFunction(c.Request.Context(), "list_feedback")
	defer observability.FinishSpan(span, nil)

	page, pageSize := ParsePagination(c, 1, 20, 100)
	filters := ParseFilters(c, "department", "period_id")

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
	)

	feedbacks, total, err := h.feedbackService.GetFeedbackPaginated(c.Request.Context(), page, pageSize, filters["department"], periodID)
	if err != nil {
		h.logger.Error(c.Request.Context(), "Error retrieving feedback", err, map[string]interface{}{
			"page":      page,
			"page_size": pageSize,
		})
		HandleAppError(c, contextutils.WrapError(err, "failed to retrieve feedback"))
		return
	}

	c.JSON(http.StatusOK, api.FeedbackListResponse{
		Feedback:   convertFeedbackListToAPI(feedbacks),
		Pagination: buildPagination(page, pageSize, total),
	})
}

// GetFeedback handles GET /v1/admin/feedback/:id
func (h *FeedbackHandler) GetFeedback(c *gin.Context) {
	_, span := observability.TraceHandlerFunction(c.Request.Context(), "get_feedback")
	defer observability.FinishSpan(span, nil)

	feedbackID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		HandleAppError(c, contextutils.ErrInvalidFormat)
		return
	}

	span.SetAttributes(attribute.Int("feedback.id", feedbackID))

	feedback, err := h.feedbackService.GetFeedbackByID(c.Request.Context(), feedbackID)
	if err != nil {
		h.logger.Error(c.Request.Context(), "Error retrieving feedback", err, map[string]interface{}{"feedback_id": feedbackID})
		HandleAppError(c, contextutils.WrapError(err, "failed to retrieve feedback"))
		return
	}
	if feedback == nil {
		HandleAppError(c, contextutils.ErrRecordNotFound)
		return
	}

	c.JSON(http.StatusOK, convertFeedbackToAPI(feedback))
}

// DeleteFeedback handles DELETE /v1/admin/feedback/:id. Submissions are
// otherwise immutable; this exists for data hygiene only.
func (h *FeedbackHandler) DeleteFeedback(c *gin.Context) {
	_, span := observability.TraceHandlerFunction(c.Request.Context(), "delete_feedback")
	defer observability.FinishSpan(span, nil)

	feedbackID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		HandleAppError(c, contextutils.ErrInvalidFormat)
		return
	}

	span.SetAttributes(attribute.Int("feedback.id", feedbackID))

	if err := h.feedbackService.DeleteFeedback(c.Request.Context(), feedbackID); err != nil {
		h.logger.Error(c.Request.Context(), "Error deleting feedback", err, map[string]interface{}{"feedback_id": feedbackID})
		HandleAppError(c, err)
		return
	}

	h.logger.Info(c.Request.Context(), "Feedback deleted", map[string]interface{}{"feedback_id": feedbackID})

	c.JSON(http.StatusOK, api.SuccessResponse{
		Success: boolPtr(true),
		Message: stringPtr("Feedback deleted successfully"),
	})
}
