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

// TemplateHandler handles the admin question template CRUD surface
type TemplateHandler struct {
	templateService services.TemplateServiceInterface
	logger          *observability.Logger
}

// NewTemplateHandler creates a new TemplateHandler instance
func NewTemplateHandler(templateService services.TemplateServiceInterface, logger *observability.Logger) *TemplateHandler {
	return &TemplateHandler{
		templateService: templateService,
		logger:          logger,
	}
}

// ListTemplates handles GET /v1/admin/templates - paginated, filterable by department
func (h *TemplateHandler) ListTemplates(c *gin.Context) {
	_, span := observability.TraceHandlerFunction(c.Request.Context(), "list_templates")
	defer observability.FinishSpan(span, nil)

	page, pageSize := ParsePagination(c, 1, 20, 100)
	filters := ParseFilters(c, "department")

	span.SetAttributes(
		attribute.Int("pagination.page", page),
		attribute.Int("pagination.page_size", pageSize),
	)

	templates, total, err := h.templateService.GetTemplatesPaginated(c.Request.Context(), page, pageSize, filters["department"])
	if err != nil {
		h.logger.Error(c.Request.Context(), "Error retrieving templates", err, map[string]interface{}{
			"page":      page,
			"page_size": pageSize,
		})
		HandleAppError(c, contextutils.WrapError(err, "failed to retrieve templates"))
		return
	}

	c.JSON(http.StatusOK, api.TemplatesResponse{
		Templates:  convertTemplatesToAPI(templates),
		Pagination: buildPagination(page, pageSize, total),
	})
}

// CreateTemplate handles POST /v1/admin/templates. Department and question
// list validation happen in the service.
func (h *TemplateHandler) CreateTemplate(c *gin.Context) {
	_, span := observability.TraceHandlerFunction(c.Request.Context(), "create_template")
	defer observability.FinishSpan(span, nil)

	var req api.TemplateRequest
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
		attribute.String("template.department", req.Department),
		attribute.String("template.name", req.Name),
		attribute.Int("template.question_count", len(req.Questions)),
	)

	template, err := h.templateService.CreateTemplate(c.Request.Context(), req.Department, req.Name, convertQuestionsToModel(req.Questions))
	if err != nil {
		h.logger.Error(c.Request.Context(), "Error creating template", err, map[string]interface{}{
			"department": req.Department,
			"name":       req.Name,
		})
		HandleAppError(c, err)
		return
	}

	h.logger.Info(c.Request.Context(), "Template created", map[string]interface{}{
		"template_id": template.ID,
		"department":  template.Department,
		"name":        template.Name,
	})

	c.JSON(http.StatusOK, convertTemplateToAPI(template))
}

// GetTemplate handles GET /v1/admin/templates/:id
func (h *TemplateHandler) GetTemplate(c *gin.Context) {
	_, span := observability.TraceHandlerFunction(c.Request.Context(), "get_template")
	defer observability.FinishSpan(span, nil)

	templateID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		HandleAppError(c, contextutils.ErrInvalidFormat)
		return
	}

	span.SetAttributes(attribute.Int("template.id", templateID))

	template, err := h.templateService.GetTemplateByID(c.Request.Context(), templateID)
	if err != nil {
		h.logger.Error(c.Request.Context(), "Error retrieving template", err, map[string]interface{}{"template_id": templateID})
		HandleAppError(c, contextutils.WrapError(err, "failed to retrieve template"))
		return
	}
	if template == nil {
		HandleAppError(c, contextutils.ErrRecordNotFound)
		return
	}

	c.JSON(http.StatusOK, convertTemplateToAPI(template))
}

// UpdateTemplate handles PUT /v1/admin/templates/:id - full replace
func (h *TemplateHandler) UpdateTemplate(c *gin.Context) {
	_, span := observability.TraceHandlerFunction(c.Request.Context(), "update_template")
	defer observability.FinishSpan(span, nil)

	templateID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		HandleAppError(c, contextutils.ErrInvalidFormat)
		return
	}

	var req api.TemplateRequest
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
		attribute.Int("template.id", templateID),
		attribute.String("template.department", req.Department),
		attribute.Int("template.question_count", len(req.Questions)),
	)

	template, err := h.templateService.UpdateTemplate(c.Request.Context(), templateID, req.Department, req.Name, convertQuestionsToModel(req.Questions))
	if err != nil {
		h.logger.Error(c.Request.Context(), "Error updating template", err, map[string]interface{}{"template_id": templateID})
		HandleAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, convertTemplateToAPI(template))
}

// DeleteTemplate handles DELETE /v1/admin/templates/:id. Periods keep their
// copied question list, so deleting a template never touches existing periods.
func (h *TemplateHandler) DeleteTemplate(c *gin.Context) {
	_, span := observability.TraceHandlerFunction(c.Request.Context(), "delete_template")
	defer observability.FinishSpan(span, nil)

	templateID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		HandleAppError(c, contextutils.ErrInvalidFormat)
		return
	}

	span.SetAttributes(attribute.Int("template.id", templateID))

	if err := h.templateService.DeleteTemplate(c.Request.Context(), templateID); err != nil {
		h.logger.Error(c.Request.Context(), "Error deleting template", err, map[string]interface{}{"template_id": templateID})
		HandleAppError(c, err)
		return
	}

	h.logger.Info(c.Request.Context(), "Template deleted", map[string]interface{}{"template_id": templateID})

	c.JSON(http.StatusOK, api.SuccessResponse{
		Success: boolPtr(true),
		Message: stringPtr("Template deleted successfully"),
	})
}
