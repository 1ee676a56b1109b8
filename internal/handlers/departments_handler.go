package handlers

import (
	"net/http"

	"feedbackapp/internal/api"
	"feedbackapp/internal/config"
	"feedbackapp/internal/observability"

	"github.com/gin-gonic/gin"
)

// DepartmentsHandler serves the configured department list
type DepartmentsHandler struct {
	cfg    *config.Config
	logger *observability.Logger
}

// NewDepartmentsHandler creates a new DepartmentsHandler instance
func NewDepartmentsHandler(cfg *config.Config, logger *observability.Logger) *DepartmentsHandler {
	return &DepartmentsHandler{
		cfg:    cfg,
		logger: logger,
	}
}

// List handles GET /v1/departments. The list is immutable at runtime, so the
// response is built straight from config in the configured order.
func (h *DepartmentsHandler) List(c *gin.Context) {
	_, span := observability.TraceHandlerFunction(c.Request.Context(), "list_departments")
	defer observability.FinishSpan(span, nil)

	departments := make([]api.Department, 0, len(h.cfg.Departments))
	for _, d := range h.cfg.Departments {
		departments = append(departments, api.Department{
			Name:        d.Name,
			Description: d.Description,
		})
	}

	c.JSON(http.StatusOK, api.DepartmentsResponse{
		Departments: departments,
	})
}
