package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"feedbackapp/internal/api"
	"feedbackapp/internal/config"
	"feedbackapp/internal/observability"
	"feedbackapp/internal/services"
	contextutils "feedbackapp/internal/utils"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
)

// UserAdminHandler handles user management operations, both the admin CRUD
// surface and the authenticated user's own profile endpoints
type UserAdminHandler struct {
	userService services.UserServiceInterface
	cfg         *config.Config
	logger      *observability.Logger
}

// NewUserAdminHandler creates a new UserAdminHandler instance
func NewUserAdminHandler(userService services.UserServiceInterface, cfg *config.Config, logger *observability.Logger) *UserAdminHandler {
	return &UserAdminHandler{
		userService: userService,
		cfg:         cfg,
		logger:      logger,
	}
}

// ListUsers handles GET /v1/admin/users - paginated user listing with filters
func (h *UserAdminHandler) ListUsers(c *gin.Context) {
	_, span := observability.TraceHandlerFunction(c.Request.Context(), "list_users")
	defer observability.FinishSpan(span, nil)

	page, pageSize := ParsePagination(c, 1, 20, 100)
	filters := ParseFilters(c, "search", "department", "is_admin")

	span.SetAttributes(
		attribute.Int("pagination.page", page),
		attribute.Int("pagination.page_size", pageSize),
	)

	users, total, err := h.userService.GetUsersPaginated(
		c.Request.Context(),
		page,
		pageSize,
		filters["search"],
		filters["department"],
		filters["is_admin"],
	)
	if err != nil {
		h.logger.Error(c.Request.Context(), "Error retrieving paginated users", err, map[string]interface{}{
			"page":      page,
			"page_size": pageSize,
		})
		HandleAppError(c, contextutils.WrapError(err, "failed to retrieve users"))
		return
	}

	c.JSON(http.StatusOK, api.UsersListResponse{
		Users:      convertUsersToAPI(users),
		Pagination: buildPagination(page, pageSize, total),
	})
}

// CreateUser handles POST /v1/admin/users - create new user (admin only)
func (h *UserAdminHandler) CreateUser(c *gin.Context) {
	_, span := observability.TraceHandlerFunction(c.Request.Context(), "create_user")
	defer observability.FinishSpan(span, nil)

	var req api.UserCreateRequest
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

	if req.Username == "" || req.Password == "" || req.Email == nil || *req.Email == "" {
		HandleAppError(c, contextutils.ErrMissingRequired)
		return
	}

	if len(req.Username) < 3 || len(req.Username) > 50 || !usernameRegex.MatchString(req.Username) {
		HandleAppError(c, contextutils.ErrInvalidFormat)
		return
	}

	if len(req.Password) < 8 {
		HandleAppError(c, contextutils.ErrInvalidFormat)
		return
	}

	email := strings.ToLower(string(*req.Email))
	if !contextutils.IsValidEmail(email) {
		HandleAppError(c, contextutils.ErrInvalidFormat)
		return
	}

	department, ok := h.cfg.NormalizeDepartment(req.Department)
	if !ok {
		HandleAppError(c, contextutils.ErrUnknownDepartment)
		return
	}

	isAdmin := req.IsAdmin != nil && *req.IsAdmin

	span.SetAttributes(
		attribute.String("user.username", req.Username),
		attribute.String("user.department", department),
		attribute.Bool("user.is_admin", isAdmin),
	)

	// Check if username already exists
	existingUser, err := h.userService.GetUserByUsername(c.Request.Context(), req.Username)
	if err != nil {
		h.logger.Error(c.Request.Context(), "Error checking existing username", err, nil)
		HandleAppError(c, contextutils.WrapError(err, "failed to check username uniqueness"))
		return
	}
	if existingUser != nil {
		HandleAppError(c, contextutils.ErrRecordExists)
		return
	}

	// Check if email already exists
	existingUser, err = h.userService.GetUserByEmail(c.Request.Context(), email)
	if err != nil {
		h.logger.Error(c.Request.Context(), "Error checking existing email", err, nil)
		HandleAppError(c, contextutils.WrapError(err, "failed to check email uniqueness"))
		return
	}
	if existingUser != nil {
		HandleAppError(c, contextutils.ErrRecordExists)
		return
	}

	user, err := h.userService.CreateUser(c.Request.Context(), req.Username, email, req.Password, department, isAdmin)
	if err != nil {
		h.logger.Error(c.Request.Context(), "Error creating user", err, map[string]interface{}{"username": req.Username})
		HandleAppError(c, contextutils.WrapError(err, "failed to create user"))
		return
	}

	h.logger.Info(c.Request.Context(), "Admin created user", map[string]interface{}{
		"user_id":    user.ID,
		"username":   user.Username,
		"department": user.Department,
		"is_admin":   user.IsAdmin,
	})

	c.JSON(http.StatusOK, convertUserToAPI(user))
}

// GetUser handles GET /v1/admin/users/:id - fetch a single user (admin only)
func (h *UserAdminHandler) GetUser(c *gin.Context) {
	_, span := observability.TraceHandlerFunction(c.Request.Context(), "get_user")
	defer observability.FinishSpan(span, nil)

	userID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		HandleAppError(c, contextutils.ErrInvalidFormat)
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
		HandleAppError(c, contextutils.ErrRecordNotFound)
		return
	}

	c.JSON(http.StatusOK, convertUserToAPI(user))
}

// UpdateUser handles PUT /v1/admin/users/:id - update user details (admin only).
// Absent fields keep their stored values.
func (h *UserAdminHandler) UpdateUser(c *gin.Context) {
	_, span := observability.TraceHandlerFunction(c.Request.Context(), "update_user")
	defer observability.FinishSpan(span, nil)

	userID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		HandleAppError(c, contextutils.ErrInvalidFormat)
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
		HandleAppError(c, contextutils.ErrRecordNotFound)
		return
	}

	var req api.UserUpdateRequest
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

	// Merge request fields over the stored record
	username := user.Username
	if req.Username != nil && *req.Username != "" {
		username = *req.Username
	}

	email := ""
	if user.Email.Valid {
		email = user.Email.String
	}
	if req.Email != nil {
		email = strings.ToLower(string(*req.Email))
	}

	department := user.Department
	if req.Department != nil && *req.Department != "" {
		department = *req.Department
	}

	isAdmin := user.IsAdmin
	if req.IsAdmin != nil {
		isAdmin = *req.IsAdmin
	}

	if username != user.Username {
		if len(username) < 3 || len(username) > 50 || !usernameRegex.MatchString(username) {
			HandleAppError(c, contextutils.ErrInvalidFormat)
			return
		}
		existingUser, err := h.userService.GetUserByUsername(c.Request.Context(), username)
		if err != nil {
			h.logger.Error(c.Request.Context(), "Error checking existing username", err, nil)
			HandleAppError(c, contextutils.WrapError(err, "failed to check username uniqueness"))
			return
		}
		if existingUser != nil {
			HandleAppError(c, contextutils.ErrRecordExists)
			return
		}
	}

	if email != "" {
		if !contextutils.IsValidEmail(email) {
			HandleAppError(c, contextutils.ErrInvalidFormat)
			return
		}
		if !user.Email.Valid || email != user.Email.String {
			existingUser, err := h.userService.GetUserByEmail(c.Request.Context(), email)
			if err != nil {
				h.logger.Error(c.Request.Context(), "Error checking existing email", err, nil)
				HandleAppError(c, contextutils.WrapError(err, "failed to check email uniqueness"))
				return
			}
			if existingUser != nil && existingUser.ID != userID {
				HandleAppError(c, contextutils.ErrRecordExists)
				return
			}
		}
	}

	if err := h.userService.UpdateUser(c.Request.Context(), userID, username, email, department, isAdmin); err != nil {
		h.logger.Error(c.Request.Context(), "Error updating user", err, map[string]interface{}{"user_id": userID})
		HandleAppError(c, err)
		return
	}

	updatedUser, err := h.userService.GetUserByID(c.Request.Context(), userID)
	if err != nil || updatedUser == nil {
		h.logger.Error(c.Request.Context(), "Error retrieving updated user", err, map[string]interface{}{"user_id": userID})
		HandleAppError(c, contextutils.WrapError(err, "failed to retrieve updated user"))
		return
	}

	c.JSON(http.StatusOK, convertUserToAPI(updatedUser))
}

// DeleteUser handles DELETE /v1/admin/users/:id - delete user (admin only)
func (h *UserAdminHandler) DeleteUser(c *gin.Context) {
	_, span := observability.TraceHandlerFunction(c.Request.Context(), "delete_user")
	defer observability.FinishSpan(span, nil)

	userID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		HandleAppError(c, contextutils.ErrInvalidFormat)
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
		HandleAppError(c, contextutils.ErrRecordNotFound)
		return
	}

	if err := h.userService.DeleteUser(c.Request.Context(), userID); err != nil {
		h.logger.Error(c.Request.Context(), "Error deleting user", err, map[string]interface{}{"user_id": userID})
		HandleAppError(c, contextutils.WrapError(err, "failed to delete user"))
		return
	}

	h.logger.Info(c.Request.Context(), "User deleted", map[string]interface{}{"user_id": userID, "username": user.Username})

	c.JSON(http.StatusOK, api.SuccessResponse{
		Success: boolPtr(true),
		Message: stringPtr("User deleted successfully"),
	})
}

// ResetUserPassword handles POST /v1/admin/users/:id/reset-password (admin only)
func (h *UserAdminHandler) ResetUserPassword(c *gin.Context) {
	_, span := observability.TraceHandlerFunction(c.Request.Context(), "reset_user_password")
	defer observability.FinishSpan(span, nil)

	userID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		HandleAppError(c, contextutils.ErrInvalidFormat)
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
		h.logger.Warn(c.Request.Context(), "User not found for password reset", map[string]interface{}{"user_id": userID})
		HandleAppError(c, contextutils.ErrRecordNotFound)
		return
	}

	var req api.PasswordResetRequest
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

	if len(req.Password) < 8 {
		HandleAppError(c, contextutils.ErrInvalidFormat)
		return
	}

	if err := h.userService.UpdateUserPassword(c.Request.Context(), userID, req.Password); err != nil {
		h.logger.Error(c.Request.Context(), "Error resetting user password", err, map[string]interface{}{"user_id": userID})
		HandleAppError(c, contextutils.WrapError(err, "failed to reset password"))
		return
	}

	h.logger.Info(c.Request.Context(), "Password reset by admin", map[string]interface{}{"user_id": userID})

	c.JSON(http.StatusOK, api.SuccessResponse{
		Success: boolPtr(true),
		Message: stringPtr("Password reset successfully"),
	})
}

// GetProfile handles GET /v1/users/me - the authenticated user's own record
func (h *UserAdminHandler) GetProfile(c *gin.Context) {
	_, span := observability.TraceHandlerFunction(c.Request.Context(), "get_profile")
	defer observability.FinishSpan(span, nil)

	userID, err := GetCurrentUserID(c)
	if err != nil {
		HandleAppError(c, contextutils.ErrUnauthorized)
		return
	}

	span.SetAttributes(attribute.Int("user.id", userID))

	user, err := h.userService.GetUserByID(c.Request.Context(), userID)
	if err != nil {
		h.logger.Error(c.Request.Context(), "Error retrieving profile", err, map[string]interface{}{"user_id": userID})
		HandleAppError(c, contextutils.WrapError(err, "failed to retrieve profile"))
		return
	}
	if user == nil {
		HandleAppError(c, contextutils.ErrRecordNotFound)
		return
	}

	c.JSON(http.StatusOK, convertUserToAPI(user))
}

// UpdateProfile handles PUT /v1/users/me - self-service profile update.
// Only the email can be changed here; an empty email clears it.
func (h *UserAdminHandler) UpdateProfile(c *gin.Context) {
	_, span := observability.TraceHandlerFunction(c.Request.Context(), "update_profile")
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
		HandleAppError(c, contextutils.ErrRecordNotFound)
		return
	}

	var req api.ProfileUpdateRequest
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

	if req.Email == nil {
		// Nothing to change
		c.JSON(http.StatusOK, convertUserToAPI(user))
		return
	}

	email := strings.ToLower(string(*req.Email))
	if email != "" {
		if !contextutils.IsValidEmail(email) {
			HandleAppError(c, contextutils.ErrInvalidFormat)
			return
		}
		existingUser, err := h.userService.GetUserByEmail(c.Request.Context(), email)
		if err != nil {
			h.logger.Error(c.Request.Context(), "Error checking existing email", err, nil)
			HandleAppError(c, contextutils.WrapError(err, "failed to check email uniqueness"))
			return
		}
		if existingUser != nil && existingUser.ID != userID {
			HandleAppError(c, contextutils.ErrRecordExists)
			return
		}
	}

	if err := h.userService.UpdateUserProfile(c.Request.Context(), userID, email); err != nil {
		h.logger.Error(c.Request.Context(), "Error updating profile", err, map[string]interface{}{"user_id": userID})
		HandleAppError(c, err)
		return
	}

	updatedUser, err := h.userService.GetUserByID(c.Request.Context(), userID)
	if err != nil || updatedUser == nil {
		h.logger.Error(c.Request.Context(), "Error retrieving updated profile", err, map[string]interface{}{"user_id": userID})
		HandleAppError(c, contextutils.WrapError(err, "failed to retrieve updated profile"))
		return
	}

	c.JSON(http.StatusOK, convertUserToAPI(updatedUser))
}
