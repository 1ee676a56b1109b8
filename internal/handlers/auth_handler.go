package handlers

import (
	"errors"
	"net/http"
	"regexp"
	"strings"

	"feedbackapp/internal/api"
	"feedbackapp/internal/config"
	"feedbackapp/internal/middleware"
	"feedbackapp/internal/observability"
	"feedbackapp/internal/services"
	contextutils "feedbackapp/internal/utils"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	openapi_types "github.com/oapi-codegen/runtime/types"
	"go.opentelemetry.io/otel/attribute"
)

// AuthHandler handles authentication related HTTP requests
type AuthHandler struct {
	userService services.UserServiceInterface
	config      *config.Config
	logger      *observability.Logger
}

// NewAuthHandler creates a new AuthHandler instance
func NewAuthHandler(userService services.UserServiceInterface, cfg *config.Config, logger *observability.Logger) *AuthHandler {
	return &AuthHandler{
		userService: userService,
		config:      cfg,
		logger:      logger,
	}
}

var usernameRegex = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)

// Login handles user login requests
func (h *AuthHandler) Login(c *gin.Context) {
	_, span := observability.TraceHandlerFunction(c.Request.Context(), "login")
	defer observability.FinishSpan(span, nil)

	var req api.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		HandleAppError(c, contextutils.NewAppErrorWithCause(
			contextutils.ErrorCodeInvalidInput,
			contextutils.SeverityWarn,
			"Invalid request body",
			"",
			err,
		))
		return
	}

	span.SetAttributes(
		attribute.String("auth.username", req.Username),
		attribute.Bool("auth.password_provided", req.Password != ""),
	)

	// Authenticate user against database
	user, err := h.userService.AuthenticateUser(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		h.logger.Warn(c.Request.Context(), "Authentication failed for user", map[string]interface{}{"username": req.Username, "error": err.Error()})
		HandleAppError(c, contextutils.ErrInvalidCredentials)
		return
	}

	if user == nil {
		HandleAppError(c, contextutils.ErrInvalidCredentials)
		return
	}

	span.SetAttributes(
		attribute.Int("user.id", user.ID),
		attribute.String("user.username", user.Username),
		attribute.String("user.department", user.Department),
		attribute.Bool("user.is_admin", user.IsAdmin),
	)

	// Update last active; failure is logged but never fails the login
	if err := h.userService.UpdateLastActive(c.Request.Context(), user.ID); err != nil {
		h.logger.Warn(c.Request.Context(), "Failed to update last active for user", map[string]interface{}{"user_id": user.ID, "error": err.Error()})
	}

	// Create session
	session := sessions.Default(c)
	session.Set(middleware.UserIDKey, user.ID)
	session.Set(middleware.UsernameKey, user.Username)

	if err := session.Save(); err != nil {
		h.logger.Error(c.Request.Context(), "Failed to save session", err, map[string]interface{}{"user_id": user.ID})
		HandleAppError(c, contextutils.WrapError(err, "failed to create session"))
		return
	}

	apiUser := convertUserToAPI(user)

	c.JSON(http.StatusOK, api.LoginResponse{
		Success: boolPtr(true),
		Message: stringPtr("Login successful"),
		User:    &apiUser,
	})
}

// Logout handles user logout requests
func (h *AuthHandler) Logout(c *gin.Context) {
	_, span := observability.TraceHandlerFunction(c.Request.Context(), "logout")
	defer observability.FinishSpan(span, nil)

	// Get user info before clearing session for tracing
	session := sessions.Default(c)
	userID := session.Get(middleware.UserIDKey)
	username := session.Get(middleware.UsernameKey)

	if userID != nil {
		span.SetAttributes(attribute.Int("user.id", userID.(int)))
	}
	if username != nil {
		span.SetAttributes(attribute.String("user.username", username.(string)))
	}

	session.Clear()

	if err := session.Save(); err != nil {
		HandleAppError(c, contextutils.WrapError(err, "failed to clear session"))
		return
	}

	c.JSON(http.StatusOK, api.SuccessResponse{
		Success: boolPtr(true),
		Message: stringPtr("Logout successful"),
	})
}

// Status returns the current authentication status
func (h *AuthHandler) Status(c *gin.Context) {
	_, span := observability.TraceHandlerFunction(c.Request.Context(), "status")
	defer observability.FinishSpan(span, nil)

	session := sessions.Default(c)
	userID := session.Get(middleware.UserIDKey)

	if userID == nil {
		span.SetAttributes(attribute.Bool("auth.authenticated", false))
		c.JSON(http.StatusOK, api.AuthStatusResponse{
			Authenticated: false,
		})
		return
	}

	span.SetAttributes(
		attribute.Bool("auth.authenticated", true),
		attribute.Int("user.id", userID.(int)),
	)

	user, err := h.userService.GetUserByID(c.Request.Context(), userID.(int))
	if err != nil {
		h.logger.Error(c.Request.Context(), "Error getting user by ID", err, map[string]interface{}{"user_id": userID.(int)})
		HandleAppError(c, contextutils.ErrInternalError)
		return
	}

	if user == nil {
		// User no longer exists, clear the stale session
		session.Clear()
		if err := session.Save(); err != nil {
			h.logger.Error(c.Request.Context(), "Error saving session", err, map[string]interface{}{"user_id": userID.(int)})
		}
		span.SetAttributes(attribute.Bool("auth.user_found", false))
		c.JSON(http.StatusOK, api.AuthStatusResponse{
			Authenticated: false,
		})
		return
	}

	span.SetAttributes(
		attribute.Bool("auth.user_found", true),
		attribute.String("user.username", user.Username),
		attribute.String("user.department", user.Department),
		attribute.Bool("user.is_admin", user.IsAdmin),
	)

	if err := h.userService.UpdateLastActive(c.Request.Context(), user.ID); err != nil {
		h.logger.Warn(c.Request.Context(), "Error updating last active", map[string]interface{}{"user_id": user.ID, "error": err.Error()})
	}

	apiUser := convertUserToAPI(user)

	c.JSON(http.StatusOK, api.AuthStatusResponse{
		Authenticated: true,
		User:          &apiUser,
	})
}

// Signup handles user registration requests
func (h *AuthHandler) Signup(c *gin.Context) {
	_, span := observability.TraceHandlerFunction(c.Request.Context(), "signup")
	defer observability.FinishSpan(span, nil)

	var req api.SignupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		if errors.Is(err, openapi_types.ErrValidationEmail) {
			HandleAppError(c, contextutils.ErrInvalidFormat)
			return
		}
		HandleAppError(c, contextutils.NewAppErrorWithCause(
			contextutils.ErrorCodeInvalidInput,
			contextutils.SeverityWarn,
			"Invalid request body",
			"",
			err,
		))
		return
	}

	span.SetAttributes(
		attribute.String("signup.username", req.Username),
		attribute.Bool("signup.password_provided", req.Password != ""),
		attribute.Bool("signup.email_provided", req.Email != nil && *req.Email != ""),
		attribute.String("signup.department", req.Department),
	)

	if req.Username == "" || req.Password == "" {
		HandleAppError(c, contextutils.ErrMissingRequired)
		return
	}

	if req.Email == nil || *req.Email == "" {
		HandleAppError(c, contextutils.ErrMissingRequired)
		return
	}

	// Validate username format (3-50 characters, alphanumeric + underscore)
	if len(req.Username) < 3 || len(req.Username) > 50 {
		HandleAppError(c, contextutils.ErrInvalidFormat)
		return
	}

	if !usernameRegex.MatchString(req.Username) {
		HandleAppError(c, contextutils.ErrInvalidFormat)
		return
	}

	// Validate password (minimum 8 characters)
	if len(req.Password) < 8 {
		HandleAppError(c, contextutils.ErrInvalidFormat)
		return
	}

	if !contextutils.IsValidEmail(string(*req.Email)) {
		HandleAppError(c, contextutils.ErrInvalidFormat)
		return
	}

	// Normalize email to lowercase
	email := strings.ToLower(string(*req.Email))

	// Signups may be disabled with a whitelist of exempt emails/domains
	if h.config != nil && !h.config.IsSignupAllowed(email) {
		span.SetAttributes(attribute.Bool("auth.signups_disabled", true))
		HandleAppError(c, contextutils.ErrForbidden)
		return
	}

	// Department must be one of the configured departments
	department, ok := h.config.NormalizeDepartment(req.Department)
	if !ok {
		span.SetAttributes(attribute.Bool("signup.department_known", false))
		HandleAppError(c, contextutils.ErrUnknownDepartment)
		return
	}

	h.logger.Info(c.Request.Context(), "Attempting signup for user", map[string]interface{}{"username": req.Username, "email": email, "department": department})

	// Check if username already exists
	existingUser, err := h.userService.GetUserByUsername(c.Request.Context(), req.Username)
	if err != nil {
		h.logger.Error(c.Request.Context(), "Error checking username uniqueness", err, map[string]interface{}{"username": req.Username})
		HandleAppError(c, contextutils.ErrInternalError)
		return
	}

	if existingUser != nil {
		span.SetAttributes(attribute.Bool("signup.username_exists", true))
		HandleAppError(c, contextutils.ErrRecordExists)
		return
	}

	// Check if email already exists
	existingUserByEmail, err := h.userService.GetUserByEmail(c.Request.Context(), email)
	if err != nil {
		h.logger.Error(c.Request.Context(), "Error checking email uniqueness", err, map[string]interface{}{"email": email})
		HandleAppError(c, contextutils.ErrInternalError)
		return
	}

	if existingUserByEmail != nil {
		span.SetAttributes(attribute.Bool("signup.email_exists", true))
		HandleAppError(c, contextutils.ErrRecordExists)
		return
	}

	user, err := h.userService.CreateUser(c.Request.Context(), req.Username, email, req.Password, department, false)
	if err != nil {
		h.logger.Error(c.Request.Context(), "Error creating user", err, map[string]interface{}{"username": req.Username, "email": email})
		HandleAppError(c, contextutils.WrapError(err, "failed to create user account"))
		return
	}

	span.SetAttributes(
		attribute.Int("user.id", user.ID),
		attribute.String("user.username", user.Username),
		attribute.String("user.department", user.Department),
	)

	h.logger.Info(c.Request.Context(), "Successfully created user", map[string]interface{}{"username": user.Username, "user_id": user.ID})

	// Signup does not create a session; the client logs in afterwards
	c.JSON(http.StatusOK, convertUserToAPI(user))
}
