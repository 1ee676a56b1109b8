package handlers

import (
	"encoding/json"
	"net/http"
	"os"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/secure"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"feedbackapp/internal/config"
	"feedbackapp/internal/middleware"
	"feedbackapp/internal/observability"
	"feedbackapp/internal/services"
	"feedbackapp/internal/version"
)

// IMPORTANT: When adding new API endpoints, make sure to:
// 1. Add them to swagger.yaml with proper documentation
// 2. Decide whether the endpoint is public, session-only, or admin-only
// 3. Update any relevant tests

// NewRouter creates the backend router with all middleware and routes mounted
func NewRouter(
	cfg *config.Config,
	userService services.UserServiceInterface,
	templateService services.TemplateServiceInterface,
	periodService services.PeriodServiceInterface,
	feedbackService services.FeedbackServiceInterface,
	statsService services.StatsServiceInterface,
	workerService services.WorkerServiceInterface,
	logger *observability.Logger,
) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	// Structured HTTP request logging
	router.Use(func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		latency := time.Since(start)
		statusCode := c.Writer.Status()

		fields := map[string]interface{}{
			"http.method":      method,
			"http.path":        path,
			"http.status_code": statusCode,
			"http.latency_ms":  float64(latency.Nanoseconds()) / 1e6,
			"http.client_ip":   c.ClientIP(),
			"http.user_agent":  c.Request.UserAgent(),
		}

		if len(c.Errors) > 0 {
			fields["http.error"] = c.Errors.String()
		}

		switch {
		case statusCode >= 500:
			fields["http.error_type"] = "server_error"
			fields["http.request_has_body"] = c.Request.ContentLength > 0
			logger.Error(c.Request.Context(), "HTTP request failed", nil, fields)
		case statusCode >= 400:
			fields["http.error_type"] = "client_error"
			fields["http.response_size"] = c.Writer.Size()
			logger.Warn(c.Request.Context(), "HTTP request error", fields)
		default:
			logger.Info(c.Request.Context(), "HTTP request", fields)
		}
	})

	// Health check endpoint, registered before the heavier middleware so load
	// balancer probes stay cheap
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"service": "backend",
		})
	})

	// OpenTelemetry tracing for all routes
	router.Use(observability.GinMiddlewareWithErrorHandling("feedback-backend"))

	// Validate JSON responses against the published schema
	router.Use(middleware.ResponseValidationMiddleware(logger))

	// Swagger documentation (served before the API groups)
	router.StaticFile("/swagger.yaml", "./swagger.yaml")

	// Disable automatic redirection for trailing slashes, which is better for APIs
	router.RedirectTrailingSlash = false

	// Setup CORS middleware
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.Server.CORSOrigins
	corsConfig.AllowCredentials = true
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization", "X-Requested-With"}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	router.Use(cors.New(corsConfig))

	// Setup session middleware
	store := cookie.NewStore([]byte(cfg.Server.SessionSecret))
	sessionOpts := sessions.Options{
		Path:     config.SessionPath,
		MaxAge:   int(config.SessionMaxAge.Seconds()),
		HttpOnly: config.SessionHTTPOnly,
		Secure:   config.SessionSecure, // Set to true in production with HTTPS
	}
	if cfg.Server.Debug {
		sessionOpts.SameSite = http.SameSiteDefaultMode
	} else {
		sessionOpts.SameSite = http.SameSiteLaxMode
		sessionOpts.Secure = true
	}
	store.Options(sessionOpts)
	router.Use(sessions.Sessions(config.SessionName, store))

	// Setup Gin mode
	gin.SetMode(gin.ReleaseMode)
	if cfg.Server.Debug {
		gin.SetMode(gin.DebugMode)
	}

	// Security middleware
	secureConfig := secure.DefaultConfig()
	secureConfig.SSLRedirect = false
	secureConfig.ContentSecurityPolicy = config.DefaultCSP
	router.Use(secure.New(secureConfig))

	// Initialize handlers
	authHandler := NewAuthHandler(userService, cfg, logger)
	departmentsHandler := NewDepartmentsHandler(cfg, logger)
	userAdminHandler := NewUserAdminHandler(userService, cfg, logger)
	templateHandler := NewTemplateHandler(templateService, logger)
	periodHandler := NewPeriodHandler(periodService, userService, logger)
	feedbackHandler := NewFeedbackHandler(feedbackService, userService, logger)
	statsHandler := NewStatsHandler(statsService, logger)
	workerAdminHandler := NewWorkerAdminHandlerWithLogger(workerService, logger)

	// V1 routes (matching swagger spec)
	v1 := router.Group("/v1")
	{
		// Version aggregation endpoint (no auth)
		v1.GET("/version", func(c *gin.Context) {
			backendVersion := gin.H{
				"service":   "backend",
				"version":   version.Version,
				"commit":    version.Commit,
				"buildTime": version.BuildTime,
			}
			workerInternalURL := os.Getenv("WORKER_INTERNAL_URL")
			if workerInternalURL == "" {
				workerInternalURL = "http://localhost:" + cfg.Server.WorkerPort
			}
			// Use instrumented HTTP client for tracing
			client := &http.Client{
				Transport: otelhttp.NewTransport(http.DefaultTransport),
			}
			req, err := http.NewRequest("GET", workerInternalURL+"/version", nil)
			var workerResp *http.Response
			if err == nil {
				req = req.WithContext(c.Request.Context())
				workerResp, err = client.Do(req)
			}
			var workerVersion interface{}
			if err == nil && workerResp.StatusCode == http.StatusOK {
				defer func() { _ = workerResp.Body.Close() }()
				if err := json.NewDecoder(workerResp.Body).Decode(&workerVersion); err != nil {
					workerVersion = gin.H{"error": "Failed to decode worker version"}
				}
			} else {
				workerVersion = gin.H{"error": "Worker unavailable"}
			}
			c.JSON(http.StatusOK, gin.H{
				"backend": backendVersion,
				"worker":  workerVersion,
			})
		})

		auth := v1.Group("/auth")
		{
			auth.POST("/login", middleware.RequestValidationMiddleware(logger), authHandler.Login)
			auth.POST("/logout", authHandler.Logout)
			auth.GET("/status", authHandler.Status)
			auth.POST("/signup", middleware.RequestValidationMiddleware(logger), authHandler.Signup)
		}

		// Department catalog (public, drives the signup form)
		v1.GET("/departments", departmentsHandler.List)

		// Current user profile
		userz := v1.Group("/users")
		userz.Use(middleware.RequireAuth())
		{
			userz.GET("/me", userAdminHandler.GetProfile)
			userz.PUT("/me", middleware.RequestValidationMiddleware(logger), userAdminHandler.UpdateProfile)
		}

		// Periods the current user can still submit to
		v1.GET("/periods/available", middleware.RequireAuth(), periodHandler.AvailablePeriods)

		// Feedback submission and history
		v1.POST("/feedback", middleware.RequireAuth(), middleware.RequestValidationMiddleware(logger), feedbackHandler.SubmitFeedback)
		v1.GET("/feedback/mine", middleware.RequireAuth(), feedbackHandler.MyFeedback)

		// Admin endpoints
		admin := v1.Group("/admin")
		admin.Use(middleware.RequireAdmin(userService))
		admin.Use(middleware.RequestValidationMiddleware(logger))
		{
			// User management
			admin.GET("/users", userAdminHandler.ListUsers)
			admin.POST("/users", userAdminHandler.CreateUser)
			admin.GET("/users/:id", userAdminHandler.GetUser)
			admin.PUT("/users/:id", userAdminHandler.UpdateUser)
			admin.DELETE("/users/:id", userAdminHandler.DeleteUser)
			admin.POST("/users/:id/reset-password", userAdminHandler.ResetUserPassword)

			// Question templates
			admin.GET("/templates", templateHandler.ListTemplates)
			admin.POST("/templates", templateHandler.CreateTemplate)
			admin.GET("/templates/:id", templateHandler.GetTemplate)
			admin.PUT("/templates/:id", templateHandler.UpdateTemplate)
			admin.DELETE("/templates/:id", templateHandler.DeleteTemplate)

			// Feedback periods
			admin.GET("/periods", periodHandler.ListPeriods)
			admin.POST("/periods", periodHandler.CreatePeriod)
			admin.GET("/periods/:id", periodHandler.GetPeriod)
			admin.PUT("/periods/:id", periodHandler.UpdatePeriod)
			admin.PATCH("/periods/:id/active", periodHandler.SetPeriodActive)
			admin.DELETE("/periods/:id", periodHandler.DeletePeriod)

			// Collected feedback
			admin.GET("/feedback", feedbackHandler.ListFeedback)
			admin.GET("/feedback/:id", feedbackHandler.GetFeedback)
			admin.DELETE("/feedback/:id", feedbackHandler.DeleteFeedback)

			// Aggregated statistics
			admin.GET("/stats/departments", statsHandler.DepartmentStats)
			admin.GET("/stats/departments/:name", statsHandler.DepartmentDetail)
			admin.GET("/stats/summary", statsHandler.Summary)

			// Notification worker control
			admin.GET("/worker/status", workerAdminHandler.GetWorkerStatus)
			admin.POST("/worker/pause", workerAdminHandler.PauseWorker)
			admin.POST("/worker/resume", workerAdminHandler.ResumeWorker)
			admin.POST("/worker/trigger", workerAdminHandler.TriggerWorkerRun)
			admin.GET("/worker/notifications", workerAdminHandler.GetSentNotifications)
		}
	}

	// The frontend is deployed separately, so unknown paths always get a JSON 404
	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
	})

	// Automatic route listing at root path
	routeListing := NewRouteListingHandler("Backend")
	routeListing.CollectRoutes(router)

	router.GET("/", func(c *gin.Context) {
		if c.Query("json") == "true" {
			routeListing.GetRouteListingJSON(c)
		} else {
			routeListing.GetRouteListingPage(c)
		}
	})

	return router
}
