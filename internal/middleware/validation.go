package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"feedbackapp/internal/observability"

	"github.com/gin-gonic/gin"
)

// Global schema loader instance
var globalSchemaLoader *SchemaLoader

// initSchemaLoader initializes the global schema loader once
func initSchemaLoader() *SchemaLoader {
	if globalSchemaLoader == nil {
		globalSchemaLoader = AutoLoadSchemas()
	}
	return globalSchemaLoader
}

// responseCaptureWriter buffers the response body so it can be validated
// before anything reaches the client
type responseCaptureWriter struct {
	gin.ResponseWriter
	body   *bytes.Buffer
	status int
}

func (w *responseCaptureWriter) WriteHeader(statusCode int) {
	w.status = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *responseCaptureWriter) Write(b []byte) (int, error) {
	return w.body.Write(b)
}

func (w *responseCaptureWriter) Status() int {
	if w.status != 0 {
		return w.status
	}
	return w.ResponseWriter.Status()
}

// flush writes the buffered response to the real writer
func (w *responseCaptureWriter) flush(c *gin.Context, statusCode int) {
	c.Writer = w.ResponseWriter
	c.Writer.WriteHeader(statusCode)
	_, _ = c.Writer.Write(w.body.Bytes())
}

// ResponseValidationMiddleware buffers every response and validates 2xx JSON
// bodies against the schema the API specification declares for the endpoint.
// A response that fails validation is replaced with a 400 so contract drift
// shows up in tests instead of reaching clients.
func ResponseValidationMiddleware(logger *observability.Logger) gin.HandlerFunc {
	schemaLoader := initSchemaLoader()

	return func(c *gin.Context) {
		ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "response_validation",
			observability.AttributeHTTPMethod(c.Request.Method),
			observability.AttributeHTTPPath(c.Request.URL.Path),
		)
		defer span.End()

		capture := &responseCaptureWriter{
			ResponseWriter: c.Writer,
			body:           &bytes.Buffer{},
		}
		c.Writer = capture

		c.Next()

		statusCode := capture.status
		if statusCode == 0 {
			statusCode = c.Writer.Status()
		}

		// Only 2xx responses carry bodies the specification describes
		if statusCode < http.StatusOK || statusCode >= http.StatusMultipleChoices {
			span.SetAttributes(observability.AttributeValidationOutcome("skipped_non_2xx"))
			capture.flush(c, statusCode)
			return
		}

		if c.Writer.Header().Get("Content-Type") == "text/event-stream" {
			span.SetAttributes(observability.AttributeValidationOutcome("skipped_streaming"))
			capture.flush(c, statusCode)
			return
		}

		if capture.body.Len() == 0 {
			span.SetAttributes(observability.AttributeValidationOutcome("skipped_empty_body"))
			capture.flush(c, statusCode)
			return
		}

		var responseData interface{}
		if err := json.Unmarshal(capture.body.Bytes(), &responseData); err != nil {
			span.SetAttributes(observability.AttributeValidationOutcome("json_parse_failed"))
			logger.Warn(ctx, "Response body is not valid JSON, skipping validation", map[string]interface{}{
				"method": c.Request.Method,
				"path":   c.Request.URL.Path,
			})
			capture.flush(c, statusCode)
			return
		}

		schemaName := schemaLoader.DetermineSchemaFromPath(c.Request.URL.Path, c.Request.Method)
		if schemaName == "" {
			span.SetAttributes(observability.AttributeValidationOutcome("no_schema"))
			logger.Debug(ctx, "No response schema for endpoint", map[string]interface{}{
				"method": c.Request.Method,
				"path":   c.Request.URL.Path,
			})
			capture.flush(c, statusCode)
			return
		}
		span.SetAttributes(observability.AttributeSchemaName(schemaName))

		if err := schemaLoader.ValidateData(responseData, schemaName); err != nil {
			span.SetAttributes(observability.AttributeValidationOutcome("failed"))
			logger.Error(ctx, "Response validation failed", err, map[string]interface{}{
				"method":      c.Request.Method,
				"path":        c.Request.URL.Path,
				"schema_name": schemaName,
				"body_prefix": truncateBody(capture.body.String(), 200),
			})

			c.Writer = capture.ResponseWriter
			c.Writer.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(c.Writer).Encode(gin.H{
				"error":   "Response validation failed",
				"message": "API response does not match the specification",
				"method":  c.Request.Method,
				"path":    c.Request.URL.Path,
				"schema":  schemaName,
				"details": err.Error(),
			})
			return
		}

		span.SetAttributes(observability.AttributeValidationOutcome("passed"))
		capture.flush(c, statusCode)
	}
}

func truncateBody(body string, max int) string {
	if len(body) <= max {
		return body
	}
	return body[:max]
}

// isPassthroughPath reports whether a path is served outside the documented
// API surface (ops endpoints and the served specification itself)
func isPassthroughPath(path string) bool {
	passthrough := []string{
		"/",
		"/health",
		"/version",
		"/swagger.yaml",
	}

	for _, p := range passthrough {
		if path == p {
			return true
		}
	}

	// Debug tooling under /debug (route listing assets)
	return strings.HasPrefix(path, "/debug/")
}

// RequestValidationMiddleware rejects calls to endpoints the API
// specification does not document and validates POST/PUT/PATCH bodies
// against their declared request schemas.
func RequestValidationMiddleware(logger *observability.Logger) gin.HandlerFunc {
	schemaLoader := initSchemaLoader()

	return func(c *gin.Context) {
		ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "request_validation",
			observability.AttributeHTTPMethod(c.Request.Method),
			observability.AttributeHTTPPath(c.Request.URL.Path),
		)
		defer span.End()

		path := c.Request.URL.Path
		method := c.Request.Method

		if isPassthroughPath(path) {
			c.Next()
			return
		}

		if !schemaLoader.IsEndpointDocumented(path, method) {
			span.SetAttributes(observability.AttributeValidationOutcome("undocumented"))
			logger.Warn(ctx, "Undocumented API call attempted", map[string]interface{}{
				"method":     method,
				"path":       path,
				"ip":         c.ClientIP(),
				"user_agent": c.Request.UserAgent(),
			})
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "Endpoint not found",
				"message": "The requested endpoint is not documented in the API specification",
			})
			c.Abort()
			return
		}

		if method == http.MethodPost || method == http.MethodPut || method == http.MethodPatch {
			schemaName := schemaLoader.DetermineRequestSchemaFromPath(path, method)
			if schemaName == "" {
				logger.Debug(ctx, "No request schema for endpoint", map[string]interface{}{
					"method": method,
					"path":   path,
				})
				c.Next()
				return
			}
			span.SetAttributes(observability.AttributeSchemaName(schemaName))

			body, err := c.GetRawData()
			if err == nil && len(body) > 0 {
				// Handlers read the body after us
				c.Request.Body = io.NopCloser(bytes.NewBuffer(body))

				var requestData interface{}
				if err := json.Unmarshal(body, &requestData); err == nil {
					if err := schemaLoader.ValidateData(requestData, schemaName); err != nil {
						span.SetAttributes(observability.AttributeValidationOutcome("failed"))
						logger.Warn(ctx, "Request validation failed", map[string]interface{}{
							"method":      method,
							"path":        path,
							"schema_name": schemaName,
							"error":       err.Error(),
						})
						c.JSON(http.StatusBadRequest, gin.H{
							"error":   "Invalid request data",
							"message": "Request data does not match the API specification",
							"method":  method,
							"path":    path,
							"schema":  schemaName,
							"details": err.Error(),
						})
						c.Abort()
						return
					}
				}
			}
			span.SetAttributes(observability.AttributeValidationOutcome("passed"))
		}

		c.Next()
	}
}
