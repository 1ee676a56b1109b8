package handlers

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"feedbackapp/internal/observability"

	"github.com/gin-gonic/gin"
)

// RouteInfo represents information about a single registered route
type RouteInfo struct {
	Method      string `json:"method"`
	Path        string `json:"path"`
	HandlerName string `json:"handler_name"`
}

// RouteListingHandler serves an automatic listing of every mounted route,
// as HTML for browsers and JSON for tooling.
type RouteListingHandler struct {
	serviceName string
	routes      []RouteInfo
}

// NewRouteListingHandler creates a new route listing handler
func NewRouteListingHandler(serviceName string) *RouteListingHandler {
	return &RouteListingHandler{
		serviceName: serviceName,
		routes:      []RouteInfo{},
	}
}

// CollectRoutes snapshots the routes registered on the engine. Call after all
// routes are mounted; later registrations are not picked up.
func (h *RouteListingHandler) CollectRoutes(engine *gin.Engine) {
	h.routes = []RouteInfo{}

	for _, route := range engine.Routes() {
		if strings.HasPrefix(route.Path, "/debug/") {
			continue
		}
		h.routes = append(h.routes, RouteInfo{
			Method:      route.Method,
			Path:        route.Path,
			HandlerName: route.Handler,
		})
	}

	sort.Slice(h.routes, func(i, j int) bool {
		if h.routes[i].Path != h.routes[j].Path {
			return h.routes[i].Path < h.routes[j].Path
		}
		return h.routes[i].Method < h.routes[j].Method
	})
}

// GetRouteListingPage shows all available routes as HTML
func (h *RouteListingHandler) GetRouteListingPage(c *gin.Context) {
	_, span := observability.TraceHandlerFunction(c.Request.Context(), "get_route_listing_page")
	defer observability.FinishSpan(span, nil)

	c.Header("Content-Type", "text/html; charset=utf-8")
	c.Header("Cache-Control", "no-cache, no-store, must-revalidate")
	c.String(http.StatusOK, h.generateHTML())
}

// GetRouteListingJSON returns the route listing as JSON
func (h *RouteListingHandler) GetRouteListingJSON(c *gin.Context) {
	_, span := observability.TraceHandlerFunction(c.Request.Context(), "get_route_listing_json")
	defer observability.FinishSpan(span, nil)

	c.JSON(http.StatusOK, gin.H{
		"service": h.serviceName,
		"count":   len(h.routes),
		"routes":  h.routes,
	})
}

func (h *RouteListingHandler) generateHTML() string {
	var html strings.Builder

	html.WriteString(`<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>` + h.serviceName + ` - Routes</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, Helvetica, Arial, sans-serif; line-height: 1.5; padding: 20px; background-color: #f8f9fa; color: #212529; }
        .container { max-width: 1000px; margin: auto; background: #fff; padding: 30px; border-radius: 8px; box-shadow: 0 2px 6px rgba(0,0,0,0.06); }
        h1 { color: #0056b3; border-bottom: 2px solid #dee2e6; padding-bottom: 10px; }
        .meta { color: #6c757d; margin-bottom: 24px; }
        table { width: 100%; border-collapse: collapse; }
        th, td { padding: 10px 12px; text-align: left; border-bottom: 1px solid #dee2e6; }
        th { background-color: #f8f9fa; font-weight: 600; color: #495057; }
        tr:hover { background-color: #e9ecef; }
        .method { display: inline-block; padding: 3px 8px; border-radius: 4px; font-size: 12px; font-weight: bold; min-width: 56px; text-align: center; }
        .method-get { background-color: #d4edda; color: #155724; }
        .method-post { background-color: #cce5ff; color: #004085; }
        .method-put { background-color: #fff3cd; color: #856404; }
        .method-delete { background-color: #f8d7da; color: #721c24; }
        .method-patch { background-color: #e2e3e5; color: #383d41; }
        .path { font-family: "Menlo", "Ubuntu Mono", monospace; font-size: 14px; color: #6f42c1; }
        .footer { margin-top: 24px; text-align: center; color: #6c757d; font-size: 14px; }
    </style>
</head>
<body>
    <div class="container">
        <h1>` + h.serviceName + ` Routes</h1>
        <div class="meta">
            ` + fmt.Sprintf("%d routes", len(h.routes)) + ` &middot; generated ` + time.Now().Format("2006-01-02 15:04:05") + `
        </div>
        <table>
            <thead>
                <tr><th>Method</th><th>Path</th><th>Handler</th></tr>
            </thead>
            <tbody>`)

	for _, route := range h.routes {
		methodClass := "method-" + strings.ToLower(route.Method)
		pathCell := route.Path
		if route.Method == http.MethodGet {
			pathCell = fmt.Sprintf(`<a href="%s">%s</a>`, route.Path, route.Path)
		}
		html.WriteString(fmt.Sprintf(`
                <tr>
                    <td><span class="method %s">%s</span></td>
                    <td><span class="path">%s</span></td>
                    <td>%s</td>
                </tr>`,
			methodClass, route.Method, pathCell, route.HandlerName,
		))
	}

	html.WriteString(`
            </tbody>
        </table>
        <div class="footer">
            <a href="/?json=true">JSON</a> &middot; <a href="/swagger.yaml">OpenAPI spec</a>
        </div>
    </div>
</body>
</html>`)

	return html.String()
}
