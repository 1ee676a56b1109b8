package handlers

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"feedbackapp/internal/middleware"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sessionTestRouter(t *testing.T, seed interface{}) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	router := gin.New()
	store := cookie.NewStore([]byte("session-test-secret"))
	router.Use(sessions.Sessions("feedback-session", store))

	router.GET("/login", func(c *gin.Context) {
		session := sessions.Default(c)
		session.Set(middleware.UserIDKey, seed)
		require.NoError(t, session.Save())
		c.Status(http.StatusOK)
	})

	router.GET("/whoami", func(c *gin.Context) {
		id, ok := GetUserIDFromSession(c)
		c.JSON(http.StatusOK, gin.H{"id": strconv.Itoa(id), "ok": ok})
	})

	return router
}

func sessionCookieRoundTrip(t *testing.T, router *gin.Engine) *httptest.ResponseRecorder {
	t.Helper()

	login := httptest.NewRecorder()
	router.ServeHTTP(login, httptest.NewRequest("GET", "/login", nil))
	require.Equal(t, http.StatusOK, login.Code)

	req := httptest.NewRequest("GET", "/whoami", nil)
	for _, c := range login.Result().Cookies() {
		req.AddCookie(c)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestGetUserIDFromSession_Authenticated(t *testing.T) {
	router := sessionTestRouter(t, 42)
	w := sessionCookieRoundTrip(t, router)

	assert.JSONEq(t, `{"id":"42","ok":true}`, w.Body.String())
}

func TestGetUserIDFromSession_InvalidStoredValue(t *testing.T) {
	router := sessionTestRouter(t, "not-an-int")
	w := sessionCookieRoundTrip(t, router)

	assert.JSONEq(t, `{"id":"0","ok":false}`, w.Body.String())
}

func TestGetUserIDFromSession_NoSession(t *testing.T) {
	router := sessionTestRouter(t, 42)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/whoami", nil))

	assert.JSONEq(t, `{"id":"0","ok":false}`, w.Body.String())
}
