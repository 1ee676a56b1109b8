//go:build integration

package middleware

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	os.Exit(m.Run())
}

func TestRequireAuth_SessionRoundTrip_Integration(t *testing.T) {
	router := newTestRouter()

	router.GET("/protected", RequireAuth(), func(c *gin.Context) {
		userID, exists := c.Get(UserIDKey)
		require.True(t, exists)
		username, exists := c.Get(UsernameKey)
		require.True(t, exists)

		c.JSON(http.StatusOK, gin.H{
			"user_id":  userID,
			"username": username,
			"message":  "access granted",
		})
	})

	sessionCookie := setSessionCookie(t, router, map[string]interface{}{
		UserIDKey:   42,
		UsernameKey: "contextuser",
	})

	req := httptest.NewRequest("GET", "/protected", nil)
	req.AddCookie(sessionCookie)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "contextuser")
	assert.Contains(t, w.Body.String(), "42")
	assert.Contains(t, w.Body.String(), "access granted")
}

func TestRequireAuth_TamperedCookie_Integration(t *testing.T) {
	router := newTestRouter()

	router.GET("/protected", RequireAuth(), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "should not reach here"})
	})

	// A cookie that was never signed by the store decodes to an empty session
	req := httptest.NewRequest("GET", "/protected", nil)
	req.AddCookie(&http.Cookie{
		Name:  "test-session",
		Value: "invalid-session-data",
		Path:  "/",
	})
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "Authentication required")
}

func TestRequireAuth_WrongValueTypes_Integration(t *testing.T) {
	router := newTestRouter()

	router.GET("/protected", RequireAuth(), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "should not reach here"})
	})

	// Session values of the wrong type must not authenticate
	sessionCookie := setSessionCookie(t, router, map[string]interface{}{
		UserIDKey:   "not-an-integer",
		UsernameKey: 12345,
	})

	req := httptest.NewRequest("GET", "/protected", nil)
	req.AddCookie(sessionCookie)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequireAuth_SessionReuse_Integration(t *testing.T) {
	router := newTestRouter()

	counter := 0
	router.GET("/protected", RequireAuth(), func(c *gin.Context) {
		counter++
		c.JSON(http.StatusOK, gin.H{
			"counter": counter,
			"user":    c.GetString(UsernameKey),
		})
	})

	sessionCookie := setSessionCookie(t, router, map[string]interface{}{
		UserIDKey:   1,
		UsernameKey: "testuser",
	})

	// The same cookie authenticates any number of requests
	for i := 1; i <= 3; i++ {
		req := httptest.NewRequest("GET", "/protected", nil)
		req.AddCookie(sessionCookie)
		w := httptest.NewRecorder()

		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "testuser")
		assert.Contains(t, w.Body.String(), fmt.Sprintf(`"counter":%d`, i))
	}
}

func TestRequireAuth_LogoutClearsAccess_Integration(t *testing.T) {
	router := newTestRouter()

	router.GET("/protected", RequireAuth(), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
	router.POST("/logout", func(c *gin.Context) {
		session := sessions.Default(c)
		session.Clear()
		require.NoError(t, session.Save())
		c.Status(http.StatusOK)
	})

	sessionCookie := setSessionCookie(t, router, map[string]interface{}{
		UserIDKey:   3,
		UsernameKey: "leaving-user",
	})

	req := httptest.NewRequest("GET", "/protected", nil)
	req.AddCookie(sessionCookie)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	// Clear the session, then retry with the replacement cookie
	logoutReq := httptest.NewRequest("POST", "/logout", nil)
	logoutReq.AddCookie(sessionCookie)
	logoutW := httptest.NewRecorder()
	router.ServeHTTP(logoutW, logoutReq)
	require.Equal(t, http.StatusOK, logoutW.Code)

	clearedCookies := logoutW.Result().Cookies()
	require.NotEmpty(t, clearedCookies)

	retryReq := httptest.NewRequest("GET", "/protected", nil)
	retryReq.AddCookie(clearedCookies[0])
	retryW := httptest.NewRecorder()
	router.ServeHTTP(retryW, retryReq)

	assert.Equal(t, http.StatusUnauthorized, retryW.Code)
}
