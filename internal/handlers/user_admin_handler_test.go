package handlers

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"feedbackapp/internal/api"
	"feedbackapp/internal/middleware"
	"feedbackapp/internal/models"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func setupUserAdminTestRouter(userService *MockUserService, currentUserID int) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()

	// GetCurrentUserID falls back to the session store, so the middleware must
	// always be mounted even for unauthenticated tests
	store := cookie.NewStore([]byte("test-secret"))
	router.Use(sessions.Sessions("test-session", store))

	if currentUserID != 0 {
		router.Use(func(c *gin.Context) {
			c.Set(middleware.UserIDKey, currentUserID)
			c.Next()
		})
	}

	handler := NewUserAdminHandler(userService, testConfig(), testLogger())

	router.GET("/users", handler.ListUsers)
	router.POST("/users", handler.CreateUser)
	router.GET("/users/:id", handler.GetUser)
	router.PUT("/users/:id", handler.UpdateUser)
	router.DELETE("/users/:id", handler.DeleteUser)
	router.POST("/users/:id/reset-password", handler.ResetUserPassword)
	router.GET("/me", handler.GetProfile)
	router.PUT("/me", handler.UpdateProfile)

	return router
}

func putJSON(t *testing.T, router *gin.Engine, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)

	req, err := http.NewRequest("PUT", path, bytes.NewReader(data))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestUserAdminHandler_ListUsers(t *testing.T) {
	mockUserService := new(MockUserService)
	router := setupUserAdminTestRouter(mockUserService, 0)

	users := []models.User{
		*testUser(1, "alice", "Engineering"),
		*testUser(2, "alicia", "Engineering"),
	}
	mockUserService.On("GetUsersPaginated", mock.Anything, 2, 10, "ali", "Engineering", "").
		Return(users, 12, nil)

	req, _ := http.NewRequest("GET", "/users?page=2&page_size=10&search=ali&department=Engineering", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp api.UsersListResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp.Users, 2)
	assert.Equal(t, 2, resp.Pagination.Page)
	assert.Equal(t, 10, resp.Pagination.PageSize)
	assert.Equal(t, 12, resp.Pagination.Total)
	assert.Equal(t, 2, resp.Pagination.TotalPages)

	mockUserService.AssertExpectations(t)
}

func TestUserAdminHandler_CreateUser(t *testing.T) {
	t.Run("success with admin flag", func(t *testing.T) {
		mockUserService := new(MockUserService)
		router := setupUserAdminTestRouter(mockUserService, 0)

		created := testUser(5, "newadmin", "Sales")
		created.IsAdmin = true
		mockUserService.On("GetUserByUsername", mock.Anything, "newadmin").Return(nil, nil)
		mockUserService.On("GetUserByEmail", mock.Anything, "newadmin@example.com").Return(nil, nil)
		mockUserService.On("CreateUser", mock.Anything, "newadmin", "newadmin@example.com", "password123", "Sales", true).
			Return(created, nil)

		w := postJSON(t, router, "/users", map[string]interface{}{
			"username":   "newadmin",
			"email":      "newadmin@example.com",
			"password":   "password123",
			"department": "Sales",
			"is_admin":   true,
		})

		assert.Equal(t, http.StatusOK, w.Code)

		var resp api.User
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, 5, resp.ID)
		assert.True(t, resp.IsAdmin)

		mockUserService.AssertExpectations(t)
	})

	t.Run("defaults to non-admin", func(t *testing.T) {
		mockUserService := new(MockUserService)
		router := setupUserAdminTestRouter(mockUserService, 0)

		created := testUser(6, "regular", "Engineering")
		mockUserService.On("GetUserByUsername", mock.Anything, "regular").Return(nil, nil)
		mockUserService.On("GetUserByEmail", mock.Anything, "regular@example.com").Return(nil, nil)
		mockUserService.On("CreateUser", mock.Anything, "regular", "regular@example.com", "password123", "Engineering", false).
			Return(created, nil)

		w := postJSON(t, router, "/users", map[string]interface{}{
			"username":   "regular",
			"email":      "regular@example.com",
			"password":   "password123",
			"department": "Engineering",
		})

		assert.Equal(t, http.StatusOK, w.Code)
		mockUserService.AssertExpectations(t)
	})

	t.Run("unknown department", func(t *testing.T) {
		mockUserService := new(MockUserService)
		router := setupUserAdminTestRouter(mockUserService, 0)

		w := postJSON(t, router, "/users", map[string]interface{}{
			"username":   "newuser",
			"email":      "new@example.com",
			"password":   "password123",
			"department": "Warp Drive",
		})

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "UNKNOWN_DEPARTMENT", errorCode(t, w.Body.Bytes()))
		mockUserService.AssertNotCalled(t, "CreateUser")
	})

	t.Run("duplicate username", func(t *testing.T) {
		mockUserService := new(MockUserService)
		router := setupUserAdminTestRouter(mockUserService, 0)

		mockUserService.On("GetUserByUsername", mock.Anything, "taken").Return(testUser(1, "taken", "Sales"), nil)

		w := postJSON(t, router, "/users", map[string]interface{}{
			"username":   "taken",
			"email":      "fresh@example.com",
			"password":   "password123",
			"department": "Sales",
		})

		assert.Equal(t, http.StatusConflict, w.Code)
		mockUserService.AssertNotCalled(t, "CreateUser")
	})
}

func TestUserAdminHandler_GetUser(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		mockUserService := new(MockUserService)
		router := setupUserAdminTestRouter(mockUserService, 0)

		mockUserService.On("GetUserByID", mock.Anything, 3).Return(testUser(3, "carol", "Sales"), nil)

		req, _ := http.NewRequest("GET", "/users/3", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)

		var resp api.User
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "carol", resp.Username)
	})

	t.Run("invalid id", func(t *testing.T) {
		mockUserService := new(MockUserService)
		router := setupUserAdminTestRouter(mockUserService, 0)

		req, _ := http.NewRequest("GET", "/users/abc", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "INVALID_FORMAT", errorCode(t, w.Body.Bytes()))
	})

	t.Run("not found", func(t *testing.T) {
		mockUserService := new(MockUserService)
		router := setupUserAdminTestRouter(mockUserService, 0)

		mockUserService.On("GetUserByID", mock.Anything, 404).Return(nil, nil)

		req, _ := http.NewRequest("GET", "/users/404", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, "RECORD_NOT_FOUND", errorCode(t, w.Body.Bytes()))
	})
}

func TestUserAdminHandler_UpdateUser(t *testing.T) {
	t.Run("partial update keeps stored fields", func(t *testing.T) {
		mockUserService := new(MockUserService)
		router := setupUserAdminTestRouter(mockUserService, 0)

		stored := testUser(3, "carol", "Sales")
		updated := testUser(3, "carol", "Engineering")

		mockUserService.On("GetUserByID", mock.Anything, 3).Return(stored, nil).Once()
		// Department changes, everything else is carried over
		mockUserService.On("UpdateUser", mock.Anything, 3, "carol", "carol@example.com", "Engineering", false).Return(nil)
		mockUserService.On("GetUserByID", mock.Anything, 3).Return(updated, nil).Once()

		w := putJSON(t, router, "/users/3", map[string]interface{}{
			"department": "Engineering",
		})

		assert.Equal(t, http.StatusOK, w.Code)

		var resp api.User
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "Engineering", resp.Department)

		mockUserService.AssertExpectations(t)
	})

	t.Run("email taken by another user", func(t *testing.T) {
		mockUserService := new(MockUserService)
		router := setupUserAdminTestRouter(mockUserService, 0)

		stored := testUser(3, "carol", "Sales")
		other := testUser(8, "dave", "Engineering")
		other.Email = sql.NullString{String: "dave@example.com", Valid: true}

		mockUserService.On("GetUserByID", mock.Anything, 3).Return(stored, nil)
		mockUserService.On("GetUserByEmail", mock.Anything, "dave@example.com").Return(other, nil)

		w := putJSON(t, router, "/users/3", map[string]interface{}{
			"email": "dave@example.com",
		})

		assert.Equal(t, http.StatusConflict, w.Code)
		mockUserService.AssertNotCalled(t, "UpdateUser")
	})

	t.Run("not found", func(t *testing.T) {
		mockUserService := new(MockUserService)
		router := setupUserAdminTestRouter(mockUserService, 0)

		mockUserService.On("GetUserByID", mock.Anything, 404).Return(nil, nil)

		w := putJSON(t, router, "/users/404", map[string]interface{}{
			"department": "Engineering",
		})

		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestUserAdminHandler_DeleteUser(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		mockUserService := new(MockUserService)
		router := setupUserAdminTestRouter(mockUserService, 0)

		mockUserService.On("GetUserByID", mock.Anything, 3).Return(testUser(3, "carol", "Sales"), nil)
		mockUserService.On("DeleteUser", mock.Anything, 3).Return(nil)

		req, _ := http.NewRequest("DELETE", "/users/3", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)

		var resp api.SuccessResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		require.NotNil(t, resp.Success)
		assert.True(t, *resp.Success)

		mockUserService.AssertExpectations(t)
	})

	t.Run("not found", func(t *testing.T) {
		mockUserService := new(MockUserService)
		router := setupUserAdminTestRouter(mockUserService, 0)

		mockUserService.On("GetUserByID", mock.Anything, 404).Return(nil, nil)

		req, _ := http.NewRequest("DELETE", "/users/404", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusNotFound, w.Code)
		mockUserService.AssertNotCalled(t, "DeleteUser")
	})
}

func TestUserAdminHandler_ResetUserPassword(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		mockUserService := new(MockUserService)
		router := setupUserAdminTestRouter(mockUserService, 0)

		mockUserService.On("GetUserByID", mock.Anything, 3).Return(testUser(3, "carol", "Sales"), nil)
		mockUserService.On("UpdateUserPassword", mock.Anything, 3, "newpassword123").Return(nil)

		w := postJSON(t, router, "/users/3/reset-password", map[string]string{
			"password": "newpassword123",
		})

		assert.Equal(t, http.StatusOK, w.Code)
		mockUserService.AssertExpectations(t)
	})

	t.Run("too short", func(t *testing.T) {
		mockUserService := new(MockUserService)
		router := setupUserAdminTestRouter(mockUserService, 0)

		mockUserService.On("GetUserByID", mock.Anything, 3).Return(testUser(3, "carol", "Sales"), nil)

		w := postJSON(t, router, "/users/3/reset-password", map[string]string{
			"password": "short",
		})

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "INVALID_FORMAT", errorCode(t, w.Body.Bytes()))
		mockUserService.AssertNotCalled(t, "UpdateUserPassword")
	})
}

func TestUserAdminHandler_GetProfile(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		mockUserService := new(MockUserService)
		router := setupUserAdminTestRouter(mockUserService, 7)

		mockUserService.On("GetUserByID", mock.Anything, 7).Return(testUser(7, "bob", "Sales"), nil)

		req, _ := http.NewRequest("GET", "/me", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)

		var resp api.User
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "bob", resp.Username)
	})

	t.Run("unauthenticated", func(t *testing.T) {
		mockUserService := new(MockUserService)
		router := setupUserAdminTestRouter(mockUserService, 0)

		req, _ := http.NewRequest("GET", "/me", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestUserAdminHandler_UpdateProfile(t *testing.T) {
	t.Run("change email", func(t *testing.T) {
		mockUserService := new(MockUserService)
		router := setupUserAdminTestRouter(mockUserService, 7)

		stored := testUser(7, "bob", "Sales")
		updated := testUser(7, "bob", "Sales")
		updated.Email = sql.NullString{String: "bob-new@example.com", Valid: true}

		mockUserService.On("GetUserByID", mock.Anything, 7).Return(stored, nil).Once()
		mockUserService.On("GetUserByEmail", mock.Anything, "bob-new@example.com").Return(nil, nil)
		mockUserService.On("UpdateUserProfile", mock.Anything, 7, "bob-new@example.com").Return(nil)
		mockUserService.On("GetUserByID", mock.Anything, 7).Return(updated, nil).Once()

		w := putJSON(t, router, "/me", map[string]string{
			"email": "bob-new@example.com",
		})

		assert.Equal(t, http.StatusOK, w.Code)

		var resp api.User
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		require.NotNil(t, resp.Email)
		assert.Equal(t, "bob-new@example.com", string(*resp.Email))

		mockUserService.AssertExpectations(t)
	})

	t.Run("no email field is a no-op", func(t *testing.T) {
		mockUserService := new(MockUserService)
		router := setupUserAdminTestRouter(mockUserService, 7)

		mockUserService.On("GetUserByID", mock.Anything, 7).Return(testUser(7, "bob", "Sales"), nil)

		w := putJSON(t, router, "/me", map[string]string{})

		assert.Equal(t, http.StatusOK, w.Code)
		mockUserService.AssertNotCalled(t, "UpdateUserProfile")
	})

	t.Run("email taken", func(t *testing.T) {
		mockUserService := new(MockUserService)
		router := setupUserAdminTestRouter(mockUserService, 7)

		other := testUser(9, "carol", "Sales")

		mockUserService.On("GetUserByID", mock.Anything, 7).Return(testUser(7, "bob", "Sales"), nil)
		mockUserService.On("GetUserByEmail", mock.Anything, "carol@example.com").Return(other, nil)

		w := putJSON(t, router, "/me", map[string]string{
			"email": "carol@example.com",
		})

		assert.Equal(t, http.StatusConflict, w.Code)
		mockUserService.AssertNotCalled(t, "UpdateUserProfile")
	})
}
