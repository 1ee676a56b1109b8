package handlers

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"feedbackapp/internal/api"
	"feedbackapp/internal/config"
	"feedbackapp/internal/models"
	"feedbackapp/internal/observability"
	"feedbackapp/internal/services"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockUserService implements UserServiceInterface for handler tests
type MockUserService struct {
	mock.Mock
}

func (m *MockUserService) CreateUser(ctx context.Context, username, email, password, department string, isAdmin bool) (*models.User, error) {
	args := m.Called(ctx, username, email, password, department, isAdmin)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserService) AuthenticateUser(ctx context.Context, username, password string) (*models.User, error) {
	args := m.Called(ctx, username, password)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserService) GetUserByID(ctx context.Context, id int) (*models.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserService) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	args := m.Called(ctx, username)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserService) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserService) GetAllUsers(ctx context.Context) ([]models.User, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.User), args.Error(1)
}

func (m *MockUserService) GetUsersPaginated(ctx context.Context, page, pageSize int, search, department, isAdmin string) ([]models.User, int, error) {
	args := m.Called(ctx, page, pageSize, search, department, isAdmin)
	if args.Get(0) == nil {
		return nil, args.Int(1), args.Error(2)
	}
	return args.Get(0).([]models.User), args.Int(1), args.Error(2)
}

func (m *MockUserService) UpdateUser(ctx context.Context, userID int, username, email, department string, isAdmin bool) error {
	args := m.Called(ctx, userID, username, email, department, isAdmin)
	return args.Error(0)
}

func (m *MockUserService) UpdateUserProfile(ctx context.Context, userID int, email string) error {
	args := m.Called(ctx, userID, email)
	return args.Error(0)
}

func (m *MockUserService) UpdateUserPassword(ctx context.Context, userID int, newPassword string) error {
	args := m.Called(ctx, userID, newPassword)
	return args.Error(0)
}

func (m *MockUserService) UpdateLastActive(ctx context.Context, userID int) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

func (m *MockUserService) DeleteUser(ctx context.Context, userID int) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

func (m *MockUserService) DeleteAllUsers(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockUserService) EnsureAdminUserExists(ctx context.Context, adminUsername, adminPassword string) error {
	args := m.Called(ctx, adminUsername, adminPassword)
	return args.Error(0)
}

func (m *MockUserService) IsAdmin(ctx context.Context, userID int) (bool, error) {
	args := m.Called(ctx, userID)
	return args.Bool(0), args.Error(1)
}

func (m *MockUserService) ResetDatabase(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockUserService) ClearUserData(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockUserService) GetDB() *sql.DB {
	args := m.Called()
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).(*sql.DB)
}

func testLogger() *observability.Logger {
	return observability.NewLogger(&config.OpenTelemetryConfig{EnableLogging: false})
}

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			SessionSecret: "test-secret",
			AdminUsername: "admin",
			AdminPassword: "password",
		},
		Departments: []config.Department{
			{Name: "Engineering"},
			{Name: "Human Resources"},
			{Name: "Sales"},
		},
	}
}

func testUser(id int, username, department string) *models.User {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	return &models.User{
		ID:         id,
		Username:   username,
		Email:      sql.NullString{String: username + "@example.com", Valid: true},
		Department: department,
		IsAdmin:    false,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func setupAuthTestRouter(userService services.UserServiceInterface, cfg *config.Config) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()

	store := cookie.NewStore([]byte("test-secret"))
	router.Use(sessions.Sessions("test-session", store))

	if cfg == nil {
		cfg = testConfig()
	}

	handler := NewAuthHandler(userService, cfg, testLogger())

	router.POST("/login", handler.Login)
	router.POST("/logout", handler.Logout)
	router.GET("/status", handler.Status)
	router.POST("/signup", handler.Signup)

	return router
}

func postJSON(t *testing.T, router *gin.Engine, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)

	req, err := http.NewRequest("POST", path, bytes.NewReader(data))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func errorCode(t *testing.T, body []byte) string {
	t.Helper()
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(body, &resp))
	code, _ := resp["code"].(string)
	return code
}

func TestAuthHandler_Login_Success(t *testing.T) {
	mockUserService := new(MockUserService)
	router := setupAuthTestRouter(mockUserService, nil)

	user := testUser(1, "alice", "Engineering")
	mockUserService.On("AuthenticateUser", mock.Anything, "alice", "password123").Return(user, nil)
	mockUserService.On("UpdateLastActive", mock.Anything, 1).Return(nil)

	w := postJSON(t, router, "/login", map[string]string{
		"username": "alice",
		"password": "password123",
	})

	assert.Equal(t, http.StatusOK, w.Code)

	var resp api.LoginResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotNil(t, resp.Success)
	assert.True(t, *resp.Success)
	require.NotNil(t, resp.User)
	assert.Equal(t, "alice", resp.User.Username)
	assert.Equal(t, "Engineering", resp.User.Department)

	// Session cookie is set for subsequent requests
	assert.NotEmpty(t, w.Header().Get("Set-Cookie"))

	mockUserService.AssertExpectations(t)
}

func TestAuthHandler_Login_InvalidCredentials(t *testing.T) {
	mockUserService := new(MockUserService)
	router := setupAuthTestRouter(mockUserService, nil)

	mockUserService.On("AuthenticateUser", mock.Anything, "alice", "wrong").Return(nil, assert.AnError)

	w := postJSON(t, router, "/login", map[string]string{
		"username": "alice",
		"password": "wrong",
	})

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "INVALID_CREDENTIALS", errorCode(t, w.Body.Bytes()))

	mockUserService.AssertExpectations(t)
}

func TestAuthHandler_Login_MissingFields(t *testing.T) {
	mockUserService := new(MockUserService)
	router := setupAuthTestRouter(mockUserService, nil)

	cases := []struct {
		name string
		body map[string]string
	}{
		{"no password", map[string]string{"username": "alice"}},
		{"no username", map[string]string{"password": "password123"}},
		{"empty body", map[string]string{}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := postJSON(t, router, "/login", tc.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, "INVALID_INPUT", errorCode(t, w.Body.Bytes()))
		})
	}

	mockUserService.AssertNotCalled(t, "AuthenticateUser")
}

func TestAuthHandler_Logout(t *testing.T) {
	mockUserService := new(MockUserService)
	router := setupAuthTestRouter(mockUserService, nil)

	w := postJSON(t, router, "/logout", map[string]string{})

	assert.Equal(t, http.StatusOK, w.Code)

	var resp api.SuccessResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotNil(t, resp.Success)
	assert.True(t, *resp.Success)
}

func TestAuthHandler_Status_NotAuthenticated(t *testing.T) {
	mockUserService := new(MockUserService)
	router := setupAuthTestRouter(mockUserService, nil)

	req, _ := http.NewRequest("GET", "/status", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp api.AuthStatusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Authenticated)
	assert.Nil(t, resp.User)
}

func TestAuthHandler_Status_Authenticated(t *testing.T) {
	mockUserService := new(MockUserService)
	router := setupAuthTestRouter(mockUserService, nil)

	user := testUser(7, "bob", "Sales")
	mockUserService.On("AuthenticateUser", mock.Anything, "bob", "password123").Return(user, nil)
	mockUserService.On("UpdateLastActive", mock.Anything, 7).Return(nil)
	mockUserService.On("GetUserByID", mock.Anything, 7).Return(user, nil)

	// Login to obtain a session cookie
	loginResp := postJSON(t, router, "/login", map[string]string{
		"username": "bob",
		"password": "password123",
	})
	require.Equal(t, http.StatusOK, loginResp.Code)
	cookies := loginResp.Result().Cookies()
	require.NotEmpty(t, cookies)

	req, _ := http.NewRequest("GET", "/status", nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp api.AuthStatusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Authenticated)
	require.NotNil(t, resp.User)
	assert.Equal(t, "bob", resp.User.Username)

	mockUserService.AssertExpectations(t)
}

func TestAuthHandler_Status_UserDeleted(t *testing.T) {
	mockUserService := new(MockUserService)
	router := setupAuthTestRouter(mockUserService, nil)

	user := testUser(9, "carol", "Engineering")
	mockUserService.On("AuthenticateUser", mock.Anything, "carol", "password123").Return(user, nil)
	mockUserService.On("UpdateLastActive", mock.Anything, 9).Return(nil)
	// User was removed between login and the status check
	mockUserService.On("GetUserByID", mock.Anything, 9).Return(nil, nil)

	loginResp := postJSON(t, router, "/login", map[string]string{
		"username": "carol",
		"password": "password123",
	})
	require.Equal(t, http.StatusOK, loginResp.Code)

	req, _ := http.NewRequest("GET", "/status", nil)
	for _, c := range loginResp.Result().Cookies() {
		req.AddCookie(c)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp api.AuthStatusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Authenticated)

	mockUserService.AssertExpectations(t)
}

func TestAuthHandler_Signup_Success(t *testing.T) {
	mockUserService := new(MockUserService)
	router := setupAuthTestRouter(mockUserService, nil)

	created := testUser(3, "newuser", "Engineering")
	mockUserService.On("GetUserByUsername", mock.Anything, "newuser").Return(nil, nil)
	mockUserService.On("GetUserByEmail", mock.Anything, "new@example.com").Return(nil, nil)
	mockUserService.On("CreateUser", mock.Anything, "newuser", "new@example.com", "password123", "Engineering", false).Return(created, nil)

	w := postJSON(t, router, "/signup", map[string]string{
		"username":   "newuser",
		"email":      "New@Example.com",
		"password":   "password123",
		"department": "engineering",
	})

	assert.Equal(t, http.StatusOK, w.Code)

	var resp api.User
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 3, resp.ID)
	assert.Equal(t, "newuser", resp.Username)
	assert.Equal(t, "Engineering", resp.Department)
	assert.False(t, resp.IsAdmin)

	mockUserService.AssertExpectations(t)
}

func TestAuthHandler_Signup_Validation(t *testing.T) {
	cases := []struct {
		name     string
		body     map[string]string
		wantCode string
	}{
		{
			"missing username",
			map[string]string{"email": "a@b.com", "password": "password123", "department": "Engineering"},
			"INVALID_INPUT",
		},
		{
			"missing email",
			map[string]string{"username": "newuser", "password": "password123", "department": "Engineering"},
			"INVALID_INPUT",
		},
		{
			"invalid email",
			map[string]string{"username": "newuser", "email": "not-an-email", "password": "password123", "department": "Engineering"},
			"INVALID_FORMAT",
		},
		{
			"username too short",
			map[string]string{"username": "ab", "email": "a@b.com", "password": "password123", "department": "Engineering"},
			"INVALID_FORMAT",
		},
		{
			"username with spaces",
			map[string]string{"username": "bad user", "email": "a@b.com", "password": "password123", "department": "Engineering"},
			"INVALID_FORMAT",
		},
		{
			"password too short",
			map[string]string{"username": "newuser", "email": "a@b.com", "password": "short", "department": "Engineering"},
			"INVALID_FORMAT",
		},
		{
			"unknown department",
			map[string]string{"username": "newuser", "email": "a@b.com", "password": "password123", "department": "Astrology"},
			"UNKNOWN_DEPARTMENT",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			mockUserService := new(MockUserService)
			router := setupAuthTestRouter(mockUserService, nil)

			w := postJSON(t, router, "/signup", tc.body)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, tc.wantCode, errorCode(t, w.Body.Bytes()))
			mockUserService.AssertNotCalled(t, "CreateUser")
		})
	}
}

func TestAuthHandler_Signup_DuplicateUsername(t *testing.T) {
	mockUserService := new(MockUserService)
	router := setupAuthTestRouter(mockUserService, nil)

	existing := testUser(1, "taken", "Sales")
	mockUserService.On("GetUserByUsername", mock.Anything, "taken").Return(existing, nil)

	w := postJSON(t, router, "/signup", map[string]string{
		"username":   "taken",
		"email":      "fresh@example.com",
		"password":   "password123",
		"department": "Engineering",
	})

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "RECORD_ALREADY_EXISTS", errorCode(t, w.Body.Bytes()))

	mockUserService.AssertNotCalled(t, "CreateUser")
	mockUserService.AssertExpectations(t)
}

func TestAuthHandler_Signup_DuplicateEmail(t *testing.T) {
	mockUserService := new(MockUserService)
	router := setupAuthTestRouter(mockUserService, nil)

	existing := testUser(2, "other", "Sales")
	mockUserService.On("GetUserByUsername", mock.Anything, "newuser").Return(nil, nil)
	mockUserService.On("GetUserByEmail", mock.Anything, "dup@example.com").Return(existing, nil)

	w := postJSON(t, router, "/signup", map[string]string{
		"username":   "newuser",
		"email":      "dup@example.com",
		"password":   "password123",
		"department": "Engineering",
	})

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "RECORD_ALREADY_EXISTS", errorCode(t, w.Body.Bytes()))

	mockUserService.AssertNotCalled(t, "CreateUser")
	mockUserService.AssertExpectations(t)
}

func TestAuthHandler_Signup_Disabled(t *testing.T) {
	cfg := testConfig()
	cfg.System = &config.SystemConfig{
		Auth: config.AuthConfig{
			SignupsDisabled: true,
			AllowedEmails:   []string{"vip@example.com"},
		},
	}

	t.Run("blocked email", func(t *testing.T) {
		mockUserService := new(MockUserService)
		router := setupAuthTestRouter(mockUserService, cfg)

		w := postJSON(t, router, "/signup", map[string]string{
			"username":   "newuser",
			"email":      "blocked@example.com",
			"password":   "password123",
			"department": "Engineering",
		})

		assert.Equal(t, http.StatusForbidden, w.Code)
		assert.Equal(t, "FORBIDDEN", errorCode(t, w.Body.Bytes()))
		mockUserService.AssertNotCalled(t, "CreateUser")
	})

	t.Run("whitelisted email", func(t *testing.T) {
		mockUserService := new(MockUserService)
		router := setupAuthTestRouter(mockUserService, cfg)

		created := testUser(4, "vipuser", "Engineering")
		mockUserService.On("GetUserByUsername", mock.Anything, "vipuser").Return(nil, nil)
		mockUserService.On("GetUserByEmail", mock.Anything, "vip@example.com").Return(nil, nil)
		mockUserService.On("CreateUser", mock.Anything, "vipuser", "vip@example.com", "password123", "Engineering", false).Return(created, nil)

		w := postJSON(t, router, "/signup", map[string]string{
			"username":   "vipuser",
			"email":      "vip@example.com",
			"password":   "password123",
			"department": "Engineering",
		})

		assert.Equal(t, http.StatusOK, w.Code)
		mockUserService.AssertExpectations(t)
	})
}
