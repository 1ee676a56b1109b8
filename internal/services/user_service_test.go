package services

import (
	"database/sql"
	"encoding/json"
	"testing"

	"feedbackapp/internal/config"
	"feedbackapp/internal/models"
	"feedbackapp/internal/observability"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// TestUserService_NewUserServiceWithLogger tests the constructor
func TestUserService_NewUserServiceWithLogger(t *testing.T) {
	cfg := &config.Config{Departments: config.DefaultDepartments()}
	logger := observability.NewLogger(&config.OpenTelemetryConfig{EnableLogging: false})
	service := NewUserServiceWithLogger(nil, cfg, logger) // No database needed for constructor
	assert.NotNil(t, service)
}

// TestUserService_hashPassword tests password hashing (testing bcrypt directly since method may be private)
func TestUserService_hashPassword(t *testing.T) {
	password := "testpassword123"
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)

	assert.NoError(t, err)
	assert.NotEmpty(t, hash)
	assert.NotEqual(t, password, string(hash))

	// Verify the hash can be verified
	err = bcrypt.CompareHashAndPassword(hash, []byte(password))
	assert.NoError(t, err)
}

// TestUserService_DepartmentNormalization tests signup department resolution
// against the configured list
func TestUserService_DepartmentNormalization(t *testing.T) {
	cfg := &config.Config{Departments: config.DefaultDepartments()}

	tests := []struct {
		name      string
		input     string
		want      string
		wantKnown bool
	}{
		{"exact match", "Engineering", "Engineering", true},
		{"lowercase", "engineering", "Engineering", true},
		{"uppercase", "SALES", "Sales", true},
		{"surrounding whitespace", "  Marketing  ", "Marketing", true},
		{"multi-word", "human resources", "Human Resources", true},
		{"unknown", "Legal", "", false},
		{"empty", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			canonical, ok := cfg.NormalizeDepartment(tt.input)
			assert.Equal(t, tt.wantKnown, ok)
			assert.Equal(t, tt.want, canonical)
		})
	}
}

// TestUser_MarshalJSON_OmitsPasswordHash verifies the hash never leaks into responses
func TestUser_MarshalJSON_OmitsPasswordHash(t *testing.T) {
	user := models.User{
		ID:           1,
		Username:     "alice",
		Email:        sql.NullString{String: "alice@example.com", Valid: true},
		PasswordHash: sql.NullString{String: "$2a$10$secret", Valid: true},
		Department:   "Engineering",
	}

	data, err := json.Marshal(user)
	require.NoError(t, err)

	assert.NotContains(t, string(data), "secret")
	assert.NotContains(t, string(data), "password")

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "alice", decoded["username"])
	assert.Equal(t, "alice@example.com", decoded["email"])
	assert.Equal(t, "Engineering", decoded["department"])
}

// TestUser_MarshalJSON_NullFields verifies null email and last_active marshal as JSON null
func TestUser_MarshalJSON_NullFields(t *testing.T) {
	user := models.User{ID: 2, Username: "bob", Department: "Sales"}

	data, err := json.Marshal(user)
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Nil(t, decoded["email"])
	assert.Nil(t, decoded["last_active"])
}

// TestIsDuplicateKeyError tests unique violation detection
func TestIsDuplicateKeyError(t *testing.T) {
	assert.False(t, isDuplicateKeyError(nil))
	assert.False(t, isDuplicateKeyError(sql.ErrNoRows))
	assert.False(t, isDuplicateKeyError(&pq.Error{Code: "23503"}))
	assert.True(t, isDuplicateKeyError(&pq.Error{Code: "23505"}))
}

// TestIsForeignKeyError tests foreign key violation detection
func TestIsForeignKeyError(t *testing.T) {
	assert.False(t, isForeignKeyError(nil))
	assert.False(t, isForeignKeyError(sql.ErrNoRows))
	assert.False(t, isForeignKeyError(&pq.Error{Code: "23505"}))
	assert.True(t, isForeignKeyError(&pq.Error{Code: "23503"}))
}

// TestUser_DefaultValues tests default values for users
func TestUser_DefaultValues(t *testing.T) {
	user := &models.User{
		Username:   "testuser",
		Department: "Engineering",
	}

	assert.Equal(t, "testuser", user.Username)
	assert.Equal(t, "Engineering", user.Department)
	assert.False(t, user.IsAdmin)
	assert.False(t, user.Email.Valid)
	assert.Equal(t, 0, user.ID)             // Default ID before saving
	assert.True(t, user.CreatedAt.IsZero()) // Default timestamp before saving
}

// Note: Database-dependent tests have been moved to user_service_integration_test.go
// Run integration tests with: go test -tags=integration ./...
