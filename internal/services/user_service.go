package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"feedbackapp/internal/config"
	"feedbackapp/internal/models"
	"feedbackapp/internal/observability"
	contextutils "feedbackapp/internal/utils"

	"github.com/lib/pq"

	"golang.org/x/crypto/bcrypt"
)

// UserServiceInterface defines the interface for user-related operations.
// This allows for easier mocking in tests.
type UserServiceInterface interface {
	CreateUser(ctx context.Context, username, email, password, department string, isAdmin bool) (*models.User, error)
	AuthenticateUser(ctx context.Context, username, password string) (*models.User, error)
	GetUserByID(ctx context.Context, id int) (*models.User, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetAllUsers(ctx context.Context) ([]models.User, error)
	GetUsersPaginated(ctx context.Context, page, pageSize int, search, department, isAdmin string) ([]models.User, int, error)
	UpdateUser(ctx context.Context, userID int, username, email, department string, isAdmin bool) error
	UpdateUserProfile(ctx context.Context, userID int, email string) error
	UpdateUserPassword(ctx context.Context, userID int, newPassword string) error
	UpdateLastActive(ctx context.Context, userID int) error
	DeleteUser(ctx context.Context, userID int) error
	DeleteAllUsers(ctx context.Context) error
	EnsureAdminUserExists(ctx context.Context, adminUsername, adminPassword string) error
	IsAdmin(ctx context.Context, userID int) (bool, error)
	ResetDatabase(ctx context.Context) error
	ClearUserData(ctx context.Context) error
	GetDB() *sql.DB
}

// UserService provides methods for user management.
type UserService struct {
	db     *sql.DB
	cfg    *config.Config
	logger *observability.Logger
}

// Shared query constants to eliminate duplication
const (
	// userSelectFields contains all user fields for SELECT queries
	userSelectFields = `id, username, email, password_hash, department, is_admin, last_active, created_at, updated_at`

	// userSelectFieldsNoPassword contains user fields excluding password_hash for listings
	userSelectFieldsNoPassword = `id, username, email, department, is_admin, last_active, created_at, updated_at`
)

// scanUserFromRow scans a database row into a models.User struct
func (s *UserService) scanUserFromRow(row *sql.Row) (result0 *models.User, err error) {
	user := &models.User{}
	err = row.Scan(
		&user.ID, &user.Username, &user.Email, &user.PasswordHash,
		&user.Department, &user.IsAdmin, &user.LastActive, &user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return user, nil
}

// scanUserFromRowsNoPassword scans database rows into a models.User struct (without password_hash)
func (s *UserService) scanUserFromRowsNoPassword(rows *sql.Rows) (result0 *models.User, err error) {
	user := &models.User{}
	err = rows.Scan(
		&user.ID, &user.Username, &user.Email,
		&user.Department, &user.IsAdmin, &user.LastActive, &user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return user, nil
}

// getUserByQuery is a shared method for getting a user by any query
func (s *UserService) getUserByQuery(ctx context.Context, query string, args ...interface{}) (result0 *models.User, err error) {
	row := s.db.QueryRowContext(ctx, query, args...)
	var user *models.User
	user, err = s.scanUserFromRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // User not found is not an error here
		}
		return nil, err
	}
	return user, nil
}

// NewUserServiceWithLogger creates a new UserService instance with logger
func NewUserServiceWithLogger(db *sql.DB, cfg *config.Config, logger *observability.Logger) *UserService {
	if db == nil {
		panic("UserService requires a non-nil database connection")
	}
	if cfg == nil {
		panic("UserService requires a non-nil config")
	}
	return &UserService{
		db:     db,
		cfg:    cfg,
		logger: logger,
	}
}

// CreateUser creates a new user with a bcrypt-hashed password. The department
// must resolve against the configured department list; the canonical spelling
// is stored.
func (s *UserService) CreateUser(ctx context.Context, username, email, password, department string, isAdmin bool) (result0 *models.User, err error) {
	ctx, span := observability.TraceUserFunction(ctx, "create_user",
		observability.AttributeUsername(username),
		observability.AttributeDepartment(department),
	)
	defer observability.FinishSpan(span, &err)

	canonical, ok := s.cfg.NormalizeDepartment(department)
	if !ok {
		return nil, contextutils.WrapErrorf(contextutils.ErrUnknownDepartment, "department %q is not configured", department)
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to hash password")
	}

	// Empty emails are stored as NULL so the unique constraint only binds
	// real addresses
	var user models.User
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO users (username, email, password_hash, department, is_admin, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
		RETURNING `+userSelectFieldsNoPassword,
		username, toNullString(email), string(hashedPassword), canonical, isAdmin,
	).Scan(&user.ID, &user.Username, &user.Email, &user.Department, &user.IsAdmin,
		&user.LastActive, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return nil, contextutils.WrapErrorf(contextutils.ErrRecordExists, "user %s already exists", username)
		}
		s.logger.Error(ctx, "Failed to create user", err, map[string]interface{}{
			"username":   username,
			"department": canonical,
		})
		return nil, contextutils.WrapError(err, "failed to create user")
	}

	s.logger.Info(ctx, "User created", map[string]interface{}{
		"user_id":    user.ID,
		"username":   user.Username,
		"department": user.Department,
		"is_admin":   user.IsAdmin,
	})
	return &user, nil
}

// AuthenticateUser verifies user credentials and returns the user if valid
func (s *UserService) AuthenticateUser(ctx context.Context, username, password string) (result0 *models.User, err error) {
	ctx, span := observability.TraceUserFunction(ctx, "authenticate_user",
		observability.AttributeUsername(username),
	)
	defer observability.FinishSpan(span, &err)

	user, err := s.getUserByQuery(ctx,
		`SELECT `+userSelectFields+` FROM users WHERE username = $1`, username)
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to query user for authentication")
	}
	if user == nil {
		return nil, contextutils.ErrInvalidCredentials
	}

	if !user.PasswordHash.Valid || user.PasswordHash.String == "" {
		s.logger.Warn(ctx, "User has no password hash set", map[string]interface{}{"username": username})
		return nil, contextutils.ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash.String), []byte(password)); err != nil {
		return nil, contextutils.ErrInvalidCredentials
	}

	return user, nil
}

// GetUserByID retrieves a user by their ID
func (s *UserService) GetUserByID(ctx context.Context, id int) (result0 *models.User, err error) {
	ctx, span := observability.TraceUserFunction(ctx, "get_user_by_id",
		observability.AttributeUserID(id),
	)
	defer observability.FinishSpan(span, &err)

	return s.getUserByQuery(ctx,
		`SELECT `+userSelectFields+` FROM users WHERE id = $1`, id)
}

// GetUserByUsername retrieves a user by their username
func (s *UserService) GetUserByUsername(ctx context.Context, username string) (result0 *models.User, err error) {
	ctx, span := observability.TraceUserFunction(ctx, "get_user_by_username",
		observability.AttributeUsername(username),
	)
	defer observability.FinishSpan(span, &err)

	return s.getUserByQuery(ctx,
		`SELECT `+userSelectFields+` FROM users WHERE username = $1`, username)
}

// GetUserByEmail retrieves a user by their email address
func (s *UserService) GetUserByEmail(ctx context.Context, email string) (result0 *models.User, err error) {
	ctx, span := observability.TraceUserFunction(ctx, "get_user_by_email")
	defer observability.FinishSpan(span, &err)

	return s.getUserByQuery(ctx,
		`SELECT `+userSelectFields+` FROM users WHERE email = $1`, email)
}

// GetAllUsers retrieves all users ordered by username
func (s *UserService) GetAllUsers(ctx context.Context) (result0 []models.User, err error) {
	ctx, span := observability.TraceUserFunction(ctx, "get_all_users")
	defer observability.FinishSpan(span, &err)

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+userSelectFieldsNoPassword+` FROM users ORDER BY username`)
	if err != nil {
		s.logger.Error(ctx, "Failed to get all users", err, map[string]interface{}{})
		return nil, contextutils.WrapError(err, "failed to get all users")
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			s.logger.Error(ctx, "Failed to close rows", closeErr, map[string]interface{}{})
		}
	}()

	var users []models.User
	for rows.Next() {
		user, err := s.scanUserFromRowsNoPassword(rows)
		if err != nil {
			return nil, contextutils.WrapError(err, "failed to scan user row")
		}
		users = append(users, *user)
	}
	if err := rows.Err(); err != nil {
		return nil, contextutils.WrapError(err, "error iterating user rows")
	}

	return users, nil
}

// GetUsersPaginated retrieves paginated users with filtering and search.
// search matches username or email, department filters on the exact
// configured name, and isAdmin accepts "true" or "false".
func (s *UserService) GetUsersPaginated(ctx context.Context, page, pageSize int, search, department, isAdmin string) (result0 []models.User, result1 int, err error) {
	ctx, span := observability.TraceUserFunction(ctx, "get_users_paginated",
		observability.AttributePage(page),
		observability.AttributePageSize(pageSize),
		observability.AttributeSearch(search),
		observability.AttributeDepartment(department),
	)
	defer observability.FinishSpan(span, &err)

	whereConditions := []string{}
	args := []interface{}{}
	argIndex := 1

	if search != "" {
		whereConditions = append(whereConditions,
			fmt.Sprintf("(username ILIKE $%d OR email ILIKE $%d)", argIndex, argIndex))
		args = append(args, "%"+search+"%")
		argIndex++
	}

	if department != "" {
		whereConditions = append(whereConditions, fmt.Sprintf("department = $%d", argIndex))
		args = append(args, department)
		argIndex++
	}

	switch isAdmin {
	case "true":
		whereConditions = append(whereConditions, "is_admin = true")
	case "false":
		whereConditions = append(whereConditions, "is_admin = false")
	}

	whereClause := ""
	if len(whereConditions) > 0 {
		whereClause = "WHERE " + strings.Join(whereConditions, " AND ")
	}

	var total int
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM users %s", whereClause)
	err = s.db.QueryRowContext(ctx, countQuery, args...).Scan(&total)
	if err != nil {
		s.logger.Error(ctx, "Failed to count users", err, map[string]interface{}{})
		return nil, 0, contextutils.WrapError(err, "failed to count users")
	}

	offset := (page - 1) * pageSize
	args = append(args, pageSize, offset)
	query := fmt.Sprintf(`
		SELECT `+userSelectFieldsNoPassword+`
		FROM users
		%s
		ORDER BY username
		LIMIT $%d OFFSET $%d
	`, whereClause, argIndex, argIndex+1)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		s.logger.Error(ctx, "Failed to get paginated users", err, map[string]interface{}{
			"page":      page,
			"page_size": pageSize,
		})
		return nil, 0, contextutils.WrapError(err, "failed to get paginated users")
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			s.logger.Error(ctx, "Failed to close rows", closeErr, map[string]interface{}{})
		}
	}()

	var users []models.User
	for rows.Next() {
		user, err := s.scanUserFromRowsNoPassword(rows)
		if err != nil {
			return nil, 0, contextutils.WrapError(err, "failed to scan user row")
		}
		users = append(users, *user)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, contextutils.WrapError(err, "error iterating user rows")
	}

	return users, total, nil
}

// UpdateUser updates a user's account fields. The department must resolve
// against the configured list.
func (s *UserService) UpdateUser(ctx context.Context, userID int, username, email, department string, isAdmin bool) (err error) {
	ctx, span := observability.TraceUserFunction(ctx, "update_user",
		observability.AttributeUserID(userID),
		observability.AttributeDepartment(department),
	)
	defer observability.FinishSpan(span, &err)

	canonical, ok := s.cfg.NormalizeDepartment(department)
	if !ok {
		return contextutils.WrapErrorf(contextutils.ErrUnknownDepartment, "department %q is not configured", department)
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE users
		SET username = $2, email = $3, department = $4, is_admin = $5, updated_at = NOW()
		WHERE id = $1
	`, userID, username, toNullString(email), canonical, isAdmin)
	if err != nil {
		if isDuplicateKeyError(err) {
			return contextutils.WrapErrorf(contextutils.ErrRecordExists, "username or email already in use")
		}
		s.logger.Error(ctx, "Failed to update user", err, map[string]interface{}{"user_id": userID})
		return contextutils.WrapError(err, "failed to update user")
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return contextutils.WrapError(err, "failed to get rows affected")
	}
	if rowsAffected == 0 {
		return contextutils.WrapErrorf(contextutils.ErrRecordNotFound, "user %d not found", userID)
	}

	s.logger.Info(ctx, "User updated", map[string]interface{}{
		"user_id":    userID,
		"username":   username,
		"department": canonical,
		"is_admin":   isAdmin,
	})
	return nil
}

// UpdateUserProfile updates self-service profile fields
func (s *UserService) UpdateUserProfile(ctx context.Context, userID int, email string) (err error) {
	ctx, span := observability.TraceUserFunction(ctx, "update_user_profile",
		observability.AttributeUserID(userID),
	)
	defer observability.FinishSpan(span, &err)

	result, err := s.db.ExecContext(ctx, `
		UPDATE users SET email = $2, updated_at = NOW() WHERE id = $1
	`, userID, toNullString(email))
	if err != nil {
		if isDuplicateKeyError(err) {
			return contextutils.WrapErrorf(contextutils.ErrRecordExists, "email already in use")
		}
		s.logger.Error(ctx, "Failed to update user profile", err, map[string]interface{}{"user_id": userID})
		return contextutils.WrapError(err, "failed to update user profile")
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return contextutils.WrapError(err, "failed to get rows affected")
	}
	if rowsAffected == 0 {
		return contextutils.WrapErrorf(contextutils.ErrRecordNotFound, "user %d not found", userID)
	}
	return nil
}

// UpdateUserPassword updates a user's password
func (s *UserService) UpdateUserPassword(ctx context.Context, userID int, newPassword string) (err error) {
	ctx, span := observability.TraceUserFunction(ctx, "update_user_password",
		observability.AttributeUserID(userID),
	)
	defer observability.FinishSpan(span, &err)

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return contextutils.WrapError(err, "failed to hash password")
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE users SET password_hash = $2, updated_at = NOW() WHERE id = $1
	`, userID, string(hashedPassword))
	if err != nil {
		s.logger.Error(ctx, "Failed to update password", err, map[string]interface{}{"user_id": userID})
		return contextutils.WrapError(err, "failed to update password")
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return contextutils.WrapError(err, "failed to get rows affected")
	}
	if rowsAffected == 0 {
		return contextutils.WrapErrorf(contextutils.ErrRecordNotFound, "user %d not found", userID)
	}

	s.logger.Info(ctx, "Password updated", map[string]interface{}{"user_id": userID})
	return nil
}

// UpdateLastActive updates the user's last activity timestamp
func (s *UserService) UpdateLastActive(ctx context.Context, userID int) (err error) {
	ctx, span := observability.TraceUserFunction(ctx, "update_last_active",
		observability.AttributeUserID(userID),
	)
	defer observability.FinishSpan(span, &err)

	_, err = s.db.ExecContext(ctx, `
		UPDATE users SET last_active = NOW() WHERE id = $1
	`, userID)
	if err != nil {
		s.logger.Error(ctx, "Failed to update last active", err, map[string]interface{}{"user_id": userID})
		return contextutils.WrapError(err, "failed to update last active")
	}
	return nil
}

// DeleteUser removes a user. Submitted feedback survives deletion because the
// submitter identity is denormalized onto the feedback header.
func (s *UserService) DeleteUser(ctx context.Context, userID int) (err error) {
	ctx, span := observability.TraceUserFunction(ctx, "delete_user",
		observability.AttributeUserID(userID),
	)
	defer observability.FinishSpan(span, &err)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return contextutils.WrapError(err, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && rbErr != sql.ErrTxDone {
				s.logger.Error(ctx, "Failed to rollback transaction", rbErr, map[string]interface{}{"user_id": userID})
			}
		}
	}()

	// Notification dedup rows reference the user and must go first
	if _, err = tx.ExecContext(ctx, `DELETE FROM sent_notifications WHERE user_id = $1`, userID); err != nil {
		return contextutils.WrapError(err, "failed to delete user notifications")
	}

	result, err := tx.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, userID)
	if err != nil {
		return contextutils.WrapError(err, "failed to delete user")
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return contextutils.WrapError(err, "failed to get rows affected")
	}
	if rowsAffected == 0 {
		err = contextutils.WrapErrorf(contextutils.ErrRecordNotFound, "user %d not found", userID)
		return err
	}

	if err = tx.Commit(); err != nil {
		return contextutils.WrapError(err, "failed to commit transaction")
	}

	s.logger.Info(ctx, "User deleted", map[string]interface{}{"user_id": userID})
	return nil
}

// DeleteAllUsers removes all users from the database
func (s *UserService) DeleteAllUsers(ctx context.Context) (err error) {
	ctx, span := observability.TraceUserFunction(ctx, "delete_all_users")
	defer observability.FinishSpan(span, &err)

	if _, err = s.db.ExecContext(ctx, `DELETE FROM sent_notifications`); err != nil {
		return contextutils.WrapError(err, "failed to delete notifications")
	}
	if _, err = s.db.ExecContext(ctx, `DELETE FROM users`); err != nil {
		return contextutils.WrapError(err, "failed to delete users")
	}

	s.logger.Warn(ctx, "All users deleted", map[string]interface{}{})
	return nil
}

// EnsureAdminUserExists creates the admin user if it doesn't exist. The admin
// account belongs to the configured admin department, defaulting to the first
// entry of the department list.
func (s *UserService) EnsureAdminUserExists(ctx context.Context, adminUsername, adminPassword string) (err error) {
	ctx, span := observability.TraceUserFunction(ctx, "ensure_admin_user_exists",
		observability.AttributeUsername(adminUsername),
	)
	defer observability.FinishSpan(span, &err)

	if adminUsername == "" || adminPassword == "" {
		return contextutils.WrapErrorf(contextutils.ErrMissingRequired, "admin username and password must be configured")
	}

	existing, err := s.GetUserByUsername(ctx, adminUsername)
	if err != nil {
		return contextutils.WrapError(err, "failed to check for admin user")
	}

	if existing != nil {
		// Re-promote if the account lost its admin flag
		if !existing.IsAdmin {
			if _, err = s.db.ExecContext(ctx, `UPDATE users SET is_admin = true, updated_at = NOW() WHERE id = $1`, existing.ID); err != nil {
				return contextutils.WrapError(err, "failed to promote admin user")
			}
			s.logger.Info(ctx, "Promoted existing user to admin", map[string]interface{}{
				"user_id":  existing.ID,
				"username": adminUsername,
			})
		}
		return nil
	}

	department := s.cfg.Server.AdminDepartment
	if department == "" && len(s.cfg.Departments) > 0 {
		department = s.cfg.Departments[0].Name
	}

	email := adminUsername + "@localhost"
	user, err := s.CreateUser(ctx, adminUsername, email, adminPassword, department, true)
	if err != nil {
		return contextutils.WrapError(err, "failed to create admin user")
	}

	s.logger.Info(ctx, "Admin user created", map[string]interface{}{
		"user_id":    user.ID,
		"username":   adminUsername,
		"department": user.Department,
	})
	return nil
}

// IsAdmin checks whether the given user has the admin flag set
func (s *UserService) IsAdmin(ctx context.Context, userID int) (result0 bool, err error) {
	ctx, span := observability.TraceUserFunction(ctx, "is_admin",
		observability.AttributeUserID(userID),
	)
	defer observability.FinishSpan(span, &err)

	var isAdmin bool
	err = s.db.QueryRowContext(ctx, `SELECT is_admin FROM users WHERE id = $1`, userID).Scan(&isAdmin)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, contextutils.WrapError(err, "failed to check admin flag")
	}
	return isAdmin, nil
}

// ResetDatabase completely resets the database to an empty state
func (s *UserService) ResetDatabase(ctx context.Context) (err error) {
	ctx, span := observability.TraceUserFunction(ctx, "reset_database")
	defer observability.FinishSpan(span, &err)

	s.logger.Warn(ctx, "Resetting database to empty state", map[string]interface{}{})

	tables := []string{
		"feedback_answers",
		"feedback",
		"sent_notifications",
		"feedback_periods",
		"question_templates",
		"worker_status",
		"worker_settings",
		"users",
	}

	for _, table := range tables {
		if _, err = s.db.ExecContext(ctx, fmt.Sprintf("TRUNCATE TABLE %s RESTART IDENTITY CASCADE", table)); err != nil {
			s.logger.Error(ctx, "Failed to truncate table", err, map[string]interface{}{"table": table})
			return contextutils.WrapErrorf(err, "failed to truncate table %s", table)
		}
	}

	s.logger.Warn(ctx, "Database reset completed", map[string]interface{}{})
	return nil
}

// ClearUserData removes submitted feedback and notification history but keeps
// user accounts, templates and periods
func (s *UserService) ClearUserData(ctx context.Context) (err error) {
	ctx, span := observability.TraceUserFunction(ctx, "clear_user_data")
	defer observability.FinishSpan(span, &err)

	tables := []string{
		"feedback_answers",
		"feedback",
		"sent_notifications",
	}

	for _, table := range tables {
		if _, err = s.db.ExecContext(ctx, fmt.Sprintf("TRUNCATE TABLE %s RESTART IDENTITY CASCADE", table)); err != nil {
			s.logger.Error(ctx, "Failed to clear table", err, map[string]interface{}{"table": table})
			return contextutils.WrapErrorf(err, "failed to clear table %s", table)
		}
	}

	s.logger.Warn(ctx, "User activity data cleared", map[string]interface{}{})
	return nil
}

// GetDB returns the database connection
func (s *UserService) GetDB() *sql.DB {
	return s.db
}

// isDuplicateKeyError checks if the error is a duplicate key constraint violation
func isDuplicateKeyError(err error) bool {
	if err == nil {
		return false
	}

	// PostgreSQL error code 23505 is for unique constraint violations
	if pqErr, ok := err.(*pq.Error); ok {
		if pqErr.Code == "23505" {
			return true
		}
	}

	return false
}
