// Package api defines the request and response types of the HTTP API.
// Optional response fields are pointers so that absent and null are
// distinguishable on the wire; email fields use the oapi-codegen runtime
// type, which validates format during binding.
package api

import (
	"time"

	openapi_types "github.com/oapi-codegen/runtime/types"
)

// ErrorResponse is the uniform error body produced by the handlers
type ErrorResponse struct {
	Error   string  `json:"error"`
	Code    *string `json:"code,omitempty"`
	Details *string `json:"details,omitempty"`
}

// SuccessResponse is the uniform acknowledgement body for writes that
// return no entity
type SuccessResponse struct {
	Success *bool   `json:"success,omitempty"`
	Message *string `json:"message,omitempty"`
}

// User is the wire representation of a user account
type User struct {
	ID         int                  `json:"id"`
	Username   string               `json:"username"`
	Email      *openapi_types.Email `json:"email"`
	Department string               `json:"department"`
	IsAdmin    bool                 `json:"is_admin"`
	LastActive *time.Time           `json:"last_active,omitempty"`
	CreatedAt  *time.Time           `json:"created_at,omitempty"`
	UpdatedAt  *time.Time           `json:"updated_at,omitempty"`
}

// LoginRequest is the body of POST /v1/auth/login
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// LoginResponse is returned on successful login
type LoginResponse struct {
	Success *bool   `json:"success,omitempty"`
	Message *string `json:"message,omitempty"`
	User    *User   `json:"user,omitempty"`
}

// SignupRequest is the body of POST /v1/auth/signup
type SignupRequest struct {
	Username   string               `json:"username" binding:"required"`
	Email      *openapi_types.Email `json:"email" binding:"required"`
	Password   string               `json:"password" binding:"required"`
	Department string               `json:"department" binding:"required"`
}

// AuthStatusResponse is the body of GET /v1/auth/status
type AuthStatusResponse struct {
	Authenticated bool  `json:"authenticated"`
	User          *User `json:"user,omitempty"`
}

// UserCreateRequest is the admin body for creating a user
type UserCreateRequest struct {
	Username   string               `json:"username" binding:"required"`
	Email      *openapi_types.Email `json:"email" binding:"required"`
	Password   string               `json:"password" binding:"required"`
	Department string               `json:"department" binding:"required"`
	IsAdmin    *bool                `json:"is_admin,omitempty"`
}

// UserUpdateRequest is the admin body for updating a user; nil fields are
// left unchanged
type UserUpdateRequest struct {
	Username   *string              `json:"username,omitempty"`
	Email      *openapi_types.Email `json:"email,omitempty"`
	Department *string              `json:"department,omitempty"`
	IsAdmin    *bool                `json:"is_admin,omitempty"`
}

// ProfileUpdateRequest is the self-service body of PUT /v1/users/me
type ProfileUpdateRequest struct {
	Email *openapi_types.Email `json:"email,omitempty"`
}

// PasswordResetRequest carries the replacement password
type PasswordResetRequest struct {
	Password string `json:"password" binding:"required"`
}

// Department is one entry of the configured department list
type Department struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Question is one question definition inside a template or period
type Question struct {
	ID   string `json:"id" binding:"required"`
	Text string `json:"text" binding:"required"`
	Type string `json:"type" binding:"required"`
}

// TemplateRequest is the body for creating or fully replacing a question
// template
type TemplateRequest struct {
	Department string     `json:"department" binding:"required"`
	Name       string     `json:"name" binding:"required"`
	Questions  []Question `json:"questions" binding:"required,dive"`
}

// PeriodRequest is the body for creating or fully replacing a feedback
// period. Questions may be given inline or copied from a template via
// TemplateID; inline questions win when both are present.
type PeriodRequest struct {
	Department string     `json:"department" binding:"required"`
	StartDate  time.Time  `json:"start_date" binding:"required"`
	EndDate    time.Time  `json:"end_date" binding:"required"`
	Questions  []Question `json:"questions,omitempty" binding:"omitempty,dive"`
	TemplateID *int       `json:"template_id,omitempty"`
	Active     *bool      `json:"active,omitempty"`
}

// PeriodActiveRequest toggles a period's active flag
type PeriodActiveRequest struct {
	Active bool `json:"active"`
}

// AnswerSubmission is one rated question inside a feedback submission
type AnswerSubmission struct {
	QuestionID string  `json:"question_id" binding:"required"`
	Rating     int     `json:"rating" binding:"required,min=1,max=5"`
	Comment    *string `json:"comment,omitempty"`
}

// FeedbackSubmission is the body of POST /v1/feedback
type FeedbackSubmission struct {
	PeriodID          int                `json:"period_id" binding:"required"`
	Answers           []AnswerSubmission `json:"answers" binding:"required,min=1,dive"`
	AdditionalComment *string            `json:"additional_comment,omitempty"`
}

// QuestionTemplate is the wire representation of a question template
type QuestionTemplate struct {
	ID         int        `json:"id"`
	Department string     `json:"department"`
	Name       string     `json:"name"`
	Questions  []Question `json:"questions"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// FeedbackPeriod is the wire representation of a feedback period
type FeedbackPeriod struct {
	ID         int        `json:"id"`
	Department string     `json:"department"`
	StartDate  time.Time  `json:"start_date"`
	EndDate    time.Time  `json:"end_date"`
	Questions  []Question `json:"questions"`
	Active     bool       `json:"active"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// FeedbackAnswer is one answered question inside a returned submission
type FeedbackAnswer struct {
	QuestionID   string  `json:"question_id"`
	QuestionText string  `json:"question_text"`
	Rating       int     `json:"rating"`
	Comment      *string `json:"comment"`
	Position     int     `json:"position"`
}

// Feedback is the wire representation of a stored submission
type Feedback struct {
	ID                int                  `json:"id"`
	UserID            int                  `json:"user_id"`
	UserName          string               `json:"user_name"`
	UserEmail         *openapi_types.Email `json:"user_email"`
	UserDepartment    string               `json:"user_department"`
	TargetDepartment  string               `json:"target_department"`
	PeriodID          int                  `json:"period_id"`
	AdditionalComment *string              `json:"additional_comment"`
	CreatedAt         time.Time            `json:"created_at"`
	Answers           []FeedbackAnswer     `json:"answers"`
}

// QuestionStat is the per-question slice of a department's statistics
type QuestionStat struct {
	QuestionID    string  `json:"question_id"`
	QuestionText  string  `json:"question_text"`
	AverageRating float64 `json:"average_rating"`
}

// DepartmentStats is one department's aggregated statistics entry
type DepartmentStats struct {
	Department     string         `json:"department"`
	AverageRating  float64        `json:"average_rating"`
	TotalFeedbacks int            `json:"total_feedbacks"`
	QuestionStats  []QuestionStat `json:"question_stats"`
}

// StatsSummary is the dashboard header block of GET /v1/admin/stats/summary
type StatsSummary struct {
	TotalUsers     int     `json:"total_users"`
	TotalPeriods   int     `json:"total_periods"`
	ActivePeriods  int     `json:"active_periods"`
	TotalFeedbacks int     `json:"total_feedbacks"`
	OverallAverage float64 `json:"overall_average"`
}

// Pagination is the envelope block accompanying paginated lists
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

// DepartmentsResponse is the body of GET /v1/departments
type DepartmentsResponse struct {
	Departments []Department `json:"departments"`
}

// UsersListResponse is the paginated body of GET /v1/admin/users
type UsersListResponse struct {
	Users      []User     `json:"users"`
	Pagination Pagination `json:"pagination"`
}

// TemplatesResponse is the body of GET /v1/admin/templates
type TemplatesResponse struct {
	Templates  []QuestionTemplate `json:"templates"`
	Pagination Pagination         `json:"pagination"`
}

// PeriodsResponse is the paginated body of GET /v1/admin/periods
type PeriodsResponse struct {
	Periods    []FeedbackPeriod `json:"periods"`
	Pagination Pagination       `json:"pagination"`
}

// AvailablePeriodsResponse is the body of GET /v1/periods/available
type AvailablePeriodsResponse struct {
	Periods []FeedbackPeriod `json:"periods"`
}

// MyFeedbackResponse is the body of GET /v1/feedback/mine
type MyFeedbackResponse struct {
	Feedback []Feedback `json:"feedback"`
}

// FeedbackListResponse is the paginated body of GET /v1/admin/feedback
type FeedbackListResponse struct {
	Feedback   []Feedback `json:"feedback"`
	Pagination Pagination `json:"pagination"`
}

// DepartmentStatsResponse is the body of GET /v1/admin/stats/departments
type DepartmentStatsResponse struct {
	Departments []DepartmentStats `json:"departments"`
}

// DepartmentStatsDetail is the body of GET /v1/admin/stats/departments/{name}
type DepartmentStatsDetail struct {
	Stats          DepartmentStats `json:"stats"`
	RecentFeedback []Feedback      `json:"recent_feedback"`
}
