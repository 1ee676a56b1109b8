// Package models defines data structures used throughout the feedback application.
package models

import (
	"database/sql"
	"encoding/json"
	"time"
)

// User represents a user in the system
type User struct {
	ID           int            `json:"id" yaml:"id"`
	Username     string         `json:"username" yaml:"username"`
	Email        sql.NullString `json:"email" yaml:"email"`
	PasswordHash sql.NullString `json:"-" yaml:"-"` // Omit from JSON responses
	Department   string         `json:"department" yaml:"department"`
	IsAdmin      bool           `json:"is_admin" yaml:"is_admin"`
	LastActive   sql.NullTime   `json:"last_active" yaml:"last_active"`
	CreatedAt    time.Time      `json:"created_at" yaml:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at" yaml:"updated_at"`
}

// MarshalJSON customizes JSON marshaling for User to handle sql.NullString and sql.NullTime properly
func (u User) MarshalJSON() (result0 []byte, err error) {
	return json.Marshal(&struct {
		ID         int        `json:"id"`
		Username   string     `json:"username"`
		Email      *string    `json:"email"`
		Department string     `json:"department"`
		IsAdmin    bool       `json:"is_admin"`
		LastActive *time.Time `json:"last_active"`
		CreatedAt  time.Time  `json:"created_at"`
		UpdatedAt  time.Time  `json:"updated_at"`
	}{
		ID:         u.ID,
		Username:   u.Username,
		Email:      nullStringToPointer(u.Email),
		Department: u.Department,
		IsAdmin:    u.IsAdmin,
		LastActive: nullTimeToPointer(u.LastActive),
		CreatedAt:  u.CreatedAt,
		UpdatedAt:  u.UpdatedAt,
	})
}

// Helper functions for converting sql.Null types to pointers
func nullStringToPointer(ns sql.NullString) *string {
	if ns.Valid {
		return &ns.String
	}
	return nil
}

func nullTimeToPointer(nt sql.NullTime) *time.Time {
	if nt.Valid {
		return &nt.Time
	}
	return nil
}

// QuestionType represents the kind of answer a question collects
type QuestionType string

const (
	// QuestionTypeRating is a 1-5 rating question, optionally with a free-text comment
	QuestionTypeRating QuestionType = "rating"
)

// Question is a single question definition carried on templates and periods.
// Stored as an ordered JSONB list; the question id is stable within one
// template or period and referenced by submitted answers.
type Question struct {
	ID   string       `json:"id" yaml:"id"`
	Text string       `json:"text" yaml:"text"`
	Type QuestionType `json:"type" yaml:"type"`
}

// QuestionList is the JSONB payload of a template or period
type QuestionList []Question

// MarshalToJSON serializes the question list for storage
func (ql QuestionList) MarshalToJSON() (result0 string, err error) {
	data, err := json.Marshal(ql)
	return string(data), err
}

// UnmarshalQuestionsFromJSON deserializes a stored JSONB question list.
// Unparseable data yields an empty list and the error; callers on read paths
// log and continue rather than failing the whole operation.
func UnmarshalQuestionsFromJSON(data string) (result0 QuestionList, err error) {
	if data == "" {
		return QuestionList{}, nil
	}
	var ql QuestionList
	if err := json.Unmarshal([]byte(data), &ql); err != nil {
		return QuestionList{}, err
	}
	return ql, nil
}

// QuestionTemplate is a reusable, per-department question set that periods
// are created from
type QuestionTemplate struct {
	ID         int          `json:"id" yaml:"id"`
	Department string       `json:"department" yaml:"department"`
	Name       string       `json:"name" yaml:"name"`
	Questions  QuestionList `json:"questions" yaml:"questions"`
	CreatedAt  time.Time    `json:"created_at" yaml:"created_at"`
	UpdatedAt  time.Time    `json:"updated_at" yaml:"updated_at"`
}

// FeedbackPeriod is a collection window during which one department receives
// feedback. The question list is copied from a template at creation time so
// later template edits never change an open period.
type FeedbackPeriod struct {
	ID         int          `json:"id" yaml:"id"`
	Department string       `json:"department" yaml:"department"`
	StartDate  time.Time    `json:"start_date" yaml:"start_date"`
	EndDate    time.Time    `json:"end_date" yaml:"end_date"`
	Questions  QuestionList `json:"questions" yaml:"questions"`
	Active     bool         `json:"active" yaml:"active"`
	CreatedAt  time.Time    `json:"created_at" yaml:"created_at"`
	UpdatedAt  time.Time    `json:"updated_at" yaml:"updated_at"`
}

// IsOpenAt reports whether the period accepts submissions at the given time
func (p *FeedbackPeriod) IsOpenAt(now time.Time) bool {
	return p.Active && !now.Before(p.StartDate) && now.Before(p.EndDate)
}

// Feedback is one user's submission about one target department in one
// period. Submitter identity is denormalized onto the header so statistics
// survive user deletion. Append-only.
type Feedback struct {
	ID                int              `json:"id" yaml:"id"`
	UserID            int              `json:"user_id" yaml:"user_id"`
	UserName          string           `json:"user_name" yaml:"user_name"`
	UserEmail         sql.NullString   `json:"user_email" yaml:"user_email"`
	UserDepartment    string           `json:"user_department" yaml:"user_department"`
	TargetDepartment  string           `json:"target_department" yaml:"target_department"`
	PeriodID          int              `json:"period_id" yaml:"period_id"`
	AdditionalComment sql.NullString   `json:"additional_comment" yaml:"additional_comment"`
	CreatedAt         time.Time        `json:"created_at" yaml:"created_at"`
	Answers           []FeedbackAnswer `json:"answers" yaml:"answers"`
}

// MarshalJSON customizes JSON marshaling for Feedback to handle sql.NullString properly
func (f Feedback) MarshalJSON() (result0 []byte, err error) {
	answers := f.Answers
	if answers == nil {
		answers = []FeedbackAnswer{}
	}
	return json.Marshal(&struct {
		ID                int              `json:"id"`
		UserID            int              `json:"user_id"`
		UserName          string           `json:"user_name"`
		UserEmail         *string          `json:"user_email"`
		UserDepartment    string           `json:"user_department"`
		TargetDepartment  string           `json:"target_department"`
		PeriodID          int              `json:"period_id"`
		AdditionalComment *string          `json:"additional_comment"`
		CreatedAt         time.Time        `json:"created_at"`
		Answers           []FeedbackAnswer `json:"answers"`
	}{
		ID:                f.ID,
		UserID:            f.UserID,
		UserName:          f.UserName,
		UserEmail:         nullStringToPointer(f.UserEmail),
		UserDepartment:    f.UserDepartment,
		TargetDepartment:  f.TargetDepartment,
		PeriodID:          f.PeriodID,
		AdditionalComment: nullStringToPointer(f.AdditionalComment),
		CreatedAt:         f.CreatedAt,
		Answers:           answers,
	})
}

// FeedbackAnswer is one rated question inside a submission. The question text
// is denormalized so stored answers stay readable after period edits.
type FeedbackAnswer struct {
	ID           int            `json:"id" yaml:"id"`
	FeedbackID   int            `json:"feedback_id" yaml:"feedback_id"`
	QuestionID   string         `json:"question_id" yaml:"question_id"`
	QuestionText string         `json:"question_text" yaml:"question_text"`
	Rating       int            `json:"rating" yaml:"rating"`
	Comment      sql.NullString `json:"comment" yaml:"comment"`
	Position     int            `json:"position" yaml:"position"`
}

// MarshalJSON customizes JSON marshaling for FeedbackAnswer to handle sql.NullString properly
func (a FeedbackAnswer) MarshalJSON() (result0 []byte, err error) {
	return json.Marshal(&struct {
		ID           int     `json:"id"`
		FeedbackID   int     `json:"feedback_id"`
		QuestionID   string  `json:"question_id"`
		QuestionText string  `json:"question_text"`
		Rating       int     `json:"rating"`
		Comment      *string `json:"comment"`
		Position     int     `json:"position"`
	}{
		ID:           a.ID,
		FeedbackID:   a.FeedbackID,
		QuestionID:   a.QuestionID,
		QuestionText: a.QuestionText,
		Rating:       a.Rating,
		Comment:      nullStringToPointer(a.Comment),
		Position:     a.Position,
	})
}

// QuestionStat is the per-question slice of a department's aggregated statistics
type QuestionStat struct {
	QuestionID    string  `json:"question_id"`
	QuestionText  string  `json:"question_text"`
	AverageRating float64 `json:"average_rating"`
}

// DepartmentStats is one department's entry in the aggregated statistics
// output, in the configured department order
type DepartmentStats struct {
	Department     string         `json:"department"`
	AverageRating  float64        `json:"average_rating"`
	TotalFeedbacks int            `json:"total_feedbacks"`
	QuestionStats  []QuestionStat `json:"question_stats"`
}

// SummaryStats is the dashboard header line: whole-system totals
type SummaryStats struct {
	TotalUsers           int     `json:"total_users"`
	TotalPeriods         int     `json:"total_periods"`
	ActivePeriods        int     `json:"active_periods"`
	TotalFeedbacks       int     `json:"total_feedbacks"`
	OverallAverageRating float64 `json:"overall_average_rating"`
}

// NotificationKind labels worker emails in the sent_notifications dedup ledger
type NotificationKind string

const (
	// NotificationKindInvitation is sent when a period opens
	NotificationKindInvitation NotificationKind = "invitation"
	// NotificationKindReminder is sent shortly before a period closes
	NotificationKindReminder NotificationKind = "reminder"
)

// SentNotification records one delivered worker email for deduplication
type SentNotification struct {
	ID       int              `json:"id" db:"id"`
	UserID   int              `json:"user_id" db:"user_id"`
	PeriodID int              `json:"period_id" db:"period_id"`
	Kind     NotificationKind `json:"kind" db:"kind"`
	SentAt   time.Time        `json:"sent_at" db:"sent_at"`
}

// WorkerSettings represents worker configuration settings stored in database
type WorkerSettings struct {
	ID           int       `json:"id" db:"id"`
	SettingKey   string    `json:"setting_key" db:"setting_key"`
	SettingValue string    `json:"setting_value" db:"setting_value"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

// WorkerStatus represents worker health and activity status
type WorkerStatus struct {
	ID                     int            `json:"id" db:"id"`
	WorkerInstance         string         `json:"worker_instance" db:"worker_instance"`
	IsRunning              bool           `json:"is_running" db:"is_running"`
	IsPaused               bool           `json:"is_paused" db:"is_paused"`
	CurrentActivity        sql.NullString `json:"current_activity" db:"current_activity"`
	LastHeartbeat          sql.NullTime   `json:"last_heartbeat" db:"last_heartbeat"`
	LastRunStart           sql.NullTime   `json:"last_run_start" db:"last_run_start"`
	LastRunFinish          sql.NullTime   `json:"last_run_finish" db:"last_run_finish"`
	LastRunError           sql.NullString `json:"last_run_error" db:"last_run_error"`
	TotalNotificationsSent int            `json:"total_notifications_sent" db:"total_notifications_sent"`
	TotalRuns              int            `json:"total_runs" db:"total_runs"`
	CreatedAt              time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt              time.Time      `json:"updated_at" db:"updated_at"`
}

// MarshalJSON customizes JSON marshaling for WorkerStatus to handle sql.NullString and sql.NullTime properly
func (ws WorkerStatus) MarshalJSON() (result0 []byte, err error) {
	return json.Marshal(&struct {
		ID                     int        `json:"id"`
		WorkerInstance         string     `json:"worker_instance"`
		IsRunning              bool       `json:"is_running"`
		IsPaused               bool       `json:"is_paused"`
		CurrentActivity        *string    `json:"current_activity"`
		LastHeartbeat          *time.Time `json:"last_heartbeat"`
		LastRunStart           *time.Time `json:"last_run_start"`
		LastRunFinish          *time.Time `json:"last_run_finish"`
		LastRunError           *string    `json:"last_run_error"`
		TotalNotificationsSent int        `json:"total_notifications_sent"`
		TotalRuns              int        `json:"total_runs"`
		CreatedAt              time.Time  `json:"created_at"`
		UpdatedAt              time.Time  `json:"updated_at"`
	}{
		ID:                     ws.ID,
		WorkerInstance:         ws.WorkerInstance,
		IsRunning:              ws.IsRunning,
		IsPaused:               ws.IsPaused,
		CurrentActivity:        nullStringToPointer(ws.CurrentActivity),
		LastHeartbeat:          nullTimeToPointer(ws.LastHeartbeat),
		LastRunStart:           nullTimeToPointer(ws.LastRunStart),
		LastRunFinish:          nullTimeToPointer(ws.LastRunFinish),
		LastRunError:           nullStringToPointer(ws.LastRunError),
		TotalNotificationsSent: ws.TotalNotificationsSent,
		TotalRuns:              ws.TotalRuns,
		CreatedAt:              ws.CreatedAt,
		UpdatedAt:              ws.UpdatedAt,
	})
}
