package handlers

import (
	"database/sql"
	"time"

	"feedbackapp/internal/api"
	"feedbackapp/internal/models"
	"feedbackapp/internal/services"

	openapi_types "github.com/oapi-codegen/runtime/types"
)

// Helper functions for pointer conversion
func stringPtr(s string) *string {
	return &s
}

func boolPtr(b bool) *bool {
	return &b
}

func timePtr(t time.Time) *time.Time {
	return &t
}

// emailPtr converts a nullable email column to the wire type.
// Empty strings are treated as null so the response stays schema-valid.
func emailPtr(ns sql.NullString) *openapi_types.Email {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	email := openapi_types.Email(ns.String)
	return &email
}

// nullableStringPtr converts a nullable text column to *string or nil
func nullableStringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

// Convert models.User to api.User
func convertUserToAPI(user *models.User) api.User {
	apiUser := api.User{
		ID:         user.ID,
		Username:   user.Username,
		Email:      emailPtr(user.Email),
		Department: user.Department,
		IsAdmin:    user.IsAdmin,
	}

	if user.LastActive.Valid {
		apiUser.LastActive = timePtr(user.LastActive.Time)
	}
	if !user.CreatedAt.IsZero() {
		apiUser.CreatedAt = timePtr(user.CreatedAt)
	}
	if !user.UpdatedAt.IsZero() {
		apiUser.UpdatedAt = timePtr(user.UpdatedAt)
	}

	return apiUser
}

// Convert slice of models.User to []api.User
func convertUsersToAPI(users []models.User) []api.User {
	out := make([]api.User, 0, len(users))
	for i := range users {
		out = append(out, convertUserToAPI(&users[i]))
	}
	return out
}

// Convert models.QuestionList to []api.Question
func convertQuestionsToAPI(questions models.QuestionList) []api.Question {
	out := make([]api.Question, 0, len(questions))
	for _, q := range questions {
		out = append(out, api.Question{
			ID:   q.ID,
			Text: q.Text,
			Type: string(q.Type),
		})
	}
	return out
}

// Convert []api.Question to models.QuestionList
func convertQuestionsToModel(questions []api.Question) models.QuestionList {
	out := make(models.QuestionList, 0, len(questions))
	for _, q := range questions {
		out = append(out, models.Question{
			ID:   q.ID,
			Text: q.Text,
			Type: models.QuestionType(q.Type),
		})
	}
	return out
}

// Convert models.QuestionTemplate to api.QuestionTemplate
func convertTemplateToAPI(template *models.QuestionTemplate) api.QuestionTemplate {
	return api.QuestionTemplate{
		ID:         template.ID,
		Department: template.Department,
		Name:       template.Name,
		Questions:  convertQuestionsToAPI(template.Questions),
		CreatedAt:  template.CreatedAt,
		UpdatedAt:  template.UpdatedAt,
	}
}

// Convert slice of models.QuestionTemplate to []api.QuestionTemplate
func convertTemplatesToAPI(templates []models.QuestionTemplate) []api.QuestionTemplate {
	out := make([]api.QuestionTemplate, 0, len(templates))
	for i := range templates {
		out = append(out, convertTemplateToAPI(&templates[i]))
	}
	return out
}

// Convert models.FeedbackPeriod to api.FeedbackPeriod
func convertPeriodToAPI(period *models.FeedbackPeriod) api.FeedbackPeriod {
	return api.FeedbackPeriod{
		ID:         period.ID,
		Department: period.Department,
		StartDate:  period.StartDate,
		EndDate:    period.EndDate,
		Questions:  convertQuestionsToAPI(period.Questions),
		Active:     period.Active,
		CreatedAt:  period.CreatedAt,
		UpdatedAt:  period.UpdatedAt,
	}
}

// Convert slice of models.FeedbackPeriod to []api.FeedbackPeriod
func convertPeriodsToAPI(periods []models.FeedbackPeriod) []api.FeedbackPeriod {
	out := make([]api.FeedbackPeriod, 0, len(periods))
	for i := range periods {
		out = append(out, convertPeriodToAPI(&periods[i]))
	}
	return out
}

// Convert models.FeedbackAnswer to api.FeedbackAnswer
func convertAnswerToAPI(answer *models.FeedbackAnswer) api.FeedbackAnswer {
	return api.FeedbackAnswer{
		QuestionID:   answer.QuestionID,
		QuestionText: answer.QuestionText,
		Rating:       answer.Rating,
		Comment:      nullableStringPtr(answer.Comment),
		Position:     answer.Position,
	}
}

// Convert models.Feedback to api.Feedback. Answers are never marshaled as
// null: a submission with no loaded answers serializes as an empty array.
func convertFeedbackToAPI(feedback *models.Feedback) api.Feedback {
	answers := make([]api.FeedbackAnswer, 0, len(feedback.Answers))
	for i := range feedback.Answers {
		answers = append(answers, convertAnswerToAPI(&feedback.Answers[i]))
	}

	return api.Feedback{
		ID:                feedback.ID,
		UserID:            feedback.UserID,
		UserName:          feedback.UserName,
		UserEmail:         emailPtr(feedback.UserEmail),
		UserDepartment:    feedback.UserDepartment,
		TargetDepartment:  feedback.TargetDepartment,
		PeriodID:          feedback.PeriodID,
		AdditionalComment: nullableStringPtr(feedback.AdditionalComment),
		CreatedAt:         feedback.CreatedAt,
		Answers:           answers,
	}
}

// Convert slice of models.Feedback to []api.Feedback
func convertFeedbackListToAPI(feedbacks []models.Feedback) []api.Feedback {
	out := make([]api.Feedback, 0, len(feedbacks))
	for i := range feedbacks {
		out = append(out, convertFeedbackToAPI(&feedbacks[i]))
	}
	return out
}

// Convert models.DepartmentStats to api.DepartmentStats
func convertDepartmentStatsToAPI(stats *models.DepartmentStats) api.DepartmentStats {
	questionStats := make([]api.QuestionStat, 0, len(stats.QuestionStats))
	for _, qs := range stats.QuestionStats {
		questionStats = append(questionStats, api.QuestionStat{
			QuestionID:    qs.QuestionID,
			QuestionText:  qs.QuestionText,
			AverageRating: qs.AverageRating,
		})
	}

	return api.DepartmentStats{
		Department:     stats.Department,
		AverageRating:  stats.AverageRating,
		TotalFeedbacks: stats.TotalFeedbacks,
		QuestionStats:  questionStats,
	}
}

// Convert slice of models.DepartmentStats to []api.DepartmentStats
func convertDepartmentStatsListToAPI(stats []models.DepartmentStats) []api.DepartmentStats {
	out := make([]api.DepartmentStats, 0, len(stats))
	for i := range stats {
		out = append(out, convertDepartmentStatsToAPI(&stats[i]))
	}
	return out
}

// Convert models.SummaryStats to api.StatsSummary
func convertSummaryToAPI(summary *models.SummaryStats) api.StatsSummary {
	return api.StatsSummary{
		TotalUsers:     summary.TotalUsers,
		TotalPeriods:   summary.TotalPeriods,
		ActivePeriods:  summary.ActivePeriods,
		TotalFeedbacks: summary.TotalFeedbacks,
		OverallAverage: summary.OverallAverageRating,
	}
}

// Convert []api.AnswerSubmission to the service-layer submission type
func convertAnswerSubmissions(answers []api.AnswerSubmission) []services.AnswerSubmission {
	out := make([]services.AnswerSubmission, 0, len(answers))
	for _, a := range answers {
		sub := services.AnswerSubmission{
			QuestionID: a.QuestionID,
			Rating:     a.Rating,
		}
		if a.Comment != nil {
			sub.Comment = *a.Comment
		}
		out = append(out, sub)
	}
	return out
}

// buildPagination assembles the standard pagination block for list responses
func buildPagination(page, pageSize, total int) api.Pagination {
	totalPages := 0
	if pageSize > 0 {
		totalPages = (total + pageSize - 1) / pageSize
	}
	return api.Pagination{
		Page:       page,
		PageSize:   pageSize,
		Total:      total,
		TotalPages: totalPages,
	}
}
