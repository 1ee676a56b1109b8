package services

import (
	"testing"

	"feedbackapp/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func answer(questionID, text string, rating int) models.FeedbackAnswer {
	return models.FeedbackAnswer{QuestionID: questionID, QuestionText: text, Rating: rating}
}

func TestAggregateDepartmentStats_OneEntryPerDepartmentInOrder(t *testing.T) {
	departments := []string{"Engineering", "Sales", "Marketing"}

	tests := []struct {
		name      string
		feedbacks []models.Feedback
	}{
		{"no feedback at all", nil},
		{"feedback for one department", []models.Feedback{
			{TargetDepartment: "Sales", Answers: []models.FeedbackAnswer{answer("q1", "Responsiveness", 4)}},
		}},
		{"feedback for unknown department only", []models.Feedback{
			{TargetDepartment: "Legal", Answers: []models.FeedbackAnswer{answer("q1", "Responsiveness", 4)}},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stats := AggregateDepartmentStats(tt.feedbacks, departments)
			require.Len(t, stats, len(departments))
			for i, department := range departments {
				assert.Equal(t, department, stats[i].Department)
			}
		})
	}
}

func TestAggregateDepartmentStats_ZeroFeedbackDepartment(t *testing.T) {
	stats := AggregateDepartmentStats(nil, []string{"Engineering"})

	require.Len(t, stats, 1)
	assert.Equal(t, 0.0, stats[0].AverageRating)
	assert.Equal(t, 0, stats[0].TotalFeedbacks)
	assert.NotNil(t, stats[0].QuestionStats)
	assert.Empty(t, stats[0].QuestionStats)
}

func TestAggregateDepartmentStats_RatingsWeightedAverage(t *testing.T) {
	// F1 answers q1=5 and q2=3, F2 answers only q1=1. The overall average
	// divides by the number of ratings (3), not the number of feedbacks.
	feedbacks := []models.Feedback{
		{TargetDepartment: "Sales", Answers: []models.FeedbackAnswer{
			answer("q1", "Responsiveness", 5),
			answer("q2", "Collaboration", 3),
		}},
		{TargetDepartment: "Sales", Answers: []models.FeedbackAnswer{
			answer("q1", "Responsiveness", 1),
		}},
	}

	stats := AggregateDepartmentStats(feedbacks, []string{"Sales"})

	require.Len(t, stats, 1)
	sales := stats[0]
	assert.Equal(t, 2, sales.TotalFeedbacks)
	assert.InDelta(t, 3.0, sales.AverageRating, 1e-9)

	require.Len(t, sales.QuestionStats, 2)
	assert.Equal(t, "q1", sales.QuestionStats[0].QuestionID)
	assert.InDelta(t, 3.0, sales.QuestionStats[0].AverageRating, 1e-9)
	assert.Equal(t, "q2", sales.QuestionStats[1].QuestionID)
	assert.InDelta(t, 3.0, sales.QuestionStats[1].AverageRating, 1e-9)
}

func TestAggregateDepartmentStats_EmptyAnswerListContributesNothing(t *testing.T) {
	feedbacks := []models.Feedback{
		{TargetDepartment: "Sales", Answers: nil},
		{TargetDepartment: "Sales", Answers: []models.FeedbackAnswer{answer("q1", "Responsiveness", 4)}},
	}

	stats := AggregateDepartmentStats(feedbacks, []string{"Sales"})

	require.Len(t, stats, 1)
	// The empty submission still counts as a feedback but adds no ratings
	assert.Equal(t, 2, stats[0].TotalFeedbacks)
	assert.InDelta(t, 4.0, stats[0].AverageRating, 1e-9)
	require.Len(t, stats[0].QuestionStats, 1)
}

func TestAggregateDepartmentStats_QuestionOrderFollowsFirstEncounter(t *testing.T) {
	feedbacks := []models.Feedback{
		{TargetDepartment: "Sales", Answers: []models.FeedbackAnswer{
			answer("q2", "Collaboration", 2),
			answer("q1", "Responsiveness", 5),
		}},
		{TargetDepartment: "Sales", Answers: []models.FeedbackAnswer{
			answer("q3", "Delivery", 4),
			answer("q1", "Responsiveness", 3),
		}},
	}

	stats := AggregateDepartmentStats(feedbacks, []string{"Sales"})

	require.Len(t, stats[0].QuestionStats, 3)
	assert.Equal(t, "q2", stats[0].QuestionStats[0].QuestionID)
	assert.Equal(t, "q1", stats[0].QuestionStats[1].QuestionID)
	assert.Equal(t, "q3", stats[0].QuestionStats[2].QuestionID)
}

func TestAggregateDepartmentStats_Idempotent(t *testing.T) {
	departments := []string{"Engineering", "Sales"}
	feedbacks := []models.Feedback{
		{TargetDepartment: "Sales", Answers: []models.FeedbackAnswer{answer("q1", "Responsiveness", 5)}},
		{TargetDepartment: "Engineering", Answers: []models.FeedbackAnswer{answer("q1", "Responsiveness", 2)}},
	}

	first := AggregateDepartmentStats(feedbacks, departments)
	second := AggregateDepartmentStats(feedbacks, departments)
	assert.Equal(t, first, second)
}
