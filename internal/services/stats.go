package services

import (
	"feedbackapp/internal/models"
)

// AggregateDepartmentStats computes per-department statistics over a full
// snapshot of feedback records. The output has exactly one entry per name in
// departments, in that order, regardless of input; departments nobody rated
// get a zero entry. The department average weights every rating equally, so
// a submission answering more questions contributes more to it.
func AggregateDepartmentStats(feedbacks []models.Feedback, departments []string) []models.DepartmentStats {
	byDepartment := make(map[string][]models.Feedback, len(departments))
	for i := range feedbacks {
		fb := feedbacks[i]
		byDepartment[fb.TargetDepartment] = append(byDepartment[fb.TargetDepartment], fb)
	}

	out := make([]models.DepartmentStats, 0, len(departments))
	for _, department := range departments {
		out = append(out, aggregateDepartment(department, byDepartment[department]))
	}
	return out
}

// questionAccumulator collects one question's running sum across a partition
type questionAccumulator struct {
	text  string
	sum   int
	count int
}

func aggregateDepartment(department string, feedbacks []models.Feedback) models.DepartmentStats {
	// Question order follows first encounter across the partition
	var order []string
	accumulators := make(map[string]*questionAccumulator)
	totalSum := 0
	totalCount := 0

	for i := range feedbacks {
		for _, answer := range feedbacks[i].Answers {
			acc, ok := accumulators[answer.QuestionID]
			if !ok {
				acc = &questionAccumulator{text: answer.QuestionText}
				accumulators[answer.QuestionID] = acc
				order = append(order, answer.QuestionID)
			}
			acc.sum += answer.Rating
			acc.count++
			totalSum += answer.Rating
			totalCount++
		}
	}

	stats := models.DepartmentStats{
		Department:     department,
		TotalFeedbacks: len(feedbacks),
		QuestionStats:  make([]models.QuestionStat, 0, len(order)),
	}
	for _, questionID := range order {
		acc := accumulators[questionID]
		average := 0.0
		if acc.count > 0 {
			average = float64(acc.sum) / float64(acc.count)
		}
		stats.QuestionStats = append(stats.QuestionStats, models.QuestionStat{
			QuestionID:    questionID,
			QuestionText:  acc.text,
			AverageRating: average,
		})
	}
	if totalCount > 0 {
		stats.AverageRating = float64(totalSum) / float64(totalCount)
	}
	return stats
}
