package services

import (
	"feedbackapp/internal/models"
)

// FilterAvailablePeriods returns the periods a user may still submit feedback
// for: everything except the user's own department and departments already
// covered by one of their submissions. Input order is preserved; callers sort
// at the query level.
func FilterAvailablePeriods(periods []models.FeedbackPeriod, ownDepartment string, submittedDepartments map[string]bool) []models.FeedbackPeriod {
	available := make([]models.FeedbackPeriod, 0, len(periods))
	for i := range periods {
		period := periods[i]
		if period.Department == ownDepartment {
			continue
		}
		if submittedDepartments[period.Department] {
			continue
		}
		available = append(available, period)
	}
	return available
}
