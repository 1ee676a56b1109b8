package services

import (
	"context"
	"database/sql"

	"feedbackapp/internal/config"
	"feedbackapp/internal/models"
	"feedbackapp/internal/observability"
	contextutils "feedbackapp/internal/utils"
)

// StatsServiceInterface defines the interface for statistics reads
type StatsServiceInterface interface {
	GetDepartmentStats(ctx context.Context) ([]models.DepartmentStats, error)
	GetDepartmentDetail(ctx context.Context, department string) (*models.DepartmentStats, []models.Feedback, error)
	GetSummary(ctx context.Context) (*models.SummaryStats, error)
}

// StatsService aggregates submitted feedback for the admin dashboard. All
// aggregation runs in memory over a full snapshot; the configured department
// list fixes the output order.
type StatsService struct {
	db       *sql.DB
	cfg      *config.Config
	logger   *observability.Logger
	feedback FeedbackServiceInterface
}

// NewStatsServiceWithLogger creates a new StatsService instance
func NewStatsServiceWithLogger(db *sql.DB, cfg *config.Config, feedbackService FeedbackServiceInterface, logger *observability.Logger) *StatsService {
	if db == nil {
		panic("StatsService requires a non-nil database connection")
	}
	if cfg == nil {
		panic("StatsService requires a non-nil config")
	}
	if feedbackService == nil {
		panic("StatsService requires a non-nil feedback service")
	}
	return &StatsService{
		db:       db,
		cfg:      cfg,
		logger:   logger,
		feedback: feedbackService,
	}
}

// GetDepartmentStats aggregates all submitted feedback into one entry per
// configured department, in configured order
func (s *StatsService) GetDepartmentStats(ctx context.Context) (result0 []models.DepartmentStats, err error) {
	ctx, span := observability.TraceStatsFunction(ctx, "get_department_stats")
	defer observability.FinishSpan(span, &err)

	feedbacks, err := s.feedback.GetAllFeedbackWithAnswers(ctx)
	if err != nil {
		return nil, err
	}

	return AggregateDepartmentStats(feedbacks, s.cfg.DepartmentNames()), nil
}

// GetDepartmentDetail returns one department's aggregated entry plus its most
// recent submissions
func (s *StatsService) GetDepartmentDetail(ctx context.Context, department string) (result0 *models.DepartmentStats, result1 []models.Feedback, err error) {
	ctx, span := observability.TraceStatsFunction(ctx, "get_department_detail",
		observability.AttributeDepartment(department),
	)
	defer observability.FinishSpan(span, &err)

	canonical, ok := s.cfg.NormalizeDepartment(department)
	if !ok {
		return nil, nil, contextutils.WrapErrorf(contextutils.ErrUnknownDepartment, "department %q is not configured", department)
	}

	stats, err := s.GetDepartmentStats(ctx)
	if err != nil {
		return nil, nil, err
	}

	var entry *models.DepartmentStats
	for i := range stats {
		if stats[i].Department == canonical {
			entry = &stats[i]
			break
		}
	}
	if entry == nil {
		// The aggregator emits every configured department, so this only
		// happens if the config changed between the two calls
		return nil, nil, contextutils.WrapErrorf(contextutils.ErrUnknownDepartment, "department %q is not configured", department)
	}

	recent, _, err := s.feedback.GetFeedbackPaginated(ctx, 1, config.RecentFeedbackLimit, canonical, 0)
	if err != nil {
		return nil, nil, err
	}

	return entry, recent, nil
}

// GetSummary returns whole-system totals for the dashboard header
func (s *StatsService) GetSummary(ctx context.Context) (result0 *models.SummaryStats, err error) {
	ctx, span := observability.TraceStatsFunction(ctx, "get_summary")
	defer observability.FinishSpan(span, &err)

	var summary models.SummaryStats

	err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&summary.TotalUsers)
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to count users")
	}

	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COUNT(*) FILTER (WHERE active = true AND end_date > NOW())
		FROM feedback_periods
	`).Scan(&summary.TotalPeriods, &summary.ActivePeriods)
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to count periods")
	}

	var avg sql.NullFloat64
	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(DISTINCT f.id), AVG(a.rating)
		FROM feedback f
		LEFT JOIN feedback_answers a ON a.feedback_id = f.id
	`).Scan(&summary.TotalFeedbacks, &avg)
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to aggregate feedback totals")
	}
	if avg.Valid {
		summary.OverallAverageRating = avg.Float64
	}

	return &summary, nil
}
