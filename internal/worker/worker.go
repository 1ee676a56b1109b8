// Package worker contains the background worker responsible for sending
// feedback period notification emails and reporting worker health. The worker
// runs independently of HTTP request handling: it watches the shared database
// for open feedback periods, invites eligible users when a period opens, and
// reminds users who have not submitted shortly before a period closes.
package worker

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"feedbackapp/internal/config"
	"feedbackapp/internal/models"
	"feedbackapp/internal/observability"
	"feedbackapp/internal/services"
	"feedbackapp/internal/services/mailer"
	contextutils "feedbackapp/internal/utils"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	triggerThrottleWindow = config.WorkerTriggerThrottle // Prevent duplicate manual runs within this window

	// manualTriggerSettingKey is the worker_settings key the backend writes
	// and the worker polls to start an out-of-schedule run
	manualTriggerSettingKey = config.WorkerManualTriggerKey
)

// Status represents the current state of the worker
type Status struct {
	IsRunning       bool      `json:"is_running"`
	IsPaused        bool      `json:"is_paused"`
	CurrentActivity string    `json:"current_activity,omitempty"`
	LastRunStart    time.Time `json:"last_run_start"`
	LastRunFinish   time.Time `json:"last_run_finish"`
	LastRunError    string    `json:"last_run_error,omitempty"`
	NextRun         time.Time `json:"next_run"`
}

// RunRecord tracks individual worker runs
type RunRecord struct {
	StartTime time.Time     `json:"start_time"`
	EndTime   time.Time     `json:"end_time"`
	Duration  time.Duration `json:"duration"`
	Status    string        `json:"status"` // Success, Failure
	Details   string        `json:"details"`
	Sent      int           `json:"sent"`
}

// ActivityLog represents a single activity log entry
type ActivityLog struct {
	Timestamp time.Time `json:"timestamp"`
	Level     string    `json:"level"` // INFO, WARN, ERROR
	Message   string    `json:"message"`
	UserID    *int      `json:"user_id,omitempty"`
	Username  *string   `json:"username,omitempty"`
}

// Config holds worker-specific configuration
type Config struct {
	StartWorkerPaused bool
	ReminderHours     int
}

// Worker sends period notification emails in the background
type Worker struct {
	userService     services.UserServiceInterface
	periodService   services.PeriodServiceInterface
	feedbackService services.FeedbackServiceInterface
	workerService   services.WorkerServiceInterface
	emailService    mailer.Mailer
	instance        string
	status          Status
	history         []RunRecord
	activityLogs    []ActivityLog // Circular buffer for recent activity logs
	totalSent       int
	mu              sync.RWMutex
	manualTrigger   chan bool
	cfg             *config.Config
	workerCfg       Config
	logger          *observability.Logger

	// Last manual-trigger setting value acted on, so one admin request
	// produces one run even though the setting is polled repeatedly
	lastTriggerValue string
	lastTriggerRun   time.Time

	// Time function for testing - defaults to time.Now
	timeNow func() time.Time
	cancel  context.CancelFunc
}

// NewWorker creates a notification worker bound to the given services
func NewWorker(userService services.UserServiceInterface, periodService services.PeriodServiceInterface, feedbackService services.FeedbackServiceInterface, workerService services.WorkerServiceInterface, emailService mailer.Mailer, instance string, cfg *config.Config, logger *observability.Logger) *Worker {
	if instance == "" {
		instance = "default"
	}

	ctx, cancel := context.WithCancel(context.Background())

	// Prefer value from config file when set (>0)
	reminderHours := cfg.Email.Reminder.HoursBefore
	if reminderHours <= 0 {
		reminderHours = config.DefaultReminderHoursBefore
	}

	w := &Worker{
		userService:     userService,
		periodService:   periodService,
		feedbackService: feedbackService,
		workerService:   workerService,
		emailService:    emailService,
		instance:        instance,
		status:          Status{IsRunning: false, CurrentActivity: "Initialized"},
		history:         make([]RunRecord, 0, cfg.Server.MaxHistory),
		activityLogs:    make([]ActivityLog, 0, cfg.Server.MaxActivityLogs),
		manualTrigger:   make(chan bool, 1),
		cfg:             cfg,
		workerCfg:       Config{StartWorkerPaused: getEnvBool("WORKER_START_PAUSED", false), ReminderHours: reminderHours},
		logger:          logger,
		timeNow:         time.Now, // Default to real time
	}

	// Handle startup pause if configured
	if w.workerCfg.StartWorkerPaused {
		w.handleStartupPause(ctx)
	}

	// Store cancel function for cleanup
	w.cancel = cancel

	return w
}

// getEnvBool is a helper function to get boolean environment variables
func getEnvBool(key string, defaultValue bool) bool {
	valStr := os.Getenv(key)
	if valStr == "" {
		return defaultValue
	}
	val, err := strconv.ParseBool(valStr)
	if err != nil {
		return defaultValue
	}
	return val
}

// Start begins the worker's background processing loop
func (w *Worker) Start(ctx context.Context) {
	w.status.IsRunning = true
	w.updateDatabaseStatus(ctx)

	w.handleStartupPause(ctx)

	// Start heartbeat goroutine
	go w.heartbeatLoop(ctx)

	// Main worker loop
	ticker := time.NewTicker(config.WorkerCheckInterval)
	defer ticker.Stop()

	initialStatus := w.getInitialWorkerStatus(ctx)

	w.logger.Info(ctx, "Worker started", map[string]interface{}{
		"instance": w.instance,
		"status":   initialStatus,
	})
	w.logActivity(ctx, "INFO", fmt.Sprintf("Worker %s started (%s)", w.instance, initialStatus), nil, nil)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info(ctx, "Worker shutting down", map[string]interface{}{
				"instance": w.instance,
			})
			w.logActivity(ctx, "INFO", fmt.Sprintf("Worker %s shutting down", w.instance), nil, nil)
			w.status.IsRunning = false
			w.updateDatabaseStatus(ctx)
			return

		case <-ticker.C:
			if w.checkManualTriggerSetting(ctx) {
				w.logger.Info(ctx, "Worker run requested via settings", map[string]interface{}{
					"instance": w.instance,
				})
				w.logActivity(ctx, "INFO", fmt.Sprintf("Worker %s triggered via admin request", w.instance), nil, nil)
			}
			w.run()

		case <-w.manualTrigger:
			w.logger.Info(ctx, "Worker triggered manually", map[string]interface{}{
				"instance": w.instance,
			})
			w.logActivity(ctx, "INFO", fmt.Sprintf("Worker %s triggered manually", w.instance), nil, nil)
			w.run()
		}
	}
}

// checkManualTriggerSetting reads the manual trigger key the backend writes.
// Returns true when a new trigger request was observed; the run itself is
// throttled so repeated admin clicks within the window collapse into one run.
func (w *Worker) checkManualTriggerSetting(ctx context.Context) bool {
	value, err := w.workerService.GetSetting(ctx, manualTriggerSettingKey)
	if err != nil {
		if err != services.ErrSettingNotFound {
			w.logger.Warn(ctx, "Failed to read manual trigger setting", map[string]interface{}{
				"instance": w.instance,
				"error":    err.Error(),
			})
		}
		return false
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if value == "" || value == w.lastTriggerValue {
		return false
	}
	now := w.timeNow()
	if now.Sub(w.lastTriggerRun) < triggerThrottleWindow {
		return false
	}
	w.lastTriggerValue = value
	w.lastTriggerRun = now
	return true
}

// handleStartupPause sets global pause if configured
func (w *Worker) handleStartupPause(ctx context.Context) {
	if w.workerCfg.StartWorkerPaused {
		w.logger.Info(ctx, "Worker configured to start paused - setting global pause", map[string]interface{}{
			"instance": w.instance,
		})
		if err := w.workerService.SetGlobalPause(ctx, true); err != nil {
			w.logger.Error(ctx, "Failed to set global pause on startup", err, map[string]interface{}{
				"instance": w.instance,
			})
		} else {
			w.logger.Info(ctx, "Global pause set on startup as configured", map[string]interface{}{
				"instance": w.instance,
			})
		}
	}
}

// getInitialWorkerStatus determines the initial status string
func (w *Worker) getInitialWorkerStatus(ctx context.Context) string {
	initialStatus := "running"
	globalPaused, err := w.workerService.IsGlobalPaused(ctx)
	if err != nil {
		w.logger.Error(ctx, "Failed to check global pause status on startup", err, map[string]interface{}{
			"instance": w.instance,
		})
	} else if globalPaused {
		initialStatus = "paused (globally)"
	} else {
		status, err := w.workerService.GetWorkerStatus(ctx, w.instance)
		if err != nil {
			// Worker status not found is expected on first startup - this is normal
			w.logger.Debug(ctx, "Worker status not found on startup (expected for new worker)", map[string]interface{}{
				"instance": w.instance,
			})
		} else if status != nil && status.IsPaused {
			initialStatus = "paused (instance)"
		}
	}
	return initialStatus
}

func (w *Worker) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(config.WorkerHeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.updateHeartbeat(ctx)
		}
	}
}

// updateHeartbeat updates the heartbeat in the database
func (w *Worker) updateHeartbeat(ctx context.Context) {
	if err := w.workerService.UpdateHeartbeat(ctx, w.instance); err != nil {
		w.logger.Error(ctx, "Failed to update heartbeat for worker", err, map[string]interface{}{
			"instance": w.instance,
		})
	}
}

// run executes a single worker cycle
func (w *Worker) run() {
	ctx, span := observability.TraceWorkerFunction(context.Background(), "run",
		attribute.String("worker.instance", w.instance),
	)
	defer observability.FinishSpan(span, nil)

	// Ensure worker status is up to date before checking pause status
	w.updateDatabaseStatus(ctx)

	paused, reason := w.checkPauseStatus(ctx)
	if paused {
		span.SetAttributes(attribute.String("pause_reason", reason))
		w.updateActivity(reason)
		return
	}

	w.status.LastRunStart = w.timeNow()
	w.updateDatabaseStatus(ctx)

	details, sent, err := w.processNotifications(ctx)

	w.status.LastRunFinish = w.timeNow()
	if err != nil {
		w.status.LastRunError = err.Error()
		w.logger.Error(ctx, "Worker run failed", err, map[string]interface{}{
			"instance": w.instance,
		})
	} else {
		w.status.LastRunError = ""
	}

	w.recordRunHistory(details, sent, err)
	w.updateDatabaseStatus(ctx)
}

// processNotifications performs one notification pass: invitations for every
// open period, then closing reminders for periods inside the reminder window.
// Both passes are deduplicated through the sent_notifications ledger, so a
// run is safe to repeat at any time.
func (w *Worker) processNotifications(ctx context.Context) (details string, sent int, err error) {
	ctx, span := otel.Tracer("worker").Start(ctx, "processNotifications",
		trace.WithAttributes(
			attribute.String("worker.instance", w.instance),
			attribute.Bool("email.enabled", w.emailService.IsEnabled()),
		),
	)
	defer span.End()

	if !w.emailService.IsEnabled() {
		w.updateActivity("Email disabled, nothing to send")
		return "Email disabled, skipped notification pass", 0, nil
	}

	now := w.timeNow().UTC()

	w.updateActivity("Loading open periods")
	periods, err := w.periodService.GetActivePeriods(ctx)
	if err != nil {
		span.RecordError(err)
		return "", 0, contextutils.WrapError(err, "failed to load active periods")
	}

	open := make([]models.FeedbackPeriod, 0, len(periods))
	for i := range periods {
		if periods[i].IsOpenAt(now) {
			open = append(open, periods[i])
		}
	}
	span.SetAttributes(attribute.Int("periods.open", len(open)))
	if len(open) == 0 {
		w.updateActivity("No open periods")
		return "No open periods", 0, nil
	}

	users, err := w.userService.GetAllUsers(ctx)
	if err != nil {
		span.RecordError(err)
		return "", 0, contextutils.WrapError(err, "failed to load users")
	}

	invitations := 0
	reminders := 0
	failures := 0

	for i := range open {
		period := open[i]

		n, f := w.sendInvitations(ctx, &period, users)
		invitations += n
		failures += f

		if w.cfg.Email.Reminder.Enabled && w.inReminderWindow(&period, now) {
			n, f := w.sendReminders(ctx, &period, users)
			reminders += n
			failures += f
		}
	}

	sent = invitations + reminders
	w.mu.Lock()
	w.totalSent += sent
	w.mu.Unlock()

	span.SetAttributes(
		attribute.Int("notifications.invitations", invitations),
		attribute.Int("notifications.reminders", reminders),
		attribute.Int("notifications.failures", failures),
	)

	details = fmt.Sprintf("%d open periods, %d invitations, %d reminders, %d failures", len(open), invitations, reminders, failures)
	w.updateActivity("Idle")

	if failures > 0 {
		return details, sent, contextutils.ErrorWithContextf("%d notification sends failed", failures)
	}
	return details, sent, nil
}

// inReminderWindow reports whether the period closes within the configured
// reminder horizon
func (w *Worker) inReminderWindow(period *models.FeedbackPeriod, now time.Time) bool {
	remaining := period.EndDate.Sub(now)
	return remaining > 0 && remaining <= time.Duration(w.workerCfg.ReminderHours)*time.Hour
}

// sendInvitations emails every user outside the period's target department
// who has an email address and has not been invited yet
func (w *Worker) sendInvitations(ctx context.Context, period *models.FeedbackPeriod, users []models.User) (sent, failed int) {
	notified, err := w.emailService.GetNotifiedUserIDs(ctx, period.ID, models.NotificationKindInvitation)
	if err != nil {
		w.logger.Error(ctx, "Failed to load invitation ledger", err, map[string]interface{}{
			"instance":  w.instance,
			"period_id": period.ID,
		})
		return 0, 0
	}

	w.updateActivity(fmt.Sprintf("Sending invitations for %s", period.Department))

	for i := range users {
		user := users[i]
		if !w.eligibleForPeriod(&user, period) || notified[user.ID] {
			continue
		}

		if err := w.emailService.SendPeriodInvitation(ctx, &user, period); err != nil {
			failed++
			w.logger.Error(ctx, "Failed to send period invitation", err, map[string]interface{}{
				"user_id":   user.ID,
				"period_id": period.ID,
			})
			w.logActivity(ctx, "ERROR", fmt.Sprintf("Invitation to %s for %s failed: %v", user.Username, period.Department, err), &user.ID, &user.Username)
			continue
		}

		sent++
		w.logActivity(ctx, "INFO", fmt.Sprintf("Invited %s to rate %s", user.Username, period.Department), &user.ID, &user.Username)

		if err := w.emailService.RecordSentNotification(ctx, user.ID, period.ID, models.NotificationKindInvitation); err != nil {
			w.logger.Error(ctx, "Failed to record sent invitation", err, map[string]interface{}{
				"user_id":   user.ID,
				"period_id": period.ID,
			})
		}
	}
	return sent, failed
}

// sendReminders emails every eligible user who has not submitted feedback for
// the period yet and has not already received a reminder
func (w *Worker) sendReminders(ctx context.Context, period *models.FeedbackPeriod, users []models.User) (sent, failed int) {
	notified, err := w.emailService.GetNotifiedUserIDs(ctx, period.ID, models.NotificationKindReminder)
	if err != nil {
		w.logger.Error(ctx, "Failed to load reminder ledger", err, map[string]interface{}{
			"instance":  w.instance,
			"period_id": period.ID,
		})
		return 0, 0
	}

	w.updateActivity(fmt.Sprintf("Sending closing reminders for %s", period.Department))

	for i := range users {
		user := users[i]
		if !w.eligibleForPeriod(&user, period) || notified[user.ID] {
			continue
		}

		submitted, err := w.feedbackService.HasUserSubmitted(ctx, user.ID, period.ID)
		if err != nil {
			w.logger.Error(ctx, "Failed to check submission state", err, map[string]interface{}{
				"user_id":   user.ID,
				"period_id": period.ID,
			})
			continue
		}
		if submitted {
			continue
		}

		if err := w.emailService.SendPeriodReminder(ctx, &user, period); err != nil {
			failed++
			w.logger.Error(ctx, "Failed to send period reminder", err, map[string]interface{}{
				"user_id":   user.ID,
				"period_id": period.ID,
			})
			w.logActivity(ctx, "ERROR", fmt.Sprintf("Reminder to %s for %s failed: %v", user.Username, period.Department, err), &user.ID, &user.Username)
			continue
		}

		sent++
		w.logActivity(ctx, "INFO", fmt.Sprintf("Reminded %s about %s closing soon", user.Username, period.Department), &user.ID, &user.Username)

		if err := w.emailService.RecordSentNotification(ctx, user.ID, period.ID, models.NotificationKindReminder); err != nil {
			w.logger.Error(ctx, "Failed to record sent reminder", err, map[string]interface{}{
				"user_id":   user.ID,
				"period_id": period.ID,
			})
		}
	}
	return sent, failed
}

// eligibleForPeriod reports whether a user should get notifications for the
// period: outside the rated department, with a usable email address
func (w *Worker) eligibleForPeriod(user *models.User, period *models.FeedbackPeriod) bool {
	if !user.Email.Valid || user.Email.String == "" {
		return false
	}
	return user.Department != period.Department
}

// checkPauseStatus checks global and instance pause
func (w *Worker) checkPauseStatus(ctx context.Context) (bool, string) {
	globalPaused, err := w.workerService.IsGlobalPaused(ctx)
	if err != nil {
		w.logger.Error(ctx, "Failed to check global pause status", err, map[string]interface{}{
			"instance": w.instance,
		})
		return true, "Error checking global pause status"
	}
	if globalPaused {
		return true, "Globally paused"
	}
	status, err := w.workerService.GetWorkerStatus(ctx, w.instance)
	if err != nil {
		// Worker status not found might happen during startup - assume not paused
		w.logger.Debug(ctx, "Worker status not found during pause check (assuming not paused)", map[string]interface{}{
			"instance": w.instance,
		})
		return false, ""
	} else if status != nil && status.IsPaused {
		return true, "Worker instance paused"
	}
	return false, ""
}

// recordRunHistory records the run in history and trims the slice
func (w *Worker) recordRunHistory(details string, sent int, err error) {
	record := RunRecord{
		StartTime: w.status.LastRunStart,
		EndTime:   w.status.LastRunFinish,
		Duration:  w.status.LastRunFinish.Sub(w.status.LastRunStart),
		Details:   details,
		Sent:      sent,
	}
	if err != nil {
		record.Status = "Failure"
	} else {
		record.Status = "Success"
	}
	w.mu.Lock()
	w.history = append(w.history, record)
	if len(w.history) > w.cfg.Server.MaxHistory {
		w.history = w.history[len(w.history)-w.cfg.Server.MaxHistory:]
	}
	w.mu.Unlock()
}

// GetStatus returns the current worker status
func (w *Worker) GetStatus() Status {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.status
}

// GetHistory returns the worker's run history
func (w *Worker) GetHistory() []RunRecord {
	w.mu.RLock()
	defer w.mu.RUnlock()
	// Return a copy to avoid race conditions
	history := make([]RunRecord, len(w.history))
	copy(history, w.history)
	return history
}

// GetActivityLogs returns recent activity logs
func (w *Worker) GetActivityLogs() []ActivityLog {
	w.mu.RLock()
	defer w.mu.RUnlock()

	// Return a copy to avoid concurrent access issues
	logs := make([]ActivityLog, len(w.activityLogs))
	copy(logs, w.activityLogs)
	return logs
}

// GetInstance returns the worker instance name
func (w *Worker) GetInstance() string {
	return w.instance
}

// GetEmailService returns the email service
func (w *Worker) GetEmailService() mailer.Mailer {
	return w.emailService
}

// TriggerManualRun triggers a manual worker run
func (w *Worker) TriggerManualRun() {
	ctx := context.Background()
	select {
	case w.manualTrigger <- true:
		w.logger.Info(ctx, "Manual trigger sent to worker", map[string]interface{}{
			"instance": w.instance,
		})
	default:
		w.logger.Info(ctx, "Manual trigger already pending for worker", map[string]interface{}{
			"instance": w.instance,
		})
	}
}

// Pause pauses this worker instance
func (w *Worker) Pause(ctx context.Context) {
	w.logger.Info(ctx, "Worker paused", map[string]interface{}{
		"instance": w.instance,
	})
	w.logActivity(ctx, "INFO", fmt.Sprintf("Worker %s paused", w.instance), nil, nil)
	w.status.IsPaused = true
	w.updateDatabaseStatus(ctx)
}

// Resume resumes this worker instance
func (w *Worker) Resume(ctx context.Context) {
	w.logger.Info(ctx, "Worker resumed", map[string]interface{}{
		"instance": w.instance,
	})
	w.logActivity(ctx, "INFO", fmt.Sprintf("Worker %s resumed", w.instance), nil, nil)
	w.status.IsPaused = false
	w.updateDatabaseStatus(ctx)
}

// Shutdown gracefully shuts down the worker and cleans up resources
func (w *Worker) Shutdown(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.logger.Info(ctx, "Worker starting shutdown", map[string]interface{}{
		"instance": w.instance,
	})

	// Cancel the shutdown context to signal shutdown
	if w.cancel != nil {
		w.cancel()
	}

	// Clear activity logs
	w.activityLogs = make([]ActivityLog, 0)

	w.logger.Info(ctx, "Worker shutdown completed", map[string]interface{}{
		"instance": w.instance,
	})
	return nil
}

// updateDatabaseStatus updates the worker status in the database
func (w *Worker) updateDatabaseStatus(ctx context.Context) {
	w.mu.RLock()
	dbStatus := &models.WorkerStatus{
		WorkerInstance:         w.instance,
		IsRunning:              w.status.IsRunning,
		IsPaused:               w.status.IsPaused,
		CurrentActivity:        sql.NullString{String: w.status.CurrentActivity, Valid: w.status.CurrentActivity != ""},
		LastHeartbeat:          sql.NullTime{Time: w.timeNow(), Valid: true},
		LastRunStart:           sql.NullTime{Time: w.status.LastRunStart, Valid: !w.status.LastRunStart.IsZero()},
		LastRunFinish:          sql.NullTime{Time: w.status.LastRunFinish, Valid: !w.status.LastRunFinish.IsZero()},
		LastRunError:           sql.NullString{String: w.status.LastRunError, Valid: w.status.LastRunError != ""},
		TotalNotificationsSent: w.totalSent,
		TotalRuns:              len(w.history),
	}
	w.mu.RUnlock()

	if err := w.workerService.UpdateWorkerStatus(ctx, w.instance, dbStatus); err != nil {
		w.logger.Error(ctx, "Failed to update worker status in database", err, map[string]interface{}{
			"instance": w.instance,
		})
	}
}

// updateActivity updates the current activity string
func (w *Worker) updateActivity(activity string) {
	w.mu.Lock()
	w.status.CurrentActivity = activity
	w.mu.Unlock()
}

// logActivity appends to the bounded in-memory activity log
func (w *Worker) logActivity(_ context.Context, level, message string, userID *int, username *string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.activityLogs = append(w.activityLogs, ActivityLog{
		Timestamp: w.timeNow(),
		Level:     level,
		Message:   message,
		UserID:    userID,
		Username:  username,
	})
	if len(w.activityLogs) > w.cfg.Server.MaxActivityLogs {
		w.activityLogs = w.activityLogs[len(w.activityLogs)-w.cfg.Server.MaxActivityLogs:]
	}
}
