package config

import "time"

// Timeout constants
const (
	// HTTP timeouts
	DefaultHTTPTimeout    = 60 * time.Second
	ServerShutdownTimeout = 30 * time.Second
	WorkerShutdownTimeout = 30 * time.Second
	TestTimeout           = 100 * time.Millisecond

	// Database timeouts
	DatabaseConnMaxLifetime = 5 * time.Minute

	// Session timeouts
	SessionMaxAge = 7 * 24 * time.Hour // 7 days

	// Worker timeouts
	WorkerCheckInterval     = 1 * time.Minute
	WorkerHeartbeatInterval = 30 * time.Second
	WorkerTriggerThrottle   = 30 * time.Second
)

// Worker bookkeeping limits
const (
	DefaultMaxHistory      = 20
	DefaultMaxActivityLogs = 100
)

// Worker coordination keys in worker_settings. The backend writes them and the
// worker polls them, so both sides must agree on the spelling.
const (
	WorkerManualTriggerKey = "manual_trigger_requested_at"
)

// Notification constants
const (
	// Hours before a period closes at which the reminder email goes out
	DefaultReminderHoursBefore = 24
)

// Statistics constants
const (
	// Number of recent submissions shown on the department detail view
	RecentFeedbackLimit = 10
)

// Session configuration constants
const (
	// Session settings
	SessionPath     = "/"
	SessionHTTPOnly = true
	SessionSecure   = false // Set to true in production with HTTPS

	// Session name
	SessionName = "feedback-session"
)

// Security configuration constants
const (
	// Content Security Policy
	DefaultCSP = "default-src 'self'; style-src 'self' 'unsafe-inline'; script-src 'self' 'unsafe-inline'; img-src 'self' data:;"
)
