package contextutils

import (
	"fmt"
	"time"
)

// WindowContains reports whether now falls inside the [start, end) window.
// Feedback periods open at their start timestamp and close at their end timestamp.
func WindowContains(now, start, end time.Time) bool {
	return !now.Before(start) && now.Before(end)
}

// FormatApproxDuration renders a duration as a rough human-readable string
// ("3 days", "5 hours", "20 minutes") for notification copy. Durations under
// a minute and negative durations render as "less than a minute".
func FormatApproxDuration(d time.Duration) string {
	if d < time.Minute {
		return "less than a minute"
	}

	if d >= 24*time.Hour {
		days := int(d.Hours()) / 24
		if days == 1 {
			return "1 day"
		}
		return fmt.Sprintf("%d days", days)
	}

	if d >= time.Hour {
		hours := int(d.Hours())
		if hours == 1 {
			return "1 hour"
		}
		return fmt.Sprintf("%d hours", hours)
	}

	minutes := int(d.Minutes())
	if minutes == 1 {
		return "1 minute"
	}
	return fmt.Sprintf("%d minutes", minutes)
}
