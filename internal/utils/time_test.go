package contextutils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWindowContains(t *testing.T) {
	start := time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2025, 8, 15, 0, 0, 0, 0, time.UTC)

	require.True(t, WindowContains(start, start, end), "window includes its start instant")
	require.True(t, WindowContains(start.Add(7*24*time.Hour), start, end))
	require.False(t, WindowContains(end, start, end), "window excludes its end instant")
	require.False(t, WindowContains(start.Add(-time.Second), start, end))
	require.False(t, WindowContains(end.Add(time.Hour), start, end))
}

func TestFormatApproxDuration(t *testing.T) {
	tests := []struct {
		d        time.Duration
		expected string
	}{
		{30 * time.Second, "less than a minute"},
		{-time.Hour, "less than a minute"},
		{time.Minute, "1 minute"},
		{45 * time.Minute, "45 minutes"},
		{time.Hour, "1 hour"},
		{5 * time.Hour, "5 hours"},
		{24 * time.Hour, "1 day"},
		{72 * time.Hour, "3 days"},
		{26 * time.Hour, "1 day"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			require.Equal(t, tt.expected, FormatApproxDuration(tt.d))
		})
	}
}
