package jobstore

import (
	"strings"
	"time"
)

// nullableString stores empty strings as NULL.
func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

// Timestamps are written as RFC 3339 UTC text so they sort lexically.
func formatTime(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func parseTimeString(value string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, strings.TrimSpace(value))
}

// makePlaceholders returns "?, ?, ?" for an IN clause of count values.
func makePlaceholders(count int) string {
	marks := make([]string, max(count, 0))
	for i := range marks {
		marks[i] = "?"
	}
	return strings.Join(marks, ", ")
}
