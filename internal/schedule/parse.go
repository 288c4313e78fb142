package schedule

import (
	"fmt"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

// clockLayouts are the clock forms operators actually type. Tried in
// order before falling back to the natural-language parser.
var clockLayouts = []string{
	"15:04:05",
	"15:04",
	"3:04:05 PM",
	"3:04 PM",
	"3:04PM",
	"3 PM",
	"3PM",
}

// SecondsFromMidnight parses a wall-clock time string and returns the
// offset from local midnight in seconds. Returns ErrUnparseableTime with
// a descriptive reason when the string is not a recognisable time.
func SecondsFromMidnight(s string, loc *time.Location) (float64, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return 0, fmt.Errorf("%w: empty time string", ErrUnparseableTime)
	}

	for _, layout := range clockLayouts {
		if t, err := time.Parse(layout, strings.ToUpper(trimmed)); err == nil {
			return clockSeconds(t), nil
		}
	}

	// Fall back to the permissive parser for full datetime phrasings
	// ("2026-09-01 17:30", "Sep 1 2026 5:30pm"); only the clock part is
	// kept.
	t, err := dateparse.ParseIn(trimmed, loc)
	if err != nil {
		return 0, fmt.Errorf("%w: %q: %v", ErrUnparseableTime, s, err)
	}
	return clockSeconds(t), nil
}

func clockSeconds(t time.Time) float64 {
	h, m, s := t.Clock()
	return float64(h*3600 + m*60 + s)
}

// weekdayFiles maps lowercase weekday names to their default-schedule
// file names.
var weekdayFiles = map[string]string{
	"monday":    "monday.json",
	"tuesday":   "tuesday.json",
	"wednesday": "wednesday.json",
	"thursday":  "thursday.json",
	"friday":    "friday.json",
	"saturday":  "saturday.json",
	"sunday":    "sunday.json",
}

// dateFileLayout names date-specific override files.
const dateFileLayout = "2006-01-02"

// dayFileName resolves a day key — a weekday name or a date — to the
// schedule file it lives in.
func dayFileName(key string, loc *time.Location) (string, error) {
	lower := strings.ToLower(strings.TrimSpace(key))
	if name, ok := weekdayFiles[lower]; ok {
		return name, nil
	}
	if t, err := time.ParseInLocation(dateFileLayout, lower, loc); err == nil {
		return t.Format(dateFileLayout) + ".json", nil
	}
	if t, err := dateparse.ParseIn(key, loc); err == nil {
		return t.Format(dateFileLayout) + ".json", nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidDay, key)
}
