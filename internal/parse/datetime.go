package parse

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"training-booking-backend/internal/model"
)

// Zone-less layouts are read as UTC.
var localLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
}

// DateTime parses a requested booking instant. RFC 3339 input keeps its
// offset, so the calendar date the caller meant survives.
func DateTime(raw string) (time.Time, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, fmt.Errorf("date-time is empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unable to parse date-time: %q", raw)
}

// Date validates a YYYY-MM-DD calendar date and returns it canonicalised.
func Date(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	t, err := time.Parse(model.SessionDateLayout, s)
	if err != nil {
		return "", fmt.Errorf("unable to parse date: %q", raw)
	}
	return t.Format(model.SessionDateLayout), nil
}

// CalendarDate is the date portion of t in t's own location.
func CalendarDate(t time.Time) string {
	return t.Format(model.SessionDateLayout)
}

// ID parses a positive integer identifier.
func ID(raw string) (int64, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid id: %q", raw)
	}
	return n, nil
}
