package services

import (
	"strings"
	"time"

	"github.com/jinzhu/now"
)

// appointmentTimeFormats are tried before jinzhu/now's own layouts.
var appointmentTimeFormats = []string{
	"Jan 2, 2006 at 3:04 PM",
	"January 2, 2006 at 3:04 PM",
	"Monday, January 2, 2006 at 3:04 PM",
	"Jan 2, 2006 3:04 PM",
	"January 2, 2006 3:04 PM",
	"2006-01-02 3:04 PM",
	"02/01/2006 15:04",
}

// ParseAppointmentTime reads a human-entered date/time. Input that cannot
// be parsed yields ref rather than an error.
func ParseAppointmentTime(text string, ref time.Time) time.Time {
	text = strings.TrimSpace(text)
	if text == "" {
		return ref
	}
	if t, err := time.Parse(time.RFC3339, text); err == nil {
		return t.UTC()
	}

	formats := make([]string, 0, len(appointmentTimeFormats)+len(now.TimeFormats))
	formats = append(formats, appointmentTimeFormats...)
	formats = append(formats, now.TimeFormats...)
	cfg := &now.Config{
		WeekStartDay: time.Monday,
		TimeLocation: time.UTC,
		TimeFormats:  formats,
	}

	t, err := cfg.With(ref.UTC()).Parse(text)
	if err != nil {
		return ref
	}
	return t.UTC()
}
