package models

import (
	"strings"
	"time"
)

// Schedule is the recurring weekly discourse. The site shows the first row.
type Schedule struct {
	ID       string  `json:"id" db:"id"`
	Weekday  string  `json:"weekday" db:"weekday"`
	Time     string  `json:"time" db:"time"`
	Location *string `json:"location" db:"location"`
}

func (s *Schedule) Columns() map[string]any {
	cols := map[string]any{
		"weekday":  s.Weekday,
		"time":     s.Time,
		"location": s.Location,
	}
	if s.ID != "" {
		cols["id"] = s.ID
	}
	return cols
}

var timeLayouts = []string{"15:04", "3:04 PM", "3:04PM", "3 PM", "3PM"}

// NextOccurrence returns the next start at or after now in now's location.
// ok is false when Weekday or Time cannot be parsed.
func (s *Schedule) NextOccurrence(now time.Time) (next time.Time, ok bool) {
	day, ok := parseWeekday(s.Weekday)
	if !ok {
		return time.Time{}, false
	}

	var clock time.Time
	var err error
	for _, layout := range timeLayouts {
		if clock, err = time.Parse(layout, strings.ToUpper(strings.TrimSpace(s.Time))); err == nil {
			break
		}
	}
	if err != nil {
		return time.Time{}, false
	}

	next = time.Date(now.Year(), now.Month(), now.Day(), clock.Hour(), clock.Minute(), 0, 0, now.Location())
	offset := (int(day) - int(now.Weekday()) + 7) % 7
	next = next.AddDate(0, 0, offset)
	if next.Before(now) {
		next = next.AddDate(0, 0, 7)
	}
	return next, true
}

func parseWeekday(s string) (time.Weekday, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if len(s) < 3 {
		return 0, false
	}
	for d := time.Sunday; d <= time.Saturday; d++ {
		if strings.HasPrefix(strings.ToLower(d.String()), s) {
			return d, true
		}
	}
	return 0, false
}
