// Package catalog answers the public listing: search, topic and date
// filters over the shiurim, newest first.
package catalog

import (
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/bilgisen/shiurim/internal/apperr"
	"github.com/bilgisen/shiurim/internal/models"
)

const dateLayout = "2006-01-02"

// Filter narrows a listing. Zero fields match everything.
type Filter struct {
	Query string
	Topic string
	From  time.Time // inclusive, start of day
	To    time.Time // inclusive, end of day
}

// ParseFilter reads the query string values. Dates are YYYY-MM-DD in loc.
func ParseFilter(query, topic, from, to string, loc *time.Location) (Filter, error) {
	f := Filter{
		Query: strings.TrimSpace(query),
		Topic: strings.TrimSpace(topic),
	}
	if loc == nil {
		loc = time.UTC
	}
	if from != "" {
		d, err := time.ParseInLocation(dateLayout, from, loc)
		if err != nil {
			return Filter{}, apperr.Validation("from must be YYYY-MM-DD")
		}
		f.From = d
	}
	if to != "" {
		d, err := time.ParseInLocation(dateLayout, to, loc)
		if err != nil {
			return Filter{}, apperr.Validation("to must be YYYY-MM-DD")
		}
		f.To = d.AddDate(0, 0, 1).Add(-time.Nanosecond)
	}
	return f, nil
}

// Match reports whether s passes every set criterion.
func (f Filter) Match(s *models.Shiur) bool {
	if f.Query != "" && !matchesQuery(s, strings.ToLower(f.Query)) {
		return false
	}
	if f.Topic != "" && !slices.ContainsFunc(s.Timestamps, func(ts models.TimestampTopic) bool {
		return ts.Topic == f.Topic
	}) {
		return false
	}
	if !f.From.IsZero() && s.CreatedAt.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && s.CreatedAt.After(f.To) {
		return false
	}
	return true
}

func matchesQuery(s *models.Shiur, q string) bool {
	if strings.Contains(strings.ToLower(s.Title), q) ||
		strings.Contains(strings.ToLower(s.Description), q) {
		return true
	}
	for _, tag := range s.Tags {
		if strings.Contains(strings.ToLower(tag), q) {
			return true
		}
	}
	for _, ts := range s.Timestamps {
		if strings.Contains(strings.ToLower(ts.Topic), q) {
			return true
		}
	}
	return false
}

// Apply returns the matching shiurim in their original order.
func (f Filter) Apply(shiurim []models.Shiur) []models.Shiur {
	out := make([]models.Shiur, 0, len(shiurim))
	for i := range shiurim {
		if f.Match(&shiurim[i]) {
			out = append(out, shiurim[i])
		}
	}
	return out
}

// Topics lists the distinct timestamp topics, sorted.
func Topics(shiurim []models.Shiur) []string {
	seen := map[string]struct{}{}
	for _, s := range shiurim {
		for _, ts := range s.Timestamps {
			if t := strings.TrimSpace(ts.Topic); t != "" {
				seen[t] = struct{}{}
			}
		}
	}
	topics := make([]string, 0, len(seen))
	for t := range seen {
		topics = append(topics, t)
	}
	sort.Strings(topics)
	return topics
}
