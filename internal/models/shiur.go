package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// TimestampTopic marks where a topic starts inside the audio.
type TimestampTopic struct {
	Topic string `json:"topic"`
	Time  string `json:"time"` // HH:MM:SS or MM:SS
}

// Seconds converts Time to an offset in seconds.
func (t TimestampTopic) Seconds() (int, error) {
	parts := strings.Split(strings.TrimSpace(t.Time), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("invalid timestamp %q: want HH:MM:SS or MM:SS", t.Time)
	}

	total := 0
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("invalid timestamp %q", t.Time)
		}
		// minutes and seconds are bounded, the leading field is not
		if i > 0 && n > 59 {
			return 0, fmt.Errorf("invalid timestamp %q: field out of range", t.Time)
		}
		total = total*60 + n
	}
	return total, nil
}

// Shiur is one audio discourse.
type Shiur struct {
	ID            string           `json:"id" db:"id"`
	Slug          string           `json:"slug" db:"slug"`
	Title         string           `json:"title" db:"title"`
	Description   string           `json:"description" db:"description"`
	Tags          []string         `json:"tags" db:"tags"`
	ImageURL      *string          `json:"image_url" db:"image_url"`
	AudioURL      string           `json:"audio_url" db:"audio_url"`
	Timestamps    []TimestampTopic `json:"timestamps" db:"timestamps"`
	AllowDownload bool             `json:"allow_download" db:"allow_download"`
	Transcript    *string          `json:"transcript,omitempty" db:"transcript"`
	CreatedAt     time.Time        `json:"created_at" db:"created_at"`
}

// Columns returns the insertable columns of the record. ID and CreatedAt are
// left to the store when empty.
func (s *Shiur) Columns() map[string]any {
	cols := map[string]any{
		"slug":           s.Slug,
		"title":          s.Title,
		"description":    s.Description,
		"tags":           nonNilStrings(s.Tags),
		"image_url":      s.ImageURL,
		"audio_url":      s.AudioURL,
		"timestamps":     nonNilTimestamps(s.Timestamps),
		"allow_download": s.AllowDownload,
		"transcript":     s.Transcript,
	}
	if s.ID != "" {
		cols["id"] = s.ID
	}
	if !s.CreatedAt.IsZero() {
		cols["created_at"] = s.CreatedAt
	}
	return cols
}

// ShiurPatch is a partial update. Nil fields are left untouched.
type ShiurPatch struct {
	Slug          *string           `json:"slug,omitempty"`
	Title         *string           `json:"title,omitempty"`
	Description   *string           `json:"description,omitempty"`
	Tags          *[]string         `json:"tags,omitempty"`
	ImageURL      *string           `json:"image_url,omitempty"`
	AudioURL      *string           `json:"audio_url,omitempty"`
	Timestamps    *[]TimestampTopic `json:"timestamps,omitempty"`
	AllowDownload *bool             `json:"allow_download,omitempty"`
	Transcript    *string           `json:"transcript,omitempty"`
}

// Columns returns only the fields that are set.
func (p ShiurPatch) Columns() map[string]any {
	cols := map[string]any{}
	if p.Slug != nil {
		cols["slug"] = *p.Slug
	}
	if p.Title != nil {
		cols["title"] = *p.Title
	}
	if p.Description != nil {
		cols["description"] = *p.Description
	}
	if p.Tags != nil {
		cols["tags"] = nonNilStrings(*p.Tags)
	}
	if p.ImageURL != nil {
		cols["image_url"] = emptyToNil(*p.ImageURL)
	}
	if p.AudioURL != nil {
		cols["audio_url"] = *p.AudioURL
	}
	if p.Timestamps != nil {
		cols["timestamps"] = nonNilTimestamps(*p.Timestamps)
	}
	if p.AllowDownload != nil {
		cols["allow_download"] = *p.AllowDownload
	}
	if p.Transcript != nil {
		cols["transcript"] = emptyToNil(*p.Transcript)
	}
	return cols
}

// IsEmpty reports whether the patch changes nothing.
func (p ShiurPatch) IsEmpty() bool {
	return len(p.Columns()) == 0
}

// ParseTags splits comma-separated input into trimmed tags, keeping order
// and dropping empty entries.
func ParseTags(input string) []string {
	tags := []string{}
	for _, t := range strings.Split(input, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}

// ValidateTimestamps checks every marker has a topic and a parseable time.
func ValidateTimestamps(ts []TimestampTopic) error {
	for i, t := range ts {
		if strings.TrimSpace(t.Topic) == "" {
			return fmt.Errorf("timestamp %d: topic is required", i+1)
		}
		if _, err := t.Seconds(); err != nil {
			return fmt.Errorf("timestamp %d: %w", i+1, err)
		}
	}
	return nil
}

func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func nonNilTimestamps(ts []TimestampTopic) []TimestampTopic {
	if ts == nil {
		return []TimestampTopic{}
	}
	return ts
}
