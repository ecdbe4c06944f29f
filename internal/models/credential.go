package models

import "time"

// Upload categories. The category only namespaces the object key.
const (
	CategoryAudio = "audio"
	CategoryImage = "image"
)

// ValidCategory reports whether c is a known upload category.
func ValidCategory(c string) bool {
	return c == CategoryAudio || c == CategoryImage
}

// UploadCredential is a short-lived write authorization for one object key.
// It is never persisted.
type UploadCredential struct {
	Key          string    `json:"key"`
	PresignedURL string    `json:"presignedUrl"`
	UploadURL    string    `json:"uploadUrl"`
	PublicURL    string    `json:"publicUrl"`
	ContentType  string    `json:"contentType"`
	ExpiresAt    time.Time `json:"expiresAt"`
	// MaxSize is the largest object the server accepts, 0 when unknown.
	MaxSize int64 `json:"maxSize,omitempty"`
}

// URL returns the authorized PUT target.
func (c *UploadCredential) URL() string {
	if c.PresignedURL != "" {
		return c.PresignedURL
	}
	return c.UploadURL
}

// Usable reports whether the credential is still valid for at least margin.
func (c *UploadCredential) Usable(now time.Time, margin time.Duration) bool {
	if c == nil || c.URL() == "" {
		return false
	}
	if c.ExpiresAt.IsZero() {
		return true
	}
	return now.Add(margin).Before(c.ExpiresAt)
}
