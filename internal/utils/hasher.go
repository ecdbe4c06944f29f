package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path"
	"regexp"
	"strings"
	"time"
	"unicode"
)

// Hash generates a SHA-256 hash of the input string. Used to key cached
// sessions without storing the raw token.
func Hash(input string) string {
	sum := sha256.Sum256([]byte(input))
	return hex.EncodeToString(sum[:])
}

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// Slugify lower-cases title and collapses every run of characters that are
// not letters or digits into a single dash. Non-Latin letters are kept.
func Slugify(title string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(title) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if dash && b.Len() > 0 {
				b.WriteByte('-')
			}
			dash = false
			b.WriteRune(r)
			continue
		}
		dash = true
	}
	return b.String()
}

// SlugOr returns Slugify(title), or "<prefix>-<unix millis>" when the title
// has no letters or digits.
func SlugOr(title, prefix string, now time.Time) string {
	if slug := Slugify(title); slug != "" {
		return slug
	}
	return fmt.Sprintf("%s-%d", prefix, now.UnixMilli())
}

// SanitizeFilename strips directories and replaces characters that would
// need escaping in an object key.
func SanitizeFilename(name string) string {
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	name = strings.Trim(unsafeName.ReplaceAllString(name, "-"), "-.")
	if name == "" {
		return "file"
	}
	return name
}
