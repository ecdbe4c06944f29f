package utils

import (
	"testing"
	"time"
)

func TestSlugify(t *testing.T) {
	tests := map[string]string{
		"Parshas Noach: The Flood":    "parshas-noach-the-flood",
		"  Hello   World  ":           "hello-world",
		"Shiur #12 — Tefillah (Pt 2)": "shiur-12-tefillah-pt-2",
		"!!!":                         "",
		"שיעור בהלכות שבת":            "שיעור-בהלכות-שבת",
		"Daf 12b: עירובין":            "daf-12b-עירובין",
	}
	for in, want := range tests {
		if got := Slugify(in); got != want {
			t.Errorf("Slugify(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := map[string]string{
		"lecture 1.mp3":         "lecture-1.mp3",
		"../../etc/passwd":      "passwd",
		`C:\Users\me\shiur.m4a`: "shiur.m4a",
		"שיעור.mp3":             "mp3",
		"":                      "file",
	}
	for in, want := range tests {
		if got := SanitizeFilename(in); got != want {
			t.Errorf("SanitizeFilename(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestHashIsStable(t *testing.T) {
	if Hash("token") != Hash("token") {
		t.Fatal("hash must be deterministic")
	}
	if len(Hash("token")) != 64 {
		t.Errorf("expected 64 hex chars, got %d", len(Hash("token")))
	}
}

func TestSlugOr(t *testing.T) {
	now := time.UnixMilli(1700000000000)
	if got := SlugOr("Emunah", "shiur", now); got != "emunah" {
		t.Errorf("got %q", got)
	}
	if got := SlugOr("?!", "shiur", now); got != "shiur-1700000000000" {
		t.Errorf("fallback slug = %q", got)
	}
}
