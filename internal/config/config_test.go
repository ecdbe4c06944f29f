package config

import (
	"strings"
	"testing"
	"time"
)

func TestMissingStorage(t *testing.T) {
	cfg := &Config{}
	missing := cfg.MissingStorage()
	want := []string{
		"CLOUDFLARE_ACCESS_KEY_ID",
		"CLOUDFLARE_SECRET_ACCESS_KEY",
		"CLOUDFLARE_BUCKET_NAME",
		"CLOUDFLARE_ACCOUNT_ID",
		"CLOUDFLARE_R2_URL",
	}
	if strings.Join(missing, ",") != strings.Join(want, ",") {
		t.Fatalf("expected %v, got %v", want, missing)
	}

	cfg = &Config{
		R2AccessKey: "ak",
		R2SecretKey: "sk",
		R2Bucket:    "shiurim",
		R2Endpoint:  "http://localhost:9000",
		R2PublicURL: "https://cdn.example.com",
	}
	if missing := cfg.MissingStorage(); len(missing) != 0 {
		t.Errorf("expected nothing missing, got %v", missing)
	}
}

func TestStorageEndpoint(t *testing.T) {
	cfg := &Config{R2AccountID: "abc123"}
	if got := cfg.StorageEndpoint(); got != "https://abc123.r2.cloudflarestorage.com" {
		t.Errorf("unexpected endpoint %q", got)
	}

	cfg.R2Endpoint = "http://localhost:9000/"
	if got := cfg.StorageEndpoint(); got != "http://localhost:9000" {
		t.Errorf("override not honoured, got %q", got)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"file driver", Config{StoreDriver: DriverFile, MaxUploadSize: 1}, false},
		{"supabase without key", Config{StoreDriver: DriverSupabase, SupabaseURL: "http://x", MaxUploadSize: 1}, true},
		{"postgres without url", Config{StoreDriver: DriverPostgres, MaxUploadSize: 1}, true},
		{"unknown driver", Config{StoreDriver: "mongo", MaxUploadSize: 1}, true},
		{"production without secret", Config{StoreDriver: DriverFile, Env: "production", MaxUploadSize: 1}, true},
		{"zero ceiling", Config{StoreDriver: DriverFile}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestEnvHelpers(t *testing.T) {
	t.Setenv("TEST_DURATION", "90s")
	t.Setenv("TEST_BOOL", "true")
	t.Setenv("TEST_INT", "not-a-number")

	if got := getEnvAsDuration("TEST_DURATION", time.Second); got != 90*time.Second {
		t.Errorf("expected 90s, got %v", got)
	}
	if !getEnvAsBool("TEST_BOOL", false) {
		t.Error("expected true")
	}
	if got := getEnvAsInt64("TEST_INT", 7); got != 7 {
		t.Errorf("expected fallback 7, got %d", got)
	}
}

func TestDefaultDriver(t *testing.T) {
	if got := (&Config{SupabaseURL: "http://x"}).defaultDriver(); got != DriverSupabase {
		t.Errorf("expected supabase, got %s", got)
	}
	if got := (&Config{DatabaseURL: "postgres://"}).defaultDriver(); got != DriverPostgres {
		t.Errorf("expected postgres, got %s", got)
	}
	if got := (&Config{}).defaultDriver(); got != DriverFile {
		t.Errorf("expected file, got %s", got)
	}
}
