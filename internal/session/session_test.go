package session

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/bilgisen/shiurim/internal/apperr"
	"github.com/bilgisen/shiurim/internal/cache"
	"github.com/bilgisen/shiurim/internal/config"
)

func localConfig() *config.Config {
	return &config.Config{
		AdminEmail:    "Rabbi@example.com",
		AdminPassword: "secret",
		SessionSecret: "test-secret",
		SessionTTL:    time.Hour,
	}
}

func TestLocalSignInAndOut(t *testing.T) {
	ctx := context.Background()
	l := NewLocal(localConfig(), cache.NewMockRedisClient())

	sess, err := l.SignIn(ctx, " rabbi@example.com ", "secret")
	if err != nil {
		t.Fatalf("SignIn: %v", err)
	}
	if sess.AccessToken == "" || sess.Email != "rabbi@example.com" {
		t.Fatalf("unexpected session %+v", sess)
	}

	got, err := l.GetSession(ctx, sess.AccessToken)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if got.UserID != "admin" || !got.ExpiresAt.Equal(sess.ExpiresAt) {
		t.Errorf("unexpected session %+v", got)
	}

	if err := l.SignOut(ctx, sess.AccessToken); err != nil {
		t.Fatalf("SignOut: %v", err)
	}
	if _, err := l.GetSession(ctx, sess.AccessToken); !errors.Is(err, apperr.ErrUnauthorized) {
		t.Errorf("signed-out token must be rejected, got %v", err)
	}
}

func TestLocalRejections(t *testing.T) {
	ctx := context.Background()
	l := NewLocal(localConfig(), nil)

	if _, err := l.SignIn(ctx, "rabbi@example.com", "wrong"); !errors.Is(err, apperr.ErrUnauthorized) {
		t.Errorf("wrong password: got %v", err)
	}
	if _, err := l.GetSession(ctx, ""); !errors.Is(err, apperr.ErrUnauthorized) {
		t.Errorf("empty token: got %v", err)
	}
	if _, err := l.GetSession(ctx, "not-a-jwt"); !errors.Is(err, apperr.ErrUnauthorized) {
		t.Errorf("garbage token: got %v", err)
	}

	expired, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "admin",
		"exp": time.Now().Add(-time.Minute).Unix(),
	}).SignedString([]byte("test-secret"))
	if _, err := l.GetSession(ctx, expired); !errors.Is(err, apperr.ErrUnauthorized) {
		t.Errorf("expired token: got %v", err)
	}

	forged, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "admin",
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte("other-secret"))
	if _, err := l.GetSession(ctx, forged); !errors.Is(err, apperr.ErrUnauthorized) {
		t.Errorf("forged token: got %v", err)
	}
}

func TestLocalNotConfigured(t *testing.T) {
	l := NewLocal(&config.Config{SessionSecret: "x"}, nil)
	if _, err := l.SignIn(context.Background(), "a@b.c", "p"); !errors.Is(err, apperr.ErrConfiguration) {
		t.Errorf("expected configuration error, got %v", err)
	}
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header string
		want   string
		ok     bool
	}{
		{"Bearer abc", "abc", true},
		{"bearer  abc ", "abc", true},
		{"Basic abc", "", false},
		{"Bearer", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := BearerToken(tt.header)
		if got != tt.want || ok != tt.ok {
			t.Errorf("BearerToken(%q) = %q, %v", tt.header, got, ok)
		}
	}
}

// gotrue fakes the three Supabase Auth endpoints.
func gotrue(t *testing.T, userCalls *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/auth/v1/token":
			var body map[string]string
			data, _ := io.ReadAll(r.Body)
			_ = json.Unmarshal(data, &body)
			if r.URL.Query().Get("grant_type") != "password" || body["password"] != "secret" {
				w.WriteHeader(http.StatusBadRequest)
				_, _ = io.WriteString(w, `{"error":"invalid_grant","error_description":"Invalid login credentials"}`)
				return
			}
			_, _ = io.WriteString(w, `{"access_token":"tok-1","expires_in":3600,"user":{"id":"u-1","email":"rabbi@example.com"}}`)
		case "/auth/v1/user":
			userCalls.Add(1)
			if r.Header.Get("Authorization") != "Bearer tok-1" {
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = io.WriteString(w, `{"msg":"invalid JWT"}`)
				return
			}
			_, _ = io.WriteString(w, `{"id":"u-1","email":"rabbi@example.com"}`)
		case "/auth/v1/logout":
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestSupabaseSignIn(t *testing.T) {
	var userCalls atomic.Int32
	srv := gotrue(t, &userCalls)
	s := NewSupabase(&config.Config{SupabaseURL: srv.URL, SupabaseAnonKey: "anon", CacheTTL: time.Minute}, cache.NewMockRedisClient())

	if _, err := s.SignIn(context.Background(), "rabbi@example.com", "wrong"); !errors.Is(err, apperr.ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}

	sess, err := s.SignIn(context.Background(), "rabbi@example.com", "secret")
	if err != nil {
		t.Fatalf("SignIn: %v", err)
	}
	if sess.AccessToken != "tok-1" || sess.UserID != "u-1" || sess.ExpiresAt.IsZero() {
		t.Errorf("unexpected session %+v", sess)
	}
}

func TestSupabaseGetSessionIsCached(t *testing.T) {
	var userCalls atomic.Int32
	srv := gotrue(t, &userCalls)
	s := NewSupabase(&config.Config{SupabaseURL: srv.URL, SupabaseAnonKey: "anon", CacheTTL: time.Minute}, cache.NewMockRedisClient())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		sess, err := s.GetSession(ctx, "tok-1")
		if err != nil {
			t.Fatalf("GetSession: %v", err)
		}
		if sess.Email != "rabbi@example.com" || sess.AccessToken != "tok-1" {
			t.Errorf("unexpected session %+v", sess)
		}
	}
	if got := userCalls.Load(); got != 1 {
		t.Errorf("expected one call to /user, got %d", got)
	}

	if err := s.SignOut(ctx, "tok-1"); err != nil {
		t.Fatalf("SignOut: %v", err)
	}
	if _, err := s.GetSession(ctx, "tok-1"); err != nil {
		t.Fatalf("GetSession after sign out: %v", err)
	}
	if got := userCalls.Load(); got != 2 {
		t.Errorf("sign out must drop the cached session, /user calls = %d", got)
	}

	if _, err := s.GetSession(ctx, "other"); !errors.Is(err, apperr.ErrUnauthorized) {
		t.Errorf("expected unauthorized for unknown token, got %v", err)
	}
}

func TestSupabaseVerifiesLocallyWithSecret(t *testing.T) {
	var userCalls atomic.Int32
	srv := gotrue(t, &userCalls)
	s := NewSupabase(&config.Config{SupabaseURL: srv.URL, SupabaseAnonKey: "anon", SupabaseJWTSecret: "jwt-secret"}, nil)

	token, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   "u-1",
		"email": "rabbi@example.com",
		"exp":   time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte("jwt-secret"))

	sess, err := s.GetSession(context.Background(), token)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if sess.UserID != "u-1" {
		t.Errorf("unexpected session %+v", sess)
	}
	if userCalls.Load() != 0 {
		t.Error("local verification must not call /user")
	}
}

func TestNewPicksDriver(t *testing.T) {
	if _, ok := New(&config.Config{StoreDriver: config.DriverSupabase}, nil).(*Supabase); !ok {
		t.Error("supabase driver should use Supabase Auth")
	}
	if _, ok := New(&config.Config{StoreDriver: config.DriverFile, SessionSecret: "x"}, nil).(*Local); !ok {
		t.Error("file driver should use the local admin")
	}
}
