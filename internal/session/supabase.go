package session

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"github.com/bilgisen/shiurim/internal/apperr"
	"github.com/bilgisen/shiurim/internal/cache"
	"github.com/bilgisen/shiurim/internal/config"
	"github.com/bilgisen/shiurim/internal/logger"
)

// Supabase delegates to Supabase Auth (GoTrue). Tokens are verified locally
// when the project's JWT secret is known and by calling /auth/v1/user
// otherwise; either way the result is cached by token hash.
type Supabase struct {
	client    *resty.Client
	jwtSecret []byte
	cache     cache.Cache
	cacheTTL  time.Duration
	now       func() time.Time
	log       zerolog.Logger
}

func NewSupabase(cfg *config.Config, c cache.Cache) *Supabase {
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Supabase{
		client: resty.New().
			SetBaseURL(strings.TrimRight(cfg.SupabaseURL, "/")+"/auth/v1").
			SetTimeout(timeout).
			SetHeader("apikey", cfg.SupabaseAnonKey).
			SetHeader("Accept", "application/json"),
		jwtSecret: []byte(cfg.SupabaseJWTSecret),
		cache:     c,
		cacheTTL:  cfg.CacheTTL,
		now:       time.Now,
		log:       logger.With("session"),
	}
}

type gotrueUser struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

type tokenResponse struct {
	AccessToken string     `json:"access_token"`
	ExpiresIn   int64      `json:"expires_in"`
	ExpiresAt   int64      `json:"expires_at"`
	User        gotrueUser `json:"user"`
}

type gotrueError struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	Msg              string `json:"msg"`
	Message          string `json:"message"`
}

func (e gotrueError) text() string {
	for _, s := range []string{e.ErrorDescription, e.Msg, e.Message, e.Error} {
		if s != "" {
			return s
		}
	}
	return ""
}

func (s *Supabase) SignIn(ctx context.Context, email, password string) (*Session, error) {
	if strings.TrimSpace(email) == "" || password == "" {
		return nil, apperr.Validation("email and password are required")
	}

	var out tokenResponse
	var failure gotrueError
	resp, err := s.client.R().
		SetContext(ctx).
		SetQueryParam("grant_type", "password").
		SetBody(map[string]string{"email": email, "password": password}).
		SetResult(&out).
		SetError(&failure).
		Post("/token")
	if err != nil {
		return nil, fmt.Errorf("sign in: %w", err)
	}
	switch {
	case resp.StatusCode() == http.StatusBadRequest || resp.StatusCode() == http.StatusUnauthorized:
		s.log.Warn().Str("email", email).Msg("Rejected admin sign-in")
		return nil, unauthorized(orDefault(failure.text(), "invalid login credentials"))
	case resp.IsError():
		return nil, fmt.Errorf("sign in: auth returned %d: %s", resp.StatusCode(), failure.text())
	}

	sess := &Session{
		UserID:      out.User.ID,
		Email:       out.User.Email,
		AccessToken: out.AccessToken,
	}
	switch {
	case out.ExpiresAt > 0:
		sess.ExpiresAt = time.Unix(out.ExpiresAt, 0)
	case out.ExpiresIn > 0:
		sess.ExpiresAt = s.now().Add(time.Duration(out.ExpiresIn) * time.Second)
	}
	remember(ctx, s.cache, sess, s.cacheTTL, s.now())
	return sess, nil
}

func (s *Supabase) GetSession(ctx context.Context, token string) (*Session, error) {
	if token == "" {
		return nil, unauthorized("no session")
	}
	now := s.now()
	if sess, ok := cached(ctx, s.cache, token, now); ok {
		return sess, nil
	}

	var sess *Session
	if len(s.jwtSecret) > 0 {
		verified, _, err := verifyHS256(token, s.jwtSecret)
		if err != nil {
			return nil, err
		}
		sess = verified
	} else {
		user, err := s.user(ctx, token)
		if err != nil {
			return nil, err
		}
		sess = &Session{UserID: user.ID, Email: user.Email, AccessToken: token, ExpiresAt: expiryOf(token)}
	}

	remember(ctx, s.cache, sess, s.cacheTTL, now)
	return sess, nil
}

func (s *Supabase) user(ctx context.Context, token string) (*gotrueUser, error) {
	var user gotrueUser
	var failure gotrueError
	resp, err := s.client.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetResult(&user).
		SetError(&failure).
		Get("/user")
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	switch {
	case resp.StatusCode() == http.StatusUnauthorized || resp.StatusCode() == http.StatusForbidden:
		return nil, unauthorized(orDefault(failure.text(), "invalid or expired token"))
	case resp.IsError():
		return nil, fmt.Errorf("get user: auth returned %d: %s", resp.StatusCode(), failure.text())
	}
	if user.ID == "" {
		return nil, unauthorized("no user for token")
	}
	return &user, nil
}

func (s *Supabase) SignOut(ctx context.Context, token string) error {
	forget(ctx, s.cache, token)
	if token == "" {
		return nil
	}
	resp, err := s.client.R().
		SetContext(ctx).
		SetAuthToken(token).
		Post("/logout")
	if err != nil {
		return fmt.Errorf("sign out: %w", err)
	}
	// an expired token is already signed out
	if resp.IsError() && resp.StatusCode() != http.StatusUnauthorized {
		return fmt.Errorf("sign out: auth returned %d", resp.StatusCode())
	}
	return nil
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

// compile-time checks
var (
	_ Service = (*Supabase)(nil)
	_ Service = (*Local)(nil)
)
