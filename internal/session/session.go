// Package session signs the site administrator in and out and answers
// whether a request carries a valid admin session.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/bilgisen/shiurim/internal/apperr"
	"github.com/bilgisen/shiurim/internal/cache"
	"github.com/bilgisen/shiurim/internal/config"
	"github.com/bilgisen/shiurim/internal/utils"
)

// Session is an authenticated admin.
type Session struct {
	UserID      string    `json:"user_id"`
	Email       string    `json:"email"`
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Service is the admin gate. GetSession fails with apperr.ErrUnauthorized
// for a missing, expired or revoked token.
type Service interface {
	SignIn(ctx context.Context, email, password string) (*Session, error)
	GetSession(ctx context.Context, token string) (*Session, error)
	SignOut(ctx context.Context, token string) error
}

func unauthorized(reason string) error {
	return fmt.Errorf("%w: %s", apperr.ErrUnauthorized, reason)
}

// verifyHS256 checks signature and expiry and returns the session the
// token describes.
func verifyHS256(token string, secret []byte) (*Session, jwt.MapClaims, error) {
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return secret, nil
	}, jwt.WithExpirationRequired())
	if err != nil || !parsed.Valid {
		return nil, nil, unauthorized("invalid or expired token")
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, nil, unauthorized("invalid token claims")
	}
	return sessionFromClaims(token, claims), claims, nil
}

func sessionFromClaims(token string, claims jwt.MapClaims) *Session {
	s := &Session{AccessToken: token}
	s.UserID, _ = claims["sub"].(string)
	s.Email, _ = claims["email"].(string)
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		s.ExpiresAt = exp.Time
	}
	return s
}

// expiryOf reads exp without verifying the signature.
func expiryOf(token string) time.Time {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		return exp.Time
	}
	return time.Time{}
}

func cacheKey(token string) string {
	return "session:" + utils.Hash(token)
}

// cached returns a session remembered for token.
func cached(ctx context.Context, c cache.Cache, token string, now time.Time) (*Session, bool) {
	if c == nil {
		return nil, false
	}
	raw, ok, err := c.Get(ctx, cacheKey(token))
	if err != nil || !ok {
		return nil, false
	}
	var s Session
	if json.Unmarshal([]byte(raw), &s) != nil {
		return nil, false
	}
	if !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt) {
		return nil, false
	}
	s.AccessToken = token
	return &s, true
}

// remember caches s for at most ttl and never past its expiry.
func remember(ctx context.Context, c cache.Cache, s *Session, ttl time.Duration, now time.Time) {
	if c == nil || ttl <= 0 {
		return
	}
	if !s.ExpiresAt.IsZero() {
		ttl = min(ttl, s.ExpiresAt.Sub(now))
	}
	if ttl <= 0 {
		return
	}
	stored := *s
	stored.AccessToken = ""
	data, err := json.Marshal(stored)
	if err != nil {
		return
	}
	_ = c.Set(ctx, cacheKey(s.AccessToken), string(data), ttl)
}

func forget(ctx context.Context, c cache.Cache, token string) {
	if c != nil {
		_ = c.Del(ctx, cacheKey(token))
	}
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// New picks the service matching the configured store driver: Supabase
// Auth for the supabase driver, the local admin otherwise.
func New(cfg *config.Config, c cache.Cache) Service {
	if cfg.StoreDriver == config.DriverSupabase {
		return NewSupabase(cfg, c)
	}
	return NewLocal(cfg, c)
}
