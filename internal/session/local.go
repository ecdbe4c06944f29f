package session

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/bilgisen/shiurim/internal/apperr"
	"github.com/bilgisen/shiurim/internal/cache"
	"github.com/bilgisen/shiurim/internal/config"
	"github.com/bilgisen/shiurim/internal/logger"
)

// Local authenticates the single admin configured in the environment and
// issues HS256 tokens. Signed-out tokens are revoked through the cache.
type Local struct {
	email    string
	password string
	secret   []byte
	ttl      time.Duration
	cache    cache.Cache
	now      func() time.Time
	log      zerolog.Logger
}

func NewLocal(cfg *config.Config, c cache.Cache) *Local {
	l := &Local{
		email:    strings.ToLower(strings.TrimSpace(cfg.AdminEmail)),
		password: cfg.AdminPassword,
		secret:   []byte(cfg.SessionSecret),
		ttl:      cfg.SessionTTL,
		cache:    c,
		now:      time.Now,
		log:      logger.With("session"),
	}
	if l.ttl <= 0 {
		l.ttl = 12 * time.Hour
	}
	if len(l.secret) == 0 {
		buf := make([]byte, 32)
		_, _ = rand.Read(buf)
		l.secret = []byte(hex.EncodeToString(buf))
		l.log.Warn().Msg("SESSION_SECRET not set, using a random secret; sessions end on restart")
	}
	return l
}

func (l *Local) SignIn(ctx context.Context, email, password string) (*Session, error) {
	if l.email == "" || l.password == "" {
		return nil, apperr.Configuration("admin login is not configured, set ADMIN_EMAIL and ADMIN_PASSWORD")
	}
	emailOK := subtle.ConstantTimeCompare([]byte(strings.ToLower(strings.TrimSpace(email))), []byte(l.email)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(password), []byte(l.password)) == 1
	if !emailOK || !passOK {
		l.log.Warn().Str("email", email).Msg("Rejected admin sign-in")
		return nil, unauthorized("invalid login credentials")
	}

	now := l.now()
	expires := now.Add(l.ttl)
	claims := jwt.MapClaims{
		"sub":   "admin",
		"email": l.email,
		"jti":   uuid.NewString(),
		"iat":   now.Unix(),
		"exp":   expires.Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(l.secret)
	if err != nil {
		return nil, err
	}
	return &Session{UserID: "admin", Email: l.email, AccessToken: token, ExpiresAt: time.Unix(expires.Unix(), 0)}, nil
}

func (l *Local) GetSession(ctx context.Context, token string) (*Session, error) {
	if token == "" {
		return nil, unauthorized("no session")
	}
	s, claims, err := verifyHS256(token, l.secret)
	if err != nil {
		return nil, err
	}
	if l.revoked(ctx, claims) {
		return nil, unauthorized("session signed out")
	}
	return s, nil
}

func (l *Local) SignOut(ctx context.Context, token string) error {
	s, claims, err := verifyHS256(token, l.secret)
	if err != nil {
		// already unusable
		return nil
	}
	jti, _ := claims["jti"].(string)
	if jti == "" || l.cache == nil {
		return nil
	}
	ttl := s.ExpiresAt.Sub(l.now())
	if ttl <= 0 {
		return nil
	}
	return l.cache.Set(ctx, "revoked:"+jti, "1", ttl)
}

func (l *Local) revoked(ctx context.Context, claims jwt.MapClaims) bool {
	jti, _ := claims["jti"].(string)
	if jti == "" || l.cache == nil {
		return false
	}
	_, ok, err := l.cache.Get(ctx, "revoked:"+jti)
	if err != nil {
		l.log.Error().Err(err).Msg("Revocation lookup failed")
		return true
	}
	return ok
}
