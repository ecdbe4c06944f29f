package middleware

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/bilgisen/shiurim/internal/apperr"
	"github.com/bilgisen/shiurim/internal/logger"
	"github.com/bilgisen/shiurim/internal/session"
	"github.com/bilgisen/shiurim/internal/store"
)

const (
	// SessionCookie carries the access token for browser requests.
	SessionCookie = "shiur_session"
	// SessionKey is the c.Locals key of the current session.
	SessionKey = "session"
)

// AuthConfig defines the config for the session gate
type AuthConfig struct {
	// Skip defines a function to skip middleware.
	// Optional. Default: nil
	Next func(c *fiber.Ctx) bool

	// Sessions validates the access token.
	// Required.
	Sessions session.Service

	// ErrorHandler is executed when there is no valid session.
	// Optional. Default: redirect browsers to LoginPath, 401 JSON otherwise
	ErrorHandler fiber.ErrorHandler

	// Cookie is read when the Authorization header is absent.
	// Optional. Default: SessionCookie
	Cookie string

	// LoginPath is where browsers without a session are sent.
	// Optional. Default: "/admin/login"
	LoginPath string
}

// ConfigDefault is the default config
var ConfigDefault = AuthConfig{
	Cookie:    SessionCookie,
	LoginPath: "/admin/login",
}

// NewAuth checks the admin session once per request. The session is stored
// in c.Locals and its token in the user context, for the store.
func NewAuth(config AuthConfig) fiber.Handler {
	cfg := config
	if cfg.Sessions == nil {
		panic("middleware: NewAuth requires a session service")
	}
	if cfg.Cookie == "" {
		cfg.Cookie = ConfigDefault.Cookie
	}
	if cfg.LoginPath == "" {
		cfg.LoginPath = ConfigDefault.LoginPath
	}
	if cfg.ErrorHandler == nil {
		cfg.ErrorHandler = denyOrRedirect(cfg.LoginPath)
	}

	return func(c *fiber.Ctx) error {
		// Don't execute middleware if Next returns true
		if cfg.Next != nil && cfg.Next(c) {
			return c.Next()
		}

		token := RequestToken(c, cfg.Cookie)
		if token == "" {
			return cfg.ErrorHandler(c, fmt.Errorf("%w: no session", apperr.ErrUnauthorized))
		}

		sess, err := cfg.Sessions.GetSession(c.UserContext(), token)
		if err != nil {
			return cfg.ErrorHandler(c, err)
		}

		c.Locals(SessionKey, sess)
		c.SetUserContext(store.WithAccessToken(c.UserContext(), sess.AccessToken))

		// Continue stack
		return c.Next()
	}
}

// SessionFrom returns the session stored by NewAuth.
func SessionFrom(c *fiber.Ctx) (*session.Session, bool) {
	sess, ok := c.Locals(SessionKey).(*session.Session)
	return sess, ok && sess != nil
}

// RequestToken reads the bearer token, falling back to the session cookie.
func RequestToken(c *fiber.Ctx, cookie string) string {
	if token, ok := session.BearerToken(c.Get(fiber.HeaderAuthorization)); ok {
		return token
	}
	return strings.TrimSpace(c.Cookies(cookie))
}

func denyOrRedirect(loginPath string) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		logger.Get().Warn().
			Str("method", c.Method()).
			Str("path", c.Path()).
			Str("ip", c.IP()).
			Err(err).
			Msg("Admin access denied")

		if !errors.Is(err, apperr.ErrUnauthorized) {
			return err
		}
		if c.Method() == fiber.MethodGet && !strings.HasPrefix(c.Path(), "/api/") &&
			c.Accepts(fiber.MIMEApplicationJSON, fiber.MIMETextHTML) == fiber.MIMETextHTML {
			return c.Redirect(loginPath, fiber.StatusSeeOther)
		}
		return err
	}
}
