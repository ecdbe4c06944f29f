package api

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/bilgisen/shiurim/internal/logger"
	"github.com/bilgisen/shiurim/internal/middleware"
)

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// Login handles POST /api/admin/login
func (h *Handlers) Login(c *fiber.Ctx) error {
	req, err := middleware.BindBody[loginRequest](c)
	if err != nil {
		return err
	}

	sess, err := h.sessions.SignIn(c.UserContext(), req.Email, req.Password)
	if err != nil {
		return err
	}

	c.Cookie(&fiber.Cookie{
		Name:     middleware.SessionCookie,
		Value:    sess.AccessToken,
		Path:     "/",
		Expires:  sess.ExpiresAt,
		HTTPOnly: true,
		Secure:   h.config.IsProduction(),
		SameSite: fiber.CookieSameSiteLaxMode,
	})

	logger.Get().Info().Str("email", sess.Email).Str("ip", c.IP()).Msg("Admin signed in")
	return c.JSON(sess)
}

// Logout handles POST /api/admin/logout
func (h *Handlers) Logout(c *fiber.Ctx) error {
	token := middleware.RequestToken(c, middleware.SessionCookie)
	if token != "" {
		if err := h.sessions.SignOut(c.UserContext(), token); err != nil {
			return err
		}
	}
	c.Cookie(&fiber.Cookie{
		Name:     middleware.SessionCookie,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		HTTPOnly: true,
		Secure:   h.config.IsProduction(),
		SameSite: fiber.CookieSameSiteLaxMode,
	})
	return c.SendStatus(fiber.StatusNoContent)
}

// CurrentSession handles GET /api/admin/session
func (h *Handlers) CurrentSession(c *fiber.Ctx) error {
	sess, ok := middleware.SessionFrom(c)
	if !ok {
		return fiber.ErrUnauthorized
	}
	return c.JSON(fiber.Map{
		"user_id":    sess.UserID,
		"email":      sess.Email,
		"expires_at": sess.ExpiresAt,
	})
}
