package api

import (
	"net/url"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/bilgisen/shiurim/internal/apperr"
	"github.com/bilgisen/shiurim/internal/cache"
	"github.com/bilgisen/shiurim/internal/catalog"
	"github.com/bilgisen/shiurim/internal/config"
	"github.com/bilgisen/shiurim/internal/middleware"
	"github.com/bilgisen/shiurim/internal/models"
	"github.com/bilgisen/shiurim/internal/session"
	"github.com/bilgisen/shiurim/internal/storage"
	"github.com/bilgisen/shiurim/internal/store"
)

// Deps are the services the handlers are built from.
type Deps struct {
	Config   *config.Config
	Store    store.Store
	Cache    cache.Cache
	Sessions session.Service

	// Issuer is nil when storage is not configured; IssuerErr then says why.
	Issuer    storage.Issuer
	IssuerErr error
	// Verifier, when set, checks that submitted media URLs exist.
	Verifier storage.Verifier
}

type Handlers struct {
	config    *config.Config
	store     store.Store
	catalog   *catalog.Catalog
	sessions  session.Service
	issuer    storage.Issuer
	issuerErr error
	verifier  storage.Verifier
	now       func() time.Time
}

func NewHandlers(d Deps) *Handlers {
	return &Handlers{
		config:    d.Config,
		store:     d.Store,
		catalog:   catalog.New(d.Store, d.Cache, d.Config.CacheTTL),
		sessions:  d.Sessions,
		issuer:    d.Issuer,
		issuerErr: d.IssuerErr,
		verifier:  d.Verifier,
		now:       time.Now,
	}
}

// HealthCheck handles the /health endpoint
func (h *Handlers) HealthCheck(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":  "ok",
		"store":   h.config.StoreDriver,
		"uploads": h.issuer != nil,
		"time":    h.now().Format(time.RFC3339),
	})
}

type shiurimQuery struct {
	Q     string `query:"q"`
	Topic string `query:"topic"`
	From  string `query:"from"`
	To    string `query:"to"`
}

// ListShiurim handles GET /api/shiurim
func (h *Handlers) ListShiurim(c *fiber.Ctx) error {
	q, err := middleware.BindQuery[shiurimQuery](c)
	if err != nil {
		return err
	}
	filter, err := catalog.ParseFilter(q.Q, q.Topic, q.From, q.To, time.UTC)
	if err != nil {
		return err
	}

	list, err := h.catalog.Search(c.UserContext(), filter)
	if err != nil {
		return err
	}
	return c.JSON(list)
}

// GetShiur handles GET /api/shiurim/:slug
func (h *Handlers) GetShiur(c *fiber.Ctx) error {
	slug, err := url.PathUnescape(c.Params("slug"))
	if err != nil {
		return apperr.Validation("malformed slug")
	}
	shiur, err := h.store.Shiurim().GetBySlug(c.UserContext(), slug)
	if err != nil {
		return err
	}
	return c.JSON(shiur)
}

// Topics handles GET /api/topics
func (h *Handlers) Topics(c *fiber.Ctx) error {
	topics, err := h.catalog.Topics(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(topics)
}

// NavPages handles GET /api/pages
func (h *Handlers) NavPages(c *fiber.Ctx) error {
	links, err := store.NavPages(c.UserContext(), h.store)
	if err != nil {
		return err
	}
	return c.JSON(links)
}

// GetPage handles GET /api/pages/:slug
func (h *Handlers) GetPage(c *fiber.Ctx) error {
	slug, err := url.PathUnescape(c.Params("slug"))
	if err != nil {
		return apperr.Validation("malformed slug")
	}
	page, err := h.store.Pages().GetBySlug(c.UserContext(), slug)
	if err != nil {
		return err
	}
	return c.JSON(page)
}

type scheduleResponse struct {
	*models.Schedule
	NextAt *time.Time `json:"next_at,omitempty"`
}

// GetSchedule handles GET /api/schedule
func (h *Handlers) GetSchedule(c *fiber.Ctx) error {
	s, err := store.CurrentSchedule(c.UserContext(), h.store)
	if err != nil {
		return err
	}
	if s == nil {
		return fiber.NewError(fiber.StatusNotFound, "no discourse scheduled")
	}
	resp := scheduleResponse{Schedule: s}
	if next, ok := s.NextOccurrence(h.now()); ok {
		resp.NextAt = &next
	}
	return c.JSON(resp)
}
