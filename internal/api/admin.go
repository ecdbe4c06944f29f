package api

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/bilgisen/shiurim/internal/apperr"
	"github.com/bilgisen/shiurim/internal/logger"
	"github.com/bilgisen/shiurim/internal/middleware"
	"github.com/bilgisen/shiurim/internal/models"
	"github.com/bilgisen/shiurim/internal/store"
	"github.com/bilgisen/shiurim/internal/utils"
)

type shiurRequest struct {
	Slug          string                  `json:"slug"`
	Title         string                  `json:"title" validate:"required"`
	Description   string                  `json:"description"`
	Tags          []string                `json:"tags"`
	ImageURL      *string                 `json:"image_url" validate:"omitempty,url"`
	AudioURL      string                  `json:"audio_url" validate:"required,url"`
	Timestamps    []models.TimestampTopic `json:"timestamps"`
	AllowDownload bool                    `json:"allow_download"`
	Transcript    *string                 `json:"transcript"`
}

// CreateShiur handles POST /api/admin/shiurim. The media must already be in
// storage; the body carries their public URLs.
func (h *Handlers) CreateShiur(c *fiber.Ctx) error {
	req, err := middleware.BindBody[shiurRequest](c)
	if err != nil {
		return err
	}
	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" {
		return apperr.Validation("title is required")
	}
	if strings.TrimSpace(req.Slug) == "" {
		req.Slug = req.Title
	}
	req.Slug = utils.SlugOr(req.Slug, "shiur", h.now())
	if err := models.ValidateTimestamps(req.Timestamps); err != nil {
		return apperr.Validation("%v", err)
	}
	if req.ImageURL != nil && *req.ImageURL == "" {
		req.ImageURL = nil
	}
	if err := h.verifyMedia(c.UserContext(), req.AudioURL, req.ImageURL); err != nil {
		return err
	}

	shiur := &models.Shiur{
		Slug:          req.Slug,
		Title:         req.Title,
		Description:   req.Description,
		Tags:          cleanTags(req.Tags),
		ImageURL:      req.ImageURL,
		AudioURL:      req.AudioURL,
		Timestamps:    req.Timestamps,
		AllowDownload: req.AllowDownload,
		Transcript:    req.Transcript,
	}
	created, err := h.store.Shiurim().Create(c.UserContext(), shiur.Columns())
	if err != nil {
		return err
	}
	h.catalog.Invalidate(c.UserContext())

	logger.Get().Info().Str("id", created.ID).Str("slug", created.Slug).Msg("Shiur created")
	return c.Status(fiber.StatusCreated).JSON(created)
}

// UpdateShiur handles PATCH /api/admin/shiurim/:id
func (h *Handlers) UpdateShiur(c *fiber.Ctx) error {
	patch, err := middleware.BindBody[models.ShiurPatch](c)
	if err != nil {
		return err
	}
	if patch.Title != nil {
		title := strings.TrimSpace(*patch.Title)
		if title == "" {
			return apperr.Validation("title cannot be empty")
		}
		patch.Title = &title
	}
	if patch.AudioURL != nil && *patch.AudioURL == "" {
		return apperr.Validation("audio_url cannot be empty")
	}
	if patch.Timestamps != nil {
		if err := models.ValidateTimestamps(*patch.Timestamps); err != nil {
			return apperr.Validation("%v", err)
		}
	}
	if patch.Tags != nil {
		tags := cleanTags(*patch.Tags)
		patch.Tags = &tags
	}
	if patch.IsEmpty() {
		return apperr.Validation("nothing to update")
	}

	audio := ""
	if patch.AudioURL != nil {
		audio = *patch.AudioURL
	}
	var image *string
	if patch.ImageURL != nil && *patch.ImageURL != "" {
		image = patch.ImageURL
	}
	if err := h.verifyMedia(c.UserContext(), audio, image); err != nil {
		return err
	}

	updated, err := h.store.Shiurim().Update(c.UserContext(), c.Params("id"), patch.Columns())
	if err != nil {
		return err
	}
	h.catalog.Invalidate(c.UserContext())
	return c.JSON(updated)
}

// DeleteShiur handles DELETE /api/admin/shiurim/:id. Stored media is left
// in the bucket.
func (h *Handlers) DeleteShiur(c *fiber.Ctx) error {
	if err := h.store.Shiurim().Delete(c.UserContext(), c.Params("id")); err != nil {
		return err
	}
	h.catalog.Invalidate(c.UserContext())
	logger.Get().Info().Str("id", c.Params("id")).Msg("Shiur deleted")
	return c.SendStatus(fiber.StatusNoContent)
}

// verifyMedia checks the submitted URLs point at uploaded objects when
// VERIFY_UPLOADS is on. Empty audio is skipped.
func (h *Handlers) verifyMedia(ctx context.Context, audio string, image *string) error {
	if h.verifier == nil {
		return nil
	}
	urls := map[string]string{}
	if audio != "" {
		urls["audio_url"] = audio
	}
	if image != nil {
		urls["image_url"] = *image
	}
	for field, u := range urls {
		ok, err := h.verifier.Exists(ctx, u)
		if err != nil {
			return err
		}
		if !ok {
			return apperr.Validation("%s %s was not uploaded", field, u)
		}
	}
	return nil
}

// cleanTags trims each tag and drops the empty ones. Commas inside a tag
// are kept.
func cleanTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}

type pageRequest struct {
	Slug       string  `json:"slug" validate:"required"`
	Title      string  `json:"title" validate:"required"`
	Content    string  `json:"content" validate:"required"`
	ImageURL   *string `json:"image_url"`
	ButtonText *string `json:"button_text"`
	ButtonLink *string `json:"button_link"`
	ShowInNav  bool    `json:"show_in_nav"`
}

// ListPages handles GET /api/admin/pages
func (h *Handlers) ListPages(c *fiber.Ctx) error {
	pages, err := h.store.Pages().List(c.UserContext(), store.ListOptions{OrderBy: "created_at", Descending: true})
	if err != nil {
		return err
	}
	return c.JSON(pages)
}

// CreatePage handles POST /api/admin/pages
func (h *Handlers) CreatePage(c *fiber.Ctx) error {
	req, err := middleware.BindBody[pageRequest](c)
	if err != nil {
		return err
	}
	now := h.now().UTC()
	page := &models.Page{
		Slug:       utils.Slugify(req.Slug),
		Title:      strings.TrimSpace(req.Title),
		Content:    req.Content,
		ImageURL:   nonEmpty(req.ImageURL),
		ButtonText: nonEmpty(req.ButtonText),
		ButtonLink: nonEmpty(req.ButtonLink),
		ShowInNav:  req.ShowInNav,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if page.Slug == "" {
		return apperr.Validation("slug must contain letters or digits")
	}

	created, err := h.store.Pages().Create(c.UserContext(), page.Columns())
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(created)
}

// UpdatePage handles PATCH /api/admin/pages/:id
func (h *Handlers) UpdatePage(c *fiber.Ctx) error {
	patch, err := middleware.BindBody[models.PagePatch](c)
	if err != nil {
		return err
	}
	for field, v := range map[string]*string{"slug": patch.Slug, "title": patch.Title, "content": patch.Content} {
		if v != nil && strings.TrimSpace(*v) == "" {
			return apperr.Validation("%s cannot be empty", field)
		}
	}
	if patch.Slug != nil {
		slug := utils.Slugify(*patch.Slug)
		patch.Slug = &slug
	}

	updated, err := h.store.Pages().Update(c.UserContext(), c.Params("id"), patch.Columns(h.now().UTC()))
	if err != nil {
		return err
	}
	return c.JSON(updated)
}

// DeletePage handles DELETE /api/admin/pages/:id
func (h *Handlers) DeletePage(c *fiber.Ctx) error {
	if err := h.store.Pages().Delete(c.UserContext(), c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

type scheduleRequest struct {
	Weekday  string  `json:"weekday" validate:"required"`
	Time     string  `json:"time" validate:"required"`
	Location *string `json:"location"`
}

// SaveSchedule handles PUT /api/admin/schedule. Weekday and time are free
// text; next_at is only reported for rows that parse.
func (h *Handlers) SaveSchedule(c *fiber.Ctx) error {
	req, err := middleware.BindBody[scheduleRequest](c)
	if err != nil {
		return err
	}
	s := &models.Schedule{
		Weekday:  strings.TrimSpace(req.Weekday),
		Time:     strings.TrimSpace(req.Time),
		Location: nonEmpty(req.Location),
	}
	if s.Weekday == "" || s.Time == "" {
		return apperr.Validation("weekday and time cannot be empty")
	}

	saved, err := store.SaveSchedule(c.UserContext(), h.store, s)
	if err != nil {
		return err
	}
	return c.JSON(saved)
}

func nonEmpty(s *string) *string {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil
	}
	v := strings.TrimSpace(*s)
	return &v
}
