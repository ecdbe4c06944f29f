package api

import (
	"github.com/gofiber/fiber/v2"

	"github.com/bilgisen/shiurim/internal/apperr"
	"github.com/bilgisen/shiurim/internal/logger"
	"github.com/bilgisen/shiurim/internal/middleware"
	"github.com/bilgisen/shiurim/internal/storage"
)

type uploadQuery struct {
	Filename    string `query:"filename" validate:"required"`
	FileType    string `query:"fileType" validate:"required,oneof=audio image"`
	ContentType string `query:"contentType"`
	Size        int64  `query:"size" validate:"gte=0"`
}

// IssueCredential handles GET /api/upload. It answers 400 for missing
// parameters, 413 when size exceeds MAX_UPLOAD_SIZE and 500 when storage is
// not configured. The ceiling is returned as maxSize.
func (h *Handlers) IssueCredential(c *fiber.Ctx) error {
	q, err := middleware.BindQuery[uploadQuery](c)
	if err != nil {
		return err
	}
	limit := h.config.MaxUploadSize
	if limit > 0 && q.Size > limit {
		return apperr.TooLarge(q.Filename, q.Size, limit)
	}
	if h.issuer == nil {
		if h.issuerErr != nil {
			return h.issuerErr
		}
		return apperr.Configuration("storage is not configured")
	}

	cred, err := h.issuer.Issue(c.UserContext(), storage.IssueRequest{
		Filename:    q.Filename,
		Category:    q.FileType,
		ContentType: q.ContentType,
	})
	if err != nil {
		return err
	}
	if limit > 0 {
		cred.MaxSize = limit
	}

	logger.Get().Info().
		Str("key", cred.Key).
		Str("content_type", cred.ContentType).
		Time("expires_at", cred.ExpiresAt).
		Msg("Issued upload credential")
	return c.JSON(cred)
}
