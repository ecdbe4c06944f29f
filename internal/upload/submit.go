package upload

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/bilgisen/shiurim/internal/apperr"
	"github.com/bilgisen/shiurim/internal/logger"
	"github.com/bilgisen/shiurim/internal/models"
	"github.com/bilgisen/shiurim/internal/utils"
)

// Uploader is the part of Coordinator a Submitter needs.
type Uploader interface {
	Check(f *File, category string) error
	Upload(ctx context.Context, f *File, category string, progress ProgressFunc) (string, error)
}

// ShiurWriter persists shiurim once their files are in storage.
type ShiurWriter interface {
	CreateShiur(ctx context.Context, s *models.Shiur) (*models.Shiur, error)
	UpdateShiur(ctx context.Context, id string, patch models.ShiurPatch) (*models.Shiur, error)
}

// ShiurForm is a new shiur as entered by the admin.
type ShiurForm struct {
	Title         string `validate:"required"`
	Description   string
	Tags          string // comma separated
	Timestamps    []models.TimestampTopic
	AllowDownload bool
	Transcript    string
	Audio         *File `validate:"required"`
	Image         *File
}

// ShiurEdit changes an existing shiur. Nil fields are left alone; Audio and
// Image replace the stored file when set.
type ShiurEdit struct {
	Title         *string
	Description   *string
	Tags          *string
	Timestamps    *[]models.TimestampTopic
	AllowDownload *bool
	Transcript    *string
	Audio         *File
	Image         *File
}

// Result is a saved shiur plus any non-fatal problems met on the way.
type Result struct {
	Shiur    *models.Shiur
	Warnings []string
}

// Submitter uploads the files of a form and then writes the record.
type Submitter struct {
	uploader Uploader
	writer   ShiurWriter
	validate *validator.Validate
	now      func() time.Time
	log      zerolog.Logger

	// Progress, when set, returns the progress callback for a category.
	Progress func(category string) ProgressFunc
}

func NewSubmitter(uploader Uploader, writer ShiurWriter) *Submitter {
	return &Submitter{
		uploader: uploader,
		writer:   writer,
		validate: validator.New(),
		now:      time.Now,
		log:      logger.With("submit"),
	}
}

// Create validates the form and derives the slug, uploads the image (best
// effort) and the audio (required), and creates the record. Validation
// happens before any network call. An audio failure aborts; an image failure
// leaves image_url empty and adds a warning.
func (s *Submitter) Create(ctx context.Context, form ShiurForm) (*Result, error) {
	form.Title = strings.TrimSpace(form.Title)
	if err := s.validate.Struct(form); err != nil {
		return nil, validationError(err)
	}
	if err := models.ValidateTimestamps(form.Timestamps); err != nil {
		return nil, apperr.Validation("%v", err)
	}
	if err := s.uploader.Check(form.Audio, models.CategoryAudio); err != nil {
		return nil, err
	}
	slug := utils.SlugOr(form.Title, "shiur", s.now())

	res := &Result{}
	imageURL := s.uploadImage(ctx, form.Image, res)

	audioURL, err := s.uploader.Upload(ctx, form.Audio, models.CategoryAudio, s.progress(models.CategoryAudio))
	if err != nil {
		return nil, fmt.Errorf("audio upload: %w", err)
	}

	shiur := &models.Shiur{
		Slug:          slug,
		Title:         form.Title,
		Description:   form.Description,
		Tags:          models.ParseTags(form.Tags),
		ImageURL:      imageURL,
		AudioURL:      audioURL,
		Timestamps:    form.Timestamps,
		AllowDownload: form.AllowDownload,
	}
	if t := strings.TrimSpace(form.Transcript); t != "" {
		shiur.Transcript = &t
	}

	created, err := s.writer.CreateShiur(ctx, shiur)
	if err != nil {
		return nil, fmt.Errorf("create shiur: %w", err)
	}
	res.Shiur = created
	return res, nil
}

// Update applies edit to the shiur with id. A failed image replacement keeps
// the current image and adds a warning; a failed audio replacement aborts.
func (s *Submitter) Update(ctx context.Context, id string, edit ShiurEdit) (*Result, error) {
	if strings.TrimSpace(id) == "" {
		return nil, apperr.Validation("id is required")
	}
	if edit.Title != nil && strings.TrimSpace(*edit.Title) == "" {
		return nil, apperr.Validation("title cannot be empty")
	}
	if edit.Timestamps != nil {
		if err := models.ValidateTimestamps(*edit.Timestamps); err != nil {
			return nil, apperr.Validation("%v", err)
		}
	}
	if edit.Audio != nil {
		if err := s.uploader.Check(edit.Audio, models.CategoryAudio); err != nil {
			return nil, err
		}
	}

	res := &Result{}
	patch := models.ShiurPatch{
		Description:   edit.Description,
		Timestamps:    edit.Timestamps,
		AllowDownload: edit.AllowDownload,
		Transcript:    edit.Transcript,
	}
	if edit.Title != nil {
		title := strings.TrimSpace(*edit.Title)
		patch.Title = &title
	}
	if edit.Tags != nil {
		tags := models.ParseTags(*edit.Tags)
		patch.Tags = &tags
	}

	patch.ImageURL = s.uploadImage(ctx, edit.Image, res)

	if edit.Audio != nil {
		audioURL, err := s.uploader.Upload(ctx, edit.Audio, models.CategoryAudio, s.progress(models.CategoryAudio))
		if err != nil {
			return nil, fmt.Errorf("audio upload: %w", err)
		}
		patch.AudioURL = &audioURL
	}

	if patch.IsEmpty() {
		return nil, apperr.Validation("nothing to update")
	}

	updated, err := s.writer.UpdateShiur(ctx, id, patch)
	if err != nil {
		return nil, fmt.Errorf("update shiur %s: %w", id, err)
	}
	res.Shiur = updated
	return res, nil
}

// uploadImage returns nil, with a warning recorded, when the image cannot be
// uploaded.
func (s *Submitter) uploadImage(ctx context.Context, img *File, res *Result) *string {
	if img == nil {
		return nil
	}

	err := s.uploader.Check(img, models.CategoryImage)
	if err == nil {
		var url string
		url, err = s.uploader.Upload(ctx, img, models.CategoryImage, s.progress(models.CategoryImage))
		if err == nil {
			return &url
		}
	}

	s.log.Warn().Err(err).Str("file", img.Name).Msg("Image upload failed, continuing without image")
	res.Warnings = append(res.Warnings, fmt.Sprintf("image upload failed, continuing without image: %v", err))
	return nil
}

func (s *Submitter) progress(category string) ProgressFunc {
	if s.Progress == nil {
		return nil
	}
	return s.Progress(category)
}

func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperr.Validation("%v", err)
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fmt.Sprintf("%s is %s", strings.ToLower(fe.Field()), fe.Tag()))
	}
	return apperr.Validation("%s", strings.Join(fields, ", "))
}
