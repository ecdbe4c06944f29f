// Package upload moves audio and image files from the admin's machine
// straight to object storage using short-lived credentials, then hands the
// resulting public URLs to the content store.
package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/bilgisen/shiurim/internal/apperr"
	"github.com/bilgisen/shiurim/internal/logger"
	"github.com/bilgisen/shiurim/internal/models"
	"github.com/bilgisen/shiurim/internal/retry"
)

// DefaultMaxSize is the largest file the coordinator will attempt.
const DefaultMaxSize int64 = 500 << 20

// CredentialSource hands out upload credentials, normally by calling the
// server's credential endpoint.
type CredentialSource interface {
	RequestCredential(ctx context.Context, filename, category, contentType string) (*models.UploadCredential, error)
}

// Options tune a Coordinator. Zero values pick the defaults.
type Options struct {
	MaxSize int64
	Policy  retry.Policy
	// ExpiryMargin is how long a credential must remain valid to be reused.
	ExpiryMargin time.Duration
	// AttemptTimeout bounds a single PUT. Zero means no deadline.
	AttemptTimeout time.Duration
	HTTPClient     *http.Client
}

// Coordinator performs direct uploads with retry and progress reporting.
type Coordinator struct {
	creds   CredentialSource
	http    *http.Client
	policy  retry.Policy
	maxSize int64
	margin  time.Duration
	timeout time.Duration
	now     func() time.Time
	log     zerolog.Logger
}

func NewCoordinator(creds CredentialSource, opts Options) *Coordinator {
	c := &Coordinator{
		creds:   creds,
		http:    opts.HTTPClient,
		policy:  opts.Policy,
		maxSize: opts.MaxSize,
		margin:  opts.ExpiryMargin,
		timeout: opts.AttemptTimeout,
		now:     time.Now,
		log:     logger.With("upload"),
	}
	if c.http == nil {
		c.http = &http.Client{}
	}
	if c.policy.MaxAttempts == 0 {
		c.policy = retry.Default()
	}
	if c.maxSize <= 0 {
		c.maxSize = DefaultMaxSize
	}
	if c.margin <= 0 {
		c.margin = time.Minute
	}
	return c
}

// Check runs the local preconditions. It never touches the network.
func (c *Coordinator) Check(f *File, category string) error {
	if !models.ValidCategory(category) {
		return apperr.Validation("unknown upload category %q", category)
	}
	if f == nil {
		return apperr.Validation("%s file is required", category)
	}
	if f.Size > c.maxSize {
		return apperr.TooLarge(f.Name, f.Size, c.maxSize)
	}
	if category == models.CategoryAudio && f.Size == 0 {
		return apperr.Validation("audio file %s is empty", f.Name)
	}
	if f.Size > 0 && f.Body == nil {
		return apperr.Validation("%s has no content", f.Name)
	}
	return nil
}

// Upload sends f to a key under category and returns its public URL. A URL
// is returned only after storage answered 2xx.
func (c *Coordinator) Upload(ctx context.Context, f *File, category string, progress ProgressFunc) (string, error) {
	if err := c.Check(f, category); err != nil {
		return "", err
	}

	var (
		cred       *models.UploadCredential
		lastStatus int
	)
	attempts, err := retry.Do(ctx, c.policy, func(ctx context.Context, attempt int) error {
		if !cred.Usable(c.now(), c.margin) {
			fresh, err := c.creds.RequestCredential(ctx, f.Name, category, f.contentType())
			if err != nil {
				if errors.Is(err, apperr.ErrConfiguration) ||
					errors.Is(err, apperr.ErrValidation) ||
					errors.Is(err, apperr.ErrUnauthorized) {
					return retry.Permanent(err)
				}
				return fmt.Errorf("request credential: %w", err)
			}
			cred = fresh
			c.log.Debug().Str("key", cred.Key).Int("attempt", attempt).Msg("Issued upload credential")
		}
		if cred.MaxSize > 0 && f.Size > cred.MaxSize {
			return retry.Permanent(apperr.TooLarge(f.Name, f.Size, cred.MaxSize))
		}

		status, err := c.put(ctx, cred, f, progress)
		lastStatus = status
		if err == nil {
			return nil
		}
		if status == http.StatusForbidden {
			// expired or rejected signature, ask for a new one
			cred = nil
		}
		c.log.Warn().
			Err(err).
			Str("file", f.Name).
			Int("attempt", attempt).
			Int("max_attempts", c.policy.MaxAttempts).
			Msg("Upload attempt failed")
		return err
	})
	if err != nil {
		if retry.IsPermanent(err) {
			return "", err
		}
		return "", &apperr.TransferError{StatusCode: lastStatus, Attempts: attempts, Err: err}
	}

	c.log.Info().
		Str("file", f.Name).
		Str("key", cred.Key).
		Int64("bytes", f.Size).
		Int("attempts", attempts).
		Msg("Upload complete")
	return cred.PublicURL, nil
}

type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("storage returned %d %s", e.code, http.StatusText(e.code))
}

// put streams the whole file in one PUT. It returns the response status, if
// any, and an error for anything but 2xx.
func (c *Coordinator) put(ctx context.Context, cred *models.UploadCredential, f *File, progress ProgressFunc) (int, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	var body io.Reader = http.NoBody
	if f.Size > 0 {
		body = &progressReader{
			ctx:   ctx,
			r:     io.NewSectionReader(f.Body, 0, f.Size),
			total: f.Size,
			fn:    progress,
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, cred.URL(), body)
	if err != nil {
		return 0, retry.Permanent(fmt.Errorf("build upload request: %w", err))
	}
	req.ContentLength = f.Size
	contentType := cred.ContentType
	if contentType == "" {
		contentType = f.contentType()
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp.StatusCode, &statusError{code: resp.StatusCode}
	}
	if f.Size == 0 && progress != nil {
		progress(Progress{})
	}
	return resp.StatusCode, nil
}
