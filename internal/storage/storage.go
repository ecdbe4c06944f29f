// Package storage issues direct-upload credentials for the R2 bucket and
// answers existence checks for objects referenced by content records.
package storage

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"
	"github.com/google/uuid"

	"github.com/bilgisen/shiurim/internal/apperr"
	"github.com/bilgisen/shiurim/internal/config"
	"github.com/bilgisen/shiurim/internal/models"
	"github.com/bilgisen/shiurim/internal/utils"
)

const defaultContentType = "application/octet-stream"

// IssueRequest names the object a client wants to write.
type IssueRequest struct {
	Filename    string
	Category    string
	ContentType string
}

// Issuer mints upload credentials.
type Issuer interface {
	Issue(ctx context.Context, req IssueRequest) (*models.UploadCredential, error)
}

// Verifier checks that a public URL points at an existing object.
type Verifier interface {
	Exists(ctx context.Context, publicURL string) (bool, error)
}

// R2 signs requests against a Cloudflare R2 bucket through the S3 API.
type R2 struct {
	client     *s3.Client
	presigner  *s3.PresignClient
	bucket     string
	publicBase string
	expiry     time.Duration
	now        func() time.Time
}

// NewR2 builds an R2 client from cfg. It fails with apperr.ErrConfiguration
// when any storage setting is missing; there is no fallback bucket.
func NewR2(ctx context.Context, cfg *config.Config) (*R2, error) {
	if missing := cfg.MissingStorage(); len(missing) > 0 {
		return nil, apperr.Configuration("storage is not configured, missing %s", strings.Join(missing, ", "))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion("auto"),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.R2AccessKey,
			cfg.R2SecretKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(cfg.StorageEndpoint())
		o.UsePathStyle = true
	})

	expiry := cfg.UploadExpiry
	if expiry <= 0 {
		expiry = time.Hour
	}

	return &R2{
		client:     client,
		presigner:  s3.NewPresignClient(client),
		bucket:     cfg.R2Bucket,
		publicBase: strings.TrimRight(cfg.R2PublicURL, "/"),
		expiry:     expiry,
		now:        time.Now,
	}, nil
}

// Issue signs a PUT for a fresh key under req.Category. Nothing is written
// to the bucket.
func (r *R2) Issue(ctx context.Context, req IssueRequest) (*models.UploadCredential, error) {
	if strings.TrimSpace(req.Filename) == "" {
		return nil, apperr.Validation("filename is required")
	}
	if !models.ValidCategory(req.Category) {
		return nil, apperr.Validation("fileType must be %q or %q", models.CategoryAudio, models.CategoryImage)
	}

	contentType := req.ContentType
	if contentType == "" {
		contentType = defaultContentType
	}

	now := r.now()
	key := ObjectKey(req.Category, req.Filename, now)

	signed, err := r.presigner.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(r.bucket),
		Key:         aws.String(key),
		ContentType: aws.String(contentType),
	}, s3.WithPresignExpires(r.expiry))
	if err != nil {
		return nil, fmt.Errorf("presign %s: %w", key, err)
	}

	return &models.UploadCredential{
		Key:          key,
		PresignedURL: signed.URL,
		UploadURL:    signed.URL,
		PublicURL:    r.PublicURL(key),
		ContentType:  contentType,
		ExpiresAt:    now.Add(r.expiry),
	}, nil
}

// PublicURL joins the public base with key.
func (r *R2) PublicURL(key string) string {
	return r.publicBase + "/" + key
}

// Exists issues a HEAD for the object behind publicURL. URLs outside the
// public base are rejected as validation errors.
func (r *R2) Exists(ctx context.Context, publicURL string) (bool, error) {
	key, ok := strings.CutPrefix(publicURL, r.publicBase+"/")
	if !ok || key == "" {
		return false, apperr.Validation("%s is not served from the upload bucket", publicURL)
	}

	_, err := r.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(key),
	})
	if err == nil {
		return true, nil
	}
	if isNotFound(err) {
		return false, nil
	}
	return false, fmt.Errorf("head %s: %w", key, err)
}

// ObjectKey builds "<category>/<millis>-<uuid>-<filename>".
func ObjectKey(category, filename string, now time.Time) string {
	return fmt.Sprintf("%s/%d-%s-%s", category, now.UnixMilli(), uuid.NewString(), utils.SanitizeFilename(filename))
}

func isNotFound(err error) bool {
	var nf *types.NotFound
	if errors.As(err, &nf) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey":
			return true
		}
	}
	var respErr *smithyhttp.ResponseError
	return errors.As(err, &respErr) && respErr.HTTPStatusCode() == http.StatusNotFound
}
