// Package store defines the content store: three tables of single-row
// operations, without transactions, backed by one of several drivers.
package store

import (
	"context"

	"github.com/bilgisen/shiurim/internal/models"
)

// Table names shared by every driver.
const (
	TableShiurim  = "shiurim"
	TablePages    = "pages"
	TableSchedule = "discourse_schedule"
)

// Patch maps column names to new values.
type Patch map[string]any

// ListOptions narrows and orders a List call. Eq filters on exact column
// values.
type ListOptions struct {
	OrderBy    string
	Descending bool
	Eq         map[string]any
	Limit      int
}

// Table is one content table. Failures are *apperr.StoreError; a missing
// row also matches apperr.ErrNotFound. Calls are never retried.
type Table[T any] interface {
	Create(ctx context.Context, cols Patch) (*T, error)
	Update(ctx context.Context, id string, patch Patch) (*T, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, opts ListOptions) ([]T, error)
	GetBySlug(ctx context.Context, slug string) (*T, error)
}

// Store groups the tables of the site.
type Store interface {
	Shiurim() Table[models.Shiur]
	Pages() Table[models.Page]
	Schedule() Table[models.Schedule]
	Close() error
}

type accessTokenKey struct{}

// WithAccessToken attaches the admin's access token to ctx. Drivers that
// enforce row level security send it instead of the anonymous key.
func WithAccessToken(ctx context.Context, token string) context.Context {
	if token == "" {
		return ctx
	}
	return context.WithValue(ctx, accessTokenKey{}, token)
}

// AccessToken returns the token stored by WithAccessToken.
func AccessToken(ctx context.Context) (string, bool) {
	token, ok := ctx.Value(accessTokenKey{}).(string)
	return token, ok && token != ""
}
