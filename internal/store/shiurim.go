package store

import (
	"context"

	"github.com/bilgisen/shiurim/internal/models"
)

// Shiurim adapts a Store to the writer used by upload submissions.
type Shiurim struct {
	Store Store
}

func (s Shiurim) CreateShiur(ctx context.Context, shiur *models.Shiur) (*models.Shiur, error) {
	return s.Store.Shiurim().Create(ctx, shiur.Columns())
}

func (s Shiurim) UpdateShiur(ctx context.Context, id string, patch models.ShiurPatch) (*models.Shiur, error) {
	return s.Store.Shiurim().Update(ctx, id, patch.Columns())
}

// NewestFirst lists every shiur by created_at descending.
func NewestFirst(ctx context.Context, st Store) ([]models.Shiur, error) {
	return st.Shiurim().List(ctx, ListOptions{OrderBy: "created_at", Descending: true})
}

// NavPages lists the pages flagged for the navbar, newest first.
func NavPages(ctx context.Context, st Store) ([]models.NavLink, error) {
	pages, err := st.Pages().List(ctx, ListOptions{
		OrderBy:    "created_at",
		Descending: true,
		Eq:         map[string]any{"show_in_nav": true},
	})
	if err != nil {
		return nil, err
	}
	links := make([]models.NavLink, 0, len(pages))
	for _, p := range pages {
		links = append(links, models.NavLink{ID: p.ID, Slug: p.Slug, Title: p.Title})
	}
	return links, nil
}

// CurrentSchedule returns the first schedule row, or nil when there is none.
func CurrentSchedule(ctx context.Context, st Store) (*models.Schedule, error) {
	rows, err := st.Schedule().List(ctx, ListOptions{Limit: 1})
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return &rows[0], nil
}

// SaveSchedule updates the first schedule row, creating it when missing.
func SaveSchedule(ctx context.Context, st Store, s *models.Schedule) (*models.Schedule, error) {
	current, err := CurrentSchedule(ctx, st)
	if err != nil {
		return nil, err
	}
	cols := s.Columns()
	delete(cols, "id")
	if current == nil {
		return st.Schedule().Create(ctx, cols)
	}
	return st.Schedule().Update(ctx, current.ID, cols)
}
