package filestore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bilgisen/shiurim/internal/apperr"
	"github.com/bilgisen/shiurim/internal/models"
	"github.com/bilgisen/shiurim/internal/store"
)

func newTestStorage(t *testing.T) *Storage {
	t.Helper()
	s, err := NewStorage(t.TempDir())
	if err != nil {
		t.Fatalf("NewStorage: %v", err)
	}
	return s
}

func TestShiurLifecycle(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)

	created, err := s.Shiurim().Create(ctx, (&models.Shiur{
		Slug:       "emunah",
		Title:      "Emunah",
		Tags:       []string{"a", "b"},
		AudioURL:   "https://media.example.com/audio/1-x.mp3",
		Timestamps: []models.TimestampTopic{{Topic: "Intro", Time: "00:30"}},
	}).Columns())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if created.ID == "" || created.CreatedAt.IsZero() {
		t.Fatalf("store must assign id and created_at, got %+v", created)
	}

	got, err := s.Shiurim().GetBySlug(ctx, "emunah")
	if err != nil {
		t.Fatalf("GetBySlug: %v", err)
	}
	if got.ID != created.ID || len(got.Tags) != 2 || got.Timestamps[0].Topic != "Intro" {
		t.Errorf("unexpected row %+v", got)
	}

	image := "https://media.example.com/image/1-x.jpg"
	updated, err := s.Shiurim().Update(ctx, created.ID, models.ShiurPatch{ImageURL: &image}.Columns())
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.ImageURL == nil || *updated.ImageURL != image || updated.Title != "Emunah" {
		t.Errorf("partial update lost fields: %+v", updated)
	}

	if err := s.Shiurim().Delete(ctx, created.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Shiurim().GetBySlug(ctx, "emunah"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("expected not found after delete, got %v", err)
	}
}

func TestMissingRows(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)

	_, err := s.Pages().Update(ctx, "nope", store.Patch{"title": "x"})
	var serr *apperr.StoreError
	if !errors.As(err, &serr) || !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected StoreError not found, got %v", err)
	}
	if err := s.Pages().Delete(ctx, "nope"); !errors.Is(err, apperr.ErrStore) {
		t.Errorf("expected store error, got %v", err)
	}
}

func TestDuplicateSlug(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)

	cols := store.Patch{"slug": "about", "title": "About", "content": "x"}
	if _, err := s.Pages().Create(ctx, cols); err != nil {
		t.Fatal(err)
	}
	_, err := s.Pages().Create(ctx, cols)
	var serr *apperr.StoreError
	if !errors.As(err, &serr) || serr.Status != 409 {
		t.Fatalf("expected 409 store error, got %v", err)
	}
}

func TestUpdateToTakenSlug(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)

	if _, err := s.Pages().Create(ctx, store.Patch{"slug": "about", "title": "About", "content": "x"}); err != nil {
		t.Fatal(err)
	}
	donate, err := s.Pages().Create(ctx, store.Patch{"slug": "donate", "title": "Donate", "content": "y"})
	if err != nil {
		t.Fatal(err)
	}

	_, err = s.Pages().Update(ctx, donate.ID, store.Patch{"slug": "about"})
	var serr *apperr.StoreError
	if !errors.As(err, &serr) || serr.Status != 409 {
		t.Fatalf("expected 409 store error, got %v", err)
	}

	// keeping its own slug is fine
	if _, err := s.Pages().Update(ctx, donate.ID, store.Patch{"slug": "donate", "title": "Give"}); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestListOrderAndFilter(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)

	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	for i, slug := range []string{"first", "second", "third"} {
		page := &models.Page{
			Slug:      slug,
			Title:     slug,
			Content:   "c",
			ShowInNav: slug != "second",
			CreatedAt: base.Add(time.Duration(i) * time.Hour),
		}
		if _, err := s.Pages().Create(ctx, page.Columns()); err != nil {
			t.Fatal(err)
		}
	}

	links, err := store.NavPages(ctx, s)
	if err != nil {
		t.Fatal(err)
	}
	if len(links) != 2 || links[0].Slug != "third" || links[1].Slug != "first" {
		t.Errorf("unexpected nav links %+v", links)
	}

	limited, err := s.Pages().List(ctx, store.ListOptions{OrderBy: "created_at", Limit: 1})
	if err != nil {
		t.Fatal(err)
	}
	if len(limited) != 1 || limited[0].Slug != "first" {
		t.Errorf("unexpected limited list %+v", limited)
	}
}

func TestSaveSchedule(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)

	if cur, err := store.CurrentSchedule(ctx, s); err != nil || cur != nil {
		t.Fatalf("empty table should have no schedule, got %+v %v", cur, err)
	}

	first, err := store.SaveSchedule(ctx, s, &models.Schedule{Weekday: "Tuesday", Time: "8:00 PM"})
	if err != nil {
		t.Fatal(err)
	}
	second, err := store.SaveSchedule(ctx, s, &models.Schedule{Weekday: "Wednesday", Time: "8:00 PM"})
	if err != nil {
		t.Fatal(err)
	}
	if first.ID != second.ID || second.Weekday != "Wednesday" {
		t.Errorf("schedule should be updated in place: %+v then %+v", first, second)
	}
	rows, _ := s.Schedule().List(ctx, store.ListOptions{})
	if len(rows) != 1 {
		t.Errorf("expected a single schedule row, got %d", len(rows))
	}
}

func TestCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := newTestStorage(t)
	if _, err := s.Shiurim().List(ctx, store.ListOptions{}); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
