// Package filestore keeps the content tables as JSON files on disk. It is
// meant for local development and tests.
package filestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bilgisen/shiurim/internal/apperr"
	"github.com/bilgisen/shiurim/internal/models"
	"github.com/bilgisen/shiurim/internal/store"
)

type Storage struct {
	basePath string
	mu       sync.RWMutex
	now      func() time.Time

	shiurim  *table[models.Shiur]
	pages    *table[models.Page]
	schedule *table[models.Schedule]
}

func NewStorage(basePath string) (*Storage, error) {
	// Create base directory if it doesn't exist
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	s := &Storage{basePath: basePath, now: time.Now}
	s.shiurim = &table[models.Shiur]{s: s, name: store.TableShiurim, stamps: []string{"created_at"}}
	s.pages = &table[models.Page]{s: s, name: store.TablePages, stamps: []string{"created_at", "updated_at"}}
	s.schedule = &table[models.Schedule]{s: s, name: store.TableSchedule}
	return s, nil
}

func (s *Storage) Shiurim() store.Table[models.Shiur]     { return s.shiurim }
func (s *Storage) Pages() store.Table[models.Page]        { return s.pages }
func (s *Storage) Schedule() store.Table[models.Schedule] { return s.schedule }
func (s *Storage) Close() error                           { return nil }

type row = map[string]any

// table stores its rows as a JSON array in <basePath>/<name>.json.
type table[T any] struct {
	s      *Storage
	name   string
	stamps []string // columns set to the current time on create
}

func (t *table[T]) path() string {
	return filepath.Join(t.s.basePath, t.name+".json")
}

func (t *table[T]) fail(op string, err error) error {
	return &apperr.StoreError{Op: t.name + "." + op, Message: err.Error(), Err: err}
}

func (t *table[T]) notFound(op, field, value string) error {
	return &apperr.StoreError{
		Op:      t.name + "." + op,
		Status:  404,
		Message: fmt.Sprintf("no row with %s %s", field, value),
		Err:     apperr.ErrNotFound,
	}
}

// checkSlug rejects r when another row, other than id, has its slug.
func (t *table[T]) checkSlug(op string, rows []row, r row, id string) error {
	slug, ok := r["slug"].(string)
	if !ok {
		return nil
	}
	for _, existing := range rows {
		if existing["slug"] == slug && existing["id"] != id {
			return &apperr.StoreError{
				Op:      t.name + "." + op,
				Status:  409,
				Message: fmt.Sprintf("duplicate slug %q", slug),
			}
		}
	}
	return nil
}

func (t *table[T]) load() ([]row, error) {
	data, err := os.ReadFile(t.path())
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", t.path(), err)
	}
	var rows []row
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("failed to unmarshal %s: %w", t.path(), err)
	}
	return rows, nil
}

func (t *table[T]) save(rows []row) error {
	data, err := json.MarshalIndent(rows, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", t.name, err)
	}
	tmp := t.path() + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", tmp, err)
	}
	return os.Rename(tmp, t.path())
}

// decode turns a stored row into T through its JSON form; column names and
// JSON names are the same.
func decode[T any](r row) (*T, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// normalize round-trips cols through JSON so stored values have the same
// shape as values read back from disk.
func normalize(cols store.Patch) (row, error) {
	data, err := json.Marshal(cols)
	if err != nil {
		return nil, err
	}
	var r row
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, err
	}
	return r, nil
}

func (t *table[T]) Create(ctx context.Context, cols store.Patch) (*T, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
		t.s.mu.Lock()
		defer t.s.mu.Unlock()

		r, err := normalize(cols)
		if err != nil {
			return nil, t.fail("create", err)
		}
		if id, _ := r["id"].(string); id == "" {
			r["id"] = uuid.NewString()
		}
		now := t.s.now().UTC().Format(time.RFC3339Nano)
		for _, col := range t.stamps {
			if _, ok := r[col]; !ok {
				r[col] = now
			}
		}

		rows, err := t.load()
		if err != nil {
			return nil, t.fail("create", err)
		}
		if err := t.checkSlug("create", rows, r, ""); err != nil {
			return nil, err
		}
		rows = append(rows, r)
		if err := t.save(rows); err != nil {
			return nil, t.fail("create", err)
		}

		v, err := decode[T](r)
		if err != nil {
			return nil, t.fail("create", err)
		}
		return v, nil
	}
}

func (t *table[T]) Update(ctx context.Context, id string, patch store.Patch) (*T, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
		t.s.mu.Lock()
		defer t.s.mu.Unlock()

		changes, err := normalize(patch)
		if err != nil {
			return nil, t.fail("update", err)
		}
		delete(changes, "id")

		rows, err := t.load()
		if err != nil {
			return nil, t.fail("update", err)
		}
		if err := t.checkSlug("update", rows, changes, id); err != nil {
			return nil, err
		}
		for _, r := range rows {
			if r["id"] != id {
				continue
			}
			for k, v := range changes {
				r[k] = v
			}
			if err := t.save(rows); err != nil {
				return nil, t.fail("update", err)
			}
			v, err := decode[T](r)
			if err != nil {
				return nil, t.fail("update", err)
			}
			return v, nil
		}
		return nil, t.notFound("update", "id", id)
	}
}

func (t *table[T]) Delete(ctx context.Context, id string) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		t.s.mu.Lock()
		defer t.s.mu.Unlock()

		rows, err := t.load()
		if err != nil {
			return t.fail("delete", err)
		}
		for i, r := range rows {
			if r["id"] == id {
				rows = append(rows[:i], rows[i+1:]...)
				if err := t.save(rows); err != nil {
					return t.fail("delete", err)
				}
				return nil
			}
		}
		return t.notFound("delete", "id", id)
	}
}

func (t *table[T]) List(ctx context.Context, opts store.ListOptions) ([]T, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
		t.s.mu.RLock()
		defer t.s.mu.RUnlock()

		rows, err := t.load()
		if err != nil {
			return nil, t.fail("list", err)
		}

		filtered := rows[:0:0]
		for _, r := range rows {
			if matches(r, opts.Eq) {
				filtered = append(filtered, r)
			}
		}

		if opts.OrderBy != "" {
			sort.SliceStable(filtered, func(i, j int) bool {
				c := compare(filtered[i][opts.OrderBy], filtered[j][opts.OrderBy])
				if opts.Descending {
					return c > 0
				}
				return c < 0
			})
		}
		if opts.Limit > 0 && len(filtered) > opts.Limit {
			filtered = filtered[:opts.Limit]
		}

		out := make([]T, 0, len(filtered))
		for _, r := range filtered {
			v, err := decode[T](r)
			if err != nil {
				return nil, t.fail("list", err)
			}
			out = append(out, *v)
		}
		return out, nil
	}
}

func (t *table[T]) GetBySlug(ctx context.Context, slug string) (*T, error) {
	rows, err := t.List(ctx, store.ListOptions{Eq: map[string]any{"slug": slug}, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, t.notFound("get", "slug", slug)
	}
	return &rows[0], nil
}

func matches(r row, eq map[string]any) bool {
	for k, want := range eq {
		if fmt.Sprint(r[k]) != fmt.Sprint(want) {
			return false
		}
	}
	return true
}

// compare orders JSON values; timestamps compare as times.
func compare(a, b any) int {
	switch x := a.(type) {
	case string:
		y, _ := b.(string)
		ta, errA := time.Parse(time.RFC3339Nano, x)
		tb, errB := time.Parse(time.RFC3339Nano, y)
		if errA == nil && errB == nil {
			return ta.Compare(tb)
		}
		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		}
		return 0
	case float64:
		y, _ := b.(float64)
		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		}
		return 0
	case bool:
		y, _ := b.(bool)
		switch {
		case x == y:
			return 0
		case !x:
			return -1
		}
		return 1
	case nil:
		if b == nil {
			return 0
		}
		return -1
	}
	return 0
}
