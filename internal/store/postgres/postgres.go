// Package postgres implements the content store directly on a Postgres
// database with pgx. The schema ships as embedded migrations.
package postgres

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bilgisen/shiurim/internal/apperr"
	"github.com/bilgisen/shiurim/internal/logger"
	"github.com/bilgisen/shiurim/internal/models"
	"github.com/bilgisen/shiurim/internal/store"
)

//go:embed migrations
var migrationsFS embed.FS

// Migrate runs all pending up migrations embedded in the binary.
func Migrate(databaseURL string) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("load migration source: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", src, databaseURL)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}

	logger.Get().Info().Msg("Database migrations applied")
	return nil
}

// Store is backed by a pgx pool.
type Store struct {
	pool *pgxpool.Pool

	shiurim  *table[models.Shiur]
	pages    *table[models.Page]
	schedule *table[models.Schedule]
}

// Connect creates and validates a pgx connection pool.
func Connect(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return New(pool), nil
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{
		pool: pool,
		shiurim: &table[models.Shiur]{pool: pool, name: store.TableShiurim, columns: []string{
			"slug", "title", "description", "tags", "image_url", "audio_url",
			"timestamps", "allow_download", "transcript", "created_at",
		}},
		pages: &table[models.Page]{pool: pool, name: store.TablePages, columns: []string{
			"slug", "title", "content", "image_url", "button_text", "button_link",
			"show_in_nav", "created_at", "updated_at",
		}},
		schedule: &table[models.Schedule]{pool: pool, name: store.TableSchedule, columns: []string{
			"weekday", "time", "location",
		}},
	}
}

func (s *Store) Shiurim() store.Table[models.Shiur]     { return s.shiurim }
func (s *Store) Pages() store.Table[models.Page]        { return s.pages }
func (s *Store) Schedule() store.Table[models.Schedule] { return s.schedule }

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

type table[T any] struct {
	pool    *pgxpool.Pool
	name    string
	columns []string // every column but id
}

// returning selects id as text so it scans into a string.
func (t *table[T]) returning() string {
	cols := make([]string, 0, len(t.columns)+1)
	cols = append(cols, `"id"::text AS "id"`)
	for _, c := range t.columns {
		cols = append(cols, pgx.Identifier{c}.Sanitize())
	}
	return strings.Join(cols, ", ")
}

func (t *table[T]) known(col string) bool {
	if col == "id" {
		return true
	}
	for _, c := range t.columns {
		if c == col {
			return true
		}
	}
	return false
}

// sortedColumns returns the keys of p in a stable order, rejecting columns
// the table does not have.
func (t *table[T]) sortedColumns(op string, p map[string]any) ([]string, error) {
	keys := make([]string, 0, len(p))
	for k := range p {
		if !t.known(k) {
			return nil, &apperr.StoreError{Op: t.name + "." + op, Status: 400, Message: fmt.Sprintf("unknown column %q", k)}
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

func (t *table[T]) fail(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		status := 500
		switch pgErr.Code {
		case "23505":
			status = 409
		case "23502", "23514", "22P02":
			status = 400
		}
		return &apperr.StoreError{Op: t.name + "." + op, Status: status, Message: pgErr.Message, Err: err}
	}
	return &apperr.StoreError{Op: t.name + "." + op, Err: err}
}

func (t *table[T]) notFound(op, field, value string) error {
	return &apperr.StoreError{
		Op:      t.name + "." + op,
		Status:  404,
		Message: fmt.Sprintf("no row with %s %s", field, value),
		Err:     apperr.ErrNotFound,
	}
}

// isBadUUID reports an id that cannot be a row id.
func isBadUUID(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "22P02"
}

func (t *table[T]) Create(ctx context.Context, cols store.Patch) (*T, error) {
	keys, err := t.sortedColumns("create", cols)
	if err != nil {
		return nil, err
	}

	names := make([]string, len(keys))
	params := make([]string, len(keys))
	args := make([]any, len(keys))
	for i, k := range keys {
		names[i] = pgx.Identifier{k}.Sanitize()
		params[i] = fmt.Sprintf("$%d", i+1)
		args[i] = cols[k]
		if k == "id" {
			params[i] += "::uuid"
		}
	}

	var sql string
	if len(keys) == 0 {
		sql = fmt.Sprintf("INSERT INTO %s DEFAULT VALUES RETURNING %s", pgx.Identifier{t.name}.Sanitize(), t.returning())
	} else {
		sql = fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING %s",
			pgx.Identifier{t.name}.Sanitize(), strings.Join(names, ", "), strings.Join(params, ", "), t.returning())
	}

	rows, err := t.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, t.fail("create", err)
	}
	v, err := pgx.CollectExactlyOneRow(rows, pgx.RowToAddrOfStructByName[T])
	if err != nil {
		return nil, t.fail("create", err)
	}
	return v, nil
}

func (t *table[T]) Update(ctx context.Context, id string, patch store.Patch) (*T, error) {
	delete(patch, "id")
	keys, err := t.sortedColumns("update", patch)
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return nil, &apperr.StoreError{Op: t.name + ".update", Status: 400, Message: "nothing to update"}
	}

	sets := make([]string, len(keys))
	args := make([]any, 0, len(keys)+1)
	for i, k := range keys {
		sets[i] = fmt.Sprintf("%s = $%d", pgx.Identifier{k}.Sanitize(), i+1)
		args = append(args, patch[k])
	}
	args = append(args, id)

	sql := fmt.Sprintf("UPDATE %s SET %s WHERE id = $%d::uuid RETURNING %s",
		pgx.Identifier{t.name}.Sanitize(), strings.Join(sets, ", "), len(args), t.returning())

	rows, err := t.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, t.fail("update", err)
	}
	v, err := pgx.CollectExactlyOneRow(rows, pgx.RowToAddrOfStructByName[T])
	if errors.Is(err, pgx.ErrNoRows) || isBadUUID(err) {
		return nil, t.notFound("update", "id", id)
	}
	if err != nil {
		return nil, t.fail("update", err)
	}
	return v, nil
}

func (t *table[T]) Delete(ctx context.Context, id string) error {
	tag, err := t.pool.Exec(ctx,
		fmt.Sprintf("DELETE FROM %s WHERE id = $1::uuid", pgx.Identifier{t.name}.Sanitize()), id)
	if isBadUUID(err) {
		return t.notFound("delete", "id", id)
	}
	if err != nil {
		return t.fail("delete", err)
	}
	if tag.RowsAffected() == 0 {
		return t.notFound("delete", "id", id)
	}
	return nil
}

var orderColumn = regexp.MustCompile(`^[a-z_]+$`)

func (t *table[T]) List(ctx context.Context, opts store.ListOptions) ([]T, error) {
	sql, args, err := t.listSQL(opts)
	if err != nil {
		return nil, err
	}
	rows, err := t.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, t.fail("list", err)
	}
	out, err := pgx.CollectRows(rows, pgx.RowToStructByName[T])
	if err != nil {
		return nil, t.fail("list", err)
	}
	return out, nil
}

func (t *table[T]) listSQL(opts store.ListOptions) (string, []any, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s FROM %s", t.returning(), pgx.Identifier{t.name}.Sanitize())

	keys, err := t.sortedColumns("list", opts.Eq)
	if err != nil {
		return "", nil, err
	}
	args := make([]any, 0, len(keys))
	for i, k := range keys {
		if i == 0 {
			b.WriteString(" WHERE ")
		} else {
			b.WriteString(" AND ")
		}
		args = append(args, opts.Eq[k])
		fmt.Fprintf(&b, "%s = $%d", pgx.Identifier{k}.Sanitize(), len(args))
	}

	if opts.OrderBy != "" {
		if !orderColumn.MatchString(opts.OrderBy) || !t.known(opts.OrderBy) {
			return "", nil, &apperr.StoreError{Op: t.name + ".list", Status: 400, Message: fmt.Sprintf("cannot order by %q", opts.OrderBy)}
		}
		fmt.Fprintf(&b, " ORDER BY %s", pgx.Identifier{opts.OrderBy}.Sanitize())
		if opts.Descending {
			b.WriteString(" DESC")
		}
	}
	if opts.Limit > 0 {
		fmt.Fprintf(&b, " LIMIT %d", opts.Limit)
	}
	return b.String(), args, nil
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
