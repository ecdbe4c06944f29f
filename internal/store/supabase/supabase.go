// Package supabase implements the content store over Supabase's PostgREST
// API. Writes carry the admin's access token so row level security applies.
package supabase

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/bilgisen/shiurim/internal/apperr"
	"github.com/bilgisen/shiurim/internal/models"
	"github.com/bilgisen/shiurim/internal/store"
)

type Client struct {
	client  *resty.Client
	anonKey string
}

// New returns a store talking to baseURL/rest/v1. Store calls are never
// retried.
func New(baseURL, anonKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		client: resty.New().
			SetBaseURL(strings.TrimRight(baseURL, "/")+"/rest/v1").
			SetTimeout(timeout).
			SetHeader("apikey", anonKey).
			SetHeader("Accept", "application/json"),
		anonKey: anonKey,
	}
}

func (c *Client) Shiurim() store.Table[models.Shiur] {
	return &table[models.Shiur]{c: c, name: store.TableShiurim}
}

func (c *Client) Pages() store.Table[models.Page] {
	return &table[models.Page]{c: c, name: store.TablePages}
}

func (c *Client) Schedule() store.Table[models.Schedule] {
	return &table[models.Schedule]{c: c, name: store.TableSchedule}
}

func (c *Client) Close() error { return nil }

// request starts a call authorized by the admin token in ctx, or by the
// anonymous key for public reads.
func (c *Client) request(ctx context.Context) *resty.Request {
	token, ok := store.AccessToken(ctx)
	if !ok {
		token = c.anonKey
	}
	return c.client.R().
		SetContext(ctx).
		SetAuthToken(token)
}

type table[T any] struct {
	c    *Client
	name string
}

// postgrestError is the error body PostgREST returns.
type postgrestError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details"`
	Hint    string `json:"hint"`
}

func (t *table[T]) fail(op string, resp *resty.Response, err error) error {
	if err != nil {
		return &apperr.StoreError{Op: t.name + "." + op, Err: err}
	}
	var body postgrestError
	msg := strings.TrimSpace(resp.String())
	if json.Unmarshal(resp.Body(), &body) == nil && body.Message != "" {
		msg = body.Message
		if body.Details != "" {
			msg += ": " + body.Details
		}
	}
	return &apperr.StoreError{Op: t.name + "." + op, Status: resp.StatusCode(), Message: msg}
}

func (t *table[T]) notFound(op, field, value string) error {
	return &apperr.StoreError{
		Op:      t.name + "." + op,
		Status:  http.StatusNotFound,
		Message: fmt.Sprintf("no row with %s %s", field, value),
		Err:     apperr.ErrNotFound,
	}
}

// rows decodes a representation array.
func (t *table[T]) rows(op string, resp *resty.Response) ([]T, error) {
	var out []T
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return nil, &apperr.StoreError{Op: t.name + "." + op, Status: resp.StatusCode(), Err: fmt.Errorf("decode response: %w", err)}
	}
	return out, nil
}

func (t *table[T]) Create(ctx context.Context, cols store.Patch) (*T, error) {
	resp, err := t.c.request(ctx).
		SetHeader("Prefer", "return=representation").
		SetBody(cols).
		Post("/" + t.name)
	if err != nil || resp.IsError() {
		return nil, t.fail("create", resp, err)
	}
	rows, err := t.rows("create", resp)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, &apperr.StoreError{Op: t.name + ".create", Status: resp.StatusCode(), Message: "insert returned no row"}
	}
	return &rows[0], nil
}

func (t *table[T]) Update(ctx context.Context, id string, patch store.Patch) (*T, error) {
	resp, err := t.c.request(ctx).
		SetHeader("Prefer", "return=representation").
		SetQueryParam("id", "eq."+id).
		SetBody(patch).
		Patch("/" + t.name)
	if err != nil || resp.IsError() {
		return nil, t.fail("update", resp, err)
	}
	rows, err := t.rows("update", resp)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, t.notFound("update", "id", id)
	}
	return &rows[0], nil
}

func (t *table[T]) Delete(ctx context.Context, id string) error {
	resp, err := t.c.request(ctx).
		SetHeader("Prefer", "return=representation").
		SetQueryParam("id", "eq."+id).
		Delete("/" + t.name)
	if err != nil || resp.IsError() {
		return t.fail("delete", resp, err)
	}
	rows, err := t.rows("delete", resp)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return t.notFound("delete", "id", id)
	}
	return nil
}

func (t *table[T]) List(ctx context.Context, opts store.ListOptions) ([]T, error) {
	resp, err := t.c.request(ctx).
		SetQueryParamsFromValues(listQuery(opts)).
		Get("/" + t.name)
	if err != nil || resp.IsError() {
		return nil, t.fail("list", resp, err)
	}
	return t.rows("list", resp)
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

// listQuery renders opts in PostgREST query syntax.
func listQuery(opts store.ListOptions) url.Values {
	q := url.Values{}
	q.Set("select", "*")
	for col, v := range opts.Eq {
		q.Set(col, fmt.Sprintf("eq.%v", v))
	}
	if opts.OrderBy != "" {
		dir := "asc"
		if opts.Descending {
			dir = "desc"
		}
		q.Set("order", opts.OrderBy+"."+dir)
	}
	if opts.Limit > 0 {
		q.Set("limit", fmt.Sprint(opts.Limit))
	}
	return q
}
