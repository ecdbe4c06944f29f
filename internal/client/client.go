// Package client talks to the shiurim server on behalf of the admin CLI:
// it signs in, requests upload credentials and writes shiur records.
package client

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/bilgisen/shiurim/internal/apperr"
	"github.com/bilgisen/shiurim/internal/models"
	"github.com/bilgisen/shiurim/internal/session"
)

// Client is safe for concurrent use.
type Client struct {
	http *resty.Client

	mu    sync.RWMutex
	token string
}

func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		http: resty.New().
			SetBaseURL(strings.TrimRight(baseURL, "/")).
			SetTimeout(timeout).
			SetHeader("Accept", "application/json"),
	}
}

// ErrorBody is the JSON error the server answers with.
type ErrorBody struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// SetToken uses an existing access token instead of Login.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

func (c *Client) request(ctx context.Context) *resty.Request {
	c.mu.RLock()
	token := c.token
	c.mu.RUnlock()

	var failure ErrorBody
	r := c.http.R().SetContext(ctx).SetError(&failure)
	if token != "" {
		r.SetAuthToken(token)
	}
	return r
}

// check turns a failed call into one of the apperr kinds.
func check(op string, resp *resty.Response, err error) error {
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if !resp.IsError() {
		return nil
	}

	msg := http.StatusText(resp.StatusCode())
	code := ""
	if body, ok := resp.Error().(*ErrorBody); ok && body.Error != "" {
		msg, code = body.Error, body.Code
	}

	var kind error
	switch {
	case code == "configuration":
		kind = apperr.ErrConfiguration
	case resp.StatusCode() == http.StatusBadRequest:
		kind = apperr.ErrValidation
	case resp.StatusCode() == http.StatusUnauthorized:
		kind = apperr.ErrUnauthorized
	case resp.StatusCode() == http.StatusNotFound:
		kind = apperr.ErrNotFound
	case resp.StatusCode() == http.StatusRequestEntityTooLarge:
		kind = apperr.ErrPayloadTooLarge
	default:
		return &apperr.StoreError{Op: op, Status: resp.StatusCode(), Message: msg}
	}
	return fmt.Errorf("%s: %w: %s", op, kind, msg)
}

// Login signs in and keeps the access token for later calls.
func (c *Client) Login(ctx context.Context, email, password string) (*session.Session, error) {
	var sess session.Session
	resp, err := c.request(ctx).
		SetBody(map[string]string{"email": email, "password": password}).
		SetResult(&sess).
		Post("/api/admin/login")
	if err := check("login", resp, err); err != nil {
		return nil, err
	}
	c.SetToken(sess.AccessToken)
	return &sess, nil
}

// Logout ends the current session.
func (c *Client) Logout(ctx context.Context) error {
	resp, err := c.request(ctx).Post("/api/admin/logout")
	if err := check("logout", resp, err); err != nil {
		return err
	}
	c.SetToken("")
	return nil
}

// RequestCredential asks the server for a presigned PUT.
func (c *Client) RequestCredential(ctx context.Context, filename, category, contentType string) (*models.UploadCredential, error) {
	var cred models.UploadCredential
	req := c.request(ctx).
		SetQueryParam("filename", filename).
		SetQueryParam("fileType", category).
		SetResult(&cred)
	if contentType != "" {
		req.SetQueryParam("contentType", contentType)
	}
	resp, err := req.Get("/api/upload")
	if err := check("request credential", resp, err); err != nil {
		return nil, err
	}
	if cred.URL() == "" || cred.PublicURL == "" {
		return nil, fmt.Errorf("request credential: incomplete response from server")
	}
	return &cred, nil
}

func (c *Client) CreateShiur(ctx context.Context, s *models.Shiur) (*models.Shiur, error) {
	var created models.Shiur
	resp, err := c.request(ctx).
		SetBody(s).
		SetResult(&created).
		Post("/api/admin/shiurim")
	if err := check("create shiur", resp, err); err != nil {
		return nil, err
	}
	return &created, nil
}

func (c *Client) UpdateShiur(ctx context.Context, id string, patch models.ShiurPatch) (*models.Shiur, error) {
	var updated models.Shiur
	resp, err := c.request(ctx).
		SetPathParam("id", id).
		SetBody(patch).
		SetResult(&updated).
		Patch("/api/admin/shiurim/{id}")
	if err := check("update shiur", resp, err); err != nil {
		return nil, err
	}
	return &updated, nil
}

// Shiurim lists the public catalog, optionally filtered by a search query.
func (c *Client) Shiurim(ctx context.Context, query string) ([]models.Shiur, error) {
	var list []models.Shiur
	req := c.request(ctx).SetResult(&list)
	if query != "" {
		req.SetQueryParam("q", query)
	}
	resp, err := req.Get("/api/shiurim")
	if err := check("list shiurim", resp, err); err != nil {
		return nil, err
	}
	return list, nil
}
