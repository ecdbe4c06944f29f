package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bilgisen/shiurim/internal/apperr"
	"github.com/bilgisen/shiurim/internal/models"
	"github.com/bilgisen/shiurim/internal/upload"
)

var (
	_ upload.CredentialSource = (*Client)(nil)
	_ upload.ShiurWriter      = (*Client)(nil)
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/admin/login", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		data, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(data, &body)
		if body["password"] != "secret" {
			writeJSON(w, http.StatusUnauthorized, ErrorBody{Error: "invalid login credentials"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"access_token": "tok", "email": body["email"]})
	})
	mux.HandleFunc("GET /api/upload", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			writeJSON(w, http.StatusUnauthorized, ErrorBody{Error: "unauthorized"})
			return
		}
		q := r.URL.Query()
		switch {
		case q.Get("filename") == "":
			writeJSON(w, http.StatusBadRequest, ErrorBody{Error: "filename is required"})
		case q.Get("filename") == "misconfigured.mp3":
			writeJSON(w, http.StatusInternalServerError, ErrorBody{Error: "storage is not configured", Code: "configuration"})
		default:
			key := q.Get("fileType") + "/1-" + q.Get("filename")
			writeJSON(w, http.StatusOK, models.UploadCredential{
				Key:          key,
				PresignedURL: "https://r2.example.com/" + key + "?sig",
				UploadURL:    "https://r2.example.com/" + key + "?sig",
				PublicURL:    "https://media.example.com/" + key,
				ContentType:  q.Get("contentType"),
				ExpiresAt:    time.Now().Add(time.Hour),
			})
		}
	})
	mux.HandleFunc("POST /api/admin/shiurim", func(w http.ResponseWriter, r *http.Request) {
		var s models.Shiur
		data, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(data, &s)
		s.ID = "new-id"
		writeJSON(w, http.StatusCreated, s)
	})
	mux.HandleFunc("PATCH /api/admin/shiurim/{id}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") != "abc" {
			writeJSON(w, http.StatusNotFound, ErrorBody{Error: "shiur not found"})
			return
		}
		writeJSON(w, http.StatusOK, models.Shiur{ID: "abc", Title: "Renamed"})
	})
	mux.HandleFunc("GET /api/shiurim", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusBadGateway, ErrorBody{Error: "store unavailable"})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestLoginAndRequestCredential(t *testing.T) {
	ctx := context.Background()
	c := New(newServer(t).URL, time.Second)

	if _, err := c.RequestCredential(ctx, "a.mp3", models.CategoryAudio, ""); !errors.Is(err, apperr.ErrUnauthorized) {
		t.Fatalf("expected unauthorized before login, got %v", err)
	}
	if _, err := c.Login(ctx, "rabbi@example.com", "wrong"); !errors.Is(err, apperr.ErrUnauthorized) {
		t.Fatalf("expected unauthorized for bad password, got %v", err)
	}
	if _, err := c.Login(ctx, "rabbi@example.com", "secret"); err != nil {
		t.Fatalf("Login: %v", err)
	}

	cred, err := c.RequestCredential(ctx, "a.mp3", models.CategoryAudio, "audio/mpeg")
	if err != nil {
		t.Fatalf("RequestCredential: %v", err)
	}
	if cred.Key != "audio/1-a.mp3" || cred.PublicURL != "https://media.example.com/audio/1-a.mp3" || cred.ContentType != "audio/mpeg" {
		t.Errorf("unexpected credential %+v", cred)
	}
}

func TestErrorKinds(t *testing.T) {
	ctx := context.Background()
	c := New(newServer(t).URL, time.Second)
	c.SetToken("tok")

	if _, err := c.RequestCredential(ctx, "", models.CategoryAudio, ""); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("400 should be a validation error, got %v", err)
	}
	if _, err := c.RequestCredential(ctx, "misconfigured.mp3", models.CategoryAudio, ""); !errors.Is(err, apperr.ErrConfiguration) {
		t.Errorf("configuration code should map to ErrConfiguration, got %v", err)
	}
	if _, err := c.UpdateShiur(ctx, "missing", models.ShiurPatch{}); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("404 should be not found, got %v", err)
	}

	_, err := c.Shiurim(ctx, "")
	var serr *apperr.StoreError
	if !errors.As(err, &serr) || serr.Status != http.StatusBadGateway || serr.Message != "store unavailable" {
		t.Errorf("502 should carry the store message, got %v", err)
	}
}

func TestCreateAndUpdateShiur(t *testing.T) {
	ctx := context.Background()
	c := New(newServer(t).URL, time.Second)
	c.SetToken("tok")

	created, err := c.CreateShiur(ctx, &models.Shiur{Title: "T", AudioURL: "https://media.example.com/audio/1-a.mp3"})
	if err != nil {
		t.Fatalf("CreateShiur: %v", err)
	}
	if created.ID != "new-id" || created.AudioURL == "" {
		t.Errorf("unexpected record %+v", created)
	}

	title := "Renamed"
	updated, err := c.UpdateShiur(ctx, "abc", models.ShiurPatch{Title: &title})
	if err != nil {
		t.Fatalf("UpdateShiur: %v", err)
	}
	if updated.Title != "Renamed" {
		t.Errorf("unexpected record %+v", updated)
	}
}
