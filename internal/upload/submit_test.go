package upload

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bilgisen/shiurim/internal/apperr"
	"github.com/bilgisen/shiurim/internal/models"
)

// fakeUploader fails the categories listed in fail.
type fakeUploader struct {
	fail    map[string]error
	uploads []string
	checker *Coordinator
}

func (f *fakeUploader) Check(file *File, category string) error {
	return f.checker.Check(file, category)
}

func (f *fakeUploader) Upload(ctx context.Context, file *File, category string, progress ProgressFunc) (string, error) {
	f.uploads = append(f.uploads, category)
	if err := f.fail[category]; err != nil {
		return "", err
	}
	return "https://media.example.com/" + category + "/" + file.Name, nil
}

// memoryWriter keeps created shiurim in memory.
type memoryWriter struct {
	mu      sync.Mutex
	created []*models.Shiur
	patches map[string]models.ShiurPatch
	err     error
}

func (m *memoryWriter) CreateShiur(ctx context.Context, s *models.Shiur) (*models.Shiur, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	cp := *s
	cp.ID = "id-1"
	m.created = append(m.created, &cp)
	return &cp, nil
}

func (m *memoryWriter) UpdateShiur(ctx context.Context, id string, patch models.ShiurPatch) (*models.Shiur, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.patches == nil {
		m.patches = map[string]models.ShiurPatch{}
	}
	m.patches[id] = patch
	return &models.Shiur{ID: id}, nil
}

func newFakeUploader(fail map[string]error) *fakeUploader {
	return &fakeUploader{fail: fail, checker: NewCoordinator(nil, Options{})}
}

func audioFile() *File { return NewFile("shiur.mp3", "audio/mpeg", []byte("ID3 audio")) }
func imageFile() *File { return NewFile("cover.jpg", "image/jpeg", []byte("jpeg")) }

func TestCreateContinuesWithoutImage(t *testing.T) {
	up := newFakeUploader(map[string]error{models.CategoryImage: &apperr.TransferError{StatusCode: 500, Attempts: 3}})
	w := &memoryWriter{}
	s := NewSubmitter(up, w)

	res, err := s.Create(context.Background(), ShiurForm{
		Title: "Emunah and Bitachon",
		Tags:  "a, b, c",
		Audio: audioFile(),
		Image: imageFile(),
	})
	if err != nil {
		t.Fatalf("image failure must not abort the submission: %v", err)
	}
	if len(w.created) != 1 {
		t.Fatalf("expected one record, got %d", len(w.created))
	}
	if w.created[0].ImageURL != nil {
		t.Errorf("image_url should be empty, got %v", *w.created[0].ImageURL)
	}
	if len(res.Warnings) != 1 || !strings.Contains(res.Warnings[0], "image upload failed") {
		t.Errorf("expected one image warning, got %v", res.Warnings)
	}
	if res.Shiur.AudioURL != "https://media.example.com/audio/shiur.mp3" {
		t.Errorf("unexpected audio_url %q", res.Shiur.AudioURL)
	}
}

func TestCreateFailsOnAudioFailure(t *testing.T) {
	up := newFakeUploader(map[string]error{models.CategoryAudio: &apperr.TransferError{StatusCode: 503, Attempts: 3}})
	w := &memoryWriter{}
	s := NewSubmitter(up, w)

	_, err := s.Create(context.Background(), ShiurForm{Title: "T", Audio: audioFile(), Image: imageFile()})
	if !errors.Is(err, apperr.ErrTransfer) {
		t.Fatalf("expected transfer error, got %v", err)
	}
	if len(w.created) != 0 {
		t.Error("no record may be created when the audio upload fails")
	}
}

func TestCreateWithoutAudioFailsBeforeNetwork(t *testing.T) {
	up := newFakeUploader(nil)
	w := &memoryWriter{}
	s := NewSubmitter(up, w)

	_, err := s.Create(context.Background(), ShiurForm{Title: "T", Image: imageFile()})
	if !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if len(up.uploads) != 0 {
		t.Errorf("no upload may start, got %v", up.uploads)
	}
}

func TestCreateRequiresTitle(t *testing.T) {
	up := newFakeUploader(nil)
	s := NewSubmitter(up, &memoryWriter{})

	_, err := s.Create(context.Background(), ShiurForm{Title: "   ", Audio: audioFile()})
	if !errors.Is(err, apperr.ErrValidation) || !strings.Contains(err.Error(), "title is required") {
		t.Fatalf("expected title validation error, got %v", err)
	}
	if len(up.uploads) != 0 {
		t.Error("no upload may start")
	}
}

func TestCreateRejectsOversizedAudioBeforeImageUpload(t *testing.T) {
	up := newFakeUploader(nil)
	s := NewSubmitter(up, &memoryWriter{})

	huge := &File{Name: "long.wav", Size: 600 << 20}
	_, err := s.Create(context.Background(), ShiurForm{Title: "T", Audio: huge, Image: imageFile()})
	if !errors.Is(err, apperr.ErrPayloadTooLarge) {
		t.Fatalf("expected PayloadTooLarge, got %v", err)
	}
	if len(up.uploads) != 0 {
		t.Errorf("nothing may be uploaded, got %v", up.uploads)
	}
}

func TestCreateStoresParsedFields(t *testing.T) {
	up := newFakeUploader(nil)
	w := &memoryWriter{}
	s := NewSubmitter(up, w)

	_, err := s.Create(context.Background(), ShiurForm{
		Title:         "Hilchos Shabbos: Part 1",
		Tags:          "a, b, c",
		Timestamps:    []models.TimestampTopic{{Topic: "Intro", Time: "00:00:30"}},
		AllowDownload: true,
		Audio:         audioFile(),
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	got := w.created[0]
	if got.Slug != "hilchos-shabbos-part-1" {
		t.Errorf("unexpected slug %q", got.Slug)
	}
	if strings.Join(got.Tags, "|") != "a|b|c" {
		t.Errorf("tags should be [a b c], got %q", got.Tags)
	}
	if !got.AllowDownload || len(got.Timestamps) != 1 {
		t.Errorf("unexpected record %+v", got)
	}
}

func TestCreateRejectsBadTimestamp(t *testing.T) {
	up := newFakeUploader(nil)
	s := NewSubmitter(up, &memoryWriter{})

	_, err := s.Create(context.Background(), ShiurForm{
		Title:      "T",
		Audio:      audioFile(),
		Timestamps: []models.TimestampTopic{{Topic: "Intro", Time: "later"}},
	})
	if !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestUpdateKeepsImageOnFailure(t *testing.T) {
	up := newFakeUploader(map[string]error{models.CategoryImage: errors.New("boom")})
	w := &memoryWriter{}
	s := NewSubmitter(up, w)

	title := "Renamed"
	res, err := s.Update(context.Background(), "abc", ShiurEdit{Title: &title, Image: imageFile(), Audio: audioFile()})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	patch := w.patches["abc"]
	if patch.ImageURL != nil {
		t.Errorf("failed image replacement must not touch image_url, got %v", *patch.ImageURL)
	}
	if patch.AudioURL == nil || *patch.AudioURL != "https://media.example.com/audio/shiur.mp3" {
		t.Errorf("audio_url should be replaced, got %v", patch.AudioURL)
	}
	if len(res.Warnings) != 1 {
		t.Errorf("expected a warning, got %v", res.Warnings)
	}
}

func TestUpdateNothingToDo(t *testing.T) {
	s := NewSubmitter(newFakeUploader(nil), &memoryWriter{})
	if _, err := s.Update(context.Background(), "abc", ShiurEdit{}); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

// End to end through the real coordinator against a fake storage endpoint.
func TestSubmitTenMebibyteAudio(t *testing.T) {
	srv := newStorageServer(t)
	issuer := &fakeIssuer{base: srv.URL}
	coord := NewCoordinator(issuer, Options{Policy: fastPolicy()})
	w := &memoryWriter{}
	s := NewSubmitter(coord, w)

	audio := NewFile("ten.mp3", "audio/mpeg", bytes.Repeat([]byte{0xff}, 10<<20))
	res, err := s.Create(context.Background(), ShiurForm{Title: "Ten", Audio: audio})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if !strings.HasPrefix(res.Shiur.AudioURL, "https://media.example.com/audio/") {
		t.Errorf("audio_url %q is not under audio/", res.Shiur.AudioURL)
	}
	if res.Shiur.AudioURL != "https://media.example.com/audio/1-ten.mp3" {
		t.Errorf("audio_url must equal the issued public URL, got %q", res.Shiur.AudioURL)
	}
}

func TestCreateHebrewTitle(t *testing.T) {
	up := newFakeUploader(nil)
	w := &memoryWriter{}
	s := NewSubmitter(up, w)

	if _, err := s.Create(context.Background(), ShiurForm{Title: "שיעור בהלכות שבת", Audio: audioFile()}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if got := w.created[0].Slug; got != "שיעור-בהלכות-שבת" {
		t.Errorf("unexpected slug %q", got)
	}
}

func TestCreateFallbackSlugIsSetBeforeUpload(t *testing.T) {
	up := newFakeUploader(nil)
	w := &memoryWriter{}
	s := NewSubmitter(up, w)
	s.now = func() time.Time { return time.UnixMilli(1700000000000) }

	if _, err := s.Create(context.Background(), ShiurForm{Title: "???", Audio: audioFile()}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if got := w.created[0].Slug; got != "shiur-1700000000000" {
		t.Errorf("expected fallback slug, got %q", got)
	}
}
