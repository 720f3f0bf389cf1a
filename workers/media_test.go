package workers

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"casaingest/models"
)

type archiveStore struct {
	pending []models.PropertyImage
	updated map[string]string
}

func (s *archiveStore) GetPendingArchiveImages(ctx context.Context, limit int) ([]models.PropertyImage, error) {
	return s.pending, nil
}

func (s *archiveStore) UpdateImageArchiveURL(ctx context.Context, id, archiveURL string) error {
	if s.updated == nil {
		s.updated = make(map[string]string)
	}
	s.updated[id] = archiveURL
	return nil
}

type captureArchiver struct {
	keys         []string
	contentTypes []string
}

func (a *captureArchiver) Store(ctx context.Context, key string, data io.Reader, contentType string) (string, error) {
	io.Copy(io.Discard, data)
	a.keys = append(a.keys, key)
	a.contentTypes = append(a.contentTypes, contentType)
	return "https://archive.example.com/" + key, nil
}

func TestArchiveUploadsUnderContentHashKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write([]byte("fake png bytes"))
	}))
	defer srv.Close()

	archiver := &captureArchiver{}
	w := NewMediaWorker(&archiveStore{}, archiver)

	url, err := w.Archive(context.Background(), &models.PropertyImage{ID: "img-1", URL: srv.URL + "/photo"})
	if err != nil {
		t.Fatalf("Archive failed: %v", err)
	}

	if len(archiver.keys) != 1 {
		t.Fatalf("uploads = %d, want 1", len(archiver.keys))
	}
	key := archiver.keys[0]
	if !strings.HasPrefix(key, "images/") || !strings.HasSuffix(key, ".png") {
		t.Errorf("key = %q", key)
	}
	if archiver.contentTypes[0] != "image/png" {
		t.Errorf("content type = %q", archiver.contentTypes[0])
	}
	if url != "https://archive.example.com/"+key {
		t.Errorf("url = %q", url)
	}

	// Same bytes produce the same key.
	url2, err := w.Archive(context.Background(), &models.PropertyImage{ID: "img-2", URL: srv.URL + "/photo"})
	if err != nil {
		t.Fatalf("second Archive failed: %v", err)
	}
	if url2 != url {
		t.Errorf("dedupe broken: %q vs %q", url2, url)
	}
}

func TestArchiveRejectsBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	w := NewMediaWorker(&archiveStore{}, &captureArchiver{})
	if _, err := w.Archive(context.Background(), &models.PropertyImage{URL: srv.URL + "/gone.jpg"}); err == nil {
		t.Fatal("expected error for 404")
	}
}

func TestProcessBatchRecordsArchiveURLs(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		w.Write([]byte("jpeg bytes"))
	}))
	defer srv.Close()

	store := &archiveStore{pending: []models.PropertyImage{
		{ID: "img-1", URL: srv.URL + "/a.jpg"},
		{ID: "img-2", URL: srv.URL + "/b.jpg"},
	}}
	w := NewMediaWorker(store, &captureArchiver{})

	w.processBatch(context.Background(), 10)

	if len(store.updated) != 2 {
		t.Fatalf("updated = %v", store.updated)
	}
	for id, url := range store.updated {
		if !strings.HasPrefix(url, "https://archive.example.com/images/") {
			t.Errorf("%s archived to %q", id, url)
		}
	}
}

func TestGuessExtension(t *testing.T) {
	tests := []struct {
		url         string
		contentType string
		want        string
	}{
		{"https://cdn.example.com/photo.webp", "", ".webp"},
		{"https://cdn.example.com/photo.PNG", "", ".png"},
		{"https://cdn.example.com/photo", "image/png", ".png"},
		{"https://cdn.example.com/photo.php", "image/gif", ".gif"},
		{"https://cdn.example.com/photo", "", ".jpg"},
	}
	for _, tt := range tests {
		if got := guessExtension(tt.url, tt.contentType); got != tt.want {
			t.Errorf("guessExtension(%q, %q) = %q, want %q", tt.url, tt.contentType, got, tt.want)
		}
	}
}
