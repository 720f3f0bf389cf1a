package workers

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"casaingest/extractor"
	"casaingest/fetcher"
	"casaingest/llm"
	"casaingest/models"
	"casaingest/pipeline"
)

type seqFetcher struct {
	mu    sync.Mutex
	errs  []error
	calls int
}

func (f *seqFetcher) Fetch(ctx context.Context, url string) (*fetcher.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.calls
	f.calls++
	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	return &fetcher.Result{URL: url}, nil
}

func (f *seqFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// stubExtractor fails for URLs containing "bad" and returns a minimal
// field bag otherwise.
type stubExtractor struct{}

func (e *stubExtractor) Site() string { return "other" }

func (e *stubExtractor) Extract(ctx context.Context, page *fetcher.Result) (map[string]any, error) {
	if strings.Contains(page.URL, "bad") {
		return nil, errors.New("page has no listing")
	}
	return map[string]any{"title": "Casa de prueba"}, nil
}

type memStore struct {
	mu       sync.Mutex
	existing *models.Property
	created  []*models.Property
}

func (s *memStore) GetPropertyBySourceURL(ctx context.Context, tenantID, sourceURL string) (*models.Property, error) {
	return s.existing, nil
}

func (s *memStore) CreateProperty(ctx context.Context, p *models.Property) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.created = append(s.created, p)
	return nil
}

func (s *memStore) UpdateEmbedding(ctx context.Context, id string, embedding []float32, content string) error {
	return nil
}

func (s *memStore) createdCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.created)
}

func newTestWorker(f fetcher.Fetcher, store pipeline.Store) (*IngestWorker, *[]time.Duration) {
	p := &pipeline.Pipeline{
		Fetcher:  f,
		Registry: extractor.NewRegistry(nil, &stubExtractor{}),
		Store:    store,
		TenantID: "tenant-1",
	}

	w := NewIngestWorker(p, nil, nil, nil)
	var sleeps []time.Duration
	w.sleep = func(d time.Duration) { sleeps = append(sleeps, d) }
	return w, &sleeps
}

func TestIngestRetriesTransientFailures(t *testing.T) {
	f := &seqFetcher{errs: []error{
		&fetcher.FetchError{URL: "https://x", Err: errors.New("timeout")},
		&fetcher.FetchError{URL: "https://x", Err: errors.New("timeout")},
	}}
	store := &memStore{}
	w, sleeps := newTestWorker(f, store)

	prop, err := w.Ingest(context.Background(), Job{TaskID: "t1", URL: "https://example.com/casa"})
	if err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}
	if prop == nil || prop.Name != "Casa de prueba" {
		t.Fatalf("unexpected property: %+v", prop)
	}

	if f.callCount() != 3 {
		t.Errorf("fetch calls = %d, want 3", f.callCount())
	}
	want := []time.Duration{2 * time.Second, 4 * time.Second}
	if len(*sleeps) != len(want) {
		t.Fatalf("sleeps = %v, want %v", *sleeps, want)
	}
	for i, d := range want {
		if (*sleeps)[i] != d {
			t.Errorf("sleep %d = %v, want %v", i, (*sleeps)[i], d)
		}
	}
}

func TestIngestGivesUpAfterMaxRetries(t *testing.T) {
	fetchErr := &fetcher.FetchError{URL: "https://x", Err: errors.New("refused")}
	f := &seqFetcher{errs: []error{fetchErr, fetchErr, fetchErr, fetchErr}}
	store := &memStore{}
	w, sleeps := newTestWorker(f, store)

	_, err := w.Ingest(context.Background(), Job{TaskID: "t2", URL: "https://example.com/casa"})
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}

	if f.callCount() != 4 {
		t.Errorf("fetch calls = %d, want 4", f.callCount())
	}
	if len(*sleeps) != 3 {
		t.Errorf("sleeps = %v, want 3 entries", *sleeps)
	}
	if store.createdCount() != 0 {
		t.Errorf("created %d properties, want 0", store.createdCount())
	}
}

func TestIngestDoesNotRetryPermanentFailures(t *testing.T) {
	f := &seqFetcher{}
	store := &memStore{}
	w, sleeps := newTestWorker(f, store)

	_, err := w.Ingest(context.Background(), Job{TaskID: "t3", URL: "https://example.com/bad"})
	if err == nil {
		t.Fatal("expected extraction failure")
	}

	if f.callCount() != 1 {
		t.Errorf("fetch calls = %d, want 1", f.callCount())
	}
	if len(*sleeps) != 0 {
		t.Errorf("slept %v, want no retries", *sleeps)
	}
}

func TestIngestDuplicateIsNotRetried(t *testing.T) {
	f := &seqFetcher{}
	store := &memStore{existing: &models.Property{ID: "prop-1", Name: "Existente"}}
	w, sleeps := newTestWorker(f, store)

	_, err := w.Ingest(context.Background(), Job{TaskID: "t4", URL: "https://example.com/casa"})

	var dup *pipeline.DuplicateError
	if !errors.As(err, &dup) {
		t.Fatalf("expected DuplicateError, got %v", err)
	}
	if len(*sleeps) != 0 {
		t.Errorf("slept %v, want no retries", *sleeps)
	}
	if store.createdCount() != 0 {
		t.Errorf("created %d properties, want 0", store.createdCount())
	}
}

func TestRetryableClassification(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{&fetcher.FetchError{URL: "x", Err: errors.New("timeout")}, true},
		{&llm.ExtractionError{URL: "x", Reason: "no valid JSON"}, true},
		{errors.New("plain"), false},
		{context.Canceled, false},
	}
	for _, tt := range tests {
		if got := retryable(tt.err); got != tt.want {
			t.Errorf("retryable(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}
