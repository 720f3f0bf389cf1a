package workers

import (
	"context"
	"errors"
	"testing"
	"time"

	"casaingest/fetcher"
)

// ctxFetcher refuses to fetch once its context is done, like the real
// HTTP fetcher does.
type ctxFetcher struct {
	seqFetcher
}

func (f *ctxFetcher) Fetch(ctx context.Context, url string) (*fetcher.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, &fetcher.FetchError{URL: url, Err: err}
	}
	return f.seqFetcher.Fetch(ctx, url)
}

func TestRunSyncCapsBatchSize(t *testing.T) {
	w, _ := newTestWorker(&seqFetcher{}, &memStore{})
	b := NewBatchRunner(w, nil)

	urls := make([]string, MaxSyncBatch+1)
	for i := range urls {
		urls[i] = "https://example.com/casa"
	}

	_, err := b.RunSync(context.Background(), urls)
	if !errors.Is(err, ErrBatchTooLarge) {
		t.Fatalf("err = %v, want ErrBatchTooLarge", err)
	}
}

func TestRunSyncIsolatesFailures(t *testing.T) {
	store := &memStore{}
	w, _ := newTestWorker(&seqFetcher{}, store)
	b := NewBatchRunner(w, nil)

	summary, err := b.RunSync(context.Background(), []string{
		"https://example.com/casa-1",
		"https://example.com/bad-listing",
		"https://example.com/casa-2",
	})
	if err != nil {
		t.Fatalf("RunSync failed: %v", err)
	}

	if summary.Total != 3 || summary.Processed != 2 || summary.Failed != 1 {
		t.Fatalf("summary = %+v", summary)
	}
	if summary.Results[0].Status != "success" {
		t.Errorf("result 0 = %+v", summary.Results[0])
	}
	if summary.Results[1].Status != "failed" || summary.Results[1].Error == "" {
		t.Errorf("result 1 = %+v", summary.Results[1])
	}
	if summary.Results[2].Status != "success" {
		t.Errorf("result 2 = %+v", summary.Results[2])
	}
	if store.createdCount() != 2 {
		t.Errorf("created = %d, want 2", store.createdCount())
	}
}

func TestRunAsyncQueuesEveryURL(t *testing.T) {
	store := &memStore{}
	w, _ := newTestWorker(&seqFetcher{}, store)
	b := NewBatchRunner(w, nil)

	urls := make([]string, MaxSyncBatch+5)
	for i := range urls {
		urls[i] = "https://example.com/casa"
	}

	summary := b.RunAsync(context.Background(), urls)

	if summary.Total != len(urls) {
		t.Fatalf("total = %d, want %d", summary.Total, len(urls))
	}
	seen := make(map[string]bool)
	for _, item := range summary.Results {
		if item.Status != "queued" {
			t.Errorf("status = %q, want queued", item.Status)
		}
		if item.TaskID == "" || seen[item.TaskID] {
			t.Errorf("task id %q missing or duplicated", item.TaskID)
		}
		seen[item.TaskID] = true
	}

	// Local fallback jobs run on goroutines; give them a moment.
	deadline := time.After(2 * time.Second)
	for store.createdCount() < len(urls) {
		select {
		case <-deadline:
			t.Fatalf("only %d of %d jobs completed", store.createdCount(), len(urls))
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestRunAsyncJobsOutliveCallerContext(t *testing.T) {
	store := &memStore{}
	f := &ctxFetcher{}
	w, _ := newTestWorker(f, store)
	b := NewBatchRunner(w, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	summary := b.RunAsync(ctx, []string{"https://example.com/casa"})
	if summary.Results[0].Status != "queued" {
		t.Fatalf("result = %+v", summary.Results[0])
	}

	deadline := time.After(2 * time.Second)
	for store.createdCount() < 1 {
		select {
		case <-deadline:
			t.Fatal("queued job never saved; caller cancellation leaked into it")
		case <-time.After(10 * time.Millisecond):
		}
	}
}
