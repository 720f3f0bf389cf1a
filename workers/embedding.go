package workers

import (
	"context"
	"log"
	"time"

	"casaingest/llm"
	"casaingest/models"
	"casaingest/pipeline"
)

const (
	embedMaxRetries = 3
	embedRetryBase  = 60 * time.Second
)

// EmbeddingStore is the subset of the property store the embedding
// worker needs.
type EmbeddingStore interface {
	ListMissingEmbeddings(ctx context.Context, force bool, limit int) ([]models.Property, error)
	UpdateEmbedding(ctx context.Context, id string, embedding []float32, content string) error
}

// EmbeddingWorker backfills search vectors for properties whose
// save-time embedding never landed. Failures are logged and retried
// later; embeddings never block or fail an ingestion.
type EmbeddingWorker struct {
	store    EmbeddingStore
	embedder pipeline.Embedder
	sleep    func(time.Duration)
}

func NewEmbeddingWorker(store EmbeddingStore, embedder pipeline.Embedder) *EmbeddingWorker {
	return &EmbeddingWorker{
		store:    store,
		embedder: embedder,
		sleep:    time.Sleep,
	}
}

// Run starts the backfill loop.
func (w *EmbeddingWorker) Run(ctx context.Context, batchSize int, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Embedding worker stopping")
			return
		case <-ticker.C:
			w.processBatch(ctx, false, batchSize)
		}
	}
}

// GenerateAll embeds every property missing a vector, or every
// property when force is set. Returns how many were embedded.
func (w *EmbeddingWorker) GenerateAll(ctx context.Context, force bool) (int, error) {
	if force {
		return w.processBatch(ctx, true, 10000)
	}

	total := 0
	for {
		processed, err := w.processBatch(ctx, false, 50)
		if err != nil {
			return total, err
		}
		total += processed
		if processed == 0 {
			return total, nil
		}
	}
}

func (w *EmbeddingWorker) processBatch(ctx context.Context, force bool, batchSize int) (int, error) {
	props, err := w.store.ListMissingEmbeddings(ctx, force, batchSize)
	if err != nil {
		log.Printf("Embedding worker: query error: %v", err)
		return 0, err
	}
	if len(props) == 0 {
		return 0, nil
	}

	log.Printf("Embedding worker: processing %d properties", len(props))

	processed := 0
	for i := range props {
		if ctx.Err() != nil {
			return processed, ctx.Err()
		}
		if w.embedOne(ctx, &props[i]) {
			processed++
		}
	}
	return processed, nil
}

// embedOne retries with a long doubling backoff to ride out provider
// rate limits. Giving up is fine: the next batch picks the property up
// again.
func (w *EmbeddingWorker) embedOne(ctx context.Context, p *models.Property) bool {
	content := p.ContentForSearch
	if content == "" {
		content = llm.SearchContent(p)
	}

	for attempt := 0; attempt <= embedMaxRetries; attempt++ {
		if attempt > 0 {
			w.sleep(embedRetryBase << (attempt - 1))
		}

		embedding, err := w.embedder.EmbedText(ctx, content)
		if err != nil {
			log.Printf("Warning: embed %s (attempt %d): %v", p.ID, attempt+1, err)
			continue
		}

		if err := w.store.UpdateEmbedding(ctx, p.ID, embedding, content); err != nil {
			log.Printf("Warning: store embedding for %s: %v", p.ID, err)
			return false
		}
		return true
	}

	log.Printf("Embedding worker: giving up on %s for now", p.ID)
	return false
}
