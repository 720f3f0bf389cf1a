package workers

import (
	"context"
	"fmt"
	"log"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"casaingest/models"
)

// MaxSyncBatch caps synchronous batches; larger sets must go async.
const MaxSyncBatch = 10

var ErrBatchTooLarge = fmt.Errorf("maximum %d URLs per synchronous batch", MaxSyncBatch)

// Notifier reports a finished batch. The SMTP notifier satisfies it;
// only the sheet scheduler sends batch notifications.
type Notifier interface {
	NotifyBatchComplete(ctx context.Context, summary *models.BatchSummary) error
}

// BatchRunner ingests lists of URLs, either inline or by fanning jobs
// out over the queue. One failed URL never stops the others.
type BatchRunner struct {
	worker *IngestWorker
	conn   *nats.Conn
}

func NewBatchRunner(worker *IngestWorker, conn *nats.Conn) *BatchRunner {
	return &BatchRunner{worker: worker, conn: conn}
}

// RunSync processes each URL in order and saves the results. The
// caller waits, so the batch size is capped.
func (b *BatchRunner) RunSync(ctx context.Context, urls []string) (*models.BatchSummary, error) {
	if len(urls) > MaxSyncBatch {
		return nil, ErrBatchTooLarge
	}

	summary := &models.BatchSummary{Total: len(urls)}
	for _, url := range urls {
		item := models.BatchItem{URL: url}

		prop, err := b.worker.Ingest(ctx, Job{TaskID: uuid.New().String(), URL: url})
		if err != nil {
			item.Status = "failed"
			item.Error = err.Error()
			summary.Failed++
		} else {
			item.Status = "success"
			item.Data = map[string]any{
				"property_id":   prop.ID,
				"property_name": prop.Name,
			}
			summary.Processed++
		}
		summary.Results = append(summary.Results, item)
	}

	return summary, nil
}

// RunAsync queues every URL and returns immediately with the task ids.
// Async batches have no size cap. Jobs outlive the caller, so local
// fallback runs get a context detached from the caller's cancellation.
func (b *BatchRunner) RunAsync(ctx context.Context, urls []string) *models.BatchSummary {
	jobCtx := context.WithoutCancel(ctx)

	summary := &models.BatchSummary{Total: len(urls)}
	for _, url := range urls {
		job := Job{TaskID: uuid.New().String(), URL: url}

		if b.conn != nil {
			if err := PublishJob(b.conn, job); err != nil {
				log.Printf("Warning: queue job for %s, running locally: %v", url, err)
				b.worker.Submit(jobCtx, job)
			}
		} else {
			b.worker.Submit(jobCtx, job)
		}

		summary.Results = append(summary.Results, models.BatchItem{
			URL:    url,
			Status: "queued",
			TaskID: job.TaskID,
		})
	}
	return summary
}
