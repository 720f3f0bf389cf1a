package workers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/panjf2000/ants/v2"

	"casaingest/fetcher"
	"casaingest/llm"
	"casaingest/models"
	"casaingest/pipeline"
	"casaingest/progress"
	"casaingest/storage"
)

// JobSubject is the queue subject for background URL ingestions.
const JobSubject = "ingest.jobs.url"

const (
	ingestMaxRetries = 3
	ingestRetryBase  = 2 * time.Second
)

// Job is one queued URL ingestion. Preview jobs extract and stream
// progress without saving; the rest run the full ingest-and-save flow.
type Job struct {
	TaskID        string `json:"task_id"`
	URL           string `json:"url"`
	SourceWebsite string `json:"source_website,omitempty"`
	Preview       bool   `json:"preview,omitempty"`
}

// IngestWorker runs queued ingestion jobs. Transient failures (fetch
// and extraction errors) retry with doubling backoff; anything else
// fails the job immediately.
type IngestWorker struct {
	pipeline *pipeline.Pipeline
	bus      progress.Publisher
	runs     *storage.SQLiteStore
	pool     *ants.Pool
	sleep    func(time.Duration)
}

func NewIngestWorker(p *pipeline.Pipeline, bus progress.Publisher, runs *storage.SQLiteStore, pool *ants.Pool) *IngestWorker {
	return &IngestWorker{
		pipeline: p,
		bus:      bus,
		runs:     runs,
		pool:     pool,
		sleep:    time.Sleep,
	}
}

// Start consumes jobs from the queue group so multiple instances can
// share the load. Returns the unsubscribe function.
func (w *IngestWorker) Start(ctx context.Context, conn *nats.Conn) (func(), error) {
	sub, err := conn.QueueSubscribe(JobSubject, "ingest-workers", func(msg *nats.Msg) {
		var job Job
		if err := json.Unmarshal(msg.Data, &job); err != nil {
			log.Printf("Warning: bad ingest job payload: %v", err)
			return
		}
		w.Submit(ctx, job)
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", JobSubject, err)
	}
	return func() { _ = sub.Unsubscribe() }, nil
}

// PublishJob enqueues a job over the bus.
func PublishJob(conn *nats.Conn, job Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return conn.Publish(JobSubject, data)
}

// Submit schedules a job on the worker pool, or a plain goroutine when
// no pool is configured.
func (w *IngestWorker) Submit(ctx context.Context, job Job) {
	task := func() { w.Dispatch(ctx, job) }
	if w.pool != nil {
		if err := w.pool.Submit(task); err != nil {
			log.Printf("Warning: submit ingest job %s: %v", job.TaskID, err)
			go task()
		}
		return
	}
	go task()
}

func (w *IngestWorker) Dispatch(ctx context.Context, job Job) {
	if job.Preview {
		w.Preview(ctx, job)
		return
	}
	if _, err := w.Ingest(ctx, job); err != nil {
		log.Printf("Ingest worker: job %s failed: %v", job.TaskID, err)
	}
}

// Preview extracts a listing and streams progress without saving it.
// No retries here: the client is watching and can resubmit.
func (w *IngestWorker) Preview(ctx context.Context, job Job) {
	run := w.startRun(job)
	tr := progress.NewTracker(w.bus, job.TaskID)

	_, err := w.pipeline.Run(ctx, job.URL, job.SourceWebsite, tr)
	if err != nil {
		w.finishRun(run, models.TaskStatusFailed, 1, err)
		return
	}
	w.finishRun(run, models.TaskStatusCompleted, 1, nil)
}

// Ingest runs the full extract-and-save flow with retries.
func (w *IngestWorker) Ingest(ctx context.Context, job Job) (*models.Property, error) {
	run := w.startRun(job)

	var lastErr error
	for attempt := 0; attempt <= ingestMaxRetries; attempt++ {
		if attempt > 0 {
			delay := ingestRetryBase << (attempt - 1)
			w.appendLog(run, "warning", fmt.Sprintf("attempt %d failed, retrying in %s: %v", attempt, delay, lastErr))
			w.sleep(delay)
		}

		tr := progress.NewTracker(nil, job.TaskID)
		data, err := w.pipeline.Run(ctx, job.URL, job.SourceWebsite, tr)
		if err != nil {
			lastErr = err
			if retryable(err) {
				continue
			}
			w.finishRun(run, models.TaskStatusFailed, attempt+1, err)
			return nil, err
		}

		prop, err := w.pipeline.Save(ctx, data)
		if err != nil {
			var dup *pipeline.DuplicateError
			if errors.As(err, &dup) {
				log.Printf("Ingest worker: %s already ingested as %s", job.URL, dup.PropertyID)
			}
			w.finishRun(run, models.TaskStatusFailed, attempt+1, err)
			return nil, err
		}

		w.finishRun(run, models.TaskStatusCompleted, attempt+1, nil)
		return prop, nil
	}

	w.finishRun(run, models.TaskStatusFailed, ingestMaxRetries+1, lastErr)
	return nil, lastErr
}

// retryable reports whether the error is worth another attempt. Only
// fetch and extraction failures are transient.
func retryable(err error) bool {
	var fe *fetcher.FetchError
	if errors.As(err, &fe) {
		return true
	}
	var ee *llm.ExtractionError
	return errors.As(err, &ee)
}

func (w *IngestWorker) startRun(job Job) *models.IngestRun {
	if w.runs == nil {
		return nil
	}
	run := &models.IngestRun{
		TaskID:    job.TaskID,
		SourceURL: job.URL,
		Source:    job.SourceWebsite,
		Status:    models.TaskStatusRunning,
		StartedAt: time.Now().UTC(),
	}
	if err := w.runs.CreateRun(run); err != nil {
		log.Printf("Warning: create run record: %v", err)
		return nil
	}
	return run
}

func (w *IngestWorker) finishRun(run *models.IngestRun, status models.TaskStatus, attempts int, runErr error) {
	if run == nil {
		return
	}
	msg := ""
	if runErr != nil {
		msg = runErr.Error()
	}
	if err := w.runs.FinishRun(run.ID, status, attempts, msg); err != nil {
		log.Printf("Warning: finish run %d: %v", run.ID, err)
	}
}

func (w *IngestWorker) appendLog(run *models.IngestRun, level, message string) {
	if run == nil {
		return
	}
	if err := w.runs.AppendLog(run.ID, level, message); err != nil {
		log.Printf("Warning: append run log: %v", err)
	}
}
