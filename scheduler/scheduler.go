// Package scheduler drives the periodic spreadsheet poll: every tick
// it ingests the sheet's pending URLs and emails the outcome.
package scheduler

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"casaingest/config"
	"casaingest/models"
	"casaingest/sheets"
	"casaingest/workers"
)

// Ingester runs one full ingest-and-save job. *workers.IngestWorker
// satisfies it.
type Ingester interface {
	Ingest(ctx context.Context, job workers.Job) (*models.Property, error)
}

type Scheduler struct {
	cfg      config.SchedulerConfig
	source   sheets.RowSource
	ingester Ingester
	notifier workers.Notifier

	cron   *cron.Cron
	ticker *time.Ticker
	stopCh chan struct{}
	mu     sync.Mutex
}

func New(cfg config.SchedulerConfig, source sheets.RowSource, ingester Ingester, notifier workers.Notifier) *Scheduler {
	return &Scheduler{
		cfg:      cfg,
		source:   source,
		ingester: ingester,
		notifier: notifier,
		cron:     cron.New(),
		stopCh:   make(chan struct{}),
	}
}

func (s *Scheduler) Start(ctx context.Context) error {
	if s.source == nil {
		log.Println("No sheet source configured, scheduler idle")
		return nil
	}

	if s.cfg.Cron != "" {
		log.Printf("Starting scheduler with cron: %s", s.cfg.Cron)
		_, err := s.cron.AddFunc(s.cfg.Cron, func() {
			if err := s.PollOnce(ctx); err != nil {
				log.Printf("Scheduled poll error: %v", err)
			}
		})
		if err != nil {
			return fmt.Errorf("invalid cron expression: %w", err)
		}
		s.cron.Start()
	} else if s.cfg.Interval > 0 {
		log.Printf("Starting scheduler with interval: %s", s.cfg.Interval)
		s.ticker = time.NewTicker(s.cfg.Interval)
		go func() {
			for {
				select {
				case <-s.ticker.C:
					if err := s.PollOnce(ctx); err != nil {
						log.Printf("Scheduled poll error: %v", err)
					}
				case <-s.stopCh:
					return
				case <-ctx.Done():
					return
				}
			}
		}()
	} else {
		log.Println("No schedule configured, sheet poll disabled")
	}

	return nil
}

func (s *Scheduler) Stop() {
	if s.cron != nil {
		s.cron.Stop()
	}
	if s.ticker != nil {
		s.ticker.Stop()
	}
	close(s.stopCh)
}

// PollOnce ingests every pending sheet row. Overlapping ticks wait for
// each other so a slow batch never runs twice in parallel.
func (s *Scheduler) PollOnce(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.source.PendingRows(ctx)
	if err != nil {
		return fmt.Errorf("pending rows: %w", err)
	}
	if len(rows) == 0 {
		return nil
	}

	log.Printf("Sheet poll: %d pending rows", len(rows))

	summary := &models.BatchSummary{Total: len(rows)}
	for _, row := range rows {
		item := models.BatchItem{URL: row.URL}

		prop, err := s.ingester.Ingest(ctx, workers.Job{TaskID: uuid.New().String(), URL: row.URL})
		if err != nil {
			item.Status = "failed"
			item.Error = err.Error()
			summary.Failed++
		} else {
			item.Status = "success"
			item.Data = map[string]any{"property_id": prop.ID}
			summary.Processed++
		}
		summary.Results = append(summary.Results, item)

		if err := s.source.WriteResult(ctx, row, item.Status, item.Error); err != nil {
			log.Printf("Warning: record sheet row %d: %v", row.Index, err)
		}
	}

	if s.notifier != nil {
		if err := s.notifier.NotifyBatchComplete(ctx, summary); err != nil {
			log.Printf("Warning: batch notification: %v", err)
		}
	}
	return nil
}
