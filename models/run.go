package models

import "time"

type TaskStatus string

const (
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusFailed    TaskStatus = "failed"
)

// IngestRun is the operational record for a single ingestion task,
// kept in the local SQLite store for auditing.
type IngestRun struct {
	ID         int64      `json:"id" db:"id"`
	TaskID     string     `json:"task_id" db:"task_id"`
	TenantID   string     `json:"tenant_id" db:"tenant_id"`
	SourceURL  string     `json:"source_url" db:"source_url"`
	Source     string     `json:"source" db:"source"`
	Status     TaskStatus `json:"status" db:"status"`
	Attempts   int        `json:"attempts" db:"attempts"`
	Error      string     `json:"error,omitempty" db:"error"`
	StartedAt  time.Time  `json:"started_at" db:"started_at"`
	FinishedAt *time.Time `json:"finished_at" db:"finished_at"`
}

type IngestLog struct {
	ID        int64     `json:"id" db:"id"`
	RunID     int64     `json:"run_id" db:"run_id"`
	Level     string    `json:"level" db:"level"`
	Message   string    `json:"message" db:"message"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
