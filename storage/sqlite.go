package storage

import (
	"database/sql"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"casaingest/models"
)

// SQLiteStore is the local operational store: ingestion run records
// and their logs, kept separate from the canonical Postgres data.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		return nil, err
	}

	return store, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS ingest_runs (
		id INTEGER PRIMARY KEY,
		task_id TEXT NOT NULL,
		tenant_id TEXT,
		source_url TEXT,
		source TEXT,
		status TEXT,
		attempts INTEGER DEFAULT 0,
		error TEXT,
		started_at DATETIME,
		finished_at DATETIME
	);

	CREATE TABLE IF NOT EXISTS ingest_logs (
		id INTEGER PRIMARY KEY,
		run_id INTEGER,
		level TEXT,
		message TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (run_id) REFERENCES ingest_runs(id)
	);

	CREATE TABLE IF NOT EXISTS sheet_rows (
		id INTEGER PRIMARY KEY,
		row_index INTEGER,
		url TEXT NOT NULL UNIQUE,
		status TEXT,
		message TEXT,
		processed_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_runs_task ON ingest_runs(task_id);
	CREATE INDEX IF NOT EXISTS idx_runs_status ON ingest_runs(status, started_at);
	CREATE INDEX IF NOT EXISTS idx_logs_run ON ingest_logs(run_id, created_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStore) CreateRun(run *models.IngestRun) error {
	res, err := s.db.Exec(`
		INSERT INTO ingest_runs (task_id, tenant_id, source_url, source, status, attempts, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.TaskID, run.TenantID, run.SourceURL, run.Source, run.Status, run.Attempts, run.StartedAt,
	)
	if err != nil {
		return err
	}
	run.ID, err = res.LastInsertId()
	return err
}

func (s *SQLiteStore) FinishRun(id int64, status models.TaskStatus, attempts int, errMsg string) error {
	now := time.Now()
	_, err := s.db.Exec(`
		UPDATE ingest_runs SET status = ?, attempts = ?, error = ?, finished_at = ? WHERE id = ?`,
		status, attempts, errMsg, now, id,
	)
	return err
}

func (s *SQLiteStore) GetRunByTaskID(taskID string) (*models.IngestRun, error) {
	var run models.IngestRun
	var finishedAt sql.NullTime
	var errMsg sql.NullString

	err := s.db.QueryRow(`
		SELECT id, task_id, tenant_id, source_url, source, status, attempts, error, started_at, finished_at
		FROM ingest_runs WHERE task_id = ? ORDER BY id DESC LIMIT 1`, taskID,
	).Scan(&run.ID, &run.TaskID, &run.TenantID, &run.SourceURL, &run.Source, &run.Status, &run.Attempts, &errMsg, &run.StartedAt, &finishedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	run.Error = errMsg.String
	if finishedAt.Valid {
		run.FinishedAt = &finishedAt.Time
	}
	return &run, nil
}

func (s *SQLiteStore) AppendLog(runID int64, level, message string) error {
	_, err := s.db.Exec(`
		INSERT INTO ingest_logs (run_id, level, message) VALUES (?, ?, ?)`,
		runID, level, message,
	)
	return err
}

// SheetRowProcessed reports whether a spreadsheet URL was already
// ingested. The sheet export is read-only, so processed rows are
// tracked here instead of written back.
func (s *SQLiteStore) SheetRowProcessed(url string) (bool, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM sheet_rows WHERE url = ?`, url).Scan(&count)
	return count > 0, err
}

func (s *SQLiteStore) MarkSheetRow(rowIndex int, url, status, message string) error {
	_, err := s.db.Exec(`
		INSERT INTO sheet_rows (row_index, url, status, message) VALUES (?, ?, ?, ?)
		ON CONFLICT(url) DO UPDATE SET status = excluded.status, message = excluded.message, processed_at = CURRENT_TIMESTAMP`,
		rowIndex, url, status, message,
	)
	return err
}

func (s *SQLiteStore) GetRunLogs(runID int64) ([]models.IngestLog, error) {
	rows, err := s.db.Query(`
		SELECT id, run_id, level, message, created_at
		FROM ingest_logs WHERE run_id = ? ORDER BY created_at`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []models.IngestLog
	for rows.Next() {
		var l models.IngestLog
		if err := rows.Scan(&l.ID, &l.RunID, &l.Level, &l.Message, &l.CreatedAt); err != nil {
			return nil, err
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}
