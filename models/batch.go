package models

import "time"

// BatchItem is the per-URL outcome of a batch run. Status is either
// "success" or "failed"; failed items carry the error message and
// never abort the batch.
type BatchItem struct {
	URL    string         `json:"url"`
	Status string         `json:"status"`
	Error  string         `json:"error,omitempty"`
	Data   map[string]any `json:"data,omitempty"`
	TaskID string         `json:"task_id,omitempty"`
}

type BatchSummary struct {
	Total     int         `json:"total"`
	Processed int         `json:"processed"`
	Failed    int         `json:"failed"`
	Results   []BatchItem `json:"results"`
}

// IngestStats backs the stats endpoint: recent ingestion volume for
// one tenant.
type IngestStats struct {
	Today     int           `json:"today"`
	ThisWeek  int           `json:"this_week"`
	ThisMonth int           `json:"this_month"`
	Recent    []RecentEntry `json:"recent"`
}

type RecentEntry struct {
	ID            string    `json:"id"`
	Name          string    `json:"property_name"`
	SourceWebsite string    `json:"source_website"`
	CreatedAt     time.Time `json:"created_at"`
}
