// Package sheets feeds the scheduler with listing URLs maintained in a
// shared spreadsheet. The sheet is consumed through its CSV export, so
// no Google credentials are needed; processed rows are remembered in
// the local ops store.
package sheets

import (
	"context"
	"encoding/csv"
	"fmt"
	"net/http"
	"strings"
)

type Row struct {
	Index int
	URL   string
}

// RowSource lists the URLs still waiting for ingestion and records
// each outcome.
type RowSource interface {
	PendingRows(ctx context.Context) ([]Row, error)
	WriteResult(ctx context.Context, row Row, status, message string) error
}

// RowStore tracks which rows were already handled. *storage.SQLiteStore
// satisfies it.
type RowStore interface {
	SheetRowProcessed(url string) (bool, error)
	MarkSheetRow(rowIndex int, url, status, message string) error
}

type CSVSource struct {
	url    string
	client *http.Client
	store  RowStore
}

func NewCSVSource(url string, client *http.Client, store RowStore) *CSVSource {
	if client == nil {
		client = http.DefaultClient
	}
	return &CSVSource{url: url, client: client, store: store}
}

// PendingRows downloads the sheet and returns the URL rows not seen
// before. The URL is taken from the first column; header rows and
// anything that is not an http link are skipped.
func (s *CSVSource) PendingRows(ctx context.Context) ([]Row, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", s.url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch sheet: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		return nil, fmt.Errorf("fetch sheet: status %d", resp.StatusCode)
	}

	reader := csv.NewReader(resp.Body)
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse sheet: %w", err)
	}

	var rows []Row
	for i, record := range records {
		if len(record) == 0 {
			continue
		}
		url := strings.TrimSpace(record[0])
		if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
			continue
		}

		processed, err := s.store.SheetRowProcessed(url)
		if err != nil {
			return nil, fmt.Errorf("check row %d: %w", i, err)
		}
		if processed {
			continue
		}
		rows = append(rows, Row{Index: i, URL: url})
	}
	return rows, nil
}

func (s *CSVSource) WriteResult(ctx context.Context, row Row, status, message string) error {
	return s.store.MarkSheetRow(row.Index, row.URL, status, message)
}
