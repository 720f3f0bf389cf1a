// Package pipeline orchestrates a single listing ingestion: fetch the
// page, pick an extractor, pull the fields and prepare a preview. The
// preview is returned to the caller; nothing touches the database
// until Save.
package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/panjf2000/ants/v2"

	"casaingest/extractor"
	"casaingest/fetcher"
	"casaingest/models"
	"casaingest/progress"
)

// Store is the subset of the property store the pipeline needs.
type Store interface {
	GetPropertyBySourceURL(ctx context.Context, tenantID, sourceURL string) (*models.Property, error)
	CreateProperty(ctx context.Context, p *models.Property) error
	UpdateEmbedding(ctx context.Context, id string, embedding []float32, content string) error
}

// TextExtractor extracts a field bag from free text. *llm.Client
// satisfies it.
type TextExtractor interface {
	ExtractProperty(ctx context.Context, text, pageURL string) (map[string]any, error)
}

// Embedder produces a search vector for a property description.
type Embedder interface {
	EmbedText(ctx context.Context, text string) ([]float32, error)
}

type Pipeline struct {
	Fetcher  fetcher.Fetcher
	Registry *extractor.Registry
	Text     TextExtractor
	Embedder Embedder
	Store    Store
	Pool     *ants.Pool
	TenantID string
}

// Fields that never leave the pipeline: extraction bookkeeping the
// preview consumers have no use for.
var previewMetadataFields = []string{
	"tokens_used", "raw_html", "confidence_reasoning", "extracted_at", "field_confidence",
}

var defaultUserRoles = []string{"buyer", "staff", "admin"}

// Run ingests one listing URL and returns the preview field bag.
// siteOverride, when set, pins the extractor instead of detecting it
// from the URL. Progress lands on the tracker, including the terminal
// complete or error event.
func (p *Pipeline) Run(ctx context.Context, url, siteOverride string, tr *progress.Tracker) (map[string]any, error) {
	tr.Progress(5, "Starting ingestion")

	tr.Progress(10, "Fetching page content")
	page, err := p.Fetcher.Fetch(ctx, url)
	if err != nil {
		tr.Error(err.Error())
		return nil, err
	}
	tr.Progress(30, "Page fetched")

	site := siteOverride
	if site == "" {
		tr.Progress(35, "Detecting source website")
		site = p.Registry.Detect(url)
	}
	tr.Progress(40, fmt.Sprintf("Using site: %s", site))

	ext := p.Registry.GetSite(site)
	tr.Progress(45, "Extracting property data")
	data, err := ext.Extract(ctx, page)
	if err != nil {
		tr.Error(err.Error())
		return nil, err
	}
	tr.Progress(80, "Extraction complete")

	tr.Progress(95, "Preparing preview")
	p.finalize(data, url, site)

	tr.Complete(data)
	return data, nil
}

// RunText ingests pasted listing text through the LLM extractor. There
// is no page to fetch and no site to detect, so the source defaults to
// "other" unless the caller picked one.
func (p *Pipeline) RunText(ctx context.Context, text, siteOverride string) (map[string]any, error) {
	data, err := p.Text.ExtractProperty(ctx, text, "")
	if err != nil {
		return nil, err
	}

	site := siteOverride
	if site == "" {
		site = extractor.SiteOther
	}
	p.finalize(data, "", site)
	return data, nil
}

// finalize stamps the provenance fields onto the extracted bag and
// strips extraction bookkeeping before the bag leaves the pipeline.
func (p *Pipeline) finalize(data map[string]any, url, site string) {
	data["source_website"] = site
	if url != "" {
		data["source_url"] = url
	}
	data["tenant_id"] = p.TenantID

	if roles, ok := data["user_roles"].([]string); !ok || len(roles) == 0 {
		data["user_roles"] = defaultUserRoles
	}

	for _, field := range previewMetadataFields {
		delete(data, field)
	}
	for key := range data {
		if strings.HasSuffix(key, "_evidence") {
			delete(data, key)
		}
	}
}
