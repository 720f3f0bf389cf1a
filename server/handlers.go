package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sort"

	"github.com/google/uuid"

	"casaingest/fetcher"
	"casaingest/llm"
	"casaingest/pipeline"
	"casaingest/progress"
	"casaingest/workers"
)

type ingestURLRequest struct {
	URL           string `json:"url"`
	SourceWebsite string `json:"source_website"`
	UseWebsocket  bool   `json:"use_websocket"`
}

func (s *Server) handleIngestURL(w http.ResponseWriter, r *http.Request) {
	var req ingestURLRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if req.URL == "" {
		writeError(w, http.StatusBadRequest, "URL is required")
		return
	}

	if req.UseWebsocket {
		taskID := uuid.New().String()
		// The job outlives this request: net/http cancels r.Context()
		// the moment the 202 is written.
		s.worker.Submit(context.WithoutCancel(r.Context()), workers.Job{
			TaskID:        taskID,
			URL:           req.URL,
			SourceWebsite: req.SourceWebsite,
			Preview:       true,
		})

		writeJSON(w, http.StatusAccepted, map[string]any{
			"status":  "processing",
			"task_id": taskID,
			"message": "Processing started. Connect to WebSocket for progress updates.",
		})
		return
	}

	tr := progress.NewTracker(nil, uuid.New().String())
	data, err := s.pipeline.Run(r.Context(), req.URL, req.SourceWebsite, tr)
	if err != nil {
		s.writeIngestError(w, err)
		return
	}

	method, _ := data["extraction_method"].(string)
	writeJSON(w, http.StatusOK, map[string]any{
		"status":                "success",
		"message":               fmt.Sprintf("Property data extracted successfully using %s (not saved yet)", method),
		"property":              data,
		"extraction_method":     method,
		"extraction_confidence": data["confidence"],
	})
}

type ingestTextRequest struct {
	Text          string `json:"text"`
	SourceWebsite string `json:"source_website"`
}

func (s *Server) handleIngestText(w http.ResponseWriter, r *http.Request) {
	var req ingestTextRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if req.Text == "" {
		writeError(w, http.StatusBadRequest, "Text is required")
		return
	}

	data, err := s.pipeline.RunText(r.Context(), req.Text, req.SourceWebsite)
	if err != nil {
		s.writeIngestError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":                "success",
		"message":               "Property data extracted successfully (not saved yet)",
		"property":              data,
		"extraction_confidence": data["confidence"],
	})
}

type ingestBatchRequest struct {
	URLs  []string `json:"urls"`
	Async bool     `json:"async"`
}

func (s *Server) handleIngestBatch(w http.ResponseWriter, r *http.Request) {
	var req ingestBatchRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if len(req.URLs) == 0 {
		writeError(w, http.StatusBadRequest, "URLs array is required")
		return
	}

	if req.Async {
		summary := s.batch.RunAsync(context.WithoutCancel(r.Context()), req.URLs)

		taskIDs := make([]string, 0, len(summary.Results))
		for _, item := range summary.Results {
			taskIDs = append(taskIDs, item.TaskID)
		}

		writeJSON(w, http.StatusAccepted, map[string]any{
			"status":   "queued",
			"message":  fmt.Sprintf("%d properties queued for processing", len(req.URLs)),
			"task_ids": taskIDs,
		})
		return
	}

	summary, err := s.batch.RunSync(r.Context(), req.URLs)
	if err != nil {
		if errors.Is(err, workers.ErrBatchTooLarge) {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("Maximum %d URLs per batch", workers.MaxSyncBatch))
			return
		}
		writeError(w, http.StatusInternalServerError, "An unexpected error occurred")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "completed",
		"results": summary.Results,
	})
}

type saveRequest struct {
	PropertyData map[string]any `json:"property_data"`
}

func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	var req saveRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if len(req.PropertyData) == 0 {
		writeError(w, http.StatusBadRequest, "property_data is required")
		return
	}

	prop, err := s.pipeline.Save(r.Context(), req.PropertyData)
	if err != nil {
		var dup *pipeline.DuplicateError
		if errors.As(err, &dup) {
			writeJSON(w, http.StatusConflict, map[string]any{
				"status":        "error",
				"message":       fmt.Sprintf("This property already exists in the database (ID: %s)", dup.PropertyID),
				"property_id":   dup.PropertyID,
				"property_name": dup.PropertyName,
				"duplicate":     true,
			})
			return
		}
		log.Printf("Save error: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to save property")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"status":      "success",
		"message":     "Property saved successfully",
		"property_id": prop.ID,
		"property":    prop,
	})
}

type generateEmbeddingsRequest struct {
	Force bool `json:"force"`
}

func (s *Server) handleGenerateEmbeddings(w http.ResponseWriter, r *http.Request) {
	var req generateEmbeddingsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}

	processed, err := s.embedder.GenerateAll(r.Context(), req.Force)
	if err != nil {
		log.Printf("Embedding generation error: %v", err)
		writeError(w, http.StatusInternalServerError, "Embedding generation failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "success",
		"message":   "Embedding generation complete",
		"processed": processed,
	})
}

func (s *Server) handleSupportedWebsites(w http.ResponseWriter, r *http.Request) {
	type website struct {
		ID           string `json:"id"`
		Name         string `json:"name"`
		URL          string `json:"url,omitempty"`
		Color        string `json:"color"`
		Active       bool   `json:"active"`
		HasExtractor bool   `json:"has_extractor"`
	}

	var websites []website
	extractorCount := 0
	var extractorSites []string

	for id, site := range s.cfg.Sites {
		has := s.registry.HasExtractor(id)
		if has {
			extractorCount++
			extractorSites = append(extractorSites, id)
		}

		entry := website{
			ID:           id,
			Name:         site.Name,
			Color:        site.Color,
			Active:       site.Active,
			HasExtractor: has,
		}
		if len(site.Hosts) > 0 {
			entry.URL = "https://" + site.Hosts[0]
		}
		websites = append(websites, entry)
	}

	sort.Slice(websites, func(i, j int) bool { return websites[i].ID < websites[j].ID })
	sort.Strings(extractorSites)

	writeJSON(w, http.StatusOK, map[string]any{
		"status":           "success",
		"websites":         websites,
		"total_extractors": extractorCount,
		"extractor_sites":  extractorSites,
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.stats.IngestStats(r.Context(), s.tenantID)
	if err != nil {
		log.Printf("Stats error: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to fetch stats")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":                "success",
		"properties_today":      stats.Today,
		"properties_this_week":  stats.ThisWeek,
		"properties_this_month": stats.ThisMonth,
		"recent_properties":     stats.Recent,
	})
}

// writeIngestError maps pipeline failures onto the API: problems with
// the page or the extraction are the client's to see, everything else
// is a plain 500.
func (s *Server) writeIngestError(w http.ResponseWriter, err error) {
	var fe *fetcher.FetchError
	if errors.As(err, &fe) {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Scraping failed: %v", err))
		return
	}
	var ee *llm.ExtractionError
	if errors.As(err, &ee) {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Extraction failed: %v", err))
		return
	}

	log.Printf("Ingest error: %v", err)
	writeError(w, http.StatusInternalServerError, "An unexpected error occurred")
}
