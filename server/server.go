// Package server exposes the ingestion HTTP API and the WebSocket
// progress bridge.
package server

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"casaingest/config"
	"casaingest/extractor"
	"casaingest/models"
	"casaingest/pipeline"
	"casaingest/progress"
	"casaingest/workers"
)

// StatsStore backs the stats endpoint.
type StatsStore interface {
	IngestStats(ctx context.Context, tenantID string) (*models.IngestStats, error)
}

type Server struct {
	cfg      *config.Config
	pipeline *pipeline.Pipeline
	worker   *workers.IngestWorker
	batch    *workers.BatchRunner
	embedder *workers.EmbeddingWorker
	stats    StatsStore
	registry *extractor.Registry
	bus      progress.Bus
	tenantID string
	mux      *http.ServeMux
}

func New(cfg *config.Config, p *pipeline.Pipeline, worker *workers.IngestWorker, batch *workers.BatchRunner, embedder *workers.EmbeddingWorker, stats StatsStore, registry *extractor.Registry, bus progress.Bus, tenantID string) *Server {
	s := &Server{
		cfg:      cfg,
		pipeline: p,
		worker:   worker,
		batch:    batch,
		embedder: embedder,
		stats:    stats,
		registry: registry,
		bus:      bus,
		tenantID: tenantID,
		mux:      http.NewServeMux(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("POST /ingest/url", s.handleIngestURL)
	s.mux.HandleFunc("POST /ingest/text", s.handleIngestText)
	s.mux.HandleFunc("POST /ingest/batch", s.handleIngestBatch)
	s.mux.HandleFunc("POST /ingest/save", s.handleSave)
	s.mux.HandleFunc("POST /ingest/generate-embeddings", s.handleGenerateEmbeddings)
	s.mux.HandleFunc("GET /ingest/supported-websites", s.handleSupportedWebsites)
	s.mux.HandleFunc("GET /ingest/stats", s.handleStats)
	s.mux.HandleFunc("GET /ws/progress/{task_id}", s.handleProgressWS)
	s.mux.HandleFunc("GET /health", s.handleHealth)
}

func (s *Server) Handler() http.Handler {
	return recoverMiddleware(s.mux)
}

func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.cfg.ListenAddr,
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("Warning: server shutdown: %v", err)
		}
	}()

	log.Printf("HTTP server listening on %s", s.cfg.ListenAddr)
	err := srv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

// recoverMiddleware turns handler panics into plain 500s so internals
// never leak to clients.
func recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				log.Printf("Panic in %s %s: %v", r.Method, r.URL.Path, rec)
				writeJSON(w, http.StatusInternalServerError, map[string]any{
					"error": "An unexpected error occurred",
				})
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Warning: encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": message})
}

func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}
