// Package api exposes a read-only HTTP status surface over the state
// store: batches, their per-stage progress, documents and settings.
// External dashboards consume it; nothing here mutates pipeline state.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/spm-edge/spmedge/internal/db"
	"github.com/spm-edge/spmedge/internal/spmedge"
)

// Store is the read-only slice of the state store the server needs.
type Store interface {
	ListBatches(ctx context.Context) ([]*spmedge.Batch, error)
	GetBatch(ctx context.Context, id string) (*spmedge.Batch, error)
	BatchStageCounts(ctx context.Context, batchID string) ([]db.StageCount, error)
	ListDocumentsByBatch(ctx context.Context, batchID string) ([]*spmedge.Document, error)
	ListPipelineRecords(ctx context.Context, documentID string) ([]*spmedge.PipelineRecord, error)
	ListSettings(ctx context.Context) (map[string]string, error)
}

type Server struct {
	store Store
}

func NewServer(store Store) *Server {
	return &Server{store: store}
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET"},
		AllowedHeaders:   []string{"Content-Type"},
		AllowCredentials: true,
	}))
	r.Route("/api", func(r chi.Router) {
		r.Route("/batches", func(r chi.Router) {
			r.Get("/", s.listBatches)
			r.Get("/{id}", s.getBatch)
			r.Get("/{id}/documents", s.listBatchDocuments)
		})
		r.Get("/documents/{id}/pipeline", s.getDocumentPipeline)
		r.Get("/settings", s.listSettings)
		r.Get("/health", s.health)
	})
	return r
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) listBatches(w http.ResponseWriter, r *http.Request) {
	batches, err := s.store.ListBatches(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if batches == nil {
		batches = []*spmedge.Batch{}
	}
	writeJSON(w, http.StatusOK, batches)
}

// batchDetail pairs a batch with its per-stage document counts, the same
// view the batch status CLI command prints.
type batchDetail struct {
	*spmedge.Batch
	Stages []db.StageCount `json:"stages"`
}

func (s *Server) getBatch(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	batch, err := s.store.GetBatch(r.Context(), id)
	if err != nil {
		if errors.Is(err, spmedge.ErrNotFound) {
			writeError(w, http.StatusNotFound, err)
		} else {
			writeError(w, http.StatusInternalServerError, err)
		}
		return
	}
	counts, err := s.store.BatchStageCounts(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if counts == nil {
		counts = []db.StageCount{}
	}
	writeJSON(w, http.StatusOK, batchDetail{Batch: batch, Stages: counts})
}

func (s *Server) listBatchDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := s.store.ListDocumentsByBatch(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if docs == nil {
		docs = []*spmedge.Document{}
	}
	writeJSON(w, http.StatusOK, docs)
}

func (s *Server) getDocumentPipeline(w http.ResponseWriter, r *http.Request) {
	recs, err := s.store.ListPipelineRecords(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if recs == nil {
		recs = []*spmedge.PipelineRecord{}
	}
	writeJSON(w, http.StatusOK, recs)
}

func (s *Server) listSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := s.store.ListSettings(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if settings == nil {
		settings = map[string]string{}
	}
	writeJSON(w, http.StatusOK, settings)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("write response failed", "err", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
