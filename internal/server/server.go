// Package server exposes the correction engine over HTTP.
package server

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/sells-group/docfix/internal/feedback"
	"github.com/sells-group/docfix/internal/model"
	"github.com/sells-group/docfix/internal/monitoring"
)

// Corrector resolves single field values.
type Corrector interface {
	Correct(ctx context.Context, kind model.FieldKind, raw string) (*model.FieldValue, error)
}

// BatchProcessor runs documents through extraction and correction.
type BatchProcessor interface {
	ProcessBatch(ctx context.Context, docs []model.Document) (*model.BatchResult, error)
}

// FeedbackService records review decisions.
type FeedbackService interface {
	Submit(ctx context.Context, sub feedback.Submission) (*model.FeedbackRecord, error)
}

// AnalyzerService mines feedback and promotes stable patterns.
type AnalyzerService interface {
	Analyze(ctx context.Context) ([]model.ProposedEntry, error)
	Run(ctx context.Context) ([]model.ProposedEntry, int, error)
}

// CorrectionLister exports the active corrections.
type CorrectionLister interface {
	Export(ctx context.Context) ([]model.CorrectionEntry, error)
}

// MetricsSource produces health snapshots.
type MetricsSource interface {
	Collect(ctx context.Context) (*monitoring.MetricsSnapshot, error)
}

// Server wires the HTTP API.
type Server struct {
	corrector   Corrector
	batch       BatchProcessor
	feedback    FeedbackService
	analyzer    AnalyzerService
	corrections CorrectionLister
	metrics     MetricsSource
}

// New creates a Server over the given services.
func New(corrector Corrector, batch BatchProcessor, fb FeedbackService, an AnalyzerService, corrections CorrectionLister, metrics MetricsSource) *Server {
	return &Server{
		corrector:   corrector,
		batch:       batch,
		feedback:    fb,
		analyzer:    an,
		corrections: corrections,
		metrics:     metrics,
	}
}

// Handler builds the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/correct", s.handleCorrect)
		r.Post("/batch", s.handleBatch)
		r.Post("/feedback", s.handleFeedback)
		r.Post("/feedback/analyze", s.handleAnalyze)
		r.Get("/corrections", s.handleCorrections)
		r.Get("/stats", s.handleStats)
	})

	return r
}

type correctRequest struct {
	FieldKind model.FieldKind `json:"field_kind"`
	Text      string          `json:"text"`
}

func (s *Server) handleCorrect(w http.ResponseWriter, r *http.Request) {
	var req correctRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	fv, err := s.corrector.Correct(r.Context(), req.FieldKind, req.Text)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, fv)
}

type batchRequest struct {
	Documents []model.Document `json:"documents"`
}

func (s *Server) handleBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Documents) == 0 {
		writeError(w, http.StatusBadRequest, "documents is required")
		return
	}

	result, err := s.batch.ProcessBatch(r.Context(), req.Documents)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleFeedback(w http.ResponseWriter, r *http.Request) {
	var sub feedback.Submission
	if err := json.NewDecoder(r.Body).Decode(&sub); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	rec, err := s.feedback.Submit(r.Context(), sub)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	apply := r.URL.Query().Get("apply") == "true"

	if apply {
		proposals, applied, err := s.analyzer.Run(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"proposals": proposals,
			"applied":   applied,
		})
		return
	}

	proposals, err := s.analyzer.Analyze(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"proposals": proposals})
}

func (s *Server) handleCorrections(w http.ResponseWriter, r *http.Request) {
	entries, err := s.corrections.Export(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"corrections": entries})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	snap, err := s.metrics.Collect(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Error("response encode failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
