// Package server exposes the query, feedback and ingestion pipelines over
// HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/balidesk/oracle/pkg/ingest"
	"github.com/balidesk/oracle/pkg/oerr"
	"github.com/balidesk/oracle/pkg/orchestrator"
	"github.com/balidesk/oracle/pkg/store"
)

// RatingStore persists feedback ratings.
type RatingStore interface {
	InsertConversationRating(ctx context.Context, r *store.ConversationRating) error
}

// DocumentReader answers the parent-document endpoints.
type DocumentReader interface {
	GetParentDocumentsByDocumentID(ctx context.Context, documentID string) ([]*store.ParentDocument, error)
	GetChapterFullText(ctx context.Context, documentID, chapterID string) (string, error)
	UpsertParentDocument(ctx context.Context, doc *store.ParentDocument) error
}

// Config configures the HTTP server.
type Config struct {
	Port int

	// RequestTimeout bounds one query request. Zero uses 60s.
	RequestTimeout time.Duration
}

// Server is the HTTP surface over the pipelines. Optional collaborators
// may be nil; their endpoints then return 503.
type Server struct {
	cfg       Config
	orch      *orchestrator.Orchestrator
	ingestor  *ingest.Ingestor
	ratings   RatingStore
	documents DocumentReader

	http *http.Server
}

// New creates the server and its routes.
func New(cfg Config, orch *orchestrator.Orchestrator, ingestor *ingest.Ingestor,
	ratings RatingStore, documents DocumentReader) *Server {
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = 60 * time.Second
	}

	s := &Server{
		cfg:       cfg,
		orch:      orch,
		ingestor:  ingestor,
		ratings:   ratings,
		documents: documents,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(cfg.RequestTimeout))

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Post("/query", s.handleQuery)
	r.Post("/feedback", s.handleFeedback)

	r.Route("/ingest", func(r chi.Router) {
		r.Post("/", s.handleIngest)
		r.Post("/batch", s.handleIngestBatch)
	})

	r.Route("/internal/documents", func(r chi.Router) {
		r.Post("/", s.handleRegisterDocument)
		r.Get("/{documentID}", s.handleGetDocuments)
		r.Get("/{documentID}/chapters/{chapterID}", s.handleGetChapter)
	})

	s.http = &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: r,

		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	slog.Info("HTTP server listening", "addr", s.http.Addr)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// errorBody is the stable error shape for every endpoint.
type errorBody struct {
	ErrorCode string `json:"error_code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id"`
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Warn("Failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := oerr.KindOf(err)
	status := oerr.HTTPStatus(kind)
	if status >= 500 {
		slog.Error("Request failed", "path", r.URL.Path, "error", err)
	}
	writeJSON(w, status, errorBody{
		ErrorCode: string(kind),
		Message:   err.Error(),
		RequestID: middleware.GetReqID(r.Context()),
	})
}

func decodeJSON(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return oerr.E(oerr.KindInputInvalid, "server.decode", err)
	}
	return nil
}

func unavailable(w http.ResponseWriter, r *http.Request, what string) {
	writeError(w, r, oerr.Errorf(oerr.KindPoolExhausted, "server", "%s is not configured", what))
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		slog.Info("Request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(started),
			"request_id", middleware.GetReqID(r.Context()))
	})
}

// newRatingID mints a rating primary key.
func newRatingID() string { return uuid.NewString() }
