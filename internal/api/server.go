// Package api exposes the pipeline and the lead store over HTTP.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/FranksOps/leadfinder/internal/apperr"
	"github.com/FranksOps/leadfinder/internal/export"
	"github.com/FranksOps/leadfinder/internal/metrics"
	"github.com/FranksOps/leadfinder/internal/pipeline"
	"github.com/FranksOps/leadfinder/internal/storage"
)

// Runner runs scrape jobs.
type Runner interface {
	Run(ctx context.Context, req pipeline.Request) (*pipeline.JobResult, error)
}

// Server holds the HTTP handlers.
type Server struct {
	runner Runner
	repo   storage.Repository
	logger *slog.Logger
}

// New creates a Server.
func New(runner Runner, repo storage.Repository, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{runner: runner, repo: repo, logger: logger}
}

// Routes returns the router with all endpoints and middleware mounted.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.health)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Post("/scrape", s.scrape)
		r.Get("/leads", s.leads)
		r.Get("/export", s.export)
		r.Get("/business/{id}", s.getBusiness)
		r.Delete("/business/{id}", s.deleteBusiness)
	})
	return r
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		defer func() {
			s.logger.Info("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"request_id", middleware.GetReqID(r.Context()),
			)
		}()
		next.ServeHTTP(ww, r)
	})
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.repo.Ping(ctx); err != nil {
		s.logger.Warn("health check failed", "err", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded", "database": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "database": "ok"})
}

type scrapeResponse struct {
	JobID      string              `json:"job_id"`
	State      pipeline.State      `json:"state"`
	Count      int                 `json:"count"`
	Businesses []*storage.Business `json:"businesses"`
	Errors     []pipeline.JobError `json:"errors"`
}

func (s *Server) scrape(w http.ResponseWriter, r *http.Request) {
	var req pipeline.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, apperr.Wrap(apperr.KindValidation, "request body must be a JSON object", err))
		return
	}

	res, err := s.runner.Run(r.Context(), req)
	if err != nil && res == nil {
		s.writeError(w, err)
		return
	}
	if err != nil {
		// Cancelled mid-job; the client is most likely gone already.
		s.logger.Warn("scrape job interrupted", "job", res.ID, "err", err)
	}

	// Businesses are re-read so the response reflects what was stored.
	out := scrapeResponse{
		JobID:      res.ID,
		State:      res.State,
		Count:      res.Count,
		Businesses: make([]*storage.Business, 0, len(res.BusinessIDs)),
		Errors:     res.Errors,
	}
	for _, id := range res.BusinessIDs {
		b, err := s.repo.Get(r.Context(), id)
		if err != nil {
			s.logger.Warn("re-read of persisted business failed", "job", res.ID, "business", id, "err", err)
			continue
		}
		out.Businesses = append(out.Businesses, b)
	}
	writeJSON(w, http.StatusOK, out)
}

func parseFilter(r *http.Request) (storage.Filter, error) {
	var f storage.Filter
	q := r.URL.Query()

	if v := q.Get("min_score"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 || n > 100 {
			return f, apperr.Validation("min_score must be an integer between 0 and 100")
		}
		f.MinScore = n
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return f, apperr.Validation("limit must be a non-negative integer")
		}
		f.Limit = n
	}
	f.Category = q.Get("category")
	return f, nil
}

func (s *Server) leads(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilter(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	businesses, err := s.repo.Query(r.Context(), f)
	if err != nil {
		s.writeError(w, apperr.Wrap(apperr.KindPersistence, "query leads", err))
		return
	}
	if businesses == nil {
		businesses = []*storage.Business{}
	}
	writeJSON(w, http.StatusOK, businesses)
}

func (s *Server) export(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilter(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	format, err := export.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		s.writeError(w, err)
		return
	}

	var buf bytes.Buffer
	if _, err := export.Write(r.Context(), s.repo, f, format, &buf); err != nil {
		s.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", format.Filename()))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) getBusiness(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	b, err := s.repo.Get(r.Context(), id)
	if err != nil {
		s.writeError(w, storeError(err, id))
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (s *Server) deleteBusiness(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.repo.Delete(r.Context(), id); err != nil {
		s.writeError(w, storeError(err, id))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func storeError(err error, id string) error {
	if errors.Is(err, storage.ErrNotFound) {
		return apperr.NotFound(fmt.Sprintf("business %q not found", id))
	}
	return apperr.Wrap(apperr.KindPersistence, "storage unavailable", err)
}

type errorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := apperr.Status(err)
	body := errorBody{Error: "internal error", Kind: apperr.KindInternal.String()}

	var e *apperr.Error
	if errors.As(err, &e) {
		body.Kind = e.Kind.String()
		if e.Kind != apperr.KindInternal && e.Kind != apperr.KindUnknown {
			body.Error = e.Message
		}
	}
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "status", status, "err", err)
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
