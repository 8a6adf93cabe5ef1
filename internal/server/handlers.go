package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/lifecycle"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/storage"
)

var errNoTexts = errors.New("texts cannot be empty")

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"service": "kotae",
		"version": s.version,
		"endpoints": []string{
			"POST /v1/search",
			"POST /v1/embeddings",
			"GET /v1/documents",
			"GET /v1/documents/{id}",
			"GET /v1/overview",
			"GET /v1/stats",
			"GET /health",
			"GET /health/live",
			"GET /health/ready",
		},
	})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var query models.SearchQuery
	if err := json.NewDecoder(r.Body).Decode(&query); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.logger.Debug("search request", zap.String("query", query.Query), zap.Int("limit", query.Limit))
	response, err := s.search.Search(r.Context(), &query)
	if err != nil {
		s.fail(w, "search failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, response)
}

func (s *Server) handleEmbeddings(w http.ResponseWriter, r *http.Request) {
	var req models.EmbedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Texts) == 0 {
		s.fail(w, "embedding failed", errNoTexts)
		return
	}
	response, err := s.search.Embed(r.Context(), req.Texts)
	if err != nil {
		s.fail(w, "embedding failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, response)
}

const defaultListLimit = 100

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r, "limit", defaultListLimit)
	if err != nil {
		s.fail(w, "list documents failed", err)
		return
	}
	offset, err := intParam(r, "offset", 0)
	if err != nil {
		s.fail(w, "list documents failed", err)
		return
	}
	docs, err := s.search.ListDocuments(r.Context(), limit, offset)
	if err != nil {
		s.fail(w, "list documents failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"documents": docs,
		"count":     len(docs),
	})
}

// intParam reads a non-negative integer query parameter, returning def when absent.
func intParam(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %s must be a non-negative integer", models.ErrInvalidPage, name)
	}
	return n, nil
}

func (s *Server) handleOverview(w http.ResponseWriter, r *http.Request) {
	o, err := s.search.Overview(r.Context())
	if err != nil {
		s.fail(w, "overview failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, o)
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := s.search.Document(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, "get document failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, doc)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	st, err := s.search.Stats(r.Context())
	if err != nil {
		s.fail(w, "stats failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, st)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())
	status := http.StatusOK
	if !report.Accepting() {
		status = http.StatusServiceUnavailable
	}
	s.respondJSON(w, status, report)
}

func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

// statusFor maps an operation error to an HTTP status.
func statusFor(err error) int {
	var se *embedding.StatusError
	switch {
	case errors.Is(err, models.ErrEmptyQuery),
		errors.Is(err, models.ErrInvalidPage),
		errors.Is(err, errNoTexts):
		return http.StatusBadRequest
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, lifecycle.ErrNotStarted),
		errors.Is(err, lifecycle.ErrInitTimeout),
		errors.Is(err, lifecycle.ErrInitFailed):
		return http.StatusServiceUnavailable
	case errors.As(err, &se):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case embedding.IsTransient(err):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(w http.ResponseWriter, msg string, err error) {
	status := statusFor(err)
	if status >= 500 {
		s.logger.Error(msg, zap.Error(err), zap.Int("status", status))
	}
	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "5")
	}
	s.respondError(w, status, err.Error())
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
