// Package api exposes the HTTP interface for the visitor profiler service.
package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/visitorlabs/profiler/internal/config"
	"github.com/visitorlabs/profiler/internal/metrics"
	"github.com/visitorlabs/profiler/internal/pipeline"
	"github.com/visitorlabs/profiler/internal/profile"
	"github.com/visitorlabs/profiler/internal/siteid"
)

// visitorHeader carries the caller's visitor identity.
const visitorHeader = "X-Visitor-ID"

// Server wires HTTP handlers to the derivation pipeline.
type Server struct {
	router   chi.Router
	pipeline *pipeline.Pipeline
	cfg      config.Config
	logger   *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(p *pipeline.Pipeline, cfg config.Config, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		pipeline: p,
		cfg:      cfg,
		logger:   logger,
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(metricsMiddleware)
	r.Use(timeoutMiddleware(120 * time.Second))
	if cfg.Auth.Enabled {
		r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
	}

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Route("/sites", func(r chi.Router) {
			r.Post("/derive", s.deriveSite)
			r.Post("/answers", s.submitAnswers)
		})
		r.Route("/visitors/me", func(r chi.Router) {
			r.Get("/", s.getVisitor)
			r.Get("/site", s.getVisitorSite)
		})
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type deriveRequest struct {
	URL string `json:"url"`
}

type deriveResponse struct {
	Site      profile.SiteKey     `json:"site"`
	Questions profile.QuestionSet `json:"questions"`
	Summary   string              `json:"summary"`
}

func (s *Server) deriveSite(w http.ResponseWriter, r *http.Request) {
	visitorID, ok := s.visitorID(w, r)
	if !ok {
		return
	}
	var req deriveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.URL == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "url is required")
		return
	}
	questions, summary, err := s.pipeline.GetOrDeriveSite(r.Context(), visitorID, req.URL)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	key, _ := siteid.Normalize(req.URL)
	writeJSON(w, http.StatusOK, deriveResponse{Site: key, Questions: questions, Summary: summary})
}

type answersRequest struct {
	URL     string           `json:"url"`
	Answers []profile.Answer `json:"answers"`
}

type answersResponse struct {
	Site       profile.SiteKey    `json:"site"`
	Categories []profile.Category `json:"categories"`
}

func (s *Server) submitAnswers(w http.ResponseWriter, r *http.Request) {
	visitorID, ok := s.visitorID(w, r)
	if !ok {
		return
	}
	var req answersRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.URL == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "url is required")
		return
	}
	if len(req.Answers) == 0 {
		writeError(w, http.StatusBadRequest, "bad_request", "answers are required")
		return
	}
	categories, err := s.pipeline.SubmitAnswers(r.Context(), visitorID, req.URL, req.Answers)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	key, _ := siteid.Normalize(req.URL)
	writeJSON(w, http.StatusOK, answersResponse{Site: key, Categories: categories})
}

type visitorResponse struct {
	VisitorID  string                `json:"visitorId"`
	Sites      []profile.SiteKey     `json:"sites"`
	Categories []visitorSiteCategory `json:"categories"`
}

type visitorSiteCategory struct {
	Site     profile.SiteKey `json:"site"`
	Category string          `json:"category"`
	Labels   []string        `json:"labels"`
}

func (s *Server) getVisitor(w http.ResponseWriter, r *http.Request) {
	visitorID, ok := s.visitorID(w, r)
	if !ok {
		return
	}
	doc, err := s.pipeline.GetVisitor(r.Context(), visitorID)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	resp := visitorResponse{
		VisitorID:  doc.VisitorID,
		Sites:      make([]profile.SiteKey, 0, len(doc.Sites)),
		Categories: make([]visitorSiteCategory, 0, len(doc.Sites)),
	}
	for _, site := range doc.Sites {
		resp.Sites = append(resp.Sites, site.Address)
		for _, cat := range site.Categories {
			resp.Categories = append(resp.Categories, visitorSiteCategory{
				Site:     site.Address,
				Category: cat.Category,
				Labels:   cat.Labels,
			})
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) getVisitorSite(w http.ResponseWriter, r *http.Request) {
	visitorID, ok := s.visitorID(w, r)
	if !ok {
		return
	}
	rawURL := r.URL.Query().Get("url")
	if rawURL == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "url query parameter is required")
		return
	}
	entry, err := s.pipeline.GetSiteForVisitor(r.Context(), visitorID, rawURL)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// visitorID extracts the visitor identity header, failing the request when
// it is absent.
func (s *Server) visitorID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := r.Header.Get(visitorHeader)
	if id == "" {
		writeError(w, http.StatusBadRequest, "bad_request", visitorHeader+" header is required")
		return "", false
	}
	return id, true
}

// writeDomainError maps pipeline errors onto HTTP statuses and the shared
// error body shape.
func (s *Server) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		mismatch  *profile.AnswerCountMismatchError
		fetchErr  *profile.FetchError
		callErr   *profile.ClassifierCallError
		outputErr *profile.ClassifierOutputError
	)
	switch {
	case errors.Is(err, profile.ErrInvalidURL):
		writeError(w, http.StatusBadRequest, "invalid_url", err.Error())
	case errors.As(err, &mismatch):
		writeError(w, http.StatusBadRequest, "answer_count_mismatch", err.Error())
	case errors.Is(err, profile.ErrNoTaxonomy):
		writeError(w, http.StatusNotFound, "no_taxonomy", err.Error())
	case errors.Is(err, profile.ErrSiteNotFound), errors.Is(err, profile.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.As(err, &fetchErr):
		writeError(w, http.StatusBadGateway, "fetch_failed", err.Error())
	case errors.As(err, &callErr):
		writeError(w, http.StatusBadGateway, "classifier_unavailable", err.Error())
	case errors.As(err, &outputErr):
		writeError(w, http.StatusInternalServerError, "classifier_output", err.Error())
	case errors.Is(err, profile.ErrCacheIntegrity):
		writeError(w, http.StatusInternalServerError, "cache_integrity", err.Error())
	case errors.Is(err, profile.ErrWriteConflict):
		writeError(w, http.StatusInternalServerError, "write_conflict", err.Error())
	default:
		s.logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal", "internal server error")
	}
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func loggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			logger.Info("request completed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.status),
				zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			)
		})
	}
}

func recoverMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered", zap.Any("error", rec))
					writeError(w, http.StatusInternalServerError, "internal", "internal server error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = "unmatched"
		}
		metrics.ObserveHTTPRequest(r.Method, route, ww.status, time.Since(start))
	})
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	if err != nil {
		return n, fmt.Errorf("write response: %w", err)
	}
	return n, nil
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := rw.ResponseWriter.(http.Hijacker); ok {
		conn, buf, err := h.Hijack()
		if err != nil {
			return nil, nil, fmt.Errorf("hijack connection: %w", err)
		}
		return conn, buf, nil
	}
	return nil, nil, errors.New("hijacker not supported")
}

type requestIDKey struct{}

func apiKeyMiddleware(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				key = r.URL.Query().Get("api_key")
			}
			if key != expected {
				writeError(w, http.StatusForbidden, "unauthorized", "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type errorBody struct {
	Kind   string `json:"kind"`
	Detail string `json:"detail"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, kind, detail string) {
	writeJSON(w, status, map[string]errorBody{"error": {Kind: kind, Detail: detail}})
}
