// Package server exposes extraction, analysis, export and metrics over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/chalamandra/internal/ai"
	"github.com/hyperifyio/chalamandra/internal/analysis"
	"github.com/hyperifyio/chalamandra/internal/export"
	"github.com/hyperifyio/chalamandra/internal/extract"
	"github.com/hyperifyio/chalamandra/internal/metrics"
	"github.com/hyperifyio/chalamandra/internal/server/middleware"
)

// MaxBodyBytes caps request bodies.
const MaxBodyBytes = 10 << 20

// Pipeline runs an analysis from a page or from already extracted text and
// records the result.
type Pipeline interface {
	AnalyzePage(ctx context.Context, page extract.Page) (analysis.Report, error)
	AnalyzeText(ctx context.Context, in analysis.Input) (analysis.Report, error)
}

// Server holds the collaborators the routes need.
type Server struct {
	Pipeline  Pipeline
	Extractor extract.Extractor
	History   *analysis.History
	Metrics   *metrics.Log
	// AllowedOrigins configures CORS. Empty allows any origin.
	AllowedOrigins []string
	Now            func() time.Time
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	origins := s.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(middleware.Logger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{"X-Request-Id", "Content-Disposition"},
		MaxAge:         300,
	}))

	r.Get("/health", s.health)
	r.Route("/v1", func(r chi.Router) {
		r.Post("/messages", s.message)
		r.Post("/analyze", s.analyze)
		r.Get("/metrics", s.metrics)
		r.Route("/reports", func(r chi.Router) {
			r.Get("/", s.listReports)
			r.Get("/latest", s.latestReport)
			r.Get("/latest/export", s.exportLatest)
		})
	})
	return r
}

func (s *Server) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "healthy", "service": "chalamandra"})
}

type messageRequest struct {
	Action string `json:"action"`
	URL    string `json:"url"`
	HTML   string `json:"html"`
}

// message answers the page side protocol. Protocol failures are reported in
// the body with success false, not as HTTP errors.
func (s *Server) message(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if err := decode(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	resp := extract.HandleMessage(
		extract.Request{Action: req.Action},
		extract.Page{URL: req.URL, HTML: []byte(req.HTML)},
		s.Extractor,
		s.now(),
	)
	respondJSON(w, http.StatusOK, resp)
}

type analyzeRequest struct {
	URL      string `json:"url"`
	HTML     string `json:"html"`
	Content  string `json:"content"`
	Title    string `json:"title"`
	Language string `json:"language"`
}

func (s *Server) analyze(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if err := decode(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if s.Pipeline == nil {
		respondError(w, http.StatusServiceUnavailable, "analysis is not configured")
		return
	}
	var (
		rep analysis.Report
		err error
	)
	if strings.TrimSpace(req.HTML) != "" {
		rep, err = s.Pipeline.AnalyzePage(r.Context(), extract.Page{URL: req.URL, HTML: []byte(req.HTML)})
	} else {
		rep, err = s.Pipeline.AnalyzeText(r.Context(), analysis.Input{Content: req.Content, URL: req.URL, Title: req.Title, Language: req.Language})
	}
	if err != nil {
		respondError(w, statusFor(err), err.Error())
		return
	}
	respondJSON(w, http.StatusOK, rep)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, analysis.ErrInsufficientContent):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ai.ErrNotConfigured):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

func (s *Server) listReports(w http.ResponseWriter, _ *http.Request) {
	reports := []analysis.Report{}
	if s.History != nil {
		reports = s.History.All()
	}
	respondJSON(w, http.StatusOK, reports)
}

func (s *Server) latest(w http.ResponseWriter) (analysis.Report, bool) {
	if s.History != nil {
		if rep, ok := s.History.Latest(); ok {
			return rep, true
		}
	}
	respondError(w, http.StatusNotFound, "no analysis yet")
	return analysis.Report{}, false
}

func (s *Server) latestReport(w http.ResponseWriter, _ *http.Request) {
	if rep, ok := s.latest(w); ok {
		respondJSON(w, http.StatusOK, rep)
	}
}

func (s *Server) exportLatest(w http.ResponseWriter, _ *http.Request) {
	rep, ok := s.latest(w)
	if !ok {
		return
	}
	b, err := export.Marshal(rep)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.FileName(s.now())))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(b)
}

func (s *Server) metrics(w http.ResponseWriter, r *http.Request) {
	if s.Metrics == nil {
		respondJSON(w, http.StatusOK, metrics.Summarize(nil))
		return
	}
	rep, err := s.Metrics.Report(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, rep)
}

func decode(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, MaxBodyBytes)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Debug().Err(err).Msg("write response")
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
