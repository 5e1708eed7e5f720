// Package api serves a small JSON API for operating a running pipeline:
// inspecting sources and jobs and triggering scrapes, retries and publish
// runs.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/SmillingSword/news-reynra/internal/config"
	"github.com/SmillingSword/news-reynra/internal/publisher"
	"github.com/SmillingSword/news-reynra/internal/scheduler"
	"github.com/SmillingSword/news-reynra/internal/types"
)

// Scheduler is the dispatch surface the API triggers.
type Scheduler interface {
	Run(ctx context.Context, f scheduler.Filter, jobType types.JobType) ([]scheduler.Result, error)
	RetryFailed(ctx context.Context) ([]scheduler.Result, error)
	Async() bool
}

// Store is the read side the API exposes.
type Store interface {
	ListSources(ctx context.Context) ([]*types.NewsSource, error)
	GetJob(ctx context.Context, id int64) (*types.ScrapingJob, error)
}

// Publisher publishes ready drafts.
type Publisher interface {
	PublishReady(ctx context.Context, opts publisher.Options) (publisher.Result, error)
	Defaults() publisher.Options
}

// StatsFunc returns counters to report under /api/status.
type StatsFunc func() map[string]any

// Server provides the operations API.
type Server struct {
	mux    *http.ServeMux
	port   int
	logger *slog.Logger

	sched     Scheduler
	store     Store
	publisher Publisher
	stats     StatsFunc
	now       func() time.Time
}

// NewServer creates a new API server.
func NewServer(port int, sched Scheduler, store Store, pub Publisher, stats StatsFunc, logger *slog.Logger) *Server {
	s := &Server{
		mux:       http.NewServeMux(),
		port:      port,
		logger:    logger.With("component", "api_server"),
		sched:     sched,
		store:     store,
		publisher: pub,
		stats:     stats,
		now:       time.Now,
	}

	s.registerRoutes()
	return s
}

// Handler returns the API's HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Start serves the API until ctx is done.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", s.port)
	srv := &http.Server{Addr: addr, Handler: s.mux, ReadHeaderTimeout: 5 * time.Second}
	s.logger.Info("API server starting", "addr", addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	return nil
}

func (s *Server) registerRoutes() {
	// Health
	s.mux.HandleFunc("GET /api/health", s.handleHealth)
	s.mux.HandleFunc("GET /api/status", s.handleStatus)

	// Sources and jobs
	s.mux.HandleFunc("GET /api/sources", s.handleListSources)
	s.mux.HandleFunc("GET /api/jobs/{id}", s.handleGetJob)

	// Triggers
	s.mux.HandleFunc("POST /api/scrape", s.handleScrape)
	s.mux.HandleFunc("POST /api/retry", s.handleRetry)
	s.mux.HandleFunc("POST /api/publish", s.handlePublish)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": config.Version,
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{"async": s.sched.Async()}
	if s.stats != nil {
		body["stats"] = s.stats()
	}
	s.jsonResponse(w, http.StatusOK, body)
}

// sourceView adds readiness to a source.
type sourceView struct {
	*types.NewsSource
	Ready       bool    `json:"ready"`
	SuccessRate float64 `json:"success_rate"`
}

func (s *Server) handleListSources(w http.ResponseWriter, r *http.Request) {
	sources, err := s.store.ListSources(r.Context())
	if err != nil {
		s.errorResponse(w, err)
		return
	}
	now := s.now()
	out := make([]sourceView, 0, len(sources))
	for _, src := range sources {
		out = append(out, sourceView{NewsSource: src, Ready: src.IsReady(now), SuccessRate: src.SuccessRate()})
	}
	s.jsonResponse(w, http.StatusOK, out)
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		s.jsonResponse(w, http.StatusBadRequest, map[string]string{"error": "invalid job id"})
		return
	}
	job, err := s.store.GetJob(r.Context(), id)
	if err != nil {
		s.errorResponse(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, job)
}

// dispatchView is the JSON form of a scheduler.Result.
type dispatchView struct {
	Source string             `json:"source"`
	TaskID string             `json:"task_id,omitempty"`
	Job    *types.ScrapingJob `json:"job,omitempty"`
	Error  string             `json:"error,omitempty"`
}

func views(results []scheduler.Result) []dispatchView {
	out := make([]dispatchView, 0, len(results))
	for _, r := range results {
		v := dispatchView{Source: r.Source.Slug, TaskID: r.TaskID, Job: r.Job}
		if r.Err != nil {
			v.Error = r.Err.Error()
		}
		out = append(out, v)
	}
	return out
}

func (s *Server) handleScrape(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Sources    []string `json:"sources"`
		GamingOnly bool     `json:"gaming_only"`
		Force      bool     `json:"force"`
	}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			s.jsonResponse(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
			return
		}
	}

	f := scheduler.Filter{Sources: body.Sources, GamingOnly: body.GamingOnly, Force: body.Force}
	results, err := s.sched.Run(r.Context(), f, types.JobManual)
	if err != nil {
		s.errorResponse(w, err)
		return
	}
	s.jsonResponse(w, s.dispatchStatus(), views(results))
}

func (s *Server) handleRetry(w http.ResponseWriter, r *http.Request) {
	results, err := s.sched.RetryFailed(r.Context())
	if err != nil {
		s.errorResponse(w, err)
		return
	}
	s.jsonResponse(w, s.dispatchStatus(), views(results))
}

func (s *Server) handlePublish(w http.ResponseWriter, r *http.Request) {
	if s.publisher == nil {
		s.jsonResponse(w, http.StatusServiceUnavailable, map[string]string{"error": "publisher not configured"})
		return
	}
	opts := s.publisher.Defaults()
	q := r.URL.Query()
	if v := q.Get("min_age"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			s.jsonResponse(w, http.StatusBadRequest, map[string]string{"error": "invalid min_age"})
			return
		}
		opts.MinAge = d
	}
	if v := q.Get("min_length"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			s.jsonResponse(w, http.StatusBadRequest, map[string]string{"error": "invalid min_length"})
			return
		}
		opts.MinLength = n
	}

	res, err := s.publisher.PublishReady(r.Context(), opts)
	if err != nil {
		s.errorResponse(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{
		"considered": res.Considered,
		"published":  res.Published,
		"too_short":  res.TooShort,
		"failed":     res.Failed,
	})
}

// dispatchStatus is 202 when work was only queued.
func (s *Server) dispatchStatus() int {
	if s.sched.Async() {
		return http.StatusAccepted
	}
	return http.StatusOK
}

func (s *Server) errorResponse(w http.ResponseWriter, err error) {
	if errors.Is(err, types.ErrNotFound) {
		s.jsonResponse(w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	}
	s.logger.Error("request failed", "error", err)
	s.jsonResponse(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
}

func (s *Server) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
