// Package server exposes KPI documents, repository stats and label metadata
// over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/singleflight"

	"github.com/danielolaszy/cadence/internal/kpi"
	"github.com/danielolaszy/cadence/internal/labels"
	"github.com/danielolaszy/cadence/internal/logging"
	"github.com/danielolaszy/cadence/pkg/models"
)

// Calculator produces KPI documents.
type Calculator interface {
	CalculateAllKPIs(ctx context.Context, q kpi.Query) kpi.Document
}

// StatsReader reports repository statistics.
type StatsReader interface {
	Stats(ctx context.Context) (models.RepositoryStats, error)
}

// Server handles HTTP requests
type Server struct {
	Router *chi.Mux

	engine Calculator
	stats  StatsReader
	labels *labels.Table
	group  singleflight.Group
	log    *slog.Logger
}

// New creates a Server. stats and table may be nil.
func New(engine Calculator, stats StatsReader, table *labels.Table) *Server {
	s := &Server{
		engine: engine,
		stats:  stats,
		labels: table,
		log:    logging.With("component", "server"),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(2 * time.Minute))

	r.Get("/healthz", s.healthCheck)

	r.Route("/api", func(r chi.Router) {
		r.Get("/kpis", s.getKPIs)
		r.Get("/kpis/{name}", s.getKPI)
		r.Get("/stats", s.getStats)
		r.Get("/labels", s.getLabels)
	})

	s.Router = r
}

// ListenAndServe serves on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("failed to serve: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.log.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()))
	})
}

func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
	})
}

// getKPIs serves the full document. Identical concurrent requests share one
// calculation.
func (s *Server) getKPIs(w http.ResponseWriter, r *http.Request) {
	q, err := parseQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, s.document(r.Context(), q))
}

// getKPI serves one KPI of the document together with its per-project records.
func (s *Server) getKPI(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if !knownKPI(name) {
		writeError(w, http.StatusNotFound, fmt.Errorf("unknown KPI %q", name))
		return
	}
	q, err := parseQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	doc := s.document(r.Context(), q)
	byProject := make(map[string]any, len(doc.KPIsByProject))
	for p, recs := range doc.KPIsByProject {
		byProject[p] = pick(recs, name)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"name":            name,
		"generated_at":    doc.GeneratedAt,
		"generation":      doc.Generation,
		"analysis_period": doc.AnalysisPeriod,
		"value":           pick(doc.KPIs, name),
		"by_project":      byProject,
		"warning":         doc.Warnings[name],
	})
}

func (s *Server) document(ctx context.Context, q kpi.Query) kpi.Document {
	key := queryKey(q)
	// The shared calculation must not be cancelled by the first caller leaving.
	v, _, shared := s.group.Do(key, func() (interface{}, error) {
		return s.engine.CalculateAllKPIs(context.WithoutCancel(ctx), q), nil
	})
	if shared {
		s.log.Debug("shared KPI calculation", "key", key)
	}
	return v.(kpi.Document)
}

func (s *Server) getStats(w http.ResponseWriter, r *http.Request) {
	if s.stats == nil {
		writeError(w, http.StatusServiceUnavailable, kpi.ErrNoRepository)
		return
	}
	stats, err := s.stats.Stats(r.Context())
	if err != nil {
		s.log.Error("failed to get stats", "error", err)
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) getLabels(w http.ResponseWriter, r *http.Request) {
	metadata := map[string]labels.Category{}
	if s.labels != nil {
		metadata = s.labels.Metadata()
	}
	writeJSON(w, http.StatusOK, metadata)
}

// parseQuery reads ?days=N&projects=A,B (projects may also repeat).
func parseQuery(r *http.Request) (kpi.Query, error) {
	var q kpi.Query
	values := r.URL.Query()

	if raw := values.Get("days"); raw != "" {
		days, err := strconv.Atoi(raw)
		if err != nil || days < 0 {
			return q, fmt.Errorf("days must be a non-negative integer, got %q", raw)
		}
		q.Days = days
	}

	q.Projects = kpi.ProjectKeys(values["projects"])
	return q, nil
}

func queryKey(q kpi.Query) string {
	projects := append([]string(nil), q.Projects...)
	sort.Strings(projects)
	return fmt.Sprintf("%d|%s", q.Days, strings.Join(projects, ","))
}

func knownKPI(name string) bool {
	for _, n := range kpi.Names {
		if n == name {
			return true
		}
	}
	return false
}

func pick(r kpi.Records, name string) any {
	switch name {
	case kpi.NameSprintPredictability:
		return r.SprintPredictability
	case kpi.NameStorySpillover:
		return r.StorySpillover
	case kpi.NameCycleTime:
		return r.CycleTime
	case kpi.NameWorkMix:
		return r.WorkMix
	case kpi.NameUnplannedWork:
		return r.UnplannedWork
	case kpi.NameReopenedStories:
		return r.ReopenedStories
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Error("failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
