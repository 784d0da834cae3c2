package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/sells-group/profile-scout/internal/model"
	"github.com/sells-group/profile-scout/internal/research"
	"github.com/sells-group/profile-scout/internal/resolver"
	"github.com/sells-group/profile-scout/internal/search"
	"github.com/sells-group/profile-scout/internal/store"
)

// Searcher runs a full people search: parse, discover, resolve.
type Searcher interface {
	Search(ctx context.Context, query string) (*SearchResult, error)
}

// SearchResult is the API payload of one search.
type SearchResult struct {
	Profiles []model.Profile `json:"profiles"`
	Count    int             `json:"count"`
	Cached   int             `json:"cached"`
	Fetched  int             `json:"fetched"`
}

// Service composes the parser, discoverer, and resolver into the Searcher
// used by both the HTTP API and the CLI.
type Service struct {
	parser     search.Parser
	discoverer *search.Discoverer
	resolver   *resolver.Resolver
}

func NewService(parser search.Parser, discoverer *search.Discoverer, res *resolver.Resolver) *Service {
	return &Service{parser: parser, discoverer: discoverer, resolver: res}
}

func (s *Service) Search(ctx context.Context, query string) (*SearchResult, error) {
	parsed, err := s.parser.Parse(ctx, query)
	if err != nil {
		return nil, err
	}

	urls, err := s.discoverer.Discover(ctx, parsed)
	if err != nil {
		return nil, err
	}

	resolved, err := s.resolver.Resolve(ctx, urls)
	if err != nil {
		return nil, err
	}

	return &SearchResult{
		Profiles: resolved.Profiles,
		Count:    len(resolved.Profiles),
		Cached:   resolved.Cached,
		Fetched:  resolved.Fetched,
	}, nil
}

// Server holds the HTTP API dependencies.
type Server struct {
	searcher Searcher
	pool     *research.Pool
	manager  *research.Manager
	store    store.Store
}

// Options tunes router middleware.
type Options struct {
	CORSOrigins []string
}

// NewRouter builds the chi router with CORS and request logging.
func NewRouter(searcher Searcher, pool *research.Pool, manager *research.Manager, st store.Store, opts Options) *chi.Mux {
	s := &Server{searcher: searcher, pool: pool, manager: manager, store: st}

	origins := opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	r.Route("/api", func(r chi.Router) {
		r.Post("/search", s.handleSearch)
		r.Post("/research", s.handleCreateResearch)
		r.Get("/research", s.handleListResearch)
		r.Get("/research/{jobID}", s.handleGetResearch)
		r.Get("/profiles/{identifier}", s.handleGetProfile)
	})

	return r
}

// requestLogger logs one line per request with method, path, status, and
// duration.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		zap.L().Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		zap.L().Error("health: store ping failed", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Query string `json:"query"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	query := strings.TrimSpace(req.Query)
	if len(query) < 2 || len(query) > 100 {
		writeError(w, http.StatusBadRequest, "query must be between 2 and 100 characters")
		return
	}

	result, err := s.searcher.Search(r.Context(), query)
	if err != nil {
		zap.L().Error("search request failed", zap.String("query", query), zap.Error(err))
		writeError(w, http.StatusBadGateway, "search failed")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleCreateResearch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Identifier  string `json:"identifier"`
		SubjectName string `json:"subjectName"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	// Accept either a bare slug or a full profile URL.
	identifier := req.Identifier
	if id, err := model.NormalizeIdentifier(identifier); err == nil {
		identifier = id
	}

	job, err := s.pool.Submit(r.Context(), identifier, req.SubjectName)
	if err != nil {
		if job == nil && (strings.TrimSpace(req.Identifier) == "" || strings.TrimSpace(req.SubjectName) == "") {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"jobId": job.ID})
}

func (s *Server) handleGetResearch(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	job, err := s.manager.Get(r.Context(), jobID)
	if err != nil {
		if store.IsNotFound(err) {
			writeError(w, http.StatusNotFound, "job not found")
			return
		}
		zap.L().Error("get job failed", zap.String("job_id", jobID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleListResearch(w http.ResponseWriter, r *http.Request) {
	filter := store.JobFilter{
		Status:     model.JobStatus(r.URL.Query().Get("status")),
		Identifier: r.URL.Query().Get("identifier"),
	}

	jobs, err := s.manager.List(r.Context(), filter)
	if err != nil {
		zap.L().Error("list jobs failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": jobs, "count": len(jobs)})
}

func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "identifier")
	identifier, err := model.NormalizeIdentifier(raw)
	if err != nil {
		identifier = strings.ToLower(strings.TrimSpace(raw))
	}
	if identifier == "" {
		writeError(w, http.StatusBadRequest, "identifier is required")
		return
	}

	profile, err := s.store.GetProfile(r.Context(), identifier)
	if err != nil {
		if store.IsNotFound(err) {
			writeError(w, http.StatusNotFound, "profile not cached")
			return
		}
		zap.L().Error("get profile failed", zap.String("identifier", identifier), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("write response failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
