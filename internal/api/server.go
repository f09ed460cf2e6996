// Package api serves the match engine over HTTP with the same contract the
// catalog client speaks, so one deployment can act as the parts catalog for
// another.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"partsmatch/internal"
	"partsmatch/internal/footprint"
	"partsmatch/internal/matcher"
	"partsmatch/internal/metrics"
	"partsmatch/internal/value"
)

const (
	defaultMaxResults = 5
	maxRequestSize    = 10 << 20
	metricsSource     = "api"
)

// PartLookup returns one part by SKU, or nil when it is unknown.
type PartLookup func(ctx context.Context, sku string) (internal.Record, error)

type Server struct {
	engine *matcher.Engine
	search matcher.SearchFunc
	parts  PartLookup
	apiKey string
	logger *zap.Logger
	router chi.Router
}

type Option func(*Server)

// WithSearch sets where candidates come from when a request carries none.
func WithSearch(search matcher.SearchFunc) Option {
	return func(s *Server) { s.search = search }
}

func WithPartLookup(lookup PartLookup) Option {
	return func(s *Server) { s.parts = lookup }
}

// WithAPIKey requires "Authorization: Bearer <key>" on /api/v1 routes.
func WithAPIKey(key string) Option {
	return func(s *Server) { s.apiKey = strings.TrimSpace(key) }
}

func WithLogger(logger *zap.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func NewServer(engine *matcher.Engine, opts ...Option) *Server {
	if engine == nil {
		engine, _ = matcher.NewEngine(nil)
	}
	s := &Server{engine: engine, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	s.router = s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.requireAPIKey)
		r.Get("/parts/search", s.handleSearch)
		r.Get("/parts/{sku}", s.handleGetPart)
		r.Post("/components/match", s.handleMatch)
		r.Post("/components/match/batch", s.handleMatchBatch)
		r.Get("/values/normalize", s.handleNormalizeValue)
		r.Get("/footprints/{footprint}/compatible", s.handleFootprintCompatible)
	})
	return r
}

// ListenAndServe serves on addr until ctx is cancelled, then drains for up
// to 30 seconds.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

type matchRequest struct {
	Component   internal.Record   `json:"component"`
	Candidates  []internal.Record `json:"candidates"`
	MaxResults  int               `json:"max_results"`
	SearchDepth string            `json:"search_depth"`
}

type batchRequest struct {
	Components  []internal.Record `json:"components"`
	SearchDepth string            `json:"search_depth"`
}

// matchView is the wire form of a result, shared with catalog.Client.
type matchView struct {
	Component      internal.Record    `json:"component"`
	Part           internal.Record    `json:"part"`
	Confidence     float64            `json:"confidence"`
	Classification string             `json:"classification"`
	Breakdown      map[string]float64 `json:"match_breakdown"`
	Warnings       []string           `json:"warnings"`
}

func toView(r matcher.MatchResult) matchView {
	breakdown := make(map[string]float64, len(r.Details))
	for f, v := range r.Details {
		breakdown[string(f)] = v
	}
	warnings := r.Warnings
	if warnings == nil {
		warnings = []string{}
	}
	return matchView{
		Component:      r.Component,
		Part:           r.Part,
		Confidence:     r.Confidence,
		Classification: string(r.Classification()),
		Breakdown:      breakdown,
		Warnings:       warnings,
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		respondError(w, http.StatusBadRequest, "query parameter q is required")
		return
	}
	if s.search == nil {
		respondError(w, http.StatusServiceUnavailable, "no part search configured")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	parts, err := s.search(r.Context(), q)
	if err != nil {
		s.logger.Error("part search failed", zap.String("query", q), zap.Error(err))
		respondError(w, http.StatusBadGateway, err.Error())
		return
	}
	total := len(parts)
	if offset > 0 {
		if offset >= len(parts) {
			parts = nil
		} else {
			parts = parts[offset:]
		}
	}
	if limit > 0 && len(parts) > limit {
		parts = parts[:limit]
	}
	if parts == nil {
		parts = []internal.Record{}
	}
	respondSuccess(w, map[string]any{"parts": parts, "total": total})
}

func (s *Server) handleGetPart(w http.ResponseWriter, r *http.Request) {
	if s.parts == nil {
		respondError(w, http.StatusServiceUnavailable, "no part store configured")
		return
	}
	sku := pathParam(r, "sku")
	part, err := s.parts(r.Context(), sku)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if part == nil {
		respondError(w, http.StatusNotFound, "part not found: "+sku)
		return
	}
	respondSuccess(w, map[string]any{"part": part})
}

// handleMatch scores the request's candidates, or the search results for the
// component when none are given, and returns up to max_results of them best
// first.
func (s *Server) handleMatch(w http.ResponseWriter, r *http.Request) {
	var req matchRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if len(req.Component) == 0 {
		respondError(w, http.StatusBadRequest, "component is required")
		return
	}
	if req.MaxResults <= 0 {
		req.MaxResults = defaultMaxResults
	}

	candidates := req.Candidates
	if len(candidates) == 0 && s.search != nil {
		query := matcher.BuildSearchQuery(req.Component)
		if query != "" {
			found, err := s.search(r.Context(), query)
			if err != nil {
				respondError(w, http.StatusBadGateway, err.Error())
				return
			}
			candidates = found
		}
	}

	ranked := s.rank(req.Component, candidates)
	if len(ranked) > req.MaxResults {
		ranked = ranked[:req.MaxResults]
	}
	views := make([]matchView, 0, len(ranked))
	for _, m := range ranked {
		metrics.RecordMatch(metricsSource, string(m.Classification()), m.Confidence)
		views = append(views, toView(m))
	}
	respondSuccess(w, map[string]any{"matches": views})
}

// rank scores each candidate alone. The stable sort keeps input order among
// ties, so the first entry is what Engine.Match would pick.
func (s *Server) rank(component internal.Record, candidates []internal.Record) []matcher.MatchResult {
	out := make([]matcher.MatchResult, 0, len(candidates))
	for _, c := range candidates {
		m := s.engine.Match(component, []internal.Record{c})
		if m.Part != nil {
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Confidence > out[j].Confidence })
	return out
}

func (s *Server) handleMatchBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if !decodeBody(w, r, &req) {
		return
	}
	search := s.search
	if search == nil {
		search = func(context.Context, string) ([]internal.Record, error) { return nil, nil }
	}

	start := time.Now()
	results, stats := s.engine.MatchBatch(r.Context(), req.Components, search)
	metrics.RecordBatch(metricsSource, time.Since(start))

	views := make([]matchView, 0, len(results))
	for _, m := range results {
		metrics.RecordMatch(metricsSource, string(m.Classification()), m.Confidence)
		views = append(views, toView(m))
	}
	respondSuccess(w, map[string]any{"matches": views, "statistics": stats})
}

func (s *Server) handleNormalizeValue(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("value")
	if strings.TrimSpace(raw) == "" {
		respondError(w, http.StatusBadRequest, "query parameter value is required")
		return
	}
	respondSuccess(w, value.Parse(raw))
}

func (s *Server) handleFootprintCompatible(w http.ResponseWriter, r *http.Request) {
	fp := footprint.Parse(pathParam(r, "footprint"))
	data := map[string]any{
		"footprint":        fp,
		"equivalent_sizes": footprint.EquivalentSizes(fp.Canonical),
	}
	if with := r.URL.Query().Get("with"); with != "" {
		other := footprint.Parse(with)
		data["with"] = other
		data["compatible"] = fp.IsCompatible(other)
	}
	respondSuccess(w, data)
}

func (s *Server) requireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.apiKey != "" {
			got := strings.TrimSpace(strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "))
			if got != s.apiKey {
				respondError(w, http.StatusUnauthorized, "invalid API key")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Info("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("took", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	}
}

func pathParam(r *http.Request, name string) string {
	raw := chi.URLParam(r, name)
	if v, err := url.PathUnescape(raw); err == nil {
		return v
	}
	return raw
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestSize))
	dec.UseNumber()
	if err := dec.Decode(dst); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return false
	}
	return true
}

func respondSuccess(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "success", "data": data})
}

func respondError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"status": "error", "error": message})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
