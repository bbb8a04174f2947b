// Package httpapi exposes the atlas over JSON: region time slices for the
// map frontend, forecast model endpoints, and the operational routes.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/paulmach/orb/geojson"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dengueviewer/atlas-service/internal/atlas"
	"github.com/dengueviewer/atlas-service/internal/domain"
	"github.com/dengueviewer/atlas-service/internal/forecast"
	"github.com/dengueviewer/atlas-service/internal/observability"
)

// AtlasProvider serves joined region datasets.
type AtlasProvider interface {
	Regions() []string
	Weeks(ctx context.Context, region string) ([]string, error)
	Slice(ctx context.Context, region, bucket string) ([]domain.EnrichedRecord, error)
}

// ModelProvider serves the trained forecast model.
type ModelProvider interface {
	Metrics(ctx context.Context) (forecast.ModelMetrics, error)
	Graph(ctx context.Context, province string) (forecast.GraphSeries, error)
}

// ReadinessChecker reports whether the service is ready to serve traffic.
type ReadinessChecker interface {
	CheckReadiness(ctx context.Context) error
}

// Server exposes the atlas API plus health, readiness, and metrics routes.
type Server struct {
	httpServer *http.Server
	atlas      AtlasProvider
	model      ModelProvider
	logger     *slog.Logger
}

// NewServer wires the router. corsOrigins is the exact-match allow list for
// browser frontends; model may be nil when no monthly region is configured.
func NewServer(addr string, atlasProvider AtlasProvider, model ModelProvider, ready ReadinessChecker, corsOrigins []string, metrics *observability.Metrics, logger *slog.Logger) *Server {
	s := &Server{
		atlas:  atlasProvider,
		model:  model,
		logger: logger,
	}

	r := chi.NewRouter()
	r.Use(corsMiddleware(corsOrigins))
	r.Use(requestMetrics(metrics))

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", handleReady(ready))
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		// Legacy world-map routes predate multi-region support and keep
		// their original shape, country field included.
		r.Get("/weeks", s.handleWeeks("global"))
		r.Get("/cases/{week}", s.handleCases("global", true))
		r.Get("/model/metrics", s.handleModelMetrics)
		r.Get("/model/graph", s.handleModelGraph)

		r.Get("/regions", s.handleRegions)
		r.Get("/thailand/model/metrics", s.handleModelMetrics)
		r.Get("/thailand/model/graph", s.handleModelGraph)

		r.Get("/{region}/weeks", s.handleRegionWeeks)
		r.Get("/{region}/cases/{week}", s.handleRegionCases)
	})

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

// sliceResponse is a rendered time slice: the requested bucket plus one
// feature per boundary unit, zero-filled units included.
type sliceResponse struct {
	Week string        `json:"week"`
	Data []caseFeature `json:"data"`
}

// caseFeature is one map unit in a time slice response.
type caseFeature struct {
	Key        string            `json:"key"`
	Name       string            `json:"name"`
	Country    string            `json:"country,omitempty"`
	Cases      float64           `json:"cases"`
	Density    float64           `json:"density"`
	Incidence  float64           `json:"incidence"`
	Population float64           `json:"population,omitempty"`
	Area       float64           `json:"area"`
	Geometry   *geojson.Geometry `json:"geometry"`
}

func (s *Server) handleRegions(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"regions": s.atlas.Regions()})
}

func (s *Server) handleRegionWeeks(w http.ResponseWriter, r *http.Request) {
	s.handleWeeks(chi.URLParam(r, "region"))(w, r)
}

func (s *Server) handleRegionCases(w http.ResponseWriter, r *http.Request) {
	s.handleCases(chi.URLParam(r, "region"), false)(w, r)
}

func (s *Server) handleWeeks(region string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		weeks, err := s.atlas.Weeks(r.Context(), region)
		if err != nil {
			s.writeAtlasError(w, r, region, err, map[string][]string{"weeks": {}})
			return
		}
		if weeks == nil {
			weeks = []string{}
		}
		writeJSON(w, http.StatusOK, map[string][]string{"weeks": weeks})
	}
}

func (s *Server) handleCases(region string, legacyCountry bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		week := chi.URLParam(r, "week")
		records, err := s.atlas.Slice(r.Context(), region, week)
		if err != nil {
			s.writeAtlasError(w, r, region, err, sliceResponse{Week: week, Data: []caseFeature{}})
			return
		}

		features := make([]caseFeature, 0, len(records))
		for _, rec := range records {
			f := caseFeature{
				Key:        rec.Key,
				Name:       rec.Name,
				Cases:      rec.Cases,
				Density:    rec.Density,
				Incidence:  rec.Incidence,
				Population: rec.Population,
				Area:       rec.AreaKm2,
			}
			if rec.Geometry != nil {
				f.Geometry = geojson.NewGeometry(rec.Geometry)
			}
			if legacyCountry {
				f.Country = rec.Name
			}
			features = append(features, f)
		}
		writeJSON(w, http.StatusOK, sliceResponse{Week: week, Data: features})
	}
}

// writeAtlasError maps atlas failures onto responses: unknown regions are
// 404s, while a region whose dataset failed to load serves the given empty
// payload so the frontend renders a bare map instead of an error page.
func (s *Server) writeAtlasError(w http.ResponseWriter, r *http.Request, region string, err error, empty any) {
	if errors.Is(err, atlas.ErrUnknownRegion) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown region " + region})
		return
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "request cancelled"})
		return
	}

	s.logger.Warn("serving empty payload for unavailable region",
		"region", region, "path", r.URL.Path, "error", err)
	writeJSON(w, http.StatusOK, empty)
}

func (s *Server) handleModelMetrics(w http.ResponseWriter, r *http.Request) {
	if s.model == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "forecast model not configured"})
		return
	}
	metrics, err := s.model.Metrics(r.Context())
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, metrics)
}

func (s *Server) handleModelGraph(w http.ResponseWriter, r *http.Request) {
	if s.model == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "forecast model not configured"})
		return
	}

	// Older frontend builds send ?region= for the province.
	province := r.URL.Query().Get("province")
	if province == "" {
		province = r.URL.Query().Get("region")
	}
	if province == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing province query parameter"})
		return
	}

	graph, err := s.model.Graph(r.Context(), province)
	if err != nil {
		if errors.Is(err, forecast.ErrUnknownProvince) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, graph)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func handleReady(checker ReadinessChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := checker.CheckReadiness(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "not ready",
				"error":  err.Error(),
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best-effort response
}
