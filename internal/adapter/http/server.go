package http

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/couchcryptid/event-risk-service/internal/domain"
	"github.com/couchcryptid/event-risk-service/internal/observability"
	"github.com/couchcryptid/event-risk-service/internal/pipeline"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ReadinessChecker reports whether the service is ready to serve traffic.
type ReadinessChecker interface {
	CheckReadiness(ctx context.Context) error
}

// RiskService is the pipeline surface the API exposes.
type RiskService interface {
	ReadinessChecker
	Population() domain.Population
	Incidence(ctx context.Context) (domain.IncidenceSeries, error)
	Assess(ctx context.Context, bias float64, eventSize int) (pipeline.Assessment, error)
	Map(ctx context.Context, bias float64, eventSize int) (pipeline.MapView, error)
	Locate(ctx context.Context, pt domain.LatLng, bias float64, eventSize int) (pipeline.LocateResult, error)
}

// Server exposes the risk API plus health, readiness, and metrics endpoints.
type Server struct {
	httpServer *http.Server
	service    RiskService
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewServer creates an HTTP server with /healthz, /readyz, /metrics and the
// /api/v1 routes.
func NewServer(addr string, service RiskService, metrics *observability.Metrics, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		service: service,
		metrics: metrics,
		logger:  logger,
	}

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", handleReady(service))
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("GET /api/v1/incidence", s.instrument("incidence", s.handleIncidence))
	mux.HandleFunc("GET /api/v1/risk", s.instrument("risk", s.handleRisk))
	mux.HandleFunc("GET /api/v1/map", s.instrument("map", s.handleMap))
	mux.HandleFunc("GET /api/v1/locate", s.instrument("locate", s.handleLocate))

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

// statusRecorder captures the response status for the request counter.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) instrument(route string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		h(rec, r)
		s.metrics.APIRequests.WithLabelValues(route, strconv.Itoa(rec.status)).Inc()
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	writeBody(w, "application/json", status, v)
}

// writeBody encodes v before writing the header, so an unencodable value
// turns into a 500 instead of a truncated 200.
func writeBody(w http.ResponseWriter, contentType string, status int, v any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		buf.Reset()
		json.NewEncoder(&buf).Encode(map[string]string{"error": "encode response: " + err.Error()}) //nolint:errcheck // map of strings always encodes
		contentType, status = "application/json", http.StatusInternalServerError
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(status)
	w.Write(buf.Bytes()) //nolint:errcheck // client may have gone away
}
