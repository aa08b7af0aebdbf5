package httpadapter

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/couchcryptid/covid-tracker/internal/archive"
	"github.com/couchcryptid/covid-tracker/internal/render"
)

// ReportSource supplies the ordered report series.
type ReportSource interface {
	Collect(ctx context.Context) ([]archive.Point, error)
}

// Renderer turns the series into a document.
type Renderer interface {
	Render(points []archive.Point) (render.Document, error)
}

// Server exposes health, readiness, metrics and the rendered report.
type Server struct {
	httpServer *http.Server
	reports    ReportSource
	renderer   Renderer
	logger     *slog.Logger
}

// NewServer creates an HTTP server with /healthz, /readyz, /metrics,
// /report, /report.md and /api/reports routes.
func NewServer(addr string, ready sharedobs.ReadinessChecker, reports ReportSource, renderer Renderer, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		reports:  reports,
		renderer: renderer,
		logger:   logger,
	}

	mux.HandleFunc("GET /healthz", sharedobs.LivenessHandler())
	mux.HandleFunc("GET /readyz", sharedobs.ReadinessHandler(ready))
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /report", s.handleReport("text/html; charset=utf-8", func(d render.Document) []byte { return d.HTML }))
	mux.HandleFunc("GET /report.md", s.handleReport("text/markdown; charset=utf-8", func(d render.Document) []byte { return d.Markdown }))
	mux.HandleFunc("GET /api/reports", s.handleSeries)

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

func (s *Server) handleReport(contentType string, pick func(render.Document) []byte) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		points, err := s.reports.Collect(r.Context())
		if err != nil {
			s.logger.Error("collect reports", "error", err)
			sharedobs.WriteJSON(w, http.StatusInternalServerError, map[string]string{"error": "archive unavailable"})
			return
		}
		doc, err := s.renderer.Render(points)
		if err != nil {
			s.logger.Error("render report", "error", err)
			sharedobs.WriteJSON(w, http.StatusInternalServerError, map[string]string{"error": "render failed"})
			return
		}
		w.Header().Set("Content-Type", contentType)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(pick(doc))
	}
}

func (s *Server) handleSeries(w http.ResponseWriter, r *http.Request) {
	points, err := s.reports.Collect(r.Context())
	if err != nil {
		s.logger.Error("collect reports", "error", err)
		sharedobs.WriteJSON(w, http.StatusInternalServerError, map[string]string{"error": "archive unavailable"})
		return
	}
	if points == nil {
		points = []archive.Point{}
	}
	sharedobs.WriteJSON(w, http.StatusOK, map[string]any{"reports": points})
}
