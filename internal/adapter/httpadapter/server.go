package httpadapter

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/couchcryptid/element-grid-service/internal/domain"
	"github.com/couchcryptid/element-grid-service/internal/pipeline"
)

// GridReader is the read side of the reload pipeline.
type GridReader interface {
	sharedobs.ReadinessChecker
	Current() *pipeline.Snapshot
	LookupIn(snap *pipeline.Snapshot, key string) (*domain.Record, bool)
}

// Server exposes the grid query API alongside health, readiness, and metrics.
type Server struct {
	httpServer *http.Server
	grid       GridReader
	logger     *slog.Logger
}

// NewServer creates an HTTP server with /healthz, /readyz, /metrics and the /api routes.
func NewServer(addr string, grid GridReader, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		grid:   grid,
		logger: logger,
	}

	mux.HandleFunc("GET /healthz", sharedobs.LivenessHandler())
	mux.HandleFunc("GET /readyz", sharedobs.ReadinessHandler(grid))
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("GET /api/grid", s.withSnapshot(s.handleGrid))
	mux.HandleFunc("GET /api/rows/{row}", s.withSnapshot(s.handleRow))
	mux.HandleFunc("GET /api/records/{key}", s.withSnapshot(s.handleRecord))
	mux.HandleFunc("GET /api/records/{key}/latest", s.withSnapshot(s.handleLatest))
	mux.HandleFunc("GET /api/rejections", s.withSnapshot(s.handleRejections))

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

type snapshotHandler func(w http.ResponseWriter, r *http.Request, snap *pipeline.Snapshot)

// withSnapshot pins one snapshot for the whole request and answers 503 until
// the first grid has been built.
func (s *Server) withSnapshot(next snapshotHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap := s.grid.Current()
		if snap == nil {
			writeError(w, http.StatusServiceUnavailable, "grid not built yet")
			return
		}
		next(w, r, snap)
	}
}

func (s *Server) handleGrid(w http.ResponseWriter, _ *http.Request, snap *pipeline.Snapshot) {
	sharedobs.WriteJSON(w, http.StatusOK, newGridView(snap))
}

func (s *Server) handleRow(w http.ResponseWriter, r *http.Request, snap *pipeline.Snapshot) {
	row, err := strconv.Atoi(r.PathValue("row"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "row must be an integer")
		return
	}
	sharedobs.WriteJSON(w, http.StatusOK, newRowView(row, snap.Grid.CellsInRow(row)))
}

func (s *Server) handleRecord(w http.ResponseWriter, r *http.Request, snap *pipeline.Snapshot) {
	rec, ok := s.grid.LookupIn(snap, r.PathValue("key"))
	if !ok {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	sharedobs.WriteJSON(w, http.StatusOK, newRecordView(rec))
}

func (s *Server) handleLatest(w http.ResponseWriter, r *http.Request, snap *pipeline.Snapshot) {
	rec, ok := s.grid.LookupIn(snap, r.PathValue("key"))
	if !ok {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	sample, ok := snap.LatestSample(rec)
	if !ok {
		writeError(w, http.StatusNotFound, "no samples for "+rec.Key)
		return
	}
	sharedobs.WriteJSON(w, http.StatusOK, newLatestView(rec, sample))
}

func (s *Server) handleRejections(w http.ResponseWriter, _ *http.Request, snap *pipeline.Snapshot) {
	sharedobs.WriteJSON(w, http.StatusOK, newRejectionsView(snap))
}

func writeError(w http.ResponseWriter, status int, msg string) {
	sharedobs.WriteJSON(w, status, map[string]string{"error": msg})
}
