// Package server exposes the Earshot HTTP surface: the session lifecycle
// API, the publisher ingest WebSocket, the archive queries, Prometheus
// metrics, and health probes.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/earshot-io/earshot/internal/archive"
	"github.com/earshot-io/earshot/internal/export"
	"github.com/earshot-io/earshot/internal/health"
	"github.com/earshot-io/earshot/internal/ingest"
	"github.com/earshot-io/earshot/internal/observe"
	"github.com/earshot-io/earshot/internal/session"
)

// shutdownTimeout bounds graceful drain when Run's context is cancelled.
const shutdownTimeout = 10 * time.Second

// Archive is the slice of the session archive the HTTP API serves. It is nil
// when archiving is disabled.
type Archive interface {
	Recent(ctx context.Context, limit int) ([]archive.Record, error)
	SimilarSpectrum(ctx context.Context, spectrum []float64, limit int) ([]archive.Similar, error)
}

// Config holds everything the server needs. Controller and Hub are required;
// Archive may be nil.
type Config struct {
	// ListenAddr is the TCP address to listen on (e.g., ":8080").
	ListenAddr string

	// CertFile and KeyFile enable TLS when both are set.
	CertFile string
	KeyFile  string

	Controller *session.Controller
	Hub        *ingest.Hub
	Archive    Archive
	Health     *health.Handler
	Metrics    *observe.Metrics
	Logger     *slog.Logger
}

// Server is the Earshot HTTP server.
type Server struct {
	controller *session.Controller
	archive    Archive
	log        *slog.Logger

	certFile string
	keyFile  string
	srv      *http.Server
}

// New assembles the server and its routes.
func New(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observe.DefaultMetrics()
	}
	if cfg.Health == nil {
		cfg.Health = health.New()
	}

	s := &Server{
		controller: cfg.Controller,
		archive:    cfg.Archive,
		log:        cfg.Logger,
		certFile:   cfg.CertFile,
		keyFile:    cfg.KeyFile,
	}

	mw := observe.Middleware(cfg.Metrics)
	mux := http.NewServeMux()

	mux.Handle("POST /api/v1/session/start", mw(http.HandlerFunc(s.handleStart)))
	mux.Handle("POST /api/v1/session/stop", mw(http.HandlerFunc(s.handleStop)))
	mux.Handle("GET /api/v1/session/status", mw(http.HandlerFunc(s.handleStatus)))
	mux.Handle("GET /api/v1/archive/recent", mw(http.HandlerFunc(s.handleRecent)))
	mux.Handle("POST /api/v1/archive/similar", mw(http.HandlerFunc(s.handleSimilar)))

	// The ingest WebSocket and the scrape endpoint stay outside the tracing
	// middleware: one is a long-lived hijacked connection, the other is
	// polled by Prometheus itself.
	mux.Handle("GET /ws/ingest", cfg.Hub)
	mux.Handle("GET /metrics", promhttp.Handler())
	cfg.Health.Register(mux)

	s.srv = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

// Run serves until ctx is cancelled, then drains connections gracefully.
func (s *Server) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		scheme := "http"
		if s.certFile != "" {
			scheme = "https"
		}
		s.log.Info("server listening", "addr", s.srv.Addr, "scheme", scheme)

		var err error
		if s.certFile != "" {
			err = s.srv.ListenAndServeTLS(s.certFile, s.keyFile)
		} else {
			err = s.srv.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})

	g.Go(func() error {
		<-ctx.Done()
		s.log.Info("server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return s.srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// handleStart begins a new listening session.
func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	if err := s.controller.Start(r.Context()); err != nil {
		writeError(w, startStatusCode(err), err)
		return
	}
	writeJSON(w, http.StatusOK, s.controller.Status())
}

// handleStop ends the active session and returns the full report document.
func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	res, err := s.controller.Stop(r.Context())
	if err != nil {
		if errors.Is(err, session.ErrNotActive) {
			writeError(w, http.StatusConflict, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, export.Build(res))
}

// handleStatus reports the controller snapshot.
func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.controller.Status())
}

// handleRecent lists the most recently archived sessions.
func (s *Server) handleRecent(w http.ResponseWriter, r *http.Request) {
	if s.archive == nil {
		writeError(w, http.StatusNotFound, errors.New("session archive is disabled"))
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, errors.New("limit must be a non-negative integer"))
			return
		}
		limit = n
	}

	records, err := s.archive.Recent(r.Context(), limit)
	if err != nil {
		s.log.Error("archive recent query failed", "err", err)
		writeError(w, http.StatusInternalServerError, errors.New("archive query failed"))
		return
	}
	if records == nil {
		records = []archive.Record{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": records})
}

// similarRequest is the body of an archive similarity query.
type similarRequest struct {
	Spectrum []float64 `json:"spectrum"`
	Limit    int       `json:"limit"`
}

// handleSimilar finds archived sessions with a similar averaged spectrum.
func (s *Server) handleSimilar(w http.ResponseWriter, r *http.Request) {
	if s.archive == nil {
		writeError(w, http.StatusNotFound, errors.New("session archive is disabled"))
		return
	}

	var req similarRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, errors.New("invalid JSON body"))
		return
	}

	matches, err := s.archive.SimilarSpectrum(r.Context(), req.Spectrum, req.Limit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if matches == nil {
		matches = []archive.Similar{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": matches})
}

// startStatusCode maps a session start failure to an HTTP status.
func startStatusCode(err error) int {
	switch {
	case errors.Is(err, session.ErrAlreadyActive):
		return http.StatusConflict
	case errors.Is(err, session.ErrModelNotReady),
		errors.Is(err, session.ErrAcquisitionFailed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorBody{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error":"encoding failed"}`, http.StatusInternalServerError)
	}
}
