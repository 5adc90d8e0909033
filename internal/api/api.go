// Package api provides the admin HTTP surface for the analysis service.
//
// It exposes status counters, manual analysis runs, paginated history reads,
// and blocker status updates. The surface is for operators only; internal
// error detail never leaves the process beyond a message string.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// Server wires the HTTP handlers to the scheduler and engine.
type Server struct {
	scheduler SchedulerService
	engine    EngineService

	httpServer *http.Server
	nextRun    func() time.Time
}

// Opts holds configuration for the API server.
type Opts struct {
	Addr    string
	NextRun func() time.Time
}

// Option configures the API server.
type Option func(*Opts)

// WithAddr sets the listen address. Defaults to ":8080".
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// WithNextRun supplies a callback reporting the next scheduled nightly run,
// surfaced in status responses.
func WithNextRun(fn func() time.Time) Option {
	return func(o *Opts) { o.NextRun = fn }
}

// NewServer creates the admin API server.
func NewServer(scheduler SchedulerService, engine EngineService, options ...Option) *Server {
	opts := Opts{Addr: ":8080"}
	for _, opt := range options {
		opt(&opts)
	}

	s := &Server{scheduler: scheduler, engine: engine, nextRun: opts.NextRun}

	mux := http.NewServeMux()
	mux.HandleFunc("/status", s.statusHandler)
	mux.HandleFunc("/analyze", s.analyzeHandler)
	mux.HandleFunc("/history", s.historyHandler)
	mux.HandleFunc("/blockers/status", s.blockerStatusHandler)

	// No write timeout: POST /analyze runs batches synchronously and a large
	// all_pending run legitimately takes minutes.
	s.httpServer = &http.Server{
		Addr:              opts.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the server's HTTP handler, used by tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Run starts serving and blocks until the listener fails or Shutdown is
// called.
func (s *Server) Run() error {
	slog.Info("Server.Run: admin API listening", "addr", s.httpServer.Addr)
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	slog.Info("Server.Shutdown: stopping admin API")
	return s.httpServer.Shutdown(ctx)
}
