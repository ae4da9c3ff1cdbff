// Package api exposes the scanner's query surface over HTTP: JSON
// endpoints for snapshot, moves and status, a manual rescan trigger, raw
// state dumps, a debug view and a websocket feed of completed ticks.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rewired-gh/polyscan/internal/logger"
	"github.com/rewired-gh/polyscan/internal/models"
	"github.com/rewired-gh/polyscan/internal/scanner"
)

// Engine is the subset of the scan engine the API reads from.
type Engine interface {
	GetSnapshot(order scanner.SnapshotOrder) []models.EventSnapshot
	GetRecentMoves(maxAge time.Duration, order scanner.MoveOrder) []models.Move
	View() ([]models.EventSnapshot, []models.Move)
	Status() models.Status
	LastPrices() map[string]models.PricePair
	ForceRescan() bool
	Interval() time.Duration
}

// Describer reports storage details for /debug.
type Describer interface {
	Describe(ctx context.Context) map[string]any
}

// Config holds HTTP server settings.
type Config struct {
	Addr            string
	HistoryWindow   time.Duration
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	AllowedOrigins  []string
}

// Server serves the query surface.
type Server struct {
	engine  Engine
	storage Describer
	hub     *Hub
	config  Config
	started time.Time
}

// NewServer creates a server. storage and hub may be nil.
func NewServer(engine Engine, storage Describer, hub *Hub, config Config) *Server {
	if config.HistoryWindow <= 0 {
		config.HistoryWindow = 5 * time.Minute
	}
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = 5 * time.Second
	}
	return &Server{
		engine:  engine,
		storage: storage,
		hub:     hub,
		config:  config,
		started: time.Now(),
	}
}

// Handler builds the routed, wrapped handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/snapshot", s.handleSnapshot)
	mux.HandleFunc("GET /api/moves", s.handleMoves)
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("POST /api/rescan", s.handleRescan)
	mux.HandleFunc("GET /fetch", s.handleRescan)
	mux.HandleFunc("GET /data/events", s.handleDataEvents)
	mux.HandleFunc("GET /data/moves", s.handleDataMoves)
	mux.HandleFunc("GET /data/status", s.handleStatus)
	mux.HandleFunc("GET /debug", s.handleDebug)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	if s.hub != nil {
		mux.HandleFunc("GET /ws", s.hub.ServeWS)
	}

	h := http.Handler(mux)
	h = withRecovery(h)
	h = withLogging(h)
	h = withCORS(s.config.AllowedOrigins)(h)
	return h
}

// ListenAndServe runs the server until ctx is cancelled, then shuts it
// down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.config.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening on %s", s.config.Addr)
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

	if s.hub != nil {
		s.hub.Close()
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	logger.Info("HTTP server stopped")
	return nil
}
