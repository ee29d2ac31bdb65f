// Package server provides the viewer's HTTP surface: the rendered MJPEG
// stream, the pairing QR code, status events, signaling and metrics.
package server

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"io/fs"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/ayusman/fingerglow/internal/app"
	"github.com/ayusman/fingerglow/internal/server/api"
	"github.com/ayusman/fingerglow/internal/store"
)

//go:embed web
var webFS embed.FS

// Controller is the part of the source switch controller the server uses.
type Controller interface {
	api.Switcher
	PairingURL() string
	OnStatus(fn func(app.Status))
}

// Config holds the server configuration. Every dependency is optional; the
// matching routes are registered only when it is set.
type Config struct {
	// StaticDir overrides the embedded web pages.
	StaticDir  string
	Controller Controller
	Frames     *FrameHub
	Store      *store.Store
	// Signal is mounted at SignalPath (default /signal).
	Signal     http.Handler
	SignalPath string
	Metrics    http.Handler
	Logger     *zap.Logger
}

// Server represents the HTTP server.
type Server struct {
	config Config
	mux    *http.ServeMux
	start  time.Time
	logger *zap.Logger
	events *EventsHandler
}

// New creates a new Server with the given configuration.
func New(config Config) *Server {
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}
	if config.SignalPath == "" {
		config.SignalPath = "/signal"
	}
	s := &Server{
		config: config,
		mux:    http.NewServeMux(),
		start:  time.Now(),
		logger: config.Logger.Named("http"),
	}
	s.setupRoutes()
	return s
}

// setupRoutes configures all HTTP routes for the server.
func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/api/health", s.handleHealth)

	if c := s.config.Controller; c != nil {
		s.mux.Handle("/api/source", api.NewSourceHandler(c))
		s.mux.Handle("/api/pairing/qr.png", NewQRHandler(c))

		s.events = NewEventsHandler(c.Status, s.logger)
		c.OnStatus(s.events.Broadcast)
		s.mux.Handle("/api/events", s.events)
	}

	if s.config.Frames != nil {
		s.mux.Handle("/api/stream", NewStreamHandler(s.config.Frames, s.config.Controller))
	}

	if s.config.Store != nil {
		s.mux.Handle("/api/sessions", api.NewSessionsHandler(s.config.Store))
	}

	if s.config.Signal != nil {
		s.mux.Handle(s.config.SignalPath, s.config.Signal)
	}

	if s.config.Metrics != nil {
		s.mux.Handle("/metrics", s.config.Metrics)
	}

	if s.config.StaticDir != "" {
		s.mux.Handle("/", http.FileServer(http.Dir(s.config.StaticDir)))
	} else {
		sub, err := fs.Sub(webFS, "web")
		if err == nil {
			s.mux.Handle("/", http.FileServer(http.FS(sub)))
		}
	}
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// handleHealth handles GET requests to /api/health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	response := map[string]interface{}{
		"status": "ok",
		"uptime": time.Since(s.start).String(),
	}
	if s.config.Controller != nil {
		response["source"] = s.config.Controller.Status()
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
		return
	}
}

// ListenAndServe serves on addr until ctx is done, then shuts down within
// shutdownTimeout.
func (s *Server) ListenAndServe(ctx context.Context, addr string, shutdownTimeout time.Duration) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if s.events != nil {
		s.events.Close()
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
