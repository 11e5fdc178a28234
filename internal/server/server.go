// Package server provides the HTTP server for the mudra sign recognition service.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/ayusman/mudra/internal/metrics"
	"github.com/ayusman/mudra/internal/server/api"
	"github.com/ayusman/mudra/internal/session"
	"github.com/ayusman/mudra/internal/store"
)

// Config holds the server configuration.
type Config struct {
	StaticDir string
	Store     *store.Store
	Sessions  *session.Manager
	Metrics   *metrics.Metrics

	// ProfileKey is used for sessions created without one.
	ProfileKey string
	// WindowSize is the vote window new calibration profiles are computed for.
	WindowSize int
	// Reload rebuilds the classifier after the reference set changes.
	Reload func() error

	// Preview and Live are set when a local camera pipeline runs.
	Preview    PreviewSource
	PreviewFPS int
	Live       *Hub
}

// Server represents the HTTP server for the mudra application.
type Server struct {
	config Config
	mux    *http.ServeMux
	start  time.Time
}

// New creates a new Server with the given configuration.
func New(config Config) *Server {
	s := &Server{
		config: config,
		mux:    http.NewServeMux(),
		start:  time.Now(),
	}
	s.setupRoutes()
	return s
}

// setupRoutes configures all HTTP routes for the server.
func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/api/health", s.handleHealth)

	if s.config.Metrics != nil {
		s.mux.Handle("/metrics", s.config.Metrics.Handler())
	}

	if s.config.Store != nil {
		references := api.NewReferenceHandler(s.config.Store, s.config.Reload)
		s.mux.Handle("/api/references", references)
		s.mux.Handle("/api/references/", references)
	}

	if s.config.Store != nil && s.config.Sessions != nil {
		profiles := api.NewProfileHandler(s.config.Store, s.config.Sessions, s.config.WindowSize)
		s.mux.Handle("/api/profiles/", profiles)

		sessions := api.NewSessionHandler(s.config.Store, s.config.Sessions, s.config.ProfileKey)
		socket := NewSessionSocket(s.config.Sessions)

		// /api/sessions/{id}/ws upgrades; everything else is plain HTTP.
		sessionRouter := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if strings.HasSuffix(r.URL.Path, "/ws") {
				socket.ServeHTTP(w, r)
				return
			}
			sessions.ServeHTTP(w, r)
		})
		s.mux.Handle("/api/sessions", sessionRouter)
		s.mux.Handle("/api/sessions/", sessionRouter)
	}

	if s.config.Preview != nil {
		s.mux.Handle("/api/stream", NewStreamHandler(s.config.Preview, s.config.PreviewFPS))
	}

	if s.config.Live != nil {
		s.mux.Handle("/api/live", s.config.Live)
	}

	// Serve static files if StaticDir is configured
	if s.config.StaticDir != "" {
		fs := http.FileServer(http.Dir(s.config.StaticDir))
		s.mux.Handle("/", fs)
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

	uptime := time.Since(s.start)

	response := map[string]interface{}{
		"status": "ok",
		"uptime": uptime.String(),
	}
	if m := s.config.Sessions; m != nil {
		response["sessions"] = m.Len()
		references := 0
		if c := m.Classifier(); c != nil {
			references = c.Len()
		}
		response["references"] = references
	}
	if s.config.Live != nil {
		response["live_clients"] = s.config.Live.Clients()
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
		return
	}
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
