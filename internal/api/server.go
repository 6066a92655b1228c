package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"pibooth/internal/remote"
	"pibooth/internal/tracker"
	"pibooth/pkg/input"
	"pibooth/pkg/state"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// Booth is the part of the state machine the API drives.
type Booth interface {
	Current() state.Name
	TickCount() uint64
	RequestFailSafe()
}

// Deps groups what the server exposes. Remote, Remotes and Metrics are
// optional.
type Deps struct {
	Booth   Booth
	Tracker *tracker.Tracker
	Queue   *input.Queue
	States  []state.Name
	Remote  http.Handler
	Remotes func() int
	Metrics http.Handler
}

// Server provides HTTP API endpoints for the booth
type Server struct {
	deps      Deps
	logger    *zap.Logger
	server    *http.Server
	endpoints []Endpoint
}

// NewServer creates a new API server
func NewServer(deps Deps, logger *zap.Logger, port int) *Server {
	s := &Server{
		deps:   deps,
		logger: logger.Named("api"),
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	s.route(r, http.MethodGet, "/", "This sitemap - lists all available API endpoints", s.handleSitemap)
	s.route(r, http.MethodGet, "/health", "Health check endpoint - returns {\"status\": \"ok\"}", s.handleHealth)
	s.route(r, http.MethodGet, "/api/state", "Current state, tick count, pending events, connected remotes and plugin status", s.handleGetState)
	s.route(r, http.MethodGet, "/api/transitions", "Recent state transitions and plugin failures", s.handleGetTransitions)
	s.route(r, http.MethodPost, "/api/failsafe", "Force the booth into the failsafe state at the next tick", s.handleFailSafe)
	s.route(r, http.MethodPost, "/api/events", "Queue an input event, e.g. {\"kind\":\"button\",\"name\":\"capture\"}", s.handlePostEvent)
	if deps.Remote != nil {
		s.route(r, http.MethodGet, "/ws", "Websocket remote control", deps.Remote.ServeHTTP)
	}
	if deps.Metrics != nil {
		s.route(r, http.MethodGet, "/metrics", "Prometheus metrics", deps.Metrics.ServeHTTP)
	}
	r.NotFound(s.handleSitemap)

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

func (s *Server) route(r chi.Router, method, path, description string, h http.HandlerFunc) {
	r.Method(method, path, h)
	s.endpoints = append(s.endpoints, Endpoint{Path: path, Method: method, Description: description})
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// StateResponse represents the JSON response for the state endpoint
type StateResponse struct {
	Current state.Name     `json:"current"`
	Since   time.Time      `json:"since"`
	Ticks   uint64         `json:"ticks"`
	States  []state.Name   `json:"states"`
	Pending int            `json:"pending"`
	Remotes int            `json:"remotes"`
	Plugins map[string]any `json:"plugins"`
}

// TransitionsResponse represents the JSON response for the transitions endpoint
type TransitionsResponse struct {
	Transitions []tracker.Transition `json:"transitions"`
	Failures    []tracker.Failure    `json:"failures"`
}

func (s *Server) handleGetState(w http.ResponseWriter, r *http.Request) {
	snap := s.deps.Tracker.Snapshot()
	response := StateResponse{
		Current: s.deps.Booth.Current(),
		Since:   snap.Since,
		Ticks:   s.deps.Booth.TickCount(),
		States:  s.deps.States,
		Pending: s.deps.Queue.Len(),
		Plugins: snap.Plugins,
	}
	if s.deps.Remotes != nil {
		response.Remotes = s.deps.Remotes()
	}
	s.writeJSON(w, http.StatusOK, response)

	s.logger.Debug("State request served",
		zap.String("remote_addr", r.RemoteAddr))
}

func (s *Server) handleGetTransitions(w http.ResponseWriter, r *http.Request) {
	snap := s.deps.Tracker.Snapshot()
	s.writeJSON(w, http.StatusOK, TransitionsResponse{
		Transitions: snap.Transitions,
		Failures:    snap.Failures,
	})
}

func (s *Server) handleFailSafe(w http.ResponseWriter, r *http.Request) {
	s.deps.Booth.RequestFailSafe()
	s.logger.Warn("Failsafe requested over HTTP", zap.String("remote_addr", r.RemoteAddr))
	s.writeJSON(w, http.StatusAccepted, map[string]string{"status": "failsafe requested"})
}

func (s *Server) handlePostEvent(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 64<<10))
	if err != nil {
		http.Error(w, "Failed to read body", http.StatusBadRequest)
		return
	}

	event, err := remote.ParseFrame(body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.deps.Queue.Push(event); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, input.ErrQueueFull) {
			status = http.StatusServiceUnavailable
		}
		http.Error(w, err.Error(), status)
		return
	}

	s.writeJSON(w, http.StatusAccepted, event)
}

// handleHealth returns a simple health check response
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Failed to encode response", zap.Error(err))
	}
}

// Endpoint represents an API endpoint with its documentation
type Endpoint struct {
	Path        string `json:"path"`
	Method      string `json:"method"`
	Description string `json:"description"`
}

// handleSitemap returns a list of all available API endpoints
func (s *Server) handleSitemap(w http.ResponseWriter, r *http.Request) {
	preferHTML := strings.Contains(r.Header.Get("Accept"), "text/html")

	// 404 for anything but the root, with the sitemap as body
	status := http.StatusOK
	if r.URL.Path != "/" {
		status = http.StatusNotFound
	}

	if preferHTML {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(status)
		fmt.Fprintf(w, `<!DOCTYPE html>
<html>
<head>
    <title>Photobooth API</title>
    <style>
        body { font-family: monospace; margin: 40px; background: #1e1e1e; color: #d4d4d4; }
        h1 { color: #4ec9b0; }
        .endpoint { background: #2d2d2d; padding: 15px; margin: 10px 0; border-left: 3px solid #007acc; }
        .method { color: #4ec9b0; font-weight: bold; }
        .path { color: #ce9178; }
        .description { color: #9cdcfe; margin-top: 5px; }
    </style>
</head>
<body>
    <h1>Photobooth API</h1>
`)
		for _, ep := range s.endpoints {
			fmt.Fprintf(w, `    <div class="endpoint">
        <div><span class="method">%s</span> <span class="path">%s</span></div>
        <div class="description">%s</div>
    </div>
`, ep.Method, ep.Path, ep.Description)
		}
		fmt.Fprintf(w, "</body>\n</html>\n")
	} else {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(status)
		fmt.Fprintf(w, "Photobooth API\n")
		fmt.Fprintf(w, "==============\n\n")
		fmt.Fprintf(w, "Available endpoints:\n\n")
		for _, ep := range s.endpoints {
			fmt.Fprintf(w, "  %-6s %-18s %s\n", ep.Method, ep.Path, ep.Description)
		}
		fmt.Fprintf(w, "\nExamples:\n\n")
		fmt.Fprintf(w, "  curl http://localhost%s/api/state | jq\n", s.server.Addr)
		fmt.Fprintf(w, "  curl -X POST -d '{\"kind\":\"button\",\"name\":\"capture\"}' http://localhost%s/api/events\n", s.server.Addr)
	}

	s.logger.Debug("Sitemap request served",
		zap.String("remote_addr", r.RemoteAddr),
		zap.Bool("html_format", preferHTML))
}

// Start begins serving HTTP requests
func (s *Server) Start() error {
	s.logger.Info("Starting HTTP API server", zap.String("addr", s.server.Addr))

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("HTTP server error", zap.Error(err))
		}
	}()

	return nil
}

// Stop gracefully shuts down the HTTP server
func (s *Server) Stop() error {
	s.logger.Info("Stopping HTTP API server")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown HTTP server: %w", err)
	}

	return nil
}
