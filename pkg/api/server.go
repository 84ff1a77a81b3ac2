// Package api provides the HTTP gateway exposing automation control,
// status, and log streaming.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/connectrunner/connectrunner/pkg/automation"
	"github.com/connectrunner/connectrunner/pkg/config"
	"github.com/connectrunner/connectrunner/pkg/logging"
	"github.com/connectrunner/connectrunner/pkg/middleware"
	"github.com/connectrunner/connectrunner/pkg/services"
	"github.com/connectrunner/connectrunner/pkg/storage"
)

// Server represents the HTTP API server
type Server struct {
	config        *config.Config
	router        *mux.Router
	server        *http.Server
	controller    *automation.Controller
	bus           *logging.Bus
	runStore      storage.RunStore
	authService   *services.AuthService
	streamManager *StreamManager
	logStream     *LogStream
}

// NewServer creates a new API server
func NewServer(cfg *config.Config, controller *automation.Controller, bus *logging.Bus, runStore storage.RunStore, authService *services.AuthService) *Server {
	s := &Server{
		config:        cfg,
		router:        mux.NewRouter(),
		controller:    controller,
		bus:           bus,
		runStore:      runStore,
		authService:   authService,
		streamManager: NewStreamManager(controller, bus),
		logStream:     NewLogStream(bus),
	}

	s.setupRoutes()
	return s
}

// Start starts the HTTP server
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	// No WriteTimeout: the SSE and websocket endpoints hold their
	// connections open indefinitely.
	s.server = &http.Server{
		Addr:        addr,
		Handler:     s.router,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	log.Printf("Starting HTTP server on %s", addr)

	var err error
	if s.config.Server.TLS.Enabled {
		err = s.server.ListenAndServeTLS(
			s.config.Server.TLS.CertFile,
			s.config.Server.TLS.KeyFile,
		)
	} else {
		err = s.server.ListenAndServe()
	}

	// If the server was shut down gracefully, this error is expected
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Stop stops the HTTP server gracefully
func (s *Server) Stop(ctx context.Context) error {
	s.streamManager.Close()
	s.logStream.Close()
	return s.server.Shutdown(ctx)
}

// Handler returns the root HTTP handler, for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupRoutes configures the API routes
func (s *Server) setupRoutes() {
	authMiddleware := middleware.NewAuthMiddleware(s.authService)

	// API router with version prefix
	api := s.router.PathPrefix("/api/v1").Subrouter()

	// Public routes (no authentication required)
	api.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/login", s.handleLogin).Methods(http.MethodPost, http.MethodOptions)

	// Authenticated routes
	authenticated := api.PathPrefix("").Subrouter()
	authenticated.Use(authMiddleware.Authenticate)

	authenticated.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet, http.MethodOptions)

	auto := authenticated.PathPrefix("/automation").Subrouter()
	auto.HandleFunc("/start", s.handleStart).Methods(http.MethodPost, http.MethodOptions)
	auto.HandleFunc("/stop", s.handleStop).Methods(http.MethodPost, http.MethodOptions)

	authenticated.HandleFunc("/logs", s.handleLogs).Methods(http.MethodGet, http.MethodOptions)
	authenticated.HandleFunc("/logs/stream", s.logStream.ServeHTTP).Methods(http.MethodGet, http.MethodOptions)
	authenticated.HandleFunc("/ws", s.handleWebSocket).Methods(http.MethodGet)

	runs := authenticated.PathPrefix("/runs").Subrouter()
	runs.HandleFunc("", s.handleListRuns).Methods(http.MethodGet, http.MethodOptions)
	runs.HandleFunc("/{id}", s.handleGetRun).Methods(http.MethodGet, http.MethodOptions)

	// CORS middleware for all routes
	s.router.Use(middleware.CORS)
}

// handleHealth handles the health check endpoint
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"status": "ok",
		"time":   time.Now().Format(time.RFC3339),
	})
}

// handleLogin handles operator authentication
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	token, err := s.authService.Login(req.Username, req.Password)
	if err != nil {
		http.Error(w, "Invalid credentials", http.StatusUnauthorized)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"token": token,
	})
}

// handleWebSocket upgrades the connection and hands it to the stream manager
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	username, ok := middleware.GetUsername(r)
	if !ok {
		http.Error(w, "Authentication required", http.StatusUnauthorized)
		return
	}

	s.streamManager.HandleWebSocket(w, r, username)
}
