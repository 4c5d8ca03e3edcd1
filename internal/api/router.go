// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package api serves the viewer core over HTTP.
package api

import (
	"context"
	"log"
	"net/http"
	_ "net/http/pprof"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/pmuetschard/gapid/internal/api/handlers"
	"github.com/pmuetschard/gapid/internal/api/middleware"
	"github.com/pmuetschard/gapid/internal/events"
	"github.com/pmuetschard/gapid/internal/frontend"
)

// ServerConfig holds configuration for the API server.
type ServerConfig struct {
	Host string
	Port int
}

// Dependencies holds all dependencies for API handlers.
type Dependencies struct {
	Session  handlers.Dispatcher
	Store    *frontend.Store
	EventBus events.EventBus
	Engine   handlers.EngineStatus // optional
	Metrics  http.Handler          // optional, served on /metrics
	Version  string
}

// NewRouter creates a new API router.
func NewRouter(deps Dependencies) *mux.Router {
	r := mux.NewRouter()

	// Apply global middleware
	r.Use(middleware.Logging)
	r.Use(middleware.Recovery)
	r.Use(middleware.CORS)

	api := r.PathPrefix("/api/v1").Subrouter()

	viewer := handlers.NewViewerHandler(deps.Session, deps.Store, deps.Engine)
	api.HandleFunc("/actions", viewer.Dispatch).Methods("POST")
	api.HandleFunc("/state", viewer.State).Methods("GET")
	api.HandleFunc("/tracks/{id}/data", viewer.TrackData).Methods("GET")
	api.HandleFunc("/tracks/{id}/needs-data", viewer.NeedsData).Methods("GET")
	api.HandleFunc("/overview", viewer.Overview).Methods("GET")
	api.HandleFunc("/threads", viewer.Threads).Methods("GET")
	api.HandleFunc("/queries/{id}", viewer.QueryResult).Methods("GET")
	api.HandleFunc("/engine", viewer.Engine).Methods("GET")

	eventHandler := handlers.NewEventHandler(deps.EventBus, deps.Session.Snapshot)
	api.HandleFunc("/events", eventHandler.History).Methods("GET")
	api.HandleFunc("/events/ws", eventHandler.WebSocket).Methods("GET")

	api.HandleFunc("/version", func(w http.ResponseWriter, r *http.Request) {
		handlers.WriteJSON(w, http.StatusOK, map[string]string{"version": deps.Version})
	}).Methods("GET")

	if deps.Metrics != nil {
		r.Handle("/metrics", deps.Metrics).Methods("GET")
	}

	// Debug/profiling endpoints
	r.PathPrefix("/debug/pprof/").Handler(http.DefaultServeMux)

	return r
}

// Server represents the API server.
type Server struct {
	router *mux.Router
	cfg    ServerConfig
	server *http.Server
}

// NewServer creates a new API server.
func NewServer(cfg ServerConfig, deps Dependencies) *Server {
	return &Server{
		router: NewRouter(deps),
		cfg:    cfg,
	}
}

// Router returns the underlying router.
func (s *Server) Router() *mux.Router {
	return s.router
}

// ListenAndServe starts the server.
func (s *Server) ListenAndServe() error {
	addr := s.cfg.Host + ":" + strconv.Itoa(s.cfg.Port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	log.Printf("API server listening on http://%s", addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}

	log.Println("Shutting down API server...")

	// Create a timeout context if none provided
	shutdownCtx := ctx
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		shutdownCtx, cancel = context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
	}

	return s.server.Shutdown(shutdownCtx)
}
