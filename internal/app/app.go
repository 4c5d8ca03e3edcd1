// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package app wires the viewer core, its trace engine and the API server.
package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/pmuetschard/gapid/internal/actions"
	"github.com/pmuetschard/gapid/internal/api"
	"github.com/pmuetschard/gapid/internal/config"
	"github.com/pmuetschard/gapid/internal/controllers"
	"github.com/pmuetschard/gapid/internal/engine"
	"github.com/pmuetschard/gapid/internal/events"
	"github.com/pmuetschard/gapid/internal/frontend"
	"github.com/pmuetschard/gapid/internal/permalink"
	"github.com/pmuetschard/gapid/internal/session"
	"github.com/pmuetschard/gapid/internal/state"
	"github.com/pmuetschard/gapid/internal/tracks"
	"github.com/pmuetschard/gapid/internal/watcher"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// App is the main application container.
type App struct {
	mu sync.RWMutex

	version  string
	config   *config.Config
	eventBus *events.MemoryEventBus
	store    *frontend.Store
	session  *session.Session
	registry *prometheus.Registry
	metrics  *engine.Metrics

	// Replaced when the trace is reopened.
	sqlite *engine.SQLiteEngine
	engine *engine.Counting

	permalinks *permalink.Store
	watcher    *watcher.TraceWatcher
	apiServer  *api.Server

	stopSession context.CancelFunc
	sessionDone chan struct{}

	done     chan struct{}
	stopOnce sync.Once
}

// Options holds configuration options for the app.
type Options struct {
	ConfigPath string // optional
	TracePath  string // overrides trace.path
	Host       string
	Port       int
	Debug      bool
	NoWatch    bool   // do not reopen the trace when it changes
	Version    string // Application version string
}

// New creates a new App instance.
func New(opts Options) (*App, error) {
	cfg := &config.Config{}
	if opts.ConfigPath != "" {
		loaded, err := config.NewLoader().Load(context.Background(), opts.ConfigPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = loaded
	}

	// Command line overrides
	if opts.TracePath != "" {
		cfg.Trace.Path = opts.TracePath
		cfg.Trace.Name = ""
	}
	if opts.Host != "" {
		cfg.Server.Host = opts.Host
	}
	if opts.Port > 0 {
		cfg.Server.Port = opts.Port
	}
	if opts.Debug {
		cfg.Logging.Debug = true
	}
	if opts.NoWatch {
		watch := false
		cfg.Trace.Watch = &watch
	}
	config.ApplyDefaults(cfg)

	if err := config.NewValidator().Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &App{
		version: opts.Version,
		config:  cfg,
		eventBus: events.NewMemoryEventBus(events.MemoryBusConfig{
			HistoryMaxEvents: cfg.Events.History.MaxEvents,
			HistoryMaxAge:    config.ParseDuration(cfg.Events.History.MaxAge, 10*time.Minute),
			// Viewer messages go to the store and the streams, not the history.
			Transient: []string{events.ViewerPrefix + "*"},
		}),
		done: make(chan struct{}),
	}, nil
}

// Config returns the effective configuration.
func (app *App) Config() *config.Config {
	return app.config
}

// Initialize opens the trace and sets up all components.
func (app *App) Initialize(ctx context.Context) error {
	cfg := app.config

	app.registry = prometheus.NewRegistry()
	app.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	app.metrics = engine.NewMetrics(app.registry)

	db, counting, err := app.openEngine(cfg.Trace.Path)
	if err != nil {
		return err
	}
	app.sqlite, app.engine = db, counting

	app.store = frontend.NewStore()
	if _, err := app.store.Attach(app.eventBus); err != nil {
		return fmt.Errorf("attaching store: %w", err)
	}

	app.session = session.New(session.Config{
		Engine:    app.engine,
		Publisher: session.BusPublisher{Bus: app.eventBus},
		Debug:     cfg.Logging.Debug,
	})

	permalinks, err := permalink.Open(cfg.Permalink.Dir)
	if err != nil {
		return err
	}
	app.permalinks = permalinks

	env := &controllers.Env{
		Session:       app.session,
		Tracks:        controllers.NewTrackRegistry(),
		Permalinks:    &announcingPermalinks{store: permalinks, bus: app.eventBus},
		OverviewSteps: cfg.Overview.Steps,
		QueryRowLimit: cfg.Limits.QueryRows,
	}
	tracks.Register(env.Tracks, tracks.Limits{
		SliceRows:    cfg.Limits.SliceRows,
		CPUSliceRows: cfg.Limits.CPUSliceRows,
	})
	app.session.SetRoot(controllers.NewAppController(env))

	if cfg.Trace.IsWatching() {
		w, err := watcher.New(watcher.Config{
			Debounce: config.ParseDuration(cfg.Trace.Debounce, 250*time.Millisecond),
			Bus:      app.eventBus,
			OnChange: func(string) { app.reopen(context.Background()) },
		})
		if err != nil {
			return err
		}
		if err := w.Watch(cfg.Trace.Path); err != nil {
			w.Close()
			return err
		}
		app.watcher = w
	}

	app.apiServer = api.NewServer(api.ServerConfig{
		Host: cfg.Server.Host,
		Port: cfg.Server.Port,
	}, api.Dependencies{
		Session:  app.session,
		Store:    app.store,
		EventBus: app.eventBus,
		Engine:   engineStatus{app},
		Metrics:  promhttp.HandlerFor(app.registry, promhttp.HandlerOpts{}),
		Version:  app.version,
	})
	return nil
}

// openEngine opens the trace database behind a counting engine.
func (app *App) openEngine(path string) (*engine.SQLiteEngine, *engine.Counting, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, nil, fmt.Errorf("opening trace: %w", err)
	}
	db, err := engine.OpenSQLite(path)
	if err != nil {
		return nil, nil, err
	}
	counting := engine.NewCounting(db,
		engine.WithMetrics(app.metrics),
		engine.WithQuietPeriod(config.ParseDuration(app.config.Engine.StatusQuiet, engine.DefaultQuietPeriod)),
		engine.WithStatusFunc(app.publishEngineStatus),
	)
	return db, counting, nil
}

func (app *App) publishEngineStatus(status string) {
	err := app.eventBus.Publish(context.Background(), events.Event{
		Type:    events.EventEngineStatus,
		Payload: map[string]string{"status": status},
	})
	if err != nil {
		log.Printf("Engine: publishing status: %v", err)
	}
}

// Start runs the dispatch loop, opens the trace and starts serving.
func (app *App) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(context.Background())
	app.stopSession = cancel
	app.sessionDone = make(chan struct{})
	go func() {
		defer close(app.sessionDone)
		app.session.Run(runCtx)
	}()

	app.eventBus.SetDefaultTrace(app.config.Trace.Name)
	if err := app.session.Submit(ctx, actions.OpenTrace(app.config.Trace.Name)); err != nil {
		return fmt.Errorf("opening trace: %w", err)
	}

	// Start API server in background
	go func() {
		log.Printf("Starting API server on %s:%d", app.config.Server.Host, app.config.Server.Port)
		if err := app.apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("API server error: %v", err)
		}
	}()

	return nil
}

// reopen swaps in a fresh engine for the changed trace file and opens the
// trace again. Tracks and queries of the old trace are torn down by the
// controllers.
func (app *App) reopen(ctx context.Context) {
	path := app.config.Trace.Path
	db, counting, err := app.openEngine(path)
	if err != nil {
		log.Printf("Trace: reopening %s: %v", path, err)
		app.announce(events.EventTraceFailed, map[string]string{"path": path, "error": err.Error()})
		return
	}

	err = app.session.Call(ctx, func() {
		app.session.SetEngine(counting)
		app.session.Dispatch(actions.OpenTrace(app.config.Trace.Name))
	})
	if err != nil {
		db.Close()
		log.Printf("Trace: reopening %s: %v", path, err)
		app.announce(events.EventTraceFailed, map[string]string{"path": path, "error": err.Error()})
		return
	}

	app.mu.Lock()
	old := app.sqlite
	app.sqlite, app.engine = db, counting
	app.mu.Unlock()
	if old != nil {
		// Queries of the old trace still running fail in-band.
		old.Close()
	}
	log.Printf("Trace: reopened %s", path)
	app.announce(events.EventTraceReopened, map[string]string{"path": path})
}

func (app *App) announce(eventType string, payload any) {
	if err := app.eventBus.Publish(context.Background(), events.Event{Type: eventType, Payload: payload}); err != nil {
		log.Printf("Trace: publishing %s: %v", eventType, err)
	}
}

// Run starts the app and blocks until shutdown.
func (app *App) Run(ctx context.Context) error {
	if err := app.Initialize(ctx); err != nil {
		return err
	}

	if err := app.Start(ctx); err != nil {
		app.Shutdown(context.Background())
		return err
	}

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Printf("Received signal %v, shutting down...", sig)
	case <-ctx.Done():
		log.Printf("Context cancelled, shutting down...")
	case <-app.done:
		log.Printf("Shutdown requested...")
	}

	return app.Shutdown(context.Background())
}

// Shutdown gracefully shuts down all components.
func (app *App) Shutdown(ctx context.Context) error {
	log.Println("Shutting down...")

	// Create shutdown context with timeout
	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	var errs []error

	// Stop API server first to stop accepting new requests
	if app.apiServer != nil {
		if err := app.apiServer.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("shutting down API server: %w", err))
		}
	}

	if app.watcher != nil {
		app.watcher.Close()
	}

	// Tears down the controller tree.
	if app.stopSession != nil {
		app.stopSession()
		<-app.sessionDone
	}

	if app.permalinks != nil {
		if err := app.permalinks.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing permalinks: %w", err))
		}
	}

	app.mu.Lock()
	if app.sqlite != nil {
		if err := app.sqlite.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing trace: %w", err))
		}
		app.sqlite = nil
	}
	app.mu.Unlock()

	if app.eventBus != nil {
		app.eventBus.Close()
	}

	log.Println("Shutdown complete")
	return errors.Join(errs...)
}

// Stop signals the app to shut down. Safe to call multiple times.
func (app *App) Stop() {
	app.stopOnce.Do(func() {
		close(app.done)
	})
}

// Router returns the HTTP handler of the API.
func (app *App) Router() http.Handler {
	return app.apiServer.Router()
}

// Session returns the dispatch runtime.
func (app *App) Session() *session.Session {
	return app.session
}

// Store returns the presentation store.
func (app *App) Store() *frontend.Store {
	return app.store
}

// EventBus returns the event bus.
func (app *App) EventBus() events.EventBus {
	return app.eventBus
}

// engineStatus follows the engine across reopens.
type engineStatus struct{ app *App }

func (s engineStatus) current() *engine.Counting {
	s.app.mu.RLock()
	defer s.app.mu.RUnlock()
	return s.app.engine
}

func (s engineStatus) Counts() (done, scheduled int64) {
	return s.current().Counts()
}

func (s engineStatus) Status() string {
	return s.current().Status()
}

// announcingPermalinks publishes an event for every saved permalink.
type announcingPermalinks struct {
	store *permalink.Store
	bus   events.EventBus
}

func (p *announcingPermalinks) Save(st *state.State) (string, error) {
	hash, err := p.store.Save(st)
	if err != nil {
		return "", err
	}
	err = p.bus.Publish(context.Background(), events.Event{
		Type:    events.EventPermalinkSaved,
		Payload: map[string]string{"hash": hash},
	})
	if err != nil {
		log.Printf("Permalink: publishing %s: %v", hash, err)
	}
	return hash, nil
}

func (p *announcingPermalinks) Load(hash string) (*state.State, error) {
	return p.store.Load(hash)
}
