// Package app assembles and runs the chat server: registry, dispatcher,
// inactivity supervisor, journal, transport, and the ops API behind one
// HTTP listener.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"parley/internal/api"
	"parley/internal/config"
	"parley/internal/dispatcher"
	"parley/internal/journal"
	"parley/internal/registry"
	"parley/internal/supervisor"
	"parley/internal/websocket"
)

// Application owns every component and their startup/shutdown order.
type Application struct {
	config     *config.Config
	logger     *slog.Logger
	registry   *registry.Registry
	journal    *journal.Journal
	dispatcher *dispatcher.Dispatcher
	supervisor *supervisor.Supervisor
	httpServer *http.Server
	listener   net.Listener

	supervisorCancel context.CancelFunc
	supervisorDone   chan struct{}
}

// New validates cfg and builds the component graph: journal first (the only
// fallible piece), then registry, dispatcher, supervisor, and the HTTP
// surface. Nothing starts running until Start.
func New(cfg *config.Config, logger *slog.Logger) (*Application, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	var jrn *journal.Journal
	if cfg.Journal.Path != "" {
		var err error
		jrn, err = journal.Open(cfg.Journal.Path, logger.With("component", "journal"))
		if err != nil {
			return nil, fmt.Errorf("initialize journal: %w", err)
		}
	}

	// The interface values stay nil when the journal is disabled; a typed
	// nil would defeat the recorders' nil checks.
	var dispatcherRec dispatcher.Recorder
	var supervisorRec supervisor.Recorder
	var apiJournal api.Journal
	if jrn != nil {
		dispatcherRec = jrn
		supervisorRec = jrn
		apiJournal = jrn
	}

	reg := registry.New()
	disp := dispatcher.New(reg, dispatcherRec, logger.With("component", "dispatcher"))
	sup := supervisor.New(reg, supervisorRec, logger.With("component", "supervisor"),
		cfg.Chat.SweepInterval, cfg.Chat.InactivityTimeout)

	wsHandler := websocket.NewHandler(disp, websocket.Options{
		HandshakeTimeout: cfg.Server.HandshakeTimeout,
		PingInterval:     cfg.Chat.PingInterval,
		PongWait:         cfg.Chat.PongWait,
		WriteTimeout:     cfg.Chat.WriteTimeout,
		SendBuffer:       cfg.Chat.SendBuffer,
	}, logger.With("component", "transport"))

	apiServer := api.NewServer(reg, apiJournal, logger.With("component", "api"))

	mux := http.NewServeMux()
	mux.Handle("/chat", wsHandler)
	mux.Handle("/health", apiServer)
	mux.Handle("/api/", apiServer)

	// Only the header read gets a server-wide timeout. Chat connections are
	// hijacked and long-lived; a blanket read/write timeout would sever them.
	httpServer := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return &Application{
		config:     cfg,
		logger:     logger,
		registry:   reg,
		journal:    jrn,
		dispatcher: disp,
		supervisor: sup,
		httpServer: httpServer,
	}, nil
}

// Start binds the listener and launches the supervisor and HTTP server. The
// bind happens synchronously so a taken port fails here, not in a goroutine
// log line.
func (app *Application) Start() error {
	addr := fmt.Sprintf("%s:%d", app.config.Server.Host, app.config.Server.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	app.listener = ln

	supCtx, cancel := context.WithCancel(context.Background())
	app.supervisorCancel = cancel
	app.supervisorDone = make(chan struct{})
	go func() {
		defer close(app.supervisorDone)
		app.supervisor.Run(supCtx)
	}()

	go func() {
		if err := app.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			app.logger.Error("http server failed", "error", err)
		}
	}()

	app.logger.Info("server listening",
		"addr", ln.Addr().String(),
		"inactivity_timeout", app.config.Chat.InactivityTimeout,
		"journal", app.config.Journal.Path != "")
	return nil
}

// Stop shuts the application down: stop accepting connections, stop the
// sweep, close live chat transports, then the journal last so departure
// events still land in it. ctx bounds the whole process.
func (app *Application) Stop(ctx context.Context) error {
	app.logger.Info("shutting down")

	if err := app.httpServer.Shutdown(ctx); err != nil {
		app.logger.Warn("http shutdown", "error", err)
	}

	if app.supervisorCancel != nil {
		app.supervisorCancel()
		select {
		case <-app.supervisorDone:
		case <-ctx.Done():
		}
	}

	// Shutdown does not touch hijacked connections; close them explicitly
	// and wait for their read loops to deregister so disconnect events
	// reach the journal before it closes.
	app.registry.ForEach(func(sess *registry.Session) {
		_ = sess.Conn.Close()
	})
	app.awaitDrain(ctx)

	if app.journal != nil {
		if err := app.journal.Close(); err != nil {
			app.logger.Warn("journal close", "error", err)
		}
	}

	app.logger.Info("shutdown complete")
	return nil
}

func (app *Application) awaitDrain(ctx context.Context) {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for app.registry.Len() > 0 {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Addr returns the bound listen address, usable once Start has returned.
func (app *Application) Addr() string {
	if app.listener == nil {
		return ""
	}
	return app.listener.Addr().String()
}
