// Package app wires the components together and manages their lifecycle.
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"parley/internal/api"
	"parley/internal/chat"
	"parley/internal/config"
	"parley/internal/group"
	"parley/internal/logging"
	"parley/internal/presence"
	"parley/internal/store"
	"parley/internal/websocket"
)

// Application owns every long-lived component. Construction follows
// dependency order: store, registries, channels, transport, HTTP.
type Application struct {
	cfg        *config.Config
	store      *store.Store
	registry   *presence.Registry
	transport  *websocket.Registry
	groups     *group.Manager
	httpServer *http.Server
}

// NewApplication builds the component graph and runs the startup recovery
// step: connection rows persisted by a previous process instance are purged
// before anything can observe them.
func NewApplication(cfg *config.Config) (*Application, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	st, err := store.Open(cfg.Database, logging.Component("store"))
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	// Each process instance gets a fresh epoch; membership rows from any
	// other epoch cannot reference live sessions.
	epoch := uuid.NewString()
	groups := group.NewManager(st, epoch, logging.Component("group"))
	if err := groups.PurgeStale(context.Background()); err != nil {
		_ = st.Close()
		return nil, err
	}

	transport := websocket.NewRegistry(logging.Component("transport"))
	registry := presence.NewRegistry()
	presenceChannel := presence.NewChannel(registry, st, transport, logging.Component("presence"))
	chatChannel := chat.NewChannel(groups, st, st, registry, transport, logging.Component("chat"))

	wsHandlers := websocket.NewHandlers(transport, presenceChannel, chatChannel,
		cfg.WebSocket, logging.Component("websocket"))
	server := api.NewServer(st, registry, transport, wsHandlers, logging.Component("api"))

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      server,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	return &Application{
		cfg:        cfg,
		store:      st,
		registry:   registry,
		transport:  transport,
		groups:     groups,
		httpServer: httpServer,
	}, nil
}

// Store exposes the store for seeding by the hosting layer.
func (app *Application) Store() *store.Store {
	return app.store
}

// Addr returns the address the HTTP server binds to.
func (app *Application) Addr() string {
	return app.httpServer.Addr
}

// Start begins serving. It returns once the listener is up or startup fails.
func (app *Application) Start(ctx context.Context) error {
	log := logging.Component("app")
	log.Info().Str("addr", app.httpServer.Addr).Msg("starting server")

	errCh := make(chan error, 1)
	go func() {
		if err := app.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("http server error: %w", err)
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-time.After(100 * time.Millisecond):
		log.Info().Msg("server started")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop shuts the application down in reverse dependency order.
func (app *Application) Stop(ctx context.Context) error {
	log := logging.Component("app")
	log.Info().Msg("shutting down")

	if err := app.httpServer.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("http server shutdown error")
	}
	if err := app.store.Close(); err != nil {
		log.Warn().Err(err).Msg("store shutdown error")
	}

	log.Info().Msg("shutdown complete")
	return nil
}
