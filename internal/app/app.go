package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"MediDesk/internal/audit"
	"MediDesk/internal/backend"
	"MediDesk/internal/config"
	"MediDesk/internal/gateway"
	"MediDesk/internal/ipc"
	"MediDesk/internal/notify"
	"MediDesk/internal/routes"
	"MediDesk/internal/session"
	"MediDesk/internal/telemetry"
)

// App owns the process-wide singletons: session store, backend client
// factory, router, push channel, notification center, gateway, and the
// telemetry plumbing underneath them.
type App struct {
	cfg      *config.Config
	logger   *slog.Logger
	db       *sql.DB
	sessions *session.Store
	router   *ipc.Router
	center   *notify.Center
	channel  *notify.Channel
	gateway  *gateway.Server
	cleanup  func()
}

// New wires the application from configuration.
func New(cfg *config.Config) (*App, error) {
	logger, err := telemetry.InitLogger(cfg.LogDir, cfg.Debug)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	ctx := context.Background()
	tracer, meter, cleanup, err := telemetry.InitTelemetry(ctx, cfg.LogDir)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	db, err := telemetry.InitDB(cfg.AuditDB)
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	sessions := session.NewStore(logger)
	factory := backend.NewFactory(cfg.BackendURL, sessions.BackendToken, logger)
	recorder := audit.NewRecorder(db, logger)

	router := ipc.NewRouter(sessions, factory, logger,
		ipc.WithTelemetry(tracer, meter),
		ipc.WithAuditor(recorder))

	center := notify.NewCenter(logger)

	a := &App{
		cfg:      cfg,
		logger:   logger,
		db:       db,
		sessions: sessions,
		router:   router,
		center:   center,
		cleanup:  cleanup,
	}

	a.gateway = gateway.NewServer(router, sessions, logger)
	a.channel = notify.NewChannel(cfg.PushURL, a.onNotification, logger,
		notify.WithReconnectDelay(cfg.ReconnectDelayDuration()))

	if err := router.RegisterModules(routes.Modules(a.channel, center, recorder)...); err != nil {
		cleanup()
		db.Close()
		return nil, fmt.Errorf("failed to register routes: %w", err)
	}

	logger.Info("routes registered", "count", len(router.Channels()), "backend", cfg.BackendURL)
	return a, nil
}

// onNotification stores an incoming push message and fans it out to every
// connected window.
func (a *App) onNotification(n notify.Notification) {
	stored := a.center.Add(n)
	a.gateway.Broadcast(stored)
}

// Run serves the gateway until ctx is cancelled, then shuts everything
// down.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- a.gateway.Start(a.cfg.GatewayAddr)
	}()

	select {
	case err := <-errCh:
		a.shutdown()
		return err
	case <-ctx.Done():
	}

	a.logger.Info("shutting down")
	a.shutdown()
	return nil
}

func (a *App) shutdown() {
	a.channel.Disconnect()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.gateway.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("failed to shutdown gateway", "error", err)
	}

	if err := a.db.Close(); err != nil {
		a.logger.Error("failed to close database", "error", err)
	}
	a.cleanup()
}
