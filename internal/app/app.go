package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	httpapi "github.com/yungbote/triage-backend/internal/http"
	"github.com/yungbote/triage-backend/internal/observability"
	"github.com/yungbote/triage-backend/internal/platform/logger"
	"github.com/yungbote/triage-backend/internal/triage/config"
)

const serviceName = "triage-backend"

type App struct {
	Log      *logger.Logger
	Config   *config.Config
	Metrics  *observability.Metrics
	Clients  Clients
	Services Services

	server        *http.Server
	otelShutdown  func(context.Context) error
	stopCollector context.CancelFunc
}

func New() (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	log, err := logger.New(cfg.Env)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	ctx := context.Background()
	otelShutdown := observability.InitOTel(ctx, log, observability.OtelConfig{
		ServiceName: serviceName,
		Environment: cfg.Env,
		Version:     cfg.Version,
	})
	metrics := observability.Init(log)

	clients, err := wireClients(ctx, log, cfg)
	if err != nil {
		log.Sync()
		return nil, err
	}

	services, err := wireServices(log, cfg, clients, metrics)
	if err != nil {
		clients.Close(ctx)
		log.Sync()
		return nil, err
	}

	collectorCtx, stopCollector := context.WithCancel(context.Background())
	metrics.StartPostgresCollector(collectorCtx, log, clients.VerdictDB)
	metrics.StartRedisCollector(collectorCtx, log, clients.Redis)

	handlerset := wireHandlers(log, cfg, clients, services, metrics)
	srv := httpapi.NewServer(httpapi.ServerConfig{
		Addr:              cfg.HTTP.Addr,
		ReadHeaderTimeout: cfg.HTTP.ReadHeaderTimeout.Duration,
		IdleTimeout:       cfg.HTTP.IdleTimeout.Duration,
	}, wireRouter(log, cfg, services, handlerset, metrics))

	return &App{
		Log:           log,
		Config:        cfg,
		Metrics:       metrics,
		Clients:       clients,
		Services:      services,
		server:        srv,
		otelShutdown:  otelShutdown,
		stopCollector: stopCollector,
	}, nil
}

func wireRouter(log *logger.Logger, cfg *config.Config, services Services, h Handlers, m *observability.Metrics) httpapi.RouterConfig {
	return httpapi.RouterConfig{
		Log:               log,
		ServiceName:       serviceName,
		Metrics:           m,
		Idempotency:       services.Idempotency,
		CORSOrigins:       cfg.HTTP.CORSOrigins,
		MaxRequestBytes:   cfg.HTTP.MaxRequestBytes,
		HealthHandler:     h.Health,
		TriageHandler:     h.Triage,
		GNNHandler:        h.GNN,
		SupervisorHandler: h.Supervisor,
		ModelsHandler:     h.Models,
		GraphHandler:      h.Graph,
		VerdictHandler:    h.Verdicts,
	}
}

// Run serves until ctx is cancelled, then drains in-flight requests within the
// configured shutdown timeout.
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.server == nil {
		return fmt.Errorf("app not initialized")
	}
	defer a.close()

	if a.Config.GNN.Preload {
		if err := a.Services.Registry.Preload(ctx, a.Config.GNN.Checkpoint); err != nil {
			a.Log.Warn("model preload failed; requests will retry the load", "checkpoint", a.Config.GNN.Checkpoint, "error", err)
		}
	}

	errCh := make(chan error, 1)
	go func() {
		a.Log.Info("triage server listening", "addr", a.server.Addr, "env", a.Config.Env)
		errCh <- a.server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		a.Log.Info("shutting down", "timeout", a.Config.HTTP.ShutdownTimeout.Duration)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.Config.HTTP.ShutdownTimeout.Duration)
		defer cancel()
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			a.Log.Warn("http shutdown incomplete", "error", err)
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (a *App) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if a.stopCollector != nil {
		a.stopCollector()
	}
	a.Clients.Close(ctx)
	if a.otelShutdown != nil {
		if err := a.otelShutdown(ctx); err != nil {
			a.Log.Warn("otel shutdown failed", "error", err)
		}
	}
	a.Log.Sync()
}
