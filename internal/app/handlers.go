package app

import (
	"context"

	httpH "github.com/yungbote/triage-backend/internal/http/handlers"
	"github.com/yungbote/triage-backend/internal/observability"
	"github.com/yungbote/triage-backend/internal/platform/logger"
	"github.com/yungbote/triage-backend/internal/triage/config"
)

type Handlers struct {
	Health     *httpH.HealthHandler
	Triage     *httpH.TriageHandler
	GNN        *httpH.GNNHandler
	Supervisor *httpH.SupervisorHandler
	Models     *httpH.ModelsHandler
	Graph      *httpH.GraphHandler
	Verdicts   *httpH.VerdictHandler
}

func wireHandlers(log *logger.Logger, cfg *config.Config, clients Clients, services Services, m *observability.Metrics) Handlers {
	log.Info("Wiring handlers...")

	deps := httpH.HealthDeps{
		Registry:     services.Registry,
		Checkpoint:   cfg.GNN.Checkpoint,
		GraphStore:   services.GraphBackend,
		RequireModel: cfg.GNN.Preload,
	}
	if clients.Neo4j != nil {
		deps.Neo4j = clients.Neo4j.Ping
	}
	if clients.Redis != nil {
		rdb := clients.Redis
		deps.Redis = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	}

	rec := httpH.NewVerdictRecorder(services.Verdicts, m)
	return Handlers{
		Health:     httpH.NewHealthHandler(deps),
		Triage:     httpH.NewTriageHandler(log, services.Triage, rec),
		GNN:        httpH.NewGNNHandler(log, services.Predictor, rec),
		Supervisor: httpH.NewSupervisorHandler(log, services.Supervisor, rec),
		Models:     httpH.NewModelsHandler(services.Registry, cfg.GNN.Checkpoint),
		Graph:      httpH.NewGraphHandler(log, services.GraphWriter),
		Verdicts:   httpH.NewVerdictHandler(services.Verdicts),
	}
}
