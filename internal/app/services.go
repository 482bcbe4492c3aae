package app

import (
	"fmt"
	"strings"

	redisclient "github.com/yungbote/triage-backend/internal/clients/redis"
	"github.com/yungbote/triage-backend/internal/data/graph"
	"github.com/yungbote/triage-backend/internal/data/verdicts"
	"github.com/yungbote/triage-backend/internal/gnn"
	"github.com/yungbote/triage-backend/internal/observability"
	"github.com/yungbote/triage-backend/internal/platform/idempotency"
	"github.com/yungbote/triage-backend/internal/platform/logger"
	"github.com/yungbote/triage-backend/internal/registry"
	"github.com/yungbote/triage-backend/internal/scoring"
	"github.com/yungbote/triage-backend/internal/supervisor"
	"github.com/yungbote/triage-backend/internal/triage/config"
)

type Services struct {
	Registry    *registry.Registry
	Predictor   *gnn.Predictor
	Triage      *scoring.Triage
	Supervisor  *supervisor.Engine
	Idempotency idempotency.Store
	Verdicts    *verdicts.Store

	GraphStore  graph.Store
	GraphWriter graph.Writer

	// GraphBackend names the store kind for /health: neo4j, fixture or memory.
	GraphBackend string
}

func wireServices(log *logger.Logger, cfg *config.Config, clients Clients, m *observability.Metrics) (Services, error) {
	log.Info("Wiring services...")

	var (
		store   graph.Store
		writer  graph.Writer
		backend string
	)
	switch {
	case strings.TrimSpace(cfg.Graph.FixturePath) != "":
		mem, err := graph.LoadMemoryStore(cfg.Graph.FixturePath)
		if err != nil {
			return Services{}, fmt.Errorf("load graph fixture: %w", err)
		}
		store, writer, backend = mem, mem, "fixture"
	case clients.Neo4j != nil:
		n := graph.NewNeo4jStore(clients.Neo4j, log)
		store, writer, backend = n, n, "neo4j"
	default:
		// Ingested graphs still feed ego retrieval, for this process only.
		mem := graph.NewMemoryStore()
		store, writer, backend = mem, mem, "memory"
		log.Warn("no graph store configured, using in-process graph")
	}

	var idem idempotency.Store
	if clients.Redis != nil {
		idem = redisclient.NewIdempotencyStore(clients.Redis, cfg.Redis.IdempotencyTTL.Duration)
	} else {
		idem = idempotency.NewMemory(cfg.Redis.IdempotencyTTL.Duration, 0)
	}

	vs, err := verdicts.NewStore(clients.VerdictDB, log, m)
	if err != nil {
		return Services{}, err
	}

	reg := registry.New(log,
		registry.WithLoader(checkpointLoader(cfg.GNN.FeatureDim)),
		registry.WithObserver(m),
	)
	retriever := gnn.NewRetriever(store, log, m)
	predictor := gnn.NewPredictor(log, reg, retriever, cfg.GNN.Checkpoint, cfg.GNN.Hops)

	triage := scoring.NewTriage(cfg.Triage.Thresholds)
	engine := supervisor.NewEngine(log, cfg.Supervisor.Thresholds,
		supervisor.DefaultRoster(supervisor.NewEDRAgent(triage), supervisor.NewGNNAgent(predictor)),
		supervisor.WithAgentTimeout(cfg.Supervisor.AgentTimeout.Duration),
		supervisor.WithObserver(m),
	)

	return Services{
		Registry:     reg,
		Predictor:    predictor,
		Triage:       triage,
		Supervisor:   engine,
		Idempotency:  idem,
		Verdicts:     vs,
		GraphStore:   store,
		GraphWriter:  writer,
		GraphBackend: backend,
	}, nil
}

// checkpointLoader rejects checkpoints whose input width differs from the
// configured feature dimension. Zero accepts any width.
func checkpointLoader(featureDim int) registry.Loader {
	return func(path string) (*gnn.Model, error) {
		m, err := gnn.LoadCheckpoint(path)
		if err != nil {
			return nil, err
		}
		if featureDim > 0 && m.Config.InDim != featureDim {
			return nil, fmt.Errorf("checkpoint in_dim=%d, configured feature_dim=%d", m.Config.InDim, featureDim)
		}
		return m, nil
	}
}
