package app

import (
	"context"
	"fmt"
	"strings"

	goredis "github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	redisclient "github.com/yungbote/triage-backend/internal/clients/redis"
	"github.com/yungbote/triage-backend/internal/data/verdicts"
	"github.com/yungbote/triage-backend/internal/platform/logger"
	"github.com/yungbote/triage-backend/internal/platform/neo4jdb"
	"github.com/yungbote/triage-backend/internal/triage/config"
)

// Clients holds the external connections. Each one is optional; a nil field
// means the dependency is not configured.
type Clients struct {
	Neo4j     *neo4jdb.Client
	Redis     *goredis.Client
	VerdictDB *gorm.DB
}

func wireClients(ctx context.Context, log *logger.Logger, cfg *config.Config) (Clients, error) {
	log.Info("Wiring clients...")
	var c Clients

	// Neo4j is skipped when a fixture graph is configured. An unreachable
	// graph store or redis degrades to in-process state instead of failing boot.
	if strings.TrimSpace(cfg.Graph.FixturePath) == "" {
		n, err := neo4jdb.NewFromEnv(log)
		if err != nil {
			log.Warn("neo4j unavailable, ego retrieval falls back to the in-process graph", "error", err)
		} else {
			c.Neo4j = n
		}
	}

	rdb, err := redisclient.Connect(ctx, log, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		log.Warn("redis unavailable, idempotency keys stay in-process", "addr", cfg.Redis.Addr, "error", err)
	} else {
		c.Redis = rdb
	}

	if dsn := strings.TrimSpace(cfg.VerdictLog.DSN); dsn != "" {
		db, err := verdicts.Open(dsn)
		if err != nil {
			c.Close(ctx)
			return Clients{}, fmt.Errorf("init verdict db: %w", err)
		}
		c.VerdictDB = db
	}
	return c, nil
}

func (c *Clients) Close(ctx context.Context) {
	if c == nil {
		return
	}
	if c.Neo4j != nil {
		_ = c.Neo4j.Close(ctx)
	}
	if c.Redis != nil {
		_ = c.Redis.Close()
	}
	if c.VerdictDB != nil {
		if sqlDB, err := c.VerdictDB.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
}
