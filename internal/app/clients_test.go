package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/triage-backend/internal/platform/idempotency"
	"github.com/yungbote/triage-backend/internal/platform/logger"
)

func TestWireClientsDegradesWhenStoresRefuse(t *testing.T) {
	gin.SetMode(gin.TestMode)
	t.Setenv("NEO4J_URI", "bolt://127.0.0.1:1")
	t.Setenv("NEO4J_TIMEOUT_SECONDS", "1")

	cfg := testConfig(writeCheckpoint(t, 8))
	cfg.Redis.Addr = "127.0.0.1:1"

	ctx := context.Background()
	clients, err := wireClients(ctx, logger.Nop(), cfg)
	if err != nil {
		t.Fatalf("wire clients: %v", err)
	}
	defer clients.Close(ctx)
	if clients.Neo4j != nil || clients.Redis != nil {
		t.Fatalf("neo4j=%v redis=%v", clients.Neo4j, clients.Redis)
	}

	svc, err := wireServices(logger.Nop(), cfg, clients, nil)
	if err != nil {
		t.Fatalf("wire services: %v", err)
	}
	if svc.GraphBackend != "memory" {
		t.Fatalf("backend=%s", svc.GraphBackend)
	}
	if _, ok := svc.Idempotency.(*idempotency.Memory); !ok {
		t.Fatalf("idempotency=%T", svc.Idempotency)
	}

	h := wireHandlers(logger.Nop(), cfg, clients, svc, nil)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/health", nil)
	h.Health.Health(c)
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["neo4j_connected"] != false || body["redis_connected"] != false || body["graph_store"] != "memory" {
		t.Fatalf("health=%v", body)
	}
}
