package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/triage-backend/internal/registry"
)

// PingFunc reports whether a dependency answers. A nil PingFunc means the
// dependency is not configured.
type PingFunc func(ctx context.Context) error

type HealthDeps struct {
	Neo4j      PingFunc
	Redis      PingFunc
	Registry   *registry.Registry
	Checkpoint string
	GraphStore string
	// RequireModel makes /readyz fail until the checkpoint is loaded.
	RequireModel bool
}

type HealthHandler struct {
	deps HealthDeps
	now  func() time.Time
}

func NewHealthHandler(deps HealthDeps) *HealthHandler {
	return &HealthHandler{deps: deps, now: time.Now}
}

func (h *HealthHandler) Healthz(c *gin.Context) {
	c.String(http.StatusOK, "ok")
}

func (h *HealthHandler) Readyz(c *gin.Context) {
	if h.deps.RequireModel {
		if _, ok := h.deps.Registry.Loaded(h.deps.Checkpoint); !ok {
			c.String(http.StatusServiceUnavailable, "model not loaded")
			return
		}
	}
	c.String(http.StatusOK, "ok")
}

func ping(ctx context.Context, f PingFunc) bool {
	if f == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return f(ctx) == nil
}

// GET /health
func (h *HealthHandler) Health(c *gin.Context) {
	ctx := c.Request.Context()
	body := gin.H{
		"status":          "healthy",
		"neo4j_connected": ping(ctx, h.deps.Neo4j),
		"redis_connected": ping(ctx, h.deps.Redis),
		"graph_store":     h.deps.GraphStore,
		"model_loaded":    false,
		"checkpoint":      h.deps.Checkpoint,
		"timestamp":       h.now().UTC().Format(time.RFC3339Nano),
	}
	if info, ok := h.deps.Registry.Loaded(h.deps.Checkpoint); ok {
		body["model_loaded"] = true
		body["model_fingerprint"] = info.Fingerprint
	}
	c.JSON(http.StatusOK, body)
}
