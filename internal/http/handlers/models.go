package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/yungbote/triage-backend/internal/http/response"
	"github.com/yungbote/triage-backend/internal/registry"
)

type ModelsHandler struct {
	registry   *registry.Registry
	checkpoint string
}

func NewModelsHandler(r *registry.Registry, checkpoint string) *ModelsHandler {
	return &ModelsHandler{registry: r, checkpoint: checkpoint}
}

// GET /v1/models
func (h *ModelsHandler) List(c *gin.Context) {
	response.RespondOK(c, gin.H{
		"object":     "list",
		"checkpoint": h.checkpoint,
		"data":       h.registry.Info(),
	})
}
