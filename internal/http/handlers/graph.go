package handlers

import (
	"errors"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/triage-backend/internal/data/graph"
	"github.com/yungbote/triage-backend/internal/http/response"
	"github.com/yungbote/triage-backend/internal/platform/apierr"
	"github.com/yungbote/triage-backend/internal/platform/logger"
)

var errGraphUnavailable = errors.New("graph store not configured")

type GraphHandler struct {
	log    *logger.Logger
	writer graph.Writer
}

func NewGraphHandler(log *logger.Logger, w graph.Writer) *GraphHandler {
	return &GraphHandler{log: log.With("handler", "GraphHandler"), writer: w}
}

type graphIngestResponse struct {
	Success              bool           `json:"success"`
	GraphCreated         bool           `json:"graph_created"`
	AlertID              string         `json:"alert_id"`
	NodesCreated         int            `json:"nodes_created"`
	RelationshipsCreated int            `json:"relationships_created"`
	NodeBreakdown        map[string]int `json:"node_breakdown"`
	Timestamp            string         `json:"timestamp"`
}

// POST /v1/graph/alerts
func (h *GraphHandler) Ingest(c *gin.Context) {
	if h.writer == nil {
		response.RespondAPIError(c, apierr.Unavailable("graph_unavailable", errGraphUnavailable))
		return
	}
	payload, err := readObject(c, "file")
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	g, err := graph.BuildAlertGraph(payload)
	if err != nil {
		response.RespondAPIError(c, apierr.BadRequest("invalid_request", err))
		return
	}
	if err := h.writer.UpsertAlertGraph(c.Request.Context(), g); err != nil {
		h.log.Error("alert graph upsert failed", "alert_id", g.AlertID, "error", err)
		if errors.Is(err, graph.ErrStoreUnavailable) {
			response.RespondAPIError(c, apierr.Unavailable("graph_unavailable", err))
			return
		}
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, graphIngestResponse{
		Success:              true,
		GraphCreated:         true,
		AlertID:              g.AlertID,
		NodesCreated:         len(g.Nodes),
		RelationshipsCreated: len(g.Rels),
		NodeBreakdown:        g.Breakdown(),
		Timestamp:            time.Now().UTC().Format(time.RFC3339Nano),
	})
}
