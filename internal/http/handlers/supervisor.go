package handlers

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/triage-backend/internal/alert"
	"github.com/yungbote/triage-backend/internal/data/verdicts"
	"github.com/yungbote/triage-backend/internal/http/response"
	"github.com/yungbote/triage-backend/internal/platform/apierr"
	"github.com/yungbote/triage-backend/internal/platform/logger"
	"github.com/yungbote/triage-backend/internal/supervisor"
)

var errMissingSource = errors.New("source query parameter is required")

type SupervisorHandler struct {
	log      *logger.Logger
	engine   *supervisor.Engine
	recorder *VerdictRecorder
}

func NewSupervisorHandler(log *logger.Logger, e *supervisor.Engine, rec *VerdictRecorder) *SupervisorHandler {
	return &SupervisorHandler{log: log.With("handler", "SupervisorHandler"), engine: e, recorder: rec}
}

func (h *SupervisorHandler) readInput(c *gin.Context) (supervisor.Input, error) {
	in := supervisor.Input{Source: strings.TrimSpace(c.Query("source"))}
	if isMultipart(c) {
		edr, err := readObject(c, "alert_data")
		if err != nil {
			return in, err
		}
		g, err := readObject(c, "gnn_data")
		if err != nil {
			return in, err
		}
		in.EDRPayload, in.GraphPayload = edr, g
	} else {
		// JSON body: {source, edr_payload, graph_payload}
		doc, err := readObject(c, "body")
		if err != nil {
			return in, err
		}
		edr, _ := doc["edr_payload"].(map[string]any)
		if edr == nil {
			return in, apierr.BadRequest("invalid_request", errors.New("edr_payload must be an object")).WithParam("edr_payload")
		}
		g, _ := doc["graph_payload"].(map[string]any)
		if g == nil {
			g = edr
		}
		if in.Source == "" {
			src, _ := alert.AsString(doc["source"])
			in.Source = strings.TrimSpace(src)
		}
		in.EDRPayload, in.GraphPayload = edr, g
	}
	if in.Source == "" {
		return in, apierr.BadRequest("missing_source", errMissingSource).WithParam("source")
	}
	return in, nil
}

// POST /v1/supervisor?source=...
func (h *SupervisorHandler) Run(c *gin.Context) {
	in, err := h.readInput(c)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	rep := h.engine.Run(c.Request.Context(), in)

	alertID, _ := alert.ExtractID(in.GraphPayload)
	if alertID == "" {
		alertID, _ = alert.ExtractID(in.EDRPayload)
	}
	h.recorder.Record(c.Request.Context(), verdicts.KindSupervisor, alertID, in.Source,
		rep.Prediction.PredictedVerdict, rep.Prediction.ConsolidatedScore, rep.Prediction)
	response.RespondOK(c, rep)
}
