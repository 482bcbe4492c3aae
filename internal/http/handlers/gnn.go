package handlers

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/triage-backend/internal/alert"
	"github.com/yungbote/triage-backend/internal/data/verdicts"
	"github.com/yungbote/triage-backend/internal/gnn"
	"github.com/yungbote/triage-backend/internal/http/response"
	"github.com/yungbote/triage-backend/internal/platform/apierr"
	"github.com/yungbote/triage-backend/internal/platform/logger"
	"github.com/yungbote/triage-backend/internal/registry"
)

type Predictor interface {
	Predict(ctx context.Context, payload map[string]any) (*gnn.Prediction, error)
}

type GNNHandler struct {
	log       *logger.Logger
	predictor Predictor
	recorder  *VerdictRecorder
}

func NewGNNHandler(log *logger.Logger, p Predictor, rec *VerdictRecorder) *GNNHandler {
	return &GNNHandler{log: log.With("handler", "GNNHandler"), predictor: p, recorder: rec}
}

// predictionError maps predictor failures onto API errors.
func predictionError(err error) error {
	switch {
	case errors.Is(err, alert.ErrNoAlertID):
		return apierr.BadRequest("missing_alert_id", errors.New("could not find alert id in JSON"))
	case errors.Is(err, registry.ErrModelUnavailable):
		return apierr.Unavailable("model_unavailable", err)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return apierr.Unavailable("timeout", err)
	}
	return err
}

// POST /v1/gnn/predict
func (h *GNNHandler) Predict(c *gin.Context) {
	payload, err := readObject(c, "file")
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	pred, err := h.predictor.Predict(c.Request.Context(), payload)
	if err != nil {
		h.log.Warn("gnn prediction failed", "error", err)
		response.RespondAPIError(c, predictionError(err))
		return
	}
	h.recorder.Record(c.Request.Context(), verdicts.KindGNN, pred.AlertID, "", pred.Verdict, pred.Score, pred)
	response.RespondOK(c, pred)
}
