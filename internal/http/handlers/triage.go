package handlers

import (
	"errors"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/triage-backend/internal/alert"
	"github.com/yungbote/triage-backend/internal/data/verdicts"
	"github.com/yungbote/triage-backend/internal/http/response"
	"github.com/yungbote/triage-backend/internal/platform/apierr"
	"github.com/yungbote/triage-backend/internal/platform/logger"
	"github.com/yungbote/triage-backend/internal/scoring"
	"github.com/yungbote/triage-backend/internal/verdict"
)

const triageModelVersion = "1.0"

type TriageHandler struct {
	log      *logger.Logger
	triage   *scoring.Triage
	recorder *VerdictRecorder
}

func NewTriageHandler(log *logger.Logger, t *scoring.Triage, rec *VerdictRecorder) *TriageHandler {
	return &TriageHandler{log: log.With("handler", "TriageHandler"), triage: t, recorder: rec}
}

type triagePrediction struct {
	PredictedVerdict verdict.Label `json:"predicted_verdict"`
	RiskScore        float64       `json:"risk_score"`
}

type agentScoreView struct {
	RawScore         float64                            `json:"raw_score"`
	WeightedScore    float64                            `json:"weighted_score"`
	WeightPercentage int                                `json:"weight_percentage"`
	Attributes       map[string]scoring.ScoredAttribute `json:"attributes"`
}

type triageMetadata struct {
	TotalRiskScore            float64                            `json:"total_risk_score"`
	Agent1Score               agentScoreView                     `json:"agent1_score"`
	Agent2Score               agentScoreView                     `json:"agent2_score"`
	CombinedAttributeAnalysis map[string]scoring.ScoredAttribute `json:"combined_attribute_analysis"`
	ScoringBreakdown          map[string]string                  `json:"scoring_breakdown"`
}

type triageResponse struct {
	Prediction   triagePrediction `json:"prediction"`
	Metadata     triageMetadata   `json:"metadata"`
	Timestamp    string           `json:"timestamp"`
	ModelVersion string           `json:"model_version"`
}

func agentView(s scoring.AgentScore) agentScoreView {
	return agentScoreView{
		RawScore:         s.RawTotal,
		WeightedScore:    s.WeightedTotal,
		WeightPercentage: int(s.WeightFraction*100 + 0.5),
		Attributes:       s.AttributeMap(),
	}
}

func newTriageResponse(res *scoring.Result, now time.Time) triageResponse {
	return triageResponse{
		Prediction: triagePrediction{
			PredictedVerdict: res.Verdict,
			RiskScore:        res.Confidence * 100,
		},
		Metadata: triageMetadata{
			TotalRiskScore:            res.Normalized,
			Agent1Score:               agentView(res.Heuristic),
			Agent2Score:               agentView(res.Enrichment),
			CombinedAttributeAnalysis: res.Combined(),
			ScoringBreakdown:          res.Breakdown(),
		},
		Timestamp:    now.UTC().Format(time.RFC3339Nano),
		ModelVersion: triageModelVersion,
	}
}

// POST /v1/triage
func (h *TriageHandler) Triage(c *gin.Context) {
	doc, err := readDocument(c, "file")
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	res, err := h.triage.Analyze(doc)
	if err != nil {
		if errors.Is(err, scoring.ErrEmptyAlert) || errors.Is(err, alert.ErrNotAggregate) {
			response.RespondAPIError(c, apierr.BadRequest("invalid_request", err))
			return
		}
		response.RespondAPIError(c, err)
		return
	}

	out := newTriageResponse(res, time.Now())
	alertID := ""
	if m, ok := doc.(map[string]any); ok {
		alertID, _ = alert.ExtractID(m)
	}
	h.recorder.Record(c.Request.Context(), verdicts.KindTriage, alertID, "", res.Verdict, res.Normalized, out.Metadata.ScoringBreakdown)
	h.log.Debug("triage verdict", "alert_id", alertID, "verdict", res.Verdict, "score", res.Normalized)
	response.RespondOK(c, out)
}
