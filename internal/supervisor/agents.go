package supervisor

import (
	"context"
	"fmt"
	"math"

	"github.com/yungbote/triage-backend/internal/gnn"
	"github.com/yungbote/triage-backend/internal/scoring"
	"github.com/yungbote/triage-backend/internal/verdict"
)

// EDRAgent classifies the EDR payload with the heuristic+enrichment fusion and
// bands the confidence into a risk score.
type EDRAgent struct {
	triage *scoring.Triage
}

func NewEDRAgent(t *scoring.Triage) *EDRAgent { return &EDRAgent{triage: t} }

func (a *EDRAgent) Name() string { return AgentEDR }

func (a *EDRAgent) Run(ctx context.Context, in Input) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	res, err := a.triage.Analyze(in.EDRPayload)
	if err != nil {
		return Result{}, err
	}
	v := verdict.Normalize(string(res.Verdict))
	c := res.Confidence * 100

	var risk float64
	switch v {
	case verdict.TruePositive:
		risk = math.Max(80, c)
	case verdict.Escalate:
		risk = math.Max(50, math.Min(c, 79))
	default:
		risk = math.Min(c, 30)
	}
	conf := round(c, 2)
	return Result{
		Agent:      AgentEDR,
		Score:      int(risk),
		Verdict:    v,
		Confidence: &conf,
		Message:    fmt.Sprintf("EDR Analysis: %s with %.1f%% confidence", v, c),
		Details: map[string]any{
			"total_risk_score":  round(res.Normalized, 2),
			"agent1_score":      res.Heuristic,
			"agent2_score":      res.Enrichment,
			"scoring_breakdown": res.Breakdown(),
		},
	}, nil
}

// Predictor is the GNN inference entry point.
type Predictor interface {
	Predict(ctx context.Context, payload map[string]any) (*gnn.Prediction, error)
}

type GNNAgent struct {
	predictor Predictor
}

func NewGNNAgent(p Predictor) *GNNAgent { return &GNNAgent{predictor: p} }

func (a *GNNAgent) Name() string { return AgentGNN }

func (a *GNNAgent) Run(ctx context.Context, in Input) (Result, error) {
	if a.predictor == nil {
		return Result{}, fmt.Errorf("no predictor configured")
	}
	p, err := a.predictor.Predict(ctx, in.GraphPayload)
	if err != nil {
		return Result{}, err
	}
	s := p.Score

	var risk float64
	switch p.Verdict {
	case verdict.TruePositive:
		risk = math.Max(80, s)
	case verdict.Escalate:
		risk = math.Max(40, math.Min(s, 79))
	default:
		risk = math.Min(s, 30)
	}
	conf := round(s, 2)
	return Result{
		Agent:         AgentGNN,
		Score:         int(risk),
		Verdict:       p.Verdict,
		Confidence:    &conf,
		Probabilities: p.Probabilities,
		Mode:          p.Mode,
		Message:       fmt.Sprintf("GNN Analysis (%s): %s with %.1f%% confidence", p.Mode, p.Verdict, s),
		Details:       map[string]any{"alert_id": p.AlertID, "mode": p.Mode},
	}, nil
}

// StubAgent occupies a roster slot for a source without an analyzer yet. It
// always succeeds with a zero score so it never moves the weighting.
type StubAgent struct {
	name    string
	message string
}

func NewFirewallAgent() *StubAgent {
	return &StubAgent{name: AgentFirewall, message: "Firewall agent not implemented - pluggable for future network analysis"}
}

func NewEmailAgent() *StubAgent {
	return &StubAgent{name: AgentEmail, message: "Email agent not implemented - pluggable for future email security analysis"}
}

func (a *StubAgent) Name() string { return a.name }

func (a *StubAgent) Run(ctx context.Context, in Input) (Result, error) {
	return Result{
		Agent:   a.name,
		Score:   0,
		Verdict: verdict.NoAnalysis,
		Message: a.message,
		Details: map[string]any{"status": "placeholder"},
	}, nil
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
