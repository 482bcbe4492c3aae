package supervisor

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/yungbote/triage-backend/internal/gnn"
	"github.com/yungbote/triage-backend/internal/platform/logger"
	"github.com/yungbote/triage-backend/internal/scoring"
	"github.com/yungbote/triage-backend/internal/verdict"
)

type fakeAgent struct {
	name   string
	score  int
	v      verdict.Label
	err    error
	panics bool
	block  bool
}

func (f fakeAgent) Name() string { return f.name }

func (f fakeAgent) Run(ctx context.Context, in Input) (Result, error) {
	if f.panics {
		panic("boom")
	}
	if f.block {
		select {}
	}
	if f.err != nil {
		return Result{}, f.err
	}
	return Result{Score: f.score, Verdict: f.v, Message: f.name + " ran"}, nil
}

func roster(edr, gnnAgent, fw, email Agent) []Agent { return []Agent{edr, gnnAgent, fw, email} }

func stubs() (Agent, Agent) { return NewFirewallAgent(), NewEmailAgent() }

func TestFallbackWeightingWhenNonGNNAgentsScoreZero(t *testing.T) {
	fw, em := stubs()
	e := NewEngine(logger.Nop(), verdict.Thresholds{}, roster(
		fakeAgent{name: AgentEDR, score: 0, v: verdict.FalsePositive},
		fakeAgent{name: AgentGNN, score: 90, v: verdict.TruePositive},
		fw, em,
	))
	rep := e.Run(context.Background(), Input{Source: "edr", EDRPayload: map[string]any{"b": 1, "a": 2}})

	if rep.Prediction.ConsolidatedScore != 54 || rep.Prediction.PredictedVerdict != verdict.Escalate {
		t.Fatalf("prediction=%+v", rep.Prediction)
	}
	if got := rep.Metadata.SupervisorAnalysis.WeightingApplied.Strategy; got != "Fallback: EDR gets 40% (all agents scored 0)" {
		t.Fatalf("strategy=%q", got)
	}
	want := Probabilities{FalsePositive: 0.46, Escalate: 0.5, TruePositive: 0.46}
	if rep.Prediction.Probabilities != want || rep.Prediction.Confidence != 0.54 {
		t.Fatalf("probabilities=%+v confidence=%v", rep.Prediction.Probabilities, rep.Prediction.Confidence)
	}
	if keys := rep.Metadata.DataSources.EDRDataKeys; len(keys) != 2 || keys[0] != "a" {
		t.Fatalf("edr keys=%v", keys)
	}
	if s := rep.Metadata.ExecutionSummary; s.TotalAgents != 4 || s.SuccessfulAgents != 4 || s.FailedAgents != 0 {
		t.Fatalf("summary=%+v", s)
	}
	if len(rep.Metadata.ActionableMessages) != 4 {
		t.Fatalf("messages=%v", rep.Metadata.ActionableMessages)
	}
}

func TestSourceSpecificWeighting(t *testing.T) {
	fw, em := stubs()
	e := NewEngine(logger.Nop(), verdict.Thresholds{}, roster(
		fakeAgent{name: AgentEDR, score: 80, v: verdict.TruePositive},
		fakeAgent{name: AgentGNN, score: 90, v: verdict.TruePositive},
		fw, em,
	))
	rep := e.Run(context.Background(), Input{Source: "SentinelOne"})
	if rep.Prediction.ConsolidatedScore != 86 || rep.Prediction.PredictedVerdict != verdict.TruePositive {
		t.Fatalf("prediction=%+v", rep.Prediction)
	}
	if got := rep.Metadata.SupervisorAnalysis.WeightingApplied.Strategy; got != "Source-specific: EDR gets 40%" {
		t.Fatalf("strategy=%q", got)
	}
	if rep.Metadata.Agreement.Status != AgreementFull || rep.Metadata.Agreement.Consensus != string(verdict.TruePositive) {
		t.Fatalf("agreement=%+v", rep.Metadata.Agreement)
	}
}

func TestProportionalWeighting(t *testing.T) {
	e := NewEngine(logger.Nop(), verdict.Thresholds{}, roster(
		fakeAgent{name: AgentEDR, score: 60, v: verdict.Escalate},
		fakeAgent{name: AgentGNN, score: 50, v: verdict.Escalate},
		fakeAgent{name: AgentFirewall, score: 0, v: verdict.NoAnalysis},
		fakeAgent{name: AgentEmail, score: 20, v: verdict.FalsePositive},
	))
	rep := e.Run(context.Background(), Input{Source: "fortinet"})
	if rep.Metadata.ScoreBreakdown.NonGNNWeighted != 20 || rep.Prediction.ConsolidatedScore != 50 {
		t.Fatalf("breakdown=%+v", rep.Metadata.ScoreBreakdown)
	}
	if got := rep.Metadata.SupervisorAnalysis.WeightingApplied.Strategy; got != "Proportional among [EDR Email]" {
		t.Fatalf("strategy=%q", got)
	}
	if rep.Prediction.PredictedVerdict != verdict.Escalate {
		t.Fatalf("verdict=%s", rep.Prediction.PredictedVerdict)
	}
}

func TestAgentFailuresAreIsolated(t *testing.T) {
	e := NewEngine(logger.Nop(), verdict.Thresholds{}, roster(
		fakeAgent{name: AgentEDR, err: errors.New("bad payload")},
		fakeAgent{name: AgentGNN, score: 85, v: verdict.TruePositive},
		fakeAgent{name: AgentFirewall, panics: true},
		fakeAgent{name: AgentEmail, block: true},
	), WithAgentTimeout(20*time.Millisecond))

	rep := e.Run(context.Background(), Input{Source: "edr"})
	res := rep.Metadata.AgentResults
	if len(res) != 4 {
		t.Fatalf("results=%d", len(res))
	}
	for _, i := range []int{0, 2, 3} {
		if res[i].Success || res[i].Verdict != verdict.Error || res[i].Score != 0 {
			t.Fatalf("result %d=%+v", i, res[i])
		}
	}
	if !strings.Contains(res[0].Message, "bad payload") || !strings.Contains(res[2].Message, "panic") {
		t.Fatalf("messages=%q %q", res[0].Message, res[2].Message)
	}
	if s := rep.Metadata.ExecutionSummary; s.SuccessfulAgents != 1 || s.FailedAgents != 3 {
		t.Fatalf("summary=%+v", s)
	}
	if rep.Metadata.Agreement.Status != AgreementInsufficient {
		t.Fatalf("agreement=%+v", rep.Metadata.Agreement)
	}
	if rep.Prediction.ConsolidatedScore != 51 {
		t.Fatalf("score=%v", rep.Prediction.ConsolidatedScore)
	}
}

func TestAnalyzeAgreement(t *testing.T) {
	ok := func(name string, v verdict.Label) Result { return Result{Agent: name, Verdict: v, Success: true} }
	cases := []struct {
		name    string
		results []Result
		want    string
	}{
		{"stubs ignored", []Result{ok(AgentEDR, verdict.Escalate), ok(AgentFirewall, verdict.NoAnalysis)}, AgreementInsufficient},
		{"agree", []Result{ok(AgentEDR, verdict.Escalate), ok(AgentGNN, verdict.Escalate)}, AgreementFull},
		{"disagree", []Result{ok(AgentEDR, verdict.Escalate), ok(AgentGNN, verdict.TruePositive)}, AgreementPartial},
		{"three verdicts", []Result{ok(AgentEDR, verdict.Escalate), ok(AgentGNN, verdict.TruePositive), ok(AgentGNN, verdict.FalsePositive)}, AgreementNone},
	}
	for _, tc := range cases {
		if got := analyzeAgreement(tc.results); got.Status != tc.want {
			t.Fatalf("%s: status=%s want %s", tc.name, got.Status, tc.want)
		}
	}
}

type fakePredictor struct {
	p *gnn.Prediction
}

func (f fakePredictor) Predict(ctx context.Context, payload map[string]any) (*gnn.Prediction, error) {
	return f.p, nil
}

func TestGNNAgentBanding(t *testing.T) {
	cases := []struct {
		v     verdict.Label
		score float64
		want  int
	}{
		{verdict.TruePositive, 60.5, 80},
		{verdict.TruePositive, 97.3, 97},
		{verdict.Escalate, 35, 40},
		{verdict.Escalate, 88, 79},
		{verdict.FalsePositive, 70, 30},
		{verdict.FalsePositive, 12.9, 12},
	}
	for _, tc := range cases {
		a := NewGNNAgent(fakePredictor{p: &gnn.Prediction{AlertID: "a", Verdict: tc.v, Score: tc.score, Mode: gnn.ModeSelfie}})
		res, err := a.Run(context.Background(), Input{})
		if err != nil {
			t.Fatalf("run: %v", err)
		}
		if res.Score != tc.want {
			t.Fatalf("%s %.1f: score=%d want %d", tc.v, tc.score, res.Score, tc.want)
		}
	}
}

func TestStubAgents(t *testing.T) {
	for _, a := range []*StubAgent{NewFirewallAgent(), NewEmailAgent()} {
		res, err := a.Run(context.Background(), Input{})
		if err != nil || res.Score != 0 || res.Verdict != verdict.NoAnalysis || res.Details["status"] != "placeholder" {
			t.Fatalf("%s: res=%+v err=%v", a.Name(), res, err)
		}
	}
}

func TestEDRAgentRejectsEmptyPayload(t *testing.T) {
	a := NewEDRAgent(scoring.NewTriage(verdict.Thresholds{}))
	if _, err := a.Run(context.Background(), Input{}); !errors.Is(err, scoring.ErrEmptyAlert) {
		t.Fatalf("err=%v", err)
	}
}

func edrPayload(severity int, device, process string, enrichment map[string]any) map[string]any {
	p := map[string]any{
		"uid":         "edr-1",
		"severity_id": severity,
		"threat":      map[string]any{"confidence": "malicious"},
		"enrichments": []any{map[string]any{"data": enrichment}},
	}
	if device != "" {
		p["device"] = map[string]any{"type": device}
	}
	if process != "" {
		p["process"] = map[string]any{"name": process}
	}
	return p
}

func TestEDRAgentBanding(t *testing.T) {
	// Fused confidence: low ~17.51, mid ~33.51, high ~85.99.
	low := edrPayload(1, "", "", map[string]any{"positives": 2})
	mid := edrPayload(5, "", "", map[string]any{"positives": 2})
	high := edrPayload(7, "server", "powershell.exe", map[string]any{
		"positives":  2,
		"malicious":  2,
		"suspicious": 1,
		"stats":      map[string]any{"malicious": 2},
	})

	cases := []struct {
		name    string
		th      verdict.Thresholds
		payload map[string]any
		v       verdict.Label
		want    int
	}{
		{"tp floor", verdict.Thresholds{TruePositive: 30, Escalate: 10}, mid, verdict.TruePositive, 80},
		{"tp keeps confidence", verdict.Thresholds{}, high, verdict.TruePositive, 85},
		{"escalate floor", verdict.Thresholds{TruePositive: 90, Escalate: 20}, mid, verdict.Escalate, 50},
		{"escalate cap", verdict.Thresholds{TruePositive: 95, Escalate: 50}, high, verdict.Escalate, 79},
		{"fp cap", verdict.Thresholds{TruePositive: 90, Escalate: 40}, mid, verdict.FalsePositive, 30},
		{"fp keeps confidence", verdict.Thresholds{}, low, verdict.FalsePositive, 17},
	}
	for _, tc := range cases {
		tr := scoring.NewTriage(tc.th)
		res, err := NewEDRAgent(tr).Run(context.Background(), Input{EDRPayload: tc.payload})
		if err != nil {
			t.Fatalf("%s: run: %v", tc.name, err)
		}
		if res.Verdict != tc.v || res.Score != tc.want {
			t.Fatalf("%s: verdict=%s score=%d want %s %d (confidence=%v)", tc.name, res.Verdict, res.Score, tc.v, tc.want, *res.Confidence)
		}
	}
}
