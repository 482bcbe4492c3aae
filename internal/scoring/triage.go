package scoring

import (
	"errors"
	"fmt"
	"math"

	"github.com/yungbote/triage-backend/internal/alert"
	"github.com/yungbote/triage-backend/internal/verdict"
)

var ErrEmptyAlert = errors.New("scoring: no valid alert data provided")

const (
	heuristicWeight  = 0.4
	enrichmentWeight = 0.6
)

var DefaultThresholds = verdict.Thresholds{TruePositive: 80, Escalate: 25}

// Triage fuses Agent1 and Agent2 into a standalone verdict.
type Triage struct {
	Thresholds verdict.Thresholds
	Enrichment Enrichment
}

func NewTriage(th verdict.Thresholds) *Triage {
	if th.TruePositive == 0 && th.Escalate == 0 {
		th = DefaultThresholds
	}
	return &Triage{Thresholds: th}
}

type Result struct {
	Verdict    verdict.Label
	Normalized float64
	Weighted   float64
	Confidence float64
	Heuristic  AgentScore
	Enrichment AgentScore
}

func (t *Triage) Analyze(raw any) (*Result, error) {
	flat, err := alert.Flatten(raw)
	if err != nil {
		return nil, err
	}
	if len(flat) == 0 {
		return nil, ErrEmptyAlert
	}
	return t.AnalyzeRecord(flat), nil
}

func (t *Triage) AnalyzeRecord(flat alert.Record) *Result {
	a1 := Heuristic(flat)
	a2 := t.Enrichment.Score(flat)
	return t.fuse(a1, a2)
}

func (t *Triage) fuse(a1, a2 AgentScore) *Result {
	a1.WeightFraction, a2.WeightFraction = heuristicWeight, enrichmentWeight
	a1.WeightedTotal = a1.RawTotal * heuristicWeight
	a2.WeightedTotal = a2.RawTotal * enrichmentWeight

	weighted := a1.WeightedTotal + a2.WeightedTotal
	normalized := math.Max(0, math.Min(weighted, 100))
	return &Result{
		Verdict:    t.Thresholds.Classify(normalized),
		Normalized: normalized,
		Weighted:   weighted,
		Confidence: normalized / 100,
		Heuristic:  a1,
		Enrichment: a2,
	}
}

// Breakdown renders the human readable contribution lines.
func (r *Result) Breakdown() map[string]string {
	return map[string]string{
		"agent1_contribution": fmt.Sprintf("%.2f points (40%% weight)", r.Heuristic.WeightedTotal),
		"agent2_contribution": fmt.Sprintf("%.2f points (60%% weight)", r.Enrichment.WeightedTotal),
		"total_weighted":      fmt.Sprintf("%.2f points", r.Weighted),
	}
}

// Combined merges both attribute sets; Agent2 names never collide with Agent1's.
func (r *Result) Combined() map[string]ScoredAttribute {
	out := r.Heuristic.AttributeMap()
	for k, v := range r.Enrichment.AttributeMap() {
		out[k] = v
	}
	return out
}
