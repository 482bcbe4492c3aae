package scoring

import (
	"errors"
	"testing"

	"github.com/yungbote/triage-backend/internal/alert"
	"github.com/yungbote/triage-backend/internal/verdict"
)

func TestTriageFusion(t *testing.T) {
	tr := NewTriage(verdict.Thresholds{})
	cases := []struct {
		name       string
		a1, a2     float64
		normalized float64
		want       verdict.Label
	}{
		{"escalate", 50, 50, 50, verdict.Escalate},
		{"true positive", 0, 150, 90, verdict.TruePositive},
		{"clamped high", 200, 200, 100, verdict.TruePositive},
		{"clamped low", -50, -10, 0, verdict.FalsePositive},
		{"boundary", 25, 25, 25, verdict.Escalate},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := tr.fuse(AgentScore{RawTotal: tc.a1}, AgentScore{RawTotal: tc.a2})
			if r.Normalized != tc.normalized || r.Verdict != tc.want {
				t.Fatalf("normalized=%v verdict=%s want %v/%s", r.Normalized, r.Verdict, tc.normalized, tc.want)
			}
			if r.Confidence != tc.normalized/100 {
				t.Fatalf("confidence=%v", r.Confidence)
			}
		})
	}
}

func TestTriageAnalyze(t *testing.T) {
	tr := NewTriage(verdict.Thresholds{})
	raw := map[string]any{
		"severity_id": 4.0,
		"threat":      map[string]any{"confidence": "malicious"},
		"file":        map[string]any{"verification": map[string]any{"type": "NotSigned"}},
		"enrichments": []any{map[string]any{"data": map[string]any{"positives": 15.0, "total": 60.0}}},
		"process":     map[string]any{"name": "cmd.exe"},
		"device":      map[string]any{"type": "laptop"},
	}
	r, err := tr.Analyze(raw)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	// agent1: 40 + 25 + 20 + 10 + 0 + 5 = 100; agent2: 40 + 12.5 + 30 = 82.5
	if r.Heuristic.RawTotal != 100 {
		t.Fatalf("agent1=%v", r.Heuristic.RawTotal)
	}
	if r.Enrichment.RawTotal != 82.5 {
		t.Fatalf("agent2=%v", r.Enrichment.RawTotal)
	}
	if r.Verdict != verdict.TruePositive || r.Normalized != 89.5 {
		t.Fatalf("verdict=%s normalized=%v", r.Verdict, r.Normalized)
	}
	if len(r.Combined()) != len(r.Heuristic.Attributes)+len(r.Enrichment.Attributes) {
		t.Fatalf("combined attributes collided")
	}
}

func TestTriageRejectsEmptyAndScalar(t *testing.T) {
	tr := NewTriage(verdict.Thresholds{})
	if _, err := tr.Analyze(map[string]any{}); !errors.Is(err, ErrEmptyAlert) {
		t.Fatalf("empty: err=%v", err)
	}
	if _, err := tr.Analyze("alert"); !errors.Is(err, alert.ErrNotAggregate) {
		t.Fatalf("scalar: err=%v", err)
	}
}
