package observability

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.ObserveAPI("GET", "/health", "200", time.Millisecond)
	m.ObserveAgent("EDR", time.Millisecond, true)
	m.ObserveRetrieval("ego")
	m.ObserveModelLoad("x", time.Millisecond, nil)
	m.ObserveVerdict("triage", "Escalate", 40)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status=%d", rec.Code)
	}
}

func TestMetricsExposition(t *testing.T) {
	m := newMetrics()
	m.ObserveVerdict("supervisor", "True Positive", 86)
	m.ObserveAgent("GNN", 5*time.Millisecond, false)
	m.ObserveRetrieval("no_edges")
	m.ObserveModelLoad("ckpt.json", time.Second, errors.New("missing"))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()
	for _, want := range []string{
		`triage_verdicts_total{kind="supervisor",verdict="True Positive"} 1`,
		`triage_supervisor_agent_runs_total{agent="GNN",status="failed"} 1`,
		`triage_gnn_retrievals_total{outcome="no_edges"} 1`,
		`triage_model_loads_total{status="failed"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("missing %q in exposition", want)
		}
	}
}

func TestOtlpHeaders(t *testing.T) {
	h := otlpHeaders("api-key=abc, bad, x=  ,tenant=t1")
	if len(h) != 2 || h["api-key"] != "abc" || h["tenant"] != "t1" {
		t.Fatalf("headers=%v", h)
	}
	if otlpHeaders("") != nil {
		t.Fatalf("expected nil for empty input")
	}
}
