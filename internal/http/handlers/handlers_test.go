package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/triage-backend/internal/alert"
	"github.com/yungbote/triage-backend/internal/data/graph"
	"github.com/yungbote/triage-backend/internal/data/verdicts"
	"github.com/yungbote/triage-backend/internal/gnn"
	"github.com/yungbote/triage-backend/internal/platform/logger"
	"github.com/yungbote/triage-backend/internal/registry"
	"github.com/yungbote/triage-backend/internal/scoring"
	"github.com/yungbote/triage-backend/internal/supervisor"
	"github.com/yungbote/triage-backend/internal/verdict"
)

type predictorFunc func(ctx context.Context, payload map[string]any) (*gnn.Prediction, error)

func (f predictorFunc) Predict(ctx context.Context, payload map[string]any) (*gnn.Prediction, error) {
	return f(ctx, payload)
}

func okPredictor() predictorFunc {
	return func(ctx context.Context, payload map[string]any) (*gnn.Prediction, error) {
		id, err := alert.ExtractID(payload)
		if err != nil {
			return nil, err
		}
		return &gnn.Prediction{
			AlertID: id,
			Verdict: verdict.TruePositive,
			Score:   91.5,
			Mode:    gnn.ModeSelfie,
			Probabilities: map[verdict.Label]float64{
				verdict.FalsePositive: 0.05, verdict.Escalate: 0.035, verdict.TruePositive: 0.915,
			},
		}, nil
	}
}

type testEnv struct {
	router *gin.Engine
	store  *verdicts.Store
	graph  *graph.MemoryStore
}

func newTestEnv(t *testing.T, p Predictor) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := verdicts.Open(":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	store, err := verdicts.NewStore(db, logger.Nop(), nil)
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	log := logger.Nop()
	rec := NewVerdictRecorder(store, nil)
	triage := scoring.NewTriage(verdict.Thresholds{})
	engine := supervisor.NewEngine(log, verdict.Thresholds{}, supervisor.DefaultRoster(
		supervisor.NewEDRAgent(triage), supervisor.NewGNNAgent(p),
	))
	mem := graph.NewMemoryStore()

	r := gin.New()
	h := NewHealthHandler(HealthDeps{Checkpoint: "models/x.json", RequireModel: true})
	r.GET("/health", h.Health)
	r.GET("/readyz", h.Readyz)
	r.POST("/v1/triage", NewTriageHandler(log, triage, rec).Triage)
	r.POST("/v1/gnn/predict", NewGNNHandler(log, p, rec).Predict)
	r.POST("/v1/supervisor", NewSupervisorHandler(log, engine, rec).Run)
	r.POST("/v1/graph/alerts", NewGraphHandler(log, mem).Ingest)
	r.GET("/v1/verdicts", NewVerdictHandler(store).List)
	r.GET("/v1/models", NewModelsHandler(registry.New(log), "models/x.json").List)
	return &testEnv{router: r, store: store, graph: mem}
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func jsonRequest(method, path, body string) *http.Request {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func multipartRequest(t *testing.T, path string, files map[string][2]string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for field, f := range files {
		fw, err := w.CreateFormFile(field, f[0])
		if err != nil {
			t.Fatal(err)
		}
		_, _ = fw.Write([]byte(f[1]))
	}
	_ = w.Close()
	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var env struct {
		Error struct {
			Code  string `json:"code"`
			Param string `json:"param"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode error body %s: %v", rec.Body.String(), err)
	}
	return env.Error.Code
}

const maliciousAlert = `{
  "alert_id": "a-42",
  "threatInfo": {"confidenceLevel": "malicious", "classification": "Ransomware", "mitigationStatus": "not_mitigated"},
  "indicators": [{"category": "Ransomware"}, {"category": "Persistence"}]
}`

func TestTriageJSONBody(t *testing.T) {
	env := newTestEnv(t, okPredictor())
	rec := env.do(jsonRequest(http.MethodPost, "/v1/triage", maliciousAlert))
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
	}
	var out triageResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatal(err)
	}
	if out.ModelVersion != "1.0" || out.Metadata.Agent1Score.WeightPercentage != 40 || out.Metadata.Agent2Score.WeightPercentage != 60 {
		t.Fatalf("response=%+v", out)
	}
	if out.Prediction.PredictedVerdict == "" || out.Metadata.TotalRiskScore < 0 || out.Metadata.TotalRiskScore > 100 {
		t.Fatalf("prediction=%+v total=%v", out.Prediction, out.Metadata.TotalRiskScore)
	}
	if len(out.Metadata.ScoringBreakdown) != 3 {
		t.Fatalf("breakdown=%v", out.Metadata.ScoringBreakdown)
	}

	recs, err := env.store.Recent(context.Background(), "a-42", 10)
	if err != nil || len(recs) != 1 || recs[0].Kind != verdicts.KindTriage {
		t.Fatalf("records=%v err=%v", recs, err)
	}
}

func TestTriageRejectsBadInput(t *testing.T) {
	env := newTestEnv(t, okPredictor())
	cases := []struct {
		name string
		body string
		code string
	}{
		{"empty object", `{}`, "invalid_request"},
		{"scalar", `42`, "invalid_request"},
		{"broken json", `{"a":`, "invalid_json"},
		{"empty body", ``, "empty_body"},
	}
	for _, tc := range cases {
		rec := env.do(jsonRequest(http.MethodPost, "/v1/triage", tc.body))
		if rec.Code != http.StatusBadRequest || errorCode(t, rec) != tc.code {
			t.Fatalf("%s: status=%d body=%s", tc.name, rec.Code, rec.Body.String())
		}
	}
}

func TestTriageMultipartUpload(t *testing.T) {
	env := newTestEnv(t, okPredictor())
	rec := env.do(multipartRequest(t, "/v1/triage", map[string][2]string{"file": {"alert.json", maliciousAlert}}))
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
	}
	rec = env.do(multipartRequest(t, "/v1/triage", map[string][2]string{"file": {"alert.txt", maliciousAlert}}))
	if rec.Code != http.StatusBadRequest || errorCode(t, rec) != "invalid_file" {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
	}
}

func TestGNNPredictErrors(t *testing.T) {
	env := newTestEnv(t, okPredictor())
	rec := env.do(jsonRequest(http.MethodPost, "/v1/gnn/predict", `{"uid":"u-1","x":1}`))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"mode":"selfie"`) {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
	}

	rec = env.do(jsonRequest(http.MethodPost, "/v1/gnn/predict", `{"x":1}`))
	if rec.Code != http.StatusBadRequest || errorCode(t, rec) != "missing_alert_id" {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
	}

	down := newTestEnv(t, predictorFunc(func(ctx context.Context, payload map[string]any) (*gnn.Prediction, error) {
		return nil, fmt.Errorf("%w: models/x.json: no such file", registry.ErrModelUnavailable)
	}))
	rec = down.do(jsonRequest(http.MethodPost, "/v1/gnn/predict", `{"uid":"u-1"}`))
	if rec.Code != http.StatusServiceUnavailable || errorCode(t, rec) != "model_unavailable" {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
	}
}

func TestSupervisorJSONAndMultipart(t *testing.T) {
	env := newTestEnv(t, okPredictor())

	rec := env.do(jsonRequest(http.MethodPost, "/v1/supervisor", `{"edr_payload":`+maliciousAlert+`}`))
	if rec.Code != http.StatusBadRequest || errorCode(t, rec) != "missing_source" {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
	}

	rec = env.do(jsonRequest(http.MethodPost, "/v1/supervisor?source=SentinelOne", `{"edr_payload":`+maliciousAlert+`}`))
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
	}
	var rep supervisor.Report
	if err := json.Unmarshal(rec.Body.Bytes(), &rep); err != nil {
		t.Fatal(err)
	}
	if got := rep.Metadata.SupervisorAnalysis.WeightingApplied.Strategy; !strings.HasPrefix(got, "Source-specific: EDR") && !strings.HasPrefix(got, "Fallback") {
		t.Fatalf("strategy=%q", got)
	}
	if rep.Metadata.ExecutionSummary.TotalAgents != 4 || rep.Metadata.ExecutionSummary.SuccessfulAgents != 4 {
		t.Fatalf("summary=%+v", rep.Metadata.ExecutionSummary)
	}

	rec = env.do(multipartRequest(t, "/v1/supervisor?source=edr", map[string][2]string{
		"alert_data": {"edr.json", maliciousAlert},
		"gnn_data":   {"gnn.json", `{"uid":"u-7"}`},
	}))
	if rec.Code != http.StatusOK {
		t.Fatalf("multipart status=%d body=%s", rec.Code, rec.Body.String())
	}
	recs, _ := env.store.Recent(context.Background(), "u-7", 5)
	if len(recs) != 1 || recs[0].Kind != verdicts.KindSupervisor || recs[0].Source != "edr" {
		t.Fatalf("records=%+v", recs)
	}

	rec = env.do(multipartRequest(t, "/v1/supervisor?source=edr", map[string][2]string{
		"alert_data": {"edr.json", maliciousAlert},
	}))
	if rec.Code != http.StatusBadRequest || errorCode(t, rec) != "missing_file" {
		t.Fatalf("missing gnn_data status=%d body=%s", rec.Code, rec.Body.String())
	}
}

func TestGraphIngestThenVerdictList(t *testing.T) {
	env := newTestEnv(t, okPredictor())
	body := `{"alert":{"id":"al-1"},"threat":{"id":"th-1"},"device":{"uuid":"h-1"},"process":{"name":"x.exe"}}`
	rec := env.do(jsonRequest(http.MethodPost, "/v1/graph/alerts", body))
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
	}
	var out graphIngestResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatal(err)
	}
	// Alert, Scores, Incident, Host, Process
	if out.AlertID != "al-1" || out.NodesCreated != 5 || out.NodeBreakdown["Process"] != 1 {
		t.Fatalf("out=%+v", out)
	}
	nodes, _, _ := env.graph.Query(context.Background(), "al-1", 2)
	if len(nodes) != 5 {
		t.Fatalf("graph nodes=%d", len(nodes))
	}

	rec = env.do(jsonRequest(http.MethodPost, "/v1/graph/alerts", `{"alert":{"id":"al-2"}}`))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("incomplete alert status=%d", rec.Code)
	}

	env.do(jsonRequest(http.MethodPost, "/v1/gnn/predict", `{"uid":"u-9"}`))
	rec = env.do(httptest.NewRequest(http.MethodGet, "/v1/verdicts?alert_id=u-9", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"kind":"gnn"`) {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
	}
	rec = env.do(httptest.NewRequest(http.MethodGet, "/v1/verdicts?limit=abc", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad limit status=%d", rec.Code)
	}
}

func TestHealthAndReadiness(t *testing.T) {
	env := newTestEnv(t, okPredictor())
	rec := env.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d", rec.Code)
	}
	var body map[string]any
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	if body["status"] != "healthy" || body["model_loaded"] != false || body["neo4j_connected"] != false {
		t.Fatalf("body=%v", body)
	}
	rec = env.do(httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("readyz status=%d", rec.Code)
	}
	rec = env.do(httptest.NewRequest(http.MethodGet, "/v1/models", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"data":[]`) {
		t.Fatalf("models status=%d body=%s", rec.Code, rec.Body.String())
	}
}
