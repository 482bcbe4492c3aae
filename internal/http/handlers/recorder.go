package handlers

import (
	"context"

	"github.com/yungbote/triage-backend/internal/data/verdicts"
	"github.com/yungbote/triage-backend/internal/observability"
	"github.com/yungbote/triage-backend/internal/verdict"
)

// VerdictRecorder fans a produced verdict out to metrics and the audit log.
// Both sinks are optional.
type VerdictRecorder struct {
	store   *verdicts.Store
	metrics *observability.Metrics
}

func NewVerdictRecorder(store *verdicts.Store, m *observability.Metrics) *VerdictRecorder {
	return &VerdictRecorder{store: store, metrics: m}
}

func (r *VerdictRecorder) Record(ctx context.Context, kind verdicts.Kind, alertID, source string, v verdict.Label, score float64, details any) {
	if r == nil {
		return
	}
	r.metrics.ObserveVerdict(string(kind), string(v), score)
	r.store.Append(ctx, &verdicts.Record{
		Kind:    kind,
		AlertID: alertID,
		Verdict: string(v),
		Score:   score,
		Source:  source,
	}, details)
}
