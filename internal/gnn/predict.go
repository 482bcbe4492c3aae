package gnn

import (
	"context"
	"fmt"
	"math"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/yungbote/triage-backend/internal/alert"
	"github.com/yungbote/triage-backend/internal/platform/logger"
	"github.com/yungbote/triage-backend/internal/verdict"
)

const (
	DefaultHops     = 5
	selfieScanLimit = 50

	ModeEgo    = "ego"
	ModeSelfie = "selfie"
)

// ModelSource resolves a checkpoint path to a loaded model.
type ModelSource interface {
	GetOrLoad(ctx context.Context, path string) (*Model, error)
}

type Prediction struct {
	AlertID       string                    `json:"alert_id"`
	Verdict       verdict.Label             `json:"verdict"`
	Score         float64                   `json:"score"`
	Probabilities map[verdict.Label]float64 `json:"probabilities"`
	Mode          string                    `json:"mode"`
}

type Predictor struct {
	log       *logger.Logger
	models    ModelSource
	retriever *Retriever
	ckpt      string
	hops      int
}

// NewPredictor wires a predictor. The checkpoint's own hop count wins; hops is
// the fallback, then DefaultHops.
func NewPredictor(log *logger.Logger, models ModelSource, retriever *Retriever, checkpoint string, hops int) *Predictor {
	return &Predictor{
		log:       log.With("component", "GNNPredictor"),
		models:    models,
		retriever: retriever,
		ckpt:      checkpoint,
		hops:      hops,
	}
}

func (p *Predictor) Checkpoint() string { return p.ckpt }

func (p *Predictor) Predict(ctx context.Context, payload map[string]any) (*Prediction, error) {
	alertID, err := alert.ExtractID(payload)
	if err != nil {
		return nil, err
	}

	ctx, span := otel.Tracer("triage/gnn").Start(ctx, "gnn.predict")
	defer span.End()
	span.SetAttributes(attribute.String("alert_id", alertID))

	model, err := p.models.GetOrLoad(ctx, p.ckpt)
	if err != nil {
		return nil, err
	}

	hops := model.Config.Hops
	if hops <= 0 {
		hops = p.hops
	}
	if hops <= 0 {
		hops = DefaultHops
	}

	mode := ModeSelfie
	var (
		x      [][]float64
		edges  map[string]EdgeIndex
		target int
	)
	if p.retriever != nil {
		if sg, ok := p.retriever.Retrieve(ctx, alertID, hops, model.Config.InDim); ok {
			aligned, n := model.AlignEdges(sg.EdgesByRelation)
			if n > 0 {
				mode = ModeEgo
				x, edges, target = sg.Features, aligned, sg.TargetIndex
			} else {
				p.log.Debug("subgraph shares no relation with model, falling back to selfie", "alert_id", alertID)
			}
		}
	}
	if mode == ModeSelfie {
		x, edges, target, err = selfieInput(payload, model)
		if err != nil {
			return nil, err
		}
	}
	span.SetAttributes(attribute.String("mode", mode), attribute.Int("nodes", len(x)))

	probs := Softmax(model.Forward(x, edges)[target])
	best := Argmax(probs)

	out := &Prediction{
		AlertID:       alertID,
		Verdict:       verdict.Classes[best],
		Score:         round(probs[best]*100, 2),
		Probabilities: make(map[verdict.Label]float64, len(probs)),
		Mode:          mode,
	}
	for i, pr := range probs {
		out.Probabilities[verdict.Classes[i]] = round(pr, 4)
	}
	p.log.Debug("gnn prediction", "alert_id", alertID, "verdict", out.Verdict, "score", out.Score, "mode", mode)
	return out, nil
}

// selfieInput encodes the raw payload as a lone Alert node with no edges.
func selfieInput(payload map[string]any, m *Model) ([][]float64, map[string]EdgeIndex, int, error) {
	flat, err := alert.FlattenLimit(payload, selfieScanLimit)
	if err != nil {
		return nil, nil, 0, fmt.Errorf("gnn: flatten payload: %w", err)
	}
	enc := Encoder{Dim: m.Config.InDim}
	x := [][]float64{enc.Encode([]string{"Alert"}, flat)}
	return x, m.EmptyEdges(), 0, nil
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
