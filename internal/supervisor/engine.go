package supervisor

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/yungbote/triage-backend/internal/platform/logger"
	"github.com/yungbote/triage-backend/internal/verdict"
)

var DefaultThresholds = verdict.Thresholds{TruePositive: 80, Escalate: 50}

// Observer receives one call per agent execution.
type Observer interface {
	ObserveAgent(agent string, d time.Duration, success bool)
}

type Engine struct {
	log        *logger.Logger
	agents     []Agent
	thresholds verdict.Thresholds
	timeout    time.Duration
	observer   Observer
	now        func() time.Time
}

type Option func(*Engine)

// WithAgentTimeout bounds every agent run; zero disables the bound.
func WithAgentTimeout(d time.Duration) Option { return func(e *Engine) { e.timeout = d } }

func WithObserver(o Observer) Option { return func(e *Engine) { e.observer = o } }

func WithClock(now func() time.Time) Option { return func(e *Engine) { e.now = now } }

func NewEngine(log *logger.Logger, th verdict.Thresholds, agents []Agent, opts ...Option) *Engine {
	if th.TruePositive == 0 && th.Escalate == 0 {
		th = DefaultThresholds
	}
	e := &Engine{
		log:        log.With("component", "SupervisorEngine"),
		agents:     agents,
		thresholds: th,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// DefaultRoster is EDR, GNN and the two placeholder agents, in report order.
func DefaultRoster(edr *EDRAgent, gnnAgent *GNNAgent) []Agent {
	return []Agent{edr, gnnAgent, NewFirewallAgent(), NewEmailAgent()}
}

// Run executes every agent concurrently and fuses their scores. Agents never
// cancel each other; a failed or panicking agent contributes a zero score.
func (e *Engine) Run(ctx context.Context, in Input) *Report {
	ctx, span := otel.Tracer("triage/supervisor").Start(ctx, "supervisor.run")
	defer span.End()
	span.SetAttributes(attribute.String("source", in.Source), attribute.Int("agents", len(e.agents)))

	results := make([]Result, len(e.agents))
	var g errgroup.Group
	for i, a := range e.agents {
		i, a := i, a
		g.Go(func() error {
			results[i] = e.runAgent(ctx, a, in)
			return nil
		})
	}
	_ = g.Wait()

	scores := make(map[string]int, len(results))
	for _, r := range results {
		scores[r.Agent] = r.Score
	}
	w := weigh(in.Source, scores)
	decision := e.thresholds.Classify(w.consolidated)

	rep := &Report{
		Prediction: Prediction{
			PredictedVerdict:  decision,
			Confidence:        round(w.consolidated/100, 4),
			ConsolidatedScore: round(w.consolidated, 2),
			Probabilities:     probabilities(decision, w.consolidated),
		},
		Metadata: Metadata{
			SupervisorAnalysis: Analysis{
				Source:            in.Source,
				FinalDecision:     decision,
				ConsolidatedScore: round(w.consolidated, 2),
				WeightingApplied: WeightingApplied{
					GNNWeight:       "60% (fixed)",
					RemainingWeight: "40% (dynamic)",
					Strategy:        w.strategy,
				},
			},
			AgentResults: results,
			ScoreBreakdown: ScoreBreakdown{
				GNNRaw:            w.gnnRaw,
				GNNWeighted:       round(w.gnnWeighted, 2),
				NonGNNRaw:         w.nonGNNRaw,
				NonGNNWeighted:    round(w.remaining, 2),
				FinalConsolidated: round(w.consolidated, 2),
			},
			ActionableMessages: []string{},
			DataSources: DataSources{
				EDRDataKeys: sortedKeys(in.EDRPayload),
				GNNDataKeys: sortedKeys(in.GraphPayload),
			},
			Agreement: analyzeAgreement(results),
			Timestamp: e.now().UTC(),
		},
	}
	summary := &rep.Metadata.ExecutionSummary
	summary.TotalAgents = len(results)
	for _, r := range results {
		if r.Success {
			summary.SuccessfulAgents++
			rep.Metadata.ActionableMessages = append(rep.Metadata.ActionableMessages, r.Message)
		} else {
			summary.FailedAgents++
		}
	}

	span.SetAttributes(
		attribute.String("verdict", string(decision)),
		attribute.Float64("consolidated_score", w.consolidated),
	)
	e.log.Info("supervisor verdict",
		"source", in.Source,
		"verdict", decision,
		"consolidated_score", rep.Prediction.ConsolidatedScore,
		"strategy", w.strategy,
		"failed_agents", summary.FailedAgents,
	)
	return rep
}

func (e *Engine) runAgent(ctx context.Context, a Agent, in Input) Result {
	name := a.Name()
	start := time.Now()
	ctx, span := otel.Tracer("triage/supervisor").Start(ctx, "supervisor.agent")
	defer span.End()
	span.SetAttributes(attribute.String("agent", name))

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	res, err := e.invoke(ctx, a, in)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		e.log.Warn("agent failed", "agent", name, "error", err)
		res = failure(name, err)
	} else {
		res.Agent = name
		res.Success = true
		if res.Details == nil {
			res.Details = map[string]any{}
		}
	}
	if e.observer != nil {
		e.observer.ObserveAgent(name, time.Since(start), res.Success)
	}
	return res
}

// invoke runs the agent on its own goroutine so a deadline can abandon an agent
// that ignores its context, and so a panic is turned into an error.
func (e *Engine) invoke(ctx context.Context, a Agent, in Input) (Result, error) {
	type outcome struct {
		res Result
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("panic: %v", r)}
			}
		}()
		res, err := a.Run(ctx, in)
		done <- outcome{res: res, err: err}
	}()
	select {
	case o := <-done:
		return o.res, o.err
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}
