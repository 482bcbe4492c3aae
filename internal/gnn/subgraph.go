package gnn

import (
	"context"
	"fmt"
	"sort"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/yungbote/triage-backend/internal/data/graph"
	"github.com/yungbote/triage-backend/internal/platform/logger"
)

const reverseSuffix = "_rev"

type EdgeIndex struct {
	Src []int
	Dst []int
}

func (e EdgeIndex) Len() int { return len(e.Src) }

type Subgraph struct {
	Nodes           []graph.Node
	Edges           []graph.Edge
	TargetIndex     int
	Features        [][]float64
	EdgesByRelation map[string]EdgeIndex
}

func (s *Subgraph) EdgeCount() int {
	n := 0
	for _, e := range s.EdgesByRelation {
		n += e.Len()
	}
	return n
}

// RetrievalObserver is notified with the outcome of every retrieval ("ego" or
// the isolation reason).
type RetrievalObserver interface {
	ObserveRetrieval(outcome string)
}

type Retriever struct {
	store    graph.Store
	log      *logger.Logger
	observer RetrievalObserver
}

func NewRetriever(store graph.Store, log *logger.Logger, obs RetrievalObserver) *Retriever {
	return &Retriever{store: store, log: log.With("component", "SubgraphRetriever"), observer: obs}
}

// Retrieve fetches the k-hop neighbourhood of an alert. ok is false when the
// alert is isolated: not found, store unreachable, or no usable edges.
func (r *Retriever) Retrieve(ctx context.Context, alertID string, maxHops, dim int) (sg *Subgraph, ok bool) {
	ctx, span := otel.Tracer("triage/gnn").Start(ctx, "gnn.retrieve_subgraph")
	defer span.End()
	span.SetAttributes(attribute.String("alert_id", alertID), attribute.Int("max_hops", maxHops))

	outcome := "ego"
	defer func() {
		span.SetAttributes(attribute.String("outcome", outcome))
		if r.observer != nil {
			r.observer.ObserveRetrieval(outcome)
		}
	}()

	if r.store == nil {
		outcome = "no_store"
		return nil, false
	}
	nodes, edges, err := r.store.Query(ctx, alertID, maxHops)
	if err != nil {
		outcome = "store_error"
		r.log.Warn("graph store unavailable, treating alert as isolated", "alert_id", alertID, "error", err)
		return nil, false
	}
	if len(nodes) == 0 {
		outcome = "not_found"
		return nil, false
	}
	sg, err = buildSubgraph(alertID, nodes, edges, Encoder{Dim: dim})
	if err != nil {
		outcome = "no_target"
		r.log.Debug("subgraph has no alert node", "alert_id", alertID, "nodes", len(nodes))
		return nil, false
	}
	if sg.EdgeCount() == 0 {
		outcome = "no_edges"
		return nil, false
	}
	return sg, true
}

func buildSubgraph(alertID string, nodes []graph.Node, edges []graph.Edge, enc Encoder) (*Subgraph, error) {
	target := -1
	for i, n := range nodes {
		if n.HasLabel(graph.AlertLabel) && fmt.Sprint(n.Properties["alert_id"]) == alertID {
			target = i
			break
		}
	}
	if target < 0 {
		for i, n := range nodes {
			if n.HasLabel(graph.AlertLabel) {
				target = i
				break
			}
		}
	}
	if target < 0 {
		return nil, fmt.Errorf("gnn: no alert node among %d nodes", len(nodes))
	}

	idx := make(map[string]int, len(nodes))
	features := make([][]float64, len(nodes))
	for i, n := range nodes {
		idx[n.ID] = i
		features[i] = enc.Encode(n.Labels, n.Properties)
	}

	types := map[string]bool{}
	for _, e := range edges {
		types[e.Type] = true
	}
	names := make([]string, 0, len(types))
	for t := range types {
		names = append(names, t)
	}
	sort.Strings(names)

	byRel := make(map[string]EdgeIndex, 2*len(names))
	for _, t := range names {
		byRel[t] = EdgeIndex{}
		byRel[t+reverseSuffix] = EdgeIndex{}
	}
	for _, e := range edges {
		u, okU := idx[e.SourceID]
		v, okV := idx[e.DestID]
		if !okU || !okV {
			continue
		}
		fwd := byRel[e.Type]
		fwd.Src, fwd.Dst = append(fwd.Src, u), append(fwd.Dst, v)
		byRel[e.Type] = fwd
		rev := byRel[e.Type+reverseSuffix]
		rev.Src, rev.Dst = append(rev.Src, v), append(rev.Dst, u)
		byRel[e.Type+reverseSuffix] = rev
	}

	return &Subgraph{
		Nodes:           nodes,
		Edges:           edges,
		TargetIndex:     target,
		Features:        features,
		EdgesByRelation: byRel,
	}, nil
}
