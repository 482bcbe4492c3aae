package graph

import (
	"context"
	"errors"
)

var ErrStoreUnavailable = errors.New("graph: store unavailable")

const AlertLabel = "Alert"

type Node struct {
	ID         string         `json:"id"`
	Labels     []string       `json:"labels"`
	Properties map[string]any `json:"properties"`
}

func (n Node) HasLabel(label string) bool {
	for _, l := range n.Labels {
		if l == label {
			return true
		}
	}
	return false
}

type Edge struct {
	Type     string `json:"type"`
	SourceID string `json:"source"`
	DestID   string `json:"dest"`
}

// Store answers k-hop neighbourhood queries around an alert node. An empty
// result (no error) means the alert is not in the graph.
type Store interface {
	Query(ctx context.Context, alertID string, maxHops int) ([]Node, []Edge, error)
}

// Writer persists an alert knowledge graph, merging on node keys so repeated
// ingestion of the same alert is idempotent.
type Writer interface {
	UpsertAlertGraph(ctx context.Context, g *AlertGraph) error
}
