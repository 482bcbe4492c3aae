package graph

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/yungbote/triage-backend/internal/platform/logger"
	"github.com/yungbote/triage-backend/internal/platform/neo4jdb"
)

const maxQueryHops = 10

type Neo4jStore struct {
	client *neo4jdb.Client
	log    *logger.Logger
}

func NewNeo4jStore(client *neo4jdb.Client, log *logger.Logger) *Neo4jStore {
	return &Neo4jStore{client: client, log: log.With("component", "Neo4jAlertGraph")}
}

// clampHops bounds an ego query to [1, maxQueryHops] for every store.
func clampHops(hops int) int {
	if hops < 1 {
		return 1
	}
	if hops > maxQueryHops {
		return maxQueryHops
	}
	return hops
}

// Variable-length bounds cannot be parameters, so the clamped hop count is
// formatted in.
func egoQuery(hops int) string {
	hops = clampHops(hops)
	return fmt.Sprintf(`
MATCH (a:Alert {alert_id: $id})
WITH a LIMIT 1
OPTIONAL MATCH p = (a)-[*..%d]-()
WITH a, collect(p) AS paths
WITH a,
     reduce(ns = [a], p IN paths | ns + nodes(p)) AS ns,
     reduce(rs = [], p IN paths | rs + relationships(p)) AS rs
RETURN
  [n IN ns | {id: elementId(n), labels: labels(n), props: properties(n)}] AS nodes,
  [r IN rs | {type: type(r), start: elementId(startNode(r)), end: elementId(endNode(r))}] AS rels
`, hops)
}

func (s *Neo4jStore) Query(ctx context.Context, alertID string, maxHops int) ([]Node, []Edge, error) {
	if s == nil || s.client == nil || s.client.Driver == nil {
		return nil, nil, ErrStoreUnavailable
	}

	session := s.client.Session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	type result struct {
		nodes []Node
		edges []Edge
	}
	out, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, egoQuery(maxHops), map[string]any{"id": alertID})
		if err != nil {
			return nil, err
		}
		if !res.Next(ctx) {
			return result{}, res.Err()
		}
		rec := res.Record()
		rawNodes, _ := rec.Get("nodes")
		rawRels, _ := rec.Get("rels")
		if _, err := res.Consume(ctx); err != nil {
			return nil, err
		}
		return result{nodes: decodeNodes(rawNodes), edges: decodeEdges(rawRels)}, nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	r, _ := out.(result)
	s.log.Debug("alert subgraph fetched", "alert_id", alertID, "hops", maxHops, "nodes", len(r.nodes), "edges", len(r.edges))
	return r.nodes, r.edges, nil
}

func decodeNodes(raw any) []Node {
	items, _ := raw.([]any)
	seen := make(map[string]bool, len(items))
	nodes := make([]Node, 0, len(items))
	for _, it := range items {
		m, ok := it.(map[string]any)
		if !ok {
			continue
		}
		id, _ := m["id"].(string)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		n := Node{ID: id, Properties: map[string]any{}}
		if labels, ok := m["labels"].([]any); ok {
			for _, l := range labels {
				if s, ok := l.(string); ok {
					n.Labels = append(n.Labels, s)
				}
			}
		}
		if props, ok := m["props"].(map[string]any); ok {
			n.Properties = props
		}
		nodes = append(nodes, n)
	}
	return nodes
}

func decodeEdges(raw any) []Edge {
	items, _ := raw.([]any)
	type key struct{ t, s, d string }
	seen := make(map[key]bool, len(items))
	edges := make([]Edge, 0, len(items))
	for _, it := range items {
		m, ok := it.(map[string]any)
		if !ok {
			continue
		}
		e := Edge{}
		e.Type, _ = m["type"].(string)
		e.SourceID, _ = m["start"].(string)
		e.DestID, _ = m["end"].(string)
		if e.Type == "" || e.SourceID == "" || e.DestID == "" {
			continue
		}
		k := key{e.Type, e.SourceID, e.DestID}
		if seen[k] {
			continue
		}
		seen[k] = true
		edges = append(edges, e)
	}
	return edges
}
