package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
)

// MemoryStore is an in-process graph used for local fixtures and tests.
type MemoryStore struct {
	mu    sync.RWMutex
	nodes []Node
	byID  map[string]int
	edges []Edge
	adj   map[string][]int // node id -> indexes into edges
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byID: map[string]int{}, adj: map[string][]int{}}
}

type fixture struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// LoadMemoryStore reads a {"nodes": [...], "edges": [...]} JSON fixture.
func LoadMemoryStore(path string) (*MemoryStore, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("graph fixture: %w", err)
	}
	var fx fixture
	if err := json.Unmarshal(b, &fx); err != nil {
		return nil, fmt.Errorf("graph fixture %s: %w", path, err)
	}
	s := NewMemoryStore()
	for _, n := range fx.Nodes {
		s.AddNode(n)
	}
	for _, e := range fx.Edges {
		if err := s.AddEdge(e); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *MemoryStore) AddNode(n Node) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i, ok := s.byID[n.ID]; ok {
		s.nodes[i] = n
		return
	}
	s.byID[n.ID] = len(s.nodes)
	s.nodes = append(s.nodes, n)
}

func (s *MemoryStore) AddEdge(e Edge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[e.SourceID]; !ok {
		return fmt.Errorf("graph: edge source %q not found", e.SourceID)
	}
	if _, ok := s.byID[e.DestID]; !ok {
		return fmt.Errorf("graph: edge dest %q not found", e.DestID)
	}
	idx := len(s.edges)
	s.edges = append(s.edges, e)
	s.adj[e.SourceID] = append(s.adj[e.SourceID], idx)
	if e.DestID != e.SourceID {
		s.adj[e.DestID] = append(s.adj[e.DestID], idx)
	}
	return nil
}

// Query walks edges in both directions breadth-first. An edge belongs to the
// neighbourhood when one of its endpoints is fewer than maxHops steps away.
// maxHops is clamped the same way as the neo4j query.
func (s *MemoryStore) Query(ctx context.Context, alertID string, maxHops int) ([]Node, []Edge, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	maxHops = clampHops(maxHops)
	s.mu.RLock()
	defer s.mu.RUnlock()

	start := ""
	for _, n := range s.nodes {
		if n.HasLabel(AlertLabel) && fmt.Sprint(n.Properties["alert_id"]) == alertID {
			start = n.ID
			break
		}
	}
	if start == "" {
		return nil, nil, nil
	}

	dist := map[string]int{start: 0}
	order := []string{start}
	var edgeIdx []int
	seenEdge := map[int]bool{}
	for q := 0; q < len(order); q++ {
		cur := order[q]
		if dist[cur] >= maxHops {
			continue
		}
		for _, ei := range s.adj[cur] {
			if !seenEdge[ei] {
				seenEdge[ei] = true
				edgeIdx = append(edgeIdx, ei)
			}
			e := s.edges[ei]
			next := e.DestID
			if next == cur {
				next = e.SourceID
			}
			if _, ok := dist[next]; ok {
				continue
			}
			dist[next] = dist[cur] + 1
			order = append(order, next)
		}
	}

	nodes := make([]Node, 0, len(order))
	for _, id := range order {
		nodes = append(nodes, s.nodes[s.byID[id]])
	}
	edges := make([]Edge, 0, len(edgeIdx))
	for _, ei := range edgeIdx {
		edges = append(edges, s.edges[ei])
	}
	return nodes, edges, nil
}

// UpsertAlertGraph merges g into the store. Node properties are merged into
// any existing node with the same key.
func (s *MemoryStore) UpsertAlertGraph(ctx context.Context, g *AlertGraph) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, gn := range g.Nodes {
		id := gn.ID()
		props := make(map[string]any, len(gn.Key)+len(gn.Props))
		if i, ok := s.byID[id]; ok {
			for k, v := range s.nodes[i].Properties {
				props[k] = v
			}
		}
		for k, v := range gn.Key {
			props[k] = v
		}
		for k, v := range gn.Props {
			props[k] = v
		}
		n := Node{ID: id, Labels: []string{gn.Label}, Properties: props}
		if i, ok := s.byID[id]; ok {
			s.nodes[i] = n
			continue
		}
		s.byID[id] = len(s.nodes)
		s.nodes = append(s.nodes, n)
	}

	for _, r := range g.Rels {
		e := Edge{Type: r.Type, SourceID: r.From.ID(), DestID: r.To.ID()}
		if _, ok := s.byID[e.SourceID]; !ok {
			continue
		}
		if _, ok := s.byID[e.DestID]; !ok {
			continue
		}
		if s.hasEdge(e) {
			continue
		}
		idx := len(s.edges)
		s.edges = append(s.edges, e)
		s.adj[e.SourceID] = append(s.adj[e.SourceID], idx)
		if e.DestID != e.SourceID {
			s.adj[e.DestID] = append(s.adj[e.DestID], idx)
		}
	}
	return nil
}

func (s *MemoryStore) hasEdge(e Edge) bool {
	for _, ei := range s.adj[e.SourceID] {
		if s.edges[ei] == e {
			return true
		}
	}
	return false
}
