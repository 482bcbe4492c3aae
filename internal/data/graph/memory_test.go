package graph

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// alert(a1) -TRIGGERED_BY-> proc -ON_HOST-> host -IN_GROUP-> group
func chainStore(t *testing.T) *MemoryStore {
	t.Helper()
	s := NewMemoryStore()
	s.AddNode(Node{ID: "n-alert", Labels: []string{"Alert"}, Properties: map[string]any{"alert_id": "a1"}})
	s.AddNode(Node{ID: "n-proc", Labels: []string{"Process"}})
	s.AddNode(Node{ID: "n-host", Labels: []string{"Host"}})
	s.AddNode(Node{ID: "n-group", Labels: []string{"Group"}})
	for _, e := range []Edge{
		{Type: "TRIGGERED_BY", SourceID: "n-alert", DestID: "n-proc"},
		{Type: "ON_HOST", SourceID: "n-proc", DestID: "n-host"},
		{Type: "IN_GROUP", SourceID: "n-host", DestID: "n-group"},
	} {
		if err := s.AddEdge(e); err != nil {
			t.Fatalf("add edge: %v", err)
		}
	}
	return s
}

func TestMemoryStoreHopBound(t *testing.T) {
	s := chainStore(t)
	cases := []struct {
		hops  int
		nodes int
		edges int
	}{
		{-3, 2, 1},
		{0, 2, 1},
		{1, 2, 1},
		{2, 3, 2},
		{5, 4, 3},
	}
	for _, tc := range cases {
		nodes, edges, err := s.Query(context.Background(), "a1", tc.hops)
		if err != nil {
			t.Fatalf("query: %v", err)
		}
		if len(nodes) != tc.nodes || len(edges) != tc.edges {
			t.Fatalf("hops=%d nodes=%d edges=%d want %d/%d", tc.hops, len(nodes), len(edges), tc.nodes, tc.edges)
		}
		if nodes[0].ID != "n-alert" {
			t.Fatalf("first node=%s", nodes[0].ID)
		}
	}
}

func TestMemoryStoreWalksAgainstEdgeDirection(t *testing.T) {
	s := NewMemoryStore()
	s.AddNode(Node{ID: "x", Labels: []string{"Alert"}, Properties: map[string]any{"alert_id": "a"}})
	s.AddNode(Node{ID: "y", Labels: []string{"Incident"}})
	if err := s.AddEdge(Edge{Type: "CONTAINS", SourceID: "y", DestID: "x"}); err != nil {
		t.Fatalf("add edge: %v", err)
	}
	nodes, edges, err := s.Query(context.Background(), "a", 1)
	if err != nil || len(nodes) != 2 || len(edges) != 1 {
		t.Fatalf("nodes=%d edges=%d err=%v", len(nodes), len(edges), err)
	}
}

func TestMemoryStoreUnknownAlert(t *testing.T) {
	nodes, edges, err := chainStore(t).Query(context.Background(), "missing", 3)
	if err != nil || nodes != nil || edges != nil {
		t.Fatalf("nodes=%v edges=%v err=%v", nodes, edges, err)
	}
}

func TestLoadMemoryStore(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "graph.json")
	raw := `{"nodes":[{"id":"1","labels":["Alert"],"properties":{"alert_id":7}},{"id":"2","labels":["File"],"properties":{}}],
"edges":[{"type":"REFERS_TO","source":"1","dest":"2"}]}`
	if err := os.WriteFile(p, []byte(raw), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	s, err := LoadMemoryStore(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	nodes, edges, err := s.Query(context.Background(), "7", 2)
	if err != nil || len(nodes) != 2 || len(edges) != 1 {
		t.Fatalf("nodes=%d edges=%d err=%v", len(nodes), len(edges), err)
	}
}

func TestEgoQueryClampsHops(t *testing.T) {
	if q := egoQuery(0); !strings.Contains(q, "[*..1]") {
		t.Fatalf("hops=0 query=%s", q)
	}
	if q := egoQuery(99); !strings.Contains(q, "[*..10]") {
		t.Fatalf("hops=99 query=%s", q)
	}
}

func TestNeo4jStoreWithoutClient(t *testing.T) {
	var s *Neo4jStore
	if _, _, err := s.Query(context.Background(), "a", 2); err != ErrStoreUnavailable {
		t.Fatalf("err=%v", err)
	}
}
