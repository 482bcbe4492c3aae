package graph

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// Uniqueness constraints for every merge key BuildAlertGraph emits.
var alertGraphConstraints = []string{
	`CREATE CONSTRAINT alert_threat_id IF NOT EXISTS FOR (a:Alert) REQUIRE a.threat_id IS UNIQUE`,
	`CREATE CONSTRAINT scores_alert IF NOT EXISTS FOR (s:Scores) REQUIRE s.alert_id IS UNIQUE`,
	`CREATE CONSTRAINT file_uid IF NOT EXISTS FOR (f:File) REQUIRE f.uid IS UNIQUE`,
	`CREATE CONSTRAINT hash_value IF NOT EXISTS FOR (h:Hash) REQUIRE (h.algorithm, h.value) IS UNIQUE`,
	`CREATE CONSTRAINT process_composite IF NOT EXISTS FOR (p:Process) REQUIRE (p.threat_id, p.name) IS UNIQUE`,
	`CREATE CONSTRAINT user_name IF NOT EXISTS FOR (u:User) REQUIRE u.name IS UNIQUE`,
	`CREATE CONSTRAINT host_uuid IF NOT EXISTS FOR (h:Host) REQUIRE h.uuid IS UNIQUE`,
	`CREATE CONSTRAINT network_interface IF NOT EXISTS FOR (n:NetworkInterface) REQUIRE (n.device_uuid, n.mac) IS UNIQUE`,
	`CREATE CONSTRAINT external_ip IF NOT EXISTS FOR (e:ExternalIP) REQUIRE e.ip IS UNIQUE`,
	`CREATE CONSTRAINT threat_intel_cp IF NOT EXISTS FOR (t:ThreatIntel) REQUIRE (t.resource, t.provider) IS UNIQUE`,
	`CREATE CONSTRAINT threat_intel_vt IF NOT EXISTS FOR (t:ThreatIntel) REQUIRE (t.composite_key, t.provider) IS UNIQUE`,
	`CREATE CONSTRAINT mitigation_uid IF NOT EXISTS FOR (m:MitigationAction) REQUIRE m.uid IS UNIQUE`,
	`CREATE CONSTRAINT engine_uid IF NOT EXISTS FOR (e:Engine) REQUIRE e.uid IS UNIQUE`,
	`CREATE CONSTRAINT site_uid IF NOT EXISTS FOR (s:Site) REQUIRE s.uid IS UNIQUE`,
	`CREATE CONSTRAINT group_uid IF NOT EXISTS FOR (g:Group) REQUIRE g.uid IS UNIQUE`,
	`CREATE CONSTRAINT incident_id IF NOT EXISTS FOR (i:Incident) REQUIRE i.incident_id IS UNIQUE`,
	`CREATE CONSTRAINT os_version IF NOT EXISTS FOR (o:OsVersion) REQUIRE (o.name, o.build) IS UNIQUE`,
	`CREATE CONSTRAINT whitening_rule IF NOT EXISTS FOR (w:WhiteningRule) REQUIRE w.rule IS UNIQUE`,
	`CREATE INDEX alert_alert_id IF NOT EXISTS FOR (a:Alert) ON (a.alert_id)`,
}

// Labels, relationship types and property keys are spliced into Cypher, so
// they must be plain identifiers.
var cypherIdent = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

var schemaOnce sync.Once

// UpsertAlertGraph merges the alert graph in a single write transaction,
// batching nodes per (label, key shape) and relationships per endpoint shape.
func (s *Neo4jStore) UpsertAlertGraph(ctx context.Context, g *AlertGraph) error {
	if s == nil || s.client == nil || s.client.Driver == nil {
		return ErrStoreUnavailable
	}
	if g == nil || len(g.Nodes) == 0 {
		return nil
	}

	nodeBatches, err := batchNodes(g.Nodes)
	if err != nil {
		return err
	}
	relBatches, err := batchRels(g.Rels)
	if err != nil {
		return err
	}

	session := s.client.Session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	schemaOnce.Do(func() { s.ensureSchema(ctx, session) })

	syncedAt := time.Now().UTC().Format(time.RFC3339Nano)
	_, err = session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		for _, b := range nodeBatches {
			rows := make([]map[string]any, 0, len(b.rows))
			for _, r := range b.rows {
				props := map[string]any{"synced_at": syncedAt}
				for k, v := range r.Props {
					props[k] = v
				}
				rows = append(rows, map[string]any{"key": r.Key, "props": props})
			}
			if err := runConsume(ctx, tx, b.cypher, map[string]any{"rows": rows}); err != nil {
				return nil, fmt.Errorf("merge %s: %w", b.label, err)
			}
		}
		for _, b := range relBatches {
			rows := make([]map[string]any, 0, len(b.rows))
			for _, r := range b.rows {
				rows = append(rows, map[string]any{"from": r.From.Key, "to": r.To.Key, "props": r.Props})
			}
			if err := runConsume(ctx, tx, b.cypher, map[string]any{"rows": rows}); err != nil {
				return nil, fmt.Errorf("merge %s: %w", b.label, err)
			}
		}
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	s.log.Info("alert graph upserted", "alert_id", g.AlertID, "nodes", len(g.Nodes), "relationships", len(g.Rels))
	return nil
}

// ensureSchema is best-effort; restricted users may not create constraints.
func (s *Neo4jStore) ensureSchema(ctx context.Context, session neo4j.SessionWithContext) {
	for _, q := range alertGraphConstraints {
		res, err := session.Run(ctx, q, nil)
		if err != nil {
			s.log.Warn("neo4j schema init failed (continuing)", "error", err)
			return
		}
		_, _ = res.Consume(ctx)
	}
}

func runConsume(ctx context.Context, tx neo4j.ManagedTransaction, cypher string, params map[string]any) error {
	res, err := tx.Run(ctx, cypher, params)
	if err != nil {
		return err
	}
	_, err = res.Consume(ctx)
	return err
}

type nodeBatch struct {
	label  string
	cypher string
	rows   []GraphNode
}

type relBatch struct {
	label  string
	cypher string
	rows   []GraphRel
}

func keyNames(key map[string]any) []string {
	names := make([]string, 0, len(key))
	for k := range key {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// keyPattern renders "{a: row.key.a, b: row.key.b}" for the given field.
func keyPattern(field string, names []string) (string, error) {
	parts := make([]string, 0, len(names))
	for _, n := range names {
		if !cypherIdent.MatchString(n) {
			return "", fmt.Errorf("graph: invalid key name %q", n)
		}
		parts = append(parts, fmt.Sprintf("%s: row.%s.%s", n, field, n))
	}
	return "{" + strings.Join(parts, ", ") + "}", nil
}

func batchNodes(nodes []GraphNode) ([]*nodeBatch, error) {
	var order []string
	byShape := map[string]*nodeBatch{}
	for _, n := range nodes {
		if !cypherIdent.MatchString(n.Label) {
			return nil, fmt.Errorf("graph: invalid label %q", n.Label)
		}
		names := keyNames(n.Key)
		shape := n.Label + "|" + strings.Join(names, ",")
		b, ok := byShape[shape]
		if !ok {
			pattern, err := keyPattern("key", names)
			if err != nil {
				return nil, err
			}
			b = &nodeBatch{
				label:  n.Label,
				cypher: fmt.Sprintf("UNWIND $rows AS row\nMERGE (n:%s %s)\nSET n += row.props", n.Label, pattern),
			}
			byShape[shape] = b
			order = append(order, shape)
		}
		b.rows = append(b.rows, n)
	}
	out := make([]*nodeBatch, 0, len(order))
	for _, k := range order {
		out = append(out, byShape[k])
	}
	return out, nil
}

func batchRels(rels []GraphRel) ([]*relBatch, error) {
	var order []string
	byShape := map[string]*relBatch{}
	for _, r := range rels {
		for _, ident := range []string{r.Type, r.From.Label, r.To.Label} {
			if !cypherIdent.MatchString(ident) {
				return nil, fmt.Errorf("graph: invalid identifier %q", ident)
			}
		}
		fromNames, toNames := keyNames(r.From.Key), keyNames(r.To.Key)
		shape := strings.Join([]string{r.Type, r.From.Label, strings.Join(fromNames, ","), r.To.Label, strings.Join(toNames, ",")}, "|")
		b, ok := byShape[shape]
		if !ok {
			fromPattern, err := keyPattern("from", fromNames)
			if err != nil {
				return nil, err
			}
			toPattern, err := keyPattern("to", toNames)
			if err != nil {
				return nil, err
			}
			b = &relBatch{
				label: r.Type,
				cypher: fmt.Sprintf("UNWIND $rows AS row\nMATCH (a:%s %s)\nMATCH (b:%s %s)\nMERGE (a)-[e:%s]->(b)\nSET e += row.props",
					r.From.Label, fromPattern, r.To.Label, toPattern, r.Type),
			}
			byShape[shape] = b
			order = append(order, shape)
		}
		b.rows = append(b.rows, r)
	}
	out := make([]*relBatch, 0, len(order))
	for _, k := range order {
		out = append(out, byShape[k])
	}
	return out, nil
}
