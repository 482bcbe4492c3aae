package graph

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/yungbote/triage-backend/internal/alert"
)

var ErrIncompleteAlert = errors.New("graph: alert payload missing threat.id or alert.id")

// NodeRef identifies a node by label and merge key.
type NodeRef struct {
	Label string
	Key   map[string]any
}

// ID is a stable identity for the ref, used by MemoryStore and for dedup.
func (r NodeRef) ID() string {
	keys := make([]string, 0, len(r.Key))
	for k := range r.Key {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	b.WriteString(r.Label)
	for _, k := range keys {
		fmt.Fprintf(&b, "|%s=%v", k, r.Key[k])
	}
	return b.String()
}

type GraphNode struct {
	NodeRef
	// Kind is the reporting name, e.g. "Hash(SHA256)" for a Hash node.
	Kind  string
	Props map[string]any
}

type GraphRel struct {
	Type     string
	From, To NodeRef
	Props    map[string]any
}

// AlertGraph is the knowledge graph extracted from one alert document.
type AlertGraph struct {
	AlertID  string
	ThreatID string
	Nodes    []GraphNode
	Rels     []GraphRel
}

// Breakdown counts nodes per Kind.
func (g *AlertGraph) Breakdown() map[string]int {
	out := map[string]int{}
	for _, n := range g.Nodes {
		out[n.Kind]++
	}
	return out
}

// BuildAlertGraph maps a nested alert document (threat, file, process, device,
// remediation, enrichments, ...) onto Alert-centred nodes and relationships.
// Only threat.id and alert.id are required; every other node is emitted when
// its merge key is present.
func BuildAlertGraph(payload map[string]any) (*AlertGraph, error) {
	d := doc{payload}
	threatID := d.str("threat.id")
	alertID := d.str("alert.id")
	if threatID == "" || alertID == "" {
		return nil, ErrIncompleteAlert
	}
	b := &builder{g: &AlertGraph{AlertID: alertID, ThreatID: threatID}, seen: map[string]bool{}}

	alertRef := NodeRef{Label: AlertLabel, Key: map[string]any{"threat_id": threatID}}
	b.node(alertRef, "Alert", map[string]any{
		"alert_id":           alertID,
		"time":               d.get("time"),
		"detected_time":      d.get("threat.detected_time"),
		"name":               d.get("threat.name"),
		"classification":     d.get("threat.classification"),
		"confidence":         d.get("threat.confidence"),
		"verdict":            d.get("threat.verdict"),
		"incident_status":    d.get("incident.status"),
		"remediation_status": d.get("remediation.status"),
	})

	scoresRef := NodeRef{Label: "Scores", Key: map[string]any{"alert_id": alertID}}
	b.node(scoresRef, "Scores", map[string]any{
		"ml_score_fp":   d.get("ml_score.False Positive"),
		"gnn_score_fp":  d.get("gnn_score.False Positive"),
		"rule_score_fp": d.get("rule_base_score.False Positive"),
	})
	b.rel("ALERT_HAS_SCORE", alertRef, scoresRef, nil)

	hostUUID := d.str("device.uuid")
	hostRef := NodeRef{Label: "Host", Key: map[string]any{"uuid": hostUUID}}
	if hostUUID != "" {
		b.node(hostRef, "Host", map[string]any{
			"hostname":       d.get("device.hostname"),
			"domain":         d.get("device.domain"),
			"ipv4_addresses": d.get("device.ipv4_addresses"),
			"network_status": d.get("device.network.status"),
			"is_active":      d.get("device.is_active"),
		})
	}

	fileUID := d.str("file.uid")
	fileRef := NodeRef{Label: "File", Key: map[string]any{"uid": fileUID}}
	if fileUID != "" {
		b.node(fileRef, "File", map[string]any{
			"path":               d.get("file.path"),
			"extension":          d.get("file.extension"),
			"size":               d.get("file.size"),
			"verification_type":  d.get("file.verification.type"),
			"certificate_status": d.get("file.signature.certificate.status"),
			"certificate_issuer": d.get("file.signature.certificate.issuer"),
			"reputation_score":   d.get("file.reputation.score"),
		})
		b.rel("ALERT_REFERS_TO_FILE", alertRef, fileRef, map[string]any{"created_at": d.get("time")})
		if hostUUID != "" {
			b.rel("FILE_RESIDES_ON", fileRef, hostRef, nil)
		}
	}

	var sha256Ref *NodeRef
	for _, algo := range []string{"sha256", "sha1"} {
		v := d.str("file.hashes." + algo)
		if v == "" || fileUID == "" {
			continue
		}
		ref := NodeRef{Label: "Hash", Key: map[string]any{"algorithm": algo, "value": v}}
		b.node(ref, "Hash("+strings.ToUpper(algo)+")", nil)
		b.rel("FILE_HAS_HASH", fileRef, ref, nil)
		if algo == "sha256" {
			sha256Ref = &ref
		}
	}

	if name := d.str("process.name"); name != "" {
		procRef := NodeRef{Label: "Process", Key: map[string]any{"threat_id": threatID, "name": name}}
		b.node(procRef, "Process", map[string]any{
			"cmd_args":       d.get("process.cmd.args"),
			"isFileless":     d.get("process.isFileless"),
			"detection_type": d.get("threat.detection.type"),
		})
		b.rel("ALERT_TRIGGERED_BY", alertRef, procRef, map[string]any{
			"detection_type": d.get("threat.detection.type"),
			"initiated_by":   "agent_policy",
		})
		if user := d.str("actor.process.user.name"); user != "" {
			userRef := NodeRef{Label: "User", Key: map[string]any{"name": user}}
			b.node(userRef, "User", map[string]any{"domain": d.get("actor.process.user.domain")})
			b.rel("PROCESS_EXECUTED_BY", procRef, userRef, nil)
		}
		if hostUUID != "" {
			b.rel("PROCESS_ON_HOST", procRef, hostRef, nil)
		}
	}

	if hostUUID != "" {
		if mac := d.str("device.interface.mac"); mac != "" {
			ifRef := NodeRef{Label: "NetworkInterface", Key: map[string]any{"device_uuid": hostUUID, "mac": mac}}
			b.node(ifRef, "NetworkInterface", map[string]any{
				"name": d.get("device.interface.name"),
				"ip":   d.get("device.interface.ip"),
			})
			b.rel("HOST_HAS_INTERFACE", hostRef, ifRef, nil)
		}
		if ip := d.str("device.interface.ip"); ip != "" {
			ipRef := NodeRef{Label: "ExternalIP", Key: map[string]any{"ip": ip}}
			b.node(ipRef, "ExternalIP", nil)
			b.rel("HOST_CONNECTS_TO", hostRef, ipRef, map[string]any{"vantage": "egress"})
		}
		if uid := d.str("device.location.uid"); uid != "" {
			siteRef := NodeRef{Label: "Site", Key: map[string]any{"uid": uid}}
			b.node(siteRef, "Site", map[string]any{"desc": d.get("device.location.desc")})
			b.rel("ALERT_BELONGS_TO_SITE", alertRef, siteRef, nil)
		}
		if uid := d.str("device.groups[0].uid"); uid != "" {
			groupRef := NodeRef{Label: "Group", Key: map[string]any{"uid": uid}}
			b.node(groupRef, "Group", map[string]any{"name": d.get("device.groups[0].name")})
			b.rel("HOST_IN_GROUP", hostRef, groupRef, nil)
		}
		if osName := d.str("device.os.name"); osName != "" {
			osRef := NodeRef{Label: "OsVersion", Key: map[string]any{"name": osName, "build": d.str("device.os.build")}}
			b.node(osRef, "OsVersion", map[string]any{"type": d.get("device.os.type")})
			b.rel("HOST_HAS_OS", hostRef, osRef, nil)
		}
	}

	if res := d.str("enrichments[0].data.resource"); res != "" {
		ref := NodeRef{Label: "ThreatIntel", Key: map[string]any{"resource": res, "provider": "Check Point"}}
		props := map[string]any{}
		for _, k := range []string{"classification", "confidence", "severity", "risk_score", "name", "type", "size", "first_seen_time", "positives", "total"} {
			props[k] = d.get("enrichments[0].data." + k)
		}
		b.node(ref, "ThreatIntel(CheckPoint)", props)
		if sha256Ref != nil {
			b.rel("HASH_ENRICHED_BY_TI", *sha256Ref, ref, nil)
		}
	}
	if d.get("enrichments[1].data") != nil {
		key := fmt.Sprintf("VirusTotal_%v_%v", orZero(d.get("enrichments[1].data.total")), orZero(d.get("enrichments[1].data.positives")))
		ref := NodeRef{Label: "ThreatIntel", Key: map[string]any{"composite_key": key, "provider": "VirusTotal"}}
		props := map[string]any{}
		for _, k := range []string{"positives", "total", "malicious", "suspicious", "scan_time"} {
			props[k] = d.get("enrichments[1].data." + k)
		}
		for _, k := range []string{"malicious", "suspicious", "undetected", "harmless", "unsupported", "timeout", "confirmed-timeout", "failure"} {
			props["stats_"+strings.ReplaceAll(k, "-", "_")] = d.get("enrichments[1].data.stats." + k)
		}
		b.node(ref, "ThreatIntel(VirusTotal)", props)
		if sha256Ref != nil {
			b.rel("HASH_ENRICHED_BY_TI", *sha256Ref, ref, nil)
		}
	}

	if uid := d.str("remediation.uid"); uid != "" {
		ref := NodeRef{Label: "MitigationAction", Key: map[string]any{"uid": uid}}
		b.node(ref, "MitigationAction", map[string]any{
			"status":     d.get("remediation.status"),
			"desc":       d.get("remediation.desc"),
			"start_time": d.get("remediation.start_time"),
			"end_time":   d.get("remediation.end_time"),
			"result":     d.get("remediation.result"),
		})
		b.rel("ALERT_MITIGATED_VIA", alertRef, ref, nil)
		if hostUUID != "" {
			b.rel("ACTION_APPLIED_ON", ref, hostRef, nil)
		}
	}
	if rule := d.str("remediation.result"); rule != "" {
		ref := NodeRef{Label: "WhiteningRule", Key: map[string]any{"rule": rule}}
		b.node(ref, "WhiteningRule", nil)
		b.rel("ALERT_WHITELISTED_BY", alertRef, ref, nil)
	}

	// Engine uid joins the feature name with every product engine name.
	if feature := d.str("metadata.product.feature.name"); feature != "" {
		names := []any{feature}
		if list, ok := d.get("metadata.product.name").([]any); ok {
			names = append(names, list...)
		}
		parts := make([]string, 0, len(names))
		for _, n := range names {
			parts = append(parts, fmt.Sprint(n))
		}
		ref := NodeRef{Label: "Engine", Key: map[string]any{"uid": strings.Join(parts, "|")}}
		b.node(ref, "Engine", map[string]any{
			"name":           feature,
			"version":        d.get("metadata.product.feature.version"),
			"names":          parts,
			"detection_type": d.get("threat.detection.type"),
		})
		b.rel("ALERT_DETECTED_BY", alertRef, ref, nil)
	}

	incRef := NodeRef{Label: "Incident", Key: map[string]any{"incident_id": "INC-" + threatID}}
	b.node(incRef, "Incident", map[string]any{
		"status": d.get("incident.status"),
		"desc":   d.get("incident.desc"),
	})
	b.rel("ALERT_IN_INCIDENT", alertRef, incRef, nil)

	return b.g, nil
}

type builder struct {
	g    *AlertGraph
	seen map[string]bool
}

func (b *builder) node(ref NodeRef, kind string, props map[string]any) {
	id := ref.ID()
	if b.seen[id] {
		return
	}
	b.seen[id] = true
	b.g.Nodes = append(b.g.Nodes, GraphNode{NodeRef: ref, Kind: kind, Props: propertyValues(props)})
}

func (b *builder) rel(typ string, from, to NodeRef, props map[string]any) {
	id := typ + "->" + from.ID() + "->" + to.ID()
	if b.seen[id] {
		return
	}
	b.seen[id] = true
	b.g.Rels = append(b.g.Rels, GraphRel{Type: typ, From: from, To: to, Props: propertyValues(props)})
}

// propertyValues drops nils and coerces values into types a graph property
// can hold: json.Number becomes int64/float64, lists are coerced per item and
// nested objects are stored as JSON text.
func propertyValues(props map[string]any) map[string]any {
	out := make(map[string]any, len(props))
	for k, v := range props {
		if pv, ok := propertyValue(v); ok {
			out[k] = pv
		}
	}
	return out
}

func propertyValue(v any) (any, bool) {
	switch t := v.(type) {
	case nil:
		return nil, false
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return n, true
		}
		f, err := t.Float64()
		if err != nil {
			return t.String(), true
		}
		return f, true
	case int:
		return int64(t), true
	case []string:
		return t, true
	case []any:
		items := make([]any, 0, len(t))
		for _, it := range t {
			if pv, ok := propertyValue(it); ok {
				items = append(items, pv)
			}
		}
		return items, true
	case map[string]any:
		raw, err := json.Marshal(t)
		if err != nil {
			return nil, false
		}
		return string(raw), true
	default:
		return t, true
	}
}

func orZero(v any) any {
	if v == nil {
		return 0
	}
	return v
}

// doc resolves dotted paths with [i] list indexes against a nested document.
type doc struct{ root map[string]any }

func (d doc) get(path string) any {
	var cur any = d.root
	for _, seg := range strings.Split(path, ".") {
		name, idx := seg, -1
		if i := strings.IndexByte(seg, '['); i >= 0 && strings.HasSuffix(seg, "]") {
			name = seg[:i]
			if _, err := fmt.Sscanf(seg[i:], "[%d]", &idx); err != nil {
				return nil
			}
		}
		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur = m[name]
		if idx >= 0 {
			list, ok := cur.([]any)
			if !ok || idx >= len(list) {
				return nil
			}
			cur = list[idx]
		}
	}
	return cur
}

func (d doc) str(path string) string {
	v := d.get(path)
	switch v.(type) {
	case map[string]any, []any:
		return ""
	}
	s, _ := alert.AsString(v)
	return strings.TrimSpace(s)
}
