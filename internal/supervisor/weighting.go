package supervisor

import (
	"fmt"
	"strings"
)

const (
	gnnWeight       = 0.6
	remainingWeight = 0.4
)

var nonGNNAgents = []string{AgentEDR, AgentFirewall, AgentEmail}

var sourceAgents = map[string]string{
	"edr":         AgentEDR,
	"endpoint":    AgentEDR,
	"sentinelone": AgentEDR,
	"crowdstrike": AgentEDR,
	"firewall":    AgentFirewall,
	"palo_alto":   AgentFirewall,
	"fortinet":    AgentFirewall,
	"email":       AgentEmail,
	"proofpoint":  AgentEmail,
	"mimecast":    AgentEmail,
	"gnn":         AgentGNN,
	"graph":       AgentGNN,
}

// SourceAgent maps an alert source onto the agent that owns it.
func SourceAgent(source string) (string, bool) {
	a, ok := sourceAgents[strings.ToLower(strings.TrimSpace(source))]
	return a, ok
}

type weighting struct {
	gnnRaw       float64
	gnnWeighted  float64
	nonGNNRaw    map[string]int
	remaining    float64
	consolidated float64
	strategy     string
}

// weigh fixes GNN at 60% and hands the other 40% to the source's own agent, or
// shares it among the non-GNN agents that scored, or falls back to EDR.
func weigh(source string, scores map[string]int) weighting {
	w := weighting{nonGNNRaw: make(map[string]int, len(nonGNNAgents))}
	w.gnnRaw = float64(scores[AgentGNN])
	w.gnnWeighted = w.gnnRaw * gnnWeight
	for _, a := range nonGNNAgents {
		w.nonGNNRaw[a] = scores[a]
	}

	owner, mapped := SourceAgent(source)
	_, ownerIsNonGNN := w.nonGNNRaw[owner]
	switch {
	case mapped && ownerIsNonGNN && w.nonGNNRaw[owner] > 0:
		w.remaining = float64(w.nonGNNRaw[owner]) * remainingWeight
		w.strategy = fmt.Sprintf("Source-specific: %s gets 40%%", owner)
	default:
		var scored []string
		var total float64
		for _, a := range nonGNNAgents {
			if s := w.nonGNNRaw[a]; s > 0 {
				scored = append(scored, a)
				total += float64(s)
			}
		}
		if len(scored) > 0 {
			for _, a := range scored {
				s := float64(w.nonGNNRaw[a])
				w.remaining += s * (s / total) * remainingWeight
			}
			w.strategy = fmt.Sprintf("Proportional among %v", scored)
		} else {
			w.remaining = float64(w.nonGNNRaw[AgentEDR]) * remainingWeight
			w.strategy = "Fallback: EDR gets 40% (all agents scored 0)"
		}
	}
	w.consolidated = w.gnnWeighted + w.remaining
	return w
}
