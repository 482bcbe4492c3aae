package scoring

import "github.com/yungbote/triage-backend/internal/alert"

type ScoredAttribute struct {
	Name        string  `json:"-"`
	Value       any     `json:"value"`
	RiskScore   float64 `json:"risk_score"`
	Description string  `json:"description"`
}

type AgentScore struct {
	Agent          string            `json:"agent"`
	RawTotal       float64           `json:"raw_score"`
	WeightFraction float64           `json:"-"`
	WeightedTotal  float64           `json:"weighted_score"`
	Attributes     []ScoredAttribute `json:"-"`
}

// AttributeMap renders attributes keyed by name, the shape API consumers expect.
func (s AgentScore) AttributeMap() map[string]ScoredAttribute {
	out := make(map[string]ScoredAttribute, len(s.Attributes))
	for _, a := range s.Attributes {
		out[a.Name] = a
	}
	return out
}

// rule inspects a flattened alert and optionally emits one attribute.
type rule func(alert.Record) (ScoredAttribute, bool)

func evaluate(agent string, rules []rule, flat alert.Record) AgentScore {
	out := AgentScore{Agent: agent}
	for _, r := range rules {
		attr, ok := r(flat)
		if !ok {
			continue
		}
		out.Attributes = append(out.Attributes, attr)
		out.RawTotal += attr.RiskScore
	}
	return out
}
