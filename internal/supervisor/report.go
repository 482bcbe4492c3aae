package supervisor

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/yungbote/triage-backend/internal/verdict"
)

type Report struct {
	Prediction Prediction `json:"prediction"`
	Metadata   Metadata   `json:"metadata"`
}

type Prediction struct {
	PredictedVerdict  verdict.Label `json:"predicted_verdict"`
	Confidence        float64       `json:"confidence"`
	ConsolidatedScore float64       `json:"consolidated_score"`
	Probabilities     Probabilities `json:"probabilities"`
}

type Probabilities struct {
	FalsePositive float64 `json:"false_positive"`
	Escalate      float64 `json:"escalate"`
	TruePositive  float64 `json:"true_positive"`
}

type Metadata struct {
	SupervisorAnalysis Analysis         `json:"supervisor_analysis"`
	AgentResults       []Result         `json:"agent_results"`
	ScoreBreakdown     ScoreBreakdown   `json:"score_breakdown"`
	ActionableMessages []string         `json:"actionable_messages"`
	DataSources        DataSources      `json:"data_sources"`
	Agreement          Agreement        `json:"agent_agreement_analysis"`
	Timestamp          time.Time        `json:"timestamp"`
	ExecutionSummary   ExecutionSummary `json:"execution_summary"`
}

type Analysis struct {
	Source            string           `json:"source"`
	FinalDecision     verdict.Label    `json:"final_decision"`
	ConsolidatedScore float64          `json:"consolidated_score"`
	WeightingApplied  WeightingApplied `json:"weighting_applied"`
}

type WeightingApplied struct {
	GNNWeight       string `json:"gnn_weight"`
	RemainingWeight string `json:"remaining_weight"`
	Strategy        string `json:"strategy"`
}

type ScoreBreakdown struct {
	GNNRaw            float64        `json:"gnn_raw"`
	GNNWeighted       float64        `json:"gnn_weighted"`
	NonGNNRaw         map[string]int `json:"non_gnn_raw"`
	NonGNNWeighted    float64        `json:"non_gnn_weighted"`
	FinalConsolidated float64        `json:"final_consolidated"`
}

type DataSources struct {
	EDRDataKeys []string `json:"edr_data_keys"`
	GNNDataKeys []string `json:"gnn_data_keys"`
}

type ExecutionSummary struct {
	TotalAgents      int `json:"total_agents"`
	SuccessfulAgents int `json:"successful_agents"`
	FailedAgents     int `json:"failed_agents"`
}

type Agreement struct {
	Status         string                   `json:"agreement_status"`
	Description    string                   `json:"description"`
	Consensus      string                   `json:"consensus"`
	AgreeingAgents []string                 `json:"agreeing_agents,omitempty"`
	Disagreement   map[string]verdict.Label `json:"disagreement_details,omitempty"`
}

const (
	AgreementInsufficient = "insufficient_data"
	AgreementFull         = "full_agreement"
	AgreementPartial      = "partial_disagreement"
	AgreementNone         = "full_disagreement"
)

// analyzeAgreement compares the verdicts of the successful EDR and GNN agents.
// Stub agents never take part.
func analyzeAgreement(results []Result) Agreement {
	var voters []Result
	for _, r := range results {
		if r.Success && (r.Agent == AgentEDR || r.Agent == AgentGNN) {
			voters = append(voters, r)
		}
	}
	if len(voters) < 2 {
		return Agreement{
			Status:      AgreementInsufficient,
			Description: fmt.Sprintf("Only %d agents provided successful results", len(voters)),
			Consensus:   "none",
		}
	}

	distinct := map[verdict.Label]bool{}
	byAgent := make(map[string]verdict.Label, len(voters))
	names := make([]string, 0, len(voters))
	for _, r := range voters {
		distinct[r.Verdict] = true
		byAgent[r.Agent] = r.Verdict
		names = append(names, r.Agent)
	}

	switch len(distinct) {
	case 1:
		consensus := voters[0].Verdict
		return Agreement{
			Status:         AgreementFull,
			Description:    fmt.Sprintf("All %d agents agree on %s", len(voters), consensus),
			Consensus:      string(consensus),
			AgreeingAgents: names,
		}
	case 2:
		return Agreement{
			Status:       AgreementPartial,
			Description:  "Agents disagree: " + describeVerdicts(byAgent),
			Consensus:    "mixed",
			Disagreement: byAgent,
		}
	default:
		return Agreement{
			Status:       AgreementNone,
			Description:  "All agents disagree: " + describeVerdicts(byAgent),
			Consensus:    "none",
			Disagreement: byAgent,
		}
	}
}

func describeVerdicts(m map[string]verdict.Label) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := ""
	for i, k := range keys {
		if i > 0 {
			out += ", "
		}
		out += k + "=" + string(m[k])
	}
	return out
}

// probabilities spreads the consolidated score over the three classes. It is a
// presentation heuristic, not a calibrated distribution.
func probabilities(v verdict.Label, c float64) Probabilities {
	p := Probabilities{}
	if v != verdict.FalsePositive {
		p.FalsePositive = round((100-c)/100, 4)
	} else {
		p.FalsePositive = round(c/100, 4)
	}
	if v == verdict.Escalate {
		p.Escalate = 0.5
	} else {
		p.Escalate = round(math.Abs(c-50)/100, 4)
	}
	if v == verdict.TruePositive {
		p.TruePositive = round(c/100, 4)
	} else {
		p.TruePositive = round((100-c)/100, 4)
	}
	return p
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
