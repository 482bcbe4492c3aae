package supervisor

import (
	"context"
	"fmt"

	"github.com/yungbote/triage-backend/internal/verdict"
)

// Agent names double as the keys of the weighting rules.
const (
	AgentEDR      = "EDR"
	AgentGNN      = "GNN"
	AgentFirewall = "Firewall"
	AgentEmail    = "Email"
)

// Input is one supervised alert: the EDR record and the graph-side payload,
// which may be the same document.
type Input struct {
	Source       string
	EDRPayload   map[string]any
	GraphPayload map[string]any
}

type Result struct {
	Agent         string                    `json:"agent"`
	Score         int                       `json:"score"`
	Verdict       verdict.Label             `json:"verdict"`
	Confidence    *float64                  `json:"confidence,omitempty"`
	Probabilities map[verdict.Label]float64 `json:"probabilities,omitempty"`
	Mode          string                    `json:"mode,omitempty"`
	Message       string                    `json:"message"`
	Details       map[string]any            `json:"details"`
	Success       bool                      `json:"success"`
}

type Agent interface {
	Name() string
	Run(ctx context.Context, in Input) (Result, error)
}

func failure(name string, err error) Result {
	return Result{
		Agent:   name,
		Score:   0,
		Verdict: verdict.Error,
		Message: fmt.Sprintf("%s agent error: %v", name, err),
		Details: map[string]any{},
		Success: false,
	}
}
