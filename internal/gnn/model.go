package gnn

import (
	"fmt"
	"math"

	"github.com/yungbote/triage-backend/internal/verdict"
)

type ModelConfig struct {
	InDim    int      `json:"in_dim"`
	Hidden   int      `json:"hidden"`
	OutDim   int      `json:"out_dim"`
	RelNames []string `json:"rel_names"`
	Dropout  float64  `json:"dropout"`
	Hops     int      `json:"hops,omitempty"`
}

// Model is a two-layer relational GCN with a linear classification head. It is
// immutable once loaded and safe for concurrent use.
type Model struct {
	Config ModelConfig
	L1     *RelLayer
	L2     *RelLayer
	Head   *Linear
}

func (m *Model) Validate() error {
	c := m.Config
	if c.InDim <= 0 || c.Hidden <= 0 {
		return fmt.Errorf("gnn: invalid dims in_dim=%d hidden=%d", c.InDim, c.Hidden)
	}
	if c.OutDim != len(verdict.Classes) {
		return fmt.Errorf("gnn: out_dim=%d, want %d", c.OutDim, len(verdict.Classes))
	}
	layers := []struct {
		name string
		l    *RelLayer
		in   int
	}{{"l1", m.L1, c.InDim}, {"l2", m.L2, c.Hidden}}
	for _, ly := range layers {
		if ly.l == nil {
			return fmt.Errorf("gnn: missing layer %s", ly.name)
		}
		if err := ly.l.SelfLoop.validate(ly.name+".self_loop", ly.in, c.Hidden, true); err != nil {
			return err
		}
		for _, r := range c.RelNames {
			if err := ly.l.RelWeight[r].validate(ly.name+".rel_weights."+r, ly.in, c.Hidden, false); err != nil {
				return err
			}
		}
	}
	return m.Head.validate("head", c.Hidden, c.OutDim, true)
}

// Forward returns the class logits of every node.
func (m *Model) Forward(x [][]float64, edges map[string]EdgeIndex) [][]float64 {
	h := m.L1.Forward(x, edges)
	h = m.L2.Forward(h, edges)
	logits := make([][]float64, len(h))
	for i := range h {
		logits[i] = m.Head.Apply(h[i])
	}
	return logits
}

// EmptyEdges returns an edge map with every configured relation present and empty.
func (m *Model) EmptyEdges() map[string]EdgeIndex {
	out := make(map[string]EdgeIndex, len(m.Config.RelNames))
	for _, r := range m.Config.RelNames {
		out[r] = EdgeIndex{}
	}
	return out
}

// AlignEdges keeps only the configured relations; unknown relations are dropped.
func (m *Model) AlignEdges(edges map[string]EdgeIndex) (map[string]EdgeIndex, int) {
	out := make(map[string]EdgeIndex, len(m.Config.RelNames))
	total := 0
	for _, r := range m.Config.RelNames {
		ei := edges[r]
		out[r] = ei
		total += ei.Len()
	}
	return out, total
}

func Softmax(logits []float64) []float64 {
	if len(logits) == 0 {
		return nil
	}
	max := logits[0]
	for _, x := range logits[1:] {
		if x > max {
			max = x
		}
	}
	out := make([]float64, len(logits))
	var sum float64
	for i, x := range logits {
		out[i] = math.Exp(x - max)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}

func Argmax(v []float64) int {
	best := 0
	for i := range v {
		if v[i] > v[best] {
			best = i
		}
	}
	return best
}
