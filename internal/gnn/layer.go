package gnn

import "fmt"

// Linear is y = W·x (+ b) with W stored row-major as [out][in].
type Linear struct {
	W [][]float64
	B []float64
}

func (l *Linear) In() int {
	if len(l.W) == 0 {
		return 0
	}
	return len(l.W[0])
}

func (l *Linear) Out() int { return len(l.W) }

func (l *Linear) Apply(x []float64) []float64 {
	y := make([]float64, len(l.W))
	for o, row := range l.W {
		var s float64
		for i, w := range row {
			if w != 0 && x[i] != 0 {
				s += w * x[i]
			}
		}
		if l.B != nil {
			s += l.B[o]
		}
		y[o] = s
	}
	return y
}

func (l *Linear) validate(name string, in, out int, bias bool) error {
	if l == nil {
		return fmt.Errorf("gnn: missing %s", name)
	}
	if l.Out() != out || l.In() != in {
		return fmt.Errorf("gnn: %s has shape [%d][%d], want [%d][%d]", name, l.Out(), l.In(), out, in)
	}
	for i, row := range l.W {
		if len(row) != in {
			return fmt.Errorf("gnn: %s row %d has %d columns, want %d", name, i, len(row), in)
		}
	}
	if bias && len(l.B) != out {
		return fmt.Errorf("gnn: %s bias has %d entries, want %d", name, len(l.B), out)
	}
	return nil
}

// RelLayer is one relation-aware message passing step:
//
//	out_v = SelfLoop(h_v) + Σ_r mean_{u→v in r} W_r·h_u
//
// followed by ReLU. Dropout is an identity at inference time.
type RelLayer struct {
	Relations []string
	RelWeight map[string]*Linear
	SelfLoop  *Linear
	Dropout   float64
}

func (l *RelLayer) Forward(h [][]float64, edges map[string]EdgeIndex) [][]float64 {
	n := len(h)
	out := make([][]float64, n)
	for i := range h {
		out[i] = l.SelfLoop.Apply(h[i])
	}

	for _, rel := range l.Relations {
		ei, ok := edges[rel]
		if !ok || ei.Len() == 0 {
			continue
		}
		w := l.RelWeight[rel]
		if w == nil {
			continue
		}
		transformed := make([][]float64, n)
		agg := make([][]float64, n)
		deg := make([]float64, n)
		for k := 0; k < ei.Len() && k < len(ei.Dst); k++ {
			src, dst := ei.Src[k], ei.Dst[k]
			if src < 0 || src >= n || dst < 0 || dst >= n {
				continue
			}
			if transformed[src] == nil {
				transformed[src] = w.Apply(h[src])
			}
			if agg[dst] == nil {
				agg[dst] = make([]float64, w.Out())
			}
			for j, x := range transformed[src] {
				agg[dst][j] += x
			}
			deg[dst]++
		}
		for v := range agg {
			if agg[v] == nil {
				continue
			}
			d := deg[v]
			if d < 1 {
				d = 1
			}
			for j, x := range agg[v] {
				out[v][j] += x / d
			}
		}
	}

	for i := range out {
		relu(out[i])
	}
	return out
}

func relu(v []float64) {
	for i, x := range v {
		if x < 0 {
			v[i] = 0
		}
	}
}
