package gnn

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// checkpointFile is the on-disk layout: the model config plus a state dict
// keyed by parameter name (l1.self_loop.weight, l1.rel_weights.<rel>.weight,
// head.1.bias, ...).
type checkpointFile struct {
	Config    ModelConfig                `json:"config"`
	StateDict map[string]json.RawMessage `json:"state_dict"`
}

var gzipMagic = []byte{0x1f, 0x8b}

// LoadCheckpoint reads a plain or gzipped JSON checkpoint from disk. Gzip is
// detected from the leading bytes, not the file name.
func LoadCheckpoint(path string) (*Model, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	br := bufio.NewReader(f)
	var r io.Reader = br
	if head, _ := br.Peek(len(gzipMagic)); bytes.Equal(head, gzipMagic) {
		gz, err := gzip.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("gnn: open gzip checkpoint: %w", err)
		}
		defer gz.Close()
		r = gz
	}
	return ReadCheckpoint(r)
}

func ReadCheckpoint(r io.Reader) (*Model, error) {
	var ck checkpointFile
	if err := json.NewDecoder(r).Decode(&ck); err != nil {
		return nil, fmt.Errorf("gnn: decode checkpoint: %w", err)
	}
	if len(ck.StateDict) == 0 {
		return nil, fmt.Errorf("gnn: checkpoint has no state_dict")
	}
	sd := stateDict(ck.StateDict)

	m := &Model{Config: ck.Config}
	var err error
	if m.L1, err = sd.relLayer("l1", ck.Config); err != nil {
		return nil, err
	}
	if m.L2, err = sd.relLayer("l2", ck.Config); err != nil {
		return nil, err
	}
	if m.Head, err = sd.linear("head.1", true); err != nil {
		return nil, err
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// WriteCheckpoint serialises m in the layout ReadCheckpoint expects.
func WriteCheckpoint(w io.Writer, m *Model) error {
	sd := map[string]any{}
	put := func(prefix string, l *Linear) {
		sd[prefix+".weight"] = l.W
		if l.B != nil {
			sd[prefix+".bias"] = l.B
		}
	}
	for name, l := range map[string]*RelLayer{"l1": m.L1, "l2": m.L2} {
		put(name+".self_loop", l.SelfLoop)
		for _, r := range l.Relations {
			put(name+".rel_weights."+r, l.RelWeight[r])
		}
	}
	put("head.1", m.Head)
	return json.NewEncoder(w).Encode(map[string]any{"config": m.Config, "state_dict": sd})
}

type stateDict map[string]json.RawMessage

func (sd stateDict) matrix(key string) ([][]float64, error) {
	raw, ok := sd[key]
	if !ok {
		return nil, fmt.Errorf("gnn: state_dict missing %q", key)
	}
	var out [][]float64
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("gnn: state_dict %q: %w", key, err)
	}
	return out, nil
}

func (sd stateDict) vector(key string) ([]float64, error) {
	raw, ok := sd[key]
	if !ok {
		return nil, fmt.Errorf("gnn: state_dict missing %q", key)
	}
	var out []float64
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("gnn: state_dict %q: %w", key, err)
	}
	return out, nil
}

func (sd stateDict) linear(prefix string, bias bool) (*Linear, error) {
	w, err := sd.matrix(prefix + ".weight")
	if err != nil {
		return nil, err
	}
	l := &Linear{W: w}
	if bias {
		if l.B, err = sd.vector(prefix + ".bias"); err != nil {
			return nil, err
		}
	}
	return l, nil
}

func (sd stateDict) relLayer(name string, cfg ModelConfig) (*RelLayer, error) {
	self, err := sd.linear(name+".self_loop", true)
	if err != nil {
		return nil, err
	}
	l := &RelLayer{
		Relations: append([]string(nil), cfg.RelNames...),
		RelWeight: make(map[string]*Linear, len(cfg.RelNames)),
		SelfLoop:  self,
		Dropout:   cfg.Dropout,
	}
	for _, r := range cfg.RelNames {
		w, err := sd.linear(name+".rel_weights."+r, false)
		if err != nil {
			return nil, err
		}
		l.RelWeight[r] = w
	}
	return l, nil
}
