package gnn

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

const (
	DefaultFeatureDim = 512
	maxSeqItems       = 5
	maxTextRunes      = 200
	defaultNodeLabel  = "Node"
)

// Encoder turns a node's first label and its properties into a fixed-size
// feature-hashed vector. Every property contributes one or more hashed keys.
type Encoder struct {
	Dim int
}

func (e Encoder) dim() int {
	if e.Dim <= 0 {
		return DefaultFeatureDim
	}
	return e.Dim
}

func (e Encoder) Encode(labels []string, props map[string]any) []float64 {
	dim := e.dim()
	v := make([]float64, dim)
	label := defaultNodeLabel
	if len(labels) > 0 {
		label = labels[0]
	}
	for k, val := range props {
		if val == nil {
			continue
		}
		if s, ok := scalarText(val); ok {
			v[hashSlot(label+"."+k+"="+s, dim)] += 1.0
			continue
		}
		if items, ok := val.([]any); ok {
			for i, item := range items {
				if i >= maxSeqItems {
					break
				}
				v[hashSlot(fmt.Sprintf("%s.%s[%d]=%s", label, k, i, itemText(item)), dim)] += 1.0
			}
			continue
		}
		v[hashSlot(label+"."+k+"="+truncateRunes(itemText(val), maxTextRunes), dim)] += 1.0
	}
	return v
}

// hashSlot reduces sha256(key), read as a big-endian integer, modulo dim.
func hashSlot(key string, dim int) int {
	sum := sha256.Sum256([]byte(key))
	m := uint64(dim)
	var r uint64
	for _, b := range sum {
		r = (r*256 + uint64(b)) % m
	}
	return int(r)
}

// scalarText renders numbers and booleans. Rendering follows the conventions the
// pre-trained checkpoints were hashed with: True/False, integers without a
// fraction, integral floats with ".0".
func scalarText(v any) (string, bool) {
	switch t := v.(type) {
	case bool:
		if t {
			return "True", true
		}
		return "False", true
	case int:
		return strconv.Itoa(t), true
	case int32:
		return strconv.FormatInt(int64(t), 10), true
	case int64:
		return strconv.FormatInt(t, 10), true
	case float32:
		return floatText(float64(t)), true
	case float64:
		return floatText(t), true
	case json.Number:
		s := t.String()
		if strings.ContainsAny(s, ".eE") {
			if f, err := t.Float64(); err == nil {
				return floatText(f), true
			}
		}
		return s, true
	}
	return "", false
}

func floatText(f float64) string {
	switch {
	case math.IsNaN(f):
		return "nan"
	case math.IsInf(f, 1):
		return "inf"
	case math.IsInf(f, -1):
		return "-inf"
	}
	if f == math.Trunc(f) && math.Abs(f) < 1e16 {
		return strconv.FormatFloat(f, 'f', 1, 64)
	}
	abs := math.Abs(f)
	if abs >= 1e16 || abs < 1e-4 {
		return strconv.FormatFloat(f, 'e', -1, 64)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func itemText(v any) string {
	if v == nil {
		return "None"
	}
	if s, ok := scalarText(v); ok {
		return s
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

func truncateRunes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
