package alert

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func decode(t *testing.T, raw string) any {
	t.Helper()
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return v
}

func TestFlattenPathsAndLeafTypes(t *testing.T) {
	v := decode(t, `{"a":{"b":1,"c":[true,"x",{"d":null}]},"e":"s"}`)
	flat, err := Flatten(v)
	if err != nil {
		t.Fatalf("flatten: %v", err)
	}
	want := map[string]any{
		"a.b":      json.Number("1"),
		"a.c[0]":   true,
		"a.c[1]":   "x",
		"a.c[2].d": nil,
		"e":        "s",
	}
	if len(flat) != len(want) {
		t.Fatalf("len=%d want=%d flat=%v", len(flat), len(want), flat)
	}
	for k, w := range want {
		got, ok := flat[k]
		if !ok {
			t.Fatalf("missing key %q in %v", k, flat)
		}
		if got != w {
			t.Fatalf("key %q: got=%#v want=%#v", k, got, w)
		}
	}
}

func TestFlattenListRoot(t *testing.T) {
	flat, err := Flatten([]any{"a", map[string]any{"b": 2.0}})
	if err != nil {
		t.Fatalf("flatten: %v", err)
	}
	if flat["[0]"] != "a" || flat["[1].b"] != 2.0 {
		t.Fatalf("unexpected flat: %v", flat)
	}
}

func TestFlattenRejectsScalarRoot(t *testing.T) {
	for _, v := range []any{"x", 1.0, nil, true} {
		flat, err := Flatten(v)
		if !errors.Is(err, ErrNotAggregate) {
			t.Fatalf("root %#v: err=%v", v, err)
		}
		if len(flat) != 0 {
			t.Fatalf("root %#v: expected empty record, got %v", v, flat)
		}
	}
}

func TestFlattenLimitCapsLists(t *testing.T) {
	items := make([]any, 60)
	for i := range items {
		items[i] = float64(i)
	}
	flat, err := FlattenLimit(map[string]any{"xs": items}, 50)
	if err != nil {
		t.Fatalf("flatten: %v", err)
	}
	if len(flat) != 50 {
		t.Fatalf("len=%d want=50", len(flat))
	}
	if _, ok := flat["xs[50]"]; ok {
		t.Fatalf("element past the cap was kept")
	}
}

func TestExtractID(t *testing.T) {
	cases := []struct {
		name    string
		payload string
		want    string
	}{
		{"top level priority", `{"id":"z","alert_id":"a-1","uid":""}`, "a-1"},
		{"numeric id", `{"alertId":42}`, "42"},
		{"nested", `{"finding":{"meta":{"threat_id":"t-9"}}}`, "t-9"},
		{"nested skips empty", `{"a":{"uid":""},"b":{"uid":"u-2"}}`, "u-2"},
		{"alert.id beats sorted scan", `{"actor":{"process":{"uid":"p-1"}},"alert":{"id":"a-7"},"threat":{"id":"t-1"}}`, "a-7"},
		{"threat.id next", `{"actor":{"process":{"uid":"p-1"}},"alert":{"id":""},"threat":{"id":"t-1"}}`, "t-1"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ExtractID(decode(t, tc.payload).(map[string]any))
			if err != nil {
				t.Fatalf("extract: %v", err)
			}
			if got != tc.want {
				t.Fatalf("got=%q want=%q", got, tc.want)
			}
		})
	}
}

func TestExtractIDMissing(t *testing.T) {
	_, err := ExtractID(map[string]any{"name": "x"})
	if !errors.Is(err, ErrNoAlertID) {
		t.Fatalf("err=%v", err)
	}
}

func TestAsInt(t *testing.T) {
	cases := []struct {
		in   any
		want int64
		ok   bool
	}{
		{json.Number("7"), 7, true},
		{json.Number("7.9"), 7, true},
		{3.2, 3, true},
		{"12", 12, true},
		{"3.5", 0, false},
		{"abc", 0, false},
		{true, 1, true},
		{nil, 0, false},
	}
	for _, tc := range cases {
		got, ok := AsInt(tc.in)
		if got != tc.want || ok != tc.ok {
			t.Fatalf("AsInt(%#v)=(%d,%v) want (%d,%v)", tc.in, got, ok, tc.want, tc.ok)
		}
	}
}
