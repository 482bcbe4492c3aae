package alert

import (
	"errors"
	"sort"
	"strings"
)

var ErrNoAlertID = errors.New("alert: could not find alert id in payload")

var idCandidates = []string{"uid", "alert_id", "alertId", "threatId", "threat_id", "id"}

// alert.id is the key graph ingestion writes to Alert.alert_id, so it beats
// any other nested candidate.
var nestedPreferred = []string{"alert.id", "threat.id"}

// ExtractID finds the alert identifier in a payload. Top-level candidates win in
// priority order, then alert.id and threat.id. Otherwise the first flattened path
// (in sorted order) whose last segment is a candidate and whose value is
// non-empty is used.
func ExtractID(payload map[string]any) (string, error) {
	for _, k := range idCandidates {
		if s := idString(payload[k]); s != "" {
			return s, nil
		}
	}

	flat, err := FlattenLimit(payload, 50)
	if err != nil {
		return "", err
	}
	for _, k := range nestedPreferred {
		if s := idString(flat[k]); s != "" {
			return s, nil
		}
	}
	keys := make([]string, 0, len(flat))
	for k := range flat {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		last := k
		if i := strings.LastIndex(k, "."); i >= 0 {
			last = k[i+1:]
		}
		if !isCandidate(last) {
			continue
		}
		if s := idString(flat[k]); s != "" {
			return s, nil
		}
	}
	return "", ErrNoAlertID
}

func isCandidate(k string) bool {
	for _, c := range idCandidates {
		if k == c {
			return true
		}
	}
	return false
}

func idString(v any) string {
	if !Truthy(v) {
		return ""
	}
	switch v.(type) {
	case map[string]any, []any:
		return ""
	}
	s, _ := AsString(v)
	return strings.TrimSpace(s)
}
