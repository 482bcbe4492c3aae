package verdict

import "strings"

type Label string

const (
	FalsePositive Label = "False Positive"
	Escalate      Label = "Escalate"
	TruePositive  Label = "True Positive"

	NoAnalysis Label = "No Analysis"
	Error      Label = "Error"
)

// Classes is the fixed output order of every three-way classifier.
var Classes = [3]Label{FalsePositive, Escalate, TruePositive}

// Thresholds splits a 0-100 risk score into the three classes.
type Thresholds struct {
	TruePositive float64 `json:"true_positive" yaml:"true_positive"`
	Escalate     float64 `json:"escalate" yaml:"escalate"`
}

func (t Thresholds) Classify(score float64) Label {
	switch {
	case score >= t.TruePositive:
		return TruePositive
	case score >= t.Escalate:
		return Escalate
	default:
		return FalsePositive
	}
}

// Normalize maps classifier spellings (true_positive, undefined, ...) onto labels.
// Unknown values are returned unchanged.
func Normalize(raw string) Label {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "true_positive", "true positive", "truepositive":
		return TruePositive
	case "false_positive", "false positive", "falsepositive":
		return FalsePositive
	case "undefined", "escalate":
		return Escalate
	}
	return Label(raw)
}
