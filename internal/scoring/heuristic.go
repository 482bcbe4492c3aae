package scoring

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/yungbote/triage-backend/internal/alert"
)

var (
	suspiciousPathRE = regexp.MustCompile(`(?i)(\\AppData\\|\\Downloads\\|\\Users\\Public|\\Windows\\[^\\]+\\|\$Recycle\.Bin)`)
	suspiciousArgsRE = regexp.MustCompile(`(?i)(-enc\b|FromBase64String|Invoke-Expression|curl\s+http)`)
)

var lolbins = []string{
	"powershell.exe", "pwsh.exe", "cmd.exe", "wmic.exe", "regsvr32.exe",
	"mshta.exe", "python.exe", "wscript.exe", "cscript.exe", "rundll32.exe",
	"curl.exe", "wget.exe",
}

var engineWeights = map[string]float64{
	"sentinelone cloud":  25,
	"on-write static ai": 15,
	"user":               10,
	"behavioral":         5,
}

var assetWeights = map[string]float64{
	"server": 15,
	"laptop": 5,
}

var confidenceWeights = map[string]float64{
	"malicious":  10,
	"suspicious": 5,
}

const unrecognizedConfidenceScore = -20

var elevatedUsers = map[string]bool{
	"system":        true,
	"administrator": true,
	"root":          true,
}

var heuristicRules = []rule{
	severityRule,
	fileSigningRule,
	filePathRule,
	parentProcessRule,
	commandLineRule,
	confidenceRule,
	detectionEngineRule,
	assetTypeRule,
	processUserRule,
}

// Heuristic scores an alert with the fixed Agent1 rule set.
func Heuristic(flat alert.Record) AgentScore {
	return evaluate("agent1", heuristicRules, flat)
}

func severityRule(flat alert.Record) (ScoredAttribute, bool) {
	sev := flat.Int("severity_id")
	return ScoredAttribute{
		Name:        "severity",
		Value:       sev,
		RiskScore:   float64(sev * 10),
		Description: fmt.Sprintf("Severity level %d", sev),
	}, true
}

func fileSigningRule(flat alert.Record) (ScoredAttribute, bool) {
	kind := strings.ToLower(flat.String("file.verification.type"))
	validCert := alert.Truthy(flat["file.signature.certificate.status"])
	switch {
	case kind == "notsigned":
		return ScoredAttribute{Name: "file_signing", Value: kind, RiskScore: 25, Description: "File is not signed"}, true
	case kind == "signed" && !validCert:
		return ScoredAttribute{Name: "file_signing", Value: "signed/invalid", RiskScore: 15, Description: "File signed but certificate is invalid"}, true
	case kind == "signed":
		return ScoredAttribute{Name: "file_signing", Value: "signed/valid", RiskScore: -10, Description: "File properly signed with valid certificate"}, true
	}
	return ScoredAttribute{}, false
}

func filePathRule(flat alert.Record) (ScoredAttribute, bool) {
	p := flat.String("file.path")
	if p == "" || !suspiciousPathRE.MatchString(p) {
		return ScoredAttribute{}, false
	}
	return ScoredAttribute{Name: "file_path", Value: p, RiskScore: 15, Description: "File located in suspicious directory"}, true
}

func parentProcessRule(flat alert.Record) (ScoredAttribute, bool) {
	name := strings.ToLower(flat.String("process.name"))
	if name == "" {
		return ScoredAttribute{}, false
	}
	for _, bin := range lolbins {
		if strings.Contains(name, bin) {
			return ScoredAttribute{Name: "parent_process", Value: name, RiskScore: 20, Description: "Parent process is a known LOLBin"}, true
		}
	}
	return ScoredAttribute{}, false
}

func commandLineRule(flat alert.Record) (ScoredAttribute, bool) {
	args := flat.String("process.cmd.args")
	if args == "" || !suspiciousArgsRE.MatchString(args) {
		return ScoredAttribute{}, false
	}
	return ScoredAttribute{Name: "command_line", Value: args, RiskScore: 15, Description: "Contains suspicious command line patterns"}, true
}

func confidenceRule(flat alert.Record) (ScoredAttribute, bool) {
	conf := strings.ToLower(flat.String("threat.confidence"))
	score, ok := confidenceWeights[conf]
	if !ok {
		score = unrecognizedConfidenceScore
	}
	return ScoredAttribute{
		Name:        "confidence_level",
		Value:       conf,
		RiskScore:   score,
		Description: "Vendor confidence: " + conf,
	}, true
}

// The engine name arrives either as a list of {title} objects or a plain string.
func detectionEngineRule(flat alert.Record) (ScoredAttribute, bool) {
	name := flat.String("metadata.product.feature.name[0].title")
	if name == "" {
		name = flat.String("metadata.product.feature.name")
	}
	if strings.TrimSpace(name) == "" {
		name = "unknown"
	}
	score := engineWeights[strings.ToLower(strings.TrimSpace(name))]
	return ScoredAttribute{
		Name:        "detection_engine",
		Value:       name,
		RiskScore:   score,
		Description: "Detected by: " + name,
	}, true
}

func assetTypeRule(flat alert.Record) (ScoredAttribute, bool) {
	asset := strings.ToLower(flat.String("device.type"))
	return ScoredAttribute{
		Name:        "asset_type",
		Value:       asset,
		RiskScore:   assetWeights[asset],
		Description: "Asset type: " + asset,
	}, true
}

func processUserRule(flat alert.Record) (ScoredAttribute, bool) {
	user := flat.String("actor.process.user.name")
	if user == "" {
		return ScoredAttribute{}, false
	}
	if elevatedUsers[strings.ToLower(user)] {
		return ScoredAttribute{Name: "process_user", Value: user, RiskScore: 10, Description: "Process running with elevated privileges"}, true
	}
	return ScoredAttribute{Name: "process_user", Value: user, RiskScore: 0, Description: "Process running with normal user privileges"}, true
}
