package scoring

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/yungbote/triage-backend/internal/alert"
)

var enrichmentKeyRE = regexp.MustCompile(`^enrichments\[(\d+)\]\.data\.(.+)$`)

// Reputation counters harvested from the winning enrichment bucket.
type reputation struct {
	Positives             int64
	Total                 int64
	Malicious             int64
	Suspicious            int64
	StatsMalicious        int64
	StatsSuspicious       int64
	StatsUndetected       int64
	StatsHarmless         int64
	StatsUnsupported      int64
	StatsTimeout          int64
	StatsConfirmedTimeout int64
	StatsFailure          int64
	ScanTime              any
}

type bucket map[string]any

func (b bucket) int(key string) int64 {
	n, _ := alert.AsInt(b[key])
	return n
}

func (b bucket) signal() int64 {
	return b.int("positives") + b.int("malicious") + b.int("suspicious") +
		b.int("stats.malicious") + b.int("stats.suspicious")
}

// selectBucket groups enrichments[i].data.* by index and returns the bucket
// with the strongest detection signal. Ties go to the lowest index.
func selectBucket(flat alert.Record) (bucket, int, bool) {
	buckets := map[int]bucket{}
	for k, v := range flat {
		m := enrichmentKeyRE.FindStringSubmatch(k)
		if m == nil {
			continue
		}
		idx, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		b := buckets[idx]
		if b == nil {
			b = bucket{}
			buckets[idx] = b
		}
		b[m[2]] = v
	}
	if len(buckets) == 0 {
		return nil, -1, false
	}

	bestIdx := -1
	var best int64
	for idx, b := range buckets {
		s := b.signal()
		if bestIdx == -1 || s > best || (s == best && idx < bestIdx) {
			bestIdx, best = idx, s
		}
	}
	return buckets[bestIdx], bestIdx, true
}

func normalize(b bucket) reputation {
	if b == nil {
		return reputation{}
	}
	return reputation{
		Positives:             b.int("positives"),
		Total:                 b.int("total"),
		Malicious:             b.int("malicious"),
		Suspicious:            b.int("suspicious"),
		StatsMalicious:        b.int("stats.malicious"),
		StatsSuspicious:       b.int("stats.suspicious"),
		StatsUndetected:       b.int("stats.undetected"),
		StatsHarmless:         b.int("stats.harmless"),
		StatsUnsupported:      b.int("stats.unsupported"),
		StatsTimeout:          b.int("stats.timeout"),
		StatsConfirmedTimeout: b.int("stats.confirmed-timeout"),
		StatsFailure:          b.int("stats.failure"),
		ScanTime:              b["scan_time"],
	}
}

// Enrichment scores third-party reputation data (Agent2).
type Enrichment struct {
	Now func() time.Time
}

func (e Enrichment) Score(flat alert.Record) AgentScore {
	b, _, _ := selectBucket(flat)
	rep := normalize(b)
	now := time.Now
	if e.Now != nil {
		now = e.Now
	}

	out := AgentScore{Agent: "agent2"}
	add := func(a ScoredAttribute) {
		out.Attributes = append(out.Attributes, a)
		out.RawTotal += a.RiskScore
	}

	logCurve := func(name, desc string, n int64, factor, limit float64) {
		if n <= 0 {
			return
		}
		add(ScoredAttribute{
			Name:        name,
			Value:       n,
			RiskScore:   math.Min(factor*math.Log2(float64(n)+1), limit),
			Description: fmt.Sprintf("%s: %d", desc, n),
		})
	}

	logCurve("vt_positives", "VirusTotal positive detections", rep.Positives, 10, 40)
	if rep.Total > 0 && rep.Positives > 0 {
		ratio := float64(rep.Positives) / float64(rep.Total)
		add(ScoredAttribute{
			Name:        "vt_detection_ratio",
			Value:       fmt.Sprintf("%d/%d", rep.Positives, rep.Total),
			RiskScore:   math.Min(50*ratio, 50),
			Description: fmt.Sprintf("VirusTotal detection ratio: %d/%d (%.2f%%)", rep.Positives, rep.Total, ratio*100),
		})
	}
	logCurve("vt_malicious", "VirusTotal malicious verdicts", rep.Malicious, 15, 45)
	logCurve("vt_suspicious", "VirusTotal suspicious verdicts", rep.Suspicious, 8, 25)
	logCurve("vt_stats_malicious", "VirusTotal analysis stats - malicious", rep.StatsMalicious, 12, 35)
	logCurve("vt_stats_suspicious", "VirusTotal analysis stats - suspicious", rep.StatsSuspicious, 6, 20)
	if rep.StatsHarmless > 0 {
		add(ScoredAttribute{
			Name:        "vt_stats_harmless",
			Value:       rep.StatsHarmless,
			RiskScore:   -math.Min(2*math.Log2(float64(rep.StatsHarmless)+1), 10),
			Description: fmt.Sprintf("VirusTotal analysis stats - harmless: %d", rep.StatsHarmless),
		})
	}
	logCurve("vt_stats_timeout", "VirusTotal analysis stats - timeout", rep.StatsTimeout, 5, 15)
	logCurve("vt_stats_confirmed_timeout", "VirusTotal analysis stats - confirmed timeout", rep.StatsConfirmedTimeout, 8, 20)
	logCurve("vt_stats_failure", "VirusTotal analysis stats - failure", rep.StatsFailure, 4, 12)

	if scanned, ok := parseScanTime(rep.ScanTime); ok {
		days := now().Sub(scanned).Hours() / 24
		if days > 90 {
			add(ScoredAttribute{
				Name:        "vt_scan_age",
				Value:       fmt.Sprintf("%.0f days old", days),
				RiskScore:   math.Min(days/30, 10),
				Description: fmt.Sprintf("VirusTotal scan is %.0f days old", days),
			})
		}
	}

	// Deliberately overlaps with the per-counter rules above.
	detections := rep.Positives + rep.Malicious + rep.Suspicious + rep.StatsMalicious + rep.StatsSuspicious
	if detections > 10 {
		add(ScoredAttribute{
			Name:        "vt_high_detection_count",
			Value:       detections,
			RiskScore:   30,
			Description: fmt.Sprintf("High total detection count across all VirusTotal metrics: %d", detections),
		})
	}
	return out
}

var scanTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// parseScanTime accepts ISO-8601 timestamps or epoch seconds (numeric or numeric string).
func parseScanTime(v any) (time.Time, bool) {
	if v == nil {
		return time.Time{}, false
	}
	if s, ok := v.(string); ok {
		s = strings.TrimSpace(s)
		if s == "" {
			return time.Time{}, false
		}
		for _, layout := range scanTimeLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t, true
			}
		}
	}
	if secs, ok := alert.AsFloat(v); ok && secs > 0 {
		return time.Unix(int64(secs), 0), true
	}
	return time.Time{}, false
}
