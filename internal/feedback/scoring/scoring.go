// Package scoring turns a feedback entry into its queue priority. The
// formula is deterministic: the same entry, author tier, and clock always
// produce the same score, so rescoring is idempotent and auditable.
package scoring

import (
	"math"
	"time"

	"ralphbot/internal/feedback/models"
)

// Kind weights anchor the formula: bugs outrank features outrank polish.
var kindWeights = map[models.Kind]float64{
	models.KindBug:         3.0,
	models.KindFeature:     2.0,
	models.KindImprovement: 1.5,
	models.KindQuestion:    1.0,
	models.KindOther:       0.5,
}

// Severity scales the kind weight rather than adding to it, so a critical
// question still sits below a medium bug.
var severityFactors = map[models.Severity]float64{
	models.SeverityCritical: 2.0,
	models.SeverityHigh:     1.5,
	models.SeverityMedium:   1.0,
	models.SeverityLow:      0.5,
}

const (
	// voteBoostFactor scales the logarithmic vote boost. Log keeps a
	// brigade of votes from drowning out severity.
	voteBoostFactor = 0.5

	// agePerDay and ageBoostCap implement slow escalation: an ignored
	// entry gains a little priority each day, up to one point.
	agePerDay   = 0.1
	ageBoostCap = 1.0

	// Scores are scaled to a 0-100 operator-facing range.
	scale       = 10.0
	minPriority = 0.0
	maxPriority = 100.0
)

// Score computes the queue priority for f.
//
//	base     = kindWeight * severityFactor + 0.5*log2(1+votes)
//	priority = clamp(round2((base * qualityMultiplier + ageBoost) * 10), 0, 100)
//
// qualityMultiplier comes from the author's quality tier; a zero value is
// treated as the standard tier so unknown authors score neutrally.
func Score(f *models.Feedback, qualityMultiplier float64, now time.Time) float64 {
	if qualityMultiplier <= 0 {
		qualityMultiplier = 1.0
	}

	kindWeight, ok := kindWeights[f.Kind]
	if !ok {
		kindWeight = kindWeights[models.KindOther]
	}
	severityFactor, ok := severityFactors[f.Severity]
	if !ok {
		severityFactor = severityFactors[models.SeverityMedium]
	}

	votesBoost := voteBoostFactor * math.Log2(1+float64(f.Votes))
	base := kindWeight*severityFactor + votesBoost

	ageBoost := agePerDay * float64(fullDaysBetween(f.CreatedAt, now))
	if ageBoost > ageBoostCap {
		ageBoost = ageBoostCap
	}

	priority := round2((base*qualityMultiplier + ageBoost) * scale)
	return clamp(priority, minPriority, maxPriority)
}

func fullDaysBetween(from, to time.Time) int {
	if to.Before(from) {
		return 0
	}
	return int(to.Sub(from) / (24 * time.Hour))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
