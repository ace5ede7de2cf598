package models

import (
	"time"

	id "ralphbot/pkg/domain"
)

// Tier buckets authors by the historical quality of their feedback. The
// tier feeds a multiplier into priority scoring, so reports from proven
// contributors surface faster.
type Tier string

const (
	TierTrusted   Tier = "trusted"
	TierStandard  Tier = "standard"
	TierProbation Tier = "probation"
)

// Multiplier returns the scoring multiplier for the tier. Unknown values
// count as standard.
func (t Tier) Multiplier() float64 {
	switch t {
	case TierTrusted:
		return 1.5
	case TierProbation:
		return 0.5
	default:
		return 1.0
	}
}

// Thresholds for tier assignment. A tier needs both the score and the
// supporting sample size, so two lucky acceptances don't mint a trusted
// author.
const (
	trustedMinScore    = 0.75
	trustedMinAccepted = 5
	probationMaxScore  = 0.25
	probationMinBad    = 5
)

// QualityRecord counts triage outcomes per author.
type QualityRecord struct {
	UserID     id.UserID `json:"user_id"`
	Submitted  int       `json:"submitted"`
	Accepted   int       `json:"accepted"`
	Rejected   int       `json:"rejected"`
	Duplicates int       `json:"duplicates"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Score is the Laplace-smoothed acceptance rate. A zero record scores 0.5,
// which lands in the standard tier.
func (r QualityRecord) Score() float64 {
	return float64(r.Accepted+1) / float64(r.Accepted+r.Rejected+r.Duplicates+2)
}

// Tier derives the author's tier from the counters.
func (r QualityRecord) Tier() Tier {
	score := r.Score()
	if score >= trustedMinScore && r.Accepted >= trustedMinAccepted {
		return TierTrusted
	}
	if score <= probationMaxScore && r.Rejected+r.Duplicates >= probationMinBad {
		return TierProbation
	}
	return TierStandard
}

// Delta is one counter adjustment. Fields are added to the stored record
// with a floor of zero.
type Delta struct {
	Submitted  int
	Accepted   int
	Rejected   int
	Duplicates int
}

// IsZero reports whether the delta changes nothing.
func (d Delta) IsZero() bool {
	return d == Delta{}
}

// Reverse returns the opposite adjustment, used when a transition is
// undone by a reopen.
func (d Delta) Reverse() Delta {
	return Delta{
		Submitted:  -d.Submitted,
		Accepted:   -d.Accepted,
		Rejected:   -d.Rejected,
		Duplicates: -d.Duplicates,
	}
}

// Outcome is a triage verdict that feeds the author's counters.
type Outcome string

const (
	OutcomeAccepted  Outcome = "accepted"
	OutcomeRejected  Outcome = "rejected"
	OutcomeDuplicate Outcome = "duplicate"
)

// Delta maps the outcome to its counter increment. Unknown outcomes
// return a zero delta and false.
func (o Outcome) Delta() (Delta, bool) {
	switch o {
	case OutcomeAccepted:
		return Delta{Accepted: 1}, true
	case OutcomeRejected:
		return Delta{Rejected: 1}, true
	case OutcomeDuplicate:
		return Delta{Duplicates: 1}, true
	default:
		return Delta{}, false
	}
}
