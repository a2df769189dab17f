// Package phases orders identities into a discrete attack-lifecycle
// timeline using a fixed, explainable rule set. There is no labeled
// ground truth in this domain, so every label carries the numbers it was
// derived from; a learned model is deliberately out of the question.
package phases

import (
	"sort"

	"trailscope/internal/anomaly"
	"trailscope/internal/correlate"
	"trailscope/pkg/models"
)

// EscalationCategory is the well-known category key the escalation rule
// reads from profile category shares.
const EscalationCategory = "escalation"

// Config sets the label cutoffs. All values are tunable per dataset so
// relabeling never touches the aggregation core.
type Config struct {
	// ReconMaxEvents caps the event count of a reconnaissance phase.
	ReconMaxEvents int
	// ReconMinHumanShare is the minimum human-tier gap share for the
	// reconnaissance label. Identities with no gaps at all count as
	// human-paced.
	ReconMinHumanShare float64
	// MassMinEvents is the minimum event count for mass-exploitation.
	MassMinEvents int
	// MassMinMachineShare is the minimum sub-second gap share for
	// mass-exploitation.
	MassMinMachineShare float64
	// EscalationMinShare is the minimum escalation-category share for
	// the escalation label.
	EscalationMinShare float64
}

func (c Config) withDefaults() Config {
	if c.ReconMaxEvents <= 0 {
		c.ReconMaxEvents = 100
	}
	if c.ReconMinHumanShare <= 0 {
		c.ReconMinHumanShare = 0.5
	}
	if c.MassMinEvents <= 0 {
		c.MassMinEvents = 10000
	}
	if c.MassMinMachineShare <= 0 {
		c.MassMinMachineShare = 0.5
	}
	if c.EscalationMinShare <= 0 {
		c.EscalationMinShare = 0.25
	}
	return c
}

// Segment produces the ordered phase sequence. Every identity with at
// least one event is a candidate; phases are ordered by first-seen time
// and ordinals increase monotonically. Zero candidates yield an empty
// sequence, not an error: absence of signal is a representable result.
func Segment(profiles []models.IdentityProfile, edges []models.CorrelationEdge, windows []models.AnomalyWindow, cfg Config) []models.AttackPhase {
	cfg = cfg.withDefaults()
	degree := correlate.Degree(edges)

	candidates := make([]models.IdentityProfile, 0, len(profiles))
	for _, p := range profiles {
		if p.EventCount > 0 {
			candidates = append(candidates, p)
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		if !candidates[i].FirstSeen.Equal(candidates[j].FirstSeen) {
			return candidates[i].FirstSeen.Before(candidates[j].FirstSeen)
		}
		return candidates[i].Identity < candidates[j].Identity
	})

	out := make([]models.AttackPhase, 0, len(candidates))
	for i, p := range candidates {
		rationale := buildRationale(p, degree[p.Identity], windows)
		out = append(out, models.AttackPhase{
			Ordinal:   i + 1,
			Identity:  p.Identity,
			Label:     label(p, rationale, cfg),
			StartDate: p.FirstSeen.UTC().Format(models.DateLayout),
			EndDate:   p.LastSeen.UTC().Format(models.DateLayout),
			Rationale: rationale,
		})
	}
	return out
}

func buildRationale(p models.IdentityProfile, degree int, windows []models.AnomalyWindow) models.PhaseRationale {
	subSecond, seconds, human := p.VelocityHistogram.TierShares()
	return models.PhaseRationale{
		EventCount:           p.EventCount,
		ErrorRate:            p.ErrorRate,
		SubSecondShare:       subSecond,
		SecondsShare:         seconds,
		HumanShare:           human,
		CategoryShares:       p.CategoryShares,
		CorrelatedIdentities: degree,
		OverlapsAnomaly:      anomaly.Overlaps(windows, p.FirstSeen, p.LastSeen),
	}
}

// label applies the rule set in fixed precedence order. The rationale
// already carries every number a rule reads.
func label(p models.IdentityProfile, r models.PhaseRationale, cfg Config) string {
	if r.EventCount >= cfg.MassMinEvents && r.SubSecondShare >= cfg.MassMinMachineShare && r.OverlapsAnomaly {
		return models.PhaseMassExploitation
	}
	humanPaced := r.HumanShare >= cfg.ReconMinHumanShare || p.VelocityHistogram.Total() == 0
	if r.EventCount <= cfg.ReconMaxEvents && humanPaced {
		return models.PhaseReconnaissance
	}
	if r.CategoryShares[EscalationCategory] >= cfg.EscalationMinShare {
		return models.PhaseEscalation
	}
	return models.PhaseExploitation
}
