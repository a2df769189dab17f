// Package profile derives fixed-shape behavioral profiles from the
// aggregation state. Profiles are rebuilt fully on every run; nothing is
// incrementally mutated.
package profile

import (
	"sort"
	"time"

	"trailscope/internal/aggregate"
	"trailscope/internal/categories"
	"trailscope/internal/velocity"
	"trailscope/pkg/models"
)

// Config controls profile derivation.
type Config struct {
	Velocity   velocity.Config
	Categories categories.Table
	// TopActions caps the ranked action list per profile.
	TopActions int
	// MinSampleAdvisory flags profiles below this event count as
	// low-sample. The flag is advisory only: error rates are always
	// computed and sparse profiles are never suppressed, because sparse
	// identities can carry real signal.
	MinSampleAdvisory int
}

func (c Config) withDefaults() Config {
	if c.TopActions <= 0 {
		c.TopActions = 5
	}
	if c.MinSampleAdvisory <= 0 {
		c.MinSampleAdvisory = 50
	}
	if c.Categories.Version == "" {
		c.Categories = categories.Default()
	}
	return c
}

// Build derives one profile per identity with at least one event,
// ordered by event count descending, ties broken by identity name.
func Build(identities map[string]*aggregate.IdentityAccum, cfg Config) []models.IdentityProfile {
	cfg = cfg.withDefaults()

	out := make([]models.IdentityProfile, 0, len(identities))
	for identity, accum := range identities {
		if accum == nil || accum.EventCount == 0 {
			continue
		}
		out = append(out, buildOne(identity, accum, cfg))
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].EventCount != out[j].EventCount {
			return out[i].EventCount > out[j].EventCount
		}
		return out[i].Identity < out[j].Identity
	})
	return out
}

func buildOne(identity string, accum *aggregate.IdentityAccum, cfg Config) models.IdentityProfile {
	addresses := make([]string, 0, len(accum.Addresses))
	for addr := range accum.Addresses {
		addresses = append(addresses, addr)
	}
	sort.Strings(addresses)

	return models.IdentityProfile{
		Identity:          identity,
		FirstSeen:         accum.FirstSeen,
		LastSeen:          accum.LastSeen,
		EventCount:        accum.EventCount,
		ErroredCount:      accum.ErroredCount,
		ErrorRate:         errorRate(accum),
		TopActions:        aggregate.TopActions(accum.ActionCounts, cfg.TopActions),
		UniqueActions:     len(accum.ActionCounts),
		VelocityHistogram: velocity.Histogram(eventTimes(accum), cfg.Velocity),
		SourceAddresses:   addresses,
		CategoryShares:    categoryShares(accum, cfg.Categories),
		LowSample:         accum.EventCount < cfg.MinSampleAdvisory,
	}
}

func eventTimes(accum *aggregate.IdentityAccum) []time.Time {
	times := make([]time.Time, 0, len(accum.Events))
	for _, ref := range accum.Events {
		times = append(times, ref.Timestamp)
	}
	return times
}

func errorRate(accum *aggregate.IdentityAccum) float64 {
	if accum.EventCount == 0 {
		return 0
	}
	return float64(accum.ErroredCount) / float64(accum.EventCount)
}

// categoryShares computes the share of events per behavioral category.
// Unmatched actions contribute to no category; zero-share categories are
// omitted.
func categoryShares(accum *aggregate.IdentityAccum, table categories.Table) map[string]float64 {
	counts := make(map[string]int, 4)
	for action, count := range accum.ActionCounts {
		if category, ok := table.Category(action); ok {
			counts[category] += count
		}
	}
	if len(counts) == 0 {
		return nil
	}
	shares := make(map[string]float64, len(counts))
	for category, count := range counts {
		shares[category] = float64(count) / float64(accum.EventCount)
	}
	return shares
}
