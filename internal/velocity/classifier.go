// Package velocity buckets inter-event time gaps into automation tiers.
// The output is a histogram, never a single identity label: mixed
// behavior under one identity must stay visible per tier.
package velocity

import (
	"sort"
	"time"

	"trailscope/pkg/models"
)

// Config sets the tier thresholds. Gaps below SubSecondMax are
// sub-second (automated), gaps up to SecondsMax are seconds (scripted),
// anything longer is human-paced.
type Config struct {
	SubSecondMax time.Duration
	SecondsMax   time.Duration
}

func (c Config) withDefaults() Config {
	if c.SubSecondMax <= 0 {
		c.SubSecondMax = 1 * time.Second
	}
	if c.SecondsMax <= 0 {
		c.SecondsMax = 10 * time.Second
	}
	return c
}

// Histogram buckets the consecutive gaps of one identity's event
// timestamps. Timestamps are sorted first; the first event contributes
// no gap, so n events yield n-1 histogram entries.
func Histogram(timestamps []time.Time, cfg Config) models.VelocityHistogram {
	cfg = cfg.withDefaults()

	var hist models.VelocityHistogram
	if len(timestamps) < 2 {
		return hist
	}

	sorted := append([]time.Time(nil), timestamps...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Before(sorted[j]) })

	for i := 1; i < len(sorted); i++ {
		gap := sorted[i].Sub(sorted[i-1])
		switch {
		case gap < cfg.SubSecondMax:
			hist.SubSecond++
		case gap <= cfg.SecondsMax:
			hist.Seconds++
		default:
			hist.Human++
		}
	}
	return hist
}
