// Package anomaly flags days whose event volume bursts above the
// trailing baseline and merges contiguous flagged days into windows.
package anomaly

import (
	"sort"
	"time"

	"trailscope/internal/aggregate"
	"trailscope/pkg/models"
)

// Config controls baseline computation.
type Config struct {
	// BaselineDays is the trailing history length N. A day is compared
	// against the median volume of up to N prior days.
	BaselineDays int
	// Multiplier is how far above baseline a day must be to be flagged.
	Multiplier float64
}

func (c Config) withDefaults() Config {
	if c.BaselineDays <= 0 {
		c.BaselineDays = 7
	}
	if c.Multiplier <= 0 {
		c.Multiplier = 3.0
	}
	return c
}

type flaggedDay struct {
	day      *aggregate.DayAccum
	baseline float64
	ratio    float64
	partial  bool
}

// Detect flags days exceeding baseline*multiplier and merges runs of
// consecutive calendar days into one window each. Days with fewer than
// N prior buckets use whatever history exists and mark the window as
// partial-baseline; a day with no history at all is never flagged.
func Detect(days map[string]*aggregate.DayAccum, cfg Config) []models.AnomalyWindow {
	cfg = cfg.withDefaults()

	ordered := make([]*aggregate.DayAccum, 0, len(days))
	for _, day := range days {
		if day != nil {
			ordered = append(ordered, day)
		}
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Date < ordered[j].Date })

	flagged := make([]flaggedDay, 0, 8)
	for i, day := range ordered {
		if i == 0 {
			continue
		}
		start := i - cfg.BaselineDays
		if start < 0 {
			start = 0
		}
		baseline := medianTotal(ordered[start:i])
		if baseline <= 0 {
			continue
		}
		if float64(day.TotalEvents) > baseline*cfg.Multiplier {
			flagged = append(flagged, flaggedDay{
				day:      day,
				baseline: baseline,
				ratio:    float64(day.TotalEvents) / baseline,
				partial:  i < cfg.BaselineDays,
			})
		}
	}

	return mergeWindows(flagged)
}

func mergeWindows(flagged []flaggedDay) []models.AnomalyWindow {
	out := make([]models.AnomalyWindow, 0, len(flagged))
	for i := 0; i < len(flagged); {
		j := i + 1
		for j < len(flagged) && consecutiveDates(flagged[j-1].day.Date, flagged[j].day.Date) {
			j++
		}
		out = append(out, buildWindow(flagged[i:j]))
		i = j
	}
	return out
}

func buildWindow(run []flaggedDay) models.AnomalyWindow {
	total := 0
	errored := 0
	peakRatio := 0.0
	partial := false
	actions := make(map[string]int, 32)
	for _, f := range run {
		total += f.day.TotalEvents
		errored += f.day.ErroredCount
		if f.ratio > peakRatio {
			peakRatio = f.ratio
		}
		if f.partial {
			partial = true
		}
		for action, count := range f.day.ActionCounts {
			actions[action] += count
		}
	}

	dominant := ""
	if top := aggregate.TopActions(actions, 1); len(top) > 0 {
		dominant = top[0].Action
	}

	errorRate := 0.0
	if total > 0 {
		errorRate = float64(errored) / float64(total)
	}

	return models.AnomalyWindow{
		StartDate:          run[0].day.Date,
		EndDate:            run[len(run)-1].day.Date,
		EventCount:         total,
		BaselineEvents:     int(run[0].baseline),
		BaselineMultiplier: peakRatio,
		DominantAction:     dominant,
		ErrorRate:          errorRate,
		PartialBaseline:    partial,
	}
}

// Overlaps reports whether the [first, last] range of an identity's
// activity intersects any window.
func Overlaps(windows []models.AnomalyWindow, first, last time.Time) bool {
	firstDate := first.UTC().Format(models.DateLayout)
	lastDate := last.UTC().Format(models.DateLayout)
	for _, w := range windows {
		if firstDate <= w.EndDate && lastDate >= w.StartDate {
			return true
		}
	}
	return false
}

func medianTotal(days []*aggregate.DayAccum) float64 {
	if len(days) == 0 {
		return 0
	}
	totals := make([]int, 0, len(days))
	for _, day := range days {
		totals = append(totals, day.TotalEvents)
	}
	sort.Ints(totals)
	mid := len(totals) / 2
	if len(totals)%2 == 1 {
		return float64(totals[mid])
	}
	return float64(totals[mid-1]+totals[mid]) / 2
}

func consecutiveDates(a, b string) bool {
	ta, err := time.Parse(models.DateLayout, a)
	if err != nil {
		return false
	}
	tb, err := time.Parse(models.DateLayout, b)
	if err != nil {
		return false
	}
	return tb.Sub(ta) == 24*time.Hour
}
