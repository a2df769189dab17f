// Package analysis runs the batch pipeline end to end: normalize the
// raw record stream, reduce it, derive profiles, correlations, anomaly
// windows and phases, and assemble the one immutable summary handed to
// downstream consumers.
package analysis

import (
	"errors"
	"fmt"
	"io"
	"sort"

	"trailscope/internal/aggregate"
	"trailscope/internal/anomaly"
	"trailscope/internal/categories"
	"trailscope/internal/correlate"
	"trailscope/internal/logger"
	"trailscope/internal/normalize/cloudtrail"
	"trailscope/internal/phases"
	"trailscope/internal/profile"
	"trailscope/internal/sessions"
	"trailscope/internal/velocity"
	"trailscope/pkg/models"
)

// RecordSource yields raw records one at a time and returns io.EOF when
// exhausted. The core never assumes a concrete encoding beyond one JSON
// record per Next call.
type RecordSource interface {
	Next() ([]byte, error)
}

// Config is the full tuning surface of one analysis run.
type Config struct {
	Velocity          velocity.Config
	Anomaly           anomaly.Config
	Phases            phases.Config
	Sessions          sessions.Config
	Categories        categories.Table
	TopActions        int
	TopAddresses      int
	TopErrorCodes     int
	HourlyMinEvents   int
	MinSampleAdvisory int
}

func (c Config) withDefaults() Config {
	if c.TopActions <= 0 {
		c.TopActions = 5
	}
	if c.TopAddresses <= 0 {
		c.TopAddresses = 10
	}
	if c.TopErrorCodes <= 0 {
		c.TopErrorCodes = 5
	}
	if c.HourlyMinEvents <= 0 {
		c.HourlyMinEvents = 1000
	}
	if c.MinSampleAdvisory <= 0 {
		c.MinSampleAdvisory = 50
	}
	if c.Categories.Version == "" {
		c.Categories = categories.Default()
	}
	return c
}

// Run normalizes and reduces one record source and derives the summary.
// Malformed records are counted and skipped; a source read failure is
// fatal. Zero surviving canonical events fail with EmptyDatasetError.
func Run(src RecordSource, cfg Config) (*models.AnalysisSummary, error) {
	cfg = cfg.withDefaults()

	acc, skipped, err := reduce(src)
	if err != nil {
		return nil, err
	}
	return summarize(acc, skipped, cfg)
}

// RunShards reduces each source independently and merges the shard
// accumulators before derivation. Because the reduction is associative
// and every derivation sorts before emitting, the result is
// byte-identical to a sequential run over the same records.
func RunShards(srcs []RecordSource, cfg Config) (*models.AnalysisSummary, error) {
	cfg = cfg.withDefaults()

	merged := aggregate.NewAccumulator()
	skipped := 0
	for i, src := range srcs {
		acc, s, err := reduce(src)
		if err != nil {
			return nil, fmt.Errorf("shard %d: %w", i, err)
		}
		merged.Merge(acc)
		skipped += s
	}
	return summarize(merged, skipped, cfg)
}

func reduce(src RecordSource) (*aggregate.Accumulator, int, error) {
	acc := aggregate.NewAccumulator()
	skipped := 0
	for {
		record, err := src.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, 0, fmt.Errorf("read record: %w", err)
		}

		event, err := cloudtrail.Parse(record)
		if err != nil {
			var malformed *models.MalformedEventError
			if errors.As(err, &malformed) {
				skipped++
				logger.Debugf("Skipping malformed record: %v", err)
				continue
			}
			return nil, 0, fmt.Errorf("normalize record: %w", err)
		}
		acc.Add(event)
	}
	return acc, skipped, nil
}

func summarize(acc *aggregate.Accumulator, skipped int, cfg Config) (*models.AnalysisSummary, error) {
	if acc.EventCount == 0 {
		return nil, &models.EmptyDatasetError{SkippedEvents: skipped}
	}

	profiles := profile.Build(acc.Identities, profile.Config{
		Velocity:          cfg.Velocity,
		Categories:        cfg.Categories,
		TopActions:        cfg.TopActions,
		MinSampleAdvisory: cfg.MinSampleAdvisory,
	})
	edges := correlate.Build(acc.Addresses)
	windows := anomaly.Detect(acc.Days, cfg.Anomaly)

	summary := &models.AnalysisSummary{
		Statistics: models.Statistics{
			TotalEvents:      acc.EventCount,
			SkippedEvents:    skipped,
			FirstEvent:       acc.FirstEvent,
			LastEvent:        acc.LastEvent,
			UniqueIdentities: len(acc.Identities),
			UniqueAddresses:  len(acc.Addresses),
			UniqueActions:    len(acc.ActionCounts),
			OverallErrorRate: float64(acc.ErroredCount) / float64(acc.EventCount),
			CategoryVersion:  cfg.Categories.Version,
		},
		Profiles:         profiles,
		DailyBuckets:     acc.DailyBuckets(cfg.TopActions),
		HourlyBreakdown:  acc.HourlyBuckets(cfg.HourlyMinEvents),
		AnomalyWindows:   windows,
		CorrelationEdges: edges,
		Phases:           phases.Segment(profiles, edges, windows, cfg.Phases),
		Sessions:         sessions.Extract(acc.Identities, cfg.Sessions),
		TopAddresses:     topAddresses(acc.Addresses, cfg.TopAddresses),
		Errors: models.ErrorSummary{
			TotalErrors: acc.ErroredCount,
			ErrorRate:   float64(acc.ErroredCount) / float64(acc.EventCount),
			TopCodes:    aggregate.TopErrorCodes(acc.ErrorCodes, cfg.TopErrorCodes),
		},
	}

	logger.Infof("Analysis complete: events=%d skipped=%d identities=%d edges=%d windows=%d phases=%d",
		summary.Statistics.TotalEvents,
		summary.Statistics.SkippedEvents,
		summary.Statistics.UniqueIdentities,
		len(summary.CorrelationEdges),
		len(summary.AnomalyWindows),
		len(summary.Phases),
	)
	return summary, nil
}

func topAddresses(addresses map[string]*aggregate.AddressAccum, n int) []models.AddressActivity {
	out := make([]models.AddressActivity, 0, len(addresses))
	for address, accum := range addresses {
		identities := make([]string, 0, len(accum.Identities))
		for identity := range accum.Identities {
			identities = append(identities, identity)
		}
		sort.Strings(identities)
		out = append(out, models.AddressActivity{
			Address:    address,
			Identities: identities,
			EventCount: accum.EventCount,
			TopActions: aggregate.TopActions(accum.ActionCounts, 3),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].EventCount != out[j].EventCount {
			return out[i].EventCount > out[j].EventCount
		}
		return out[i].Address < out[j].Address
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}
