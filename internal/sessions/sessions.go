// Package sessions splits each identity's activity into idle-gap
// delimited sessions and retains the leading action sequences for
// downstream behavioral comparison.
package sessions

import (
	"sort"
	"time"

	"trailscope/internal/aggregate"
	"trailscope/pkg/models"
)

// Config controls session extraction.
type Config struct {
	// Gap is the idle time that starts a new session.
	Gap time.Duration
	// MinEvents is the smallest session worth retaining.
	MinEvents int
	// MaxSessions caps retained sessions per identity, earliest first.
	MaxSessions int
	// MaxActions caps the retained leading actions per session.
	MaxActions int
}

func (c Config) withDefaults() Config {
	if c.Gap <= 0 {
		c.Gap = 1 * time.Hour
	}
	if c.MinEvents <= 0 {
		c.MinEvents = 6
	}
	if c.MaxSessions <= 0 {
		c.MaxSessions = 5
	}
	if c.MaxActions <= 0 {
		c.MaxActions = 20
	}
	return c
}

// Extract derives retained sessions per identity, ordered by identity
// name. Identities without any session above the size floor are absent.
func Extract(identities map[string]*aggregate.IdentityAccum, cfg Config) []models.IdentitySessions {
	cfg = cfg.withDefaults()

	out := make([]models.IdentitySessions, 0, len(identities))
	for identity, accum := range identities {
		if accum == nil || len(accum.Events) == 0 {
			continue
		}
		retained := extractOne(accum.Events, cfg)
		if len(retained) == 0 {
			continue
		}
		out = append(out, models.IdentitySessions{Identity: identity, Sessions: retained})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Identity < out[j].Identity })
	return out
}

func extractOne(events []aggregate.EventRef, cfg Config) []models.SessionSequence {
	ordered := append([]aggregate.EventRef(nil), events...)
	sort.Slice(ordered, func(i, j int) bool {
		if !ordered[i].Timestamp.Equal(ordered[j].Timestamp) {
			return ordered[i].Timestamp.Before(ordered[j].Timestamp)
		}
		return ordered[i].Action < ordered[j].Action
	})

	retained := make([]models.SessionSequence, 0, cfg.MaxSessions)
	sessionID := 0
	start := 0
	flush := func(end int) {
		defer func() { sessionID++ }()
		if end-start < cfg.MinEvents || len(retained) >= cfg.MaxSessions {
			return
		}
		span := ordered[start:end]
		actions := make([]string, 0, cfg.MaxActions)
		for _, ref := range span {
			if len(actions) >= cfg.MaxActions {
				break
			}
			actions = append(actions, ref.Action)
		}
		duration := span[len(span)-1].Timestamp.Sub(span[0].Timestamp)
		retained = append(retained, models.SessionSequence{
			Session:         sessionID,
			Start:           span[0].Timestamp,
			DurationMinutes: duration.Minutes(),
			EventCount:      len(span),
			Actions:         actions,
		})
	}

	for i := 1; i < len(ordered); i++ {
		if ordered[i].Timestamp.Sub(ordered[i-1].Timestamp) > cfg.Gap {
			flush(i)
			start = i
		}
	}
	flush(len(ordered))
	return retained
}
