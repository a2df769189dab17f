package sessions

import (
	"fmt"
	"testing"
	"time"

	"trailscope/internal/aggregate"
	"trailscope/pkg/models"
)

func accumWith(identity string, times []time.Time) map[string]*aggregate.IdentityAccum {
	acc := aggregate.NewAccumulator()
	for i, ts := range times {
		acc.Add(&models.CanonicalEvent{
			Identity:  identity,
			Action:    fmt.Sprintf("Action%02d", i),
			Timestamp: ts,
		})
	}
	return acc.Identities
}

func TestExtractSplitsOnIdleGap(t *testing.T) {
	base := time.Date(2019, 2, 1, 10, 0, 0, 0, time.UTC)
	times := make([]time.Time, 0, 14)
	for i := 0; i < 7; i++ {
		times = append(times, base.Add(time.Duration(i)*time.Minute))
	}
	second := base.Add(3 * time.Hour)
	for i := 0; i < 7; i++ {
		times = append(times, second.Add(time.Duration(i)*time.Minute))
	}

	got := Extract(accumWith("Level6", times), Config{})
	if len(got) != 1 {
		t.Fatalf("expected one identity, got %d", len(got))
	}
	sessions := got[0].Sessions
	if len(sessions) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(sessions))
	}
	if sessions[0].Session != 0 || sessions[1].Session != 1 {
		t.Fatalf("unexpected session ordinals: %+v", sessions)
	}
	if sessions[0].EventCount != 7 || sessions[0].DurationMinutes != 6 {
		t.Fatalf("unexpected first session: %+v", sessions[0])
	}
	if !sessions[1].Start.Equal(second) {
		t.Fatalf("unexpected second session start: %v", sessions[1].Start)
	}
}

func TestExtractDropsShortSessionsButKeepsOrdinals(t *testing.T) {
	base := time.Date(2019, 2, 1, 10, 0, 0, 0, time.UTC)
	times := []time.Time{base, base.Add(time.Minute)} // short session 0
	second := base.Add(5 * time.Hour)
	for i := 0; i < 8; i++ {
		times = append(times, second.Add(time.Duration(i)*time.Second))
	}

	got := Extract(accumWith("backup", times), Config{})
	if len(got) != 1 || len(got[0].Sessions) != 1 {
		t.Fatalf("expected one retained session, got %+v", got)
	}
	if got[0].Sessions[0].Session != 1 {
		t.Fatalf("ordinal must count skipped sessions, got %d", got[0].Sessions[0].Session)
	}
}

func TestExtractCapsSessionsAndActions(t *testing.T) {
	base := time.Date(2019, 2, 1, 10, 0, 0, 0, time.UTC)
	times := make([]time.Time, 0, 40)
	for s := 0; s < 4; s++ {
		sessionStart := base.Add(time.Duration(s) * 6 * time.Hour)
		for i := 0; i < 10; i++ {
			times = append(times, sessionStart.Add(time.Duration(i)*time.Second))
		}
	}

	got := Extract(accumWith("backup", times), Config{MaxSessions: 2, MaxActions: 3})
	sessions := got[0].Sessions
	if len(sessions) != 2 {
		t.Fatalf("expected 2 retained sessions, got %d", len(sessions))
	}
	if len(sessions[0].Actions) != 3 {
		t.Fatalf("expected capped action list, got %d", len(sessions[0].Actions))
	}
	if sessions[0].EventCount != 10 {
		t.Fatalf("event count must reflect full session, got %d", sessions[0].EventCount)
	}
}

func TestExtractOmitsIdentitiesWithoutRetainedSessions(t *testing.T) {
	base := time.Date(2019, 2, 1, 10, 0, 0, 0, time.UTC)

	got := Extract(accumWith("quiet", []time.Time{base, base.Add(time.Minute)}), Config{})
	if len(got) != 0 {
		t.Fatalf("expected no retained identities, got %+v", got)
	}
}
