package profile

import (
	"testing"
	"time"

	"trailscope/internal/aggregate"
	"trailscope/pkg/models"
)

func accumulate(events []*models.CanonicalEvent) *aggregate.Accumulator {
	acc := aggregate.NewAccumulator()
	for _, e := range events {
		acc.Add(e)
	}
	return acc
}

func TestBuildComputesProfileFields(t *testing.T) {
	base := time.Date(2019, 2, 1, 10, 0, 0, 0, time.UTC)
	acc := accumulate([]*models.CanonicalEvent{
		{Identity: "alice", Action: "DescribeInstances", Timestamp: base, SourceAddress: "198.51.100.1"},
		{Identity: "alice", Action: "ListBuckets", Timestamp: base.Add(5 * time.Second), SourceAddress: "198.51.100.1", ErrorCode: "AccessDenied"},
	})

	profiles := Build(acc.Identities, Config{})
	if len(profiles) != 1 {
		t.Fatalf("expected 1 profile, got %d", len(profiles))
	}
	p := profiles[0]
	if p.Identity != "alice" || p.EventCount != 2 {
		t.Fatalf("unexpected profile: %+v", p)
	}
	if p.ErrorRate != 0.5 {
		t.Fatalf("expected error rate 0.5, got %f", p.ErrorRate)
	}
	if p.VelocityHistogram.Seconds != 1 || p.VelocityHistogram.Total() != 1 {
		t.Fatalf("expected one scripted gap, got %+v", p.VelocityHistogram)
	}
	if len(p.SourceAddresses) != 1 || p.SourceAddresses[0] != "198.51.100.1" {
		t.Fatalf("unexpected addresses: %v", p.SourceAddresses)
	}
	if !p.FirstSeen.Equal(base) || !p.LastSeen.Equal(base.Add(5*time.Second)) {
		t.Fatalf("unexpected seen range: %v -> %v", p.FirstSeen, p.LastSeen)
	}
	if p.CategoryShares["reconnaissance"] != 1.0 {
		t.Fatalf("expected full reconnaissance share, got %v", p.CategoryShares)
	}
}

func TestBuildSingleEventProfile(t *testing.T) {
	base := time.Date(2019, 2, 1, 10, 0, 0, 0, time.UTC)
	acc := accumulate([]*models.CanonicalEvent{
		{Identity: "solo", Action: "GetCallerIdentity", Timestamp: base, ErrorCode: "AccessDenied"},
	})

	profiles := Build(acc.Identities, Config{})
	p := profiles[0]
	if p.ErrorRate != 1.0 {
		t.Fatalf("single errored event must have rate 1, got %f", p.ErrorRate)
	}
	if p.VelocityHistogram.Total() != 0 {
		t.Fatalf("single event contributes no gaps, got %+v", p.VelocityHistogram)
	}
	if len(p.SourceAddresses) != 0 {
		t.Fatalf("expected no addresses, got %v", p.SourceAddresses)
	}
}

func TestBuildLowSampleAdvisoryDoesNotSuppress(t *testing.T) {
	base := time.Date(2019, 2, 1, 10, 0, 0, 0, time.UTC)
	events := make([]*models.CanonicalEvent, 0, 39)
	for i := 0; i < 39; i++ {
		events = append(events, &models.CanonicalEvent{
			Identity:  "Level5",
			Action:    "DescribeInstances",
			Timestamp: base.Add(time.Duration(i) * time.Minute),
		})
	}

	profiles := Build(accumulate(events).Identities, Config{MinSampleAdvisory: 50})
	if len(profiles) != 1 {
		t.Fatalf("sparse profile must not be suppressed")
	}
	if !profiles[0].LowSample {
		t.Fatalf("expected low-sample advisory flag")
	}
	if profiles[0].VelocityHistogram.Human != 38 {
		t.Fatalf("expected 38 human gaps, got %+v", profiles[0].VelocityHistogram)
	}
}

func TestBuildOrdersByEventCountThenIdentity(t *testing.T) {
	base := time.Date(2019, 2, 1, 10, 0, 0, 0, time.UTC)
	acc := accumulate([]*models.CanonicalEvent{
		{Identity: "bravo", Action: "ListBuckets", Timestamp: base},
		{Identity: "alpha", Action: "ListBuckets", Timestamp: base},
		{Identity: "busy", Action: "ListBuckets", Timestamp: base},
		{Identity: "busy", Action: "ListBuckets", Timestamp: base.Add(time.Minute)},
	})

	profiles := Build(acc.Identities, Config{})
	if profiles[0].Identity != "busy" || profiles[1].Identity != "alpha" || profiles[2].Identity != "bravo" {
		t.Fatalf("unexpected order: %v %v %v", profiles[0].Identity, profiles[1].Identity, profiles[2].Identity)
	}
}
