package analysis

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"testing"

	"trailscope/pkg/models"
)

type sliceSource struct {
	records [][]byte
	pos     int
}

func (s *sliceSource) Next() ([]byte, error) {
	if s.pos >= len(s.records) {
		return nil, io.EOF
	}
	record := s.records[s.pos]
	s.pos++
	return record, nil
}

func rawRecord(t *testing.T, user, action, eventTime, address, errorCode string) []byte {
	t.Helper()
	record := map[string]interface{}{
		"eventName":       action,
		"eventTime":       eventTime,
		"userIdentity":    map[string]interface{}{"userName": user},
		"sourceIPAddress": address,
	}
	if errorCode != "" {
		record["errorCode"] = errorCode
	}
	data, err := json.Marshal(record)
	if err != nil {
		t.Fatalf("marshal record: %v", err)
	}
	return data
}

// incidentRecords builds a small incident: carol provides three quiet
// baseline days, then alice (2 events, 1 errored, 5s apart) and bob
// (1000 events in one second, 970 errored) hit the same day from a
// shared address.
func incidentRecords(t *testing.T) [][]byte {
	t.Helper()
	var records [][]byte

	for day := 1; day <= 3; day++ {
		for i := 0; i < 10; i++ {
			records = append(records, rawRecord(t,
				"carol", "DescribeInstances",
				fmt.Sprintf("2025-03-0%dT09:%02d:00Z", day, i),
				"198.51.100.4", ""))
		}
	}

	records = append(records, rawRecord(t,
		"alice", "AssumeRole", "2025-03-04T10:00:00Z", "203.0.113.7", ""))
	records = append(records, rawRecord(t,
		"alice", "AssumeRole", "2025-03-04T10:00:05Z", "203.0.113.7", "AccessDenied"))

	for i := 0; i < 1000; i++ {
		code := "AccessDenied"
		if i < 30 {
			code = ""
		}
		records = append(records, rawRecord(t,
			"bob", "PutObject", "2025-03-04T12:30:45Z", "203.0.113.7", code))
	}
	return records
}

func findProfile(t *testing.T, summary *models.AnalysisSummary, identity string) models.IdentityProfile {
	t.Helper()
	for _, p := range summary.Profiles {
		if p.Identity == identity {
			return p
		}
	}
	t.Fatalf("no profile for %s", identity)
	return models.IdentityProfile{}
}

func TestRunIncidentScenario(t *testing.T) {
	summary, err := Run(&sliceSource{records: incidentRecords(t)}, Config{})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if summary.Statistics.TotalEvents != 1032 {
		t.Fatalf("expected 1032 events, got %d", summary.Statistics.TotalEvents)
	}
	if summary.Statistics.SkippedEvents != 0 {
		t.Fatalf("expected 0 skipped, got %d", summary.Statistics.SkippedEvents)
	}

	alice := findProfile(t, summary, "alice")
	if alice.ErrorRate != 0.5 {
		t.Fatalf("expected alice error rate 0.5, got %f", alice.ErrorRate)
	}
	if alice.VelocityHistogram != (models.VelocityHistogram{Seconds: 1}) {
		t.Fatalf("unexpected alice histogram: %+v", alice.VelocityHistogram)
	}
	if !alice.LowSample {
		t.Fatalf("expected alice flagged low-sample")
	}

	bob := findProfile(t, summary, "bob")
	if bob.ErrorRate != 0.97 {
		t.Fatalf("expected bob error rate 0.97, got %f", bob.ErrorRate)
	}
	if bob.VelocityHistogram != (models.VelocityHistogram{SubSecond: 999}) {
		t.Fatalf("unexpected bob histogram: %+v", bob.VelocityHistogram)
	}

	// Highest-volume profile sorts first.
	if summary.Profiles[0].Identity != "bob" {
		t.Fatalf("expected bob first, got %s", summary.Profiles[0].Identity)
	}

	if len(summary.CorrelationEdges) != 1 {
		t.Fatalf("expected 1 edge, got %d", len(summary.CorrelationEdges))
	}
	edge := summary.CorrelationEdges[0]
	if edge.IdentityA != "alice" || edge.IdentityB != "bob" || edge.SharedAddressCount != 1 {
		t.Fatalf("unexpected edge: %+v", edge)
	}
	if len(edge.SharedAddresses) != 1 || edge.SharedAddresses[0] != "203.0.113.7" {
		t.Fatalf("unexpected shared addresses: %v", edge.SharedAddresses)
	}

	var burst *models.AnomalyWindow
	for i := range summary.AnomalyWindows {
		w := &summary.AnomalyWindows[i]
		if w.StartDate <= "2025-03-04" && w.EndDate >= "2025-03-04" {
			burst = w
			break
		}
	}
	if burst == nil {
		t.Fatalf("expected anomaly window covering 2025-03-04, got %+v", summary.AnomalyWindows)
	}
	if !burst.PartialBaseline {
		t.Fatalf("expected partial baseline flag with 3 days of history")
	}

	// Conservation over the daily buckets.
	total := 0
	for _, bucket := range summary.DailyBuckets {
		total += bucket.TotalEvents
	}
	if total != summary.Statistics.TotalEvents {
		t.Fatalf("daily buckets sum to %d, statistics say %d", total, summary.Statistics.TotalEvents)
	}

	// Each profile carries one fewer gap than events.
	for _, p := range summary.Profiles {
		want := p.EventCount - 1
		if p.EventCount == 0 {
			want = 0
		}
		if p.VelocityHistogram.Total() != want {
			t.Fatalf("%s: %d events but %d gaps", p.Identity, p.EventCount, p.VelocityHistogram.Total())
		}
	}
}

func TestRunDeterministicAcrossShards(t *testing.T) {
	records := incidentRecords(t)

	sequential, err := Run(&sliceSource{records: records}, Config{})
	if err != nil {
		t.Fatalf("sequential run failed: %v", err)
	}

	repeat, err := Run(&sliceSource{records: records}, Config{})
	if err != nil {
		t.Fatalf("repeat run failed: %v", err)
	}

	shards := make([]RecordSource, 3)
	for i := range shards {
		shard := &sliceSource{}
		for j := i; j < len(records); j += len(shards) {
			shard.records = append(shard.records, records[j])
		}
		shards[i] = shard
	}
	sharded, err := RunShards(shards, Config{})
	if err != nil {
		t.Fatalf("sharded run failed: %v", err)
	}

	first, err := json.Marshal(sequential)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	second, err := json.Marshal(repeat)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	third, err := json.Marshal(sharded)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	if !bytes.Equal(first, second) {
		t.Fatalf("two sequential runs differ")
	}
	if !bytes.Equal(first, third) {
		t.Fatalf("sharded run differs from sequential run")
	}
}

func TestRunCountsMalformedAndSkips(t *testing.T) {
	records := [][]byte{
		[]byte(`{"eventName":"AssumeRole"}`),
		rawRecord(t, "alice", "AssumeRole", "2025-03-04T10:00:00Z", "203.0.113.7", ""),
		[]byte(`not json at all`),
	}

	summary, err := Run(&sliceSource{records: records}, Config{})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if summary.Statistics.TotalEvents != 1 {
		t.Fatalf("expected 1 event, got %d", summary.Statistics.TotalEvents)
	}
	if summary.Statistics.SkippedEvents != 2 {
		t.Fatalf("expected 2 skipped, got %d", summary.Statistics.SkippedEvents)
	}
}

func TestRunAllMalformedFailsEmpty(t *testing.T) {
	records := make([][]byte, 25)
	for i := range records {
		records[i] = []byte(`{"eventName":"AssumeRole","sourceIPAddress":"203.0.113.7"}`)
	}

	_, err := Run(&sliceSource{records: records}, Config{})
	var empty *models.EmptyDatasetError
	if !errors.As(err, &empty) {
		t.Fatalf("expected EmptyDatasetError, got %v", err)
	}
	if empty.SkippedEvents != 25 {
		t.Fatalf("expected 25 skipped in error, got %d", empty.SkippedEvents)
	}
}

func TestRunSingleEventBoundary(t *testing.T) {
	records := [][]byte{
		rawRecord(t, "alice", "AssumeRole", "2025-03-04T10:00:00Z", "203.0.113.7", ""),
	}

	summary, err := Run(&sliceSource{records: records}, Config{})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	alice := findProfile(t, summary, "alice")
	if alice.ErrorRate != 0 {
		t.Fatalf("expected error rate 0, got %f", alice.ErrorRate)
	}
	if alice.VelocityHistogram.Total() != 0 {
		t.Fatalf("expected empty histogram, got %+v", alice.VelocityHistogram)
	}
	if len(summary.CorrelationEdges) != 0 {
		t.Fatalf("expected no edges, got %d", len(summary.CorrelationEdges))
	}
}
