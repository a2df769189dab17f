package cloudtrail

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"trailscope/pkg/models"
)

func TestParseExtractsUserNameAndFields(t *testing.T) {
	data := []byte(`{
		"eventTime": "2019-08-21T03:04:05Z",
		"eventName": "RunInstances",
		"userIdentity": {"userName": "backup", "principalId": "AIDAEXAMPLE"},
		"sourceIPAddress": "203.0.113.7",
		"errorCode": "Client.UnauthorizedOperation"
	}`)

	event, err := Parse(data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if event.Identity != "backup" {
		t.Fatalf("expected identity backup, got %s", event.Identity)
	}
	if event.Action != "RunInstances" {
		t.Fatalf("expected action RunInstances, got %s", event.Action)
	}
	want := time.Date(2019, 8, 21, 3, 4, 5, 0, time.UTC)
	if !event.Timestamp.Equal(want) {
		t.Fatalf("unexpected timestamp: %v", event.Timestamp)
	}
	if event.SourceAddress != "203.0.113.7" {
		t.Fatalf("unexpected source address: %s", event.SourceAddress)
	}
	if !event.Errored() {
		t.Fatalf("expected errored event")
	}
}

func TestParseFallsBackToPrincipalIDTail(t *testing.T) {
	data := []byte(`{
		"eventTime": "2019-02-01T10:00:00Z",
		"eventName": "ListBuckets",
		"userIdentity": {"principalId": "AROAEXAMPLE:level6-session"}
	}`)

	event, err := Parse(data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if event.Identity != "level6-session" {
		t.Fatalf("expected principal tail, got %s", event.Identity)
	}
}

func TestParseMissingPrincipalIsUnknownNotMalformed(t *testing.T) {
	data := []byte(`{"eventTime": "2019-02-01T10:00:00Z", "eventName": "GetCallerIdentity"}`)

	event, err := Parse(data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if event.Identity != models.UnknownIdentity {
		t.Fatalf("expected unknown identity, got %s", event.Identity)
	}
}

func TestParseRejectsMissingTimestampAndAction(t *testing.T) {
	cases := []struct {
		name string
		data string
	}{
		{"missing timestamp", `{"eventName": "ListBuckets"}`},
		{"bad timestamp", `{"eventName": "ListBuckets", "eventTime": "not-a-time"}`},
		{"missing action", `{"eventTime": "2019-02-01T10:00:00Z"}`},
		{"invalid json", `{`},
	}
	for _, tc := range cases {
		_, err := Parse([]byte(tc.data))
		if err == nil {
			t.Fatalf("%s: expected error", tc.name)
		}
		var malformed *models.MalformedEventError
		if !errors.As(err, &malformed) {
			t.Fatalf("%s: expected MalformedEventError, got %v", tc.name, err)
		}
	}
}

func TestParseZonelessTimestampDefaultsToUTC(t *testing.T) {
	data := []byte(`{"eventTime": "2019-08-21 03:04:05", "eventName": "RunInstances"}`)

	event, err := Parse(data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := time.Date(2019, 8, 21, 3, 4, 5, 0, time.UTC)
	if !event.Timestamp.Equal(want) {
		t.Fatalf("expected UTC default, got %v", event.Timestamp)
	}
}

func TestParseCanonicalRoundTripIsIdempotent(t *testing.T) {
	original := &models.CanonicalEvent{
		Identity:      "Level5",
		Action:        "DescribeInstances",
		Timestamp:     time.Date(2019, 2, 1, 10, 0, 0, 0, time.UTC),
		SourceAddress: "198.51.100.1",
		ErrorCode:     "AccessDenied",
	}
	data, err := json.Marshal(original)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	again, err := Parse(data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if *again != *original {
		t.Fatalf("canonical round trip changed event: %+v != %+v", again, original)
	}
}
