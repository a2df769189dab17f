package cloudtrail

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"trailscope/pkg/models"
)

// Parse converts one raw CloudTrail record into a CanonicalEvent.
// A record that is already in canonical form is passed through unchanged,
// so normalizing a canonical stream is idempotent. A record with a
// missing or unparseable action or timestamp fails with
// MalformedEventError; a missing principal does not, it maps to the
// unknown identity.
func Parse(data []byte) (*models.CanonicalEvent, error) {
	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, &models.MalformedEventError{Reason: "invalid JSON"}
	}

	if isCanonical(raw) {
		return parseCanonical(raw)
	}

	action := getString(raw, "eventName")
	if action == "" {
		return nil, &models.MalformedEventError{Reason: "missing eventName"}
	}

	ts, ok := parseEventTime(getString(raw, "eventTime"))
	if !ok {
		return nil, &models.MalformedEventError{Reason: "missing or unparseable eventTime"}
	}

	event := &models.CanonicalEvent{
		Identity:      extractIdentity(raw),
		Action:        action,
		Timestamp:     ts,
		SourceAddress: getString(raw, "sourceIPAddress"),
		ErrorCode:     getString(raw, "errorCode"),
	}
	return event, nil
}

func isCanonical(raw map[string]interface{}) bool {
	_, hasIdentity := raw["identity"]
	_, hasAction := raw["action"]
	_, hasTimestamp := raw["timestamp"]
	return hasIdentity && hasAction && hasTimestamp
}

func parseCanonical(raw map[string]interface{}) (*models.CanonicalEvent, error) {
	action := getString(raw, "action")
	if action == "" {
		return nil, &models.MalformedEventError{Reason: "missing action"}
	}
	ts, ok := parseEventTime(getString(raw, "timestamp"))
	if !ok {
		return nil, &models.MalformedEventError{Reason: "missing or unparseable timestamp"}
	}
	identity := getString(raw, "identity")
	if identity == "" {
		identity = models.UnknownIdentity
	}
	return &models.CanonicalEvent{
		Identity:      identity,
		Action:        action,
		Timestamp:     ts,
		SourceAddress: getString(raw, "source_address"),
		ErrorCode:     getString(raw, "error_code"),
	}, nil
}

// extractIdentity resolves the acting principal: userName first, then the
// trailing segment of principalId (session principals look like
// "AIDAEXAMPLE:session-name"), then the unknown identity.
func extractIdentity(raw map[string]interface{}) string {
	identity, ok := raw["userIdentity"].(map[string]interface{})
	if !ok {
		return models.UnknownIdentity
	}
	if name := getString(identity, "userName"); name != "" {
		return name
	}
	if principal := getString(identity, "principalId"); principal != "" {
		if idx := strings.LastIndex(principal, ":"); idx >= 0 && idx+1 < len(principal) {
			return principal[idx+1:]
		}
		return principal
	}
	return models.UnknownIdentity
}

// parseEventTime normalizes timestamps of differing source precision to
// whole seconds in UTC. Layouts without an explicit zone default to UTC.
func parseEventTime(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, false
	}

	for _, layout := range []string{time.RFC3339Nano, time.RFC3339} {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC().Truncate(time.Second), true
		}
	}

	for _, layout := range []string{
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05.000000",
		"2006-01-02 15:04:05",
	} {
		if t, err := time.ParseInLocation(layout, value, time.UTC); err == nil {
			return t.UTC().Truncate(time.Second), true
		}
	}

	return time.Time{}, false
}

func getString(root map[string]interface{}, key string) string {
	v, ok := root[key]
	if !ok {
		return ""
	}
	switch val := v.(type) {
	case string:
		return val
	case fmt.Stringer:
		return val.String()
	case int:
		return fmt.Sprintf("%d", val)
	case int64:
		return fmt.Sprintf("%d", val)
	case float64:
		if val == float64(int64(val)) {
			return fmt.Sprintf("%d", int64(val))
		}
		return fmt.Sprintf("%f", val)
	}
	return ""
}
