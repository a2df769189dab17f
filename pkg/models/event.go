package models

import "time"

// DateLayout is the calendar-date format used for bucket and window keys.
const DateLayout = "2006-01-02"

// UnknownIdentity is assigned when a record carries no usable principal.
const UnknownIdentity = "unknown"

// CanonicalEvent is the normalized form of one audit-log record.
// Identity, Action and Timestamp are always set; SourceAddress and
// ErrorCode are empty when the record did not carry them. An empty
// ErrorCode means the action succeeded.
type CanonicalEvent struct {
	Identity      string    `json:"identity"`
	Action        string    `json:"action"`
	Timestamp     time.Time `json:"timestamp"`
	SourceAddress string    `json:"source_address,omitempty"`
	ErrorCode     string    `json:"error_code,omitempty"`
}

// Errored reports whether the event carried an error code.
func (e *CanonicalEvent) Errored() bool {
	return e != nil && e.ErrorCode != ""
}

// Date returns the event's UTC calendar date key.
func (e *CanonicalEvent) Date() string {
	return e.Timestamp.UTC().Format(DateLayout)
}
