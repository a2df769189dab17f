package models

import "fmt"

// MalformedEventError marks a single record that could not be normalized.
// It is recovered locally: the record is counted and skipped, and the
// batch continues.
type MalformedEventError struct {
	Reason string
}

func (e *MalformedEventError) Error() string {
	return fmt.Sprintf("malformed event: %s", e.Reason)
}

// EmptyDatasetError is returned when zero canonical events survive
// normalization. It is fatal for the run: no summary is produced from
// zero data.
type EmptyDatasetError struct {
	SkippedEvents int
}

func (e *EmptyDatasetError) Error() string {
	return fmt.Sprintf("empty dataset: no canonical events (skipped %d malformed records)", e.SkippedEvents)
}
