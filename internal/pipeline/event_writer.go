package pipeline

import "trailscope/pkg/models"

// EventWriter persists batches of canonical events.
type EventWriter interface {
	WriteEvents(events []*models.CanonicalEvent) error
	Close() error
}
