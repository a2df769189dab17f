// Package spooljson persists canonical events as JSON lines segments.
// Segments carry unique names so concurrent ingest processes never
// collide, and finished segments are atomically renamed so the batch
// analyzer only ever sees complete files.
package spooljson

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"trailscope/internal/logger"
	"trailscope/pkg/models"
)

const openSuffix = ".open"

// Writer appends canonical events to a rotating JSONL segment.
type Writer struct {
	dir       string
	maxEvents int
	file      *os.File
	encoder   *json.Encoder
	inSegment int
	onRotate  func()
	mu        sync.Mutex
}

// NewWriter creates a spool writer in dir. Segments rotate after
// maxEvents events; maxEvents <= 0 means 100000. onRotate, if non-nil,
// fires once per finished segment.
func NewWriter(dir string, maxEvents int, onRotate func()) (*Writer, error) {
	if dir == "" {
		return nil, fmt.Errorf("spool directory is required")
	}
	if maxEvents <= 0 {
		maxEvents = 100000
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create spool directory: %w", err)
	}

	logger.Infof("Spool writer initialized: %s (segment size %d)", dir, maxEvents)
	return &Writer{dir: dir, maxEvents: maxEvents, onRotate: onRotate}, nil
}

// WriteEvents appends a batch of canonical events, rotating segments as
// they fill.
func (w *Writer) WriteEvents(events []*models.CanonicalEvent) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, event := range events {
		if event == nil {
			continue
		}
		if w.file == nil {
			if err := w.openSegment(); err != nil {
				return err
			}
		}
		if err := w.encoder.Encode(event); err != nil {
			return fmt.Errorf("failed to encode event: %w", err)
		}
		w.inSegment++
		if w.inSegment >= w.maxEvents {
			if err := w.finishSegment(); err != nil {
				return err
			}
		}
	}
	return nil
}

func (w *Writer) openSegment() error {
	name := fmt.Sprintf("events-%s.jsonl%s", uuid.NewString(), openSuffix)
	f, err := os.Create(filepath.Join(w.dir, name))
	if err != nil {
		return fmt.Errorf("failed to create spool segment: %w", err)
	}
	w.file = f
	w.encoder = json.NewEncoder(f)
	w.inSegment = 0
	return nil
}

func (w *Writer) finishSegment() error {
	if w.file == nil {
		return nil
	}
	path := w.file.Name()
	if err := w.file.Close(); err != nil {
		return fmt.Errorf("failed to close spool segment: %w", err)
	}
	final := path[:len(path)-len(openSuffix)]
	if err := os.Rename(path, final); err != nil {
		return fmt.Errorf("failed to finish spool segment: %w", err)
	}
	logger.Debugf("Spool segment finished: %s (%d events)", filepath.Base(final), w.inSegment)
	w.file = nil
	w.encoder = nil
	w.inSegment = 0
	if w.onRotate != nil {
		w.onRotate()
	}
	return nil
}

// Close finishes the open segment, if any.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.finishSegment()
}
