// Package summaryjson persists one analysis summary as a single JSON
// document. The file is written to a temporary name and renamed, so
// readers never observe a partial summary.
package summaryjson

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"trailscope/internal/logger"
	"trailscope/pkg/models"
)

// Write marshals the summary with stable key order and writes it to
// path. Path "-" writes to stdout instead.
func Write(path string, summary *models.AnalysisSummary) error {
	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode summary: %w", err)
	}
	data = append(data, '\n')

	if path == "-" {
		_, err := os.Stdout.Write(data)
		return err
	}

	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write summary: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to finalize summary: %w", err)
	}

	logger.Infof("Summary written: %s (%d bytes)", path, len(data))
	return nil
}
