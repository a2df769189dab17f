// Package archive reads raw audit records from local log archives. It
// understands CloudTrail delivery files ({"Records":[...]}, optionally
// gzipped) and line-delimited JSON spool segments.
package archive

import (
	"bufio"
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"trailscope/internal/logger"
)

// Reader yields one raw JSON record at a time across an ordered list of
// archive files. It satisfies analysis.RecordSource.
type Reader struct {
	paths   []string
	index   int
	file    *os.File
	gz      *gzip.Reader
	scanner *bufio.Scanner
	records [][]byte
	pos     int
	jsonl   bool
}

// maxRecordSize bounds a single JSONL record. CloudTrail records top out
// well below this.
const maxRecordSize = 4 * 1024 * 1024

// NewReader opens a reader over the given file or directory paths.
// Directories are walked for supported extensions. Files are visited in
// lexical order so runs over the same archive set are reproducible.
func NewReader(paths []string) (*Reader, error) {
	resolved, err := Resolve(paths)
	if err != nil {
		return nil, err
	}
	logger.Infof("Reading %d archive file(s)", len(resolved))
	return &Reader{paths: resolved}, nil
}

// Resolve expands files and directories into the sorted list of
// supported archive files.
func Resolve(paths []string) ([]string, error) {
	resolved := make([]string, 0, len(paths))
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("stat input %s: %w", path, err)
		}
		if !info.IsDir() {
			resolved = append(resolved, path)
			continue
		}
		err = filepath.WalkDir(path, func(p string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && supported(p) {
				resolved = append(resolved, p)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walk input %s: %w", path, err)
		}
	}
	if len(resolved) == 0 {
		return nil, fmt.Errorf("no archive files under %s", strings.Join(paths, ", "))
	}
	sort.Strings(resolved)
	return resolved, nil
}

func supported(path string) bool {
	name := strings.TrimSuffix(path, ".gz")
	return strings.HasSuffix(name, ".json") || strings.HasSuffix(name, ".jsonl")
}

// Next returns the next raw record, or io.EOF when all files are drained.
func (r *Reader) Next() ([]byte, error) {
	for {
		if r.jsonl && r.scanner != nil {
			if r.scanner.Scan() {
				line := strings.TrimSpace(r.scanner.Text())
				if line == "" {
					continue
				}
				return []byte(line), nil
			}
			if err := r.scanner.Err(); err != nil {
				return nil, fmt.Errorf("scan %s: %w", r.paths[r.index-1], err)
			}
			r.closeCurrent()
		}
		if !r.jsonl && r.pos < len(r.records) {
			record := r.records[r.pos]
			r.pos++
			return record, nil
		}

		if r.index >= len(r.paths) {
			return nil, io.EOF
		}
		if err := r.openNext(); err != nil {
			return nil, err
		}
	}
}

func (r *Reader) openNext() error {
	path := r.paths[r.index]
	r.index++

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open archive %s: %w", path, err)
	}

	var src io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			f.Close()
			return fmt.Errorf("open gzip %s: %w", path, err)
		}
		r.gz = gz
		src = gz
	}
	r.file = f

	if strings.HasSuffix(strings.TrimSuffix(path, ".gz"), ".jsonl") {
		r.jsonl = true
		scanner := bufio.NewScanner(src)
		scanner.Buffer(make([]byte, 64*1024), maxRecordSize)
		r.scanner = scanner
		return nil
	}

	r.jsonl = false
	defer r.closeCurrent()

	data, err := io.ReadAll(src)
	if err != nil {
		return fmt.Errorf("read archive %s: %w", path, err)
	}
	var envelope struct {
		Records []json.RawMessage `json:"Records"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return fmt.Errorf("decode archive %s: %w", path, err)
	}
	r.records = make([][]byte, len(envelope.Records))
	for i, raw := range envelope.Records {
		r.records[i] = []byte(raw)
	}
	r.pos = 0
	return nil
}

func (r *Reader) closeCurrent() {
	if r.gz != nil {
		r.gz.Close()
		r.gz = nil
	}
	if r.file != nil {
		r.file.Close()
		r.file = nil
	}
	r.scanner = nil
	r.jsonl = false
}

// Close releases any open file handle.
func (r *Reader) Close() error {
	r.closeCurrent()
	return nil
}
