package archive

import (
	"compress/gzip"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func writeGzipFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", name, err)
	}
	gz := gzip.NewWriter(f)
	if _, err := gz.Write([]byte(content)); err != nil {
		t.Fatalf("write gzip %s: %v", name, err)
	}
	if err := gz.Close(); err != nil {
		t.Fatalf("close gzip %s: %v", name, err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close %s: %v", name, err)
	}
	return path
}

func drain(t *testing.T, r *Reader) []string {
	t.Helper()
	var out []string
	for {
		record, err := r.Next()
		if errors.Is(err, io.EOF) {
			return out
		}
		if err != nil {
			t.Fatalf("Next failed: %v", err)
		}
		out = append(out, string(record))
	}
}

func TestReaderEnvelopeFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "trail.json", `{"Records":[{"eventName":"A"},{"eventName":"B"}]}`)

	r, err := NewReader([]string{dir})
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	defer r.Close()

	records := drain(t, r)
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if records[0] != `{"eventName":"A"}` {
		t.Fatalf("unexpected first record: %s", records[0])
	}
}

func TestReaderMixedFormatsLexicalOrder(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "b-spool.jsonl", "{\"eventName\":\"C\"}\n\n{\"eventName\":\"D\"}\n")
	writeGzipFile(t, dir, "c-trail.json.gz", `{"Records":[{"eventName":"E"}]}`)
	writeFile(t, dir, "a-trail.json", `{"Records":[{"eventName":"A"},{"eventName":"B"}]}`)
	writeFile(t, dir, "ignored.txt", "not a log")

	r, err := NewReader([]string{dir})
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	defer r.Close()

	records := drain(t, r)
	want := []string{
		`{"eventName":"A"}`,
		`{"eventName":"B"}`,
		`{"eventName":"C"}`,
		`{"eventName":"D"}`,
		`{"eventName":"E"}`,
	}
	if len(records) != len(want) {
		t.Fatalf("expected %d records, got %d: %v", len(want), len(records), records)
	}
	for i, w := range want {
		if records[i] != w {
			t.Fatalf("record %d: expected %s, got %s", i, w, records[i])
		}
	}
}

func TestReaderGzipSpool(t *testing.T) {
	dir := t.TempDir()
	writeGzipFile(t, dir, "spool.jsonl.gz", "{\"eventName\":\"A\"}\n{\"eventName\":\"B\"}\n")

	r, err := NewReader([]string{filepath.Join(dir, "spool.jsonl.gz")})
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	defer r.Close()

	records := drain(t, r)
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
}

func TestReaderNoFiles(t *testing.T) {
	dir := t.TempDir()
	if _, err := NewReader([]string{dir}); err == nil {
		t.Fatalf("expected error for empty directory")
	}
}
