package storage

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"zoopla-scraper/models"
)

// JSONLWriter writes listing records to a dated newline-delimited JSON file.
// Records go to a temporary file next to the target; Close renames it into
// place, so an earlier file for the same day survives until a run finishes
// writing.
type JSONLWriter struct {
	path   string
	file   *os.File
	writer *bufio.Writer
	failed bool
}

// OutputFileName returns the per-run file name, e.g. zoopla_20221016.jsonl.
func OutputFileName(runDate time.Time) string {
	return "zoopla_" + runDate.Format(models.DateLayout) + ".jsonl"
}

// NewJSONLWriter prepares the run's output file in dir.
// Intermediate directories are created automatically.
func NewJSONLWriter(dir string, runDate time.Time) (*JSONLWriter, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("jsonl: create output dir: %w", err)
	}

	path := filepath.Join(dir, OutputFileName(runDate))
	f, err := os.CreateTemp(dir, OutputFileName(runDate)+".*.tmp")
	if err != nil {
		return nil, fmt.Errorf("jsonl: create temp file for %q: %w", path, err)
	}
	_ = f.Chmod(0644)

	return &JSONLWriter{path: path, file: f, writer: bufio.NewWriter(f)}, nil
}

// Path returns the output file location.
func (w *JSONLWriter) Path() string {
	return w.path
}

// Write appends one line per record.
func (w *JSONLWriter) Write(records models.Dataset) error {
	for _, r := range records {
		line, err := json.Marshal(r)
		if err != nil {
			w.failed = true
			return fmt.Errorf("jsonl: encode %s: %w", r.ID, err)
		}
		if _, err := w.writer.Write(append(line, '\n')); err != nil {
			w.failed = true
			return fmt.Errorf("jsonl: write %s: %w", r.ID, err)
		}
	}
	if err := w.writer.Flush(); err != nil {
		w.failed = true
		return err
	}
	return nil
}

// Close flushes the records and moves the file into place. After a failed
// Write the temporary file is discarded and the target is left untouched.
func (w *JSONLWriter) Close() error {
	tmp := w.file.Name()
	if w.failed {
		_ = w.file.Close()
		return os.Remove(tmp)
	}
	if err := w.writer.Flush(); err != nil {
		_ = w.file.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := w.file.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, w.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("jsonl: move into place: %w", err)
	}
	return nil
}
