package file

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/gzip"

	"github.com/couchcryptid/forest-inventory-etl/internal/domain"
)

// line is one JSON object in the output file.
type line struct {
	RunID string `json:"run_id"`
	domain.PlotSummary
}

// Writer stores each state's summaries as gzip-compressed JSON lines in
// OUTPUT_DIR/fia_<statecd>.jsonl.gz. It implements pipeline.BatchLoader.
type Writer struct {
	dir    string
	logger *slog.Logger
}

// NewWriter creates the output directory if needed.
func NewWriter(dir string, logger *slog.Logger) (*Writer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	return &Writer{dir: dir, logger: logger}, nil
}

// Path returns the output file of a state.
func (w *Writer) Path(stateCD int) string {
	return filepath.Join(w.dir, fmt.Sprintf("fia_%02d.jsonl.gz", stateCD))
}

// LoadBatch replaces the state's output file. The file is written under a
// temporary name and renamed once complete, so readers never see a partial
// file.
func (w *Writer) LoadBatch(ctx context.Context, batch domain.SummaryBatch) (err error) {
	tmp, err := os.CreateTemp(w.dir, ".fia-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	buf := bufio.NewWriter(tmp)
	zw := gzip.NewWriter(buf)
	enc := json.NewEncoder(zw)
	for i := range batch.Rows {
		if i%1000 == 0 && ctx.Err() != nil {
			return ctx.Err()
		}
		if err := enc.Encode(line{RunID: batch.RunID, PlotSummary: batch.Rows[i]}); err != nil {
			return fmt.Errorf("encode summary %s/%d: %w", batch.Rows[i].PltCN, batch.Rows[i].CondID, err)
		}
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("close gzip stream: %w", err)
	}
	if err := buf.Flush(); err != nil {
		return fmt.Errorf("flush output: %w", err)
	}
	// CreateTemp opens the file 0600; output is meant to be world-readable.
	if err := tmp.Chmod(0o644); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}

	path := w.Path(batch.StateCD)
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename output: %w", err)
	}
	w.logger.Debug("summaries written", "path", path, "rows", len(batch.Rows))
	return nil
}

// Close is a no-op; every batch is flushed in LoadBatch.
func (w *Writer) Close() error {
	return nil
}
