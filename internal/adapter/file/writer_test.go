package file

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/forest-inventory-etl/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func readLines(t *testing.T, path string) []map[string]any {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	zr, err := gzip.NewReader(f)
	require.NoError(t, err)
	defer zr.Close()

	var out []map[string]any
	sc := bufio.NewScanner(zr)
	for sc.Scan() {
		var m map[string]any
		require.NoError(t, json.Unmarshal(sc.Bytes(), &m))
		out = append(out, m)
	}
	require.NoError(t, sc.Err())
	return out
}

func TestWriter_LoadBatch(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	w, err := NewWriter(dir, discardLogger())
	require.NoError(t, err)

	uid, dia, balive := 3, 12.5, 40.0
	batch := domain.SummaryBatch{
		RunID:   "run-1",
		StateCD: 6,
		Rows: []domain.PlotSummary{
			{
				PltCN:       "100",
				CondID:      1,
				StateCD:     6,
				CondSummary: domain.CondSummary{BALive: &balive},
				Stats:       domain.Stats{Dia: &dia},
				PltUID:      &uid,
				ProcessedAt: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
			},
			{PltCN: "200", CondID: 2, StateCD: 6},
		},
	}

	require.NoError(t, w.LoadBatch(context.Background(), batch))

	path := w.Path(6)
	assert.Equal(t, filepath.Join(dir, "fia_06.jsonl.gz"), path)

	lines := readLines(t, path)
	require.Len(t, lines, 2)

	assert.Equal(t, "run-1", lines[0]["run_id"])
	assert.Equal(t, "100", lines[0]["plt_cn"])
	assert.InDelta(t, 1, lines[0]["condid"], 0)
	assert.InDelta(t, 3, lines[0]["plt_uid"], 0)
	assert.InDelta(t, 12.5, lines[0]["dia"], 0)
	assert.InDelta(t, 40, lines[0]["balive_cond"], 0)
	assert.Nil(t, lines[0]["balive"])
	assert.Equal(t, "2024-01-02T03:04:05Z", lines[0]["processed_at"])

	assert.Nil(t, lines[1]["plt_uid"])

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o644), info.Mode().Perm())
}

func TestWriter_LoadBatch_ReplacesFile(t *testing.T) {
	w, err := NewWriter(t.TempDir(), discardLogger())
	require.NoError(t, err)
	ctx := context.Background()

	first := domain.SummaryBatch{RunID: "a", StateCD: 41, Rows: []domain.PlotSummary{{PltCN: "1"}, {PltCN: "2"}}}
	second := domain.SummaryBatch{RunID: "b", StateCD: 41, Rows: []domain.PlotSummary{{PltCN: "3"}}}
	require.NoError(t, w.LoadBatch(ctx, first))
	require.NoError(t, w.LoadBatch(ctx, second))

	lines := readLines(t, w.Path(41))
	require.Len(t, lines, 1)
	assert.Equal(t, "b", lines[0]["run_id"])

	entries, err := os.ReadDir(w.dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}

func TestWriter_LoadBatch_Canceled(t *testing.T) {
	w, err := NewWriter(t.TempDir(), discardLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err = w.LoadBatch(ctx, domain.SummaryBatch{StateCD: 41, Rows: []domain.PlotSummary{{PltCN: "1"}}})
	require.ErrorIs(t, err, context.Canceled)

	_, statErr := os.Stat(w.Path(41))
	assert.True(t, os.IsNotExist(statErr))

	entries, err := os.ReadDir(w.dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
