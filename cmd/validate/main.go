// Command validate checks the gzip JSON Lines files written by the file sink.
// It verifies row shape, key uniqueness and ordering, value ranges, and,
// when the source database is given, that plt_uid partitions the plots
// exactly as the PLOT table's predecessor links do.
//
// Usage:
//
//	go run ./cmd/validate -dir data/out -fiadb data/fiadb.db
//
// -id-column and -prev-column must match the PLOT_ID_COLUMN and
// PLOT_PREV_COLUMN the output was produced with.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strconv"

	"github.com/klauspost/compress/gzip"

	"github.com/couchcryptid/forest-inventory-etl/internal/adapter/sqlite"
	"github.com/couchcryptid/forest-inventory-etl/internal/domain"
)

var fileRe = regexp.MustCompile(`^fia_(\d{2})\.jsonl\.gz$`)

// row mirrors one line of the file sink.
type row struct {
	RunID string `json:"run_id"`
	domain.PlotSummary
}

// stateFile is the parsed content of one output file.
type stateFile struct {
	name    string
	stateCD int
	rows    []row
}

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

func main() {
	dir := flag.String("dir", "data/out", "directory holding fia_<statecd>.jsonl.gz files")
	fiadb := flag.String("fiadb", "", "optional FIADB SQLite database to check identities against")
	idCol := flag.String("id-column", domain.PlotIdentityColumns.ID, "PLOT column holding the control number")
	prevCol := flag.String("prev-column", domain.PlotIdentityColumns.Prev, "PLOT column holding the previous control number")
	flag.Parse()

	os.Exit(run(*dir, *fiadb, domain.IdentityColumns{ID: *idCol, Prev: *prevCol}))
}

func run(dir, fiadb string, cols domain.IdentityColumns) int {
	fmt.Println("=== FIA Summary Validation ===")
	fmt.Println()

	files, err := loadDir(dir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load %s: %v\n", dir, err)
		return 1
	}
	if len(files) == 0 {
		fmt.Fprintf(os.Stderr, "FATAL: no output files in %s\n", dir)
		return 1
	}

	phases := []*phase{
		validateRows(files),
		validateKeys(files),
		validateRanges(files),
	}
	if fiadb != "" {
		phases = append(phases, validateIdentities(files, fiadb, cols))
	}

	fmt.Println()
	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Printf("  %-42s %s\n", p.name, status)
	}

	total := 0
	for _, f := range files {
		total += len(f.rows)
	}
	fmt.Println()
	fmt.Printf("Rows: %d across %d state file(s)\n", total, len(files))

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Printf("\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Printf("  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Println("\nAll validations passed.")
		return 0
	}
	fmt.Println("\nValidation FAILED.")
	return 1
}

// ── Data loading ──

func loadDir(dir string) ([]stateFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []stateFile
	for _, e := range entries {
		m := fileRe.FindStringSubmatch(e.Name())
		if m == nil || e.IsDir() {
			continue
		}
		st, _ := strconv.Atoi(m[1])
		rows, err := loadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", e.Name(), err)
		}
		files = append(files, stateFile{name: e.Name(), stateCD: st, rows: rows})
	}
	return files, nil
}

func loadFile(path string) ([]row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	zr, err := gzip.NewReader(f)
	if err != nil {
		return nil, err
	}
	defer zr.Close()

	var rows []row
	sc := bufio.NewScanner(zr)
	sc.Buffer(make([]byte, 64*1024), 1<<20)
	for n := 1; sc.Scan(); n++ {
		var r row
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil {
			return nil, fmt.Errorf("line %d: %w", n, err)
		}
		rows = append(rows, r)
	}
	return rows, sc.Err()
}

// ── Phase 1: Row Shape ──

func validateRows(files []stateFile) *phase {
	p := &phase{name: "Phase 1: Row Shape"}
	for _, f := range files {
		if domain.StateAbbr(f.stateCD) == "" {
			p.errorf("%s: unknown state code %d", f.name, f.stateCD)
		}
		runIDs := map[string]bool{}
		for i, r := range f.rows {
			if r.PltCN == "" {
				p.errorf("%s row %d: plt_cn is empty", f.name, i)
			}
			if r.CondID <= 0 {
				p.errorf("%s row %d: condid %d is not positive", f.name, i, r.CondID)
			}
			if r.StateCD != f.stateCD {
				p.errorf("%s row %d: statecd %d does not match the file", f.name, i, r.StateCD)
			}
			if r.ProcessedAt.IsZero() {
				p.errorf("%s row %d: processed_at is zero", f.name, i)
			}
			runIDs[r.RunID] = true
		}
		if len(runIDs) > 1 {
			p.errorf("%s: %d distinct run ids, want 1", f.name, len(runIDs))
		}
		if runIDs[""] {
			p.errorf("%s: run_id is empty", f.name)
		}
	}
	return p
}

// ── Phase 2: Keys ──

func validateKeys(files []stateFile) *phase {
	p := &phase{name: "Phase 2: Keys (unique, ordered)"}
	for _, f := range files {
		seen := map[domain.ConditionKey]bool{}
		for i, r := range f.rows {
			k := domain.ConditionKey{PltCN: r.PltCN, CondID: r.CondID}
			if seen[k] {
				p.errorf("%s row %d: duplicate key %s/%d", f.name, i, k.PltCN, k.CondID)
			}
			seen[k] = true

			if i == 0 {
				continue
			}
			prev := f.rows[i-1]
			if prev.PltCN > r.PltCN || (prev.PltCN == r.PltCN && prev.CondID >= r.CondID) {
				p.errorf("%s row %d: %s/%d sorts before %s/%d", f.name, i, r.PltCN, r.CondID, prev.PltCN, prev.CondID)
			}
		}
	}
	return p
}

// ── Phase 3: Value Ranges ──

func validateRanges(files []stateFile) *phase {
	p := &phase{name: "Phase 3: Value Ranges"}
	for _, f := range files {
		for i, r := range f.rows {
			pf := func(format string, args ...any) {
				p.errorf("%s row %d (%s/%d): "+format, append([]any{f.name, i, r.PltCN, r.CondID}, args...)...)
			}
			nonNegative := map[string]*float64{
				"dia": r.Dia, "ht": r.Ht, "totage": r.TotAge, "sitree": r.SITree,
				"biomass": r.Biomass, "balive": r.Stats.BALive,
				"stdage_cond": r.StdAge, "balive_cond": r.CondSummary.BALive,
			}
			for name, v := range nonNegative {
				if v != nil && *v < 0 {
					pf("%s is negative (%g)", name, *v)
				}
			}
			if v := r.CondPropUnadj; v != nil && (*v < 0 || *v > 1) {
				pf("condprop_unadj %g outside [0, 1]", *v)
			}
			if r.Lat != nil && (*r.Lat < -90 || *r.Lat > 90) {
				pf("lat %g out of range", *r.Lat)
			}
			if r.Lon != nil && (*r.Lon < -180 || *r.Lon > 180) {
				pf("lon %g out of range", *r.Lon)
			}
			if r.PltUID != nil && *r.PltUID < 0 {
				pf("plt_uid %d is negative", *r.PltUID)
			}
		}
	}
	return p
}

// ── Phase 4: Identities ──
// Re-resolves the PLOT table and checks that two rows share a plt_uid
// exactly when their plots are linked.

func validateIdentities(files []stateFile, fiadb string, cols domain.IdentityColumns) *phase {
	p := &phase{name: "Phase 4: Identities (vs FIADB)"}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx := context.Background()

	src, err := sqlite.Open(ctx, fiadb, cols, logger)
	if err != nil {
		p.errorf("open %s: %v", fiadb, err)
		return p
	}
	defer src.Close()

	for _, f := range files {
		batch, err := src.ExtractState(ctx, f.stateCD)
		if err != nil {
			p.errorf("%s: extract: %v", f.name, err)
			continue
		}
		records := make([]domain.Record, 0, len(batch.Plots))
		for _, pl := range batch.Plots {
			records = append(records, pl.Identity())
		}
		want, err := domain.ResolveIdentities(records)
		if err != nil {
			p.errorf("%s: resolve: %v", f.name, err)
			continue
		}
		checkPartition(p, f, want)
	}
	return p
}

func checkPartition(p *phase, f stateFile, want domain.IdentityMap) {
	gotToWant := map[int]int{}
	wantToGot := map[int]int{}
	for i, r := range f.rows {
		g, known := want.Lookup(r.PltCN)
		switch {
		case !known && r.PltUID != nil:
			p.errorf("%s row %d: plot %s is not in PLOT but has plt_uid %d", f.name, i, r.PltCN, *r.PltUID)
			continue
		case !known:
			continue
		case r.PltUID == nil:
			p.errorf("%s row %d: plot %s has no plt_uid", f.name, i, r.PltCN)
			continue
		}

		got := *r.PltUID
		if w, ok := gotToWant[got]; ok && w != g {
			p.errorf("%s row %d: plt_uid %d joins plots that are not linked", f.name, i, got)
		}
		if gg, ok := wantToGot[g]; ok && gg != got {
			p.errorf("%s row %d: linked plots split across plt_uid %d and %d", f.name, i, gg, got)
		}
		gotToWant[got] = g
		wantToGot[g] = got
	}

	fmt.Printf("  %s: %d rows, %d plot identities\n", f.name, len(f.rows), len(gotToWant))
}
