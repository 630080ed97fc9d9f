// Command genmock writes a synthetic FIADB SQLite database for local runs and
// tests. Plots are remeasured over several inventory cycles so the identity
// resolver sees long chains, plots entering mid-survey, predecessors that
// point outside the database, and the occasional self-referencing record.
//
// Usage:
//
//	go run ./cmd/genmock -out data/fiadb.db -states OR,WA -plots 500 -cycles 3
package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log"
	"math/rand/v2"
	"os"

	_ "modernc.org/sqlite"

	"github.com/couchcryptid/forest-inventory-etl/internal/domain"
)

const schema = `
CREATE TABLE PLOT (CN TEXT PRIMARY KEY, PREV_PLT_CN TEXT, STATECD INTEGER, INVYR INTEGER,
                   LAT REAL, LON REAL, ELEV REAL);
CREATE TABLE COND (PLT_CN TEXT, CONDID INTEGER, STATECD INTEGER, STDAGE REAL, BALIVE REAL,
                   SICOND REAL, SISP REAL, FORTYPCD REAL, DSTRBCD1 REAL, DSTRBYR1 REAL,
                   CONDPROP_UNADJ REAL);
CREATE TABLE TREE (CN TEXT PRIMARY KEY, PLT_CN TEXT, PREV_TRE_CN TEXT, CONDID INTEGER,
                   STATECD INTEGER, STATUSCD INTEGER, DIACHECK INTEGER, DIA REAL, HT REAL,
                   TOTAGE REAL, SITREE REAL, TPA_UNADJ REAL, CARBON_AG REAL);
CREATE INDEX plot_state ON PLOT (STATECD);
CREATE INDEX cond_state ON COND (STATECD);
CREATE INDEX tree_state ON TREE (STATECD);
`

// Fractions of plots that start with an odd predecessor.
const (
	danglingRate = 0.05
	selfLoopRate = 0.01
	lateRate     = 0.10 // first measured in the second cycle
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	out := flag.String("out", "data/fiadb.db", "SQLite database to create")
	statesFlag := flag.String("states", "OR,WA", "comma-separated states to generate")
	plots := flag.Int("plots", 200, "plot locations per state")
	cycles := flag.Int("cycles", 3, "inventory cycles per plot")
	seed := flag.Uint64("seed", 1, "random seed")
	flag.Parse()

	states, err := domain.ParseStates(*statesFlag)
	if err != nil {
		return err
	}
	if len(states) == 0 || *plots <= 0 || *cycles <= 0 {
		flag.Usage()
		return errors.New("need at least one state, plot and cycle")
	}

	if err := os.Remove(*out); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	db, err := sql.Open("sqlite", *out)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx := context.Background()
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}

	g := &generator{rng: rand.New(rand.NewPCG(*seed, *seed^0x5eed))}
	for _, st := range states {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		stats, err := g.state(ctx, tx, st, *plots, *cycles)
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("state %s: %w", domain.StateAbbr(st), err)
		}
		if err := tx.Commit(); err != nil {
			return err
		}
		log.Printf("%s: %d plot rows, %d cond rows, %d tree rows, %d plot identities",
			domain.StateAbbr(st), stats.plots, stats.conds, stats.trees, stats.groups)
	}
	log.Printf("wrote %s", *out)
	return nil
}

type stateStats struct {
	plots, conds, trees, groups int
}

type generator struct {
	rng *rand.Rand
	seq int
}

func (g *generator) cn(st int) string {
	g.seq++
	return fmt.Sprintf("%d%010d", st, g.seq)
}

// state writes every measurement of one state and resolves the plot chains
// it produced so the log shows how many identities aggregation should find.
func (g *generator) state(ctx context.Context, tx *sql.Tx, st, plots, cycles int) (stateStats, error) {
	var stats stateStats
	var records []domain.Record

	for p := 0; p < plots; p++ {
		lat := 42 + g.rng.Float64()*7
		lon := -124 + g.rng.Float64()*8
		elev := float64(g.rng.IntN(3000))

		first := 0
		if g.rng.Float64() < lateRate && cycles > 1 {
			first = 1
		}
		prevPlot := ""
		prevTrees := map[string]string{}
		for c := first; c < cycles; c++ {
			cn := g.cn(st)
			if c == first {
				switch r := g.rng.Float64(); {
				case r < danglingRate:
					prevPlot = g.cn(st) // never written
				case r < danglingRate+selfLoopRate:
					prevPlot = cn
				}
			}
			invyr := 2001 + 10*c + g.rng.IntN(3)
			if _, err := tx.ExecContext(ctx, `INSERT INTO PLOT VALUES (?, ?, ?, ?, ?, ?, ?)`,
				cn, nullable(prevPlot), st, invyr, lat, lon, elev); err != nil {
				return stats, err
			}
			records = append(records, domain.NewRecord(cn, prevPlot))
			stats.plots++

			nconds := 1 + g.rng.IntN(2)
			for condID := 1; condID <= nconds; condID++ {
				if err := g.cond(ctx, tx, st, cn, condID, invyr, 1/float64(nconds)); err != nil {
					return stats, err
				}
				stats.conds++

				n, err := g.trees(ctx, tx, st, cn, condID, c, prevTrees)
				if err != nil {
					return stats, err
				}
				stats.trees += n
			}
			prevPlot = cn
		}
	}

	ids, err := domain.ResolveIdentities(records)
	if err != nil {
		return stats, err
	}
	stats.groups = ids.Groups()
	return stats, nil
}

func (g *generator) cond(ctx context.Context, tx *sql.Tx, st int, plt string, condID, invyr int, prop float64) error {
	var dstrbCD, dstrbYr any
	if g.rng.Float64() < 0.15 {
		dstrbCD = []int{10, 30, 50, 80}[g.rng.IntN(4)]
		dstrbYr = invyr - 1 - g.rng.IntN(5)
	} else {
		dstrbCD = 0
	}
	stdAge := 20 + g.rng.IntN(180)
	baLive := 40 + g.rng.Float64()*200
	siCond := 50 + g.rng.IntN(90)
	sisp := []int{202, 122, 17}[g.rng.IntN(3)]
	forTyp := []int{201, 221, 261, 301}[g.rng.IntN(4)]
	_, err := tx.ExecContext(ctx, `INSERT INTO COND VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		plt, condID, st, stdAge, baLive, siCond, sisp, forTyp, dstrbCD, dstrbYr, prop)
	return err
}

// trees writes the live and dead trees of a condition. prev maps a tree's
// slot to the CN it had in the previous cycle.
func (g *generator) trees(ctx context.Context, tx *sql.Tx, st int, plt string, condID, cycle int, prev map[string]string) (int, error) {
	n := 2 + g.rng.IntN(6)
	for i := 0; i < n; i++ {
		slot := fmt.Sprintf("%d/%d", condID, i)
		cn := g.cn(st)

		status := 1
		if g.rng.Float64() < 0.1 {
			status = 2
		}
		dia := 1 + g.rng.Float64()*30 + float64(cycle)*1.5
		ht := 10 + dia*3
		if _, err := tx.ExecContext(ctx, `INSERT INTO TREE VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			cn, plt, nullable(prev[slot]), condID, st, status, 0,
			dia, ht, 20+g.rng.IntN(150), 50+g.rng.IntN(90), 6.018, dia*dia*0.8,
		); err != nil {
			return i, err
		}
		prev[slot] = cn
	}
	return n, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
