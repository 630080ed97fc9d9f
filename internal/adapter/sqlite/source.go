package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"regexp"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.

	"github.com/couchcryptid/forest-inventory-etl/internal/domain"
)

// identRe restricts configurable column names to plain SQL identifiers.
var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Source reads FIADB tables from a SQLite database.
// It implements pipeline.StateExtractor.
type Source struct {
	db     *sql.DB
	cols   domain.IdentityColumns
	logger *slog.Logger
}

// Open opens the FIADB file at path read-only. cols names the PLOT columns
// holding the control number and the previous-measurement control number.
func Open(ctx context.Context, path string, cols domain.IdentityColumns, logger *slog.Logger) (*Source, error) {
	if !identRe.MatchString(cols.ID) || !identRe.MatchString(cols.Prev) {
		return nil, fmt.Errorf("fiadb: invalid identity columns %q, %q", cols.ID, cols.Prev)
	}

	db, err := sql.Open("sqlite", "file:"+path+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("fiadb: open database: %w", err)
	}

	// One connection keeps the PRAGMA below in effect for every query.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("fiadb: open %s: %w", path, err)
	}

	logger.Info("fiadb opened", "path", path, "id_column", cols.ID, "prev_column", cols.Prev)
	return &Source{db: db, cols: cols, logger: logger}, nil
}

// Close releases the database handle.
func (s *Source) Close() error {
	return s.db.Close()
}

// ExtractState reads the PLOT, COND and TREE rows of one state inside a
// single read transaction so the three tables are consistent.
func (s *Source) ExtractState(ctx context.Context, stateCD int) (domain.StateBatch, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return domain.StateBatch{}, fmt.Errorf("fiadb: begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // read-only

	batch := domain.StateBatch{StateCD: stateCD}
	if batch.Plots, err = s.plots(ctx, tx, stateCD); err != nil {
		return domain.StateBatch{}, err
	}
	if len(batch.Plots) == 0 {
		return batch, nil
	}
	if batch.Conds, err = conds(ctx, tx, stateCD); err != nil {
		return domain.StateBatch{}, err
	}
	if batch.Trees, err = trees(ctx, tx, stateCD); err != nil {
		return domain.StateBatch{}, err
	}

	s.logger.Debug("state extracted",
		"state", stateCD,
		"plots", len(batch.Plots),
		"conditions", len(batch.Conds),
		"trees", len(batch.Trees),
	)
	return batch, nil
}

func (s *Source) plots(ctx context.Context, tx *sql.Tx, stateCD int) ([]domain.PlotRecord, error) {
	q := fmt.Sprintf(`
		SELECT CAST(%s AS TEXT), CAST(%s AS TEXT), STATECD, INVYR, LAT, LON, ELEV
		FROM PLOT WHERE STATECD = ?`, s.cols.ID, s.cols.Prev)
	rows, err := tx.QueryContext(ctx, q, stateCD)
	if err != nil {
		return nil, fmt.Errorf("fiadb: query PLOT: %w", err)
	}
	defer rows.Close()

	var out []domain.PlotRecord
	for rows.Next() {
		var (
			cn, prev       sql.NullString
			statecd, invyr sql.NullInt64
			lat, lon, elev sql.NullFloat64
		)
		if err := rows.Scan(&cn, &prev, &statecd, &invyr, &lat, &lon, &elev); err != nil {
			return nil, fmt.Errorf("fiadb: scan PLOT: %w", err)
		}
		out = append(out, domain.PlotRecord{
			CN:        cn.String,
			PrevPltCN: nullID(prev),
			StateCD:   int(statecd.Int64),
			InvYr:     nullInt(invyr),
			Lat:       nullFloat(lat),
			Lon:       nullFloat(lon),
			Elev:      nullFloat(elev),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("fiadb: read PLOT: %w", err)
	}
	return out, nil
}

func conds(ctx context.Context, tx *sql.Tx, stateCD int) ([]domain.CondRecord, error) {
	const q = `
		SELECT CAST(PLT_CN AS TEXT), CONDID, STDAGE, BALIVE, SICOND, SISP,
		       FORTYPCD, DSTRBCD1, DSTRBYR1, CONDPROP_UNADJ
		FROM COND WHERE STATECD = ?`
	rows, err := tx.QueryContext(ctx, q, stateCD)
	if err != nil {
		return nil, fmt.Errorf("fiadb: query COND: %w", err)
	}
	defer rows.Close()

	var out []domain.CondRecord
	for rows.Next() {
		var (
			plt    sql.NullString
			condID sql.NullInt64
			v      [8]sql.NullFloat64
		)
		if err := rows.Scan(&plt, &condID, &v[0], &v[1], &v[2], &v[3], &v[4], &v[5], &v[6], &v[7]); err != nil {
			return nil, fmt.Errorf("fiadb: scan COND: %w", err)
		}
		out = append(out, domain.CondRecord{
			PltCN:         plt.String,
			CondID:        int(condID.Int64),
			StdAge:        nullFloat(v[0]),
			BALive:        nullFloat(v[1]),
			SICond:        nullFloat(v[2]),
			SISP:          nullFloat(v[3]),
			ForTypCD:      nullFloat(v[4]),
			DstrbCD1:      nullFloat(v[5]),
			DstrbYr1:      nullFloat(v[6]),
			CondPropUnadj: nullFloat(v[7]),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("fiadb: read COND: %w", err)
	}
	return out, nil
}

func trees(ctx context.Context, tx *sql.Tx, stateCD int) ([]domain.TreeRecord, error) {
	const q = `
		SELECT CAST(CN AS TEXT), CAST(PLT_CN AS TEXT), CONDID,
		       STATUSCD, DIACHECK, DIA, HT, TOTAGE, SITREE, TPA_UNADJ, CARBON_AG
		FROM TREE WHERE STATECD = ?`
	rows, err := tx.QueryContext(ctx, q, stateCD)
	if err != nil {
		return nil, fmt.Errorf("fiadb: query TREE: %w", err)
	}
	defer rows.Close()

	var out []domain.TreeRecord
	for rows.Next() {
		var (
			cn, plt                    sql.NullString
			condID, status, diaCheck   sql.NullInt64
			dia, ht, age, si, tpa, cag sql.NullFloat64
		)
		if err := rows.Scan(&cn, &plt, &condID, &status, &diaCheck,
			&dia, &ht, &age, &si, &tpa, &cag); err != nil {
			return nil, fmt.Errorf("fiadb: scan TREE: %w", err)
		}
		out = append(out, domain.TreeRecord{
			CN:       cn.String,
			PltCN:    plt.String,
			CondID:   int(condID.Int64),
			StatusCD: nullInt(status),
			DiaCheck: nullInt(diaCheck),
			Dia:      nullFloat(dia),
			Ht:       nullFloat(ht),
			TotAge:   nullFloat(age),
			SITree:   nullFloat(si),
			TPAUnadj: nullFloat(tpa),
			CarbonAG: nullFloat(cag),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("fiadb: read TREE: %w", err)
	}
	return out, nil
}

// nullID reads a control-number column. Blanks and missing-value markers
// read as absent.
func nullID(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	id, ok := domain.NormalizeID(v.String)
	if !ok {
		return nil
	}
	return &id
}

func nullInt(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	n := int(v.Int64)
	return &n
}

func nullFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	return &v.Float64
}
