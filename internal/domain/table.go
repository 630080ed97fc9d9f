package domain

import (
	"fmt"
	"strings"
)

// IdentityColumns names the primary-key and predecessor columns of a table.
// The same resolver serves plot-level and tree-level identities.
type IdentityColumns struct {
	ID   string
	Prev string
}

var (
	// PlotIdentityColumns links a plot to its previous measurement.
	PlotIdentityColumns = IdentityColumns{ID: "CN", Prev: "PREV_PLT_CN"}

	// TreeIdentityColumns links a tree to its previous measurement.
	TreeIdentityColumns = IdentityColumns{ID: "CN", Prev: "PREV_TRE_CN"}
)

// Table is a header plus string cells, the shape of a delimited export.
type Table struct {
	Columns []string
	Rows    [][]string
}

// RecordsFromTable extracts identity records from a table. Predecessor cells
// that are empty or hold a missing-value marker become absent predecessors.
// An id cell of that kind fails with InvalidRecordError naming the column.
func RecordsFromTable(t Table, cols IdentityColumns) ([]Record, error) {
	idCol, prevCol := -1, -1
	for i, c := range t.Columns {
		switch strings.TrimSpace(c) {
		case cols.ID:
			idCol = i
		case cols.Prev:
			prevCol = i
		}
	}
	if idCol < 0 {
		return nil, fmt.Errorf("identity column %q not found", cols.ID)
	}
	if prevCol < 0 {
		return nil, fmt.Errorf("predecessor column %q not found", cols.Prev)
	}

	records := make([]Record, 0, len(t.Rows))
	for i, row := range t.Rows {
		id, ok := NormalizeID(cell(row, idCol))
		if !ok {
			return nil, &InvalidRecordError{Index: i, Reason: fmt.Sprintf("empty %s", cols.ID)}
		}
		records = append(records, NewRecord(id, cell(row, prevCol)))
	}
	return records, nil
}

func cell(row []string, i int) string {
	if i >= len(row) {
		return ""
	}
	return row[i]
}
