package main

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/couchcryptid/forest-inventory-etl/internal/domain"
	"github.com/couchcryptid/forest-inventory-etl/internal/observability"
)

var uidsCmd = &cobra.Command{
	Use:   "uids",
	Short: "Resolve persistent identities for a CSV export",
	Long: `uids reads a CSV export with a header row, links every row to its
predecessor, and writes "<id column>,uid" for each input row to stdout.
Use --id-column CN --prev-column PREV_TRE_CN for the TREE table.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		input, _ := cmd.Flags().GetString("input")

		in := cmd.InOrStdin()
		if input != "-" {
			f, err := os.Open(input)
			if err != nil {
				return err
			}
			defer f.Close()
			in = f
		}

		cols := domain.IdentityColumns{ID: cfg.PlotIDColumn, Prev: cfg.PlotPrevColumn}
		stats, err := resolveCSV(in, cmd.OutOrStdout(), cols)
		if err != nil {
			return err
		}
		observability.NewLogger(cfg).Info("identities resolved",
			"rows", stats.rows, "ids", stats.ids, "groups", stats.groups)
		return nil
	},
}

func init() {
	uidsCmd.Flags().String("input", "-", `CSV file to read, or "-" for stdin`)
	addIdentityFlags(uidsCmd)
	rootCmd.AddCommand(uidsCmd)
}

type uidStats struct {
	rows, ids, groups int
}

// resolveCSV resolves identities for a CSV table and writes one id,uid row
// per input row, in input order.
func resolveCSV(r io.Reader, w io.Writer, cols domain.IdentityColumns) (uidStats, error) {
	all, err := csv.NewReader(r).ReadAll()
	if err != nil {
		return uidStats{}, fmt.Errorf("read csv: %w", err)
	}
	if len(all) == 0 {
		return uidStats{}, errors.New("read csv: missing header row")
	}

	records, err := domain.RecordsFromTable(domain.Table{Columns: all[0], Rows: all[1:]}, cols)
	if err != nil {
		return uidStats{}, err
	}
	ids, err := domain.ResolveIdentities(records)
	if err != nil {
		return uidStats{}, err
	}

	cw := csv.NewWriter(w)
	if err := cw.Write([]string{cols.ID, "uid"}); err != nil {
		return uidStats{}, err
	}
	for _, rec := range records {
		g, _ := ids.Lookup(rec.ID)
		if err := cw.Write([]string{rec.ID, strconv.Itoa(g)}); err != nil {
			return uidStats{}, err
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return uidStats{}, fmt.Errorf("write csv: %w", err)
	}
	return uidStats{rows: len(records), ids: ids.Len(), groups: ids.Groups()}, nil
}
