// Command fiaetl turns FIADB inventory tables into plot condition summaries
// keyed by a persistent plot identity, and runs the fire model that consumes
// them.
package main

import (
	"fmt"
	"os"
	"sync"

	"github.com/spf13/cobra"

	"github.com/couchcryptid/forest-inventory-etl/internal/config"
	"github.com/couchcryptid/forest-inventory-etl/internal/observability"
)

var rootCmd = &cobra.Command{
	Use:   "fiaetl",
	Short: "Forest inventory ETL",
	Long: `fiaetl links repeated FIA plot measurements into persistent plot identities,
aggregates condition and tree records per state, and ships the summaries to
gzip JSON Lines files or Kafka.

Settings come from the environment (FIADB_PATH, STATES, SINK, ...); flags
override them.`,
	SilenceUsage: true,
}

// metrics registers with the default registry, so it is built at most once.
var metrics = sync.OnceValue(observability.NewMetrics)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig reads the environment and applies any flags the user set.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	overrides := map[string]*string{
		"fiadb":       &cfg.FIADBPath,
		"states":      &cfg.States,
		"sink":        &cfg.Sink,
		"output-dir":  &cfg.OutputDir,
		"id-column":   &cfg.PlotIDColumn,
		"prev-column": &cfg.PlotPrevColumn,
		"http-addr":   &cfg.HTTPAddr,
	}
	for name, dst := range overrides {
		if flags.Lookup(name) == nil || !flags.Changed(name) {
			continue
		}
		v, err := flags.GetString(name)
		if err != nil {
			return nil, err
		}
		*dst = v
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// addPipelineFlags registers the flags shared by aggregate and serve.
func addPipelineFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("fiadb", "", "path to the FIADB SQLite database (FIADB_PATH)")
	f.String("states", "", "comma-separated states to process, e.g. OR,WA or 41,53 (STATES)")
	f.String("sink", "", "where summaries go: file or kafka (SINK)")
	f.String("output-dir", "", "directory for gzip JSON Lines output (OUTPUT_DIR)")
	addIdentityFlags(cmd)
}

func addIdentityFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("id-column", "", "identity column of the PLOT table (PLOT_ID_COLUMN)")
	f.String("prev-column", "", "predecessor column of the PLOT table (PLOT_PREV_COLUMN)")
}
