package main

import (
	"errors"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/couchcryptid/forest-inventory-etl/internal/adapter/netcdf"
	"github.com/couchcryptid/forest-inventory-etl/internal/fire"
	"github.com/couchcryptid/forest-inventory-etl/internal/observability"
)

var fireCmd = &cobra.Command{
	Use:   "fire",
	Short: "Fit the fire model and project burn probability",
	Long: `fire fits the baseline burn probability model on observed climate and
burned area, then projects it over the historical period and every CMIP
scenario. Inputs are NetCDF files in --data-dir; see the netcdf adapter for
the expected names. Without --plan the built-in defaults are used.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		dataDir, _ := cmd.Flags().GetString("data-dir")
		planPath, _ := cmd.Flags().GetString("plan")
		out, _ := cmd.Flags().GetString("out")
		if dataDir == "" {
			return errors.New("--data-dir is required")
		}

		plan := fire.DefaultPlan()
		if planPath != "" {
			if plan, err = fire.LoadPlan(planPath); err != nil {
				return err
			}
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		logger := observability.NewLogger(cfg)
		ev := fire.NewEvaluator(netcdf.NewSource(dataDir, logger), fire.NewLogisticFitter(plan.Vars), logger, metrics())
		res, err := ev.Evaluate(ctx, plan)
		if err != nil {
			return err
		}
		if err := netcdf.WriteResult(out, res); err != nil {
			return err
		}
		logger.Info("fire projection written", "path", out, "scenarios", len(res.Scenarios), "targets", len(res.Targets))
		return nil
	},
}

func init() {
	f := fireCmd.Flags()
	f.String("data-dir", "", "directory holding the NetCDF inputs")
	f.String("plan", "", "YAML evaluation plan; defaults apply to omitted fields")
	f.String("out", "fire.nc", "NetCDF file to write")
	rootCmd.AddCommand(fireCmd)
}
