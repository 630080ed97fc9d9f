package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/couchcryptid/forest-inventory-etl/internal/adapter/file"
	kafkaadapter "github.com/couchcryptid/forest-inventory-etl/internal/adapter/kafka"
	"github.com/couchcryptid/forest-inventory-etl/internal/adapter/sqlite"
	"github.com/couchcryptid/forest-inventory-etl/internal/config"
	"github.com/couchcryptid/forest-inventory-etl/internal/domain"
	"github.com/couchcryptid/forest-inventory-etl/internal/observability"
	"github.com/couchcryptid/forest-inventory-etl/internal/pipeline"
)

var aggregateCmd = &cobra.Command{
	Use:   "aggregate",
	Short: "Aggregate the configured states once and exit",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		states, err := domain.ParseStates(cfg.States)
		if err != nil {
			return err
		}
		if len(states) == 0 {
			return errors.New("no states to process: set STATES or --states")
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		logger := observability.NewLogger(cfg)
		p, closeAll, err := newPipeline(ctx, cfg, logger, metrics())
		if err != nil {
			return err
		}
		defer closeAll()

		return p.Run(ctx, states)
	},
}

func init() {
	addPipelineFlags(aggregateCmd)
	rootCmd.AddCommand(aggregateCmd)
}

type loader interface {
	pipeline.BatchLoader
	Close() error
}

// newPipeline wires the SQLite source and the configured sink. The returned
// func closes both.
func newPipeline(ctx context.Context, cfg *config.Config, logger *slog.Logger, m *observability.Metrics) (*pipeline.Pipeline, func(), error) {
	cols := domain.IdentityColumns{ID: cfg.PlotIDColumn, Prev: cfg.PlotPrevColumn}
	src, err := sqlite.Open(ctx, cfg.FIADBPath, cols, logger)
	if err != nil {
		return nil, nil, err
	}

	var sink loader
	switch cfg.Sink {
	case config.SinkKafka:
		sink = kafkaadapter.NewWriter(cfg, logger)
		logger.Info("writing summaries to kafka", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaSinkTopic)
	default:
		w, err := file.NewWriter(cfg.OutputDir, logger)
		if err != nil {
			src.Close()
			return nil, nil, fmt.Errorf("output dir: %w", err)
		}
		sink = w
		logger.Info("writing summaries to files", "dir", cfg.OutputDir)
	}

	p := pipeline.New(src, pipeline.NewAggregator(logger, m), sink, logger, m, cfg.ExtractMaxRetries)
	closeAll := func() {
		if err := sink.Close(); err != nil {
			logger.Error("sink close error", "error", err)
		}
		if err := src.Close(); err != nil {
			logger.Error("fiadb close error", "error", err)
		}
	}
	return p, closeAll, nil
}
