package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/couchcryptid/forest-inventory-etl/internal/adapter/httpadapter"
	"github.com/couchcryptid/forest-inventory-etl/internal/domain"
	"github.com/couchcryptid/forest-inventory-etl/internal/observability"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve health, metrics and identity resolution over HTTP",
	Long: `serve starts the HTTP server and, when states are configured, runs one
aggregation pass in the background. /readyz reports ready once a state has
been loaded. The server keeps running until SIGINT or SIGTERM.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		states, err := domain.ParseStates(cfg.States)
		if err != nil {
			return err
		}

		logger := observability.NewLogger(cfg)

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		p, closeAll, err := newPipeline(ctx, cfg, logger, metrics())
		if err != nil {
			return err
		}
		defer closeAll()

		srv := httpadapter.NewServer(cfg.HTTPAddr, p, logger)

		go func() {
			if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("http server error", "error", err)
				stop()
			}
		}()
		logger.Info("http server listening", "addr", cfg.HTTPAddr)

		done := make(chan struct{})
		if len(states) > 0 {
			go func() {
				defer close(done)
				if err := p.Run(ctx, states); err != nil {
					logger.Error("pipeline error", "error", err)
				}
			}()
		} else {
			close(done)
			logger.Info("no states configured, serving identity resolution only")
		}

		<-ctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("http server shutdown error", "error", err)
		}
		select {
		case <-done:
		case <-shutdownCtx.Done():
			logger.Warn("pipeline did not stop before the shutdown timeout")
		}

		logger.Info("shutdown complete")
		return nil
	},
}

func init() {
	addPipelineFlags(serveCmd)
	serveCmd.Flags().String("http-addr", "", "listen address (HTTP_ADDR)")
	rootCmd.AddCommand(serveCmd)
}
