package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/storm-data-shared/retry"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/couchcryptid/forest-inventory-etl/internal/domain"
	"github.com/couchcryptid/forest-inventory-etl/internal/observability"
)

var tracer = otel.Tracer("github.com/couchcryptid/forest-inventory-etl/internal/pipeline")

// StateExtractor reads the inventory tables of one state from the source.
type StateExtractor interface {
	ExtractState(ctx context.Context, stateCD int) (domain.StateBatch, error)
}

// Aggregator reduces a state's inventory tables to condition summaries.
type Aggregator interface {
	Aggregate(ctx context.Context, batch domain.StateBatch) ([]domain.PlotSummary, error)
}

// BatchLoader writes the summaries of one state to the destination.
type BatchLoader interface {
	LoadBatch(ctx context.Context, batch domain.SummaryBatch) error
}

// Pipeline orchestrates the per-state extract-aggregate-load loop.
// States are processed one at a time.
type Pipeline struct {
	extractor  StateExtractor
	aggregator Aggregator
	loader     BatchLoader
	logger     *slog.Logger
	metrics    *observability.Metrics
	ready      atomic.Bool
	maxRetries int
}

// New creates a Pipeline with the given stages and observability.
func New(e StateExtractor, a Aggregator, l BatchLoader, logger *slog.Logger, metrics *observability.Metrics, maxRetries int) *Pipeline {
	return &Pipeline{
		extractor:  e,
		aggregator: a,
		loader:     l,
		logger:     logger,
		metrics:    metrics,
		maxRetries: maxRetries,
	}
}

// CheckReadiness returns nil once the pipeline has loaded at least one state,
// or an error describing why the service is not yet ready.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("pipeline has not loaded any state yet")
	}
	return nil
}

// Run processes each state in order. A failing state does not stop the run;
// all failures are returned together once every state has been attempted.
func (p *Pipeline) Run(ctx context.Context, states []int) error {
	runID := uuid.NewString()
	logger := p.logger.With("run_id", runID)
	logger.Info("pipeline started", "states", len(states))
	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)

	var errs []error
	for _, st := range states {
		if ctx.Err() != nil {
			logger.Info("pipeline stopping", "reason", ctx.Err())
			errs = append(errs, ctx.Err())
			break
		}

		if err := p.processState(ctx, runID, st, logger.With("state", st)); err != nil {
			p.metrics.StateErrors.Inc()
			var invalid *domain.InvalidRecordError
			if errors.As(err, &invalid) {
				p.metrics.InvalidRecords.Inc()
			}
			logger.Error("state failed", "state", st, "error", err)
			errs = append(errs, fmt.Errorf("state %02d: %w", st, err))
		}
	}

	logger.Info("pipeline finished", "failed", len(errs))
	return errors.Join(errs...)
}

// processState runs one extract-aggregate-load cycle.
func (p *Pipeline) processState(ctx context.Context, runID string, st int, logger *slog.Logger) (err error) {
	ctx, span := tracer.Start(ctx, "pipeline.state", trace.WithAttributes(
		attribute.Int("fia.statecd", st),
		attribute.String("fia.run_id", runID),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	start := time.Now()

	batch, err := p.extractWithRetry(ctx, st, logger)
	if err != nil {
		return fmt.Errorf("extract: %w", err)
	}
	if len(batch.Plots) == 0 {
		logger.Info("no plots for state, skipping")
		return nil
	}
	p.metrics.PlotsExtracted.Add(float64(len(batch.Plots)))

	rows, err := p.aggregator.Aggregate(ctx, batch)
	if err != nil {
		return fmt.Errorf("aggregate: %w", err)
	}

	if err := p.loader.LoadBatch(ctx, domain.SummaryBatch{RunID: runID, StateCD: st, Rows: rows}); err != nil {
		return fmt.Errorf("load: %w", err)
	}

	p.metrics.SummariesLoaded.Add(float64(len(rows)))
	p.metrics.StatesProcessed.Inc()
	p.metrics.StateDuration.Observe(time.Since(start).Seconds())
	p.ready.Store(true)
	span.SetAttributes(attribute.Int("fia.summaries", len(rows)))
	logger.Info("state loaded",
		"plots", len(batch.Plots),
		"conditions", len(batch.Conds),
		"trees", len(batch.Trees),
		"summaries", len(rows),
		"duration", time.Since(start),
	)
	return nil
}

// extractWithRetry retries failed extracts with exponential backoff: start at
// 200ms, double each retry, cap at 5s.
func (p *Pipeline) extractWithRetry(ctx context.Context, st int, logger *slog.Logger) (domain.StateBatch, error) {
	backoff := 200 * time.Millisecond
	maxBackoff := 5 * time.Second

	for attempt := 0; ; attempt++ {
		batch, err := p.extractor.ExtractState(ctx, st)
		if err == nil {
			return batch, nil
		}
		if ctx.Err() != nil || attempt >= p.maxRetries {
			return domain.StateBatch{}, err
		}
		logger.Warn("extract failed, retrying", "error", err, "attempt", attempt+1, "backoff", backoff)
		p.metrics.ExtractRetries.Inc()
		if !retry.SleepWithContext(ctx, backoff) {
			return domain.StateBatch{}, ctx.Err()
		}
		backoff = retry.NextBackoff(backoff, maxBackoff)
	}
}
