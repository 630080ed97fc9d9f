package pipeline

import (
	"context"
	"log/slog"

	"github.com/couchcryptid/forest-inventory-etl/internal/domain"
	"github.com/couchcryptid/forest-inventory-etl/internal/observability"
)

// PlotAggregator implements Aggregator using the domain aggregation functions.
type PlotAggregator struct {
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewAggregator creates a PlotAggregator.
func NewAggregator(logger *slog.Logger, metrics *observability.Metrics) *PlotAggregator {
	return &PlotAggregator{
		logger:  logger,
		metrics: metrics,
	}
}

func (a *PlotAggregator) Aggregate(_ context.Context, batch domain.StateBatch) ([]domain.PlotSummary, error) {
	rows, err := domain.AggregateState(batch)
	if err != nil {
		return nil, err
	}

	chains := make(map[int]struct{})
	for _, r := range rows {
		if r.PltUID != nil {
			chains[*r.PltUID] = struct{}{}
		}
	}
	a.metrics.IdentityGroups.Observe(float64(len(chains)))
	a.logger.Debug("state aggregated",
		"state", batch.StateCD,
		"summaries", len(rows),
		"plot_chains", len(chains),
	)
	return rows, nil
}
