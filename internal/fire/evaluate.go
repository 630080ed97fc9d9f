package fire

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/ctessum/sparse"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/couchcryptid/forest-inventory-etl/internal/observability"
)

var tracer = otel.Tracer("github.com/couchcryptid/forest-inventory-etl/internal/fire")

// BurnedVar is the burned area variable returned by DataSource.BurnedArea.
const BurnedVar = "vlf"

// ClimateQuery selects yearly climate rasters. An empty Model reads the
// observed record; otherwise the projection of Model under Scenario.
type ClimateQuery struct {
	Model    string
	Scenario string
	Years    YearRange
	Vars     []string
	Coarsen  int
	Mask     *sparse.DenseArray // native grid; nil keeps every cell
}

// GroupQuery selects forest type group fractions.
type GroupQuery struct {
	Coarsen       int
	Mask          *sparse.DenseArray // native grid; nil keeps every cell
	AreaThreshold float64            // groups covering fewer native cells are dropped
}

// DataSource loads the gridded inputs of an evaluation. All rasters share
// one native grid before coarsening.
type DataSource interface {
	// LandCover returns the fraction of each coarsened cell whose land cover
	// class is in classes. Empty classes selects every non-zero class.
	LandCover(ctx context.Context, year int, classes []int, coarsen int) (*sparse.DenseArray, error)
	// ForestGroups returns group fractions with shape [g, ny, nx].
	ForestGroups(ctx context.Context, q GroupQuery) (*sparse.DenseArray, error)
	Climate(ctx context.Context, q ClimateQuery) (*Stack, error)
	// BurnedArea returns a stack holding BurnedVar for the query years.
	BurnedArea(ctx context.Context, q ClimateQuery) (*Stack, error)
}

// Scenario is the projected burn probability of one emissions scenario,
// with shape [len(Result.Targets), ny, nx].
type Scenario struct {
	Name string
	Data *sparse.DenseArray
}

// Result holds the evaluation outputs on the prediction grid.
type Result struct {
	Targets    []int
	Historical *sparse.DenseArray // [ny, nx]
	Scenarios  []Scenario
}

// Evaluator fits a model on historical burned area and evaluates it on
// historical and projected climate.
type Evaluator struct {
	src     DataSource
	fitter  Fitter
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewEvaluator creates an Evaluator.
func NewEvaluator(src DataSource, fitter Fitter, logger *slog.Logger, metrics *observability.Metrics) *Evaluator {
	return &Evaluator{src: src, fitter: fitter, logger: logger, metrics: metrics}
}

// Evaluate runs every stage of plan. All settings come from plan, so
// concurrent evaluations with different plans do not interfere.
func (e *Evaluator) Evaluate(ctx context.Context, plan Plan) (*Result, error) {
	if err := plan.Validate(); err != nil {
		return nil, fmt.Errorf("invalid plan: %w", err)
	}

	var (
		mask            *sparse.DenseArray
		climate, burned *Stack
		fitGroups       *sparse.DenseArray
		model           Predictor
	)

	err := e.stage(ctx, "load", func(ctx context.Context) (err error) {
		if mask, err = e.src.LandCover(ctx, plan.MaskYear, nil, 1); err != nil {
			return fmt.Errorf("land cover %d: %w", plan.MaskYear, err)
		}
		if fitGroups, err = e.src.ForestGroups(ctx, GroupQuery{
			Coarsen: plan.CoarsenFit, Mask: mask, AreaThreshold: plan.AreaThreshold,
		}); err != nil {
			return fmt.Errorf("forest groups: %w", err)
		}
		if climate, err = e.src.Climate(ctx, ClimateQuery{
			Years: plan.FitYears, Vars: plan.Vars, Coarsen: plan.CoarsenFit, Mask: mask,
		}); err != nil {
			return fmt.Errorf("climate %s: %w", plan.FitYears, err)
		}
		if burned, err = e.src.BurnedArea(ctx, ClimateQuery{
			Years: plan.FitYears, Coarsen: plan.CoarsenFit,
		}); err != nil {
			return fmt.Errorf("burned area %s: %w", plan.FitYears, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = e.stage(ctx, "fit", func(ctx context.Context) error {
		if !slices.Equal(climate.Years, burned.Years) {
			return fmt.Errorf("climate years %v do not match burned area years %v", climate.Years, burned.Years)
		}
		vlf, err := burned.Var(BurnedVar)
		if err != nil {
			return err
		}
		model, err = e.fitter.Fit(ctx, climate, vlf, fitGroups)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("fit: %w", err)
	}

	res := &Result{Targets: plan.TargetYears()}
	var finalMask, groups *sparse.DenseArray

	err = e.stage(ctx, "historical", func(ctx context.Context) error {
		cover, err := e.src.LandCover(ctx, plan.FinalMask.Year, plan.FinalMask.Classes, plan.CoarsenPredict)
		if err != nil {
			return fmt.Errorf("land cover %d: %w", plan.FinalMask.Year, err)
		}
		finalMask = Binarize(cover, plan.FinalMask.Threshold)

		if groups, err = e.src.ForestGroups(ctx, GroupQuery{
			Coarsen: plan.CoarsenPredict, Mask: mask, AreaThreshold: plan.AreaThreshold,
		}); err != nil {
			return fmt.Errorf("forest groups: %w", err)
		}
		hist, err := e.src.Climate(ctx, ClimateQuery{
			Years: plan.HistoricalYears, Vars: plan.Vars, Coarsen: plan.CoarsenPredict, Mask: mask,
		})
		if err != nil {
			return fmt.Errorf("climate %s: %w", plan.HistoricalYears, err)
		}
		res.Historical, err = e.project(model, hist, groups, finalMask)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("historical: %w", err)
	}

	for _, scenario := range plan.Scenarios {
		err := e.stage(ctx, "scenario", func(ctx context.Context) error {
			trace.SpanFromContext(ctx).SetAttributes(attribute.String("fire.scenario", scenario))
			ny, nx := spatial(res.Historical)
			data := sparse.ZerosDense(len(res.Targets), ny, nx)
			for i, target := range res.Targets {
				window := plan.Window(target)
				proj, err := e.src.Climate(ctx, ClimateQuery{
					Model: plan.CMIPModel, Scenario: scenario, Years: window,
					Vars: plan.Vars, Coarsen: plan.CoarsenPredict,
				})
				if err != nil {
					return fmt.Errorf("climate %s %s: %w", scenario, window, err)
				}
				mean, err := e.project(model, proj, groups, finalMask)
				if err != nil {
					return fmt.Errorf("target %d: %w", target, err)
				}
				copy(data.Elements[i*ny*nx:(i+1)*ny*nx], mean.Elements)
			}
			res.Scenarios = append(res.Scenarios, Scenario{Name: plan.ScenarioName(scenario), Data: data})
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("scenario %s: %w", scenario, err)
		}
	}
	return res, nil
}

// project predicts climate, averages over time, and applies the final mask.
func (e *Evaluator) project(model Predictor, climate *Stack, groups, finalMask *sparse.DenseArray) (*sparse.DenseArray, error) {
	if len(climate.Years) == 0 {
		return nil, errors.New("no climate years loaded")
	}
	prob, err := model.Predict(climate, groups)
	if err != nil {
		return nil, err
	}
	if !sameGrid(prob, finalMask) {
		return nil, fmt.Errorf("prediction grid %v does not match mask %v", prob.Shape, finalMask.Shape)
	}
	return multiplyPlane(TimeMean(prob), finalMask), nil
}

// stage runs fn inside a span and records its duration.
func (e *Evaluator) stage(ctx context.Context, name string, fn func(context.Context) error) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}
	ctx, span := tracer.Start(ctx, "fire."+name)
	start := time.Now()
	defer func() {
		d := time.Since(start)
		e.metrics.FireStageSeconds.WithLabelValues(name).Observe(d.Seconds())
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		e.logger.Info("fire stage finished", "stage", name, "duration", d, "ok", err == nil)
	}()
	return fn(ctx)
}
