package fire

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/ctessum/sparse"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/optimize"
	"gonum.org/v1/gonum/stat"
)

// Fitter trains a burn probability model. climate variables and burned
// have shape [t, ny, nx]; groups holds the fraction of each forest type
// group per cell with shape [g, ny, nx].
type Fitter interface {
	Fit(ctx context.Context, climate *Stack, burned, groups *sparse.DenseArray) (Predictor, error)
}

// Predictor returns the burn probability of every cell and year of climate,
// with shape [t, ny, nx]. Cells without climate data or forest group are NaN.
type Predictor interface {
	Predict(climate *Stack, groups *sparse.DenseArray) (*sparse.DenseArray, error)
}

// LogisticFitter fits one logistic regression of burned area on the
// standardized climate variables per forest type group. Each cell is
// assigned to its dominant group for fitting; predictions blend the group
// models by group fraction.
type LogisticFitter struct {
	Vars          []string
	L2            float64 // ridge penalty on the slopes
	MaxIterations int
}

// NewLogisticFitter returns a fitter with the default penalty and iteration
// limit.
func NewLogisticFitter(vars []string) *LogisticFitter {
	return &LogisticFitter{Vars: vars, L2: 1e-4, MaxIterations: 200}
}

// LogisticModel is a fitted LogisticFitter.
type LogisticModel struct {
	Vars  []string
	Mean  []float64
	Std   []float64
	Coefs [][]float64 // per group: intercept then one slope per var; nil if the group had no samples
}

func (f *LogisticFitter) Fit(ctx context.Context, climate *Stack, burned, groups *sparse.DenseArray) (Predictor, error) {
	xs, err := features(climate, f.Vars, groups)
	if err != nil {
		return nil, err
	}
	if len(burned.Shape) != 3 || !slices.Equal(burned.Shape, xs[0].Shape) {
		return nil, fmt.Errorf("burned area shape %v does not match climate %v", burned.Shape, xs[0].Shape)
	}

	nt := burned.Shape[0]
	ny, nx := spatial(burned)
	plane := ny * nx
	dominant := dominantGroup(groups)

	valid := func(t, c int) bool {
		if dominant[c] < 0 || math.IsNaN(burned.Elements[t*plane+c]) {
			return false
		}
		for _, x := range xs {
			if math.IsNaN(x.Elements[t*plane+c]) {
				return false
			}
		}
		return true
	}

	m := &LogisticModel{
		Vars:  f.Vars,
		Mean:  make([]float64, len(xs)),
		Std:   make([]float64, len(xs)),
		Coefs: make([][]float64, groups.Shape[0]),
	}
	for k, x := range xs {
		var vals []float64
		for t := 0; t < nt; t++ {
			for c := 0; c < plane; c++ {
				if valid(t, c) {
					vals = append(vals, x.Elements[t*plane+c])
				}
			}
		}
		if len(vals) == 0 {
			return nil, errors.New("no valid training samples")
		}
		m.Mean[k], m.Std[k] = stat.MeanStdDev(vals, nil)
		if m.Std[k] == 0 || math.IsNaN(m.Std[k]) {
			m.Std[k] = 1
		}
	}

	rows := make([][][]float64, groups.Shape[0])
	labels := make([][]float64, groups.Shape[0])
	for t := 0; t < nt; t++ {
		for c := 0; c < plane; c++ {
			if !valid(t, c) {
				continue
			}
			g := dominant[c]
			row := make([]float64, len(xs))
			for k, x := range xs {
				row[k] = (x.Elements[t*plane+c] - m.Mean[k]) / m.Std[k]
			}
			rows[g] = append(rows[g], row)
			y := 0.0
			if burned.Elements[t*plane+c] > 0 {
				y = 1
			}
			labels[g] = append(labels[g], y)
		}
	}

	for g := range rows {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if len(rows[g]) == 0 {
			continue
		}
		coef, err := f.fitGroup(rows[g], labels[g])
		if err != nil {
			return nil, fmt.Errorf("fit group %d: %w", g, err)
		}
		m.Coefs[g] = coef
	}
	return m, nil
}

// fitGroup minimizes the penalized mean negative log-likelihood. Groups
// whose samples are all burned or all unburned get a constant model at the
// smoothed burn rate.
func (f *LogisticFitter) fitGroup(x [][]float64, y []float64) ([]float64, error) {
	n := float64(len(y))
	pos := floats.Sum(y)
	coef := make([]float64, len(x[0])+1)
	if pos == 0 || pos == n {
		rate := (pos + 0.5) / (n + 1)
		coef[0] = math.Log(rate / (1 - rate))
		return coef, nil
	}

	problem := optimize.Problem{
		Func: func(w []float64) float64 {
			var loss float64
			for i, row := range x {
				z := w[0] + floats.Dot(w[1:], row)
				loss += softplus(z) - y[i]*z
			}
			return loss/n + 0.5*f.L2*floats.Dot(w[1:], w[1:])
		},
		Grad: func(grad, w []float64) {
			for i := range grad {
				grad[i] = 0
			}
			for i, row := range x {
				r := sigmoid(w[0]+floats.Dot(w[1:], row)) - y[i]
				grad[0] += r
				floats.AddScaled(grad[1:], r, row)
			}
			floats.Scale(1/n, grad)
			floats.AddScaled(grad[1:], f.L2, w[1:])
		},
	}
	settings := &optimize.Settings{
		GradientThreshold: 1e-8,
		MajorIterations:   f.MaxIterations,
	}
	res, err := optimize.Minimize(problem, coef, settings, &optimize.LBFGS{})
	if err != nil && res == nil {
		return nil, err
	}
	return res.X, nil
}

func (m *LogisticModel) Predict(climate *Stack, groups *sparse.DenseArray) (*sparse.DenseArray, error) {
	xs, err := features(climate, m.Vars, groups)
	if err != nil {
		return nil, err
	}
	if groups.Shape[0] != len(m.Coefs) {
		return nil, fmt.Errorf("model has %d groups, got %d", len(m.Coefs), groups.Shape[0])
	}

	nt := xs[0].Shape[0]
	ny, nx := spatial(xs[0])
	plane := ny * nx
	out := sparse.ZerosDense(nt, ny, nx)
	row := make([]float64, len(xs))

	for t := 0; t < nt; t++ {
	cells:
		for c := 0; c < plane; c++ {
			i := t*plane + c
			for k, x := range xs {
				v := x.Elements[i]
				if math.IsNaN(v) {
					out.Elements[i] = math.NaN()
					continue cells
				}
				row[k] = (v - m.Mean[k]) / m.Std[k]
			}
			var p, wsum float64
			for g, coef := range m.Coefs {
				w := groups.Elements[g*plane+c]
				if coef == nil || !(w > 0) {
					continue
				}
				p += w * sigmoid(coef[0]+floats.Dot(coef[1:], row))
				wsum += w
			}
			if wsum == 0 {
				out.Elements[i] = math.NaN()
			} else {
				out.Elements[i] = p / wsum
			}
		}
	}
	return out, nil
}

// features returns the requested climate variables after checking that they
// share one [t, ny, nx] shape matching the group grid.
func features(climate *Stack, vars []string, groups *sparse.DenseArray) ([]*sparse.DenseArray, error) {
	if len(vars) == 0 {
		return nil, errors.New("no climate variables")
	}
	if len(groups.Shape) != 3 {
		return nil, fmt.Errorf("groups must be [group, y, x], got shape %v", groups.Shape)
	}
	xs := make([]*sparse.DenseArray, len(vars))
	for k, v := range vars {
		a, err := climate.Var(v)
		if err != nil {
			return nil, err
		}
		if len(a.Shape) != 3 {
			return nil, fmt.Errorf("variable %q must be [time, y, x], got shape %v", v, a.Shape)
		}
		if k > 0 && !slices.Equal(a.Shape, xs[0].Shape) {
			return nil, fmt.Errorf("variable %q shape %v differs from %v", v, a.Shape, xs[0].Shape)
		}
		if !sameGrid(a, groups) {
			return nil, fmt.Errorf("variable %q grid %v does not match groups %v", v, a.Shape, groups.Shape)
		}
		xs[k] = a
	}
	return xs, nil
}

// dominantGroup returns, per cell, the group with the largest positive
// fraction, or -1.
func dominantGroup(groups *sparse.DenseArray) []int {
	ng := groups.Shape[0]
	ny, nx := spatial(groups)
	plane := ny * nx
	out := make([]int, plane)
	for c := range out {
		out[c] = -1
		best := 0.0
		for g := 0; g < ng; g++ {
			if w := groups.Elements[g*plane+c]; w > best {
				best, out[c] = w, g
			}
		}
	}
	return out
}

func sigmoid(z float64) float64 {
	if z >= 0 {
		return 1 / (1 + math.Exp(-z))
	}
	e := math.Exp(z)
	return e / (1 + e)
}

func softplus(z float64) float64 {
	if z > 0 {
		return z + math.Log1p(math.Exp(-z))
	}
	return math.Log1p(math.Exp(z))
}
