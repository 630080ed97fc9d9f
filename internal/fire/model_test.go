package fire

import (
	"context"
	"math"
	"testing"

	"github.com/ctessum/sparse"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// trainingData builds nt years on a 2x4 grid where tavg rises with x and
// only the warmest column burns, with one year of exceptions so the classes
// overlap.
func trainingData(nt int) (*Stack, *sparse.DenseArray) {
	ny, nx := 2, 4
	tavg := sparse.ZerosDense(nt, ny, nx)
	ppt := sparse.ZerosDense(nt, ny, nx)
	burned := sparse.ZerosDense(nt, ny, nx)
	years := make([]int, nt)
	for ti := 0; ti < nt; ti++ {
		years[ti] = 2000 + ti
		for y := 0; y < ny; y++ {
			for x := 0; x < nx; x++ {
				i := (ti*ny+y)*nx + x
				tavg.Elements[i] = 10 + 3*float64(x) + 0.1*float64(ti%3)
				ppt.Elements[i] = 800 - 100*float64(x) + 5*float64(y)
				if x == nx-1 {
					burned.Elements[i] = 1
				}
				if ti == 0 && x == 0 && y == 0 {
					burned.Elements[i] = 1
				}
				if ti == 1 && x == nx-1 && y == 0 {
					burned.Elements[i] = 0
				}
			}
		}
	}
	return &Stack{Years: years, Vars: map[string]*sparse.DenseArray{"tavg": tavg, "ppt": ppt}}, burned
}

func oneGroup(ny, nx int) *sparse.DenseArray {
	g := sparse.ZerosDense(1, ny, nx)
	for i := range g.Elements {
		g.Elements[i] = 1
	}
	return g
}

func TestLogisticFitter_RanksWarmCellsHigher(t *testing.T) {
	climate, burned := trainingData(6)
	groups := oneGroup(2, 4)

	model, err := NewLogisticFitter([]string{"ppt", "tavg"}).Fit(context.Background(), climate, burned, groups)
	require.NoError(t, err)

	prob, err := model.Predict(climate, groups)
	require.NoError(t, err)
	require.Equal(t, []int{6, 2, 4}, prob.Shape)

	for _, p := range prob.Elements {
		assert.GreaterOrEqual(t, p, 0.0)
		assert.LessOrEqual(t, p, 1.0)
	}
	cold, warm := prob.Get(2, 0, 0), prob.Get(2, 0, 3)
	assert.Greater(t, warm, 0.5)
	assert.Less(t, cold, 0.5)
	assert.Greater(t, warm, cold)
}

func TestLogisticFitter_ConstantGroup(t *testing.T) {
	climate, burned := trainingData(3)
	for i := range burned.Elements {
		burned.Elements[i] = 0
	}
	groups := oneGroup(2, 4)

	model, err := NewLogisticFitter([]string{"tavg"}).Fit(context.Background(), climate, burned, groups)
	require.NoError(t, err)

	lm := model.(*LogisticModel)
	require.Len(t, lm.Coefs, 1)
	assert.Less(t, lm.Coefs[0][0], 0.0)
	assert.InDelta(t, 0, lm.Coefs[0][1], 0)

	prob, err := model.Predict(climate, groups)
	require.NoError(t, err)
	assert.InDelta(t, 0.5/25, prob.Elements[0], 1e-9)
}

func TestLogisticFitter_BlendsGroups(t *testing.T) {
	climate, burned := trainingData(6)
	groups := sparse.ZerosDense(3, 2, 4)
	for c := 0; c < 8; c++ {
		groups.Elements[c] = 1 // group 0 everywhere
	}
	// Group 1 never dominates and group 2 is absent, so neither is fitted.
	groups.Elements[8] = 0.5

	model, err := NewLogisticFitter([]string{"tavg"}).Fit(context.Background(), climate, burned, groups)
	require.NoError(t, err)

	lm := model.(*LogisticModel)
	assert.NotNil(t, lm.Coefs[0])
	assert.Nil(t, lm.Coefs[1])
	assert.Nil(t, lm.Coefs[2])
}

func TestLogisticModel_PredictMissing(t *testing.T) {
	climate, burned := trainingData(3)
	groups := oneGroup(2, 4)
	model, err := NewLogisticFitter([]string{"tavg"}).Fit(context.Background(), climate, burned, groups)
	require.NoError(t, err)

	climate.Vars["tavg"].Elements[1] = math.NaN()
	groups.Elements[2] = 0

	prob, err := model.Predict(climate, groups)
	require.NoError(t, err)
	assert.True(t, math.IsNaN(prob.Elements[1]), "missing climate")
	assert.True(t, math.IsNaN(prob.Elements[2]), "no forest group")
	assert.False(t, math.IsNaN(prob.Elements[3]))
}

func TestLogisticFitter_ShapeErrors(t *testing.T) {
	climate, burned := trainingData(3)
	fitter := NewLogisticFitter([]string{"tavg"})
	ctx := context.Background()

	_, err := fitter.Fit(ctx, climate, burned, oneGroup(3, 4))
	assert.ErrorContains(t, err, "does not match groups")

	_, err = fitter.Fit(ctx, climate, sparse.ZerosDense(2, 2, 4), oneGroup(2, 4))
	assert.ErrorContains(t, err, "burned area shape")

	_, err = NewLogisticFitter([]string{"rh"}).Fit(ctx, climate, burned, oneGroup(2, 4))
	assert.ErrorContains(t, err, `variable "rh" not loaded`)
}

func TestLogisticFitter_NoSamples(t *testing.T) {
	climate, burned := trainingData(2)
	_, err := NewLogisticFitter([]string{"tavg"}).Fit(context.Background(), climate, burned, sparse.ZerosDense(1, 2, 4))
	assert.ErrorContains(t, err, "no valid training samples")
}

func TestLogisticFitter_Canceled(t *testing.T) {
	climate, burned := trainingData(2)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewLogisticFitter([]string{"tavg"}).Fit(ctx, climate, burned, oneGroup(2, 4))
	assert.ErrorIs(t, err, context.Canceled)
}
