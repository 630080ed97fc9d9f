package fire

import (
	"math"
	"testing"

	"github.com/ctessum/sparse"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dense(shape []int, vals ...float64) *sparse.DenseArray {
	a := sparse.ZerosDense(shape...)
	copy(a.Elements, vals)
	return a
}

var nan = math.NaN()

func TestCoarsen(t *testing.T) {
	a := dense([]int{4, 5},
		1, 2, 3, 4, 99,
		3, 4, nan, nan, 99,
		5, nan, 7, 8, 99,
		nan, nan, 9, 10, 99,
	)
	got := Coarsen(a, 2)

	assert.Equal(t, []int{2, 2}, got.Shape)
	assert.InDelta(t, 2.5, got.Elements[0], 1e-12)
	assert.InDelta(t, 3.5, got.Elements[1], 1e-12)
	assert.InDelta(t, 5, got.Elements[2], 1e-12)
	assert.InDelta(t, 8.5, got.Elements[3], 1e-12)
}

func TestCoarsen_AllNaNBlock(t *testing.T) {
	got := Coarsen(dense([]int{1, 2, 2}, nan, nan, nan, nan), 2)
	assert.Equal(t, []int{1, 1, 1}, got.Shape)
	assert.True(t, math.IsNaN(got.Elements[0]))
}

func TestCoarsen_LeadingDims(t *testing.T) {
	a := dense([]int{2, 2, 2}, 1, 1, 1, 1, 2, 4, 6, 8)
	got := Coarsen(a, 2)
	assert.Equal(t, []int{2, 1, 1}, got.Shape)
	assert.InDelta(t, 1, got.Elements[0], 0)
	assert.InDelta(t, 5, got.Elements[1], 0)
}

func TestCoarsen_FactorOneCopies(t *testing.T) {
	a := dense([]int{1, 2}, 1, 2)
	got := Coarsen(a, 1)
	got.Elements[0] = 9
	assert.InDelta(t, 1, a.Elements[0], 0)
}

func TestApplyMask(t *testing.T) {
	a := dense([]int{2, 1, 2}, 1, 2, 3, 4)
	mask := dense([]int{1, 2}, 0, 0.3)
	require.NoError(t, ApplyMask(a, mask))

	assert.True(t, math.IsNaN(a.Elements[0]))
	assert.InDelta(t, 2, a.Elements[1], 0)
	assert.True(t, math.IsNaN(a.Elements[2]))
	assert.InDelta(t, 4, a.Elements[3], 0)
}

func TestApplyMask_ShapeMismatch(t *testing.T) {
	err := ApplyMask(dense([]int{2, 2}), dense([]int{2, 3}))
	assert.Error(t, err)
}

func TestTimeMean(t *testing.T) {
	a := dense([]int{3, 1, 2},
		1, nan,
		2, nan,
		nan, nan,
	)
	got := TimeMean(a)
	assert.Equal(t, []int{1, 2}, got.Shape)
	assert.InDelta(t, 1.5, got.Elements[0], 1e-12)
	assert.True(t, math.IsNaN(got.Elements[1]))
}

func TestBinarize(t *testing.T) {
	got := Binarize(dense([]int{4}, 0.2, 0.5, 0.51, nan), 0.5)
	assert.Equal(t, []float64{0, 0, 1, 0}, got.Elements)
}

func TestClassFraction(t *testing.T) {
	cover := dense([]int{2, 2}, 41, 42, 11, 0)

	got := ClassFraction(cover, []int{41, 42, 43, 90}, 2)
	assert.InDelta(t, 0.5, got.Elements[0], 1e-12)

	all := ClassFraction(cover, nil, 1)
	assert.Equal(t, []float64{1, 1, 1, 0}, all.Elements)
}

func TestStack_Select(t *testing.T) {
	s := &Stack{
		Years: []int{2000, 2001, 2002},
		Vars:  map[string]*sparse.DenseArray{"ppt": dense([]int{3, 1, 1}, 10, 11, 12)},
	}
	got := s.Select(YearRange{Start: 2001, End: 2005})
	assert.Equal(t, []int{2001, 2002}, got.Years)

	ppt, err := got.Var("ppt")
	require.NoError(t, err)
	assert.Equal(t, []int{2, 1, 1}, ppt.Shape)
	assert.Equal(t, []float64{11, 12}, ppt.Elements)

	_, err = got.Var("tavg")
	assert.Error(t, err)
}
