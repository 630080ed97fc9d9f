package fire

import (
	"fmt"
	"math"
	"slices"

	"github.com/ctessum/sparse"
)

// Stack is a set of co-registered yearly rasters. Every variable has shape
// [len(Years), ny, nx].
type Stack struct {
	Years []int
	Vars  map[string]*sparse.DenseArray
}

// Var returns a variable or an error naming it.
func (s *Stack) Var(name string) (*sparse.DenseArray, error) {
	a, ok := s.Vars[name]
	if !ok {
		return nil, fmt.Errorf("variable %q not loaded", name)
	}
	return a, nil
}

// Select returns the years of s that fall in r. Arrays are copied.
func (s *Stack) Select(r YearRange) *Stack {
	var idx []int
	out := &Stack{Vars: make(map[string]*sparse.DenseArray, len(s.Vars))}
	for i, y := range s.Years {
		if r.Contains(y) {
			idx = append(idx, i)
			out.Years = append(out.Years, y)
		}
	}
	for name, a := range s.Vars {
		ny, nx := a.Shape[1], a.Shape[2]
		b := sparse.ZerosDense(len(idx), ny, nx)
		plane := ny * nx
		for j, i := range idx {
			copy(b.Elements[j*plane:(j+1)*plane], a.Elements[i*plane:(i+1)*plane])
		}
		out.Vars[name] = b
	}
	return out
}

// spatial returns the trailing two dimensions of a.
func spatial(a *sparse.DenseArray) (ny, nx int) {
	n := len(a.Shape)
	return a.Shape[n-2], a.Shape[n-1]
}

// sameGrid reports whether two arrays share their trailing two dimensions.
func sameGrid(a, b *sparse.DenseArray) bool {
	ay, ax := spatial(a)
	by, bx := spatial(b)
	return ay == by && ax == bx
}

// ApplyMask sets every cell of a to NaN where mask is not positive. mask has
// shape [ny, nx] and is broadcast over the leading dimensions of a.
func ApplyMask(a, mask *sparse.DenseArray) error {
	if !sameGrid(a, mask) {
		return fmt.Errorf("mask shape %v does not match %v", mask.Shape, a.Shape)
	}
	plane := len(mask.Elements)
	for i := range a.Elements {
		if m := mask.Elements[i%plane]; !(m > 0) {
			a.Elements[i] = math.NaN()
		}
	}
	return nil
}

// Coarsen averages factor x factor blocks of the trailing two dimensions,
// ignoring NaN. Rows and columns that do not fill a whole block are
// dropped. A block with no finite value is NaN.
func Coarsen(a *sparse.DenseArray, factor int) *sparse.DenseArray {
	if factor <= 1 {
		return a.Copy()
	}
	ny, nx := spatial(a)
	cy, cx := ny/factor, nx/factor
	lead := 1
	for _, d := range a.Shape[:len(a.Shape)-2] {
		lead *= d
	}
	shape := slices.Clone(a.Shape)
	shape[len(shape)-2], shape[len(shape)-1] = cy, cx
	out := sparse.ZerosDense(shape...)

	for l := 0; l < lead; l++ {
		src := a.Elements[l*ny*nx : (l+1)*ny*nx]
		dst := out.Elements[l*cy*cx : (l+1)*cy*cx]
		for by := 0; by < cy; by++ {
			for bx := 0; bx < cx; bx++ {
				var sum float64
				n := 0
				for y := by * factor; y < (by+1)*factor; y++ {
					for x := bx * factor; x < (bx+1)*factor; x++ {
						if v := src[y*nx+x]; !math.IsNaN(v) {
							sum += v
							n++
						}
					}
				}
				if n == 0 {
					dst[by*cx+bx] = math.NaN()
				} else {
					dst[by*cx+bx] = sum / float64(n)
				}
			}
		}
	}
	return out
}

// TimeMean averages a [t, ny, nx] array over time, ignoring NaN.
func TimeMean(a *sparse.DenseArray) *sparse.DenseArray {
	nt := a.Shape[0]
	ny, nx := spatial(a)
	plane := ny * nx
	out := sparse.ZerosDense(ny, nx)
	for c := 0; c < plane; c++ {
		var sum float64
		n := 0
		for t := 0; t < nt; t++ {
			if v := a.Elements[t*plane+c]; !math.IsNaN(v) {
				sum += v
				n++
			}
		}
		if n == 0 {
			out.Elements[c] = math.NaN()
		} else {
			out.Elements[c] = sum / float64(n)
		}
	}
	return out
}

// Binarize returns 1 where a exceeds threshold and 0 elsewhere, NaN included.
func Binarize(a *sparse.DenseArray, threshold float64) *sparse.DenseArray {
	out := sparse.ZerosDense(a.Shape...)
	for i, v := range a.Elements {
		if v > threshold {
			out.Elements[i] = 1
		}
	}
	return out
}

// ClassFraction turns a land cover class raster into the fraction of each
// cell whose class is in classes, after coarsening. An empty classes list
// selects every non-zero class. NaN cells stay NaN.
func ClassFraction(cover *sparse.DenseArray, classes []int, coarsen int) *sparse.DenseArray {
	ind := sparse.ZerosDense(cover.Shape...)
	for i, v := range cover.Elements {
		switch {
		case math.IsNaN(v):
			ind.Elements[i] = math.NaN()
		case len(classes) == 0 && v != 0, slices.Contains(classes, int(v)):
			ind.Elements[i] = 1
		}
	}
	return Coarsen(ind, coarsen)
}

// multiplyPlane multiplies a [ny, nx] array cell-wise by mask.
func multiplyPlane(a, mask *sparse.DenseArray) *sparse.DenseArray {
	out := sparse.ZerosDense(a.Shape...)
	plane := len(mask.Elements)
	for i, v := range a.Elements {
		out.Elements[i] = v * mask.Elements[i%plane]
	}
	return out
}
