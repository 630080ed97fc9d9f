// Package netcdf reads the gridded fire model inputs from NetCDF files and
// writes the evaluation result.
package netcdf

import (
	"fmt"
	"math"
	"os"
	"slices"

	"github.com/ctessum/cdf"
	"github.com/ctessum/sparse"
)

// readVar reads a whole variable as float64. Values equal to the variable's
// _FillValue become NaN.
func readVar(f *cdf.File, name string) (*sparse.DenseArray, error) {
	if !slices.Contains(f.Header.Variables(), name) {
		return nil, fmt.Errorf("variable %q not found", name)
	}
	dims := f.Header.Lengths(name)
	n := 1
	for _, d := range dims {
		n *= d
	}

	r := f.Reader(name, nil, nil)
	buf := r.Zero(n)
	if _, err := r.Read(buf); err != nil {
		return nil, fmt.Errorf("read %q: %w", name, err)
	}
	vals, err := toFloat64(buf)
	if err != nil {
		return nil, fmt.Errorf("read %q: %w", name, err)
	}

	if fill := f.Header.GetAttribute(name, "_FillValue"); fill != nil {
		if fv, err := toFloat64(fill); err == nil && len(fv) > 0 {
			for i, v := range vals {
				if v == fv[0] {
					vals[i] = math.NaN()
				}
			}
		}
	}

	out := sparse.ZerosDense(dims...)
	copy(out.Elements, vals)
	return out, nil
}

// readInts reads a one-dimensional integer variable such as year.
func readInts(f *cdf.File, name string) ([]int, error) {
	a, err := readVar(f, name)
	if err != nil {
		return nil, err
	}
	out := make([]int, len(a.Elements))
	for i, v := range a.Elements {
		out[i] = int(v)
	}
	return out, nil
}

func toFloat64(v any) ([]float64, error) {
	switch d := v.(type) {
	case []float64:
		return slices.Clone(d), nil
	case []float32:
		return convert(d), nil
	case []int32:
		return convert(d), nil
	case []int16:
		return convert(d), nil
	case []int8:
		return convert(d), nil
	default:
		return nil, fmt.Errorf("unsupported data type %T", v)
	}
}

func convert[T float32 | int32 | int16 | int8](d []T) []float64 {
	out := make([]float64, len(d))
	for i, v := range d {
		out[i] = float64(v)
	}
	return out
}

// open opens a NetCDF file for reading. The caller closes the returned file.
func open(path string) (*os.File, *cdf.File, error) {
	ff, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	f, err := cdf.Open(ff)
	if err != nil {
		ff.Close()
		return nil, nil, fmt.Errorf("open netcdf %s: %w", path, err)
	}
	return ff, f, nil
}
