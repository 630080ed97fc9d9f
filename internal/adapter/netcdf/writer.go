package netcdf

import (
	"fmt"
	"os"

	"github.com/ctessum/cdf"
	"github.com/ctessum/sparse"

	"github.com/couchcryptid/forest-inventory-etl/internal/fire"
)

// WriteResult stores an evaluation result at path. The file has dimensions
// year, y and x; "historical" is [y, x] and every scenario is [year, y, x].
func WriteResult(path string, res *fire.Result) (err error) {
	if res.Historical == nil || len(res.Historical.Shape) != 2 {
		return fmt.Errorf("write %s: historical result must be [y, x]", path)
	}
	ny, nx := res.Historical.Shape[0], res.Historical.Shape[1]

	h := cdf.NewHeader([]string{"year", "y", "x"}, []int{len(res.Targets), ny, nx})
	h.AddAttribute("", "comment", "Burn probability from a climate-driven fire model")

	h.AddVariable("year", []string{"year"}, []int32{0})
	h.AddAttribute("year", "description", "Projection target year")

	h.AddVariable("historical", []string{"y", "x"}, []float32{0})
	h.AddAttribute("historical", "description", "Mean annual burn probability over the historical period")
	h.AddAttribute("historical", "units", "fraction")

	for _, s := range res.Scenarios {
		h.AddVariable(s.Name, []string{"year", "y", "x"}, []float32{0})
		h.AddAttribute(s.Name, "description", "Mean annual burn probability around each target year")
		h.AddAttribute(s.Name, "units", "fraction")
	}
	h.Define()

	ff, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer func() {
		if cerr := ff.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("close %s: %w", path, cerr)
		}
	}()

	f, err := cdf.Create(ff, h)
	if err != nil {
		return fmt.Errorf("write header %s: %w", path, err)
	}

	years := make([]int32, len(res.Targets))
	for i, y := range res.Targets {
		years[i] = int32(y)
	}
	if err := write(f, "year", years); err != nil {
		return err
	}
	if err := write(f, "historical", float32s(res.Historical)); err != nil {
		return err
	}
	for _, s := range res.Scenarios {
		if len(s.Data.Elements) != len(res.Targets)*ny*nx {
			return fmt.Errorf("scenario %s has shape %v, want [%d %d %d]", s.Name, s.Data.Shape, len(res.Targets), ny, nx)
		}
		if err := write(f, s.Name, float32s(s.Data)); err != nil {
			return err
		}
	}
	return cdf.UpdateNumRecs(ff)
}

func write(f *cdf.File, name string, data any) error {
	end := f.Header.Lengths(name)
	start := make([]int, len(end))
	if _, err := f.Writer(name, start, end).Write(data); err != nil {
		return fmt.Errorf("write %q: %w", name, err)
	}
	return nil
}

func float32s(a *sparse.DenseArray) []float32 {
	out := make([]float32, len(a.Elements))
	for i, v := range a.Elements {
		out[i] = float32(v)
	}
	return out
}
