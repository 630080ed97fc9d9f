package netcdf

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"path/filepath"

	"github.com/ctessum/sparse"

	"github.com/couchcryptid/forest-inventory-etl/internal/fire"
)

// Variable names inside the input files.
const (
	classVar  = "class"
	groupsVar = "groups"
	yearVar   = "year"
)

// Source reads fire model inputs from a directory laid out as:
//
//	nlcd_<year>.nc                land cover class codes, class[y, x]
//	nftd.nc                       forest type group fractions, groups[group, y, x]
//	terraclim.nc                  observed climate, <var>[time, y, x] and year[time]
//	cmip_<model>_<scenario>.nc    projected climate, same layout as terraclim.nc
//	mtbs.nc                       burned area fraction, vlf[time, y, x] and year[time]
//
// It implements fire.DataSource.
type Source struct {
	dir    string
	logger *slog.Logger
}

// NewSource creates a Source over dir.
func NewSource(dir string, logger *slog.Logger) *Source {
	return &Source{dir: dir, logger: logger}
}

func (s *Source) path(name string) string { return filepath.Join(s.dir, name) }

// LandCover reads nlcd_<year>.nc.
func (s *Source) LandCover(_ context.Context, year int, classes []int, coarsen int) (*sparse.DenseArray, error) {
	cover, err := s.read(fmt.Sprintf("nlcd_%d.nc", year), classVar)
	if err != nil {
		return nil, err
	}
	return fire.ClassFraction(cover, classes, coarsen), nil
}

// ForestGroups reads nftd.nc. Groups whose masked area is below the
// threshold are zeroed rather than removed so group indices stay stable
// across resolutions.
func (s *Source) ForestGroups(_ context.Context, q fire.GroupQuery) (*sparse.DenseArray, error) {
	groups, err := s.read("nftd.nc", groupsVar)
	if err != nil {
		return nil, err
	}
	if len(groups.Shape) != 3 {
		return nil, fmt.Errorf("nftd.nc: %s must be [group, y, x], got %v", groupsVar, groups.Shape)
	}
	if q.Mask != nil {
		if err := fire.ApplyMask(groups, q.Mask); err != nil {
			return nil, fmt.Errorf("nftd.nc: %w", err)
		}
	}

	plane := groups.Shape[1] * groups.Shape[2]
	for g := 0; g < groups.Shape[0]; g++ {
		cells := groups.Elements[g*plane : (g+1)*plane]
		var area float64
		for _, v := range cells {
			if !math.IsNaN(v) {
				area += v
			}
		}
		if area < q.AreaThreshold {
			s.logger.Debug("forest group below area threshold", "group", g, "area", area)
			for i := range cells {
				cells[i] = 0
			}
		}
	}
	return fire.Coarsen(groups, q.Coarsen), nil
}

// Climate reads terraclim.nc, or cmip_<model>_<scenario>.nc when q.Model is set.
func (s *Source) Climate(_ context.Context, q fire.ClimateQuery) (*fire.Stack, error) {
	name := "terraclim.nc"
	if q.Model != "" {
		name = fmt.Sprintf("cmip_%s_%s.nc", q.Model, q.Scenario)
	}
	return s.stack(name, q.Vars, q)
}

// BurnedArea reads mtbs.nc.
func (s *Source) BurnedArea(_ context.Context, q fire.ClimateQuery) (*fire.Stack, error) {
	return s.stack("mtbs.nc", []string{fire.BurnedVar}, q)
}

func (s *Source) read(name, variable string) (*sparse.DenseArray, error) {
	ff, f, err := open(s.path(name))
	if err != nil {
		return nil, err
	}
	defer ff.Close()

	a, err := readVar(f, variable)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return a, nil
}

// stack reads vars for the query years, masks, and coarsens them.
func (s *Source) stack(name string, vars []string, q fire.ClimateQuery) (*fire.Stack, error) {
	ff, f, err := open(s.path(name))
	if err != nil {
		return nil, err
	}
	defer ff.Close()

	years, err := readInts(f, yearVar)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	all := &fire.Stack{Years: years, Vars: make(map[string]*sparse.DenseArray, len(vars))}
	for _, v := range vars {
		a, err := readVar(f, v)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		if len(a.Shape) != 3 || a.Shape[0] != len(years) {
			return nil, fmt.Errorf("%s: %q must be [time, y, x] with %d times, got %v", name, v, len(years), a.Shape)
		}
		all.Vars[v] = a
	}

	out := all.Select(q.Years)
	if len(out.Years) == 0 {
		return nil, fmt.Errorf("%s: no years in %s", name, q.Years)
	}
	for v, a := range out.Vars {
		if q.Mask != nil {
			if err := fire.ApplyMask(a, q.Mask); err != nil {
				return nil, fmt.Errorf("%s: %q: %w", name, v, err)
			}
		}
		out.Vars[v] = fire.Coarsen(a, q.Coarsen)
	}
	s.logger.Debug("netcdf stack loaded", "file", name, "years", len(out.Years), "vars", len(out.Vars))
	return out, nil
}
