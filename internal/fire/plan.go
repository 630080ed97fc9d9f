// Package fire fits a climate-driven burn probability model on historical
// burned area and projects it onto future climate scenarios.
package fire

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// YearRange is an inclusive range of years.
type YearRange struct {
	Start int `yaml:"start"`
	End   int `yaml:"end"`
}

// Contains reports whether y lies in the range.
func (r YearRange) Contains(y int) bool { return y >= r.Start && y <= r.End }

func (r YearRange) String() string { return fmt.Sprintf("%d-%d", r.Start, r.End) }

// Targets describes the projection years and the climate window averaged
// around each of them.
type Targets struct {
	Start        int `yaml:"start"`
	End          int `yaml:"end"`
	Step         int `yaml:"step"`
	WindowBefore int `yaml:"window_before"`
	WindowAfter  int `yaml:"window_after"`
}

// FinalMask selects the land cover that the published probabilities are
// restricted to.
type FinalMask struct {
	Year      int     `yaml:"year"`
	Classes   []int   `yaml:"classes"`
	Threshold float64 `yaml:"threshold"`
}

// Plan is the complete configuration of one fire evaluation.
type Plan struct {
	CoarsenFit      int       `yaml:"coarsen_fit"`
	CoarsenPredict  int       `yaml:"coarsen_predict"`
	FitYears        YearRange `yaml:"fit_years"`
	HistoricalYears YearRange `yaml:"historical_years"`
	Vars            []string  `yaml:"vars"`
	CMIPModel       string    `yaml:"cmip_model"`
	Scenarios       []string  `yaml:"scenarios"`
	Targets         Targets   `yaml:"targets"`
	MaskYear        int       `yaml:"mask_year"`
	FinalMask       FinalMask `yaml:"final_mask"`
	AreaThreshold   float64   `yaml:"area_threshold"`
}

// DefaultPlan returns the reference configuration.
func DefaultPlan() Plan {
	return Plan{
		CoarsenFit:      16,
		CoarsenPredict:  4,
		FitYears:        YearRange{Start: 1984, End: 2018},
		HistoricalYears: YearRange{Start: 2005, End: 2014},
		Vars:            []string{"ppt", "tavg"},
		CMIPModel:       "BCC-CSM2-MR",
		Scenarios:       []string{"ssp245", "ssp370", "ssp585"},
		Targets:         Targets{Start: 2020, End: 2100, Step: 20, WindowBefore: 5, WindowAfter: 4},
		MaskYear:        2001,
		FinalMask:       FinalMask{Year: 2016, Classes: []int{41, 42, 43, 90}, Threshold: 0.5},
		AreaThreshold:   1500,
	}
}

// LoadPlan reads a YAML plan. Keys missing from the file keep their default
// values; unknown keys are rejected.
func LoadPlan(path string) (Plan, error) {
	p := DefaultPlan()
	data, err := os.ReadFile(path)
	if err != nil {
		return Plan{}, fmt.Errorf("read plan: %w", err)
	}
	if len(bytes.TrimSpace(data)) > 0 {
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&p); err != nil {
			return Plan{}, fmt.Errorf("parse plan %s: %w", path, err)
		}
	}
	if err := p.Validate(); err != nil {
		return Plan{}, fmt.Errorf("plan %s: %w", path, err)
	}
	return p, nil
}

// Validate checks the plan for values the evaluation cannot run with.
func (p Plan) Validate() error {
	var errs []error
	if p.CoarsenFit < 1 || p.CoarsenPredict < 1 {
		errs = append(errs, errors.New("coarsen factors must be at least 1"))
	}
	if p.FitYears.Start > p.FitYears.End {
		errs = append(errs, fmt.Errorf("fit_years %s is empty", p.FitYears))
	}
	if p.HistoricalYears.Start > p.HistoricalYears.End {
		errs = append(errs, fmt.Errorf("historical_years %s is empty", p.HistoricalYears))
	}
	if len(p.Vars) == 0 {
		errs = append(errs, errors.New("vars must name at least one climate variable"))
	}
	if len(p.Scenarios) > 0 && p.CMIPModel == "" {
		errs = append(errs, errors.New("cmip_model is required when scenarios are set"))
	}
	if p.Targets.Step < 1 || p.Targets.Start > p.Targets.End {
		errs = append(errs, errors.New("targets need start <= end and a positive step"))
	}
	if p.Targets.WindowBefore < 0 || p.Targets.WindowAfter < 0 {
		errs = append(errs, errors.New("target windows must not be negative"))
	}
	if len(p.FinalMask.Classes) == 0 {
		errs = append(errs, errors.New("final_mask.classes must not be empty"))
	}
	return errors.Join(errs...)
}

// TargetYears lists the projection years in ascending order.
func (p Plan) TargetYears() []int {
	var out []int
	for y := p.Targets.Start; y <= p.Targets.End; y += p.Targets.Step {
		out = append(out, y)
	}
	return out
}

// Window returns the years averaged for a projection target.
func (p Plan) Window(target int) YearRange {
	return YearRange{Start: target - p.Targets.WindowBefore, End: target + p.Targets.WindowAfter}
}

// ScenarioName is the output variable name of a scenario.
func (p Plan) ScenarioName(scenario string) string {
	return p.CMIPModel + "_" + scenario
}
