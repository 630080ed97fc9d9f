package fire

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writePlan(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "plan.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefaultPlan(t *testing.T) {
	p := DefaultPlan()
	require.NoError(t, p.Validate())

	assert.Equal(t, []int{2020, 2040, 2060, 2080, 2100}, p.TargetYears())
	assert.Equal(t, YearRange{Start: 2015, End: 2024}, p.Window(2020))
	assert.Equal(t, "BCC-CSM2-MR_ssp370", p.ScenarioName("ssp370"))
	assert.Equal(t, 16, p.CoarsenFit)
	assert.Equal(t, 4, p.CoarsenPredict)
	assert.InDelta(t, 1500, p.AreaThreshold, 0)
}

func TestLoadPlan_OverridesKeepDefaults(t *testing.T) {
	path := writePlan(t, `
coarsen_predict: 2
scenarios: [ssp585]
targets:
  start: 2040
  end: 2060
final_mask:
  classes: [41]
`)
	p, err := LoadPlan(path)
	require.NoError(t, err)

	want := DefaultPlan()
	want.CoarsenPredict = 2
	want.Scenarios = []string{"ssp585"}
	want.Targets.Start, want.Targets.End = 2040, 2060
	want.FinalMask.Classes = []int{41}
	if diff := cmp.Diff(want, p); diff != "" {
		t.Errorf("plan mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, []int{2040, 2060}, p.TargetYears())
}

func TestLoadPlan_EmptyFile(t *testing.T) {
	p, err := LoadPlan(writePlan(t, ""))
	require.NoError(t, err)
	assert.Equal(t, DefaultPlan(), p)
}

func TestLoadPlan_UnknownKey(t *testing.T) {
	_, err := LoadPlan(writePlan(t, "coarsen: 3\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse plan")
}

func TestLoadPlan_Missing(t *testing.T) {
	_, err := LoadPlan(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestPlan_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Plan)
		want   string
	}{
		{"coarsen", func(p *Plan) { p.CoarsenFit = 0 }, "coarsen"},
		{"fit years", func(p *Plan) { p.FitYears = YearRange{Start: 2010, End: 2000} }, "fit_years"},
		{"no vars", func(p *Plan) { p.Vars = nil }, "vars"},
		{"no model", func(p *Plan) { p.CMIPModel = "" }, "cmip_model"},
		{"step", func(p *Plan) { p.Targets.Step = 0 }, "targets"},
		{"classes", func(p *Plan) { p.FinalMask.Classes = nil }, "final_mask"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := DefaultPlan()
			tt.mutate(&p)
			err := p.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestPlan_NoScenariosNeedsNoModel(t *testing.T) {
	p := DefaultPlan()
	p.Scenarios = nil
	p.CMIPModel = ""
	assert.NoError(t, p.Validate())
}
