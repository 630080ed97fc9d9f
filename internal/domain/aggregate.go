package domain

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// basalAreaFactor converts a squared diameter in inches to basal area in
// square feet: pi / (4 * 144).
const basalAreaFactor = 0.005454

// IsLive reports whether a tree counts toward condition statistics: alive,
// larger than one inch, and with a measured (not estimated) diameter.
func IsLive(t TreeRecord) bool {
	return t.StatusCD != nil && *t.StatusCD == 1 &&
		t.Dia != nil && *t.Dia > 1.0 &&
		t.DiaCheck != nil && *t.DiaCheck == 0
}

// TreeStats summarizes the live trees of one condition. Means skip missing
// values. Biomass and live basal area are per-acre sums; once at least one
// live tree exists they are reported even when every term was missing.
func TreeStats(trees []TreeRecord) Stats {
	var dia, ht, age, si, biomass, balive []float64
	live := 0
	for _, t := range trees {
		if !IsLive(t) {
			continue
		}
		live++
		dia = appendPresent(dia, t.Dia)
		ht = appendPresent(ht, t.Ht)
		age = appendPresent(age, t.TotAge)
		si = appendPresent(si, t.SITree)
		if t.TPAUnadj == nil {
			continue
		}
		tpa, d := *t.TPAUnadj, *t.Dia
		if t.CarbonAG != nil {
			biomass = append(biomass, *t.CarbonAG*2*tpa)
		}
		balive = append(balive, d*d*basalAreaFactor*tpa)
	}
	if live == 0 {
		return Stats{}
	}
	return Stats{
		Dia:     mean(dia),
		Ht:      mean(ht),
		TotAge:  mean(age),
		SITree:  mean(si),
		Biomass: ptr(floats.Sum(biomass)),
		BALive:  ptr(floats.Sum(balive)),
	}
}

// AggregateConditions reduces condition rows to one summary per plot
// condition, keeping the largest non-missing value of each variable.
func AggregateConditions(conds []CondRecord) map[ConditionKey]CondSummary {
	out := make(map[ConditionKey]CondSummary)
	for _, c := range conds {
		k := ConditionKey{PltCN: c.PltCN, CondID: c.CondID}
		s := out[k]
		s.StdAge = maxPresent(s.StdAge, c.StdAge)
		s.BALive = maxPresent(s.BALive, c.BALive)
		s.SICond = maxPresent(s.SICond, c.SICond)
		s.SISP = maxPresent(s.SISP, c.SISP)
		s.ForTypCD = maxPresent(s.ForTypCD, c.ForTypCD)
		s.DstrbCD1 = maxPresent(s.DstrbCD1, c.DstrbCD1)
		s.DstrbYr1 = maxPresent(s.DstrbYr1, c.DstrbYr1)
		s.CondPropUnadj = maxPresent(s.CondPropUnadj, c.CondPropUnadj)
		out[k] = s
	}
	return out
}

// AggregateState builds the plot summaries of one state. Only conditions
// that have both condition rows and tree rows are reported. Plot location and
// inventory year come from the plot table, and every row carries the group
// id of its plot's re-measurement chain.
func AggregateState(batch StateBatch) ([]PlotSummary, error) {
	records := make([]Record, len(batch.Plots))
	for i, p := range batch.Plots {
		records[i] = p.Identity()
	}
	uids, err := ResolveIdentities(records)
	if err != nil {
		return nil, fmt.Errorf("resolve plot identities for state %02d: %w", batch.StateCD, err)
	}

	treesByCond := make(map[ConditionKey][]TreeRecord)
	for _, t := range batch.Trees {
		k := ConditionKey{PltCN: t.PltCN, CondID: t.CondID}
		treesByCond[k] = append(treesByCond[k], t)
	}
	conds := AggregateConditions(batch.Conds)

	plots := make(map[string]PlotRecord, len(batch.Plots))
	for _, p := range batch.Plots {
		if _, ok := plots[p.CN]; !ok {
			plots[p.CN] = p
		}
	}

	keys := make([]ConditionKey, 0, len(conds))
	for k := range conds {
		if _, ok := treesByCond[k]; ok {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].PltCN != keys[j].PltCN {
			return keys[i].PltCN < keys[j].PltCN
		}
		return keys[i].CondID < keys[j].CondID
	})

	now := clock.Now()
	out := make([]PlotSummary, 0, len(keys))
	for _, k := range keys {
		s := PlotSummary{
			PltCN:       k.PltCN,
			CondID:      k.CondID,
			StateCD:     batch.StateCD,
			CondSummary: conds[k],
			Stats:       TreeStats(treesByCond[k]),
			ProcessedAt: now,
		}
		if p, ok := plots[k.PltCN]; ok {
			s.Lat, s.Lon, s.Elev, s.InvYr = p.Lat, p.Lon, p.Elev, p.InvYr
		}
		if g, ok := uids.Lookup(k.PltCN); ok {
			s.PltUID = &g
		}
		out = append(out, s)
	}
	return out, nil
}

func appendPresent(xs []float64, v *float64) []float64 {
	if v == nil || math.IsNaN(*v) {
		return xs
	}
	return append(xs, *v)
}

func mean(xs []float64) *float64 {
	if len(xs) == 0 {
		return nil
	}
	return ptr(stat.Mean(xs, nil))
}

func maxPresent(cur, v *float64) *float64 {
	if v == nil || math.IsNaN(*v) {
		return cur
	}
	if cur == nil || *v > *cur {
		return ptr(*v)
	}
	return cur
}

func ptr[T any](v T) *T { return &v }
