package domain

import "time"

// PlotRecord is one row of the FIADB PLOT table.
type PlotRecord struct {
	CN        string
	PrevPltCN *string
	StateCD   int
	InvYr     *int
	Lat       *float64
	Lon       *float64
	Elev      *float64
}

// Identity returns the record used for plot identity resolution.
func (p PlotRecord) Identity() Record {
	return Record{ID: p.CN, Prev: p.PrevPltCN}
}

// CondRecord is one row of the FIADB COND table.
type CondRecord struct {
	PltCN         string
	CondID        int
	StdAge        *float64
	BALive        *float64
	SICond        *float64
	SISP          *float64
	ForTypCD      *float64
	DstrbCD1      *float64
	DstrbYr1      *float64
	CondPropUnadj *float64
}

// TreeRecord is one row of the FIADB TREE table.
type TreeRecord struct {
	CN       string
	PltCN    string
	CondID   int
	StatusCD *int
	DiaCheck *int
	Dia      *float64 // inches at breast height
	Ht       *float64 // feet
	TotAge   *float64
	SITree   *float64
	TPAUnadj *float64 // trees per acre represented
	CarbonAG *float64 // aboveground carbon, pounds
}

// StateBatch holds the inventory tables for one state.
type StateBatch struct {
	StateCD int
	Plots   []PlotRecord
	Conds   []CondRecord
	Trees   []TreeRecord
}

// ConditionKey identifies a condition within a plot measurement.
type ConditionKey struct {
	PltCN  string
	CondID int
}

// Stats are the live-tree statistics of one condition. Nil fields mean no
// qualifying tree contributed a value.
type Stats struct {
	Dia     *float64 `json:"dia"`
	Ht      *float64 `json:"ht"`
	TotAge  *float64 `json:"totage"`
	SITree  *float64 `json:"sitree"`
	Biomass *float64 `json:"biomass"`
	BALive  *float64 `json:"balive"`
}

// CondSummary holds the per-condition maxima of the condition variables.
type CondSummary struct {
	StdAge        *float64 `json:"stdage_cond"`
	BALive        *float64 `json:"balive_cond"`
	SICond        *float64 `json:"sicond"`
	SISP          *float64 `json:"sisp"`
	ForTypCD      *float64 `json:"fortypcd"`
	DstrbCD1      *float64 `json:"dstrbcd1"`
	DstrbYr1      *float64 `json:"dstrbyr1"`
	CondPropUnadj *float64 `json:"condprop_unadj"`
}

// PlotSummary is one aggregated output row: a condition of a plot
// measurement with its condition and tree statistics, plot location, and the
// group id shared by every measurement of the same physical plot.
type PlotSummary struct {
	PltCN   string `json:"plt_cn"`
	CondID  int    `json:"condid"`
	StateCD int    `json:"statecd"`

	CondSummary
	Stats

	Lat   *float64 `json:"lat"`
	Lon   *float64 `json:"lon"`
	Elev  *float64 `json:"elev"`
	InvYr *int     `json:"invyr"`

	// PltUID is nil when the plot CN is not among the state's plot records.
	PltUID *int `json:"plt_uid"`

	ProcessedAt time.Time `json:"processed_at"`
}

// SummaryBatch is the aggregated output of one state within a pipeline run.
type SummaryBatch struct {
	RunID   string
	StateCD int
	Rows    []PlotSummary
}
