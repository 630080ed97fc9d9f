// Package domain models USDA Forest Inventory and Analysis (FIA) field
// survey data and the per-condition summaries built from it.
//
// # Data Source
//
// Inventory records come from the FIA Database (FIADB), published per state
// as SQLite files by the FIA DataMart. Three tables are used:
//
//	PLOT  one row per plot measurement (CN, PREV_PLT_CN, STATECD, INVYR, LAT, LON, ELEV)
//	COND  one row per condition of a plot measurement (PLT_CN, CONDID, ...)
//	TREE  one row per tree measurement (CN, PLT_CN, CONDID, PREV_TRE_CN, ...)
//
// CN is the control number, the unique key of a row. Plots are re-measured
// every inventory cycle; each new measurement gets a new CN and points at the
// previous one through PREV_PLT_CN (trees through PREV_TRE_CN).
//
// # Plot Identity
//
// Following PREV_PLT_CN links backwards from any measurement visits every
// earlier measurement of the same physical plot. [ResolveIdentities] groups
// measurements into these chains and numbers them. The numbers are only
// stable within one run: they are recomputed from whatever records the run
// was given.
//
// A predecessor CN that is absent from the input (filtered out, or from a
// cycle that was not loaded) still receives a group. Consumers joining other
// tables onto the identity map must expect such ids to have no row.
//
// # Condition Statistics
//
// Live trees are STATUSCD = 1, DIA > 1.0 inch and DIACHECK = 0. For these:
//
//	DIA, HT, TOTAGE, SITREE  mean over trees with a value
//	BIOMASS                  sum of CARBON_AG * 2 * TPA_UNADJ (lb/acre)
//	BALIVE                   sum of DIA^2 * 0.005454 * TPA_UNADJ (ft^2/acre)
//
// Condition variables (stand age, basal area, site index, forest type,
// disturbance) are reduced to their maximum per plot condition. STDAGE and
// BALIVE from COND are reported as stdage_cond and balive_cond so they do not
// collide with the tree-derived values.
//
// # State Codes
//
// STATECD is the two-digit FIPS code; [ParseState] also accepts USPS
// abbreviations.
package domain
