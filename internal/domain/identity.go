package domain

import (
	"fmt"
	"sort"
	"strings"
)

// Record is one survey observation as seen by the identity resolver: its own
// control number and, when the plot or tree was measured before, the control
// number of that earlier measurement.
type Record struct {
	ID   string
	Prev *string // nil when the observation has no predecessor
}

// NewRecord builds a Record from raw cells. Both values are trimmed, and a
// prev that is blank or a missing-value marker means no predecessor.
func NewRecord(id, prev string) Record {
	r := Record{ID: strings.TrimSpace(id)}
	if p, ok := NormalizeID(prev); ok {
		r.Prev = &p
	}
	return r
}

// NormalizeID trims s and reports whether what remains is a usable control
// number rather than a blank or one of the missing-value markers found in
// FIA exports (NA, NaN, NULL, in any case).
func NormalizeID(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if isMissing(s) {
		return "", false
	}
	return s, true
}

func isMissing(s string) bool {
	switch strings.ToUpper(s) {
	case "", "NA", "NAN", "NULL":
		return true
	}
	return false
}

// InvalidRecordError reports a record without a usable primary identifier.
// It signals malformed input and is never retried.
type InvalidRecordError struct {
	Index  int
	Reason string
}

func (e *InvalidRecordError) Error() string {
	return fmt.Sprintf("invalid record at index %d: %s", e.Index, e.Reason)
}

// IdentityMap assigns every control number seen by ResolveIdentities to the
// group of measurements it belongs to. Group ids are dense in [0, Groups()).
type IdentityMap struct {
	groups  map[string]int
	ngroups int
}

// Lookup returns the group id for a control number.
func (m IdentityMap) Lookup(id string) (int, bool) {
	g, ok := m.groups[id]
	return g, ok
}

// Len returns the number of control numbers in the map, phantom
// predecessors included.
func (m IdentityMap) Len() int { return len(m.groups) }

// Groups returns the number of distinct groups.
func (m IdentityMap) Groups() int { return m.ngroups }

// Members returns the sorted control numbers that belong to group g.
func (m IdentityMap) Members(g int) []string {
	var out []string
	for id, gid := range m.groups {
		if gid == g {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

// All returns a copy of the id -> group mapping.
func (m IdentityMap) All() map[string]int {
	out := make(map[string]int, len(m.groups))
	for id, g := range m.groups {
		out[id] = g
	}
	return out
}

// ResolveIdentities partitions records into re-measurement chains. A record
// and its predecessor always share a group, so chains of any length collapse
// into one group. A predecessor that never appears as a primary key still
// gets an entry, in the same group as the record that references it.
// Records whose predecessor is themselves are treated as having none.
//
// Identifiers are trimmed before use. A primary identifier that is blank or
// a missing-value marker fails with InvalidRecordError; such a predecessor
// is treated as absent.
//
// Group ids follow the order in which each chain's first control number
// appears in the input.
func ResolveIdentities(records []Record) (IdentityMap, error) {
	ids := make([]string, len(records))
	for i, r := range records {
		id, ok := NormalizeID(r.ID)
		if !ok {
			return IdentityMap{}, &InvalidRecordError{Index: i, Reason: "missing primary identifier"}
		}
		ids[i] = id
	}

	uf := newDisjointSet(len(records))
	for i, r := range records {
		x := uf.add(ids[i])
		if r.Prev == nil {
			continue
		}
		prev, ok := NormalizeID(*r.Prev)
		if !ok || prev == ids[i] {
			continue
		}
		uf.union(x, uf.add(prev))
	}

	groups := make(map[string]int, len(uf.ids))
	label := make(map[int]int)
	for i, id := range uf.ids {
		root := uf.find(i)
		g, ok := label[root]
		if !ok {
			g = len(label)
			label[root] = g
		}
		groups[id] = g
	}
	return IdentityMap{groups: groups, ngroups: len(label)}, nil
}

// disjointSet is a union-find over control numbers. Nodes are numbered in
// first-seen order.
type disjointSet struct {
	index  map[string]int
	ids    []string
	parent []int
	rank   []int
}

func newDisjointSet(capacity int) *disjointSet {
	return &disjointSet{
		index:  make(map[string]int, capacity),
		ids:    make([]string, 0, capacity),
		parent: make([]int, 0, capacity),
		rank:   make([]int, 0, capacity),
	}
}

// add returns the node for id, creating a singleton if it is new.
func (s *disjointSet) add(id string) int {
	if i, ok := s.index[id]; ok {
		return i
	}
	i := len(s.ids)
	s.index[id] = i
	s.ids = append(s.ids, id)
	s.parent = append(s.parent, i)
	s.rank = append(s.rank, 0)
	return i
}

// find returns the root of x, halving the path as it goes.
func (s *disjointSet) find(x int) int {
	for s.parent[x] != x {
		s.parent[x] = s.parent[s.parent[x]]
		x = s.parent[x]
	}
	return x
}

func (s *disjointSet) union(x, y int) {
	rx, ry := s.find(x), s.find(y)
	if rx == ry {
		return
	}
	switch {
	case s.rank[rx] < s.rank[ry]:
		s.parent[rx] = ry
	case s.rank[rx] > s.rank[ry]:
		s.parent[ry] = rx
	default:
		s.parent[ry] = rx
		s.rank[rx]++
	}
}
