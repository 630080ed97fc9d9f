package domain

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ErrUnknownState is returned for a state that has no FIPS code in the
// inventory.
var ErrUnknownState = errors.New("unknown state")

// stateCodes maps USPS abbreviations to the FIPS codes used as STATECD.
var stateCodes = map[string]int{
	"AL": 1, "AK": 2, "AZ": 4, "AR": 5, "CA": 6, "CO": 8, "CT": 9, "DE": 10,
	"DC": 11, "FL": 12, "GA": 13, "HI": 15, "ID": 16, "IL": 17, "IN": 18,
	"IA": 19, "KS": 20, "KY": 21, "LA": 22, "ME": 23, "MD": 24, "MA": 25,
	"MI": 26, "MN": 27, "MS": 28, "MO": 29, "MT": 30, "NE": 31, "NV": 32,
	"NH": 33, "NJ": 34, "NM": 35, "NY": 36, "NC": 37, "ND": 38, "OH": 39,
	"OK": 40, "OR": 41, "PA": 42, "RI": 44, "SC": 45, "SD": 46, "TN": 47,
	"TX": 48, "UT": 49, "VT": 50, "VA": 51, "WA": 53, "WV": 54, "WI": 55,
	"WY": 56, "PR": 72, "VI": 78,
}

var stateAbbrs = func() map[int]string {
	m := make(map[int]string, len(stateCodes))
	for abbr, code := range stateCodes {
		m[code] = abbr
	}
	return m
}()

// ParseState accepts a USPS abbreviation in any case ("or", "OR") or a FIPS
// code ("41", "041") and returns the FIPS code.
func ParseState(s string) (int, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.Atoi(s); err == nil {
		if _, ok := stateAbbrs[n]; ok {
			return n, nil
		}
		return 0, fmt.Errorf("%w: %q", ErrUnknownState, s)
	}
	if code, ok := stateCodes[strings.ToUpper(s)]; ok {
		return code, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownState, s)
}

// ParseStates parses a comma-separated list, dropping empty entries and
// duplicates. The result is sorted.
func ParseStates(list string) ([]int, error) {
	seen := make(map[int]bool)
	var out []int
	for _, part := range strings.Split(list, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		code, err := ParseState(part)
		if err != nil {
			return nil, err
		}
		if !seen[code] {
			seen[code] = true
			out = append(out, code)
		}
	}
	sort.Ints(out)
	return out, nil
}

// StateAbbr returns the USPS abbreviation for a FIPS code, or "" if unknown.
func StateAbbr(code int) string {
	return stateAbbrs[code]
}
