package entity

import (
	"sort"
	"strings"
)

// Well-known extended attribute groups. Resource types define further
// groups of their own; any string is accepted.
const (
	XAGAll  = "All"
	XAGNone = "None"
)

// XAG is a selection of extended attribute groups for a request. The
// selection controls which optional sub-trees the server includes in the
// response. A nil XAG means "group=None" (the server's minimal payload);
// an explicitly empty XAG omits the group parameter entirely, yielding the
// server's default behavior for that URI.
type XAG []string

// QueryValue renders the selection as the value of the group query
// parameter: alpha-sorted, deduplicated, comma-separated.
func (x XAG) QueryValue() string {
	if x == nil {
		return XAGNone
	}
	seen := make(map[string]bool, len(x))
	groups := make([]string, 0, len(x))
	for _, g := range x {
		if g == "" || seen[g] {
			continue
		}
		seen[g] = true
		groups = append(groups, g)
	}
	sort.Strings(groups)
	return strings.Join(groups, ",")
}

// Omit reports whether the group parameter should be left off the request
// entirely (explicit empty, non-nil selection).
func (x XAG) Omit() bool {
	return x != nil && len(x) == 0
}
