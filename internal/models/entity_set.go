// -----------------------------------------------------------------------
// Entity Set - Structured facts extracted from a report text
// -----------------------------------------------------------------------

package models

import (
	"sort"
)

// EntitySet holds the salient facts extracted from one text: person names,
// investigative roles, labeled case/report numbers, dates, times, national
// identifier numbers, locations and section headings. Each collection is a
// set - no duplicates, no order. Two extractions over identical text must
// produce equal sets, otherwise diffing original against rewritten text is
// meaningless.
type EntitySet struct {
	Names       map[string]bool
	Roles       map[string]bool
	CaseNumbers map[string]bool
	Dates       map[string]bool
	Times       map[string]bool
	NationalIDs map[string]bool
	Locations   map[string]bool
	Sections    map[string]bool
}

// NewEntitySet creates an EntitySet with all collections initialized
func NewEntitySet() *EntitySet {
	return &EntitySet{
		Names:       make(map[string]bool),
		Roles:       make(map[string]bool),
		CaseNumbers: make(map[string]bool),
		Dates:       make(map[string]bool),
		Times:       make(map[string]bool),
		NationalIDs: make(map[string]bool),
		Locations:   make(map[string]bool),
		Sections:    make(map[string]bool),
	}
}

// Subtract returns the members of a that are absent from b, sorted for
// stable violation messages.
func Subtract(a, b map[string]bool) []string {
	var diff []string
	for member := range a {
		if !b[member] {
			diff = append(diff, member)
		}
	}
	sort.Strings(diff)
	return diff
}

// SetMembers returns the members of a set as a sorted slice
func SetMembers(set map[string]bool) []string {
	members := make([]string, 0, len(set))
	for member := range set {
		members = append(members, member)
	}
	sort.Strings(members)
	return members
}
