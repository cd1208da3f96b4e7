package analysis

import (
	"cmp"
	"slices"
	"sort"
)

// EntityCount represents an entity with its occurrence count.
type EntityCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// SortByCount converts a count map to a sorted slice of EntityCount.
// Entities are sorted by count (descending), with alphabetical ordering as tiebreaker.
func SortByCount(counts map[string]int) []EntityCount {
	items := make([]EntityCount, 0, len(counts))
	for name, count := range counts {
		items = append(items, EntityCount{Name: name, Count: count})
	}

	sort.Slice(items, func(i, j int) bool {
		if items[i].Count != items[j].Count {
			return items[i].Count > items[j].Count
		}
		return items[i].Name < items[j].Name
	})

	return items
}

// topMessages returns the n most frequent signatures, most severe first on ties.
func topMessages(stats map[string]*MessageStat, n int) []MessageStat {
	items := make([]MessageStat, 0, len(stats))
	for _, st := range stats {
		items = append(items, *st)
	}
	slices.SortFunc(items, func(a, b MessageStat) int {
		if c := cmp.Compare(b.Count, a.Count); c != 0 {
			return c
		}
		if c := cmp.Compare(b.Severity, a.Severity); c != 0 {
			return c
		}
		return cmp.Compare(a.Signature, b.Signature)
	})
	if len(items) > n {
		items = items[:n]
	}
	return items
}
