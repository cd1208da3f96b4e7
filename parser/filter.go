package parser

import "time"

// EntryFilter decides whether an entry is kept.
type EntryFilter func(*ParsedEntry) bool

// TimeWindow returns a filter keeping entries within [begin, end]. Zero bounds are open.
func TimeWindow(begin, end time.Time) EntryFilter {
	return func(e *ParsedEntry) bool {
		if !begin.IsZero() && e.Timestamp.Before(begin) {
			return false
		}
		if !end.IsZero() && e.Timestamp.After(end) {
			return false
		}
		return true
	}
}

// MinSeverity returns a filter keeping entries at or above min.
func MinSeverity(min Severity) EntryFilter {
	return func(e *ParsedEntry) bool { return e.Severity >= min }
}

// AllOf combines filters; every filter must accept the entry.
func AllOf(filters ...EntryFilter) EntryFilter {
	return func(e *ParsedEntry) bool {
		for _, f := range filters {
			if f != nil && !f(e) {
				return false
			}
		}
		return true
	}
}

// FilterStream reads in, applies keep, and forwards accepted entries to out.
// out is closed when in is drained.
func FilterStream(in <-chan ParsedEntry, out chan<- ParsedEntry, keep EntryFilter) {
	defer close(out)

	for e := range in {
		if keep != nil && !keep(&e) {
			continue
		}
		out <- e
	}
}
