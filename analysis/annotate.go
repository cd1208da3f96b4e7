package analysis

import "github.com/Alain-L/rabbitlog/parser"

// Annotate classifies e in place: subsystem, labels, documentation URL and
// resolution URL, in that order. Fields that are already set are left alone,
// so annotating twice gives the same result as annotating once.
func Annotate(e *parser.ParsedEntry) {
	if e.SubsystemID == 0 {
		for _, m := range subsystemMatchers {
			if m.Matches(e) {
				e.SubsystemID = m.Subsystem().ID()
				break
			}
		}
	}

	labels := LabelSet(e.Labels) | MatchLabels(e)
	if labels.IsEmpty() {
		labels = LabelUnlabelled.Bit()
	}
	e.Labels = uint64(labels)

	if e.DocURLID == 0 {
		e.DocURLID = firstURL(docURLMatchers, e)
	}
	if e.ResolutionURLID == 0 {
		e.ResolutionURLID = firstURL(resolutionURLMatchers, e)
	}
}

// AnnotateAll annotates every entry of the slice.
func AnnotateAll(entries []parser.ParsedEntry) {
	for i := range entries {
		Annotate(&entries[i])
	}
}

func firstURL(matchers []URLMatcher, e *parser.ParsedEntry) int16 {
	for _, m := range matchers {
		if m.Matches(e) {
			return m.URLID()
		}
	}
	return 0
}
