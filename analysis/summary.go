package analysis

import (
	"time"

	"github.com/Alain-L/rabbitlog/parser"
)

// GlobalMetrics aggregates general statistics over annotated entries.
type GlobalMetrics struct {
	// Count is the total number of entries processed.
	Count int

	// MinTimestamp is the timestamp of the earliest entry.
	MinTimestamp time.Time

	// MaxTimestamp is the timestamp of the latest entry.
	MaxTimestamp time.Time

	// BySeverity counts entries per severity, indexed by parser.Severity.
	BySeverity [6]int

	// Multiline is the number of entries spanning several lines.
	Multiline int

	// Unlabelled is the number of entries no label matcher recognised.
	Unlabelled int
}

// MessageStat is one normalized message signature.
type MessageStat struct {
	// Signature is the normalized message, see NormalizeMessage.
	Signature string

	Count int

	// Severity is the highest severity seen for the signature.
	Severity parser.Severity

	// Example is the first message seen with this signature.
	Example string
}

// Report is the result of a StreamingAnalyzer run.
type Report struct {
	Global GlobalMetrics

	Nodes      []EntityCount
	Subsystems []EntityCount
	Labels     []EntityCount

	// DocLinks and KnownIssues count entries per linked URL.
	DocLinks    []EntityCount
	KnownIssues []EntityCount

	// TopMessages holds the most frequent warning-or-worse signatures.
	TopMessages []MessageStat
}

// DefaultTopMessages is the number of signatures a Report keeps.
const DefaultTopMessages = 10

// StreamingAnalyzer aggregates annotated entries one at a time without
// keeping them in memory.
//
// Usage:
//
//	analyzer := NewStreamingAnalyzer(analysis.DefaultTopMessages)
//	for _, e := range entries {
//	    analyzer.Process(node, &e)
//	}
//	report := analyzer.Finalize()
type StreamingAnalyzer struct {
	global     GlobalMetrics
	nodes      map[string]int
	subsystems map[string]int
	labels     map[string]int
	docs       map[string]int
	issues     map[string]int
	messages   map[string]*MessageStat
	top        int
}

// NewStreamingAnalyzer returns an analyzer keeping the top signatures.
func NewStreamingAnalyzer(top int) *StreamingAnalyzer {
	if top <= 0 {
		top = DefaultTopMessages
	}
	return &StreamingAnalyzer{
		nodes:      make(map[string]int),
		subsystems: make(map[string]int),
		labels:     make(map[string]int),
		docs:       make(map[string]int),
		issues:     make(map[string]int),
		messages:   make(map[string]*MessageStat),
		top:        top,
	}
}

// Process adds one annotated entry read from node.
func (sa *StreamingAnalyzer) Process(node string, e *parser.ParsedEntry) {
	g := &sa.global
	g.Count++
	if g.MinTimestamp.IsZero() || e.Timestamp.Before(g.MinTimestamp) {
		g.MinTimestamp = e.Timestamp
	}
	if g.MaxTimestamp.IsZero() || e.Timestamp.After(g.MaxTimestamp) {
		g.MaxTimestamp = e.Timestamp
	}
	if e.Severity.Valid() {
		g.BySeverity[e.Severity]++
	}
	if e.IsMultiline() {
		g.Multiline++
	}

	sa.nodes[node]++
	if s, ok := SubsystemFromID(e.SubsystemID); ok {
		sa.subsystems[s.String()]++
	}

	labels := LabelSet(e.Labels)
	if labels.IsEmpty() || labels == LabelUnlabelled.Bit() {
		g.Unlabelled++
	} else {
		for _, name := range labels.Names() {
			sa.labels[name]++
		}
	}
	if u, ok := DocURL(e.DocURLID); ok {
		sa.docs[u]++
	}
	if u, ok := ResolutionURL(e.ResolutionURLID); ok {
		sa.issues[u]++
	}

	if e.Severity >= parser.SeverityWarning {
		sig := NormalizeMessage(e.Message)
		st, ok := sa.messages[sig]
		if !ok {
			st = &MessageStat{Signature: sig, Severity: e.Severity, Example: firstLine(e.Message)}
			sa.messages[sig] = st
		}
		st.Count++
		st.Severity = max(st.Severity, e.Severity)
	}
}

// Finalize returns the report. The analyzer can keep processing afterwards.
func (sa *StreamingAnalyzer) Finalize() Report {
	return Report{
		Global:      sa.global,
		Nodes:       SortByCount(sa.nodes),
		Subsystems:  SortByCount(sa.subsystems),
		Labels:      SortByCount(sa.labels),
		DocLinks:    SortByCount(sa.docs),
		KnownIssues: SortByCount(sa.issues),
		TopMessages: topMessages(sa.messages, sa.top),
	}
}

func firstLine(s string) string {
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			return s[:i]
		}
	}
	return s
}
