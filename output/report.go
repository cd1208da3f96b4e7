package output

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/Alain-L/rabbitlog/analysis"
	"github.com/Alain-L/rabbitlog/parser"
	"github.com/Alain-L/rabbitlog/rql"
)

// reportTop is the number of rows printed per ranked section.
const reportTop = 10

// WriteReport renders an analysis report in format f.
func WriteReport(w io.Writer, r analysis.Report, f Format) error {
	switch f {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(NewReportJSON(r))
	case FormatMarkdown:
		return writeReportMarkdown(w, r)
	}
	return writeReportText(w, r)
}

func writeReportText(w io.Writer, r analysis.Report) error {
	b, rs := "", ""
	if isTerminal(w) {
		b, rs = bold, reset
	}
	var out strings.Builder
	section := func(title string) {
		fmt.Fprintf(&out, "\n%s%s%s\n\n", b, title, rs)
	}

	g := r.Global
	duration := g.MaxTimestamp.Sub(g.MinTimestamp)
	section("SUMMARY")
	fmt.Fprintf(&out, "  %-25s : %s\n", "Start date", g.MinTimestamp.Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(&out, "  %-25s : %s\n", "End date", g.MaxTimestamp.Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(&out, "  %-25s : %s\n", "Duration", duration)
	fmt.Fprintf(&out, "  %-25s : %d\n", "Total entries", g.Count)
	fmt.Fprintf(&out, "  %-25s : %d\n", "Multi-line entries", g.Multiline)
	fmt.Fprintf(&out, "  %-25s : %d\n", "Unlabelled entries", g.Unlabelled)
	if duration > 0 {
		fmt.Fprintf(&out, "  %-25s : %.2f entries/s\n", "Throughput", float64(g.Count)/duration.Seconds())
	}

	section("SEVERITIES")
	for i := len(g.BySeverity) - 1; i >= 0; i-- {
		fmt.Fprintf(&out, "  %-10s : %d\n", parser.Severity(i), g.BySeverity[i])
	}

	writeCounts(&out, section, "NODES", r.Nodes)
	writeCounts(&out, section, "SUBSYSTEMS", r.Subsystems)
	writeCounts(&out, section, "LABELS", r.Labels)

	if len(r.TopMessages) > 0 {
		section("TOP WARNINGS AND ERRORS")
		for _, m := range r.TopMessages {
			fmt.Fprintf(&out, "  %6d  %-8s  %s\n", m.Count, m.Severity, m.Signature)
		}
	}

	writeCounts(&out, section, "DOCUMENTATION", r.DocLinks)
	writeCounts(&out, section, "KNOWN ISSUES", r.KnownIssues)

	_, err := io.WriteString(w, out.String())
	return err
}

func writeCounts(out *strings.Builder, section func(string), title string, items []analysis.EntityCount) {
	if len(items) == 0 {
		return
	}
	section(title)
	items = items[:min(len(items), reportTop)]
	width := 0
	for _, it := range items {
		width = max(width, len(it.Name))
	}
	for _, it := range items {
		fmt.Fprintf(out, "  %-*s : %d\n", width, it.Name, it.Count)
	}
}

func writeReportMarkdown(w io.Writer, r analysis.Report) error {
	var out strings.Builder
	g := r.Global
	fmt.Fprintf(&out, "## Summary\n\n")
	fmt.Fprintf(&out, "| | |\n|---|---:|\n")
	fmt.Fprintf(&out, "| Start date | %s |\n", g.MinTimestamp.Format(time.RFC3339))
	fmt.Fprintf(&out, "| End date | %s |\n", g.MaxTimestamp.Format(time.RFC3339))
	fmt.Fprintf(&out, "| Total entries | %d |\n", g.Count)
	for i := len(g.BySeverity) - 1; i >= 0; i-- {
		fmt.Fprintf(&out, "| %s | %d |\n", parser.Severity(i), g.BySeverity[i])
	}

	table := func(title string, items []analysis.EntityCount) {
		if len(items) == 0 {
			return
		}
		fmt.Fprintf(&out, "\n## %s\n\n| name | count |\n|---|---:|\n", title)
		for _, it := range items[:min(len(items), reportTop)] {
			fmt.Fprintf(&out, "| %s | %d |\n", escapeMarkdown(it.Name), it.Count)
		}
	}
	table("Nodes", r.Nodes)
	table("Subsystems", r.Subsystems)
	table("Labels", r.Labels)

	if len(r.TopMessages) > 0 {
		fmt.Fprintf(&out, "\n## Top warnings and errors\n\n| count | severity | message |\n|---:|---|---|\n")
		for _, m := range r.TopMessages {
			fmt.Fprintf(&out, "| %d | %s | %s |\n", m.Count, m.Severity, escapeMarkdown(m.Signature))
		}
	}
	table("Documentation", r.DocLinks)
	table("Known issues", r.KnownIssues)

	_, err := io.WriteString(w, out.String())
	return err
}

// ReportJSON is the JSON form of an analysis report.
type ReportJSON struct {
	Start       string                 `json:"start,omitempty"`
	End         string                 `json:"end,omitempty"`
	Entries     int                    `json:"entries"`
	Multiline   int                    `json:"multiline"`
	Unlabelled  int                    `json:"unlabelled"`
	Severities  map[string]int         `json:"severities"`
	Nodes       []analysis.EntityCount `json:"nodes"`
	Subsystems  []analysis.EntityCount `json:"subsystems"`
	Labels      []analysis.EntityCount `json:"labels"`
	DocLinks    []analysis.EntityCount `json:"doc_links"`
	KnownIssues []analysis.EntityCount `json:"known_issues"`
	TopMessages []MessageJSON          `json:"top_messages"`
}

// MessageJSON is one message signature.
type MessageJSON struct {
	Signature string `json:"signature"`
	Count     int    `json:"count"`
	Severity  string `json:"severity"`
	Example   string `json:"example"`
}

// NewReportJSON converts a report for encoding.
func NewReportJSON(r analysis.Report) ReportJSON {
	g := r.Global
	out := ReportJSON{
		Entries:     g.Count,
		Multiline:   g.Multiline,
		Unlabelled:  g.Unlabelled,
		Severities:  make(map[string]int, len(g.BySeverity)),
		Nodes:       r.Nodes,
		Subsystems:  r.Subsystems,
		Labels:      r.Labels,
		DocLinks:    r.DocLinks,
		KnownIssues: r.KnownIssues,
		TopMessages: make([]MessageJSON, 0, len(r.TopMessages)),
	}
	if g.Count > 0 {
		out.Start = g.MinTimestamp.Format(rql.TimeLayout)
		out.End = g.MaxTimestamp.Format(rql.TimeLayout)
	}
	for i, n := range g.BySeverity {
		out.Severities[parser.Severity(i).String()] = n
	}
	for _, m := range r.TopMessages {
		out.TopMessages = append(out.TopMessages, MessageJSON{
			Signature: m.Signature,
			Count:     m.Count,
			Severity:  m.Severity.String(),
			Example:   m.Example,
		})
	}
	return out
}
