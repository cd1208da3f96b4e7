// Package output renders query results as terminal tables, JSON or Markdown.
package output

import (
	"fmt"
	"io"
	"strings"

	"github.com/Alain-L/rabbitlog/rql"
)

// Format selects a renderer.
type Format int

const (
	FormatText Format = iota
	FormatJSON
	FormatMarkdown
)

var formatNames = [...]string{
	FormatText:     "text",
	FormatJSON:     "json",
	FormatMarkdown: "md",
}

func (f Format) String() string { return formatNames[f] }

// ParseFormat accepts "text", "json" and "md" (or "markdown").
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "text", "table":
		return FormatText, nil
	case "json":
		return FormatJSON, nil
	case "md", "markdown":
		return FormatMarkdown, nil
	}
	return 0, fmt.Errorf("unknown output format %q (expected text, json or md)", s)
}

// Write renders res to w in format f. width bounds text tables; zero means
// the terminal width.
func Write(w io.Writer, res *rql.Result, f Format, width int) error {
	switch f {
	case FormatJSON:
		return WriteJSON(w, res)
	case FormatMarkdown:
		return WriteMarkdown(w, res)
	}
	if width <= 0 {
		width = TerminalWidth()
	}
	return WriteTable(w, res, width)
}

// formatBytes converts a byte count into a human-readable string.
func formatBytes(bytes int64) string {
	const (
		KB = 1024
		MB = 1024 * KB
		GB = 1024 * MB
	)
	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.2f GB", float64(bytes)/float64(GB))
	case bytes >= MB:
		return fmt.Sprintf("%.2f MB", float64(bytes)/float64(MB))
	case bytes >= KB:
		return fmt.Sprintf("%.2f KB", float64(bytes)/float64(KB))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
