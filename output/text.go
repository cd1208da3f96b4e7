package output

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/term"

	"github.com/Alain-L/rabbitlog/rql"
)

const (
	bold  = "\033[1m"
	reset = "\033[0m"

	// defaultWidth is used when stdout is not a terminal.
	defaultWidth = 120

	// minLastColumn is the narrowest the last column is squeezed to.
	minLastColumn = 20
)

// TerminalWidth returns the width of stdout, or 120 when it is not a terminal.
func TerminalWidth() int {
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 {
		return w
	}
	return defaultWidth
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// rightAligned lists the columns printed flush right.
var rightAligned = map[string]bool{"id": true, "count": true}

// WriteTable prints res as an aligned table no wider than width. The last
// column is truncated to fit; multi-line values show their first line and
// the number of lines left out.
func WriteTable(w io.Writer, res *rql.Result, width int) error {
	cols, records := res.Table()
	if len(records) == 0 {
		_, err := fmt.Fprintln(w, "(no results)")
		return err
	}

	cells := make([][]string, len(records))
	widths := make([]int, len(cols))
	for i, c := range cols {
		widths[i] = utf8.RuneCountInString(c)
	}
	for r, rec := range records {
		cells[r] = make([]string, len(rec))
		for i, v := range rec {
			cells[r][i] = firstLine(v)
			widths[i] = max(widths[i], utf8.RuneCountInString(cells[r][i]))
		}
	}

	last := len(cols) - 1
	used := 0
	for i := 0; i < last; i++ {
		used += widths[i] + 2
	}
	if width > 0 && used+widths[last] > width {
		widths[last] = max(width-used, minLastColumn)
	}

	header := make([]string, len(cols))
	for i, c := range cols {
		header[i] = pad(c, widths[i], rightAligned[c])
	}
	hdr := strings.TrimRight(strings.Join(header, "  "), " ")
	if isTerminal(w) {
		hdr = bold + hdr + reset
	}
	if _, err := fmt.Fprintln(w, hdr); err != nil {
		return err
	}
	total := used + widths[last]
	if _, err := fmt.Fprintln(w, strings.Repeat("-", total)); err != nil {
		return err
	}

	for _, row := range cells {
		parts := make([]string, len(row))
		for i, v := range row {
			parts[i] = pad(truncate(v, widths[i]), widths[i], rightAligned[cols[i]])
		}
		if _, err := fmt.Fprintln(w, strings.TrimRight(strings.Join(parts, "  "), " ")); err != nil {
			return err
		}
	}
	return nil
}

// WriteSummary prints the one-line footer of a query.
func WriteSummary(w io.Writer, res *rql.Result, elapsed time.Duration) error {
	note := ""
	if res.Truncated {
		note = " (truncated, add a limit stage to see more)"
	}
	_, err := fmt.Fprintf(w, "rabbitlog – %d rows in %.3f s%s\n", res.Len(), elapsed.Seconds(), note)
	return err
}

// WriteIngestSummary prints the footer of an ingestion run.
func WriteIngestSummary(w io.Writer, entries, files int, elapsed time.Duration, size int64) error {
	_, err := fmt.Fprintf(w, "rabbitlog – %d entries from %d files ingested in %.2f s (%s)\n",
		entries, files, elapsed.Seconds(), formatBytes(size))
	return err
}

func firstLine(s string) string {
	i := strings.IndexByte(s, '\n')
	if i < 0 {
		return s
	}
	extra := strings.Count(s[i:], "\n")
	return fmt.Sprintf("%s [+%d lines]", s[:i], extra)
}

// truncate shortens s to n runes, marking the cut with an ellipsis.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	if n <= 1 {
		return "…"
	}
	runes := []rune(s)
	return string(runes[:n-1]) + "…"
}

func pad(s string, n int, right bool) string {
	gap := n - utf8.RuneCountInString(s)
	if gap <= 0 {
		return s
	}
	if right {
		return strings.Repeat(" ", gap) + s
	}
	return s + strings.Repeat(" ", gap)
}
