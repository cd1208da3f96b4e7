package output

import (
	"fmt"
	"io"
	"strings"

	"github.com/Alain-L/rabbitlog/rql"
)

// WriteMarkdown prints res as a GitHub-flavoured Markdown table. Multi-line
// values are joined with <br>.
func WriteMarkdown(w io.Writer, res *rql.Result) error {
	cols, records := res.Table()

	var b strings.Builder
	b.WriteString("| " + strings.Join(cols, " | ") + " |\n")
	b.WriteString("|")
	for _, c := range cols {
		if rightAligned[c] {
			b.WriteString("---:|")
		} else {
			b.WriteString("---|")
		}
	}
	b.WriteString("\n")

	for _, rec := range records {
		cells := make([]string, len(rec))
		for i, v := range rec {
			cells[i] = escapeMarkdown(v)
		}
		b.WriteString("| " + strings.Join(cells, " | ") + " |\n")
	}

	if res.Truncated {
		b.WriteString(fmt.Sprintf("\n_Showing the first %d rows; the result was truncated._\n", res.Len()))
	}

	_, err := io.WriteString(w, b.String())
	return err
}

var markdownEscaper = strings.NewReplacer(
	"|", `\|`,
	"\r\n", "<br>",
	"\n", "<br>",
)

func escapeMarkdown(s string) string {
	return markdownEscaper.Replace(s)
}
