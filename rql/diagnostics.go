package rql

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// Diagnostic is a parse or compile error positioned in the query text.
type Diagnostic struct {
	// Kind is the error kind name, e.g. "unknown_label".
	Kind        string
	Message     string
	Span        Span
	Suggestions []string
	Err         error
}

// Diagnose parses and compiles input and reports the first error. It returns
// nil for a valid query.
func Diagnose(input string) []Diagnostic {
	q, err := Parse(input)
	if err == nil {
		_, err = Compile(q)
	}
	if err == nil {
		return nil
	}
	return []Diagnostic{diagnosticOf(err)}
}

func diagnosticOf(err error) Diagnostic {
	var pe *ParseError
	if errors.As(err, &pe) {
		d := Diagnostic{Kind: pe.Kind.String(), Message: pe.Message, Span: pe.Span, Err: err}
		if pe.Suggestion != "" {
			d.Suggestions = []string{pe.Suggestion}
		}
		return d
	}
	var ce *CompileError
	if errors.As(err, &ce) {
		return Diagnostic{Kind: ce.Kind.String(), Message: ce.Message, Span: ce.Span, Suggestions: ce.Suggestions, Err: err}
	}
	return Diagnostic{Kind: "error", Message: err.Error(), Err: err}
}

// Render prints the message, the offending line of input and a caret
// underline below the span.
//
//	error[unknown_label]: Unknown label 'rafft'. Valid labels: ...
//	  | #rafft and severity == "error"
//	  | ^^^^^^
//	  = did you mean 'raft'?
func (d Diagnostic) Render(input string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "error[%s]: %s\n", d.Kind, d.Message)

	start := min(max(d.Span.Start, 0), len(input))
	end := min(max(d.Span.End, start), len(input))

	lineStart := strings.LastIndexByte(input[:start], '\n') + 1
	lineEnd := len(input)
	if i := strings.IndexByte(input[start:], '\n'); i >= 0 {
		lineEnd = start + i
	}
	end = min(end, lineEnd)

	pad := utf8.RuneCountInString(input[lineStart:start])
	width := max(utf8.RuneCountInString(input[start:end]), 1)
	fmt.Fprintf(&b, "  | %s\n", input[lineStart:lineEnd])
	fmt.Fprintf(&b, "  | %s%s\n", strings.Repeat(" ", pad), strings.Repeat("^", width))
	if len(d.Suggestions) > 0 {
		fmt.Fprintf(&b, "  = did you mean '%s'?\n", d.Suggestions[0])
	}
	return b.String()
}
