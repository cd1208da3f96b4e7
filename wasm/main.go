//go:build js && wasm

// Package main provides the WASM entry point for rabbitlog.
// It exposes parsing, annotation, RQL and reports to JavaScript.
// Everything runs in memory; there is no database in the browser.
package main

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"syscall/js"

	"github.com/Alain-L/rabbitlog/analysis"
	"github.com/Alain-L/rabbitlog/ingest"
	"github.com/Alain-L/rabbitlog/output"
	"github.com/Alain-L/rabbitlog/parser"
	"github.com/Alain-L/rabbitlog/rql"
)

const version = "0.1.0-wasm"

// defaultNode labels entries pasted into the page.
const defaultNode = "rabbit@browser"

var perf = js.Global().Get("performance")

func now() float64 {
	return perf.Call("now").Float()
}

func formatDuration(ms int64) string {
	if ms < 1000 {
		return strconv.FormatInt(ms, 10) + "ms"
	}
	secs := float64(ms) / 1000
	return strconv.FormatFloat(secs, 'f', 2, 64) + "s"
}

func main() {
	js.Global().Set("rabbitlogReport", js.FuncOf(report))
	js.Global().Set("rabbitlogQuery", js.FuncOf(query))
	js.Global().Set("rabbitlogComplete", js.FuncOf(complete))
	js.Global().Set("rabbitlogDiagnose", js.FuncOf(diagnose))
	js.Global().Set("rabbitlogVersion", js.FuncOf(getVersion))
	select {}
}

func getVersion(this js.Value, args []js.Value) interface{} {
	return version
}

func errorJSON(msg string) string {
	b, _ := json.Marshal(map[string]string{"error": msg})
	return string(b)
}

// annotated parses and annotates the log text passed from JavaScript.
func annotated(content string) ([]parser.ParsedEntry, error) {
	entries, err := parser.ParseString(content)
	if err != nil {
		return nil, err
	}
	return ingest.AnnotateParallel(entries, 1), nil
}

// report(content) returns the analysis report as JSON.
func report(this js.Value, args []js.Value) interface{} {
	t0 := now()
	if len(args) < 1 || args[0].String() == "" {
		return errorJSON("No input provided")
	}

	entries, err := annotated(args[0].String())
	if err != nil {
		return errorJSON("Parse error: " + err.Error())
	}
	analyzer := analysis.NewStreamingAnalyzer(analysis.DefaultTopMessages)
	for i := range entries {
		analyzer.Process(defaultNode, &entries[i])
	}

	out := struct {
		output.ReportJSON
		ParseTime string `json:"parse_time"`
	}{
		ReportJSON: output.NewReportJSON(analyzer.Finalize()),
		ParseTime:  formatDuration(int64(now() - t0)),
	}
	b, err := json.Marshal(out)
	if err != nil {
		return errorJSON("JSON export error: " + err.Error())
	}
	return string(b)
}

// query(content, rql) runs an RQL query over the log text and returns the
// result as JSON, or the diagnostics when the query is invalid.
func query(this js.Value, args []js.Value) interface{} {
	if len(args) < 2 {
		return errorJSON("Usage: rabbitlogQuery(content, query)")
	}
	input := args[1].String()
	cq, err := rql.CompileString(input)
	if err != nil {
		return diagnosticsJSON(input)
	}

	entries, err := annotated(args[0].String())
	if err != nil {
		return errorJSON("Parse error: " + err.Error())
	}
	rows := make([]rql.Row, len(entries))
	for i := range entries {
		rows[i] = rql.RowFromEntry(defaultNode, &entries[i])
	}

	var buf bytes.Buffer
	if err := output.WriteJSON(&buf, cq.Execute(rows)); err != nil {
		return errorJSON("JSON export error: " + err.Error())
	}
	return strings.TrimSpace(buf.String())
}

type completionJSON struct {
	Text   string `json:"text"`
	Kind   string `json:"kind"`
	Detail string `json:"detail,omitempty"`
	Start  int    `json:"start"`
	End    int    `json:"end"`
}

// complete(input, cursor) returns completion candidates as JSON.
func complete(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		return "[]"
	}
	input := args[0].String()
	cursor := len(input)
	if len(args) >= 2 && args[1].Type() == js.TypeNumber {
		cursor = args[1].Int()
	}

	out := []completionJSON{}
	for _, c := range rql.Complete(input, cursor) {
		out = append(out, completionJSON{
			Text:   c.Text,
			Kind:   c.Kind.String(),
			Detail: c.Detail,
			Start:  c.Replace.Start,
			End:    c.Replace.End,
		})
	}
	b, _ := json.Marshal(out)
	return string(b)
}

// diagnose(input) returns the diagnostics of a query, an empty list when valid.
func diagnose(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		return "[]"
	}
	return diagnosticsJSON(args[0].String())
}

type diagnosticJSON struct {
	Kind        string   `json:"kind"`
	Message     string   `json:"message"`
	Start       int      `json:"start"`
	End         int      `json:"end"`
	Suggestions []string `json:"suggestions,omitempty"`
	Rendered    string   `json:"rendered"`
}

func diagnosticsJSON(input string) string {
	out := []diagnosticJSON{}
	for _, d := range rql.Diagnose(input) {
		out = append(out, diagnosticJSON{
			Kind:        d.Kind,
			Message:     d.Message,
			Start:       d.Span.Start,
			End:         d.Span.End,
			Suggestions: d.Suggestions,
			Rendered:    d.Render(input),
		})
	}
	b, _ := json.Marshal(map[string]any{"diagnostics": out})
	return string(b)
}
