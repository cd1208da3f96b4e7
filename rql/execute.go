package rql

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/expr-lang/expr"

	"github.com/Alain-L/rabbitlog/analysis"
	"github.com/Alain-L/rabbitlog/parser"
)

// Row is one stored entry as queries see it.
type Row struct {
	ID              int64
	Node            string
	Timestamp       time.Time
	Severity        parser.Severity
	ErlangPid       string
	SubsystemID     int16
	Message         string
	Labels          uint64
	ResolutionURLID int16
	DocURLID        int16

	lower string
}

// RowFromEntry converts an annotated entry read from node.
func RowFromEntry(node string, e *parser.ParsedEntry) Row {
	return Row{
		ID:              e.ID(),
		Node:            node,
		Timestamp:       e.Timestamp,
		Severity:        e.Severity,
		ErlangPid:       e.ProcessID,
		SubsystemID:     e.SubsystemID,
		Message:         e.Message,
		Labels:          e.Labels,
		ResolutionURLID: e.ResolutionURLID,
		DocURLID:        e.DocURLID,
		lower:           e.MessageLowercased,
	}
}

func (r *Row) messageLower() string {
	if r.lower == "" && r.Message != "" {
		r.lower = strings.ToLower(r.Message)
	}
	return r.lower
}

// Subsystem returns the subsystem name, or "" when absent.
func (r *Row) Subsystem() string {
	if s, ok := analysis.SubsystemFromID(r.SubsystemID); ok {
		return s.String()
	}
	return ""
}

// Value returns the typed value of a field.
func (r *Row) Value(f Field) any {
	switch f {
	case FieldSeverity:
		return r.Severity
	case FieldSubsystem:
		return r.Subsystem()
	case FieldNode:
		return r.Node
	case FieldErlangPid:
		return r.ErlangPid
	case FieldMessage:
		return r.Message
	case FieldLabels:
		return analysis.LabelSet(r.Labels)
	case FieldTimestamp:
		return r.Timestamp
	case FieldID:
		return r.ID
	}
	return nil
}

// RowColumns is the column order used to display whole rows.
var RowColumns = []Field{FieldID, FieldNode, FieldTimestamp, FieldSeverity, FieldErlangPid, FieldSubsystem, FieldLabels, FieldMessage}

// Result is the output of a query. Rows is set while whole rows flow through
// the pipeline; once a project, distinct or count_by stage runs, the output is
// Columns and Records instead.
type Result struct {
	Rows      []Row
	Columns   []string
	Records   [][]any
	Truncated bool
}

// Shaped reports whether a stage replaced whole rows with records.
func (r *Result) Shaped() bool { return r.Columns != nil }

// Len returns the number of output rows.
func (r *Result) Len() int {
	if r.Shaped() {
		return len(r.Records)
	}
	return len(r.Rows)
}

// Table renders the result as strings, whatever its shape.
func (r *Result) Table() ([]string, [][]string) {
	if r.Shaped() {
		out := make([][]string, len(r.Records))
		for i, rec := range r.Records {
			out[i] = make([]string, len(rec))
			for j, v := range rec {
				out[i][j] = FormatValue(v)
			}
		}
		return r.Columns, out
	}
	cols := make([]string, len(RowColumns))
	for i, f := range RowColumns {
		cols[i] = f.String()
	}
	out := make([][]string, len(r.Rows))
	for i := range r.Rows {
		rec := make([]string, len(RowColumns))
		for j, f := range RowColumns {
			rec[j] = FormatValue(r.Rows[i].Value(f))
		}
		out[i] = rec
	}
	return cols, out
}

// TimeLayout is how timestamps are displayed.
const TimeLayout = "2006-01-02T15:04:05.000000Z07:00"

// FormatValue renders one field value for display.
func FormatValue(v any) string {
	switch x := v.(type) {
	case time.Time:
		return x.UTC().Format(TimeLayout)
	case nil:
		return ""
	case string:
		return x
	case fmt.Stringer:
		return x.String()
	}
	return fmt.Sprint(v)
}

// Matches evaluates the predicate against r.
func (c *CompiledQuery) Matches(r *Row) bool {
	env := envPool.Get().(*Env)
	env.load(r)
	out, err := expr.Run(c.program, env)
	envPool.Put(env)
	if err != nil {
		return false
	}
	ok, _ := out.(bool)
	return ok
}

// Execute filters rows in memory and runs the whole pipeline.
func (c *CompiledQuery) Execute(rows []Row) *Result {
	matched := make([]Row, 0, len(rows))
	for i := range rows {
		if c.Matches(&rows[i]) {
			matched = append(matched, rows[i])
		}
	}
	return c.finish(matched, c.Pipeline)
}

// Finish completes a query whose SQL part ran according to plan. Rows are the
// ones the store returned; they are post-filtered when needed and the stages
// the plan did not push down are applied.
func (c *CompiledQuery) Finish(rows []Row, plan SQLPlan) *Result {
	if c.PostFilter {
		kept := rows[:0]
		for i := range rows {
			if c.Matches(&rows[i]) {
				kept = append(kept, rows[i])
			}
		}
		rows = kept
	}
	return c.finish(rows, c.Pipeline[plan.Pushed:])
}

func (c *CompiledQuery) finish(rows []Row, stages []Stage) *Result {
	res := &Result{Rows: rows}
	var cols []Field
	for _, st := range stages {
		switch s := st.(type) {
		case *LimitStage:
			res.keep(0, s.N)
		case *HeadStage:
			res.keep(0, s.N)
		case *OffsetStage:
			res.keep(s.N, res.Len())
		case *TailStage:
			res.keep(res.Len()-s.N, res.Len())
		case *SortStage:
			if res.Shaped() {
				sortRecords(res.Records, slices.Index(cols, s.Field), s.Descending)
			} else {
				sortRows(res.Rows, s.Field, s.Descending)
			}
		case *ProjectStage:
			cols = res.project(cols, s.Fields)
		case *DistinctStage:
			cols = res.project(cols, s.Fields)
			res.Records = distinct(res.Records)
		case *CountByStage:
			cols = res.countBy(cols, s.Field)
		}
	}
	if c.DefaultLimit > 0 && !c.hasLimit() && res.Len() > c.DefaultLimit {
		res.keep(0, c.DefaultLimit)
		res.Truncated = true
	}
	return res
}

func (c *CompiledQuery) hasLimit() bool {
	for _, st := range c.Pipeline {
		switch st.(type) {
		case *LimitStage, *HeadStage, *TailStage:
			return true
		}
	}
	return false
}

// keep narrows the output to [from, to), clamped to its bounds.
func (r *Result) keep(from, to int) {
	n := r.Len()
	from = min(max(from, 0), n)
	to = min(max(to, from), n)
	if r.Shaped() {
		r.Records = r.Records[from:to]
	} else {
		r.Rows = r.Rows[from:to]
	}
}

// project switches the result to records holding fields. cols is the current
// record layout, nil while whole rows are kept.
func (r *Result) project(cols, fields []Field) []Field {
	if r.Shaped() {
		idx := make([]int, len(fields))
		for i, f := range fields {
			idx[i] = slices.Index(cols, f)
		}
		for i, rec := range r.Records {
			next := make([]any, len(idx))
			for j, k := range idx {
				next[j] = rec[k]
			}
			r.Records[i] = next
		}
	} else {
		r.Records = make([][]any, len(r.Rows))
		for i := range r.Rows {
			rec := make([]any, len(fields))
			for j, f := range fields {
				rec[j] = r.Rows[i].Value(f)
			}
			r.Records[i] = rec
		}
		r.Rows = nil
	}
	r.Columns = fieldStrings(fields)
	return fields
}

// countBy groups by field, or counts everything when field is nil. Groups are
// ordered by count, largest first, then by first appearance.
func (r *Result) countBy(cols []Field, field *Field) []Field {
	if field == nil {
		r.Columns = []string{"count"}
		r.Records = [][]any{{int64(r.Len())}}
		r.Rows = nil
		return nil
	}

	type group struct {
		value any
		count int64
	}
	var groups []*group
	index := make(map[string]*group)
	add := func(v any) {
		key := FormatValue(v)
		g, ok := index[key]
		if !ok {
			g = &group{value: v}
			index[key] = g
			groups = append(groups, g)
		}
		g.count++
	}
	if r.Shaped() {
		k := slices.Index(cols, *field)
		for _, rec := range r.Records {
			add(rec[k])
		}
	} else {
		for i := range r.Rows {
			add(r.Rows[i].Value(*field))
		}
	}
	slices.SortStableFunc(groups, func(a, b *group) int { return cmp.Compare(b.count, a.count) })

	r.Rows = nil
	r.Columns = []string{field.String(), "count"}
	r.Records = make([][]any, len(groups))
	for i, g := range groups {
		r.Records[i] = []any{g.value, g.count}
	}
	return []Field{*field}
}

func distinct(records [][]any) [][]any {
	seen := make(map[string]bool, len(records))
	out := records[:0]
	for _, rec := range records {
		parts := make([]string, len(rec))
		for i, v := range rec {
			parts[i] = FormatValue(v)
		}
		key := strings.Join(parts, "\x00")
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, rec)
	}
	return out
}

func fieldStrings(fields []Field) []string {
	out := make([]string, len(fields))
	for i, f := range fields {
		out[i] = f.String()
	}
	return out
}

func sortRows(rows []Row, f Field, desc bool) {
	slices.SortStableFunc(rows, func(a, b Row) int {
		c := compareValues(a.Value(f), b.Value(f))
		if c == 0 {
			return cmp.Compare(a.ID, b.ID)
		}
		if desc {
			return -c
		}
		return c
	})
}

func sortRecords(records [][]any, k int, desc bool) {
	if k < 0 {
		return
	}
	slices.SortStableFunc(records, func(a, b []any) int {
		c := compareValues(a[k], b[k])
		if desc {
			return -c
		}
		return c
	})
}

func compareValues(a, b any) int {
	switch x := a.(type) {
	case parser.Severity:
		return cmp.Compare(x, b.(parser.Severity))
	case time.Time:
		return x.Compare(b.(time.Time))
	case int64:
		return cmp.Compare(x, b.(int64))
	case string:
		return strings.Compare(x, b.(string))
	case analysis.LabelSet:
		return cmp.Compare(x, b.(analysis.LabelSet))
	}
	return strings.Compare(FormatValue(a), FormatValue(b))
}
