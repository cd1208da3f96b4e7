// Package rql implements the RabbitMQ log query language.
//
// A query is an optional time window, an optional selector, a boolean filter
// and a pipeline of stages:
//
//	@1h {node="rabbit@a"} severity >= "warning" and not #raft | sort timestamp desc | limit 20
//
// Parse turns text into a *Query, Compile lowers a *Query into an in-memory
// predicate plus parameterised SQL fragments for the store.
package rql

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Field is a filterable column.
type Field int

const (
	FieldSeverity Field = iota
	FieldSubsystem
	FieldNode
	FieldErlangPid
	FieldMessage
	FieldLabels
	FieldTimestamp
	FieldID

	fieldCount
)

var fieldNames = [fieldCount]string{
	FieldSeverity:  "severity",
	FieldSubsystem: "subsystem",
	FieldNode:      "node",
	FieldErlangPid: "erlang_pid",
	FieldMessage:   "message",
	FieldLabels:    "labels",
	FieldTimestamp: "timestamp",
	FieldID:        "id",
}

var fieldColumns = [fieldCount]string{
	FieldSeverity:  "severity",
	FieldSubsystem: "subsystem_id",
	FieldNode:      "node",
	FieldErlangPid: "erlang_pid",
	FieldMessage:   "message",
	FieldLabels:    "labels",
	FieldTimestamp: "timestamp",
	FieldID:        "id",
}

func (f Field) String() string {
	if f < 0 || f >= fieldCount {
		return fmt.Sprintf("field(%d)", int(f))
	}
	return fieldNames[f]
}

// Column returns the storage column backing the field.
func (f Field) Column() string {
	if f < 0 || f >= fieldCount {
		return ""
	}
	return fieldColumns[f]
}

// FieldFromName looks a field up by its query name.
func FieldFromName(name string) (Field, bool) {
	name = strings.ToLower(name)
	for i, n := range fieldNames {
		if n == name {
			return Field(i), true
		}
	}
	return 0, false
}

// FieldNames returns the field vocabulary.
func FieldNames() []string {
	return append([]string(nil), fieldNames[:]...)
}

// Op is a comparison operator.
type Op int

const (
	OpEq Op = iota
	OpNe
	OpLt
	OpLe
	OpGt
	OpGe
	OpRegex
	OpNotRegex
	OpContains
	OpIContains
)

var opNames = [...]string{
	OpEq:        "==",
	OpNe:        "!=",
	OpLt:        "<",
	OpLe:        "<=",
	OpGt:        ">",
	OpGe:        ">=",
	OpRegex:     "=~",
	OpNotRegex:  "!~",
	OpContains:  "contains",
	OpIContains: "icontains",
}

func (o Op) String() string {
	if o < 0 || int(o) >= len(opNames) {
		return fmt.Sprintf("op(%d)", int(o))
	}
	return opNames[o]
}

// opFromToken maps operator spellings to operators. "=" is accepted for "==".
func opFromToken(s string) (Op, bool) {
	switch strings.ToLower(s) {
	case "=", "==":
		return OpEq, true
	case "!=":
		return OpNe, true
	case "<":
		return OpLt, true
	case "<=":
		return OpLe, true
	case ">":
		return OpGt, true
	case ">=":
		return OpGe, true
	case "=~":
		return OpRegex, true
	case "!~":
		return OpNotRegex, true
	case "contains":
		return OpContains, true
	case "icontains":
		return OpIContains, true
	}
	return 0, false
}

// allowedOps lists the operators each field accepts.
var allowedOps = [fieldCount][]Op{
	FieldSeverity:  {OpEq, OpNe, OpLt, OpLe, OpGt, OpGe},
	FieldSubsystem: {OpEq, OpNe, OpRegex, OpNotRegex},
	FieldNode:      {OpEq, OpNe, OpRegex, OpNotRegex, OpContains, OpIContains},
	FieldErlangPid: {OpEq, OpNe, OpRegex, OpNotRegex, OpContains, OpIContains},
	FieldMessage:   {OpEq, OpNe, OpRegex, OpNotRegex, OpContains, OpIContains},
	FieldLabels:    {OpEq, OpNe, OpContains},
	FieldTimestamp: {OpEq, OpNe, OpLt, OpLe, OpGt, OpGe},
	FieldID:        {OpEq, OpNe, OpLt, OpLe, OpGt, OpGe},
}

// Accepts reports whether the field can be compared with op.
func (f Field) Accepts(op Op) bool {
	if f < 0 || f >= fieldCount {
		return false
	}
	for _, o := range allowedOps[f] {
		if o == op {
			return true
		}
	}
	return false
}

// ValueKind tells how a literal was written.
type ValueKind int

const (
	ValueString ValueKind = iota
	ValueNumber
	ValueIdent
	ValueRegex
)

// Value is a literal on the right-hand side of a comparison.
type Value struct {
	Kind ValueKind
	Text string
}

// StringValue builds a quoted string literal.
func StringValue(s string) Value { return Value{Kind: ValueString, Text: s} }

// NumberValue builds a numeric literal.
func NumberValue(n int64) Value { return Value{Kind: ValueNumber, Text: strconv.FormatInt(n, 10)} }

func (v Value) String() string {
	switch v.Kind {
	case ValueNumber, ValueIdent:
		return v.Text
	case ValueRegex:
		return "/" + strings.ReplaceAll(v.Text, "/", `\/`) + "/"
	default:
		return strconv.Quote(v.Text)
	}
}

// Query is a parsed RQL query.
type Query struct {
	// Range restricts results to the last Range of time when non-zero.
	Range time.Duration

	// Selector is the conjunction inside { }; nil when absent.
	Selector []*Comparison

	// Filter is nil when the query has no filter expression.
	Filter FilterExpr

	Pipeline []Stage
}

func (q *Query) String() string {
	var parts []string
	if q.Range > 0 {
		parts = append(parts, "@"+formatDuration(q.Range))
	}
	if q.Selector != nil {
		ms := make([]string, len(q.Selector))
		for i, c := range q.Selector {
			ms[i] = c.String()
		}
		parts = append(parts, "{"+strings.Join(ms, ", ")+"}")
	}
	if q.Filter != nil {
		parts = append(parts, q.Filter.String())
	}
	out := strings.Join(parts, " ")
	for _, s := range q.Pipeline {
		if out != "" {
			out += " "
		}
		out += "| " + s.String()
	}
	return out
}

// FilterExpr is a node of the boolean filter tree.
type FilterExpr interface {
	fmt.Stringer
	filterExpr()
}

// Comparison is "field op value".
type Comparison struct {
	Field Field
	Op    Op
	Value Value
	Span  Span
}

// And is a conjunction of two expressions.
type And struct{ Left, Right FilterExpr }

// Or is a disjunction of two expressions.
type Or struct{ Left, Right FilterExpr }

// Not negates an expression. Dash marks the "-#label" spelling.
type Not struct {
	Expr FilterExpr
	Dash bool
}

// LabelsAny matches entries carrying at least one of the labels.
// Shorthand marks the "#label" spelling.
type LabelsAny struct {
	Labels    []string
	Shorthand bool
	Span      Span
}

// LabelsAll matches entries carrying every one of the labels.
type LabelsAll struct {
	Labels []string
	Span   Span
}

// SubsystemAny matches entries from any of the subsystems.
type SubsystemAny struct {
	Subsystems []string
	Span       Span
}

// HasDocURL matches entries with a documentation URL.
type HasDocURL struct{}

// HasResolutionURL matches entries with a resolution or discussion URL.
type HasResolutionURL struct{}

// Unlabelled matches entries no label matcher recognised.
type Unlabelled struct{}

// PresetRef refers to a named preset, ":errors".
type PresetRef struct {
	Preset Preset
}

// Group is a parenthesised expression.
type Group struct{ Expr FilterExpr }

// MatchAll is "*".
type MatchAll struct{}

func (*Comparison) filterExpr()       {}
func (*And) filterExpr()              {}
func (*Or) filterExpr()               {}
func (*Not) filterExpr()              {}
func (*LabelsAny) filterExpr()        {}
func (*LabelsAll) filterExpr()        {}
func (*SubsystemAny) filterExpr()     {}
func (*HasDocURL) filterExpr()        {}
func (*HasResolutionURL) filterExpr() {}
func (*Unlabelled) filterExpr()       {}
func (*PresetRef) filterExpr()        {}
func (*Group) filterExpr()            {}
func (*MatchAll) filterExpr()         {}

func (c *Comparison) String() string {
	return c.Field.String() + " " + c.Op.String() + " " + c.Value.String()
}

func (a *And) String() string { return a.Left.String() + " and " + a.Right.String() }
func (o *Or) String() string  { return o.Left.String() + " or " + o.Right.String() }

func (n *Not) String() string {
	if n.Dash {
		return "-" + n.Expr.String()
	}
	return "not " + n.Expr.String()
}

func (l *LabelsAny) String() string {
	if l.Shorthand && len(l.Labels) == 1 {
		return "#" + l.Labels[0]
	}
	return "labels any " + quoteList(l.Labels)
}

func (l *LabelsAll) String() string    { return "labels all " + quoteList(l.Labels) }
func (s *SubsystemAny) String() string { return "subsystem any " + quoteList(s.Subsystems) }
func (*HasDocURL) String() string      { return "has_doc_url" }
func (*HasResolutionURL) String() string {
	return "has_resolution_url"
}
func (*Unlabelled) String() string  { return "unlabelled" }
func (p *PresetRef) String() string { return ":" + p.Preset.Name() }
func (g *Group) String() string     { return "(" + g.Expr.String() + ")" }
func (*MatchAll) String() string    { return "*" }

func quoteList(items []string) string {
	q := make([]string, len(items))
	for i, s := range items {
		q[i] = strconv.Quote(s)
	}
	return "[" + strings.Join(q, ", ") + "]"
}

// Stage is one step of the result pipeline.
type Stage interface {
	fmt.Stringer
	stage()
}

// LimitStage keeps the first N rows.
type LimitStage struct{ N int }

// OffsetStage skips the first N rows.
type OffsetStage struct{ N int }

// HeadStage keeps the first N rows. It is an alias of limit.
type HeadStage struct{ N int }

// TailStage keeps the last N rows.
type TailStage struct{ N int }

// SortStage orders rows by a field.
type SortStage struct {
	Field      Field
	Descending bool
}

// ProjectStage keeps only the listed columns.
type ProjectStage struct{ Fields []Field }

// CountByStage counts rows per distinct value of Field, or all rows when
// Field is nil.
type CountByStage struct{ Field *Field }

// DistinctStage keeps one row per distinct combination of the fields.
type DistinctStage struct{ Fields []Field }

func (*LimitStage) stage()    {}
func (*OffsetStage) stage()   {}
func (*HeadStage) stage()     {}
func (*TailStage) stage()     {}
func (*SortStage) stage()     {}
func (*ProjectStage) stage()  {}
func (*CountByStage) stage()  {}
func (*DistinctStage) stage() {}

func (s *LimitStage) String() string  { return "limit " + strconv.Itoa(s.N) }
func (s *OffsetStage) String() string { return "offset " + strconv.Itoa(s.N) }
func (s *HeadStage) String() string   { return "head " + strconv.Itoa(s.N) }
func (s *TailStage) String() string   { return "tail " + strconv.Itoa(s.N) }

func (s *SortStage) String() string {
	if s.Descending {
		return "sort " + s.Field.String() + " desc"
	}
	return "sort " + s.Field.String() + " asc"
}

func (s *ProjectStage) String() string  { return "project " + joinFields(s.Fields) }
func (s *DistinctStage) String() string { return "distinct " + joinFields(s.Fields) }

func (s *CountByStage) String() string {
	if s.Field == nil {
		return "count_by"
	}
	return "count_by " + s.Field.String()
}

func joinFields(fields []Field) string {
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = f.String()
	}
	return strings.Join(names, ", ")
}

// StageNames lists the pipeline stage keywords.
func StageNames() []string {
	return []string{"limit", "offset", "head", "tail", "sort", "project", "count_by", "distinct"}
}

var durationUnits = []struct {
	suffix string
	unit   time.Duration
}{
	{"w", 7 * 24 * time.Hour},
	{"d", 24 * time.Hour},
	{"h", time.Hour},
	{"m", time.Minute},
	{"s", time.Second},
}

// formatDuration renders d with the largest unit that divides it.
func formatDuration(d time.Duration) string {
	for _, u := range durationUnits {
		if d%u.unit == 0 {
			return strconv.FormatInt(int64(d/u.unit), 10) + u.suffix
		}
	}
	return strconv.FormatInt(int64(d/time.Second), 10) + "s"
}

// parseDuration reads "<integer><unit>" with unit one of s, m, h, d, w.
func parseDuration(s string) (time.Duration, bool) {
	if len(s) < 2 {
		return 0, false
	}
	n, err := strconv.ParseInt(s[:len(s)-1], 10, 64)
	if err != nil || n <= 0 {
		return 0, false
	}
	suffix := s[len(s)-1:]
	for _, u := range durationUnits {
		if u.suffix == suffix {
			if n > int64((1<<63-1)/u.unit) {
				return 0, false
			}
			return time.Duration(n) * u.unit, true
		}
	}
	return 0, false
}
