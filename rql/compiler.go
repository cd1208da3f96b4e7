package rql

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/grafana/regexp"

	"github.com/Alain-L/rabbitlog/analysis"
	"github.com/Alain-L/rabbitlog/parser"
)

// DefaultLimit caps result sets when a query has no limit, head or tail stage.
const DefaultLimit = 10000

// SQLFragment is one parameterised condition. Placeholders are '?'.
type SQLFragment struct {
	Text string
	Args []any
}

// Compiler lowers queries. The zero value is ready to use.
type Compiler struct {
	// Now anchors relative time ranges; time.Now when nil.
	Now func() time.Time

	// DefaultLimit overrides the package DefaultLimit when positive.
	DefaultLimit int
}

// CompiledQuery is the executable form of a Query.
type CompiledQuery struct {
	Query *Query

	// Predicate is the expression source evaluated per row in memory.
	Predicate string
	program   *vm.Program

	// SQL conditions, to be joined with AND. An empty list matches every row.
	SQL []SQLFragment

	// PostFilter is set when SQL only narrows the candidates and every row it
	// returns still has to go through Matches.
	PostFilter bool

	Pipeline     []Stage
	DefaultLimit int
}

// Compile lowers q with a zero Compiler.
func Compile(q *Query) (*CompiledQuery, error) {
	var c Compiler
	return c.Compile(q)
}

// CompileString parses and compiles input.
func CompileString(input string) (*CompiledQuery, error) {
	q, err := Parse(input)
	if err != nil {
		return nil, err
	}
	return Compile(q)
}

// Compile validates q against the live vocabularies and lowers it.
func (c *Compiler) Compile(q *Query) (*CompiledQuery, error) {
	now := time.Now
	if c.Now != nil {
		now = c.Now
	}
	limit := DefaultLimit
	if c.DefaultLimit > 0 {
		limit = c.DefaultLimit
	}

	var parts []lowered
	if q.Range > 0 {
		since := now().Add(-q.Range).UnixMicro()
		parts = append(parts, lowered{
			expr:  fmt.Sprintf("Timestamp >= %d", since),
			sql:   "timestamp >= ?",
			args:  []any{since},
			exact: true,
		})
	}
	for _, cmp := range q.Selector {
		l, err := lowerComparison(cmp)
		if err != nil {
			return nil, err
		}
		parts = append(parts, l)
	}
	if q.Filter != nil {
		for _, conj := range conjuncts(q.Filter) {
			l, err := lower(conj)
			if err != nil {
				return nil, err
			}
			parts = append(parts, l)
		}
	}
	if err := checkPipeline(q.Pipeline); err != nil {
		return nil, err
	}

	cq := &CompiledQuery{
		Query:        q,
		Pipeline:     q.Pipeline,
		DefaultLimit: limit,
	}
	exprs := make([]string, 0, len(parts))
	for _, l := range parts {
		exprs = append(exprs, "("+l.expr+")")
		if !l.exact {
			cq.PostFilter = true
		}
		if l.sql != "" {
			cq.SQL = append(cq.SQL, SQLFragment{Text: l.sql, Args: l.args})
		}
	}
	cq.Predicate = "true"
	if len(exprs) > 0 {
		cq.Predicate = strings.Join(exprs, " and ")
	}

	program, err := expr.Compile(cq.Predicate, expr.Env(&Env{}), expr.AsBool())
	if err != nil {
		return nil, &CompileError{
			Kind:    CompileKindUnsupported,
			Message: fmt.Sprintf("Cannot build predicate: %v", err),
		}
	}
	cq.program = program
	return cq, nil
}

// WhereClause joins the SQL fragments. It returns "1 = 1" when there are none.
func (c *CompiledQuery) WhereClause() (string, []any) {
	if len(c.SQL) == 0 {
		return "1 = 1", nil
	}
	texts := make([]string, len(c.SQL))
	var args []any
	for i, f := range c.SQL {
		texts[i] = "(" + f.Text + ")"
		args = append(args, f.Args...)
	}
	return strings.Join(texts, " AND "), args
}

// lowered is one node compiled both ways. sql == "" means TRUE. When exact is
// false the SQL is a superset of the predicate.
type lowered struct {
	expr  string
	sql   string
	args  []any
	exact bool
}

var alwaysTrue = lowered{expr: "true", exact: true}

// conjuncts splits top-level ANDs so each side becomes its own SQL fragment.
func conjuncts(e FilterExpr) []FilterExpr {
	switch n := e.(type) {
	case *And:
		return append(conjuncts(n.Left), conjuncts(n.Right)...)
	case *Group:
		if _, ok := n.Expr.(*And); ok {
			return conjuncts(n.Expr)
		}
	}
	return []FilterExpr{e}
}

func lower(e FilterExpr) (lowered, error) {
	switch n := e.(type) {
	case *Comparison:
		return lowerComparison(n)

	case *And:
		l, err := lower(n.Left)
		if err != nil {
			return lowered{}, err
		}
		r, err := lower(n.Right)
		if err != nil {
			return lowered{}, err
		}
		out := lowered{expr: "(" + l.expr + ") and (" + r.expr + ")", exact: l.exact && r.exact}
		switch {
		case l.sql == "":
			out.sql, out.args = r.sql, r.args
		case r.sql == "":
			out.sql, out.args = l.sql, l.args
		default:
			out.sql = "(" + l.sql + ") AND (" + r.sql + ")"
			out.args = append(append([]any{}, l.args...), r.args...)
		}
		return out, nil

	case *Or:
		l, err := lower(n.Left)
		if err != nil {
			return lowered{}, err
		}
		r, err := lower(n.Right)
		if err != nil {
			return lowered{}, err
		}
		out := lowered{expr: "(" + l.expr + ") or (" + r.expr + ")", exact: l.exact && r.exact}
		if l.sql != "" && r.sql != "" {
			out.sql = "(" + l.sql + ") OR (" + r.sql + ")"
			out.args = append(append([]any{}, l.args...), r.args...)
		}
		return out, nil

	case *Not:
		inner, err := lower(n.Expr)
		if err != nil {
			return lowered{}, err
		}
		out := lowered{expr: "not (" + inner.expr + ")", exact: inner.exact}
		switch {
		case !inner.exact:
			// The complement of a superset says nothing; keep every row.
		case inner.sql == "":
			out.sql = "1 = 0"
		default:
			out.sql = "NOT (" + inner.sql + ")"
			out.args = inner.args
		}
		return out, nil

	case *Group:
		inner, err := lower(n.Expr)
		if err != nil {
			return lowered{}, err
		}
		inner.expr = "(" + inner.expr + ")"
		return inner, nil

	case *PresetRef:
		inner, err := lower(n.Preset.ToFilterExpr())
		if err != nil {
			return lowered{}, err
		}
		inner.expr = "(" + inner.expr + ")"
		return inner, nil

	case *LabelsAny:
		mask, err := labelMask(n.Labels, n.Span)
		if err != nil {
			return lowered{}, err
		}
		return lowered{
			expr:  fmt.Sprintf("LabelsAny(%d)", int64(mask)),
			sql:   "(labels & ?) != 0",
			args:  []any{int64(mask)},
			exact: true,
		}, nil

	case *LabelsAll:
		mask, err := labelMask(n.Labels, n.Span)
		if err != nil {
			return lowered{}, err
		}
		return lowered{
			expr:  fmt.Sprintf("LabelsAll(%d)", int64(mask)),
			sql:   "(labels & ?) = ?",
			args:  []any{int64(mask), int64(mask)},
			exact: true,
		}, nil

	case *SubsystemAny:
		ids := make([]int, 0, len(n.Subsystems))
		for _, name := range n.Subsystems {
			s, ok := analysis.SubsystemFromName(name)
			if !ok {
				return lowered{}, vocabularyError(CompileKindInvalidSubsystem, "subsystem", "subsystems", name, analysis.SubsystemNames(), n.Span)
			}
			ids = append(ids, int(s.ID()))
		}
		return subsystemIn(ids, false), nil

	case *HasDocURL:
		return lowered{expr: "DocURLID != 0", sql: "doc_url_id IS NOT NULL", exact: true}, nil

	case *HasResolutionURL:
		return lowered{expr: "ResolutionURLID != 0", sql: "resolution_or_discussion_url_id IS NOT NULL", exact: true}, nil

	case *Unlabelled:
		mask := int64(analysis.LabelUnlabelled.Bit())
		return lowered{
			expr:  fmt.Sprintf("LabelsAny(%d)", int64(mask)),
			sql:   "(labels & ?) != 0",
			args:  []any{mask},
			exact: true,
		}, nil

	case *MatchAll:
		return alwaysTrue, nil
	}
	return lowered{}, &CompileError{
		Kind:    CompileKindUnsupported,
		Message: fmt.Sprintf("Unsupported expression %T", e),
	}
}

func labelMask(names []string, span Span) (analysis.LabelSet, error) {
	var mask analysis.LabelSet
	for _, name := range names {
		l, ok := analysis.LabelFromName(name)
		if !ok {
			return 0, vocabularyError(CompileKindUnknownLabel, "label", "labels", name, analysis.LabelNames(), span)
		}
		mask = mask.With(l)
	}
	return mask, nil
}

// exprOps and sqlOps spell the ordering operators in both targets.
var (
	exprOps = map[Op]string{OpEq: "==", OpNe: "!=", OpLt: "<", OpLe: "<=", OpGt: ">", OpGe: ">="}
	sqlOps  = map[Op]string{OpEq: "=", OpNe: "<>", OpLt: "<", OpLe: "<=", OpGt: ">", OpGe: ">="}
)

func unsupported(c *Comparison) *CompileError {
	return &CompileError{
		Kind:    CompileKindUnsupported,
		Message: fmt.Sprintf("Operator '%s' is not supported for field '%s'", c.Op, c.Field),
		Token:   c.Op.String(),
		Span:    c.Span,
	}
}

func lowerComparison(c *Comparison) (lowered, error) {
	if !c.Field.Accepts(c.Op) {
		return lowered{}, unsupported(c)
	}
	switch c.Field {
	case FieldSeverity:
		return lowerSeverity(c)
	case FieldSubsystem:
		return lowerSubsystem(c)
	case FieldLabels:
		var inner FilterExpr = &LabelsAny{Labels: []string{c.Value.Text}, Span: c.Span}
		if c.Op == OpNe {
			inner = &Not{Expr: inner}
		}
		return lower(inner)
	case FieldTimestamp:
		t, err := parseTimestamp(c.Value.Text)
		if err != nil {
			return lowered{}, &CompileError{
				Kind:    CompileKindInvalidTimestamp,
				Message: fmt.Sprintf("Invalid timestamp '%s'", c.Value.Text),
				Token:   c.Value.Text,
				Span:    c.Span,
			}
		}
		return lowerOrdered("Timestamp", "timestamp", c.Op, t.UnixMicro()), nil
	case FieldID:
		n, err := strconv.ParseInt(c.Value.Text, 10, 64)
		if err != nil {
			return lowered{}, &CompileError{
				Kind:    CompileKindUnsupported,
				Message: fmt.Sprintf("Field 'id' expects an integer, got '%s'", c.Value.Text),
				Token:   c.Value.Text,
				Span:    c.Span,
			}
		}
		return lowerOrdered("ID", "id", c.Op, n), nil
	case FieldNode:
		return lowerText(c, "Node", "lower(Node)", "node")
	case FieldErlangPid:
		return lowerText(c, "ErlangPid", "lower(ErlangPid)", "erlang_pid")
	case FieldMessage:
		return lowerText(c, "Message", "MessageLower", "message")
	}
	return lowered{}, unsupported(c)
}

func lowerOrdered(envField, column string, op Op, n int64) lowered {
	return lowered{
		expr:  fmt.Sprintf("%s %s %d", envField, exprOps[op], n),
		sql:   fmt.Sprintf("%s %s ?", column, sqlOps[op]),
		args:  []any{n},
		exact: true,
	}
}

func lowerSeverity(c *Comparison) (lowered, error) {
	sev, err := parser.ParseSeverity(c.Value.Text)
	if err != nil {
		return lowered{}, vocabularyError(CompileKindInvalidSeverity, "severity", "severities", c.Value.Text, parser.SeverityNames(), c.Span)
	}

	// Severities are stored as text, so ranges become IN lists.
	var names []any
	for _, s := range parser.AllSeverities() {
		if compareInts(int(s), c.Op, int(sev)) {
			names = append(names, s.String())
		}
	}
	out := lowered{expr: fmt.Sprintf("Severity %s %d", exprOps[c.Op], int(sev)), exact: true}
	switch len(names) {
	case len(parser.AllSeverities()):
	case 0:
		out.sql = "1 = 0"
	case 1:
		out.sql, out.args = "severity = ?", names
	default:
		out.sql, out.args = "severity IN ("+placeholders(len(names))+")", names
	}
	return out, nil
}

func compareInts(a int, op Op, b int) bool {
	switch op {
	case OpEq:
		return a == b
	case OpNe:
		return a != b
	case OpLt:
		return a < b
	case OpLe:
		return a <= b
	case OpGt:
		return a > b
	case OpGe:
		return a >= b
	}
	return false
}

func lowerSubsystem(c *Comparison) (lowered, error) {
	switch c.Op {
	case OpEq, OpNe:
		s, ok := analysis.SubsystemFromName(c.Value.Text)
		if !ok {
			return lowered{}, vocabularyError(CompileKindInvalidSubsystem, "subsystem", "subsystems", c.Value.Text, analysis.SubsystemNames(), c.Span)
		}
		return lowered{
			expr:  fmt.Sprintf("Subsystem %s %d", exprOps[c.Op], s.ID()),
			sql:   fmt.Sprintf("IFNULL(subsystem_id, 0) %s ?", sqlOps[c.Op]),
			args:  []any{int64(s.ID())},
			exact: true,
		}, nil
	case OpRegex, OpNotRegex:
		re, err := compileRegex(c)
		if err != nil {
			return lowered{}, err
		}
		// Entries without a subsystem take part as the empty name.
		var ids []int
		if re.MatchString("") {
			ids = append(ids, 0)
		}
		for _, s := range analysis.AllSubsystems() {
			if re.MatchString(s.String()) {
				ids = append(ids, int(s.ID()))
			}
		}
		return subsystemIn(ids, c.Op == OpNotRegex), nil
	}
	return lowered{}, unsupported(c)
}

func subsystemIn(ids []int, negate bool) lowered {
	if len(ids) == 0 {
		if negate {
			return alwaysTrue
		}
		return lowered{expr: "false", sql: "1 = 0", exact: true}
	}
	lits := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		lits[i] = strconv.Itoa(id)
		args[i] = int64(id)
	}
	out := lowered{
		expr:  "Subsystem in [" + strings.Join(lits, ", ") + "]",
		sql:   "IFNULL(subsystem_id, 0) IN (" + placeholders(len(ids)) + ")",
		args:  args,
		exact: true,
	}
	if negate {
		out.expr = "not (" + out.expr + ")"
		out.sql = "IFNULL(subsystem_id, 0) NOT IN (" + placeholders(len(ids)) + ")"
	}
	return out
}

// lowerText handles the free-text columns. lowerEnv is the expression giving
// the lower-cased value.
func lowerText(c *Comparison, envField, lowerEnv, column string) (lowered, error) {
	v := c.Value.Text
	switch c.Op {
	case OpEq:
		return lowered{expr: envField + " == " + strconv.Quote(v), sql: column + " = ?", args: []any{v}, exact: true}, nil
	case OpNe:
		return lowered{expr: envField + " != " + strconv.Quote(v), sql: column + " <> ?", args: []any{v}, exact: true}, nil
	case OpContains:
		return containsLowered(envField, column, v, false), nil
	case OpIContains:
		needle := strings.ToLower(v)
		out := lowered{expr: lowerEnv + " contains " + strconv.Quote(needle), exact: true}
		if isASCII(needle) {
			// SQLite lower() only folds ASCII.
			out.sql = "lower(" + column + ") LIKE ? ESCAPE '\\'"
			out.args = []any{"%" + escapeLike(needle) + "%"}
		} else {
			out.exact = false
		}
		return out, nil
	case OpRegex, OpNotRegex:
		re, err := compileRegex(c)
		if err != nil {
			return lowered{}, err
		}
		negate := c.Op == OpNotRegex
		if lit, complete := re.LiteralPrefix(); complete {
			out := containsLowered(envField, column, lit, negate)
			return out, nil
		}
		out := lowered{expr: fmt.Sprintf("Re(%s, %s)", envField, strconv.Quote(v))}
		if negate {
			out.expr = "not " + out.expr
		}
		return out, nil
	}
	return lowered{}, unsupported(c)
}

func containsLowered(envField, column, needle string, negate bool) lowered {
	out := lowered{
		expr:  envField + " contains " + strconv.Quote(needle),
		sql:   column + " LIKE ? ESCAPE '\\'",
		args:  []any{"%" + escapeLike(needle) + "%"},
		exact: true,
	}
	if negate {
		out.expr = "not (" + out.expr + ")"
		out.sql = column + " NOT LIKE ? ESCAPE '\\'"
	}
	return out
}

func compileRegex(c *Comparison) (*regexp.Regexp, error) {
	re, err := regexp.Compile(c.Value.Text)
	if err != nil {
		return nil, &CompileError{
			Kind:    CompileKindRegex,
			Message: fmt.Sprintf("Invalid regex '%s': %v", c.Value.Text, unwrapRegexError(err)),
			Token:   c.Value.Text,
			Span:    c.Span,
		}
	}
	return re, nil
}

// escapeLike makes s match literally inside a LIKE pattern with ESCAPE '\'.
func escapeLike(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case '%', '_', '\\':
			b.WriteByte('\\')
			b.WriteByte(c)
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// parseTimestamp accepts RFC 3339 and the two short forms used on the
// command line. Times without an offset are UTC.
func parseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidTimestamp, s)
}

// checkPipeline rejects stages that refer to columns an earlier stage dropped.
func checkPipeline(stages []Stage) error {
	var available map[Field]bool // nil while whole rows flow through
	need := func(f Field, st Stage) error {
		if available == nil || available[f] {
			return nil
		}
		return &CompileError{
			Kind:    CompileKindUnsupported,
			Message: fmt.Sprintf("Stage '%s' refers to '%s', which an earlier stage removed", st, f),
			Token:   f.String(),
		}
	}
	restrict := func(fields []Field) {
		next := make(map[Field]bool, len(fields))
		for _, f := range fields {
			next[f] = true
		}
		available = next
	}

	for _, st := range stages {
		switch s := st.(type) {
		case *SortStage:
			if err := need(s.Field, st); err != nil {
				return err
			}
		case *ProjectStage:
			for _, f := range s.Fields {
				if err := need(f, st); err != nil {
					return err
				}
			}
			restrict(s.Fields)
		case *DistinctStage:
			for _, f := range s.Fields {
				if err := need(f, st); err != nil {
					return err
				}
			}
			restrict(s.Fields)
		case *CountByStage:
			if s.Field != nil {
				if err := need(*s.Field, st); err != nil {
					return err
				}
				restrict([]Field{*s.Field})
			} else {
				restrict(nil)
			}
		}
	}
	return nil
}
