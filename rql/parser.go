package rql

import (
	"errors"
	"fmt"
	"regexp/syntax"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/grafana/regexp"

	"github.com/Alain-L/rabbitlog/analysis"
)

// keywords that can start a filter term besides field names.
var filterKeywords = []string{"not", "labels", "has_doc_url", "has_resolution_url", "unlabelled"}

// Parse parses an RQL query.
func Parse(input string) (*Query, error) {
	if strings.TrimSpace(input) == "" {
		return nil, &ParseError{Kind: ErrKindEmptyQuery, Message: "Empty query", Span: Span{0, len(input)}}
	}
	tokens, err := Tokenize(input)
	if err != nil {
		return nil, err
	}
	p := &queryParser{input: input, tokens: tokens}
	return p.parseQuery()
}

// MustParse is like Parse but panics on error.
func MustParse(input string) *Query {
	q, err := Parse(input)
	if err != nil {
		panic(err)
	}
	return q
}

type queryParser struct {
	input  string
	tokens []Token
	pos    int
}

func (p *queryParser) peek() Token { return p.tokens[p.pos] }

func (p *queryParser) next() Token {
	t := p.tokens[p.pos]
	if t.Kind != TokenEOF {
		p.pos++
	}
	return t
}

func (p *queryParser) errorf(kind ParseErrorKind, tok Token, format string, args ...any) *ParseError {
	return &ParseError{Kind: kind, Message: fmt.Sprintf(format, args...), Span: tok.Span, Token: tok.Value}
}

// unexpected reports tok where something else was expected. Lexer-level
// problems (unclosed literals, end of input) take precedence over the generic
// syntax error.
func (p *queryParser) unexpected(tok Token, expected string) *ParseError {
	switch tok.Kind {
	case TokenEOF:
		return p.errorf(ErrKindUnexpectedEOF, tok, "Unexpected end of query, expected %s", expected)
	case TokenUnclosedString:
		return p.errorf(ErrKindUnclosedString, tok, "Unclosed string literal")
	case TokenUnclosedRegex:
		return p.errorf(ErrKindUnclosedRegex, tok, "Unclosed regex literal")
	}
	return p.errorf(ErrKindSyntax, tok, "Unexpected %s, expected %s", tok, expected)
}

func (p *queryParser) expect(s, expected string) (Token, error) {
	tok := p.peek()
	if !tok.is(s) {
		return tok, p.unexpected(tok, expected)
	}
	return p.next(), nil
}

func (p *queryParser) parseQuery() (*Query, error) {
	q := &Query{}

	if tok := p.peek(); tok.Kind == TokenDuration {
		p.next()
		d, ok := parseDuration(strings.TrimPrefix(tok.Value, "@"))
		if !ok {
			return nil, p.errorf(ErrKindInvalidDuration, tok,
				"Invalid duration '%s', expected a positive integer followed by one of s, m, h, d, w", tok.Value)
		}
		q.Range = d
	}

	if p.peek().is("{") {
		sel, err := p.parseSelector()
		if err != nil {
			return nil, err
		}
		q.Selector = sel
	}

	if tok := p.peek(); tok.Kind != TokenEOF && !tok.is("|") {
		f, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		q.Filter = f
	}

	for p.peek().is("|") {
		p.next()
		st, err := p.parseStage()
		if err != nil {
			return nil, err
		}
		q.Pipeline = append(q.Pipeline, st)
	}

	if tok := p.peek(); tok.Kind != TokenEOF {
		return nil, p.unexpected(tok, "'|', 'and', 'or' or end of query")
	}
	return q, nil
}

func (p *queryParser) parseSelector() ([]*Comparison, error) {
	p.next() // {
	sel := []*Comparison{}
	if p.peek().is("}") {
		p.next()
		return sel, nil
	}
	for {
		tok := p.peek()
		if tok.Kind != TokenIdent {
			return nil, p.unexpected(tok, "a field name")
		}
		p.next()
		field, ok := FieldFromName(tok.Value)
		if !ok {
			return nil, p.invalidField(tok)
		}
		c, err := p.parseComparison(field, tok)
		if err != nil {
			return nil, err
		}
		sel = append(sel, c)

		if p.peek().is(",") {
			p.next()
			continue
		}
		if _, err := p.expect("}", "',' or '}'"); err != nil {
			return nil, err
		}
		return sel, nil
	}
}

func (p *queryParser) parseOr() (FilterExpr, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.peek().is("or") {
		p.next()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &Or{Left: left, Right: right}
	}
	return left, nil
}

func (p *queryParser) parseAnd() (FilterExpr, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for {
		tok := p.peek()
		switch {
		case tok.is("and"):
			p.next()
		case p.startsTerm(tok):
			// Juxtaposition is an implicit "and": ":errors #raft".
		default:
			return left, nil
		}
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		left = &And{Left: left, Right: right}
	}
}

// startsTerm reports whether tok can only begin a new filter term.
func (p *queryParser) startsTerm(tok Token) bool {
	switch tok.Kind {
	case TokenPreset, TokenLabel:
		return true
	case TokenPunct:
		return tok.Value == "(" || tok.Value == "*"
	case TokenIdent:
		return tok.is("not")
	}
	return false
}

func (p *queryParser) parseNot() (FilterExpr, error) {
	if p.peek().is("not") {
		p.next()
		inner, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return &Not{Expr: inner}, nil
	}
	return p.parsePrimary()
}

func (p *queryParser) parsePrimary() (FilterExpr, error) {
	tok := p.peek()
	switch tok.Kind {
	case TokenPunct:
		switch tok.Value {
		case "(":
			p.next()
			inner, err := p.parseOr()
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(")", "')'"); err != nil {
				return nil, err
			}
			return &Group{Expr: inner}, nil
		case "*":
			p.next()
			return &MatchAll{}, nil
		}

	case TokenPreset:
		p.next()
		name := strings.TrimPrefix(tok.Value, ":")
		preset, ok := PresetFromName(name)
		if !ok {
			e := p.errorf(ErrKindUnknownPreset, tok, "Unknown preset '%s'. Valid presets: %s", name, strings.Join(PresetNames(), ", "))
			e.Suggestion, _ = Suggest(name, PresetNames())
			return nil, e
		}
		return &PresetRef{Preset: preset}, nil

	case TokenLabel:
		p.next()
		negated := strings.HasPrefix(tok.Value, "-")
		name := strings.TrimPrefix(strings.TrimPrefix(tok.Value, "-"), "#")
		if name == "" {
			return nil, p.errorf(ErrKindSyntax, tok, "Expected a label name after '#'")
		}
		if _, ok := analysis.LabelFromName(name); !ok {
			e := p.errorf(ErrKindUnknownLabel, tok, "Unknown label '%s'. Valid labels: %s", name, excerpt(analysis.LabelNames(), 12))
			e.Suggestion, _ = Suggest(name, analysis.LabelNames())
			return nil, e
		}
		var expr FilterExpr = &LabelsAny{Labels: []string{name}, Shorthand: true, Span: tok.Span}
		if negated {
			expr = &Not{Expr: expr, Dash: true}
		}
		return expr, nil

	case TokenIdent:
		return p.parseIdentTerm()
	}
	return nil, p.unexpected(tok, "a filter expression")
}

func (p *queryParser) parseIdentTerm() (FilterExpr, error) {
	tok := p.next()
	switch strings.ToLower(tok.Value) {
	case "has_doc_url":
		return &HasDocURL{}, nil
	case "has_resolution_url":
		return &HasResolutionURL{}, nil
	case "unlabelled":
		return &Unlabelled{}, nil
	case "labels":
		if mode := p.peek(); mode.is("any") || mode.is("all") {
			p.next()
			items, span, err := p.parseList(tok)
			if err != nil {
				return nil, err
			}
			if mode.is("any") {
				return &LabelsAny{Labels: items, Span: span}, nil
			}
			return &LabelsAll{Labels: items, Span: span}, nil
		}
	case "subsystem":
		if p.peek().is("any") {
			p.next()
			items, span, err := p.parseList(tok)
			if err != nil {
				return nil, err
			}
			return &SubsystemAny{Subsystems: items, Span: span}, nil
		}
	}

	field, ok := FieldFromName(tok.Value)
	if !ok {
		return nil, p.invalidField(tok)
	}
	return p.parseComparison(field, tok)
}

func (p *queryParser) invalidField(tok Token) *ParseError {
	e := p.errorf(ErrKindInvalidField, tok, "Unknown field '%s'. Valid fields: %s", tok.Value, strings.Join(FieldNames(), ", "))
	vocab := append(FieldNames(), filterKeywords...)
	e.Suggestion, _ = Suggest(tok.Value, vocab)
	return e
}

// parseList reads ["a", "b", ...]. Items may be strings or bare identifiers.
func (p *queryParser) parseList(owner Token) ([]string, Span, error) {
	open, err := p.expect("[", "'['")
	if err != nil {
		return nil, Span{}, err
	}
	var items []string
	for {
		tok := p.peek()
		switch tok.Kind {
		case TokenString:
			p.next()
			items = append(items, unquote(tok.Value[1:len(tok.Value)-1]))
		case TokenIdent:
			p.next()
			items = append(items, tok.Value)
		default:
			if tok.is("]") && len(items) == 0 {
				return nil, Span{}, p.errorf(ErrKindInvalidValue, tok, "Empty list after '%s'", owner.Value)
			}
			return nil, Span{}, p.unexpected(tok, "a quoted name")
		}
		if p.peek().is(",") {
			p.next()
			continue
		}
		closing, err := p.expect("]", "',' or ']'")
		if err != nil {
			return nil, Span{}, err
		}
		return items, Span{open.Span.Start, closing.Span.End}, nil
	}
}

func (p *queryParser) parseComparison(field Field, fieldTok Token) (*Comparison, error) {
	opTok := p.peek()
	op, ok := Op(0), false
	if opTok.Kind == TokenOp || opTok.Kind == TokenIdent {
		op, ok = opFromToken(opTok.Value)
	}
	if !ok {
		if opTok.Kind == TokenEOF {
			return nil, p.unexpected(opTok, "a comparison operator")
		}
		e := p.errorf(ErrKindInvalidOperator, opTok, "Expected a comparison operator after '%s', got %s", fieldTok.Value, opTok)
		e.Suggestion, _ = Suggest(opTok.Value, []string{"contains", "icontains"})
		return nil, e
	}
	p.next()
	if !field.Accepts(op) {
		return nil, p.errorf(ErrKindInvalidOperator, opTok, "Operator '%s' cannot be used with field '%s'", op, field)
	}

	valTok := p.peek()
	var v Value
	switch valTok.Kind {
	case TokenString:
		v = StringValue(unquote(valTok.Value[1 : len(valTok.Value)-1]))
	case TokenRegex:
		if op != OpRegex && op != OpNotRegex {
			return nil, p.errorf(ErrKindInvalidValue, valTok, "Regex literal can only follow '=~' or '!~'")
		}
		v = Value{Kind: ValueRegex, Text: strings.ReplaceAll(valTok.Value[1:len(valTok.Value)-1], `\/`, "/")}
	case TokenNumber:
		v = Value{Kind: ValueNumber, Text: valTok.Value}
	case TokenIdent:
		v = Value{Kind: ValueIdent, Text: valTok.Value}
	default:
		return nil, p.unexpected(valTok, "a value")
	}
	p.next()

	span := Span{fieldTok.Span.Start, valTok.Span.End}
	c := &Comparison{Field: field, Op: op, Value: v, Span: span}
	if err := p.checkValue(c, valTok); err != nil {
		return nil, err
	}
	return c, nil
}

// checkValue rejects literals that cannot be right for the field no matter
// what is stored. Vocabulary checks (severities, subsystems, labels) are left
// to the compiler.
func (p *queryParser) checkValue(c *Comparison, tok Token) error {
	// The predicate and SQL LIKE only agree on valid UTF-8.
	if !utf8.ValidString(c.Value.Text) {
		return p.errorf(ErrKindInvalidValue, tok, "Value %s is not valid UTF-8", tok)
	}
	if c.Op == OpRegex || c.Op == OpNotRegex {
		if _, err := regexp.Compile(c.Value.Text); err != nil {
			return p.errorf(ErrKindInvalidRegex, tok, "Invalid regex %s: %v", c.Value, unwrapRegexError(err))
		}
		return nil
	}
	switch c.Field {
	case FieldID:
		if c.Value.Kind != ValueNumber && c.Value.Kind != ValueString {
			return p.errorf(ErrKindInvalidValue, tok, "Field 'id' expects an integer, got %s", tok)
		}
		if _, err := strconv.ParseInt(c.Value.Text, 10, 64); err != nil {
			return p.errorf(ErrKindInvalidValue, tok, "Field 'id' expects an integer, got %s", tok)
		}
	case FieldTimestamp:
		if _, err := parseTimestamp(c.Value.Text); err != nil {
			return p.errorf(ErrKindInvalidTimestamp, tok,
				"Invalid timestamp %s, expected RFC 3339, 'YYYY-MM-DD HH:MM:SS' or 'YYYY-MM-DD'", tok)
		}
	}
	return nil
}

func unwrapRegexError(err error) error {
	var se *syntax.Error
	if errors.As(err, &se) {
		return fmt.Errorf("%s '%s'", se.Code, se.Expr)
	}
	return err
}

func (p *queryParser) parseStage() (Stage, error) {
	tok := p.peek()
	if tok.Kind != TokenIdent {
		return nil, p.unexpected(tok, "a pipeline stage")
	}
	p.next()
	name := strings.ToLower(tok.Value)
	switch name {
	case "limit", "offset", "head", "tail":
		n, err := p.parseCount(tok)
		if err != nil {
			return nil, err
		}
		switch name {
		case "limit":
			return &LimitStage{N: n}, nil
		case "offset":
			return &OffsetStage{N: n}, nil
		case "head":
			return &HeadStage{N: n}, nil
		default:
			return &TailStage{N: n}, nil
		}
	case "sort":
		f, err := p.parseFieldName()
		if err != nil {
			return nil, err
		}
		st := &SortStage{Field: f}
		if dir := p.peek(); dir.is("asc") || dir.is("desc") {
			p.next()
			st.Descending = dir.is("desc")
		}
		return st, nil
	case "project", "distinct":
		fields, err := p.parseFieldList()
		if err != nil {
			return nil, err
		}
		if name == "project" {
			return &ProjectStage{Fields: fields}, nil
		}
		return &DistinctStage{Fields: fields}, nil
	case "count_by":
		st := &CountByStage{}
		if p.peek().Kind == TokenIdent {
			f, err := p.parseFieldName()
			if err != nil {
				return nil, err
			}
			st.Field = &f
		}
		return st, nil
	}
	e := p.errorf(ErrKindSyntax, tok, "Unknown pipeline stage '%s'. Valid stages: %s", tok.Value, strings.Join(StageNames(), ", "))
	e.Suggestion, _ = Suggest(tok.Value, StageNames())
	return nil, e
}

func (p *queryParser) parseCount(stage Token) (int, error) {
	tok := p.peek()
	if tok.Kind != TokenNumber {
		return 0, p.unexpected(tok, fmt.Sprintf("a row count after '%s'", stage.Value))
	}
	p.next()
	n, err := strconv.Atoi(tok.Value)
	if err != nil || n < 0 {
		return 0, p.errorf(ErrKindInvalidValue, tok, "'%s' expects a non-negative integer, got %s", stage.Value, tok)
	}
	return n, nil
}

func (p *queryParser) parseFieldName() (Field, error) {
	tok := p.peek()
	if tok.Kind != TokenIdent {
		return 0, p.unexpected(tok, "a field name")
	}
	p.next()
	f, ok := FieldFromName(tok.Value)
	if !ok {
		e := p.errorf(ErrKindInvalidField, tok, "Unknown field '%s'. Valid fields: %s", tok.Value, strings.Join(FieldNames(), ", "))
		e.Suggestion, _ = Suggest(tok.Value, FieldNames())
		return 0, e
	}
	return f, nil
}

func (p *queryParser) parseFieldList() ([]Field, error) {
	var fields []Field
	for {
		f, err := p.parseFieldName()
		if err != nil {
			return nil, err
		}
		fields = append(fields, f)
		if !p.peek().is(",") {
			return fields, nil
		}
		p.next()
	}
}
