package rql

import (
	"strconv"
	"strings"

	"github.com/sahilm/fuzzy"

	"github.com/Alain-L/rabbitlog/analysis"
	"github.com/Alain-L/rabbitlog/parser"
)

// CompletionKind tells what a completion inserts.
type CompletionKind int

const (
	CompleteField CompletionKind = iota
	CompleteKeyword
	CompleteOperator
	CompletePreset
	CompleteLabel
	CompleteSubsystem
	CompleteSeverity
	CompleteStage
)

var completionKindNames = [...]string{
	CompleteField:     "field",
	CompleteKeyword:   "keyword",
	CompleteOperator:  "operator",
	CompletePreset:    "preset",
	CompleteLabel:     "label",
	CompleteSubsystem: "subsystem",
	CompleteSeverity:  "severity",
	CompleteStage:     "stage",
}

func (k CompletionKind) String() string { return completionKindNames[k] }

// Completion is one candidate. Text replaces the bytes of Replace in the input.
type Completion struct {
	Text    string
	Kind    CompletionKind
	Detail  string
	Replace Span
}

// what the cursor is positioned on, and the vocabulary to offer.
type completionContext struct {
	kind   CompletionKind
	vocab  []string
	prefix string
	span   Span

	// decorate turns a vocabulary word into the inserted text.
	decorate func(string) string
}

var joinKeywords = []string{"and", "or", "not"}

// Complete returns completions for the token under cursor, a byte offset in
// input. Prefix matches come first in vocabulary order; when there are none,
// fuzzy matches ranked by score are returned instead.
func Complete(input string, cursor int) []Completion {
	cursor = min(max(cursor, 0), len(input))
	ctxs := completionContexts(input[:cursor])

	var out []Completion
	for _, cc := range ctxs {
		words := CompletePrefix(cc.prefix, cc.vocab)
		if len(words) == 0 && cc.prefix != "" {
			for _, m := range fuzzy.Find(cc.prefix, cc.vocab) {
				words = append(words, m.Str)
			}
		}
		for _, w := range words {
			text := w
			if cc.decorate != nil {
				text = cc.decorate(w)
			}
			out = append(out, Completion{Text: text, Kind: cc.kind, Detail: detail(cc.kind, w), Replace: cc.span})
		}
	}
	return out
}

func detail(kind CompletionKind, word string) string {
	if kind == CompletePreset {
		if p, ok := PresetFromName(word); ok {
			return p.Description()
		}
	}
	return kind.String()
}

func completionContexts(text string) []completionContext {
	tokens, _ := Tokenize(text)
	if n := len(tokens); n > 0 && tokens[n-1].Kind == TokenEOF {
		tokens = tokens[:n-1]
	}

	// The last token is the partial word when it touches the cursor.
	var partial *Token
	if n := len(tokens); n > 0 && tokens[n-1].Span.End == len(text) {
		partial = &tokens[n-1]
		tokens = tokens[:n-1]
	}
	here := Span{len(text), len(text)}
	prefix := ""
	if partial != nil {
		here = partial.Span
		prefix = partial.Value
	}

	if partial != nil {
		switch partial.Kind {
		case TokenPreset:
			return []completionContext{{
				kind: CompletePreset, vocab: PresetNames(), span: here,
				prefix:   strings.TrimPrefix(prefix, ":"),
				decorate: func(w string) string { return ":" + w },
			}}
		case TokenLabel:
			lead := prefix[:strings.IndexByte(prefix, '#')+1]
			return []completionContext{{
				kind: CompleteLabel, vocab: LabelVocabulary(), span: here,
				prefix:   strings.TrimPrefix(prefix, lead),
				decorate: func(w string) string { return lead + w },
			}}
		case TokenUnclosedString:
			if cc, ok := valueContext(tokens); ok {
				cc.prefix = strings.TrimPrefix(prefix, `"`)
				cc.span = here
				cc.decorate = strconv.Quote
				return []completionContext{cc}
			}
			return nil
		case TokenString, TokenRegex, TokenNumber, TokenDuration:
			return nil
		case TokenIdent:
		default:
			// Punctuation or an operator right before the cursor: complete
			// what follows it.
			tokens = append(tokens, *partial)
			here = Span{len(text), len(text)}
			prefix = ""
		}
	}

	quoted := func(cc completionContext) completionContext {
		cc.prefix, cc.span, cc.decorate = prefix, here, strconv.Quote
		return cc
	}
	plain := func(kind CompletionKind, vocab []string) completionContext {
		return completionContext{kind: kind, vocab: vocab, prefix: prefix, span: here}
	}

	if len(tokens) == 0 {
		return []completionContext{plain(CompleteField, FieldNames()), plain(CompleteKeyword, filterKeywords)}
	}
	last := tokens[len(tokens)-1]

	if cc, ok := valueContext(tokens); ok {
		return []completionContext{quoted(cc)}
	}
	if stage, ok := currentStage(tokens); ok {
		switch {
		case last.is("|"):
			return []completionContext{plain(CompleteStage, StageNames())}
		case last.Kind == TokenIdent && strings.EqualFold(stage, "sort") && last.Span.Start != stageStart(tokens):
			return []completionContext{plain(CompleteKeyword, []string{"asc", "desc"})}
		case stage == "sort" || stage == "project" || stage == "distinct" || stage == "count_by":
			if last.is(",") || last.Kind == TokenIdent && strings.EqualFold(last.Value, stage) {
				return []completionContext{plain(CompleteField, FieldNames())}
			}
		}
		return nil
	}

	switch {
	case last.Kind == TokenIdent && last.is("labels"):
		return []completionContext{plain(CompleteKeyword, []string{"any", "all"}), plain(CompleteOperator, opStrings(FieldLabels))}
	case last.Kind == TokenIdent && last.is("subsystem"):
		return []completionContext{plain(CompleteKeyword, []string{"any"}), plain(CompleteOperator, opStrings(FieldSubsystem))}
	case last.Kind == TokenIdent:
		if f, ok := FieldFromName(last.Value); ok && !isKeyword(last.Value) {
			return []completionContext{plain(CompleteOperator, opStrings(f))}
		}
		if endsTerm(last) {
			return []completionContext{plain(CompleteKeyword, joinKeywords)}
		}
	case last.Kind == TokenString, last.Kind == TokenNumber, last.Kind == TokenRegex,
		last.Kind == TokenPreset, last.Kind == TokenLabel, last.is(")"), last.is("]"), last.is("*"):
		return []completionContext{plain(CompleteKeyword, joinKeywords)}
	}
	return []completionContext{plain(CompleteField, FieldNames()), plain(CompleteKeyword, filterKeywords)}
}

// valueContext recognises a cursor in value position: after "severity ==",
// after "subsystem !=", or inside "labels any [" and "subsystem any [".
func valueContext(tokens []Token) (completionContext, bool) {
	n := len(tokens)
	if n == 0 {
		return completionContext{}, false
	}
	last := tokens[n-1]

	if last.is("[") || last.is(",") {
		for i := n - 1; i >= 0; i-- {
			t := tokens[i]
			if t.is("]") || t.is("|") || t.is("{") {
				break
			}
			if t.is("[") && i >= 2 && (tokens[i-1].is("any") || tokens[i-1].is("all")) {
				switch {
				case tokens[i-2].is("labels"):
					return completionContext{kind: CompleteLabel, vocab: LabelVocabulary()}, true
				case tokens[i-2].is("subsystem"):
					return completionContext{kind: CompleteSubsystem, vocab: analysis.SubsystemNames()}, true
				}
				break
			}
		}
		return completionContext{}, false
	}

	if last.Kind == TokenOp || last.is("contains") {
		if n < 2 || tokens[n-2].Kind != TokenIdent {
			return completionContext{}, false
		}
		switch field := tokens[n-2]; {
		case field.is("severity"):
			return completionContext{kind: CompleteSeverity, vocab: parser.SeverityNames()}, true
		case field.is("subsystem"):
			return completionContext{kind: CompleteSubsystem, vocab: analysis.SubsystemNames()}, true
		case field.is("labels"):
			return completionContext{kind: CompleteLabel, vocab: LabelVocabulary()}, true
		}
	}
	return completionContext{}, false
}

// currentStage returns the keyword of the pipeline stage the cursor is in.
func currentStage(tokens []Token) (string, bool) {
	for i := len(tokens) - 1; i >= 0; i-- {
		if tokens[i].is("|") {
			if i+1 < len(tokens) {
				return strings.ToLower(tokens[i+1].Value), true
			}
			return "", true
		}
	}
	return "", false
}

func stageStart(tokens []Token) int {
	for i := len(tokens) - 1; i >= 0; i-- {
		if tokens[i].is("|") && i+1 < len(tokens) {
			return tokens[i+1].Span.Start
		}
	}
	return -1
}

func isKeyword(s string) bool {
	for _, k := range append(filterKeywords, joinKeywords...) {
		if strings.EqualFold(k, s) {
			return true
		}
	}
	return false
}

// endsTerm reports whether an identifier completes a filter term on its own.
func endsTerm(t Token) bool {
	return t.is("has_doc_url") || t.is("has_resolution_url") || t.is("unlabelled")
}

func opStrings(f Field) []string {
	ops := allowedOps[f]
	out := make([]string, len(ops))
	for i, op := range ops {
		out[i] = op.String()
	}
	return out
}

// LabelVocabulary returns the label names a query can refer to. "unlabelled"
// is its own keyword.
func LabelVocabulary() []string {
	names := analysis.LabelNames()
	return names[1:]
}
