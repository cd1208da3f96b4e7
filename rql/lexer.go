package rql

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/alecthomas/participle/v2/lexer"
)

// TokenKind classifies RQL tokens.
type TokenKind int

const (
	TokenEOF TokenKind = iota
	TokenString
	TokenUnclosedString
	TokenRegex
	TokenUnclosedRegex
	TokenDuration
	TokenNumber
	TokenPreset
	TokenLabel
	TokenIdent
	TokenOp
	TokenPunct
)

// Token is one lexeme with its byte span in the input.
type Token struct {
	Kind  TokenKind
	Value string
	Span  Span
}

func (t Token) String() string {
	if t.Kind == TokenEOF {
		return "end of query"
	}
	return fmt.Sprintf("'%s'", t.Value)
}

// is reports whether t is the punctuation or keyword s (keywords are case-insensitive).
func (t Token) is(s string) bool {
	switch t.Kind {
	case TokenPunct, TokenOp:
		return t.Value == s
	case TokenIdent:
		return strings.EqualFold(t.Value, s)
	}
	return false
}

// Rule order matters: the first rule that matches at a position wins.
var rqlLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Whitespace", Pattern: `\s+`},
	{Name: "String", Pattern: `"(\\.|[^"\\])*"`},
	{Name: "UnclosedString", Pattern: `"(\\.|[^"\\])*`},
	{Name: "Regex", Pattern: `/(\\.|[^/\\])*/`},
	{Name: "UnclosedRegex", Pattern: `/(\\.|[^/\\])*`},
	{Name: "Duration", Pattern: `@[0-9A-Za-z]*`},
	{Name: "Label", Pattern: `-?#[A-Za-z0-9_]*`},
	{Name: "Preset", Pattern: `:[A-Za-z0-9_]*`},
	{Name: "Number", Pattern: `-?[0-9]+(\.[0-9]+)?`},
	{Name: "Ident", Pattern: `[A-Za-z_][A-Za-z0-9_.]*`},
	{Name: "Op", Pattern: `==|!=|<=|>=|=~|!~|<|>|=`},
	{Name: "Punct", Pattern: `[{}\[\](),|*]`},
})

var tokenKinds = func() map[lexer.TokenType]TokenKind {
	symbols := rqlLexer.Symbols()
	byName := map[string]TokenKind{
		"String":         TokenString,
		"UnclosedString": TokenUnclosedString,
		"Regex":          TokenRegex,
		"UnclosedRegex":  TokenUnclosedRegex,
		"Duration":       TokenDuration,
		"Number":         TokenNumber,
		"Preset":         TokenPreset,
		"Label":          TokenLabel,
		"Ident":          TokenIdent,
		"Op":             TokenOp,
		"Punct":          TokenPunct,
	}
	out := make(map[lexer.TokenType]TokenKind, len(byName))
	for name, kind := range byName {
		out[symbols[name]] = kind
	}
	return out
}()

var whitespaceType = rqlLexer.Symbols()["Whitespace"]

// Tokenize splits input into tokens, dropping whitespace. The returned slice
// always ends with a TokenEOF. Characters no rule accepts produce an
// ErrKindUnexpectedCharacter error together with the tokens read so far.
func Tokenize(input string) ([]Token, error) {
	lex, err := rqlLexer.LexString("", input)
	if err != nil {
		return nil, err
	}

	var tokens []Token
	offset := 0
	for {
		tok, err := lex.Next()
		if err != nil {
			r, size := utf8.DecodeRuneInString(input[offset:])
			if size == 0 {
				size = 1
			}
			tokens = append(tokens, Token{Kind: TokenEOF, Span: Span{offset, offset}})
			return tokens, &ParseError{
				Kind:    ErrKindUnexpectedCharacter,
				Message: fmt.Sprintf("Unexpected character '%c'", r),
				Span:    Span{offset, offset + size},
				Token:   string(r),
			}
		}
		if tok.EOF() {
			tokens = append(tokens, Token{Kind: TokenEOF, Span: Span{len(input), len(input)}})
			return tokens, nil
		}

		start := tok.Pos.Offset
		end := start + len(tok.Value)
		offset = end
		if tok.Type == whitespaceType {
			continue
		}
		tokens = append(tokens, Token{Kind: tokenKinds[tok.Type], Value: tok.Value, Span: Span{start, end}})
	}
}

// unquote decodes the body of a string literal. Only \" \\ \n \t and \/ are
// escapes; any other backslash is kept as is so regex classes like \d survive.
func unquote(body string) string {
	if strings.IndexByte(body, '\\') < 0 {
		return body
	}
	var b strings.Builder
	b.Grow(len(body))
	for i := 0; i < len(body); i++ {
		c := body[i]
		if c != '\\' || i+1 == len(body) {
			b.WriteByte(c)
			continue
		}
		switch next := body[i+1]; next {
		case '"', '\\', '/':
			b.WriteByte(next)
			i++
		case 'n':
			b.WriteByte('\n')
			i++
		case 't':
			b.WriteByte('\t')
			i++
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}
