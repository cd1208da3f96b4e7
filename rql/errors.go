package rql

import (
	"errors"
	"fmt"
	"strings"
)

// Span is a half-open byte range [Start, End) in the query text.
type Span struct {
	Start int
	End   int
}

// Len returns the number of bytes covered.
func (s Span) Len() int { return s.End - s.Start }

// ParseErrorKind classifies syntax errors.
type ParseErrorKind int

const (
	ErrKindUnexpectedEOF ParseErrorKind = iota
	ErrKindInvalidField
	ErrKindInvalidOperator
	ErrKindInvalidValue
	ErrKindInvalidDuration
	ErrKindInvalidTimestamp
	ErrKindInvalidRegex
	ErrKindUnknownPreset
	ErrKindUnknownLabel
	ErrKindSyntax
	ErrKindUnclosedString
	ErrKindUnclosedRegex
	ErrKindEmptyQuery
	ErrKindUnexpectedCharacter
)

// Sentinels for errors.Is on *ParseError.
var (
	ErrUnexpectedEOF       = errors.New("unexpected end of query")
	ErrInvalidField        = errors.New("invalid field")
	ErrInvalidOperator     = errors.New("invalid operator")
	ErrInvalidValue        = errors.New("invalid value")
	ErrInvalidDuration     = errors.New("invalid duration")
	ErrInvalidTimestamp    = errors.New("invalid timestamp")
	ErrInvalidRegex        = errors.New("invalid regex")
	ErrUnknownPreset       = errors.New("unknown preset")
	ErrUnknownLabel        = errors.New("unknown label")
	ErrSyntax              = errors.New("syntax error")
	ErrUnclosedString      = errors.New("unclosed string")
	ErrUnclosedRegex       = errors.New("unclosed regex")
	ErrEmptyQuery          = errors.New("empty query")
	ErrUnexpectedCharacter = errors.New("unexpected character")
)

var parseSentinels = map[ParseErrorKind]error{
	ErrKindUnexpectedEOF:       ErrUnexpectedEOF,
	ErrKindInvalidField:        ErrInvalidField,
	ErrKindInvalidOperator:     ErrInvalidOperator,
	ErrKindInvalidValue:        ErrInvalidValue,
	ErrKindInvalidDuration:     ErrInvalidDuration,
	ErrKindInvalidTimestamp:    ErrInvalidTimestamp,
	ErrKindInvalidRegex:        ErrInvalidRegex,
	ErrKindUnknownPreset:       ErrUnknownPreset,
	ErrKindUnknownLabel:        ErrUnknownLabel,
	ErrKindSyntax:              ErrSyntax,
	ErrKindUnclosedString:      ErrUnclosedString,
	ErrKindUnclosedRegex:       ErrUnclosedRegex,
	ErrKindEmptyQuery:          ErrEmptyQuery,
	ErrKindUnexpectedCharacter: ErrUnexpectedCharacter,
}

var parseKindNames = map[ParseErrorKind]string{
	ErrKindUnexpectedEOF:       "unexpected_eof",
	ErrKindInvalidField:        "invalid_field",
	ErrKindInvalidOperator:     "invalid_operator",
	ErrKindInvalidValue:        "invalid_value",
	ErrKindInvalidDuration:     "invalid_duration",
	ErrKindInvalidTimestamp:    "invalid_timestamp",
	ErrKindInvalidRegex:        "invalid_regex",
	ErrKindUnknownPreset:       "unknown_preset",
	ErrKindUnknownLabel:        "unknown_label",
	ErrKindSyntax:              "syntax",
	ErrKindUnclosedString:      "unclosed_string",
	ErrKindUnclosedRegex:       "unclosed_regex",
	ErrKindEmptyQuery:          "empty_query",
	ErrKindUnexpectedCharacter: "unexpected_character",
}

func (k ParseErrorKind) String() string {
	if name, ok := parseKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("parse_error(%d)", int(k))
}

// ParseError is a syntax error with the offending byte span.
type ParseError struct {
	Kind       ParseErrorKind
	Message    string
	Span       Span
	Token      string
	Suggestion string
}

func (e *ParseError) Error() string {
	msg := e.Message
	if e.Suggestion != "" {
		msg += fmt.Sprintf(" (did you mean '%s'?)", e.Suggestion)
	}
	return fmt.Sprintf("%s at position %d", msg, e.Span.Start)
}

// Unwrap returns the sentinel for the error kind.
func (e *ParseError) Unwrap() error { return parseSentinels[e.Kind] }

// CompileErrorKind classifies semantic errors.
type CompileErrorKind int

const (
	CompileKindRegex CompileErrorKind = iota
	CompileKindInvalidSeverity
	CompileKindInvalidSubsystem
	CompileKindUnknownLabel
	CompileKindUnsupported
	CompileKindInvalidTimestamp
)

// Sentinels for errors.Is on *CompileError. Unknown labels and invalid
// timestamps share the parse sentinels.
var (
	ErrRegex            = errors.New("regex compilation failed")
	ErrInvalidSeverity  = errors.New("invalid severity")
	ErrInvalidSubsystem = errors.New("invalid subsystem")
	ErrUnsupported      = errors.New("unsupported operation")
)

var compileSentinels = map[CompileErrorKind]error{
	CompileKindRegex:            ErrRegex,
	CompileKindInvalidSeverity:  ErrInvalidSeverity,
	CompileKindInvalidSubsystem: ErrInvalidSubsystem,
	CompileKindUnknownLabel:     ErrUnknownLabel,
	CompileKindUnsupported:      ErrUnsupported,
	CompileKindInvalidTimestamp: ErrInvalidTimestamp,
}

var compileKindNames = map[CompileErrorKind]string{
	CompileKindRegex:            "regex",
	CompileKindInvalidSeverity:  "invalid_severity",
	CompileKindInvalidSubsystem: "invalid_subsystem",
	CompileKindUnknownLabel:     "unknown_label",
	CompileKindUnsupported:      "unsupported",
	CompileKindInvalidTimestamp: "invalid_timestamp",
}

func (k CompileErrorKind) String() string {
	if name, ok := compileKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("compile_error(%d)", int(k))
}

// CompileError is a semantic error found while lowering a query.
type CompileError struct {
	Kind        CompileErrorKind
	Message     string
	Token       string
	Suggestions []string
	Span        Span
}

func (e *CompileError) Error() string {
	if len(e.Suggestions) > 0 {
		return fmt.Sprintf("%s (did you mean '%s'?)", e.Message, e.Suggestions[0])
	}
	return e.Message
}

// Unwrap returns the sentinel for the error kind.
func (e *CompileError) Unwrap() error { return compileSentinels[e.Kind] }

// vocabularyError builds the "Unknown x 'tok'. Valid xs: ..." message used for
// every closed vocabulary.
func vocabularyError(kind CompileErrorKind, what, plural, token string, vocab []string, span Span) *CompileError {
	return &CompileError{
		Kind:        kind,
		Message:     fmt.Sprintf("Unknown %s '%s'. Valid %s: %s", what, token, plural, excerpt(vocab, 12)),
		Token:       token,
		Suggestions: SuggestN(token, vocab, 3),
		Span:        span,
	}
}

// excerpt joins at most n items and notes how many were left out.
func excerpt(items []string, n int) string {
	if len(items) <= n {
		return strings.Join(items, ", ")
	}
	return fmt.Sprintf("%s, ... (%d more)", strings.Join(items[:n], ", "), len(items)-n)
}
