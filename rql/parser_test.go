package rql

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEmptyQuery(t *testing.T) {
	for _, input := range []string{"", "   ", "\n\t"} {
		_, err := Parse(input)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrEmptyQuery))

		var pe *ParseError
		require.True(t, errors.As(err, &pe))
		assert.Equal(t, ErrKindEmptyQuery, pe.Kind)
		assert.Equal(t, "Empty query", pe.Message)
	}
}

func TestParseRendersBack(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{`severity == "error"`, `severity == "error"`},
		{`severity = error`, `severity == error`},
		{`#raft -#elections`, `#raft and -#elections`},
		{`:errors #raft`, `:errors and #raft`},
		{`(#raft or #elections) and severity >= "warning"`, `(#raft or #elections) and severity >= "warning"`},
		{`@1h {node="rabbit@a"} * | sort timestamp desc | limit 20`, `@1h {node == "rabbit@a"} * | sort timestamp desc | limit 20`},
		{`@120m #raft`, `@2h #raft`},
		{`@90m #raft`, `@90m #raft`},
		{`message =~ /conn(ection)?s/`, `message =~ /conn(ection)?s/`},
		{`message =~ /a\/b/`, `message =~ /a\/b/`},
		{`labels all ["raft", elections]`, `labels all ["raft", "elections"]`},
		{`subsystem any ["raft", "streams"]`, `subsystem any ["raft", "streams"]`},
		{`NOT has_doc_url OR has_resolution_url`, `not has_doc_url or has_resolution_url`},
		{`unlabelled | count_by`, `unlabelled | count_by`},
		{`* | count_by node | sort node`, `* | count_by node | sort node asc`},
		{`| head 5`, `| head 5`},
		{`message icontains "Timeout" | project id, message | distinct message`, `message icontains "Timeout" | project id, message | distinct message`},
		{`id >= 10 and id < 20`, `id >= 10 and id < 20`},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			q, err := Parse(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, q.String())

			again, err := Parse(q.String())
			require.NoError(t, err)
			assert.Equal(t, tt.want, again.String())
		})
	}
}

func TestParseTree(t *testing.T) {
	q, err := Parse(`#raft or not has_doc_url`)
	require.NoError(t, err)

	want := &Or{
		Left:  &LabelsAny{Labels: []string{"raft"}, Shorthand: true, Span: Span{0, 5}},
		Right: &Not{Expr: &HasDocURL{}},
	}
	if diff := cmp.Diff(FilterExpr(want), q.Filter); diff != "" {
		t.Errorf("filter mismatch (-want +got):\n%s", diff)
	}
}

func TestParsePrecedence(t *testing.T) {
	q, err := Parse(`#raft or #queues and not #streams`)
	require.NoError(t, err)

	or, ok := q.Filter.(*Or)
	require.True(t, ok, "top level is %T", q.Filter)
	and, ok := or.Right.(*And)
	require.True(t, ok, "right side is %T", or.Right)
	assert.IsType(t, &Not{}, and.Right)
}

func TestParseQueryParts(t *testing.T) {
	q, err := Parse(`@15m {node="rabbit@a", severity>="warning"} #raft | sort id desc | offset 2 | tail 3`)
	require.NoError(t, err)

	assert.Equal(t, 15*time.Minute, q.Range)
	require.Len(t, q.Selector, 2)
	assert.Equal(t, FieldNode, q.Selector[0].Field)
	assert.Equal(t, OpGe, q.Selector[1].Op)

	want := []Stage{
		&SortStage{Field: FieldID, Descending: true},
		&OffsetStage{N: 2},
		&TailStage{N: 3},
	}
	if diff := cmp.Diff(want, q.Pipeline); diff != "" {
		t.Errorf("pipeline mismatch (-want +got):\n%s", diff)
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		input      string
		kind       ParseErrorKind
		suggestion string
	}{
		{`sevrity == "error"`, ErrKindInvalidField, "severity"},
		{`severity ==`, ErrKindUnexpectedEOF, ""},
		{`message == "abc`, ErrKindUnclosedString, ""},
		{`message =~ /abc`, ErrKindUnclosedRegex, ""},
		{`message =~ /(/`, ErrKindInvalidRegex, ""},
		{`@5x #raft`, ErrKindInvalidDuration, ""},
		{`@0h #raft`, ErrKindInvalidDuration, ""},
		{`:erors`, ErrKindUnknownPreset, "errors"},
		{`#rafft`, ErrKindUnknownLabel, "raft"},
		{`#`, ErrKindSyntax, ""},
		{`message == "a" & #raft`, ErrKindUnexpectedCharacter, ""},
		{`severity contains "x"`, ErrKindInvalidOperator, ""},
		{`#raft | limt 5`, ErrKindSyntax, "limit"},
		{`#raft )`, ErrKindSyntax, ""},
		{`id == abc`, ErrKindInvalidValue, ""},
		{`timestamp > "yesterday"`, ErrKindInvalidTimestamp, ""},
		{`labels any []`, ErrKindInvalidValue, ""},
		{`severity == /x/`, ErrKindInvalidValue, ""},
		{`* | limit -1`, ErrKindInvalidValue, ""},
		{`* | sort`, ErrKindUnexpectedEOF, ""},
		{"message contains \"\xff\"", ErrKindInvalidValue, ""},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			_, err := Parse(tt.input)
			require.Error(t, err)

			var pe *ParseError
			require.True(t, errors.As(err, &pe), "got %T: %v", err, err)
			assert.Equal(t, tt.kind, pe.Kind, pe.Error())
			assert.Equal(t, tt.suggestion, pe.Suggestion)
			if tt.suggestion != "" {
				assert.Contains(t, err.Error(), "did you mean '"+tt.suggestion+"'?")
			}
		})
	}
}

func TestParseErrorSpan(t *testing.T) {
	_, err := Parse(`severity == "error" and sevrity == "x"`)
	var pe *ParseError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, Span{24, 31}, pe.Span)
	assert.Equal(t, "sevrity", pe.Token)
	assert.Contains(t, err.Error(), "at position 24")
	assert.True(t, errors.Is(err, ErrInvalidField))
}

func TestTokenizeSpans(t *testing.T) {
	tokens, err := Tokenize(`#raft  and :errors`)
	require.NoError(t, err)
	require.Len(t, tokens, 4)

	assert.Equal(t, Token{Kind: TokenLabel, Value: "#raft", Span: Span{0, 5}}, tokens[0])
	assert.Equal(t, Token{Kind: TokenIdent, Value: "and", Span: Span{7, 10}}, tokens[1])
	assert.Equal(t, Token{Kind: TokenPreset, Value: ":errors", Span: Span{11, 18}}, tokens[2])
	assert.Equal(t, TokenEOF, tokens[3].Kind)
}

func TestUnquote(t *testing.T) {
	assert.Equal(t, `plain`, unquote(`plain`))
	assert.Equal(t, `say "hi"`, unquote(`say \"hi\"`))
	assert.Equal(t, "a\nb\tc", unquote(`a\nb\tc`))
	assert.Equal(t, `\d+ \`, unquote(`\d+ \\`))
	assert.Equal(t, `a/b`, unquote(`a\/b`))
}

func TestPresets(t *testing.T) {
	assert.IsType(t, &Comparison{}, PresetErrors.ToFilterExpr())
	assert.IsType(t, &Or{}, PresetErrorsOrCrashes.ToFilterExpr())

	p, ok := PresetFromName(":errors")
	require.True(t, ok)
	assert.Equal(t, PresetErrors, p)

	_, ok = PresetFromName("nope")
	assert.False(t, ok)

	require.Len(t, PresetNames(), len(AllPresets()))
	for _, p := range AllPresets() {
		t.Run(p.Name(), func(t *testing.T) {
			assert.NotEmpty(t, p.Description())

			q, err := Parse(":" + p.Name())
			require.NoError(t, err)
			_, err = Compile(q)
			require.NoError(t, err)

			_, err = CompileString(p.QueryString())
			require.NoError(t, err)
		})
	}
}

func TestSuggest(t *testing.T) {
	vocab := []string{"severity", "subsystem", "node", "message"}

	s, ok := Suggest("sevrity", vocab)
	require.True(t, ok)
	assert.Equal(t, "severity", s)

	s, ok = Suggest("sub", vocab)
	require.True(t, ok)
	assert.Equal(t, "subsystem", s)

	_, ok = Suggest("zzzzzzzz", vocab)
	assert.False(t, ok)

	_, ok = Suggest("node", vocab)
	assert.False(t, ok, "exact matches need no suggestion")

	assert.Equal(t, []string{"node"}, SuggestN("nod", vocab, 3))
	assert.Equal(t, []string{"subsystem", "severity"}, CompletePrefix("S", []string{"subsystem", "node", "severity"}))

	// The allowed distance grows with the input length.
	assert.Equal(t, []string{"ab"}, SuggestN("xb", []string{"ab"}, 1))
	assert.Empty(t, SuggestN("xy", []string{"ab"}, 1))
	assert.Equal(t, []string{"elections"}, SuggestN("electons", []string{"elections", "streams"}, 2))
	assert.Empty(t, SuggestN("abcdefgh", []string{"abcdwxyz"}, 1))
	assert.Equal(t, []string{"e"}, SuggestN("é", []string{"e"}, 1), "distance counts runes")
}
