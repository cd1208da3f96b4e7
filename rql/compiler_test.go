package rql

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Alain-L/rabbitlog/analysis"
)

func mustMask(t *testing.T, names ...string) int64 {
	t.Helper()
	m, err := analysis.MaskOf(names...)
	require.NoError(t, err)
	return int64(m)
}

func TestCompileUnknownLabel(t *testing.T) {
	_, err := CompileString(`labels any ["nonexistent_label"]`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Unknown label")
	assert.Contains(t, err.Error(), "nonexistent_label")
	assert.True(t, errors.Is(err, ErrUnknownLabel))

	var ce *CompileError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, CompileKindUnknownLabel, ce.Kind)
	assert.Equal(t, "nonexistent_label", ce.Token)
}

func TestCompileVocabularyErrors(t *testing.T) {
	tests := []struct {
		input      string
		kind       CompileErrorKind
		token      string
		suggestion string
	}{
		{`severity == "eror"`, CompileKindInvalidSeverity, "eror", "error"},
		{`severity >= warnng`, CompileKindInvalidSeverity, "warnng", "warning"},
		{`subsystem == "raftt"`, CompileKindInvalidSubsystem, "raftt", "raft"},
		{`subsystem any ["streams", "stremas"]`, CompileKindInvalidSubsystem, "stremas", "streams"},
		{`labels all ["raft", "electons"]`, CompileKindUnknownLabel, "electons", "elections"},
		{`labels != "nope_nope_nope"`, CompileKindUnknownLabel, "nope_nope_nope", ""},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			_, err := CompileString(tt.input)
			var ce *CompileError
			require.True(t, errors.As(err, &ce), "got %v", err)
			assert.Equal(t, tt.kind, ce.Kind)
			assert.Equal(t, tt.token, ce.Token)
			if tt.suggestion == "" {
				assert.Empty(t, ce.Suggestions)
				return
			}
			require.NotEmpty(t, ce.Suggestions)
			assert.Equal(t, tt.suggestion, ce.Suggestions[0])
			assert.Contains(t, err.Error(), "did you mean '"+tt.suggestion+"'?")
		})
	}
}

func TestCompileSQL(t *testing.T) {
	raftID := int64(analysis.SubsystemRaft.ID())
	tests := []struct {
		input      string
		want       []SQLFragment
		postFilter bool
	}{
		{`severity == "error"`, []SQLFragment{{"severity = ?", []any{"error"}}}, false},
		{`severity != "info"`, []SQLFragment{{"severity IN (?, ?, ?, ?, ?)", []any{"debug", "notice", "warning", "error", "critical"}}}, false},
		{`severity >= "warning"`, []SQLFragment{{"severity IN (?, ?, ?)", []any{"warning", "error", "critical"}}}, false},
		{`severity > "critical"`, []SQLFragment{{"1 = 0", nil}}, false},
		{`severity >= "debug"`, nil, false},
		{`labels any ["raft", "elections"]`, []SQLFragment{{"(labels & ?) != 0", []any{mustMask(t, "raft", "elections")}}}, false},
		{`labels all ["raft", "elections"]`, []SQLFragment{{"(labels & ?) = ?", []any{mustMask(t, "raft", "elections"), mustMask(t, "raft", "elections")}}}, false},
		{`unlabelled`, []SQLFragment{{"(labels & ?) != 0", []any{int64(1)}}}, false},
		{`message contains "50%_off\\"`, []SQLFragment{{`message LIKE ? ESCAPE '\'`, []any{`%50\%\_off\\%`}}}, false},
		{`message =~ "handshake"`, []SQLFragment{{`message LIKE ? ESCAPE '\'`, []any{"%handshake%"}}}, false},
		{`message !~ /handshake/`, []SQLFragment{{`message NOT LIKE ? ESCAPE '\'`, []any{"%handshake%"}}}, false},
		{`message =~ /timeout|timed out/`, nil, true},
		{`message icontains "TIMEOUT"`, []SQLFragment{{`lower(message) LIKE ? ESCAPE '\'`, []any{"%timeout%"}}}, false},
		{`message icontains "Élan"`, nil, true},
		{`node == "rabbit@a"`, []SQLFragment{{"node = ?", []any{"rabbit@a"}}}, false},
		{`erlang_pid != "<0.1.0>"`, []SQLFragment{{"erlang_pid <> ?", []any{"<0.1.0>"}}}, false},
		{`subsystem == "raft"`, []SQLFragment{{"IFNULL(subsystem_id, 0) = ?", []any{raftID}}}, false},
		{`subsystem =~ /^raf/`, []SQLFragment{{"IFNULL(subsystem_id, 0) IN (?)", []any{raftID}}}, false},
		{`subsystem !~ /^raf/`, []SQLFragment{{"IFNULL(subsystem_id, 0) NOT IN (?)", []any{raftID}}}, false},
		{`subsystem =~ /^zzz/`, []SQLFragment{{"1 = 0", nil}}, false},
		{`not #raft`, []SQLFragment{{"NOT ((labels & ?) != 0)", []any{mustMask(t, "raft")}}}, false},
		{`not *`, []SQLFragment{{"1 = 0", nil}}, false},
		{`has_doc_url`, []SQLFragment{{"doc_url_id IS NOT NULL", nil}}, false},
		{`has_resolution_url`, []SQLFragment{{"resolution_or_discussion_url_id IS NOT NULL", nil}}, false},
		{`id > 5`, []SQLFragment{{"id > ?", []any{int64(5)}}}, false},
		{`#raft or message =~ /x+y/`, nil, true},
		{`not message =~ /x+y/`, nil, true},
		{
			`#raft and message =~ /x+y/`,
			[]SQLFragment{{"(labels & ?) != 0", []any{mustMask(t, "raft")}}},
			true,
		},
		{
			`#raft or #streams`,
			[]SQLFragment{{"((labels & ?) != 0) OR ((labels & ?) != 0)", []any{mustMask(t, "raft"), mustMask(t, "streams")}}},
			false,
		},
		{
			`(#raft and has_doc_url) and node == "a"`,
			[]SQLFragment{
				{"(labels & ?) != 0", []any{mustMask(t, "raft")}},
				{"doc_url_id IS NOT NULL", nil},
				{"node = ?", []any{"a"}},
			},
			false,
		},
		{`*`, nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			cq, err := CompileString(tt.input)
			require.NoError(t, err)
			if diff := cmp.Diff(tt.want, cq.SQL); diff != "" {
				t.Errorf("SQL mismatch (-want +got):\n%s", diff)
			}
			assert.Equal(t, tt.postFilter, cq.PostFilter)
		})
	}
}

func TestCompileRangeAndSelector(t *testing.T) {
	now := time.Date(2025, 10, 27, 12, 0, 0, 0, time.UTC)
	c := Compiler{Now: func() time.Time { return now }}

	cq, err := c.Compile(MustParse(`@1h {node="rabbit@a"} *`))
	require.NoError(t, err)

	want := []SQLFragment{
		{"timestamp >= ?", []any{now.Add(-time.Hour).UnixMicro()}},
		{"node = ?", []any{"rabbit@a"}},
	}
	if diff := cmp.Diff(want, cq.SQL); diff != "" {
		t.Errorf("SQL mismatch (-want +got):\n%s", diff)
	}

	where, args := cq.WhereClause()
	assert.Equal(t, "(timestamp >= ?) AND (node = ?)", where)
	assert.Len(t, args, 2)
}

func TestWhereClauseEmpty(t *testing.T) {
	cq, err := CompileString(`*`)
	require.NoError(t, err)
	where, args := cq.WhereClause()
	assert.Equal(t, "1 = 1", where)
	assert.Empty(t, args)
}

func TestCompileTimestampComparison(t *testing.T) {
	cq, err := CompileString(`timestamp >= "2025-10-27 11:00:00"`)
	require.NoError(t, err)
	want := time.Date(2025, 10, 27, 11, 0, 0, 0, time.UTC).UnixMicro()
	require.Len(t, cq.SQL, 1)
	assert.Equal(t, "timestamp >= ?", cq.SQL[0].Text)
	assert.Equal(t, []any{want}, cq.SQL[0].Args)
}

func TestCompileRejectsDroppedColumns(t *testing.T) {
	_, err := CompileString(`* | project node | sort severity`)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnsupported))

	_, err = CompileString(`* | count_by node | sort node`)
	assert.NoError(t, err)
}

func TestCompileProgrammaticAST(t *testing.T) {
	// Trees built in code skip the parser checks.
	_, err := Compile(&Query{Filter: &Comparison{Field: FieldSeverity, Op: OpContains, Value: StringValue("x")}})
	assert.True(t, errors.Is(err, ErrUnsupported))

	_, err = Compile(&Query{Filter: &Comparison{Field: FieldTimestamp, Op: OpGt, Value: StringValue("soon")}})
	assert.True(t, errors.Is(err, ErrInvalidTimestamp))

	_, err = Compile(&Query{Filter: &Comparison{Field: FieldMessage, Op: OpRegex, Value: StringValue("(")}})
	assert.True(t, errors.Is(err, ErrRegex))

	cq, err := Compile(&Query{Filter: &Comparison{Field: FieldID, Op: OpEq, Value: NumberValue(7)}})
	require.NoError(t, err)
	assert.True(t, cq.Matches(&Row{ID: 7}))
	assert.False(t, cq.Matches(&Row{ID: 8}))
}

func TestParseTimestamp(t *testing.T) {
	for _, s := range []string{"2025-10-27T11:00:00Z", "2025-10-27T04:00:00-07:00", "2025-10-27 11:00:00"} {
		ts, err := parseTimestamp(s)
		require.NoError(t, err, s)
		assert.Equal(t, time.Date(2025, 10, 27, 11, 0, 0, 0, time.UTC), ts, s)
	}

	ts, err := parseTimestamp("2025-10-27")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 10, 27, 0, 0, 0, 0, time.UTC), ts)

	_, err = parseTimestamp("27/10/2025")
	assert.True(t, errors.Is(err, ErrInvalidTimestamp))
}

func TestEscapeLike(t *testing.T) {
	assert.Equal(t, `plain`, escapeLike("plain"))
	assert.Equal(t, `100\%`, escapeLike("100%"))
	assert.Equal(t, `a\_b`, escapeLike("a_b"))
	assert.Equal(t, `c:\\dir`, escapeLike(`c:\dir`))
}
