package analysis

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Alain-L/rabbitlog/parser"
)

func TestNormalizeMessage(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{
			"closing AMQP connection <0.1234.0> (10.0.0.7:50142 -> 10.0.0.2:5672, vhost: '/')",
			"closing AMQP connection <PID> (ADDR -> ADDR, vhost: ?)",
		},
		{"Waiting for Mnesia tables for 30000 ms, 9 retries left", "Waiting for Mnesia tables for ? ms, ? retries left"},
		{`queue "orders" in vhost '/' has 3 consumers`, "queue ? in vhost ? has ? consumers"},
		{"rabbit@node1 stopped", "rabbit@node1 stopped"},
		{"checkpoint took 1.5 seconds", "checkpoint took ? seconds"},
		{"retrying after 3.", "retrying after ?."},
		{"segment 0a1b2c3d4e written", "segment ? written"},
		{"timer #Ref<0.123.456.789> expired", "timer #Ref<?> expired"},
		{"a   b\t c  ", "a b c"},
		{"Ranch listener stopped\n  reason: eaddrinuse", "Ranch listener stopped"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeMessage(tt.in), tt.in)
	}
}

func TestNormalizeMessageTruncates(t *testing.T) {
	got := NormalizeMessage(strings.Repeat("é", 200))
	assert.LessOrEqual(t, len(got), maxSignature)
	assert.True(t, strings.HasPrefix(got, "éé"))
	assert.NotContains(t, got, "�")
}

func at(e *parser.ParsedEntry, ts time.Time) *parser.ParsedEntry {
	e.Timestamp = ts
	return e
}

func TestStreamingAnalyzer(t *testing.T) {
	t0 := time.Date(2025, 10, 27, 11, 0, 0, 0, time.UTC)
	quorum := "Quorum queue 'orders' in vhost '/': leader saw pre_vote_rpc for unknown term"

	entries := []*parser.ParsedEntry{
		at(entry(parser.SeverityNotice, "Logging: configured log handlers are now ACTIVE"), t0),
		at(entry(parser.SeverityWarning, quorum), t0.Add(time.Minute)),
		at(entry(parser.SeverityWarning, strings.Replace(quorum, "orders", "payments", 1)), t0.Add(2*time.Minute)),
		at(entry(parser.SeverityError, "Ranch listener stopped\n  reason: eaddrinuse"), t0.Add(-time.Minute)),
	}
	nodes := []string{"rabbit@a", "rabbit@a", "rabbit@b", "rabbit@b"}

	sa := NewStreamingAnalyzer(DefaultTopMessages)
	for i, e := range entries {
		Annotate(e)
		sa.Process(nodes[i], e)
	}
	r := sa.Finalize()

	assert.Equal(t, 4, r.Global.Count)
	assert.Equal(t, t0.Add(-time.Minute), r.Global.MinTimestamp)
	assert.Equal(t, t0.Add(2*time.Minute), r.Global.MaxTimestamp)
	assert.Equal(t, 1, r.Global.BySeverity[parser.SeverityNotice])
	assert.Equal(t, 2, r.Global.BySeverity[parser.SeverityWarning])
	assert.Equal(t, 1, r.Global.BySeverity[parser.SeverityError])
	assert.Equal(t, 1, r.Global.Multiline)
	assert.GreaterOrEqual(t, r.Global.Unlabelled, 1)

	assert.Equal(t, []EntityCount{{"rabbit@a", 2}, {"rabbit@b", 2}}, r.Nodes)
	assert.NotEmpty(t, r.Labels)
	assert.Contains(t, r.Subsystems, EntityCount{SubsystemLogging.String(), 1})
	assert.Contains(t, r.DocLinks, EntityCount{"https://www.rabbitmq.com/docs/logging", 1})

	require.Len(t, r.TopMessages, 2)
	top := r.TopMessages[0]
	assert.Equal(t, "Quorum queue ? in vhost ?: leader saw pre_vote_rpc for unknown term", top.Signature)
	assert.Equal(t, 2, top.Count)
	assert.Equal(t, parser.SeverityWarning, top.Severity)
	assert.Equal(t, quorum, top.Example)
	assert.Equal(t, "Ranch listener stopped", r.TopMessages[1].Example)
}

func TestStreamingAnalyzerTopLimit(t *testing.T) {
	sa := NewStreamingAnalyzer(1)
	sa.Process("n", entry(parser.SeverityError, "first failure"))
	sa.Process("n", entry(parser.SeverityCritical, "second failure"))
	sa.Process("n", entry(parser.SeverityInfo, "not counted"))

	r := sa.Finalize()
	require.Len(t, r.TopMessages, 1)
	assert.Equal(t, "second failure", r.TopMessages[0].Signature)
	assert.Equal(t, 3, r.Global.Unlabelled)
}

func TestSortByCount(t *testing.T) {
	got := SortByCount(map[string]int{"b": 2, "a": 2, "c": 5})
	assert.Equal(t, []EntityCount{{"c", 5}, {"a", 2}, {"b", 2}}, got)
	assert.Empty(t, SortByCount(nil))
}
