package analysis

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Alain-L/rabbitlog/parser"
)

func TestSubsystemIDsRoundTrip(t *testing.T) {
	seen := make(map[int16]bool)
	for _, s := range AllSubsystems() {
		id := s.ID()
		assert.GreaterOrEqual(t, id, int16(1))
		assert.LessOrEqual(t, int(id), SubsystemCount())
		assert.False(t, seen[id], "duplicate id %d", id)
		seen[id] = true

		back, ok := SubsystemFromID(id)
		require.True(t, ok)
		assert.Equal(t, s, back)

		byName, ok := SubsystemFromName(s.String())
		require.True(t, ok)
		assert.Equal(t, s, byName)
	}
	assert.Len(t, seen, SubsystemCount())

	_, ok := SubsystemFromID(0)
	assert.False(t, ok)
	_, ok = SubsystemFromID(int16(SubsystemCount() + 1))
	assert.False(t, ok)
	_, ok = SubsystemFromName("rabbit_everything")
	assert.False(t, ok)
}

func TestSubsystemMatchersCoverValidSubsystems(t *testing.T) {
	matchers := SubsystemMatchers()
	require.NotEmpty(t, matchers)
	for _, m := range matchers {
		assert.True(t, m.Subsystem().Valid(), "matcher for %v", m.Subsystem())
	}
}

func TestLabelVocabulary(t *testing.T) {
	names := LabelNames()
	require.LessOrEqual(t, len(names), 64)
	assert.Equal(t, "unlabelled", names[0])

	seen := make(map[string]bool)
	for i, name := range names {
		assert.False(t, seen[name], "duplicate label %s", name)
		seen[name] = true
		assert.Equal(t, strings.ToLower(name), name)

		l, ok := LabelFromName(name)
		require.True(t, ok)
		assert.Equal(t, Label(i), l)
		assert.Equal(t, LabelSet(1)<<uint(i), l.Bit())
	}
}

func TestLabelMatchersNeverSetUnlabelled(t *testing.T) {
	for _, m := range LabelMatchers() {
		assert.NotEqual(t, LabelUnlabelled, m.Label())
		assert.Less(t, int(m.Label()), len(LabelNames()))
	}
}

func TestMaskOf(t *testing.T) {
	mask, err := MaskOf("raft", "Timeouts")
	require.NoError(t, err)
	assert.True(t, mask.Has(LabelRaft))
	assert.True(t, mask.Has(LabelTimeouts))
	assert.Equal(t, 2, mask.Len())
	assert.Equal(t, "raft,timeouts", mask.String())

	_, err = MaskOf("raft", "nonexistent_label")
	require.ErrorIs(t, err, ErrUnknownLabel)
	assert.Contains(t, err.Error(), "nonexistent_label")
}

func TestURLTables(t *testing.T) {
	for _, m := range DocURLMatchers() {
		link, ok := DocURL(m.URLID())
		require.True(t, ok, "doc id %d", m.URLID())
		assert.True(t, strings.HasPrefix(link, "https://www.rabbitmq.com/docs/"))
	}
	for _, m := range ResolutionURLMatchers() {
		link, ok := ResolutionURL(m.URLID())
		require.True(t, ok, "resolution id %d", m.URLID())
		assert.True(t, strings.HasPrefix(link, "https://github.com/rabbitmq/rabbitmq-server/discussions"))
	}

	_, ok := DocURL(0)
	assert.False(t, ok)
	_, ok = ResolutionURL(0)
	assert.False(t, ok)
}

func TestMatcherShapes(t *testing.T) {
	e := entry(parser.SeverityDebug, "Connection refused\nwhile talking to PEER")

	assert.True(t, contains("REFUSED").Matches(e))
	assert.True(t, containsAll("refused", "peer").Matches(e))
	assert.False(t, containsAll("refused", "quorum").Matches(e))
	assert.False(t, containsAll().Matches(e))
	assert.True(t, re(`^connection`).Matches(e))
	assert.True(t, and(contains("peer"), re(`refused`)).Matches(e))
	assert.False(t, and().Matches(e))
	assert.True(t, or(contains("nope"), contains("peer")).Matches(e))
	assert.False(t, without(contains("peer"), contains("refused")).Matches(e))
	assert.False(t, atLeast(parser.SeverityInfo, contains("peer")).Matches(e))
	assert.True(t, MatcherFunc(func(*parser.ParsedEntry) bool { return true }).Matches(e))
}
