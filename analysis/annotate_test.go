package analysis

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Alain-L/rabbitlog/parser"
)

func entry(sev parser.Severity, msg string) *parser.ParsedEntry {
	return &parser.ParsedEntry{
		Severity:          sev,
		ProcessID:         "<0.208.0>",
		Message:           msg,
		MessageLowercased: strings.ToLower(msg),
	}
}

func TestAnnotateLoggingHandlers(t *testing.T) {
	e := entry(parser.SeverityNotice, "Logging: configured log handlers are now ACTIVE")
	Annotate(e)

	s, ok := SubsystemOf(e)
	require.True(t, ok)
	assert.Equal(t, SubsystemLogging, s)
	assert.Equal(t, LabelUnlabelled.Bit(), LabelsOf(e))
	link, ok := DocURL(e.DocURLID)
	require.True(t, ok)
	assert.Equal(t, "https://www.rabbitmq.com/docs/logging", link)
	assert.Zero(t, e.ResolutionURLID)
}

func TestAnnotateQuorumQueueGetsSeveralLabels(t *testing.T) {
	e := entry(parser.SeverityWarning, "Quorum queue 'orders' in vhost '/': leader saw pre_vote_rpc for unknown term")
	Annotate(e)

	assert.Equal(t, SubsystemQuorumQueues.ID(), e.SubsystemID)
	labels := LabelsOf(e)
	for _, l := range []Label{LabelQuorumQueues, LabelRaft, LabelElections, LabelQueues, LabelVirtualHosts} {
		assert.True(t, labels.Has(l), "missing label %s in %s", l, labels)
	}
	assert.False(t, labels.Has(LabelUnlabelled))
	assert.Equal(t, DocQuorumQueues, e.DocURLID)
}

func TestAnnotateCrashReport(t *testing.T) {
	e := entry(parser.SeverityError, "** Generic server <0.1234.0> terminating\n** Last message in was {'EXIT',<0.1.0>,normal}")
	Annotate(e)

	assert.Equal(t, SubsystemErlangOTP.ID(), e.SubsystemID)
	labels := LabelsOf(e)
	assert.True(t, labels.Has(LabelErlProcessCrash))
	assert.True(t, labels.Has(LabelProcessStops))
}

func TestAnnotateKeywordsAcrossLines(t *testing.T) {
	e := entry(parser.SeverityError, "Federation link failed\nupstream queue 'q1' is unavailable")
	Annotate(e)

	labels := LabelsOf(e)
	assert.True(t, labels.Has(LabelQueueFederation))
	assert.True(t, labels.Has(LabelFederation))
}

func TestAnnotateURLOrder(t *testing.T) {
	tests := []struct {
		name       string
		msg        string
		doc        int16
		resolution int16
	}{
		{
			name:       "ack timeout beats heartbeat and consumers",
			msg:        "Channel error on connection: PRECONDITION_FAILED - delivery_acknowledgement_timeout, consumer ack timed out",
			doc:        DocConsumerAckTimeout,
			resolution: ResolutionAckTimeout,
		},
		{
			name:       "disk alarm beats generic alarms",
			msg:        "Free disk space is insufficient. Disk alarm set on node rabbit@host",
			doc:        DocDiskAlarms,
			resolution: ResolutionDiskAlarm,
		},
		{
			name:       "memory watermark",
			msg:        "vm_memory_high_watermark set. Memory used:1240 allowed:1000",
			doc:        DocMemory,
			resolution: ResolutionMemoryAlarm,
		},
		{
			name:       "partial partition",
			msg:        "Partial partition detected: rabbit@a sees rabbit@b but not rabbit@c",
			doc:        DocPartitions,
			resolution: ResolutionPartialPartition,
		},
		{
			name: "plugins page only",
			msg:  "Server startup complete; 5 plugins started.",
			doc:  DocPlugins,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := entry(parser.SeverityWarning, tt.msg)
			Annotate(e)
			assert.Equal(t, tt.doc, e.DocURLID)
			assert.Equal(t, tt.resolution, e.ResolutionURLID)
		})
	}
}

func TestAnnotateSeverityGatedResolution(t *testing.T) {
	info := entry(parser.SeverityInfo, "Deprecated feature `transient_nonexcl_queues` is used")
	warn := entry(parser.SeverityWarning, "Deprecated feature `transient_nonexcl_queues` is used")
	permitted := entry(parser.SeverityWarning, "Deprecated feature `transient_nonexcl_queues` is permitted")
	Annotate(info)
	Annotate(warn)
	Annotate(permitted)

	assert.Zero(t, info.ResolutionURLID)
	assert.Equal(t, ResolutionDeprecatedFeatures, warn.ResolutionURLID)
	assert.Zero(t, permitted.ResolutionURLID)
	assert.Equal(t, DocDeprecatedFeatures, info.DocURLID)
}

func TestAnnotateIsIdempotent(t *testing.T) {
	messages := []string{
		"Logging: configured log handlers are now ACTIVE",
		"Quorum queue 'orders' in vhost '/': leader saw pre_vote_rpc for unknown term",
		"closing AMQP connection <0.1.0> (10.0.0.1:5672 -> 10.0.0.2:5672): client unexpectedly closed TCP connection",
		"Feature flag `khepri_db`: enabling",
		"completely unremarkable line",
		"",
	}
	for _, msg := range messages {
		once := entry(parser.SeverityError, msg)
		Annotate(once)
		twice := *once
		Annotate(&twice)

		assert.Equal(t, once.SubsystemID, twice.SubsystemID, msg)
		assert.Equal(t, once.Labels, twice.Labels, msg)
		assert.Equal(t, once.DocURLID, twice.DocURLID, msg)
		assert.Equal(t, once.ResolutionURLID, twice.ResolutionURLID, msg)
		assert.NotZero(t, once.Labels, "annotated mask must never be empty: %q", msg)
	}
}

func TestAnnotateKeepsExistingClassification(t *testing.T) {
	e := entry(parser.SeverityInfo, "Quorum queue 'q' leader elected")
	e.SubsystemID = SubsystemBoot.ID()
	e.DocURLID = DocLogging
	Annotate(e)

	assert.Equal(t, SubsystemBoot.ID(), e.SubsystemID)
	assert.Equal(t, DocLogging, e.DocURLID)
	assert.True(t, LabelsOf(e).Has(LabelQuorumQueues))
}

func TestAnnotateAll(t *testing.T) {
	entries := []parser.ParsedEntry{
		*entry(parser.SeverityInfo, "Starting RabbitMQ 4.1.0 on Erlang 27"),
		*entry(parser.SeverityInfo, "nothing"),
	}
	AnnotateAll(entries)

	assert.Equal(t, SubsystemBoot.ID(), entries[0].SubsystemID)
	assert.True(t, LabelSet(entries[0].Labels).Has(LabelStartStop))
	assert.Zero(t, entries[1].SubsystemID)
	assert.Equal(t, uint64(LabelUnlabelled.Bit()), entries[1].Labels)
}
