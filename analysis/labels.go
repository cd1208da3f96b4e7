package analysis

import (
	"errors"
	"fmt"
	"math/bits"
	"strings"

	"github.com/Alain-L/rabbitlog/parser"
)

// ErrUnknownLabel is returned for names outside the label vocabulary.
var ErrUnknownLabel = errors.New("unknown label")

// Label is a bit position in a LabelSet.
//
// The order below is persisted: stored masks depend on it, so new labels are
// only ever appended.
type Label uint8

const (
	LabelUnlabelled Label = iota
	LabelErlProcessCrash
	LabelUndefinedFn
	LabelProcessStops
	LabelRaft
	LabelElections
	LabelQueues
	LabelAutoDelete
	LabelExclusive
	LabelExceptions
	LabelDelete
	LabelQueueFederation
	LabelVirtualHosts
	LabelConnections
	LabelAccessControl
	LabelShovels
	LabelCQStores
	LabelDisconnects
	LabelFederation
	LabelPolicies
	LabelTimeouts
	LabelConsumers
	LabelTLS
	LabelQuorumQueues
	LabelNetsplits
	LabelDeprecatedFeatures
	LabelMaintenanceMode
	LabelKhepri
	LabelMnesia
	LabelStreams
	LabelLimits
	LabelWorkerPool
	LabelPeerDiscovery
	LabelPlugins
	LabelExchanges
	LabelStartStop
	LabelFeatureFlags
	LabelShutdown
	LabelClustering
	LabelMetrics
	LabelChannels
	LabelResourceAlarms
	LabelMQTT
	LabelSTOMP
	LabelAMQP10
	LabelWebSockets
	LabelHTTP
	LabelSessions
	LabelDefinitions
	LabelHeartbeats

	labelCount
)

// labelNames is the single source of truth for the name of each bit.
var labelNames = [labelCount]string{
	LabelUnlabelled:         "unlabelled",
	LabelErlProcessCrash:    "erl_process_crash",
	LabelUndefinedFn:        "undefined_fn",
	LabelProcessStops:       "process_stops",
	LabelRaft:               "raft",
	LabelElections:          "elections",
	LabelQueues:             "queues",
	LabelAutoDelete:         "auto_delete",
	LabelExclusive:          "exclusive",
	LabelExceptions:         "exceptions",
	LabelDelete:             "delete",
	LabelQueueFederation:    "queue_federation",
	LabelVirtualHosts:       "virtual_hosts",
	LabelConnections:        "connections",
	LabelAccessControl:      "access_control",
	LabelShovels:            "shovels",
	LabelCQStores:           "cq_stores",
	LabelDisconnects:        "disconnects",
	LabelFederation:         "federation",
	LabelPolicies:           "policies",
	LabelTimeouts:           "timeouts",
	LabelConsumers:          "consumers",
	LabelTLS:                "tls",
	LabelQuorumQueues:       "quorum_queues",
	LabelNetsplits:          "netsplits",
	LabelDeprecatedFeatures: "deprecated_features",
	LabelMaintenanceMode:    "maintenance_mode",
	LabelKhepri:             "khepri",
	LabelMnesia:             "mnesia",
	LabelStreams:            "streams",
	LabelLimits:             "limits",
	LabelWorkerPool:         "worker_pool",
	LabelPeerDiscovery:      "peer_discovery",
	LabelPlugins:            "plugins",
	LabelExchanges:          "exchanges",
	LabelStartStop:          "start_stop",
	LabelFeatureFlags:       "feature_flags",
	LabelShutdown:           "shutdown",
	LabelClustering:         "clustering",
	LabelMetrics:            "metrics",
	LabelChannels:           "channels",
	LabelResourceAlarms:     "resource_alarms",
	LabelMQTT:               "mqtt",
	LabelSTOMP:              "stomp",
	LabelAMQP10:             "amqp10",
	LabelWebSockets:         "websockets",
	LabelHTTP:               "http",
	LabelSessions:           "sessions",
	LabelDefinitions:        "definitions",
	LabelHeartbeats:         "heartbeats",
}

var labelsByName = func() map[string]Label {
	m := make(map[string]Label, labelCount)
	for i, name := range labelNames {
		m[name] = Label(i)
	}
	return m
}()

// String returns the label name.
func (l Label) String() string {
	if l >= labelCount {
		return fmt.Sprintf("label(%d)", uint8(l))
	}
	return labelNames[l]
}

// Bit returns the mask with only this label set.
func (l Label) Bit() LabelSet {
	return LabelSet(1) << l
}

// LabelFromName looks a label up by name (case-insensitive).
func LabelFromName(name string) (Label, bool) {
	l, ok := labelsByName[strings.ToLower(strings.TrimSpace(name))]
	return l, ok
}

// LabelNames returns the vocabulary in bit order.
func LabelNames() []string {
	return append([]string(nil), labelNames[:]...)
}

// AllLabels returns every label in bit order.
func AllLabels() []Label {
	out := make([]Label, labelCount)
	for i := range out {
		out[i] = Label(i)
	}
	return out
}

// LabelSet is a set of labels stored as a bitmask.
type LabelSet uint64

// Has reports whether l is in the set.
func (s LabelSet) Has(l Label) bool { return s&l.Bit() != 0 }

// With returns the set with l added.
func (s LabelSet) With(l Label) LabelSet { return s | l.Bit() }

// IsEmpty reports whether no bit is set.
func (s LabelSet) IsEmpty() bool { return s == 0 }

// Len returns the number of labels in the set.
func (s LabelSet) Len() int { return bits.OnesCount64(uint64(s)) }

// Labels returns the members in bit order.
func (s LabelSet) Labels() []Label {
	var out []Label
	for l := Label(0); l < labelCount; l++ {
		if s.Has(l) {
			out = append(out, l)
		}
	}
	return out
}

// Names returns the member names in bit order.
func (s LabelSet) Names() []string {
	var out []string
	for _, l := range s.Labels() {
		out = append(out, l.String())
	}
	return out
}

// String renders the set as a comma-separated list.
func (s LabelSet) String() string {
	return strings.Join(s.Names(), ",")
}

// MaskOf ORs the bits of the named labels together.
func MaskOf(names ...string) (LabelSet, error) {
	var mask LabelSet
	for _, name := range names {
		l, ok := LabelFromName(name)
		if !ok {
			return 0, fmt.Errorf("%w: %q", ErrUnknownLabel, name)
		}
		mask = mask.With(l)
	}
	return mask, nil
}

// LabelsOf returns the label set of an entry.
func LabelsOf(e *parser.ParsedEntry) LabelSet {
	return LabelSet(e.Labels)
}
