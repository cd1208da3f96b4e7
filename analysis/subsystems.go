package analysis

import (
	"fmt"
	"strings"

	"github.com/Alain-L/rabbitlog/parser"
)

// Subsystem identifies the broker component that emitted an entry.
// Identifiers are persisted and lie in [1, N]; zero means "no subsystem".
type Subsystem int16

const (
	SubsystemMetadataStore Subsystem = iota + 1
	SubsystemFeatureFlags
	SubsystemBoot
	SubsystemRaft
	SubsystemPeerDiscovery
	SubsystemPlugins
	SubsystemLogging
	SubsystemAccessControl
	SubsystemClassicQueues
	SubsystemQuorumQueues
	SubsystemStreams
	SubsystemFederation
	SubsystemShovel
	SubsystemMQTT
	SubsystemSTOMP
	SubsystemManagement
	SubsystemPrometheus
	SubsystemShutdown
	SubsystemMaintenanceMode
	SubsystemClustering
	SubsystemResourceAlarms
	SubsystemVirtualHosts
	SubsystemPolicies
	SubsystemConnections
	SubsystemErlangOTP

	subsystemEnd
)

var subsystemNames = [subsystemEnd]string{
	SubsystemMetadataStore:   "metadata_store",
	SubsystemFeatureFlags:    "feature_flags",
	SubsystemBoot:            "boot",
	SubsystemRaft:            "raft",
	SubsystemPeerDiscovery:   "peer_discovery",
	SubsystemPlugins:         "plugins",
	SubsystemLogging:         "logging",
	SubsystemAccessControl:   "access_control",
	SubsystemClassicQueues:   "classic_queues",
	SubsystemQuorumQueues:    "quorum_queues",
	SubsystemStreams:         "streams",
	SubsystemFederation:      "federation",
	SubsystemShovel:          "shovel",
	SubsystemMQTT:            "mqtt",
	SubsystemSTOMP:           "stomp",
	SubsystemManagement:      "management",
	SubsystemPrometheus:      "prometheus",
	SubsystemShutdown:        "shutdown",
	SubsystemMaintenanceMode: "maintenance_mode",
	SubsystemClustering:      "clustering",
	SubsystemResourceAlarms:  "resource_alarms",
	SubsystemVirtualHosts:    "virtual_hosts",
	SubsystemPolicies:        "policies",
	SubsystemConnections:     "connections",
	SubsystemErlangOTP:       "erlang_otp",
}

var subsystemsByName = func() map[string]Subsystem {
	m := make(map[string]Subsystem, subsystemEnd)
	for s := Subsystem(1); s < subsystemEnd; s++ {
		m[subsystemNames[s]] = s
	}
	return m
}()

// ID returns the persisted identifier.
func (s Subsystem) ID() int16 { return int16(s) }

// Valid reports whether s is a known subsystem.
func (s Subsystem) Valid() bool { return s >= 1 && s < subsystemEnd }

// String returns the subsystem name.
func (s Subsystem) String() string {
	if !s.Valid() {
		return fmt.Sprintf("subsystem(%d)", int16(s))
	}
	return subsystemNames[s]
}

// SubsystemFromID is the inverse of ID.
func SubsystemFromID(id int16) (Subsystem, bool) {
	s := Subsystem(id)
	return s, s.Valid()
}

// SubsystemFromName looks a subsystem up by name (case-insensitive).
func SubsystemFromName(name string) (Subsystem, bool) {
	s, ok := subsystemsByName[strings.ToLower(strings.TrimSpace(name))]
	return s, ok
}

// SubsystemCount returns the number of subsystems.
func SubsystemCount() int { return int(subsystemEnd) - 1 }

// AllSubsystems returns every subsystem in identifier order.
func AllSubsystems() []Subsystem {
	out := make([]Subsystem, 0, SubsystemCount())
	for s := Subsystem(1); s < subsystemEnd; s++ {
		out = append(out, s)
	}
	return out
}

// SubsystemNames returns the vocabulary in identifier order.
func SubsystemNames() []string {
	out := make([]string, 0, SubsystemCount())
	for _, s := range AllSubsystems() {
		out = append(out, s.String())
	}
	return out
}

// SubsystemOf returns the subsystem of an entry, if any.
func SubsystemOf(e *parser.ParsedEntry) (Subsystem, bool) {
	if e.SubsystemID == 0 {
		return 0, false
	}
	return SubsystemFromID(e.SubsystemID)
}

// SubsystemMatcher assigns one subsystem.
type SubsystemMatcher interface {
	Matcher
	Subsystem() Subsystem
}

type subsystemRule struct {
	Matcher
	subsystem Subsystem
}

func (r subsystemRule) Subsystem() Subsystem { return r.subsystem }

func subsystem(s Subsystem, m Matcher) SubsystemMatcher {
	return subsystemRule{Matcher: m, subsystem: s}
}

// subsystemMatchers is tried top to bottom and the first match wins.
// Narrow components come before the broad ones that would otherwise shadow
// them: quorum queues and streams mention Ra, shovels and federation are
// plugins, maintenance mode logs about shutting listeners down.
var subsystemMatchers = []SubsystemMatcher{
	subsystem(SubsystemFeatureFlags, contains("feature flag", "feature_flag", "rabbit_ff_")),
	subsystem(SubsystemMaintenanceMode, contains("maintenance mode", "rabbit_maintenance", "draining node")),
	subsystem(SubsystemMetadataStore, contains("khepri", "mnesia", "metadata store", "rabbit_db_")),
	subsystem(SubsystemQuorumQueues, contains("quorum queue", "quorum_queue", "rabbit_fifo")),
	subsystem(SubsystemStreams, or(contains("osiris", "stream coordinator", "rabbit_stream"), re(`\bstream (queue|replica|member|reader|writer)`))),
	subsystem(SubsystemRaft, or(contains("ra_server", "ra_log", "ra_system", "ra system", "raft"), re(`\bra: `))),
	subsystem(SubsystemShovel, contains("shovel")),
	subsystem(SubsystemFederation, contains("federation", "federated")),
	subsystem(SubsystemMQTT, contains("mqtt")),
	subsystem(SubsystemSTOMP, contains("stomp")),
	subsystem(SubsystemPrometheus, contains("prometheus")),
	subsystem(SubsystemManagement, contains("rabbitmq_management", "management plugin", "management api", "rabbit_mgmt")),
	subsystem(SubsystemPeerDiscovery, contains("peer discovery", "peer_discovery", "discovery backend")),
	subsystem(SubsystemResourceAlarms, or(
		contains("vm_memory_high_watermark", "disk_free_limit", "free disk space", "resource limit alarm"),
		containsAll("alarm", "memory"),
		containsAll("alarm", "disk"),
	)),
	subsystem(SubsystemClustering, contains("rabbit_node_monitor", "partial partition", "network partition", "cluster", "node down", "nodedown")),
	subsystem(SubsystemAccessControl, contains("access refused", "access_refused", "authenticat", "authoriz", "permission", "login refused")),
	subsystem(SubsystemVirtualHosts, contains("virtual host", "vhost")),
	subsystem(SubsystemPolicies, contains("policy", "policies")),
	subsystem(SubsystemClassicQueues, contains("classic queue", "rabbit_classic_queue", "rabbit_amqqueue", "msg_store", "message store", "queue index")),
	subsystem(SubsystemConnections, contains("connection", "accepting amqp", "closing amqp", "heartbeat")),
	subsystem(SubsystemLogging, contains("logging:", "log handler", "log file", "log level")),
	subsystem(SubsystemPlugins, contains("plugin")),
	subsystem(SubsystemShutdown, contains("stopping rabbitmq", "shutting down", "shutdown", "halting erlang", "rabbit on node", "stopping application")),
	subsystem(SubsystemBoot, contains("starting rabbitmq", "boot", "startup complete", "ready to start client connection listeners", "server startup")),
	subsystem(SubsystemErlangOTP, or(contains("crash report", "supervisor report", "error_logger", "crasher:", "** generic server"), re(`\bgen_(server|statem|event)\b`))),
}

// SubsystemMatchers returns the ordered subsystem matchers.
func SubsystemMatchers() []SubsystemMatcher {
	return append([]SubsystemMatcher(nil), subsystemMatchers...)
}
