package analysis

import "github.com/Alain-L/rabbitlog/parser"

// URLMatcher points an entry at one entry of a static URL table.
type URLMatcher interface {
	Matcher
	URLID() int16
}

type urlRule struct {
	Matcher
	id int16
}

func (r urlRule) URLID() int16 { return r.id }

func url(id int16, m Matcher) URLMatcher {
	return urlRule{Matcher: m, id: id}
}

const docsBase = "https://www.rabbitmq.com/docs/"

// Documentation URL identifiers. Zero means "no documentation URL".
const (
	DocQuorumQueues int16 = iota + 1
	DocStreams
	DocFeatureFlags
	DocPartitions
	DocAlarms
	DocMemory
	DocDiskAlarms
	DocTLS
	DocAccessControl
	DocVirtualHosts
	DocParameters
	DocClusterFormation
	DocClustering
	DocShovel
	DocFederation
	DocMQTT
	DocSTOMP
	DocNetworking
	DocHeartbeats
	DocDeprecatedFeatures
	DocMaintenanceMode
	DocMetadataStore
	DocLogging
	DocConsumerAckTimeout
	DocDefinitions
	DocChannels
	DocPlugins

	docEnd
)

var docURLs = [docEnd]string{
	DocQuorumQueues:       docsBase + "quorum-queues",
	DocStreams:            docsBase + "streams",
	DocFeatureFlags:       docsBase + "feature-flags",
	DocPartitions:         docsBase + "partitions",
	DocAlarms:             docsBase + "alarms",
	DocMemory:             docsBase + "memory",
	DocDiskAlarms:         docsBase + "disk-alarms",
	DocTLS:                docsBase + "ssl",
	DocAccessControl:      docsBase + "access-control",
	DocVirtualHosts:       docsBase + "vhosts",
	DocParameters:         docsBase + "parameters",
	DocClusterFormation:   docsBase + "cluster-formation",
	DocClustering:         docsBase + "clustering",
	DocShovel:             docsBase + "shovel",
	DocFederation:         docsBase + "federation",
	DocMQTT:               docsBase + "mqtt",
	DocSTOMP:              docsBase + "stomp",
	DocNetworking:         docsBase + "networking",
	DocHeartbeats:         docsBase + "heartbeats",
	DocDeprecatedFeatures: docsBase + "deprecated-features",
	DocMaintenanceMode:    docsBase + "upgrade#maintenance-mode",
	DocMetadataStore:      docsBase + "metadata-store",
	DocLogging:            docsBase + "logging",
	DocConsumerAckTimeout: docsBase + "consumers#acknowledgement-timeout",
	DocDefinitions:        docsBase + "definitions",
	DocChannels:           docsBase + "channels",
	DocPlugins:            docsBase + "plugins",
}

// docURLMatchers is tried in order; the first match wins.
// Specific topics (acknowledgement timeouts, disk and memory alarms) come
// before the generic ones they would otherwise fall under.
var docURLMatchers = []URLMatcher{
	url(DocConsumerAckTimeout, or(contains("delivery_acknowledgement_timeout", "consumer_timeout"), containsAll("consumer", "ack", "timeout"))),
	url(DocDiskAlarms, or(contains("disk_free_limit", "free disk space"), containsAll("disk", "alarm"))),
	url(DocMemory, contains("vm_memory_high_watermark", "memory high watermark", "memory_high_watermark")),
	url(DocAlarms, contains("resource limit alarm", "alarm set", "alarm cleared", "publishers will be blocked")),
	url(DocDeprecatedFeatures, contains("deprecated feature", "deprecated_feature")),
	url(DocFeatureFlags, contains("feature flag", "feature_flag")),
	url(DocMaintenanceMode, contains("maintenance mode", "rabbit_maintenance")),
	url(DocMetadataStore, contains("khepri", "metadata store")),
	url(DocQuorumQueues, contains("quorum queue", "quorum_queue", "rabbit_fifo")),
	url(DocStreams, contains("osiris", "stream coordinator", "rabbit_stream")),
	url(DocPartitions, contains("partial partition", "network partition", "inconsistent_database", "pause_minority", "autoheal")),
	url(DocClusterFormation, contains("peer discovery", "peer_discovery", "cluster formation", "discovery backend")),
	url(DocTLS, or(contains("certificate", "handshake"), re(`\btls\b|\bssl\b`))),
	url(DocAccessControl, contains("access refused", "access_refused", "login refused", "not_allowed", "user '", "permission")),
	url(DocVirtualHosts, contains("vhost", "virtual host")),
	url(DocParameters, contains("runtime parameter", "policy", "policies")),
	url(DocShovel, contains("shovel")),
	url(DocFederation, contains("federation", "federated")),
	url(DocMQTT, contains("mqtt")),
	url(DocSTOMP, contains("stomp")),
	url(DocHeartbeats, contains("heartbeat", "missed heartbeats")),
	url(DocChannels, contains("channel_max", "channel error", "channel_error", "no_route", "precondition_failed")),
	url(DocNetworking, contains("tcp listener", "econnrefused", "eaddrinuse", "econnreset", "closed tcp connection", "socket")),
	url(DocClustering, contains("rabbit_node_monitor", "erlang cookie", "cluster", "nodedown", "node down")),
	url(DocDefinitions, contains("definitions", "load_definitions")),
	url(DocPlugins, contains("enabled plugins", "plugin")),
	url(DocLogging, contains("log handler", "logging:", "log file")),
}

// Resolution and discussion URL identifiers. Zero means "none".
const (
	ResolutionAckTimeout int16 = iota + 1
	ResolutionMissedHeartbeats
	ResolutionClientClosedConnection
	ResolutionInconsistentDatabase
	ResolutionPartialPartition
	ResolutionErlangCookie
	ResolutionDiskAlarm
	ResolutionMemoryAlarm
	ResolutionDeprecatedFeatures
	ResolutionFeatureFlagsNotEnabled
	ResolutionQuorumQueueNoQuorum
	ResolutionRaWALFull
	ResolutionKhepriTimeout
	ResolutionMnesiaTableTimeout
	ResolutionTLSHandshake
	ResolutionAccessRefused
	ResolutionEnfile
	ResolutionUndefinedFunction

	resolutionEnd
)

const discussionsBase = "https://github.com/rabbitmq/rabbitmq-server/discussions?discussions_q="

var resolutionURLs = [resolutionEnd]string{
	ResolutionAckTimeout:             discussionsBase + "delivery_acknowledgement_timeout",
	ResolutionMissedHeartbeats:       discussionsBase + "missed+heartbeats+from+client",
	ResolutionClientClosedConnection: discussionsBase + "client+unexpectedly+closed+TCP+connection",
	ResolutionInconsistentDatabase:   discussionsBase + "inconsistent_database",
	ResolutionPartialPartition:       discussionsBase + "partial+partition+detected",
	ResolutionErlangCookie:           discussionsBase + "erlang+cookie",
	ResolutionDiskAlarm:              discussionsBase + "disk+alarm",
	ResolutionMemoryAlarm:            discussionsBase + "vm_memory_high_watermark",
	ResolutionDeprecatedFeatures:     discussionsBase + "deprecated+features",
	ResolutionFeatureFlagsNotEnabled: discussionsBase + "feature+flags+not+enabled",
	ResolutionQuorumQueueNoQuorum:    discussionsBase + "quorum+queue+noproc",
	ResolutionRaWALFull:              discussionsBase + "ra+wal",
	ResolutionKhepriTimeout:          discussionsBase + "khepri+timeout",
	ResolutionMnesiaTableTimeout:     discussionsBase + "timeout_waiting_for_tables",
	ResolutionTLSHandshake:           discussionsBase + "TLS+handshake",
	ResolutionAccessRefused:          discussionsBase + "ACCESS_REFUSED",
	ResolutionEnfile:                 discussionsBase + "emfile",
	ResolutionUndefinedFunction:      discussionsBase + "undef",
}

// resolutionURLMatchers is tried in order; the first match wins.
var resolutionURLMatchers = []URLMatcher{
	url(ResolutionAckTimeout, or(contains("delivery_acknowledgement_timeout"), containsAll("consumer", "ack", "timed out"))),
	url(ResolutionMissedHeartbeats, containsAll("missed heartbeats")),
	url(ResolutionClientClosedConnection, containsAll("client unexpectedly closed", "tcp connection")),
	url(ResolutionInconsistentDatabase, contains("inconsistent_database")),
	url(ResolutionPartialPartition, containsAll("partial partition")),
	url(ResolutionErlangCookie, or(containsAll("erlang", "cookie"), contains("connection attempt from disallowed node"))),
	url(ResolutionDiskAlarm, and(containsAll("disk"), contains("alarm set", "resource limit alarm", "disk_free_limit"))),
	url(ResolutionMemoryAlarm, and(contains("vm_memory_high_watermark", "memory alarm"), contains("set", "exceeded"))),
	url(ResolutionDeprecatedFeatures, atLeast(parser.SeverityWarning, without(contains("deprecated feature", "deprecated_feature"), contains("is permitted")))),
	url(ResolutionFeatureFlagsNotEnabled, or(containsAll("feature flag", "not enabled"), containsAll("feature_flag", "not_enabled"))),
	url(ResolutionQuorumQueueNoQuorum, or(containsAll("quorum queue", "noproc"), containsAll("rabbit_fifo", "noproc"), containsAll("quorum queue", "no quorum"))),
	url(ResolutionRaWALFull, or(containsAll("ra_log_wal", "overflow"), containsAll("wal", "full"))),
	url(ResolutionKhepriTimeout, containsAll("khepri", "timeout")),
	url(ResolutionMnesiaTableTimeout, contains("timeout_waiting_for_tables")),
	url(ResolutionTLSHandshake, atLeast(parser.SeverityWarning, containsAll("tls", "handshake"))),
	url(ResolutionAccessRefused, atLeast(parser.SeverityWarning, contains("access_refused", "access refused"))),
	url(ResolutionEnfile, contains("emfile", "enfile", "too many open files")),
	url(ResolutionUndefinedFunction, contains("{undef,", "undefined function")),
}

// DocURL returns the documentation URL for id.
func DocURL(id int16) (string, bool) {
	if id < 1 || id >= docEnd {
		return "", false
	}
	return docURLs[id], true
}

// ResolutionURL returns the resolution or discussion URL for id.
func ResolutionURL(id int16) (string, bool) {
	if id < 1 || id >= resolutionEnd {
		return "", false
	}
	return resolutionURLs[id], true
}

// DocURLMatchers returns the ordered documentation URL matchers.
func DocURLMatchers() []URLMatcher {
	return append([]URLMatcher(nil), docURLMatchers...)
}

// ResolutionURLMatchers returns the ordered resolution URL matchers.
func ResolutionURLMatchers() []URLMatcher {
	return append([]URLMatcher(nil), resolutionURLMatchers...)
}
