package analysis

import "github.com/Alain-L/rabbitlog/parser"

// LabelMatcher sets one label bit.
type LabelMatcher interface {
	Matcher
	Label() Label
}

type labelRule struct {
	Matcher
	label Label
}

func (r labelRule) Label() Label { return r.label }

func label(l Label, m Matcher) LabelMatcher {
	return labelRule{Matcher: m, label: l}
}

// labelMatchers are independent of each other; every match contributes a bit.
var labelMatchers = []LabelMatcher{
	label(LabelErlProcessCrash, or(
		contains("crash report", "crasher:", "** generic server", "** reason for termination", "exception exit:"),
		re(`\bterminat(ed|ing) with reason\b`),
	)),
	label(LabelUndefinedFn, or(contains("undefined function"), re(`\{undef,|\bundef\b`))),
	label(LabelProcessStops, re(`\b(stopped|stopping|terminated|terminating|exited)\b`)),
	label(LabelRaft, or(contains("ra_server", "ra_log", "ra_system", "ra system", "raft", "leader"), re(`\bra: |\bwal\b`))),
	label(LabelElections, contains("election", "pre_vote", "pre-vote", "request_vote", "new leader", "leader elected", "candidate")),
	label(LabelQueues, contains("queue")),
	label(LabelAutoDelete, contains("auto-delete", "auto_delete", "autodelete")),
	label(LabelExclusive, contains("exclusive")),
	label(LabelExceptions, or(
		contains("exception", "stacktrace", "stack trace", "{badmatch", "function_clause", "case_clause", "{badarg", "badarith"),
		re(`\bbadarg\b`),
	)),
	label(LabelDelete, contains("delete", "deleting", "deletion")),
	label(LabelQueueFederation, or(contains("rabbit_federation_queue"), containsAll("federat", "queue"))),
	label(LabelVirtualHosts, contains("vhost", "virtual host")),
	label(LabelConnections, contains("connection")),
	label(LabelAccessControl, contains("access refused", "access_refused", "permission", "authenticat", "authoriz", "login refused", "password", "credentials")),
	label(LabelShovels, contains("shovel")),
	label(LabelCQStores, contains("msg_store", "message store", "queue index", "rabbit_classic_queue_store", "rabbit_classic_queue_index", "queue storage")),
	label(LabelDisconnects, contains(
		"closing amqp connection", "client unexpectedly closed", "connection_closed_abruptly",
		"closing connection", "lost connection", "disconnect", "connection closed",
	)),
	label(LabelFederation, contains("federation", "federated")),
	label(LabelPolicies, contains("policy", "policies")),
	label(LabelTimeouts, contains("timeout", "timed out", "time out", "timed_out")),
	label(LabelConsumers, contains("consumer")),
	label(LabelTLS, re(`\btls\b|\bssl\b|certificate|handshake`)),
	label(LabelQuorumQueues, contains("quorum queue", "quorum_queue", "rabbit_fifo")),
	label(LabelNetsplits, contains(
		"partial partition", "network partition", "partition detected", "inconsistent_database",
		"nodedown", "node down", "netsplit", "pause_minority", "autoheal",
	)),
	label(LabelDeprecatedFeatures, contains("deprecated")),
	label(LabelMaintenanceMode, contains("maintenance mode", "rabbit_maintenance", "draining")),
	label(LabelKhepri, contains("khepri")),
	label(LabelMnesia, contains("mnesia")),
	label(LabelStreams, or(contains("osiris", "rabbit_stream", "stream coordinator"), re(`\bstreams?\b`))),
	label(LabelLimits, or(
		contains("max_length", "max-length", "x-max-", "channel_max", "frame_max", "connection_max", "limit reached", "exceeded"),
		re(`\blimits?\b`),
	)),
	label(LabelWorkerPool, contains("worker_pool", "worker pool")),
	label(LabelPeerDiscovery, contains("peer discovery", "peer_discovery", "discovery backend")),
	label(LabelPlugins, contains("plugin")),
	label(LabelExchanges, contains("exchange")),
	label(LabelStartStop, or(
		contains("starting rabbitmq", "stopping rabbitmq", "server startup complete", "boot state", "boot step"),
		re(`\b(starting|started|stopping|stopped) (application|rabbitmq|node|listener)`),
	)),
	label(LabelFeatureFlags, contains("feature flag", "feature_flag")),
	label(LabelShutdown, contains("shutdown", "shutting down", "halting erlang", "stopping rabbitmq")),
	label(LabelClustering, contains("cluster")),
	label(LabelMetrics, contains("metrics", "prometheus", "rabbit_mgmt_db", "statistics")),
	label(LabelChannels, contains("channel")),
	label(LabelResourceAlarms, or(
		contains("vm_memory_high_watermark", "disk_free_limit", "free disk space", "resource limit alarm", "memory alarm", "disk alarm"),
		containsAll("alarm", "set"),
		containsAll("alarm", "cleared"),
	)),
	label(LabelMQTT, contains("mqtt")),
	label(LabelSTOMP, contains("stomp")),
	label(LabelAMQP10, contains("amqp 1.0", "amqp1.0", "amqp10", "amqp1_0", "amqp 1_0")),
	label(LabelWebSockets, contains("websocket", "web_mqtt", "web_stomp", "web-mqtt", "web-stomp")),
	label(LabelHTTP, or(contains("cowboy", "http listener", "http api"), re(`\bhttps?\b`))),
	label(LabelSessions, contains("session")),
	label(LabelDefinitions, contains("definitions", "definition file")),
	label(LabelHeartbeats, contains("heartbeat")),
}

// LabelMatchers returns the label matchers.
func LabelMatchers() []LabelMatcher {
	return append([]LabelMatcher(nil), labelMatchers...)
}

// MatchLabels evaluates every label matcher against e.
func MatchLabels(e *parser.ParsedEntry) LabelSet {
	var set LabelSet
	for _, m := range labelMatchers {
		if m.Matches(e) {
			set = set.With(m.Label())
		}
	}
	return set
}
