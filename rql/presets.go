package rql

import (
	"fmt"
	"strings"
)

// Preset is a named, pre-written filter expression.
type Preset int

const (
	PresetErrors Preset = iota
	PresetCrashes
	PresetErrorsOrCrashes
	PresetWarnings
	PresetNotable
	PresetTimeouts
	PresetRaft
	PresetQuorumQueues
	PresetStreams
	PresetConnections
	PresetAccessDenied
	PresetTLS
	PresetNetsplits
	PresetShutdowns
	PresetAlarms
	PresetUnlabelled
	PresetDocumented
	PresetKnownIssues

	presetCount
)

type presetDef struct {
	name        string
	description string
	query       string
}

var presetDefs = [presetCount]presetDef{
	PresetErrors: {
		"errors", "Entries logged at error severity",
		`severity == "error"`,
	},
	PresetCrashes: {
		"crashes", "Erlang process crashes and crash reports",
		`#erl_process_crash`,
	},
	PresetErrorsOrCrashes: {
		"errors_or_crashes", "Errors, plus crashes logged at any severity",
		`severity == "error" or #erl_process_crash`,
	},
	PresetWarnings: {
		"warnings", "Entries logged at warning severity",
		`severity == "warning"`,
	},
	PresetNotable: {
		"notable", "Warnings and above, excluding routine connection churn",
		`severity >= "warning" and not labels all ["connections", "disconnects"]`,
	},
	PresetTimeouts: {
		"timeouts", "Anything mentioning a timeout",
		`#timeouts`,
	},
	PresetRaft: {
		"raft", "Raft consensus and leader elections",
		`labels any ["raft", "elections"]`,
	},
	PresetQuorumQueues: {
		"quorum_queues", "Quorum queue activity",
		`subsystem == "quorum_queues" or #quorum_queues`,
	},
	PresetStreams: {
		"streams", "Stream and stream coordinator activity",
		`subsystem == "streams" or #streams`,
	},
	PresetConnections: {
		"connections", "Client connections, disconnects and heartbeats",
		`labels any ["connections", "disconnects", "heartbeats"]`,
	},
	PresetAccessDenied: {
		"access_denied", "Authentication and authorisation failures",
		`#access_control and severity >= "warning"`,
	},
	PresetTLS: {
		"tls", "TLS handshakes and certificates",
		`#tls`,
	},
	PresetNetsplits: {
		"netsplits", "Network partitions and node-down events",
		`labels any ["netsplits"] or subsystem == "clustering" and severity >= "warning"`,
	},
	PresetShutdowns: {
		"shutdowns", "Node shutdowns and application stops",
		`labels any ["shutdown", "start_stop"] or subsystem == "shutdown"`,
	},
	PresetAlarms: {
		"alarms", "Memory and disk resource alarms",
		`#resource_alarms or subsystem == "resource_alarms"`,
	},
	PresetUnlabelled: {
		"unlabelled", "Entries no label matcher recognised",
		`unlabelled`,
	},
	PresetDocumented: {
		"documented", "Entries with a documentation link",
		`has_doc_url`,
	},
	PresetKnownIssues: {
		"known_issues", "Entries matching a known issue or discussion",
		`has_resolution_url`,
	},
}

var presetExprs [presetCount]FilterExpr

func init() {
	for p := Preset(0); p < presetCount; p++ {
		q, err := Parse(presetDefs[p].query)
		if err != nil {
			panic(fmt.Sprintf("rql: preset %s does not parse: %v", presetDefs[p].name, err))
		}
		if q.Filter == nil || q.Range != 0 || q.Selector != nil || len(q.Pipeline) > 0 {
			panic(fmt.Sprintf("rql: preset %s must be a bare filter expression", presetDefs[p].name))
		}
		presetExprs[p] = q.Filter
	}
}

// Name returns the name used after ':'.
func (p Preset) Name() string {
	if p < 0 || p >= presetCount {
		return fmt.Sprintf("preset(%d)", int(p))
	}
	return presetDefs[p].name
}

func (p Preset) String() string { return p.Name() }

// Description is a one-line summary for help output.
func (p Preset) Description() string { return presetDefs[p].description }

// QueryString returns the RQL source of the preset.
func (p Preset) QueryString() string { return presetDefs[p].query }

// ToFilterExpr returns the parsed expression. The tree is shared; callers must
// not modify it.
func (p Preset) ToFilterExpr() FilterExpr { return presetExprs[p] }

// PresetFromName looks a preset up by name, with or without the leading ':'.
func PresetFromName(name string) (Preset, bool) {
	name = strings.ToLower(strings.TrimPrefix(name, ":"))
	for i, def := range presetDefs {
		if def.name == name {
			return Preset(i), true
		}
	}
	return 0, false
}

// PresetNames returns the preset vocabulary.
func PresetNames() []string {
	out := make([]string, presetCount)
	for i, def := range presetDefs {
		out[i] = def.name
	}
	return out
}

// AllPresets returns every preset.
func AllPresets() []Preset {
	out := make([]Preset, presetCount)
	for i := range out {
		out[i] = Preset(i)
	}
	return out
}
