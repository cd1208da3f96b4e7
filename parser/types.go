// Package parser turns raw RabbitMQ server log lines into structured entries.
package parser

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrUnknownSeverity is returned when a severity token is not one of the six known levels.
var ErrUnknownSeverity = errors.New("unknown severity")

// Severity is the log level of an entry. Values are ordered from least to most severe.
type Severity int8

const (
	SeverityDebug Severity = iota
	SeverityInfo
	SeverityNotice
	SeverityWarning
	SeverityError
	SeverityCritical
)

var severityNames = [...]string{
	SeverityDebug:    "debug",
	SeverityInfo:     "info",
	SeverityNotice:   "notice",
	SeverityWarning:  "warning",
	SeverityError:    "error",
	SeverityCritical: "critical",
}

// String returns the lower-case token used in log lines.
func (s Severity) String() string {
	if s < SeverityDebug || s > SeverityCritical {
		return fmt.Sprintf("severity(%d)", int8(s))
	}
	return severityNames[s]
}

// Valid reports whether s is one of the six known levels.
func (s Severity) Valid() bool {
	return s >= SeverityDebug && s <= SeverityCritical
}

// ParseSeverity converts a severity token into a Severity. Matching is case-insensitive.
func ParseSeverity(s string) (Severity, error) {
	lower := strings.ToLower(strings.TrimSpace(s))
	for i, name := range severityNames {
		if name == lower {
			return Severity(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownSeverity, s)
}

// AllSeverities returns every severity, least severe first.
func AllSeverities() []Severity {
	out := make([]Severity, len(severityNames))
	for i := range severityNames {
		out[i] = Severity(i)
	}
	return out
}

// SeverityNames returns the severity vocabulary in ascending order.
func SeverityNames() []string {
	return append([]string(nil), severityNames[:]...)
}

// ParsedEntry is one logical log event, possibly spanning several physical lines.
//
// The parser fills the timestamp, severity, process id and message. Classification
// fields (SubsystemID, Labels, DocURLID, ResolutionURLID) are zero until the
// annotation engine runs. A zero SubsystemID, DocURLID or ResolutionURLID means
// "absent"; real identifiers start at 1.
type ParsedEntry struct {
	// SequenceID is unique and strictly increasing within one parse pass.
	SequenceID int64

	// ExplicitID overrides SequenceID as the stored row id when set.
	ExplicitID *int64

	// Timestamp is always in UTC.
	Timestamp time.Time

	Severity Severity

	// ProcessID is the Erlang pid, e.g. "<0.208.0>". Empty for legacy reports.
	ProcessID string

	// Message may contain embedded newlines for multi-line entries.
	Message string

	// MessageLowercased shadows Message for case-insensitive matching.
	MessageLowercased string

	SubsystemID     int16
	Labels          uint64
	DocURLID        int16
	ResolutionURLID int16
}

// ID returns the identifier to persist the entry under.
func (e *ParsedEntry) ID() int64 {
	if e.ExplicitID != nil {
		return *e.ExplicitID
	}
	return e.SequenceID
}

// IsMultiline reports whether the message spans more than one line.
func (e *ParsedEntry) IsMultiline() bool {
	return strings.IndexByte(e.Message, '\n') >= 0
}

// appendLine extends the message and its lower-cased shadow with one more line.
func (e *ParsedEntry) appendLine(text string) {
	e.Message += "\n" + text
	e.MessageLowercased += "\n" + strings.ToLower(text)
}

// Renumber reassigns sequence ids start, start+1, ... in slice order.
func Renumber(entries []ParsedEntry, start int64) {
	for i := range entries {
		entries[i].SequenceID = start + int64(i)
	}
}
