package parser

import (
	"strings"

	"go.uber.org/zap"

	"github.com/Alain-L/rabbitlog/logging"
)

// Stats counts what the parser has seen so far.
type Stats struct {
	Lines         int
	Entries       int
	Continuations int
	Coalesced     int
	Orphans       int
	SkippedBlank  int
	Oversized     int
}

// Parser reconstructs logical entries from physical lines.
//
// It is a stateful reducer: FeedLine returns the previous entry once a new
// header shows it is complete, and Flush returns whatever is still open.
// A Parser is not safe for concurrent use.
type Parser struct {
	current *ParsedEntry
	nextSeq int64
	stats   Stats
	log     *zap.SugaredLogger
	syslog  bool
}

// Option configures a Parser.
type Option func(*Parser)

// WithStartSequence makes the first emitted entry carry sequence id start.
func WithStartSequence(start int64) Option {
	return func(p *Parser) { p.nextSeq = start }
}

// WithLogger sets the logger used for orphan-line diagnostics.
func WithLogger(l *zap.SugaredLogger) Option {
	return func(p *Parser) { p.log = l }
}

// WithSyslog strips syslog headers from every line before parsing, for logs
// collected through a syslog daemon rather than written by the broker.
func WithSyslog() Option {
	return func(p *Parser) { p.syslog = true }
}

// NewParser creates a Parser.
func NewParser(opts ...Option) *Parser {
	p := &Parser{}
	for _, opt := range opts {
		opt(p)
	}
	if p.log == nil {
		p.log = logging.L()
	}
	return p
}

// FeedLine consumes one physical line. It returns a completed entry when the
// line starts a new logical entry and a previous one was open, nil otherwise.
func (p *Parser) FeedLine(line string) *ParsedEntry {
	p.stats.Lines++
	line = strings.TrimRight(StripANSI(line), "\r\n")
	if p.syslog {
		line, _ = StripSyslogPrefix(line)
	}

	h, ok := ParseHeader(line)
	if !ok {
		p.continueEntry(line)
		return nil
	}

	if p.current != nil && !h.Report && p.current.ProcessID != "" && h.sameOrigin(p.current) {
		// Several bracketed lines for one event: fold them into the open entry.
		p.stats.Coalesced++
		p.current.appendLine(h.Message)
		return nil
	}

	done := p.emit()
	p.current = &ParsedEntry{
		Timestamp:         h.Timestamp,
		Severity:          h.Severity,
		ProcessID:         h.ProcessID,
		Message:           h.Message,
		MessageLowercased: strings.ToLower(h.Message),
	}
	return done
}

// Flush returns the open entry, if any, and resets the parser state.
func (p *Parser) Flush() *ParsedEntry {
	return p.emit()
}

// Stats returns the counters accumulated so far.
func (p *Parser) Stats() Stats {
	return p.stats
}

func (p *Parser) continueEntry(line string) {
	text := strings.TrimRight(line, " \t")
	if strings.TrimSpace(text) == "" {
		p.stats.SkippedBlank++
		return
	}
	if p.current == nil {
		p.stats.Orphans++
		p.log.Debugf("[DEBUG] Discarding orphan continuation line: %q", truncate(text, 120))
		return
	}
	p.stats.Continuations++
	p.current.appendLine(text)
}

func (p *Parser) emit() *ParsedEntry {
	if p.current == nil {
		return nil
	}
	e := p.current
	p.current = nil
	e.SequenceID = p.nextSeq
	p.nextSeq++
	p.stats.Entries++
	return e
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
