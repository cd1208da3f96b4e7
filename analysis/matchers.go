// Package analysis classifies parsed RabbitMQ log entries.
//
// Classification runs four ordered passes over each entry: subsystem (first
// match wins), labels (every matching label is set), documentation URL and
// resolution/discussion URL (first match wins for both). All matching is done
// against the lower-cased shadow of the message.
package analysis

import (
	"strings"

	"github.com/grafana/regexp"

	"github.com/Alain-L/rabbitlog/parser"
)

// Matcher reports whether an entry has some property.
type Matcher interface {
	Matches(e *parser.ParsedEntry) bool
}

// MatcherFunc adapts a function to the Matcher interface.
type MatcherFunc func(e *parser.ParsedEntry) bool

// Matches implements Matcher.
func (f MatcherFunc) Matches(e *parser.ParsedEntry) bool { return f(e) }

// anyOf matches when at least one needle occurs in the lower-cased message.
type anyOf []string

func (m anyOf) Matches(e *parser.ParsedEntry) bool {
	for _, needle := range m {
		if strings.Contains(e.MessageLowercased, needle) {
			return true
		}
	}
	return false
}

// allOf matches when every needle occurs somewhere in the message, in any order
// and possibly on different lines.
type allOf []string

func (m allOf) Matches(e *parser.ParsedEntry) bool {
	for _, needle := range m {
		if !strings.Contains(e.MessageLowercased, needle) {
			return false
		}
	}
	return len(m) > 0
}

// pattern matches a regular expression against the lower-cased message.
type pattern struct {
	re *regexp.Regexp
}

func (m pattern) Matches(e *parser.ParsedEntry) bool {
	return m.re.MatchString(e.MessageLowercased)
}

// conjunction matches when every inner matcher does.
type conjunction []Matcher

func (m conjunction) Matches(e *parser.ParsedEntry) bool {
	for _, inner := range m {
		if !inner.Matches(e) {
			return false
		}
	}
	return len(m) > 0
}

// disjunction matches when any inner matcher does.
type disjunction []Matcher

func (m disjunction) Matches(e *parser.ParsedEntry) bool {
	for _, inner := range m {
		if inner.Matches(e) {
			return true
		}
	}
	return false
}

// exclusion matches what include matches unless exclude also matches.
type exclusion struct {
	include, exclude Matcher
}

func (m exclusion) Matches(e *parser.ParsedEntry) bool {
	return m.include.Matches(e) && !m.exclude.Matches(e)
}

// severityAtLeast gates a matcher on the entry severity.
type severityAtLeast struct {
	min   parser.Severity
	inner Matcher
}

func (m severityAtLeast) Matches(e *parser.ParsedEntry) bool {
	return e.Severity >= m.min && m.inner.Matches(e)
}

func contains(needles ...string) Matcher {
	out := make(anyOf, len(needles))
	for i, n := range needles {
		out[i] = strings.ToLower(n)
	}
	return out
}

func containsAll(needles ...string) Matcher {
	out := make(allOf, len(needles))
	for i, n := range needles {
		out[i] = strings.ToLower(n)
	}
	return out
}

func re(expr string) Matcher {
	return pattern{re: regexp.MustCompile(expr)}
}

func and(ms ...Matcher) Matcher { return conjunction(ms) }

func or(ms ...Matcher) Matcher { return disjunction(ms) }

func without(include, exclude Matcher) Matcher {
	return exclusion{include: include, exclude: exclude}
}

func atLeast(min parser.Severity, m Matcher) Matcher {
	return severityAtLeast{min: min, inner: m}
}
