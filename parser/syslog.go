package parser

import "strings"

// StripSyslogPrefix removes the header a syslog daemon adds in front of each
// forwarded line and returns the original text. Three layouts are
// recognised:
//
//	Oct 27 11:23:27 host rabbitmq-server[1234]: <original line>
//	2025-10-27T11:23:27.123456+00:00 host rabbitmq-server[1234]: <original line>
//	<30>1 2025-10-27T11:23:27.123456Z host rabbitmq 1234 - - <original line>
//
// The second result is false, and line is returned unchanged, when the line
// has no syslog header.
func StripSyslogPrefix(line string) (string, bool) {
	if rest, ok := stripRFC5424(line); ok {
		return rest, true
	}
	if end, ok := bsdTimestampEnd(line); ok {
		return stripHostAndTag(line, end)
	}
	if end, ok := isoTimestampEnd(line); ok {
		return stripHostAndTag(line, end)
	}
	return line, false
}

// bsdTimestampEnd matches "Mmm _d hh:mm:ss" with optional fractional seconds.
func bsdTimestampEnd(line string) (int, bool) {
	n := len(line)
	if n < 16 || line[3] != ' ' || line[6] != ' ' || line[9] != ':' || line[12] != ':' {
		return 0, false
	}
	if !isMonthAbbrev(line[:3]) {
		return 0, false
	}
	end := 15
	if end < n && line[end] == '.' {
		end++
		for end < n && isDigitByte(line[end]) {
			end++
		}
	}
	return end, true
}

var monthAbbrevs = []string{"jan", "feb", "mar", "apr", "may", "jun", "jul", "aug", "sep", "oct", "nov", "dec"}

func isMonthAbbrev(s string) bool {
	lower := strings.ToLower(s)
	for _, m := range monthAbbrevs {
		if lower == m {
			return true
		}
	}
	return false
}

// isoTimestampEnd matches "YYYY-MM-DDThh:mm:ss[.fff](Z|±hh:mm)".
func isoTimestampEnd(line string) (int, bool) {
	n := len(line)
	if n < 20 || line[4] != '-' || line[7] != '-' || line[10] != 'T' || line[13] != ':' || line[16] != ':' {
		return 0, false
	}
	end := 19
	if end < n && line[end] == '.' {
		end++
		for end < n && isDigitByte(line[end]) {
			end++
		}
	}
	switch {
	case end < n && line[end] == 'Z':
		end++
	case end+6 <= n && (line[end] == '+' || line[end] == '-') && line[end+3] == ':':
		end += 6
	default:
		return 0, false
	}
	return end, true
}

// stripHostAndTag skips " host tag: " after the timestamp ending at i. The tag
// is whatever precedes the first ": ", usually "program[pid]".
func stripHostAndTag(line string, i int) (string, bool) {
	rest := line[i:]
	if !strings.HasPrefix(rest, " ") {
		return line, false
	}
	rest = rest[1:]
	sp := strings.IndexByte(rest, ' ')
	if sp <= 0 {
		return line, false
	}
	rest = rest[sp+1:]

	colon := strings.Index(rest, ": ")
	if colon <= 0 || strings.ContainsAny(rest[:colon], " \t") {
		if strings.HasSuffix(rest, ":") && !strings.ContainsAny(rest, " \t") {
			return "", true
		}
		return line, false
	}
	return rest[colon+2:], true
}

// stripRFC5424 skips "<PRI>VERSION TIMESTAMP HOST APP PROCID MSGID SD ".
func stripRFC5424(line string) (string, bool) {
	if len(line) < 4 || line[0] != '<' {
		return line, false
	}
	gt := strings.IndexByte(line, '>')
	if gt < 2 || gt > 4 {
		return line, false
	}
	rest := line[gt+1:]
	if len(rest) < 2 || !isDigitByte(rest[0]) || rest[1] != ' ' {
		return line, false
	}
	rest = rest[2:]

	// TIMESTAMP HOST APP PROCID MSGID
	for range 5 {
		sp := strings.IndexByte(rest, ' ')
		if sp <= 0 {
			return line, false
		}
		rest = rest[sp+1:]
	}

	// STRUCTURED-DATA is "-" or one or more [..] elements.
	switch {
	case strings.HasPrefix(rest, "- "):
		rest = rest[2:]
	case rest == "-":
		rest = ""
	case strings.HasPrefix(rest, "["):
		end := strings.Index(rest, "] ")
		for end >= 0 && end+2 < len(rest) && rest[end+2] == '[' {
			next := strings.Index(rest[end+2:], "] ")
			if next < 0 {
				break
			}
			end += 2 + next
		}
		if end < 0 {
			return line, false
		}
		rest = rest[end+2:]
	default:
		return line, false
	}
	return strings.TrimPrefix(rest, "\ufeff"), true
}

func isDigitByte(c byte) bool { return c >= '0' && c <= '9' }
