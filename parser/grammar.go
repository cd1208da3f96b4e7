package parser

import (
	"strings"
	"time"
)

// Header holds the fields recognised at the start of a log line.
type Header struct {
	Timestamp time.Time
	Severity  Severity
	ProcessID string

	// Message is the text after the pid, right-trimmed. For legacy reports it is "<LEVEL> REPORT".
	Message string

	// Report is true for the legacy "=LEVEL REPORT====" header.
	Report bool
}

// sameOrigin reports whether two headers describe the same logical event.
func (h Header) sameOrigin(e *ParsedEntry) bool {
	return h.Timestamp.Equal(e.Timestamp) && h.Severity == e.Severity && h.ProcessID == e.ProcessID
}

// reportLevels maps legacy report levels to severities.
var reportLevels = map[string]Severity{
	"INFO":       SeverityInfo,
	"PROGRESS":   SeverityInfo,
	"WARNING":    SeverityWarning,
	"ERROR":      SeverityError,
	"CRASH":      SeverityError,
	"SUPERVISOR": SeverityError,
}

var monthAbbrev = map[string]time.Month{
	"Jan": time.January, "Feb": time.February, "Mar": time.March, "Apr": time.April,
	"May": time.May, "Jun": time.June, "Jul": time.July, "Aug": time.August,
	"Sep": time.September, "Oct": time.October, "Nov": time.November, "Dec": time.December,
}

// ParseHeader tries the standard shape first and the legacy report shape second.
func ParseHeader(line string) (Header, bool) {
	if h, ok := ParseStandardHeader(line); ok {
		return h, true
	}
	return ParseReportHeader(line)
}

// ParseStandardHeader recognises
//
//	2025-10-27 11:23:27.566558-07:00 [notice] <0.208.0> message...
//
// Positional checks are done before any number is converted, so the common
// continuation-line case is rejected after a few byte comparisons.
func ParseStandardHeader(line string) (Header, bool) {
	n := len(line)
	if n < 25 ||
		line[4] != '-' || line[7] != '-' ||
		line[10] != ' ' ||
		line[13] != ':' || line[16] != ':' {
		return Header{}, false
	}

	year, ok1 := atoiN(line[0:4])
	month, ok2 := atoiN(line[5:7])
	day, ok3 := atoiN(line[8:10])
	hour, ok4 := atoiN(line[11:13])
	minute, ok5 := atoiN(line[14:16])
	second, ok6 := atoiN(line[17:19])
	if !(ok1 && ok2 && ok3 && ok4 && ok5 && ok6) {
		return Header{}, false
	}

	// Optional fraction, 1 to 9 digits.
	i := 19
	nsec := 0
	if line[i] == '.' {
		i++
		start := i
		for i < n && isDigit(line[i]) {
			i++
		}
		digits := i - start
		if digits == 0 || digits > 9 {
			return Header{}, false
		}
		frac, _ := atoiN(line[start:i])
		for k := digits; k < 9; k++ {
			frac *= 10
		}
		nsec = frac
	}

	// Offset: ±HH:MM
	if i+6 > n || (line[i] != '+' && line[i] != '-') || line[i+3] != ':' {
		return Header{}, false
	}
	offH, okH := atoiN(line[i+1 : i+3])
	offM, okM := atoiN(line[i+4 : i+6])
	if !okH || !okM || offH > 23 || offM > 59 {
		return Header{}, false
	}
	offset := time.Duration(offH)*time.Hour + time.Duration(offM)*time.Minute
	if line[i] == '-' {
		offset = -offset
	}
	i += 6

	ts, ok := civilTime(year, month, day, hour, minute, second, nsec)
	if !ok {
		return Header{}, false
	}
	ts = ts.Add(-offset)

	// " [severity]"
	if i+2 >= n || line[i] != ' ' || line[i+1] != '[' {
		return Header{}, false
	}
	i += 2
	end := strings.IndexByte(line[i:], ']')
	if end <= 0 {
		return Header{}, false
	}
	sev, ok := severityFromToken(line[i : i+end])
	if !ok {
		return Header{}, false
	}
	i += end + 1

	// " <a.b.c>"
	if i+2 >= n || line[i] != ' ' || line[i+1] != '<' {
		return Header{}, false
	}
	pidStart := i + 1
	end = strings.IndexByte(line[pidStart:], '>')
	if end < 0 {
		return Header{}, false
	}
	pid := line[pidStart : pidStart+end+1]
	if !validPid(pid) {
		return Header{}, false
	}
	i = pidStart + end + 1

	message := ""
	if i < n {
		if line[i] != ' ' {
			return Header{}, false
		}
		message = strings.TrimRight(line[i+1:], " \t\r")
	}

	return Header{
		Timestamp: ts,
		Severity:  sev,
		ProcessID: pid,
		Message:   message,
	}, true
}

// ParseReportHeader recognises the legacy multi-line report header
//
//	=CRASH REPORT==== 27-Oct-2025::11:23:27.566558 ===
func ParseReportHeader(line string) (Header, bool) {
	line = strings.TrimRight(line, " \t\r")
	if len(line) < 30 || line[0] != '=' || !strings.HasSuffix(line, " ===") {
		return Header{}, false
	}
	idx := strings.Index(line, " REPORT==== ")
	if idx < 2 {
		return Header{}, false
	}
	level := line[1:idx]
	sev, ok := reportLevels[level]
	if !ok {
		return Header{}, false
	}

	stamp := line[idx+len(" REPORT==== ") : len(line)-len(" ===")]
	ts, ok := parseReportTimestamp(stamp)
	if !ok {
		return Header{}, false
	}

	return Header{
		Timestamp: ts,
		Severity:  sev,
		Message:   level + " REPORT",
		Report:    true,
	}, true
}

// parseReportTimestamp parses "D-Mon-YYYY::HH:MM:SS[.ffffff]" as UTC.
func parseReportTimestamp(s string) (time.Time, bool) {
	date, clock, found := strings.Cut(s, "::")
	if !found {
		return time.Time{}, false
	}
	parts := strings.Split(date, "-")
	if len(parts) != 3 || len(parts[0]) == 0 || len(parts[0]) > 2 || len(parts[2]) != 4 {
		return time.Time{}, false
	}
	day, ok1 := atoiN(parts[0])
	month, ok2 := monthAbbrev[parts[1]]
	year, ok3 := atoiN(parts[2])
	if !(ok1 && ok2 && ok3) {
		return time.Time{}, false
	}

	hms, frac, hasFrac := strings.Cut(clock, ".")
	if len(hms) != 8 || hms[2] != ':' || hms[5] != ':' {
		return time.Time{}, false
	}
	hour, ok4 := atoiN(hms[0:2])
	minute, ok5 := atoiN(hms[3:5])
	second, ok6 := atoiN(hms[6:8])
	if !(ok4 && ok5 && ok6) {
		return time.Time{}, false
	}
	nsec := 0
	if hasFrac {
		if len(frac) == 0 || len(frac) > 9 {
			return time.Time{}, false
		}
		v, ok := atoiN(frac)
		if !ok {
			return time.Time{}, false
		}
		for k := len(frac); k < 9; k++ {
			v *= 10
		}
		nsec = v
	}
	return civilTime(year, int(month), day, hour, minute, second, nsec)
}

// civilTime builds a UTC time, rejecting dates that time.Date would normalise.
func civilTime(year, month, day, hour, minute, second, nsec int) (time.Time, bool) {
	if month < 1 || month > 12 || day < 1 || day > 31 ||
		hour > 23 || minute > 59 || second > 59 {
		return time.Time{}, false
	}
	t := time.Date(year, time.Month(month), day, hour, minute, second, nsec, time.UTC)
	if t.Day() != day || int(t.Month()) != month {
		return time.Time{}, false
	}
	return t, true
}

func severityFromToken(tok string) (Severity, bool) {
	for i, name := range severityNames {
		if name == tok {
			return Severity(i), true
		}
	}
	return 0, false
}

// validPid checks the "<int.int.int>" shape.
func validPid(pid string) bool {
	if len(pid) < 7 || pid[0] != '<' || pid[len(pid)-1] != '>' {
		return false
	}
	groups := 0
	digits := 0
	for i := 1; i < len(pid)-1; i++ {
		c := pid[i]
		switch {
		case isDigit(c):
			digits++
		case c == '.':
			if digits == 0 {
				return false
			}
			groups++
			digits = 0
		default:
			return false
		}
	}
	return digits > 0 && groups == 2
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

// atoiN parses a short unsigned decimal without allocating.
func atoiN(s string) (int, bool) {
	if len(s) == 0 {
		return 0, false
	}
	v := 0
	for i := 0; i < len(s); i++ {
		if !isDigit(s[i]) {
			return 0, false
		}
		v = v*10 + int(s[i]-'0')
	}
	return v, true
}

// StripANSI removes terminal escape sequences (CSI and OSC) from a line.
func StripANSI(line string) string {
	if strings.IndexByte(line, 0x1b) < 0 {
		return line
	}
	var b strings.Builder
	b.Grow(len(line))
	for i := 0; i < len(line); i++ {
		c := line[i]
		if c != 0x1b {
			b.WriteByte(c)
			continue
		}
		if i+1 >= len(line) {
			break
		}
		switch line[i+1] {
		case '[':
			// CSI: parameters and intermediates, then one final byte in 0x40..0x7e
			j := i + 2
			for j < len(line) && (line[j] < 0x40 || line[j] > 0x7e) {
				j++
			}
			i = j
		case ']':
			// OSC: terminated by BEL or ESC \
			j := i + 2
			for j < len(line) {
				if line[j] == 0x07 {
					break
				}
				if line[j] == 0x1b && j+1 < len(line) && line[j+1] == '\\' {
					j++
					break
				}
				j++
			}
			i = j
		default:
			i++
		}
	}
	return b.String()
}
