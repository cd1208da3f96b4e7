package analysis

import (
	"strings"
	"sync"

	"github.com/grafana/regexp"
)

// builderPool reuses strings.Builder instances to reduce allocations during normalization.
var builderPool = sync.Pool{
	New: func() interface{} {
		return &strings.Builder{}
	},
}

var (
	pidRegex  = regexp.MustCompile(`<\d+\.\d+\.\d+>`)
	refRegex  = regexp.MustCompile(`#Ref<[\d.]+>`)
	addrRegex = regexp.MustCompile(`\b\d{1,3}(\.\d{1,3}){3}(:\d+)?\b`)
	hexRegex  = regexp.MustCompile(`\b[0-9a-f]{8,}\b`)
)

// maxSignature bounds the normalized message length.
const maxSignature = 160

// NormalizeMessage reduces a message to a signature shared by entries that
// differ only in their variable parts. Only the first line is kept. Erlang
// pids and refs, addresses, long hex ids, quoted strings and numbers are
// replaced with placeholders, and whitespace runs collapse to one space.
//
//	"closing AMQP connection <0.1234.0> (10.0.0.7:50142 -> 10.0.0.2:5672, vhost: '/')"
//	"closing AMQP connection <PID> (ADDR -> ADDR, vhost: ?)"
func NormalizeMessage(msg string) string {
	if i := strings.IndexByte(msg, '\n'); i >= 0 {
		msg = msg[:i]
	}
	msg = pidRegex.ReplaceAllLiteralString(msg, "<PID>")
	msg = refRegex.ReplaceAllLiteralString(msg, "#Ref<?>")
	msg = addrRegex.ReplaceAllLiteralString(msg, "ADDR")
	msg = hexRegex.ReplaceAllLiteralString(msg, "?")

	buf := builderPool.Get().(*strings.Builder)
	buf.Reset()
	buf.Grow(len(msg))
	defer builderPool.Put(buf)

	lastWasSpace := true
	inWord := false
	for i := 0; i < len(msg); i++ {
		c := msg[i]

		// Quoted strings, single or double, become ?
		if c == '\'' || c == '"' {
			buf.WriteByte('?')
			for i+1 < len(msg) {
				i++
				if msg[i] == c {
					break
				}
			}
			lastWasSpace, inWord = false, false
			continue
		}

		if c == ' ' || c == '\t' || c == '\r' {
			if !lastWasSpace {
				buf.WriteByte(' ')
			}
			lastWasSpace, inWord = true, false
			continue
		}

		// Digit runs not glued to a word become ?
		if c >= '0' && c <= '9' && !inWord {
			for i+1 < len(msg) && (isDigit(msg[i+1]) || msg[i+1] == '.' && i+2 < len(msg) && isDigit(msg[i+2])) {
				i++
			}
			buf.WriteByte('?')
			lastWasSpace = false
			continue
		}

		buf.WriteByte(c)
		lastWasSpace = false
		inWord = isWordByte(c)
	}

	out := strings.TrimRight(buf.String(), " ")
	if len(out) > maxSignature {
		out = strings.ToValidUTF8(out[:maxSignature], "")
	}
	return out
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isWordByte(c byte) bool {
	return c == '_' || c == '@' || isDigit(c) || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}
