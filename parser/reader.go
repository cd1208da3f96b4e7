package parser

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
)

const (
	// readerBuffer is the initial buffer size for reading log lines (4 MB)
	readerBuffer = 4 * 1024 * 1024

	// DefaultChunkSize is the number of entries per chunk when streaming.
	DefaultChunkSize = 4096
)

// maxLineSize caps a single physical line (100 MB). Longer lines are
// skipped and counted in Stats.Oversized.
var maxLineSize = 100 * 1024 * 1024

// lineReader yields physical lines, dropping any that exceed maxLineSize
// without abandoning the rest of the stream.
type lineReader struct {
	r    *bufio.Reader
	p    *Parser
	line []byte
	err  error
}

func newLineReader(r io.Reader, p *Parser) *lineReader {
	size := readerBuffer
	if maxLineSize < size {
		size = maxLineSize
	}
	return &lineReader{r: bufio.NewReaderSize(r, size), p: p}
}

// Next advances to the next line that fits within the cap.
func (lr *lineReader) Next() bool {
	for lr.err == nil {
		lr.line = lr.line[:0]
		oversized := false
		for {
			frag, isPrefix, err := lr.r.ReadLine()
			if err != nil {
				lr.err = err
				if len(lr.line) > 0 && !oversized {
					return true
				}
				return false
			}
			if !oversized {
				if len(lr.line)+len(frag) > maxLineSize {
					oversized = true
					lr.line = lr.line[:0]
				} else {
					lr.line = append(lr.line, frag...)
				}
			}
			if !isPrefix {
				break
			}
		}
		if !oversized {
			return true
		}
		lr.p.stats.Lines++
		lr.p.stats.Oversized++
		lr.p.log.Warnf("[WARN] Skipping line %d: longer than %d bytes", lr.p.stats.Lines, maxLineSize)
	}
	return false
}

// Text returns the current line.
func (lr *lineReader) Text() string { return string(lr.line) }

// Err returns the first read error other than io.EOF.
func (lr *lineReader) Err() error {
	if lr.err == io.EOF {
		return nil
	}
	return lr.err
}

// ParseReader reads every line from r and returns the parsed entries in order.
func ParseReader(r io.Reader, opts ...Option) ([]ParsedEntry, error) {
	p := NewParser(opts...)
	lines := newLineReader(r, p)

	var entries []ParsedEntry
	for lines.Next() {
		if e := p.FeedLine(lines.Text()); e != nil {
			entries = append(entries, *e)
		}
	}
	if e := p.Flush(); e != nil {
		entries = append(entries, *e)
	}
	if err := lines.Err(); err != nil {
		return entries, fmt.Errorf("reading log stream: %w", err)
	}
	return entries, nil
}

// ParseString is a convenience wrapper around ParseReader.
func ParseString(content string, opts ...Option) ([]ParsedEntry, error) {
	return ParseReader(strings.NewReader(content), opts...)
}

// ParseFile opens filename (decompressing it if needed) and parses it.
func ParseFile(filename string, opts ...Option) ([]ParsedEntry, error) {
	rc, err := OpenLogFile(filename)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	entries, err := ParseReader(rc, opts...)
	if err != nil {
		return entries, fmt.Errorf("failed to parse %s: %w", filename, err)
	}
	return entries, nil
}

// StreamChunks parses r and sends entries to out in chunks of at most chunkSize.
// Chunks are sent in stream order. The output channel is NOT closed; the caller
// owns its lifecycle. It returns the parser statistics once the stream is exhausted.
func StreamChunks(ctx context.Context, r io.Reader, chunkSize int, out chan<- []ParsedEntry, opts ...Option) (Stats, error) {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	p := NewParser(opts...)
	lines := newLineReader(r, p)

	chunk := make([]ParsedEntry, 0, chunkSize)
	send := func() error {
		if len(chunk) == 0 {
			return nil
		}
		select {
		case out <- chunk:
		case <-ctx.Done():
			return ctx.Err()
		}
		chunk = make([]ParsedEntry, 0, chunkSize)
		return nil
	}

	for lines.Next() {
		e := p.FeedLine(lines.Text())
		if e == nil {
			continue
		}
		chunk = append(chunk, *e)
		if len(chunk) >= chunkSize {
			if err := send(); err != nil {
				return p.Stats(), err
			}
		}
	}
	if e := p.Flush(); e != nil {
		chunk = append(chunk, *e)
	}
	if err := send(); err != nil {
		return p.Stats(), err
	}
	if err := lines.Err(); err != nil {
		return p.Stats(), fmt.Errorf("reading log stream: %w", err)
	}
	return p.Stats(), nil
}
