// Package ingest moves log text into a store: entries are parsed in chunks,
// annotated in parallel and persisted in their original order.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Alain-L/rabbitlog/logging"
	"github.com/Alain-L/rabbitlog/metrics"
	"github.com/Alain-L/rabbitlog/parser"
)

// Sink receives annotated entries. storage.Store implements it.
type Sink interface {
	InsertBatch(ctx context.Context, node string, entries []parser.ParsedEntry) error
	NextID(ctx context.Context) (int64, error)
}

// Options tunes a run.
type Options struct {
	// Node is stored with every entry. Files derives it from the file name when empty.
	Node string

	// ChunkSize is the number of entries per batch; parser.DefaultChunkSize when zero.
	ChunkSize int

	// Workers is the annotation parallelism; chosen per chunk when zero.
	Workers int

	// Buffer is the number of chunks each stage may run ahead of the next one.
	Buffer int

	// StartID is the sequence id of the first entry.
	StartID int64

	// Syslog strips syslog headers before parsing.
	Syslog bool
}

func (o Options) withDefaults() Options {
	if o.ChunkSize <= 0 {
		o.ChunkSize = parser.DefaultChunkSize
	}
	if o.Buffer <= 0 {
		o.Buffer = 2
	}
	return o
}

func (o Options) parserOptions() []parser.Option {
	opts := []parser.Option{parser.WithStartSequence(o.StartID)}
	if o.Syslog {
		opts = append(opts, parser.WithSyslog())
	}
	return opts
}

// Stats summarises a run.
type Stats struct {
	parser.Stats
	Chunks    int
	Persisted int
	Files     int
	Failed    []string
	Duration  time.Duration
}

func (s *Stats) add(o Stats) {
	s.Lines += o.Lines
	s.Entries += o.Entries
	s.Continuations += o.Continuations
	s.Coalesced += o.Coalesced
	s.Orphans += o.Orphans
	s.SkippedBlank += o.SkippedBlank
	s.Oversized += o.Oversized
	s.Chunks += o.Chunks
	s.Persisted += o.Persisted
}

// Run parses r and stores its entries under opts.Node. Each stage runs in its
// own goroutine and talks to the next over a bounded channel; the first error
// cancels the others.
func Run(ctx context.Context, r io.Reader, sink Sink, opts Options) (Stats, error) {
	opts = opts.withDefaults()
	start := time.Now()

	g, ctx := errgroup.WithContext(ctx)
	parsed := make(chan []parser.ParsedEntry, opts.Buffer)
	annotated := make(chan []parser.ParsedEntry, opts.Buffer)

	var stats Stats

	g.Go(func() error {
		defer close(parsed)
		ps, err := parser.StreamChunks(ctx, r, opts.ChunkSize, parsed, opts.parserOptions()...)
		stats.Stats = ps
		return err
	})

	g.Go(func() error {
		defer close(annotated)
		for chunk := range parsed {
			chunk = AnnotateParallel(chunk, opts.Workers)
			select {
			case annotated <- chunk:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return nil
	})

	g.Go(func() error {
		for chunk := range annotated {
			if err := sink.InsertBatch(ctx, opts.Node, chunk); err != nil {
				return fmt.Errorf("persisting chunk of %d entries: %w", len(chunk), err)
			}
			stats.Chunks++
			stats.Persisted += len(chunk)
		}
		return nil
	})

	err := g.Wait()
	stats.Duration = time.Since(start)

	metrics.LinesRead.Add(float64(stats.Lines))
	metrics.EntriesParsed.Add(float64(stats.Entries))
	metrics.OrphanLines.Add(float64(stats.Orphans))

	return stats, err
}

// Files ingests every path in turn. Sequence ids continue from sink.NextID so
// entries of later files never collide with earlier ones. A file that fails is
// logged and skipped; only cancellation stops the run.
func Files(ctx context.Context, paths []string, sink Sink, opts Options) (Stats, error) {
	var total Stats
	start := time.Now()
	log := logging.FromContext(ctx)

	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return total, err
		}

		st, err := ingestFile(ctx, path, sink, opts)
		total.add(st)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return total, err
			}
			log.Errorf("[ERROR] Failed to ingest %s: %v", path, err)
			total.Failed = append(total.Failed, path)
			continue
		}
		total.Files++
		log.Infof("[INFO] %s: %d entries from %d lines in %s", path, st.Persisted, st.Lines, st.Duration.Round(time.Millisecond))
	}

	total.Duration = time.Since(start)
	return total, nil
}

func ingestFile(ctx context.Context, path string, sink Sink, opts Options) (Stats, error) {
	if parser.IsArchive(path) {
		return ingestArchive(ctx, path, sink, opts)
	}

	rc, err := parser.OpenLogFile(path)
	if err != nil {
		return Stats{}, err
	}
	defer rc.Close()

	return ingestReader(ctx, path, rc, sink, opts)
}

// ingestArchive ingests every log member of a tar archive, each under the
// node named by the member.
func ingestArchive(ctx context.Context, path string, sink Sink, opts Options) (Stats, error) {
	var total Stats
	log := logging.FromContext(ctx)
	err := parser.WalkArchive(path, func(name string, r io.Reader) error {
		st, err := ingestReader(ctx, name, r, sink, opts)
		total.add(st)
		if err == nil {
			log.Debugf("[DEBUG] %s: %s: %d entries", path, name, st.Persisted)
		}
		return err
	})
	return total, err
}

func ingestReader(ctx context.Context, name string, r io.Reader, sink Sink, opts Options) (Stats, error) {
	next, err := sink.NextID(ctx)
	if err != nil {
		return Stats{}, err
	}
	opts.StartID = next
	if opts.Node == "" {
		opts.Node = NodeFromPath(name)
	}
	return Run(ctx, r, sink, opts)
}

// NodeFromPath derives a node name from a log file name:
// "/var/log/rabbitmq/rabbit@host1.log.gz" gives "rabbit@host1".
func NodeFromPath(path string) string {
	name := filepath.Base(path)
	for _, suffix := range parser.SupportedSuffixes() {
		if strings.HasSuffix(strings.ToLower(name), suffix) {
			name = name[:len(name)-len(suffix)]
			break
		}
	}
	// Rotated logs: rabbit@host.log.1
	if i := strings.LastIndex(name, ".log"); i > 0 {
		name = name[:i]
	}
	return name
}
