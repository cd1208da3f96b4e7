package ingest

import (
	"runtime"
	"slices"
	"sync"

	"github.com/Alain-L/rabbitlog/analysis"
	"github.com/Alain-L/rabbitlog/metrics"
	"github.com/Alain-L/rabbitlog/parser"
)

// minShard is the smallest slice of a chunk handed to one annotation worker.
const minShard = 256

// WorkerCount picks the number of annotation workers for n entries: half the
// CPUs, at least 2 and at most 8, and never more than there are shards.
func WorkerCount(n int) int {
	if n <= minShard {
		return 1
	}

	workers := runtime.NumCPU() / 2
	if workers < 2 {
		workers = 2
	}
	if workers > 8 {
		workers = 8
	}

	if shards := (n + minShard - 1) / minShard; shards < workers {
		return shards
	}
	return workers
}

type shard struct {
	entries []parser.ParsedEntry
}

// AnnotateParallel annotates entries using up to workers goroutines and
// returns them ordered by sequence id. workers <= 0 picks WorkerCount.
func AnnotateParallel(entries []parser.ParsedEntry, workers int) []parser.ParsedEntry {
	if workers <= 0 {
		workers = WorkerCount(len(entries))
	}

	if workers == 1 || len(entries) <= minShard {
		analysis.AnnotateAll(entries)
		countAnnotated(entries)
		return entries
	}

	size := (len(entries) + workers - 1) / workers
	size = max(size, minShard)

	shards := make(chan shard, workers)
	done := make(chan shard, workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for s := range shards {
				analysis.AnnotateAll(s.entries)
				done <- s
			}
		}()
	}

	go func() {
		for start := 0; start < len(entries); start += size {
			end := min(start+size, len(entries))
			shards <- shard{entries: slices.Clone(entries[start:end])}
		}
		close(shards)
		wg.Wait()
		close(done)
	}()

	out := make([]parser.ParsedEntry, 0, len(entries))
	for s := range done {
		out = append(out, s.entries...)
	}
	// Shards finish in any order.
	slices.SortFunc(out, func(a, b parser.ParsedEntry) int {
		switch {
		case a.SequenceID < b.SequenceID:
			return -1
		case a.SequenceID > b.SequenceID:
			return 1
		}
		return 0
	})
	countAnnotated(out)
	return out
}

func countAnnotated(entries []parser.ParsedEntry) {
	counts := make(map[string]int)
	for i := range entries {
		name := "none"
		if s, ok := analysis.SubsystemFromID(entries[i].SubsystemID); ok {
			name = s.String()
		}
		counts[name]++
	}
	for name, n := range counts {
		metrics.EntriesAnnotated.WithLabelValues(name).Add(float64(n))
	}
}
