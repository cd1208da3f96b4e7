// Package metrics exposes prometheus counters for ingestion and query compilation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry holds every rabbitlog collector. It is separate from the default
// registry so embedding programs do not get our series unless they ask for them.
var Registry = prometheus.NewRegistry()

var factory = promauto.With(Registry)

var (
	// Parser metrics
	LinesRead = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "rabbitlog_lines_read_total",
			Help: "Physical log lines consumed by the parser",
		},
	)
	EntriesParsed = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "rabbitlog_entries_parsed_total",
			Help: "Logical entries emitted by the parser",
		},
	)
	OrphanLines = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "rabbitlog_orphan_lines_total",
			Help: "Continuation lines discarded because no entry was open",
		},
	)

	// Annotation metrics
	EntriesAnnotated = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rabbitlog_entries_annotated_total",
			Help: "Annotated entries by subsystem",
		},
		[]string{"subsystem"},
	)

	// Storage metrics
	EntriesPersisted = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rabbitlog_entries_persisted_total",
			Help: "Entries written to the store by node",
		},
		[]string{"node"},
	)

	// Query metrics
	QueryFailures = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rabbitlog_query_failures_total",
			Help: "Queries rejected by the parser or compiler by error kind",
		},
		[]string{"stage", "kind"},
	)
)
