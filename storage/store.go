// Package storage persists annotated entries in SQLite and runs compiled RQL
// queries against them.
package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/Alain-L/rabbitlog/logging"
	"github.com/Alain-L/rabbitlog/metrics"
	"github.com/Alain-L/rabbitlog/parser"
	"github.com/Alain-L/rabbitlog/rql"
)

//go:embed schema.sql
var schemaSQL string

// ErrClosed is returned by operations on a closed Store.
var ErrClosed = errors.New("store is closed")

const (
	table = "entries"

	columns = "id, node, timestamp, severity, erlang_pid, subsystem_id, message, labels, " +
		"resolution_or_discussion_url_id, doc_url_id"

	insertSQL = "INSERT OR REPLACE INTO " + table + " (" + columns + ") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)"
)

// pragmas are applied once on the single connection. case_sensitive_like makes
// LIKE agree with the in-memory "contains" operator.
var pragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA synchronous=NORMAL",
	"PRAGMA cache_size=-64000",
	"PRAGMA temp_store=MEMORY",
	"PRAGMA busy_timeout=5000",
	"PRAGMA case_sensitive_like=ON",
}

// Store is a SQLite-backed entry store.
type Store struct {
	db *sql.DB

	// DefaultLimit caps queries that carry no explicit limit. rql.DefaultLimit
	// applies when zero.
	DefaultLimit int

	// Now anchors relative ranges such as "@1h". time.Now when nil.
	Now func() time.Time
}

// Open opens or creates the database at path and makes sure the schema exists.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Pragmas are per connection, so keep exactly one.
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)

	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("setting pragma %q: %w", pragma, err)
		}
	}

	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logging.L().Debugf("[DEBUG] Opened store %s", path)
	return &Store{db: db}, nil
}

// Close releases the database.
func (s *Store) Close() error {
	if s.db == nil {
		return ErrClosed
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// InsertBatch persists entries read from node in one transaction. Zero
// subsystem and URL ids are stored as NULL. Rows with an existing id are
// replaced.
func (s *Store) InsertBatch(ctx context.Context, node string, entries []parser.ParsedEntry) error {
	if s.db == nil {
		return ErrClosed
	}
	if len(entries) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, insertSQL)
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	for i := range entries {
		e := &entries[i]
		_, err := stmt.ExecContext(ctx,
			e.ID(),
			node,
			e.Timestamp.UnixMicro(),
			e.Severity.String(),
			e.ProcessID,
			nullID(e.SubsystemID),
			e.Message,
			int64(e.Labels),
			nullID(e.ResolutionURLID),
			nullID(e.DocURLID),
		)
		if err != nil {
			return fmt.Errorf("inserting entry %d: %w", e.ID(), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing batch: %w", err)
	}
	metrics.EntriesPersisted.WithLabelValues(node).Add(float64(len(entries)))
	return nil
}

func nullID(id int16) sql.NullInt16 {
	return sql.NullInt16{Int16: id, Valid: id != 0}
}

// NextID returns the id following the largest stored one, 0 for an empty store.
func (s *Store) NextID(ctx context.Context) (int64, error) {
	if s.db == nil {
		return 0, ErrClosed
	}
	var next int64
	err := s.db.QueryRowContext(ctx, "SELECT IFNULL(MAX(id), -1) + 1 FROM "+table).Scan(&next)
	if err != nil {
		return 0, fmt.Errorf("reading next id: %w", err)
	}
	return next, nil
}

// Count returns the number of stored entries.
func (s *Store) Count(ctx context.Context) (int64, error) {
	if s.db == nil {
		return 0, ErrClosed
	}
	var n int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting entries: %w", err)
	}
	return n, nil
}

// Nodes returns the distinct node names, sorted.
func (s *Store) Nodes(ctx context.Context) ([]string, error) {
	if s.db == nil {
		return nil, ErrClosed
	}
	rows, err := s.db.QueryContext(ctx, "SELECT DISTINCT node FROM "+table+" ORDER BY node")
	if err != nil {
		return nil, fmt.Errorf("listing nodes: %w", err)
	}
	defer rows.Close()

	var nodes []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, fmt.Errorf("scanning node: %w", err)
		}
		nodes = append(nodes, n)
	}
	return nodes, rows.Err()
}

// Compiler returns the query compiler configured for this store.
func (s *Store) Compiler() *rql.Compiler {
	return &rql.Compiler{Now: s.Now, DefaultLimit: s.DefaultLimit}
}

// QueryString parses, compiles and runs an RQL query.
func (s *Store) QueryString(ctx context.Context, input string) (*rql.Result, error) {
	q, err := rql.Parse(input)
	if err != nil {
		return nil, err
	}
	cq, err := s.Compiler().Compile(q)
	if err != nil {
		return nil, err
	}
	return s.Run(ctx, cq)
}

// Run executes a compiled query. The filter and the leading sort, offset and
// limit stages run in SQL; post-filtering and the remaining stages run in
// memory.
func (s *Store) Run(ctx context.Context, cq *rql.CompiledQuery) (*rql.Result, error) {
	if s.db == nil {
		return nil, ErrClosed
	}

	where, args := cq.WhereClause()
	plan := cq.Plan()
	query := plan.SQL(table, columns, where)
	args = append(args, plan.Args()...)

	start := time.Now()
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("running query: %w", err)
	}
	defer rows.Close()

	var out []rql.Row
	for rows.Next() {
		r, err := scanRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading rows: %w", err)
	}

	res := cq.Finish(out, plan)
	logging.L().Debugf("[DEBUG] %q: %d candidate rows, %d results in %s", query, len(out), res.Len(), time.Since(start))
	return res, nil
}

func scanRow(rows *sql.Rows) (rql.Row, error) {
	var (
		r          rql.Row
		ts, labels int64
		severity   string
		subsystem  sql.NullInt16
		resolution sql.NullInt16
		doc        sql.NullInt16
	)
	err := rows.Scan(&r.ID, &r.Node, &ts, &severity, &r.ErlangPid, &subsystem, &r.Message, &labels, &resolution, &doc)
	if err != nil {
		return r, fmt.Errorf("scanning row: %w", err)
	}
	sev, err := parser.ParseSeverity(severity)
	if err != nil {
		return r, fmt.Errorf("row %d: %w", r.ID, err)
	}
	r.Timestamp = time.UnixMicro(ts).UTC()
	r.Severity = sev
	r.SubsystemID = subsystem.Int16
	r.Labels = uint64(labels)
	r.ResolutionURLID = resolution.Int16
	r.DocURLID = doc.Int16
	return r, nil
}
