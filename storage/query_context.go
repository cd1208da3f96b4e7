package storage

import (
	"context"
	"time"

	"github.com/Alain-L/rabbitlog/rql"
)

// QueryContext is the structured form of a row query. Empty fields do not
// filter.
type QueryContext struct {
	Since *time.Time
	To    *time.Time

	Severity  string
	ErlangPid string
	Node      string
	Subsystem string

	// Labels match when any of them is set, or all of them with MatchAllLabels.
	Labels         []string
	MatchAllLabels bool

	// Limit caps the result; the store default applies when zero.
	Limit int

	HasDocURL        bool
	HasResolutionURL bool
}

// Query builds the RQL query equivalent to qc.
func (qc QueryContext) Query() *rql.Query {
	var terms []rql.FilterExpr
	cmp := func(f rql.Field, op rql.Op, v string) {
		terms = append(terms, &rql.Comparison{Field: f, Op: op, Value: rql.StringValue(v)})
	}

	if qc.Since != nil {
		cmp(rql.FieldTimestamp, rql.OpGe, qc.Since.UTC().Format(time.RFC3339Nano))
	}
	if qc.To != nil {
		cmp(rql.FieldTimestamp, rql.OpLe, qc.To.UTC().Format(time.RFC3339Nano))
	}
	if qc.Severity != "" {
		cmp(rql.FieldSeverity, rql.OpEq, qc.Severity)
	}
	if qc.ErlangPid != "" {
		cmp(rql.FieldErlangPid, rql.OpEq, qc.ErlangPid)
	}
	if qc.Node != "" {
		cmp(rql.FieldNode, rql.OpEq, qc.Node)
	}
	if qc.Subsystem != "" {
		cmp(rql.FieldSubsystem, rql.OpEq, qc.Subsystem)
	}
	if len(qc.Labels) > 0 {
		if qc.MatchAllLabels {
			terms = append(terms, &rql.LabelsAll{Labels: qc.Labels})
		} else {
			terms = append(terms, &rql.LabelsAny{Labels: qc.Labels})
		}
	}
	if qc.HasDocURL {
		terms = append(terms, &rql.HasDocURL{})
	}
	if qc.HasResolutionURL {
		terms = append(terms, &rql.HasResolutionURL{})
	}

	var filter rql.FilterExpr = &rql.MatchAll{}
	for i, t := range terms {
		if i == 0 {
			filter = t
			continue
		}
		filter = &rql.And{Left: filter, Right: t}
	}

	q := &rql.Query{Filter: filter}
	if qc.Limit > 0 {
		q.Pipeline = []rql.Stage{&rql.LimitStage{N: qc.Limit}}
	}
	return q
}

// Query returns the rows matching qc ordered by timestamp, then id.
func (s *Store) Query(ctx context.Context, qc QueryContext) ([]rql.Row, error) {
	res, err := s.QueryResult(ctx, qc)
	if err != nil {
		return nil, err
	}
	return res.Rows, nil
}

// QueryResult is Query returning the full result, so callers can tell when
// DefaultLimit cut it short.
func (s *Store) QueryResult(ctx context.Context, qc QueryContext) (*rql.Result, error) {
	cq, err := s.Compiler().Compile(qc.Query())
	if err != nil {
		return nil, err
	}
	return s.Run(ctx, cq)
}
