package output

import (
	"encoding/json"
	"io"

	"github.com/Alain-L/rabbitlog/analysis"
	"github.com/Alain-L/rabbitlog/rql"
)

// RowJSON is the JSON form of a whole row.
type RowJSON struct {
	ID            int64    `json:"id"`
	Node          string   `json:"node"`
	Timestamp     string   `json:"timestamp"`
	Severity      string   `json:"severity"`
	ErlangPid     string   `json:"erlang_pid"`
	Subsystem     string   `json:"subsystem,omitempty"`
	Labels        []string `json:"labels"`
	Message       string   `json:"message"`
	DocURL        string   `json:"doc_url,omitempty"`
	ResolutionURL string   `json:"resolution_url,omitempty"`
}

// ResultJSON wraps either rows or shaped records.
type ResultJSON struct {
	Rows      []RowJSON        `json:"rows,omitempty"`
	Columns   []string         `json:"columns,omitempty"`
	Records   []map[string]any `json:"records,omitempty"`
	Count     int              `json:"count"`
	Truncated bool             `json:"truncated"`
}

// NewRowJSON converts r, resolving URL ids to their addresses.
func NewRowJSON(r *rql.Row) RowJSON {
	out := RowJSON{
		ID:        r.ID,
		Node:      r.Node,
		Timestamp: rql.FormatValue(r.Timestamp),
		Severity:  r.Severity.String(),
		ErlangPid: r.ErlangPid,
		Subsystem: r.Subsystem(),
		Labels:    analysis.LabelSet(r.Labels).Names(),
		Message:   r.Message,
	}
	if out.Labels == nil {
		out.Labels = []string{}
	}
	if u, ok := analysis.DocURL(r.DocURLID); ok {
		out.DocURL = u
	}
	if u, ok := analysis.ResolutionURL(r.ResolutionURLID); ok {
		out.ResolutionURL = u
	}
	return out
}

// NewResultJSON converts res.
func NewResultJSON(res *rql.Result) ResultJSON {
	out := ResultJSON{Count: res.Len(), Truncated: res.Truncated}
	if !res.Shaped() {
		out.Rows = make([]RowJSON, len(res.Rows))
		for i := range res.Rows {
			out.Rows[i] = NewRowJSON(&res.Rows[i])
		}
		return out
	}

	out.Columns = res.Columns
	out.Records = make([]map[string]any, len(res.Records))
	for i, rec := range res.Records {
		m := make(map[string]any, len(rec))
		for j, v := range rec {
			m[res.Columns[j]] = jsonValue(v)
		}
		out.Records[i] = m
	}
	return out
}

// jsonValue keeps numbers as numbers and renders everything else as text.
func jsonValue(v any) any {
	switch x := v.(type) {
	case int, int64:
		return x
	case analysis.LabelSet:
		names := x.Names()
		if names == nil {
			names = []string{}
		}
		return names
	}
	return rql.FormatValue(v)
}

// WriteJSON prints res as indented JSON.
func WriteJSON(w io.Writer, res *rql.Result) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(NewResultJSON(res))
}
