package rql

import "strings"

// SQLPlan describes how much of a compiled query the store can run itself.
type SQLPlan struct {
	// OrderBy is the ORDER BY clause body.
	OrderBy string

	Offset int

	// Limit is -1 when the store must return every matching row.
	Limit int

	// Pushed is the number of leading pipeline stages the plan covers.
	Pushed int
}

const defaultOrder = "timestamp ASC, id ASC"

// sortable lists the fields whose SQL ordering matches the in-memory one.
// Severity is stored as text and subsystems sort by name, so neither is here.
var sortable = map[Field]bool{
	FieldTimestamp: true,
	FieldID:        true,
	FieldNode:      true,
	FieldErlangPid: true,
	FieldMessage:   true,
}

// Plan pushes a leading "sort, offset, limit" prefix of the pipeline down to
// SQL. Nothing is pushed when the rows still need post-filtering. When the
// whole pipeline is pushed and none of it limits, the plan fetches one row more
// than the default cap so Finish can tell the result was truncated.
func (c *CompiledQuery) Plan() SQLPlan {
	plan := SQLPlan{OrderBy: defaultOrder, Limit: -1}
	if c.PostFilter {
		return plan
	}

	sorted, offset := false, false
loop:
	for _, st := range c.Pipeline {
		switch s := st.(type) {
		case *SortStage:
			if sorted || offset || !sortable[s.Field] {
				break loop
			}
			dir := " ASC"
			if s.Descending {
				dir = " DESC"
			}
			plan.OrderBy = s.Field.Column() + dir + ", id ASC"
			sorted = true
		case *OffsetStage:
			if offset {
				break loop
			}
			plan.Offset = s.N
			offset = true
		case *LimitStage:
			plan.Limit = s.N
			plan.Pushed++
			break loop
		case *HeadStage:
			plan.Limit = s.N
			plan.Pushed++
			break loop
		default:
			break loop
		}
		plan.Pushed++
	}

	if plan.Pushed == len(c.Pipeline) && plan.Limit < 0 && c.DefaultLimit > 0 {
		plan.Limit = c.DefaultLimit + 1
	}
	return plan
}

// SQL renders the SELECT for the plan against table. columns is the select
// list.
func (p SQLPlan) SQL(table, columns, where string) string {
	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(columns)
	b.WriteString(" FROM ")
	b.WriteString(table)
	b.WriteString(" WHERE ")
	b.WriteString(where)
	b.WriteString(" ORDER BY ")
	b.WriteString(p.OrderBy)
	if p.Limit >= 0 || p.Offset > 0 {
		b.WriteString(" LIMIT ?")
	}
	if p.Offset > 0 {
		b.WriteString(" OFFSET ?")
	}
	return b.String()
}

// Args returns the LIMIT and OFFSET arguments matching SQL.
func (p SQLPlan) Args() []any {
	var args []any
	if p.Limit >= 0 || p.Offset > 0 {
		args = append(args, p.Limit)
	}
	if p.Offset > 0 {
		args = append(args, p.Offset)
	}
	return args
}
