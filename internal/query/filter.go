// Package query evaluates view filters and sort rules against rows.
package query

import (
	"strings"

	"notedb/internal/domain"
)

// operatorsByType is the fixed operator set each column type accepts.
var operatorsByType = map[domain.ColumnType][]domain.Operator{
	domain.ColTypeText:        {domain.OpContains, domain.OpNotContains, domain.OpEquals, domain.OpNotEquals, domain.OpIsEmpty, domain.OpIsNotEmpty},
	domain.ColTypeURL:         {domain.OpContains, domain.OpNotContains, domain.OpEquals, domain.OpNotEquals, domain.OpIsEmpty, domain.OpIsNotEmpty},
	domain.ColTypeNumber:      {domain.OpEquals, domain.OpNotEquals, domain.OpGT, domain.OpLT, domain.OpGTE, domain.OpLTE, domain.OpIsEmpty, domain.OpIsNotEmpty},
	domain.ColTypeDate:        {domain.OpEquals, domain.OpBefore, domain.OpAfter, domain.OpIsEmpty, domain.OpIsNotEmpty},
	domain.ColTypeSelect:      {domain.OpIs, domain.OpIsNot, domain.OpIsEmpty, domain.OpIsNotEmpty},
	domain.ColTypeRelation:    {domain.OpIs, domain.OpIsNot, domain.OpIsEmpty, domain.OpIsNotEmpty},
	domain.ColTypeMultiSelect: {domain.OpContains, domain.OpNotContains, domain.OpIsEmpty, domain.OpIsNotEmpty},
	domain.ColTypeCheckbox:    {domain.OpIs, domain.OpIsNot},
}

// Operators returns the operators valid for a column type.
func Operators(t domain.ColumnType) []domain.Operator {
	return operatorsByType[t]
}

// Supports reports whether op is valid for columns of type t.
func Supports(t domain.ColumnType, op domain.Operator) bool {
	for _, o := range operatorsByType[t] {
		if o == op {
			return true
		}
	}
	return false
}

// Matches evaluates a single condition. A nil column or an operator the
// column type does not define evaluates to true so a stale condition never
// hides rows.
func Matches(row *domain.DatabaseRow, cond domain.FilterCondition, col *domain.ColumnDef) bool {
	if col == nil || !Supports(col.Type, cond.Operator) {
		return true
	}
	v := row.Field(col.ID)

	switch cond.Operator {
	case domain.OpIsEmpty:
		return domain.IsEmpty(v)
	case domain.OpIsNotEmpty:
		return !domain.IsEmpty(v)
	}

	switch col.Type {
	case domain.ColTypeText, domain.ColTypeURL:
		return matchText(domain.CoerceForDisplay(v, col.Type), cond)
	case domain.ColTypeNumber:
		return matchNumber(domain.AsNumber(v), cond)
	case domain.ColTypeDate:
		return matchDate(domain.CoerceForDisplay(v, col.Type), cond)
	case domain.ColTypeSelect, domain.ColTypeRelation:
		eq := strings.EqualFold(domain.CoerceForDisplay(v, col.Type), cond.Value)
		if cond.Operator == domain.OpIs {
			return eq
		}
		return !eq
	case domain.ColTypeMultiSelect:
		found := false
		for _, item := range domain.AsList(v) {
			if strings.EqualFold(item, cond.Value) {
				found = true
				break
			}
		}
		if cond.Operator == domain.OpContains {
			return found
		}
		return !found
	case domain.ColTypeCheckbox:
		eq := domain.CoerceForDisplay(v, col.Type) == strings.ToLower(strings.TrimSpace(cond.Value))
		if cond.Operator == domain.OpIs {
			return eq
		}
		return !eq
	}
	return true
}

func matchText(s string, cond domain.FilterCondition) bool {
	hay := strings.ToLower(s)
	needle := strings.ToLower(cond.Value)
	switch cond.Operator {
	case domain.OpContains:
		return strings.Contains(hay, needle)
	case domain.OpNotContains:
		return !strings.Contains(hay, needle)
	case domain.OpEquals:
		return hay == needle
	case domain.OpNotEquals:
		return hay != needle
	}
	return true
}

func matchNumber(n float64, cond domain.FilterCondition) bool {
	target, _ := domain.ParseNumber(cond.Value)
	switch cond.Operator {
	case domain.OpEquals:
		return n == target
	case domain.OpNotEquals:
		return n != target
	case domain.OpGT:
		return n > target
	case domain.OpLT:
		return n < target
	case domain.OpGTE:
		return n >= target
	case domain.OpLTE:
		return n <= target
	}
	return true
}

// matchDate compares YYYY-MM-DD prefixes lexicographically. An empty date
// is neither before nor after anything.
func matchDate(s string, cond domain.FilterCondition) bool {
	d := domain.DatePrefix(strings.TrimSpace(s))
	target := domain.DatePrefix(strings.TrimSpace(cond.Value))
	switch cond.Operator {
	case domain.OpEquals:
		return d == target
	case domain.OpBefore:
		return d != "" && d < target
	case domain.OpAfter:
		return d != "" && d > target
	}
	return true
}

// Filter is a set of conditions combined by a single logic mode.
type Filter struct {
	Conditions []domain.FilterCondition
	Logic      domain.FilterLogic
}

// Compile drops conditions the schema can no longer evaluate: missing
// columns, rollups, and operators the column type does not define.
func (f Filter) Compile(schema *domain.DatabaseSchema) []Clause {
	out := make([]Clause, 0, len(f.Conditions))
	for _, c := range f.Conditions {
		col, ok := schema.Column(c.Column)
		if !ok || !Supports(col.Type, c.Operator) {
			continue
		}
		out = append(out, Clause{Cond: c, Col: col})
	}
	return out
}

// Clause is a condition bound to its column definition.
type Clause struct {
	Cond domain.FilterCondition
	Col  *domain.ColumnDef
}

// MatchAll reports whether row passes the compiled clauses under logic.
// An empty clause set always passes.
func MatchAll(row *domain.DatabaseRow, clauses []Clause, logic domain.FilterLogic) bool {
	if len(clauses) == 0 {
		return true
	}
	if logic == domain.LogicOr {
		for _, c := range clauses {
			if Matches(row, c.Cond, c.Col) {
				return true
			}
		}
		return false
	}
	for _, c := range clauses {
		if !Matches(row, c.Cond, c.Col) {
			return false
		}
	}
	return true
}

// Apply returns the rows passing the filter, in input order.
func (f Filter) Apply(rows []*domain.DatabaseRow, schema *domain.DatabaseSchema) []*domain.DatabaseRow {
	clauses := f.Compile(schema)
	out := make([]*domain.DatabaseRow, 0, len(rows))
	for _, r := range rows {
		if MatchAll(r, clauses, f.Logic) {
			out = append(out, r)
		}
	}
	return out
}

// ApplyQuickFilters applies the legacy per-column substring filters used by
// older table views. Each entry must match (case-insensitive contains on the
// display form); unknown columns and blank needles are ignored.
func ApplyQuickFilters(rows []*domain.DatabaseRow, quick map[string]string, schema *domain.DatabaseSchema) []*domain.DatabaseRow {
	type needle struct {
		col *domain.ColumnDef
		s   string
	}
	var needles []needle
	for id, s := range quick {
		s = strings.ToLower(strings.TrimSpace(s))
		if s == "" {
			continue
		}
		if col, ok := schema.Column(id); ok {
			needles = append(needles, needle{col: col, s: s})
		}
	}
	if len(needles) == 0 {
		return rows
	}

	out := make([]*domain.DatabaseRow, 0, len(rows))
	for _, r := range rows {
		keep := true
		for _, n := range needles {
			if !strings.Contains(strings.ToLower(domain.CoerceForDisplay(r.Field(n.col.ID), n.col.Type)), n.s) {
				keep = false
				break
			}
		}
		if keep {
			out = append(out, r)
		}
	}
	return out
}
