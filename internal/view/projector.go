// Package view projects one canonical row set into table, board and
// calendar presentations and turns view-local actions back into row
// mutations.
package view

import (
	"context"

	"notedb/internal/domain"
	"notedb/internal/query"
	"notedb/internal/rollup"
)

// Projection is the filtered and sorted row set of a view, with rollup
// columns filled in.
type Projection struct {
	Rows    []*domain.DatabaseRow
	Rollups map[string]map[string]rollup.Result
}

// Project runs rollups, the structured filter, the legacy quick filters and
// the sort for v. rollups may be nil, in which case rollup cells stay empty.
func Project(ctx context.Context, db *domain.Database, v domain.ViewDef, rollups *rollup.Engine) *Projection {
	rows := db.Rows
	var results map[string]map[string]rollup.Result
	if rollups != nil {
		rows, results = rollups.Attach(ctx, db.Schema, rows)
	}

	rows = query.Filter{Conditions: v.Filters, Logic: v.FilterLogic}.Apply(rows, db.Schema)
	rows = query.ApplyQuickFilters(rows, v.QuickFilters, db.Schema)
	rows = query.Sort{Rules: v.Sorts, Legacy: v.LegacySort}.Apply(rows, db.Schema)

	return &Projection{Rows: rows, Rollups: results}
}

// DefaultView is used when a schema declares no views.
func DefaultView() domain.ViewDef {
	return domain.ViewDef{ID: "default", Name: "Table", Kind: domain.ViewTable, FilterLogic: domain.LogicAnd}
}

// firstColumnOfType returns the first column of type t, or nil.
func firstColumnOfType(schema *domain.DatabaseSchema, t domain.ColumnType) *domain.ColumnDef {
	for i := range schema.Columns {
		if schema.Columns[i].Type == t {
			return &schema.Columns[i]
		}
	}
	return nil
}
