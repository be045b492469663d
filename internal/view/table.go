package view

import (
	"slices"

	"notedb/internal/domain"
	"notedb/internal/rollup"
)

// Cell is one rendered table cell.
type Cell struct {
	ColumnID string            `json:"columnId"`
	Value    domain.FieldValue `json:"value"`
	Display  string            `json:"display"`
	Rollup   *rollup.Result    `json:"rollup,omitempty"`
}

// TableRow is one rendered table row.
type TableRow struct {
	ID    string `json:"id"`
	Cells []Cell `json:"cells"`
}

// Table is rows × visible columns.
type Table struct {
	Columns []domain.ColumnDef `json:"columns"`
	Rows    []TableRow         `json:"rows"`
}

// BuildTable renders the projection as a table, skipping hidden columns.
func BuildTable(schema *domain.DatabaseSchema, v domain.ViewDef, p *Projection) *Table {
	cols := make([]domain.ColumnDef, 0, len(schema.Columns))
	for _, c := range schema.Columns {
		if !slices.Contains(v.HiddenColumns, c.ID) {
			cols = append(cols, c)
		}
	}

	t := &Table{Columns: cols, Rows: make([]TableRow, 0, len(p.Rows))}
	for _, r := range p.Rows {
		tr := TableRow{ID: r.ID, Cells: make([]Cell, 0, len(cols))}
		for _, c := range cols {
			val := r.Field(c.ID)
			cell := Cell{ColumnID: c.ID, Value: val, Display: domain.CoerceForDisplay(val, c.Type)}
			if res, ok := p.Rollups[r.ID][c.ID]; ok {
				cell.Value = res.Value
				cell.Rollup = &res
			}
			tr.Cells = append(tr.Cells, cell)
		}
		t.Rows = append(t.Rows, tr)
	}
	return t
}
