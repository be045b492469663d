package view

import (
	"fmt"

	"notedb/internal/domain"
)

// UncategorizedLabel labels the trailing lane of rows outside every option.
const UncategorizedLabel = "Uncategorized"

// Lane is one board column.
type Lane struct {
	Value         string                `json:"value"`
	Label         string                `json:"label"`
	Uncategorized bool                  `json:"uncategorized,omitempty"`
	Rows          []*domain.DatabaseRow `json:"rows"`
}

// Board groups rows by a select column.
type Board struct {
	GroupBy string `json:"groupBy"`
	Lanes   []Lane `json:"lanes"`
}

// GroupColumn resolves the board's group-by column, defaulting to the first
// select column.
func GroupColumn(schema *domain.DatabaseSchema, groupBy string) (*domain.ColumnDef, error) {
	if groupBy == "" {
		if c := firstColumnOfType(schema, domain.ColTypeSelect); c != nil {
			return c, nil
		}
		return nil, domain.ErrInvalidGroupBy
	}
	col, ok := schema.Column(groupBy)
	if !ok || col.Type != domain.ColTypeSelect {
		return nil, fmt.Errorf("group by %q: %w", groupBy, domain.ErrInvalidGroupBy)
	}
	return col, nil
}

// LaneOf returns the lane value a row belongs to; "" is uncategorized.
func LaneOf(row *domain.DatabaseRow, col *domain.ColumnDef) string {
	v := domain.CoerceForDisplay(row.Field(col.ID), col.Type)
	if v == "" || !col.HasOption(v) {
		return ""
	}
	return v
}

// BuildBoard builds one lane per declared option, in declared order, plus a
// trailing uncategorized lane when any row falls outside the options.
func BuildBoard(schema *domain.DatabaseSchema, groupBy string, rows []*domain.DatabaseRow) (*Board, error) {
	col, err := GroupColumn(schema, groupBy)
	if err != nil {
		return nil, err
	}

	b := &Board{GroupBy: col.ID, Lanes: make([]Lane, 0, len(col.Options)+1)}
	index := make(map[string]int, len(col.Options))
	for _, opt := range col.Options {
		if _, dup := index[opt]; dup {
			continue
		}
		index[opt] = len(b.Lanes)
		b.Lanes = append(b.Lanes, Lane{Value: opt, Label: opt, Rows: []*domain.DatabaseRow{}})
	}

	var uncategorized []*domain.DatabaseRow
	for _, r := range rows {
		lane := LaneOf(r, col)
		if lane == "" {
			uncategorized = append(uncategorized, r)
			continue
		}
		i := index[lane]
		b.Lanes[i].Rows = append(b.Lanes[i].Rows, r)
	}
	if len(uncategorized) > 0 {
		b.Lanes = append(b.Lanes, Lane{Label: UncategorizedLabel, Uncategorized: true, Rows: uncategorized})
	}
	return b, nil
}
