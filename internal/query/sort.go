package query

import (
	"cmp"
	"slices"
	"strings"

	"notedb/internal/domain"
)

// Compare orders two values of a column ascending. Parse failures compare
// as 0 (numbers) or as their display strings.
func Compare(a, b domain.FieldValue, t domain.ColumnType) int {
	switch t {
	case domain.ColTypeNumber:
		return cmp.Compare(domain.AsNumber(a), domain.AsNumber(b))
	case domain.ColTypeCheckbox:
		return cmp.Compare(boolRank(domain.AsBool(a)), boolRank(domain.AsBool(b)))
	}
	return strings.Compare(domain.CoerceForDisplay(a, t), domain.CoerceForDisplay(b, t))
}

func boolRank(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Sort is an ordered list of sort rules plus the legacy single-column
// fallback used when no rules are set.
type Sort struct {
	Rules  []domain.SortRule
	Legacy *domain.SortRule
}

// Effective returns the rules actually applied.
func (s Sort) Effective() []domain.SortRule {
	if len(s.Rules) > 0 {
		return s.Rules
	}
	if s.Legacy != nil && s.Legacy.Column != "" {
		return []domain.SortRule{*s.Legacy}
	}
	return nil
}

// Apply returns a stably sorted copy of rows. Rules naming unknown columns
// compare as ties.
func (s Sort) Apply(rows []*domain.DatabaseRow, schema *domain.DatabaseSchema) []*domain.DatabaseRow {
	out := slices.Clone(rows)
	rules := s.Effective()
	if len(rules) == 0 {
		return out
	}

	type boundRule struct {
		col  *domain.ColumnDef
		desc bool
	}
	bound := make([]boundRule, 0, len(rules))
	for _, r := range rules {
		if col, ok := schema.Column(r.Column); ok {
			bound = append(bound, boundRule{col: col, desc: r.Direction == domain.SortDesc})
		}
	}
	if len(bound) == 0 {
		return out
	}

	slices.SortStableFunc(out, func(a, b *domain.DatabaseRow) int {
		for _, r := range bound {
			c := Compare(a.Field(r.col.ID), b.Field(r.col.ID), r.col.Type)
			if r.desc {
				c = -c
			}
			if c != 0 {
				return c
			}
		}
		return 0
	})
	return out
}

// ToggleLegacy applies a header click to the legacy sort: the same column
// flips direction, a new column starts ascending.
func ToggleLegacy(current *domain.SortRule, column string) *domain.SortRule {
	if current != nil && current.Column == column {
		dir := domain.SortAsc
		if current.Direction == domain.SortAsc || current.Direction == "" {
			dir = domain.SortDesc
		}
		return &domain.SortRule{Column: column, Direction: dir}
	}
	return &domain.SortRule{Column: column, Direction: domain.SortAsc}
}
