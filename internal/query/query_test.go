package query_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"notedb/internal/domain"
	"notedb/internal/query"
)

func schema() *domain.DatabaseSchema {
	return &domain.DatabaseSchema{
		Name: "Tasks",
		Columns: []domain.ColumnDef{
			{ID: "name", Name: "Name", Type: domain.ColTypeText},
			{ID: "pts", Name: "Points", Type: domain.ColTypeNumber},
			{ID: "due", Name: "Due", Type: domain.ColTypeDate},
			{ID: "status", Name: "Status", Type: domain.ColTypeSelect, Options: []string{"Todo", "Done"}},
			{ID: "tags", Name: "Tags", Type: domain.ColTypeMultiSelect, Options: []string{"ui", "api"}},
			{ID: "done", Name: "Done", Type: domain.ColTypeCheckbox},
			{ID: "link", Name: "Link", Type: domain.ColTypeURL},
			{ID: "rel", Name: "Project", Type: domain.ColTypeRelation, Target: "db-p"},
			{ID: "sum", Name: "Sum", Type: domain.ColTypeRollup, RelationColumnID: "rel", AggregateFunction: domain.AggCount},
		},
	}
}

func row(id string, fields map[string]domain.FieldValue) *domain.DatabaseRow {
	return &domain.DatabaseRow{ID: id, Fields: fields}
}

func rows() []*domain.DatabaseRow {
	return []*domain.DatabaseRow{
		row("row-1", map[string]domain.FieldValue{
			"name": domain.TextValue("Write Docs"), "pts": domain.NumberValue(3), "due": domain.TextValue("2026-03-05"),
			"status": domain.TextValue("Todo"), "tags": domain.ListValue("ui"), "done": domain.BoolValue(false),
			"rel": domain.ListValue("p1"),
		}),
		row("row-2", map[string]domain.FieldValue{
			"name": domain.TextValue("Ship API"), "pts": domain.TextValue("8"), "due": domain.TextValue("2026-03-20T10:00:00Z"),
			"status": domain.TextValue("done"), "tags": domain.ListValue("api", "ui"), "done": domain.BoolValue(true),
			"rel": domain.ListValue("p1", "p2"),
		}),
		row("row-3", map[string]domain.FieldValue{
			"name": domain.TextValue(""), "pts": domain.TextValue("n/a"), "due": domain.TextValue(""),
			"status": domain.TextValue(""), "tags": domain.ListValue(), "done": domain.TextValue("garbage"),
		}),
	}
}

func ids(rs []*domain.DatabaseRow) []string {
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = r.ID
	}
	return out
}

// ─────────────────────────────────────────────────────────────
// Filter
// ─────────────────────────────────────────────────────────────

func TestFilter_Operators(t *testing.T) {
	tests := []struct {
		name string
		cond domain.FilterCondition
		want []string
	}{
		{"text contains is case-insensitive", domain.FilterCondition{Column: "name", Operator: domain.OpContains, Value: "docs"}, []string{"row-1"}},
		{"text notContains", domain.FilterCondition{Column: "name", Operator: domain.OpNotContains, Value: "docs"}, []string{"row-2", "row-3"}},
		{"text equals", domain.FilterCondition{Column: "name", Operator: domain.OpEquals, Value: "ship api"}, []string{"row-2"}},
		{"text notEquals", domain.FilterCondition{Column: "name", Operator: domain.OpNotEquals, Value: "ship api"}, []string{"row-1", "row-3"}},
		{"text isEmpty", domain.FilterCondition{Column: "name", Operator: domain.OpIsEmpty}, []string{"row-3"}},
		{"text isNotEmpty", domain.FilterCondition{Column: "name", Operator: domain.OpIsNotEmpty}, []string{"row-1", "row-2"}},
		{"url isEmpty on absent", domain.FilterCondition{Column: "link", Operator: domain.OpIsEmpty}, []string{"row-1", "row-2", "row-3"}},
		{"number gt parses text", domain.FilterCondition{Column: "pts", Operator: domain.OpGT, Value: "5"}, []string{"row-2"}},
		{"number lte treats non-numeric as 0", domain.FilterCondition{Column: "pts", Operator: domain.OpLTE, Value: "3"}, []string{"row-1", "row-3"}},
		{"number equals", domain.FilterCondition{Column: "pts", Operator: domain.OpEquals, Value: "8"}, []string{"row-2"}},
		{"number gte", domain.FilterCondition{Column: "pts", Operator: domain.OpGTE, Value: "3"}, []string{"row-1", "row-2"}},
		{"number lt", domain.FilterCondition{Column: "pts", Operator: domain.OpLT, Value: "3"}, []string{"row-3"}},
		{"number notEquals", domain.FilterCondition{Column: "pts", Operator: domain.OpNotEquals, Value: "3"}, []string{"row-2", "row-3"}},
		{"date before uses day prefix", domain.FilterCondition{Column: "due", Operator: domain.OpBefore, Value: "2026-03-20"}, []string{"row-1"}},
		{"date after skips empty", domain.FilterCondition{Column: "due", Operator: domain.OpAfter, Value: "2026-01-01"}, []string{"row-1", "row-2"}},
		{"date equals ignores time", domain.FilterCondition{Column: "due", Operator: domain.OpEquals, Value: "2026-03-20"}, []string{"row-2"}},
		{"select is case-insensitive", domain.FilterCondition{Column: "status", Operator: domain.OpIs, Value: "DONE"}, []string{"row-2"}},
		{"select isNot", domain.FilterCondition{Column: "status", Operator: domain.OpIsNot, Value: "todo"}, []string{"row-2", "row-3"}},
		{"select isEmpty", domain.FilterCondition{Column: "status", Operator: domain.OpIsEmpty}, []string{"row-3"}},
		{"multiSelect contains element", domain.FilterCondition{Column: "tags", Operator: domain.OpContains, Value: "UI"}, []string{"row-1", "row-2"}},
		{"multiSelect does not match substrings", domain.FilterCondition{Column: "tags", Operator: domain.OpContains, Value: "a"}, []string{}},
		{"multiSelect notContains", domain.FilterCondition{Column: "tags", Operator: domain.OpNotContains, Value: "api"}, []string{"row-1", "row-3"}},
		{"multiSelect isEmpty", domain.FilterCondition{Column: "tags", Operator: domain.OpIsEmpty}, []string{"row-3"}},
		{"checkbox is true", domain.FilterCondition{Column: "done", Operator: domain.OpIs, Value: "true"}, []string{"row-2"}},
		{"checkbox isNot true", domain.FilterCondition{Column: "done", Operator: domain.OpIsNot, Value: "True"}, []string{"row-1", "row-3"}},
		{"relation is compares joined ids", domain.FilterCondition{Column: "rel", Operator: domain.OpIs, Value: "p1,p2"}, []string{"row-2"}},
		{"relation isNotEmpty", domain.FilterCondition{Column: "rel", Operator: domain.OpIsNotEmpty}, []string{"row-1", "row-2"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := query.Filter{Conditions: []domain.FilterCondition{tt.cond}}.Apply(rows(), schema())
			if diff := cmp.Diff(tt.want, ids(got)); diff != "" {
				t.Errorf("(-want +got):\n%s", diff)
			}
		})
	}
}

func TestFilter_InvalidConditionsAreDropped(t *testing.T) {
	conds := []domain.FilterCondition{
		{Column: "missing", Operator: domain.OpContains, Value: "x"},
		{Column: "sum", Operator: domain.OpEquals, Value: "1"},
		{Column: "done", Operator: domain.OpContains, Value: "x"},
		{Column: "pts", Operator: domain.OpBefore, Value: "x"},
	}
	f := query.Filter{Conditions: conds, Logic: domain.LogicAnd}
	if got := f.Compile(schema()); len(got) != 0 {
		t.Fatalf("Compile kept %d clauses", len(got))
	}
	if got := ids(f.Apply(rows(), schema())); len(got) != 3 {
		t.Errorf("Apply = %v, want every row", got)
	}

	// A stale condition must not flip an OR set to "pass everything".
	f = query.Filter{Conditions: append(conds, domain.FilterCondition{Column: "status", Operator: domain.OpIs, Value: "todo"}), Logic: domain.LogicOr}
	if diff := cmp.Diff([]string{"row-1"}, ids(f.Apply(rows(), schema()))); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
}

func TestFilter_Logic(t *testing.T) {
	conds := []domain.FilterCondition{
		{Column: "tags", Operator: domain.OpContains, Value: "ui"},
		{Column: "pts", Operator: domain.OpGT, Value: "5"},
	}
	and := query.Filter{Conditions: conds, Logic: domain.LogicAnd}.Apply(rows(), schema())
	if diff := cmp.Diff([]string{"row-2"}, ids(and)); diff != "" {
		t.Errorf("and (-want +got):\n%s", diff)
	}
	or := query.Filter{Conditions: conds, Logic: domain.LogicOr}.Apply(rows(), schema())
	if diff := cmp.Diff([]string{"row-1", "row-2"}, ids(or)); diff != "" {
		t.Errorf("or (-want +got):\n%s", diff)
	}
	empty := query.Filter{Logic: domain.LogicOr}.Apply(rows(), schema())
	if len(empty) != 3 {
		t.Errorf("empty set should pass every row, got %v", ids(empty))
	}
}

func TestFilter_StatusIsDone(t *testing.T) {
	s := &domain.DatabaseSchema{
		Name: "Tasks",
		Columns: []domain.ColumnDef{
			{ID: "title", Name: "Title", Type: domain.ColTypeText},
			{ID: "status", Name: "Status", Type: domain.ColTypeSelect, Options: []string{"Todo", "Doing", "Done"}},
			{ID: "points", Name: "Points", Type: domain.ColTypeNumber},
		},
	}
	in := []*domain.DatabaseRow{
		row("A", map[string]domain.FieldValue{"title": domain.TextValue("A"), "status": domain.TextValue("Todo"), "points": domain.NumberValue(5)}),
		row("B", map[string]domain.FieldValue{"title": domain.TextValue("B"), "status": domain.TextValue("Done"), "points": domain.NumberValue(3)}),
	}

	f := query.Filter{Conditions: []domain.FilterCondition{{Column: "status", Operator: domain.OpIs, Value: "Done"}}, Logic: domain.LogicAnd}
	if diff := cmp.Diff([]string{"B"}, ids(f.Apply(in, s))); diff != "" {
		t.Errorf("filter (-want +got):\n%s", diff)
	}
	sorted := query.Sort{Rules: []domain.SortRule{{Column: "points", Direction: domain.SortDesc}}}.Apply(in, s)
	if diff := cmp.Diff([]string{"A", "B"}, ids(sorted)); diff != "" {
		t.Errorf("sort (-want +got):\n%s", diff)
	}
}

func TestFilter_EmptyOperatorsAreComplements(t *testing.T) {
	s := schema()
	all := append(rows(), row("row-4", nil))
	checked := map[domain.ColumnType]bool{}
	for i := range s.Columns {
		col := &s.Columns[i]
		if !query.Supports(col.Type, domain.OpIsEmpty) || !query.Supports(col.Type, domain.OpIsNotEmpty) {
			continue
		}
		checked[col.Type] = true
		for _, r := range all {
			empty := query.Matches(r, domain.FilterCondition{Column: col.ID, Operator: domain.OpIsEmpty}, col)
			notEmpty := query.Matches(r, domain.FilterCondition{Column: col.ID, Operator: domain.OpIsNotEmpty}, col)
			if empty == notEmpty {
				t.Errorf("%s on %s: isEmpty = isNotEmpty = %v", col.ID, r.ID, empty)
			}
		}
	}
	for _, typ := range []domain.ColumnType{
		domain.ColTypeText, domain.ColTypeURL, domain.ColTypeNumber, domain.ColTypeDate,
		domain.ColTypeSelect, domain.ColTypeMultiSelect, domain.ColTypeRelation,
	} {
		if !checked[typ] {
			t.Errorf("%s should define both isEmpty and isNotEmpty", typ)
		}
	}
}

func TestApplyQuickFilters(t *testing.T) {
	got := query.ApplyQuickFilters(rows(), map[string]string{"name": "SHIP", "missing": "x", "status": " "}, schema())
	if diff := cmp.Diff([]string{"row-2"}, ids(got)); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
	got = query.ApplyQuickFilters(rows(), map[string]string{"tags": "api,ui"}, schema())
	if diff := cmp.Diff([]string{"row-2"}, ids(got)); diff != "" {
		t.Errorf("display form (-want +got):\n%s", diff)
	}
}

func TestOperators(t *testing.T) {
	if ops := query.Operators(domain.ColTypeCheckbox); len(ops) != 2 {
		t.Errorf("checkbox operators = %v", ops)
	}
	if ops := query.Operators(domain.ColTypeRollup); ops != nil {
		t.Errorf("rollup operators = %v, want none", ops)
	}
}

// ─────────────────────────────────────────────────────────────
// Sort
// ─────────────────────────────────────────────────────────────

func TestSort_ByType(t *testing.T) {
	tests := []struct {
		name  string
		rules []domain.SortRule
		want  []string
	}{
		{"number asc, non-numeric as 0", []domain.SortRule{{Column: "pts", Direction: domain.SortAsc}}, []string{"row-3", "row-1", "row-2"}},
		{"number desc", []domain.SortRule{{Column: "pts", Direction: domain.SortDesc}}, []string{"row-2", "row-1", "row-3"}},
		{"checkbox false first", []domain.SortRule{{Column: "done", Direction: domain.SortAsc}}, []string{"row-1", "row-3", "row-2"}},
		{"text lexicographic", []domain.SortRule{{Column: "name", Direction: domain.SortAsc}}, []string{"row-3", "row-2", "row-1"}},
		{"date lexicographic", []domain.SortRule{{Column: "due", Direction: domain.SortDesc}}, []string{"row-2", "row-1", "row-3"}},
		{"multiSelect by display form", []domain.SortRule{{Column: "tags", Direction: domain.SortAsc}}, []string{"row-3", "row-2", "row-1"}},
		{"missing column ties keep order", []domain.SortRule{{Column: "gone", Direction: domain.SortDesc}}, []string{"row-1", "row-2", "row-3"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := query.Sort{Rules: tt.rules}.Apply(rows(), schema())
			if diff := cmp.Diff(tt.want, ids(got)); diff != "" {
				t.Errorf("(-want +got):\n%s", diff)
			}
		})
	}
}

func TestSort_MultiLevelIsStable(t *testing.T) {
	s := schema()
	in := []*domain.DatabaseRow{
		row("a", map[string]domain.FieldValue{"status": domain.TextValue("b"), "pts": domain.NumberValue(1)}),
		row("b", map[string]domain.FieldValue{"status": domain.TextValue("a"), "pts": domain.NumberValue(1)}),
		row("c", map[string]domain.FieldValue{"status": domain.TextValue("a"), "pts": domain.NumberValue(2)}),
		row("d", map[string]domain.FieldValue{"status": domain.TextValue("a"), "pts": domain.NumberValue(1)}),
	}
	got := query.Sort{Rules: []domain.SortRule{
		{Column: "status", Direction: domain.SortAsc},
		{Column: "pts", Direction: domain.SortDesc},
	}}.Apply(in, s)
	if diff := cmp.Diff([]string{"c", "b", "d", "a"}, ids(got)); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
	if in[0].ID != "a" {
		t.Error("Apply must not reorder its input")
	}
}

func TestSort_Idempotent(t *testing.T) {
	rules := [][]domain.SortRule{
		{{Column: "pts", Direction: domain.SortAsc}},
		{{Column: "done", Direction: domain.SortDesc}},
		{{Column: "tags", Direction: domain.SortAsc}, {Column: "name", Direction: domain.SortDesc}},
	}
	for _, r := range rules {
		srt := query.Sort{Rules: r}
		once := srt.Apply(rows(), schema())
		twice := srt.Apply(once, schema())
		if diff := cmp.Diff(ids(once), ids(twice)); diff != "" {
			t.Errorf("%v: resorting changed order (-once +twice):\n%s", r, diff)
		}
	}
}

func TestSort_LegacyOnlyWithoutRules(t *testing.T) {
	legacy := &domain.SortRule{Column: "pts", Direction: domain.SortDesc}
	got := query.Sort{Legacy: legacy}.Apply(rows(), schema())
	if diff := cmp.Diff([]string{"row-2", "row-1", "row-3"}, ids(got)); diff != "" {
		t.Errorf("legacy (-want +got):\n%s", diff)
	}
	got = query.Sort{Rules: []domain.SortRule{{Column: "name", Direction: domain.SortAsc}}, Legacy: legacy}.Apply(rows(), schema())
	if diff := cmp.Diff([]string{"row-3", "row-2", "row-1"}, ids(got)); diff != "" {
		t.Errorf("rules win (-want +got):\n%s", diff)
	}
}

func TestToggleLegacy(t *testing.T) {
	first := query.ToggleLegacy(nil, "pts")
	if *first != (domain.SortRule{Column: "pts", Direction: domain.SortAsc}) {
		t.Fatalf("first click = %+v", *first)
	}
	second := query.ToggleLegacy(first, "pts")
	if second.Direction != domain.SortDesc {
		t.Errorf("same column should flip to desc, got %+v", *second)
	}
	third := query.ToggleLegacy(second, "pts")
	if third.Direction != domain.SortAsc {
		t.Errorf("same column should flip back to asc, got %+v", *third)
	}
	other := query.ToggleLegacy(second, "name")
	if *other != (domain.SortRule{Column: "name", Direction: domain.SortAsc}) {
		t.Errorf("new column should reset to asc, got %+v", *other)
	}
}
