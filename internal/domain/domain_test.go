package domain_test

import (
	"encoding/json"
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"

	"notedb/internal/domain"
)

// ─────────────────────────────────────────────────────────────
// Column type system
// ─────────────────────────────────────────────────────────────

func TestDefaultValue(t *testing.T) {
	tests := []struct {
		typ  domain.ColumnType
		want domain.FieldValue
	}{
		{domain.ColTypeText, domain.TextValue("")},
		{domain.ColTypeDate, domain.TextValue("")},
		{domain.ColTypeSelect, domain.TextValue("")},
		{domain.ColTypeURL, domain.TextValue("")},
		{domain.ColTypeNumber, domain.NumberValue(0)},
		{domain.ColTypeCheckbox, domain.BoolValue(false)},
		{domain.ColTypeMultiSelect, domain.ListValue()},
		{domain.ColTypeRelation, domain.ListValue()},
		{domain.ColTypeRollup, domain.AbsentValue()},
		{domain.ColumnType("bogus"), domain.AbsentValue()},
	}
	for _, tt := range tests {
		if got := domain.DefaultValue(tt.typ); !got.Equal(tt.want) {
			t.Errorf("DefaultValue(%s) = %#v, want %#v", tt.typ, got, tt.want)
		}
	}
}

func TestCoerceForDisplay(t *testing.T) {
	tests := []struct {
		name string
		v    domain.FieldValue
		typ  domain.ColumnType
		want string
	}{
		{"checkbox true", domain.BoolValue(true), domain.ColTypeCheckbox, "true"},
		{"checkbox false", domain.BoolValue(false), domain.ColTypeCheckbox, "false"},
		{"checkbox from text", domain.TextValue("yes"), domain.ColTypeCheckbox, "true"},
		{"multiSelect joins without space", domain.ListValue("a", "b"), domain.ColTypeMultiSelect, "a,b"},
		{"relation joins ids", domain.ListValue("row-1", "row-2"), domain.ColTypeRelation, "row-1,row-2"},
		{"integer number", domain.NumberValue(3), domain.ColTypeNumber, "3"},
		{"decimal number", domain.NumberValue(2.5), domain.ColTypeNumber, "2.5"},
		{"absent", domain.AbsentValue(), domain.ColTypeText, ""},
		{"absent checkbox", domain.AbsentValue(), domain.ColTypeCheckbox, ""},
		{"text", domain.TextValue("hi"), domain.ColTypeText, "hi"},
		{"unknown type", domain.TextValue("x"), domain.ColumnType("nope"), "x"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := domain.CoerceForDisplay(tt.v, tt.typ); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAsNumber(t *testing.T) {
	tests := []struct {
		v    domain.FieldValue
		want float64
	}{
		{domain.NumberValue(4), 4},
		{domain.TextValue(" 12.5 "), 12.5},
		{domain.TextValue("abc"), 0},
		{domain.TextValue("NaN"), 0},
		{domain.TextValue("inf"), 0},
		{domain.TextValue("-Infinity"), 0},
		{domain.NumberValue(math.Inf(1)), 0},
		{domain.BoolValue(true), 1},
		{domain.AbsentValue(), 0},
		{domain.ListValue("1"), 0},
	}
	for _, tt := range tests {
		if got := domain.AsNumber(tt.v); got != tt.want {
			t.Errorf("AsNumber(%#v) = %v, want %v", tt.v, got, tt.want)
		}
	}
}

func TestIsNumeric(t *testing.T) {
	tests := []struct {
		v    domain.FieldValue
		want bool
	}{
		{domain.NumberValue(0), true},
		{domain.TextValue(" -3.5 "), true},
		{domain.TextValue("1e3"), true},
		{domain.TextValue("NaN"), false},
		{domain.TextValue("Inf"), false},
		{domain.TextValue("abc"), false},
		{domain.NumberValue(math.NaN()), false},
		{domain.BoolValue(true), false},
		{domain.AbsentValue(), false},
	}
	for _, tt := range tests {
		if got := domain.IsNumeric(tt.v); got != tt.want {
			t.Errorf("IsNumeric(%#v) = %v, want %v", tt.v, got, tt.want)
		}
	}
}

func TestAsList(t *testing.T) {
	if diff := cmp.Diff([]string{"a", "b"}, domain.AsList(domain.TextValue("a, ,b"))); diff != "" {
		t.Errorf("text split (-want +got):\n%s", diff)
	}
	if got := domain.AsList(domain.TextValue("")); got != nil {
		t.Errorf("empty text = %v, want nil", got)
	}
	if got := domain.AsList(domain.AbsentValue()); got != nil {
		t.Errorf("absent = %v, want nil", got)
	}
}

func TestIsEmpty(t *testing.T) {
	empty := []domain.FieldValue{domain.AbsentValue(), domain.TextValue("  "), domain.ListValue()}
	for _, v := range empty {
		if !domain.IsEmpty(v) {
			t.Errorf("IsEmpty(%#v) = false", v)
		}
	}
	full := []domain.FieldValue{domain.NumberValue(0), domain.BoolValue(false), domain.TextValue("x"), domain.ListValue("a")}
	for _, v := range full {
		if domain.IsEmpty(v) {
			t.Errorf("IsEmpty(%#v) = true", v)
		}
	}
}

func TestDecodeValue(t *testing.T) {
	tests := []struct {
		name string
		raw  any
		typ  domain.ColumnType
		want domain.FieldValue
	}{
		{"number from string", "7", domain.ColTypeNumber, domain.NumberValue(7)},
		{"number from garbage", "seven", domain.ColTypeNumber, domain.NumberValue(0)},
		{"NaN is not a number", "NaN", domain.ColTypeNumber, domain.NumberValue(0)},
		{"inf is not a number", "inf", domain.ColTypeNumber, domain.NumberValue(0)},
		{"Infinity is not a number", "Infinity", domain.ColTypeNumber, domain.NumberValue(0)},
		{"raw NaN float", math.NaN(), domain.ColTypeNumber, domain.NumberValue(0)},
		{"raw NaN float in text column", math.NaN(), domain.ColTypeText, domain.TextValue("NaN")},
		{"blank number is absent", " ", domain.ColTypeNumber, domain.AbsentValue()},
		{"number from bool", true, domain.ColTypeNumber, domain.NumberValue(1)},
		{"text from number", float64(3), domain.ColTypeText, domain.TextValue("3")},
		{"checkbox from string", "true", domain.ColTypeCheckbox, domain.BoolValue(true)},
		{"multiSelect from []any", []any{"a", nil, "b"}, domain.ColTypeMultiSelect, domain.ListValue("a", "b")},
		{"relation from csv", "row-1,row-2", domain.ColTypeRelation, domain.ListValue("row-1", "row-2")},
		{"nil stays absent", nil, domain.ColTypeText, domain.AbsentValue()},
		{"rollup never stored", "5", domain.ColTypeRollup, domain.AbsentValue()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := domain.DecodeValue(tt.raw, tt.typ); !got.Equal(tt.want) {
				t.Errorf("got %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestFieldValue_JSON(t *testing.T) {
	fields := map[string]domain.FieldValue{
		"a": domain.TextValue("x"),
		"b": domain.NumberValue(1.5),
		"c": domain.BoolValue(true),
		"d": domain.ListValue("p", "q"),
		"e": domain.ListValue(),
	}
	data, err := json.Marshal(fields)
	if err != nil {
		t.Fatal(err)
	}
	want := `{"a":"x","b":1.5,"c":true,"d":["p","q"],"e":[]}`
	if string(data) != want {
		t.Errorf("marshal = %s, want %s", data, want)
	}

	var back map[string]domain.FieldValue
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatal(err)
	}
	for k, v := range fields {
		if !back[k].Equal(v) {
			t.Errorf("%s: got %#v, want %#v", k, back[k], v)
		}
	}
}

// ─────────────────────────────────────────────────────────────
// Schema
// ─────────────────────────────────────────────────────────────

func testSchema() *domain.DatabaseSchema {
	return &domain.DatabaseSchema{
		Name: "Projects",
		Columns: []domain.ColumnDef{
			{ID: "num", Name: "Estimate", Type: domain.ColTypeNumber},
			{ID: "title", Name: "Name", Type: domain.ColTypeText},
			{ID: "tasks", Name: "Tasks", Type: domain.ColTypeRelation, Target: "db-tasks"},
			{ID: "status", Name: "Status", Type: domain.ColTypeSelect, Options: []string{"a", "b"}},
		},
		Views: []domain.ViewDef{{
			ID:           "v1",
			Kind:         domain.ViewBoard,
			GroupBy:      "status",
			Filters:      []domain.FilterCondition{{Column: "status", Operator: domain.OpIs, Value: "a"}, {Column: "title", Operator: domain.OpContains, Value: "x"}},
			Sorts:        []domain.SortRule{{Column: "status", Direction: domain.SortAsc}},
			LegacySort:   &domain.SortRule{Column: "status", Direction: domain.SortDesc},
			QuickFilters: map[string]string{"status": "a", "title": "b"},
		}},
		NextRowID: 3,
	}
}

func TestSchema_TitleColumn(t *testing.T) {
	col, ok := testSchema().TitleColumn()
	if !ok || col.ID != "title" {
		t.Fatalf("TitleColumn = %v, %v; want the first text column", col, ok)
	}
	if _, ok := (&domain.DatabaseSchema{}).TitleColumn(); ok {
		t.Error("empty schema has no title column")
	}
}

func TestSchema_AllocRowID(t *testing.T) {
	s := testSchema()
	if id := s.AllocRowID(); id != "row-3" {
		t.Errorf("first id = %s", id)
	}
	if id := s.AllocRowID(); id != "row-4" {
		t.Errorf("second id = %s", id)
	}
	s.RemoveColumn("title")
	if s.NextRowID != 5 {
		t.Errorf("NextRowID = %d after RemoveColumn, want 5", s.NextRowID)
	}
}

func TestSchema_RemoveColumnScrubsViews(t *testing.T) {
	s := testSchema()
	if !s.RemoveColumn("status") {
		t.Fatal("RemoveColumn returned false")
	}
	v := s.Views[0]
	if v.GroupBy != "" || v.LegacySort != nil || len(v.Sorts) != 0 {
		t.Errorf("view still references removed column: %+v", v)
	}
	if diff := cmp.Diff([]domain.FilterCondition{{Column: "title", Operator: domain.OpContains, Value: "x"}}, v.Filters); diff != "" {
		t.Errorf("filters (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(map[string]string{"title": "b"}, v.QuickFilters); diff != "" {
		t.Errorf("quick filters (-want +got):\n%s", diff)
	}
	if s.RemoveColumn("status") {
		t.Error("removing twice should report false")
	}
}

func TestSchema_CloneIsDeep(t *testing.T) {
	s := testSchema()
	c := s.Clone()
	c.Columns[3].Options[0] = "changed"
	c.Views[0].QuickFilters["status"] = "changed"
	c.Views[0].LegacySort.Column = "changed"

	if s.Columns[3].Options[0] != "a" || s.Views[0].QuickFilters["status"] != "a" || s.Views[0].LegacySort.Column != "status" {
		t.Error("Clone shares state with the original")
	}
}

func TestSchema_ValidateColumn(t *testing.T) {
	s := testSchema()
	tests := []struct {
		name string
		col  domain.ColumnDef
		ok   bool
	}{
		{"valid text", domain.ColumnDef{ID: "n", Name: "Notes", Type: domain.ColTypeText}, true},
		{"empty id", domain.ColumnDef{Name: "X", Type: domain.ColTypeText}, false},
		{"blank name", domain.ColumnDef{ID: "x", Name: " ", Type: domain.ColTypeText}, false},
		{"unknown type", domain.ColumnDef{ID: "x", Name: "X", Type: "blob"}, false},
		{"duplicate id", domain.ColumnDef{ID: "title", Name: "X", Type: domain.ColTypeText}, false},
		{"relation without target", domain.ColumnDef{ID: "r", Name: "R", Type: domain.ColTypeRelation}, false},
		{"rollup count", domain.ColumnDef{ID: "r", Name: "R", Type: domain.ColTypeRollup, RelationColumnID: "tasks", AggregateFunction: domain.AggCount}, true},
		{"rollup sum needs target", domain.ColumnDef{ID: "r", Name: "R", Type: domain.ColTypeRollup, RelationColumnID: "tasks", AggregateFunction: domain.AggSum}, false},
		{"rollup over non-relation", domain.ColumnDef{ID: "r", Name: "R", Type: domain.ColTypeRollup, RelationColumnID: "title", AggregateFunction: domain.AggCount}, false},
		{"rollup bad function", domain.ColumnDef{ID: "r", Name: "R", Type: domain.ColTypeRollup, RelationColumnID: "tasks", AggregateFunction: "median", TargetColumnID: "x"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.ValidateColumn(tt.col)
			if tt.ok && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tt.ok && !errors.Is(err, domain.ErrInvalidColumn) {
				t.Fatalf("err = %v, want ErrInvalidColumn", err)
			}
		})
	}
}

func TestNewRowFields(t *testing.T) {
	s := testSchema()
	s.Columns = append(s.Columns, domain.ColumnDef{ID: "total", Name: "Total", Type: domain.ColTypeRollup, RelationColumnID: "tasks", AggregateFunction: domain.AggCount})

	fields := domain.NewRowFields(s, map[string]domain.FieldValue{
		"num":     domain.TextValue("4"),
		"unknown": domain.TextValue("dropped"),
		"total":   domain.NumberValue(9),
	})

	want := map[string]domain.FieldValue{
		"num":    domain.NumberValue(4),
		"title":  domain.TextValue(""),
		"tasks":  domain.ListValue(),
		"status": domain.TextValue(""),
	}
	if len(fields) != len(want) {
		t.Fatalf("fields = %#v", fields)
	}
	for k, v := range want {
		if !fields[k].Equal(v) {
			t.Errorf("%s = %#v, want %#v", k, fields[k], v)
		}
	}
}

func TestWrapAdapter(t *testing.T) {
	if domain.WrapAdapter("op", "db", nil) != nil {
		t.Fatal("nil error should stay nil")
	}
	err := domain.WrapAdapter("update row", "db-1", domain.ErrRowNotFound)
	var ae *domain.AdapterError
	if !errors.As(err, &ae) || ae.Op != "update row" {
		t.Fatalf("err = %v", err)
	}
	if !errors.Is(err, domain.ErrRowNotFound) {
		t.Error("AdapterError should unwrap to the cause")
	}
	if again := domain.WrapAdapter("other", "db-2", err); again != err {
		t.Error("an AdapterError should not be wrapped twice")
	}
	if err.Error() != "update row db-1: row not found" {
		t.Errorf("message = %q", err.Error())
	}
}
