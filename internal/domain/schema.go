package domain

import (
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"
	"time"
)

// ViewKind selects how a view projects the row set.
type ViewKind string

const (
	ViewTable    ViewKind = "table"
	ViewBoard    ViewKind = "board"
	ViewCalendar ViewKind = "calendar"
)

// Valid reports whether k is a known view kind.
func (k ViewKind) Valid() bool {
	return k == ViewTable || k == ViewBoard || k == ViewCalendar
}

// FilterLogic combines a set of filter conditions.
type FilterLogic string

const (
	LogicAnd FilterLogic = "and"
	LogicOr  FilterLogic = "or"
)

// Operator is one of the fixed filter operators.
type Operator string

const (
	OpContains    Operator = "contains"
	OpNotContains Operator = "notContains"
	OpEquals      Operator = "equals"
	OpNotEquals   Operator = "notEquals"
	OpIsEmpty     Operator = "isEmpty"
	OpIsNotEmpty  Operator = "isNotEmpty"
	OpGT          Operator = "gt"
	OpLT          Operator = "lt"
	OpGTE         Operator = "gte"
	OpLTE         Operator = "lte"
	OpBefore      Operator = "before"
	OpAfter       Operator = "after"
	OpIs          Operator = "is"
	OpIsNot       Operator = "isNot"
)

// FilterCondition is a single predicate on one column.
type FilterCondition struct {
	Column   string   `json:"column"`
	Operator Operator `json:"operator"`
	Value    string   `json:"value"`
}

// SortDirection orders a sort rule.
type SortDirection string

const (
	SortAsc  SortDirection = "asc"
	SortDesc SortDirection = "desc"
)

// SortRule orders rows by one column.
type SortRule struct {
	Column    string        `json:"column"`
	Direction SortDirection `json:"direction"`
}

// ViewDef is the persisted configuration of one view over a database.
type ViewDef struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Kind        ViewKind          `json:"kind"`
	GroupBy     string            `json:"groupBy,omitempty"`
	DateColumn  string            `json:"dateColumn,omitempty"`
	Filters     []FilterCondition `json:"filters,omitempty"`
	FilterLogic FilterLogic       `json:"filterLogic,omitempty"`
	Sorts       []SortRule        `json:"sorts,omitempty"`

	// LegacySort is the single-column header sort used by views saved
	// before multi-level sorting existed. Ignored when Sorts is non-empty.
	LegacySort *SortRule `json:"legacySort,omitempty"`

	// QuickFilters maps column id to a substring filter (table view).
	QuickFilters  map[string]string `json:"quickFilters,omitempty"`
	HiddenColumns []string          `json:"hiddenColumns,omitempty"`
}

// RowTemplate is a named recipe for new rows.
type RowTemplate struct {
	Name         string                `json:"name"`
	TitlePattern string                `json:"titlePattern,omitempty"`
	Fields       map[string]FieldValue `json:"fields,omitempty"`
	Body         string                `json:"body,omitempty"`
}

// RowTemplateInfo summarizes a template for pickers.
type RowTemplateInfo struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	NeedsTitle bool   `json:"needsTitle"`
}

// DatabaseSchema holds the typed columns, views and templates of one database.
type DatabaseSchema struct {
	Name      string                 `json:"name"`
	Columns   []ColumnDef            `json:"columns"`
	Views     []ViewDef              `json:"views,omitempty"`
	Templates map[string]RowTemplate `json:"templates,omitempty"`
	NextRowID int                    `json:"nextRowId"`
}

// Column returns the column with the given id.
func (s *DatabaseSchema) Column(id string) (*ColumnDef, bool) {
	for i := range s.Columns {
		if s.Columns[i].ID == id {
			return &s.Columns[i], true
		}
	}
	return nil, false
}

// ColumnByName returns the first column whose name matches case-insensitively.
func (s *DatabaseSchema) ColumnByName(name string) (*ColumnDef, bool) {
	for i := range s.Columns {
		if strings.EqualFold(s.Columns[i].Name, name) {
			return &s.Columns[i], true
		}
	}
	return nil, false
}

// TitleColumn returns the first text column, which holds a row's title.
func (s *DatabaseSchema) TitleColumn() (*ColumnDef, bool) {
	for i := range s.Columns {
		if s.Columns[i].Type == ColTypeText {
			return &s.Columns[i], true
		}
	}
	return nil, false
}

// View returns the view with the given id.
func (s *DatabaseSchema) View(id string) (*ViewDef, bool) {
	for i := range s.Views {
		if s.Views[i].ID == id {
			return &s.Views[i], true
		}
	}
	return nil, false
}

// RollupSource resolves the relation column behind a rollup column. It
// returns false when the schema is inconsistent.
func (s *DatabaseSchema) RollupSource(col *ColumnDef) (*ColumnDef, bool) {
	if col == nil || col.Type != ColTypeRollup || col.RelationColumnID == "" {
		return nil, false
	}
	rel, ok := s.Column(col.RelationColumnID)
	if !ok || rel.Type != ColTypeRelation {
		return nil, false
	}
	return rel, true
}

// AllocRowID consumes the next row counter and returns the derived id.
func (s *DatabaseSchema) AllocRowID() string {
	if s.NextRowID < 1 {
		s.NextRowID = 1
	}
	id := RowIDFor(s.NextRowID)
	s.NextRowID++
	return id
}

// RemoveColumn drops a column and scrubs view configuration referencing it.
// NextRowID is untouched.
func (s *DatabaseSchema) RemoveColumn(id string) bool {
	idx := slices.IndexFunc(s.Columns, func(c ColumnDef) bool { return c.ID == id })
	if idx < 0 {
		return false
	}
	s.Columns = slices.Delete(s.Columns, idx, idx+1)
	for i := range s.Views {
		v := &s.Views[i]
		if v.GroupBy == id {
			v.GroupBy = ""
		}
		if v.DateColumn == id {
			v.DateColumn = ""
		}
		v.Filters = slices.DeleteFunc(v.Filters, func(f FilterCondition) bool { return f.Column == id })
		v.Sorts = slices.DeleteFunc(v.Sorts, func(r SortRule) bool { return r.Column == id })
		if v.LegacySort != nil && v.LegacySort.Column == id {
			v.LegacySort = nil
		}
		delete(v.QuickFilters, id)
	}
	return true
}

// Clone returns a deep copy of the schema.
func (s *DatabaseSchema) Clone() *DatabaseSchema {
	if s == nil {
		return nil
	}
	out := *s
	out.Columns = make([]ColumnDef, len(s.Columns))
	for i, c := range s.Columns {
		c.Options = slices.Clone(c.Options)
		out.Columns[i] = c
	}
	out.Views = make([]ViewDef, len(s.Views))
	for i, v := range s.Views {
		v.Filters = slices.Clone(v.Filters)
		v.Sorts = slices.Clone(v.Sorts)
		v.QuickFilters = maps.Clone(v.QuickFilters)
		v.HiddenColumns = slices.Clone(v.HiddenColumns)
		if v.LegacySort != nil {
			ls := *v.LegacySort
			v.LegacySort = &ls
		}
		out.Views[i] = v
	}
	if s.Templates != nil {
		out.Templates = make(map[string]RowTemplate, len(s.Templates))
		for k, t := range s.Templates {
			t.Fields = cloneFields(t.Fields)
			out.Templates[k] = t
		}
	}
	return &out
}

// RowIDFor derives the stable row id (and file stem) for a row counter.
func RowIDFor(n int) string {
	return "row-" + strconv.Itoa(n)
}

// DatabaseRow is one record of a database.
type DatabaseRow struct {
	ID       string                `json:"id"`
	Fields   map[string]FieldValue `json:"fields"`
	Body     string                `json:"body,omitempty"`
	Modified time.Time             `json:"modified"`
}

// Field returns the stored value for a column id, or the absent sentinel.
func (r *DatabaseRow) Field(columnID string) FieldValue {
	if r == nil || r.Fields == nil {
		return AbsentValue()
	}
	return r.Fields[columnID]
}

// Clone returns a deep copy of the row.
func (r *DatabaseRow) Clone() *DatabaseRow {
	out := *r
	out.Fields = cloneFields(r.Fields)
	return &out
}

func cloneFields(in map[string]FieldValue) map[string]FieldValue {
	if in == nil {
		return nil
	}
	out := make(map[string]FieldValue, len(in))
	for k, v := range in {
		out[k] = v.Clone()
	}
	return out
}

// NewRowFields builds the field map of a new row: every stored column gets
// its default, then the supplied values are coerced on top.
func NewRowFields(schema *DatabaseSchema, supplied map[string]FieldValue) map[string]FieldValue {
	fields := make(map[string]FieldValue, len(schema.Columns))
	for _, c := range schema.Columns {
		if c.Type.Stored() {
			fields[c.ID] = DefaultValue(c.Type)
		}
	}
	MergeFields(schema, fields, supplied)
	return fields
}

// MergeFields coerces partial values by column type and writes them into
// dst. Unknown columns and rollups are ignored.
func MergeFields(schema *DatabaseSchema, dst, partial map[string]FieldValue) {
	for id, v := range partial {
		col, ok := schema.Column(id)
		if !ok || !col.Type.Stored() {
			continue
		}
		dst[id] = CoerceValue(v, col.Type)
	}
}

// Database is a schema together with its rows.
type Database struct {
	ID     string          `json:"id"`
	Schema *DatabaseSchema `json:"schema"`
	Rows   []*DatabaseRow  `json:"rows"`
}

// Row returns the row with the given id.
func (d *Database) Row(id string) (*DatabaseRow, bool) {
	for _, r := range d.Rows {
		if r.ID == id {
			return r, true
		}
	}
	return nil, false
}

// DatabaseInfo summarizes a database for listings.
type DatabaseInfo struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	RowCount    int    `json:"rowCount"`
	ColumnCount int    `json:"columnCount"`
}

func (i DatabaseInfo) String() string {
	return fmt.Sprintf("%s (%s): %d rows, %d columns", i.Name, i.ID, i.RowCount, i.ColumnCount)
}

// ValidateColumn checks a new column against the schema it joins.
func (s *DatabaseSchema) ValidateColumn(col ColumnDef) error {
	switch {
	case col.ID == "":
		return fmt.Errorf("column id is empty: %w", ErrInvalidColumn)
	case strings.TrimSpace(col.Name) == "":
		return fmt.Errorf("column %s has no name: %w", col.ID, ErrInvalidColumn)
	case !col.Type.Valid():
		return fmt.Errorf("column %s has unknown type %q: %w", col.ID, col.Type, ErrInvalidColumn)
	}
	if _, dup := s.Column(col.ID); dup {
		return fmt.Errorf("column %s already exists: %w", col.ID, ErrInvalidColumn)
	}

	switch col.Type {
	case ColTypeRelation:
		if col.Target == "" {
			return fmt.Errorf("relation %s has no target database: %w", col.ID, ErrInvalidColumn)
		}
	case ColTypeRollup:
		if _, ok := s.RollupSource(&col); !ok {
			return fmt.Errorf("rollup %s must reference a relation column: %w", col.ID, ErrInvalidColumn)
		}
		if !col.AggregateFunction.Valid() {
			return fmt.Errorf("rollup %s has unknown function %q: %w", col.ID, col.AggregateFunction, ErrInvalidColumn)
		}
		if col.AggregateFunction != AggCount && col.TargetColumnID == "" {
			return fmt.Errorf("rollup %s needs a target column: %w", col.ID, ErrInvalidColumn)
		}
	}
	return nil
}

// Summary returns the listing entry for a database with rowCount rows.
func (s *DatabaseSchema) Summary(id string, rowCount int) DatabaseInfo {
	return DatabaseInfo{ID: id, Name: s.Name, RowCount: rowCount, ColumnCount: len(s.Columns)}
}
