package etl

import "notedb/internal/domain"

// ── Record ─────────────────────────────────────────────────
// Common intermediate data format.
// All sources emit Records; the destination turns them into rows.

// Field types reported by sources.
const (
	FieldText    = "text"
	FieldNumber  = "number"
	FieldBoolean = "boolean"
	FieldDate    = "date"
)

// Field describes a single column in a dataset.
type Field struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// ColumnType maps a source field type onto a database column type.
func (f Field) ColumnType() domain.ColumnType {
	switch f.Type {
	case FieldNumber:
		return domain.ColTypeNumber
	case FieldBoolean:
		return domain.ColTypeCheckbox
	case FieldDate:
		return domain.ColTypeDate
	default:
		return domain.ColTypeText
	}
}

// Schema describes the shape of records coming from a source.
type Schema struct {
	Fields []Field `json:"fields"`
}

// FieldNames returns an ordered list of field names.
func (s *Schema) FieldNames() []string {
	names := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		names[i] = f.Name
	}
	return names
}

// Field returns the field with the given name.
func (s *Schema) Field(name string) (Field, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Record is a single row of data flowing through the pipeline.
type Record struct {
	Data map[string]any `json:"data"`
}
