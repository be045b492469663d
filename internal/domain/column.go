package domain

// ColumnType defines the data type of a database column.
type ColumnType string

const (
	ColTypeText        ColumnType = "text"
	ColTypeNumber      ColumnType = "number"
	ColTypeDate        ColumnType = "date"
	ColTypeSelect      ColumnType = "select"
	ColTypeMultiSelect ColumnType = "multiSelect"
	ColTypeCheckbox    ColumnType = "checkbox"
	ColTypeURL         ColumnType = "url"
	ColTypeRelation    ColumnType = "relation"
	ColTypeRollup      ColumnType = "rollup"
)

// ColumnTypes lists every supported column type in display order.
var ColumnTypes = []ColumnType{
	ColTypeText, ColTypeNumber, ColTypeDate, ColTypeSelect, ColTypeMultiSelect,
	ColTypeCheckbox, ColTypeURL, ColTypeRelation, ColTypeRollup,
}

// Valid reports whether t is one of the known column types.
func (t ColumnType) Valid() bool {
	for _, c := range ColumnTypes {
		if c == t {
			return true
		}
	}
	return false
}

// Stored reports whether values of this type are persisted on rows.
// Rollups are always computed.
func (t ColumnType) Stored() bool {
	return t.Valid() && t != ColTypeRollup
}

// IsList reports whether values of this type are ordered string lists.
func (t ColumnType) IsList() bool {
	return t == ColTypeMultiSelect || t == ColTypeRelation
}

// AggregateFunction names the reduction a rollup column applies.
type AggregateFunction string

const (
	AggCount          AggregateFunction = "count"
	AggSum            AggregateFunction = "sum"
	AggAverage        AggregateFunction = "average"
	AggMin            AggregateFunction = "min"
	AggMax            AggregateFunction = "max"
	AggPercentChecked AggregateFunction = "percentChecked"
)

// Valid reports whether f is a known aggregate function.
func (f AggregateFunction) Valid() bool {
	switch f {
	case AggCount, AggSum, AggAverage, AggMin, AggMax, AggPercentChecked:
		return true
	}
	return false
}

// ColumnDef describes one column of a database schema.
// ID is immutable once created; Name is the mutable display label.
type ColumnDef struct {
	ID      string     `json:"id"`
	Name    string     `json:"name"`
	Type    ColumnType `json:"type"`
	Options []string   `json:"options,omitempty"` // select / multiSelect

	// Target is the database id a relation column points at.
	Target string `json:"target,omitempty"`

	// Rollup configuration.
	RelationColumnID  string            `json:"relationColumnId,omitempty"`
	TargetColumnID    string            `json:"targetColumnId,omitempty"`
	AggregateFunction AggregateFunction `json:"aggregateFunction,omitempty"`
}

// HasOption reports whether v is one of the declared select options.
func (c *ColumnDef) HasOption(v string) bool {
	for _, o := range c.Options {
		if o == v {
			return true
		}
	}
	return false
}
