package domain

import "context"

// RowStore is the persistence service behind every database view. It is
// the durable owner of schemas and rows; views hold provisional copies.
// Every call is fallible.
type RowStore interface {
	ListDatabases(ctx context.Context) ([]DatabaseInfo, error)
	CreateDatabase(ctx context.Context, name string, columns []ColumnDef) (*DatabaseInfo, error)
	GetDatabase(ctx context.Context, id string) (*Database, error)
	DeleteDatabase(ctx context.Context, id string) error

	// CreateRow stores a new row. Columns not present in fields get their
	// type default. body may be nil.
	CreateRow(ctx context.Context, dbID string, fields map[string]FieldValue, body *string) (*DatabaseRow, error)
	// UpdateRow merges partialFields into the row and returns the canonical
	// row. A nil body leaves the body unchanged.
	UpdateRow(ctx context.Context, dbID, rowID string, partialFields map[string]FieldValue, body *string) (*DatabaseRow, error)
	DeleteRow(ctx context.Context, dbID, rowID string) error

	AddColumn(ctx context.Context, dbID string, col ColumnDef) (*DatabaseSchema, error)
	RemoveColumn(ctx context.Context, dbID, columnID string) (*DatabaseSchema, error)
	// UpdateSchema replaces the schema (column order, names, views). It may
	// not drop existing columns; use RemoveColumn.
	UpdateSchema(ctx context.Context, dbID string, schema *DatabaseSchema) (*DatabaseSchema, error)

	ListRowTemplates(ctx context.Context, dbID string) ([]RowTemplateInfo, error)
	CreateRowFromTemplate(ctx context.Context, dbID, templateID string, variables map[string]string) (*DatabaseRow, error)
}
