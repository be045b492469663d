package storage

import (
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"

	"notedb/internal/domain"
	"notedb/internal/template"
)

// Backend names accepted by config.
const (
	BackendSQLite   = "sqlite"
	BackendMarkdown = "markdown"
)

func newDatabaseID() string { return uuid.New().String() }

func newColumnID() string { return "col-" + strings.ReplaceAll(uuid.New().String(), "-", "")[:8] }

// newSchema builds the initial schema for a database from its columns.
func newSchema(name string, columns []domain.ColumnDef) (*domain.DatabaseSchema, error) {
	if strings.TrimSpace(name) == "" {
		name = "Untitled"
	}
	s := &domain.DatabaseSchema{Name: name, NextRowID: 1}
	for _, c := range columns {
		if err := appendColumn(s, c); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// appendColumn assigns a missing id, validates col and appends it.
func appendColumn(s *domain.DatabaseSchema, col domain.ColumnDef) error {
	if col.ID == "" {
		col.ID = newColumnID()
	}
	if col.Type == domain.ColTypeRollup && col.AggregateFunction == "" {
		col.AggregateFunction = domain.AggCount
	}
	if err := s.ValidateColumn(col); err != nil {
		return err
	}
	col.Options = slices.Clone(col.Options)
	s.Columns = append(s.Columns, col)
	return nil
}

// reconcileSchema accepts a caller-supplied schema replacement. The row
// counter never moves backwards and column ids must stay unique. Columns
// leave only through RemoveColumn, which also clears their row values.
func reconcileSchema(current, updated *domain.DatabaseSchema) (*domain.DatabaseSchema, error) {
	if updated == nil {
		return nil, fmt.Errorf("schema is nil: %w", domain.ErrInvalidColumn)
	}
	out := updated.Clone()
	if strings.TrimSpace(out.Name) == "" {
		out.Name = current.Name
	}
	out.NextRowID = max(current.NextRowID, out.NextRowID, 1)

	seen := make(map[string]bool, len(out.Columns))
	for _, c := range out.Columns {
		if c.ID == "" || seen[c.ID] {
			return nil, fmt.Errorf("column id %q is empty or repeated: %w", c.ID, domain.ErrInvalidColumn)
		}
		if !c.Type.Valid() {
			return nil, fmt.Errorf("column %s has unknown type %q: %w", c.ID, c.Type, domain.ErrInvalidColumn)
		}
		seen[c.ID] = true
	}
	for _, c := range current.Columns {
		if !seen[c.ID] {
			return nil, fmt.Errorf("column %s missing from schema update, use RemoveColumn: %w", c.ID, domain.ErrInvalidColumn)
		}
	}
	return out, nil
}

// decodeFields shapes stored raw values by the current column types. Keys
// for unknown columns are kept as-is; rollups are never stored.
func decodeFields(schema *domain.DatabaseSchema, raw map[string]any) map[string]domain.FieldValue {
	out := make(map[string]domain.FieldValue, len(raw))
	for id, v := range raw {
		col, ok := schema.Column(id)
		switch {
		case !ok:
			out[id] = domain.FromRaw(v)
		case col.Type.Stored():
			out[id] = domain.DecodeValue(v, col.Type)
		}
	}
	return out
}

// encodeFields is the inverse of decodeFields.
func encodeFields(fields map[string]domain.FieldValue) map[string]any {
	out := make(map[string]any, len(fields))
	for id, v := range fields {
		if v.IsAbsent() {
			continue
		}
		out[id] = v.Raw()
	}
	return out
}

// expandTemplate resolves and applies a template for CreateRowFromTemplate.
func expandTemplate(schema *domain.DatabaseSchema, templateID string, vars map[string]string) (*template.Expansion, error) {
	tpl, ok := template.Lookup(schema, templateID)
	if !ok {
		return nil, fmt.Errorf("template %q: %w", templateID, domain.ErrTemplateNotFound)
	}
	return template.Expand(tpl, schema, vars)
}
