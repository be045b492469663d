package mcpserver

import (
	"encoding/json"
	"fmt"

	"notedb/internal/domain"
)

// parseJSONArg decodes an argument that may arrive as a JSON string or as
// an already-decoded value. It reports false when the argument is absent.
func parseJSONArg(args map[string]any, key string, target any) (bool, error) {
	raw, ok := args[key]
	if !ok || raw == nil {
		return false, nil
	}
	var data []byte
	switch v := raw.(type) {
	case string:
		if v == "" {
			return false, nil
		}
		data = []byte(v)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return false, fmt.Errorf("%s: %w", key, err)
		}
		data = b
	}
	if err := json.Unmarshal(data, target); err != nil {
		return false, fmt.Errorf("parse %s: %w", key, err)
	}
	return true, nil
}

// decodeFields maps an object keyed by column id or name to typed values.
// Rollup columns are rejected since they are never stored.
func decodeFields(schema *domain.DatabaseSchema, raw map[string]any) (map[string]domain.FieldValue, error) {
	out := make(map[string]domain.FieldValue, len(raw))
	for key, v := range raw {
		col, ok := schema.Column(key)
		if !ok {
			col, ok = schema.ColumnByName(key)
		}
		if !ok {
			return nil, fmt.Errorf("column %q: %w", key, domain.ErrColumnNotFound)
		}
		if !col.Type.Stored() {
			return nil, fmt.Errorf("column %q is computed: %w", key, domain.ErrInvalidColumn)
		}
		out[col.ID] = domain.DecodeValue(v, col.Type)
	}
	return out, nil
}

// resolveColumn accepts a column id or name.
func resolveColumn(schema *domain.DatabaseSchema, key string) (*domain.ColumnDef, error) {
	if col, ok := schema.Column(key); ok {
		return col, nil
	}
	if col, ok := schema.ColumnByName(key); ok {
		return col, nil
	}
	return nil, fmt.Errorf("column %q: %w", key, domain.ErrColumnNotFound)
}

// rowJSON renders a row with its fields keyed by column name.
type rowJSON struct {
	ID     string         `json:"id"`
	Fields map[string]any `json:"fields"`
	Body   string         `json:"body,omitempty"`
}

func namedRow(schema *domain.DatabaseSchema, row *domain.DatabaseRow) rowJSON {
	out := rowJSON{ID: row.ID, Body: row.Body, Fields: make(map[string]any, len(schema.Columns))}
	for _, col := range schema.Columns {
		if !col.Type.Stored() {
			continue
		}
		out.Fields[col.Name] = row.Field(col.ID).Raw()
	}
	return out
}
