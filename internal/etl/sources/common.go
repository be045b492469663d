package sources

import (
	"encoding/json"
	"sort"

	"notedb/internal/etl"
)

// toRecords converts a decoded JSON array (or single object) into records.
func toRecords(raw any) []etl.Record {
	switch v := raw.(type) {
	case []any:
		records := make([]etl.Record, 0, len(v))
		for _, item := range v {
			if m, ok := item.(map[string]any); ok {
				records = append(records, etl.Record{Data: flattenMap(m)})
			}
		}
		return records
	case map[string]any:
		return []etl.Record{{Data: flattenMap(v)}}
	default:
		return nil
	}
}

// flattenMap keeps scalar values and serializes nested objects and arrays
// as JSON strings.
func flattenMap(m map[string]any) map[string]any {
	flat := make(map[string]any, len(m))
	for k, v := range m {
		switch v.(type) {
		case string, float64, bool, nil:
			flat[k] = v
		default:
			b, _ := json.Marshal(v)
			flat[k] = string(b)
		}
	}
	return flat
}

// inferSchema infers a schema from records, fields ordered by name. A field
// is typed by its first non-nil value.
func inferSchema(records []etl.Record) *etl.Schema {
	types := make(map[string]string)
	for _, rec := range records {
		for k, v := range rec.Data {
			if t, seen := types[k]; !seen || (t == "" && v != nil) {
				types[k] = inferType(v)
			}
		}
	}

	names := make([]string, 0, len(types))
	for name := range types {
		names = append(names, name)
	}
	sort.Strings(names)

	schema := &etl.Schema{Fields: make([]etl.Field, 0, len(names))}
	for _, name := range names {
		t := types[name]
		if t == "" {
			t = etl.FieldText
		}
		schema.Fields = append(schema.Fields, etl.Field{Name: name, Type: t})
	}
	return schema
}

// inferType returns "" for nil so a later value can decide.
func inferType(v any) string {
	switch v.(type) {
	case nil:
		return ""
	case float64, float32, int, int64:
		return etl.FieldNumber
	case bool:
		return etl.FieldBoolean
	default:
		return etl.FieldText
	}
}
