// Package template expands named row templates into the fields and body of
// a new row.
package template

import (
	"fmt"
	"sort"
	"strings"

	"notedb/internal/domain"
)

// TitlePlaceholder is the only placeholder a title pattern may embed.
const TitlePlaceholder = "{{title}}"

// TitleVar is the variables key holding the caller-supplied title.
const TitleVar = "title"

// Expansion is the result of applying a template.
type Expansion struct {
	Fields map[string]domain.FieldValue
	Body   string

	// CursorLine is a body line index where an editor may place focus.
	// The engine does not interpret it.
	CursorLine int
}

// NeedsTitle reports whether applying t requires a caller-supplied title.
func NeedsTitle(t domain.RowTemplate) bool {
	return strings.Contains(t.TitlePattern, TitlePlaceholder)
}

// Expand applies t against schema. variables must contain TitleVar when the
// template's title pattern embeds the placeholder; the title is substituted
// verbatim.
func Expand(t domain.RowTemplate, schema *domain.DatabaseSchema, variables map[string]string) (*Expansion, error) {
	fields := make(map[string]domain.FieldValue, len(t.Fields)+1)
	for id, v := range t.Fields {
		fields[id] = v.Clone()
	}

	title := t.TitlePattern
	if NeedsTitle(t) {
		v, ok := variables[TitleVar]
		if !ok {
			return nil, fmt.Errorf("template %q: %w", t.Name, domain.ErrTitleRequired)
		}
		title = strings.ReplaceAll(t.TitlePattern, TitlePlaceholder, v)
	}
	if title != "" {
		col, ok := schema.TitleColumn()
		if !ok {
			return nil, fmt.Errorf("template %q: no text column for title: %w", t.Name, domain.ErrColumnNotFound)
		}
		fields[col.ID] = domain.TextValue(title)
	}

	return &Expansion{
		Fields:     fields,
		Body:       t.Body,
		CursorLine: lastLine(t.Body),
	}, nil
}

// Lookup finds a template by id (its map key) or, failing that, by name.
func Lookup(schema *domain.DatabaseSchema, id string) (domain.RowTemplate, bool) {
	if t, ok := schema.Templates[id]; ok {
		if t.Name == "" {
			t.Name = id
		}
		return t, true
	}
	for _, t := range schema.Templates {
		if strings.EqualFold(t.Name, id) {
			return t, true
		}
	}
	return domain.RowTemplate{}, false
}

// List summarizes the templates of a schema, ordered by id.
func List(schema *domain.DatabaseSchema) []domain.RowTemplateInfo {
	ids := make([]string, 0, len(schema.Templates))
	for id := range schema.Templates {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]domain.RowTemplateInfo, 0, len(ids))
	for _, id := range ids {
		t := schema.Templates[id]
		name := t.Name
		if name == "" {
			name = id
		}
		out = append(out, domain.RowTemplateInfo{ID: id, Name: name, NeedsTitle: NeedsTitle(t)})
	}
	return out
}

func lastLine(body string) int {
	if body == "" {
		return 0
	}
	return strings.Count(strings.TrimRight(body, "\n"), "\n")
}
