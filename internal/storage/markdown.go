package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/natefinch/atomic"

	"notedb/internal/domain"
	"notedb/internal/template"
)

const (
	schemaFile = "schema.json"
	rowExt     = ".md"
	dirPerms   = 0o755
	filePerms  = 0o644
)

// MarkdownStore implements domain.RowStore on plain files: one directory per
// database holding schema.json and one markdown file per row, named after the
// row id, with the fields in YAML frontmatter and the body below it.
type MarkdownStore struct {
	root string
	mu   sync.Mutex
}

// NewMarkdownStore creates the root directory if needed.
func NewMarkdownStore(root string) (*MarkdownStore, error) {
	if err := os.MkdirAll(root, dirPerms); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}
	return &MarkdownStore{root: root}, nil
}

var _ domain.RowStore = (*MarkdownStore)(nil)

// Root returns the data directory.
func (s *MarkdownStore) Root() string { return s.root }

func (s *MarkdownStore) ListDatabases(ctx context.Context) ([]domain.DatabaseInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("list databases: %w", err)
	}
	var out []domain.DatabaseInfo
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !e.IsDir() {
			continue
		}
		schema, err := s.readSchema(e.Name())
		if errors.Is(err, domain.ErrDatabaseNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		ids, err := s.rowIDs(e.Name())
		if err != nil {
			return nil, err
		}
		out = append(out, schema.Summary(e.Name(), len(ids)))
	}
	slices.SortFunc(out, func(a, b domain.DatabaseInfo) int {
		if c := strings.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name)); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out, nil
}

func (s *MarkdownStore) CreateDatabase(_ context.Context, name string, columns []domain.ColumnDef) (*domain.DatabaseInfo, error) {
	schema, err := newSchema(name, columns)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id := newDatabaseID()
	if err := os.MkdirAll(s.dbDir(id), dirPerms); err != nil {
		return nil, fmt.Errorf("create database: %w", err)
	}
	if err := s.writeSchema(id, schema); err != nil {
		return nil, err
	}
	info := schema.Summary(id, 0)
	return &info, nil
}

func (s *MarkdownStore) GetDatabase(ctx context.Context, id string) (*domain.Database, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	schema, err := s.readSchema(id)
	if err != nil {
		return nil, err
	}
	ids, err := s.rowIDs(id)
	if err != nil {
		return nil, err
	}
	db := &domain.Database{ID: id, Schema: schema, Rows: make([]*domain.DatabaseRow, 0, len(ids))}
	for _, rowID := range ids {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		row, err := s.readRow(schema, id, rowID)
		if err != nil {
			return nil, err
		}
		db.Rows = append(db.Rows, row)
	}
	return db, nil
}

func (s *MarkdownStore) DeleteDatabase(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.readSchema(id); err != nil {
		return err
	}
	if err := os.RemoveAll(s.dbDir(id)); err != nil {
		return fmt.Errorf("delete database: %w", err)
	}
	return nil
}

func (s *MarkdownStore) CreateRow(_ context.Context, dbID string, fields map[string]domain.FieldValue, body *string) (*domain.DatabaseRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createRowLocked(dbID, fields, body)
}

func (s *MarkdownStore) createRowLocked(dbID string, fields map[string]domain.FieldValue, body *string) (*domain.DatabaseRow, error) {
	schema, err := s.readSchema(dbID)
	if err != nil {
		return nil, err
	}

	// Skip counter values whose file already exists (hand-made files).
	var rowID string
	for {
		rowID = schema.AllocRowID()
		if _, err := os.Stat(s.rowPath(dbID, rowID)); errors.Is(err, fs.ErrNotExist) {
			break
		}
	}

	row := &domain.DatabaseRow{ID: rowID, Fields: domain.NewRowFields(schema, fields)}
	if body != nil {
		row.Body = *body
	}
	if err := s.writeSchema(dbID, schema); err != nil {
		return nil, err
	}
	if err := s.writeRow(dbID, row); err != nil {
		return nil, err
	}
	return s.readRow(schema, dbID, rowID)
}

func (s *MarkdownStore) UpdateRow(_ context.Context, dbID, rowID string, partial map[string]domain.FieldValue, body *string) (*domain.DatabaseRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	schema, err := s.readSchema(dbID)
	if err != nil {
		return nil, err
	}
	row, err := s.readRow(schema, dbID, rowID)
	if err != nil {
		return nil, err
	}
	domain.MergeFields(schema, row.Fields, partial)
	if body != nil {
		row.Body = *body
	}
	if err := s.writeRow(dbID, row); err != nil {
		return nil, err
	}
	return s.readRow(schema, dbID, rowID)
}

func (s *MarkdownStore) DeleteRow(_ context.Context, dbID, rowID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.readSchema(dbID); err != nil {
		return err
	}
	err := os.Remove(s.rowPath(dbID, rowID))
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("row %s: %w", rowID, domain.ErrRowNotFound)
	}
	return err
}

func (s *MarkdownStore) AddColumn(_ context.Context, dbID string, col domain.ColumnDef) (*domain.DatabaseSchema, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	schema, err := s.readSchema(dbID)
	if err != nil {
		return nil, err
	}
	if err := appendColumn(schema, col); err != nil {
		return nil, err
	}
	if err := s.writeSchema(dbID, schema); err != nil {
		return nil, err
	}
	added := schema.Columns[len(schema.Columns)-1]
	if added.Type.Stored() {
		def := domain.DefaultValue(added.Type)
		err = s.rewriteRows(schema, dbID, func(r *domain.DatabaseRow) bool {
			if _, ok := r.Fields[added.ID]; ok {
				return false
			}
			r.Fields[added.ID] = def
			return true
		})
	}
	return schema, err
}

func (s *MarkdownStore) RemoveColumn(_ context.Context, dbID, columnID string) (*domain.DatabaseSchema, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	schema, err := s.readSchema(dbID)
	if err != nil {
		return nil, err
	}
	if !schema.RemoveColumn(columnID) {
		return nil, fmt.Errorf("column %s: %w", columnID, domain.ErrColumnNotFound)
	}
	if err := s.writeSchema(dbID, schema); err != nil {
		return nil, err
	}
	err = s.rewriteRows(schema, dbID, func(r *domain.DatabaseRow) bool {
		if _, ok := r.Fields[columnID]; !ok {
			return false
		}
		delete(r.Fields, columnID)
		return true
	})
	return schema, err
}

func (s *MarkdownStore) UpdateSchema(_ context.Context, dbID string, updated *domain.DatabaseSchema) (*domain.DatabaseSchema, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.readSchema(dbID)
	if err != nil {
		return nil, err
	}
	next, err := reconcileSchema(current, updated)
	if err != nil {
		return nil, err
	}
	if err := s.writeSchema(dbID, next); err != nil {
		return nil, err
	}
	return next, nil
}

func (s *MarkdownStore) ListRowTemplates(_ context.Context, dbID string) ([]domain.RowTemplateInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	schema, err := s.readSchema(dbID)
	if err != nil {
		return nil, err
	}
	return template.List(schema), nil
}

func (s *MarkdownStore) CreateRowFromTemplate(_ context.Context, dbID, templateID string, vars map[string]string) (*domain.DatabaseRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	schema, err := s.readSchema(dbID)
	if err != nil {
		return nil, err
	}
	exp, err := expandTemplate(schema, templateID, vars)
	if err != nil {
		return nil, err
	}
	return s.createRowLocked(dbID, exp.Fields, &exp.Body)
}

// ── files ──────────────────────────────────────────────────

func (s *MarkdownStore) dbDir(id string) string {
	return filepath.Join(s.root, filepath.Base(id))
}

func (s *MarkdownStore) rowPath(dbID, rowID string) string {
	return filepath.Join(s.dbDir(dbID), filepath.Base(rowID)+rowExt)
}

func (s *MarkdownStore) readSchema(id string) (*domain.DatabaseSchema, error) {
	data, err := os.ReadFile(filepath.Join(s.dbDir(id), schemaFile))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("database %s: %w", id, domain.ErrDatabaseNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read schema: %w", err)
	}
	schema := &domain.DatabaseSchema{}
	if err := json.Unmarshal(data, schema); err != nil {
		return nil, fmt.Errorf("decode schema %s: %w", id, err)
	}
	return schema, nil
}

func (s *MarkdownStore) writeSchema(id string, schema *domain.DatabaseSchema) error {
	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	if err := atomic.WriteFile(filepath.Join(s.dbDir(id), schemaFile), bytes.NewReader(data)); err != nil {
		return fmt.Errorf("write schema: %w", err)
	}
	return nil
}

// rowIDs lists the row files of a database in creation order.
func (s *MarkdownStore) rowIDs(dbID string) ([]string, error) {
	entries, err := os.ReadDir(s.dbDir(dbID))
	if err != nil {
		return nil, fmt.Errorf("list rows: %w", err)
	}
	var ids []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), rowExt) {
			continue
		}
		ids = append(ids, strings.TrimSuffix(e.Name(), rowExt))
	}
	slices.SortFunc(ids, compareRowIDs)
	return ids, nil
}

// compareRowIDs orders "row-N" ids numerically and anything else by name
// after them.
func compareRowIDs(a, b string) int {
	na, okA := rowNumber(a)
	nb, okB := rowNumber(b)
	switch {
	case okA && okB:
		return na - nb
	case okA:
		return -1
	case okB:
		return 1
	}
	return strings.Compare(a, b)
}

func rowNumber(id string) (int, bool) {
	rest, ok := strings.CutPrefix(id, "row-")
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(rest)
	return n, err == nil
}

func (s *MarkdownStore) readRow(schema *domain.DatabaseSchema, dbID, rowID string) (*domain.DatabaseRow, error) {
	path := s.rowPath(dbID, rowID)
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("row %s: %w", rowID, domain.ErrRowNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read row: %w", err)
	}
	raw, body, err := parseRowFile(data)
	if err != nil {
		return nil, fmt.Errorf("row %s: %w", rowID, err)
	}
	row := &domain.DatabaseRow{ID: rowID, Fields: decodeFields(schema, raw), Body: body}
	if info, err := os.Stat(path); err == nil {
		row.Modified = info.ModTime()
	}
	return row, nil
}

func (s *MarkdownStore) writeRow(dbID string, row *domain.DatabaseRow) error {
	data, err := formatRowFile(encodeFields(row.Fields), row.Body)
	if err != nil {
		return err
	}
	path := s.rowPath(dbID, row.ID)
	if err := atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("write row %s: %w", row.ID, err)
	}
	// atomic.WriteFile doesn't set permissions for new files
	if err := os.Chmod(path, filePerms); err != nil {
		return fmt.Errorf("set row permissions: %w", err)
	}
	return nil
}

// rewriteRows applies edit to every row and writes back the rows it changed.
func (s *MarkdownStore) rewriteRows(schema *domain.DatabaseSchema, dbID string, edit func(*domain.DatabaseRow) bool) error {
	ids, err := s.rowIDs(dbID)
	if err != nil {
		return err
	}
	for _, id := range ids {
		row, err := s.readRow(schema, dbID, id)
		if err != nil {
			return err
		}
		if row.Fields == nil {
			row.Fields = map[string]domain.FieldValue{}
		}
		if !edit(row) {
			continue
		}
		if err := s.writeRow(dbID, row); err != nil {
			return err
		}
	}
	return nil
}
