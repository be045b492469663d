package etl

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"notedb/internal/domain"
)

// ── Destination ────────────────────────────────────────────
// A Destination writes records into a target database.

// SyncMode determines how records are written to the destination.
type SyncMode string

const (
	SyncReplace SyncMode = "replace" // delete all existing rows, insert fresh
	SyncAppend  SyncMode = "append"  // add rows without deleting existing
)

// Destination writes records to a target database and returns the number
// of rows written.
type Destination interface {
	Write(ctx context.Context, target string, schema *Schema, records []Record, mode SyncMode) (int, error)
}

// ── RowStore Destination ───────────────────────────────────

// RowStoreWriter implements Destination on top of a domain.RowStore. Target
// is a database id or name; a missing target is created when CreateMissing
// is set.
type RowStoreWriter struct {
	Store         domain.RowStore
	CreateMissing bool
}

func (w *RowStoreWriter) Write(ctx context.Context, target string, schema *Schema, records []Record, mode SyncMode) (int, error) {
	db, err := w.resolveTarget(ctx, target, schema)
	if err != nil {
		return 0, fmt.Errorf("resolve target: %w", err)
	}

	if mode == SyncReplace {
		for _, r := range db.Rows {
			if err := w.Store.DeleteRow(ctx, db.ID, r.ID); err != nil {
				return 0, fmt.Errorf("clear target: %w", err)
			}
		}
	}

	dbSchema, err := w.ensureColumns(ctx, db, schema)
	if err != nil {
		return 0, fmt.Errorf("ensure columns: %w", err)
	}

	written := 0
	for i, rec := range records {
		if err := ctx.Err(); err != nil {
			return written, err
		}
		fields := make(map[string]domain.FieldValue, len(rec.Data))
		for name, v := range rec.Data {
			col, ok := dbSchema.ColumnByName(name)
			if !ok || !col.Type.Stored() {
				continue
			}
			fields[col.ID] = domain.DecodeValue(v, col.Type)
		}
		if _, err := w.Store.CreateRow(ctx, db.ID, fields, nil); err != nil {
			return written, fmt.Errorf("create row %d: %w", i, err)
		}
		written++
	}
	return written, nil
}

func (w *RowStoreWriter) resolveTarget(ctx context.Context, target string, schema *Schema) (*domain.Database, error) {
	db, err := w.Store.GetDatabase(ctx, target)
	if err == nil {
		return db, nil
	}
	if !errors.Is(err, domain.ErrDatabaseNotFound) {
		return nil, err
	}

	infos, err := w.Store.ListDatabases(ctx)
	if err != nil {
		return nil, err
	}
	for _, info := range infos {
		if strings.EqualFold(info.Name, target) {
			return w.Store.GetDatabase(ctx, info.ID)
		}
	}
	if !w.CreateMissing {
		return nil, fmt.Errorf("database %q: %w", target, domain.ErrDatabaseNotFound)
	}

	cols := make([]domain.ColumnDef, 0, len(schema.Fields))
	for _, f := range schema.Fields {
		cols = append(cols, domain.ColumnDef{Name: f.Name, Type: f.ColumnType()})
	}
	info, err := w.Store.CreateDatabase(ctx, target, cols)
	if err != nil {
		return nil, err
	}
	return w.Store.GetDatabase(ctx, info.ID)
}

// ensureColumns adds a column for every schema field without a same-named
// column. Existing columns keep their ids and types.
func (w *RowStoreWriter) ensureColumns(ctx context.Context, db *domain.Database, schema *Schema) (*domain.DatabaseSchema, error) {
	current := db.Schema
	for _, f := range schema.Fields {
		if _, ok := current.ColumnByName(f.Name); ok {
			continue
		}
		updated, err := w.Store.AddColumn(ctx, db.ID, domain.ColumnDef{Name: f.Name, Type: f.ColumnType()})
		if err != nil {
			return nil, fmt.Errorf("add column %q: %w", f.Name, err)
		}
		current = updated
	}
	return current, nil
}
