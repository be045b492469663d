package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"notedb/internal/domain"
)

// ─────────────────────────────────────────────────────────────
// Database Service: the row store every caller goes through
// ─────────────────────────────────────────────────────────────

// DatabaseService wraps a backend RowStore. It logs each write and emits
// db:* events so open sessions and the rollup cache learn about changes
// made elsewhere, e.g. by an import job.
type DatabaseService struct {
	store   domain.RowStore
	emitter EventEmitter
	log     *zap.SugaredLogger
}

var _ domain.RowStore = (*DatabaseService)(nil)

// NewDatabaseService creates a DatabaseService. emitter and log may be nil.
func NewDatabaseService(store domain.RowStore, emitter EventEmitter, log *zap.SugaredLogger) *DatabaseService {
	if emitter == nil {
		emitter = Emitters(nil)
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &DatabaseService{store: store, emitter: emitter, log: log.Named("databases")}
}

// Backend returns the wrapped store.
func (s *DatabaseService) Backend() domain.RowStore { return s.store }

// ── Databases ──────────────────────────────────────────────

func (s *DatabaseService) ListDatabases(ctx context.Context) ([]domain.DatabaseInfo, error) {
	return s.store.ListDatabases(ctx)
}

func (s *DatabaseService) CreateDatabase(ctx context.Context, name string, columns []domain.ColumnDef) (*domain.DatabaseInfo, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.New("create database: name is required")
	}
	info, err := s.store.CreateDatabase(ctx, name, columns)
	if err != nil {
		return nil, fmt.Errorf("create database: %w", err)
	}
	s.log.Infow("database created", "id", info.ID, "name", info.Name, "columns", len(columns))
	s.emitter.Emit(ctx, EventDatabaseCreated, DatabaseEvent{DatabaseID: info.ID})
	return info, nil
}

func (s *DatabaseService) GetDatabase(ctx context.Context, id string) (*domain.Database, error) {
	return s.store.GetDatabase(ctx, id)
}

func (s *DatabaseService) DeleteDatabase(ctx context.Context, id string) error {
	if err := s.store.DeleteDatabase(ctx, id); err != nil {
		return fmt.Errorf("delete database: %w", err)
	}
	s.log.Infow("database deleted", "id", id)
	s.emitter.Emit(ctx, EventDatabaseDeleted, DatabaseEvent{DatabaseID: id})
	return nil
}

// ── Rows ───────────────────────────────────────────────────

func (s *DatabaseService) CreateRow(ctx context.Context, dbID string, fields map[string]domain.FieldValue, body *string) (*domain.DatabaseRow, error) {
	row, err := s.store.CreateRow(ctx, dbID, fields, body)
	if err != nil {
		return nil, fmt.Errorf("create row: %w", err)
	}
	s.log.Debugw("row created", "db", dbID, "row", row.ID)
	s.emitter.Emit(ctx, EventDBUpdated, DatabaseEvent{DatabaseID: dbID, RowID: row.ID})
	return row, nil
}

func (s *DatabaseService) UpdateRow(ctx context.Context, dbID, rowID string, partialFields map[string]domain.FieldValue, body *string) (*domain.DatabaseRow, error) {
	row, err := s.store.UpdateRow(ctx, dbID, rowID, partialFields, body)
	if err != nil {
		return nil, fmt.Errorf("update row: %w", err)
	}
	s.log.Debugw("row updated", "db", dbID, "row", rowID, "fields", len(partialFields), "body", body != nil)
	s.emitter.Emit(ctx, EventDBUpdated, DatabaseEvent{DatabaseID: dbID, RowID: rowID})
	return row, nil
}

func (s *DatabaseService) DeleteRow(ctx context.Context, dbID, rowID string) error {
	if err := s.store.DeleteRow(ctx, dbID, rowID); err != nil {
		return fmt.Errorf("delete row: %w", err)
	}
	s.log.Debugw("row deleted", "db", dbID, "row", rowID)
	s.emitter.Emit(ctx, EventDBUpdated, DatabaseEvent{DatabaseID: dbID, RowID: rowID})
	return nil
}

// ── Schema ─────────────────────────────────────────────────

func (s *DatabaseService) AddColumn(ctx context.Context, dbID string, col domain.ColumnDef) (*domain.DatabaseSchema, error) {
	col.Name = strings.TrimSpace(col.Name)
	schema, err := s.store.AddColumn(ctx, dbID, col)
	if err != nil {
		return nil, fmt.Errorf("add column: %w", err)
	}
	s.schemaChanged(ctx, dbID, "column added", "name", col.Name, "type", col.Type)
	return schema, nil
}

func (s *DatabaseService) RemoveColumn(ctx context.Context, dbID, columnID string) (*domain.DatabaseSchema, error) {
	schema, err := s.store.RemoveColumn(ctx, dbID, columnID)
	if err != nil {
		return nil, fmt.Errorf("remove column: %w", err)
	}
	s.schemaChanged(ctx, dbID, "column removed", "column", columnID)
	return schema, nil
}

func (s *DatabaseService) UpdateSchema(ctx context.Context, dbID string, schema *domain.DatabaseSchema) (*domain.DatabaseSchema, error) {
	updated, err := s.store.UpdateSchema(ctx, dbID, schema)
	if err != nil {
		return nil, fmt.Errorf("update schema: %w", err)
	}
	s.schemaChanged(ctx, dbID, "schema updated", "columns", len(updated.Columns), "views", len(updated.Views))
	return updated, nil
}

func (s *DatabaseService) schemaChanged(ctx context.Context, dbID, msg string, kv ...any) {
	s.log.Infow(msg, append([]any{"db", dbID}, kv...)...)
	s.emitter.Emit(ctx, EventSchemaUpdated, DatabaseEvent{DatabaseID: dbID})
}

// ── Templates ──────────────────────────────────────────────

func (s *DatabaseService) ListRowTemplates(ctx context.Context, dbID string) ([]domain.RowTemplateInfo, error) {
	return s.store.ListRowTemplates(ctx, dbID)
}

func (s *DatabaseService) CreateRowFromTemplate(ctx context.Context, dbID, templateID string, variables map[string]string) (*domain.DatabaseRow, error) {
	row, err := s.store.CreateRowFromTemplate(ctx, dbID, templateID, variables)
	if err != nil {
		return nil, fmt.Errorf("create row from template: %w", err)
	}
	s.log.Debugw("row created from template", "db", dbID, "template", templateID, "row", row.ID)
	s.emitter.Emit(ctx, EventDBUpdated, DatabaseEvent{DatabaseID: dbID, RowID: row.ID})
	return row, nil
}
