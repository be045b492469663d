package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"notedb/internal/domain"
	"notedb/internal/template"
)

// LocalDatabaseStore implements domain.RowStore using SQLite. The schema is
// kept as JSON on the databases table; each row's fields are a JSON object
// keyed by column id.
type LocalDatabaseStore struct {
	db  *DB
	now func() time.Time
}

// NewLocalDatabaseStore creates a new LocalDatabaseStore.
func NewLocalDatabaseStore(db *DB) *LocalDatabaseStore {
	return &LocalDatabaseStore{db: db, now: time.Now}
}

var _ domain.RowStore = (*LocalDatabaseStore)(nil)

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// ── Database CRUD ──────────────────────────────────────────

func (s *LocalDatabaseStore) ListDatabases(ctx context.Context) ([]domain.DatabaseInfo, error) {
	rows, err := s.db.conn.QueryContext(ctx,
		`SELECT d.id, d.schema_json,
		 (SELECT COUNT(*) FROM db_rows r WHERE r.database_id = d.id)
		 FROM databases d ORDER BY d.created_at ASC, d.id ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("list databases: %w", err)
	}
	defer rows.Close()

	var result []domain.DatabaseInfo
	for rows.Next() {
		var id, schemaJSON string
		var count int
		if err := rows.Scan(&id, &schemaJSON, &count); err != nil {
			return nil, err
		}
		var schema domain.DatabaseSchema
		if err := json.Unmarshal([]byte(schemaJSON), &schema); err != nil {
			return nil, fmt.Errorf("decode schema %s: %w", id, err)
		}
		result = append(result, schema.Summary(id, count))
	}
	return result, rows.Err()
}

func (s *LocalDatabaseStore) CreateDatabase(ctx context.Context, name string, columns []domain.ColumnDef) (*domain.DatabaseInfo, error) {
	schema, err := newSchema(name, columns)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(schema)
	if err != nil {
		return nil, err
	}

	id := newDatabaseID()
	now := s.now()
	if _, err := s.db.conn.ExecContext(ctx,
		`INSERT INTO databases (id, name, schema_json, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)`,
		id, schema.Name, string(data), now, now,
	); err != nil {
		return nil, fmt.Errorf("create database: %w", err)
	}
	info := schema.Summary(id, 0)
	return &info, nil
}

func (s *LocalDatabaseStore) GetDatabase(ctx context.Context, id string) (*domain.Database, error) {
	schema, err := s.loadSchema(ctx, s.db.conn, id)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.conn.QueryContext(ctx,
		`SELECT id, fields_json, body, updated_at
		 FROM db_rows WHERE database_id = ? ORDER BY sort_order ASC, created_at ASC`, id,
	)
	if err != nil {
		return nil, fmt.Errorf("list rows: %w", err)
	}
	defer rows.Close()

	db := &domain.Database{ID: id, Schema: schema, Rows: []*domain.DatabaseRow{}}
	for rows.Next() {
		r, err := scanRow(rows, schema)
		if err != nil {
			return nil, err
		}
		db.Rows = append(db.Rows, r)
	}
	return db, rows.Err()
}

func (s *LocalDatabaseStore) DeleteDatabase(ctx context.Context, id string) error {
	tx, err := s.db.conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	// Delete all rows first, then the database
	if _, err := tx.ExecContext(ctx, `DELETE FROM db_rows WHERE database_id = ?`, id); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM databases WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("database %s: %w", id, domain.ErrDatabaseNotFound)
	}
	return tx.Commit()
}

// ── Row CRUD ───────────────────────────────────────────────

func (s *LocalDatabaseStore) CreateRow(ctx context.Context, dbID string, fields map[string]domain.FieldValue, body *string) (*domain.DatabaseRow, error) {
	tx, err := s.db.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	schema, err := s.loadSchema(ctx, tx, dbID)
	if err != nil {
		return nil, err
	}

	row := &domain.DatabaseRow{
		ID:       schema.AllocRowID(),
		Fields:   domain.NewRowFields(schema, fields),
		Modified: s.now(),
	}
	if body != nil {
		row.Body = *body
	}

	// Auto-assign sort_order to end
	var maxOrder sql.NullInt64
	if err := tx.QueryRowContext(ctx,
		`SELECT MAX(sort_order) FROM db_rows WHERE database_id = ?`, dbID,
	).Scan(&maxOrder); err != nil {
		return nil, err
	}
	order := 1
	if maxOrder.Valid {
		order = int(maxOrder.Int64) + 1
	}

	data, err := json.Marshal(encodeFields(row.Fields))
	if err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO db_rows (database_id, id, fields_json, body, sort_order, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		dbID, row.ID, string(data), row.Body, order, row.Modified, row.Modified,
	); err != nil {
		return nil, fmt.Errorf("create row: %w", err)
	}
	if err := s.saveSchema(ctx, tx, dbID, schema); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return row, nil
}

func (s *LocalDatabaseStore) UpdateRow(ctx context.Context, dbID, rowID string, partial map[string]domain.FieldValue, body *string) (*domain.DatabaseRow, error) {
	tx, err := s.db.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	schema, err := s.loadSchema(ctx, tx, dbID)
	if err != nil {
		return nil, err
	}
	row, err := s.loadRow(ctx, tx, schema, dbID, rowID)
	if err != nil {
		return nil, err
	}

	domain.MergeFields(schema, row.Fields, partial)
	if body != nil {
		row.Body = *body
	}
	row.Modified = s.now()

	data, err := json.Marshal(encodeFields(row.Fields))
	if err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE db_rows SET fields_json = ?, body = ?, updated_at = ?
		 WHERE database_id = ? AND id = ?`,
		string(data), row.Body, row.Modified, dbID, rowID,
	); err != nil {
		return nil, fmt.Errorf("update row: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return row, nil
}

func (s *LocalDatabaseStore) DeleteRow(ctx context.Context, dbID, rowID string) error {
	res, err := s.db.conn.ExecContext(ctx,
		`DELETE FROM db_rows WHERE database_id = ? AND id = ?`, dbID, rowID)
	if err != nil {
		return fmt.Errorf("delete row: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("row %s: %w", rowID, domain.ErrRowNotFound)
	}
	return nil
}

// ── Schema ─────────────────────────────────────────────────

func (s *LocalDatabaseStore) AddColumn(ctx context.Context, dbID string, col domain.ColumnDef) (*domain.DatabaseSchema, error) {
	return s.mutateSchema(ctx, dbID, func(tx *sql.Tx, schema *domain.DatabaseSchema) error {
		if err := appendColumn(schema, col); err != nil {
			return err
		}
		added := schema.Columns[len(schema.Columns)-1]
		if !added.Type.Stored() {
			return nil
		}
		def := domain.DefaultValue(added.Type)
		return s.rewriteFields(ctx, tx, schema, dbID, func(f map[string]domain.FieldValue) {
			if _, ok := f[added.ID]; !ok {
				f[added.ID] = def
			}
		})
	})
}

func (s *LocalDatabaseStore) RemoveColumn(ctx context.Context, dbID, columnID string) (*domain.DatabaseSchema, error) {
	return s.mutateSchema(ctx, dbID, func(tx *sql.Tx, schema *domain.DatabaseSchema) error {
		if !schema.RemoveColumn(columnID) {
			return fmt.Errorf("column %s: %w", columnID, domain.ErrColumnNotFound)
		}
		return s.rewriteFields(ctx, tx, schema, dbID, func(f map[string]domain.FieldValue) {
			delete(f, columnID)
		})
	})
}

func (s *LocalDatabaseStore) UpdateSchema(ctx context.Context, dbID string, updated *domain.DatabaseSchema) (*domain.DatabaseSchema, error) {
	return s.mutateSchema(ctx, dbID, func(_ *sql.Tx, schema *domain.DatabaseSchema) error {
		next, err := reconcileSchema(schema, updated)
		if err != nil {
			return err
		}
		*schema = *next
		return nil
	})
}

func (s *LocalDatabaseStore) mutateSchema(ctx context.Context, dbID string, fn func(*sql.Tx, *domain.DatabaseSchema) error) (*domain.DatabaseSchema, error) {
	tx, err := s.db.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	schema, err := s.loadSchema(ctx, tx, dbID)
	if err != nil {
		return nil, err
	}
	if err := fn(tx, schema); err != nil {
		return nil, err
	}
	if err := s.saveSchema(ctx, tx, dbID, schema); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return schema, nil
}

// rewriteFields applies edit to the fields of every row of a database.
func (s *LocalDatabaseStore) rewriteFields(ctx context.Context, tx *sql.Tx, schema *domain.DatabaseSchema, dbID string, edit func(map[string]domain.FieldValue)) error {
	rows, err := tx.QueryContext(ctx, `SELECT id, fields_json FROM db_rows WHERE database_id = ?`, dbID)
	if err != nil {
		return err
	}
	type pending struct{ id, data string }
	var updates []pending
	for rows.Next() {
		var id, fieldsJSON string
		if err := rows.Scan(&id, &fieldsJSON); err != nil {
			rows.Close()
			return err
		}
		var raw map[string]any
		if err := json.Unmarshal([]byte(fieldsJSON), &raw); err != nil {
			rows.Close()
			return fmt.Errorf("decode row %s: %w", id, err)
		}
		fields := decodeFields(schema, raw)
		edit(fields)
		data, err := json.Marshal(encodeFields(fields))
		if err != nil {
			rows.Close()
			return err
		}
		updates = append(updates, pending{id: id, data: string(data)})
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, `UPDATE db_rows SET fields_json = ? WHERE database_id = ? AND id = ?`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, u := range updates {
		if _, err := stmt.ExecContext(ctx, u.data, dbID, u.id); err != nil {
			return fmt.Errorf("rewrite row %s: %w", u.id, err)
		}
	}
	return nil
}

// ── Templates ──────────────────────────────────────────────

func (s *LocalDatabaseStore) ListRowTemplates(ctx context.Context, dbID string) ([]domain.RowTemplateInfo, error) {
	schema, err := s.loadSchema(ctx, s.db.conn, dbID)
	if err != nil {
		return nil, err
	}
	return template.List(schema), nil
}

func (s *LocalDatabaseStore) CreateRowFromTemplate(ctx context.Context, dbID, templateID string, vars map[string]string) (*domain.DatabaseRow, error) {
	schema, err := s.loadSchema(ctx, s.db.conn, dbID)
	if err != nil {
		return nil, err
	}
	exp, err := expandTemplate(schema, templateID, vars)
	if err != nil {
		return nil, err
	}
	return s.CreateRow(ctx, dbID, exp.Fields, &exp.Body)
}

// ── helpers ────────────────────────────────────────────────

func (s *LocalDatabaseStore) loadSchema(ctx context.Context, q querier, id string) (*domain.DatabaseSchema, error) {
	var schemaJSON string
	err := q.QueryRowContext(ctx, `SELECT schema_json FROM databases WHERE id = ?`, id).Scan(&schemaJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("database %s: %w", id, domain.ErrDatabaseNotFound)
	}
	if err != nil {
		return nil, err
	}
	schema := &domain.DatabaseSchema{}
	if err := json.Unmarshal([]byte(schemaJSON), schema); err != nil {
		return nil, fmt.Errorf("decode schema %s: %w", id, err)
	}
	return schema, nil
}

func (s *LocalDatabaseStore) saveSchema(ctx context.Context, q querier, id string, schema *domain.DatabaseSchema) error {
	data, err := json.Marshal(schema)
	if err != nil {
		return err
	}
	_, err = q.ExecContext(ctx,
		`UPDATE databases SET name = ?, schema_json = ?, updated_at = ? WHERE id = ?`,
		schema.Name, string(data), s.now(), id,
	)
	if err != nil {
		return fmt.Errorf("save schema: %w", err)
	}
	return nil
}

func (s *LocalDatabaseStore) loadRow(ctx context.Context, q querier, schema *domain.DatabaseSchema, dbID, rowID string) (*domain.DatabaseRow, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT id, fields_json, body, updated_at FROM db_rows WHERE database_id = ? AND id = ?`,
		dbID, rowID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("row %s: %w", rowID, domain.ErrRowNotFound)
	}
	return scanRow(rows, schema)
}

func scanRow(rows *sql.Rows, schema *domain.DatabaseSchema) (*domain.DatabaseRow, error) {
	var (
		r          domain.DatabaseRow
		fieldsJSON string
	)
	if err := rows.Scan(&r.ID, &fieldsJSON, &r.Body, &r.Modified); err != nil {
		return nil, err
	}
	var raw map[string]any
	if err := json.Unmarshal([]byte(fieldsJSON), &raw); err != nil {
		return nil, fmt.Errorf("decode row %s: %w", r.ID, err)
	}
	r.Fields = decodeFields(schema, raw)
	return &r, nil
}
