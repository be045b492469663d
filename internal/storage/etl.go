package storage

import (
	"context"

	"github.com/google/uuid"

	"notedb/internal/etl"
)

// ImportRunStore persists import run history in SQLite.
type ImportRunStore struct {
	db *DB
}

// NewImportRunStore creates a new ImportRunStore.
func NewImportRunStore(db *DB) *ImportRunStore {
	return &ImportRunStore{db: db}
}

var _ etl.RunLogStore = (*ImportRunStore)(nil)

func (s *ImportRunStore) CreateRunLog(ctx context.Context, log *etl.RunLog) error {
	log.ID = uuid.New().String()
	_, err := s.db.conn.ExecContext(ctx,
		`INSERT INTO import_runs (id, job_name, started_at, finished_at, status, rows_read, rows_written, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		log.ID, log.Job, log.StartedAt, log.FinishedAt, log.Status, log.RowsRead, log.RowsWritten, log.Error,
	)
	return err
}

func (s *ImportRunStore) ListRunLogs(ctx context.Context, job string, limit int) ([]etl.RunLog, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.conn.QueryContext(ctx,
		`SELECT id, job_name, started_at, finished_at, status, rows_read, rows_written, error
		 FROM import_runs WHERE job_name = ? ORDER BY started_at DESC LIMIT ?`,
		job, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []etl.RunLog
	for rows.Next() {
		var l etl.RunLog
		if err := rows.Scan(&l.ID, &l.Job, &l.StartedAt, &l.FinishedAt, &l.Status, &l.RowsRead, &l.RowsWritten, &l.Error); err != nil {
			return nil, err
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}
