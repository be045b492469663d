package storage

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"
)

// Fingerprinter reports a cheap per-database change marker. Two calls
// returning the same string for a database mean nothing observable changed
// in between. Used to notice writes made by another process.
type Fingerprinter interface {
	Fingerprints(ctx context.Context) (map[string]string, error)
}

var (
	_ Fingerprinter = (*LocalDatabaseStore)(nil)
	_ Fingerprinter = (*MarkdownStore)(nil)
)

// Fingerprints is the schema timestamp plus row count and latest row update.
func (s *LocalDatabaseStore) Fingerprints(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.conn.QueryContext(ctx,
		`SELECT d.id, d.updated_at, COUNT(r.id), COALESCE(MAX(r.updated_at), '')
		 FROM databases d LEFT JOIN db_rows r ON r.database_id = d.id
		 GROUP BY d.id, d.updated_at`)
	if err != nil {
		return nil, fmt.Errorf("fingerprints: %w", err)
	}
	defer rows.Close()

	out := map[string]string{}
	for rows.Next() {
		var id, schemaUpdated, rowsUpdated string
		var count int
		if err := rows.Scan(&id, &schemaUpdated, &count, &rowsUpdated); err != nil {
			return nil, fmt.Errorf("fingerprints: %w", err)
		}
		out[id] = fmt.Sprintf("%s:%d:%s", schemaUpdated, count, rowsUpdated)
	}
	return out, rows.Err()
}

// Fingerprints is the file count and newest modification time per database
// directory.
func (s *MarkdownStore) Fingerprints(ctx context.Context) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("fingerprints: %w", err)
	}
	out := map[string]string{}
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !e.IsDir() {
			continue
		}
		files, err := os.ReadDir(s.dbDir(e.Name()))
		if err != nil {
			continue
		}
		var (
			count  int
			newest time.Time
			schema bool
		)
		for _, f := range files {
			name := f.Name()
			if name == schemaFile {
				schema = true
			} else if !strings.HasSuffix(name, rowExt) {
				continue
			}
			count++
			if info, err := f.Info(); err == nil && info.ModTime().After(newest) {
				newest = info.ModTime()
			}
		}
		if !schema {
			continue
		}
		out[e.Name()] = fmt.Sprintf("%d:%d", count, newest.UnixNano())
	}
	return out, nil
}
