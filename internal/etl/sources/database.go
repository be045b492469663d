package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"notedb/internal/dbclient"
	"notedb/internal/etl"
)

// ── Database Sources ───────────────────────────────────────
// sql_query and mongo_find read from a named external connection through
// dbclient.

const fetchSize = 500

// ConnectionResolver looks up a configured external connection by name.
type ConnectionResolver interface {
	Connection(name string) (dbclient.Connection, bool)
}

// Connections is a ConnectionResolver backed by a map.
type Connections map[string]dbclient.Connection

func (c Connections) Connection(name string) (dbclient.Connection, bool) {
	conn, ok := c[name]
	return conn, ok
}

var (
	providerMu   sync.RWMutex
	resolver     ConnectionResolver = Connections{}
	logger                          = zap.NewNop().Sugar()
	newConnector                    = dbclient.NewConnector
)

// SetConnectionResolver is called by the app at startup.
func SetConnectionResolver(r ConnectionResolver) {
	providerMu.Lock()
	defer providerMu.Unlock()
	resolver = r
}

// SetLogger sets the logger handed to connectors.
func SetLogger(l *zap.SugaredLogger) {
	providerMu.Lock()
	defer providerMu.Unlock()
	logger = l
}

type databaseSource struct {
	typ    string
	label  string
	driver func(string) bool
}

func init() {
	etl.RegisterSource(&databaseSource{
		typ:   "sql_query",
		label: "SQL Query",
		driver: func(d string) bool {
			return d == dbclient.DriverSQLite || d == dbclient.DriverMySQL || d == dbclient.DriverPostgres
		},
	})
	etl.RegisterSource(&databaseSource{
		typ:    "mongo_find",
		label:  "MongoDB Query",
		driver: func(d string) bool { return d == dbclient.DriverMongoDB },
	})
}

func (s *databaseSource) Spec() etl.SourceSpec {
	help := "SELECT statement"
	if s.typ == "mongo_find" {
		help = `JSON document, e.g. {"collection": "tasks", "filter": {"done": false}}`
	}
	return etl.SourceSpec{
		Type:  s.typ,
		Label: s.label,
		ConfigFields: []etl.ConfigField{
			{Key: "connection", Label: "Connection", Required: true, Help: "Name of a configured connection"},
			{Key: "query", Label: "Query", Required: true, Help: help},
		},
	}
}

// queryString accepts the mongo query as an object as well as a string.
func queryString(cfg etl.SourceConfig) (string, error) {
	switch q := cfg["query"].(type) {
	case string:
		return q, nil
	case map[string]any:
		b, err := json.Marshal(q)
		return string(b), err
	}
	return "", fmt.Errorf("query is required")
}

func (s *databaseSource) open(cfg etl.SourceConfig) (dbclient.Connector, string, error) {
	name := cfg.String("connection")
	query, err := queryString(cfg)
	if err != nil {
		return nil, "", err
	}

	providerMu.RLock()
	conn, ok := resolver.Connection(name)
	log := logger
	providerMu.RUnlock()
	if !ok {
		return nil, "", fmt.Errorf("unknown connection %q", name)
	}
	if !s.driver(conn.Driver) {
		return nil, "", fmt.Errorf("%s cannot read from a %s connection", s.typ, conn.Driver)
	}

	c, err := newConnector(conn, log.With("connection", name))
	if err != nil {
		return nil, "", err
	}
	return c, query, nil
}

func (s *databaseSource) Discover(ctx context.Context, cfg etl.SourceConfig) (*etl.Schema, error) {
	c, query, err := s.open(cfg)
	if err != nil {
		return nil, err
	}
	defer c.Close()

	page, err := c.Execute(ctx, query, 20)
	if err != nil {
		return nil, err
	}
	records := make([]etl.Record, 0, len(page.Rows))
	for _, row := range page.Rows {
		records = append(records, pageRecord(page.Columns, row))
	}
	schema := inferSchema(records)

	// Keep the query's column order.
	ordered := make([]etl.Field, 0, len(page.Columns))
	for _, col := range page.Columns {
		f, ok := schema.Field(col)
		if !ok {
			f = etl.Field{Name: col, Type: etl.FieldText}
		}
		ordered = append(ordered, f)
	}
	return &etl.Schema{Fields: ordered}, nil
}

func (s *databaseSource) Read(ctx context.Context, cfg etl.SourceConfig) (<-chan etl.Record, <-chan error) {
	out := make(chan etl.Record, 100)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		c, query, err := s.open(cfg)
		if err != nil {
			errCh <- err
			return
		}
		defer c.Close()

		err = dbclient.ReadAll(ctx, c, query, fetchSize, func(columns []string, row []any) error {
			select {
			case out <- pageRecord(columns, row):
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
		if err != nil {
			errCh <- err
		}
	}()

	return out, errCh
}

func pageRecord(columns []string, row []any) etl.Record {
	data := make(map[string]any, len(columns))
	for i, col := range columns {
		if i < len(row) {
			data[col] = row[i]
		}
	}
	return etl.Record{Data: data}
}
