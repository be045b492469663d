// Package dbclient reads rows out of external databases for imports.
package dbclient

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"
)

// Supported drivers.
const (
	DriverSQLite   = "sqlite"
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
	DriverMongoDB  = "mongodb"
)

// Connection describes an external database. For sqlite, Host is the file
// path. For mongodb, Host may be a full mongodb:// or mongodb+srv:// URI.
type Connection struct {
	Driver   string `json:"driver"`
	Host     string `json:"host,omitempty"`
	Port     int    `json:"port,omitempty"`
	Database string `json:"database,omitempty"`
	Username string `json:"username,omitempty"`
	// PasswordEnv names the environment variable holding the password.
	PasswordEnv string `json:"passwordEnv,omitempty"`
	// PasswordKey names a secret store entry holding the password. The app
	// resolves it into Password at startup.
	PasswordKey string            `json:"passwordKey,omitempty"`
	Password    string            `json:"-"`
	SSLMode     string            `json:"sslMode,omitempty"`
	Extra       map[string]string `json:"extra,omitempty"`
}

func (c Connection) password() string {
	if c.Password != "" {
		return c.Password
	}
	if c.PasswordEnv == "" {
		return ""
	}
	return os.Getenv(c.PasswordEnv)
}

// QueryPage is a batch of rows fetched from a query cursor.
type QueryPage struct {
	Columns      []string `json:"columns"`
	Rows         [][]any  `json:"rows"`
	TotalFetched int      `json:"totalFetched"`
	HasMore      bool     `json:"hasMore"`
}

// Connector runs read queries against an external database.
type Connector interface {
	// TestConnection verifies connectivity.
	TestConnection(ctx context.Context) error

	// Execute runs a read query and returns the first batch of rows.
	// For mongodb the query is a JSON document naming the collection.
	Execute(ctx context.Context, query string, fetchSize int) (*QueryPage, error)

	// FetchMore continues reading from the open cursor.
	FetchMore(ctx context.Context, fetchSize int) (*QueryPage, error)

	// Close closes the connection and any open cursor.
	Close() error
}

// NewConnector creates a Connector for conn.
func NewConnector(conn Connection, log *zap.SugaredLogger) (Connector, error) {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	switch conn.Driver {
	case DriverSQLite:
		return newSQLiteConnector(conn)
	case DriverMySQL:
		return newSQLConnector("mysql", buildMySQLDSN(conn))
	case DriverPostgres:
		return newSQLConnector("postgres", buildPostgresDSN(conn))
	case DriverMongoDB:
		return newMongoConnector(conn, log)
	default:
		return nil, fmt.Errorf("unsupported driver: %q", conn.Driver)
	}
}

// ReadAll executes query and drains the cursor, calling fn per row.
func ReadAll(ctx context.Context, c Connector, query string, batch int, fn func(columns []string, row []any) error) error {
	page, err := c.Execute(ctx, query, batch)
	if err != nil {
		return fmt.Errorf("execute: %w", err)
	}
	for {
		for _, row := range page.Rows {
			if err := fn(page.Columns, row); err != nil {
				return err
			}
		}
		if !page.HasMore {
			return nil
		}
		if page, err = c.FetchMore(ctx, batch); err != nil {
			return fmt.Errorf("fetch more: %w", err)
		}
	}
}
