package dbclient

import (
	"errors"

	_ "modernc.org/sqlite"
)

// newSQLiteConnector opens an external SQLite file. Writes are refused by
// Execute.
func newSQLiteConnector(conn Connection) (*sqlConnector, error) {
	if conn.Host == "" {
		return nil, errors.New("sqlite connection needs a file path in host")
	}
	dsn := conn.Host + "?_busy_timeout=5000"
	return newSQLConnector("sqlite", dsn)
}
