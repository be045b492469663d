package domain

import (
	"errors"
	"fmt"
)

var (
	ErrDatabaseNotFound  = errors.New("database not found")
	ErrRowNotFound       = errors.New("row not found")
	ErrColumnNotFound    = errors.New("column not found")
	ErrTemplateNotFound  = errors.New("template not found")
	ErrViewNotFound      = errors.New("view not found")
	ErrTitleRequired     = errors.New("template requires a title")
	ErrInvalidColumn     = errors.New("invalid column definition")
	ErrInvalidGroupBy    = errors.New("board view requires a select group-by column")
	ErrInvalidDateColumn = errors.New("calendar view requires a date column")
)

// AdapterError reports a failed round trip to the row store. It is
// recoverable: callers reload and surface a notice.
type AdapterError struct {
	Op         string
	DatabaseID string
	Err        error
}

func (e *AdapterError) Error() string {
	if e.DatabaseID == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.DatabaseID, e.Err)
}

func (e *AdapterError) Unwrap() error { return e.Err }

// WrapAdapter wraps err as an AdapterError unless it already is one.
func WrapAdapter(op, dbID string, err error) error {
	if err == nil {
		return nil
	}
	var ae *AdapterError
	if errors.As(err, &ae) {
		return err
	}
	return &AdapterError{Op: op, DatabaseID: dbID, Err: err}
}
