package database

import (
	"errors"
	"fmt"

	"github.com/nfrund/scriptdesk/internal/domain"
)

// Common database errors that can be checked using errors.Is()
var (
	// ErrNotFound is returned when a record is not found in the database.
	ErrNotFound = errors.New("record not found")

	// ErrInvalidInput is returned when invalid input is provided to a method.
	ErrInvalidInput = errors.New("invalid input data")

	// ErrNotConnected is returned when no healthy connection is available.
	ErrNotConnected = errors.New("database not connected")

	// ErrQueryFailed is returned when a query execution fails.
	ErrQueryFailed = errors.New("query execution failed")

	// ErrStale is returned when a conditional update matched no row.
	ErrStale = errors.New("record changed concurrently")
)

// DBError represents a database error with additional context.
type DBError struct {
	err     error
	context string
	query   string
}

// NewDBError creates a new DBError with the given error and context.
func NewDBError(err error, context string) *DBError {
	return &DBError{err: err, context: context}
}

// WithQuery adds query information to the error.
func (e *DBError) WithQuery(query string) *DBError {
	e.query = query
	return e
}

// Error returns the error message.
func (e *DBError) Error() string {
	msg := e.context
	if e.query != "" {
		msg = fmt.Sprintf("%s\nQuery: %s", msg, e.query)
	}
	if e.err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.err)
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *DBError) Unwrap() error {
	return e.err
}

// toDomain translates a store failure into a domain error for op.
func toDomain(op string, err error) error {
	if err == nil {
		return nil
	}
	if domain.KindOf(err) != nil {
		return err
	}
	switch {
	case errors.Is(err, ErrNotFound):
		return domain.NotFound(op, "not found", err)
	case errors.Is(err, ErrStale):
		return domain.NewError(domain.ErrConflict, op, "record was modified concurrently", err)
	case errors.Is(err, ErrInvalidInput):
		return domain.NewError(domain.ErrInvalidRequest, op, "invalid input", err)
	default:
		return domain.NewError(domain.ErrPersistence, op, "database operation failed", err)
	}
}
